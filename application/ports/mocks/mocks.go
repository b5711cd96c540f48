// Package mocks provides testify mocks of the application ports.
package mocks

import (
	"context"
	"sync"

	"taskable/application/ports"

	"github.com/stretchr/testify/mock"
)

// MockListStore is a mock ports.ListStore
type MockListStore struct {
	mock.Mock
}

func (m *MockListStore) ListLists(ctx context.Context, ownerID string) ([]ports.ListRecord, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ports.ListRecord), args.Error(1)
}

func (m *MockListStore) InsertList(ctx context.Context, record ports.ListRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockListStore) UpdateList(ctx context.Context, id string, update ports.ListUpdate) error {
	args := m.Called(ctx, id, update)
	return args.Error(0)
}

func (m *MockListStore) DeleteList(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockSubscription is a mock ports.Subscription
type MockSubscription struct {
	mock.Mock
}

func (m *MockSubscription) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockRemoteClient is a mock ports.RemoteClient. The onChange callback
// handed to Subscribe is captured so tests can fire change events.
type MockRemoteClient struct {
	MockListStore

	mu       sync.Mutex
	onChange func()
}

func (m *MockRemoteClient) Subscribe(ctx context.Context, ownerID string, onChange func()) (ports.Subscription, error) {
	args := m.Called(ctx, ownerID, onChange)
	if args.Error(1) == nil {
		m.mu.Lock()
		m.onChange = onChange
		m.mu.Unlock()
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(ports.Subscription), args.Error(1)
}

func (m *MockRemoteClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// Fire invokes the captured change callback, if any
func (m *MockRemoteClient) Fire() {
	m.mu.Lock()
	fn := m.onChange
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// MockClientFactory is a mock ports.ClientFactory
type MockClientFactory struct {
	mock.Mock
}

func (m *MockClientFactory) NewClient(ctx context.Context, token string) (ports.RemoteClient, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(ports.RemoteClient), args.Error(1)
}

// MockSessionProvider is a mock ports.SessionProvider
type MockSessionProvider struct {
	mock.Mock
}

func (m *MockSessionProvider) CurrentUser() (ports.Identity, bool) {
	args := m.Called()
	return args.Get(0).(ports.Identity), args.Bool(1)
}

func (m *MockSessionProvider) IsAuthenticated() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockSessionProvider) Token(ctx context.Context, audience string) (string, error) {
	args := m.Called(ctx, audience)
	return args.String(0), args.Error(1)
}

func (m *MockSessionProvider) SignIn(ctx context.Context, creds ports.Credentials) (ports.Identity, error) {
	args := m.Called(ctx, creds)
	return args.Get(0).(ports.Identity), args.Error(1)
}

func (m *MockSessionProvider) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockPreferenceStore is a mock ports.PreferenceStore
type MockPreferenceStore struct {
	mock.Mock
}

func (m *MockPreferenceStore) Bool(name string, def bool) bool {
	args := m.Called(name, def)
	return args.Bool(0)
}

func (m *MockPreferenceStore) SetBool(name string, value bool) error {
	args := m.Called(name, value)
	return args.Error(0)
}

func (m *MockPreferenceStore) All() map[string]bool {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(map[string]bool)
}
