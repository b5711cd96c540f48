package memory

import (
	"context"
	"sync"

	"taskable/application/ports"
	"taskable/pkg/auth"
	apperrors "taskable/pkg/errors"

	"go.uber.org/zap"
)

// TokenVerifier validates a bearer token and returns its claims
type TokenVerifier interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// ClientFactory builds clients against a shared Store. Each client is
// scoped to the owner named by its token, the way row-level security
// scopes a hosted store.
type ClientFactory struct {
	store    *Store
	verifier TokenVerifier
	logger   *zap.Logger
}

// NewClientFactory creates a factory for store
func NewClientFactory(store *Store, verifier TokenVerifier, logger *zap.Logger) *ClientFactory {
	return &ClientFactory{store: store, verifier: verifier, logger: logger}
}

// NewClient verifies token and returns a client bound to its subject
func (f *ClientFactory) NewClient(ctx context.Context, token string) (ports.RemoteClient, error) {
	if token == "" {
		return nil, apperrors.ErrNoCredential
	}
	claims, err := f.verifier.ValidateToken(token)
	if err != nil {
		return nil, apperrors.NewUnauthorizedError("invalid bearer token").WithCause(err)
	}

	f.logger.Debug("Created memory client", zap.String("ownerID", claims.UserID))
	return &Client{store: f.store, ownerID: claims.UserID}, nil
}

// Client is a RemoteClient restricted to one owner's rows
type Client struct {
	store   *Store
	ownerID string

	mu     sync.Mutex
	subs   []ports.Subscription
	closed bool
}

func (c *Client) ListLists(ctx context.Context, ownerID string) ([]ports.ListRecord, error) {
	if err := c.check(ownerID); err != nil {
		return nil, err
	}
	return c.store.ListLists(ctx, ownerID)
}

func (c *Client) InsertList(ctx context.Context, record ports.ListRecord) error {
	if err := c.check(record.UserID); err != nil {
		return err
	}
	return c.store.InsertList(ctx, record)
}

func (c *Client) UpdateList(ctx context.Context, id string, update ports.ListUpdate) error {
	if err := c.check(c.ownerID); err != nil {
		return err
	}
	return c.store.updateOwned(ctx, c.ownerID, id, update)
}

func (c *Client) DeleteList(ctx context.Context, id string) error {
	if err := c.check(c.ownerID); err != nil {
		return err
	}
	return c.store.deleteOwned(ctx, c.ownerID, id)
}

func (c *Client) Subscribe(ctx context.Context, ownerID string, onChange func()) (ports.Subscription, error) {
	if err := c.check(ownerID); err != nil {
		return nil, err
	}
	sub, err := c.store.Subscribe(ctx, ownerID, onChange)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub, nil
}

// Close releases every subscription opened through this client
func (c *Client) Close() error {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.closed = true
	c.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	return nil
}

func (c *Client) check(ownerID string) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return apperrors.NewUnavailableError("memory client")
	}
	if ownerID != c.ownerID {
		return apperrors.NewUnauthorizedError("owner does not match bearer token")
	}
	return nil
}
