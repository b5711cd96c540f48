// Package memory provides an in-process remote store used for development
// and tests. Rows are shared by every client built from the same Store, so
// two sessions against one Store see each other's changes.
package memory

import (
	"context"
	"sort"
	"sync"

	"taskable/application/ports"
	"taskable/domain/core/entities"
	apperrors "taskable/pkg/errors"
)

// Store holds list rows and change subscribers for all owners
type Store struct {
	mu     sync.RWMutex
	rows   map[string]ports.ListRecord
	nextID int
	subs   map[string]map[int]func() // ownerID -> subscription id -> callback
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		rows: make(map[string]ports.ListRecord),
		subs: make(map[string]map[int]func()),
	}
}

// ListLists returns ownerID's rows, most recently updated first
func (s *Store) ListLists(ctx context.Context, ownerID string) ([]ports.ListRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]ports.ListRecord, 0)
	for _, r := range s.rows {
		if r.UserID == ownerID {
			out = append(out, copyRecord(r))
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// InsertList inserts one row; the id must be new
func (s *Store) InsertList(ctx context.Context, record ports.ListRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if record.ID == "" || record.UserID == "" {
		return apperrors.NewValidationError("list id and owner are required")
	}

	s.mu.Lock()
	if _, exists := s.rows[record.ID]; exists {
		s.mu.Unlock()
		return apperrors.NewValidationError("list already exists").WithCode("DUPLICATE_ID")
	}
	s.rows[record.ID] = copyRecord(record)
	s.mu.Unlock()

	s.publish(record.UserID)
	return nil
}

// UpdateList writes the non-nil fields of update to row id
func (s *Store) UpdateList(ctx context.Context, id string, update ports.ListUpdate) error {
	return s.updateOwned(ctx, "", id, update)
}

// DeleteList removes row id
func (s *Store) DeleteList(ctx context.Context, id string) error {
	return s.deleteOwned(ctx, "", id)
}

// Subscribe registers onChange for changes to ownerID's rows. onChange runs
// on the writer's goroutine and must not block.
func (s *Store) Subscribe(ctx context.Context, ownerID string, onChange func()) (ports.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	if s.subs[ownerID] == nil {
		s.subs[ownerID] = make(map[int]func())
	}
	s.subs[ownerID][id] = onChange
	s.mu.Unlock()

	return &subscription{store: s, ownerID: ownerID, id: id}, nil
}

// Subscribers returns the number of open subscriptions for ownerID
func (s *Store) Subscribers(ownerID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs[ownerID])
}

func (s *Store) updateOwned(ctx context.Context, ownerID, id string, update ports.ListUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	row, ok := s.rows[id]
	if !ok || (ownerID != "" && row.UserID != ownerID) {
		s.mu.Unlock()
		return apperrors.NewNotFoundError("list")
	}
	if update.Name != nil {
		row.Name = *update.Name
	}
	if update.Todos != nil {
		row.Todos = entities.CloneTodos(*update.Todos)
	}
	if !update.UpdatedAt.IsZero() {
		row.UpdatedAt = update.UpdatedAt
	}
	s.rows[id] = row
	s.mu.Unlock()

	s.publish(row.UserID)
	return nil
}

func (s *Store) deleteOwned(ctx context.Context, ownerID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	row, ok := s.rows[id]
	if !ok || (ownerID != "" && row.UserID != ownerID) {
		s.mu.Unlock()
		return apperrors.NewNotFoundError("list")
	}
	delete(s.rows, id)
	s.mu.Unlock()

	s.publish(row.UserID)
	return nil
}

func (s *Store) publish(ownerID string) {
	s.mu.RLock()
	fns := make([]func(), 0, len(s.subs[ownerID]))
	for _, fn := range s.subs[ownerID] {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}

type subscription struct {
	store   *Store
	ownerID string
	id      int
	once    sync.Once
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.store.mu.Lock()
		delete(s.store.subs[s.ownerID], s.id)
		if len(s.store.subs[s.ownerID]) == 0 {
			delete(s.store.subs, s.ownerID)
		}
		s.store.mu.Unlock()
	})
	return nil
}

func copyRecord(r ports.ListRecord) ports.ListRecord {
	r.Todos = entities.CloneTodos(r.Todos)
	return r
}
