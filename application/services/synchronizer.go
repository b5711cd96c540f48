package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"taskable/application/ports"
	"taskable/domain/core/entities"
	"taskable/pkg/observability"

	"go.uber.org/zap"
)

// State is a point-in-time copy of the synchronizer's collection
type State struct {
	Lists         []entities.TodoList `json:"lists"`
	ActiveListID  string              `json:"activeListId"`
	Authenticated bool                `json:"authenticated"`
}

// ActiveList returns the active list, if any
func (s State) ActiveList() (entities.TodoList, bool) {
	if idx := entities.FindList(s.Lists, s.ActiveListID); idx >= 0 {
		return s.Lists[idx], true
	}
	return entities.TodoList{}, false
}

// Option configures a Synchronizer
type Option func(*Synchronizer)

// WithMetrics records mutation and refetch metrics on c
func WithMetrics(c *observability.Collector) Option {
	return func(s *Synchronizer) { s.metrics = c }
}

// WithClock overrides the timestamp source used for remote records
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

// WithRemoteTimeout bounds each fire-and-forget remote write
func WithRemoteTimeout(d time.Duration) Option {
	return func(s *Synchronizer) { s.remoteTimeout = d }
}

// Synchronizer is the single owner of the in-memory list collection and the
// active list. Every mutation is applied locally first; when a remote store
// is attached for a signed-in owner it is also persisted asynchronously.
// Remote failures are logged and swallowed, never rolled back.
type Synchronizer struct {
	mu       sync.Mutex
	lists    []entities.TodoList
	activeID string

	store   ports.ListStore
	ownerID string

	// bumped on Attach/Detach, every fetch start and every local mutation;
	// a fetch result is applied only if none of them moved while it ran
	bindingSeq  uint64
	fetchSeq    uint64
	mutationSeq uint64

	creating atomic.Bool
	pending  sync.WaitGroup

	listenerSeq int
	listeners   map[int]func(State)
	// held across snapshot and dispatch so listeners see states in order
	notifyMu sync.Mutex

	remoteTimeout time.Duration
	now           func() time.Time
	metrics       *observability.Collector
	logger        *zap.Logger
}

// NewSynchronizer creates an empty, detached synchronizer
func NewSynchronizer(logger *zap.Logger, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		lists:         []entities.TodoList{},
		listeners:     make(map[int]func(State)),
		remoteTimeout: 15 * time.Second,
		now:           time.Now,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Attach binds a remote store for the given owner. A nil store records the
// identity but keeps every operation local-only.
func (s *Synchronizer) Attach(store ports.ListStore, ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store = store
	s.ownerID = ownerID
	s.bindingSeq++
}

// Detach drops the remote binding; later operations are local-only
func (s *Synchronizer) Detach() {
	s.Attach(nil, "")
}

// OnChange registers fn to be called with a snapshot after every state
// change. Calls are serialized in the order the states were taken. The
// returned function unregisters it.
func (s *Synchronizer) OnChange(fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listenerSeq++
	id := s.listenerSeq
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Snapshot returns a deep copy of the current state
func (s *Synchronizer) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Wait blocks until all in-flight fire-and-forget remote writes are done
func (s *Synchronizer) Wait() {
	s.pending.Wait()
}

// Initialize loads the collection for the current binding: a full fetch
// when a remote store is attached for a signed-in owner, otherwise a single
// local "My Tasks" list that becomes active.
func (s *Synchronizer) Initialize(ctx context.Context) {
	if s.remoteBound() {
		s.FetchLists(ctx)
		return
	}

	def := entities.NewDefaultList()
	s.mu.Lock()
	s.lists = []entities.TodoList{def}
	s.activeID = def.ID
	s.mutationSeq++
	s.mu.Unlock()

	s.logger.Debug("Initialized local list collection", zap.String("listID", def.ID))
	s.countMutation("initialize")
	s.notify()
}

// FetchLists replaces the collection with the owner's remote lists, most
// recently updated first. An empty result creates and persists a default
// list. No merge is attempted; results older than a newer fetch or a later
// local mutation are discarded.
func (s *Synchronizer) FetchLists(ctx context.Context) {
	s.mu.Lock()
	store, owner := s.store, s.ownerID
	if store == nil || owner == "" {
		s.mu.Unlock()
		return
	}
	s.fetchSeq++
	fetchAt, mutationAt, bindingAt := s.fetchSeq, s.mutationSeq, s.bindingSeq
	s.mu.Unlock()

	records, err := store.ListLists(ctx, owner)
	if err != nil {
		s.logger.Error("Failed to fetch lists", zap.String("ownerID", owner), zap.Error(err))
		s.countRefetch("error")
		return
	}

	if len(records) == 0 {
		def := entities.NewDefaultList()
		now := s.now()
		record := ports.ListRecord{
			ID:        def.ID,
			UserID:    owner,
			Name:      def.Name,
			Todos:     def.Todos,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := store.InsertList(ctx, record); err != nil {
			s.logger.Error("Failed to persist default list", zap.String("ownerID", owner), zap.Error(err))
		}
		records = []ports.ListRecord{record}
	}

	lists := make([]entities.TodoList, len(records))
	for i, r := range records {
		lists[i] = r.ToList().Clone()
	}

	s.mu.Lock()
	if fetchAt != s.fetchSeq || mutationAt != s.mutationSeq || bindingAt != s.bindingSeq {
		s.mu.Unlock()
		s.logger.Debug("Discarding stale fetch result", zap.String("ownerID", owner))
		s.countRefetch("stale")
		if s.metrics != nil {
			s.metrics.StaleDiscards.Inc()
		}
		return
	}
	s.lists = lists
	if entities.FindList(lists, s.activeID) < 0 {
		s.activeID = firstID(lists)
	}
	s.mu.Unlock()

	s.logger.Debug("Fetched lists", zap.String("ownerID", owner), zap.Int("count", len(lists)))
	s.countRefetch("applied")
	s.notify()
}

// CreateList creates a list named name and makes it active. Only one create
// may be in flight; a concurrent call is dropped and reports false.
func (s *Synchronizer) CreateList(ctx context.Context, name string) bool {
	if !s.creating.CompareAndSwap(false, true) {
		s.logger.Debug("Dropping list creation, another is in flight", zap.String("name", name))
		if s.metrics != nil {
			s.metrics.DroppedCreates.Inc()
		}
		return false
	}
	defer s.creating.Store(false)

	list := entities.NewList(name)

	s.mu.Lock()
	store, owner := s.store, s.ownerID
	if store == nil || owner == "" {
		next := make([]entities.TodoList, 0, len(s.lists)+1)
		next = append(next, s.lists...)
		s.lists = append(next, list)
		s.activeID = list.ID
		s.mutationSeq++
		s.mu.Unlock()

		s.countMutation("create_list")
		s.notify()
		return true
	}
	bindingAt := s.bindingSeq
	s.mu.Unlock()

	now := s.now()
	record := ports.ListRecord{
		ID:        list.ID,
		UserID:    owner,
		Name:      list.Name,
		Todos:     list.Todos,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.InsertList(ctx, record); err != nil {
		s.logger.Error("Failed to create list", zap.String("listID", list.ID), zap.Error(err))
		return true
	}

	// The insert wakes the change feed, whose refetch may supersede ours.
	// Showing the stored list now discards any fetch that started before
	// the insert, and every later fetch already contains it.
	s.mu.Lock()
	stillBound := bindingAt == s.bindingSeq
	if stillBound {
		next := make([]entities.TodoList, 0, len(s.lists)+1)
		next = append(next, list)
		s.lists = append(next, s.lists...)
		s.activeID = list.ID
		s.mutationSeq++
	}
	s.mu.Unlock()

	if stillBound {
		s.countMutation("create_list")
		s.notify()
	}

	s.FetchLists(ctx)

	s.mu.Lock()
	activated := entities.FindList(s.lists, list.ID) >= 0
	if activated {
		s.activeID = list.ID
	}
	s.mu.Unlock()

	if activated {
		s.notify()
	}
	return true
}

// DeleteList removes list id. When the active list goes away the first
// remaining list becomes active, or none.
func (s *Synchronizer) DeleteList(ctx context.Context, id string) {
	s.mu.Lock()
	store, owner := s.store, s.ownerID
	if store == nil || owner == "" {
		next, removed := removeList(s.lists, id)
		if !removed {
			s.mu.Unlock()
			return
		}
		s.lists = next
		if s.activeID == id {
			s.activeID = firstID(next)
		}
		s.mutationSeq++
		s.mu.Unlock()

		s.countMutation("delete_list")
		s.notify()
		return
	}
	s.mu.Unlock()

	if err := store.DeleteList(ctx, id); err != nil {
		s.logger.Error("Failed to delete list", zap.String("listID", id), zap.Error(err))
	}
	s.FetchLists(ctx)
}

// SetActiveList makes list id active. It reports false for an unknown id.
func (s *Synchronizer) SetActiveList(id string) bool {
	s.mu.Lock()
	if entities.FindList(s.lists, id) < 0 {
		s.mu.Unlock()
		return false
	}
	changed := s.activeID != id
	s.activeID = id
	s.mu.Unlock()

	if changed {
		s.notify()
	}
	return true
}

// UpdateListTitle renames the active list. The rename is applied locally at
// once and persisted asynchronously; a remote failure does not revert it.
func (s *Synchronizer) UpdateListTitle(ctx context.Context, name string) {
	s.mu.Lock()
	idx := entities.FindList(s.lists, s.activeID)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	next := make([]entities.TodoList, len(s.lists))
	copy(next, s.lists)
	next[idx].Name = name
	s.lists = next
	s.mutationSeq++
	listID := next[idx].ID
	store, owner := s.store, s.ownerID
	s.mu.Unlock()

	s.countMutation("update_list_title")
	s.notify()

	if store == nil || owner == "" {
		return
	}
	update := ports.ListUpdate{Name: &name, UpdatedAt: s.now()}
	s.goRemote(ctx, "update_list_title", listID, func(ctx context.Context) error {
		return store.UpdateList(ctx, listID, update)
	})
}

// CreateTodo appends an empty todo to the active list and returns its id
func (s *Synchronizer) CreateTodo(ctx context.Context) string {
	todo := entities.NewEmptyTodo()
	ok := s.mutateActive(ctx, "create_todo", func(todos []entities.TodoItem) ([]entities.TodoItem, bool) {
		return entities.AppendTodo(todos, todo), true
	})
	if !ok {
		return ""
	}
	return todo.ID
}

// UpdateTodo merges patch into todo id of the active list
func (s *Synchronizer) UpdateTodo(ctx context.Context, id string, patch entities.TodoPatch) {
	s.mutateActive(ctx, "update_todo", func(todos []entities.TodoItem) ([]entities.TodoItem, bool) {
		return entities.MergeTodo(todos, id, patch)
	})
}

// DeleteTodo removes todo id from the active list
func (s *Synchronizer) DeleteTodo(ctx context.Context, id string) {
	s.mutateActive(ctx, "delete_todo", func(todos []entities.TodoItem) ([]entities.TodoItem, bool) {
		return entities.RemoveTodo(todos, id)
	})
}

// DuplicateTodo appends a copy of todo id to the end of the active list and
// returns the copy's id
func (s *Synchronizer) DuplicateTodo(ctx context.Context, id string) string {
	var dupID string
	s.mutateActive(ctx, "duplicate_todo", func(todos []entities.TodoItem) ([]entities.TodoItem, bool) {
		out, dup, ok := entities.DuplicateTodo(todos, id)
		dupID = dup.ID
		return out, ok
	})
	return dupID
}

// MoveTodo moves todo id of the active list to index
func (s *Synchronizer) MoveTodo(ctx context.Context, id string, index int) {
	s.mutateActive(ctx, "move_todo", func(todos []entities.TodoItem) ([]entities.TodoItem, bool) {
		return entities.MoveTodo(todos, id, index)
	})
}

// mutateActive rebuilds only the active list entry with fn's result; every
// other list is passed through unchanged. The new sequence is then synced.
func (s *Synchronizer) mutateActive(ctx context.Context, op string, fn func([]entities.TodoItem) ([]entities.TodoItem, bool)) bool {
	s.mu.Lock()
	idx := entities.FindList(s.lists, s.activeID)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	todos, changed := fn(s.lists[idx].Todos)
	if !changed {
		s.mu.Unlock()
		return false
	}
	next := make([]entities.TodoList, len(s.lists))
	copy(next, s.lists)
	next[idx].Todos = todos
	s.lists = next
	s.mutationSeq++
	listID := next[idx].ID
	s.mu.Unlock()

	s.countMutation(op)
	s.notify()
	s.syncList(ctx, listID, todos)
	return true
}

// syncList persists the full todo sequence of listID. It is a no-op without
// a signed-in owner and a remote store; otherwise fire-and-forget.
func (s *Synchronizer) syncList(ctx context.Context, listID string, todos []entities.TodoItem) {
	s.mu.Lock()
	store, owner := s.store, s.ownerID
	s.mu.Unlock()
	if store == nil || owner == "" {
		return
	}

	snapshot := entities.CloneTodos(todos)
	update := ports.ListUpdate{Todos: &snapshot, UpdatedAt: s.now()}
	s.goRemote(ctx, "sync_list", listID, func(ctx context.Context) error {
		return store.UpdateList(ctx, listID, update)
	})
}

// goRemote runs fn detached from the caller's cancellation. Failures are
// logged and never retried.
func (s *Synchronizer) goRemote(ctx context.Context, op, listID string, fn func(context.Context) error) {
	parent := context.WithoutCancel(ctx)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		runCtx := parent
		if s.remoteTimeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(parent, s.remoteTimeout)
			defer cancel()
		}

		if err := fn(runCtx); err != nil {
			s.logger.Error("Remote persistence failed",
				zap.String("operation", op),
				zap.String("listID", listID),
				zap.Error(err),
			)
		}
	}()
}

func (s *Synchronizer) remoteBound() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store != nil && s.ownerID != ""
}

func (s *Synchronizer) snapshotLocked() State {
	return State{
		Lists:         entities.CloneLists(s.lists),
		ActiveListID:  s.activeID,
		Authenticated: s.ownerID != "",
	}
}

// notify delivers the current state to every listener. Listeners run one
// notification at a time and must not call back into the synchronizer's
// mutating methods.
func (s *Synchronizer) notify() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if len(s.listeners) == 0 {
		s.mu.Unlock()
		return
	}
	state := s.snapshotLocked()
	fns := make([]func(State), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

func (s *Synchronizer) countMutation(op string) {
	if s.metrics != nil {
		s.metrics.LocalMutations.WithLabelValues(op).Inc()
	}
}

func (s *Synchronizer) countRefetch(outcome string) {
	if s.metrics != nil {
		s.metrics.Refetches.WithLabelValues(outcome).Inc()
	}
}

func removeList(lists []entities.TodoList, id string) ([]entities.TodoList, bool) {
	out := make([]entities.TodoList, 0, len(lists))
	removed := false
	for _, l := range lists {
		if l.ID == id {
			removed = true
			continue
		}
		out = append(out, l)
	}
	return out, removed
}

func firstID(lists []entities.TodoList) string {
	if len(lists) == 0 {
		return ""
	}
	return lists[0].ID
}
