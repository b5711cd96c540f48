package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"taskable/application/ports"
	"taskable/application/ports/mocks"
	"taskable/application/services"
	"taskable/domain/core/entities"
	"taskable/interfaces/http/rest/handlers"
	apperrors "taskable/pkg/errors"
	"taskable/pkg/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSession struct {
	refreshes int
	mode      services.Mode
}

func (f *fakeSession) Refresh(context.Context) error {
	f.refreshes++
	return nil
}

func (f *fakeSession) Mode() services.Mode { return f.mode }

type testEnv struct {
	handler  http.Handler
	sync     *services.Synchronizer
	provider *mocks.MockSessionProvider
	session  *fakeSession
	prefs    *mocks.MockPreferenceStore
	metrics  *observability.Collector
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	sync := services.NewSynchronizer(zap.NewNop())
	sync.Initialize(context.Background())

	env := &testEnv{
		sync:     sync,
		provider: &mocks.MockSessionProvider{},
		session:  &fakeSession{mode: services.ModeAnonymous},
		prefs:    &mocks.MockPreferenceStore{},
		metrics:  observability.NewCollector("test"),
	}
	env.handler = NewRouter(sync, env.provider, env.session, env.prefs, RouterConfig{Metrics: env.metrics}, zap.NewNop()).Setup()
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func activeTodos(t *testing.T, state services.State) []entities.TodoItem {
	t.Helper()
	list, ok := state.ActiveList()
	require.True(t, ok)
	return list.Todos
}

func TestRouter_GetState(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/state", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	state := decode[services.State](t, rec)
	require.Len(t, state.Lists, 1)
	assert.Equal(t, entities.DefaultListName, state.Lists[0].Name)
	assert.Equal(t, state.Lists[0].ID, state.ActiveListID)
}

func TestRouter_ListLifecycle(t *testing.T) {
	// Arrange
	env := newTestEnv(t)
	first := env.sync.Snapshot().ActiveListID

	// Act: create, rename, select back, delete
	rec := env.do(t, http.MethodPost, "/api/v1/lists", handlers.CreateListRequest{Name: "Work"})
	require.Equal(t, http.StatusCreated, rec.Code)
	state := decode[services.State](t, rec)
	require.Len(t, state.Lists, 2)
	work := state.ActiveListID
	assert.NotEqual(t, first, work)

	rec = env.do(t, http.MethodPatch, "/api/v1/lists/active", handlers.RenameListRequest{Name: "Office"})
	require.Equal(t, http.StatusOK, rec.Code)
	active, _ := decode[services.State](t, rec).ActiveList()
	assert.Equal(t, "Office", active.Name)

	rec = env.do(t, http.MethodPut, "/api/v1/lists/active", handlers.SelectListRequest{ID: first})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first, decode[services.State](t, rec).ActiveListID)

	rec = env.do(t, http.MethodDelete, "/api/v1/lists/"+first, nil)

	// Assert
	require.Equal(t, http.StatusOK, rec.Code)
	state = decode[services.State](t, rec)
	require.Len(t, state.Lists, 1)
	assert.Equal(t, work, state.ActiveListID)
}

func TestRouter_SelectUnknownList(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/api/v1/lists/active", handlers.SelectListRequest{ID: "missing"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_SelectListRequiresID(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/api/v1/lists/active", map[string]string{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(apperrors.ErrorTypeValidation), decode[handlers.ErrorResponse](t, rec).Type)
}

func TestRouter_TodoLifecycle(t *testing.T) {
	// Arrange
	env := newTestEnv(t)

	// Act: create, update, duplicate, move
	rec := env.do(t, http.MethodPost, "/api/v1/lists/active/todos", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[handlers.TodoResponse](t, rec)
	require.NotEmpty(t, created.ID)

	title := "Ship it"
	done := true
	rec = env.do(t, http.MethodPatch, "/api/v1/lists/active/todos/"+created.ID,
		handlers.UpdateTodoRequest{Title: &title, Completed: &done})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/lists/active/todos/"+created.ID+"/duplicate", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	dup := decode[handlers.TodoResponse](t, rec)

	rec = env.do(t, http.MethodPost, "/api/v1/lists/active/todos/"+dup.ID+"/move", handlers.MoveTodoRequest{Index: 0})
	require.Equal(t, http.StatusOK, rec.Code)

	// Assert
	todos := activeTodos(t, decode[handlers.TodoResponse](t, rec).State)
	require.Len(t, todos, 2)
	assert.Equal(t, dup.ID, todos[0].ID)
	assert.Equal(t, "Ship it (copy)", todos[0].Title)
	assert.Equal(t, created.ID, todos[1].ID)
	assert.True(t, todos[1].Completed)
}

func TestRouter_UpdateTodoRejectsNegativeLevel(t *testing.T) {
	env := newTestEnv(t)
	id := env.sync.CreateTodo(context.Background())
	level := -1

	rec := env.do(t, http.MethodPatch, "/api/v1/lists/active/todos/"+id, handlers.UpdateTodoRequest{Level: &level})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[handlers.ErrorResponse](t, rec)
	assert.Equal(t, "level must be at least 0", resp.Details["level"])
	assert.Equal(t, 0, activeTodos(t, env.sync.Snapshot())[0].Level)
}

func TestRouter_UnknownTodo(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodDelete, "/api/v1/lists/active/todos/missing", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_KeyIntents(t *testing.T) {
	// Arrange
	env := newTestEnv(t)
	id := env.sync.CreateTodo(context.Background())

	// Act / Assert: Enter creates a todo
	rec := env.do(t, http.MethodPost, "/api/v1/lists/active/todos/"+id+"/keys", handlers.KeyIntentRequest{Key: handlers.KeyEnter})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[handlers.KeyIntentResponse](t, rec)
	assert.Equal(t, "create_todo", resp.Intent)
	assert.Len(t, activeTodos(t, resp.State), 2)

	// Backspace on a titled todo does nothing
	title := "keep"
	env.sync.UpdateTodo(context.Background(), id, entities.TodoPatch{Title: &title})
	rec = env.do(t, http.MethodPost, "/api/v1/lists/active/todos/"+id+"/keys", handlers.KeyIntentRequest{Key: handlers.KeyBackspace})
	resp = decode[handlers.KeyIntentResponse](t, rec)
	assert.Equal(t, "none", resp.Intent)
	assert.Len(t, activeTodos(t, resp.State), 2)

	// Delete on an empty title removes it
	rec = env.do(t, http.MethodPost, "/api/v1/lists/active/todos/"+resp.State.Lists[0].Todos[1].ID+"/keys", handlers.KeyIntentRequest{Key: handlers.KeyDelete})
	resp = decode[handlers.KeyIntentResponse](t, rec)
	assert.Equal(t, "delete_todo", resp.Intent)
	todos := activeTodos(t, resp.State)
	require.Len(t, todos, 1)
	assert.Equal(t, id, todos[0].ID)
}

func TestRouter_KeyIntentRejectsUnknownKey(t *testing.T) {
	env := newTestEnv(t)
	id := env.sync.CreateTodo(context.Background())

	rec := env.do(t, http.MethodPost, "/api/v1/lists/active/todos/"+id+"/keys", handlers.KeyIntentRequest{Key: "Tab"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_SignInAndOut(t *testing.T) {
	// Arrange
	env := newTestEnv(t)
	identity := ports.Identity{UserID: "u1", Email: "a@example.com"}
	env.provider.On("SignIn", mock.Anything, ports.Credentials{Email: "a@example.com", Password: "pw"}).Return(identity, nil)
	env.provider.On("SignOut", mock.Anything).Return(nil)
	env.provider.On("CurrentUser").Return(identity, true).Once()
	env.provider.On("CurrentUser").Return(ports.Identity{}, false)

	// Act
	rec := env.do(t, http.MethodPost, "/api/v1/session", handlers.SignInRequest{Email: "a@example.com", Password: "pw"})

	// Assert
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[handlers.SessionResponse](t, rec)
	assert.True(t, resp.Authenticated)
	assert.Equal(t, "u1", resp.Identity.UserID)

	rec = env.do(t, http.MethodDelete, "/api/v1/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[handlers.SessionResponse](t, rec).Authenticated)
	assert.Equal(t, 2, env.session.refreshes)
	env.provider.AssertExpectations(t)
}

func TestRouter_SignInFailure(t *testing.T) {
	env := newTestEnv(t)
	env.provider.On("SignIn", mock.Anything, mock.Anything).
		Return(ports.Identity{}, apperrors.NewUnauthorizedError("invalid login credentials"))

	rec := env.do(t, http.MethodPost, "/api/v1/session", handlers.SignInRequest{Email: "a@example.com", Password: "bad"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, env.session.refreshes)
}

func TestRouter_Preferences(t *testing.T) {
	env := newTestEnv(t)
	env.prefs.On("SetBool", "darkMode", true).Return(nil)
	env.prefs.On("Bool", "darkMode", false).Return(true)

	rec := env.do(t, http.MethodPut, "/api/v1/preferences/darkMode", map[string]bool{"value": true})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/preferences/darkMode", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, handlers.Preference{Name: "darkMode", Value: true}, decode[handlers.Preference](t, rec))

	rec = env.do(t, http.MethodPut, "/api/v1/preferences/darkMode", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env.prefs.AssertExpectations(t)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","mode":"anonymous"}`, rec.Body.String())

	env.do(t, http.MethodGet, "/api/v1/state", nil)
	rec = env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="/api/v1/state"`)
}
