package handlers

import (
	"net/http"

	"taskable/application/services"
	"taskable/domain/core/entities"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Keyboard intents understood by KeyIntent
const (
	KeyEnter     = "Enter"
	KeyBackspace = "Backspace"
	KeyDelete    = "Delete"
)

// TodoHandler exposes todo intents on the active list
type TodoHandler struct {
	sync   *services.Synchronizer
	logger *zap.Logger
}

// NewTodoHandler creates a new todo handler
func NewTodoHandler(sync *services.Synchronizer, logger *zap.Logger) *TodoHandler {
	return &TodoHandler{sync: sync, logger: logger}
}

// UpdateTodoRequest represents the request body for updating a todo
type UpdateTodoRequest struct {
	Title     *string `json:"title,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
	Level     *int    `json:"level,omitempty" validate:"omitempty,min=0"`
	IsEmpty   *bool   `json:"isEmpty,omitempty"`
}

// MoveTodoRequest represents the request body for reordering a todo
type MoveTodoRequest struct {
	Index int `json:"index" validate:"min=0"`
}

// KeyIntentRequest is a raw key press on a todo row
type KeyIntentRequest struct {
	Key string `json:"key" validate:"required,oneof=Enter Backspace Delete"`
}

// TodoResponse carries the id of a created todo and the resulting state
type TodoResponse struct {
	ID    string         `json:"id,omitempty"`
	State services.State `json:"state"`
}

// KeyIntentResponse reports which intent a key press mapped to
type KeyIntentResponse struct {
	Intent string         `json:"intent"`
	ID     string         `json:"id,omitempty"`
	State  services.State `json:"state"`
}

// CreateTodo handles POST /lists/active/todos
func (h *TodoHandler) CreateTodo(w http.ResponseWriter, r *http.Request) {
	id := h.sync.CreateTodo(r.Context())
	if id == "" {
		respondError(w, h.logger, http.StatusConflict, "No active list")
		return
	}
	respondJSON(w, h.logger, http.StatusCreated, TodoResponse{ID: id, State: h.sync.Snapshot()})
}

// UpdateTodo handles PATCH /lists/active/todos/{todoID}
func (h *TodoHandler) UpdateTodo(w http.ResponseWriter, r *http.Request) {
	todoID, ok := h.requireTodo(w, r)
	if !ok {
		return
	}

	var req UpdateTodoRequest
	if err := decodeJSON(r, &req); err != nil {
		respondAppError(w, h.logger, err)
		return
	}

	h.sync.UpdateTodo(r.Context(), todoID, entities.TodoPatch{
		Title:     req.Title,
		Completed: req.Completed,
		Level:     req.Level,
		IsEmpty:   req.IsEmpty,
	})
	respondJSON(w, h.logger, http.StatusOK, TodoResponse{State: h.sync.Snapshot()})
}

// DeleteTodo handles DELETE /lists/active/todos/{todoID}
func (h *TodoHandler) DeleteTodo(w http.ResponseWriter, r *http.Request) {
	todoID, ok := h.requireTodo(w, r)
	if !ok {
		return
	}

	h.sync.DeleteTodo(r.Context(), todoID)
	respondJSON(w, h.logger, http.StatusOK, TodoResponse{State: h.sync.Snapshot()})
}

// DuplicateTodo handles POST /lists/active/todos/{todoID}/duplicate
func (h *TodoHandler) DuplicateTodo(w http.ResponseWriter, r *http.Request) {
	todoID, ok := h.requireTodo(w, r)
	if !ok {
		return
	}

	id := h.sync.DuplicateTodo(r.Context(), todoID)
	respondJSON(w, h.logger, http.StatusCreated, TodoResponse{ID: id, State: h.sync.Snapshot()})
}

// MoveTodo handles POST /lists/active/todos/{todoID}/move
func (h *TodoHandler) MoveTodo(w http.ResponseWriter, r *http.Request) {
	todoID, ok := h.requireTodo(w, r)
	if !ok {
		return
	}

	var req MoveTodoRequest
	if err := decodeJSON(r, &req); err != nil {
		respondAppError(w, h.logger, err)
		return
	}

	h.sync.MoveTodo(r.Context(), todoID, req.Index)
	respondJSON(w, h.logger, http.StatusOK, TodoResponse{State: h.sync.Snapshot()})
}

// KeyIntent handles POST /lists/active/todos/{todoID}/keys. Enter creates
// a new todo; Backspace or Delete on a todo with an empty title deletes it.
// Any other combination is ignored.
func (h *TodoHandler) KeyIntent(w http.ResponseWriter, r *http.Request) {
	todoID, ok := h.requireTodo(w, r)
	if !ok {
		return
	}

	var req KeyIntentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondAppError(w, h.logger, err)
		return
	}

	resp := KeyIntentResponse{Intent: "none"}
	switch req.Key {
	case KeyEnter:
		resp.Intent = "create_todo"
		resp.ID = h.sync.CreateTodo(r.Context())
	case KeyBackspace, KeyDelete:
		if todo, found := activeTodo(h.sync.Snapshot(), todoID); found && todo.Title == "" {
			resp.Intent = "delete_todo"
			h.sync.DeleteTodo(r.Context(), todoID)
		}
	}

	resp.State = h.sync.Snapshot()
	respondJSON(w, h.logger, http.StatusOK, resp)
}

// requireTodo resolves {todoID} against the active list
func (h *TodoHandler) requireTodo(w http.ResponseWriter, r *http.Request) (string, bool) {
	todoID := chi.URLParam(r, "todoID")
	if todoID == "" {
		respondError(w, h.logger, http.StatusBadRequest, "Todo ID is required")
		return "", false
	}
	if _, found := activeTodo(h.sync.Snapshot(), todoID); !found {
		respondError(w, h.logger, http.StatusNotFound, "Todo not found")
		return "", false
	}
	return todoID, true
}

func activeTodo(state services.State, todoID string) (entities.TodoItem, bool) {
	list, ok := state.ActiveList()
	if !ok {
		return entities.TodoItem{}, false
	}
	for _, t := range list.Todos {
		if t.ID == todoID {
			return t, true
		}
	}
	return entities.TodoItem{}, false
}
