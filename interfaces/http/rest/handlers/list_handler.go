package handlers

import (
	"net/http"

	"taskable/application/services"
	"taskable/domain/core/entities"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ListHandler exposes list intents of the synchronizer
type ListHandler struct {
	sync   *services.Synchronizer
	logger *zap.Logger
}

// NewListHandler creates a new list handler
func NewListHandler(sync *services.Synchronizer, logger *zap.Logger) *ListHandler {
	return &ListHandler{sync: sync, logger: logger}
}

// CreateListRequest represents the request body for creating a list
type CreateListRequest struct {
	Name string `json:"name" validate:"max=200"`
}

// SelectListRequest represents the request body for changing the active list
type SelectListRequest struct {
	ID string `json:"id" validate:"required"`
}

// RenameListRequest represents the request body for renaming the active list
type RenameListRequest struct {
	Name string `json:"name" validate:"max=200"`
}

// GetState handles GET /state
func (h *ListHandler) GetState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, h.logger, http.StatusOK, h.sync.Snapshot())
}

// CreateList handles POST /lists. A create that arrives while another is
// in flight is dropped and reported as a conflict.
func (h *ListHandler) CreateList(w http.ResponseWriter, r *http.Request) {
	var req CreateListRequest
	if err := decodeJSON(r, &req); err != nil {
		respondAppError(w, h.logger, err)
		return
	}
	if req.Name == "" {
		req.Name = entities.DefaultListName
	}

	if !h.sync.CreateList(r.Context(), req.Name) {
		respondError(w, h.logger, http.StatusConflict, "A list is already being created")
		return
	}
	respondJSON(w, h.logger, http.StatusCreated, h.sync.Snapshot())
}

// DeleteList handles DELETE /lists/{listID}
func (h *ListHandler) DeleteList(w http.ResponseWriter, r *http.Request) {
	listID := chi.URLParam(r, "listID")
	if listID == "" {
		respondError(w, h.logger, http.StatusBadRequest, "List ID is required")
		return
	}

	h.sync.DeleteList(r.Context(), listID)
	respondJSON(w, h.logger, http.StatusOK, h.sync.Snapshot())
}

// SelectList handles PUT /lists/active
func (h *ListHandler) SelectList(w http.ResponseWriter, r *http.Request) {
	var req SelectListRequest
	if err := decodeJSON(r, &req); err != nil {
		respondAppError(w, h.logger, err)
		return
	}

	if !h.sync.SetActiveList(req.ID) {
		respondError(w, h.logger, http.StatusNotFound, "List not found")
		return
	}
	respondJSON(w, h.logger, http.StatusOK, h.sync.Snapshot())
}

// RenameList handles PATCH /lists/active
func (h *ListHandler) RenameList(w http.ResponseWriter, r *http.Request) {
	var req RenameListRequest
	if err := decodeJSON(r, &req); err != nil {
		respondAppError(w, h.logger, err)
		return
	}

	if _, ok := h.sync.Snapshot().ActiveList(); !ok {
		respondError(w, h.logger, http.StatusConflict, "No active list")
		return
	}
	h.sync.UpdateListTitle(r.Context(), req.Name)
	respondJSON(w, h.logger, http.StatusOK, h.sync.Snapshot())
}
