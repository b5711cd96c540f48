package handlers

import (
	"net/http"

	"taskable/application/ports"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// PreferenceHandler reads and writes named boolean preferences
type PreferenceHandler struct {
	store  ports.PreferenceStore
	logger *zap.Logger
}

// NewPreferenceHandler creates a new preference handler
func NewPreferenceHandler(store ports.PreferenceStore, logger *zap.Logger) *PreferenceHandler {
	return &PreferenceHandler{store: store, logger: logger}
}

// Preference is one named value
type Preference struct {
	Name  string `json:"name"`
	Value bool   `json:"value"`
}

// SetPreferenceRequest represents the request body for PUT /preferences/{name}
type SetPreferenceRequest struct {
	Value *bool `json:"value" validate:"required"`
}

// ListPreferences handles GET /preferences
func (h *PreferenceHandler) ListPreferences(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, h.logger, http.StatusOK, h.store.All())
}

// GetPreference handles GET /preferences/{name}. Unset preferences read as false.
func (h *PreferenceHandler) GetPreference(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	respondJSON(w, h.logger, http.StatusOK, Preference{Name: name, Value: h.store.Bool(name, false)})
}

// SetPreference handles PUT /preferences/{name}
func (h *PreferenceHandler) SetPreference(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req SetPreferenceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondAppError(w, h.logger, err)
		return
	}

	if err := h.store.SetBool(name, *req.Value); err != nil {
		h.logger.Error("Failed to save preference", zap.String("name", name), zap.Error(err))
		respondError(w, h.logger, http.StatusInternalServerError, "Failed to save preference")
		return
	}
	respondJSON(w, h.logger, http.StatusOK, Preference{Name: name, Value: *req.Value})
}
