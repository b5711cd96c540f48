package handlers

import (
	"context"
	"net/http"

	"taskable/application/ports"
	"taskable/application/services"

	"go.uber.org/zap"
)

// SessionRefresher rebinds the synchronizer after a sign-in state change
type SessionRefresher interface {
	Refresh(ctx context.Context) error
	Mode() services.Mode
}

// SessionHandler signs users in and out
type SessionHandler struct {
	provider ports.SessionProvider
	session  SessionRefresher
	logger   *zap.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(provider ports.SessionProvider, session SessionRefresher, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{provider: provider, session: session, logger: logger}
}

// SignInRequest represents the request body for signing in
type SignInRequest struct {
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	Password string `json:"password,omitempty"`
	UserID   string `json:"userId,omitempty"`
}

// SessionResponse describes the current session
type SessionResponse struct {
	Authenticated bool            `json:"authenticated"`
	Identity      *ports.Identity `json:"identity,omitempty"`
	Mode          services.Mode   `json:"mode"`
}

// GetSession handles GET /session
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, h.logger, http.StatusOK, h.describe())
}

// SignIn handles POST /session
func (h *SessionHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := decodeJSON(r, &req); err != nil {
		respondAppError(w, h.logger, err)
		return
	}

	identity, err := h.provider.SignIn(r.Context(), ports.Credentials{
		Email:    req.Email,
		Password: req.Password,
		UserID:   req.UserID,
	})
	if err != nil {
		h.logger.Warn("Sign-in failed", zap.String("email", req.Email), zap.Error(err))
		respondAppError(w, h.logger, err)
		return
	}

	if err := h.session.Refresh(r.Context()); err != nil {
		respondAppError(w, h.logger, err)
		return
	}

	h.logger.Info("User signed in", zap.String("userID", identity.UserID))
	respondJSON(w, h.logger, http.StatusOK, h.describe())
}

// SignOut handles DELETE /session
func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.provider.SignOut(r.Context()); err != nil {
		respondAppError(w, h.logger, err)
		return
	}
	if err := h.session.Refresh(r.Context()); err != nil {
		respondAppError(w, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, h.describe())
}

func (h *SessionHandler) describe() SessionResponse {
	resp := SessionResponse{Mode: h.session.Mode()}
	if identity, ok := h.provider.CurrentUser(); ok {
		resp.Authenticated = true
		resp.Identity = &identity
	}
	return resp
}
