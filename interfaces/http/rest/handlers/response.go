package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "taskable/pkg/errors"
	"taskable/pkg/utils"

	"go.uber.org/zap"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error   bool                   `json:"error"`
	Message string                 `json:"message"`
	Code    int                    `json:"code"`
	Type    string                 `json:"type,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, logger *zap.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, logger *zap.Logger, status int, message string) {
	respondJSON(w, logger, status, ErrorResponse{
		Error:   true,
		Message: message,
		Code:    status,
	})
}

// respondAppError maps an AppError to its HTTP status
func respondAppError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := apperrors.HTTPStatus(err)
	resp := ErrorResponse{Error: true, Message: err.Error(), Code: status}
	if appErr := apperrors.GetAppError(err); appErr != nil {
		resp.Message = appErr.Message
		resp.Type = string(appErr.Type)
		resp.Details = appErr.Details
	}
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", zap.Error(err))
	}
	respondJSON(w, logger, status, resp)
}

// decodeJSON reads the body into dst and validates it
func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.NewValidationError("invalid request body: " + err.Error())
	}
	if err := utils.ValidateStruct(dst); err != nil {
		appErr := apperrors.NewValidationError(err.Error())
		var fields utils.FieldErrors
		if errors.As(err, &fields) {
			details := make(map[string]interface{}, len(fields))
			for field, msg := range fields {
				details[field] = msg
			}
			appErr = appErr.WithDetails(details)
		}
		return appErr
	}
	return nil
}
