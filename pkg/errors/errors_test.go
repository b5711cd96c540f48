package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewDatabaseError("insert_list", cause)

	assert.Equal(t, "DATABASE: database operation 'insert_list' failed (caused by: connection reset)", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestIsType_ThroughWrapping(t *testing.T) {
	err := fmt.Errorf("handler: %w", NewValidationError("level must be >= 0"))

	assert.True(t, IsValidation(err))
	assert.False(t, IsNotFound(err))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
}

func TestHTTPStatus_PlainError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "ignored"))

	wrapped := Wrap(errors.New("boom"), "fetch lists")
	assert.True(t, IsType(wrapped, ErrorTypeInternal))

	appErr := Wrap(NewNotFoundError("list"), "delete")
	assert.True(t, IsNotFound(appErr))
	assert.Equal(t, "NOT_FOUND: delete: list not found", appErr.Error())
}
