package store_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/feiju-bot/feiju/internal/store"
)

func TestError_Error(t *testing.T) {
	err := &store.Error{Code: http.StatusNotFound, Message: "not found"}
	assert.Equal(t, "not found", err.Error())
}

func TestError_ErrorWithCause(t *testing.T) {
	cause := errors.New("underlying error")
	err := store.ErrMigration.WithCause(cause)

	assert.Contains(t, err.Error(), "schema migration failed")
	assert.Contains(t, err.Error(), "underlying error")
	assert.Equal(t, cause, err.Unwrap())
}

func TestError_IsSentinel(t *testing.T) {
	err := fmt.Errorf("resolve: %w", store.ErrNotFound.WithMessage("library not found"))

	assert.True(t, errors.Is(err, store.ErrNotFound))
	assert.False(t, errors.Is(err, store.ErrAlreadyExists))
	assert.True(t, errors.Is(store.ErrMigration.WithCause(errors.New("x")), store.ErrMigration))
}

func TestError_HTTPCode(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, store.ErrInvalidInput.HTTPCode())
	assert.Equal(t, http.StatusConflict, store.ErrAlreadyExists.HTTPCode())
}
