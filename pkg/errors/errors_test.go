package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCodes(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, NotFound("invoice", nil).StatusCode())
	assert.Equal(t, http.StatusBadRequest, Validation("bad input").StatusCode())
	assert.Equal(t, http.StatusConflict, AlreadyRejected("terminal").StatusCode())
	assert.Equal(t, http.StatusConflict, Conflict("busy", nil).StatusCode())
	assert.Equal(t, http.StatusInternalServerError, Persistence(nil).StatusCode())
	assert.Equal(t, http.StatusInternalServerError, Internal(nil).StatusCode())
}

func TestAsUnwrapsThroughWrapping(t *testing.T) {
	base := NotFound("payment", nil)
	wrapped := fmt.Errorf("failed to approve: %w", base)

	appErr, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrNotFound, appErr.Code)

	assert.True(t, IsCode(wrapped, ErrNotFound))
	assert.False(t, IsCode(wrapped, ErrConflict))

	_, ok = As(fmt.Errorf("plain"))
	assert.False(t, ok)
}
