package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("resolve: %w", New(KindInvalidRangeToken, `unknown range "3w"`))

	assert.True(t, errors.Is(err, ErrInvalidRangeToken))
	assert.False(t, errors.Is(err, ErrInvalidRetentionPolicy))
	assert.Equal(t, KindInvalidRangeToken, KindOf(err))
	assert.Equal(t, `unknown range "3w"`, MessageOf(err))
}

func TestError_UnwrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindGatewayUnavailable, "fetch readings failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "fetch readings failed: connection refused", err.Error())
}

func TestMessageOf_HidesInternalErrors(t *testing.T) {
	err := errors.New("badger: value log corrupted at offset 1234")
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "internal server error", MessageOf(err))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrInvalidRangeToken, http.StatusBadRequest},
		{ErrInvalidRetentionPolicy, http.StatusBadRequest},
		{ErrPayloadTooLarge, http.StatusBadRequest},
		{ErrInvalidRequest, http.StatusBadRequest},
		{ErrPurgeInProgress, http.StatusConflict},
		{ErrGatewayUnavailable, http.StatusInternalServerError},
		{ErrExportUnsupported, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), tt.err.Error())
	}
}
