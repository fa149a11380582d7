package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/apperror"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestRespondError_Classified(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, apperror.New(apperror.KindInvalidRetentionPolicy, "hours must be between 1 and 720"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decode(t, rec)
	assert.Equal(t, apperror.KindInvalidRetentionPolicy, body.Error.Code)
	assert.Equal(t, "hours must be between 1 and 720", body.Error.Message)
}

func TestRespondError_WrappedKeepsKind(t *testing.T) {
	rec := httptest.NewRecorder()
	err := fmt.Errorf("purge sensor: %w", apperror.New(apperror.KindPurgeInProgress, "purge already running"))
	RespondError(rec, err)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apperror.KindPurgeInProgress, decode(t, rec).Error.Code)
}

func TestRespondError_UnclassifiedHidesDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("open /var/lib/trequer/000123.vlog: permission denied"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, apperror.KindInternal, body.Error.Code)
	assert.NotContains(t, body.Error.Message, "vlog")
}

func TestRespondMethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondMethodNotAllowed(rec)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
