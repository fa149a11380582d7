package retention

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/apperror"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/httpx"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/reading"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/storage/memory"
)

func postPolicy(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/retention", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	h.HandleUpdatePolicy(rec, req)
	return rec
}

func TestHandleUpdatePolicy(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   apperror.Kind
		wantHours  int
	}{
		{name: "integer hours", body: `{"data_class":"sensor","hours":24}`, wantStatus: http.StatusOK, wantHours: 24},
		{name: "lower bound", body: `{"data_class":"sensor","hours":1}`, wantStatus: http.StatusOK, wantHours: 1},
		{name: "upper bound", body: `{"data_class":"diagnostic","hours":720}`, wantStatus: http.StatusOK, wantHours: 720},
		{name: "duration string", body: `{"data_class":"sensor","hours":"7d"}`, wantStatus: http.StatusOK, wantHours: 168},
		{name: "zero", body: `{"data_class":"sensor","hours":0}`, wantStatus: http.StatusBadRequest, wantCode: apperror.KindInvalidRetentionPolicy},
		{name: "above max", body: `{"data_class":"sensor","hours":721}`, wantStatus: http.StatusBadRequest, wantCode: apperror.KindInvalidRetentionPolicy},
		{name: "fractional", body: `{"data_class":"sensor","hours":1.5}`, wantStatus: http.StatusBadRequest, wantCode: apperror.KindInvalidRetentionPolicy},
		{name: "missing hours", body: `{"data_class":"sensor"}`, wantStatus: http.StatusBadRequest, wantCode: apperror.KindInvalidRetentionPolicy},
		{name: "bad class", body: `{"data_class":"logs","hours":24}`, wantStatus: http.StatusBadRequest, wantCode: apperror.KindInvalidRetentionPolicy},
		{name: "bad json", body: `{`, wantStatus: http.StatusBadRequest, wantCode: apperror.KindInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(New(memory.New()))
			rec := postPolicy(t, h, tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			if tt.wantStatus == http.StatusOK {
				var policy reading.RetentionPolicy
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&policy))
				assert.Equal(t, tt.wantHours, policy.Hours)
				return
			}
			var body httpx.ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.NotEmpty(t, body.Error.Message)
		})
	}
}

func TestHandlePolicies(t *testing.T) {
	gw := memory.New()
	require.NoError(t, gw.UpdateRetentionPolicy(context.Background(), reading.ClassDiagnostic, 12))
	h := NewHandler(New(gw))

	rec := httptest.NewRecorder()
	h.HandlePolicies(rec, httptest.NewRequest(http.MethodGet, "/v1/retention", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PoliciesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Policies, 2)
	assert.Equal(t, 168, resp.Policies[0].Hours)
	assert.Equal(t, 12, resp.Policies[1].Hours)
}

func TestHandlePurge(t *testing.T) {
	now := time.Now()
	gw := memory.New()
	seed(t, gw, reading.ClassSensor, now.Add(-200*time.Hour), now)

	h := NewHandler(New(gw))
	rec := httptest.NewRecorder()
	h.HandlePurge(rec, httptest.NewRequest(http.MethodPost, "/v1/tasks/purge", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var summary Summary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&summary))
	assert.True(t, summary.Success)
	require.Len(t, summary.Results, 2)
	assert.Equal(t, 1, summary.Results[0].Deleted)
	assert.Equal(t, 0, summary.Results[1].Deleted)
}

func TestHandlePurge_FailureIs500(t *testing.T) {
	fg := &failingGateway{Gateway: memory.New(), failClass: reading.ClassSensor}
	h := NewHandler(New(fg))

	rec := httptest.NewRecorder()
	h.HandlePurge(rec, httptest.NewRequest(http.MethodGet, "/v1/tasks/purge", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var summary Summary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&summary))
	assert.False(t, summary.Success)
	assert.Equal(t, apperror.KindGatewayUnavailable, summary.Results[0].ErrorCode)
	assert.Empty(t, summary.Results[1].Error)
}

func TestHandlePurge_InProgressIs409(t *testing.T) {
	locker := NewLocalLocker()
	releaseSensor, _, _ := locker.TryLock(context.Background(), reading.ClassSensor)
	releaseDiag, _, _ := locker.TryLock(context.Background(), reading.ClassDiagnostic)
	defer releaseSensor()
	defer releaseDiag()

	h := NewHandler(New(memory.New(), WithLocker(locker)))
	rec := httptest.NewRecorder()
	h.HandlePurge(rec, httptest.NewRequest(http.MethodPost, "/v1/tasks/purge", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}
