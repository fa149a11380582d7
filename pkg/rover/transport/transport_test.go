package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/reading"
)

var ts = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

func TestNewHTTP(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{"plain", "http://localhost:8080", "http://localhost:8080", false},
		{"trailing slash", "http://localhost:8080/", "http://localhost:8080", false},
		{"api prefix", "http://rover.local:8080/v1", "http://rover.local:8080", false},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := NewHTTP(tt.url, "")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, tr.baseURL)
			assert.Equal(t, 10*time.Second, tr.client.Timeout)
		})
	}
}

func TestHTTPTransport_SendReadings(t *testing.T) {
	var (
		gotPath string
		gotAuth string
		gotBody struct {
			Readings []reading.Reading `json:"readings"`
		}
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tr, err := NewHTTP(server.URL, "rover-key")
	require.NoError(t, err)

	err = tr.SendReadings(context.Background(), []reading.Reading{
		{SensorID: "temperature", Value: 21.5, Timestamp: ts},
		{SensorID: "humidity", Value: 40, Timestamp: ts},
	})
	require.NoError(t, err)

	assert.Equal(t, "/v1/readings", gotPath)
	assert.Equal(t, "Bearer rover-key", gotAuth)
	require.Len(t, gotBody.Readings, 2)
	assert.Equal(t, "temperature", gotBody.Readings[0].SensorID)
	assert.True(t, gotBody.Readings[0].Timestamp.Equal(ts))
}

func TestHTTPTransport_SendReadings_Empty(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	tr, err := NewHTTP(server.URL, "")
	require.NoError(t, err)
	require.NoError(t, tr.SendReadings(context.Background(), nil))
	assert.False(t, called)
}

func TestHTTPTransport_SendDiagnostic(t *testing.T) {
	var body map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/diagnostics", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	}))
	defer server.Close()

	tr, err := NewHTTP(server.URL, "")
	require.NoError(t, err)

	err = tr.SendDiagnostic(context.Background(), reading.Diagnostic{
		Timestamp: ts,
		Values:    map[string]float64{reading.DiagCPUUsage: 42.5, reading.DiagSystemUptime: 3600},
	})
	require.NoError(t, err)

	assert.Equal(t, 42.5, body[reading.DiagCPUUsage])
	assert.Equal(t, 3600.0, body[reading.DiagSystemUptime])
	assert.Equal(t, "2024-01-10T12:00:00Z", body["timestamp"])
}

func TestHTTPTransport_StatusError(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantCode      string
		wantTemporary bool
	}{
		{
			name:     "validation failure",
			status:   http.StatusBadRequest,
			body:     `{"error":{"code":"INVALID_REQUEST","message":"invalid reading 0: sensor id is empty"}}`,
			wantCode: "INVALID_REQUEST",
		},
		{
			name:          "storage outage",
			status:        http.StatusInternalServerError,
			body:          `{"error":{"code":"GATEWAY_UNAVAILABLE","message":"failed to store readings"}}`,
			wantCode:      "GATEWAY_UNAVAILABLE",
			wantTemporary: true,
		},
		{
			name:          "proxy error without body",
			status:        http.StatusBadGateway,
			body:          `<html>bad gateway</html>`,
			wantTemporary: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			tr, err := NewHTTP(server.URL, "")
			require.NoError(t, err)

			err = tr.SendReadings(context.Background(), []reading.Reading{{SensorID: "x", Value: 1, Timestamp: ts}})
			var statusErr *StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.status, statusErr.StatusCode)
			assert.Equal(t, tt.wantCode, statusErr.Code)
			assert.Equal(t, tt.wantTemporary, statusErr.Temporary())
		})
	}
}

func TestHTTPTransport_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	tr, err := NewHTTP(server.URL, "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = tr.SendReadings(ctx, []reading.Reading{{SensorID: "x", Value: 1, Timestamp: ts}})
	assert.Error(t, err)
}
