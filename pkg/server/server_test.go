package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/config"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/reading"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/storage"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/storage/memory"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Storage.Backend = "memory"
	cfg.Sensors = []reading.SensorConfig{
		{ID: "temperature", Name: "Temperature", Unit: "°C", IsEnabled: true},
	}
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) (*Components, *mux.Router) {
	t.Helper()
	c, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	router := mux.NewRouter()
	SetupRoutes(router, c)
	return c, router
}

func serve(router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestBuild_SeedsRetentionDefaults(t *testing.T) {
	cfg := testConfig()
	cfg.Retention.SensorHours = 48
	c, _ := newTestServer(t, cfg)

	policies, err := c.Purger.Policies(context.Background())
	require.NoError(t, err)
	require.Len(t, policies, 2)
	assert.Equal(t, 48, policies[0].Hours)
	assert.Equal(t, 72, policies[1].Hours)
}

func TestBuild_SQLiteBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Backend = "sqlite"
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "nested", "trequer.db")
	c, router := newTestServer(t, cfg)

	assert.Equal(t, cfg.Storage.SQLitePath, c.StorageMonitor.Path())

	rr := serve(router, http.MethodGet, "/v1/stats", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var stats storage.Stats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.Equal(t, "sqlite", stats.Backend)
}

func TestBuild_UnknownBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Backend = "cassandra"
	_, err := Build(context.Background(), cfg)
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	c, router := newTestServer(t, testConfig())

	rr := serve(router, http.MethodGet, "/v1/health", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "memory", resp.Backend)
	assert.Contains(t, resp.Retention.Classes, reading.ClassSensor)
	assert.Contains(t, resp.Retention.Classes, reading.ClassDiagnostic)

	for i := 0; i < 4; i++ {
		c.RetentionMonitor.RecordFailure(reading.ClassDiagnostic, errors.New("disk I/O error"))
	}

	rr = serve(router, http.MethodGet, "/v1/health", "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "disk I/O error", resp.Retention.Classes[reading.ClassDiagnostic].LastError)
}

func TestStorageUsage_MemoryBackend(t *testing.T) {
	_, router := newTestServer(t, testConfig())

	rr := serve(router, http.MethodGet, "/v1/storage", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var usage StorageUsage
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &usage))
	assert.Equal(t, int64(0), usage.UsedBytes)
	assert.Equal(t, int64(1024*1024*1024), usage.MaxBytes)
	assert.Equal(t, "0 B", usage.Used)
	assert.Equal(t, "1.07 GB", usage.Max)
}

func TestRoutes_IngestThenStats(t *testing.T) {
	_, router := newTestServer(t, testConfig())
	ts := time.Now().UTC().Add(-time.Minute).Format(time.RFC3339)

	body := `{"readings":[
		{"sensor_id":"temperature","value":21.5,"timestamp":"` + ts + `"},
		{"sensor_id":"humidity","value":40,"timestamp":"` + ts + `"}
	]}`
	rr := serve(router, http.MethodPost, "/v1/readings", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = serve(router, http.MethodGet, "/v1/stats", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var stats storage.Stats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.Equal(t, uint64(2), stats.Classes[reading.ClassSensor].Rows)
	assert.Equal(t, uint64(2), stats.Classes[reading.ClassSensor].Sensors)
	assert.Equal(t, uint64(0), stats.Classes[reading.ClassDiagnostic].Rows)
}

func TestRoutes_MethodDispatch(t *testing.T) {
	_, router := newTestServer(t, testConfig())

	tests := []struct {
		name       string
		method     string
		target     string
		wantStatus int
	}{
		{"query readings", http.MethodGet, "/v1/readings?sensorId=temperature", http.StatusOK},
		{"sensors", http.MethodGet, "/v1/sensors", http.StatusOK},
		{"ranges", http.MethodGet, "/v1/ranges", http.StatusOK},
		{"latest diagnostics", http.MethodGet, "/v1/diagnostics/latest", http.StatusOK},
		{"retention policies", http.MethodGet, "/v1/retention", http.StatusOK},
		{"purge via cron GET", http.MethodGet, "/v1/tasks/purge", http.StatusOK},
		{"purge via POST", http.MethodPost, "/v1/tasks/purge", http.StatusOK},
		{"put readings", http.MethodPut, "/v1/readings", http.StatusMethodNotAllowed},
		{"get diagnostics", http.MethodGet, "/v1/diagnostics", http.StatusMethodNotAllowed},
		{"delete retention", http.MethodDelete, "/v1/retention", http.StatusMethodNotAllowed},
		{"no root page", http.MethodGet, "/", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(router, tt.method, tt.target, "")
			assert.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
		})
	}
}

func TestCORS(t *testing.T) {
	_, router := newTestServer(t, testConfig())

	tests := []struct {
		origin  string
		allowed bool
	}{
		{"http://localhost:8080", true},
		{"http://127.0.0.1:3000", true},
		{"http://evil.example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/ranges", nil)
			req.Header.Set("Origin", tt.origin)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			got := rr.Header().Get("Access-Control-Allow-Origin")
			if tt.allowed {
				assert.Equal(t, tt.origin, got)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestCORS_Preflight(t *testing.T) {
	_, router := newTestServer(t, testConfig())

	for _, target := range []string{"/v1/readings", "/v1/retention", "/v1/readings/export"} {
		t.Run(target, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, target, nil)
			req.Header.Set("Origin", "http://localhost:3000")
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			assert.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())
			assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
			assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "POST")
		})
	}
}

func TestRunRetention_RecordsStartupPurge(t *testing.T) {
	c, _ := newTestServer(t, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go RunRetention(ctx, c.Purger, time.Hour, &wg)

	require.Eventually(t, func() bool {
		status := c.RetentionMonitor.Status()
		return status.Classes[reading.ClassSensor].LastSuccess != "" &&
			status.Classes[reading.ClassDiagnostic].LastSuccess != ""
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	wg.Wait()
}

func TestRunBadgerGC_SkipsOtherBackends(t *testing.T) {
	gw := storage.NewRetrying(memory.New(), 1, 0)
	defer gw.Close()

	_, isMemory := unwrapGateway(gw).(*memory.Storage)
	assert.True(t, isMemory)

	var wg sync.WaitGroup
	wg.Add(1)
	done := make(chan struct{})
	go func() {
		RunBadgerGC(context.Background(), gw, &wg)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunBadgerGC should return at once for non-badger storage")
	}
	wg.Wait()
}
