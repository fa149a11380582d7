package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/apperror"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/format"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/httpx"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/server/monitor"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/storage"
)

// Version is reported by /v1/health.
const Version = "1.0.0"

var startTime = time.Now()

// StorageUsage represents current storage usage stats.
type StorageUsage struct {
	UsedBytes   int64   `json:"used_bytes"`
	MaxBytes    int64   `json:"max_bytes"`
	Used        string  `json:"used"`
	Max         string  `json:"max"`
	UsedPercent float64 `json:"used_percent"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string                  `json:"status"`
	Version   string                  `json:"version"`
	Uptime    string                  `json:"uptime"`
	Backend   string                  `json:"backend"`
	Clients   int                     `json:"ws_clients"`
	Retention monitor.RetentionStatus `json:"retention"`
}

// handleHealth returns service health status. A degraded retention monitor
// turns the response into a 503.
func handleHealth(c *Components) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := c.RetentionMonitor.Status()
		overallStatus := "healthy"
		statusCode := http.StatusOK

		if !status.Healthy {
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		httpx.RespondJSON(w, statusCode, HealthResponse{
			Status:    overallStatus,
			Version:   Version,
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			Backend:   c.Config.Storage.Backend,
			Clients:   c.Hub.ClientCount(),
			Retention: status,
		})
	}
}

// handleStats returns row counts and time bounds per data class.
func handleStats(gw storage.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := gw.Stats(r.Context())
		if err != nil {
			httpx.RespondError(w, apperror.Wrap(apperror.KindGatewayUnavailable, "failed to read storage stats", err))
			return
		}
		httpx.RespondJSON(w, http.StatusOK, stats)
	}
}

// handleStorageUsage returns current storage usage.
func handleStorageUsage(sm *monitor.StorageMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		usedBytes, err := sm.GetUsage()
		if err != nil {
			httpx.RespondError(w, apperror.Wrap(apperror.KindGatewayUnavailable, "failed to calculate storage usage", err))
			return
		}

		usage := StorageUsage{
			UsedBytes: usedBytes,
			MaxBytes:  sm.GetLimit(),
			Used:      format.Bytes(usedBytes),
			Max:       format.Bytes(sm.GetLimit()),
		}
		if usage.MaxBytes > 0 {
			usage.UsedPercent = format.Round(float64(usedBytes)/float64(usage.MaxBytes)*100, 2)
		}

		httpx.RespondJSON(w, http.StatusOK, usage)
	}
}

// SetupRoutes configures all HTTP routes for the server.
func SetupRoutes(router *mux.Router, c *Components) {
	router.Use(corsMiddleware(strconv.Itoa(c.Config.Server.Port)))

	api := router.PathPrefix("/v1").Subrouter()

	// Readings: ingest, aggregated series and export
	api.HandleFunc("/readings", c.Ingest.HandleReadings).Methods("POST")
	api.HandleFunc("/readings", c.Query.HandleReadings).Methods("GET")
	api.HandleFunc("/readings/export", c.Export.HandleExport).Methods("GET")
	api.HandleFunc("/diagnostics", c.Ingest.HandleDiagnostics).Methods("POST")
	api.HandleFunc("/diagnostics/latest", c.Query.HandleLatestDiagnostics).Methods("GET")

	// Metadata
	api.HandleFunc("/sensors", c.Query.HandleSensors).Methods("GET")
	api.HandleFunc("/ranges", c.Query.HandleRanges).Methods("GET")

	// Retention
	api.HandleFunc("/retention", c.Retention.HandlePolicies).Methods("GET")
	api.HandleFunc("/retention", c.Retention.HandleUpdatePolicy).Methods("POST")
	api.HandleFunc("/tasks/purge", c.Retention.HandlePurge).Methods("GET", "POST")

	// Health and stats
	api.HandleFunc("/health", handleHealth(c)).Methods("GET")
	api.HandleFunc("/stats", handleStats(c.Gateway)).Methods("GET")
	api.HandleFunc("/storage", handleStorageUsage(c.StorageMonitor)).Methods("GET")

	// WebSocket for live readings
	api.HandleFunc("/ws", c.Hub.HandleWebSocket).Methods("GET")

	// CORS preflight for every API path; headers come from corsMiddleware
	api.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	api.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.RespondMethodNotAllowed(w)
	})
}

// corsMiddleware creates CORS middleware that restricts to localhost origins only.
func corsMiddleware(port string) func(http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:" + port: true,
		"http://127.0.0.1:" + port: true,
		"http://localhost:3000":    true,
		"http://127.0.0.1:3000":    true,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if allowedOrigins[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			next.ServeHTTP(w, r)
		})
	}
}
