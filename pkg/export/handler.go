package export

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/apperror"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/config"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/httpx"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/logging"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/reading"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/storage"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/timerange"
)

// Handler handles the export HTTP endpoint
type Handler struct {
	exporter      *Exporter
	packager      *Packager
	defaultWindow time.Duration
	maxWindow     time.Duration
	now           func() time.Time
	logger        *logging.Logger
}

// NewHandler creates a new export handler
func NewHandler(store storage.ReadingStore, sensors []reading.SensorConfig, cfg config.ExportConfig) *Handler {
	h := &Handler{
		exporter:      NewExporter(store, sensors),
		packager:      NewPackager(cfg),
		defaultWindow: cfg.DefaultWindow,
		maxWindow:     cfg.MaxWindow,
		now:           time.Now,
		logger:        logging.With("component", "export"),
	}
	if h.defaultWindow <= 0 {
		h.defaultWindow = config.DefaultExportWindow
	}
	if h.maxWindow <= 0 {
		h.maxWindow = config.MaxExportWindow
	}
	return h
}

// HandleExport handles GET /v1/readings/export
// Query params:
//   - sensorId: sensor to export (default: every sensor)
//   - class: sensor or diagnostic (default: sensor)
//   - from: RFC3339 timestamp (default: to - 24h)
//   - to: RFC3339 timestamp (default: now)
//   - format: "json" or "csv" (default: json)
//   - aggregate: "true" for bucket means instead of raw readings
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.RespondMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()

	format := query.Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		httpx.RespondErrorString(w, apperror.KindInvalidRequest, "format must be 'json' or 'csv'")
		return
	}

	class := reading.ClassSensor
	if c := query.Get("class"); c != "" {
		parsed, err := reading.ParseDataClass(c)
		if err != nil {
			httpx.RespondErrorString(w, apperror.KindInvalidRequest, "class must be sensor or diagnostic")
			return
		}
		class = parsed
	}

	aggregate := false
	if a := query.Get("aggregate"); a != "" {
		parsed, err := strconv.ParseBool(a)
		if err != nil {
			httpx.RespondErrorString(w, apperror.KindInvalidRequest, "aggregate must be true or false")
			return
		}
		aggregate = parsed
	}

	end, err := parseTimeParam(query.Get("to"), h.now())
	if err != nil {
		httpx.RespondErrorString(w, apperror.KindInvalidRequest, fmt.Sprintf("invalid 'to': %v", err))
		return
	}
	start, err := parseTimeParam(query.Get("from"), end.Add(-h.defaultWindow))
	if err != nil {
		httpx.RespondErrorString(w, apperror.KindInvalidRequest, fmt.Sprintf("invalid 'from': %v", err))
		return
	}

	if !start.Before(end) {
		httpx.RespondErrorString(w, apperror.KindInvalidRequest, "from must be before to")
		return
	}
	if end.Sub(start) > h.maxWindow {
		httpx.RespondErrorString(w, apperror.KindPayloadTooLarge,
			fmt.Sprintf("time range too large, maximum is %v", h.maxWindow))
		return
	}

	sensorID := query.Get("sensorId")
	window := timerange.TimeWindow{Start: start, End: end}

	ctx, cancel := context.WithTimeout(r.Context(), config.ExportTimeout)
	defer cancel()

	payload, err := h.exporter.Build(ctx, Options{
		SensorID:  sensorID,
		Class:     class,
		Window:    window,
		Aggregate: aggregate,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	name := FileName(sensorID, window)
	var archive *Archive
	if format == "json" {
		archive, err = h.packager.Package(ctx, payload, name)
	} else {
		var content []byte
		content, err = CSVBytes(payload)
		if err == nil {
			archive, err = h.packager.PackageFile(ctx, content, name+".csv", ContentTypeCSV)
		}
	}
	if err != nil {
		h.logger.Warn("Export failed", "sensor_id", sensorID, "error", err)
		httpx.RespondError(w, err)
		return
	}

	w.Header().Set("Content-Type", archive.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", archive.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(archive.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(archive.Data); err != nil {
		h.logger.Warn("Export write aborted", "file", archive.Filename, "error", err)
		return
	}

	h.logger.Info("Export delivered",
		"file", archive.Filename,
		"export_id", payload.Metadata.ExportID,
		"count", payload.Metadata.Count,
		"compressed", archive.Compressed,
		"bytes", len(archive.Data))
}

// parseTimeParam parses a time parameter or returns the default when empty
func parseTimeParam(param string, defaultTime time.Time) (time.Time, error) {
	if param == "" {
		return defaultTime, nil
	}

	if t, err := time.Parse(time.RFC3339, param); err == nil {
		return t, nil
	}

	// Simple datetime format, read as UTC
	if t, err := time.Parse("2006-01-02T15:04:05", param); err == nil {
		return t, nil
	}

	return time.Time{}, fmt.Errorf("%q is not an RFC3339 timestamp", param)
}
