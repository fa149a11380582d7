package query

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/aggregation"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/apperror"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/config"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/format"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/httpx"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/logging"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/reading"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/storage"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/timerange"
)

// How far back the latest diagnostics panel looks
const latestLookback = 24 * time.Hour

// Handler serves chart series and sensor metadata
type Handler struct {
	store   storage.ReadingStore
	sensors []reading.SensorConfig
	units   map[string]string
	now     func() time.Time
	logger  *logging.Logger
}

// NewHandler creates a new query handler
func NewHandler(store storage.ReadingStore, sensors []reading.SensorConfig) *Handler {
	units := make(map[string]string, len(sensors))
	for _, s := range sensors {
		units[s.ID] = s.Unit
	}
	return &Handler{
		store:   store,
		sensors: sensors,
		units:   units,
		now:     time.Now,
		logger:  logging.With("component", "query"),
	}
}

// HandleReadings handles GET /v1/readings
// Query params:
//   - sensorId: sensor or diagnostic metric name (required)
//   - range: range token (default: 1h)
//   - class: sensor or diagnostic (default: sensor)
//   - formatted: "true" adds display strings per point
func (h *Handler) HandleReadings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.RespondMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()

	sensorID := query.Get("sensorId")
	if sensorID == "" {
		httpx.RespondErrorString(w, apperror.KindInvalidRequest, "sensorId parameter required")
		return
	}
	if len(sensorID) > config.IngestMaxSensorIDBytes {
		httpx.RespondErrorString(w, apperror.KindInvalidRequest, "sensorId too long")
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

	formatted := false
	if f := query.Get("formatted"); f != "" {
		parsed, err := strconv.ParseBool(f)
		if err != nil {
			httpx.RespondErrorString(w, apperror.KindInvalidRequest, "formatted must be true or false")
			return
		}
		formatted = parsed
	}

	// A missing range falls back to the dashboard default; an unknown one
	// is the caller's mistake.
	token := query.Get("range")
	if token == "" {
		token = config.QueryDefaultRange
	}
	res, err := timerange.Resolve(token, h.now())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.QueryTimeout)
	defer cancel()

	readings, err := h.store.FetchReadings(ctx, class, sensorID, res.Window)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	points, err := aggregation.Aggregate(readings, sensorID, res.Window, res.BucketWidth)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("aggregation failed: %w", err))
		return
	}

	resp := SeriesResponse{
		SensorID:    sensorID,
		DataClass:   class,
		Range:       res.Token,
		BucketWidth: res.BucketWidth.String(),
		Window:      res.Window,
		Unit:        h.units[sensorID],
		Points:      make([]SeriesPoint, len(points)),
	}
	for i, p := range points {
		resp.Points[i] = SeriesPoint{Index: p.Index, Timestamp: p.Timestamp, Value: p.Value}
	}
	if formatted {
		resp.DisplayUnit = h.decorate(sensorID, resp.Unit, resp.Points)
	}

	h.logger.Debug("Series served",
		"sensor_id", sensorID,
		"range", res.Token,
		"readings", len(readings),
		"points", len(points))

	httpx.RespondJSON(w, http.StatusOK, resp)
}

// decorate fills Display on every point and returns the shared display
// unit. Network rates share one byte-rate unit across the series so the
// axis stays consistent.
func (h *Handler) decorate(sensorID, unit string, points []SeriesPoint) string {
	switch sensorID {
	case reading.DiagNetworkUsage:
		values := make([]float64, len(points))
		for i, p := range points {
			values[i] = p.Value
		}
		rateUnit := format.ByteRateUnit(values)
		for i := range points {
			points[i].Display = format.WithUnit(format.ScaleTo(points[i].Value, rateUnit), rateUnit)
		}
		return rateUnit
	case reading.DiagSystemUptime:
		for i := range points {
			points[i].Display = format.Elapsed(points[i].Value)
		}
		return ""
	}

	for i := range points {
		points[i].Display = format.WithUnit(points[i].Value, unit)
	}
	return unit
}

// HandleSensors handles GET /v1/sensors. Only enabled sensors are listed
// unless all=true.
func (h *Handler) HandleSensors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.RespondMethodNotAllowed(w)
		return
	}

	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))

	sensors := make([]reading.SensorConfig, 0, len(h.sensors))
	for _, s := range h.sensors {
		if all || s.IsEnabled {
			sensors = append(sensors, s)
		}
	}
	sort.Slice(sensors, func(i, j int) bool { return sensors[i].ID < sensors[j].ID })

	httpx.RespondJSON(w, http.StatusOK, SensorsResponse{Sensors: sensors, Count: len(sensors)})
}

// HandleRanges handles GET /v1/ranges
func (h *Handler) HandleRanges(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.RespondMethodNotAllowed(w)
		return
	}

	table := timerange.Table()
	resp := RangesResponse{Default: config.QueryDefaultRange, Ranges: make([]RangeInfo, len(table))}
	for i, rg := range table {
		resp.Ranges[i] = RangeInfo{
			Token:       rg.Token,
			Window:      rg.Length.String(),
			BucketWidth: rg.BucketWidth.String(),
			Points:      int((rg.Length + rg.BucketWidth - 1) / rg.BucketWidth),
		}
	}
	httpx.RespondJSON(w, http.StatusOK, resp)
}

// HandleLatestDiagnostics handles GET /v1/diagnostics/latest: the newest
// value of every diagnostic metric with a relative "updated" label.
func (h *Handler) HandleLatestDiagnostics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.RespondMethodNotAllowed(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.QueryTimeout)
	defer cancel()

	now := h.now()
	readings, err := h.store.FetchReadings(ctx, reading.ClassDiagnostic, "",
		timerange.TimeWindow{Start: now.Add(-latestLookback), End: now})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	// Readings are ordered by time, so the last one per metric wins
	latest := make(map[string]reading.Reading)
	for _, rd := range readings {
		latest[rd.SensorID] = rd
	}

	resp := LatestResponse{Metrics: make([]LatestValue, 0, len(latest))}
	for _, field := range reading.DiagnosticFields {
		rd, ok := latest[field]
		if !ok {
			continue
		}
		resp.Metrics = append(resp.Metrics, LatestValue{
			Metric:    field,
			Value:     rd.Value,
			Display:   displayDiagnostic(field, rd.Value),
			Timestamp: rd.Timestamp,
			Updated:   format.Relative(rd.Timestamp, now),
		})
	}
	httpx.RespondJSON(w, http.StatusOK, resp)
}

func displayDiagnostic(metric string, v float64) string {
	switch metric {
	case reading.DiagNetworkUsage:
		return format.ByteRate(v).String()
	case reading.DiagSystemUptime:
		return format.Elapsed(v)
	case reading.DiagCPUTemperature:
		return format.WithUnit(v, "°C")
	}
	return format.WithUnit(v, "%")
}
