package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/aggregation"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/apperror"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/reading"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/storage"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/timerange"
)

// FormatVersion is stamped into every export's metadata.
const FormatVersion = "1.0"

// Exporter builds export payloads from the reading store
type Exporter struct {
	store   storage.ReadingStore
	sensors map[string]reading.SensorConfig
	now     func() time.Time
}

// NewExporter creates a new exporter. sensors supplies display units.
func NewExporter(store storage.ReadingStore, sensors []reading.SensorConfig) *Exporter {
	byID := make(map[string]reading.SensorConfig, len(sensors))
	for _, s := range sensors {
		byID[s.ID] = s
	}
	return &Exporter{store: store, sensors: byID, now: time.Now}
}

// Options configures the export operation
type Options struct {
	// Empty means every sensor of the class
	SensorID string
	Class    reading.DataClass
	Window   timerange.TimeWindow

	// Aggregate replaces raw readings with bucket means
	Aggregate bool
}

// Metadata describes an export
type Metadata struct {
	ExportID    string            `json:"export_id"`
	ExportedAt  time.Time         `json:"exported_at"`
	SensorID    string            `json:"sensor_id,omitempty"`
	DataClass   reading.DataClass `json:"data_class"`
	StartTime   time.Time         `json:"start_time"`
	EndTime     time.Time         `json:"end_time"`
	Unit        string            `json:"unit,omitempty"`
	Aggregated  bool              `json:"aggregated"`
	BucketWidth string            `json:"bucket_width,omitempty"`
	Count       int               `json:"count"`
	Version     string            `json:"version"`
}

// Payload is the serialized body of an export
type Payload struct {
	Metadata Metadata            `json:"metadata"`
	Readings []reading.Reading   `json:"readings,omitempty"`
	Points   []aggregation.Point `json:"points,omitempty"`
}

// Build fetches the window and assembles the payload.
func (e *Exporter) Build(ctx context.Context, opts Options) (*Payload, error) {
	class := opts.Class
	if class == "" {
		class = reading.ClassSensor
	}
	// Buckets hold one sensor each
	if opts.Aggregate && opts.SensorID == "" {
		return nil, apperror.New(apperror.KindInvalidRequest, "aggregate requires sensorId")
	}

	readings, err := e.store.FetchReadings(ctx, class, opts.SensorID, opts.Window)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch readings: %w", err)
	}

	p := &Payload{
		Metadata: Metadata{
			ExportID:   uuid.NewString(),
			ExportedAt: e.now().UTC(),
			SensorID:   opts.SensorID,
			DataClass:  class,
			StartTime:  opts.Window.Start,
			EndTime:    opts.Window.End,
			Unit:       e.sensors[opts.SensorID].Unit,
			Aggregated: opts.Aggregate,
			Version:    FormatVersion,
		},
	}

	if !opts.Aggregate {
		p.Readings = readings
		if p.Readings == nil {
			p.Readings = []reading.Reading{}
		}
		p.Metadata.Count = len(p.Readings)
		return p, nil
	}

	width := timerange.BucketWidthFor(opts.Window.Duration())
	points, err := aggregation.Aggregate(readings, opts.SensorID, opts.Window, width)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate readings: %w", err)
	}
	p.Points = points
	p.Metadata.BucketWidth = width.String()
	p.Metadata.Count = len(points)
	return p, nil
}

// WriteCSV writes the payload rows as CSV. Raw exports have one row per
// reading; aggregated exports one row per bucket.
func WriteCSV(w io.Writer, p *Payload) error {
	writer := csv.NewWriter(w)

	var header []string
	if p.Metadata.Aggregated {
		header = []string{"index", "timestamp", "value", "count", "min", "max"}
	} else {
		header = []string{"timestamp", "sensor_id", "value"}
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	if p.Metadata.Aggregated {
		for _, pt := range p.Points {
			row := []string{
				strconv.Itoa(pt.Index),
				pt.Timestamp.Format(time.RFC3339),
				formatFloat(pt.Value),
				strconv.Itoa(pt.Count),
				formatFloat(pt.Min),
				formatFloat(pt.Max),
			}
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("failed to write CSV row: %w", err)
			}
		}
	} else {
		for _, r := range p.Readings {
			row := []string{
				r.Timestamp.Format(time.RFC3339Nano),
				r.SensorID,
				formatFloat(r.Value),
			}
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("failed to write CSV row: %w", err)
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

// CSVBytes renders the payload as CSV in memory.
func CSVBytes(p *Payload) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FileName returns <sensor>_data_<start>_<end> with compact UTC stamps.
func FileName(sensorID string, window timerange.TimeWindow) string {
	if sensorID == "" {
		sensorID = "all"
	}
	const layout = "20060102_150405"
	return fmt.Sprintf("%s_data_%s_%s",
		sensorID,
		window.Start.UTC().Format(layout),
		window.End.UTC().Format(layout))
}
