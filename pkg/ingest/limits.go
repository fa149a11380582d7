package ingest

import (
	"fmt"
	"math"
	"time"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/config"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/reading"
)

// Validation limits
const (
	MaxReadingsPerRequest = config.IngestMaxReadings
	MaxSensorIDLength     = config.IngestMaxSensorIDBytes

	// Readings stamped further ahead than this are rejected as clock errors
	MaxFutureSkew = 24 * time.Hour

	// Request bodies above this size are rejected before decoding
	MaxBodyBytes = 1 << 20
)

var (
	// ErrSensorIDEmpty is returned when a reading has no sensor id
	ErrSensorIDEmpty = fmt.Errorf("sensor_id cannot be empty")

	// ErrSensorIDTooLong is returned when a sensor id is too long
	ErrSensorIDTooLong = fmt.Errorf("sensor_id too long (max %d chars)", MaxSensorIDLength)

	// ErrValueNotFinite is returned for NaN or infinite values
	ErrValueNotFinite = fmt.Errorf("value must be a finite number")

	// ErrTimestampMissing is returned when a reading has a zero timestamp
	ErrTimestampMissing = fmt.Errorf("timestamp is required")

	// ErrTimestampInFuture is returned when a reading is too far ahead of now
	ErrTimestampInFuture = fmt.Errorf("timestamp more than %s in the future", MaxFutureSkew)

	// ErrTooManyReadings is returned when an ingest request contains too many readings
	ErrTooManyReadings = fmt.Errorf("too many readings in request (max %d)", MaxReadingsPerRequest)
)

// ValidateReading checks a reading before it is written
func ValidateReading(r reading.Reading, now time.Time) error {
	if r.SensorID == "" {
		return ErrSensorIDEmpty
	}
	if len(r.SensorID) > MaxSensorIDLength {
		return fmt.Errorf("%w: %q has %d chars", ErrSensorIDTooLong, r.SensorID, len(r.SensorID))
	}
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return fmt.Errorf("%w: sensor %q", ErrValueNotFinite, r.SensorID)
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("%w: sensor %q", ErrTimestampMissing, r.SensorID)
	}
	if r.Timestamp.After(now.Add(MaxFutureSkew)) {
		return fmt.Errorf("%w: sensor %q at %s", ErrTimestampInFuture, r.SensorID, r.Timestamp.Format(time.RFC3339))
	}
	return nil
}
