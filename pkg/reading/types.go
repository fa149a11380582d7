package reading

import (
	"fmt"
	"time"
)

// DataClass identifies which readings table a row lives in.
type DataClass string

const (
	ClassSensor     DataClass = "sensor"
	ClassDiagnostic DataClass = "diagnostic"
)

// Classes returns every data class in a stable order.
func Classes() []DataClass {
	return []DataClass{ClassSensor, ClassDiagnostic}
}

// ParseDataClass validates a data class name.
func ParseDataClass(s string) (DataClass, error) {
	switch DataClass(s) {
	case ClassSensor, ClassDiagnostic:
		return DataClass(s), nil
	}
	return "", fmt.Errorf("unknown data class %q (want sensor or diagnostic)", s)
}

// Table returns the storage table name for the class.
func (c DataClass) Table() string {
	return string(c) + "_readings"
}

// RetentionKey returns the settings key holding the class retention hours.
func (c DataClass) RetentionKey() string {
	return string(c) + "_readings_retention_hours"
}

// DefaultRetentionHours is the policy created on first access.
func (c DataClass) DefaultRetentionHours() int {
	if c == ClassDiagnostic {
		return 72
	}
	return 168
}

// Reading is a single timestamped observation. Readings are immutable once
// stored: only ingestion and retention deletes touch them.
type Reading struct {
	SensorID  string    `json:"sensor_id"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// SensorConfig is owned by the settings collaborator. Only ID and Unit are
// used by the aggregation path.
type SensorConfig struct {
	ID              string `json:"id" mapstructure:"id"`
	Name            string `json:"name" mapstructure:"name"`
	Unit            string `json:"unit" mapstructure:"unit"`
	Pin             string `json:"pin" mapstructure:"pin"`
	SignalType      string `json:"signal_type" mapstructure:"signal_type"`
	ReadingInterval int    `json:"reading_interval" mapstructure:"reading_interval"`
	IsEnabled       bool   `json:"is_enabled" mapstructure:"is_enabled"`
	Description     string `json:"description" mapstructure:"description"`
}

// Diagnostic metric names, stored as sensor ids of diagnostic readings.
const (
	DiagCPUUsage       = "cpu_usage"
	DiagCPUTemperature = "cpu_temperature"
	DiagMemoryUsage    = "memory_usage"
	DiagDiskUsage      = "disk_usage"
	DiagNetworkUsage   = "network_usage"
	DiagSystemUptime   = "system_uptime"
)

// DiagnosticFields lists the fields a diagnostic report must carry.
var DiagnosticFields = []string{
	DiagCPUUsage,
	DiagCPUTemperature,
	DiagMemoryUsage,
	DiagDiskUsage,
	DiagNetworkUsage,
	DiagSystemUptime,
}

// Diagnostic is one rover self-telemetry report.
type Diagnostic struct {
	Timestamp time.Time
	Values    map[string]float64
}

// Readings flattens the report into one reading per metric.
func (d Diagnostic) Readings() []Reading {
	out := make([]Reading, 0, len(DiagnosticFields))
	for _, field := range DiagnosticFields {
		v, ok := d.Values[field]
		if !ok {
			continue
		}
		out = append(out, Reading{SensorID: field, Value: v, Timestamp: d.Timestamp})
	}
	return out
}

// RetentionPolicy is the maximum age, in hours, of readings of a class.
type RetentionPolicy struct {
	DataClass DataClass `json:"data_class"`
	Hours     int       `json:"hours"`
}

// Duration converts Hours to a time.Duration.
func (p RetentionPolicy) Duration() time.Duration {
	return time.Duration(p.Hours) * time.Hour
}

// Cutoff is the instant before which readings are expired at now.
func (p RetentionPolicy) Cutoff(now time.Time) time.Time {
	return now.Add(-p.Duration())
}
