package query

import (
	"time"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/reading"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/timerange"
)

// SeriesPoint is one aggregated bucket as rendered to chart clients
type SeriesPoint struct {
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`

	// Display is set when the caller asks for formatted output
	Display string `json:"display,omitempty"`
}

// SeriesResponse is the body of GET /v1/readings
type SeriesResponse struct {
	SensorID    string               `json:"sensor_id"`
	DataClass   reading.DataClass    `json:"data_class"`
	Range       string               `json:"range"`
	BucketWidth string               `json:"bucket_width"`
	Window      timerange.TimeWindow `json:"window"`
	Unit        string               `json:"unit,omitempty"`
	DisplayUnit string               `json:"display_unit,omitempty"`
	Points      []SeriesPoint        `json:"points"`
}

// SensorsResponse is the body of GET /v1/sensors
type SensorsResponse struct {
	Sensors []reading.SensorConfig `json:"sensors"`
	Count   int                    `json:"count"`
}

// RangeInfo describes one supported range token
type RangeInfo struct {
	Token       string `json:"token"`
	Window      string `json:"window"`
	BucketWidth string `json:"bucket_width"`
	Points      int    `json:"points"`
}

// RangesResponse is the body of GET /v1/ranges
type RangesResponse struct {
	Default string      `json:"default"`
	Ranges  []RangeInfo `json:"ranges"`
}

// LatestValue is the newest reading of one diagnostic metric
type LatestValue struct {
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Display   string    `json:"display"`
	Timestamp time.Time `json:"timestamp"`
	Updated   string    `json:"updated"`
}

// LatestResponse is the body of GET /v1/diagnostics/latest
type LatestResponse struct {
	Metrics []LatestValue `json:"metrics"`
}
