package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/reading"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/timerange"
)

// ErrClosed is returned by operations on a closed gateway.
var ErrClosed = errors.New("storage: gateway closed")

// ReadingStore reads, writes and deletes readings of one data class.
type ReadingStore interface {
	// WriteReadings stores readings. Readings are never updated in place;
	// writing the same sensor and timestamp twice keeps the later value.
	WriteReadings(ctx context.Context, class reading.DataClass, readings []reading.Reading) error

	// FetchReadings returns readings in [window.Start, window.End] ordered
	// by timestamp ascending. An empty sensorID matches every sensor.
	FetchReadings(ctx context.Context, class reading.DataClass, sensorID string, window timerange.TimeWindow) ([]reading.Reading, error)

	// DeleteReadings removes every reading with timestamp < before and
	// returns how many were removed.
	DeleteReadings(ctx context.Context, class reading.DataClass, before time.Time) (int, error)
}

// PolicyStore persists retention hours per data class.
type PolicyStore interface {
	// FetchRetentionPolicy returns the stored policy, creating the class
	// default on first access.
	FetchRetentionPolicy(ctx context.Context, class reading.DataClass) (reading.RetentionPolicy, error)

	// UpdateRetentionPolicy overwrites the stored hours. Range validation
	// is the caller's job.
	UpdateRetentionPolicy(ctx context.Context, class reading.DataClass, hours int) error

	// EnsureRetentionPolicy stores hours only if the class has no policy yet.
	EnsureRetentionPolicy(ctx context.Context, class reading.DataClass, hours int) error
}

// Gateway is the single storage handle shared by aggregation, export and
// retention. It is constructed once at startup.
type Gateway interface {
	ReadingStore
	PolicyStore

	// Stats returns row counts and time bounds per class
	Stats(ctx context.Context) (*Stats, error)

	// Close cleanly shuts down the gateway
	Close() error
}

// ClassStats describes one readings table.
type ClassStats struct {
	Rows    uint64    `json:"rows"`
	Sensors uint64    `json:"sensors"`
	Oldest  time.Time `json:"oldest,omitempty"`
	Newest  time.Time `json:"newest,omitempty"`
}

// Stats provides storage health and usage info
type Stats struct {
	Backend   string                           `json:"backend"`
	Classes   map[reading.DataClass]ClassStats `json:"classes"`
	SizeBytes uint64                           `json:"size_bytes"`
}

// NewStats returns Stats with an entry for every class.
func NewStats(backend string) *Stats {
	s := &Stats{Backend: backend, Classes: make(map[reading.DataClass]ClassStats)}
	for _, c := range reading.Classes() {
		s.Classes[c] = ClassStats{}
	}
	return s
}
