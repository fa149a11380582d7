package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/reading"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/storage"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/timerange"
)

// Storage keeps readings and settings in memory. Data is lost on restart.
// Useful for testing and development.
type Storage struct {
	tables   map[reading.DataClass]map[string]reading.Reading
	settings map[string]int
	closed   bool
	mu       sync.RWMutex
}

// New creates an in-memory gateway
func New() *Storage {
	s := &Storage{
		tables:   make(map[reading.DataClass]map[string]reading.Reading),
		settings: make(map[string]int),
	}
	for _, c := range reading.Classes() {
		s.tables[c] = make(map[string]reading.Reading)
	}
	return s
}

// rowKey identifies a reading by (sensor, timestamp)
func rowKey(r reading.Reading) string {
	return r.SensorID + "\x00" + strconv.FormatInt(r.Timestamp.UnixNano(), 10)
}

// WriteReadings stores readings in memory
func (s *Storage) WriteReadings(ctx context.Context, class reading.DataClass, readings []reading.Reading) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}
	table, ok := s.tables[class]
	if !ok {
		return unknownClass(class)
	}
	for _, r := range readings {
		table[rowKey(r)] = r
	}
	return nil
}

// FetchReadings returns readings of sensorID inside window, oldest first
func (s *Storage) FetchReadings(ctx context.Context, class reading.DataClass, sensorID string, window timerange.TimeWindow) ([]reading.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.ErrClosed
	}
	table, ok := s.tables[class]
	if !ok {
		return nil, unknownClass(class)
	}

	results := make([]reading.Reading, 0)
	for _, r := range table {
		if sensorID != "" && r.SensorID != sensorID {
			continue
		}
		if !window.Contains(r.Timestamp) {
			continue
		}
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Timestamp.Equal(results[j].Timestamp) {
			return results[i].SensorID < results[j].SensorID
		}
		return results[i].Timestamp.Before(results[j].Timestamp)
	})
	return results, nil
}

// DeleteReadings removes readings older than before
func (s *Storage) DeleteReadings(ctx context.Context, class reading.DataClass, before time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, storage.ErrClosed
	}
	table, ok := s.tables[class]
	if !ok {
		return 0, unknownClass(class)
	}

	deleted := 0
	for k, r := range table {
		if r.Timestamp.Before(before) {
			delete(table, k)
			deleted++
		}
	}
	return deleted, nil
}

// FetchRetentionPolicy returns the stored hours, storing the default first
// if the class has never been configured
func (s *Storage) FetchRetentionPolicy(ctx context.Context, class reading.DataClass) (reading.RetentionPolicy, error) {
	if err := ctx.Err(); err != nil {
		return reading.RetentionPolicy{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return reading.RetentionPolicy{}, storage.ErrClosed
	}
	if _, ok := s.tables[class]; !ok {
		return reading.RetentionPolicy{}, unknownClass(class)
	}

	hours, ok := s.settings[class.RetentionKey()]
	if !ok {
		hours = class.DefaultRetentionHours()
		s.settings[class.RetentionKey()] = hours
	}
	return reading.RetentionPolicy{DataClass: class, Hours: hours}, nil
}

// UpdateRetentionPolicy overwrites the stored hours for class
func (s *Storage) UpdateRetentionPolicy(ctx context.Context, class reading.DataClass, hours int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}
	if _, ok := s.tables[class]; !ok {
		return unknownClass(class)
	}
	s.settings[class.RetentionKey()] = hours
	return nil
}

// EnsureRetentionPolicy stores hours if class has no policy yet
func (s *Storage) EnsureRetentionPolicy(ctx context.Context, class reading.DataClass, hours int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}
	if _, ok := s.tables[class]; !ok {
		return unknownClass(class)
	}
	if _, ok := s.settings[class.RetentionKey()]; !ok {
		s.settings[class.RetentionKey()] = hours
	}
	return nil
}

// Close marks the gateway closed
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Stats returns storage statistics
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.ErrClosed
	}

	stats := storage.NewStats("memory")
	var total uint64
	for class, table := range s.tables {
		cs := storage.ClassStats{Rows: uint64(len(table))}
		sensors := make(map[string]bool)
		first := true
		for _, r := range table {
			sensors[r.SensorID] = true
			if first || r.Timestamp.Before(cs.Oldest) {
				cs.Oldest = r.Timestamp
			}
			if first || r.Timestamp.After(cs.Newest) {
				cs.Newest = r.Timestamp
			}
			first = false
		}
		cs.Sensors = uint64(len(sensors))
		stats.Classes[class] = cs
		total += cs.Rows
	}

	// Rough size estimate (each reading ~64 bytes)
	stats.SizeBytes = total * 64
	return stats, nil
}

func unknownClass(class reading.DataClass) error {
	_, err := reading.ParseDataClass(string(class))
	return err
}
