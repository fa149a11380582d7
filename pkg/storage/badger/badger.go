package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/logging"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/reading"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/storage"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/timerange"
)

// Key prefixes. Reading keys sort by class, then sensor, then time.
const (
	prefixReading byte = 'r'
	prefixSetting byte = 's'
)

// Reading key: [prefix 1][class 1][sensor hash 8][timestamp 8]
const readingKeyLen = 18

// Storage implements storage.Gateway using BadgerDB (LSM tree)
type Storage struct {
	db     *badger.DB
	logger *logging.Logger
}

// Config holds BadgerDB configuration
type Config struct {
	// Path to store database files
	Path string

	// InMemory mode (for testing)
	InMemory bool

	// MaxMemoryMB limits BadgerDB memory usage in MB (0 = use defaults)
	MaxMemoryMB int64
}

// New creates a BadgerDB gateway
func New(cfg Config) (*Storage, error) {
	opts := badger.DefaultOptions(cfg.Path)

	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(nil)

	// BadgerDB defaults add up to ~320 MB. The rover runs on a small board,
	// so memtable and caches are derived from one budget.
	memTableSize := int64(16 * 1024 * 1024)
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB * 1024 * 1024 / 3
	}
	blockCacheSize := memTableSize / 2
	indexCacheSize := memTableSize / 4

	opts = opts.
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(blockCacheSize).
		WithIndexCacheSize(indexCacheSize).
		WithMaxLevels(4).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024).
		WithNumCompactors(2).
		WithValueLogMaxEntries(5000).
		WithValueLogFileSize(64 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &Storage{db: db, logger: logging.With("component", "badger")}, nil
}

func classByte(class reading.DataClass) (byte, error) {
	switch class {
	case reading.ClassSensor:
		return 0, nil
	case reading.ClassDiagnostic:
		return 1, nil
	}
	_, err := reading.ParseDataClass(string(class))
	return 0, err
}

func classFromByte(b byte) reading.DataClass {
	if b == 1 {
		return reading.ClassDiagnostic
	}
	return reading.ClassSensor
}

// classPrefix is the key prefix for every reading of a class
func classPrefix(cb byte) []byte {
	return []byte{prefixReading, cb}
}

// sensorPrefix narrows classPrefix to one sensor
func sensorPrefix(cb byte, sensorID string) []byte {
	p := make([]byte, 10)
	p[0] = prefixReading
	p[1] = cb
	binary.BigEndian.PutUint64(p[2:10], xxhash.Sum64String(sensorID))
	return p
}

// makeKey creates a sortable key for one reading
func makeKey(cb byte, sensorID string, ts time.Time) []byte {
	key := make([]byte, readingKeyLen)
	copy(key, sensorPrefix(cb, sensorID))
	binary.BigEndian.PutUint64(key[10:18], uint64(ts.UnixNano()))
	return key
}

// parseKey extracts class, sensor hash and timestamp from a reading key
func parseKey(key []byte) (reading.DataClass, uint64, time.Time, bool) {
	if len(key) != readingKeyLen || key[0] != prefixReading {
		return "", 0, time.Time{}, false
	}
	hash := binary.BigEndian.Uint64(key[2:10])
	ts := time.Unix(0, int64(binary.BigEndian.Uint64(key[10:18])))
	return classFromByte(key[1]), hash, ts, true
}

func settingKey(name string) []byte {
	return append([]byte{prefixSetting, ':'}, name...)
}

// storedReading is the value layout; the timestamp lives in the key
type storedReading struct {
	SensorID string  `json:"s"`
	Value    float64 `json:"v"`
}

// run executes fn in a goroutine and returns early if ctx is cancelled
func run(ctx context.Context, op string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%s operation cancelled: %w", op, ctx.Err())
	}
}

// WriteReadings stores readings in BadgerDB
func (s *Storage) WriteReadings(ctx context.Context, class reading.DataClass, readings []reading.Reading) error {
	cb, err := classByte(class)
	if err != nil {
		return err
	}

	return run(ctx, "write", func() error {
		wb := s.db.NewWriteBatch()
		defer wb.Cancel()

		for i, r := range readings {
			if i%100 == 0 && ctx.Err() != nil {
				return ctx.Err()
			}
			value, err := json.Marshal(storedReading{SensorID: r.SensorID, Value: r.Value})
			if err != nil {
				return fmt.Errorf("failed to encode reading: %w", err)
			}
			if err := wb.Set(makeKey(cb, r.SensorID, r.Timestamp), value); err != nil {
				return fmt.Errorf("failed to write reading: %w", err)
			}
		}
		return wb.Flush()
	})
}

// FetchReadings returns readings inside window ordered by time.
// A specific sensor seeks straight to the window start; all sensors scan
// the class prefix.
func (s *Storage) FetchReadings(ctx context.Context, class reading.DataClass, sensorID string, window timerange.TimeWindow) ([]reading.Reading, error) {
	cb, err := classByte(class)
	if err != nil {
		return nil, err
	}

	var results []reading.Reading
	startTime := time.Now()

	err = run(ctx, "query", func() error {
		return s.db.View(func(txn *badger.Txn) error {
			prefix := classPrefix(cb)
			seek := prefix
			if sensorID != "" {
				prefix = sensorPrefix(cb, sensorID)
				seek = makeKey(cb, sensorID, window.Start)
			}

			opts := badger.DefaultIteratorOptions
			opts.PrefetchSize = 100
			opts.Prefix = prefix

			it := txn.NewIterator(opts)
			defer it.Close()

			var iterCount int
			for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
				iterCount++
				if iterCount%1000 == 0 && ctx.Err() != nil {
					return ctx.Err()
				}

				item := it.Item()
				_, _, ts, ok := parseKey(item.Key())
				if !ok {
					continue
				}
				if ts.After(window.End) {
					if sensorID != "" {
						break
					}
					continue
				}
				if ts.Before(window.Start) {
					continue
				}

				var sr storedReading
				if err := item.Value(func(val []byte) error {
					return json.Unmarshal(val, &sr)
				}); err != nil {
					return fmt.Errorf("failed to decode reading: %w", err)
				}
				// Hash collisions are filtered on the stored id
				if sensorID != "" && sr.SensorID != sensorID {
					continue
				}
				results = append(results, reading.Reading{SensorID: sr.SensorID, Value: sr.Value, Timestamp: ts})
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if sensorID == "" {
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Timestamp.Before(results[j].Timestamp)
		})
	}

	if elapsed := time.Since(startTime); elapsed > 5*time.Second {
		s.logger.Warn("Slow reading query", "data_class", class, "sensor_id", sensorID,
			"took", elapsed, "results", len(results))
	}
	if results == nil {
		results = []reading.Reading{}
	}
	return results, nil
}

// DeleteReadings removes readings of class older than before.
// Keys are collected in a read-only pass and removed with a write batch, so
// large purges do not hit the transaction size limit.
func (s *Storage) DeleteReadings(ctx context.Context, class reading.DataClass, before time.Time) (int, error) {
	cb, err := classByte(class)
	if err != nil {
		return 0, err
	}

	var deleted int
	err = run(ctx, "delete", func() error {
		var keysToDelete [][]byte
		err := s.db.View(func(txn *badger.Txn) error {
			prefix := classPrefix(cb)
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = prefix

			it := txn.NewIterator(opts)
			defer it.Close()

			var iterCount int
			for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
				iterCount++
				if iterCount%1000 == 0 && ctx.Err() != nil {
					return ctx.Err()
				}
				_, _, ts, ok := parseKey(it.Item().Key())
				if !ok || !ts.Before(before) {
					continue
				}
				keysToDelete = append(keysToDelete, it.Item().KeyCopy(nil))
			}
			return nil
		})
		if err != nil {
			return err
		}
		if len(keysToDelete) == 0 {
			return nil
		}

		wb := s.db.NewWriteBatch()
		defer wb.Cancel()
		for _, key := range keysToDelete {
			if err := wb.Delete(key); err != nil {
				return err
			}
		}
		if err := wb.Flush(); err != nil {
			return err
		}
		deleted = len(keysToDelete)
		return nil
	})
	return deleted, err
}

// FetchRetentionPolicy reads the class hours, storing the default on first access
func (s *Storage) FetchRetentionPolicy(ctx context.Context, class reading.DataClass) (reading.RetentionPolicy, error) {
	if _, err := classByte(class); err != nil {
		return reading.RetentionPolicy{}, err
	}

	policy := reading.RetentionPolicy{DataClass: class}
	err := run(ctx, "fetch_policy", func() error {
		return s.db.Update(func(txn *badger.Txn) error {
			key := settingKey(class.RetentionKey())
			item, err := txn.Get(key)
			if errors.Is(err, badger.ErrKeyNotFound) {
				policy.Hours = class.DefaultRetentionHours()
				return txn.Set(key, []byte(strconv.Itoa(policy.Hours)))
			}
			if err != nil {
				return err
			}
			return item.Value(func(val []byte) error {
				hours, err := strconv.Atoi(string(val))
				if err != nil {
					return fmt.Errorf("corrupt setting %s: %w", class.RetentionKey(), err)
				}
				policy.Hours = hours
				return nil
			})
		})
	})
	return policy, err
}

// UpdateRetentionPolicy overwrites the class hours
func (s *Storage) UpdateRetentionPolicy(ctx context.Context, class reading.DataClass, hours int) error {
	if _, err := classByte(class); err != nil {
		return err
	}
	return run(ctx, "update_policy", func() error {
		return s.db.Update(func(txn *badger.Txn) error {
			return txn.Set(settingKey(class.RetentionKey()), []byte(strconv.Itoa(hours)))
		})
	})
}

// EnsureRetentionPolicy stores hours if class has no policy yet
func (s *Storage) EnsureRetentionPolicy(ctx context.Context, class reading.DataClass, hours int) error {
	if _, err := classByte(class); err != nil {
		return err
	}
	return run(ctx, "ensure_policy", func() error {
		return s.db.Update(func(txn *badger.Txn) error {
			key := settingKey(class.RetentionKey())
			_, err := txn.Get(key)
			if errors.Is(err, badger.ErrKeyNotFound) {
				return txn.Set(key, []byte(strconv.Itoa(hours)))
			}
			return err
		})
	})
}

// Close shuts down BadgerDB cleanly
func (s *Storage) Close() error {
	return s.db.Close()
}

// RunGC runs BadgerDB's value log garbage collection.
// discardRatio: run GC if this fraction of file can be discarded (0.5 = 50%)
// Returns badger.ErrNoRewrite when nothing needed collecting.
func (s *Storage) RunGC(discardRatio float64) error {
	return s.db.RunValueLogGC(discardRatio)
}

// Stats returns row counts and time bounds per class
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	stats := storage.NewStats("badger")

	err := run(ctx, "stats", func() error {
		return s.db.View(func(txn *badger.Txn) error {
			prefix := []byte{prefixReading}
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = prefix

			it := txn.NewIterator(opts)
			defer it.Close()

			sensors := make(map[reading.DataClass]map[uint64]bool)
			var iterCount int
			for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
				iterCount++
				if iterCount%1000 == 0 && ctx.Err() != nil {
					return ctx.Err()
				}

				class, hash, ts, ok := parseKey(it.Item().Key())
				if !ok {
					continue
				}
				cs := stats.Classes[class]
				if cs.Rows == 0 || ts.Before(cs.Oldest) {
					cs.Oldest = ts
				}
				if cs.Rows == 0 || ts.After(cs.Newest) {
					cs.Newest = ts
				}
				cs.Rows++
				if sensors[class] == nil {
					sensors[class] = make(map[uint64]bool)
				}
				sensors[class][hash] = true
				stats.Classes[class] = cs
			}
			for class, set := range sensors {
				cs := stats.Classes[class]
				cs.Sensors = uint64(len(set))
				stats.Classes[class] = cs
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	lsmSize, vlogSize := s.db.Size()
	stats.SizeBytes = uint64(lsmSize + vlogSize)
	return stats, nil
}
