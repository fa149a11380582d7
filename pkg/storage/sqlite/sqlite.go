// Package sqlite implements the reading store gateway on a single SQLite
// file. Each data class has its own table keyed by (sensor_id, timestamp)
// with a secondary index on timestamp for retention deletes. Retention
// hours live in a settings key/value table.
package sqlite

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/logging"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/reading"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/storage"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/timerange"
)

// Config holds SQLite gateway configuration
type Config struct {
	// Path to the database file. The parent directory must exist.
	Path string

	// PoolSize is the number of pooled connections (default 4)
	PoolSize int
}

// Storage implements storage.Gateway on SQLite
type Storage struct {
	pool   *pool
	logger *logging.Logger
}

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS %[1]s (
	sensor_id TEXT NOT NULL,
	value     REAL NOT NULL,
	timestamp INTEGER NOT NULL,
	PRIMARY KEY (sensor_id, timestamp)
) WITHOUT ROWID;
CREATE INDEX IF NOT EXISTS %[1]s_timestamp ON %[1]s (timestamp);
`

const settingsSchema = `
CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// New opens (or creates) the database and ensures the schema exists
func New(cfg Config) (*Storage, error) {
	logger := logging.With("component", "sqlite")

	p, err := openPool(cfg.Path, cfg.PoolSize, logger)
	if err != nil {
		return nil, err
	}

	s := &Storage{pool: p, logger: logger}
	if err := s.migrate(); err != nil {
		p.close()
		return nil, err
	}
	return s, nil
}

func (s *Storage) migrate() error {
	conn, err := s.pool.take(context.Background())
	if err != nil {
		return err
	}
	defer s.pool.put(conn)

	script := settingsSchema
	for _, class := range reading.Classes() {
		script += fmt.Sprintf(schemaTemplate, class.Table())
	}
	if err := sqlitex.ExecuteScript(conn, script, nil); err != nil {
		return fmt.Errorf("sqlite: creating schema: %w", err)
	}
	return nil
}

func tableFor(class reading.DataClass) (string, error) {
	if _, err := reading.ParseDataClass(string(class)); err != nil {
		return "", err
	}
	return class.Table(), nil
}

// WriteReadings inserts readings in one IMMEDIATE transaction. A second
// write for the same sensor and timestamp replaces the value.
func (s *Storage) WriteReadings(ctx context.Context, class reading.DataClass, readings []reading.Reading) (err error) {
	table, err := tableFor(class)
	if err != nil {
		return err
	}
	if len(readings) == 0 {
		return nil
	}

	conn, err := s.pool.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("sqlite: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	query := `INSERT INTO ` + table + ` (sensor_id, value, timestamp) VALUES (?, ?, ?)
		ON CONFLICT (sensor_id, timestamp) DO UPDATE SET value = excluded.value`
	for _, r := range readings {
		if err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: []any{r.SensorID, r.Value, r.Timestamp.UnixNano()},
		}); err != nil {
			return fmt.Errorf("sqlite: insert reading: %w", err)
		}
	}
	return nil
}

// FetchReadings returns readings in window ordered by timestamp
func (s *Storage) FetchReadings(ctx context.Context, class reading.DataClass, sensorID string, window timerange.TimeWindow) ([]reading.Reading, error) {
	table, err := tableFor(class)
	if err != nil {
		return nil, err
	}

	conn, err := s.pool.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.put(conn)

	query := `SELECT sensor_id, value, timestamp FROM ` + table + ` WHERE timestamp >= ? AND timestamp <= ?`
	args := []any{window.Start.UnixNano(), window.End.UnixNano()}
	if sensorID != "" {
		query += ` AND sensor_id = ?`
		args = append(args, sensorID)
	}
	query += ` ORDER BY timestamp ASC, sensor_id ASC`

	results := make([]reading.Reading, 0)
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			results = append(results, reading.Reading{
				SensorID:  stmt.ColumnText(0),
				Value:     stmt.ColumnFloat(1),
				Timestamp: time.Unix(0, stmt.ColumnInt64(2)),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: query readings: %w", err)
	}
	return results, nil
}

// DeleteReadings removes every row of class with timestamp < before
func (s *Storage) DeleteReadings(ctx context.Context, class reading.DataClass, before time.Time) (int, error) {
	table, err := tableFor(class)
	if err != nil {
		return 0, err
	}

	conn, err := s.pool.take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.put(conn)

	if err := sqlitex.Execute(conn, `DELETE FROM `+table+` WHERE timestamp < ?`, &sqlitex.ExecOptions{
		Args: []any{before.UnixNano()},
	}); err != nil {
		return 0, fmt.Errorf("sqlite: delete readings: %w", err)
	}
	return conn.Changes(), nil
}

// FetchRetentionPolicy reads the class hours, inserting the default first
func (s *Storage) FetchRetentionPolicy(ctx context.Context, class reading.DataClass) (policy reading.RetentionPolicy, err error) {
	if _, err = tableFor(class); err != nil {
		return policy, err
	}

	conn, err := s.pool.take(ctx)
	if err != nil {
		return policy, err
	}
	defer s.pool.put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return policy, fmt.Errorf("sqlite: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	key := class.RetentionKey()
	if err = sqlitex.Execute(conn,
		`INSERT OR IGNORE INTO settings (key, value, updated_at) VALUES (?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{key, strconv.Itoa(class.DefaultRetentionHours()), time.Now().Unix()}},
	); err != nil {
		return policy, fmt.Errorf("sqlite: seed %s: %w", key, err)
	}

	var raw string
	if err = sqlitex.Execute(conn, `SELECT value FROM settings WHERE key = ?`, &sqlitex.ExecOptions{
		Args: []any{key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			raw = stmt.ColumnText(0)
			return nil
		},
	}); err != nil {
		return policy, fmt.Errorf("sqlite: read %s: %w", key, err)
	}

	hours, convErr := strconv.Atoi(raw)
	if convErr != nil {
		err = fmt.Errorf("sqlite: corrupt setting %s=%q: %w", key, raw, convErr)
		return policy, err
	}
	return reading.RetentionPolicy{DataClass: class, Hours: hours}, nil
}

// UpdateRetentionPolicy upserts the class hours
func (s *Storage) UpdateRetentionPolicy(ctx context.Context, class reading.DataClass, hours int) error {
	if _, err := tableFor(class); err != nil {
		return err
	}

	conn, err := s.pool.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.put(conn)

	if err := sqlitex.Execute(conn,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		&sqlitex.ExecOptions{Args: []any{class.RetentionKey(), strconv.Itoa(hours), time.Now().Unix()}},
	); err != nil {
		return fmt.Errorf("sqlite: update %s: %w", class.RetentionKey(), err)
	}
	return nil
}

// EnsureRetentionPolicy inserts hours if class has no policy yet
func (s *Storage) EnsureRetentionPolicy(ctx context.Context, class reading.DataClass, hours int) error {
	if _, err := tableFor(class); err != nil {
		return err
	}

	conn, err := s.pool.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.put(conn)

	if err := sqlitex.Execute(conn,
		`INSERT OR IGNORE INTO settings (key, value, updated_at) VALUES (?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{class.RetentionKey(), strconv.Itoa(hours), time.Now().Unix()}},
	); err != nil {
		return fmt.Errorf("sqlite: seed %s: %w", class.RetentionKey(), err)
	}
	return nil
}

// Stats returns per-class counts and the database size
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.put(conn)

	stats := storage.NewStats("sqlite")
	for _, class := range reading.Classes() {
		var cs storage.ClassStats
		err := sqlitex.Execute(conn,
			`SELECT COUNT(*), COUNT(DISTINCT sensor_id), MIN(timestamp), MAX(timestamp) FROM `+class.Table(),
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					cs.Rows = uint64(stmt.ColumnInt64(0))
					cs.Sensors = uint64(stmt.ColumnInt64(1))
					if !stmt.ColumnIsNull(2) {
						cs.Oldest = time.Unix(0, stmt.ColumnInt64(2))
						cs.Newest = time.Unix(0, stmt.ColumnInt64(3))
					}
					return nil
				},
			})
		if err != nil {
			return nil, fmt.Errorf("sqlite: stats %s: %w", class.Table(), err)
		}
		stats.Classes[class] = cs
	}

	var pageCount, pageSize int64
	_ = sqlitex.ExecuteTransient(conn, `PRAGMA page_count`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error { pageCount = stmt.ColumnInt64(0); return nil },
	})
	_ = sqlitex.ExecuteTransient(conn, `PRAGMA page_size`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error { pageSize = stmt.ColumnInt64(0); return nil },
	})
	stats.SizeBytes = uint64(pageCount * pageSize)
	return stats, nil
}

// Close closes the connection pool
func (s *Storage) Close() error {
	return s.pool.close()
}
