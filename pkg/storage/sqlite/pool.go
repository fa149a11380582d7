package sqlite

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/logging"
)

// pool is a fixed-size pool of SQLite connections with WAL pragmas
// applied to every connection. Individual connections are not safe for
// concurrent use: each goroutine takes its own and puts it back.
type pool struct {
	inner  *sqlitex.Pool
	logger *logging.Logger
	path   string
}

func openPool(path string, size int, logger *logging.Logger) (*pool, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}
	if size <= 0 {
		size = 4
	}

	inner, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    size,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening %s: %w", path, err)
	}

	logger.Info("SQLite pool opened", "path", path, "pool_size", size)
	return &pool{inner: inner, logger: logger, path: path}, nil
}

// take borrows a connection. The connection is interrupted when ctx is done.
func (p *pool) take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite: take: %w", err)
	}
	return conn, nil
}

func (p *pool) put(conn *sqlite.Conn) {
	p.inner.Put(conn)
}

func (p *pool) close() error {
	if err := p.inner.Close(); err != nil {
		p.logger.Error("SQLite pool close error", "path", p.path, "error", err)
		return fmt.Errorf("sqlite: closing %s: %w", p.path, err)
	}
	p.logger.Info("SQLite pool closed", "path", p.path)
	return nil
}

// prepareConnection runs once per connection on first use
func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-8192",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	return nil
}
