package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/config"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/export"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/ingest"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/logging"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/query"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/retention"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/server/monitor"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/storage"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/storage/badger"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/storage/memory"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/storage/sqlite"
)

// Components holds everything the HTTP server and background tasks share.
type Components struct {
	Config  *config.Config
	Gateway storage.Gateway

	Purger           *retention.Purger
	RetentionMonitor *monitor.RetentionMonitor
	StorageMonitor   *monitor.StorageMonitor
	Hub              *ingest.ReadingsHub

	Ingest    *ingest.Handler
	Query     *query.Handler
	Export    *export.Handler
	Retention *retention.Handler

	closers []func() error
}

// InitializeStorage opens the configured gateway backend and wraps its read
// paths with retries. The returned path is what the storage monitor
// measures; it is empty for the memory backend.
func InitializeStorage(cfg *config.Config) (storage.Gateway, string, error) {
	logger := logging.With("component", "setup")
	sc := cfg.Storage

	var (
		gw   storage.Gateway
		path string
	)

	switch sc.Backend {
	case "memory":
		gw = memory.New()
	case "badger":
		if err := os.MkdirAll(sc.DataDir, 0755); err != nil {
			return nil, "", fmt.Errorf("failed to create data directory: %w", err)
		}
		store, err := badger.New(badger.Config{
			Path:        sc.DataDir,
			MaxMemoryMB: sc.MaxMemoryMB,
		})
		if err != nil {
			return nil, "", err
		}
		gw, path = store, sc.DataDir
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(sc.SQLitePath), 0755); err != nil {
			return nil, "", fmt.Errorf("failed to create data directory: %w", err)
		}
		store, err := sqlite.New(sqlite.Config{
			Path:     sc.SQLitePath,
			PoolSize: sc.PoolSize,
		})
		if err != nil {
			return nil, "", err
		}
		gw, path = store, sc.SQLitePath
	default:
		return nil, "", fmt.Errorf("unknown storage backend %q", sc.Backend)
	}

	logger.Info("Storage gateway initialized", "backend", sc.Backend, "path", path)
	return storage.NewRetrying(gw, cfg.Gateway.RetryAttempts, cfg.Gateway.RetryBaseDelay), path, nil
}

// initializeLocker returns the purge lock. The redis lock is taken after
// the in-process one.
func initializeLocker(ctx context.Context, rc config.RetentionConfig) (retention.Locker, func() error, error) {
	local := retention.NewLocalLocker()
	if rc.Lock != "redis" {
		return local, nil, nil
	}

	rl, err := retention.NewRedisLocker(ctx, rc.RedisURL, rc.LockTTL)
	if err != nil {
		return nil, nil, err
	}
	return retention.Chain(local, rl), rl.Close, nil
}

// Build constructs the gateway, purger, monitors and handlers. Configured
// retention defaults are stored for classes that have no policy yet.
func Build(ctx context.Context, cfg *config.Config) (*Components, error) {
	gw, path, err := InitializeStorage(cfg)
	if err != nil {
		return nil, err
	}

	c := &Components{Config: cfg, Gateway: gw}
	c.closers = append(c.closers, gw.Close)

	var staleAfter time.Duration
	if cfg.Retention.ScheduleEnabled {
		staleAfter = 2 * cfg.Retention.Interval
	}
	c.RetentionMonitor = monitor.NewRetentionMonitor(staleAfter)

	locker, closeLocker, err := initializeLocker(ctx, cfg.Retention)
	if err != nil {
		c.Close()
		return nil, err
	}
	if closeLocker != nil {
		c.closers = append(c.closers, closeLocker)
	}

	c.Purger = retention.New(gw,
		retention.WithLocker(locker),
		retention.WithRecorder(c.RetentionMonitor),
	)
	if err := c.Purger.SeedDefaults(ctx, cfg.RetentionDefaults()); err != nil {
		c.Close()
		return nil, err
	}

	c.StorageMonitor = monitor.NewStorageMonitor(path, cfg.Storage.MaxStorageGB*1024*1024*1024)
	c.Hub = ingest.NewReadingsHub()

	c.Ingest = ingest.NewHandler(gw, c.Hub)
	c.Query = query.NewHandler(gw, cfg.Sensors)
	c.Export = export.NewHandler(gw, cfg.Sensors, cfg.Export)
	c.Retention = retention.NewHandler(c.Purger)

	return c, nil
}

// Close releases the gateway and lock connections in reverse order.
func (c *Components) Close() error {
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	c.closers = nil
	return first
}
