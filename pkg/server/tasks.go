package server

import (
	"context"
	"errors"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/config"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/logging"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/retention"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/storage"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/storage/badger"
)

// RunRetention purges every data class once on startup and then on each
// interval tick until ctx is cancelled. Failed purges are not retried
// here; the next tick is the retry.
func RunRetention(ctx context.Context, purger *retention.Purger, interval time.Duration, wg *sync.WaitGroup) {
	defer wg.Done()
	logger := logging.With("component", "retention-scheduler")

	run := func(reason string) {
		purgeCtx, cancel := context.WithTimeout(ctx, config.PurgeTimeout)
		defer cancel()

		start := time.Now()
		summary := purger.PurgeAll(purgeCtx)

		deleted := 0
		for _, res := range summary.Results {
			deleted += res.Deleted
			if res.Err() != nil {
				logger.Warn("Purge failed", "trigger", reason, "class", res.DataClass, "error", res.Err())
			}
		}
		logger.Info("Purge finished",
			"trigger", reason,
			"success", summary.Success,
			"deleted", deleted,
			"took", time.Since(start).Round(time.Millisecond).String())
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("Retention scheduler started", "interval", interval.String())
	run("startup")

	for {
		select {
		case <-ticker.C:
			run("schedule")
		case <-ctx.Done():
			logger.Info("Stopping retention scheduler")
			return
		}
	}
}

// unwrapGateway strips wrappers such as the retrying gateway.
func unwrapGateway(gw storage.Gateway) storage.Gateway {
	for {
		u, ok := gw.(interface{ Unwrap() storage.Gateway })
		if !ok {
			return gw
		}
		gw = u.Unwrap()
	}
}

// RunBadgerGC runs BadgerDB value log garbage collection periodically to
// reclaim the disk space freed by purges. Other backends return at once.
func RunBadgerGC(ctx context.Context, gw storage.Gateway, wg *sync.WaitGroup) {
	defer wg.Done()
	logger := logging.With("component", "badger-gc")

	store, ok := unwrapGateway(gw).(*badger.Storage)
	if !ok {
		logger.Debug("Storage is not BadgerDB, skipping GC")
		return
	}

	ticker := time.NewTicker(config.BadgerGCInterval)
	defer ticker.Stop()

	logger.Info("BadgerDB GC scheduler started", "interval", config.BadgerGCInterval.String())

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			// Reclaim a value log file when half of it is garbage
			err := store.RunGC(0.5)
			switch {
			case err == nil:
				logger.Info("GC completed, disk space reclaimed", "took", time.Since(start).Round(time.Millisecond).String())
			case errors.Is(err, badgerdb.ErrNoRewrite):
				logger.Debug("GC completed, no rewrite needed")
			default:
				logger.Warn("GC failed", "error", err)
			}
		case <-ctx.Done():
			logger.Info("Stopping BadgerDB GC scheduler")
			return
		}
	}
}
