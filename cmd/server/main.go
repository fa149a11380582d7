package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/pflag"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/config"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/logging"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/server"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to config file (YAML)")
	logLevel := pflag.String("log-level", "", "override logging.level (debug, info, warn, error)")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	logging.SetGlobal(logger)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server exited with error", "error", err)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	logger.Info("Starting Trequer dashboard server",
		"backend", cfg.Storage.Backend,
		"sensors", len(cfg.Sensors),
		"retention_lock", cfg.Retention.Lock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := server.Build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer components.Close()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		components.Hub.Run(ctx)
	}()

	if cfg.Retention.ScheduleEnabled {
		wg.Add(1)
		go server.RunRetention(ctx, components.Purger, cfg.Retention.Interval, &wg)
	} else {
		logger.Info("In-process retention schedule disabled, purges run via /v1/tasks/purge")
	}

	wg.Add(1)
	go server.RunBadgerGC(ctx, components.Gateway, &wg)

	router := mux.NewRouter()
	server.SetupRoutes(router, components)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		cancel()
		wg.Wait()
		return fmt.Errorf("server failed: %w", err)
	}

	// Cancel before wg.Wait or the background loops never return
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server shutdown warning", "error", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("All background tasks stopped cleanly")
	case <-time.After(5 * time.Second):
		logger.Warn("Some background tasks did not stop in time")
	}

	logger.Info("Trequer dashboard server exited cleanly")
	return nil
}
