package rover

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/ingest"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/logging"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/reading"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/rover/batch"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/rover/transport"
)

// Collector produces diagnostic reports for the rover itself
type Collector interface {
	Collect(ctx context.Context) (reading.Diagnostic, error)
}

// ClientConfig holds configuration for the rover client
type ClientConfig struct {
	// URL of the dashboard, e.g. http://localhost:8080
	URL    string `json:"url"`
	APIKey string `json:"api_key"`

	FlushEvery   time.Duration `json:"flush_every"`
	MaxBatchSize int           `json:"max_batch_size"`

	// DiagnosticsEvery is how often Collector is polled (default 30s).
	// A nil Collector disables diagnostics.
	DiagnosticsEvery time.Duration `json:"diagnostics_every"`
	Collector        Collector     `json:"-"`
}

// Stats summarises what the client delivered
type Stats struct {
	ReadingsSent      int64 `json:"readings_sent"`
	ReadingsFailed    int64 `json:"readings_failed"`
	ReadingsRejected  int64 `json:"readings_rejected"`
	DiagnosticsSent   int64 `json:"diagnostics_sent"`
	DiagnosticsFailed int64 `json:"diagnostics_failed"`
	Batches           int64 `json:"batches"`
}

// SuccessRate is the percentage of attempted readings the dashboard accepted.
func (s Stats) SuccessRate() float64 {
	attempted := s.ReadingsSent + s.ReadingsFailed + s.ReadingsRejected
	if attempted == 0 {
		return 0
	}
	return float64(s.ReadingsSent) / float64(attempted) * 100
}

// Client uploads rover readings to the dashboard in batches
type Client struct {
	config    ClientConfig
	transport transport.Transport
	batcher   *batch.Batcher
	logger    *logging.Logger
	now       func() time.Time

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	rejected int64
	diagSent int64
	diagFail int64
}

// New creates a client over an HTTP transport
func New(cfg ClientConfig) (*Client, error) {
	trans, err := transport.NewHTTP(cfg.URL, cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	return NewWithTransport(cfg, trans), nil
}

// NewWithTransport creates a client over any Transport
func NewWithTransport(cfg ClientConfig, t transport.Transport) *Client {
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = 5 * time.Second
	}
	if cfg.MaxBatchSize <= 0 || cfg.MaxBatchSize > ingest.MaxReadingsPerRequest {
		cfg.MaxBatchSize = ingest.MaxReadingsPerRequest
	}
	if cfg.DiagnosticsEvery <= 0 {
		cfg.DiagnosticsEvery = 30 * time.Second
	}

	c := &Client{
		config:    cfg,
		transport: t,
		logger:    logging.With("component", "rover"),
		now:       time.Now,
	}
	c.batcher = batch.New(t, batch.Config{
		MaxBatchSize: cfg.MaxBatchSize,
		FlushEvery:   cfg.FlushEvery,
		OnError: func(err error, readings []reading.Reading) {
			c.logger.Warn("Failed to deliver readings", "count", len(readings), "error", err)
		},
	})
	return c
}

// Start begins background flushing and diagnostics collection
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return fmt.Errorf("client already started")
	}
	if c.cancel != nil {
		return fmt.Errorf("client cannot be restarted after Stop")
	}

	ctx, c.cancel = context.WithCancel(ctx)
	if err := c.batcher.Start(ctx); err != nil {
		c.cancel()
		return fmt.Errorf("failed to start batcher: %w", err)
	}

	if c.config.Collector != nil {
		c.wg.Add(1)
		go c.collectDiagnostics(ctx)
	}

	c.started = true
	return nil
}

// Stop stops background work and flushes remaining readings
func (c *Client) Stop() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	c.cancel()
	c.mu.Unlock()

	c.wg.Wait()
	if err := c.batcher.Stop(); err != nil {
		return fmt.Errorf("failed to flush readings: %w", err)
	}
	return nil
}

// Record queues a reading stamped with the current time
func (c *Client) Record(sensorID string, value float64) error {
	return c.RecordAt(sensorID, value, c.now())
}

// RecordAt queues a reading. Readings the dashboard would reject are
// refused here and never sent.
func (c *Client) RecordAt(sensorID string, value float64, at time.Time) error {
	r := reading.Reading{SensorID: sensorID, Value: value, Timestamp: at}
	if err := ingest.ValidateReading(r, c.now()); err != nil {
		c.mu.Lock()
		c.rejected++
		c.mu.Unlock()
		return err
	}
	c.batcher.Add(r)
	return nil
}

// Flush sends every queued reading now
func (c *Client) Flush() error {
	return c.batcher.Flush()
}

// SendDiagnostic delivers one report immediately
func (c *Client) SendDiagnostic(ctx context.Context, diag reading.Diagnostic) error {
	err := c.transport.SendDiagnostic(ctx, diag)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.diagFail++
		return err
	}
	c.diagSent++
	return nil
}

// Stats returns delivery counters
func (c *Client) Stats() Stats {
	bs := c.batcher.Stats()

	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		ReadingsSent:      bs.Sent,
		ReadingsFailed:    bs.Failed,
		ReadingsRejected:  c.rejected,
		DiagnosticsSent:   c.diagSent,
		DiagnosticsFailed: c.diagFail,
		Batches:           bs.Batches,
	}
}

func (c *Client) collectDiagnostics(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.DiagnosticsEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			diag, err := c.config.Collector.Collect(ctx)
			if err != nil {
				c.logger.Warn("Diagnostics collection failed", "error", err)
				continue
			}
			if err := c.SendDiagnostic(ctx, diag); err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Warn("Failed to deliver diagnostics", "error", err)
			}
		}
	}
}
