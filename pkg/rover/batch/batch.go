package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/reading"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/rover/transport"
)

// Config holds configuration for the batcher
type Config struct {
	MaxBatchSize int
	FlushEvery   time.Duration

	// OnError is called with every batch that failed to send
	OnError func(err error, readings []reading.Reading)
}

// Stats counts delivered and failed readings
type Stats struct {
	Sent    int64
	Failed  int64
	Batches int64
}

// Batcher batches readings and sends them periodically
type Batcher struct {
	config    Config
	transport transport.Transport

	readings []reading.Reading
	mu       sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup

	flushing atomic.Bool // at most one size-triggered flush in flight

	sent    atomic.Int64
	failed  atomic.Int64
	batches atomic.Int64
}

// New creates a new batcher
func New(t transport.Transport, config Config) *Batcher {
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = 500
	}
	if config.FlushEvery <= 0 {
		config.FlushEvery = 5 * time.Second
	}
	return &Batcher{
		config:    config,
		transport: t,
		readings:  make([]reading.Reading, 0, config.MaxBatchSize),
		done:      make(chan struct{}),
	}
}

// Start starts the periodic flush loop
func (b *Batcher) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)

	go b.flushLoop()
	return nil
}

// Add queues a reading and triggers a background flush once the batch is full
func (b *Batcher) Add(r reading.Reading) {
	b.mu.Lock()
	b.readings = append(b.readings, r)
	shouldFlush := len(b.readings) >= b.config.MaxBatchSize
	b.mu.Unlock()

	if shouldFlush && b.flushing.CompareAndSwap(false, true) {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			defer b.flushing.Store(false)
			b.flushPending()
		}()
	}
}

// Pending returns the number of queued readings
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.readings)
}

// Flush sends every pending reading and returns the first send error
func (b *Batcher) Flush() error {
	return b.flushPending()
}

// Stop stops the flush loop, waits for in-flight sends and flushes the rest
func (b *Batcher) Stop() error {
	if b.cancel != nil {
		b.cancel()
		<-b.done
	}
	b.wg.Wait()
	return b.flushPending()
}

// Stats returns delivery counters
func (b *Batcher) Stats() Stats {
	return Stats{
		Sent:    b.sent.Load(),
		Failed:  b.failed.Load(),
		Batches: b.batches.Load(),
	}
}

func (b *Batcher) flushLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.config.FlushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			if b.flushing.CompareAndSwap(false, true) {
				b.flushPending()
				b.flushing.Store(false)
			}
		}
	}
}

// take drains up to MaxBatchSize readings
func (b *Batcher) take() []reading.Reading {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.readings)
	if n == 0 {
		return nil
	}
	if n > b.config.MaxBatchSize {
		n = b.config.MaxBatchSize
	}
	out := make([]reading.Reading, n)
	copy(out, b.readings[:n])
	b.readings = append(b.readings[:0], b.readings[n:]...)
	return out
}

func (b *Batcher) flushPending() error {
	var first error
	for {
		batch := b.take()
		if batch == nil {
			return first
		}
		if err := b.send(batch); err != nil && first == nil {
			first = err
		}
	}
}

func (b *Batcher) send(batch []reading.Reading) error {
	parent := b.ctx
	if parent == nil || parent.Err() != nil {
		// final flush after Stop
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, 10*time.Second)
	defer cancel()

	b.batches.Add(1)
	if err := b.transport.SendReadings(ctx, batch); err != nil {
		b.failed.Add(int64(len(batch)))
		if b.config.OnError != nil {
			b.config.OnError(err, batch)
		}
		return err
	}
	b.sent.Add(int64(len(batch)))
	return nil
}
