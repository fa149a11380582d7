package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/reading"
)

// mockTransport records every batch it is handed
type mockTransport struct {
	mu      sync.Mutex
	batches [][]reading.Reading
	sendErr error
}

func (m *mockTransport) SendReadings(ctx context.Context, batch []reading.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	batchCopy := make([]reading.Reading, len(batch))
	copy(batchCopy, batch)
	m.batches = append(m.batches, batchCopy)
	return m.sendErr
}

func (m *mockTransport) SendDiagnostic(ctx context.Context, diag reading.Diagnostic) error {
	return nil
}

func (m *mockTransport) getBatches() [][]reading.Reading {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([][]reading.Reading, len(m.batches))
	copy(result, m.batches)
	return result
}

func (m *mockTransport) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func sample(i int) reading.Reading {
	return reading.Reading{
		SensorID:  fmt.Sprintf("sensor_%d", i%3),
		Value:     float64(i),
		Timestamp: time.Date(2024, 1, 10, 12, 0, i, 0, time.UTC),
	}
}

func TestNew_Defaults(t *testing.T) {
	b := New(&mockTransport{}, Config{})
	assert.Equal(t, 500, b.config.MaxBatchSize)
	assert.Equal(t, 5*time.Second, b.config.FlushEvery)
}

func TestFlush_SplitsIntoBatches(t *testing.T) {
	tr := &mockTransport{}
	b := New(tr, Config{MaxBatchSize: 1000, FlushEvery: time.Hour})

	// Fill without reaching the size trigger, then shrink the batch size
	for i := 0; i < 25; i++ {
		b.Add(sample(i))
	}
	b.config.MaxBatchSize = 10

	require.NoError(t, b.Flush())

	batches := tr.getBatches()
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 10)
	assert.Len(t, batches[1], 10)
	assert.Len(t, batches[2], 5)
	assert.Equal(t, 0, b.Pending())

	// Order is preserved across batches
	assert.Equal(t, 0.0, batches[0][0].Value)
	assert.Equal(t, 24.0, batches[2][4].Value)
}

func TestFlush_Empty(t *testing.T) {
	tr := &mockTransport{}
	b := New(tr, Config{})
	require.NoError(t, b.Flush())
	assert.Empty(t, tr.getBatches())
}

func TestAdd_SizeTriggeredFlush(t *testing.T) {
	tr := &mockTransport{}
	b := New(tr, Config{MaxBatchSize: 5, FlushEvery: time.Hour})
	require.NoError(t, b.Start(context.Background()))

	for i := 0; i < 5; i++ {
		b.Add(sample(i))
	}

	assert.Eventually(t, func() bool { return tr.total() == 5 }, time.Second, 5*time.Millisecond)
	require.NoError(t, b.Stop())
}

func TestFlushLoop_Periodic(t *testing.T) {
	tr := &mockTransport{}
	b := New(tr, Config{MaxBatchSize: 100, FlushEvery: 20 * time.Millisecond})
	require.NoError(t, b.Start(context.Background()))

	b.Add(sample(1))
	b.Add(sample(2))

	assert.Eventually(t, func() bool { return tr.total() == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, b.Stop())
}

func TestStop_FlushesRemaining(t *testing.T) {
	tr := &mockTransport{}
	b := New(tr, Config{MaxBatchSize: 100, FlushEvery: time.Hour})
	require.NoError(t, b.Start(context.Background()))

	for i := 0; i < 7; i++ {
		b.Add(sample(i))
	}
	require.NoError(t, b.Stop())

	assert.Equal(t, 7, tr.total())
	assert.Equal(t, Stats{Sent: 7, Batches: 1}, b.Stats())
}

func TestStop_AfterParentCancelled(t *testing.T) {
	tr := &mockTransport{}
	ctx, cancel := context.WithCancel(context.Background())
	b := New(tr, Config{MaxBatchSize: 100, FlushEvery: time.Hour})
	require.NoError(t, b.Start(ctx))

	b.Add(sample(1))
	cancel()

	require.NoError(t, b.Stop())
	assert.Equal(t, 1, tr.total())
}

func TestSendError_CountsAndReports(t *testing.T) {
	sendErr := errors.New("connection refused")
	tr := &mockTransport{sendErr: sendErr}

	var reported []reading.Reading
	b := New(tr, Config{
		MaxBatchSize: 100,
		OnError: func(err error, readings []reading.Reading) {
			assert.ErrorIs(t, err, sendErr)
			reported = append(reported, readings...)
		},
	})

	b.Add(sample(1))
	b.Add(sample(2))
	err := b.Flush()

	assert.ErrorIs(t, err, sendErr)
	assert.Len(t, reported, 2)
	assert.Equal(t, Stats{Failed: 2, Batches: 1}, b.Stats())
}

func TestAdd_Concurrent(t *testing.T) {
	tr := &mockTransport{}
	b := New(tr, Config{MaxBatchSize: 50, FlushEvery: 10 * time.Millisecond})
	require.NoError(t, b.Start(context.Background()))

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				b.Add(sample(g*100 + i))
			}
		}(g)
	}
	wg.Wait()

	require.NoError(t, b.Stop())
	assert.Equal(t, 1000, tr.total())
	assert.Equal(t, int64(1000), b.Stats().Sent)
	for _, batch := range tr.getBatches() {
		assert.LessOrEqual(t, len(batch), 50)
	}
}
