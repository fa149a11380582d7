package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/reading"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/storage"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/timerange"
)

var _ storage.Gateway = (*Storage)(nil)

func openTestStore(t *testing.T) *Storage {
	t.Helper()
	store, err := New(Config{Path: filepath.Join(t.TempDir(), "trequer.db"), PoolSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStorage_WriteAndFetch(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.WriteReadings(ctx, reading.ClassSensor, []reading.Reading{
		{SensorID: "temperature", Value: 20, Timestamp: base.Add(2 * time.Minute)},
		{SensorID: "temperature", Value: 21, Timestamp: base.Add(1 * time.Minute)},
		{SensorID: "humidity", Value: 55, Timestamp: base.Add(90 * time.Second)},
	}))

	window := timerange.TimeWindow{Start: base, End: base.Add(time.Hour)}

	temp, err := store.FetchReadings(ctx, reading.ClassSensor, "temperature", window)
	require.NoError(t, err)
	require.Len(t, temp, 2)
	assert.Equal(t, 21.0, temp[0].Value)
	assert.True(t, temp[0].Timestamp.Equal(base.Add(time.Minute)))

	all, err := store.FetchReadings(ctx, reading.ClassSensor, "", window)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "humidity", all[1].SensorID)
}

func TestStorage_UpsertOnDuplicate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	ts := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.WriteReadings(ctx, reading.ClassSensor, []reading.Reading{{SensorID: "s", Value: 1, Timestamp: ts}}))
	require.NoError(t, store.WriteReadings(ctx, reading.ClassSensor, []reading.Reading{{SensorID: "s", Value: 2, Timestamp: ts}}))

	out, err := store.FetchReadings(ctx, reading.ClassSensor, "s", timerange.TimeWindow{Start: ts, End: ts})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 2.0, out[0].Value)
}

func TestStorage_DeleteReadings(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	cutoff := now.Add(-24 * time.Hour)

	require.NoError(t, store.WriteReadings(ctx, reading.ClassSensor, []reading.Reading{
		{SensorID: "s", Value: 1, Timestamp: cutoff.Add(-time.Nanosecond)},
		{SensorID: "s", Value: 2, Timestamp: cutoff},
		{SensorID: "s", Value: 3, Timestamp: now},
	}))
	require.NoError(t, store.WriteReadings(ctx, reading.ClassDiagnostic, []reading.Reading{
		{SensorID: reading.DiagCPUUsage, Value: 9, Timestamp: cutoff.Add(-time.Hour)},
	}))

	deleted, err := store.DeleteReadings(ctx, reading.ClassSensor, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	deleted, err = store.DeleteReadings(ctx, reading.ClassSensor, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Classes[reading.ClassSensor].Rows)
	assert.EqualValues(t, 1, stats.Classes[reading.ClassDiagnostic].Rows)
	assert.True(t, stats.Classes[reading.ClassSensor].Oldest.Equal(cutoff))
	assert.Greater(t, stats.SizeBytes, uint64(0))
}

func TestStorage_RetentionPolicy(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	policy, err := store.FetchRetentionPolicy(ctx, reading.ClassDiagnostic)
	require.NoError(t, err)
	assert.Equal(t, 72, policy.Hours)
	assert.Equal(t, reading.ClassDiagnostic, policy.DataClass)

	require.NoError(t, store.UpdateRetentionPolicy(ctx, reading.ClassDiagnostic, 720))

	policy, err = store.FetchRetentionPolicy(ctx, reading.ClassDiagnostic)
	require.NoError(t, err)
	assert.Equal(t, 720, policy.Hours)

	sensor, err := store.FetchRetentionPolicy(ctx, reading.ClassSensor)
	require.NoError(t, err)
	assert.Equal(t, 168, sensor.Hours)
}

func TestStorage_UnknownClass(t *testing.T) {
	store := openTestStore(t)
	_, err := store.FetchReadings(context.Background(), "bogus", "", timerange.TimeWindow{})
	assert.Error(t, err)
}

func TestNew_RequiresPath(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
