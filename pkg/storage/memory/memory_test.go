package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/reading"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/storage"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/timerange"
)

var _ storage.Gateway = (*Storage)(nil)

func TestMemoryStorage_WriteAndFetch(t *testing.T) {
	store := New()
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	readings := []reading.Reading{
		{SensorID: "temperature", Value: 21.5, Timestamp: now.Add(-2 * time.Minute)},
		{SensorID: "temperature", Value: 22.0, Timestamp: now.Add(-1 * time.Minute)},
		{SensorID: "humidity", Value: 40, Timestamp: now.Add(-1 * time.Minute)},
	}

	if err := store.WriteReadings(ctx, reading.ClassSensor, readings); err != nil {
		t.Fatalf("WriteReadings failed: %v", err)
	}

	window := timerange.TimeWindow{Start: now.Add(-1 * time.Hour), End: now}
	results, err := store.FetchReadings(ctx, reading.ClassSensor, "temperature", window)
	if err != nil {
		t.Fatalf("FetchReadings failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 readings, got %d", len(results))
	}
	if !results[0].Timestamp.Before(results[1].Timestamp) {
		t.Errorf("Expected ascending order, got %v then %v", results[0].Timestamp, results[1].Timestamp)
	}

	all, err := store.FetchReadings(ctx, reading.ClassSensor, "", window)
	if err != nil {
		t.Fatalf("FetchReadings failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 readings for all sensors, got %d", len(all))
	}
}

func TestMemoryStorage_ClassesAreSeparate(t *testing.T) {
	store := New()
	ctx := context.Background()
	now := time.Now()

	_ = store.WriteReadings(ctx, reading.ClassDiagnostic, []reading.Reading{
		{SensorID: reading.DiagCPUUsage, Value: 12, Timestamp: now},
	})

	window := timerange.TimeWindow{Start: now.Add(-time.Minute), End: now}
	sensor, _ := store.FetchReadings(ctx, reading.ClassSensor, "", window)
	diag, _ := store.FetchReadings(ctx, reading.ClassDiagnostic, "", window)

	if len(sensor) != 0 || len(diag) != 1 {
		t.Errorf("Expected 0 sensor and 1 diagnostic reading, got %d and %d", len(sensor), len(diag))
	}
}

func TestMemoryStorage_WindowBoundsInclusive(t *testing.T) {
	store := New()
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	_ = store.WriteReadings(ctx, reading.ClassSensor, []reading.Reading{
		{SensorID: "s", Value: 1, Timestamp: start},
		{SensorID: "s", Value: 2, Timestamp: end},
		{SensorID: "s", Value: 3, Timestamp: end.Add(time.Nanosecond)},
	})

	results, _ := store.FetchReadings(ctx, reading.ClassSensor, "s", timerange.TimeWindow{Start: start, End: end})
	if len(results) != 2 {
		t.Errorf("Expected 2 readings on the window bounds, got %d", len(results))
	}
}

func TestMemoryStorage_DeleteIsIdempotent(t *testing.T) {
	store := New()
	ctx := context.Background()
	cutoff := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)

	_ = store.WriteReadings(ctx, reading.ClassSensor, []reading.Reading{
		{SensorID: "s", Value: 1, Timestamp: cutoff.Add(-time.Hour)},
		{SensorID: "s", Value: 2, Timestamp: cutoff.Add(-time.Second)},
		{SensorID: "s", Value: 3, Timestamp: cutoff},
		{SensorID: "s", Value: 4, Timestamp: cutoff.Add(time.Hour)},
	})

	deleted, err := store.DeleteReadings(ctx, reading.ClassSensor, cutoff)
	if err != nil {
		t.Fatalf("DeleteReadings failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("Expected 2 deleted, got %d", deleted)
	}

	deleted, err = store.DeleteReadings(ctx, reading.ClassSensor, cutoff)
	if err != nil {
		t.Fatalf("DeleteReadings failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("Expected second delete to remove 0 rows, got %d", deleted)
	}

	stats, _ := store.Stats(ctx)
	if rows := stats.Classes[reading.ClassSensor].Rows; rows != 2 {
		t.Errorf("Expected 2 remaining rows, got %d", rows)
	}
}

func TestMemoryStorage_DuplicateTimestampOverwrites(t *testing.T) {
	store := New()
	ctx := context.Background()
	now := time.Now()

	_ = store.WriteReadings(ctx, reading.ClassSensor, []reading.Reading{{SensorID: "s", Value: 1, Timestamp: now}})
	_ = store.WriteReadings(ctx, reading.ClassSensor, []reading.Reading{{SensorID: "s", Value: 2, Timestamp: now}})

	results, _ := store.FetchReadings(ctx, reading.ClassSensor, "s", timerange.TimeWindow{Start: now, End: now})
	if len(results) != 1 || results[0].Value != 2 {
		t.Errorf("Expected single reading with value 2, got %+v", results)
	}
}

func TestMemoryStorage_RetentionPolicyDefaults(t *testing.T) {
	store := New()
	ctx := context.Background()

	policy, err := store.FetchRetentionPolicy(ctx, reading.ClassSensor)
	if err != nil {
		t.Fatalf("FetchRetentionPolicy failed: %v", err)
	}
	if policy.Hours != 168 {
		t.Errorf("Expected default 168h, got %d", policy.Hours)
	}

	policy, _ = store.FetchRetentionPolicy(ctx, reading.ClassDiagnostic)
	if policy.Hours != 72 {
		t.Errorf("Expected default 72h, got %d", policy.Hours)
	}

	if err := store.UpdateRetentionPolicy(ctx, reading.ClassSensor, 24); err != nil {
		t.Fatalf("UpdateRetentionPolicy failed: %v", err)
	}
	policy, _ = store.FetchRetentionPolicy(ctx, reading.ClassSensor)
	if policy.Hours != 24 {
		t.Errorf("Expected 24h after update, got %d", policy.Hours)
	}
}

func TestMemoryStorage_UnknownClass(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.WriteReadings(ctx, "bogus", nil); err == nil {
		t.Error("Expected error for unknown class")
	}
	if _, err := store.DeleteReadings(ctx, "bogus", time.Now()); err == nil {
		t.Error("Expected error for unknown class")
	}
}

func TestMemoryStorage_Closed(t *testing.T) {
	store := New()
	_ = store.Close()

	_, err := store.FetchReadings(context.Background(), reading.ClassSensor, "", timerange.TimeWindow{})
	if !errors.Is(err, storage.ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestMemoryStorage_Stats(t *testing.T) {
	store := New()
	ctx := context.Background()
	now := time.Now()

	_ = store.WriteReadings(ctx, reading.ClassSensor, []reading.Reading{
		{SensorID: "a", Value: 1, Timestamp: now.Add(-time.Hour)},
		{SensorID: "b", Value: 2, Timestamp: now},
	})

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	cs := stats.Classes[reading.ClassSensor]
	if cs.Rows != 2 || cs.Sensors != 2 {
		t.Errorf("Expected 2 rows and 2 sensors, got %d and %d", cs.Rows, cs.Sensors)
	}
	if !cs.Oldest.Equal(now.Add(-time.Hour)) || !cs.Newest.Equal(now) {
		t.Errorf("Unexpected bounds %v..%v", cs.Oldest, cs.Newest)
	}
	if _, ok := stats.Classes[reading.ClassDiagnostic]; !ok {
		t.Error("Expected diagnostic class entry in stats")
	}
}
