/*
Package storage defines the reading store gateway used by the dashboard.

# Gateway

Readings live in one table per data class (sensor_readings and
diagnostic_readings). Retention hours live in a small key/value settings
store under sensor_readings_retention_hours and
diagnostic_readings_retention_hours.

	type Gateway interface {
	    WriteReadings(ctx, class, readings) error
	    FetchReadings(ctx, class, sensorID, window) ([]reading.Reading, error)
	    DeleteReadings(ctx, class, before) (int, error)
	    FetchRetentionPolicy(ctx, class) (reading.RetentionPolicy, error)
	    UpdateRetentionPolicy(ctx, class, hours) error
	    Stats(ctx) (*Stats, error)
	    Close() error
	}

Backends:
  - memory: in-process maps, used by tests and ephemeral runs
  - badger: BadgerDB, keys ordered by class, sensor hash and time
  - sqlite: a pooled SQLite file in WAL mode

# Retries

NewRetrying wraps a Gateway so that read paths (FetchReadings,
FetchRetentionPolicy, Stats) are retried with exponential backoff:

	gw = storage.NewRetrying(gw, 3, 200*time.Millisecond)

Attempt n waits baseDelay * 2^n before the next try. When all attempts
fail the error is classified as apperror.ErrGatewayUnavailable. Writes and
deletes are never retried: a failed purge is left for the next run.

# Usage Example

	gw, err := badger.New(badger.Config{Path: "./data"})
	if err != nil {
	    log.Fatal(err)
	}
	defer gw.Close()

	err = gw.WriteReadings(ctx, reading.ClassSensor, []reading.Reading{
	    {SensorID: "temperature", Value: 21.5, Timestamp: time.Now()},
	})

	rows, err := gw.FetchReadings(ctx, reading.ClassSensor, "temperature", window)
*/
package storage
