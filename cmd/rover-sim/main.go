// Command rover-sim streams simulated rover sensor readings and diagnostics
// to a running dashboard. It doubles as a load generator.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/format"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/logging"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/rover"
)

type options struct {
	url         string
	apiKey      string
	duration    time.Duration
	delay       time.Duration
	infinite    bool
	flushEvery  time.Duration
	diagEvery   time.Duration
	seed        int64
	logLevel    string
	reportEvery time.Duration
}

func parseFlags() options {
	var o options
	pflag.StringVar(&o.url, "url", "http://localhost:8080", "dashboard base URL")
	pflag.StringVar(&o.apiKey, "api-key", "", "bearer token sent with every request")
	pflag.DurationVar(&o.duration, "duration", time.Hour, "how long to run (ignored with --infinite)")
	pflag.DurationVar(&o.delay, "delay", time.Second, "delay between sensor sweeps")
	pflag.BoolVar(&o.infinite, "infinite", false, "run until interrupted")
	pflag.DurationVar(&o.flushEvery, "flush-every", 5*time.Second, "upload batch interval")
	pflag.DurationVar(&o.diagEvery, "diagnostics-every", 30*time.Second, "diagnostic report interval")
	pflag.Int64Var(&o.seed, "seed", time.Now().UnixNano(), "random seed for sensor noise")
	pflag.StringVar(&o.logLevel, "log-level", "info", "debug, info, warn or error")
	pflag.DurationVar(&o.reportEvery, "report-every", 10*time.Second, "progress log interval")
	pflag.Parse()
	return o
}

func main() {
	o := parseFlags()

	logger := logging.New(o.logLevel, "console")
	logging.SetGlobal(logger)

	if err := run(o, logger); err != nil {
		logger.Fatal("Simulator failed", "error", err)
	}
}

func run(o options, logger *logging.Logger) error {
	if o.delay <= 0 {
		return fmt.Errorf("--delay must be positive")
	}

	sim := rover.NewSimulator(nil, o.seed)
	client, err := rover.New(rover.ClientConfig{
		URL:              o.url,
		APIKey:           o.apiKey,
		FlushEvery:       o.flushEvery,
		DiagnosticsEvery: o.diagEvery,
		Collector:        sim,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if !o.infinite {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, o.duration)
		defer stop()
	}

	if err := client.Start(ctx); err != nil {
		return err
	}

	mode := "for " + o.duration.String()
	if o.infinite {
		mode = "until interrupted"
	}
	logger.Info("Rover simulator started", "url", o.url, "run", mode, "delay", o.delay.String(), "sensors", len(rover.DefaultSensors))

	start := time.Now()
	sweep := time.NewTicker(o.delay)
	defer sweep.Stop()
	report := time.NewTicker(o.reportEvery)
	defer report.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case now := <-sweep.C:
			for _, r := range sim.Readings(now) {
				if err := client.RecordAt(r.SensorID, r.Value, r.Timestamp); err != nil {
					logger.Warn("Reading rejected", "sensor_id", r.SensorID, "error", err)
				}
			}
		case <-report.C:
			logStats(logger, "Progress", client.Stats(), time.Since(start))
		}
	}

	if err := client.Stop(); err != nil {
		logger.Warn("Final flush failed", "error", err)
	}
	logStats(logger, "Final statistics", client.Stats(), time.Since(start))
	return nil
}

func logStats(logger *logging.Logger, msg string, s rover.Stats, elapsed time.Duration) {
	rate := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(s.ReadingsSent+s.ReadingsFailed) / secs
	}
	logger.Info(msg,
		"elapsed", elapsed.Round(time.Second).String(),
		"sent", s.ReadingsSent,
		"failed", s.ReadingsFailed,
		"rejected", s.ReadingsRejected,
		"diagnostics", s.DiagnosticsSent,
		"readings_per_sec", format.Round(rate, 1),
		"success_rate", format.WithUnit(format.Round(s.SuccessRate(), 1), "%"))
}
