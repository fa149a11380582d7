// Package retention deletes readings older than the configured retention
// window of their data class.
//
// A purge is destructive and never retried: a failed run is reported and
// left for the next trigger. Classes are purged independently, so a
// failure in one never blocks or rolls back another. A class cannot be
// purged twice at once; a second trigger is rejected with PURGE_IN_PROGRESS.
package retention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/apperror"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/config"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/logging"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/reading"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/storage"
)

// Recorder receives per-class outcomes, e.g. for health reporting.
type Recorder interface {
	RecordSuccess(class reading.DataClass, deleted int)
	RecordFailure(class reading.DataClass, err error)
}

// Result is the outcome of purging one class.
type Result struct {
	DataClass reading.DataClass `json:"data_class"`
	Hours     int               `json:"hours,omitempty"`
	Cutoff    time.Time         `json:"cutoff,omitempty"`
	Deleted   int               `json:"deleted"`
	Took      string            `json:"took,omitempty"`
	Error     string            `json:"error,omitempty"`
	ErrorCode apperror.Kind     `json:"error_code,omitempty"`

	err error
}

// Err returns the failure, if any.
func (r Result) Err() error { return r.err }

// Summary is the outcome of purging every class.
type Summary struct {
	Success bool     `json:"success"`
	Results []Result `json:"results"`
}

// Purger deletes expired readings through the gateway.
type Purger struct {
	gw       storage.Gateway
	locker   Locker
	recorder Recorder
	now      func() time.Time
	logger   *logging.Logger
}

// Option configures a Purger.
type Option func(*Purger)

// WithLocker replaces the default in-process locker.
func WithLocker(l Locker) Option {
	return func(p *Purger) { p.locker = l }
}

// WithRecorder reports results to r.
func WithRecorder(r Recorder) Option {
	return func(p *Purger) { p.recorder = r }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Purger) { p.now = now }
}

// WithLogger overrides the component logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Purger) { p.logger = l }
}

// New creates a Purger over gw.
func New(gw storage.Gateway, opts ...Option) *Purger {
	p := &Purger{
		gw:     gw,
		locker: NewLocalLocker(),
		now:    time.Now,
		logger: logging.With("component", "retention"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ValidateHours checks hours against [1, 720].
func ValidateHours(hours int) error {
	if hours < config.MinRetentionHours || hours > config.MaxRetentionHours {
		return apperror.New(apperror.KindInvalidRetentionPolicy,
			fmt.Sprintf("retention hours must be between %d and %d, got %d",
				config.MinRetentionHours, config.MaxRetentionHours, hours))
	}
	return nil
}

// Purge deletes every reading of policy.DataClass with a timestamp before
// now - policy.Hours and returns how many rows were removed. The policy is
// validated before any I/O. Running it twice with the same now deletes
// nothing the second time.
func (p *Purger) Purge(ctx context.Context, policy reading.RetentionPolicy, now time.Time) (int, error) {
	if _, err := reading.ParseDataClass(string(policy.DataClass)); err != nil {
		return 0, apperror.Wrap(apperror.KindInvalidRetentionPolicy, "unknown data class", err)
	}
	if err := ValidateHours(policy.Hours); err != nil {
		return 0, err
	}

	release, ok, err := p.locker.TryLock(ctx, policy.DataClass)
	if err != nil {
		return 0, fmt.Errorf("acquire purge lock for %s: %w", policy.DataClass, err)
	}
	if !ok {
		return 0, apperror.New(apperror.KindPurgeInProgress,
			fmt.Sprintf("a purge of %s readings is already running", policy.DataClass))
	}
	defer release()

	cutoff := policy.Cutoff(now)
	deleted, err := p.gw.DeleteReadings(ctx, policy.DataClass, cutoff)
	if err != nil {
		return 0, apperror.Wrap(apperror.KindGatewayUnavailable,
			fmt.Sprintf("failed to purge %s readings", policy.DataClass), err)
	}
	return deleted, nil
}

// PurgeClass reads the stored policy of class and purges at the current time.
func (p *Purger) PurgeClass(ctx context.Context, class reading.DataClass) Result {
	began := time.Now()
	start := p.now()
	result := Result{DataClass: class}

	policy, err := p.gw.FetchRetentionPolicy(ctx, class)
	if err == nil {
		result.Hours = policy.Hours
		result.Cutoff = policy.Cutoff(start)
		result.Deleted, err = p.Purge(ctx, policy, start)
	}
	result.Took = time.Since(began).Round(time.Millisecond).String()

	if err != nil {
		result.err = err
		result.Error = apperror.MessageOf(err)
		result.ErrorCode = apperror.KindOf(err)
		// A run already in progress is not a failure of this class
		if result.ErrorCode == apperror.KindPurgeInProgress {
			p.logger.Warn("Purge skipped", "data_class", class, "error", err)
			return result
		}
		p.logger.Error("Purge failed", "data_class", class, "error", err)
		if p.recorder != nil {
			p.recorder.RecordFailure(class, err)
		}
		return result
	}

	p.logger.Info("Purge completed", "data_class", class, "hours", result.Hours,
		"cutoff", result.Cutoff.Format(time.RFC3339), "deleted", result.Deleted, "took", result.Took)
	if p.recorder != nil {
		p.recorder.RecordSuccess(class, result.Deleted)
	}
	return result
}

// PurgeAll purges every data class concurrently. Results are in
// reading.Classes() order.
func (p *Purger) PurgeAll(ctx context.Context) Summary {
	classes := reading.Classes()
	results := make([]Result, len(classes))

	var wg sync.WaitGroup
	for i, class := range classes {
		wg.Add(1)
		go func(i int, class reading.DataClass) {
			defer wg.Done()
			results[i] = p.PurgeClass(ctx, class)
		}(i, class)
	}
	wg.Wait()

	summary := Summary{Success: true, Results: results}
	for _, r := range results {
		if r.err != nil {
			summary.Success = false
		}
	}
	return summary
}

// Policies returns the stored policy of every class.
func (p *Purger) Policies(ctx context.Context) ([]reading.RetentionPolicy, error) {
	out := make([]reading.RetentionPolicy, 0, len(reading.Classes()))
	for _, class := range reading.Classes() {
		policy, err := p.gw.FetchRetentionPolicy(ctx, class)
		if err != nil {
			return nil, err
		}
		out = append(out, policy)
	}
	return out, nil
}

// UpdatePolicy validates hours and persists them. Invalid input never
// reaches the gateway, so the stored policy is unchanged on error.
func (p *Purger) UpdatePolicy(ctx context.Context, class reading.DataClass, hours int) error {
	if _, err := reading.ParseDataClass(string(class)); err != nil {
		return apperror.Wrap(apperror.KindInvalidRetentionPolicy, "data_class must be sensor or diagnostic", err)
	}
	if err := ValidateHours(hours); err != nil {
		return err
	}
	if err := p.gw.UpdateRetentionPolicy(ctx, class, hours); err != nil {
		return apperror.Wrap(apperror.KindGatewayUnavailable, "failed to save retention policy", err)
	}
	p.logger.Info("Retention policy updated", "data_class", class, "hours", hours)
	return nil
}

// SeedDefaults stores the configured default hours for classes that have
// never been configured. Stored values are kept.
func (p *Purger) SeedDefaults(ctx context.Context, defaults map[reading.DataClass]int) error {
	for _, class := range reading.Classes() {
		hours, ok := defaults[class]
		if !ok {
			continue
		}
		if err := ValidateHours(hours); err != nil {
			return fmt.Errorf("default for %s: %w", class, err)
		}
		if err := p.gw.EnsureRetentionPolicy(ctx, class, hours); err != nil {
			return fmt.Errorf("seed %s retention: %w", class, err)
		}
	}
	return nil
}
