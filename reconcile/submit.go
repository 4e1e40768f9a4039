package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/evanofslack/dns-reconciler/metrics"
	"github.com/evanofslack/dns-reconciler/provider"
	"github.com/evanofslack/dns-reconciler/record"
)

// SubmitConfig tunes the submitter's retry policy.
type SubmitConfig struct {
	// MaxAttempts bounds apply attempts per change, first try included.
	MaxAttempts int
	// InitialBackoff is the first retry delay; it grows exponentially.
	InitialBackoff time.Duration
	// MaxBackoff caps the retry delay.
	MaxBackoff time.Duration
	// DryRun logs changes instead of applying them, reporting success.
	DryRun bool
}

func (c *SubmitConfig) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 4
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 8 * time.Second
	}
}

// ChangeFailure records one change that could not be applied.
type ChangeFailure struct {
	Change record.Change
	Err    error
}

// Outcome is the per-provider accounting of one submission pass.
type Outcome struct {
	Attempted int
	Succeeded int
	Failed    int
	Failures  []ChangeFailure
}

// Submitter applies computed changes through a DNS provider, retrying
// transient failures with exponential backoff and containing each
// change's failure so the rest of the sequence still runs.
type Submitter struct {
	cfg     SubmitConfig
	metrics *metrics.Metrics
}

func NewSubmitter(cfg SubmitConfig, m *metrics.Metrics) *Submitter {
	cfg.applyDefaults()
	return &Submitter{cfg: cfg, metrics: m}
}

// Submit applies changes in the order the diff produced them; it never
// reorders. Unavailable and timeout failures are retried with backoff up
// to the configured attempt bound. Rejections and conflicts are not
// retried: a rejection is final, a conflict means actual state moved and
// the change must be recomputed by a fresh run. A failed change degrades
// the outcome but never stops the remaining changes.
//
// A cancelled context stops the pass: the in-flight change is recorded
// as attempted and failed, changes never started are not counted.
func (s *Submitter) Submit(ctx context.Context, changes []record.Change, prov provider.DNSProvider) Outcome {
	var out Outcome

	for _, change := range changes {
		if ctx.Err() != nil {
			break
		}

		out.Attempted++
		if s.cfg.DryRun {
			slog.Info("dry run, would apply change",
				"action", change.Action, "zone", change.Zone, "key", change.Key.String())
			out.Succeeded++
			continue
		}

		err := s.applyWithRetry(ctx, prov, change)
		s.metrics.IncChangeOp(string(change.Action), err == nil)
		if err != nil {
			slog.Error("fail apply change",
				"action", change.Action, "zone", change.Zone, "key", change.Key.String(), "error", err)
			out.Failed++
			out.Failures = append(out.Failures, ChangeFailure{Change: change, Err: err})
			continue
		}
		out.Succeeded++
	}
	return out
}

func (s *Submitter) applyWithRetry(ctx context.Context, prov provider.DNSProvider, change record.Change) error {
	attempt := 0
	op := func() error {
		attempt++
		if attempt > 1 {
			s.metrics.IncApplyRetry()
		}
		err := provider.Classify(prov.Apply(ctx, change))
		if err == nil {
			return nil
		}
		if !provider.Retryable(err) {
			return backoff.Permanent(err)
		}
		slog.Warn("retryable apply failure",
			"action", change.Action, "key", change.Key.String(), "attempt", attempt, "error", err)
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.InitialBackoff
	bo.MaxInterval = s.cfg.MaxBackoff

	// Retry unwraps Permanent errors before returning them.
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.cfg.MaxAttempts-1)), ctx)
	return backoff.Retry(op, policy)
}
