package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/evanofslack/dns-reconciler/metrics"
	"github.com/evanofslack/dns-reconciler/provider"
	"github.com/evanofslack/dns-reconciler/record"
)

// Phase is the scheduler's position in the run state machine. A run only
// starts from PhaseIdle; a tick arriving in any other phase is skipped
// outright, never queued, so two runs can never race corrective changes
// against the same zones.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseFetching
	PhaseDiffing
	PhaseSubmitting
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseFetching:
		return "FETCHING"
	case PhaseDiffing:
		return "DIFFING"
	case PhaseSubmitting:
		return "SUBMITTING"
	default:
		return "UNKNOWN"
	}
}

// SchedulerConfig tunes run cadence and the shared fetch deadline.
type SchedulerConfig struct {
	Interval     time.Duration
	FetchTimeout time.Duration
	Zones        []string
}

func (c *SchedulerConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
}

// Scheduler drives reconciliation runs on a repeating interval or on
// demand. It borrows provider instances from the plugin registry for the
// duration of each run and owns the run's cancellation and concurrency
// bounds.
type Scheduler struct {
	source    provider.Source
	sourceKey string
	providers map[string]provider.DNSProvider

	differ    *Differ
	submitter *Submitter
	reporters []Reporter
	metrics   *metrics.Metrics
	cfg       SchedulerConfig

	phase   atomic.Int32
	trigger chan struct{}
}

func NewScheduler(
	source provider.Source,
	sourceKey string,
	providers map[string]provider.DNSProvider,
	differ *Differ,
	submitter *Submitter,
	m *metrics.Metrics,
	cfg SchedulerConfig,
	reporters ...Reporter,
) *Scheduler {
	cfg.applyDefaults()
	return &Scheduler{
		source:    source,
		sourceKey: sourceKey,
		providers: providers,
		differ:    differ,
		submitter: submitter,
		reporters: reporters,
		metrics:   m,
		cfg:       cfg,
		trigger:   make(chan struct{}, 1),
	}
}

// Phase reports the scheduler's current phase.
func (s *Scheduler) Phase() Phase {
	return Phase(s.phase.Load())
}

// TriggerNow requests an immediate run without waiting for the next tick.
// It never blocks; a request arriving while a run is in flight is
// dropped by the idle gate like any other tick.
func (s *Scheduler) TriggerNow() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run executes an immediate first run, then loops on the interval ticker
// and on-demand triggers until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping reconciliation scheduler")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-s.trigger:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes one full reconciliation cycle and reports its outcome.
// It returns nil when the idle gate rejects the trigger because a run is
// already in flight.
func (s *Scheduler) RunOnce(ctx context.Context) *Run {
	if !s.phase.CompareAndSwap(int32(PhaseIdle), int32(PhaseFetching)) {
		slog.Info("skipping reconciliation trigger, run in flight", "phase", s.Phase().String())
		s.metrics.IncRunSkipped()
		return nil
	}
	defer s.phase.Store(int32(PhaseIdle))

	run := newRun(s.cfg.Zones)
	start := time.Now()
	slog.Info("starting reconciliation run", "run_id", run.ID, "zones", run.Zones)

	s.execute(ctx, run)

	slog.Debug("reconciliation run complete",
		"run_id", run.ID, "status", string(run.Status), "took", time.Since(start).String())
	s.report(*run)
	return run
}

func (s *Scheduler) execute(ctx context.Context, run *Run) {
	desired, actuals, err := s.fetch(ctx)
	if err != nil {
		// Never diff against incomplete or unknown state.
		run.Error = err.Error()
		run.finish(StatusFailed)
		return
	}

	s.phase.Store(int32(PhaseDiffing))
	planned := make(map[string][]record.Change, len(actuals))
	for key, actual := range actuals {
		changes := s.differ.Diff(desired, actual)
		if len(changes) > 0 {
			slog.Info("computed changes", "run_id", run.ID, "provider", key, "count", len(changes))
		}
		planned[key] = changes
	}

	s.phase.Store(int32(PhaseSubmitting))
	outcomes := s.submit(ctx, planned)

	for _, out := range outcomes {
		run.ChangesAttempted += out.Attempted
		run.ChangesSucceeded += out.Succeeded
		run.ChangesFailed += out.Failed
	}
	if err := ctx.Err(); err != nil {
		// Shutdown mid-run: counts above record everything attempted,
		// and the interrupted run is failed, not partial.
		run.Error = err.Error()
		run.finish(StatusFailed)
		return
	}
	run.finish(statusFromCounts(run.ChangesAttempted, run.ChangesSucceeded, run.ChangesFailed))
}

// fetch retrieves desired state from the source of truth and actual state
// from every DNS provider concurrently, all under one shared deadline.
// Any single fetch failure fails them all.
func (s *Scheduler) fetch(ctx context.Context) (record.Set, map[string]record.Set, error) {
	fctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	var (
		desired record.Set
		mu      sync.Mutex
		actuals = make(map[string]record.Set, len(s.providers))
	)

	g, gctx := errgroup.WithContext(fctx)
	g.Go(func() error {
		set, err := s.source.Fetch(gctx, s.cfg.Zones)
		if err != nil {
			return fmt.Errorf("fetch desired state from %s: %w", s.sourceKey, provider.Classify(err))
		}
		desired = set
		return nil
	})

	for key, prov := range s.providers {
		key, prov := key, prov
		g.Go(func() error {
			set, err := prov.Fetch(gctx, s.cfg.Zones)
			if err != nil {
				return fmt.Errorf("fetch actual state from %s: %w", key, provider.Classify(err))
			}
			mu.Lock()
			actuals[key] = set
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return desired, actuals, nil
}

// submit applies each provider's changes. Providers share no mutable
// state, so they proceed concurrently; within one provider changes apply
// sequentially to preserve diff ordering.
func (s *Scheduler) submit(ctx context.Context, planned map[string][]record.Change) map[string]Outcome {
	var (
		mu       sync.Mutex
		outcomes = make(map[string]Outcome, len(planned))
	)

	var wg sync.WaitGroup
	for key, changes := range planned {
		key, changes := key, changes
		prov := s.providers[key]
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := s.submitter.Submit(ctx, changes, prov)
			mu.Lock()
			outcomes[key] = out
			mu.Unlock()
		}()
	}
	wg.Wait()
	return outcomes
}

// report fans the finished run out to reporters without blocking the
// scheduler on their completion.
func (s *Scheduler) report(run Run) {
	reporters := s.reporters
	go func() {
		for _, r := range reporters {
			r.Report(run)
		}
	}()
}
