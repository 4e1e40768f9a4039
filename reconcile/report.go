package reconcile

import (
	"context"
	"log/slog"

	"github.com/evanofslack/dns-reconciler/metrics"
)

// Reporter receives each finished run. Reporting is fire-and-forget: the
// scheduler never blocks on a reporter, so implementations should be
// quick or hand off internally.
type Reporter interface {
	Report(run Run)
}

// LogReporter writes run outcomes to the default structured logger.
type LogReporter struct{}

func (LogReporter) Report(run Run) {
	level := slog.LevelInfo
	if run.Status == StatusFailed {
		level = slog.LevelError
	} else if run.Status == StatusPartial {
		level = slog.LevelWarn
	}
	slog.Default().Log(context.Background(), level, "reconciliation run finished",
		"run_id", run.ID,
		"status", string(run.Status),
		"zones", run.Zones,
		"attempted", run.ChangesAttempted,
		"succeeded", run.ChangesSucceeded,
		"failed", run.ChangesFailed,
		"duration", run.FinishedAt.Sub(run.StartedAt).String(),
		"error", run.Error,
	)
}

// MetricsReporter publishes run outcomes to prometheus.
type MetricsReporter struct {
	Metrics *metrics.Metrics
}

func (r MetricsReporter) Report(run Run) {
	r.Metrics.IncRun(string(run.Status))
	r.Metrics.SetRunDuration(run.FinishedAt.Sub(run.StartedAt))
}
