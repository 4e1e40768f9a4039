// Package reconcile implements the fetch, diff, submit cycle and the
// scheduler that drives it.
package reconcile

import (
	"time"

	"github.com/google/uuid"
)

// Status is the final outcome of a reconciliation run.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusPartial Status = "PARTIAL"
	StatusFailed  Status = "FAILED"
)

// Run is the record of one reconciliation cycle. It is created when the
// cycle starts, mutated only by that cycle, and handed to reporters when
// the cycle ends. The core never persists it.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Zones      []string

	ChangesAttempted int
	ChangesSucceeded int
	ChangesFailed    int

	Status Status
	// Error carries the fetch-side failure that aborted the run, if any.
	Error string
}

func newRun(zones []string) *Run {
	return &Run{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Zones:     zones,
	}
}

func (r *Run) finish(status Status) {
	r.Status = status
	r.FinishedAt = time.Now()
}

// statusFromCounts derives the run status from change accounting: all
// succeeded (including the zero-change case) is SUCCESS, all failed is
// FAILED, a mix is PARTIAL.
func statusFromCounts(attempted, succeeded, failed int) Status {
	switch {
	case failed == 0:
		return StatusSuccess
	case succeeded == 0 && attempted > 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}
