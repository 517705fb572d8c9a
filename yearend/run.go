package yearend

import (
	"fmt"
	"time"

	"github.com/warp/profit-sharing/plan"
)

// =============================================================================
// RUN - Explicit state of one closing run
// =============================================================================

// Run is the job state of a year-end close. Transitions return a new value;
// the pipeline threads the value through and persists it only at the start
// and terminal boundaries.
//
//	Pending -> Running -> Completed | Failed
type Run struct {
	plan.ClosingRun
}

// NewRun creates a pending run.
func NewRun(id string, year int, commit bool, now time.Time) Run {
	return Run{plan.ClosingRun{
		ID:        id,
		Year:      year,
		Status:    plan.RunPending,
		Committed: commit,
		CreatedAt: now,
	}}
}

// Start moves a pending run to running.
func (r Run) Start(now time.Time) (Run, error) {
	if r.Status != plan.RunPending {
		return r, fmt.Errorf("run %s: cannot start from %s", r.ID, r.Status)
	}
	r.Status = plan.RunRunning
	r.StartedAt = &now
	return r, nil
}

// Complete moves a running run to completed.
func (r Run) Complete(processed int, now time.Time) (Run, error) {
	if r.Status != plan.RunRunning {
		return r, fmt.Errorf("run %s: cannot complete from %s", r.ID, r.Status)
	}
	r.Status = plan.RunCompleted
	r.MembersProcessed = processed
	r.CompletedAt = &now
	return r, nil
}

// Fail moves a non-terminal run to failed, recording the cause.
func (r Run) Fail(processed int, cause error, now time.Time) Run {
	if r.Status.Terminal() {
		return r
	}
	r.Status = plan.RunFailed
	r.MembersProcessed = processed
	if cause != nil {
		r.Error = cause.Error()
	}
	r.CompletedAt = &now
	return r
}

// Duration is the elapsed time of a terminal run.
func (r Run) Duration() time.Duration {
	if r.StartedAt == nil || r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(*r.StartedAt)
}
