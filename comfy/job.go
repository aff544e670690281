package comfy

import (
	"errors"
	"fmt"
)

// Status represents the status of a generation job.
type Status string

// Job statuses, in lifecycle order.
const (
	StatusUnsubmitted Status = "unsubmitted" // Created, not yet acknowledged by the engine
	StatusQueued      Status = "queued"      // Engine returned a job id
	StatusRunning     Status = "running"     // Completion polling in progress
	StatusComplete    Status = "complete"    // An output image was found
	StatusFailed      Status = "failed"      // Submission, parse or engine error
	StatusTimedOut    Status = "timed_out"   // Polling ceiling exceeded
)

// IsTerminal returns true if the status represents a final state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusComplete, StatusFailed, StatusTimedOut:
		return true
	default:
		return false
	}
}

func (s Status) rank() int {
	switch s {
	case StatusUnsubmitted:
		return 0
	case StatusQueued:
		return 1
	case StatusRunning:
		return 2
	default:
		return 3
	}
}

// ErrInvalidTransition is returned when a job would move backwards or out of
// a terminal state.
var ErrInvalidTransition = errors.New("invalid job status transition")

// Job tracks one prompt through the engine. It is owned by the Run call that
// created it and is not safe for concurrent mutation.
type Job struct {
	Prompt   string
	ID       string
	Status   Status
	ImageRef string

	// Err holds the failure of a failed or timed out job
	Err error
}

// NewJob creates an unsubmitted job.
func NewJob(prompt string) *Job {
	return &Job{Prompt: prompt, Status: StatusUnsubmitted}
}

// Advance moves the job to status to. Transitions must go forward in the
// order unsubmitted < queued < running < terminal.
func (j *Job) Advance(to Status) error {
	if j.Status.IsTerminal() || to.rank() <= j.Status.rank() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
	}
	j.Status = to
	return nil
}

// fail moves a non-terminal job to status with the given error.
func (j *Job) fail(status Status, err error) {
	if j.Advance(status) == nil {
		j.Err = err
	}
}
