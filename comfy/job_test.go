package comfy

import (
	"errors"
	"testing"
)

func TestStatusIsTerminal(t *testing.T) {
	tests := map[Status]bool{
		StatusUnsubmitted: false,
		StatusQueued:      false,
		StatusRunning:     false,
		StatusComplete:    true,
		StatusFailed:      true,
		StatusTimedOut:    true,
	}
	for s, want := range tests {
		if s.IsTerminal() != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", s, !want, want)
		}
	}
}

func TestJobAdvance(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		wantErr bool
	}{
		{StatusUnsubmitted, StatusQueued, false},
		{StatusUnsubmitted, StatusFailed, false},
		{StatusQueued, StatusRunning, false},
		{StatusQueued, StatusComplete, false},
		{StatusRunning, StatusTimedOut, false},
		{StatusRunning, StatusQueued, true},
		{StatusQueued, StatusQueued, true},
		{StatusQueued, StatusUnsubmitted, true},
		{StatusComplete, StatusRunning, true},
		{StatusComplete, StatusFailed, true},
		{StatusFailed, StatusUnsubmitted, true},
		{StatusTimedOut, StatusComplete, true},
	}

	for _, tt := range tests {
		job := &Job{Status: tt.from}
		err := job.Advance(tt.to)

		if tt.wantErr {
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("%s -> %s: error = %v, want ErrInvalidTransition", tt.from, tt.to, err)
			}
			if job.Status != tt.from {
				t.Errorf("%s -> %s: status changed to %s", tt.from, tt.to, job.Status)
			}
			continue
		}
		if err != nil || job.Status != tt.to {
			t.Errorf("%s -> %s: error = %v, status = %s", tt.from, tt.to, err, job.Status)
		}
	}
}

func TestJobFailKeepsTerminalState(t *testing.T) {
	job := NewJob("x")
	first := errors.New("first")
	job.fail(StatusFailed, first)
	job.fail(StatusTimedOut, errors.New("second"))

	if job.Status != StatusFailed || job.Err != first {
		t.Errorf("job = %+v", job)
	}
}
