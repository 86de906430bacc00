package podcast

import "errors"

type Status string

const (
	StatusPending           Status = "pending"
	StatusProcessing        Status = "processing"
	StatusSearching         Status = "searching"
	StatusGeneratingScript  Status = "generating_script"
	StatusGeneratingAudio   Status = "generating_audio"
	StatusMergingAudio      Status = "merging_audio"
	StatusGeneratingSummary Status = "generating_summary"
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrJobNotFound       = errors.New("job not found")
	ErrJobActive         = errors.New("job is running")
)

// pipeline lists the forward order. Optional stages may be skipped.
var pipeline = []Status{
	StatusPending,
	StatusProcessing,
	StatusSearching,
	StatusGeneratingScript,
	StatusGeneratingAudio,
	StatusMergingAudio,
	StatusGeneratingSummary,
	StatusCompleted,
}

func optional(s Status) bool {
	return s == StatusSearching || s == StatusGeneratingSummary
}

func (s Status) Valid() bool {
	return s == StatusFailed || indexOf(s) >= 0
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Active reports whether a worker currently owns the job.
func (s Status) Active() bool {
	return s.Valid() && !s.Terminal() && s != StatusPending
}

func indexOf(s Status) int {
	for i, p := range pipeline {
		if p == s {
			return i
		}
	}
	return -1
}

// CanTransition reports whether from -> to is an edge of the job state
// machine: one step forward (skipping optional stages), failure from any
// non-terminal status, or the failed -> pending retry edge.
func CanTransition(from, to Status) bool {
	switch {
	case to == StatusFailed:
		return from.Valid() && !from.Terminal()
	case from == StatusFailed:
		return to == StatusPending
	}
	i := indexOf(from)
	if i < 0 || from == StatusCompleted {
		return false
	}
	for _, next := range pipeline[i+1:] {
		if next == to {
			return true
		}
		if !optional(next) {
			return false
		}
	}
	return false
}
