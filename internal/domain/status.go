package domain

import "fmt"

// Status is the lifecycle state of a job
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Statuses lists every job status in lifecycle order
var Statuses = []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}

// IsTerminal reports whether no further transition can leave the status
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// transitions is the complete table of legal status changes
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether from -> to is a legal status change
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionFields are the values a transition must carry
type TransitionFields struct {
	OutputRef         string
	Progress          int
	ErrorMessage      string
	ProcessingSeconds int
}

// CheckTransition validates a transition and its fields.
// A repeated completed -> completed write is reported as a no-op rather than an error.
func CheckTransition(from, to Status, fields TransitionFields) (noop bool, err error) {
	if from == StatusCompleted && to == StatusCompleted {
		return true, nil
	}

	if !CanTransition(from, to) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	switch to {
	case StatusCompleted:
		if fields.OutputRef == "" {
			return false, fmt.Errorf("%w: completed requires an output reference", ErrInvalidTransition)
		}
		if fields.Progress != 100 {
			return false, fmt.Errorf("%w: completed requires progress 100, got %d", ErrInvalidTransition, fields.Progress)
		}
	case StatusFailed:
		if fields.ErrorMessage == "" {
			return false, fmt.Errorf("%w: failed requires an error message", ErrInvalidTransition)
		}
	}

	return false, nil
}
