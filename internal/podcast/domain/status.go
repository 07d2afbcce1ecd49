package domain

import (
	"fmt"

	"github.com/castlab/podcast-pipeline/internal/podcast/models"
)

// CanTransition reports whether a podcast may move from one status to another.
// The pipeline only advances forward through the stage chain; failed is
// reachable from every non-terminal state, and failed -> pending is the single
// backward edge used to restart processing.
func CanTransition(from, to models.Status) bool {
	switch from {
	case models.PendingStatus:
		return to == models.TranscribingStatus || to == models.FailedStatus
	case models.TranscribingStatus:
		return to == models.ExtractingStatus || to == models.FailedStatus
	case models.ExtractingStatus:
		return to == models.SlicingStatus || to == models.FailedStatus
	case models.SlicingStatus:
		return to == models.CompleteStatus || to == models.FailedStatus
	case models.CompleteStatus:
		return false
	case models.FailedStatus:
		return to == models.PendingStatus
	default:
		return false
	}
}

func ValidateTransition(from, to models.Status) error {
	if from == to {
		return nil
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: invalid transition %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Terminal reports whether no further pipeline work applies to the status.
func Terminal(s models.Status) bool {
	return s == models.CompleteStatus || s == models.FailedStatus
}
