package poller

import (
	"github.com/geolyze/geolyze_server/internal/model"
)

// Visual state of each pipeline step in the progress UI.
type StepState string

const (
	StepComplete StepState = "complete"
	StepActive   StepState = "active"
	StepPending  StepState = "pending"
)

// Steps the ordered pipeline as shown to the user, one entry per
// success-path status.
func Steps() []string {
	steps := make([]string, len(model.StatusOrder))
	copy(steps, model.StatusOrder)
	return steps
}

// StepStates classifies every step for the given observed status.
// failureIdx is the index where failure was detected (Poller tracks
// it) and is consulted only when status is failed: steps before it
// render complete, everything else pending.
func StepStates(status string, failureIdx int) []StepState {
	states := make([]StepState, len(model.StatusOrder))

	if status == model.StatusFailed {
		for i := range states {
			if i < failureIdx {
				states[i] = StepComplete
			} else {
				states[i] = StepPending
			}
		}
		return states
	}

	cur := model.StatusIndex(status)
	if cur < 0 {
		cur = 0
	}
	for i := range states {
		switch {
		case i < cur:
			states[i] = StepComplete
		case i == cur:
			states[i] = StepActive
		default:
			states[i] = StepPending
		}
	}
	return states
}

// FailureMessage the failure panel text, with a generic fallback when
// the job carries no error detail.
func FailureMessage(jobError string) string {
	if jobError != "" {
		return jobError
	}
	return "Analysis failed. Please try again or contact support."
}
