package orchestrator

import (
	"errors"
	"fmt"
)

var (
	ErrSessionLive       = errors.New("a session is already in progress")
	ErrResetRequired     = errors.New("previous session failed; reset before starting a new one")
	ErrEmptyPlan         = errors.New("plan has no steps")
	ErrNoSession         = errors.New("no session")
	ErrAdvanceInProgress = errors.New("advance already in progress")
	ErrNotDiscardable    = errors.New("session has a submitted step and cannot be discarded")
	ErrStaleQuote        = errors.New("quote is stale")
	ErrPairUnbound       = errors.New("pair address not known yet")

	ErrStepReverted = errors.New("step reverted")
	ErrStepTimedOut = errors.New("step timed out")
	ErrStepRejected = errors.New("step rejected by wallet")
	ErrSubmitFailed = errors.New("step submission failed")
)

// StepError is the failure of one step. Kind is one of the ErrStep*
// sentinels, ErrStaleQuote or ErrSubmitFailed; Err is the cause.
type StepError struct {
	Index  int
	Step   StepKind
	Kind   error
	Reason string
	Err    error
}

func (e *StepError) Error() string {
	msg := fmt.Sprintf("step %d (%s): %v", e.Index, e.Step, e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil && e.Reason == "" {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StepError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
