package orchestrator

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

type StateKind int

const (
	StateIdle StateKind = iota
	StateRunning
	StateAwaitingConfirmation
	StateStepFailed
	StateSucceeded
)

func (k StateKind) String() string {
	switch k {
	case StateRunning:
		return "running"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	case StateStepFailed:
		return "step_failed"
	case StateSucceeded:
		return "succeeded"
	}
	return "idle"
}

// State is the orchestrator's position. Step is meaningful for Running,
// AwaitingConfirmation and StepFailed; TxHash for AwaitingConfirmation;
// Err for StepFailed.
type State struct {
	Kind   StateKind
	Step   int
	TxHash common.Hash
	Err    *StepError
}

func (s State) String() string {
	switch s.Kind {
	case StateRunning:
		return fmt.Sprintf("running(%d)", s.Step)
	case StateAwaitingConfirmation:
		return fmt.Sprintf("awaiting_confirmation(%d, %s)", s.Step, s.TxHash.Hex())
	case StateStepFailed:
		return fmt.Sprintf("step_failed(%d, %v)", s.Step, s.Err)
	}
	return s.Kind.String()
}

// Terminal reports whether Advance has nothing left to do.
func (s State) Terminal() bool {
	return s.Kind == StateStepFailed || s.Kind == StateSucceeded || s.Kind == StateIdle
}

// Session is one execution of one plan.
type Session struct {
	ID        string
	Plan      Plan
	State     State
	TxHashes  []common.Hash
	StartedAt time.Time
}

func newSession(plan Plan, now time.Time) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Plan:      plan,
		State:     State{Kind: StateRunning},
		StartedAt: now,
	}
}

func (s *Session) step() *Step { return &s.Plan.Steps[s.State.Step] }

func (s *Session) snapshot() Session {
	cp := *s
	cp.Plan = s.Plan.clone()
	cp.TxHashes = append([]common.Hash(nil), s.TxHashes...)
	return cp
}
