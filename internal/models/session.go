package models

import "time"

// SessionEvent is published on every orchestrator transition.
type SessionEvent struct {
	SessionID  string    `json:"session_id"`
	PlanKind   string    `json:"plan_kind"` // "swap" or "add_liquidity"
	State      string    `json:"state"`
	StepIndex  int       `json:"step_index"`
	StepCount  int       `json:"step_count"`
	StepKind   string    `json:"step_kind,omitempty"`
	StepStatus string    `json:"step_status,omitempty"`
	TxHash     string    `json:"tx_hash,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Pair       string    `json:"pair,omitempty"`
	TokenA     string    `json:"token_a"`
	TokenB     string    `json:"token_b"`
	TxHashes   []string  `json:"tx_hashes,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Terminal reports whether the event closes its session.
func (e *SessionEvent) Terminal() bool {
	return e.State == "succeeded" || e.State == "step_failed"
}

// StepRecord is one finished step, kept as audit history.
type StepRecord struct {
	SessionID  string    `json:"session_id"`
	PlanKind   string    `json:"plan_kind"`
	StepIndex  int       `json:"step_index"`
	StepKind   string    `json:"step_kind"`
	Status     string    `json:"status"`
	TxHash     string    `json:"tx_hash"`
	Reason     string    `json:"reason"`
	Pair       string    `json:"pair"`
	TokenA     string    `json:"token_a"`
	TokenB     string    `json:"token_b"`
	FinishedAt time.Time `json:"finished_at"`
}

// StepRecordFromEvent returns the record for an event that finished a step,
// or nil when the event does not.
func StepRecordFromEvent(e *SessionEvent) *StepRecord {
	if e.StepStatus != "confirmed" && e.StepStatus != "failed" {
		return nil
	}
	return &StepRecord{
		SessionID:  e.SessionID,
		PlanKind:   e.PlanKind,
		StepIndex:  e.StepIndex,
		StepKind:   e.StepKind,
		Status:     e.StepStatus,
		TxHash:     e.TxHash,
		Reason:     e.Reason,
		Pair:       e.Pair,
		TokenA:     e.TokenA,
		TokenB:     e.TokenB,
		FinishedAt: e.Timestamp,
	}
}
