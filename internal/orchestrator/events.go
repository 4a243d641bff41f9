package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/aman-zulfiqar/pairswap/internal/models"
	"github.com/ethereum/go-ethereum/common"
)

// EventSink receives every session transition. Sinks must not block for
// long; the orchestrator calls them synchronously after each commit.
type EventSink interface {
	HandleEvent(ctx context.Context, ev *models.SessionEvent) error
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ctx context.Context, ev *models.SessionEvent) error

func (f SinkFunc) HandleEvent(ctx context.Context, ev *models.SessionEvent) error { return f(ctx, ev) }

// MultiSink fans events out to every sink and joins their errors.
type MultiSink []EventSink

func (m MultiSink) HandleEvent(ctx context.Context, ev *models.SessionEvent) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.HandleEvent(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func buildEvent(s *Session, stepIdx int, now time.Time) *models.SessionEvent {
	ev := &models.SessionEvent{
		SessionID: s.ID,
		PlanKind:  string(s.Plan.Kind),
		State:     s.State.Kind.String(),
		StepIndex: stepIdx,
		StepCount: len(s.Plan.Steps),
		TokenA:    hexOrEmpty(s.Plan.TokenA),
		TokenB:    hexOrEmpty(s.Plan.TokenB),
		Pair:      hexOrEmpty(s.Plan.Pair),
		Timestamp: now,
	}
	if stepIdx >= 0 && stepIdx < len(s.Plan.Steps) {
		st := &s.Plan.Steps[stepIdx]
		ev.StepKind = string(st.Kind)
		ev.StepStatus = string(st.Status)
		if st.TxHash != (common.Hash{}) {
			ev.TxHash = st.TxHash.Hex()
		}
	}
	if s.State.Err != nil {
		ev.Reason = s.State.Err.Error()
	}
	for _, h := range s.TxHashes {
		ev.TxHashes = append(ev.TxHashes, h.Hex())
	}
	return ev
}

func hexOrEmpty(a common.Address) string {
	if a == (common.Address{}) {
		return ""
	}
	return a.Hex()
}
