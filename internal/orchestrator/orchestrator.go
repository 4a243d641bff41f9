package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aman-zulfiqar/pairswap/internal/amm"
	"github.com/aman-zulfiqar/pairswap/internal/chain"
	"github.com/aman-zulfiqar/pairswap/internal/confirm"
	"github.com/aman-zulfiqar/pairswap/internal/models"
	"github.com/aman-zulfiqar/pairswap/internal/pair"
	"github.com/aman-zulfiqar/pairswap/internal/rpc"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
)

// Submitter signs and sends one contract write.
type Submitter interface {
	Submit(ctx context.Context, call chain.Call) (common.Hash, error)
}

// Awaiter blocks until a transaction is mined, reverted or timed out.
type Awaiter interface {
	Await(ctx context.Context, hash common.Hash, opts confirm.Options) (*types.Receipt, error)
}

// PairSource is the resolver surface the orchestrator needs.
type PairSource interface {
	Resolve(ctx context.Context, a, b common.Address) (pair.Resolution, error)
	Snapshot(ctx context.Context, pairAddr common.Address) (*amm.ReserveSnapshot, error)
	Invalidate(addrs ...common.Address)
	IsCurrent(s *amm.ReserveSnapshot) bool
	IsCurrentReading(r pair.Reading) bool
}

// Config holds configuration for the Orchestrator
type Config struct {
	Factory           common.Address
	Confirm           confirm.Options
	FreshnessGuard    bool
	StaleToleranceBps uint64
	Logger            *logrus.Logger
	Sink              EventSink
}

func DefaultConfig() Config {
	return Config{
		Confirm:           confirm.DefaultOptions(),
		FreshnessGuard:    true,
		StaleToleranceBps: 50,
	}
}

// Orchestrator runs one session at a time for one signer. Each Advance
// performs exactly one transition; the lock is never held across chain I/O.
type Orchestrator struct {
	submitter Submitter
	awaiter   Awaiter
	pairs     PairSource
	cfg       Config
	logger    *logrus.Logger
	now       func() time.Time

	mu        sync.Mutex
	session   *Session
	advancing bool
}

func New(submitter Submitter, awaiter Awaiter, pairs PairSource, cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Orchestrator{
		submitter: submitter,
		awaiter:   awaiter,
		pairs:     pairs,
		cfg:       cfg,
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// Start begins a session for plan. The plan's reads must still be current.
// A succeeded session is replaced; a failed one must be Reset first.
func (o *Orchestrator) Start(ctx context.Context, plan Plan) (string, error) {
	if len(plan.Steps) == 0 {
		return "", ErrEmptyPlan
	}

	o.mu.Lock()
	if s := o.session; s != nil {
		switch s.State.Kind {
		case StateRunning, StateAwaitingConfirmation:
			o.mu.Unlock()
			return "", ErrSessionLive
		case StateStepFailed:
			o.mu.Unlock()
			return "", ErrResetRequired
		}
	}
	if plan.Snapshot != nil && !o.pairs.IsCurrent(plan.Snapshot) {
		o.mu.Unlock()
		return "", fmt.Errorf("%w: pair %s changed since it was read", ErrStaleQuote, plan.Snapshot.Pair.Hex())
	}
	for _, rd := range plan.Readings {
		if !o.pairs.IsCurrentReading(rd) {
			o.mu.Unlock()
			return "", fmt.Errorf("%w: token %s changed since it was read", ErrStaleQuote, rd.Token.Hex())
		}
	}

	s := newSession(plan.clone(), o.now())
	o.session = s
	ev := buildEvent(s, 0, o.now())
	o.mu.Unlock()

	o.logger.WithFields(logrus.Fields{
		"session": s.ID,
		"plan":    plan.Kind,
		"steps":   len(plan.Steps),
	}).Info("session started")
	o.emit(ctx, ev)
	return s.ID, nil
}

// Advance performs one transition of the live session. The returned error
// is the step failure when the session ends in StepFailed, or the reason no
// transition happened.
func (o *Orchestrator) Advance(ctx context.Context) (State, error) {
	o.mu.Lock()
	s := o.session
	if s == nil {
		o.mu.Unlock()
		return State{Kind: StateIdle}, ErrNoSession
	}
	state := s.State
	if o.advancing {
		o.mu.Unlock()
		return state, ErrAdvanceInProgress
	}
	if state.Terminal() {
		o.mu.Unlock()
		return state, nil
	}
	o.advancing = true
	step := *s.step()
	o.mu.Unlock()

	// Only the advancing goroutine writes to s, so reading it here without
	// the lock is safe.
	if state.Kind == StateAwaitingConfirmation {
		return o.awaitStep(ctx, s, state.Step, state.TxHash, step)
	}
	return o.submitStep(ctx, s, state.Step, step)
}

// Run advances until the session reaches a terminal state.
func (o *Orchestrator) Run(ctx context.Context) (State, error) {
	for {
		state, err := o.Advance(ctx)
		if err != nil || state.Terminal() {
			return state, err
		}
	}
}

func (o *Orchestrator) submitStep(ctx context.Context, s *Session, i int, step Step) (State, error) {
	if err := ctx.Err(); err != nil {
		return o.release(s), err
	}
	log := o.logger.WithFields(logrus.Fields{"session": s.ID, "step": i, "kind": step.Kind})

	if step.Guarded && o.cfg.FreshnessGuard && s.Plan.Snapshot != nil {
		reason, stale, err := o.checkFreshness(ctx, s.Plan.Snapshot)
		if err != nil {
			log.WithError(err).Warn("freshness check failed")
			return o.release(s), err
		}
		if stale {
			return o.fail(ctx, s, i, ErrStaleQuote, reason, nil)
		}
	}

	call, err := step.Call(o.cfg.Factory)
	if err != nil {
		return o.fail(ctx, s, i, ErrSubmitFailed, "", err)
	}

	hash, err := o.submitter.Submit(ctx, call)
	if err != nil {
		switch {
		case errors.Is(err, chain.ErrWalletRejected) && i == 0:
			return o.rejectFirst(ctx, s, step, err)
		case errors.Is(err, chain.ErrWalletRejected):
			return o.fail(ctx, s, i, ErrStepRejected, "", err)
		case rpc.IsRateLimited(err):
			return o.fail(ctx, s, i, ErrStepTimedOut, "", err)
		default:
			return o.fail(ctx, s, i, ErrSubmitFailed, "", err)
		}
	}

	state := o.commit(ctx, s, i, func() {
		st := &s.Plan.Steps[i]
		st.Status = StepSubmitted
		st.TxHash = hash
		s.TxHashes = append(s.TxHashes, hash)
		s.State = State{Kind: StateAwaitingConfirmation, Step: i, TxHash: hash}
	})
	log.WithField("hash", hash.Hex()).Info("step submitted")
	return state, nil
}

func (o *Orchestrator) awaitStep(ctx context.Context, s *Session, i int, hash common.Hash, step Step) (State, error) {
	// The transaction is out; a caller giving up must not strand the session.
	ctx = context.WithoutCancel(ctx)
	log := o.logger.WithFields(logrus.Fields{"session": s.ID, "step": i, "kind": step.Kind, "hash": hash.Hex()})

	started := o.now()
	if _, err := o.awaiter.Await(ctx, hash, o.cfg.Confirm); err != nil {
		// A timed-out write may still land, so its reads are dropped
		// whatever the outcome.
		o.pairs.Invalidate(step.Touched()...)
		var reverted *confirm.RevertedError
		if errors.As(err, &reverted) {
			return o.fail(ctx, s, i, ErrStepReverted, reverted.Reason, err)
		}
		return o.fail(ctx, s, i, ErrStepTimedOut, "", err)
	}

	o.pairs.Invalidate(step.Touched()...)

	var bound common.Address
	if step.Kind == StepCreatePair {
		res, err := o.pairs.Resolve(ctx, step.TokenA, step.TokenB)
		if err == nil && !res.Exists {
			err = errors.New("factory reports no pair after creation")
		}
		if err != nil {
			o.mu.Lock()
			s.Plan.Steps[i].Status = StepConfirmed
			o.mu.Unlock()
			return o.fail(ctx, s, i, ErrPairUnbound, "", err)
		}
		bound = res.Pair
		o.pairs.Invalidate(bound)
	}

	state := o.commit(ctx, s, i, func() {
		s.Plan.Steps[i].Status = StepConfirmed
		if bound != (common.Address{}) {
			s.Plan.Pair = bound
			for j := i; j < len(s.Plan.Steps); j++ {
				if s.Plan.Steps[j].Pair == (common.Address{}) {
					s.Plan.Steps[j].Pair = bound
				}
			}
		}
		if i+1 == len(s.Plan.Steps) {
			s.State = State{Kind: StateSucceeded, Step: i}
		} else {
			s.State = State{Kind: StateRunning, Step: i + 1}
		}
	})

	log.WithField("latency", o.now().Sub(started)).Info("step confirmed")
	if state.Kind == StateSucceeded {
		o.logger.WithFields(logrus.Fields{"session": s.ID, "txs": len(s.TxHashes)}).Info("session succeeded")
	}
	return state, nil
}

func (o *Orchestrator) checkFreshness(ctx context.Context, quoted *amm.ReserveSnapshot) (string, bool, error) {
	current, err := o.pairs.Snapshot(ctx, quoted.Pair)
	if err != nil {
		return "", false, fmt.Errorf("re-read reserves: %w", err)
	}
	dev, err := amm.DeviationBps(quoted, current)
	if err != nil {
		return fmt.Sprintf("reserves no longer comparable: %v", err), true, nil
	}
	if dev > o.cfg.StaleToleranceBps {
		return fmt.Sprintf("reserves moved %d bps since the quote (tolerance %d)", dev, o.cfg.StaleToleranceBps), true, nil
	}
	return "", false, nil
}

// rejectFirst handles a declined signature on the first step: nothing has
// reached the chain, so the session is dropped.
func (o *Orchestrator) rejectFirst(ctx context.Context, s *Session, step Step, cause error) (State, error) {
	se := &StepError{Index: 0, Step: step.Kind, Kind: ErrStepRejected, Err: cause}
	state := o.commit(ctx, s, 0, func() {
		s.State = State{Kind: StateIdle}
		o.session = nil
	})
	o.logger.WithField("session", s.ID).Info("signature declined, session discarded")
	return state, se
}

func (o *Orchestrator) fail(ctx context.Context, s *Session, i int, kind error, reason string, cause error) (State, error) {
	se := &StepError{Index: i, Step: s.Plan.Steps[i].Kind, Kind: kind, Reason: reason, Err: cause}
	state := o.commit(ctx, s, i, func() {
		if s.Plan.Steps[i].Status != StepConfirmed {
			s.Plan.Steps[i].Status = StepFailed
		}
		s.State = State{Kind: StateStepFailed, Step: i, Err: se}
	})
	o.logger.WithFields(logrus.Fields{
		"session": s.ID,
		"step":    i,
		"kind":    s.Plan.Steps[i].Kind,
	}).WithError(se).Error("step failed")
	return state, se
}

// commit applies mutate under the lock, ends the advance and publishes the
// resulting event.
func (o *Orchestrator) commit(ctx context.Context, s *Session, stepIdx int, mutate func()) State {
	o.mu.Lock()
	mutate()
	o.advancing = false
	state := s.State
	ev := buildEvent(s, stepIdx, o.now())
	o.mu.Unlock()

	o.emit(ctx, ev)
	return state
}

func (o *Orchestrator) release(s *Session) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.advancing = false
	return s.State
}

// Reset clears a failed or succeeded session. It is a no-op when idle.
func (o *Orchestrator) Reset(ctx context.Context) error {
	o.mu.Lock()
	s := o.session
	if s == nil {
		o.mu.Unlock()
		return nil
	}
	if o.advancing {
		o.mu.Unlock()
		return ErrAdvanceInProgress
	}
	if s.State.Kind != StateStepFailed && s.State.Kind != StateSucceeded {
		o.mu.Unlock()
		return ErrSessionLive
	}
	o.session = nil
	ev := o.idleEvent(s)
	o.mu.Unlock()

	o.logger.WithField("session", s.ID).Info("session reset")
	o.emit(ctx, ev)
	return nil
}

// Discard abandons a running session whose current step has not been
// submitted. Steps already confirmed stay on chain.
func (o *Orchestrator) Discard(ctx context.Context) error {
	o.mu.Lock()
	s := o.session
	if s == nil {
		o.mu.Unlock()
		return ErrNoSession
	}
	if o.advancing {
		o.mu.Unlock()
		return ErrAdvanceInProgress
	}
	if s.State.Kind != StateRunning {
		o.mu.Unlock()
		return ErrNotDiscardable
	}
	o.session = nil
	ev := o.idleEvent(s)
	o.mu.Unlock()

	o.logger.WithFields(logrus.Fields{"session": s.ID, "step": s.State.Step}).Info("session discarded")
	o.emit(ctx, ev)
	return nil
}

func (o *Orchestrator) idleEvent(s *Session) *models.SessionEvent {
	ev := buildEvent(s, s.State.Step, o.now())
	ev.State = StateIdle.String()
	return ev
}

// State returns the current state; Idle when there is no session.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return State{Kind: StateIdle}
	}
	return o.session.State
}

// Session returns a copy of the live or last finished session.
func (o *Orchestrator) Session() (Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return Session{}, false
	}
	return o.session.snapshot(), true
}

// Failure returns the step error of a failed session, or nil.
func (o *Orchestrator) Failure() *StepError {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil
	}
	return o.session.State.Err
}

func (o *Orchestrator) emit(ctx context.Context, ev *models.SessionEvent) {
	if o.cfg.Sink == nil {
		return
	}
	if err := o.cfg.Sink.HandleEvent(context.WithoutCancel(ctx), ev); err != nil {
		o.logger.WithError(err).WithField("session", ev.SessionID).Warn("failed to publish session event")
	}
}
