package orchestrator

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/aman-zulfiqar/pairswap/internal/amm"
	"github.com/aman-zulfiqar/pairswap/internal/chain"
	"github.com/aman-zulfiqar/pairswap/internal/pair"
	"github.com/ethereum/go-ethereum/common"
)

type PlanKind string

const (
	PlanSwap         PlanKind = "swap"
	PlanAddLiquidity PlanKind = "add_liquidity"
)

type StepKind string

const (
	StepApprove    StepKind = "approve"
	StepTransfer   StepKind = "transfer"
	StepCreatePair StepKind = "create_pair"
	StepMint       StepKind = "mint"
	StepSwap       StepKind = "swap"
)

type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepSubmitted StepStatus = "submitted"
	StepConfirmed StepStatus = "confirmed"
	StepFailed    StepStatus = "failed"
)

// Step is one transaction of a plan. Which fields matter depends on Kind:
//
//	Approve     Token, Spender, Amount
//	Transfer    Token, Pair (recipient), Amount
//	CreatePair  TokenA, TokenB
//	Mint        Pair, To
//	Swap        Pair, To, Amount0Out, Amount1Out (Token/Amount record the input)
//
// Pair is zero on steps that follow a CreatePair until it confirms.
type Step struct {
	Kind       StepKind
	Token      common.Address
	Pair       common.Address
	Spender    common.Address
	To         common.Address
	Amount     *big.Int
	Amount0Out *big.Int
	Amount1Out *big.Int
	TokenA     common.Address
	TokenB     common.Address

	// Guarded steps re-check the pair reserves against Plan.Snapshot
	// before submission.
	Guarded bool

	Status StepStatus
	TxHash common.Hash
}

// Call encodes the step as a contract write.
func (s *Step) Call(factory common.Address) (chain.Call, error) {
	switch s.Kind {
	case StepApprove:
		return chain.NewApproveCall(s.Token, s.Spender, s.Amount)
	case StepTransfer:
		if s.Pair == (common.Address{}) {
			return chain.Call{}, ErrPairUnbound
		}
		return chain.NewTransferCall(s.Token, s.Pair, s.Amount)
	case StepCreatePair:
		return chain.NewCreatePairCall(factory, s.TokenA, s.TokenB)
	case StepMint:
		if s.Pair == (common.Address{}) {
			return chain.Call{}, ErrPairUnbound
		}
		return chain.NewMintCall(s.Pair, s.To)
	case StepSwap:
		return chain.NewSwapCall(s.Pair, s.Amount0Out, s.Amount1Out, s.To, nil)
	}
	return chain.Call{}, fmt.Errorf("unknown step kind %q", s.Kind)
}

// Touched lists the addresses whose reads a confirmed step makes stale.
func (s *Step) Touched() []common.Address {
	switch s.Kind {
	case StepApprove, StepTransfer:
		return []common.Address{s.Token}
	case StepCreatePair:
		return []common.Address{s.Pair, s.TokenA, s.TokenB}
	case StepMint, StepSwap:
		return []common.Address{s.Pair, s.TokenA, s.TokenB}
	}
	return nil
}

// Plan is an ordered list of dependent steps built from one set of fresh
// reads. It is never re-derived once a session starts.
type Plan struct {
	Kind   PlanKind
	Owner  common.Address
	TokenA common.Address
	TokenB common.Address
	Pair   common.Address // zero until a CreatePair step confirms

	// Snapshot and Readings are the reads the plan was built from. Start
	// rejects the plan if any of them is no longer current.
	Snapshot *amm.ReserveSnapshot
	Readings []pair.Reading
	Quote    *amm.Quote

	Steps []Step
}

func (p *Plan) clone() Plan {
	cp := *p
	cp.Steps = append([]Step(nil), p.Steps...)
	cp.Readings = append([]pair.Reading(nil), p.Readings...)
	return cp
}

// LiquidityFacts are the reads an add-liquidity plan is built from.
type LiquidityFacts struct {
	Owner      common.Address
	TokenA     common.Address
	TokenB     common.Address
	AmountA    *big.Int
	AmountB    *big.Int // nil sizes B from the pool ratio
	Resolution pair.Resolution
	Snapshot   *amm.ReserveSnapshot // required when the pair exists
}

// BuildAddLiquidityPlan returns [CreatePair, Transfer A, Transfer B, Mint]
// for a new pair and [Transfer A, Transfer B, Mint] for an existing one.
func BuildAddLiquidityPlan(f LiquidityFacts) (Plan, error) {
	if f.TokenA == f.TokenB {
		return Plan{}, pair.ErrIdenticalTokens
	}
	if f.AmountA == nil || f.AmountA.Sign() <= 0 {
		return Plan{}, fmt.Errorf("%w: amount A", amm.ErrInvalidAmount)
	}
	if f.AmountB != nil && f.AmountB.Sign() <= 0 {
		return Plan{}, fmt.Errorf("%w: amount B", amm.ErrInvalidAmount)
	}

	plan := Plan{
		Kind:   PlanAddLiquidity,
		Owner:  f.Owner,
		TokenA: f.TokenA,
		TokenB: f.TokenB,
	}

	amountB := f.AmountB
	guarded := false
	if f.Resolution.Exists {
		if f.Snapshot == nil || f.Snapshot.Pair != f.Resolution.Pair {
			return Plan{}, errors.New("add liquidity: snapshot of the existing pair is required")
		}
		plan.Pair = f.Resolution.Pair
		plan.Snapshot = f.Snapshot

		if !f.Snapshot.IsEmpty() {
			guarded = true
			if amountB == nil {
				b, err := proportional(f.Snapshot, f.TokenA, f.TokenB, f.AmountA)
				if err != nil {
					return Plan{}, err
				}
				amountB = b
			}
		}
	}
	if amountB == nil {
		return Plan{}, fmt.Errorf("%w: amount B is required for an empty or new pair", amm.ErrInvalidAmount)
	}

	if !f.Resolution.Exists {
		plan.Steps = append(plan.Steps, Step{
			Kind:   StepCreatePair,
			TokenA: f.TokenA,
			TokenB: f.TokenB,
		})
	}
	plan.Steps = append(plan.Steps,
		// The guard sits on the first transfer: once funds reach the pair a
		// failed mint leaves them there.
		Step{Kind: StepTransfer, Token: f.TokenA, Pair: plan.Pair, Amount: new(big.Int).Set(f.AmountA), TokenA: f.TokenA, TokenB: f.TokenB, Guarded: guarded},
		Step{Kind: StepTransfer, Token: f.TokenB, Pair: plan.Pair, Amount: new(big.Int).Set(amountB), TokenA: f.TokenA, TokenB: f.TokenB},
		Step{Kind: StepMint, Pair: plan.Pair, To: f.Owner, TokenA: f.TokenA, TokenB: f.TokenB},
	)
	for i := range plan.Steps {
		plan.Steps[i].Status = StepPending
	}
	return plan, nil
}

func proportional(snap *amm.ReserveSnapshot, tokenA, tokenB common.Address, amountA *big.Int) (*big.Int, error) {
	reserveA, reserveB, err := snap.Oriented(tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	a, err := amm.FromBig(amountA)
	if err != nil {
		return nil, err
	}
	b, err := amm.ProportionalAmount(a, reserveA, reserveB)
	if err != nil {
		return nil, err
	}
	if b.IsZero() {
		return nil, fmt.Errorf("%w: amount A too small for the pool ratio", amm.ErrInvalidAmount)
	}
	return b.ToBig(), nil
}

// SwapFacts are the reads a swap plan is built from.
type SwapFacts struct {
	Owner     common.Address
	Quote     *amm.Quote
	Allowance pair.Reading // tokenIn allowance of Owner for the pair
}

// BuildSwapPlan returns [Approve, Transfer, Swap], or [Transfer, Swap] when
// the allowance read already covers the input. The pair never pulls tokens,
// so the input is transferred to it before swap is called. The swap asks for
// MinimumReceived, so the pair reverts rather than paying out less.
func BuildSwapPlan(f SwapFacts) (Plan, error) {
	q := f.Quote
	if q == nil || q.Snapshot == nil {
		return Plan{}, errors.New("swap: quote is required")
	}
	if q.MinimumReceived == nil || q.MinimumReceived.IsZero() {
		return Plan{}, fmt.Errorf("%w: minimum received is zero", amm.ErrInsufficientOutput)
	}
	snap := q.Snapshot
	if f.Allowance.Token != q.TokenIn || f.Allowance.Spender != snap.Pair {
		return Plan{}, errors.New("swap: allowance reading does not match the quote")
	}

	amountIn := q.AmountInBig()
	minOut := q.MinimumReceivedBig()
	zero := new(big.Int)

	amount0Out, amount1Out := zero, minOut
	if q.TokenOut == snap.Token0 {
		amount0Out, amount1Out = minOut, zero
	}

	plan := Plan{
		Kind:     PlanSwap,
		Owner:    f.Owner,
		TokenA:   q.TokenIn,
		TokenB:   q.TokenOut,
		Pair:     snap.Pair,
		Snapshot: snap,
		Readings: []pair.Reading{f.Allowance},
		Quote:    q,
	}

	if f.Allowance.Value == nil || f.Allowance.Value.Cmp(amountIn) < 0 {
		plan.Steps = append(plan.Steps, Step{
			Kind:    StepApprove,
			Token:   q.TokenIn,
			Spender: snap.Pair,
			Amount:  new(big.Int).Set(amountIn),
			TokenA:  q.TokenIn,
			TokenB:  q.TokenOut,
			Status:  StepPending,
		})
	}
	plan.Steps = append(plan.Steps,
		Step{
			Kind:    StepTransfer,
			Token:   q.TokenIn,
			Pair:    snap.Pair,
			Amount:  new(big.Int).Set(amountIn),
			TokenA:  q.TokenIn,
			TokenB:  q.TokenOut,
			Guarded: true,
			Status:  StepPending,
		},
		Step{
			Kind:       StepSwap,
			Token:      q.TokenIn,
			Amount:     amountIn,
			Pair:       snap.Pair,
			To:         f.Owner,
			Amount0Out: new(big.Int).Set(amount0Out),
			Amount1Out: new(big.Int).Set(amount1Out),
			TokenA:     q.TokenIn,
			TokenB:     q.TokenOut,
			Status:     StepPending,
		},
	)
	return plan, nil
}
