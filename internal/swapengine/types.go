package swapengine

import (
	"math/big"
	"time"

	"github.com/aman-zulfiqar/pairswap/internal/amm"
	"github.com/aman-zulfiqar/pairswap/internal/models"
	"github.com/aman-zulfiqar/pairswap/internal/orchestrator"
	"github.com/aman-zulfiqar/pairswap/internal/pair"
)

// SwapIntent is a swap as the user states it
type SwapIntent struct {
	// Token symbols or hex addresses
	InputToken  string
	OutputToken string

	// Human-readable amount ("1.5"). It is the input amount, or the desired
	// output when ExactOut is set.
	Amount   string
	ExactOut bool

	// Optional parameters (defaults from RiskConfig when nil)
	SlippageBps       *uint64
	MaxPriceImpactBps *uint64

	RequestedAt time.Time
}

// SwapParams is a validated intent with tokens resolved and amounts at
// native scale.
type SwapParams struct {
	TokenIn  models.Token
	TokenOut models.Token
	Amount   *big.Int // native units of TokenIn, or of TokenOut when ExactOut
	ExactOut bool

	SlippageBps       uint64
	MaxPriceImpactBps uint64

	Intent   *SwapIntent
	ParsedAt time.Time
}

// LiquidityIntent is an add-liquidity request as the user states it.
type LiquidityIntent struct {
	TokenA  string
	TokenB  string
	AmountA string
	AmountB string // empty sizes B from the pool ratio
}

// LiquidityParams is a validated LiquidityIntent.
type LiquidityParams struct {
	TokenA  models.Token
	TokenB  models.Token
	AmountA *big.Int
	AmountB *big.Int // nil when sized from the pool
}

// QuoteResult contains detailed quote information
type QuoteResult struct {
	TokenIn  models.Token
	TokenOut models.Token
	Pair     pair.Resolution
	Quote    *amm.Quote

	// Display forms of the quote amounts
	AmountIn        string
	AmountOut       string
	MinimumReceived string
	PriceImpactPct  float64

	QuotedAt time.Time
}

// PairInfo describes a token pair and, when it exists, its reserves.
type PairInfo struct {
	TokenA     models.Token
	TokenB     models.Token
	Resolution pair.Resolution
	Snapshot   *amm.ReserveSnapshot // nil when the pair does not exist
}

// Reserves returns the display reserves of TokenA and TokenB.
func (p *PairInfo) Reserves() (string, string) {
	if p.Snapshot == nil {
		return "0", "0"
	}
	ra, rb, err := p.Snapshot.Oriented(p.TokenA.Address, p.TokenB.Address)
	if err != nil {
		return "0", "0"
	}
	return formatUnits(ra.ToBig(), p.TokenA), formatUnits(rb.ToBig(), p.TokenB)
}

// Prepared is a plan ready to start, with what it was derived from.
type Prepared struct {
	Plan  orchestrator.Plan
	Quote *QuoteResult // nil for liquidity plans
	Risk  *RiskCheckResult

	TokenA models.Token
	TokenB models.Token
}

// SessionResult is the final result returned to the caller
type SessionResult struct {
	SessionID string
	State     orchestrator.State
	TxHashes  []string
	Pair      string
	Duration  time.Duration
	Failure   *orchestrator.StepError
}

// Succeeded reports whether every step confirmed.
func (r *SessionResult) Succeeded() bool {
	return r.State.Kind == orchestrator.StateSucceeded
}

// RiskCheckResult contains risk validation outcome
type RiskCheckResult struct {
	Allowed bool
	Reason  string

	// Slippage
	SlippageTooHigh bool
	MaxSlippageBps  uint64

	// Price impact
	PriceImpactTooHigh bool
	MaxPriceImpactBps  uint64
	ActualImpactBps    uint64

	// Balance
	InsufficientBalance bool
	Required            *big.Int
	Available           *big.Int
}
