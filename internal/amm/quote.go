package amm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	// BasisPoints is the fixed-point denominator for fees, slippage and impact.
	BasisPoints = 10000

	// DefaultFeeBps is the Uniswap V2 swap fee (0.3%).
	DefaultFeeBps = 30
)

var bpsDenominator = uint256.NewInt(BasisPoints)

// QuoteKind records which side of the trade the caller fixed.
type QuoteKind int

const (
	ExactIn QuoteKind = iota
	ExactOut
)

func (k QuoteKind) String() string {
	if k == ExactOut {
		return "exact_out"
	}
	return "exact_in"
}

// Quote is the result of pricing one trade against one snapshot. It is valid
// only while Snapshot is current.
type Quote struct {
	Kind            QuoteKind
	TokenIn         common.Address
	TokenOut        common.Address
	AmountIn        *uint256.Int
	AmountOut       *uint256.Int
	MinimumReceived *uint256.Int
	PriceImpactBps  uint64
	FeeBps          uint64
	SlippageBps     uint64
	Snapshot        *ReserveSnapshot
}

// PriceImpactPercent is for display only.
func (q *Quote) PriceImpactPercent() float64 {
	return float64(q.PriceImpactBps) / 100
}

// AmountInBig returns the input amount at the chain boundary.
func (q *Quote) AmountInBig() *big.Int { return q.AmountIn.ToBig() }

// AmountOutBig returns the expected output at the chain boundary.
func (q *Quote) AmountOutBig() *big.Int { return q.AmountOut.ToBig() }

// MinimumReceivedBig returns the execution floor at the chain boundary.
func (q *Quote) MinimumReceivedBig() *big.Int { return q.MinimumReceived.ToBig() }

// QuoteExactIn prices selling amountIn of tokenIn for tokenOut.
func QuoteExactIn(
	snap *ReserveSnapshot,
	tokenIn, tokenOut common.Address,
	amountIn *uint256.Int,
	feeBps, slippageBps uint64,
) (*Quote, error) {
	if err := validateParams(feeBps, slippageBps); err != nil {
		return nil, err
	}
	if amountIn == nil || amountIn.IsZero() {
		return nil, ErrInvalidAmount
	}
	reserveIn, reserveOut, err := snap.Oriented(tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}

	amountOut, err := GetAmountOut(amountIn, reserveIn, reserveOut, feeBps)
	if err != nil {
		return nil, err
	}
	return buildQuote(ExactIn, snap, tokenIn, tokenOut, amountIn.Clone(), amountOut, reserveIn, reserveOut, feeBps, slippageBps)
}

// QuoteExactOut prices buying amountOut of tokenOut with tokenIn. The input is
// the exact inverse of GetAmountOut, and the returned AmountOut is the forward
// result for that input, so it is never below the requested amount.
func QuoteExactOut(
	snap *ReserveSnapshot,
	tokenIn, tokenOut common.Address,
	amountOut *uint256.Int,
	feeBps, slippageBps uint64,
) (*Quote, error) {
	if err := validateParams(feeBps, slippageBps); err != nil {
		return nil, err
	}
	if amountOut == nil || amountOut.IsZero() {
		return nil, ErrInvalidAmount
	}
	reserveIn, reserveOut, err := snap.Oriented(tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}

	amountIn, err := GetAmountIn(amountOut, reserveIn, reserveOut, feeBps)
	if err != nil {
		return nil, err
	}
	forward, err := GetAmountOut(amountIn, reserveIn, reserveOut, feeBps)
	if err != nil {
		return nil, err
	}
	return buildQuote(ExactOut, snap, tokenIn, tokenOut, amountIn, forward, reserveIn, reserveOut, feeBps, slippageBps)
}

func buildQuote(
	kind QuoteKind,
	snap *ReserveSnapshot,
	tokenIn, tokenOut common.Address,
	amountIn, amountOut, reserveIn, reserveOut *uint256.Int,
	feeBps, slippageBps uint64,
) (*Quote, error) {
	impact, err := PriceImpactBps(amountIn, amountOut, reserveIn, reserveOut)
	if err != nil {
		return nil, err
	}
	return &Quote{
		Kind:            kind,
		TokenIn:         tokenIn,
		TokenOut:        tokenOut,
		AmountIn:        amountIn,
		AmountOut:       amountOut,
		MinimumReceived: ApplySlippage(amountOut, slippageBps),
		PriceImpactBps:  impact,
		FeeBps:          feeBps,
		SlippageBps:     slippageBps,
		Snapshot:        snap,
	}, nil
}

func validateParams(feeBps, slippageBps uint64) error {
	if feeBps >= BasisPoints {
		return fmt.Errorf("%w: fee %d bps", ErrInvalidParameter, feeBps)
	}
	if slippageBps > BasisPoints {
		return fmt.Errorf("%w: slippage %d bps", ErrInvalidParameter, slippageBps)
	}
	return nil
}

// GetAmountOut is the pair's output formula:
//
//	amountOut = amountIn*(10000-fee)*reserveOut / (reserveIn*10000 + amountIn*(10000-fee))
//
// evaluated in 256-bit integers with a single floor, exactly as the contract
// does.
func GetAmountOut(amountIn, reserveIn, reserveOut *uint256.Int, feeBps uint64) (*uint256.Int, error) {
	if amountIn == nil || amountIn.IsZero() {
		return nil, ErrInvalidAmount
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrEmptyPool
	}
	if feeBps >= BasisPoints {
		return nil, fmt.Errorf("%w: fee %d bps", ErrInvalidParameter, feeBps)
	}

	amountInWithFee, overflow := new(uint256.Int).MulOverflow(amountIn, uint256.NewInt(BasisPoints-feeBps))
	if overflow {
		return nil, ErrOverflow
	}
	numerator, overflow := new(uint256.Int).MulOverflow(amountInWithFee, reserveOut)
	if overflow {
		return nil, ErrOverflow
	}
	scaledReserve, overflow := new(uint256.Int).MulOverflow(reserveIn, bpsDenominator)
	if overflow {
		return nil, ErrOverflow
	}
	denominator, overflow := new(uint256.Int).AddOverflow(scaledReserve, amountInWithFee)
	if overflow {
		return nil, ErrOverflow
	}

	amountOut := new(uint256.Int).Div(numerator, denominator)
	if amountOut.IsZero() {
		return nil, ErrInsufficientOutput
	}
	return amountOut, nil
}

// GetAmountIn is the algebraic inverse of GetAmountOut, rounded up:
//
//	amountIn = reserveIn*amountOut*10000 / ((reserveOut-amountOut)*(10000-fee)) + 1
func GetAmountIn(amountOut, reserveIn, reserveOut *uint256.Int, feeBps uint64) (*uint256.Int, error) {
	if amountOut == nil || amountOut.IsZero() {
		return nil, ErrInvalidAmount
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrEmptyPool
	}
	if feeBps >= BasisPoints {
		return nil, fmt.Errorf("%w: fee %d bps", ErrInvalidParameter, feeBps)
	}
	if !amountOut.Lt(reserveOut) {
		return nil, ErrInsufficientLiquidity
	}

	numerator, overflow := new(uint256.Int).MulOverflow(reserveIn, amountOut)
	if overflow {
		return nil, ErrOverflow
	}
	if _, overflow = numerator.MulOverflow(numerator, bpsDenominator); overflow {
		return nil, ErrOverflow
	}
	remaining := new(uint256.Int).Sub(reserveOut, amountOut)
	denominator, overflow := new(uint256.Int).MulOverflow(remaining, uint256.NewInt(BasisPoints-feeBps))
	if overflow {
		return nil, ErrOverflow
	}

	amountIn := new(uint256.Int).Div(numerator, denominator)
	if _, overflow = amountIn.AddOverflow(amountIn, uint256.NewInt(1)); overflow {
		return nil, ErrOverflow
	}
	return amountIn, nil
}

// PriceImpactBps measures how far the execution price amountOut/amountIn
// falls below the pre-trade mid price reserveOut/reserveIn, in basis points
// rounded down. The fee is part of the measured impact.
func PriceImpactBps(amountIn, amountOut, reserveIn, reserveOut *uint256.Int) (uint64, error) {
	if amountIn == nil || amountIn.IsZero() {
		return 0, ErrInvalidAmount
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return 0, ErrEmptyPool
	}

	ideal, overflow := new(uint256.Int).MulOverflow(amountIn, reserveOut)
	if overflow {
		return 0, ErrOverflow
	}
	actual, overflow := new(uint256.Int).MulOverflow(amountOut, reserveIn)
	if overflow {
		return 0, ErrOverflow
	}
	if !actual.Lt(ideal) {
		return 0, nil
	}

	diff := new(uint256.Int).Sub(ideal, actual)
	if _, overflow = diff.MulOverflow(diff, bpsDenominator); overflow {
		return 0, ErrOverflow
	}
	return diff.Div(diff, ideal).Uint64(), nil
}

// ApplySlippage returns amount*(10000-slippage)/10000 rounded down. This is
// the floor passed on-chain, so it must never round up.
func ApplySlippage(amount *uint256.Int, slippageBps uint64) *uint256.Int {
	if slippageBps >= BasisPoints {
		return new(uint256.Int)
	}
	// floor(a*f/D) == (a/D)*f + floor((a%D)*f/D), which cannot overflow.
	factor := uint256.NewInt(BasisPoints - slippageBps)
	q, r := new(uint256.Int), new(uint256.Int)
	q.DivMod(amount, bpsDenominator, r)
	q.Mul(q, factor)
	r.Mul(r, factor)
	r.Div(r, bpsDenominator)
	return q.Add(q, r)
}

// ProportionalAmount returns amountA*reserveB/reserveA: the amount of token B
// that keeps the pool ratio when adding amountA of token A.
func ProportionalAmount(amountA, reserveA, reserveB *uint256.Int) (*uint256.Int, error) {
	if amountA == nil || amountA.IsZero() {
		return nil, ErrInvalidAmount
	}
	if reserveA.IsZero() || reserveB.IsZero() {
		return nil, ErrEmptyPool
	}
	out, overflow := new(uint256.Int).MulOverflow(amountA, reserveB)
	if overflow {
		return nil, ErrOverflow
	}
	return out.Div(out, reserveA), nil
}

// DeviationBps measures how far the reserve ratio of current has moved from
// that of quoted, in basis points of the quoted ratio, rounded up.
func DeviationBps(quoted, current *ReserveSnapshot) (uint64, error) {
	if quoted.Token0 != current.Token0 || quoted.Token1 != current.Token1 {
		return 0, fmt.Errorf("%w: snapshots of different pairs", ErrUnknownToken)
	}
	if quoted.IsEmpty() || current.IsEmpty() {
		return 0, ErrEmptyPool
	}

	// Compare reserve1/reserve0 ratios by cross-multiplying.
	a, overflow := new(uint256.Int).MulOverflow(&current.reserve1, &quoted.reserve0)
	if overflow {
		return 0, ErrOverflow
	}
	b, overflow := new(uint256.Int).MulOverflow(&quoted.reserve1, &current.reserve0)
	if overflow {
		return 0, ErrOverflow
	}

	var diff uint256.Int
	if a.Gt(b) {
		diff.Sub(a, b)
	} else {
		diff.Sub(b, a)
	}
	if diff.IsZero() {
		return 0, nil
	}
	if _, overflow = diff.MulOverflow(&diff, bpsDenominator); overflow {
		return 0, ErrOverflow
	}

	q, r := new(uint256.Int), new(uint256.Int)
	q.DivMod(&diff, b, r)
	if !r.IsZero() {
		q.AddUint64(q, 1)
	}
	if !q.IsUint64() {
		return 0, ErrOverflow
	}
	return q.Uint64(), nil
}
