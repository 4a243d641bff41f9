package orchestrator

import (
	"math/big"
	"testing"
	"time"

	"github.com/aman-zulfiqar/pairswap/internal/amm"
	"github.com/aman-zulfiqar/pairswap/internal/pair"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot(t *testing.T, r0, r1 int64) *amm.ReserveSnapshot {
	t.Helper()
	s, err := amm.NewReserveSnapshot(pairAddr, tokenLow, tokenHigh, big.NewInt(r0), big.NewInt(r1), 0, 0, time.Now())
	require.NoError(t, err)
	return s
}

func TestBuildAddLiquidityPlan_ExistingPairSizesTokenB(t *testing.T) {
	snap := testSnapshot(t, 1000, 3000)
	plan, err := BuildAddLiquidityPlan(LiquidityFacts{
		Owner:      owner,
		TokenA:     tokenHigh,
		TokenB:     tokenLow,
		AmountA:    big.NewInt(300),
		Resolution: pair.Resolution{Exists: true, Pair: pairAddr, Token0: tokenLow, Token1: tokenHigh},
		Snapshot:   snap,
	})
	require.NoError(t, err)

	require.Len(t, plan.Steps, 3)
	assert.Equal(t, StepTransfer, plan.Steps[0].Kind)
	assert.Equal(t, tokenHigh, plan.Steps[0].Token)
	assert.Equal(t, pairAddr, plan.Steps[0].Pair)
	assert.Equal(t, int64(300), plan.Steps[0].Amount.Int64())
	assert.True(t, plan.Steps[0].Guarded, "reserves are re-checked before any funds move")

	// 300 of token1 against reserves 1000/3000 needs 100 of token0.
	assert.Equal(t, tokenLow, plan.Steps[1].Token)
	assert.Equal(t, int64(100), plan.Steps[1].Amount.Int64())

	assert.Equal(t, StepMint, plan.Steps[2].Kind)
	assert.Equal(t, owner, plan.Steps[2].To)
	assert.False(t, plan.Steps[1].Guarded)
	assert.False(t, plan.Steps[2].Guarded)
	assert.Same(t, snap, plan.Snapshot)
	for _, s := range plan.Steps {
		assert.Equal(t, StepPending, s.Status)
	}
}

func TestBuildAddLiquidityPlan_NewPair(t *testing.T) {
	plan, err := BuildAddLiquidityPlan(LiquidityFacts{
		Owner:      owner,
		TokenA:     tokenLow,
		TokenB:     tokenHigh,
		AmountA:    big.NewInt(1),
		AmountB:    big.NewInt(2),
		Resolution: pair.Resolution{Token0: tokenLow, Token1: tokenHigh},
	})
	require.NoError(t, err)

	kinds := make([]StepKind, len(plan.Steps))
	for i, s := range plan.Steps {
		kinds[i] = s.Kind
	}
	assert.Equal(t, []StepKind{StepCreatePair, StepTransfer, StepTransfer, StepMint}, kinds)
	assert.Nil(t, plan.Snapshot)
	for _, s := range plan.Steps {
		assert.False(t, s.Guarded, "a new pair has no reserves to move")
	}

	_, err = plan.Steps[1].Call(factory)
	assert.ErrorIs(t, err, ErrPairUnbound)
	_, err = plan.Steps[0].Call(factory)
	assert.NoError(t, err)
}

func TestBuildAddLiquidityPlan_Invalid(t *testing.T) {
	base := LiquidityFacts{Owner: owner, TokenA: tokenLow, TokenB: tokenHigh, AmountA: big.NewInt(10)}

	_, err := BuildAddLiquidityPlan(base)
	assert.ErrorIs(t, err, amm.ErrInvalidAmount, "a new pair needs both amounts")

	f := base
	f.AmountA = big.NewInt(0)
	_, err = BuildAddLiquidityPlan(f)
	assert.ErrorIs(t, err, amm.ErrInvalidAmount)

	f = base
	f.TokenB = tokenLow
	_, err = BuildAddLiquidityPlan(f)
	assert.ErrorIs(t, err, pair.ErrIdenticalTokens)

	f = base
	f.Resolution = pair.Resolution{Exists: true, Pair: pairAddr}
	_, err = BuildAddLiquidityPlan(f)
	assert.Error(t, err, "existing pair without a snapshot")

	f.Snapshot = testSnapshot(t, 0, 0)
	_, err = BuildAddLiquidityPlan(f)
	assert.ErrorIs(t, err, amm.ErrInvalidAmount, "an empty pair has no ratio to size B from")

	f.Snapshot = testSnapshot(t, 1000, 1)
	f.AmountA = big.NewInt(5)
	_, err = BuildAddLiquidityPlan(f)
	assert.ErrorIs(t, err, amm.ErrInvalidAmount, "amount B rounds to zero")
}

func TestBuildSwapPlan_OutputSide(t *testing.T) {
	snap := testSnapshot(t, 1_000_000, 1_000_000)

	for _, tc := range []struct {
		name    string
		in, out common.Address
	}{
		{name: "token0 to token1", in: tokenLow, out: tokenHigh},
		{name: "token1 to token0", in: tokenHigh, out: tokenLow},
	} {
		t.Run(tc.name, func(t *testing.T) {
			in, out := tc.in, tc.out
			q, err := amm.QuoteExactIn(snap, in, out, uint256.NewInt(1000), 30, 100)
			require.NoError(t, err)

			plan, err := BuildSwapPlan(SwapFacts{
				Owner:     owner,
				Quote:     q,
				Allowance: pair.Reading{Token: in, Owner: owner, Spender: pairAddr, Value: big.NewInt(999)},
			})
			require.NoError(t, err)
			require.Len(t, plan.Steps, 3)

			approve := plan.Steps[0]
			assert.Equal(t, StepApprove, approve.Kind)
			assert.Equal(t, pairAddr, approve.Spender)
			assert.Equal(t, int64(1000), approve.Amount.Int64())

			transfer := plan.Steps[1]
			assert.Equal(t, StepTransfer, transfer.Kind)
			assert.Equal(t, in, transfer.Token)
			assert.Equal(t, pairAddr, transfer.Pair)
			assert.Equal(t, int64(1000), transfer.Amount.Int64())
			assert.True(t, transfer.Guarded)

			swap := plan.Steps[2]
			assert.Equal(t, StepSwap, swap.Kind)
			minOut := q.MinimumReceivedBig()
			if out == tokenLow {
				assert.Equal(t, minOut, swap.Amount0Out)
				assert.Zero(t, swap.Amount1Out.Sign())
			} else {
				assert.Zero(t, swap.Amount0Out.Sign())
				assert.Equal(t, minOut, swap.Amount1Out)
			}
			assert.Equal(t, owner, swap.To)
			assert.False(t, swap.Guarded)
		})
	}
}

func TestBuildSwapPlan_Invalid(t *testing.T) {
	_, err := BuildSwapPlan(SwapFacts{})
	assert.Error(t, err)

	snap := testSnapshot(t, 1_000_000, 1_000_000)
	q, err := amm.QuoteExactIn(snap, tokenLow, tokenHigh, uint256.NewInt(1000), 30, 100)
	require.NoError(t, err)

	_, err = BuildSwapPlan(SwapFacts{Owner: owner, Quote: q, Allowance: pair.Reading{Token: tokenHigh, Spender: pairAddr}})
	assert.Error(t, err, "allowance of the wrong token")

	q, err = amm.QuoteExactIn(snap, tokenLow, tokenHigh, uint256.NewInt(1000), 30, amm.BasisPoints)
	require.NoError(t, err)
	_, err = BuildSwapPlan(SwapFacts{Owner: owner, Quote: q, Allowance: pair.Reading{Token: tokenLow, Spender: pairAddr}})
	assert.ErrorIs(t, err, amm.ErrInsufficientOutput)
}

func TestStep_Touched(t *testing.T) {
	approve := Step{Kind: StepApprove, Token: tokenLow}
	assert.Equal(t, tokenLow, approve.Touched()[0])

	swap := Step{Kind: StepSwap, Pair: pairAddr, TokenA: tokenLow, TokenB: tokenHigh}
	assert.ElementsMatch(t, swap.Touched(), []common.Address{pairAddr, tokenLow, tokenHigh})
}
