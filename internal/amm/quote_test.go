package amm

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tokenLow  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	tokenHigh = common.HexToAddress("0x2000000000000000000000000000000000000002")
	pairAddr  = common.HexToAddress("0x3000000000000000000000000000000000000003")
)

func snapshot(t *testing.T, r0, r1 int64) *ReserveSnapshot {
	t.Helper()
	s, err := NewReserveSnapshot(pairAddr, tokenLow, tokenHigh, big.NewInt(r0), big.NewInt(r1), 0, 1, time.Now())
	require.NoError(t, err)
	return s
}

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestQuoteExactIn_Scenario(t *testing.T) {
	snap := snapshot(t, 1000, 1000)

	q, err := QuoteExactIn(snap, tokenLow, tokenHigh, u(100), 30, 50)
	require.NoError(t, err)

	// 100*9970*1000 / (1000*10000 + 100*9970) = 90.66...
	assert.Equal(t, uint64(90), q.AmountOut.Uint64())
	assert.Equal(t, uint64(100), q.AmountIn.Uint64())
	// 90*9950/10000 = 89.55
	assert.Equal(t, uint64(89), q.MinimumReceived.Uint64())
	// (100*1000 - 90*1000)*10000 / (100*1000) = 1000
	assert.Equal(t, uint64(1000), q.PriceImpactBps)
	assert.InDelta(t, 10.0, q.PriceImpactPercent(), 1e-9)
	assert.Same(t, snap, q.Snapshot)
	assert.Equal(t, ExactIn, q.Kind)
}

func TestQuoteExactIn_EmptyPool(t *testing.T) {
	snap := snapshot(t, 0, 1000)

	q, err := QuoteExactIn(snap, tokenLow, tokenHigh, u(100), 30, 50)
	assert.ErrorIs(t, err, ErrEmptyPool)
	assert.Nil(t, q)

	q, err = QuoteExactIn(snap, tokenHigh, tokenLow, u(100), 30, 50)
	assert.ErrorIs(t, err, ErrEmptyPool)
	assert.Nil(t, q)
}

func TestQuoteExactIn_InvalidInputs(t *testing.T) {
	snap := snapshot(t, 1000, 1000)
	other := common.HexToAddress("0x9000000000000000000000000000000000000009")

	_, err := QuoteExactIn(snap, tokenLow, tokenHigh, u(0), 30, 50)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = QuoteExactIn(snap, tokenLow, tokenHigh, nil, 30, 50)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = QuoteExactIn(snap, tokenLow, other, u(10), 30, 50)
	assert.ErrorIs(t, err, ErrUnknownToken)

	_, err = QuoteExactIn(snap, tokenLow, tokenLow, u(10), 30, 50)
	assert.ErrorIs(t, err, ErrIdenticalTokens)

	_, err = QuoteExactIn(snap, tokenLow, tokenHigh, u(10), BasisPoints, 50)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = QuoteExactIn(snap, tokenLow, tokenHigh, u(10), 30, BasisPoints+1)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	// 1 unit into a 1000/1000 pool rounds to nothing.
	_, err = QuoteExactIn(snap, tokenLow, tokenHigh, u(1), 30, 50)
	assert.ErrorIs(t, err, ErrInsufficientOutput)
}

func TestQuoteExactIn_OrderIndependent(t *testing.T) {
	snap := snapshot(t, 5_000_000, 20_000_000)

	fwd, err := QuoteExactIn(snap, tokenLow, tokenHigh, u(10_000), 30, 0)
	require.NoError(t, err)
	rev, err := QuoteExactIn(snap, tokenHigh, tokenLow, u(10_000), 30, 0)
	require.NoError(t, err)

	want, err := GetAmountOut(u(10_000), u(5_000_000), u(20_000_000), 30)
	require.NoError(t, err)
	assert.Equal(t, want, fwd.AmountOut)

	want, err = GetAmountOut(u(10_000), u(20_000_000), u(5_000_000), 30)
	require.NoError(t, err)
	assert.Equal(t, want, rev.AmountOut)
}

func TestGetAmountOut_FeeStrictlyReducesOutput(t *testing.T) {
	reserves := [][2]uint64{
		{1000, 1000},
		{1_000_000, 3_000},
		{7, 1_000_000_000},
		{1 << 40, 1 << 50},
	}
	amounts := []uint64{1, 3, 100, 12_345, 1 << 30}

	for _, r := range reserves {
		for _, a := range amounts {
			out, err := GetAmountOut(u(a), u(r[0]), u(r[1]), 30)
			if err != nil {
				assert.ErrorIs(t, err, ErrInsufficientOutput)
				continue
			}
			// out < amountIn*reserveOut/reserveIn, compared without division.
			lhs := new(uint256.Int).Mul(out, u(r[0]))
			rhs := new(uint256.Int).Mul(u(a), u(r[1]))
			assert.True(t, lhs.Lt(rhs), "reserves=%v in=%d out=%s", r, a, out)
			assert.False(t, out.IsZero())
		}
	}
}

func TestGetAmountOut_MonotonicWithDiminishingReturns(t *testing.T) {
	rIn, rOut := u(1_000_000_000), u(2_000_000_000)

	var prevOut, prevGain *uint256.Int
	for a := uint64(1_000_000); a <= 50_000_000; a += 1_000_000 {
		out, err := GetAmountOut(u(a), rIn, rOut, 30)
		require.NoError(t, err)
		if prevOut != nil {
			require.True(t, out.Gt(prevOut), "output must increase at %d", a)
			gain := new(uint256.Int).Sub(out, prevOut)
			if prevGain != nil {
				assert.False(t, gain.Gt(prevGain), "marginal output must not increase at %d", a)
			}
			prevGain = gain
		}
		prevOut = out
	}
}

func TestQuote_RoundTripNeverProfits(t *testing.T) {
	snap := snapshot(t, 3_000_000, 9_000_000)

	for _, in := range []uint64{100, 5_000, 250_000, 2_999_999} {
		there, err := QuoteExactIn(snap, tokenLow, tokenHigh, u(in), 30, 0)
		require.NoError(t, err)
		back, err := QuoteExactIn(snap, tokenHigh, tokenLow, there.AmountOut, 30, 0)
		require.NoError(t, err)
		assert.False(t, back.AmountOut.Gt(u(in)), "in=%d back=%s", in, back.AmountOut)
	}
}

func TestApplySlippage(t *testing.T) {
	for _, slip := range []uint64{0, 1, 50, 999, 5000, 9999} {
		for _, amount := range []uint64{1, 90, 10_001, 123_456_789} {
			got := ApplySlippage(u(amount), slip)
			if slip == 0 {
				assert.Equal(t, amount, got.Uint64())
				continue
			}
			assert.False(t, got.Gt(u(amount)))
			if amount >= BasisPoints {
				assert.True(t, got.Lt(u(amount)), "slip=%d amount=%d", slip, amount)
			}
		}
	}

	assert.True(t, ApplySlippage(u(1000), BasisPoints).IsZero())

	// Rounds down: 999*9950/10000 = 994.005
	assert.Equal(t, uint64(994), ApplySlippage(u(999), 50).Uint64())

	// Large values do not overflow.
	maxU := new(uint256.Int).SetAllOne()
	got := ApplySlippage(maxU, 1)
	want := new(big.Int).Mul(maxU.ToBig(), big.NewInt(9999))
	want.Div(want, big.NewInt(BasisPoints))
	assert.Equal(t, want, got.ToBig())
}

func TestQuoteExactOut_InvertsForward(t *testing.T) {
	snap := snapshot(t, 1_000_000, 4_000_000)

	for _, want := range []uint64{1, 10, 999, 40_000, 3_000_000} {
		q, err := QuoteExactOut(snap, tokenLow, tokenHigh, u(want), 30, 100)
		require.NoError(t, err)
		assert.Equal(t, ExactOut, q.Kind)
		assert.False(t, q.AmountOut.Lt(u(want)), "forward of the computed input must cover %d", want)

		// One unit less input must not exceed the requested output.
		if q.AmountIn.Uint64() > 1 {
			less := new(uint256.Int).SubUint64(q.AmountIn, 1)
			out, err := GetAmountOut(less, u(1_000_000), u(4_000_000), 30)
			if err == nil {
				assert.False(t, out.Gt(u(want)), "want=%d", want)
			}
		}
	}
}

func TestQuoteExactOut_Limits(t *testing.T) {
	snap := snapshot(t, 1000, 1000)

	_, err := QuoteExactOut(snap, tokenLow, tokenHigh, u(1000), 30, 0)
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)

	_, err = QuoteExactOut(snap, tokenLow, tokenHigh, u(0), 30, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	empty := snapshot(t, 1000, 0)
	_, err = QuoteExactOut(empty, tokenLow, tokenHigh, u(10), 30, 0)
	assert.ErrorIs(t, err, ErrEmptyPool)
}

func TestGetAmountOut_Overflow(t *testing.T) {
	maxU := new(uint256.Int).SetAllOne()
	_, err := GetAmountOut(maxU, u(1000), u(1000), 30)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestProportionalAmount(t *testing.T) {
	got, err := ProportionalAmount(u(500), u(1000), u(3000))
	require.NoError(t, err)
	assert.Equal(t, uint64(1500), got.Uint64())

	got, err = ProportionalAmount(u(1), u(3), u(1))
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	_, err = ProportionalAmount(u(1), u(0), u(1))
	assert.ErrorIs(t, err, ErrEmptyPool)

	_, err = ProportionalAmount(u(0), u(1), u(1))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestDeviationBps(t *testing.T) {
	quoted := snapshot(t, 1000, 2000)

	same := snapshot(t, 2000, 4000)
	d, err := DeviationBps(quoted, same)
	require.NoError(t, err)
	assert.Zero(t, d)

	// Ratio 2.0 -> 2.2 is a 10% move.
	moved := snapshot(t, 1000, 2200)
	d, err = DeviationBps(quoted, moved)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), d)

	// Tiny moves round up so a zero tolerance catches them.
	nudged := snapshot(t, 1_000_000, 2_000_001)
	d, err = DeviationBps(snapshot(t, 1_000_000, 2_000_000), nudged)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), d)

	_, err = DeviationBps(quoted, snapshot(t, 0, 10))
	assert.ErrorIs(t, err, ErrEmptyPool)
}
