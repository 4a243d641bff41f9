package amm

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReserveSnapshot_RequiresOrderedTokens(t *testing.T) {
	_, err := NewReserveSnapshot(pairAddr, tokenHigh, tokenLow, big.NewInt(1), big.NewInt(1), 0, 0, time.Now())
	assert.ErrorIs(t, err, ErrUnorderedTokens)

	_, err = NewReserveSnapshot(pairAddr, tokenLow, tokenLow, big.NewInt(1), big.NewInt(1), 0, 0, time.Now())
	assert.ErrorIs(t, err, ErrUnorderedTokens)
}

func TestNewReserveSnapshot_RejectsBadReserves(t *testing.T) {
	_, err := NewReserveSnapshot(pairAddr, tokenLow, tokenHigh, big.NewInt(-1), big.NewInt(1), 0, 0, time.Now())
	assert.ErrorIs(t, err, ErrInvalidAmount)

	huge := new(big.Int).Lsh(big.NewInt(1), 300)
	_, err = NewReserveSnapshot(pairAddr, tokenLow, tokenHigh, big.NewInt(1), huge, 0, 0, time.Now())
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestReserveSnapshot_CopiesAreIndependent(t *testing.T) {
	s := snapshot(t, 1000, 2000)

	r0 := s.Reserve0()
	r0.SetUint64(1)
	assert.Equal(t, uint64(1000), s.Reserve0().Uint64())

	in, out, err := s.Oriented(tokenHigh, tokenLow)
	require.NoError(t, err)
	in.SetUint64(0)
	out.SetUint64(0)
	assert.False(t, s.IsEmpty())

	b0, b1 := s.Reserves()
	assert.Equal(t, int64(1000), b0.Int64())
	assert.Equal(t, int64(2000), b1.Int64())
}

func TestReserveSnapshot_ReserveOf(t *testing.T) {
	s := snapshot(t, 10, 20)

	r, err := s.ReserveOf(tokenHigh)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), r.Uint64())

	_, err = s.ReserveOf(pairAddr)
	assert.ErrorIs(t, err, ErrUnknownToken)
	assert.True(t, s.Has(tokenLow))
	assert.False(t, s.Has(pairAddr))
}
