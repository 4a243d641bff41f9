package pair

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	low     = common.HexToAddress("0x1000000000000000000000000000000000000001")
	high    = common.HexToAddress("0x2000000000000000000000000000000000000002")
	pairA   = common.HexToAddress("0x3000000000000000000000000000000000000003")
	factory = common.HexToAddress("0x4000000000000000000000000000000000000004")
	owner   = common.HexToAddress("0x5000000000000000000000000000000000000005")
)

type fakeReader struct {
	mu           sync.Mutex
	pair         common.Address
	factoryCalls int
	factoryErr   error
	r0, r1       *big.Int
	balance      *big.Int
	allowance    *big.Int
}

func (f *fakeReader) ReadFactoryPair(_ context.Context, _, a, b common.Address) (common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.factoryCalls++
	if f.factoryErr != nil {
		return common.Address{}, f.factoryErr
	}
	return f.pair, nil
}

func (f *fakeReader) ReadPairTokens(context.Context, common.Address) (common.Address, common.Address, error) {
	return low, high, nil
}

func (f *fakeReader) ReadPairReserves(context.Context, common.Address) (*big.Int, *big.Int, uint32, error) {
	return f.r0, f.r1, 42, nil
}

func (f *fakeReader) ReadBalance(context.Context, common.Address, common.Address) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeReader) ReadAllowance(context.Context, common.Address, common.Address, common.Address) (*big.Int, error) {
	return f.allowance, nil
}

func newResolver(f *fakeReader) *Resolver {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewResolver(f, factory, logger)
}

func TestSortTokens(t *testing.T) {
	t0, t1, err := SortTokens(high, low)
	require.NoError(t, err)
	assert.Equal(t, low, t0)
	assert.Equal(t, high, t1)

	t0, t1, err = SortTokens(low, high)
	require.NoError(t, err)
	assert.Equal(t, low, t0)
	assert.Equal(t, high, t1)

	_, _, err = SortTokens(low, low)
	assert.ErrorIs(t, err, ErrIdenticalTokens)

	_, _, err = SortTokens(low, common.Address{})
	assert.ErrorIs(t, err, ErrZeroAddress)
}

func TestResolve_ZeroAddressMeansNoPair(t *testing.T) {
	f := &fakeReader{}
	r := newResolver(f)

	res, err := r.Resolve(context.Background(), high, low)
	require.NoError(t, err)
	assert.False(t, res.Exists)
	assert.Equal(t, common.Address{}, res.Pair)
	assert.Equal(t, low, res.Token0)
	assert.Equal(t, high, res.Token1)

	// Negative answers are not cached.
	_, err = r.Resolve(context.Background(), low, high)
	require.NoError(t, err)
	assert.Equal(t, 2, f.factoryCalls)

	_, err = r.SnapshotFor(context.Background(), low, high)
	assert.ErrorIs(t, err, ErrPairNotFound)
}

func TestResolve_CachesExistingPair(t *testing.T) {
	f := &fakeReader{pair: pairA}
	r := newResolver(f)

	for i := 0; i < 3; i++ {
		res, err := r.Resolve(context.Background(), low, high)
		require.NoError(t, err)
		assert.True(t, res.Exists)
		assert.Equal(t, pairA, res.Pair)
	}
	assert.Equal(t, 1, f.factoryCalls)
}

func TestResolve_PairCreatedAfterMiss(t *testing.T) {
	f := &fakeReader{}
	r := newResolver(f)

	res, err := r.Resolve(context.Background(), low, high)
	require.NoError(t, err)
	require.False(t, res.Exists)

	f.pair = pairA
	res, err = r.Resolve(context.Background(), low, high)
	require.NoError(t, err)
	assert.True(t, res.Exists)
	assert.Equal(t, pairA, res.Pair)
}

func TestResolve_ReadError(t *testing.T) {
	f := &fakeReader{factoryErr: errors.New("boom")}
	r := newResolver(f)

	_, err := r.Resolve(context.Background(), low, high)
	assert.ErrorContains(t, err, "boom")
}

func TestSnapshot_EpochTracksInvalidation(t *testing.T) {
	f := &fakeReader{pair: pairA, r0: big.NewInt(1000), r1: big.NewInt(2000)}
	r := newResolver(f)

	snap, err := r.SnapshotFor(context.Background(), high, low)
	require.NoError(t, err)
	assert.Equal(t, low, snap.Token0)
	assert.Equal(t, uint32(42), snap.BlockTimestampLast)
	assert.True(t, r.IsCurrent(snap))

	r.Invalidate(low)
	assert.True(t, r.IsCurrent(snap), "a token write does not touch pair reserves")

	r.Invalidate(pairA)
	assert.False(t, r.IsCurrent(snap))

	fresh, err := r.Snapshot(context.Background(), pairA)
	require.NoError(t, err)
	assert.True(t, r.IsCurrent(fresh))
	assert.False(t, r.IsCurrent(nil))
}

func TestReadings_AreEpochStamped(t *testing.T) {
	f := &fakeReader{balance: big.NewInt(7), allowance: big.NewInt(3)}
	r := newResolver(f)

	bal, err := r.Balance(context.Background(), low, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(7), bal.Value.Int64())

	allow, err := r.Allowance(context.Background(), low, owner, pairA)
	require.NoError(t, err)
	assert.Equal(t, pairA, allow.Spender)
	assert.True(t, r.IsCurrentReading(allow))

	r.Invalidate(low, common.Address{})
	assert.False(t, r.IsCurrentReading(bal))
	assert.False(t, r.IsCurrentReading(allow))
	assert.Zero(t, r.Epoch(common.Address{}))
}
