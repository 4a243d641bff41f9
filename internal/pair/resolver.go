package pair

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/aman-zulfiqar/pairswap/internal/amm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

var (
	ErrPairNotFound    = errors.New("pair not found")
	ErrIdenticalTokens = errors.New("identical token addresses")
	ErrZeroAddress     = errors.New("zero token address")
)

// ChainReader is the read side of the chain client.
type ChainReader interface {
	ReadFactoryPair(ctx context.Context, factory, tokenA, tokenB common.Address) (common.Address, error)
	ReadPairTokens(ctx context.Context, pair common.Address) (common.Address, common.Address, error)
	ReadPairReserves(ctx context.Context, pair common.Address) (*big.Int, *big.Int, uint32, error)
	ReadBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	ReadAllowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
}

// Resolution is the factory's answer for a token pair.
type Resolution struct {
	Exists bool
	Pair   common.Address
	Token0 common.Address
	Token1 common.Address
}

// Reading is a balance or allowance stamped with the token's write epoch.
type Reading struct {
	Token   common.Address
	Owner   common.Address
	Spender common.Address // zero for balances
	Value   *big.Int
	Epoch   uint64
}

// Resolver maps token pairs to pair contracts and hands out epoch-stamped
// reads. It is safe for concurrent use.
type Resolver struct {
	reader  ChainReader
	factory common.Address
	logger  *logrus.Logger
	now     func() time.Time

	mu     sync.RWMutex
	pairs  map[[2]common.Address]Resolution
	epochs map[common.Address]uint64
}

func NewResolver(reader ChainReader, factory common.Address, logger *logrus.Logger) *Resolver {
	if logger == nil {
		logger = logrus.New()
	}
	return &Resolver{
		reader:  reader,
		factory: factory,
		logger:  logger,
		now:     time.Now,
		pairs:   make(map[[2]common.Address]Resolution),
		epochs:  make(map[common.Address]uint64),
	}
}

// Factory returns the factory this resolver queries.
func (r *Resolver) Factory() common.Address { return r.factory }

// SortTokens orders two token addresses the way the pair contract does.
func SortTokens(a, b common.Address) (common.Address, common.Address, error) {
	if a == b {
		return common.Address{}, common.Address{}, fmt.Errorf("%w: %s", ErrIdenticalTokens, a.Hex())
	}
	if a == (common.Address{}) || b == (common.Address{}) {
		return common.Address{}, common.Address{}, ErrZeroAddress
	}
	if bytes.Compare(a.Bytes(), b.Bytes()) < 0 {
		return a, b, nil
	}
	return b, a, nil
}

// Resolve asks the factory for the pair of a and b, in either order.
// Only existing pairs are cached: a missing pair can be created at any time.
func (r *Resolver) Resolve(ctx context.Context, a, b common.Address) (Resolution, error) {
	t0, t1, err := SortTokens(a, b)
	if err != nil {
		return Resolution{}, err
	}
	key := [2]common.Address{t0, t1}

	r.mu.RLock()
	cached, ok := r.pairs[key]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	addr, err := r.reader.ReadFactoryPair(ctx, r.factory, t0, t1)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve pair %s/%s: %w", t0.Hex(), t1.Hex(), err)
	}

	// The factory answers the zero address for "no pair".
	if addr == (common.Address{}) {
		return Resolution{Exists: false, Token0: t0, Token1: t1}, nil
	}

	res := Resolution{Exists: true, Pair: addr, Token0: t0, Token1: t1}
	r.mu.Lock()
	r.pairs[key] = res
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"pair":   addr.Hex(),
		"token0": t0.Hex(),
		"token1": t1.Hex(),
	}).Debug("pair resolved")
	return res, nil
}

// Snapshot reads the pair's tokens and reserves. The epoch is captured
// before the read, so an invalidation racing the read leaves the snapshot
// stale rather than falsely current.
func (r *Resolver) Snapshot(ctx context.Context, pair common.Address) (*amm.ReserveSnapshot, error) {
	epoch := r.Epoch(pair)

	t0, t1, err := r.reader.ReadPairTokens(ctx, pair)
	if err != nil {
		return nil, fmt.Errorf("read pair tokens: %w", err)
	}
	r0, r1, ts, err := r.reader.ReadPairReserves(ctx, pair)
	if err != nil {
		return nil, fmt.Errorf("read pair reserves: %w", err)
	}
	return amm.NewReserveSnapshot(pair, t0, t1, r0, r1, ts, epoch, r.now())
}

// SnapshotFor resolves a and b and snapshots their pair. A missing pair is
// ErrPairNotFound.
func (r *Resolver) SnapshotFor(ctx context.Context, a, b common.Address) (*amm.ReserveSnapshot, error) {
	res, err := r.Resolve(ctx, a, b)
	if err != nil {
		return nil, err
	}
	if !res.Exists {
		return nil, fmt.Errorf("%w: %s/%s", ErrPairNotFound, res.Token0.Hex(), res.Token1.Hex())
	}
	return r.Snapshot(ctx, res.Pair)
}

func (r *Resolver) Balance(ctx context.Context, token, owner common.Address) (Reading, error) {
	epoch := r.Epoch(token)
	v, err := r.reader.ReadBalance(ctx, token, owner)
	if err != nil {
		return Reading{}, fmt.Errorf("read balance: %w", err)
	}
	return Reading{Token: token, Owner: owner, Value: v, Epoch: epoch}, nil
}

func (r *Resolver) Allowance(ctx context.Context, token, owner, spender common.Address) (Reading, error) {
	epoch := r.Epoch(token)
	v, err := r.reader.ReadAllowance(ctx, token, owner, spender)
	if err != nil {
		return Reading{}, fmt.Errorf("read allowance: %w", err)
	}
	return Reading{Token: token, Owner: owner, Spender: spender, Value: v, Epoch: epoch}, nil
}

// Invalidate marks every earlier read touching addrs as stale.
func (r *Resolver) Invalidate(addrs ...common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range addrs {
		if a == (common.Address{}) {
			continue
		}
		r.epochs[a]++
	}
}

// Epoch returns the current write epoch of addr.
func (r *Resolver) Epoch(addr common.Address) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.epochs[addr]
}

// IsCurrent reports whether no confirmed write has touched the snapshot's
// pair since it was read.
func (r *Resolver) IsCurrent(s *amm.ReserveSnapshot) bool {
	if s == nil {
		return false
	}
	return r.Epoch(s.Pair) == s.Epoch
}

func (r *Resolver) IsCurrentReading(rd Reading) bool {
	return r.Epoch(rd.Token) == rd.Epoch
}
