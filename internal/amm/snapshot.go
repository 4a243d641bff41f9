package amm

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ReserveSnapshot is a read-only view of a pair's reserves at one point in
// time. Token0 always sorts before Token1, matching the ordering the pair
// contract fixes at creation.
//
// Reserves are held by value and only handed out as copies, so a snapshot
// cannot be changed after NewReserveSnapshot returns. Epoch is the write epoch
// of the pair when the reserves were read; see pair.Resolver.IsCurrent.
type ReserveSnapshot struct {
	Pair               common.Address
	Token0             common.Address
	Token1             common.Address
	BlockTimestampLast uint32
	FetchedAt          time.Time
	Epoch              uint64

	reserve0 uint256.Int
	reserve1 uint256.Int
}

// NewReserveSnapshot validates token ordering and converts chain reserves
// into 256-bit integers.
func NewReserveSnapshot(
	pair, token0, token1 common.Address,
	reserve0, reserve1 *big.Int,
	blockTimestampLast uint32,
	epoch uint64,
	fetchedAt time.Time,
) (*ReserveSnapshot, error) {
	if token0.Cmp(token1) >= 0 {
		return nil, fmt.Errorf("%w: %s >= %s", ErrUnorderedTokens, token0.Hex(), token1.Hex())
	}

	r0, err := FromBig(reserve0)
	if err != nil {
		return nil, fmt.Errorf("reserve0: %w", err)
	}
	r1, err := FromBig(reserve1)
	if err != nil {
		return nil, fmt.Errorf("reserve1: %w", err)
	}

	s := &ReserveSnapshot{
		Pair:               pair,
		Token0:             token0,
		Token1:             token1,
		BlockTimestampLast: blockTimestampLast,
		FetchedAt:          fetchedAt,
		Epoch:              epoch,
	}
	s.reserve0.Set(r0)
	s.reserve1.Set(r1)
	return s, nil
}

// Reserve0 returns a copy of the token0 reserve.
func (s *ReserveSnapshot) Reserve0() *uint256.Int { return s.reserve0.Clone() }

// Reserve1 returns a copy of the token1 reserve.
func (s *ReserveSnapshot) Reserve1() *uint256.Int { return s.reserve1.Clone() }

// Reserves returns both reserves as big integers for the chain boundary and
// for display.
func (s *ReserveSnapshot) Reserves() (*big.Int, *big.Int) {
	return s.reserve0.ToBig(), s.reserve1.ToBig()
}

// IsEmpty reports whether either side of the pool is zero.
func (s *ReserveSnapshot) IsEmpty() bool {
	return s.reserve0.IsZero() || s.reserve1.IsZero()
}

// Has reports whether token is one of the two pair tokens.
func (s *ReserveSnapshot) Has(token common.Address) bool {
	return token == s.Token0 || token == s.Token1
}

// ReserveOf returns the reserve held for token.
func (s *ReserveSnapshot) ReserveOf(token common.Address) (*uint256.Int, error) {
	switch token {
	case s.Token0:
		return s.reserve0.Clone(), nil
	case s.Token1:
		return s.reserve1.Clone(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
}

// Oriented returns the reserves arranged as (reserveIn, reserveOut) for a
// trade from tokenIn to tokenOut, in either direction.
func (s *ReserveSnapshot) Oriented(tokenIn, tokenOut common.Address) (*uint256.Int, *uint256.Int, error) {
	if tokenIn == tokenOut {
		return nil, nil, ErrIdenticalTokens
	}
	switch {
	case tokenIn == s.Token0 && tokenOut == s.Token1:
		return s.reserve0.Clone(), s.reserve1.Clone(), nil
	case tokenIn == s.Token1 && tokenOut == s.Token0:
		return s.reserve1.Clone(), s.reserve0.Clone(), nil
	}
	return nil, nil, fmt.Errorf("%w: %s/%s not in pair %s", ErrUnknownToken, tokenIn.Hex(), tokenOut.Hex(), s.Pair.Hex())
}

// FromBig converts a chain amount into a 256-bit integer. Negative or nil
// amounts are ErrInvalidAmount; amounts wider than 256 bits are ErrOverflow.
func FromBig(x *big.Int) (*uint256.Int, error) {
	if x == nil || x.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	v, overflow := uint256.FromBig(x)
	if overflow {
		return nil, ErrOverflow
	}
	return v, nil
}
