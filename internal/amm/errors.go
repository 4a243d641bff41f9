package amm

import "errors"

// Quote errors. They are returned as values and never panic, since quoting
// runs on every input change.
var (
	ErrEmptyPool             = errors.New("pool has no liquidity")
	ErrInvalidAmount         = errors.New("amount must be a positive integer")
	ErrUnknownToken          = errors.New("token is not part of the pair")
	ErrIdenticalTokens       = errors.New("input and output token are the same")
	ErrInsufficientLiquidity = errors.New("requested output exceeds pool reserves")
	ErrInsufficientOutput    = errors.New("trade produces zero output")
	ErrInvalidParameter      = errors.New("fee or slippage out of range")
	ErrOverflow              = errors.New("uint256 overflow")
	ErrUnorderedTokens       = errors.New("token0 must sort before token1")
)
