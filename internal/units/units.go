// Package units converts between human-readable decimal amounts and the
// integer amounts tokens use on chain. Conversions are exact; there is no
// float64 anywhere in the path.
package units

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/aman-zulfiqar/pairswap/internal/amm"
	"github.com/shopspring/decimal"
)

var ErrTooPrecise = errors.New("amount has more decimals than the token supports")

// maxDigits is the length of the largest uint256 in base 10.
const maxDigits = 78

// ToNative parses a positive decimal string such as "1.5" into the token's
// smallest unit. Exponent notation is refused, and so is anything that
// would not fit in a uint256.
func ToNative(amount string, decimals uint8) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("%w: empty", amm.ErrInvalidAmount)
	}
	if strings.ContainsAny(amount, "eE") {
		return nil, fmt.Errorf("%w: %q uses exponent notation", amm.ErrInvalidAmount, amount)
	}
	whole, frac, _ := strings.Cut(strings.TrimLeft(amount, "+-0"), ".")
	if len(whole) > maxDigits {
		return nil, fmt.Errorf("%w: %s is out of range", amm.ErrInvalidAmount, amount)
	}
	if len(strings.TrimRight(frac, "0")) > int(decimals) {
		return nil, fmt.Errorf("%w: %s with %d decimals", ErrTooPrecise, amount, decimals)
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a number", amm.ErrInvalidAmount, amount)
	}
	if !d.IsPositive() {
		return nil, fmt.Errorf("%w: %s", amm.ErrInvalidAmount, amount)
	}

	scaled := d.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("%w: %s with %d decimals", ErrTooPrecise, amount, decimals)
	}
	out := scaled.BigInt()
	if out.BitLen() > 256 {
		return nil, fmt.Errorf("%w: %s is out of range", amm.ErrInvalidAmount, amount)
	}
	return out, nil
}

// FromNative formats a native amount with the token's decimals, trimming
// trailing zeros.
func FromNative(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}

// Format is FromNative followed by the symbol.
func Format(amount *big.Int, decimals uint8, symbol string) string {
	s := FromNative(amount, decimals)
	if symbol == "" {
		return s
	}
	return s + " " + symbol
}
