package units

import (
	"math/big"
	"strings"
	"testing"

	"github.com/aman-zulfiqar/pairswap/internal/amm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToNative(t *testing.T) {
	tests := []struct {
		in       string
		decimals uint8
		want     string
	}{
		{"1", 18, "1000000000000000000"},
		{"1.5", 6, "1500000"},
		{"0.000001", 6, "1"},
		{" 42 ", 0, "42"},
		{"123456789.123456789123456789", 18, "123456789123456789123456789"},
	}

	for _, tt := range tests {
		got, err := ToNative(tt.in, tt.decimals)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got.String(), tt.in)
	}
}

func TestToNative_Rejects(t *testing.T) {
	for _, in := range []string{"", "abc", "0", "-1", "0.0"} {
		_, err := ToNative(in, 18)
		assert.ErrorIs(t, err, amm.ErrInvalidAmount, in)
	}

	_, err := ToNative("0.0000001", 6)
	assert.ErrorIs(t, err, ErrTooPrecise)
}

func TestToNative_RejectsExponentAndOverflow(t *testing.T) {
	for _, in := range []string{"1e900000000", "1E18", "2.5e-3"} {
		_, err := ToNative(in, 18)
		assert.ErrorIs(t, err, amm.ErrInvalidAmount, in)
	}

	tooLong := strings.Repeat("9", 79)
	_, err := ToNative(tooLong, 0)
	assert.ErrorIs(t, err, amm.ErrInvalidAmount)

	// 78 digits fit the length check but not 256 bits once scaled.
	_, err = ToNative(strings.Repeat("9", 78), 18)
	assert.ErrorIs(t, err, amm.ErrInvalidAmount)

	maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	got, err := ToNative(maxUint256.String(), 0)
	require.NoError(t, err)
	assert.Equal(t, maxUint256, got)

	got, err = ToNative("1.50000000000000000000000000", 6)
	require.NoError(t, err)
	assert.Equal(t, "1500000", got.String())
}

func TestFromNative(t *testing.T) {
	v, _ := new(big.Int).SetString("1500000000000000000", 10)
	assert.Equal(t, "1.5", FromNative(v, 18))
	assert.Equal(t, "0.000001", FromNative(big.NewInt(1), 6))
	assert.Equal(t, "0", FromNative(nil, 6))
	assert.Equal(t, "90 USDC", Format(big.NewInt(90_000_000), 6, "USDC"))
}
