package models

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Token is an ERC-20 token resolved from the registry or from chain.
// Addresses compare by bytes, so two tokens are the same entity regardless
// of the hex casing they were written with.
type Token struct {
	Address  common.Address `json:"address"`
	Decimals uint8          `json:"decimals"`
	Symbol   string         `json:"symbol"`
}

// Key is the canonical lower-case hex form of the address.
func (t Token) Key() string {
	return strings.ToLower(t.Address.Hex())
}

func (t Token) Equal(other Token) bool {
	return t.Address == other.Address
}

func (t Token) String() string {
	if t.Symbol == "" {
		return t.Key()
	}
	return fmt.Sprintf("%s (%s)", t.Symbol, t.Key())
}
