package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/aman-zulfiqar/pairswap/internal/models"
	"github.com/ethereum/go-ethereum/common"
)

var ErrUnknownToken = errors.New("unknown token")

// TokenConfig is one entry of the token list JSON file.
type TokenConfig struct {
	Symbol   string `json:"symbol"`
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
}

// MetadataReader loads token metadata from chain for addresses missing from
// the list.
type MetadataReader interface {
	ReadTokenMetadata(ctx context.Context, token common.Address) (models.Token, error)
}

// Registry holds the known tokens, indexed by symbol and by address.
type Registry struct {
	mu        sync.RWMutex
	bySymbol  map[string]models.Token
	byAddress map[common.Address]models.Token
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		bySymbol:  make(map[string]models.Token),
		byAddress: make(map[common.Address]models.Token),
	}
}

// LoadRegistry reads a token list from a JSON file.
func LoadRegistry(path string) (*Registry, error) {
	toks, err := LoadTokensFromJSON(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokens: %w", err)
	}

	r := NewRegistry()
	for _, t := range toks {
		if err := r.Add(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// LoadTokensFromJSON reads and validates token entries.
func LoadTokensFromJSON(path string) ([]models.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read token list: %w", err)
	}

	var configs []TokenConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	out := make([]models.Token, 0, len(configs))
	for i, cfg := range configs {
		if !common.IsHexAddress(cfg.Address) {
			return nil, fmt.Errorf("token %d (%s): invalid address %q", i, cfg.Symbol, cfg.Address)
		}
		if strings.TrimSpace(cfg.Symbol) == "" {
			return nil, fmt.Errorf("token %d: symbol is required", i)
		}
		out = append(out, models.Token{
			Address:  common.HexToAddress(cfg.Address),
			Decimals: cfg.Decimals,
			Symbol:   cfg.Symbol,
		})
	}
	return out, nil
}

// Add registers a token. Registering a different address under a known
// symbol is an error.
func (r *Registry) Add(t models.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.Symbol != "" {
		key := strings.ToUpper(t.Symbol)
		if prev, ok := r.bySymbol[key]; ok && prev.Address != t.Address {
			return fmt.Errorf("symbol %s already registered for %s", t.Symbol, prev.Key())
		}
		r.bySymbol[key] = t
	}
	r.byAddress[t.Address] = t
	return nil
}

// FindBySymbol looks a token up case-insensitively.
func (r *Registry) FindBySymbol(symbol string) (models.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.bySymbol[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return models.Token{}, fmt.Errorf("%w: %s", ErrUnknownToken, symbol)
	}
	return t, nil
}

// FindByAddress looks a token up by address.
func (r *Registry) FindByAddress(addr common.Address) (models.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byAddress[addr]
	if !ok {
		return models.Token{}, fmt.Errorf("%w: %s", ErrUnknownToken, addr.Hex())
	}
	return t, nil
}

// Resolve accepts a symbol or a hex address. Unlisted addresses are read
// from chain through meta (when non-nil) and cached.
func (r *Registry) Resolve(ctx context.Context, ref string, meta MetadataReader) (models.Token, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return models.Token{}, fmt.Errorf("%w: empty reference", ErrUnknownToken)
	}
	if !common.IsHexAddress(ref) {
		return r.FindBySymbol(ref)
	}

	addr := common.HexToAddress(ref)
	if t, err := r.FindByAddress(addr); err == nil {
		return t, nil
	}
	if meta == nil {
		return models.Token{}, fmt.Errorf("%w: %s", ErrUnknownToken, addr.Hex())
	}

	t, err := meta.ReadTokenMetadata(ctx, addr)
	if err != nil {
		return models.Token{}, fmt.Errorf("read token metadata %s: %w", addr.Hex(), err)
	}
	// A chain symbol may collide with a listed one; keep it addressable by
	// address only in that case.
	if err := r.Add(t); err != nil {
		t.Symbol = ""
		_ = r.Add(t)
	}
	return t, nil
}

// All returns the registered tokens sorted by symbol.
func (r *Registry) All() []models.Token {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Token, 0, len(r.byAddress))
	for _, t := range r.byAddress {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Key() < out[j].Key()
	})
	return out
}

// Count returns the number of registered tokens.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byAddress)
}
