package swapengine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/aman-zulfiqar/pairswap/internal/models"
	"github.com/aman-zulfiqar/pairswap/internal/tokens"
	"github.com/aman-zulfiqar/pairswap/internal/units"
)

var ErrInvalidIntent = errors.New("invalid intent")

// DecisionEngine turns user intents into validated parameters.
type DecisionEngine struct {
	risk     RiskConfig
	registry *tokens.Registry
	meta     tokens.MetadataReader
	now      func() time.Time
}

func NewDecisionEngine(risk RiskConfig, registry *tokens.Registry, meta tokens.MetadataReader) *DecisionEngine {
	return &DecisionEngine{risk: risk, registry: registry, meta: meta, now: time.Now}
}

func (de *DecisionEngine) ValidateIntent(intent *SwapIntent) error {
	if intent == nil {
		return fmt.Errorf("%w: intent is nil", ErrInvalidIntent)
	}
	if strings.TrimSpace(intent.InputToken) == "" || strings.TrimSpace(intent.OutputToken) == "" {
		return fmt.Errorf("%w: input/output token required", ErrInvalidIntent)
	}
	if strings.EqualFold(strings.TrimSpace(intent.InputToken), strings.TrimSpace(intent.OutputToken)) {
		return fmt.Errorf("%w: input and output token must differ", ErrInvalidIntent)
	}
	if strings.TrimSpace(intent.Amount) == "" {
		return fmt.Errorf("%w: amount required", ErrInvalidIntent)
	}
	return nil
}

func (de *DecisionEngine) EnrichIntent(intent *SwapIntent) {
	if intent.RequestedAt.IsZero() {
		intent.RequestedAt = de.now()
	}
	if intent.SlippageBps == nil {
		v := de.risk.DefaultSlippageBps
		intent.SlippageBps = &v
	}
	if intent.MaxPriceImpactBps == nil {
		v := de.risk.MaxPriceImpactBps
		intent.MaxPriceImpactBps = &v
	}
}

// ParseIntent resolves both tokens and converts the amount to native units
// of the side it fixes.
func (de *DecisionEngine) ParseIntent(ctx context.Context, intent *SwapIntent) (*SwapParams, error) {
	if err := de.ValidateIntent(intent); err != nil {
		return nil, err
	}
	de.EnrichIntent(intent)

	in, err := de.registry.Resolve(ctx, intent.InputToken, de.meta)
	if err != nil {
		return nil, fmt.Errorf("input token: %w", err)
	}
	out, err := de.registry.Resolve(ctx, intent.OutputToken, de.meta)
	if err != nil {
		return nil, fmt.Errorf("output token: %w", err)
	}
	if in.Equal(out) {
		return nil, fmt.Errorf("%w: input and output token must differ", ErrInvalidIntent)
	}

	fixed := in
	if intent.ExactOut {
		fixed = out
	}
	amount, err := units.ToNative(intent.Amount, fixed.Decimals)
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}

	return &SwapParams{
		TokenIn:           in,
		TokenOut:          out,
		Amount:            amount,
		ExactOut:          intent.ExactOut,
		SlippageBps:       *intent.SlippageBps,
		MaxPriceImpactBps: *intent.MaxPriceImpactBps,
		Intent:            intent,
		ParsedAt:          de.now(),
	}, nil
}

// ParseLiquidity resolves an add-liquidity request.
func (de *DecisionEngine) ParseLiquidity(ctx context.Context, intent *LiquidityIntent) (*LiquidityParams, error) {
	if intent == nil {
		return nil, fmt.Errorf("%w: intent is nil", ErrInvalidIntent)
	}
	a, err := de.registry.Resolve(ctx, intent.TokenA, de.meta)
	if err != nil {
		return nil, fmt.Errorf("token A: %w", err)
	}
	b, err := de.registry.Resolve(ctx, intent.TokenB, de.meta)
	if err != nil {
		return nil, fmt.Errorf("token B: %w", err)
	}
	if a.Equal(b) {
		return nil, fmt.Errorf("%w: tokens must differ", ErrInvalidIntent)
	}

	amountA, err := units.ToNative(intent.AmountA, a.Decimals)
	if err != nil {
		return nil, fmt.Errorf("amount A: %w", err)
	}
	params := &LiquidityParams{TokenA: a, TokenB: b, AmountA: amountA}
	if strings.TrimSpace(intent.AmountB) != "" {
		if params.AmountB, err = units.ToNative(intent.AmountB, b.Decimals); err != nil {
			return nil, fmt.Errorf("amount B: %w", err)
		}
	}
	return params, nil
}

func formatUnits(amount *big.Int, t models.Token) string {
	return units.Format(amount, t.Decimals, t.Symbol)
}

func displaySymbol(t models.Token) string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return t.Key()
}
