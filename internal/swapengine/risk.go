package swapengine

import (
	"fmt"
	"math/big"

	"github.com/aman-zulfiqar/pairswap/internal/amm"
	"github.com/aman-zulfiqar/pairswap/internal/models"
)

// RiskConfig defines risk management parameters
type RiskConfig struct {
	// Price impact limits
	MaxPriceImpactBps uint64 // e.g. 1000 = 10%

	// Slippage constraints
	DefaultSlippageBps uint64 // e.g. 50 = 0.5%
	MaxSlippageBps     uint64

	// Pair fee used for quoting
	FeeBps uint64
}

// DefaultRiskConfig returns conservative risk settings
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		MaxPriceImpactBps:  1000,
		DefaultSlippageBps: 50,
		MaxSlippageBps:     1000,
		FeeBps:             amm.DefaultFeeBps,
	}
}

// RiskManager enforces risk limits
type RiskManager struct {
	config RiskConfig
}

func NewRiskManager(config RiskConfig) *RiskManager {
	return &RiskManager{config: config}
}

func (rm *RiskManager) Config() RiskConfig { return rm.config }

// CheckSwap validates a quoted swap against the limits and the owner's
// fresh balance of the input token. A rejection is a result, not an error.
func (rm *RiskManager) CheckSwap(params *SwapParams, quote *amm.Quote, balance *big.Int) *RiskCheckResult {
	maxImpact := rm.config.MaxPriceImpactBps
	if params.MaxPriceImpactBps > 0 && params.MaxPriceImpactBps < maxImpact {
		maxImpact = params.MaxPriceImpactBps
	}

	result := &RiskCheckResult{
		Allowed:           true,
		MaxSlippageBps:    rm.config.MaxSlippageBps,
		MaxPriceImpactBps: maxImpact,
		ActualImpactBps:   quote.PriceImpactBps,
	}

	// 1. Slippage
	if params.SlippageBps > rm.config.MaxSlippageBps {
		result.Allowed = false
		result.SlippageTooHigh = true
		result.Reason = fmt.Sprintf("slippage %d bps exceeds max %d bps",
			params.SlippageBps, rm.config.MaxSlippageBps)
		return result
	}

	// 2. Price impact
	if quote.PriceImpactBps > maxImpact {
		result.Allowed = false
		result.PriceImpactTooHigh = true
		result.Reason = fmt.Sprintf("price impact %.2f%% exceeds max %.2f%%",
			quote.PriceImpactPercent(), float64(maxImpact)/100)
		return result
	}

	// 3. Balance
	rm.checkBalance(result, params.TokenIn, quote.AmountInBig(), balance)
	return result
}

// CheckLiquidity verifies the owner holds both deposit amounts.
func (rm *RiskManager) CheckLiquidity(tokenA, tokenB models.Token, amountA, amountB, balanceA, balanceB *big.Int) *RiskCheckResult {
	result := &RiskCheckResult{Allowed: true}
	if rm.checkBalance(result, tokenA, amountA, balanceA); !result.Allowed {
		return result
	}
	rm.checkBalance(result, tokenB, amountB, balanceB)
	return result
}

func (rm *RiskManager) checkBalance(result *RiskCheckResult, token models.Token, required, available *big.Int) {
	if available == nil {
		available = new(big.Int)
	}
	if available.Cmp(required) >= 0 {
		return
	}
	result.Allowed = false
	result.InsufficientBalance = true
	result.Required = new(big.Int).Set(required)
	result.Available = new(big.Int).Set(available)
	result.Reason = fmt.Sprintf("insufficient %s balance: need %s, have %s",
		displaySymbol(token), formatUnits(required, token), formatUnits(available, token))
}
