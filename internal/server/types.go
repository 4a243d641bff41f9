package server

import "time"

// ErrorResponse represents a standardized error response format
type ErrorResponse struct {
	Error   string `json:"error"`             // Human-readable error message
	Code    int    `json:"code"`              // HTTP status code
	Details any    `json:"details,omitempty"` // Additional error details (dev mode only)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	OK     bool              `json:"ok"`
	Checks map[string]string `json:"checks,omitempty"`
}

// TokenResponse is one registry entry.
type TokenResponse struct {
	Symbol   string `json:"symbol"`
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
}

// QuoteResponse is a priced trade. Raw amounts are native integers as
// decimal strings; the others are display forms.
type QuoteResponse struct {
	Kind               string    `json:"kind"`
	TokenIn            string    `json:"token_in"`
	TokenOut           string    `json:"token_out"`
	Pair               string    `json:"pair"`
	AmountIn           string    `json:"amount_in"`
	AmountOut          string    `json:"amount_out"`
	MinimumReceived    string    `json:"minimum_received"`
	AmountInRaw        string    `json:"amount_in_raw"`
	AmountOutRaw       string    `json:"amount_out_raw"`
	MinimumReceivedRaw string    `json:"minimum_received_raw"`
	PriceImpactBps     uint64    `json:"price_impact_bps"`
	FeeBps             uint64    `json:"fee_bps"`
	SlippageBps        uint64    `json:"slippage_bps"`
	QuotedAt           time.Time `json:"quoted_at"`
}

// PairResponse describes a token pair.
type PairResponse struct {
	Exists   bool   `json:"exists"`
	Pair     string `json:"pair,omitempty"`
	Token0   string `json:"token0,omitempty"`
	Token1   string `json:"token1,omitempty"`
	TokenA   string `json:"token_a"`
	TokenB   string `json:"token_b"`
	ReserveA string `json:"reserve_a"`
	ReserveB string `json:"reserve_b"`
}

// FlagUpsertRequest represents a request to create or update a feature flag
type FlagUpsertRequest struct {
	Key   string `json:"key"`   // Flag key (must match regex pattern)
	Value bool   `json:"value"` // Flag value (true/false)
}

// FlagUpdateRequest represents a request to update an existing feature flag
type FlagUpdateRequest struct {
	Value bool `json:"value"` // New flag value
}
