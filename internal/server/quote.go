package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aman-zulfiqar/pairswap/internal/amm"
	"github.com/aman-zulfiqar/pairswap/internal/pair"
	"github.com/aman-zulfiqar/pairswap/internal/swapengine"
	"github.com/aman-zulfiqar/pairswap/internal/tokens"
	"github.com/aman-zulfiqar/pairswap/internal/units"
	"github.com/labstack/echo/v4"
)

// Quote prices a trade against the pair's current reserves.
//
//	GET /v1/quote?in=WETH&out=USDC&amount=1.5[&exactOut=true][&slippageBps=50]
func (h *Handlers) Quote(c echo.Context) error {
	in := strings.TrimSpace(c.QueryParam("in"))
	out := strings.TrimSpace(c.QueryParam("out"))
	amount := strings.TrimSpace(c.QueryParam("amount"))

	if in == "" {
		return h.err(c, http.StatusBadRequest, "invalid in", map[string]any{"in": "required"})
	}
	if out == "" {
		return h.err(c, http.StatusBadRequest, "invalid out", map[string]any{"out": "required"})
	}
	if amount == "" {
		return h.err(c, http.StatusBadRequest, "invalid amount", map[string]any{"amount": "required"})
	}

	intent := &swapengine.SwapIntent{InputToken: in, OutputToken: out, Amount: amount}
	if v := strings.TrimSpace(c.QueryParam("exactOut")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return h.err(c, http.StatusBadRequest, "invalid exactOut", map[string]any{"exactOut": "must be boolean"})
		}
		intent.ExactOut = b
	}
	if v := strings.TrimSpace(c.QueryParam("slippageBps")); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil || n > amm.BasisPoints {
			return h.err(c, http.StatusBadRequest, "invalid slippageBps", map[string]any{"slippageBps": "0 to 10000"})
		}
		intent.SlippageBps = &n
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	qr, err := h.Engine.QuoteSwap(ctx, intent)
	if err != nil {
		return h.quoteErr(c, err)
	}

	q := qr.Quote
	return c.JSON(http.StatusOK, QuoteResponse{
		Kind:               q.Kind.String(),
		TokenIn:            qr.TokenIn.Key(),
		TokenOut:           qr.TokenOut.Key(),
		Pair:               strings.ToLower(q.Snapshot.Pair.Hex()),
		AmountIn:           qr.AmountIn,
		AmountOut:          qr.AmountOut,
		MinimumReceived:    qr.MinimumReceived,
		AmountInRaw:        q.AmountIn.Dec(),
		AmountOutRaw:       q.AmountOut.Dec(),
		MinimumReceivedRaw: q.MinimumReceived.Dec(),
		PriceImpactBps:     q.PriceImpactBps,
		FeeBps:             q.FeeBps,
		SlippageBps:        q.SlippageBps,
		QuotedAt:           qr.QuotedAt,
	})
}

// Pair resolves a token pair and returns its reserves.
//
//	GET /v1/pairs?a=WETH&b=USDC
func (h *Handlers) Pair(c echo.Context) error {
	a := strings.TrimSpace(c.QueryParam("a"))
	b := strings.TrimSpace(c.QueryParam("b"))
	if a == "" || b == "" {
		return h.err(c, http.StatusBadRequest, "invalid tokens", map[string]any{"a": "required", "b": "required"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	info, err := h.Engine.ResolvePair(ctx, a, b)
	if err != nil {
		return h.quoteErr(c, err)
	}

	resp := PairResponse{
		Exists: info.Resolution.Exists,
		TokenA: info.TokenA.Key(),
		TokenB: info.TokenB.Key(),
	}
	resp.ReserveA, resp.ReserveB = "0", "0"
	if info.Resolution.Exists {
		resp.Pair = strings.ToLower(info.Resolution.Pair.Hex())
		resp.Token0 = strings.ToLower(info.Resolution.Token0.Hex())
		resp.Token1 = strings.ToLower(info.Resolution.Token1.Hex())
	}
	if info.Snapshot != nil {
		ra, rb, err := info.Snapshot.Oriented(info.TokenA.Address, info.TokenB.Address)
		if err == nil {
			resp.ReserveA = units.FromNative(ra.ToBig(), info.TokenA.Decimals)
			resp.ReserveB = units.FromNative(rb.ToBig(), info.TokenB.Decimals)
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// quoteErr maps pricing and lookup errors to status codes.
func (h *Handlers) quoteErr(c echo.Context, err error) error {
	details := map[string]any{"err": err.Error()}
	switch {
	case errors.Is(err, swapengine.ErrInvalidIntent),
		errors.Is(err, amm.ErrInvalidAmount),
		errors.Is(err, amm.ErrInvalidParameter),
		errors.Is(err, units.ErrTooPrecise),
		errors.Is(err, tokens.ErrUnknownToken),
		errors.Is(err, pair.ErrIdenticalTokens),
		errors.Is(err, pair.ErrZeroAddress):
		return h.err(c, http.StatusBadRequest, "invalid request", details)
	case errors.Is(err, pair.ErrPairNotFound):
		return h.err(c, http.StatusNotFound, "pair not found", details)
	case errors.Is(err, amm.ErrEmptyPool),
		errors.Is(err, amm.ErrInsufficientLiquidity),
		errors.Is(err, amm.ErrInsufficientOutput),
		errors.Is(err, amm.ErrOverflow):
		return h.err(c, http.StatusUnprocessableEntity, "cannot quote", details)
	default:
		h.Logger.WithError(err).Warn("quote failed")
		return h.err(c, http.StatusBadGateway, "chain read failed", details)
	}
}
