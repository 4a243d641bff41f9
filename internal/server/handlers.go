package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aman-zulfiqar/pairswap/internal/flags"
	"github.com/aman-zulfiqar/pairswap/internal/storage"
	"github.com/aman-zulfiqar/pairswap/internal/swapengine"
	"github.com/aman-zulfiqar/pairswap/internal/tokens"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// Quoter is the read-only part of the swap engine the API serves.
type Quoter interface {
	QuoteSwap(ctx context.Context, intent *swapengine.SwapIntent) (*swapengine.QuoteResult, error)
	ResolvePair(ctx context.Context, tokenA, tokenB string) (*swapengine.PairInfo, error)
}

// FlagStore is the kill-switch store.
type FlagStore interface {
	Upsert(ctx context.Context, key string, value bool) (*flags.Flag, error)
	Get(ctx context.Context, key string) (*flags.Flag, error)
	List(ctx context.Context) ([]*flags.Flag, error)
	Delete(ctx context.Context, key string) error
}

// Handlers contains all dependencies for API endpoint handlers
type Handlers struct {
	Engine  Quoter                // Quotes and pair lookups
	Tokens  *tokens.Registry      // Known tokens
	Cache   storage.SessionCache  // Redis-backed session feed (optional)
	History storage.HistoryStore  // ClickHouse step history (optional)
	Flags   FlagStore             // Redis-backed kill switches (optional)
	DevMode bool                  // Enable detailed error responses in development
	Logger  *logrus.Logger        // Structured logger
}

// err returns a standardized JSON error response
// In dev mode, includes additional error details for debugging
func (h *Handlers) err(c echo.Context, code int, msg string, details any) error {
	resp := ErrorResponse{Error: msg, Code: code}
	if h.DevMode && details != nil {
		resp.Details = details
	}
	return c.JSON(code, resp)
}

// withTimeout creates a context with timeout, defaulting to 10 seconds if duration <= 0
func (h *Handlers) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

// Health reports the service and the reachability of its stores.
func (h *Handlers) Health(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{OK: true, Checks: map[string]string{}}
	check := func(name string, ping func(context.Context) error) {
		if err := ping(ctx); err != nil {
			resp.OK = false
			resp.Checks[name] = err.Error()
			return
		}
		resp.Checks[name] = "ok"
	}
	if h.Cache != nil {
		check("redis", h.Cache.Ping)
	}
	if h.History != nil {
		check("clickhouse", h.History.Ping)
	}

	code := http.StatusOK
	if !resp.OK {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}

// TokensList returns the token registry.
func (h *Handlers) TokensList(c echo.Context) error {
	items := []TokenResponse{}
	if h.Tokens != nil {
		for _, t := range h.Tokens.All() {
			items = append(items, TokenResponse{Symbol: t.Symbol, Address: t.Key(), Decimals: t.Decimals})
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// RecentSessions returns the most recent session events, newest first.
// Accepts limit query parameter (default: 50, range: 1-200)
func (h *Handlers) RecentSessions(c echo.Context) error {
	if h.Cache == nil {
		return h.err(c, http.StatusServiceUnavailable, "session feed is not configured", nil)
	}
	limit, err := parseLimit(c, 50, 200)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": err.Error()})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Cache.GetRecentEvents(ctx, int64(limit))
	if err != nil {
		h.Logger.WithError(err).Warn("failed to get recent session events")
		return h.err(c, http.StatusInternalServerError, "failed to get sessions", nil)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// StepHistory returns finished steps from ClickHouse, newest first.
func (h *Handlers) StepHistory(c echo.Context) error {
	if h.History == nil {
		return h.err(c, http.StatusServiceUnavailable, "history is not configured", nil)
	}
	limit, err := parseLimit(c, 100, 1000)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": err.Error()})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	items, err := h.History.RecentSteps(ctx, limit)
	if err != nil {
		h.Logger.WithError(err).Warn("failed to query step history")
		return h.err(c, http.StatusInternalServerError, "failed to get history", nil)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// FlagsUpsert creates or updates a feature flag with the given key and value
// Validates key format and returns the created/updated flag
func (h *Handlers) FlagsUpsert(c echo.Context) error {
	var req FlagUpsertRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	if err := flags.ValidateKey(req.Key); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid key", map[string]any{"key": "invalid format"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	out, err := h.Flags.Upsert(ctx, req.Key, req.Value)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to upsert flag", nil)
	}
	return c.JSON(http.StatusOK, out)
}

// FlagsUpdate updates an existing feature flag with the given key
func (h *Handlers) FlagsUpdate(c echo.Context) error {
	key := c.Param("key")
	if err := flags.ValidateKey(key); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid key", map[string]any{"key": "invalid format"})
	}
	var req FlagUpdateRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	out, err := h.Flags.Upsert(ctx, key, req.Value)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to update flag", nil)
	}
	return c.JSON(http.StatusOK, out)
}

// FlagsGet retrieves a feature flag by its key
// Returns 404 if flag doesn't exist
func (h *Handlers) FlagsGet(c echo.Context) error {
	key := c.Param("key")
	if err := flags.ValidateKey(key); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid key", map[string]any{"key": "invalid format"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	out, err := h.Flags.Get(ctx, key)
	if err != nil {
		if errors.Is(err, flags.ErrNotFound) {
			return h.err(c, http.StatusNotFound, "flag not found", nil)
		}
		return h.err(c, http.StatusInternalServerError, "failed to get flag", nil)
	}
	return c.JSON(http.StatusOK, out)
}

// FlagsList returns all feature flags in the system
func (h *Handlers) FlagsList(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Flags.List(ctx)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to list flags", nil)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// FlagsDelete removes a feature flag by its key
// Returns 204 No Content on successful deletion
func (h *Handlers) FlagsDelete(c echo.Context) error {
	key := c.Param("key")
	if err := flags.ValidateKey(key); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid key", map[string]any{"key": "invalid format"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if err := h.Flags.Delete(ctx, key); err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to delete flag", nil)
	}
	return c.NoContent(http.StatusNoContent)
}

type limitError string

func (e limitError) Error() string { return string(e) }

func parseLimit(c echo.Context, def, max int) (int, error) {
	s := c.QueryParam("limit")
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, limitError("must be an integer")
	}
	if n < 1 || n > max {
		return 0, limitError("min 1 max " + strconv.Itoa(max))
	}
	return n, nil
}
