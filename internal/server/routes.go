package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// RegisterRoutes configures all API routes, middleware, and error handlers
func RegisterRoutes(e *echo.Echo, h *Handlers, cfg ServerConfig) {
	// Set custom error handler for consistent JSON responses
	e.HTTPErrorHandler = NotFoundJSON()

	e.Use(CountRequests)

	// Prometheus scrapes without the API key and outside the JSON middleware
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/v1")
	v1.Use(SetJSONContentType) // Ensure all responses are JSON
	v1.Use(SetNoCacheHeaders)  // Prevent caching of API responses

	// Optional API key authentication
	if cfg.APIKey != "" {
		v1.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:X-API-Key", // Look for API key in X-API-Key header
			Validator: func(key string, c echo.Context) (bool, error) {
				return key == cfg.APIKey, nil
			},
		}))
	}

	v1.GET("/health", h.Health)
	v1.GET("/tokens", h.TokensList)
	v1.GET("/sessions/recent", h.RecentSessions)
	v1.GET("/sessions/history", h.StepHistory)

	// Quotes and pair lookups hit the RPC node, so they are rate limited
	limiter := middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(cfg.QuoteRateLimit),
		Burst:     cfg.QuoteBurst,
		ExpiresIn: 2 * time.Minute,
	}))
	v1.GET("/quote", h.Quote, limiter)
	v1.GET("/pairs", h.Pair, limiter)

	// Kill switches CRUD
	if h.Flags != nil {
		flagGroup := v1.Group("/flags")
		flagGroup.GET("", h.FlagsList)
		flagGroup.POST("", h.FlagsUpsert)
		flagGroup.GET("/:key", h.FlagsGet)
		flagGroup.PUT("/:key", h.FlagsUpdate)
		flagGroup.DELETE("/:key", h.FlagsDelete)
	}

	// Catch-all route for 404 responses
	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Code: http.StatusNotFound})
	})
}
