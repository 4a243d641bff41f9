package rpc

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Retrier runs chain-access calls with client-side rate limiting and
// exponential backoff. It sits below the orchestrator: callers only ever see
// the final error.
type Retrier struct {
	maxRetries   int
	retryBackoff time.Duration
	maxBackoff   time.Duration
	limiter      *rate.Limiter
	logger       *logrus.Logger
	onRetry      func(method string)

	sleep func(ctx context.Context, d time.Duration) error
}

// RetryConfig holds configuration for the Retrier
type RetryConfig struct {
	MaxRetries   int
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
	RateLimit    float64 // requests per second; 0 disables limiting
	Burst        int
	Logger       *logrus.Logger
	OnRetry      func(method string)
}

// NewRetrier creates a Retrier, filling unset fields with defaults.
func NewRetrier(cfg RetryConfig) *Retrier {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Retrier{
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
		maxBackoff:   cfg.MaxBackoff,
		limiter:      limiter,
		logger:       cfg.Logger,
		onRetry:      cfg.OnRetry,
		sleep:        sleepCtx,
	}
}

// Do calls fn until it succeeds, fails permanently or retries run out.
// Exhausting retries on rate limiting returns an error matching
// ErrRateLimited.
func (r *Retrier) Do(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	var lastErr error
	backoff := r.retryBackoff

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			r.logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"backoff": backoff,
				"method":  method,
			}).WithError(lastErr).Debug("retrying RPC call")
			if r.onRetry != nil {
				r.onRetry(method)
			}

			if err := r.sleep(ctx, backoff); err != nil {
				return err
			}
			backoff *= 2 // exponential backoff
			if backoff > r.maxBackoff {
				backoff = r.maxBackoff
			}
		}

		if err := r.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err
	}

	if IsRateLimited(lastErr) {
		return fmt.Errorf("%w: %s: %w", ErrRateLimited, method, lastErr)
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
