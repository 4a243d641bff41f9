// ============================================================================
// cmd/subscriber/main.go - Session event subscriber (consumer)
// ============================================================================
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/aman-zulfiqar/pairswap/internal/cache"
	"github.com/aman-zulfiqar/pairswap/internal/config"
	"github.com/aman-zulfiqar/pairswap/internal/models"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Usage: subscriber [session-id]
// With no argument every session is tailed; with one, only that session.
func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("PAIRSWAP_CONFIG"))
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisCache, err := cache.NewRedisCache(ctx, cache.RedisConfig{Addr: cfg.RedisAddr, Logger: logger})
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to Redis")
	}
	defer redisCache.Close()

	logger.Info("👂 Starting session subscriber...")

	if len(os.Args) > 1 {
		id := os.Args[1]
		events, err := redisCache.SubscribeSession(ctx, id)
		if err != nil {
			logger.WithError(err).Fatal("failed to subscribe")
		}
		logger.WithField("session", id).Info("✅ Subscriber running. Press Ctrl+C to stop.")
		for ev := range events {
			logEvent(logger, ev)
			if ev.Terminal() || ev.State == "idle" {
				logger.WithField("state", ev.State).Info("session finished")
				return
			}
		}
		return
	}

	logger.Info("✅ Subscriber running. Press Ctrl+C to stop.")
	err = redisCache.Listen(ctx, func(ev *models.SessionEvent) {
		logEvent(logger, ev)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Fatal("subscription failed")
	}
	logger.Info("🛑 Shutting down subscriber...")
}

func logEvent(logger *logrus.Logger, ev *models.SessionEvent) {
	fields := logrus.Fields{
		"session": ev.SessionID,
		"plan":    ev.PlanKind,
		"state":   ev.State,
	}
	if ev.StepCount > 0 {
		fields["step"] = ev.StepIndex + 1
		fields["of"] = ev.StepCount
		fields["kind"] = ev.StepKind
		fields["status"] = ev.StepStatus
	}
	if ev.TxHash != "" {
		fields["tx"] = ev.TxHash
	}
	if ev.Reason != "" {
		fields["reason"] = ev.Reason
		logger.WithFields(fields).Warn("📨 session event")
		return
	}
	logger.WithFields(fields).Info("📨 session event")
}
