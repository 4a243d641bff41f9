package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/aman-zulfiqar/pairswap/internal/cache"
	"github.com/aman-zulfiqar/pairswap/internal/config"
	"github.com/aman-zulfiqar/pairswap/internal/flags"
	"github.com/aman-zulfiqar/pairswap/internal/server"
	"github.com/aman-zulfiqar/pairswap/internal/swapengine"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// env bootstrap function
func loadEnv(logger *logrus.Logger) {
	// Get the project root directory (where go.mod is)
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	envPath := filepath.Join(projectRoot, ".env")

	if err := godotenv.Load(envPath); err != nil {
		logger.Warnf("no .env file found at %s, using system environment variables", envPath)
	} else {
		logger.Infof("loaded .env from %s", envPath)
	}
}

// main is the entry point for the API server
// It serves quotes, pair lookups, the session feed and kill switches
func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logger.SetLevel(logrus.InfoLevel)

	// load .env BEFORE anything reads the environment
	loadEnv(logger)

	cfg, err := config.Load(os.Getenv("PAIRSWAP_CONFIG"))
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	logger.SetLevel(cfg.Level())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	// The API only quotes; it never signs
	ec := cfg.EngineConfig(logger)
	ec.WalletPrivateKey = ""
	ec.RedisAddr = ""
	ec.ClickHouseAddr = ""
	engine, err := swapengine.NewEngine(ctx, ec)
	if err != nil {
		logger.WithError(err).Fatal("failed to create swap engine")
	}
	defer func() {
		_ = engine.Close()
	}()

	h := &server.Handlers{
		Engine:  engine,
		Tokens:  engine.Tokens(),
		DevMode: cfg.DevMode,
		Logger:  logger,
	}

	// Redis: session feed and kill switches (optional)
	if cfg.RedisAddr != "" {
		redisCache, err := cache.NewRedisCache(ctx, cache.RedisConfig{Addr: cfg.RedisAddr, Logger: logger})
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to Redis")
		}
		defer func() {
			_ = redisCache.Close()
		}()

		flagStore, err := flags.NewStore(redisCache.Client())
		if err != nil {
			logger.WithError(err).Fatal("failed to create flags store")
		}
		h.Cache = redisCache
		h.Flags = flagStore
	}

	// ClickHouse: step history (optional)
	if cfg.ClickHouseAddr != "" {
		history, err := cache.NewClickHouseStore(ctx, cache.ClickHouseConfig{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
			Logger:   logger,
		})
		if err != nil {
			logger.WithError(err).Warn("clickhouse unavailable, history endpoint disabled")
		} else {
			defer func() {
				_ = history.Close()
			}()
			h.History = history
		}
	}

	srv, err := server.NewServer(server.ServerDeps{
		Handlers: h,
		Config: server.ServerConfig{
			Addr:           cfg.APIAddr,
			DevMode:        cfg.DevMode,
			APIKey:         cfg.APIKey,
			QuoteRateLimit: cfg.QuoteRateLimit,
			QuoteBurst:     cfg.QuoteBurst,
		},
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create http server")
	}

	// Setup graceful shutdown in a separate goroutine
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
		_ = srv.Shutdown(context.Background())
	}()

	logger.WithFields(logrus.Fields{
		"addr":    cfg.APIAddr,
		"factory": cfg.FactoryAddress,
		"tokens":  engine.Tokens().Count(),
	}).Info("api server starting")
	if err := srv.Start(); err != nil {
		// expected during graceful shutdown
		if errors.Is(err, http.ErrServerClosed) {
			if err := srv.WaitClosed(context.Background()); err != nil {
				fmt.Println(err)
			}
			return
		}
		logger.WithError(err).Fatal("api server failed")
	}
}
