package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aman-zulfiqar/pairswap/internal/confirm"
	"github.com/aman-zulfiqar/pairswap/internal/swapengine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var (
	ErrMissingRPCURL  = errors.New("RPC_URL is required")
	ErrBadFactory     = errors.New("FACTORY_ADDRESS must be a hex address")
	ErrMissingKey     = errors.New("WALLET_PRIVATE_KEY is required for write commands")
	ErrBadBasisPoints = errors.New("basis point settings must be at most 10000")
)

type Config struct {
	// Chain settings
	RPCURL         string
	ChainID        int64
	FactoryAddress string
	TokensPath     string

	// Wallet
	WalletPrivateKey string

	// Pricing and risk
	FeeBps             uint64
	DefaultSlippageBps uint64
	MaxSlippageBps     uint64
	MaxPriceImpactBps  uint64

	// Confirmation
	ConfirmTimeout      time.Duration
	ConfirmPollInterval time.Duration

	// RPC client settings
	MaxRetries   int
	RetryBackoff time.Duration
	RPCRateLimit float64

	// Orchestrator
	FreshnessGuard    bool
	StaleToleranceBps uint64

	// Redis settings
	RedisAddr string

	// ClickHouse settings
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string

	// HTTP API
	APIAddr        string
	APIKey         string
	DevMode        bool
	QuoteRateLimit float64
	QuoteBurst     int

	LogLevel string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("rpc_url", "")
	v.SetDefault("chain_id", 1)
	v.SetDefault("factory_address", "")
	v.SetDefault("tokens_path", "")
	v.SetDefault("wallet_private_key", "")

	v.SetDefault("fee_bps", 30)
	v.SetDefault("default_slippage_bps", 50)
	v.SetDefault("max_slippage_bps", 1000)
	v.SetDefault("max_price_impact_bps", 1000)

	v.SetDefault("confirm_timeout", 120*time.Second)
	v.SetDefault("confirm_poll_interval", 2*time.Second)

	v.SetDefault("max_retries", 5)
	v.SetDefault("retry_backoff", time.Second)
	v.SetDefault("rpc_rate_limit", 10.0)

	v.SetDefault("orch_freshness_guard", true)
	v.SetDefault("orch_stale_tolerance_bps", 50)

	v.SetDefault("redis_addr", "localhost:6379")

	v.SetDefault("clickhouse_addr", "localhost:9000")
	v.SetDefault("clickhouse_database", "pairswap")
	v.SetDefault("clickhouse_username", "default")
	v.SetDefault("clickhouse_password", "")

	v.SetDefault("api_addr", ":8090")
	v.SetDefault("api_key", "")
	v.SetDefault("dev_mode", false)
	v.SetDefault("api_quote_rate_limit", 5.0)
	v.SetDefault("api_quote_burst", 10)

	v.SetDefault("log_level", "info")
}

// Load reads configuration from the environment and an optional
// .pairswap.yaml in $HOME or the working directory. A non-empty configFile
// is read instead of searching, and must exist.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName(".pairswap")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME")
		v.AddConfigPath(".")

		// Config file is optional
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	return &Config{
		RPCURL:         v.GetString("rpc_url"),
		ChainID:        v.GetInt64("chain_id"),
		FactoryAddress: strings.TrimSpace(v.GetString("factory_address")),
		TokensPath:     v.GetString("tokens_path"),

		WalletPrivateKey: v.GetString("wallet_private_key"),

		FeeBps:             v.GetUint64("fee_bps"),
		DefaultSlippageBps: v.GetUint64("default_slippage_bps"),
		MaxSlippageBps:     v.GetUint64("max_slippage_bps"),
		MaxPriceImpactBps:  v.GetUint64("max_price_impact_bps"),

		ConfirmTimeout:      v.GetDuration("confirm_timeout"),
		ConfirmPollInterval: v.GetDuration("confirm_poll_interval"),

		MaxRetries:   v.GetInt("max_retries"),
		RetryBackoff: v.GetDuration("retry_backoff"),
		RPCRateLimit: v.GetFloat64("rpc_rate_limit"),

		FreshnessGuard:    v.GetBool("orch_freshness_guard"),
		StaleToleranceBps: v.GetUint64("orch_stale_tolerance_bps"),

		RedisAddr: v.GetString("redis_addr"),

		ClickHouseAddr:     v.GetString("clickhouse_addr"),
		ClickHouseDatabase: v.GetString("clickhouse_database"),
		ClickHouseUsername: v.GetString("clickhouse_username"),
		ClickHousePassword: v.GetString("clickhouse_password"),

		APIAddr:        v.GetString("api_addr"),
		APIKey:         v.GetString("api_key"),
		DevMode:        v.GetBool("dev_mode"),
		QuoteRateLimit: v.GetFloat64("api_quote_rate_limit"),
		QuoteBurst:     v.GetInt("api_quote_burst"),

		LogLevel: v.GetString("log_level"),
	}, nil
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCURL) == "" {
		return ErrMissingRPCURL
	}
	if !common.IsHexAddress(c.FactoryAddress) || common.HexToAddress(c.FactoryAddress) == (common.Address{}) {
		return ErrBadFactory
	}
	for name, bps := range map[string]uint64{
		"FEE_BPS":                  c.FeeBps,
		"DEFAULT_SLIPPAGE_BPS":     c.DefaultSlippageBps,
		"MAX_SLIPPAGE_BPS":         c.MaxSlippageBps,
		"MAX_PRICE_IMPACT_BPS":     c.MaxPriceImpactBps,
		"ORCH_STALE_TOLERANCE_BPS": c.StaleToleranceBps,
	} {
		if bps > 10_000 {
			return fmt.Errorf("%s=%d: %w", name, bps, ErrBadBasisPoints)
		}
	}
	if c.DefaultSlippageBps > c.MaxSlippageBps {
		return fmt.Errorf("DEFAULT_SLIPPAGE_BPS %d exceeds MAX_SLIPPAGE_BPS %d", c.DefaultSlippageBps, c.MaxSlippageBps)
	}
	return nil
}

// ValidateForWrites additionally requires a signing key.
func (c *Config) ValidateForWrites() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.WalletPrivateKey) == "" {
		return ErrMissingKey
	}
	return nil
}

// Level parses LogLevel, falling back to info.
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// EngineConfig maps the loaded settings onto the swap engine.
func (c *Config) EngineConfig(logger *logrus.Logger) swapengine.EngineConfig {
	cfg := swapengine.DefaultEngineConfig()

	cfg.RPCURL = c.RPCURL
	cfg.ChainID = c.ChainID
	cfg.MaxRetries = c.MaxRetries
	cfg.RetryBackoff = c.RetryBackoff
	cfg.RateLimit = c.RPCRateLimit

	cfg.WalletPrivateKey = c.WalletPrivateKey
	cfg.Factory = common.HexToAddress(c.FactoryAddress)
	cfg.TokensPath = c.TokensPath

	opts := confirm.DefaultOptions()
	if c.ConfirmTimeout > 0 {
		opts.Timeout = c.ConfirmTimeout
	}
	if c.ConfirmPollInterval > 0 {
		opts.PollInterval = c.ConfirmPollInterval
	}
	cfg.Confirm = opts
	cfg.FreshnessGuard = c.FreshnessGuard
	cfg.StaleToleranceBps = c.StaleToleranceBps

	cfg.RedisAddr = c.RedisAddr
	cfg.ClickHouseAddr = c.ClickHouseAddr
	cfg.ClickHouseDB = c.ClickHouseDatabase
	cfg.ClickHouseUsername = c.ClickHouseUsername
	cfg.ClickHousePassword = c.ClickHousePassword

	cfg.RiskConfig = swapengine.RiskConfig{
		MaxPriceImpactBps:  c.MaxPriceImpactBps,
		DefaultSlippageBps: c.DefaultSlippageBps,
		MaxSlippageBps:     c.MaxSlippageBps,
		FeeBps:             c.FeeBps,
	}

	cfg.Logger = logger
	return cfg
}
