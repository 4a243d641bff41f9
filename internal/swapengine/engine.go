package swapengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aman-zulfiqar/pairswap/internal/amm"
	"github.com/aman-zulfiqar/pairswap/internal/cache"
	"github.com/aman-zulfiqar/pairswap/internal/chain"
	"github.com/aman-zulfiqar/pairswap/internal/confirm"
	"github.com/aman-zulfiqar/pairswap/internal/flags"
	"github.com/aman-zulfiqar/pairswap/internal/metrics"
	"github.com/aman-zulfiqar/pairswap/internal/orchestrator"
	"github.com/aman-zulfiqar/pairswap/internal/pair"
	"github.com/aman-zulfiqar/pairswap/internal/rpc"
	"github.com/aman-zulfiqar/pairswap/internal/storage"
	"github.com/aman-zulfiqar/pairswap/internal/tokens"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

var (
	ErrDisabled     = errors.New("operation disabled by kill switch")
	ErrRiskRejected = errors.New("rejected by risk checks")
	ErrReadOnly     = errors.New("engine has no signer")
)

// Chain is everything the engine needs from the chain client.
type Chain interface {
	pair.ChainReader
	tokens.MetadataReader
	confirm.ReceiptReader
	orchestrator.Submitter
	Address() common.Address
	Close() error
}

// FlagGate reports kill switches.
type FlagGate interface {
	Enabled(ctx context.Context, key string) (bool, error)
}

// Engine wires pricing, pair resolution and orchestration for one signer.
type Engine struct {
	chain      Chain
	registry   *tokens.Registry
	resolver   *pair.Resolver
	tracker    *confirm.Tracker
	orch       *orchestrator.Orchestrator
	decision   *DecisionEngine
	risk       *RiskManager
	flags      FlagGate
	redisCache *cache.RedisCache
	clickhouse *cache.ClickHouseStore
	logger     *logrus.Logger
	now        func() time.Time
}

// EngineConfig holds configuration for the swap engine
type EngineConfig struct {
	// RPC settings
	RPCURL       string
	ChainID      int64
	MaxRetries   int
	RetryBackoff time.Duration
	RateLimit    float64

	// Wallet
	WalletPrivateKey string
	Approver         chain.Approver // nil signs without asking

	// Contracts and tokens
	Factory    common.Address
	TokensPath string

	// Orchestration
	Confirm           confirm.Options
	FreshnessGuard    bool
	StaleToleranceBps uint64
	Sink              orchestrator.EventSink // extra sink, e.g. CLI progress

	// Storage
	RedisAddr          string
	ClickHouseAddr     string
	ClickHouseDB       string
	ClickHouseUsername string
	ClickHousePassword string

	// Risk management
	RiskConfig RiskConfig

	Logger *logrus.Logger
}

// DefaultEngineConfig returns sensible defaults
func DefaultEngineConfig() EngineConfig {
	orch := orchestrator.DefaultConfig()
	return EngineConfig{
		MaxRetries:        5,
		RetryBackoff:      time.Second,
		RateLimit:         10,
		Confirm:           orch.Confirm,
		FreshnessGuard:    orch.FreshnessGuard,
		StaleToleranceBps: orch.StaleToleranceBps,
		RiskConfig:        DefaultRiskConfig(),
	}
}

// Deps are the collaborators NewEngineWithDeps wires together. Flags, Feed
// and History are optional.
type Deps struct {
	Chain    Chain
	Registry *tokens.Registry
	Flags    FlagGate
	Feed     storage.SessionCache
	History  storage.HistoryStore
}

// NewEngine connects to every configured backend and builds the engine.
func NewEngine(ctx context.Context, cfg EngineConfig) (*Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	// 1. Signer
	var signer chain.Signer
	if cfg.WalletPrivateKey != "" {
		ks, err := chain.NewKeySigner(cfg.WalletPrivateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create signer: %w", err)
		}
		signer = ks
		if cfg.Approver != nil {
			signer = chain.NewPromptSigner(ks, cfg.Approver)
		}
	}

	// 2. Chain client
	client, err := chain.Dial(ctx, chain.ClientConfig{
		RPCURL:  cfg.RPCURL,
		ChainID: cfg.ChainID,
		Retry: rpc.RetryConfig{
			MaxRetries:   cfg.MaxRetries,
			RetryBackoff: cfg.RetryBackoff,
			RateLimit:    cfg.RateLimit,
			Burst:        int(cfg.RateLimit) + 1,
			Logger:       cfg.Logger,
			OnRetry:      metrics.RecordRetry,
		},
		Logger: cfg.Logger,
	}, signer)
	if err != nil {
		return nil, fmt.Errorf("failed to create chain client: %w", err)
	}

	// 3. Token registry
	registry := tokens.NewRegistry()
	if cfg.TokensPath != "" {
		if registry, err = tokens.LoadRegistry(cfg.TokensPath); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to load token registry: %w", err)
		}
	}

	deps := Deps{Chain: client, Registry: registry}

	// 4. Redis: session feed and kill switches
	var redisCache *cache.RedisCache
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{Addr: cfg.RedisAddr, Logger: cfg.Logger})
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		fs, err := flags.NewStore(rc.Client())
		if err != nil {
			_ = rc.Close()
			_ = client.Close()
			return nil, fmt.Errorf("failed to create flag store: %w", err)
		}
		redisCache = rc
		deps.Feed = rc
		deps.Flags = fs
	}

	// 5. ClickHouse: step history
	var clickhouseStore *cache.ClickHouseStore
	if cfg.ClickHouseAddr != "" && cfg.ClickHouseDB != "" {
		ch, err := cache.NewClickHouseStore(ctx, cache.ClickHouseConfig{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDB,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
			Logger:   cfg.Logger,
		})
		if err != nil {
			if redisCache != nil {
				_ = redisCache.Close()
			}
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		clickhouseStore = ch
		deps.History = ch
	}

	e := NewEngineWithDeps(deps, cfg)
	e.redisCache = redisCache
	e.clickhouse = clickhouseStore
	return e, nil
}

// NewEngineWithDeps builds an engine over existing collaborators.
func NewEngineWithDeps(deps Deps, cfg EngineConfig) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if deps.Registry == nil {
		deps.Registry = tokens.NewRegistry()
	}

	resolver := pair.NewResolver(deps.Chain, cfg.Factory, cfg.Logger)
	tracker := confirm.NewTracker(deps.Chain, cfg.Logger)

	sinks := orchestrator.MultiSink{metrics.NewObserver()}
	if deps.Feed != nil {
		sinks = append(sinks, cache.NewFeedSink(deps.Feed))
	}
	if deps.History != nil {
		sinks = append(sinks, cache.NewHistorySink(deps.History))
	}
	if cfg.Sink != nil {
		sinks = append(sinks, cfg.Sink)
	}

	orch := orchestrator.New(deps.Chain, tracker, resolver, orchestrator.Config{
		Factory:           cfg.Factory,
		Confirm:           cfg.Confirm,
		FreshnessGuard:    cfg.FreshnessGuard,
		StaleToleranceBps: cfg.StaleToleranceBps,
		Logger:            cfg.Logger,
		Sink:              sinks,
	})

	return &Engine{
		chain:    deps.Chain,
		registry: deps.Registry,
		resolver: resolver,
		tracker:  tracker,
		orch:     orch,
		decision: NewDecisionEngine(cfg.RiskConfig, deps.Registry, deps.Chain),
		risk:     NewRiskManager(cfg.RiskConfig),
		flags:    deps.Flags,
		logger:   cfg.Logger,
		now:      time.Now,
	}
}

// Tokens returns the token registry.
func (e *Engine) Tokens() *tokens.Registry { return e.registry }

// Orchestrator exposes session state and control.
func (e *Engine) Orchestrator() *orchestrator.Orchestrator { return e.orch }

// Owner is the signer's account.
func (e *Engine) Owner() common.Address { return e.chain.Address() }

// ResolvePair looks up a pair and, when it exists, reads its reserves.
func (e *Engine) ResolvePair(ctx context.Context, tokenA, tokenB string) (*PairInfo, error) {
	a, err := e.registry.Resolve(ctx, tokenA, e.chain)
	if err != nil {
		return nil, fmt.Errorf("token A: %w", err)
	}
	b, err := e.registry.Resolve(ctx, tokenB, e.chain)
	if err != nil {
		return nil, fmt.Errorf("token B: %w", err)
	}

	res, err := e.resolver.Resolve(ctx, a.Address, b.Address)
	if err != nil {
		return nil, err
	}
	info := &PairInfo{TokenA: a, TokenB: b, Resolution: res}
	if !res.Exists {
		return info, nil
	}
	if info.Snapshot, err = e.resolver.Snapshot(ctx, res.Pair); err != nil {
		return nil, err
	}
	return info, nil
}

// QuoteSwap prices intent against a fresh snapshot. intent.ExactOut selects
// the direction.
func (e *Engine) QuoteSwap(ctx context.Context, intent *SwapIntent) (*QuoteResult, error) {
	params, err := e.decision.ParseIntent(ctx, intent)
	if err != nil {
		metrics.RecordQuote(quoteKind(intent), "invalid")
		return nil, fmt.Errorf("failed to parse intent: %w", err)
	}
	return e.quote(ctx, params)
}

// QuoteSwapExactOut prices buying intent.Amount of the output token.
func (e *Engine) QuoteSwapExactOut(ctx context.Context, intent *SwapIntent) (*QuoteResult, error) {
	if intent != nil {
		intent.ExactOut = true
	}
	return e.QuoteSwap(ctx, intent)
}

func (e *Engine) quote(ctx context.Context, params *SwapParams) (*QuoteResult, error) {
	kind := amm.ExactIn
	if params.ExactOut {
		kind = amm.ExactOut
	}

	res, err := e.resolver.Resolve(ctx, params.TokenIn.Address, params.TokenOut.Address)
	if err != nil {
		metrics.RecordQuote(kind.String(), "error")
		return nil, err
	}
	if !res.Exists {
		metrics.RecordQuote(kind.String(), "no_pair")
		return nil, fmt.Errorf("%w: %s/%s", pair.ErrPairNotFound, displaySymbol(params.TokenIn), displaySymbol(params.TokenOut))
	}
	snap, err := e.resolver.Snapshot(ctx, res.Pair)
	if err != nil {
		metrics.RecordQuote(kind.String(), "error")
		return nil, err
	}

	amount, err := amm.FromBig(params.Amount)
	if err != nil {
		metrics.RecordQuote(kind.String(), "invalid")
		return nil, err
	}
	fee := e.risk.Config().FeeBps
	var q *amm.Quote
	if params.ExactOut {
		q, err = amm.QuoteExactOut(snap, params.TokenIn.Address, params.TokenOut.Address, amount, fee, params.SlippageBps)
	} else {
		q, err = amm.QuoteExactIn(snap, params.TokenIn.Address, params.TokenOut.Address, amount, fee, params.SlippageBps)
	}
	if err != nil {
		if errors.Is(err, amm.ErrEmptyPool) {
			metrics.RecordQuote(kind.String(), "empty_pool")
		} else {
			metrics.RecordQuote(kind.String(), "invalid")
		}
		return nil, err
	}
	metrics.RecordQuote(kind.String(), "ok")

	return &QuoteResult{
		TokenIn:         params.TokenIn,
		TokenOut:        params.TokenOut,
		Pair:            res,
		Quote:           q,
		AmountIn:        formatUnits(q.AmountInBig(), params.TokenIn),
		AmountOut:       formatUnits(q.AmountOutBig(), params.TokenOut),
		MinimumReceived: formatUnits(q.MinimumReceivedBig(), params.TokenOut),
		PriceImpactPct:  q.PriceImpactPercent(),
		QuotedAt:        e.now(),
	}, nil
}

// CheckRisk quotes intent and validates it against the risk limits and the
// owner's balance without building a plan.
func (e *Engine) CheckRisk(ctx context.Context, intent *SwapIntent) (*RiskCheckResult, error) {
	params, err := e.decision.ParseIntent(ctx, intent)
	if err != nil {
		return nil, fmt.Errorf("failed to parse intent: %w", err)
	}
	qr, err := e.quote(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}
	bal, err := e.resolver.Balance(ctx, params.TokenIn.Address, e.chain.Address())
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return e.risk.CheckSwap(params, qr.Quote, bal.Value), nil
}

// PrepareSwap quotes intent, runs the risk checks and builds the plan from
// the same reads. Nothing is sent.
func (e *Engine) PrepareSwap(ctx context.Context, intent *SwapIntent) (*Prepared, error) {
	owner := e.chain.Address()
	if owner == (common.Address{}) {
		return nil, ErrReadOnly
	}
	if err := e.gate(ctx, flags.SwapsEnabled); err != nil {
		return nil, err
	}

	params, err := e.decision.ParseIntent(ctx, intent)
	if err != nil {
		return nil, fmt.Errorf("failed to parse intent: %w", err)
	}
	qr, err := e.quote(ctx, params)
	if err != nil {
		return nil, err
	}
	q := qr.Quote

	bal, err := e.resolver.Balance(ctx, q.TokenIn, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	risk := e.risk.CheckSwap(params, q, bal.Value)
	if !risk.Allowed {
		return &Prepared{Quote: qr, Risk: risk, TokenA: params.TokenIn, TokenB: params.TokenOut},
			fmt.Errorf("%w: %s", ErrRiskRejected, risk.Reason)
	}

	allowance, err := e.resolver.Allowance(ctx, q.TokenIn, owner, q.Snapshot.Pair)
	if err != nil {
		return nil, fmt.Errorf("failed to get allowance: %w", err)
	}
	plan, err := orchestrator.BuildSwapPlan(orchestrator.SwapFacts{
		Owner:     owner,
		Quote:     q,
		Allowance: allowance,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build swap plan: %w", err)
	}
	plan.Readings = append(plan.Readings, bal)

	return &Prepared{Plan: plan, Quote: qr, Risk: risk, TokenA: params.TokenIn, TokenB: params.TokenOut}, nil
}

// PrepareAddLiquidity resolves the pair, sizes the deposit and checks
// balances. Nothing is sent.
func (e *Engine) PrepareAddLiquidity(ctx context.Context, intent *LiquidityIntent) (*Prepared, error) {
	owner := e.chain.Address()
	if owner == (common.Address{}) {
		return nil, ErrReadOnly
	}
	if err := e.gate(ctx, flags.LiquidityEnabled); err != nil {
		return nil, err
	}

	params, err := e.decision.ParseLiquidity(ctx, intent)
	if err != nil {
		return nil, fmt.Errorf("failed to parse intent: %w", err)
	}
	res, err := e.resolver.Resolve(ctx, params.TokenA.Address, params.TokenB.Address)
	if err != nil {
		return nil, err
	}

	facts := orchestrator.LiquidityFacts{
		Owner:      owner,
		TokenA:     params.TokenA.Address,
		TokenB:     params.TokenB.Address,
		AmountA:    params.AmountA,
		AmountB:    params.AmountB,
		Resolution: res,
	}
	if res.Exists {
		if facts.Snapshot, err = e.resolver.Snapshot(ctx, res.Pair); err != nil {
			return nil, err
		}
	}
	plan, err := orchestrator.BuildAddLiquidityPlan(facts)
	if err != nil {
		return nil, fmt.Errorf("failed to build liquidity plan: %w", err)
	}

	amountB := params.AmountB
	for _, st := range plan.Steps {
		if st.Kind == orchestrator.StepTransfer && st.Token == params.TokenB.Address {
			amountB = st.Amount
		}
	}

	balA, err := e.resolver.Balance(ctx, params.TokenA.Address, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	balB, err := e.resolver.Balance(ctx, params.TokenB.Address, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	risk := e.risk.CheckLiquidity(params.TokenA, params.TokenB, params.AmountA, amountB, balA.Value, balB.Value)
	prepared := &Prepared{Plan: plan, Risk: risk, TokenA: params.TokenA, TokenB: params.TokenB}
	if !risk.Allowed {
		return prepared, fmt.Errorf("%w: %s", ErrRiskRejected, risk.Reason)
	}
	prepared.Plan.Readings = append(prepared.Plan.Readings, balA, balB)
	return prepared, nil
}

// Execute starts a session for a prepared plan and runs it to a terminal
// state. A step failure is reported in the result and returned as error.
func (e *Engine) Execute(ctx context.Context, p *Prepared) (*SessionResult, error) {
	start := e.now()
	id, err := e.orch.Start(ctx, p.Plan)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	state, runErr := e.orch.Run(ctx)
	result := &SessionResult{
		SessionID: id,
		State:     state,
		Duration:  e.now().Sub(start),
	}
	if s, ok := e.orch.Session(); ok && s.ID == id {
		for _, h := range s.TxHashes {
			result.TxHashes = append(result.TxHashes, h.Hex())
		}
		if s.Plan.Pair != (common.Address{}) {
			result.Pair = s.Plan.Pair.Hex()
		}
		result.Failure = s.State.Err
	}

	log := e.logger.WithFields(logrus.Fields{
		"session":  id,
		"plan":     p.Plan.Kind,
		"state":    state.Kind,
		"txs":      len(result.TxHashes),
		"duration": result.Duration,
	})
	if runErr != nil {
		log.WithError(runErr).Warn("session did not succeed")
		return result, runErr
	}
	log.Info("session finished")
	return result, nil
}

// Swap prepares and executes a swap.
func (e *Engine) Swap(ctx context.Context, intent *SwapIntent) (*SessionResult, error) {
	p, err := e.PrepareSwap(ctx, intent)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, p)
}

// AddLiquidity prepares and executes an add-liquidity plan.
func (e *Engine) AddLiquidity(ctx context.Context, intent *LiquidityIntent) (*SessionResult, error) {
	p, err := e.PrepareAddLiquidity(ctx, intent)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, p)
}

// Reset clears a failed or finished session so a new one may start.
func (e *Engine) Reset(ctx context.Context) error {
	return e.orch.Reset(ctx)
}

func (e *Engine) gate(ctx context.Context, key string) error {
	if e.flags == nil {
		return nil
	}
	ok, err := e.flags.Enabled(ctx, key)
	if err != nil {
		// fail closed
		return fmt.Errorf("read flag %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrDisabled, key)
	}
	return nil
}

// Close cleans up all resources
func (e *Engine) Close() error {
	var errs []error

	if err := e.chain.Close(); err != nil {
		errs = append(errs, fmt.Errorf("chain client close: %w", err))
	}

	if e.redisCache != nil {
		if err := e.redisCache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}

	if e.clickhouse != nil {
		if err := e.clickhouse.Close(); err != nil {
			errs = append(errs, fmt.Errorf("clickhouse close: %w", err))
		}
	}

	return errors.Join(errs...)
}

func quoteKind(intent *SwapIntent) string {
	if intent != nil && intent.ExactOut {
		return amm.ExactOut.String()
	}
	return amm.ExactIn.String()
}
