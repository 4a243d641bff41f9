package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aman-zulfiqar/pairswap/internal/chain"
	"github.com/aman-zulfiqar/pairswap/internal/config"
	"github.com/aman-zulfiqar/pairswap/internal/orchestrator"
	"github.com/aman-zulfiqar/pairswap/internal/swapengine"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pairswap",
	Short: "Quote, swap and add liquidity on a constant-product pair",
	Long: `pairswap prices trades against a two-token constant-product pair and runs
the approve, transfer, create-pair, mint and swap transactions they need,
one at a time, waiting for each to confirm.

Examples:
  pairswap quote 1.5 WETH to USDC
  pairswap quote 3000 USDC to WETH --exact-out
  pairswap pair WETH USDC
  pairswap swap 1 WETH to USDC --slippage-bps 100
  pairswap add-liquidity 2 WETH USDC --amount-b 4000 --yes`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Config file (default $HOME/.pairswap.yaml)")
}

type runtimeOpts struct {
	verbose    bool
	jsonOutput bool
	cfg        *config.Config
	logger     *logrus.Logger
}

// setup loads configuration and builds the CLI logger. Write commands also
// require a signing key.
func setup(cmd *cobra.Command, writes bool) (*runtimeOpts, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	path, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if writes {
		err = cfg.ValidateForWrites()
	} else {
		err = cfg.Validate()
	}
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logger.SetLevel(logrus.WarnLevel)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	return &runtimeOpts{verbose: verbose, jsonOutput: jsonOutput, cfg: cfg, logger: logger}, nil
}

// readEngine connects for quoting only: no key, no stores.
func (o *runtimeOpts) readEngine(ctx context.Context) (*swapengine.Engine, error) {
	ec := o.cfg.EngineConfig(o.logger)
	ec.WalletPrivateKey = ""
	ec.RedisAddr = ""
	ec.ClickHouseAddr = ""
	return swapengine.NewEngine(ctx, ec)
}

// writeEngine connects with the signer, the session feed and the history
// store. approver may be nil to sign without asking.
func (o *runtimeOpts) writeEngine(ctx context.Context, approver chain.Approver, sink orchestrator.EventSink) (*swapengine.Engine, error) {
	ec := o.cfg.EngineConfig(o.logger)
	ec.Approver = approver
	ec.Sink = sink
	return swapengine.NewEngine(ctx, ec)
}

// parseTrade accepts "<amount> <in> to <out>" or "<amount> <in> <out>".
func parseTrade(args []string) (amount, in, out string, err error) {
	switch {
	case len(args) == 4 && strings.EqualFold(args[2], "to"):
		return args[0], args[1], args[3], nil
	case len(args) == 3:
		return args[0], args[1], args[2], nil
	default:
		return "", "", "", fmt.Errorf("expected <amount> <token-in> to <token-out>, got %q", strings.Join(args, " "))
	}
}
