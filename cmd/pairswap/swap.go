package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/aman-zulfiqar/pairswap/internal/chain"
	"github.com/aman-zulfiqar/pairswap/internal/orchestrator"
	"github.com/aman-zulfiqar/pairswap/internal/swapengine"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	swapExactOut     bool
	swapSlippageBps  uint64
	swapMaxImpactBps uint64
	noConfirm        bool
)

var swapCmd = &cobra.Command{
	Use:   "swap <amount> <token-in> to <token-out>",
	Short: "Swap one token for the other through the pair",
	Long: `Swap quotes the trade, checks slippage, price impact and balance, then
sends an approval (when the allowance is short) followed by the swap.

Each transaction is shown and must be approved unless --yes is given.

Examples:
  pairswap swap 1 WETH to USDC
  pairswap swap 2500 USDC to WETH --exact-out --slippage-bps 100 --yes`,
	Args: cobra.RangeArgs(3, 4),
	RunE: runSwap,
}

func init() {
	rootCmd.AddCommand(swapCmd)

	swapCmd.Flags().BoolVar(&swapExactOut, "exact-out", false, "Treat the amount as the output to receive")
	swapCmd.Flags().Uint64Var(&swapSlippageBps, "slippage-bps", 0, "Slippage tolerance in basis points (default from config)")
	swapCmd.Flags().Uint64Var(&swapMaxImpactBps, "max-impact-bps", 0, "Reject quotes with a larger price impact")
	swapCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Sign every transaction without asking")
}

func runSwap(cmd *cobra.Command, args []string) error {
	amount, in, out, err := parseTrade(args)
	if err != nil {
		return err
	}
	opts, err := setup(cmd, true)
	if err != nil {
		return err
	}

	intent := &swapengine.SwapIntent{InputToken: in, OutputToken: out, Amount: amount, ExactOut: swapExactOut}
	if cmd.Flags().Changed("slippage-bps") {
		intent.SlippageBps = &swapSlippageBps
	}
	if cmd.Flags().Changed("max-impact-bps") {
		intent.MaxPriceImpactBps = &swapMaxImpactBps
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := newProgress(!opts.jsonOutput)
	engine, err := opts.writeEngine(ctx, approverFor(p), p)
	if err != nil {
		return err
	}
	defer engine.Close()

	p.start("Preparing swap...")
	prepared, err := engine.PrepareSwap(ctx, intent)
	p.stop()
	if err != nil {
		if errors.Is(err, swapengine.ErrRiskRejected) && prepared != nil && prepared.Quote != nil && !opts.jsonOutput {
			displayQuote(prepared.Quote)
		}
		return err
	}

	if !opts.jsonOutput {
		displayQuote(prepared.Quote)
		displayPlan(prepared)
	}

	return execute(ctx, engine, prepared, opts, p)
}

// approverFor returns nil under --yes so the key signs directly.
func approverFor(p *progress) chain.Approver {
	if noConfirm {
		return nil
	}
	return p.approver()
}

func execute(ctx context.Context, engine *swapengine.Engine, prepared *swapengine.Prepared, opts *runtimeOpts, p *progress) error {
	p.start("Starting session...")
	res, err := engine.Execute(ctx, prepared)
	p.stop()

	if res != nil {
		if opts.jsonOutput {
			printJSON(resultJSON(res))
		} else {
			displayResult(res)
		}
	}
	if err != nil {
		// Declining the first transaction leaves nothing on chain
		if errors.Is(err, chain.ErrWalletRejected) && res != nil && res.State.Kind == orchestrator.StateIdle {
			color.Yellow("\nCancelled, nothing was sent.\n")
			return nil
		}
		return err
	}
	if !opts.jsonOutput {
		printSuccess(color.GreenString("✓ %s confirmed (%d transactions)", prepared.Plan.Kind, len(res.TxHashes)))
	}
	return nil
}
