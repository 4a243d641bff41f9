package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aman-zulfiqar/pairswap/internal/swapengine"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	quoteExactOut    bool
	quoteSlippageBps uint64
)

var quoteCmd = &cobra.Command{
	Use:   "quote <amount> <token-in> to <token-out>",
	Short: "Price a trade against the pair's current reserves",
	Long: `Quote reads the pair reserves and prices a trade. Nothing is sent.

With --exact-out the amount is what you want to receive and the quote
reports what you must pay.

Examples:
  pairswap quote 1.5 WETH to USDC
  pairswap quote 3000 USDC to WETH --exact-out --slippage-bps 100`,
	Args: cobra.RangeArgs(3, 4),
	RunE: runQuote,
}

var pairCmd = &cobra.Command{
	Use:   "pair <token-a> <token-b>",
	Short: "Show a pair's address and reserves",
	Args:  cobra.ExactArgs(2),
	RunE:  runPair,
}

func init() {
	rootCmd.AddCommand(quoteCmd)
	rootCmd.AddCommand(pairCmd)

	quoteCmd.Flags().BoolVar(&quoteExactOut, "exact-out", false, "Treat the amount as the output to receive")
	quoteCmd.Flags().Uint64Var(&quoteSlippageBps, "slippage-bps", 0, "Slippage tolerance in basis points (default from config)")
}

func runQuote(cmd *cobra.Command, args []string) error {
	amount, in, out, err := parseTrade(args)
	if err != nil {
		return err
	}
	opts, err := setup(cmd, false)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	engine, err := opts.readEngine(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	intent := &swapengine.SwapIntent{InputToken: in, OutputToken: out, Amount: amount, ExactOut: quoteExactOut}
	if cmd.Flags().Changed("slippage-bps") {
		intent.SlippageBps = &quoteSlippageBps
	}

	p := newProgress(!opts.jsonOutput)
	p.start("Fetching quote...")
	qr, err := engine.QuoteSwap(ctx, intent)
	p.stop()
	if err != nil {
		return err
	}

	if opts.jsonOutput {
		q := qr.Quote
		printJSON(map[string]any{
			"kind":             q.Kind.String(),
			"pair":             q.Snapshot.Pair.Hex(),
			"token_in":         qr.TokenIn.Symbol,
			"token_out":        qr.TokenOut.Symbol,
			"amount_in":        qr.AmountIn,
			"amount_out":       qr.AmountOut,
			"minimum_received": qr.MinimumReceived,
			"price_impact_bps": q.PriceImpactBps,
			"fee_bps":          q.FeeBps,
			"slippage_bps":     q.SlippageBps,
		})
		return nil
	}
	displayQuote(qr)
	return nil
}

func runPair(cmd *cobra.Command, args []string) error {
	opts, err := setup(cmd, false)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	engine, err := opts.readEngine(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	info, err := engine.ResolvePair(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	reserveA, reserveB := info.Reserves()

	if opts.jsonOutput {
		out := map[string]any{
			"exists":    info.Resolution.Exists,
			"token_a":   info.TokenA.Symbol,
			"token_b":   info.TokenB.Symbol,
			"reserve_a": reserveA,
			"reserve_b": reserveB,
		}
		if info.Resolution.Exists {
			out["pair"] = info.Resolution.Pair.Hex()
		}
		printJSON(out)
		return nil
	}

	if !info.Resolution.Exists {
		color.Yellow("\nNo pair exists for %s/%s yet. add-liquidity will create it.\n", info.TokenA.Symbol, info.TokenB.Symbol)
		return nil
	}
	fmt.Printf("\n  Pair:      %s\n", color.CyanString(info.Resolution.Pair.Hex()))
	fmt.Printf("  Reserves:  %s %s / %s %s\n\n", reserveA, color.YellowString(info.TokenA.Symbol), reserveB, color.YellowString(info.TokenB.Symbol))
	return nil
}
