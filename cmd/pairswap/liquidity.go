package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aman-zulfiqar/pairswap/internal/swapengine"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var liquidityAmountB string

var addLiquidityCmd = &cobra.Command{
	Use:   "add-liquidity <amount-a> <token-a> <token-b>",
	Short: "Deposit both tokens into the pair, creating it if needed",
	Long: `add-liquidity transfers both tokens to the pair and mints liquidity to your
address. When the pair does not exist it is created first and --amount-b is
required. For an existing pair the second amount is sized from the current
reserves unless --amount-b is given.

Examples:
  pairswap add-liquidity 2 WETH USDC
  pairswap add-liquidity 2 WETH USDC --amount-b 4000 --yes`,
	Args: cobra.ExactArgs(3),
	RunE: runAddLiquidity,
}

func init() {
	rootCmd.AddCommand(addLiquidityCmd)

	addLiquidityCmd.Flags().StringVar(&liquidityAmountB, "amount-b", "", "Amount of token B (required for a new pair)")
	addLiquidityCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Sign every transaction without asking")
}

func runAddLiquidity(cmd *cobra.Command, args []string) error {
	opts, err := setup(cmd, true)
	if err != nil {
		return err
	}

	intent := &swapengine.LiquidityIntent{
		TokenA:  args[1],
		TokenB:  args[2],
		AmountA: args[0],
		AmountB: liquidityAmountB,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := newProgress(!opts.jsonOutput)
	engine, err := opts.writeEngine(ctx, approverFor(p), p)
	if err != nil {
		return err
	}
	defer engine.Close()

	p.start("Preparing deposit...")
	prepared, err := engine.PrepareAddLiquidity(ctx, intent)
	p.stop()
	if err != nil {
		if errors.Is(err, swapengine.ErrRiskRejected) && prepared != nil && prepared.Risk != nil && !opts.jsonOutput {
			color.Red("\n  %s\n", prepared.Risk.Reason)
		}
		return err
	}

	if !opts.jsonOutput {
		fmt.Printf("\n  Depositing into %s/%s\n", color.YellowString(prepared.TokenA.Symbol), color.YellowString(prepared.TokenB.Symbol))
		displayPlan(prepared)
	}

	return execute(ctx, engine, prepared, opts, p)
}
