package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/aman-zulfiqar/pairswap/internal/amm"
	"github.com/aman-zulfiqar/pairswap/internal/chain"
	"github.com/aman-zulfiqar/pairswap/internal/models"
	"github.com/aman-zulfiqar/pairswap/internal/orchestrator"
	"github.com/aman-zulfiqar/pairswap/internal/swapengine"
	"github.com/aman-zulfiqar/pairswap/internal/units"
	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
)

// progress drives the spinner from session events. Disabled in JSON mode.
type progress struct {
	s       *spinner.Spinner
	enabled bool
}

func newProgress(enabled bool) *progress {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Writer = os.Stderr
	return &progress{s: s, enabled: enabled}
}

func (p *progress) start(msg string) {
	if !p.enabled {
		return
	}
	p.setSuffix(msg)
	p.s.Start()
}

func (p *progress) stop() {
	if p.enabled {
		p.s.Stop()
	}
}

func (p *progress) setSuffix(msg string) {
	p.s.Lock()
	p.s.Suffix = " " + msg
	p.s.Unlock()
}

// HandleEvent renders each session transition on the spinner line.
func (p *progress) HandleEvent(_ context.Context, ev *models.SessionEvent) error {
	if !p.enabled || ev.StepCount == 0 {
		return nil
	}
	msg := fmt.Sprintf("step %d/%d %s: %s", ev.StepIndex+1, ev.StepCount, ev.StepKind, ev.StepStatus)
	if ev.TxHash != "" {
		msg += " " + shortHash(ev.TxHash)
	}
	p.setSuffix(msg)
	return nil
}

// approver asks on the terminal before each transaction is signed.
func (p *progress) approver() chain.Approver {
	return func(_ context.Context, req chain.SignRequest) (bool, error) {
		p.stop()
		defer p.start("waiting for confirmation...")

		fmt.Fprintln(os.Stderr)
		color.New(color.FgYellow).Fprintf(os.Stderr, "  Sign %s transaction\n", req.Call.Kind)
		fmt.Fprintf(os.Stderr, "  %s\n", req.Call.Summary)
		if req.Tx != nil {
			fmt.Fprintf(os.Stderr, "  Gas limit: %d  Nonce: %d\n", req.Tx.Gas(), req.Tx.Nonce())
		}
		return confirm("Sign and send?"), nil
	}
}

func confirm(question string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Fprintf(os.Stderr, "\n%s [y/N]: ", question)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}

func printJSON(v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}

func displayQuote(qr *swapengine.QuoteResult) {
	q := qr.Quote
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                        QUOTE")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("\n  Pair:              %s\n", color.CyanString(q.Snapshot.Pair.Hex()))
	fmt.Printf("  You pay:           %s %s\n", qr.AmountIn, color.YellowString(qr.TokenIn.Symbol))
	fmt.Printf("  You receive:       %s %s\n", qr.AmountOut, color.YellowString(qr.TokenOut.Symbol))
	if q.Kind == amm.ExactIn {
		fmt.Printf("  Minimum received:  %s %s\n", qr.MinimumReceived, qr.TokenOut.Symbol)
	} else {
		fmt.Printf("  Maximum paid:      %s %s\n", qr.MinimumReceived, qr.TokenIn.Symbol)
	}
	impact := fmt.Sprintf("%.2f%%", qr.PriceImpactPct)
	if q.PriceImpactBps >= 100 {
		impact = color.RedString(impact)
	}
	fmt.Printf("  Price impact:      %s\n", impact)
	fmt.Printf("  Fee:               %d bps  Slippage: %d bps\n", q.FeeBps, q.SlippageBps)
	fmt.Println("\n" + strings.Repeat("=", 60))
}

func displayPlan(p *swapengine.Prepared) {
	fmt.Printf("\n  Plan (%s, %d transactions):\n", p.Plan.Kind, len(p.Plan.Steps))
	for i, st := range p.Plan.Steps {
		fmt.Printf("    %d. %s\n", i+1, describeStep(st, p))
	}
}

func describeStep(st orchestrator.Step, p *swapengine.Prepared) string {
	amount := func(token common.Address, v *big.Int) string {
		switch token {
		case p.TokenA.Address:
			return units.Format(v, p.TokenA.Decimals, p.TokenA.Symbol)
		case p.TokenB.Address:
			return units.Format(v, p.TokenB.Decimals, p.TokenB.Symbol)
		}
		return v.String()
	}
	switch st.Kind {
	case orchestrator.StepApprove:
		return fmt.Sprintf("approve %s for %s", amount(st.Token, st.Amount), shortHash(st.Spender.Hex()))
	case orchestrator.StepTransfer:
		return fmt.Sprintf("transfer %s to %s", amount(st.Token, st.Amount), shortHash(st.To.Hex()))
	case orchestrator.StepCreatePair:
		return fmt.Sprintf("create pair %s/%s", p.TokenA.Symbol, p.TokenB.Symbol)
	case orchestrator.StepMint:
		return "mint liquidity"
	case orchestrator.StepSwap:
		if p.Quote != nil {
			return fmt.Sprintf("swap for at least %s %s", p.Quote.MinimumReceived, p.Quote.TokenOut.Symbol)
		}
		return "swap"
	}
	return string(st.Kind)
}

func displayResult(res *swapengine.SessionResult) {
	fmt.Printf("\n  Session:   %s\n", res.SessionID)
	if res.Pair != "" {
		fmt.Printf("  Pair:      %s\n", color.CyanString(res.Pair))
	}
	for i, h := range res.TxHashes {
		fmt.Printf("  Tx %d:      %s\n", i+1, h)
	}
	fmt.Printf("  Duration:  %s\n", res.Duration.Round(time.Millisecond))
	if res.Failure != nil {
		color.Red("  Failed:    %v", res.Failure)
	}
}

func resultJSON(res *swapengine.SessionResult) map[string]any {
	out := map[string]any{
		"session_id":  res.SessionID,
		"state":       res.State.Kind.String(),
		"tx_hashes":   res.TxHashes,
		"pair":        res.Pair,
		"duration_ms": res.Duration.Milliseconds(),
	}
	if res.Failure != nil {
		out["error"] = res.Failure.Error()
	}
	return out
}

func shortHash(h string) string {
	if len(h) <= 14 {
		return h
	}
	return h[:8] + "..." + h[len(h)-4:]
}
