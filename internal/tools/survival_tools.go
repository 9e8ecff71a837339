package tools

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"automa/internal/chain"
	"automa/internal/store"
)

// CheckCreditsTool returns a tool that reports the inference credit balance.
func CheckCreditsTool(d *Deps) *Tool {
	return &Tool{
		Name:        "check_credits",
		Description: "Check your inference credit balance in cents. Credits pay for every model call; at zero you die.",
		Category:    CategorySurvival,
		Risk:        RiskSafe,
		Priority:    90,
		Execute:     executeCheckCredits(d),
		Schema:      ToolSchema{Properties: map[string]Property{}},
	}
}

func executeCheckCredits(d *Deps) ExecuteFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		bal, err := chain.Refresh(ctx, d.Chain, d.Store)
		if err != nil {
			return fmt.Sprintf("credits_cents=%d credits_usd=%.2f source=cached (facilitator unreachable: %v)",
				bal.CreditsCents, float64(bal.CreditsCents)/100, err), nil
		}
		return fmt.Sprintf("credits_cents=%d credits_usd=%.2f source=live",
			bal.CreditsCents, float64(bal.CreditsCents)/100), nil
	}
}

// CheckUSDCBalanceTool returns a tool that reports the wallet USDC balance.
func CheckUSDCBalanceTool(d *Deps) *Tool {
	return &Tool{
		Name:        "check_usdc_balance",
		Description: "Check your on-chain USDC wallet balance.",
		Category:    CategorySurvival,
		Risk:        RiskSafe,
		Execute:     executeCheckUSDC(d),
		Schema:      ToolSchema{Properties: map[string]Property{}},
	}
}

func executeCheckUSDC(d *Deps) ExecuteFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		usdc, err := d.Chain.GetUSDCBalance(ctx)
		if err != nil {
			cached := chain.Cached(d.Store)
			return fmt.Sprintf("usdc=%.6f source=cached (facilitator unreachable: %v)", cached.USDC, err), nil
		}
		if err := d.Store.SetKV(store.KeyCachedUSDC, strconv.FormatFloat(usdc, 'f', -1, 64)); err != nil {
			return "", fmt.Errorf("caching usdc balance: %w", err)
		}
		return fmt.Sprintf("usdc=%.6f source=live", usdc), nil
	}
}

// CheckInferenceSpendingTool returns a tool that reports inference spend
// over a recent window and over the automaton's whole life.
func CheckInferenceSpendingTool(d *Deps) *Tool {
	return &Tool{
		Name:        "check_inference_spending",
		Description: "Report how many cents of inference you have burned recently and in total.",
		Category:    CategorySurvival,
		Risk:        RiskSafe,
		Execute:     executeCheckSpending(d),
		Schema: ToolSchema{
			Properties: map[string]Property{
				"window_hours": {
					Type:        "integer",
					Description: "Look-back window in hours (default 24)",
					Default:     24,
				},
			},
		},
	}
}

func executeCheckSpending(d *Deps) ExecuteFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		hours := clampInt(intArg(args, "window_hours", 24), 1, 24*30)

		window, err := d.Store.TotalCostCents(time.Now().Add(-time.Duration(hours) * time.Hour))
		if err != nil {
			return "", err
		}
		lifetime, err := d.Store.TotalCostCents(time.Time{})
		if err != nil {
			return "", err
		}
		turns, err := d.Store.CountTurns()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("spent %d¢ in the last %dh, %d¢ lifetime, across %d turns", window, hours, lifetime, turns), nil
	}
}
