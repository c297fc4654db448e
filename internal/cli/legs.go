package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"options-backtester/internal/legs"
	"options-backtester/internal/models"
)

func newLegsCmd(app *App) *cobra.Command {
	var legsDir string

	cmd := &cobra.Command{
		Use:   "legs",
		Short: "Parse and display a strategy's leg files",
		Long: `Legs loads a strategy directory and prints every parsed leg, main
and lazy, exactly as the engine will trade it. Use it to sanity check a
strategy before running it.`,
		Example: `  backtest legs --legs ./strategy`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			registry, err := legs.LoadDir(legsDir)
			if err != nil {
				return fmt.Errorf("loading legs from %s: %w", legsDir, err)
			}
			if output.IsJSON() {
				return output.JSON(registry.All())
			}
			return displayLegs(output, registry)
		},
	}

	cmd.Flags().StringVar(&legsDir, "legs", "", "strategy directory containing leg_data/")
	cmd.MarkFlagRequired("legs")
	return cmd
}

func displayLegs(output *Output, registry *legs.Registry) error {
	table := NewTable(output, "Leg", "Type", "Side", "Expiry", "Strike", "Stop", "Target", "Entry", "Re-entry")
	for _, leg := range registry.All() {
		name := leg.UniqueID
		if leg.IsLazy {
			name += " (lazy)"
		}
		table.AddRow(
			name,
			string(leg.OptionType),
			string(leg.Side),
			string(leg.Expiry),
			describeStrike(leg),
			describeStop(leg),
			describeTarget(leg),
			describeEntry(leg),
			describeReentry(leg),
		)
	}
	table.Render()
	return nil
}

func describeStrike(leg *models.LegConfig) string {
	switch leg.StrikeRule {
	case models.StrikeATM:
		return "ATM"
	case models.StrikeITM, models.StrikeOTM:
		return fmt.Sprintf("%s%d", leg.StrikeRule, leg.Spread)
	case models.StrikePremium:
		return fmt.Sprintf("premium %s %.0f", leg.PremiumMatch, leg.PremiumValue)
	case models.StrikeStraddlePct:
		return fmt.Sprintf("straddle %.0f%%", leg.StraddlePremPct)
	}
	return string(leg.StrikeRule)
}

func describeStop(leg *models.LegConfig) string {
	if !leg.StopLossEnabled {
		return "-"
	}
	switch leg.StopLossKind {
	case models.StopLossPoints:
		return fmt.Sprintf("%.0f pts", leg.StopLossValue)
	case models.StopLossWeekday:
		return "weekday"
	default:
		return fmt.Sprintf("%.0f%%", leg.StopLossValue*100)
	}
}

func describeTarget(leg *models.LegConfig) string {
	if !leg.TargetEnabled {
		return "-"
	}
	return fmt.Sprintf("%.0f%%", leg.TargetValue*100)
}

func describeEntry(leg *models.LegConfig) string {
	switch {
	case leg.Range.Enabled:
		return fmt.Sprintf("range %s<=%s", leg.Range.BreakoutOf, leg.Range.ThresholdTime)
	case leg.Momentum.Enabled:
		return fmt.Sprintf("momentum %s %.1f", leg.Momentum.Direction, leg.Momentum.Value)
	default:
		return "immediate"
	}
}

func describeReentry(leg *models.LegConfig) string {
	var parts []string
	if leg.ReentrySLEnabled {
		parts = append(parts, fmt.Sprintf("sl:%s x%d", leg.ReentrySLMode, leg.ReentrySLBudget))
	}
	if leg.ReentryTgtEnabled {
		parts = append(parts, fmt.Sprintf("tgt:%s x%d", leg.ReentryTgtMode, leg.ReentryTgtBudget))
	}
	if len(parts) == 0 {
		return "-"
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += " " + p
	}
	return out
}
