package results

import (
	"fmt"
	"math"
	"strings"

	"options-backtester/internal/charges"
	"options-backtester/internal/engine"
	"options-backtester/pkg/utils"
)

// MaxDrawdown returns the largest peak-to-trough fall of the intraday
// equity curve.
func MaxDrawdown(history []engine.PnLPoint) float64 {
	var peak, dd float64
	for i, p := range history {
		if i == 0 || p.TotalPnL > peak {
			peak = p.TotalPnL
		}
		if fall := peak - p.TotalPnL; fall > dd {
			dd = fall
		}
	}
	return round2(dd)
}

// Report renders a run summary for the terminal.
func (w *Writer) Report(summary *engine.RunSummary) string {
	var (
		totalCharges float64
		wins, losses int
		best, worst  float64
		maxDayDD     float64
	)
	for i, day := range summary.Days {
		dayCharges := w.totalCharges(day)
		totalCharges += dayCharges
		net := day.GrossPnL - dayCharges
		if net >= 0 {
			wins++
		} else {
			losses++
		}
		if i == 0 || net > best {
			best = net
		}
		if i == 0 || net < worst {
			worst = net
		}
		if dd := MaxDrawdown(day.History); dd > maxDayDD {
			maxDayDD = dd
		}
	}
	net := summary.GrossPnL - totalCharges

	var b strings.Builder
	fmt.Fprintf(&b, "Backtest %s to %s\n", summary.From.Format("2006-01-02"), summary.To.Format("2006-01-02"))
	fmt.Fprintf(&b, "  Days traded:    %d (skipped %d, failed %d)\n", summary.TradedDays, summary.SkippedDays, summary.FailedDays)
	fmt.Fprintf(&b, "  Gross PnL:      %s\n", utils.FormatIndianCurrency(summary.GrossPnL))
	fmt.Fprintf(&b, "  Charges:        %s\n", utils.FormatIndianCurrency(totalCharges))
	fmt.Fprintf(&b, "  Net PnL:        %s\n", utils.FormatIndianCurrency(net))
	if summary.TradedDays > 0 {
		fmt.Fprintf(&b, "  Win days:       %d / %d\n", wins, wins+losses)
		fmt.Fprintf(&b, "  Best day:       %s\n", utils.FormatIndianCurrency(best))
		fmt.Fprintf(&b, "  Worst day:      %s\n", utils.FormatIndianCurrency(worst))
		fmt.Fprintf(&b, "  Max intraday drawdown: %s\n", utils.FormatIndianCurrency(maxDayDD))
	}
	return b.String()
}

// DayCharges exposes the day's charge breakdowns for callers that
// report without writing files.
func (w *Writer) DayCharges(result *engine.DayResult) []charges.Breakdown {
	out := make([]charges.Breakdown, 0, len(result.Closed))
	for _, pos := range result.Closed {
		out = append(out, charges.Compute(w.charges, pos.EntryPrice, pos.ExitPrice, pos.Quantity))
	}
	return out
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
