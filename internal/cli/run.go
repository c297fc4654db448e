package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"options-backtester/internal/data"
	"options-backtester/internal/engine"
	"options-backtester/internal/legs"
	"options-backtester/internal/results"
	"options-backtester/pkg/utils"
)

func newRunCmd(app *App) *cobra.Command {
	var (
		fromStr string
		toStr   string
		legsDir string
		dryRun  bool
		noWrite bool
		maxDays int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a backtest over a date range",
		Long: `Run simulates the strategy minute by minute for every weekday in
the range. Results are written under the configured results directory,
one trade log per traded day plus a running end-of-day file.`,
		Example: `  backtest run --legs ./strategy --from 2024-01-01 --to 2024-03-31
  backtest run --legs ./strategy --from 2024-01-01 --to 2024-01-31 --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			from, to, err := parseDateRange(fromStr, toStr)
			if err != nil {
				return err
			}

			registry, err := legs.LoadDir(legsDir)
			if err != nil {
				return fmt.Errorf("loading legs from %s: %w", legsDir, err)
			}
			mainLegs := registry.Main()
			if len(mainLegs) == 0 {
				return fmt.Errorf("no legs found in %s", legsDir)
			}
			output.Info("Loaded %d legs (%d lazy)", len(registry.All()), len(registry.All())-len(mainLegs))

			if dryRun {
				return displayLegs(output, registry)
			}

			ctx := cmd.Context()
			source, err := data.NewClickHouseSource(ctx, app.Config.Data, app.Logger)
			if err != nil {
				return fmt.Errorf("connecting to warehouse: %w", err)
			}
			defer source.Close()

			var cache *data.MonthCache
			if app.Config.Data.CacheEnabled {
				cache, err = data.NewMonthCache(app.Config.Data.CacheDir)
				if err != nil {
					app.Logger.Warn().Err(err).Msg("Cache unavailable, running without it")
				} else {
					defer cache.Close()
				}
			}

			library := data.NewLibrary(source, cache, app.Config.Data, app.Config.Engine.Index, app.Logger)
			runner := engine.NewRunner(app.Config, registry, library, app.Logger)
			writer := results.NewWriter(app.Config.Output, app.Config.Charges, app.Config.Engine.Index, app.Logger)

			days := 0
			onDay := func(result *engine.DayResult) error {
				days++
				if maxDays > 0 && days > maxDays {
					return fmt.Errorf("stopping after %d days", maxDays)
				}
				net := result.GrossPnL
				for _, bd := range writer.DayCharges(result) {
					net -= bd.Total
				}
				output.SourceLine(SourceRun, "%s  trades=%d  net=%s",
					result.Date.Format("2006-01-02"), len(result.Closed), FormatPnL(net))
				if noWrite {
					return nil
				}
				return writer.WriteDay(result)
			}

			summary, err := runner.Run(ctx, from, to, onDay)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"from":         summary.From.Format("2006-01-02"),
					"to":           summary.To.Format("2006-01-02"),
					"traded_days":  summary.TradedDays,
					"skipped_days": summary.SkippedDays,
					"failed_days":  summary.FailedDays,
					"gross_pnl":    summary.GrossPnL,
				})
			}
			output.Println()
			output.Print("%s", writer.Report(summary))
			return nil
		},
	}

	cmd.Flags().StringVar(&fromStr, "from", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&toStr, "to", "", "end date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&legsDir, "legs", "", "strategy directory containing leg_data/")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and display the strategy without running")
	cmd.Flags().BoolVar(&noWrite, "no-write", false, "run without writing result files")
	cmd.Flags().IntVar(&maxDays, "max-days", 0, "stop after this many traded days (0 = no limit)")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	cmd.MarkFlagRequired("legs")

	return cmd
}

func parseDateRange(fromStr, toStr string) (time.Time, time.Time, error) {
	from, err := time.ParseInLocation("2006-01-02", fromStr, utils.IndiaLocation)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --from date %q: %w", fromStr, err)
	}
	to, err := time.ParseInLocation("2006-01-02", toStr, utils.IndiaLocation)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --to date %q: %w", toStr, err)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to %s is before --from %s", toStr, fromStr)
	}
	return from, to, nil
}
