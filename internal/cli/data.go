package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"options-backtester/internal/data"
	"options-backtester/pkg/utils"
)

func newDataCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Market data cache management",
		Long: `Inspect and warm the local month cache. Warming the cache before a
long run keeps the run itself off the network.`,
	}
	cmd.AddCommand(newDataPrefetchCmd(app))
	cmd.AddCommand(newDataStatusCmd(app))
	return cmd
}

func newDataPrefetchCmd(app *App) *cobra.Command {
	var fromStr, toStr string

	cmd := &cobra.Command{
		Use:     "prefetch",
		Short:   "Download month partitions into the local cache",
		Example: `  backtest data prefetch --from 2024-01-01 --to 2024-06-30`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			from, to, err := parseDateRange(fromStr, toStr)
			if err != nil {
				return err
			}
			if !app.Config.Data.CacheEnabled {
				return fmt.Errorf("cache is disabled in configuration")
			}

			ctx := cmd.Context()
			source, err := data.NewClickHouseSource(ctx, app.Config.Data, app.Logger)
			if err != nil {
				return fmt.Errorf("connecting to warehouse: %w", err)
			}
			defer source.Close()

			cache, err := data.NewMonthCache(app.Config.Data.CacheDir)
			if err != nil {
				return err
			}
			defer cache.Close()

			library := data.NewLibrary(source, cache, app.Config.Data, app.Config.Engine.Index, app.Logger)

			fetched := 0
			for _, date := range monthStarts(from, to) {
				if err := ctx.Err(); err != nil {
					return err
				}
				// Loading any day of a month pulls the whole partition
				// through the cache.
				if _, err := library.Day(ctx, date); err != nil {
					app.Logger.Warn().Err(err).
						Str("month", date.Format("2006-01")).
						Msg("Prefetch failed for month")
					continue
				}
				fetched++
				output.SourceLine(SourceData, "cached %s", date.Format("2006-01"))
			}
			output.Success("Prefetched %d months", fetched)
			return nil
		},
	}

	cmd.Flags().StringVar(&fromStr, "from", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&toStr, "to", "", "end date (YYYY-MM-DD)")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	return cmd
}

func newDataStatusCmd(app *App) *cobra.Command {
	var fromStr, toStr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which months are cached for the configured index",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			from, to, err := parseDateRange(fromStr, toStr)
			if err != nil {
				return err
			}
			cache, err := data.NewMonthCache(app.Config.Data.CacheDir)
			if err != nil {
				return err
			}
			defer cache.Close()

			ctx := cmd.Context()
			index := app.Config.Engine.Index
			table := NewTable(output, "Month", "Options", "Spot")
			for _, date := range monthStarts(from, to) {
				opts, err := cache.HasMonth(ctx, index, "options", date.Year(), date.Month())
				if err != nil {
					return err
				}
				spot, err := cache.HasMonth(ctx, strings.ToUpper(index), "spot", date.Year(), date.Month())
				if err != nil {
					return err
				}
				table.AddRow(date.Format("2006-01"), cachedMark(output, opts), cachedMark(output, spot))
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&fromStr, "from", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&toStr, "to", "", "end date (YYYY-MM-DD)")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	return cmd
}

func cachedMark(output *Output, ok bool) string {
	if ok {
		return output.Green("cached")
	}
	return output.DimText("missing")
}

// monthStarts returns the first weekday of each month touched by the
// range, clamped to the range itself.
func monthStarts(from, to time.Time) []time.Time {
	var out []time.Time
	cur := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, utils.IndiaLocation)
	for !cur.After(to) {
		day := cur
		if day.Before(from) {
			day = from
		}
		for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			day = day.AddDate(0, 0, 1)
		}
		if !day.After(to) {
			out = append(out, day)
		}
		cur = cur.AddDate(0, 1, 0)
	}
	return out
}
