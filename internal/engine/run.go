package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"options-backtester/internal/config"
	"options-backtester/internal/data"
	"options-backtester/internal/errors"
	"options-backtester/internal/legs"
	"options-backtester/pkg/utils"
)

// RunSummary aggregates a full backtest across days.
type RunSummary struct {
	From        time.Time
	To          time.Time
	Days        []*DayResult
	TradedDays  int
	SkippedDays int
	FailedDays  int
	GrossPnL    float64
}

// Runner drives the simulation over a date range, one day at a time.
// Each day is isolated: a day that errors is logged and skipped, never
// aborting the run.
type Runner struct {
	cfg      *config.Config
	registry *legs.Registry
	library  *data.Library
	logger   zerolog.Logger
}

// NewRunner builds a runner over the loaded strategy and data library.
func NewRunner(cfg *config.Config, registry *legs.Registry, library *data.Library, logger zerolog.Logger) *Runner {
	return &Runner{cfg: cfg, registry: registry, library: library, logger: logger}
}

// Run simulates every weekday in [from, to]. onDay, when non-nil, is
// called after each traded day so callers can stream results out; an
// onDay error stops the run.
func (r *Runner) Run(ctx context.Context, from, to time.Time, onDay func(*DayResult) error) (*RunSummary, error) {
	summary := &RunSummary{From: from, To: to}
	driver := NewDriver(r.cfg, r.registry, r.logger)

	for _, date := range utils.TradingDays(from, to) {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		frame, err := r.library.Day(ctx, date)
		if err != nil {
			if errors.Is(err, errors.ErrNoData) {
				summary.SkippedDays++
				r.logger.Debug().Str("date", date.Format("2006-01-02")).Msg("No data, skipping day")
				continue
			}
			summary.FailedDays++
			r.logger.Error().Err(err).Str("date", date.Format("2006-01-02")).Msg("Day load failed")
			continue
		}

		result, err := driver.Run(ctx, *frame)
		if err != nil {
			if errors.Is(err, errors.ErrNoData) {
				summary.SkippedDays++
				continue
			}
			summary.FailedDays++
			r.logger.Error().Err(err).Str("date", date.Format("2006-01-02")).Msg("Day simulation failed")
			continue
		}

		summary.Days = append(summary.Days, result)
		summary.TradedDays++
		summary.GrossPnL += result.GrossPnL

		if onDay != nil {
			if err := onDay(result); err != nil {
				return summary, err
			}
		}
	}
	return summary, nil
}
