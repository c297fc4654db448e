// Package engine runs the minute-by-minute simulation: entry
// resolution, position accounting, exit evaluation, re-entry
// scheduling and the day loop tying them together.
package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"options-backtester/internal/config"
	"options-backtester/internal/data"
	"options-backtester/internal/errors"
	"options-backtester/internal/legs"
	"options-backtester/internal/logging"
	"options-backtester/internal/models"
)

// DayResult collects everything one simulated day produced.
type DayResult struct {
	Date      time.Time
	Trades    []models.TradeRow
	Minutes   []models.TradeRow
	OrderBook []models.OrderBookEntry
	History   []PnLPoint
	Closed    []*models.Position
	GrossPnL  float64
	LotSize   int
	Quantity  int
	VIXOpen   float64
	Aborted   bool
}

// Driver walks one trading day bar by bar and applies the fixed
// per-minute ordering: mark to market, exit scans, scheduled
// re-entries, the initial entry, pending order triggers, then the
// equity snapshot.
type Driver struct {
	cfg      *config.Config
	registry *legs.Registry
	logger   zerolog.Logger
}

// NewDriver builds a driver for a loaded strategy.
func NewDriver(cfg *config.Config, registry *legs.Registry, logger zerolog.Logger) *Driver {
	return &Driver{cfg: cfg, registry: registry, logger: logger}
}

// Run simulates one day over the frame. Days with no spot data return
// errors.ErrNoData before any state is touched.
func (d *Driver) Run(ctx context.Context, frame data.DayFrame) (*DayResult, error) {
	if len(frame.Spot) == 0 {
		return nil, errors.ErrNoData
	}
	logger := logging.WithDay(d.logger, frame.Date)

	lotSize, err := d.cfg.LotSizes.LotSize(d.cfg.Engine.Index, frame.Date)
	if err != nil {
		return nil, errors.NewDayError(frame.Date.Format("2006-01-02"), err)
	}
	quantity := lotSize * d.cfg.Engine.LotMultiplier

	entryAt, err := atClock(frame.Date, d.cfg.Engine.EntryTime)
	if err != nil {
		return nil, errors.NewDayError(frame.Date.Format("2006-01-02"), err)
	}
	exitAt, err := atClock(frame.Date, d.cfg.Engine.ExitTime)
	if err != nil {
		return nil, errors.NewDayError(frame.Date.Format("2006-01-02"), err)
	}

	ledger := NewLedger(logger)
	exits := NewExitEvaluator(d.cfg.Engine, logger)
	resolver := NewResolver(d.cfg.Engine, frame.Options, frame.Spot, logger)
	sched := NewScheduler(d.registry, logger)
	sched.Reset()

	var (
		pending   []*models.OrderSpec
		entered   bool
		aborted   bool
		vwapSum   float64
		vwapCount int
	)

	submit := func(leg *models.LegConfig, ts time.Time, spot, costBasis float64) {
		spec, err := resolver.Submit(ctx, leg, ts, spot, costBasis)
		if err != nil {
			logger.Warn().Err(err).Str("leg", leg.LegID).Msg("Entry submit failed")
			return
		}
		pending = append(pending, spec)
	}

	for _, bar := range frame.Spot {
		ts := bar.Timestamp
		spot := bar.Close
		vwapSum += spot
		vwapCount++
		vwap := vwapSum / float64(vwapCount)

		ledger.UpdateMarks(ctx, ts, frame.Options)

		for _, pos := range ledger.OpenPositions() {
			dec := exits.Evaluate(pos, ts, spot, vwap)
			if dec == nil {
				continue
			}
			ledger.Close(pos, ts, dec.Price, spot, dec.Reason)
			exits.Forget(pos.ID)
			for _, act := range sched.OnClose(pos, dec.Reason, ts, ledger.FirstEntryPrice(pos.LegID)) {
				submit(act.Leg, ts, spot, act.CostBasis)
			}
		}

		if d.cfg.Engine.DayLossBreaker > 0 && ledger.TotalPnL() <= -d.cfg.Engine.DayLossBreaker {
			for _, pos := range ledger.OpenPositions() {
				ledger.Close(pos, ts, pos.LTP, spot, models.ExitReason{
					Kind:   models.ExitDayBreaker,
					Detail: "day loss breaker",
				})
				exits.Forget(pos.ID)
			}
			ledger.Snapshot(ts, spot)
			logger.Warn().Float64("pnl", ledger.TotalPnL()).Msg("Day loss breaker tripped, aborting day")
			aborted = true
			break
		}

		for _, act := range sched.Check(ts, spot) {
			submit(act.Leg, ts, spot, act.CostBasis)
		}

		if !entered && !ts.Before(entryAt) {
			entered = true
			for _, leg := range d.registry.Main() {
				if !leg.VIX.Allows(frame.VIXOpen) {
					logger.Info().
						Str("leg", leg.LegID).
						Float64("vix", frame.VIXOpen).
						Msg("Leg blocked by VIX filter")
					continue
				}
				submit(leg, ts, spot, 0)
			}
		}

		if len(pending) > 0 {
			remaining := pending[:0]
			for _, spec := range pending {
				fill, err := resolver.TryExecute(ctx, spec, ts, spot)
				if err != nil {
					logger.Warn().Err(err).Str("order", spec.ID).Msg("Order abandoned")
					spec.State = models.OrderAbandoned
					continue
				}
				if fill == nil {
					remaining = append(remaining, spec)
					continue
				}
				ledger.Open(ts, spec.Leg, fill.Row, fill.Price, fill.SLBasis, spot, quantity)
			}
			pending = remaining
		}

		ledger.Snapshot(ts, spot)

		if !ts.Before(exitAt) {
			for _, spec := range pending {
				spec.State = models.OrderAbandoned
			}
			pending = nil
			break
		}
	}

	// Truncated feeds leave positions open past the last bar. Square
	// them off at the last traded price so no day ends with open risk.
	if open := ledger.OpenPositions(); len(open) > 0 {
		last := frame.Spot[len(frame.Spot)-1]
		for _, pos := range open {
			ledger.Close(pos, last.Timestamp, pos.LTP, last.Close, models.ExitReason{
				Kind:   models.ExitTime,
				Detail: "spot series ended before square-off",
			})
			exits.Forget(pos.ID)
		}
		ledger.Snapshot(last.Timestamp, last.Close)
		logger.Warn().
			Time("last_bar", last.Timestamp).
			Msg("Spot data ended before square-off, forcing close")
	}
	for _, spec := range pending {
		spec.State = models.OrderAbandoned
	}

	return &DayResult{
		Date:      frame.Date,
		Trades:    ledger.Table().Rows(),
		Minutes:   ledger.MinuteLog(),
		OrderBook: ledger.OrderBook(),
		History:   ledger.History(),
		Closed:    ledger.ClosedPositions(),
		GrossPnL:  ledger.TotalPnL(),
		LotSize:   lotSize,
		Quantity:  quantity,
		VIXOpen:   frame.VIXOpen,
		Aborted:   aborted,
	}, nil
}
