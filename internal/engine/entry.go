package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"options-backtester/internal/config"
	"options-backtester/internal/data"
	"options-backtester/internal/errors"
	"options-backtester/internal/models"
	"options-backtester/pkg/utils"
)

// Fill is an executed entry: the bar it filled on, the fill price and
// the optional level basis for stop and target computation.
type Fill struct {
	Row     models.PriceRow
	Price   float64
	SLBasis float64
}

// Resolver turns leg configurations into pending orders and decides,
// minute by minute, when each pending order fills.
type Resolver struct {
	cfg       config.EngineConfig
	provider  data.Provider
	spot      []models.SpotRow
	logger    zerolog.Logger
	entryMode models.PriceField
	seq       int
}

// NewResolver builds a resolver over one day of data. Fill prices come
// from the configured entry mode column, Close if unset.
func NewResolver(cfg config.EngineConfig, provider data.Provider, spot []models.SpotRow, logger zerolog.Logger) *Resolver {
	mode, err := models.ParsePriceField(cfg.EntryMode)
	if err != nil {
		mode = models.FieldClose
	}
	return &Resolver{cfg: cfg, provider: provider, spot: spot, logger: logger, entryMode: mode}
}

// Submit creates a pending order for the leg. Immediate legs fill on
// the next TryExecute call; momentum and range legs record their trigger
// and wait. costBasis carries the RE COST level basis, zero otherwise.
func (r *Resolver) Submit(ctx context.Context, leg *models.LegConfig, ts time.Time, spot, costBasis float64) (*models.OrderSpec, error) {
	r.seq++
	spec := &models.OrderSpec{
		ID:          fmt.Sprintf("ENT-%03d", r.seq),
		LegID:       leg.LegID,
		Leg:         leg,
		SubmittedAt: ts,
		State:       models.OrderPending,
		CostBasis:   costBasis,
	}

	if leg.RollingStraddle {
		r.logger.Warn().Str("leg", leg.UniqueID).Msg("Rolling straddle entry not supported, treating as immediate")
	}

	// Momentum wins when a leg arms both trigger styles.
	switch {
	case leg.Momentum.Enabled:
		if err := r.armMomentum(ctx, spec, leg, ts, spot); err != nil {
			return nil, err
		}
	case leg.Range.Enabled:
		if err := r.armRange(ctx, spec, leg, ts, spot); err != nil {
			return nil, err
		}
	default:
		row, err := r.resolveContract(ctx, leg, ts, spot)
		if err != nil {
			return nil, errors.NewOrderError(spec.ID, leg.LegID, "submit", "resolving contract", err)
		}
		spec.Ticker = row.Ticker
		spec.Strike = row.Strike
		spec.Expiry = row.Expiry
	}
	return spec, nil
}

// armMomentum resolves the contract at submit time and derives the
// trigger level from its close.
func (r *Resolver) armMomentum(ctx context.Context, spec *models.OrderSpec, leg *models.LegConfig, ts time.Time, spot float64) error {
	row, err := r.resolveContract(ctx, leg, ts, spot)
	if err != nil {
		return errors.NewOrderError(spec.ID, leg.LegID, "submit", "resolving momentum contract", err)
	}
	spec.Ticker = row.Ticker
	spec.Strike = row.Strike
	spec.Expiry = row.Expiry
	spec.ReferencePx = row.Close
	spec.MomentumDir = leg.Momentum.Direction
	spec.MomentumLevel = momentumLevel(row.Close, leg.Momentum.Direction, leg.Momentum.Value)
	spec.State = models.OrderWatching
	return nil
}

func momentumLevel(ref float64, dir models.MomentumDirection, value float64) float64 {
	switch dir {
	case models.MomentumPercentUp:
		return round2(ref + ref*value/100)
	case models.MomentumPercentDown:
		return round2(ref - ref*value/100)
	case models.MomentumPointsUp:
		return round2(ref + value)
	default:
		return round2(ref - value)
	}
}

// armRange records the observation window. For option based ranges the
// contract is pinned at submit; spot based ranges resolve the contract
// on trigger.
func (r *Resolver) armRange(ctx context.Context, spec *models.OrderSpec, leg *models.LegConfig, ts time.Time, spot float64) error {
	end, err := atClock(ts, leg.Range.ThresholdTime)
	if err != nil {
		return errors.NewOrderError(spec.ID, leg.LegID, "submit", "bad range threshold time", err)
	}

	start := ts
	switch leg.Range.Start {
	case "", "Default":
		// Window opens on the submit bar.
	case "Exact":
		start = ts.Add(time.Minute)
	default:
		start, err = atClock(ts, leg.Range.Start)
		if err != nil {
			return errors.NewOrderError(spec.ID, leg.LegID, "submit", "bad range start time", err)
		}
	}

	spec.RangeActive = true
	spec.WindowStart = start
	spec.WindowEnd = end
	spec.RangeSide = leg.Range.BreakoutOf
	spec.RangeSrc = leg.Range.Underlying
	spec.CompareField = leg.Range.CompareField
	spec.State = models.OrderWatching

	if leg.Range.Underlying == models.RangeOfOption {
		row, err := r.resolveContract(ctx, leg, ts, spot)
		if err != nil {
			return errors.NewOrderError(spec.ID, leg.LegID, "submit", "resolving range contract", err)
		}
		spec.Ticker = row.Ticker
		spec.Strike = row.Strike
		spec.Expiry = row.Expiry
	}
	return nil
}

// TryExecute checks a pending order against the current minute. A nil
// fill with nil error means the trigger has not fired yet.
func (r *Resolver) TryExecute(ctx context.Context, spec *models.OrderSpec, ts time.Time, spot float64) (*Fill, error) {
	switch {
	case spec.RangeActive:
		return r.tryRange(ctx, spec, ts, spot)
	case spec.MomentumLevel != 0:
		return r.tryMomentum(ctx, spec, ts)
	default:
		return r.fillNow(ctx, spec, ts)
	}
}

func (r *Resolver) fillNow(ctx context.Context, spec *models.OrderSpec, ts time.Time) (*Fill, error) {
	row, err := r.provider.RowAt(ctx, data.Query{Ticker: spec.Ticker, At: ts})
	if err != nil {
		if errors.Is(err, errors.ErrNoData) {
			return nil, nil
		}
		return nil, err
	}
	spec.State = models.OrderExecuted
	return &Fill{Row: row, Price: row.Field(r.entryMode), SLBasis: spec.CostBasis}, nil
}

func (r *Resolver) tryMomentum(ctx context.Context, spec *models.OrderSpec, ts time.Time) (*Fill, error) {
	row, err := r.provider.RowAt(ctx, data.Query{Ticker: spec.Ticker, At: ts})
	if err != nil {
		if errors.Is(err, errors.ErrNoData) {
			return nil, nil
		}
		return nil, err
	}

	triggered := false
	switch spec.MomentumDir {
	case models.MomentumPercentUp, models.MomentumPointsUp:
		triggered = row.Close >= spec.MomentumLevel
	case models.MomentumPercentDown, models.MomentumPointsDown:
		triggered = row.Close <= spec.MomentumLevel
	}
	if !triggered {
		return nil, nil
	}

	fill := &Fill{Row: row, Price: row.Field(r.entryMode)}
	switch spec.Leg.Momentum.LevelBasis {
	case models.BasisMomentumPrice:
		fill.SLBasis = spec.MomentumLevel
	case models.BasisSystemPrice:
		fill.SLBasis = spec.ReferencePx
	}
	if spec.CostBasis > 0 {
		fill.SLBasis = spec.CostBasis
	}
	spec.State = models.OrderExecuted
	return fill, nil
}

func (r *Resolver) tryRange(ctx context.Context, spec *models.OrderSpec, ts time.Time, spot float64) (*Fill, error) {
	if !ts.After(spec.WindowEnd) {
		return nil, nil
	}
	if !spec.RangeFrozen {
		level, err := r.rangeLevel(ctx, spec)
		if err != nil {
			return nil, err
		}
		spec.RangeLevel = level
		spec.RangeFrozen = true
	}

	if spec.RangeSrc == models.RangeOfSpot {
		bar, ok := r.spotBarAt(ts)
		if !ok {
			return nil, nil
		}
		if !rangeBreached(bar.Field(spec.CompareField), spec.RangeLevel, spec.RangeSide) {
			return nil, nil
		}
		// Breakout confirmed on spot; enter the contract for the
		// current spot level.
		row, err := r.resolveContract(ctx, spec.Leg, ts, spot)
		if err != nil {
			if errors.Is(err, errors.ErrNoData) {
				return nil, nil
			}
			return nil, err
		}
		spec.Ticker = row.Ticker
		spec.Strike = row.Strike
		spec.Expiry = row.Expiry
		spec.State = models.OrderExecuted
		return &Fill{Row: row, Price: row.Field(r.entryMode), SLBasis: spec.CostBasis}, nil
	}

	row, err := r.provider.RowAt(ctx, data.Query{Ticker: spec.Ticker, At: ts})
	if err != nil {
		if errors.Is(err, errors.ErrNoData) {
			return nil, nil
		}
		return nil, err
	}
	if !rangeBreached(row.Field(spec.CompareField), spec.RangeLevel, spec.RangeSide) {
		return nil, nil
	}
	spec.State = models.OrderExecuted
	return &Fill{Row: row, Price: row.Field(r.entryMode), SLBasis: spec.CostBasis}, nil
}

func rangeBreached(value, level float64, side string) bool {
	if side == "Low" {
		return value < level
	}
	return value > level
}

// rangeLevel computes the frozen breakout level once the observation
// window has closed: the highest High or lowest Low over the window.
func (r *Resolver) rangeLevel(ctx context.Context, spec *models.OrderSpec) (float64, error) {
	if spec.RangeSrc == models.RangeOfSpot {
		level := 0.0
		seen := false
		for _, bar := range r.spot {
			if bar.Timestamp.Before(spec.WindowStart) || bar.Timestamp.After(spec.WindowEnd) {
				continue
			}
			v := bar.High
			if spec.RangeSide == "Low" {
				v = bar.Low
			}
			if !seen {
				level, seen = v, true
			} else if spec.RangeSide == "Low" && v < level {
				level = v
			} else if spec.RangeSide != "Low" && v > level {
				level = v
			}
		}
		if !seen {
			return 0, errors.NewOrderError(spec.ID, spec.LegID, "range", "no spot bars in window", errors.ErrNoData)
		}
		return level, nil
	}

	rows, err := r.provider.WindowRows(ctx, data.Query{Ticker: spec.Ticker}, spec.WindowStart, spec.WindowEnd)
	if err != nil {
		return 0, errors.NewOrderError(spec.ID, spec.LegID, "range", "no bars in window", err)
	}
	level := 0.0
	for i, row := range rows {
		v := row.High
		if spec.RangeSide == "Low" {
			v = row.Low
		}
		if i == 0 {
			level = v
		} else if spec.RangeSide == "Low" && v < level {
			level = v
		} else if spec.RangeSide != "Low" && v > level {
			level = v
		}
	}
	return level, nil
}

func (r *Resolver) spotBarAt(ts time.Time) (models.SpotRow, bool) {
	for _, bar := range r.spot {
		if bar.Timestamp.Equal(ts) {
			return bar, true
		}
	}
	return models.SpotRow{}, false
}

// resolveContract picks the concrete contract for a leg at the current
// spot and returns its bar at ts.
func (r *Resolver) resolveContract(ctx context.Context, leg *models.LegConfig, ts time.Time, spot float64) (models.PriceRow, error) {
	var strike float64
	switch leg.StrikeRule {
	case models.StrikeATM:
		strike = utils.ATMStrike(spot, r.cfg.StrikeBase)
	case models.StrikeITM, models.StrikeOTM:
		strike = utils.OffsetStrike(spot, r.cfg.StrikeBase, leg.Spread, leg.OptionType, leg.StrikeRule)
	case models.StrikePremium:
		s, err := r.strikeByPremium(ctx, leg, ts, leg.PremiumMatch, leg.PremiumValue)
		if err != nil {
			return models.PriceRow{}, err
		}
		strike = s
	case models.StrikeStraddlePct:
		s, err := r.strikeByStraddlePct(ctx, leg, ts, spot)
		if err != nil {
			return models.PriceRow{}, err
		}
		strike = s
	default:
		return models.PriceRow{}, fmt.Errorf("unsupported strike rule %q", leg.StrikeRule)
	}

	return r.provider.RowAt(ctx, data.Query{
		Strike: strike,
		Type:   leg.OptionType,
		Expiry: leg.Expiry,
		At:     ts,
	})
}

// strikeByPremium searches the chain at ts for the contract whose close
// best satisfies the premium rule.
func (r *Resolver) strikeByPremium(ctx context.Context, leg *models.LegConfig, ts time.Time, match models.PremiumMatch, premium float64) (float64, error) {
	chain, err := r.provider.ChainAt(ctx, leg.Expiry, leg.OptionType, ts)
	if err != nil {
		return 0, err
	}

	var (
		best     float64
		bestDiff = math.MaxFloat64
		found    bool
	)
	for _, row := range chain {
		switch match {
		case models.PremiumAtLeast:
			// Cheapest contract still at or above the premium.
			if row.Close >= premium && (!found || row.Close < bestDiff) {
				best, bestDiff, found = row.Strike, row.Close, true
			}
		case models.PremiumNearest:
			diff := math.Abs(row.Close - premium)
			if diff < bestDiff {
				best, bestDiff, found = row.Strike, diff, true
			}
		default: // CLOSEST: richest contract still at or below the premium
			if row.Close <= premium && (!found || row.Close > -bestDiff) {
				best, bestDiff, found = row.Strike, -row.Close, true
			}
		}
	}
	if !found {
		return 0, errors.NewDataError("", ts.Format(time.RFC3339),
			fmt.Sprintf("no %s contract matches premium %.2f (%s)", leg.OptionType, premium, match), errors.ErrNoData)
	}
	return best, nil
}

// strikeByStraddlePct prices the ATM straddle and searches for the
// contract trading at the configured percentage of it.
func (r *Resolver) strikeByStraddlePct(ctx context.Context, leg *models.LegConfig, ts time.Time, spot float64) (float64, error) {
	atm := utils.ATMStrike(spot, r.cfg.StrikeBase)

	var straddle float64
	legsFound := 0
	for _, opt := range []models.OptionType{models.OptionCall, models.OptionPut} {
		row, err := r.provider.RowAt(ctx, data.Query{Strike: atm, Type: opt, Expiry: leg.Expiry, At: ts})
		if err != nil {
			continue
		}
		straddle += row.Close
		legsFound++
	}
	if legsFound < 2 {
		return 0, errors.NewDataError("", ts.Format(time.RFC3339), "ATM straddle incomplete", errors.ErrNoData)
	}

	target := straddle * leg.StraddlePremPct / 100
	return r.strikeByPremium(ctx, leg, ts, models.PremiumClosest, target)
}

func atClock(day time.Time, clock string) (time.Time, error) {
	return utils.AtClock(day, clock)
}
