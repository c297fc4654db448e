package engine

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"options-backtester/internal/config"
	"options-backtester/internal/models"
)

// trailState tracks one position's trailing stop.
type trailState struct {
	highestProfit float64
	trailSL       float64
	activated     bool
}

// ExitEvaluator decides why and at what price an open position closes.
// Checks run in a fixed priority: stop loss, target, trailing, time,
// conditional, indicator. The first hit wins.
type ExitEvaluator struct {
	cfg    config.EngineConfig
	logger zerolog.Logger
	trails map[string]*trailState
}

// NewExitEvaluator returns an evaluator with empty trailing state.
func NewExitEvaluator(cfg config.EngineConfig, logger zerolog.Logger) *ExitEvaluator {
	return &ExitEvaluator{cfg: cfg, logger: logger, trails: make(map[string]*trailState)}
}

// ExitDecision is a triggered exit: the reason and the fill price.
type ExitDecision struct {
	Reason models.ExitReason
	Price  float64
}

// CheckStopLoss tests the stop level against the position's current bar.
// Shorts compare the High (or Close), longs the Low.
func (e *ExitEvaluator) CheckStopLoss(pos *models.Position) *ExitDecision {
	if !pos.Leg.StopLossEnabled || pos.StopLoss == 0 || pos.EntryPrice == 0 {
		return nil
	}

	var cmp float64
	if e.cfg.StopCheckOn == "Close" {
		cmp = pos.LastBar.Close
	} else if pos.Side == models.SideBuy {
		cmp = pos.LastBar.Low
	} else {
		cmp = pos.LastBar.High
	}

	hit := false
	if pos.Side == models.SideBuy {
		hit = cmp <= pos.StopLoss
	} else {
		hit = cmp >= pos.StopLoss
	}
	if !hit {
		return nil
	}
	return &ExitDecision{
		Reason: models.ExitReason{
			Kind:   models.ExitStopLoss,
			Detail: fmt.Sprintf("stop %.2f breached by %.2f", pos.StopLoss, cmp),
		},
		Price: pos.StopLoss,
	}
}

// CheckTarget tests the target level. Shorts compare the Low (or
// Close), longs the High.
func (e *ExitEvaluator) CheckTarget(pos *models.Position) *ExitDecision {
	if !pos.Leg.TargetEnabled || pos.Target == 0 || pos.EntryPrice == 0 {
		return nil
	}

	var cmp float64
	if e.cfg.TargetCheckOn == "Close" {
		cmp = pos.LastBar.Close
	} else if pos.Side == models.SideBuy {
		cmp = pos.LastBar.High
	} else {
		cmp = pos.LastBar.Low
	}

	hit := false
	if pos.Side == models.SideBuy {
		hit = cmp >= pos.Target
	} else {
		hit = cmp <= pos.Target
	}
	if !hit {
		return nil
	}
	return &ExitDecision{
		Reason: models.ExitReason{
			Kind:   models.ExitTarget,
			Detail: fmt.Sprintf("target %.2f reached by %.2f", pos.Target, cmp),
		},
		Price: pos.Target,
	}
}

// CheckTrailing arms and advances the trailing stop. Value1 is the
// profit in points that activates the trail, Value2 the giveback from
// the highest profit. The trail only tightens.
func (e *ExitEvaluator) CheckTrailing(pos *models.Position) *ExitDecision {
	leg := pos.Leg
	if !leg.TrailingEnabled || leg.Trailing.Value1 == 0 || leg.Trailing.Value2 == 0 || pos.EntryPrice == 0 {
		return nil
	}

	pnl := (pos.LTP - pos.EntryPrice) * pos.Side.Sign()

	st, ok := e.trails[pos.ID]
	if !ok {
		st = &trailState{highestProfit: pnl}
		e.trails[pos.ID] = st
	}
	if pnl > st.highestProfit {
		st.highestProfit = pnl
	}
	if !st.activated && pnl >= leg.Trailing.Value1 {
		st.activated = true
		st.trailSL = pnl - leg.Trailing.Value2
	}
	if !st.activated {
		return nil
	}
	if newTrail := st.highestProfit - leg.Trailing.Value2; newTrail > st.trailSL {
		st.trailSL = newTrail
	}
	if pnl > st.trailSL {
		return nil
	}
	return &ExitDecision{
		Reason: models.ExitReason{
			Kind:   models.ExitTrailing,
			Detail: fmt.Sprintf("trail %.2f hit at profit %.2f", st.trailSL, pnl),
		},
		Price: pos.LTP,
	}
}

// CheckTime closes the position once the square-off clock is reached.
func (e *ExitEvaluator) CheckTime(pos *models.Position, ts time.Time) *ExitDecision {
	at, err := atClock(ts, e.cfg.ExitTime)
	if err != nil || ts.Before(at) {
		return nil
	}
	return &ExitDecision{
		Reason: models.ExitReason{
			Kind:   models.ExitTime,
			Detail: "square-off " + e.cfg.ExitTime,
		},
		Price: pos.LTP,
	}
}

// CheckConditional closes the position when spot has travelled further
// than the configured threshold from the entry spot, either way.
func (e *ExitEvaluator) CheckConditional(pos *models.Position, spot float64) *ExitDecision {
	threshold := e.cfg.SpotMoveExit
	if threshold == 0 || pos.EntrySpot == 0 {
		return nil
	}
	move := spot - pos.EntrySpot
	if move < 0 {
		move = -move
	}
	if move < threshold {
		return nil
	}
	return &ExitDecision{
		Reason: models.ExitReason{
			Kind:   models.ExitConditional,
			Detail: fmt.Sprintf("spot moved %.2f from entry %.2f", move, pos.EntrySpot),
		},
		Price: pos.LTP,
	}
}

// CheckIndicator applies the VWAP crossover exit: calls close when spot
// drops under the running VWAP, puts when it rises above.
func (e *ExitEvaluator) CheckIndicator(pos *models.Position, spot, vwap float64) *ExitDecision {
	if !e.cfg.VWAPExit || vwap == 0 {
		return nil
	}
	triggered := false
	switch pos.Type {
	case models.OptionCall:
		triggered = spot < vwap
	case models.OptionPut:
		triggered = spot > vwap
	}
	if !triggered {
		return nil
	}
	return &ExitDecision{
		Reason: models.ExitReason{
			Kind:   models.ExitIndicator,
			Detail: fmt.Sprintf("spot %.2f vs vwap %.2f", spot, vwap),
		},
		Price: pos.LTP,
	}
}

// Evaluate runs every check in priority order and returns the first
// trigger, or nil.
func (e *ExitEvaluator) Evaluate(pos *models.Position, ts time.Time, spot, vwap float64) *ExitDecision {
	if d := e.CheckStopLoss(pos); d != nil {
		return d
	}
	if d := e.CheckTarget(pos); d != nil {
		return d
	}
	if d := e.CheckTrailing(pos); d != nil {
		return d
	}
	if d := e.CheckTime(pos, ts); d != nil {
		return d
	}
	if d := e.CheckConditional(pos, spot); d != nil {
		return d
	}
	if d := e.CheckIndicator(pos, spot, vwap); d != nil {
		return d
	}
	return nil
}

// Forget drops trailing state once a position is closed.
func (e *ExitEvaluator) Forget(posID string) {
	delete(e.trails, posID)
}

// Reset clears all per-day state.
func (e *ExitEvaluator) Reset() {
	e.trails = make(map[string]*trailState)
}
