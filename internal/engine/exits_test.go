package engine

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-backtester/internal/config"
	"options-backtester/internal/models"
	"options-backtester/pkg/utils"
)

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		Index:         "nifty",
		StrikeBase:    50,
		EntryTime:     "09:20",
		ExitTime:      "15:10",
		SessionStart:  "09:15",
		SessionEnd:    "15:29",
		LotMultiplier: 1,
		StopCheckOn:   "Extreme",
		TargetCheckOn: "Extreme",
	}
}

func shortPosition(entry, stop, target float64) *models.Position {
	leg := &models.LegConfig{
		LegID:           "leg_1",
		UniqueID:        "leg_1",
		OptionType:      models.OptionCall,
		Side:            models.SideSell,
		Expiry:          models.ExpiryWeekly,
		StopLossEnabled: stop != 0,
		TargetEnabled:   target != 0,
	}
	return &models.Position{
		ID:         "POS-001",
		LegID:      "leg_1",
		Type:       models.OptionCall,
		Side:       models.SideSell,
		Quantity:   50,
		EntryPrice: entry,
		EntrySpot:  22500,
		StopLoss:   stop,
		Target:     target,
		LTP:        entry,
		LastBar:    models.Candle{Open: entry, High: entry, Low: entry, Close: entry},
		Leg:        leg,
	}
}

func bar(pos *models.Position, o, h, l, c float64) {
	pos.LastBar = models.Candle{Open: o, High: h, Low: l, Close: c}
	pos.LTP = c
}

func TestCheckStopLossShortUsesHigh(t *testing.T) {
	e := NewExitEvaluator(testEngineConfig(), zerolog.Nop())
	pos := shortPosition(100, 125, 0)

	bar(pos, 100, 120, 95, 110)
	assert.Nil(t, e.CheckStopLoss(pos))

	// High pierces the stop even though the close is back under it.
	bar(pos, 110, 126, 105, 115)
	dec := e.CheckStopLoss(pos)
	require.NotNil(t, dec)
	assert.Equal(t, models.ExitStopLoss, dec.Reason.Kind)
	assert.Equal(t, 125.0, dec.Price)
}

func TestCheckStopLossOnClose(t *testing.T) {
	cfg := testEngineConfig()
	cfg.StopCheckOn = "Close"
	e := NewExitEvaluator(cfg, zerolog.Nop())
	pos := shortPosition(100, 125, 0)

	// A spiking high no longer triggers when only closes are checked.
	bar(pos, 110, 130, 105, 115)
	assert.Nil(t, e.CheckStopLoss(pos))

	bar(pos, 115, 130, 110, 126)
	require.NotNil(t, e.CheckStopLoss(pos))
}

func TestCheckStopLossLongUsesLow(t *testing.T) {
	e := NewExitEvaluator(testEngineConfig(), zerolog.Nop())
	pos := shortPosition(100, 80, 0)
	pos.Side = models.SideBuy

	bar(pos, 100, 105, 85, 95)
	assert.Nil(t, e.CheckStopLoss(pos))

	bar(pos, 95, 100, 79, 90)
	dec := e.CheckStopLoss(pos)
	require.NotNil(t, dec)
	assert.Equal(t, 80.0, dec.Price)
}

func TestCheckTargetShortUsesLow(t *testing.T) {
	e := NewExitEvaluator(testEngineConfig(), zerolog.Nop())
	pos := shortPosition(100, 0, 50)

	bar(pos, 100, 105, 55, 60)
	assert.Nil(t, e.CheckTarget(pos))

	bar(pos, 60, 65, 49, 55)
	dec := e.CheckTarget(pos)
	require.NotNil(t, dec)
	assert.Equal(t, models.ExitTarget, dec.Reason.Kind)
	assert.Equal(t, 50.0, dec.Price)
}

func TestStopLossWinsOverTarget(t *testing.T) {
	e := NewExitEvaluator(testEngineConfig(), zerolog.Nop())
	pos := shortPosition(100, 125, 50)
	ts := mustClock(t, "10:00")

	// A wide bar touching both levels resolves as a stop.
	bar(pos, 100, 130, 45, 100)
	dec := e.Evaluate(pos, ts, 22500, 0)
	require.NotNil(t, dec)
	assert.Equal(t, models.ExitStopLoss, dec.Reason.Kind)
}

func TestCheckTrailing(t *testing.T) {
	e := NewExitEvaluator(testEngineConfig(), zerolog.Nop())
	pos := shortPosition(100, 0, 0)
	pos.Leg.TrailingEnabled = true
	pos.Leg.Trailing = models.TrailingConfig{Value1: 10, Value2: 5}

	// Below the activation profit nothing happens.
	bar(pos, 100, 100, 95, 95)
	assert.Nil(t, e.CheckTrailing(pos))

	// Profit 12 activates the trail at 7.
	bar(pos, 95, 95, 88, 88)
	assert.Nil(t, e.CheckTrailing(pos))

	// Profit 20 lifts the trail to 15.
	bar(pos, 88, 88, 80, 80)
	assert.Nil(t, e.CheckTrailing(pos))

	// Profit falls back to 14, at or under the trail.
	bar(pos, 80, 87, 80, 86)
	dec := e.CheckTrailing(pos)
	require.NotNil(t, dec)
	assert.Equal(t, models.ExitTrailing, dec.Reason.Kind)
	assert.Equal(t, 86.0, dec.Price)
	assert.True(t, dec.Reason.IsStopLoss())
}

func TestTrailingStateForgotten(t *testing.T) {
	e := NewExitEvaluator(testEngineConfig(), zerolog.Nop())
	pos := shortPosition(100, 0, 0)
	pos.Leg.TrailingEnabled = true
	pos.Leg.Trailing = models.TrailingConfig{Value1: 10, Value2: 5}

	bar(pos, 100, 100, 80, 80)
	e.CheckTrailing(pos)
	e.Forget(pos.ID)

	// After Forget the trail re-arms from scratch instead of firing on
	// the first bar.
	bar(pos, 80, 95, 80, 95)
	assert.Nil(t, e.CheckTrailing(pos))
}

func TestCheckTime(t *testing.T) {
	e := NewExitEvaluator(testEngineConfig(), zerolog.Nop())
	pos := shortPosition(100, 0, 0)
	bar(pos, 100, 100, 90, 92)

	assert.Nil(t, e.CheckTime(pos, mustClock(t, "15:09")))

	dec := e.CheckTime(pos, mustClock(t, "15:10"))
	require.NotNil(t, dec)
	assert.Equal(t, models.ExitTime, dec.Reason.Kind)
	assert.Equal(t, 92.0, dec.Price)
}

func TestCheckConditionalSpotMove(t *testing.T) {
	cfg := testEngineConfig()
	cfg.SpotMoveExit = 100
	e := NewExitEvaluator(cfg, zerolog.Nop())
	pos := shortPosition(100, 0, 0)

	assert.Nil(t, e.CheckConditional(pos, 22580))
	require.NotNil(t, e.CheckConditional(pos, 22600))
	require.NotNil(t, e.CheckConditional(pos, 22400), "moves down count too")
}

func TestCheckIndicatorVWAP(t *testing.T) {
	cfg := testEngineConfig()
	cfg.VWAPExit = true
	e := NewExitEvaluator(cfg, zerolog.Nop())

	call := shortPosition(100, 0, 0)
	assert.Nil(t, e.CheckIndicator(call, 22510, 22500), "call stays while spot above vwap")
	require.NotNil(t, e.CheckIndicator(call, 22490, 22500))

	put := shortPosition(100, 0, 0)
	put.Type = models.OptionPut
	assert.Nil(t, e.CheckIndicator(put, 22490, 22500))
	require.NotNil(t, e.CheckIndicator(put, 22510, 22500))
}

func mustClock(t *testing.T, clock string) time.Time {
	t.Helper()
	day := time.Date(2024, 6, 3, 0, 0, 0, 0, utils.IndiaLocation)
	ts, err := utils.AtClock(day, clock)
	if err != nil {
		t.Fatalf("bad clock %s: %v", clock, err)
	}
	return ts
}
