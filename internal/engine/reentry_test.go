package engine

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-backtester/internal/legs"
	"options-backtester/internal/models"
)

func closedPosition(leg *models.LegConfig, exitSpot float64) *models.Position {
	return &models.Position{
		ID:       "POS-001",
		LegID:    leg.LegID,
		Side:     leg.Side,
		ExitSpot: exitSpot,
		Leg:      leg,
	}
}

func slReason() models.ExitReason {
	return models.ExitReason{Kind: models.ExitStopLoss}
}

func tgtReason() models.ExitReason {
	return models.ExitReason{Kind: models.ExitTarget}
}

func newTestScheduler(legList ...*models.LegConfig) (*Scheduler, *legs.Registry) {
	reg := legs.NewRegistry(legList)
	return NewScheduler(reg, zerolog.Nop()), reg
}

func TestReentryASAP(t *testing.T) {
	leg := sellLeg("leg_1")
	leg.ReentrySLEnabled = true
	leg.ReentrySLMode = models.ReentryASAP
	leg.ReentrySLBudget = 2
	s, _ := newTestScheduler(leg)
	ts := mustClock(t, "10:00")

	acts := s.OnClose(closedPosition(leg, 22500), slReason(), ts, 100)
	require.Len(t, acts, 1)
	assert.Same(t, leg, acts[0].Leg)
	assert.Zero(t, acts[0].CostBasis)
}

func TestReentryBudgetExhausts(t *testing.T) {
	leg := sellLeg("leg_1")
	leg.ReentrySLEnabled = true
	leg.ReentrySLMode = models.ReentryASAP
	leg.ReentrySLBudget = 2
	s, _ := newTestScheduler(leg)
	ts := mustClock(t, "10:00")

	assert.Len(t, s.OnClose(closedPosition(leg, 22500), slReason(), ts, 100), 1)
	assert.Len(t, s.OnClose(closedPosition(leg, 22500), slReason(), ts, 100), 1)
	assert.Empty(t, s.OnClose(closedPosition(leg, 22500), slReason(), ts, 100), "third stop exceeds the budget")
}

func TestReentryBudgetsTrackExitKindSeparately(t *testing.T) {
	leg := sellLeg("leg_1")
	leg.ReentrySLEnabled = true
	leg.ReentrySLMode = models.ReentryASAP
	leg.ReentrySLBudget = 1
	leg.ReentryTgtEnabled = true
	leg.ReentryTgtMode = models.ReentryASAP
	leg.ReentryTgtBudget = 1
	s, _ := newTestScheduler(leg)
	ts := mustClock(t, "10:00")

	assert.Len(t, s.OnClose(closedPosition(leg, 22500), slReason(), ts, 100), 1)
	assert.Len(t, s.OnClose(closedPosition(leg, 22500), tgtReason(), ts, 100), 1, "target budget is independent")
	assert.Empty(t, s.OnClose(closedPosition(leg, 22500), slReason(), ts, 100))
}

func TestNoReentryOnTimeExit(t *testing.T) {
	leg := sellLeg("leg_1")
	leg.ReentrySLEnabled = true
	leg.ReentrySLMode = models.ReentryASAP
	leg.ReentrySLBudget = 5
	s, _ := newTestScheduler(leg)

	acts := s.OnClose(closedPosition(leg, 22500), models.ExitReason{Kind: models.ExitTime}, mustClock(t, "15:10"), 100)
	assert.Empty(t, acts)
}

func TestTrailingExitCountsAsStop(t *testing.T) {
	leg := sellLeg("leg_1")
	leg.ReentrySLEnabled = true
	leg.ReentrySLMode = models.ReentryASAP
	leg.ReentrySLBudget = 1
	s, _ := newTestScheduler(leg)

	acts := s.OnClose(closedPosition(leg, 22500), models.ExitReason{Kind: models.ExitTrailing}, mustClock(t, "11:00"), 100)
	assert.Len(t, acts, 1)
}

func TestReentryCostCarriesBasis(t *testing.T) {
	leg := sellLeg("leg_1")
	leg.ReentryTgtEnabled = true
	leg.ReentryTgtMode = models.ReentryCost
	leg.ReentryTgtBudget = 1
	s, _ := newTestScheduler(leg)

	acts := s.OnClose(closedPosition(leg, 22500), tgtReason(), mustClock(t, "11:00"), 104.5)
	require.Len(t, acts, 1)
	assert.Equal(t, 104.5, acts[0].CostBasis)
}

func TestReentryUnknownModeBehavesAsASAP(t *testing.T) {
	leg := sellLeg("leg_1")
	leg.ReentrySLEnabled = true
	leg.ReentrySLMode = "SOMETHING NEW"
	leg.ReentrySLBudget = 1
	s, _ := newTestScheduler(leg)

	acts := s.OnClose(closedPosition(leg, 22500), slReason(), mustClock(t, "11:00"), 100)
	assert.Len(t, acts, 1)
}

func TestReentryMomentumWaitsForSpot(t *testing.T) {
	leg := sellLeg("leg_1")
	leg.ReentrySLEnabled = true
	leg.ReentrySLMode = models.ReentryMomentum
	leg.ReentrySLBudget = 1
	leg.Momentum = models.MomentumConfig{
		Direction: models.MomentumPercentUp,
		Value:     1, // 1% above the exit spot
	}
	s, _ := newTestScheduler(leg)
	ts := mustClock(t, "10:00")

	acts := s.OnClose(closedPosition(leg, 22500), slReason(), ts, 100)
	assert.Empty(t, acts, "momentum re-entries park until the spot trigger")
	assert.Equal(t, 1, s.PendingCount())

	assert.Empty(t, s.Check(ts, 22600), "22600 is short of 22725")

	fired := s.Check(ts, 22730)
	require.Len(t, fired, 1)
	assert.Same(t, leg, fired[0].Leg)
	assert.Zero(t, s.PendingCount())
}

func TestCheckFiresOneActionPerBar(t *testing.T) {
	mk := func(id string) *models.LegConfig {
		leg := sellLeg(id)
		leg.ReentrySLEnabled = true
		leg.ReentrySLMode = models.ReentryMomentum
		leg.ReentrySLBudget = 1
		leg.Momentum = models.MomentumConfig{Direction: models.MomentumPercentUp, Value: 1}
		return leg
	}
	legA, legB := mk("leg_1"), mk("leg_2")
	s, _ := newTestScheduler(legA, legB)
	ts := mustClock(t, "10:00")

	s.OnClose(closedPosition(legA, 22500), slReason(), ts, 100)
	s.OnClose(closedPosition(legB, 22500), slReason(), ts, 100)
	require.Equal(t, 2, s.PendingCount())

	assert.Len(t, s.Check(ts, 23000), 1)
	assert.Equal(t, 1, s.PendingCount())
	assert.Len(t, s.Check(ts, 23000), 1)
	assert.Zero(t, s.PendingCount())
}

func TestReentryBudgetBeatsHopOnStop(t *testing.T) {
	leg := sellLeg("leg_1")
	leg.ReentrySLEnabled = true
	leg.ReentrySLMode = models.ReentryASAP
	leg.ReentrySLBudget = 1
	leg.HopOnSL = "1.1"
	leg.HopBudgetSL = 1

	lazy := sellLeg("1_1")
	lazy.IsLazy = true

	s, reg := newTestScheduler(leg, lazy)
	ts := mustClock(t, "10:30")

	// A live re-entry budget wins over the configured hop.
	acts := s.OnClose(closedPosition(leg, 22500), slReason(), ts, 100)
	require.Len(t, acts, 1)
	assert.Equal(t, "leg_1", acts[0].Leg.UniqueID)

	// Budget spent: the next stop hops to the lazy leg.
	acts = s.OnClose(closedPosition(leg, 22500), slReason(), ts, 100)
	require.Len(t, acts, 1)
	assert.Equal(t, "1_1", acts[0].Leg.UniqueID)
	assert.Equal(t, "leg_1", acts[0].Leg.LegID, "hop target is bound to the closing slot")
	assert.Equal(t, 1, reg.HopBudget("leg_1", legs.HopOnSL), "registry budgets are never mutated")

	// Both exhausted: nothing restarts the leg.
	assert.Empty(t, s.OnClose(closedPosition(leg, 22500), slReason(), ts, 100))
}

func TestHopWithoutReentryBudget(t *testing.T) {
	leg := sellLeg("leg_1")
	leg.HopOnSL = "1.1"
	leg.HopBudgetSL = 1

	lazy := sellLeg("1_1")
	lazy.IsLazy = true

	s, _ := newTestScheduler(leg, lazy)
	ts := mustClock(t, "10:30")

	acts := s.OnClose(closedPosition(leg, 22500), slReason(), ts, 100)
	require.Len(t, acts, 1)
	assert.Equal(t, "1_1", acts[0].Leg.UniqueID, "disabled re-entry goes straight to the hop")
	assert.Empty(t, s.OnClose(closedPosition(leg, 22500), slReason(), ts, 100), "hop budget spent")
}

func TestHopBudgetRestoresOnReset(t *testing.T) {
	leg := sellLeg("leg_1")
	leg.HopOnSL = "1.1"
	leg.HopBudgetSL = 1

	lazy := sellLeg("1_1")
	lazy.IsLazy = true

	s, reg := newTestScheduler(leg, lazy)
	ts := mustClock(t, "10:30")

	require.Len(t, s.OnClose(closedPosition(leg, 22500), slReason(), ts, 100), 1)
	require.Empty(t, s.OnClose(closedPosition(leg, 22500), slReason(), ts, 100))

	// A new day over the same registry gets the full budget back.
	s.Reset()
	acts := s.OnClose(closedPosition(leg, 22500), slReason(), ts, 100)
	require.Len(t, acts, 1)
	assert.Equal(t, "1_1", acts[0].Leg.UniqueID)

	// A second scheduler sharing the registry is equally unaffected.
	other := NewScheduler(reg, zerolog.Nop())
	acts = other.OnClose(closedPosition(leg, 22500), slReason(), ts, 100)
	require.Len(t, acts, 1)
	assert.Equal(t, "1_1", acts[0].Leg.UniqueID)
}

func TestHopMissingTargetDropsAction(t *testing.T) {
	leg := sellLeg("leg_1")
	leg.HopOnSL = "9.9"
	leg.HopBudgetSL = 1

	s, _ := newTestScheduler(leg)
	acts := s.OnClose(closedPosition(leg, 22500), slReason(), mustClock(t, "10:30"), 100)
	assert.Empty(t, acts, "unknown hop target is skipped")
}

func TestSchedulerReset(t *testing.T) {
	leg := sellLeg("leg_1")
	leg.ReentrySLEnabled = true
	leg.ReentrySLMode = models.ReentryMomentum
	leg.ReentrySLBudget = 1
	leg.Momentum = models.MomentumConfig{Direction: models.MomentumPercentUp, Value: 1}
	s, _ := newTestScheduler(leg)

	s.OnClose(closedPosition(leg, 22500), slReason(), mustClock(t, "10:00"), 100)
	require.Equal(t, 1, s.PendingCount())

	s.Reset()
	assert.Zero(t, s.PendingCount())

	// Budgets start over after a reset.
	acts := s.OnClose(closedPosition(leg, 22500), slReason(), mustClock(t, "10:00"), 100)
	assert.Empty(t, acts) // momentum parks again
	assert.Equal(t, 1, s.PendingCount())
}
