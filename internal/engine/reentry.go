package engine

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"options-backtester/internal/legs"
	"options-backtester/internal/models"
)

// Action is a scheduled follow-up entry: re-enter the same leg slot or
// hop to another leg bound to it. CostBasis is non-zero only for cost
// based re-entries.
type Action struct {
	Leg       *models.LegConfig
	CostBasis float64
	Detail    string
}

type pendingReentry struct {
	leg      *models.LegConfig
	level    float64
	dir      models.MomentumDirection
	exitSpot float64
	since    time.Time
}

// Scheduler decides what happens after a position closes: re-entries
// subject to the per-slot budgets take precedence, then leg hops once
// the budget is spent or disabled. Momentum re-entries wait in a
// pending list until spot moves far enough from the exit level.
type Scheduler struct {
	registry *legs.Registry
	logger   zerolog.Logger
	pending  []*pendingReentry
	slUsed   map[string]int
	tgtUsed  map[string]int
	hopUsed  map[string]int
}

// NewScheduler builds a scheduler over the strategy's leg registry.
func NewScheduler(registry *legs.Registry, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		registry: registry,
		logger:   logger,
		slUsed:   make(map[string]int),
		tgtUsed:  make(map[string]int),
		hopUsed:  make(map[string]int),
	}
}

// Reset clears per-day state. All budget accounting, hops included, is
// scheduler local so the registry stays untouched between days.
func (s *Scheduler) Reset() {
	s.pending = s.pending[:0]
	s.slUsed = make(map[string]int)
	s.tgtUsed = make(map[string]int)
	s.hopUsed = make(map[string]int)
}

// OnClose inspects a just-closed position and returns any immediate
// follow-up actions. Momentum re-entries are parked until Check fires
// them; firstEntry carries the slot's first fill price for cost based
// re-entries.
func (s *Scheduler) OnClose(pos *models.Position, reason models.ExitReason, ts time.Time, firstEntry float64) []*Action {
	leg := pos.Leg
	if leg == nil {
		return nil
	}

	// Time, conditional and indicator exits do not restart the leg.
	if !reason.IsStopLoss() && !reason.IsTarget() {
		return nil
	}

	var (
		enabled bool
		mode    models.ReentryMode
		budget  int
		used    map[string]int
	)
	if reason.IsTarget() {
		enabled, mode, budget, used = leg.ReentryTgtEnabled, leg.ReentryTgtMode, leg.ReentryTgtBudget, s.tgtUsed
	} else {
		enabled, mode, budget, used = leg.ReentrySLEnabled, leg.ReentrySLMode, leg.ReentrySLBudget, s.slUsed
	}
	// Budgeted re-entry wins over hopping. Hops only fire once the
	// re-entry budget is spent or the re-entry is disabled.
	if !enabled || used[leg.LegID] >= budget {
		if act := s.tryHop(leg, reason); act != nil {
			return []*Action{act}
		}
		return nil
	}
	used[leg.LegID]++

	switch mode {
	case models.ReentryMomentum:
		s.pending = append(s.pending, &pendingReentry{
			leg:      leg,
			level:    momentumLevel(pos.ExitSpot, leg.Momentum.Direction, leg.Momentum.Value),
			dir:      leg.Momentum.Direction,
			exitSpot: pos.ExitSpot,
			since:    ts,
		})
		s.logger.Debug().
			Str("leg", leg.LegID).
			Float64("exit_spot", pos.ExitSpot).
			Msg("Momentum re-entry armed")
		return nil
	case models.ReentryCost:
		return []*Action{{
			Leg:       leg,
			CostBasis: firstEntry,
			Detail:    fmt.Sprintf("re-entry at cost %.2f", firstEntry),
		}}
	default:
		// RE ASAP and anything unrecognized re-enter on the next bar.
		return []*Action{{Leg: leg, Detail: "re-entry asap"}}
	}
}

// tryHop resolves a leg hop for the exit kind, consuming from the
// scheduler's per-day hop counters against the configured budget.
// Returns nil when no hop applies.
func (s *Scheduler) tryHop(leg *models.LegConfig, reason models.ExitReason) *Action {
	var (
		nextID string
		kind   legs.HopKind
	)
	switch {
	case reason.IsTarget() && leg.HopOnTarget != "":
		nextID, kind = leg.HopOnTarget, legs.HopOnTarget
	case reason.IsStopLoss() && leg.HopOnSL != "":
		nextID, kind = leg.HopOnSL, legs.HopOnSL
	case leg.NextLazyLeg != "":
		nextID, kind = leg.NextLazyLeg, legs.HopOnNextLeg
	default:
		return nil
	}
	key := leg.UniqueID + "/" + string(kind)
	if s.hopUsed[key] >= s.registry.HopBudget(leg.UniqueID, kind) {
		return nil
	}

	next, err := s.registry.NextOrder(nextID, leg.LegID)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("leg", leg.UniqueID).
			Str("next", nextID).
			Msg("Hop target missing, skipping")
		return nil
	}
	s.hopUsed[key]++
	s.logger.Info().
		Str("leg", leg.UniqueID).
		Str("next", next.UniqueID).
		Msg("Hopping to next leg")
	return &Action{Leg: next, Detail: fmt.Sprintf("hop %s -> %s", leg.UniqueID, next.UniqueID)}
}

// Check fires momentum re-entries whose spot trigger has been reached.
// At most one action fires per bar so fills stay ordered.
func (s *Scheduler) Check(ts time.Time, spot float64) []*Action {
	var out []*Action
	remaining := s.pending[:0]
	for _, p := range s.pending {
		if len(out) > 0 || !momentumReached(spot, p.level, p.dir) {
			remaining = append(remaining, p)
			continue
		}
		out = append(out, &Action{
			Leg:    p.leg,
			Detail: fmt.Sprintf("momentum re-entry, spot %.2f crossed %.2f", spot, p.level),
		})
	}
	s.pending = remaining
	return out
}

func momentumReached(spot, level float64, dir models.MomentumDirection) bool {
	switch dir {
	case models.MomentumPercentUp, models.MomentumPointsUp:
		return spot >= level
	default:
		return spot <= level
	}
}

// PendingCount reports how many momentum re-entries are still waiting.
func (s *Scheduler) PendingCount() int { return len(s.pending) }
