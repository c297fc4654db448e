package models

import (
	"fmt"
	"strings"
)

// StrikeRule selects how a leg's strike is derived from spot.
type StrikeRule string

const (
	StrikeATM         StrikeRule = "ATM"
	StrikeITM         StrikeRule = "ITM"
	StrikeOTM         StrikeRule = "OTM"
	StrikePremium     StrikeRule = "PREMIUM"
	StrikeStraddlePct StrikeRule = "ATM STRADDLE PREMIUM PERCENTAGE"
)

// ParseStrikeRule normalizes a strike selection string.
func ParseStrikeRule(s string) (StrikeRule, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ATM":
		return StrikeATM, nil
	case "ITM":
		return StrikeITM, nil
	case "OTM":
		return StrikeOTM, nil
	case "PREMIUM":
		return StrikePremium, nil
	case "ATM STRADDLE PREMIUM PERCENTAGE":
		return StrikeStraddlePct, nil
	default:
		return "", fmt.Errorf("unknown strike rule %q", s)
	}
}

// PremiumMatch selects how a premium-based strike search picks a contract.
type PremiumMatch string

const (
	PremiumClosest PremiumMatch = "CLOSEST"
	PremiumAtLeast PremiumMatch = "PREMIUM>="
	PremiumNearest PremiumMatch = "NEAREST"
)

// StopLossKind selects how a leg's stop level is computed.
type StopLossKind string

const (
	StopLossPoints     StopLossKind = "Points"
	StopLossPercentage StopLossKind = "Percentage"
	// StopLossWeekday resolves to a percentage keyed by the trading weekday.
	StopLossWeekday StopLossKind = "Weekday"
)

// MomentumDirection selects how a momentum trigger is armed relative to
// the reference price.
type MomentumDirection string

const (
	MomentumPercentUp   MomentumDirection = "PERCENTAGE_UP"
	MomentumPercentDown MomentumDirection = "PERCENTAGE_DOWN"
	MomentumPointsUp    MomentumDirection = "POINTS_UP"
	MomentumPointsDown  MomentumDirection = "POINTS_DOWN"
)

// ParseMomentumDirection normalizes a momentum direction string.
func ParseMomentumDirection(s string) (MomentumDirection, error) {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", "_")) {
	case "PERCENTAGE_UP":
		return MomentumPercentUp, nil
	case "PERCENTAGE_DOWN":
		return MomentumPercentDown, nil
	case "POINTS_UP":
		return MomentumPointsUp, nil
	case "POINTS_DOWN":
		return MomentumPointsDown, nil
	default:
		return "", fmt.Errorf("unknown momentum direction %q", s)
	}
}

// MomentumBasis selects which price seeds stop and target levels for a
// momentum-filled order.
type MomentumBasis string

const (
	BasisEntryPrice    MomentumBasis = "Entry_price"
	BasisMomentumPrice MomentumBasis = "SM_price"
	BasisSystemPrice   MomentumBasis = "System_price"
)

// RangeSource selects which series a range breakout watches.
type RangeSource string

const (
	RangeOfSpot   RangeSource = "SPOT"
	RangeOfOption RangeSource = "OPTION"
)

// ReentryMode selects how a closed leg re-enters.
type ReentryMode string

const (
	ReentryASAP     ReentryMode = "RE ASAP"
	ReentryMomentum ReentryMode = "RE MOMENTUM"
	ReentryCost     ReentryMode = "RE COST"
)

// TrailingConfig holds trailing stop parameters for a leg. Value1 is the
// profit move that arms or advances the trail, Value2 the stop adjustment
// applied per move.
type TrailingConfig struct {
	Type   string
	Value1 float64
	Value2 float64
}

// VIXFilter gates a leg's entry on the day-open volatility index value.
type VIXFilter struct {
	Enabled  bool
	Operator string // ">", "<", ">=", "<="
	Value    float64
}

// Allows reports whether the given VIX value passes the filter. A disabled
// filter allows everything.
func (f VIXFilter) Allows(vix float64) bool {
	if !f.Enabled {
		return true
	}
	switch f.Operator {
	case ">":
		return vix > f.Value
	case "<":
		return vix < f.Value
	case ">=":
		return vix >= f.Value
	case "<=":
		return vix <= f.Value
	default:
		return true
	}
}

// RangeBreakoutConfig holds the observation window and comparison rules
// for a range breakout entry.
type RangeBreakoutConfig struct {
	Enabled       bool
	Start         string // HH:MM, window opens here if later than submit
	ThresholdTime string // HH:MM, window closes here
	BreakoutOf    string // "High" or "Low"
	Underlying    RangeSource
	CompareField  PriceField
}

// MomentumConfig holds the trigger parameters for momentum entries and
// momentum-based re-entries.
type MomentumConfig struct {
	Enabled    bool
	Direction  MomentumDirection
	Value      float64
	LevelBasis MomentumBasis
}

// LegConfig is the full configuration of one strategy leg as loaded from
// its parameter file. Lazy legs share the same shape and are activated by
// hopping from an executed leg.
type LegConfig struct {
	LegID    string
	UniqueID string
	IsLazy   bool

	OptionType OptionType
	Side       Side
	Expiry     ExpiryClass
	EntryOn    string
	Hedge      bool

	StrikeRule      StrikeRule
	Spread          int
	PremiumMatch    PremiumMatch
	PremiumValue    float64
	StraddlePremPct float64

	StopLossEnabled bool
	StopLossKind    StopLossKind
	StopLossValue   float64
	// WeekdayStops maps weekday name to a fractional stop when
	// StopLossKind is StopLossWeekday.
	WeekdayStops map[string]float64

	TargetEnabled bool
	TargetValue   float64

	TrailingEnabled bool
	Trailing        TrailingConfig

	// RollingStraddle marks legs configured for rolling straddle entry.
	// The resolver does not implement that strategy and treats such legs
	// as immediate entries after logging a warning.
	RollingStraddle bool

	Momentum MomentumConfig
	Range    RangeBreakoutConfig
	VIX      VIXFilter

	ReentrySLEnabled  bool
	ReentrySLMode     ReentryMode
	ReentrySLBudget   int
	ReentryTgtEnabled bool
	ReentryTgtMode    ReentryMode
	ReentryTgtBudget  int

	// Leg hopping: on close, control can pass to another leg instead of
	// re-entering this one. Counts bound how often each transition fires.
	HopOnTarget  string
	HopOnSL      string
	NextLazyLeg  string
	HopBudgetSL  int
	HopBudgetTgt int
	HopBudgetLzy int

	StartOverFrom string
}

// EntryStyle names the entry trigger the leg arms. Momentum wins when
// both triggers are configured.
func (l *LegConfig) EntryStyle() string {
	switch {
	case l.Momentum.Enabled:
		return "Momentum"
	case l.Range.Enabled:
		return "Range Breakout"
	default:
		return "Immediate"
	}
}

// HasStopLoss reports whether the leg computes a stop level on entry.
func (l *LegConfig) HasStopLoss() bool { return l.StopLossEnabled }

// HasTarget reports whether the leg computes a target level on entry.
func (l *LegConfig) HasTarget() bool { return l.TargetEnabled }

// StopFraction resolves the stop loss value for the given weekday. Point
// based stops return the raw value; percentage and weekday stops return a
// fraction of entry price.
func (l *LegConfig) StopFraction(weekday string) float64 {
	if l.StopLossKind == StopLossWeekday {
		if v, ok := l.WeekdayStops[weekday]; ok {
			return v
		}
	}
	return l.StopLossValue
}
