package legs

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"options-backtester/internal/errors"
	"options-backtester/internal/models"
)

// Leg parameter files are two-column key,value CSVs, one file per leg.
// Main legs live in <dir>/leg_data, lazy legs in <dir>/sub_leg_data.
const (
	mainLegDir = "leg_data"
	lazyLegDir = "sub_leg_data"
)

var weekdays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}

// LoadDir parses every leg file under dir and returns a registry.
func LoadDir(dir string) (*Registry, error) {
	var all []*models.LegConfig

	main, err := loadLegFiles(filepath.Join(dir, mainLegDir), false)
	if err != nil {
		return nil, err
	}
	if len(main) == 0 {
		return nil, fmt.Errorf("no leg files found under %s", filepath.Join(dir, mainLegDir))
	}
	all = append(all, main...)

	lazy, err := loadLegFiles(filepath.Join(dir, lazyLegDir), true)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	all = append(all, lazy...)

	return NewRegistry(all), nil
}

func loadLegFiles(dir string, lazy bool) ([]*models.LegConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)

	legs := make([]*models.LegConfig, 0, len(paths))
	for _, p := range paths {
		leg, err := ParseLegFile(p, lazy)
		if err != nil {
			return nil, err
		}
		legs = append(legs, leg)
	}
	return legs, nil
}

// ParseLegFile parses a single key,value leg file.
func ParseLegFile(path string, lazy bool) (*models.LegConfig, error) {
	kv, err := readKeyValues(path)
	if err != nil {
		return nil, err
	}

	stem := strings.TrimSuffix(filepath.Base(path), ".csv")
	legID := stem
	if !lazy {
		// Main leg files are named leg_<n>; the slot ID is <n>.
		if i := strings.LastIndex(stem, "_"); i >= 0 {
			legID = stem[i+1:]
		}
	}

	leg := &models.LegConfig{LegID: legID, UniqueID: stem, IsLazy: lazy}
	p := &legParser{kv: kv, legID: stem}

	leg.StrikeRule, err = models.ParseStrikeRule(p.str("strike_type", ""))
	if err != nil {
		return nil, errors.NewLegError(stem, "strike_type", err)
	}
	switch leg.StrikeRule {
	case models.StrikeITM, models.StrikeOTM:
		leg.Spread = p.integer("Spread", 0)
	case models.StrikeStraddlePct:
		leg.StraddlePremPct = p.float("atm_straddle_premium", 0)
	case models.StrikePremium:
		leg.PremiumMatch = models.PremiumMatch(strings.ToUpper(p.str("premium_consideration", "CLOSEST")))
		leg.PremiumValue = p.float("premium_value", 0)
	}

	leg.OptionType, err = models.ParseOptionType(p.str("option_type", ""))
	if err != nil {
		return nil, errors.NewLegError(stem, "option_type", err)
	}
	leg.Side, err = models.ParseSide(p.str("position", ""))
	if err != nil {
		return nil, errors.NewLegError(stem, "position", err)
	}
	leg.Expiry, err = models.ParseExpiryClass(p.str("leg_expiry_selection", "WEEKLY"))
	if err != nil {
		return nil, errors.NewLegError(stem, "leg_expiry_selection", err)
	}
	leg.EntryOn = p.str("entry_on", "")
	leg.Hedge = p.boolean("hedges")

	leg.TargetEnabled = p.boolean("target_profit_toggle")
	if leg.TargetEnabled {
		leg.TargetValue = p.float("target_profit_value", 0) / 100
	}

	leg.StopLossEnabled = p.boolean("stop_loss_toggle")
	if leg.StopLossEnabled {
		kind := p.str("stop_loss_type", "Percentage")
		switch kind {
		case "Points":
			leg.StopLossKind = models.StopLossPoints
			leg.StopLossValue = p.float("stop_loss_value", 0)
		case "Percentage":
			leg.StopLossKind = models.StopLossPercentage
			leg.StopLossValue = p.float("stop_loss_value", 0) / 100
		default:
			leg.StopLossKind = models.StopLossWeekday
			leg.StopLossValue = p.float("stop_loss_value", 0) / 100
			leg.WeekdayStops = make(map[string]float64, len(weekdays))
			for _, wd := range weekdays {
				if v, ok := kv[wd+"_stoploss"]; ok {
					f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
					if err != nil {
						return nil, errors.NewLegError(stem, wd+"_stoploss", err)
					}
					leg.WeekdayStops[wd] = f / 100
				}
			}
		}
	}

	leg.ReentryTgtEnabled = p.boolean("re_entry_on_tgt_toggle")
	leg.ReentryTgtMode = models.ReentryMode(p.str("re_entry_on_tgt_type", ""))
	leg.ReentrySLEnabled = p.boolean("re_entry_on_sl_toggle")
	leg.ReentrySLMode = models.ReentryMode(p.str("re_entry_on_sl_type", ""))
	if leg.ReentrySLEnabled {
		leg.ReentrySLBudget = p.integer("total_sl_rentry", 0)
	}
	if leg.ReentryTgtEnabled {
		leg.ReentryTgtBudget = p.integer("total_tgt_rentry", 0)
	}

	leg.TrailingEnabled = p.boolean("trail_sl_toggle")
	if leg.TrailingEnabled {
		leg.Trailing = models.TrailingConfig{
			Type:   p.str("trail_sl_type", ""),
			Value1: p.float("trail_sl_value1", 0),
			Value2: p.float("trail_sl_value2", 0),
		}
	}

	leg.VIX = models.VIXFilter{
		Enabled:  p.boolean("vix_checker_toggle"),
		Operator: p.str("vix_operator", ""),
		Value:    p.float("vix_value", 0),
	}

	leg.Momentum.Enabled = p.boolean("sm_toggle")
	if leg.Momentum.Enabled ||
		leg.ReentryTgtMode == models.ReentryMomentum ||
		leg.ReentrySLMode == models.ReentryMomentum {
		dir, err := models.ParseMomentumDirection(p.str("sm_percentage_direction", "PERCENTAGE_UP"))
		if err != nil {
			return nil, errors.NewLegError(stem, "sm_percentage_direction", err)
		}
		leg.Momentum.Direction = dir
		leg.Momentum.Value = p.float("sm_percent_value", 0)
		leg.Momentum.LevelBasis = models.MomentumBasis(p.str("sm_tgt_sl_price", string(models.BasisEntryPrice)))
	}

	leg.Range.Enabled = p.boolean("range_breakout_toggle")
	if leg.Range.Enabled {
		leg.Range.Start = normalizeClock(p.str("range_breakout_start", "Default"))
		leg.Range.ThresholdTime = normalizeClock(p.str("range_breakout_threshold_time", "15:30"))
		leg.Range.BreakoutOf = p.str("range_breakout_of", "High")
		if strings.EqualFold(p.str("underlying_asset", "Instrument"), "Underlying") {
			leg.Range.Underlying = models.RangeOfSpot
		} else {
			leg.Range.Underlying = models.RangeOfOption
		}
		field, err := models.ParsePriceField(p.str("range_compare_section", "Close"))
		if err != nil {
			return nil, errors.NewLegError(stem, "range_compare_section", err)
		}
		leg.Range.CompareField = field
	}

	leg.RollingStraddle = p.boolean("rolling_straddle_toggle")

	leg.StartOverFrom = p.str("start_over_from", "")
	leg.HopOnTarget = p.str("leg_tobe_executed_on_target", "")
	leg.HopOnSL = p.str("leg_tobe_executed_on_sl", "")
	leg.NextLazyLeg = p.str("next_lazy_leg_to_be_executed", "")
	leg.HopBudgetSL = p.integer("leg_hopping_count_sl", 0)
	leg.HopBudgetTgt = p.integer("leg_hopping_count_tgt", 0)
	leg.HopBudgetLzy = p.integer("leg_hopping_count_next_leg", 0)

	if p.err != nil {
		return nil, p.err
	}
	return leg, nil
}

func readKeyValues(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading leg file %s: %w", path, err)
	}

	kv := make(map[string]string, len(records))
	for _, rec := range records {
		if len(rec) < 2 {
			continue
		}
		kv[strings.TrimSpace(rec[0])] = strings.TrimSpace(rec[1])
	}
	return kv, nil
}

// legParser accumulates the first conversion error instead of failing on
// every lookup.
type legParser struct {
	kv    map[string]string
	legID string
	err   error
}

func (p *legParser) str(key, def string) string {
	if v, ok := p.kv[key]; ok && v != "" {
		return v
	}
	return def
}

func (p *legParser) boolean(key string) bool {
	return strings.EqualFold(p.kv[key], "TRUE")
}

func (p *legParser) float(key string, def float64) float64 {
	v, ok := p.kv[key]
	if !ok || v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		if p.err == nil {
			p.err = errors.NewLegError(p.legID, key, err)
		}
		return def
	}
	return f
}

func (p *legParser) integer(key string, def int) int {
	// Counts are sometimes written as floats ("2.0").
	return int(p.float(key, float64(def)))
}

// normalizeClock converts HH:MM:SS times to HH:MM and passes through the
// sentinel values "Default" and "Exact".
func normalizeClock(s string) string {
	if s == "Default" || s == "Exact" {
		return s
	}
	if t, err := time.Parse("15:04:05", s); err == nil {
		return t.Format("15:04")
	}
	return s
}
