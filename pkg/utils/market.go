package utils

import (
	"math"
	"time"

	"options-backtester/internal/models"
)

// IndiaLocation is the timezone for Indian markets.
var IndiaLocation *time.Location

func init() {
	var err error
	IndiaLocation, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// Fallback to UTC+5:30
		IndiaLocation = time.FixedZone("IST", 5*60*60+30*60)
	}
}

// ATMStrike rounds spot to the nearest strike on the grid.
func ATMStrike(spot, base float64) float64 {
	return base * math.Round(spot/base)
}

// OffsetStrike returns the strike `spread` grid steps away from spot,
// rounded onto the grid. OTM calls and ITM puts sit above spot; ITM
// calls and OTM puts sit below.
func OffsetStrike(spot, base float64, spread int, opt models.OptionType, rule models.StrikeRule) float64 {
	offset := float64(spread) * base

	above := (opt == models.OptionCall) == (rule == models.StrikeOTM)
	if above {
		return ATMStrike(spot+offset, base)
	}
	return ATMStrike(spot-offset, base)
}

// AtClock returns the instant on `day` at the wall clock time given as
// HH:MM, in the market timezone.
func AtClock(day time.Time, clock string) (time.Time, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, IndiaLocation), nil
}

// SameOrAfterClock reports whether ts is at or past the HH:MM clock time
// on its own day. Malformed clock strings report false.
func SameOrAfterClock(ts time.Time, clock string) bool {
	at, err := AtClock(ts, clock)
	if err != nil {
		return false
	}
	return !ts.Before(at)
}

// SessionMinutes enumerates every minute from start to end inclusive.
func SessionMinutes(start, end time.Time) []time.Time {
	if end.Before(start) {
		return nil
	}
	out := make([]time.Time, 0, int(end.Sub(start)/time.Minute)+1)
	for ts := start; !ts.After(end); ts = ts.Add(time.Minute) {
		out = append(out, ts)
	}
	return out
}

// TradingDays enumerates the weekdays from `from` to `to` inclusive.
// Exchange holidays are not modelled; days without data are skipped by
// the driver instead.
func TradingDays(from, to time.Time) []time.Time {
	var days []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		days = append(days, d)
	}
	return days
}
