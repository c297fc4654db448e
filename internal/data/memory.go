package data

import (
	"context"
	"sort"
	"time"

	"options-backtester/internal/errors"
	"options-backtester/internal/models"
)

// MemoryProvider serves one day of option bars from memory. Build once,
// then read from any number of goroutines.
type MemoryProvider struct {
	day      time.Time
	expiries map[models.ExpiryClass]time.Time
	byTicker map[string][]models.PriceRow
	byMinute map[int64][]models.PriceRow
}

// NewMemoryProvider indexes the given rows for one trading day. Rows
// outside the day are ignored. Expiry classes resolve against the
// distinct expiry dates still alive on that day: the nearest is WEEKLY,
// the one after NEXT_WEEKLY, and the last expiry sharing the weekly's
// month is MONTHLY.
func NewMemoryProvider(day time.Time, rows []models.PriceRow) *MemoryProvider {
	p := &MemoryProvider{
		day:      day,
		expiries: make(map[models.ExpiryClass]time.Time),
		byTicker: make(map[string][]models.PriceRow),
		byMinute: make(map[int64][]models.PriceRow),
	}

	y, m, d := day.Date()
	seen := make(map[time.Time]bool)
	var expiries []time.Time
	for _, r := range rows {
		ry, rm, rd := r.Timestamp.Date()
		if ry != y || rm != m || rd != d {
			continue
		}
		p.byTicker[r.Ticker] = append(p.byTicker[r.Ticker], r)
		k := minuteKey(r.Timestamp)
		p.byMinute[k] = append(p.byMinute[k], r)
		exp := dateOnly(r.Expiry)
		if !exp.Before(dateOnly(day)) && !seen[exp] {
			seen[exp] = true
			expiries = append(expiries, exp)
		}
	}
	for _, rows := range p.byTicker {
		sort.Slice(rows, func(i, j int) bool { return rows[i].Timestamp.Before(rows[j].Timestamp) })
	}
	sort.Slice(expiries, func(i, j int) bool { return expiries[i].Before(expiries[j]) })

	if len(expiries) > 0 {
		p.expiries[models.ExpiryWeekly] = expiries[0]
		next := expiries[0]
		if len(expiries) > 1 {
			next = expiries[1]
		}
		p.expiries[models.ExpiryNextWeekly] = next

		monthly := expiries[0]
		for _, e := range expiries {
			if e.Month() == expiries[0].Month() && e.Year() == expiries[0].Year() {
				monthly = e
			}
		}
		p.expiries[models.ExpiryMonthly] = monthly
	}
	return p
}

// ExpiryDate resolves an expiry class to its concrete date for this day.
func (p *MemoryProvider) ExpiryDate(class models.ExpiryClass) (time.Time, bool) {
	e, ok := p.expiries[class]
	return e, ok
}

// RowAt implements Provider.
func (p *MemoryProvider) RowAt(_ context.Context, q Query) (models.PriceRow, error) {
	if q.Ticker != "" {
		rows := p.byTicker[q.Ticker]
		i := sort.Search(len(rows), func(i int) bool { return !rows[i].Timestamp.Before(q.At) })
		if i < len(rows) && rows[i].Timestamp.Equal(q.At) {
			return rows[i], nil
		}
		return models.PriceRow{}, errors.ErrNoData
	}

	exp, ok := p.expiries[q.Expiry]
	if !ok {
		return models.PriceRow{}, errors.ErrNoData
	}
	for _, r := range p.byMinute[minuteKey(q.At)] {
		if r.Strike == q.Strike && r.Type == q.Type && dateOnly(r.Expiry).Equal(exp) {
			return r, nil
		}
	}
	return models.PriceRow{}, errors.ErrNoData
}

// LatestRow implements Provider.
func (p *MemoryProvider) LatestRow(ctx context.Context, q Query) (models.PriceRow, error) {
	if q.Ticker == "" {
		return p.RowAt(ctx, q)
	}
	rows := p.byTicker[q.Ticker]
	i := sort.Search(len(rows), func(i int) bool { return rows[i].Timestamp.After(q.At) })
	if i == 0 {
		return models.PriceRow{}, errors.ErrNoData
	}
	return rows[i-1], nil
}

// WindowRows implements Provider.
func (p *MemoryProvider) WindowRows(_ context.Context, q Query, from, to time.Time) ([]models.PriceRow, error) {
	rows := p.byTicker[q.Ticker]
	if q.Ticker == "" {
		exp, ok := p.expiries[q.Expiry]
		if !ok {
			return nil, errors.ErrNoData
		}
		for _, bucket := range p.byMinute {
			for _, r := range bucket {
				if r.Strike == q.Strike && r.Type == q.Type && dateOnly(r.Expiry).Equal(exp) {
					rows = append(rows, r)
				}
			}
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].Timestamp.Before(rows[j].Timestamp) })
	}

	var out []models.PriceRow
	for _, r := range rows {
		if r.Timestamp.Before(from) || r.Timestamp.After(to) {
			continue
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, errors.ErrNoData
	}
	return out, nil
}

// ChainAt implements Provider.
func (p *MemoryProvider) ChainAt(_ context.Context, expiry models.ExpiryClass, opt models.OptionType, at time.Time) ([]models.PriceRow, error) {
	exp, ok := p.expiries[expiry]
	if !ok {
		return nil, errors.ErrNoData
	}
	var out []models.PriceRow
	for _, r := range p.byMinute[minuteKey(at)] {
		if r.Type == opt && dateOnly(r.Expiry).Equal(exp) {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, errors.ErrNoData
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strike < out[j].Strike })
	return out, nil
}

func minuteKey(ts time.Time) int64 {
	return ts.Unix() / 60
}

func dateOnly(ts time.Time) time.Time {
	y, m, d := ts.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, ts.Location())
}
