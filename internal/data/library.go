package data

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"options-backtester/internal/config"
	"options-backtester/internal/errors"
	"options-backtester/internal/models"
)

// Library hands out DayFrames. Months flow warehouse -> SQLite cache ->
// RAM; a month is fetched at most once per process.
type Library struct {
	src    Source
	cache  *MonthCache
	cfg    config.DataConfig
	index  string
	logger zerolog.Logger

	mu     sync.RWMutex
	months map[string][]models.PriceRow
	spots  map[string][]models.SpotRow
	vix    map[string][]models.SpotRow
}

// NewLibrary builds a library over the given source. cache may be nil
// when caching is disabled.
func NewLibrary(src Source, cache *MonthCache, cfg config.DataConfig, index string, logger zerolog.Logger) *Library {
	return &Library{
		src:    src,
		cache:  cache,
		cfg:    cfg,
		index:  strings.ToLower(index),
		logger: logger,
		months: make(map[string][]models.PriceRow),
		spots:  make(map[string][]models.SpotRow),
		vix:    make(map[string][]models.SpotRow),
	}
}

// SpotTicker is the warehouse ticker for the configured index.
func (l *Library) SpotTicker() string {
	return strings.ToUpper(l.index)
}

// Day assembles the frame for one trading day. Days without spot bars
// return errors.ErrNoData; callers skip them.
func (l *Library) Day(ctx context.Context, date time.Time) (*DayFrame, error) {
	year, month, _ := date.Date()

	optRows, err := l.optionMonth(ctx, year, month)
	if err != nil {
		return nil, err
	}
	spotRows, err := l.spotMonth(ctx, l.SpotTicker(), year, month, l.spots)
	if err != nil {
		return nil, err
	}
	vixRows, err := l.spotMonth(ctx, l.cfg.VIXTicker, year, month, l.vix)
	if err != nil {
		// A missing volatility series only disables VIX gated legs.
		l.logger.Warn().Err(err).Str("ticker", l.cfg.VIXTicker).Msg("No volatility index data for month")
		vixRows = nil
	}

	daySpot := filterDay(spotRows, date)
	if len(daySpot) == 0 {
		return nil, errors.ErrNoData
	}

	return &DayFrame{
		Date:    date,
		Spot:    daySpot,
		VIXOpen: vixOpenFor(vixRows, date),
		Options: NewMemoryProvider(date, optRows),
	}, nil
}

func (l *Library) optionMonth(ctx context.Context, year int, month time.Month) ([]models.PriceRow, error) {
	key := monthTag(year, month)

	l.mu.RLock()
	rows, ok := l.months[key]
	l.mu.RUnlock()
	if ok {
		return rows, nil
	}

	rows, err := l.loadOptionMonth(ctx, year, month)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.months[key] = rows
	l.mu.Unlock()
	return rows, nil
}

func (l *Library) loadOptionMonth(ctx context.Context, year int, month time.Month) ([]models.PriceRow, error) {
	if l.cache != nil {
		rows, err := l.cache.OptionMonth(ctx, l.index, year, month)
		if err == nil {
			l.logger.Debug().Str("month", monthTag(year, month)).Int("rows", len(rows)).Msg("Option month served from cache")
			return rows, nil
		}
		if !errors.Is(err, errors.ErrCacheMiss) {
			return nil, err
		}
	}

	rows, err := l.src.MonthOptionRows(ctx, l.index, year, month)
	if err != nil {
		return nil, err
	}
	if l.cache != nil {
		if err := l.cache.SaveOptionMonth(ctx, l.index, year, month, rows); err != nil {
			l.logger.Warn().Err(err).Str("month", monthTag(year, month)).Msg("Failed to cache option month")
		}
	}
	return rows, nil
}

func (l *Library) spotMonth(ctx context.Context, ticker string, year int, month time.Month, memo map[string][]models.SpotRow) ([]models.SpotRow, error) {
	key := ticker + "/" + monthTag(year, month)

	l.mu.RLock()
	rows, ok := memo[key]
	l.mu.RUnlock()
	if ok {
		return rows, nil
	}

	rows, err := l.loadSpotMonth(ctx, ticker, year, month)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	memo[key] = rows
	l.mu.Unlock()
	return rows, nil
}

func (l *Library) loadSpotMonth(ctx context.Context, ticker string, year int, month time.Month) ([]models.SpotRow, error) {
	if l.cache != nil {
		rows, err := l.cache.SpotMonth(ctx, ticker, year, month)
		if err == nil {
			return rows, nil
		}
		if !errors.Is(err, errors.ErrCacheMiss) {
			return nil, err
		}
	}

	rows, err := l.src.MonthSpotRows(ctx, ticker, year, month)
	if err != nil {
		return nil, err
	}
	if l.cache != nil {
		if err := l.cache.SaveSpotMonth(ctx, ticker, year, month, rows); err != nil {
			l.logger.Warn().Err(err).Str("ticker", ticker).Msg("Failed to cache spot month")
		}
	}
	return rows, nil
}

// vixOpenFor picks the day's opening volatility value. When the day has
// no print, the most recent earlier value in the month stands in.
func vixOpenFor(rows []models.SpotRow, date time.Time) float64 {
	day := filterDay(rows, date)
	if len(day) > 0 {
		return day[0].Open
	}
	var last float64
	for _, r := range rows {
		if r.Timestamp.After(date) {
			break
		}
		last = r.Close
	}
	return last
}

func filterDay(rows []models.SpotRow, date time.Time) []models.SpotRow {
	y, m, d := date.Date()
	var out []models.SpotRow
	for _, r := range rows {
		ry, rm, rd := r.Timestamp.Date()
		if ry == y && rm == m && rd == d {
			out = append(out, r)
		}
	}
	return out
}

func monthTag(year int, month time.Month) string {
	return fmt.Sprintf("%d-%02d", year, month)
}
