// Package data provides minute bar access for the simulation: a
// ClickHouse source, a local SQLite month cache, and the in-memory
// provider the day loop reads from.
package data

import (
	"context"
	"time"

	"options-backtester/internal/models"
)

// Query addresses one option contract at one minute. Either Ticker or
// the Strike/Type pair identifies the contract.
type Query struct {
	Ticker string
	Strike float64
	Type   models.OptionType
	Expiry models.ExpiryClass
	At     time.Time
}

// Provider serves option minute bars. Implementations must be safe for
// concurrent readers; the day loop itself is single threaded.
type Provider interface {
	// RowAt returns the bar exactly at q.At, or errors.ErrNoData.
	RowAt(ctx context.Context, q Query) (models.PriceRow, error)
	// LatestRow returns the most recent bar at or before q.At, or
	// errors.ErrNoData when nothing has printed yet.
	LatestRow(ctx context.Context, q Query) (models.PriceRow, error)
	// WindowRows returns the contract's bars in [from, to] inclusive,
	// ordered by timestamp.
	WindowRows(ctx context.Context, q Query, from, to time.Time) ([]models.PriceRow, error)
	// ChainAt returns every contract bar of the given type printed at
	// the exact minute, for premium based strike selection.
	ChainAt(ctx context.Context, expiry models.ExpiryClass, opt models.OptionType, at time.Time) ([]models.PriceRow, error)
}

// DayFrame bundles everything the driver needs for one trading day.
type DayFrame struct {
	Date    time.Time
	Spot    []models.SpotRow
	VIXOpen float64
	Options Provider
}

// Source loads raw month partitions from remote storage.
type Source interface {
	MonthOptionRows(ctx context.Context, index string, year int, month time.Month) ([]models.PriceRow, error)
	MonthSpotRows(ctx context.Context, ticker string, year int, month time.Month) ([]models.SpotRow, error)
	Close() error
}
