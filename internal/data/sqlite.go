package data

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"options-backtester/internal/errors"
	"options-backtester/internal/models"
	"options-backtester/pkg/utils"
)

// MonthCache persists month partitions of minute bars in a local SQLite
// file so repeated runs over the same period skip the warehouse.
type MonthCache struct {
	db *sql.DB
}

// NewMonthCache opens (or creates) the cache database.
func NewMonthCache(dir string) (*MonthCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	dbPath := filepath.Join(dir, "bars.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	cache := &MonthCache{db: db}
	if err := cache.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	return cache, nil
}

// initSchema creates all required tables and indexes.
func (c *MonthCache) initSchema() error {
	schema := `
	-- Option minute bars, one row per contract per minute
	CREATE TABLE IF NOT EXISTS option_bars (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		idx TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		ticker TEXT NOT NULL,
		strike REAL NOT NULL,
		instrument_type TEXT NOT NULL,
		expiry INTEGER NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		UNIQUE(idx, ticker, timestamp)
	);

	-- Spot and volatility index minute bars
	CREATE TABLE IF NOT EXISTS spot_bars (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ticker TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		UNIQUE(ticker, timestamp)
	);

	-- Completed month partitions
	CREATE TABLE IF NOT EXISTS months (
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		loaded_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (name, kind, year, month)
	);

	CREATE INDEX IF NOT EXISTS idx_option_bars_lookup ON option_bars(idx, timestamp);
	CREATE INDEX IF NOT EXISTS idx_spot_bars_lookup ON spot_bars(ticker, timestamp);
	`

	_, err := c.db.Exec(schema)
	return err
}

// HasMonth reports whether a partition was fully loaded before.
func (c *MonthCache) HasMonth(ctx context.Context, name, kind string, year int, month time.Month) (bool, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM months WHERE name = ? AND kind = ? AND year = ? AND month = ?`,
		name, kind, year, int(month)).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "checking cached month")
	}
	return n > 0, nil
}

// SaveOptionMonth stores a month of option bars in one transaction.
func (c *MonthCache) SaveOptionMonth(ctx context.Context, index string, year int, month time.Month, rows []models.PriceRow) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning cache transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO option_bars
		(idx, timestamp, ticker, strike, instrument_type, expiry, open, high, low, close)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "preparing option insert")
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			index, r.Timestamp.Unix(), r.Ticker, r.Strike, string(r.Type),
			r.Expiry.Unix(), r.Open, r.High, r.Low, r.Close); err != nil {
			return errors.Wrap(err, "inserting option bar")
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO months (name, kind, year, month) VALUES (?, 'options', ?, ?)`,
		index, year, int(month)); err != nil {
		return errors.Wrap(err, "marking month complete")
	}
	return tx.Commit()
}

// OptionMonth loads a cached month of option bars.
func (c *MonthCache) OptionMonth(ctx context.Context, index string, year int, month time.Month) ([]models.PriceRow, error) {
	ok, err := c.HasMonth(ctx, index, "options", year, month)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.ErrCacheMiss
	}

	from, to := monthBounds(year, month)
	rows, err := c.db.QueryContext(ctx, `
		SELECT timestamp, ticker, strike, instrument_type, expiry, open, high, low, close
		FROM option_bars
		WHERE idx = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp`,
		index, from.Unix(), to.Unix())
	if err != nil {
		return nil, errors.Wrap(err, "querying cached option bars")
	}
	defer rows.Close()

	var out []models.PriceRow
	for rows.Next() {
		var (
			r       models.PriceRow
			ts, exp int64
			instr   string
		)
		if err := rows.Scan(&ts, &r.Ticker, &r.Strike, &instr, &exp, &r.Open, &r.High, &r.Low, &r.Close); err != nil {
			return nil, errors.Wrap(err, "scanning cached option bar")
		}
		r.Timestamp = time.Unix(ts, 0).In(utils.IndiaLocation)
		r.Expiry = time.Unix(exp, 0).In(utils.IndiaLocation)
		r.Type = models.OptionType(instr)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveSpotMonth stores a month of spot bars in one transaction.
func (c *MonthCache) SaveSpotMonth(ctx context.Context, ticker string, year int, month time.Month, rows []models.SpotRow) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning cache transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO spot_bars (ticker, timestamp, open, high, low, close)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "preparing spot insert")
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			ticker, r.Timestamp.Unix(), r.Open, r.High, r.Low, r.Close); err != nil {
			return errors.Wrap(err, "inserting spot bar")
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO months (name, kind, year, month) VALUES (?, 'spot', ?, ?)`,
		ticker, year, int(month)); err != nil {
		return errors.Wrap(err, "marking month complete")
	}
	return tx.Commit()
}

// SpotMonth loads a cached month of spot bars.
func (c *MonthCache) SpotMonth(ctx context.Context, ticker string, year int, month time.Month) ([]models.SpotRow, error) {
	ok, err := c.HasMonth(ctx, ticker, "spot", year, month)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.ErrCacheMiss
	}

	from, to := monthBounds(year, month)
	rows, err := c.db.QueryContext(ctx, `
		SELECT timestamp, open, high, low, close
		FROM spot_bars
		WHERE ticker = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp`,
		ticker, from.Unix(), to.Unix())
	if err != nil {
		return nil, errors.Wrap(err, "querying cached spot bars")
	}
	defer rows.Close()

	var out []models.SpotRow
	for rows.Next() {
		var (
			r  models.SpotRow
			ts int64
		)
		if err := rows.Scan(&ts, &r.Open, &r.High, &r.Low, &r.Close); err != nil {
			return nil, errors.Wrap(err, "scanning cached spot bar")
		}
		r.Timestamp = time.Unix(ts, 0).In(utils.IndiaLocation)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the cache database.
func (c *MonthCache) Close() error {
	return c.db.Close()
}

func monthBounds(year int, month time.Month) (time.Time, time.Time) {
	from := time.Date(year, month, 1, 0, 0, 0, 0, utils.IndiaLocation)
	return from, from.AddDate(0, 1, 0)
}
