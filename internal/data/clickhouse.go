package data

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/rs/zerolog"

	"options-backtester/internal/config"
	"options-backtester/internal/errors"
	"options-backtester/internal/logging"
	"options-backtester/internal/models"
	"options-backtester/pkg/utils"
)

// ClickHouseSource loads month partitions of minute bars from a
// ClickHouse warehouse.
type ClickHouseSource struct {
	conn   driver.Conn
	cfg    config.DataConfig
	logger zerolog.Logger
}

// NewClickHouseSource connects and pings the warehouse.
func NewClickHouseSource(ctx context.Context, cfg config.DataConfig, logger zerolog.Logger) (*ClickHouseSource, error) {
	opts, err := clickhouse.ParseDSN(cfg.ClickHouseDSN)
	if err != nil {
		return nil, errors.Wrap(err, "parsing clickhouse dsn")
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "opening clickhouse connection")
	}

	retryCfg := utils.DefaultRetryConfig()
	if err := utils.Retry(ctx, retryCfg, func() error { return conn.Ping(ctx) }); err != nil {
		return nil, errors.Wrap(err, "pinging clickhouse")
	}

	return &ClickHouseSource{conn: conn, cfg: cfg, logger: logger}, nil
}

// MonthOptionRows implements Source.
func (s *ClickHouseSource) MonthOptionRows(ctx context.Context, index string, year int, month time.Month) ([]models.PriceRow, error) {
	start := time.Now()
	query := fmt.Sprintf(`
		SELECT timestamp, ticker, strike, instrument_type, expiry, open, high, low, close
		FROM %s
		WHERE index = ? AND toYear(timestamp) = ? AND toMonth(timestamp) = ?
		ORDER BY timestamp`, s.cfg.OptionsTable)

	rows, err := s.conn.Query(ctx, query, index, year, int(month))
	if err != nil {
		return nil, errors.Wrapf(err, "querying %s for %s %d-%02d", s.cfg.OptionsTable, index, year, month)
	}
	defer rows.Close()

	var out []models.PriceRow
	for rows.Next() {
		var (
			r       models.PriceRow
			instr   string
			ts, exp time.Time
		)
		if err := rows.Scan(&ts, &r.Ticker, &r.Strike, &instr, &exp, &r.Open, &r.High, &r.Low, &r.Close); err != nil {
			return nil, errors.Wrap(err, "scanning option row")
		}
		r.Timestamp = ts.In(utils.IndiaLocation)
		r.Expiry = exp.In(utils.IndiaLocation)
		r.Type = models.OptionType(instr)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating option rows")
	}

	logging.LogQuery(s.logger, "clickhouse",
		fmt.Sprintf("%s %d-%02d options (%d rows)", index, year, month, len(out)),
		time.Since(start), nil)
	return out, nil
}

// MonthSpotRows implements Source. The same table serves index spot and
// the volatility index; the ticker distinguishes them.
func (s *ClickHouseSource) MonthSpotRows(ctx context.Context, ticker string, year int, month time.Month) ([]models.SpotRow, error) {
	start := time.Now()
	query := fmt.Sprintf(`
		SELECT timestamp, open, high, low, close
		FROM %s
		WHERE ticker = ? AND toYear(timestamp) = ? AND toMonth(timestamp) = ?
		ORDER BY timestamp`, s.cfg.SpotTable)

	rows, err := s.conn.Query(ctx, query, ticker, year, int(month))
	if err != nil {
		return nil, errors.Wrapf(err, "querying %s for %s %d-%02d", s.cfg.SpotTable, ticker, year, month)
	}
	defer rows.Close()

	var out []models.SpotRow
	for rows.Next() {
		var (
			r  models.SpotRow
			ts time.Time
		)
		if err := rows.Scan(&ts, &r.Open, &r.High, &r.Low, &r.Close); err != nil {
			return nil, errors.Wrap(err, "scanning spot row")
		}
		r.Timestamp = ts.In(utils.IndiaLocation)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating spot rows")
	}

	logging.LogQuery(s.logger, "clickhouse",
		fmt.Sprintf("%s %d-%02d spot (%d rows)", ticker, year, month, len(out)),
		time.Since(start), nil)
	return out, nil
}

// Close closes the warehouse connection.
func (s *ClickHouseSource) Close() error {
	return s.conn.Close()
}
