// Package results persists simulation output: day trade logs, the
// order audit trail, end-of-day realized rows and the run report.
package results

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"

	"options-backtester/internal/charges"
	"options-backtester/internal/config"
	"options-backtester/internal/engine"
	"options-backtester/internal/models"
)

// EODRow is one appended line of the realized end-of-day file.
type EODRow struct {
	Date         string  `csv:"Date"`
	Spot         float64 `csv:"Spot"`
	Quantity     int     `csv:"Quantity"`
	Exposure     float64 `csv:"Exposure"`
	Margin       float64 `csv:"Margin"`
	HedgedMargin float64 `csv:"Hedged_margin"`
	HedgeMargin  float64 `csv:"20pct_hedge_margin"`
	GrossPnL     float64 `csv:"Gross_PnL"`
	Charges      float64 `csv:"Charges"`
	NetPnL       float64 `csv:"Net_PnL"`
	VIX          float64 `csv:"VIX"`
}

// Writer persists day results under the configured output directories.
// Trade logs are partitioned by year and month the way the raw data is.
type Writer struct {
	cfg     config.OutputConfig
	charges config.ChargesConfig
	index   string
	logger  zerolog.Logger
}

// NewWriter builds a writer for the given index and output config.
func NewWriter(cfg config.OutputConfig, chargesCfg config.ChargesConfig, index string, logger zerolog.Logger) *Writer {
	return &Writer{cfg: cfg, charges: chargesCfg, index: index, logger: logger}
}

// WriteDay persists everything one day produced: the trade log with its
// total and charges rows, the per-trade charges breakdown, the order
// book and the end-of-day realized row.
func (w *Writer) WriteDay(result *engine.DayResult) error {
	if len(result.Trades) == 0 {
		return nil
	}
	if err := w.writeTradeLog(result); err != nil {
		return err
	}
	if err := w.writeChargesDetail(result); err != nil {
		return err
	}
	if err := w.writeOrderBook(result); err != nil {
		return err
	}
	return w.appendEOD(result)
}

func (w *Writer) dayDir(date time.Time) (string, error) {
	dir := filepath.Join(w.cfg.ResultsDir,
		fmt.Sprintf("%d", date.Year()),
		strings.ToLower(date.Month().String()))
	return dir, os.MkdirAll(dir, 0o755)
}

// writeTradeLog writes the minute-by-minute trade log: one TRADE row per
// position per minute with a Total row closing out each timestamp, then
// a CHARGES row carrying total charges as a negative PnL. Results from
// older runs without a minute log fall back to the final trade table.
func (w *Writer) writeTradeLog(result *engine.DayResult) error {
	dir, err := w.dayDir(result.Date)
	if err != nil {
		return err
	}

	var rows []models.TradeRow
	if len(result.Minutes) > 0 {
		rows = make([]models.TradeRow, len(result.Minutes))
		copy(rows, result.Minutes)
	} else {
		rows = make([]models.TradeRow, len(result.Trades))
		copy(rows, result.Trades)
		rows = append(rows, models.TradeRow{
			RowType:   models.RowTypeTotal,
			Timestamp: result.Date,
			PnL:       result.GrossPnL,
		})
	}

	rows = append(rows, models.TradeRow{
		RowType:   models.RowTypeCharges,
		Timestamp: result.Date,
		PnL:       -w.totalCharges(result),
	})

	path := filepath.Join(dir, result.Date.Format("2006-01-02")+"_trades.csv")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gocsv.MarshalFile(&rows, f)
}

// writeChargesDetail writes the full per-trade charges breakdown next to
// the trade log.
func (w *Writer) writeChargesDetail(result *engine.DayResult) error {
	if len(result.Closed) == 0 {
		return nil
	}
	dir, err := w.dayDir(result.Date)
	if err != nil {
		return err
	}

	breakdowns := make([]charges.Breakdown, 0, len(result.Closed))
	for _, pos := range result.Closed {
		breakdowns = append(breakdowns, charges.Compute(w.charges, pos.EntryPrice, pos.ExitPrice, pos.Quantity))
	}

	path := filepath.Join(dir, result.Date.Format("2006-01-02")+"_charges.csv")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gocsv.MarshalFile(&breakdowns, f)
}

func (w *Writer) writeOrderBook(result *engine.DayResult) error {
	if len(result.OrderBook) == 0 {
		return nil
	}
	if err := os.MkdirAll(w.cfg.LegsDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(w.cfg.LegsDir, result.Date.Format("2006-01-02")+"_orders.csv")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	book := result.OrderBook
	return gocsv.MarshalFile(&book, f)
}

// appendEOD appends one realized row to the running end-of-day file.
// Margin figures follow the exchange's flat 15 percent span, 10 percent
// when fully hedged, and the hedged discount for the major indices.
func (w *Writer) appendEOD(result *engine.DayResult) error {
	if err := os.MkdirAll(w.cfg.ResultsDir, 0o755); err != nil {
		return err
	}

	spot := 0.0
	if n := len(result.History); n > 0 {
		spot = result.History[n-1].Spot
	}
	exposure := round2(spot * float64(result.Quantity))
	hedged := round2(exposure * 0.10)
	factor := 0.85
	switch strings.ToLower(w.index) {
	case "nifty", "banknifty", "finnifty":
		factor = 0.65
	}

	total := w.totalCharges(result)
	row := EODRow{
		Date:         result.Date.Format("2006-01-02"),
		Spot:         spot,
		Quantity:     result.Quantity,
		Exposure:     exposure,
		Margin:       round2(exposure * 0.15),
		HedgedMargin: hedged,
		HedgeMargin:  round2(hedged * factor),
		GrossPnL:     round2(result.GrossPnL),
		Charges:      round2(total),
		NetPnL:       round2(result.GrossPnL - total),
		VIX:          result.VIXOpen,
	}

	path := filepath.Join(w.cfg.ResultsDir, "eod_realized.csv")
	return appendCSV(path, &[]EODRow{row})
}

// appendCSV marshals rows onto the end of path, writing the header only
// when the file is new.
func appendCSV(path string, rows interface{}) error {
	existing := true
	if _, err := os.Stat(path); os.IsNotExist(err) {
		existing = false
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if existing {
		return gocsv.MarshalWithoutHeaders(rows, f)
	}
	return gocsv.Marshal(rows, f)
}

// totalCharges sums the charge total across the day's closed trades.
func (w *Writer) totalCharges(result *engine.DayResult) float64 {
	var total float64
	for _, pos := range result.Closed {
		total += charges.Compute(w.charges, pos.EntryPrice, pos.ExitPrice, pos.Quantity).Total
	}
	return round2(total)
}
