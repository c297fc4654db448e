package results

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-backtester/internal/config"
	"options-backtester/internal/engine"
	"options-backtester/internal/models"
	"options-backtester/pkg/utils"
)

var testCharges = config.ChargesConfig{
	BrokeragePerOrder: 20,
	ExchangeTxnRate:   0.00035,
	SEBIRate:          0.000001,
	GSTRate:           0.18,
	STTRate:           0.000625,
	StampRate:         0.00003,
	SlippagePercent:   0.5,
}

func newTestWriter(t *testing.T) *Writer {
	t.Helper()
	root := t.TempDir()
	cfg := config.OutputConfig{
		ResultsDir: filepath.Join(root, "results"),
		LegsDir:    filepath.Join(root, "legs"),
	}
	return NewWriter(cfg, testCharges, "nifty", zerolog.Nop())
}

func sampleDayResult() *engine.DayResult {
	date := time.Date(2024, 6, 3, 0, 0, 0, 0, utils.IndiaLocation)
	entry := time.Date(2024, 6, 3, 9, 20, 0, 0, utils.IndiaLocation)
	exit := time.Date(2024, 6, 3, 9, 25, 0, 0, utils.IndiaLocation)

	pos := &models.Position{
		ID:         "POS-001",
		LegID:      "1",
		Ticker:     "NIFTY-TEST",
		Strike:     22500,
		Type:       models.OptionCall,
		Side:       models.SideSell,
		Quantity:   50,
		EntryTime:  entry,
		EntryPrice: 100,
		Closed:     true,
		ExitTime:   exit,
		ExitPrice:  80,
	}
	return &engine.DayResult{
		Date: date,
		Trades: []models.TradeRow{{
			RowType:    models.RowTypeTrade,
			LegID:      "1",
			EntryPrice: 100,
			LTP:        80,
			PnL:        1000,
		}},
		Minutes: []models.TradeRow{
			{RowType: models.RowTypeTrade, LegID: "1", Timestamp: entry, EntryPrice: 100, LTP: 100, PnL: 0},
			{RowType: models.RowTypeTotal, Timestamp: entry, PnL: 0},
			{RowType: models.RowTypeTrade, LegID: "1", Timestamp: exit, EntryPrice: 100, LTP: 80, PnL: 1000},
			{RowType: models.RowTypeTotal, Timestamp: exit, PnL: 1000},
		},
		OrderBook: []models.OrderBookEntry{{OrderID: "ORD-001"}},
		History: []engine.PnLPoint{
			{Timestamp: entry, Spot: 22510, TotalPnL: 0},
			{Timestamp: exit, Spot: 22520, TotalPnL: 1000},
		},
		Closed:   []*models.Position{pos},
		GrossPnL: 1000,
		LotSize:  50,
		Quantity: 50,
		VIXOpen:  14.5,
	}
}

func TestMaxDrawdown(t *testing.T) {
	tests := []struct {
		name   string
		points []float64
		want   float64
	}{
		{"empty", nil, 0},
		{"monotonic gain", []float64{0, 100, 250}, 0},
		{"peak to trough", []float64{100, 40, 80, -20}, 120},
		{"starts negative", []float64{-50, -200, -100}, 150},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history := make([]engine.PnLPoint, len(tt.points))
			for i, p := range tt.points {
				history[i] = engine.PnLPoint{TotalPnL: p}
			}
			assert.Equal(t, tt.want, MaxDrawdown(history))
		})
	}
}

func TestWriteDayFiles(t *testing.T) {
	w := newTestWriter(t)
	result := sampleDayResult()
	require.NoError(t, w.WriteDay(result))

	dayDir := filepath.Join(w.cfg.ResultsDir, "2024", "june")

	trades, err := os.ReadFile(filepath.Join(dayDir, "2024-06-03_trades.csv"))
	require.NoError(t, err)
	text := string(trades)
	assert.Contains(t, text, "TRADE")
	assert.Contains(t, text, "Total")
	assert.Contains(t, text, "CHARGES")

	// The log is minute by minute: one TRADE row per position per bar
	// and a Total row closing out every timestamp.
	assert.Equal(t, 2, strings.Count(text, "TRADE,"))
	assert.Equal(t, 2, strings.Count(text, "Total,"))
	assert.Equal(t, 1, strings.Count(text, "CHARGES,"))

	_, err = os.Stat(filepath.Join(dayDir, "2024-06-03_charges.csv"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(w.cfg.LegsDir, "2024-06-03_orders.csv"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(w.cfg.ResultsDir, "eod_realized.csv"))
	assert.NoError(t, err)
}

func TestTradeLogFallsBackToFinalTable(t *testing.T) {
	w := newTestWriter(t)
	result := sampleDayResult()
	result.Minutes = nil
	require.NoError(t, w.WriteDay(result))

	dayDir := filepath.Join(w.cfg.ResultsDir, "2024", "june")
	trades, err := os.ReadFile(filepath.Join(dayDir, "2024-06-03_trades.csv"))
	require.NoError(t, err)
	text := string(trades)
	assert.Equal(t, 1, strings.Count(text, "TRADE,"))
	assert.Equal(t, 1, strings.Count(text, "Total,"))
	assert.Equal(t, 1, strings.Count(text, "CHARGES,"))
}

func TestWriteDaySkipsEmpty(t *testing.T) {
	w := newTestWriter(t)
	result := &engine.DayResult{Date: time.Date(2024, 6, 3, 0, 0, 0, 0, utils.IndiaLocation)}
	require.NoError(t, w.WriteDay(result))

	_, err := os.Stat(filepath.Join(w.cfg.ResultsDir, "eod_realized.csv"))
	assert.True(t, os.IsNotExist(err), "days without trades write nothing")
}

func TestEODAppendsWithSingleHeader(t *testing.T) {
	w := newTestWriter(t)
	result := sampleDayResult()
	require.NoError(t, w.WriteDay(result))

	second := sampleDayResult()
	second.Date = time.Date(2024, 6, 4, 0, 0, 0, 0, utils.IndiaLocation)
	require.NoError(t, w.WriteDay(second))

	data, err := os.ReadFile(filepath.Join(w.cfg.ResultsDir, "eod_realized.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3, "one header and one row per day")
	assert.Contains(t, lines[0], "Gross_PnL")
	assert.Contains(t, lines[1], "2024-06-03")
	assert.Contains(t, lines[2], "2024-06-04")
}

func TestEODMarginFigures(t *testing.T) {
	w := newTestWriter(t)
	result := sampleDayResult()
	require.NoError(t, w.WriteDay(result))

	data, err := os.ReadFile(filepath.Join(w.cfg.ResultsDir, "eod_realized.csv"))
	require.NoError(t, err)
	text := string(data)

	// Closing spot 22520 at quantity 50: exposure 1126000, span margin
	// 15 percent, hedged margin 10 percent, nifty hedge discount 0.65.
	assert.Contains(t, text, "1126000")
	assert.Contains(t, text, "168900")
	assert.Contains(t, text, "112600")
	assert.Contains(t, text, "73190")
}

func TestDayCharges(t *testing.T) {
	w := newTestWriter(t)
	result := sampleDayResult()

	breakdowns := w.DayCharges(result)
	require.Len(t, breakdowns, 1)
	assert.InDelta(t, 98.58, breakdowns[0].Total, 1e-9)
}

func TestReport(t *testing.T) {
	w := newTestWriter(t)
	day := sampleDayResult()
	summary := &engine.RunSummary{
		From:       day.Date,
		To:         day.Date,
		Days:       []*engine.DayResult{day},
		TradedDays: 1,
		GrossPnL:   day.GrossPnL,
	}

	out := w.Report(summary)
	assert.Contains(t, out, "Backtest 2024-06-03 to 2024-06-03")
	assert.Contains(t, out, "Days traded:    1")
	assert.Contains(t, out, "Win days:       1 / 1")
	assert.Contains(t, out, "Gross PnL")
}

func TestReportNoTradedDays(t *testing.T) {
	w := newTestWriter(t)
	summary := &engine.RunSummary{
		From:        time.Date(2024, 6, 1, 0, 0, 0, 0, utils.IndiaLocation),
		To:          time.Date(2024, 6, 2, 0, 0, 0, 0, utils.IndiaLocation),
		SkippedDays: 2,
	}
	out := w.Report(summary)
	assert.Contains(t, out, "skipped 2")
	assert.NotContains(t, out, "Win days")
}
