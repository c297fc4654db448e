package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"options-backtester/internal/data"
	"options-backtester/internal/errors"
	"options-backtester/internal/logging"
	"options-backtester/internal/models"
)

// TradeTable is the append-only day trade log. Rows are addressed by
// position ID; mark columns are updated in place through that index.
type TradeTable struct {
	rows  []*models.TradeRow
	index map[string]int
}

// NewTradeTable returns an empty table.
func NewTradeTable() *TradeTable {
	return &TradeTable{index: make(map[string]int)}
}

// Append adds a row for the position and returns its index.
func (t *TradeTable) Append(posID string, row models.TradeRow) int {
	t.rows = append(t.rows, &row)
	i := len(t.rows) - 1
	t.index[posID] = i
	return i
}

// Row returns the row bound to the position, or nil.
func (t *TradeTable) Row(posID string) *models.TradeRow {
	i, ok := t.index[posID]
	if !ok {
		return nil
	}
	return t.rows[i]
}

// Rows returns a copy of every row in insertion order.
func (t *TradeTable) Rows() []models.TradeRow {
	out := make([]models.TradeRow, len(t.rows))
	for i, r := range t.rows {
		out[i] = *r
	}
	return out
}

// Len returns the number of rows.
func (t *TradeTable) Len() int { return len(t.rows) }

// PnLPoint is one minute of aggregate mark-to-market state.
type PnLPoint struct {
	Timestamp time.Time
	Spot      float64
	TotalPnL  float64
}

// Ledger owns every position of the day, the trade table and the order
// audit trail.
type Ledger struct {
	logger zerolog.Logger

	counter int
	orderNo int
	open    map[string]*models.Position
	byLeg   map[string]*models.Position
	closed  []*models.Position
	table   *TradeTable
	book    []models.OrderBookEntry
	history []PnLPoint
	minutes []models.TradeRow

	// First fill price per leg slot, the cost basis for RE COST.
	firstEntry map[string]float64
}

// NewLedger returns an empty day ledger.
func NewLedger(logger zerolog.Logger) *Ledger {
	return &Ledger{
		logger:     logger,
		open:       make(map[string]*models.Position),
		byLeg:      make(map[string]*models.Position),
		table:      NewTradeTable(),
		firstEntry: make(map[string]float64),
	}
}

// ComputeStops derives the stop and target levels from a basis price.
// Short legs stop above and target below; long legs mirror. Disabled
// sides are zero.
func ComputeStops(leg *models.LegConfig, basis float64, weekday string) (stop, target float64) {
	if leg.StopLossEnabled {
		v := leg.StopFraction(weekday)
		if leg.StopLossKind == models.StopLossPoints {
			if leg.Side == models.SideSell {
				stop = round2(basis + v)
			} else {
				stop = round2(basis - v)
			}
		} else {
			if leg.Side == models.SideSell {
				stop = round2(basis + basis*v)
			} else {
				stop = round2(basis - basis*v)
			}
		}
	}
	if leg.TargetEnabled {
		if leg.Side == models.SideSell {
			target = round2(basis - basis*leg.TargetValue)
		} else {
			target = round2(basis + basis*leg.TargetValue)
		}
	}
	return stop, target
}

// Open books a new position from a fill. slBasis overrides the level
// basis when non-zero (momentum levels, cost based re-entries); the fill
// price itself is always the accounting entry price.
func (l *Ledger) Open(ts time.Time, leg *models.LegConfig, row models.PriceRow, fillPrice, slBasis, spot float64, quantity int) *models.Position {
	basis := fillPrice
	if slBasis > 0 {
		basis = slBasis
	}
	stop, target := ComputeStops(leg, basis, ts.Weekday().String())

	l.counter++
	pos := &models.Position{
		ID:         fmt.Sprintf("POS-%03d", l.counter),
		LegID:      leg.LegID,
		Ticker:     row.Ticker,
		Strike:     row.Strike,
		Type:       row.Type,
		Expiry:     row.Expiry,
		ExpiryType: leg.Expiry,
		Side:       leg.Side,
		Quantity:   quantity,
		Strategy:   leg.EntryStyle(),
		EntryTime:  ts,
		EntryPrice: fillPrice,
		EntrySpot:  spot,
		StopLoss:   stop,
		Target:     target,
		LastTime:   ts,
		LastBar:    row.Candle,
		LTP:        row.Close,
		Leg:        leg,
	}
	pos.PnL = pos.UnrealizedPnL(row.Close)

	l.open[pos.ID] = pos
	l.byLeg[leg.LegID] = pos
	if _, ok := l.firstEntry[leg.LegID]; !ok {
		l.firstEntry[leg.LegID] = fillPrice
	}

	trailing := 0.0
	if leg.TrailingEnabled {
		trailing = fillPrice
	}
	l.table.Append(pos.ID, models.TradeRow{
		RowType:        models.RowTypeTrade,
		LegID:          leg.LegID,
		EntryTimestamp: ts,
		Timestamp:      ts,
		TradingSymbol:  row.Ticker,
		InstrumentType: string(row.Type),
		EntryPrice:     fillPrice,
		LTP:            row.Close,
		LotSize:        quantity,
		PnL:            pos.PnL,
		ExpiryType:     string(leg.Expiry),
		StopLoss:       stop,
		TargetPrice:    target,
		Strike:         row.Strike,
		PositionType:   string(leg.Side),
		Trailing:       trailing,
	})

	l.RecordOrder(ts, pos, "Entry", fillPrice, entrySummary(leg, stop, target, trailing), 0)
	logging.LogFill(l.logger, leg.LegID, row.Ticker, string(leg.Side), quantity, fillPrice)
	return pos
}

func entrySummary(leg *models.LegConfig, stop, target, trailing float64) string {
	direction := "Short"
	if leg.Side == models.SideBuy {
		direction = "Long"
	}
	return fmt.Sprintf("%s Position %s, Sl Price: %s, Tgt Price: %s, Trailing Price: %s",
		leg.OptionType, direction, orNA(stop), orNA(target), orNA(trailing))
}

func orNA(v float64) string {
	if v == 0 {
		return "NA"
	}
	return fmt.Sprintf("%.2f", v)
}

// Close settles an open position at the given price.
func (l *Ledger) Close(pos *models.Position, ts time.Time, price, spot float64, reason models.ExitReason) {
	if pos.Closed {
		return
	}
	pos.Closed = true
	pos.ExitTime = ts
	pos.ExitPrice = price
	pos.ExitSpot = spot
	pos.ExitReason = reason
	pos.LTP = price
	pos.PnL = pos.UnrealizedPnL(price)

	delete(l.open, pos.ID)
	if l.byLeg[pos.LegID] == pos {
		delete(l.byLeg, pos.LegID)
	}
	l.closed = append(l.closed, pos)

	if row := l.table.Row(pos.ID); row != nil {
		row.Timestamp = ts
		row.LTP = price
		row.PnL = pos.PnL
		row.ExitReason = reason.String()
	}

	l.RecordOrder(ts, pos, "Exit", price, reason.String(), spot)
	logging.LogExit(l.logger, pos.LegID, pos.Ticker, string(reason.Kind), price, pos.PnL)
}

// UpdateMarks refreshes every open position from the latest bar at or
// before ts. Contracts that have not printed yet keep their last mark.
func (l *Ledger) UpdateMarks(ctx context.Context, ts time.Time, provider data.Provider) {
	for _, pos := range l.OpenPositions() {
		row, err := provider.LatestRow(ctx, data.Query{Ticker: pos.Ticker, At: ts})
		if err != nil {
			if !errors.Is(err, errors.ErrNoData) {
				l.logger.Warn().Err(err).Str("ticker", pos.Ticker).Msg("Mark refresh failed")
			}
			continue
		}
		pos.LastTime = row.Timestamp
		pos.LastBar = row.Candle
		pos.LTP = row.Close
		pos.PnL = pos.UnrealizedPnL(row.Close)

		if tr := l.table.Row(pos.ID); tr != nil {
			tr.Timestamp = ts
			tr.LTP = row.Close
			tr.PnL = pos.PnL
		}
	}
}

// RecordOrder appends one audit trail entry.
func (l *Ledger) RecordOrder(ts time.Time, pos *models.Position, event string, price float64, detail string, spot float64) {
	l.orderNo++
	side := pos.Side
	if event == "Exit" {
		// Closing trades take the opposite side.
		if side == models.SideSell {
			side = models.SideBuy
		} else {
			side = models.SideSell
		}
	}
	l.book = append(l.book, models.OrderBookEntry{
		Date:        ts.Format("2006-01-02"),
		Time:        ts.Format("15:04:05"),
		LegID:       pos.LegID,
		Ticker:      pos.Ticker,
		Strategy:    pos.Strategy,
		Side:        side,
		Event:       event,
		Price:       price,
		Quantity:    pos.Quantity,
		Detail:      detail,
		OrderID:     fmt.Sprintf("ORD-%03d", l.orderNo),
		TriggerSpot: spot,
	})
}

// Snapshot records the aggregate mark for the minute: one equity point,
// a stamped copy of every trade row and a Total row for the timestamp.
// No-op until the first position exists.
func (l *Ledger) Snapshot(ts time.Time, spot float64) {
	if len(l.open) == 0 && len(l.closed) == 0 {
		return
	}
	total := l.TotalPnL()
	l.history = append(l.history, PnLPoint{Timestamp: ts, Spot: spot, TotalPnL: total})

	for _, row := range l.table.rows {
		r := *row
		r.Timestamp = ts
		l.minutes = append(l.minutes, r)
	}
	l.minutes = append(l.minutes, models.TradeRow{
		RowType:   models.RowTypeTotal,
		Timestamp: ts,
		PnL:       total,
	})
}

// TotalPnL sums realized and unrealized profit.
func (l *Ledger) TotalPnL() float64 {
	total := 0.0
	for _, p := range l.open {
		total += p.PnL
	}
	for _, p := range l.closed {
		total += p.PnL
	}
	return round2(total)
}

// OpenPositions returns open positions ordered by leg slot.
func (l *Ledger) OpenPositions() []*models.Position {
	out := make([]*models.Position, 0, len(l.open))
	for _, p := range l.open {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LegID != out[j].LegID {
			return out[i].LegID < out[j].LegID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ClosedPositions returns settled positions in close order.
func (l *Ledger) ClosedPositions() []*models.Position { return l.closed }

// OpenForLeg returns the open position occupying a leg slot, or nil.
func (l *Ledger) OpenForLeg(legID string) *models.Position { return l.byLeg[legID] }

// FirstEntryPrice returns the first fill of a leg slot for the day.
// Zero means the slot has not traded.
func (l *Ledger) FirstEntryPrice(legID string) float64 { return l.firstEntry[legID] }

// Table exposes the day trade table.
func (l *Ledger) Table() *TradeTable { return l.table }

// OrderBook returns the order audit trail.
func (l *Ledger) OrderBook() []models.OrderBookEntry { return l.book }

// History returns the per-minute aggregate marks.
func (l *Ledger) History() []PnLPoint { return l.history }

// MinuteLog returns the minute-by-minute trade rows, Totals included.
func (l *Ledger) MinuteLog() []models.TradeRow { return l.minutes }

func round2(v float64) float64 { return math.Round(v*100) / 100 }
