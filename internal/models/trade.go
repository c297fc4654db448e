package models

import "time"

// ExitKind classifies why a position was closed.
type ExitKind string

const (
	ExitStopLoss    ExitKind = "STOPLOSS"
	ExitTarget      ExitKind = "TARGET"
	ExitTrailing    ExitKind = "TRAILING"
	ExitTime        ExitKind = "TIME"
	ExitConditional ExitKind = "CONDITIONAL"
	ExitIndicator   ExitKind = "INDICATOR"
	ExitDayBreaker  ExitKind = "DAY_BREAKER"
)

// ExitReason carries the structured cause of a close. Detail is free text
// for the audit trail only; control flow keys off Kind.
type ExitReason struct {
	Kind   ExitKind
	Detail string
}

func (r ExitReason) String() string {
	if r.Detail == "" {
		return string(r.Kind)
	}
	return string(r.Kind) + ": " + r.Detail
}

// IsStopLoss reports whether the close counts against the stop loss
// re-entry budget.
func (r ExitReason) IsStopLoss() bool {
	return r.Kind == ExitStopLoss || r.Kind == ExitTrailing
}

// IsTarget reports whether the close counts against the target re-entry
// budget.
func (r ExitReason) IsTarget() bool { return r.Kind == ExitTarget }

// Position is one open contract held by the ledger.
type Position struct {
	ID         string
	LegID      string
	Ticker     string
	Strike     float64
	Type       OptionType
	Expiry     time.Time
	ExpiryType ExpiryClass
	Side       Side
	Quantity   int
	LotSize    int
	Strategy   string // entry style label, see LegConfig.EntryStyle

	EntryTime  time.Time
	EntryPrice float64
	EntrySpot  float64
	StopLoss   float64
	Target     float64

	// Mark state, refreshed every minute.
	LastTime time.Time
	LastBar  Candle
	LTP      float64
	PnL      float64

	Closed     bool
	ExitTime   time.Time
	ExitPrice  float64
	ExitSpot   float64
	ExitReason ExitReason

	// Leg config the position was opened under. Re-entries and hops
	// resolve against this snapshot, not the live registry.
	Leg *LegConfig
}

// UnrealizedPnL computes mark-to-market profit at the given price.
func (p *Position) UnrealizedPnL(price float64) float64 {
	return (price - p.EntryPrice) * p.Side.Sign() * float64(p.Quantity)
}

// TradeRow is one row of the typed day trade table. The table is append
// only; the ledger updates mark columns in place through the row index.
type TradeRow struct {
	RowType        string    `csv:"Row_type"`
	LegID          string    `csv:"Leg_id"`
	EntryTimestamp time.Time `csv:"Entry_timestamp"`
	Timestamp      time.Time `csv:"Timestamp"`
	TradingSymbol  string    `csv:"TradingSymbol"`
	InstrumentType string    `csv:"Instrument_type"`
	EntryPrice     float64   `csv:"Entry_price"`
	LTP            float64   `csv:"LTP"`
	LotSize        int       `csv:"Lot_size"`
	PnL            float64   `csv:"PnL"`
	ExpiryType     string    `csv:"Expiry_type"`
	StopLoss       float64   `csv:"Stop_loss"`
	TargetPrice    float64   `csv:"Target_price"`
	Strike         float64   `csv:"Strike"`
	PositionType   string    `csv:"Position_type"`
	Trailing       float64   `csv:"Trailing"`
	ExitReason     string    `csv:"Exit_reason"`
}

// Trade row type markers for the day log.
const (
	RowTypeTrade   = "TRADE"
	RowTypeTotal   = "Total"
	RowTypeCharges = "CHARGES"
)
