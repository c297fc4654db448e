package models

import "time"

// OrderState tracks a pending order through its life.
type OrderState string

const (
	OrderPending   OrderState = "PENDING"
	OrderWatching  OrderState = "WATCHING"
	OrderExecuted  OrderState = "EXECUTED"
	OrderAbandoned OrderState = "ABANDONED"
)

// OrderSpec is a submitted but not yet executed entry. Immediate orders
// fill on the next evaluation; momentum and range orders wait for their
// trigger condition.
type OrderSpec struct {
	ID          string
	LegID       string
	Leg         *LegConfig
	Ticker      string
	Strike      float64
	Expiry      time.Time
	SubmittedAt time.Time
	State       OrderState

	// Momentum trigger, armed when MomentumLevel is non-zero.
	MomentumLevel float64
	MomentumDir   MomentumDirection
	ReferencePx   float64

	// Range breakout window, armed when RangeActive is true. Level is
	// computed once after WindowEnd has passed.
	RangeActive  bool
	WindowStart  time.Time
	WindowEnd    time.Time
	RangeLevel   float64
	RangeFrozen  bool
	RangeSide    string // "High" or "Low"
	RangeSrc     RangeSource
	CompareField PriceField

	// CostBasis overrides the stop and target reference for RE COST
	// re-entries. Zero means use the fill price.
	CostBasis float64
}

// OrderBookEntry is one row of the persisted order audit trail.
type OrderBookEntry struct {
	Date        string  `csv:"Date"`
	Time        string  `csv:"Time"`
	LegID       string  `csv:"Leg_ID"`
	Ticker      string  `csv:"Ticker"`
	Side        Side    `csv:"Side"`
	Event       string  `csv:"Event"`
	Price       float64 `csv:"Price"`
	Quantity    int     `csv:"Quantity"`
	Detail      string  `csv:"Detail"`
	OrderID     string  `csv:"Order_ID"`
	Strategy    string  `csv:"Strategy"`
	TriggerSpot float64 `csv:"Trigger_Spot"`
}
