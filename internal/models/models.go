// Package models provides domain models for the backtesting engine.
package models

import (
	"fmt"
	"strings"
	"time"
)

// OptionType represents the contract type of an option.
type OptionType string

const (
	OptionCall OptionType = "CE"
	OptionPut  OptionType = "PE"
)

// ParseOptionType normalizes a raw option type string.
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CE", "CALL":
		return OptionCall, nil
	case "PE", "PUT":
		return OptionPut, nil
	default:
		return "", fmt.Errorf("unknown option type %q", s)
	}
}

// Side represents the direction of a position.
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// ParseSide normalizes a raw position string.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "B":
		return SideBuy, nil
	case "SELL", "S":
		return SideSell, nil
	default:
		return "", fmt.Errorf("unknown side %q", s)
	}
}

// Sign returns +1 for long positions and -1 for short positions.
func (s Side) Sign() float64 {
	if s == SideBuy {
		return 1
	}
	return -1
}

// ExpiryClass selects which expiry of the chain a leg trades.
type ExpiryClass string

const (
	ExpiryWeekly     ExpiryClass = "WEEKLY"
	ExpiryNextWeekly ExpiryClass = "NEXT_WEEKLY"
	ExpiryMonthly    ExpiryClass = "MONTHLY"
)

// ParseExpiryClass normalizes an expiry selection string.
func ParseExpiryClass(s string) (ExpiryClass, error) {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", "_")) {
	case "WEEKLY", "CURRENT_WEEK":
		return ExpiryWeekly, nil
	case "NEXT_WEEKLY", "NEXT_WEEK":
		return ExpiryNextWeekly, nil
	case "MONTHLY", "CURRENT_MONTH":
		return ExpiryMonthly, nil
	default:
		return "", fmt.Errorf("unknown expiry class %q", s)
	}
}

// PriceField names a column of an OHLC bar.
type PriceField string

const (
	FieldOpen  PriceField = "Open"
	FieldHigh  PriceField = "High"
	FieldLow   PriceField = "Low"
	FieldClose PriceField = "Close"
)

// ParsePriceField normalizes an OHLC column name.
func ParsePriceField(s string) (PriceField, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "OPEN":
		return FieldOpen, nil
	case "HIGH":
		return FieldHigh, nil
	case "LOW":
		return FieldLow, nil
	case "CLOSE":
		return FieldClose, nil
	default:
		return "", fmt.Errorf("unknown price field %q", s)
	}
}

// Candle represents OHLC data for a single minute bar.
type Candle struct {
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// Field returns the named component of the bar.
func (c Candle) Field(f PriceField) float64 {
	switch f {
	case FieldOpen:
		return c.Open
	case FieldHigh:
		return c.High
	case FieldLow:
		return c.Low
	default:
		return c.Close
	}
}

// PriceRow is a single minute bar for one option contract.
type PriceRow struct {
	Timestamp time.Time
	Ticker    string
	Strike    float64
	Type      OptionType
	Expiry    time.Time
	Candle
}

// SpotRow is a single minute bar for an underlying index.
type SpotRow struct {
	Timestamp time.Time
	Candle
}
