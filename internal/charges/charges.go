// Package charges computes transaction costs for completed trades.
package charges

import (
	"math"

	"options-backtester/internal/config"
)

// Breakdown itemizes the costs of one round trip. Values follow the
// Indian F&O cost structure: flat brokerage per order, turnover based
// exchange and SEBI fees, GST on those three, STT on the sell side,
// stamp duty on the buy side, and a configurable slippage allowance.
type Breakdown struct {
	BuyValue   float64 `csv:"Buy_value"`
	SellValue  float64 `csv:"Sell_value"`
	Turnover   float64 `csv:"Turnover"`
	Brokerage  float64 `csv:"Brokerage"`
	ExchangeTC float64 `csv:"Exchange_TC"`
	SEBITC     float64 `csv:"SEBI_TC"`
	GST        float64 `csv:"GST"`
	STT        float64 `csv:"STT"`
	StampDuty  float64 `csv:"Stamp_duty"`
	Slippage   float64 `csv:"Slippage"`
	Total      float64 `csv:"Total"`
	AvgPerUnit float64 `csv:"Avg_per_unit"`
}

// Compute itemizes the charges for one position round trip. Quantity is
// contracts traded (lots times lot size).
func Compute(cfg config.ChargesConfig, entryPrice, exitPrice float64, quantity int) Breakdown {
	qty := float64(quantity)

	b := Breakdown{
		BuyValue:  round2(entryPrice * qty),
		SellValue: round2(exitPrice * qty),
	}
	b.Turnover = b.BuyValue + b.SellValue
	b.Brokerage = cfg.BrokeragePerOrder * 2
	b.ExchangeTC = b.Turnover * cfg.ExchangeTxnRate
	b.SEBITC = b.Turnover * cfg.SEBIRate
	b.GST = round2((b.Brokerage + b.ExchangeTC + b.SEBITC) * cfg.GSTRate)
	b.STT = b.SellValue * cfg.STTRate
	b.StampDuty = b.BuyValue * cfg.StampRate
	b.Slippage = round2((entryPrice + exitPrice) * (cfg.SlippagePercent / 100) * qty)
	b.Total = round2(b.Brokerage + b.ExchangeTC + b.SEBITC + b.GST + b.STT + b.StampDuty + b.Slippage)
	if qty > 0 {
		b.AvgPerUnit = round4(b.Total / qty)
	}
	return b
}

// NetPnL deducts total charges from gross profit.
func NetPnL(gross float64, breakdowns []Breakdown) float64 {
	net := gross
	for _, b := range breakdowns {
		net -= b.Total
	}
	return round2(net)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
