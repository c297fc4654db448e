package charges

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-backtester/internal/config"
)

func testRates() config.ChargesConfig {
	return config.ChargesConfig{
		BrokeragePerOrder: 20,
		ExchangeTxnRate:   0.00035,
		SEBIRate:          0.000001,
		GSTRate:           0.18,
		STTRate:           0.000625,
		StampRate:         0.00003,
		SlippagePercent:   0.5,
	}
}

func TestComputeBreakdown(t *testing.T) {
	b := Compute(testRates(), 100, 80, 50)

	assert.Equal(t, 5000.0, b.BuyValue)
	assert.Equal(t, 4000.0, b.SellValue)
	assert.Equal(t, 9000.0, b.Turnover)
	assert.Equal(t, 40.0, b.Brokerage)
	assert.InDelta(t, 3.15, b.ExchangeTC, 1e-9)
	assert.InDelta(t, 0.009, b.SEBITC, 1e-9)
	assert.InDelta(t, 7.77, b.GST, 1e-9)
	assert.InDelta(t, 2.5, b.STT, 1e-9)
	assert.InDelta(t, 0.15, b.StampDuty, 1e-9)
	assert.InDelta(t, 45.0, b.Slippage, 1e-9)
	assert.InDelta(t, 98.58, b.Total, 1e-9)
	assert.InDelta(t, 1.9716, b.AvgPerUnit, 1e-9)
}

func TestComputeZeroQuantity(t *testing.T) {
	b := Compute(testRates(), 100, 80, 0)
	assert.Equal(t, 0.0, b.BuyValue)
	assert.Equal(t, 0.0, b.AvgPerUnit)
	// Flat brokerage still applies to a round trip.
	assert.Equal(t, 40.0, b.Brokerage)
}

func TestComputeChargesScaleWithTurnover(t *testing.T) {
	small := Compute(testRates(), 100, 100, 50)
	large := Compute(testRates(), 100, 100, 500)
	require.Greater(t, large.Total, small.Total)
	assert.InDelta(t, small.ExchangeTC*10, large.ExchangeTC, 1e-6)
	assert.InDelta(t, small.STT*10, large.STT, 1e-6)
}

func TestNetPnL(t *testing.T) {
	b1 := Compute(testRates(), 100, 80, 50)
	b2 := Compute(testRates(), 50, 60, 50)
	net := NetPnL(1500, []Breakdown{b1, b2})
	assert.InDelta(t, 1500-b1.Total-b2.Total, net, 1e-9)

	assert.Equal(t, 250.0, NetPnL(250, nil))
}
