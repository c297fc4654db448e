package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-backtester/internal/errors"
	"options-backtester/internal/models"
	"options-backtester/pkg/utils"
)

func newTestCache(t *testing.T) *MonthCache {
	t.Helper()
	cache, err := NewMonthCache(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestOptionMonthRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	ce := priceRow(minuteAt(9, 20), 22500, models.OptionCall, weeklyExp, 100)
	ce.Ticker = "NIFTY2460622500CE"
	ce2 := priceRow(minuteAt(9, 21), 22500, models.OptionCall, weeklyExp, 104)
	ce2.Ticker = "NIFTY2460622500CE"
	pe := priceRow(minuteAt(9, 20), 22500, models.OptionPut, weeklyExp, 95)
	pe.Ticker = "NIFTY2460622500PE"
	rows := []models.PriceRow{ce, ce2, pe}
	require.NoError(t, cache.SaveOptionMonth(ctx, "nifty", 2024, time.June, rows))

	has, err := cache.HasMonth(ctx, "nifty", "options", 2024, time.June)
	require.NoError(t, err)
	assert.True(t, has)

	got, err := cache.OptionMonth(ctx, "nifty", 2024, time.June)
	require.NoError(t, err)
	require.Len(t, got, 3)

	var calls, puts int
	for _, r := range got {
		assert.Equal(t, 22500.0, r.Strike)
		assert.True(t, dateOnly(r.Expiry).Equal(weeklyExp))
		switch r.Type {
		case models.OptionCall:
			calls++
		case models.OptionPut:
			puts++
		}
	}
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, puts)
	assert.True(t, got[len(got)-1].Timestamp.Equal(minuteAt(9, 21)), "rows come back ordered by timestamp")
}

func TestOptionMonthMiss(t *testing.T) {
	cache := newTestCache(t)
	_, err := cache.OptionMonth(context.Background(), "nifty", 2024, time.July)
	assert.ErrorIs(t, err, errors.ErrCacheMiss)
}

func TestSpotMonthRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	rows := []models.SpotRow{
		{Timestamp: minuteAt(9, 20), Candle: models.Candle{Open: 22500, High: 22510, Low: 22495, Close: 22505}},
		{Timestamp: minuteAt(9, 21), Candle: models.Candle{Open: 22505, High: 22520, Low: 22500, Close: 22515}},
	}
	require.NoError(t, cache.SaveSpotMonth(ctx, "NIFTY 50", 2024, time.June, rows))

	got, err := cache.SpotMonth(ctx, "NIFTY 50", 2024, time.June)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 22505.0, got[0].Close)
	assert.Equal(t, utils.IndiaLocation, got[0].Timestamp.Location())

	// Spot and option partitions are tracked separately.
	has, err := cache.HasMonth(ctx, "NIFTY 50", "options", 2024, time.June)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestSaveMonthIdempotent(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	rows := []models.PriceRow{
		priceRow(minuteAt(9, 20), 22500, models.OptionCall, weeklyExp, 100),
	}
	require.NoError(t, cache.SaveOptionMonth(ctx, "nifty", 2024, time.June, rows))

	rows[0].Close = 102
	require.NoError(t, cache.SaveOptionMonth(ctx, "nifty", 2024, time.June, rows))

	got, err := cache.OptionMonth(ctx, "nifty", 2024, time.June)
	require.NoError(t, err)
	require.Len(t, got, 1, "re-saving replaces rows instead of duplicating")
	assert.Equal(t, 102.0, got[0].Close)
}

func TestMonthBoundsExcludeNeighbors(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	julyBar := priceRow(time.Date(2024, 7, 1, 9, 20, 0, 0, utils.IndiaLocation), 22500, models.OptionCall, weeklyExp, 120)
	rows := []models.PriceRow{
		priceRow(minuteAt(9, 20), 22500, models.OptionCall, weeklyExp, 100),
		julyBar,
	}
	require.NoError(t, cache.SaveOptionMonth(ctx, "nifty", 2024, time.June, rows))

	got, err := cache.OptionMonth(ctx, "nifty", 2024, time.June)
	require.NoError(t, err)
	require.Len(t, got, 1, "only bars inside the month window are returned")
	assert.Equal(t, 100.0, got[0].Close)
}
