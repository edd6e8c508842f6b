package indicator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantgate/internal/market"
)

func syntheticBars(n int, start float64, step float64) []market.PriceBar {
	bars := make([]market.PriceBar, n)
	day := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	price := start
	for i := 0; i < n; i++ {
		bars[i] = market.PriceBar{
			Date:   day,
			Open:   price,
			High:   price + 1,
			Low:    price - 1,
			Close:  price + 0.5,
			Volume: 1000 + float64(i),
		}
		price += step
		day = day.AddDate(0, 0, 1)
	}
	return bars
}

func TestComputeSMAAvailability(t *testing.T) {
	bars := syntheticBars(60, 100, 0.2)
	snaps, err := Compute("TEST", bars, Settings{})
	require.NoError(t, err)
	require.Len(t, snaps, 60)

	// SMA20 unavailable before bar 20, available after
	assert.False(t, snaps[18].SMA20.Valid)
	assert.True(t, snaps[19].SMA20.Valid)
	// SMA200 never available on 60 bars; unavailable is not zero
	assert.False(t, snaps[59].SMA200.Valid)
	assert.True(t, snaps[59].SMA50.Valid)
}

func TestComputeSMA20Value(t *testing.T) {
	bars := syntheticBars(25, 100, 1)
	snaps, err := Compute("TEST", bars, Settings{})
	require.NoError(t, err)

	// closes are start+0.5, start+1.5, ... arithmetic series; SMA20 at index 19
	// is the mean of closes 0..19 = 100.5 + 19/2
	assert.InDelta(t, 100.5+9.5, snaps[19].SMA20.V, 1e-9)
}

func TestRollingVWAP(t *testing.T) {
	bars := syntheticBars(25, 50, 0)
	snaps, err := Compute("TEST", bars, Settings{VWAPWindow: 5})
	require.NoError(t, err)

	assert.False(t, snaps[3].VWAP.Valid)
	require.True(t, snaps[10].VWAP.Valid)
	// flat series: typical price identical every bar, vwap equals it
	tp := market.TypicalPrice(bars[10])
	assert.InDelta(t, tp, snaps[10].VWAP.V, 1e-9)
}

func TestPivotLevels(t *testing.T) {
	bars := syntheticBars(3, 100, 0)
	bars[0].High, bars[0].Low, bars[0].Close = 110, 90, 100
	snaps, err := Compute("TEST", bars, Settings{})
	require.NoError(t, err)

	assert.False(t, snaps[0].Pivot.Valid)
	p := snaps[1].Pivot
	require.True(t, p.Valid)
	assert.InDelta(t, 100.0, p.PP, 1e-9) // (110+90+100)/3
	assert.InDelta(t, 110.0, p.R1, 1e-9) // 2*100-90
	assert.InDelta(t, 120.0, p.R2, 1e-9) // 100+(110-90)
	assert.InDelta(t, 90.0, p.S1, 1e-9)  // 2*100-110
	assert.InDelta(t, 80.0, p.S2, 1e-9)  // 100-(110-90)
}

func TestComputeRejectsMalformedBar(t *testing.T) {
	bars := syntheticBars(30, 100, 0.5)
	bars[12].High = bars[12].Low - 5 // high < low

	_, err := Compute("BAD", bars, Settings{})
	require.Error(t, err)
	assert.ErrorIs(t, err, market.ErrMalformedBar)
}

func TestComputeRejectsNegativeVolume(t *testing.T) {
	bars := syntheticBars(30, 100, 0.5)
	bars[5].Volume = -10

	_, err := Compute("BAD", bars, Settings{})
	assert.ErrorIs(t, err, market.ErrMalformedBar)
}

func TestATRPct(t *testing.T) {
	bars := syntheticBars(40, 100, 0)
	snaps, err := Compute("TEST", bars, Settings{})
	require.NoError(t, err)

	last := snaps[len(snaps)-1]
	require.True(t, last.ATR.Valid)
	require.True(t, last.ATRPct.Valid)
	assert.InDelta(t, last.ATR.V/last.Close*100, last.ATRPct.V, 1e-9)
}
