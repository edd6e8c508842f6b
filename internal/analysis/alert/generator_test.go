package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantgate/internal/analysis/indicator"
	"quantgate/internal/market"
)

func snap(mutators ...func(*indicator.Snapshot)) indicator.Snapshot {
	s := indicator.Snapshot{
		Ticker: "TEST",
		Date:   time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		Close:  100,
		Volume: 1000,
	}
	for _, m := range mutators {
		m(&s)
	}
	return s
}

func val(v float64) indicator.Value { return indicator.Value{V: v, Valid: true} }

func TestRSIOversoldAlert(t *testing.T) {
	g := NewGenerator(Weights{})
	set := g.Generate(snap(func(s *indicator.Snapshot) { s.RSI = val(25) }), snap())

	require.True(t, set.Has(RSIOversold))
	assert.False(t, set.Has(RSIExtremeOversold))
	assert.InDelta(t, 15, set[RSIOversold].Weight, 1e-9)
}

func TestRSIExtremeOverboughtAlert(t *testing.T) {
	g := NewGenerator(Weights{})
	set := g.Generate(snap(func(s *indicator.Snapshot) { s.RSI = val(85) }), snap())

	assert.True(t, set.Has(RSIExtremeOverbought))
	assert.True(t, set.Has(RSIOverbought))
	assert.InDelta(t, -20, set[RSIExtremeOverbought].Weight, 1e-9)
}

func TestRSIExtremeOversoldEscalatesWeight(t *testing.T) {
	g := NewGenerator(Weights{})

	extreme := g.Generate(snap(func(s *indicator.Snapshot) { s.RSI = val(19) }), snap())
	require.True(t, extreme.Has(RSIExtremeOversold))
	assert.InDelta(t, 25, extreme[RSIExtremeOversold].Weight, 1e-9)

	// RSI 19 与 29 必须可区分：极端区贡献更大。
	plain := g.Generate(snap(func(s *indicator.Snapshot) { s.RSI = val(29) }), snap())
	require.True(t, plain.Has(RSIOversold))
	assert.False(t, plain.Has(RSIExtremeOversold))
	assert.Greater(t, extreme[RSIExtremeOversold].Weight, plain[RSIOversold].Weight)
}

func TestRSIUnavailableProducesNoAlert(t *testing.T) {
	g := NewGenerator(Weights{})
	set := g.Generate(snap(), snap())
	assert.Empty(t, set)
}

func TestMACDBullishCross(t *testing.T) {
	g := NewGenerator(Weights{})
	prev := snap(func(s *indicator.Snapshot) {
		s.MACD = val(-0.5)
		s.MACDSignal = val(-0.3)
	})
	cur := snap(func(s *indicator.Snapshot) {
		s.MACD = val(0.2)
		s.MACDSignal = val(0.1)
	})
	set := g.Generate(cur, prev)

	require.True(t, set.Has(MACDBullishCross))
	assert.InDelta(t, 15, set[MACDBullishCross].Weight, 1e-9)
	assert.InDelta(t, 15, set.WeightSum(CategoryMomentum), 1e-9)
}

func TestMACDNoCrossWhenAlreadyAbove(t *testing.T) {
	g := NewGenerator(Weights{})
	prev := snap(func(s *indicator.Snapshot) {
		s.MACD = val(0.5)
		s.MACDSignal = val(0.1)
	})
	cur := snap(func(s *indicator.Snapshot) {
		s.MACD = val(0.6)
		s.MACDSignal = val(0.2)
	})
	set := g.Generate(cur, prev)
	assert.False(t, set.Has(MACDBullishCross))
}

func TestVolumeSpikeScaling(t *testing.T) {
	g := NewGenerator(Weights{})

	low := g.Generate(snap(func(s *indicator.Snapshot) { s.VolumeRatio = val(1.6) }), snap())
	require.True(t, low.Has(VolumeSpike))
	high := g.Generate(snap(func(s *indicator.Snapshot) { s.VolumeRatio = val(5.0) }), snap())
	require.True(t, high.Has(VolumeSpike))

	assert.Less(t, low[VolumeSpike].Weight, high[VolumeSpike].Weight)
	assert.GreaterOrEqual(t, low[VolumeSpike].Weight, 10.0)
	assert.LessOrEqual(t, high[VolumeSpike].Weight, 20.0)
}

func TestPivotZones(t *testing.T) {
	g := NewGenerator(Weights{})
	piv := indicator.PivotLevels{PP: 100, R1: 105, R2: 110, S1: 95, S2: 90, Valid: true}

	below := g.Generate(snap(func(s *indicator.Snapshot) { s.Close = 92; s.Pivot = piv }), snap())
	assert.True(t, below.Has(PivotOversoldBounce))

	mid := g.Generate(snap(func(s *indicator.Snapshot) { s.Close = 97; s.Pivot = piv }), snap())
	assert.True(t, mid.Has(PivotAccumulation))

	ext := g.Generate(snap(func(s *indicator.Snapshot) { s.Close = 108; s.Pivot = piv }), snap())
	assert.True(t, ext.Has(PivotExtended))
}

func TestBuyTheDipRequiresAllLegs(t *testing.T) {
	g := NewGenerator(Weights{})

	dip := g.Generate(snap(func(s *indicator.Snapshot) {
		s.RSI = val(25)
		s.SMA200 = val(90)
		s.BBLower = val(101)
		s.Close = 100
	}), snap())
	assert.True(t, dip.Has(BuyTheDip))

	// below the 200-day average: long-term trend broken, no dip signal
	noDip := g.Generate(snap(func(s *indicator.Snapshot) {
		s.RSI = val(25)
		s.SMA200 = val(110)
		s.BBLower = val(101)
		s.Close = 100
	}), snap())
	assert.False(t, noDip.Has(BuyTheDip))
}

func TestSortedIsDeterministic(t *testing.T) {
	g := NewGenerator(Weights{})
	cur := snap(func(s *indicator.Snapshot) {
		s.RSI = val(25)
		s.VolumeRatio = val(2)
		s.Pivot = indicator.PivotLevels{PP: 110, S1: 105, Valid: true}
	})
	a := g.Generate(cur, snap()).Sorted()
	b := g.Generate(cur, snap()).Sorted()
	assert.Equal(t, a, b)
}

// A steady uptrend through the long averages should eventually print a
// bullish MACD crossover after a pullback resolves.
func TestUptrendProducesBullishCross(t *testing.T) {
	var bars []market.PriceBar
	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	price := 100.0
	for i := 0; i < 260; i++ {
		// gentle decline for 40 bars, then a persistent climb
		if i < 40 {
			price -= 0.4
		} else {
			price += 0.6
		}
		bars = append(bars, market.PriceBar{
			Date: day, Open: price, High: price + 1, Low: price - 1, Close: price + 0.2, Volume: 1000,
		})
		day = day.AddDate(0, 0, 1)
	}
	snaps, err := indicator.Compute("TREND", bars, indicator.Settings{})
	require.NoError(t, err)

	g := NewGenerator(Weights{})
	crossed := false
	for i := 41; i < len(snaps); i++ {
		if g.Generate(snaps[i], snaps[i-1]).Has(MACDBullishCross) {
			crossed = true
			break
		}
	}
	assert.True(t, crossed, "expected a bullish crossover after the trend turns")
}
