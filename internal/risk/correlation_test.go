package risk

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantgate/internal/market"
)

// barsFromReturns builds a daily series from a return sequence.
func barsFromReturns(rets []float64) []market.PriceBar {
	bars := make([]market.PriceBar, 0, len(rets)+1)
	day := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	price := 100.0
	bars = append(bars, market.PriceBar{Date: day, Open: price, High: price, Low: price, Close: price, Volume: 1})
	for _, r := range rets {
		day = day.AddDate(0, 0, 1)
		price *= 1 + r
		bars = append(bars, market.PriceBar{Date: day, Open: price, High: price * 1.001, Low: price * 0.999, Close: price, Volume: 1})
	}
	return bars
}

func randomReturns(seed int64, n int) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.NormFloat64() * 0.01
	}
	return out
}

func TestPerfectCorrelationUnsafe(t *testing.T) {
	m := NewManager(Config{})
	rets := randomReturns(7, 120)
	cand := barsFromReturns(rets)
	hold := barsFromReturns(rets)

	a := m.Assess("CAND", cand, map[string][]market.PriceBar{"HOLD": hold})
	assert.InDelta(t, 1.0, a.MaxCorrelation, 1e-9)
	assert.False(t, a.IsSafe)
	assert.Equal(t, "HOLD", a.CorrelatedWith)
	assert.Zero(t, a.RecommendedSizePct)
}

func TestIndependentSeriesSafe(t *testing.T) {
	m := NewManager(Config{})
	cand := barsFromReturns(randomReturns(1, 200))
	hold := barsFromReturns(randomReturns(2, 200))

	a := m.Assess("CAND", cand, map[string][]market.PriceBar{"HOLD": hold})
	assert.True(t, a.IsSafe)
	assert.Less(t, math.Abs(a.MaxCorrelation), 0.3)
	assert.InDelta(t, 100, a.RecommendedSizePct, 1e-9)
}

func TestCautionBandReducesSize(t *testing.T) {
	m := NewManager(Config{})
	base := randomReturns(3, 150)
	noise := randomReturns(4, 150)
	// blend to land between the caution and risk thresholds
	mixed := make([]float64, len(base))
	for i := range base {
		mixed[i] = 0.6*base[i] + 0.4*noise[i]
	}
	cand := barsFromReturns(base)
	hold := barsFromReturns(mixed)

	a := m.Assess("CAND", cand, map[string][]market.PriceBar{"HOLD": hold})
	if a.MaxCorrelation > 0.3 && a.MaxCorrelation < 0.75 {
		assert.True(t, a.IsSafe)
		assert.Less(t, a.RecommendedSizePct, 100.0)
		assert.Greater(t, a.RecommendedSizePct, 0.0)
	}
}

func TestNoHoldingsIsSafe(t *testing.T) {
	m := NewManager(Config{})
	a := m.Assess("CAND", barsFromReturns(randomReturns(5, 120)), nil)
	assert.True(t, a.IsSafe)
	assert.InDelta(t, 100, a.RecommendedSizePct, 1e-9)
}

func TestInsufficientOverlapIgnored(t *testing.T) {
	m := NewManager(Config{})
	cand := barsFromReturns(randomReturns(6, 120))
	short := barsFromReturns(randomReturns(8, 5)) // below MinOverlap

	a := m.Assess("CAND", cand, map[string][]market.PriceBar{"SHORT": short})
	assert.True(t, a.IsSafe)
	assert.Empty(t, a.CorrelatedWith)
}

func TestDiversificationScore(t *testing.T) {
	m := NewManager(Config{})
	rets := randomReturns(9, 150)
	clones := map[string][]market.PriceBar{
		"A": barsFromReturns(rets),
		"B": barsFromReturns(rets),
	}
	require.InDelta(t, 0.0, m.DiversificationScore(clones), 1e-9)

	diverse := map[string][]market.PriceBar{
		"A": barsFromReturns(randomReturns(10, 200)),
		"B": barsFromReturns(randomReturns(11, 200)),
	}
	assert.Greater(t, m.DiversificationScore(diverse), 0.5)

	assert.InDelta(t, 1.0, m.DiversificationScore(nil), 1e-9)
}
