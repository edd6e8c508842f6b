package gate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantgate/internal/analysis/alert"
	"quantgate/internal/analysis/entry"
	"quantgate/internal/analysis/indicator"
	"quantgate/internal/market"
	"quantgate/internal/regime"
	"quantgate/internal/risk"
	"quantgate/internal/scan"
)

func v(x float64) indicator.Value { return indicator.Value{V: x, Valid: true} }

// bullishInput 一个四门全过的基准输入，单测在此之上做局部改动。
func bullishInput() Input {
	snap := indicator.Snapshot{
		Ticker: "TEST",
		Close:  100,
		SMA20:  v(98),
		SMA50:  v(95),
		SMA200: v(90),
		ATRPct: v(1.2),
	}
	return Input{
		Ticker:   "TEST",
		AsOf:     time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC),
		Scores:   scan.SubScores{Technical: 70, Fundamental: 72, Volume: 60, Momentum: 60, Composite: 68},
		Snapshot: snap,
		Fundamentals: market.FundamentalSnapshot{
			Ticker: "TEST", Sector: "technology", DividendYieldPct: 2.5,
		},
		Alerts: alert.Set{},
		Entry: entry.Advice{
			Timing: entry.BuyNow, Support: 92, Resistance: 120, Confidence: 0.7,
		},
		Market:      regime.MarketState{Direction: regime.Neutral, Volatility: regime.VolNormal},
		Correlation: risk.Assessment{Ticker: "TEST", IsSafe: true, RecommendedSizePct: 100},
	}
}

func TestAllGatesPassIsBuy(t *testing.T) {
	f := NewFramework(Config{})
	ev := f.Evaluate(bullishInput())

	require.Len(t, ev.Gates, 4)
	for _, g := range ev.Gates {
		assert.True(t, g.Passed, "gate %s: score=%.1f thr=%.1f (%s)", g.Name, g.Score, g.ThresholdUsed, g.Reasoning)
	}
	assert.Equal(t, DecisionBuy, ev.Decision)
	assert.GreaterOrEqual(t, ev.Confidence, 60.0)
	assert.NotEmpty(t, ev.ID)
}

func TestRiskTerminalForcesSell(t *testing.T) {
	f := NewFramework(Config{})
	in := bullishInput()
	// 高波动 + 行业超限 + 不安全相关性 + 差盈亏比，把风险分压到 40 以下。
	in.Snapshot.ATRPct = v(5)
	in.SectorExposurePct = 25
	in.ProposedPct = 5
	in.Correlation = risk.Assessment{Ticker: "TEST", MaxCorrelation: 0.9, CorrelatedWith: "HELD", IsSafe: false}
	in.Entry.Support = 70
	in.Entry.Resistance = 105

	ev := f.Evaluate(in)
	require.Less(t, ev.Gate(GateRisk).Score, 40.0)
	// 其余闸门再好也无法翻案。
	assert.Equal(t, DecisionSell, ev.Decision)
}

func TestTimingFailureIsWait(t *testing.T) {
	f := NewFramework(Config{})
	in := bullishInput()
	in.Entry.Timing = entry.WaitForPullback

	ev := f.Evaluate(in)
	assert.False(t, ev.Gate(GateTiming).Passed)
	assert.Equal(t, DecisionWait, ev.Decision)
}

// Scenario B：VWAP 上方 10%、RSI 85 的标的即使合成分看多也只能 WAIT。
func TestExtremeOverboughtOverride(t *testing.T) {
	f := NewFramework(Config{})
	in := bullishInput()
	in.Alerts = alert.Set{}
	in.Alerts[alert.RSIExtremeOverbought] = alert.Alert{Type: alert.RSIExtremeOverbought, Weight: -20}

	ev := f.Evaluate(in)
	assert.Equal(t, DecisionWait, ev.Decision)
	assert.True(t, ev.Overridden)
}

func TestOverrideWaivedByBuyTheDip(t *testing.T) {
	f := NewFramework(Config{Override: OverrideDip})
	in := bullishInput()
	in.Alerts[alert.RSIExtremeOverbought] = alert.Alert{Type: alert.RSIExtremeOverbought, Weight: -20}
	in.Alerts[alert.BuyTheDip] = alert.Alert{Type: alert.BuyTheDip, Weight: 20}

	ev := f.Evaluate(in)
	assert.Equal(t, DecisionBuy, ev.Decision)
	assert.False(t, ev.Overridden)

	// always 策略下 dip 信号不豁免。
	strict := NewFramework(Config{Override: OverrideAlways})
	ev = strict.Evaluate(in)
	assert.Equal(t, DecisionWait, ev.Decision)
	assert.True(t, ev.Overridden)
}

// Scenario C：行业敞口超限扣 25 分并导致风险门失败。
func TestSectorCapPenalty(t *testing.T) {
	f := NewFramework(Config{SectorCapPct: 20})
	in := bullishInput()
	in.SectorExposurePct = 18
	in.ProposedPct = 5
	in.Correlation = risk.Assessment{Ticker: "TEST", MaxCorrelation: 0.85, CorrelatedWith: "HELD", IsSafe: false}

	ev := f.Evaluate(in)
	riskG := ev.Gate(GateRisk)
	assert.False(t, riskG.Passed)
	assert.Contains(t, riskG.Reasoning, "over cap")
	assert.Contains(t, riskG.Reasoning, "unsafe correlation")
}

func TestThresholdAdjustmentOrder(t *testing.T) {
	rules := DefaultAdjustRules()
	base := DefaultThresholds()

	// 高先验置信度放宽基本面/技术面。
	adj := base.adjust(rules, 90, regime.MarketState{Direction: regime.Neutral})
	assert.Equal(t, 65.0, adj.Fundamental)
	assert.Equal(t, 60.0, adj.Technical)

	// 牛市覆写绝对值，覆盖前一步的增减。
	adj = base.adjust(rules, 90, regime.MarketState{Direction: regime.Bull})
	assert.Equal(t, 65.0, adj.Fundamental)
	assert.Equal(t, 70.0, adj.Technical)

	// 熊市更严的基本面线 + 高波动抬高风险线。
	adj = base.adjust(rules, 50, regime.MarketState{Direction: regime.Bear, Volatility: regime.VolHigh})
	assert.Equal(t, 75.0, adj.Fundamental)
	assert.Equal(t, 60.0, adj.Technical)
	assert.Equal(t, 75.0, adj.Risk)
}

func TestHeldPositionHolds(t *testing.T) {
	f := NewFramework(Config{})
	in := bullishInput()
	in.Held = true
	in.Entry.Timing = entry.WaitForPullback
	in.Scores.Fundamental = 40 // 基本面门失败，部分通过

	ev := f.Evaluate(in)
	assert.Equal(t, DecisionHold, ev.Decision)
}

func TestEarningsWindowFailsTiming(t *testing.T) {
	f := NewFramework(Config{})
	in := bullishInput()
	in.Entry.Timing = entry.Accumulate
	in.Fundamentals.HasNextEarnings = true
	in.Fundamentals.NextEarnings = in.AsOf.AddDate(0, 0, 3)

	ev := f.Evaluate(in)
	timing := ev.Gate(GateTiming)
	assert.False(t, timing.Passed)
	assert.Contains(t, timing.Reasoning, "earnings window")
	assert.Equal(t, DecisionWait, ev.Decision)
}

// exclude 策略下财报窗口在扫描层整票剔除，时机门不再重复扣分。
func TestEarningsExcludePolicyLeavesTimingGate(t *testing.T) {
	f := NewFramework(Config{Earnings: EarningsExclude})
	in := bullishInput()
	in.Entry.Timing = entry.Accumulate
	in.Fundamentals.HasNextEarnings = true
	in.Fundamentals.NextEarnings = in.AsOf.AddDate(0, 0, 3)

	ev := f.Evaluate(in)
	timing := ev.Gate(GateTiming)
	assert.True(t, timing.Passed)
	assert.NotContains(t, timing.Reasoning, "earnings window")
}

func TestEarningsWindowCountsTradingDays(t *testing.T) {
	cfg := Config{}.Normalized()
	fund := market.FundamentalSnapshot{
		HasNextEarnings: true,
		NextEarnings:    time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), // 周二
	}
	asOf := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC) // 一周前的周二

	// 自然日相差 7，窗口（前 5 日）外。
	assert.False(t, cfg.InEarningsWindow(asOf, fund))

	// 按交易日只差 5 天，落在窗口内。
	cfg.Calendar = market.NewTradingCalendar("")
	assert.True(t, cfg.InEarningsWindow(asOf, fund))
	assert.False(t, cfg.InEarningsWindow(time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC), fund))
}

// 极端超卖是超买覆盖的对称面：四门全过但置信度差一口气的 WAIT 升级为 BUY。
func TestExtremeOversoldEscalatesToBuy(t *testing.T) {
	cfg := Config{Thresholds: Thresholds{Fundamental: 40, Technical: 40, Risk: 40, Timing: 30}}
	in := bullishInput()
	in.Scores = scan.SubScores{Technical: 50, Fundamental: 45, Volume: 60, Momentum: 60, Composite: 65}
	in.Fundamentals.DividendYieldPct = 0
	in.Snapshot.SMA20, in.Snapshot.SMA50, in.Snapshot.SMA200 = indicator.Value{}, indicator.Value{}, indicator.Value{}
	in.Entry.Timing = entry.WaitForPullback

	base := NewFramework(cfg).Evaluate(in)
	require.Equal(t, DecisionWait, base.Decision)
	require.Less(t, base.Confidence, 60.0)
	for _, g := range base.Gates {
		require.True(t, g.Passed, "gate %s: score=%.1f thr=%.1f", g.Name, g.Score, g.ThresholdUsed)
	}

	in.Alerts = alert.Set{alert.RSIExtremeOversold: alert.Alert{Type: alert.RSIExtremeOversold, Weight: 25}}
	ev := NewFramework(cfg).Evaluate(in)
	assert.Equal(t, DecisionBuy, ev.Decision)
	assert.True(t, ev.Overridden)
	assert.Contains(t, ev.Reasoning, "extreme oversold")

	// off 策略下极端 RSI 不做任何覆盖。
	cfg.Override = OverrideOff
	ev = NewFramework(cfg).Evaluate(in)
	assert.Equal(t, DecisionWait, ev.Decision)
	assert.False(t, ev.Overridden)
}

func TestEvaluationDeterministicApartFromID(t *testing.T) {
	f := NewFramework(Config{})
	in := bullishInput()

	a := f.Evaluate(in)
	b := f.Evaluate(in)

	assert.NotEqual(t, a.ID, b.ID)
	a.ID, b.ID = "", ""
	assert.Equal(t, a, b)
}
