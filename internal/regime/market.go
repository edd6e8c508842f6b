// Package regime classifies market direction, volatility level and
// sector rotation from benchmark and sector-proxy return series. The
// snapshots feed the dynamic gate threshold table.
package regime

import (
	"math"
	"time"

	"quantgate/internal/market"
)

type MarketDirection string

const (
	Bull    MarketDirection = "bull"
	Bear    MarketDirection = "bear"
	Neutral MarketDirection = "neutral"
)

type VolatilityLevel string

const (
	VolHigh   VolatilityLevel = "high"
	VolNormal VolatilityLevel = "normal"
	VolLow    VolatilityLevel = "low"
)

// MarketState 市场状态快照，按计划刷新，闸门评估只读。
type MarketState struct {
	Direction      MarketDirection `json:"direction"`
	Volatility     VolatilityLevel `json:"volatility"`
	TrailingRetPct float64         `json:"trailing_ret_pct"`
	RealizedVolPct float64         `json:"realized_vol_pct"`
	AsOf           time.Time       `json:"as_of"`
}

// MarketConfig 方向与波动阈值，零值取缺省。
type MarketConfig struct {
	LookbackDays  int     // 趋势回看窗口
	BullThreshold float64 // 区间收益高于此为 bull，百分比
	BearThreshold float64 // 低于此为 bear（负数）
	HighVolPct    float64 // 年化波动高于此为 high
	LowVolPct     float64 // 低于此为 low
}

func (c *MarketConfig) applyDefaults() {
	if c.LookbackDays <= 0 {
		c.LookbackDays = 60
	}
	if c.BullThreshold == 0 {
		c.BullThreshold = 5
	}
	if c.BearThreshold == 0 {
		c.BearThreshold = -5
	}
	if c.HighVolPct == 0 {
		c.HighVolPct = 25
	}
	if c.LowVolPct == 0 {
		c.LowVolPct = 12
	}
}

// MarketDetector 由基准指数 K 线判定市场方向与波动水平。
type MarketDetector struct {
	cfg MarketConfig
}

func NewMarketDetector(cfg MarketConfig) *MarketDetector {
	cfg.applyDefaults()
	return &MarketDetector{cfg: cfg}
}

// Detect 计算回看区间收益与已实现波动。历史不足时回退到 neutral/normal。
func (d *MarketDetector) Detect(benchmark []market.PriceBar, asOf time.Time) MarketState {
	state := MarketState{Direction: Neutral, Volatility: VolNormal, AsOf: asOf}
	n := len(benchmark)
	if n < 2 {
		return state
	}
	lb := d.cfg.LookbackDays
	if lb >= n {
		lb = n - 1
	}
	start := benchmark[n-1-lb].Close
	end := benchmark[n-1].Close
	if start > 0 {
		state.TrailingRetPct = (end/start - 1) * 100
	}
	switch {
	case state.TrailingRetPct > d.cfg.BullThreshold:
		state.Direction = Bull
	case state.TrailingRetPct < d.cfg.BearThreshold:
		state.Direction = Bear
	}

	rets := market.DailyReturns(benchmark[n-1-lb:])
	state.RealizedVolPct = annualizedVolPct(rets)
	switch {
	case state.RealizedVolPct > d.cfg.HighVolPct:
		state.Volatility = VolHigh
	case state.RealizedVolPct < d.cfg.LowVolPct:
		state.Volatility = VolLow
	}
	return state
}

func annualizedVolPct(rets []float64) float64 {
	if len(rets) < 2 {
		return 0
	}
	var mean float64
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	var ss float64
	for _, r := range rets {
		d := r - mean
		ss += d * d
	}
	std := math.Sqrt(ss / float64(len(rets)-1))
	return std * math.Sqrt(252) * 100
}
