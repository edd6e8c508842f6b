// Package risk computes return-correlation risk between a candidate and
// the existing holdings. All math is in-memory over already-fetched
// series; the scan cycle performs one batch lookup up front.
package risk

import (
	"math"
	"sort"
	"time"

	"quantgate/internal/market"
)

// Config 相关性风控阈值。
type Config struct {
	CautionThreshold float64 // 低于此不减仓，默认 0.3
	RiskThreshold    float64 // 到达此判定不安全，默认 0.75
	LookbackDays     int     // 交易日回看窗口，默认 90
	MinOverlap       int     // 收益序列最少重叠天数
}

func (c *Config) applyDefaults() {
	if c.CautionThreshold <= 0 {
		c.CautionThreshold = 0.3
	}
	if c.RiskThreshold <= 0 {
		c.RiskThreshold = 0.75
	}
	if c.LookbackDays <= 0 {
		c.LookbackDays = 90
	}
	if c.MinOverlap <= 0 {
		c.MinOverlap = 30
	}
}

// Assessment 候选标的对组合的相关性评估。
// RecommendedSizePct 是基准仓位应保留的百分比：100 不减，0 不可开仓。
type Assessment struct {
	Ticker             string  `json:"ticker"`
	MaxCorrelation     float64 `json:"max_correlation"`
	CorrelatedWith     string  `json:"correlated_with,omitempty"`
	IsSafe             bool    `json:"is_safe"`
	RecommendedSizePct float64 `json:"recommended_size_pct"`
}

type Manager struct {
	cfg Config
}

func NewManager(cfg Config) *Manager {
	cfg.applyDefaults()
	return &Manager{cfg: cfg}
}

// Assess 计算候选与每笔持仓的收益相关性，取最大值给出评估。
// 持仓为空或重叠样本不足时视为安全、不减仓。
func (m *Manager) Assess(candidate string, candBars []market.PriceBar, holdings map[string][]market.PriceBar) Assessment {
	out := Assessment{Ticker: candidate, IsSafe: true, RecommendedSizePct: 100}

	names := make([]string, 0, len(holdings))
	for name := range holdings {
		names = append(names, name)
	}
	sort.Strings(names)

	maxCorr := math.Inf(-1)
	maxWith := ""
	for _, name := range names {
		corr, ok := m.pairCorrelation(candBars, holdings[name])
		if !ok {
			continue
		}
		if corr > maxCorr {
			maxCorr = corr
			maxWith = name
		}
	}
	if math.IsInf(maxCorr, -1) {
		return out
	}

	out.MaxCorrelation = maxCorr
	out.CorrelatedWith = maxWith
	switch {
	case maxCorr >= m.cfg.RiskThreshold:
		out.IsSafe = false
		out.RecommendedSizePct = 0
	case maxCorr > m.cfg.CautionThreshold:
		// caution 与 risk 之间按比例从 100% 线性降到 50%
		span := m.cfg.RiskThreshold - m.cfg.CautionThreshold
		frac := (maxCorr - m.cfg.CautionThreshold) / span
		out.RecommendedSizePct = 100 - frac*50
	}
	return out
}

// DiversificationScore = 1 − 持仓两两相关性的均值。持仓不足两笔记 1。
func (m *Manager) DiversificationScore(holdings map[string][]market.PriceBar) float64 {
	names := make([]string, 0, len(holdings))
	for name := range holdings {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) < 2 {
		return 1
	}
	var sum float64
	var count int
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			if corr, ok := m.pairCorrelation(holdings[names[i]], holdings[names[j]]); ok {
				sum += corr
				count++
			}
		}
	}
	if count == 0 {
		return 1
	}
	return 1 - sum/float64(count)
}

// pairCorrelation 按日期对齐两段序列，在回看窗口上求 Pearson 相关。
func (m *Manager) pairCorrelation(a, b []market.PriceBar) (float64, bool) {
	ra := returnsByDate(a)
	rb := returnsByDate(b)

	dates := make([]time.Time, 0, len(ra))
	for d := range ra {
		if _, ok := rb[d]; ok {
			dates = append(dates, d)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	if len(dates) > m.cfg.LookbackDays {
		dates = dates[len(dates)-m.cfg.LookbackDays:]
	}
	if len(dates) < m.cfg.MinOverlap {
		return 0, false
	}

	xs := make([]float64, len(dates))
	ys := make([]float64, len(dates))
	for i, d := range dates {
		xs[i] = ra[d]
		ys[i] = rb[d]
	}
	return pearson(xs, ys)
}

func returnsByDate(bars []market.PriceBar) map[time.Time]float64 {
	out := make(map[time.Time]float64, len(bars))
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev == 0 {
			continue
		}
		out[bars[i].Date] = bars[i].Close/prev - 1
	}
	return out
}

func pearson(xs, ys []float64) (float64, bool) {
	n := float64(len(xs))
	if n < 2 {
		return 0, false
	}
	var sumX, sumY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX, meanY := sumX/n, sumY/n
	var cov, varX, varY float64
	for i := range xs {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0, false
	}
	return cov / math.Sqrt(varX*varY), true
}
