package regime

import (
	"sort"
	"time"

	"quantgate/internal/market"
)

type SectorStance string

const (
	Overweight  SectorStance = "OVERWEIGHT"
	NeutralWt   SectorStance = "NEUTRAL"
	Underweight SectorStance = "UNDERWEIGHT"
)

// SectorState 单个行业的轮动评估。
type SectorState struct {
	Sector   string       `json:"sector"`
	Momentum float64      `json:"momentum"` // [0,1] 归一化动量
	Stance   SectorStance `json:"stance"`
	Ret3MPct float64      `json:"ret_3m_pct"`
	Ret6MPct float64      `json:"ret_6m_pct"`
}

// RotationState 全行业轮动快照。
type RotationState struct {
	Sectors map[string]SectorState `json:"sectors"`
	AsOf    time.Time              `json:"as_of"`
}

// Stance 查询某行业的配置立场，未知行业按 NEUTRAL。
func (r RotationState) Stance(sector string) SectorStance {
	if s, ok := r.Sectors[sector]; ok {
		return s.Stance
	}
	return NeutralWt
}

// SectorConfig 动量混合权重与分层比例。
type SectorConfig struct {
	Weight3M    float64 // 3 个月收益排名权重
	Weight6M    float64
	TopFraction float64 // 头部多少比例 OVERWEIGHT
	BotFraction float64
}

func (c *SectorConfig) applyDefaults() {
	if c.Weight3M == 0 && c.Weight6M == 0 {
		c.Weight3M, c.Weight6M = 0.6, 0.4
	}
	if c.TopFraction <= 0 {
		c.TopFraction = 0.25
	}
	if c.BotFraction <= 0 {
		c.BotFraction = 0.25
	}
}

// SectorDetector 由行业代理 K 线推导轮动评估。
type SectorDetector struct {
	cfg SectorConfig
}

func NewSectorDetector(cfg SectorConfig) *SectorDetector {
	cfg.applyDefaults()
	return &SectorDetector{cfg: cfg}
}

const (
	tradingDays3M = 63
	tradingDays6M = 126
)

// Detect 对每个行业代理计算 3/6 个月收益排名的加权混合并归一化到 [0,1]。
// 名次按动量降序，头部 OVERWEIGHT，尾部 UNDERWEIGHT，其余 NEUTRAL。
func (d *SectorDetector) Detect(proxies map[string][]market.PriceBar, asOf time.Time) RotationState {
	out := RotationState{Sectors: make(map[string]SectorState), AsOf: asOf}
	if len(proxies) == 0 {
		return out
	}

	names := make([]string, 0, len(proxies))
	for name := range proxies {
		names = append(names, name)
	}
	sort.Strings(names)

	r3 := make(map[string]float64, len(names))
	r6 := make(map[string]float64, len(names))
	for _, name := range names {
		bars := proxies[name]
		r3[name] = trailingReturnPct(bars, tradingDays3M)
		r6[name] = trailingReturnPct(bars, tradingDays6M)
	}

	rank3 := rankScores(names, r3)
	rank6 := rankScores(names, r6)

	type scored struct {
		name     string
		momentum float64
	}
	list := make([]scored, 0, len(names))
	for _, name := range names {
		m := d.cfg.Weight3M*rank3[name] + d.cfg.Weight6M*rank6[name]
		list = append(list, scored{name: name, momentum: m})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].momentum != list[j].momentum {
			return list[i].momentum > list[j].momentum
		}
		return list[i].name < list[j].name
	})

	topN := int(float64(len(list)) * d.cfg.TopFraction)
	botN := int(float64(len(list)) * d.cfg.BotFraction)
	if topN < 1 {
		topN = 1
	}
	if botN < 1 {
		botN = 1
	}
	for i, s := range list {
		stance := NeutralWt
		switch {
		case i < topN:
			stance = Overweight
		case i >= len(list)-botN:
			stance = Underweight
		}
		out.Sectors[s.name] = SectorState{
			Sector:   s.name,
			Momentum: s.momentum,
			Stance:   stance,
			Ret3MPct: r3[s.name],
			Ret6MPct: r6[s.name],
		}
	}
	return out
}

func trailingReturnPct(bars []market.PriceBar, days int) float64 {
	n := len(bars)
	if n < 2 {
		return 0
	}
	if days >= n {
		days = n - 1
	}
	start := bars[n-1-days].Close
	if start <= 0 {
		return 0
	}
	return (bars[n-1].Close/start - 1) * 100
}

// rankScores 把收益转成 [0,1] 的名次分，最高收益得 1。
func rankScores(names []string, rets map[string]float64) map[string]float64 {
	sorted := append([]string(nil), names...)
	sort.Slice(sorted, func(i, j int) bool {
		if rets[sorted[i]] != rets[sorted[j]] {
			return rets[sorted[i]] < rets[sorted[j]]
		}
		return sorted[i] < sorted[j]
	})
	out := make(map[string]float64, len(sorted))
	if len(sorted) == 1 {
		out[sorted[0]] = 1
		return out
	}
	for i, name := range sorted {
		out[name] = float64(i) / float64(len(sorted)-1)
	}
	return out
}
