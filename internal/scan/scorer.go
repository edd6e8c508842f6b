// Package scan turns per-ticker analysis into a ranked opportunity
// list: weighted composite scoring, deterministic ordering, and the
// batch scan cycle that produces append-only ScanResults.
package scan

import (
	"quantgate/internal/analysis/alert"
	"quantgate/internal/market"
	"quantgate/internal/pkg/convert"
)

// ScoreWeights 四个子分的合成权重，和应为 1。
type ScoreWeights struct {
	Technical   float64 `json:"technical"`
	Fundamental float64 `json:"fundamental"`
	Volume      float64 `json:"volume"`
	Momentum    float64 `json:"momentum"`
}

func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{Technical: 0.40, Fundamental: 0.25, Volume: 0.20, Momentum: 0.15}
}

// SubScores 各子分与合成分，全部落在 [0,100]。
type SubScores struct {
	Technical   float64 `json:"technical"`
	Fundamental float64 `json:"fundamental"`
	Volume      float64 `json:"volume"`
	Momentum    float64 `json:"momentum"`
	Composite   float64 `json:"composite"`
}

// 子分统一从中性 50 出发。信号不可用时不加不减，保持中性，
// 绝不因缺数据而惩罚。
const neutralMidpoint = 50.0

type Scorer struct {
	weights ScoreWeights
}

func NewScorer(w ScoreWeights) *Scorer {
	if w == (ScoreWeights{}) {
		w = DefaultScoreWeights()
	}
	return &Scorer{weights: w}
}

// Score 由 alert 集合与基本面快照合成优先级分。
func (s *Scorer) Score(alerts alert.Set, fund market.FundamentalSnapshot) SubScores {
	out := SubScores{
		Technical:   convert.Clamp(neutralMidpoint+alerts.WeightSum(alert.CategoryTechnical), 0, 100),
		Fundamental: convert.Clamp(neutralMidpoint+fundamentalAdjustment(fund), 0, 100),
		Volume:      convert.Clamp(neutralMidpoint+alerts.WeightSum(alert.CategoryVolume), 0, 100),
		Momentum:    convert.Clamp(neutralMidpoint+alerts.WeightSum(alert.CategoryMomentum), 0, 100),
	}
	out.Composite = convert.Clamp(
		s.weights.Technical*out.Technical+
			s.weights.Fundamental*out.Fundamental+
			s.weights.Volume*out.Volume+
			s.weights.Momentum*out.Momentum,
		0, 100)
	return out
}

// fundamentalAdjustment 估值/成长/质量的加减分。字段缺失不参与。
func fundamentalAdjustment(f market.FundamentalSnapshot) float64 {
	var adj float64
	if f.HasPERatio {
		switch {
		case f.PERatio <= 0:
			adj -= 5
		case f.PERatio < 15:
			adj += 10
		case f.PERatio < 25:
			adj += 5
		case f.PERatio > 40:
			adj -= 10
		}
	}
	if f.HasEVToEBITDA && f.EVToEBITDA > 0 {
		switch {
		case f.EVToEBITDA < 5:
			adj += 10
		case f.EVToEBITDA < 8:
			adj += 5
		case f.EVToEBITDA > 15:
			adj -= 5
		}
	}
	if f.HasGrowth {
		switch {
		case f.RevenueGrowthPct > 15:
			adj += 10
		case f.RevenueGrowthPct > 5:
			adj += 5
		case f.RevenueGrowthPct < 0:
			adj -= 10
		}
	}
	if f.HasMargin {
		switch {
		case f.NetMarginPct > 20:
			adj += 10
		case f.NetMarginPct > 10:
			adj += 5
		case f.NetMarginPct < 0:
			adj -= 10
		}
	}
	if f.DividendYieldPct >= 3 {
		adj += 5
	} else if f.DividendYieldPct >= 2 {
		adj += 3
	}
	return adj
}
