// Package position 把闸门评估的置信度换算成有界的仓位建议。
package position

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"quantgate/internal/gate"
	"quantgate/internal/risk"
)

// Tier 置信度区间到基础仓位的阶梯映射。
type Tier struct {
	MinConfidence float64 `json:"min_confidence" mapstructure:"min_confidence"`
	BasePct       float64 `json:"base_pct" mapstructure:"base_pct"`
}

// Config 仓位计算参数。Tiers 必须按 MinConfidence 降序排列。
type Config struct {
	Tiers            []Tier  `json:"tiers" mapstructure:"tiers"`
	CeilingPct       float64 `json:"ceiling_pct" mapstructure:"ceiling_pct"`
	HighQualityMean  float64 `json:"high_quality_mean" mapstructure:"high_quality_mean"`
	LowQualityMean   float64 `json:"low_quality_mean" mapstructure:"low_quality_mean"`
	QualityBoost     float64 `json:"quality_boost" mapstructure:"quality_boost"`
	QualityPenalty   float64 `json:"quality_penalty" mapstructure:"quality_penalty"`
	TimingPenalty    float64 `json:"timing_penalty" mapstructure:"timing_penalty"`
	AnnualTargetDays int     `json:"annual_target_days" mapstructure:"annual_target_days"`
}

func (c *Config) applyDefaults() {
	if len(c.Tiers) == 0 {
		c.Tiers = []Tier{
			{MinConfidence: 90, BasePct: 12},
			{MinConfidence: 80, BasePct: 8},
			{MinConfidence: 70, BasePct: 6},
			{MinConfidence: 60, BasePct: 4},
			{MinConfidence: 0, BasePct: 2},
		}
	}
	if c.CeilingPct <= 0 {
		c.CeilingPct = 10
	}
	if c.HighQualityMean <= 0 {
		c.HighQualityMean = 85
	}
	if c.LowQualityMean <= 0 {
		c.LowQualityMean = 60
	}
	if c.QualityBoost <= 0 {
		c.QualityBoost = 1.2
	}
	if c.QualityPenalty <= 0 {
		c.QualityPenalty = 0.8
	}
	if c.TimingPenalty <= 0 {
		c.TimingPenalty = 0.7
	}
	if c.AnnualTargetDays <= 0 {
		c.AnnualTargetDays = 365
	}
}

// Sizing 一次仓位计算的完整产出。预期收益拆成价格升值与股息两个
// 口径分开披露，绝不合并成单一数字。
type Sizing struct {
	Ticker               string          `json:"ticker"`
	PositionPct          float64         `json:"position_pct"`
	BasePct              float64         `json:"base_pct"`
	DollarAmount         decimal.Decimal `json:"dollar_amount"`
	Shares               decimal.Decimal `json:"shares"`
	PriceAppreciationPct float64         `json:"price_appreciation_pct"`
	DividendYieldPct     float64         `json:"dividend_yield_pct"`
	Reasoning            string          `json:"reasoning"`
}

type Sizer struct {
	cfg Config
}

func NewSizer(cfg Config) *Sizer {
	cfg.applyDefaults()
	return &Sizer{cfg: cfg}
}

// SizeRequest 计算输入。TargetPrice 为 0 时不报价格升值。
// HoldingDays 用于股息按持有期折算。
type SizeRequest struct {
	Evaluation       gate.Evaluation
	Correlation      risk.Assessment
	PortfolioValue   decimal.Decimal
	EntryPrice       float64
	TargetPrice      float64
	DividendYieldPct float64
	HoldingDays      int
}

// Size 按固定顺序叠乘调整：闸门均分 >85 加成、<60 折减、时机门失败
// 再折减、相关性折减，最后对绝对上限做收口。上限收口永远在最后，
// 无论前面的乘数怎么叠。
func (s *Sizer) Size(req SizeRequest) Sizing {
	ev := req.Evaluation
	base := s.basePct(ev.Confidence)
	pct := base
	notes := []string{fmt.Sprintf("base %.1f%% at confidence %.0f", base, ev.Confidence)}

	mean := gateMean(ev)
	if mean > s.cfg.HighQualityMean {
		pct *= s.cfg.QualityBoost
		notes = append(notes, fmt.Sprintf("gate mean %.0f > %.0f (×%.1f)", mean, s.cfg.HighQualityMean, s.cfg.QualityBoost))
	} else if mean < s.cfg.LowQualityMean {
		pct *= s.cfg.QualityPenalty
		notes = append(notes, fmt.Sprintf("gate mean %.0f < %.0f (×%.1f)", mean, s.cfg.LowQualityMean, s.cfg.QualityPenalty))
	}

	if !ev.Gate(gate.GateTiming).Passed {
		pct *= s.cfg.TimingPenalty
		notes = append(notes, fmt.Sprintf("timing gate failed (×%.1f)", s.cfg.TimingPenalty))
	}

	if req.Correlation.RecommendedSizePct < 100 {
		pct *= req.Correlation.RecommendedSizePct / 100
		notes = append(notes, fmt.Sprintf("correlation cut to %.0f%%", req.Correlation.RecommendedSizePct))
	}

	if pct > s.cfg.CeilingPct {
		pct = s.cfg.CeilingPct
		notes = append(notes, fmt.Sprintf("clamped at ceiling %.1f%%", s.cfg.CeilingPct))
	}
	if pct < 0 {
		pct = 0
	}

	out := Sizing{
		Ticker:           ev.Ticker,
		PositionPct:      pct,
		BasePct:          base,
		DividendYieldPct: proRatedYield(req.DividendYieldPct, req.HoldingDays, s.cfg.AnnualTargetDays),
		Reasoning:        strings.Join(notes, "; "),
	}
	if req.EntryPrice > 0 && req.TargetPrice > 0 {
		out.PriceAppreciationPct = (req.TargetPrice/req.EntryPrice - 1) * 100
	}
	if req.PortfolioValue.IsPositive() && req.EntryPrice > 0 {
		out.DollarAmount = req.PortfolioValue.
			Mul(decimal.NewFromFloat(pct)).
			Div(decimal.NewFromInt(100)).
			Round(2)
		out.Shares = out.DollarAmount.
			Div(decimal.NewFromFloat(req.EntryPrice)).
			Floor()
	}
	return out
}

func (s *Sizer) basePct(confidence float64) float64 {
	for _, t := range s.cfg.Tiers {
		if confidence >= t.MinConfidence {
			return t.BasePct
		}
	}
	return 0
}

func gateMean(ev gate.Evaluation) float64 {
	if len(ev.Gates) == 0 {
		return 0
	}
	var sum float64
	for _, g := range ev.Gates {
		sum += g.Score
	}
	return sum / float64(len(ev.Gates))
}

// proRatedYield 按预计持有天数折算年化股息率。
func proRatedYield(annualPct float64, holdingDays, yearDays int) float64 {
	if annualPct <= 0 {
		return 0
	}
	if holdingDays <= 0 || holdingDays >= yearDays {
		return annualPct
	}
	return annualPct * float64(holdingDays) / float64(yearDays)
}
