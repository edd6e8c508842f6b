package gate

import "quantgate/internal/regime"

// Thresholds 四个闸门的通过线。
type Thresholds struct {
	Fundamental float64 `json:"fundamental" mapstructure:"fundamental"`
	Technical   float64 `json:"technical" mapstructure:"technical"`
	Risk        float64 `json:"risk" mapstructure:"risk"`
	Timing      float64 `json:"timing" mapstructure:"timing"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{Fundamental: 70, Technical: 65, Risk: 70, Timing: 60}
}

// AdjustRules 动态阈值调整参数。
type AdjustRules struct {
	HighConfidence     float64 `json:"high_confidence" mapstructure:"high_confidence"`           // 默认 85
	LowConfidence      float64 `json:"low_confidence" mapstructure:"low_confidence"`             // 默认 60
	ConfidenceDelta    float64 `json:"confidence_delta" mapstructure:"confidence_delta"`         // 默认 5
	BullFundamental    float64 `json:"bull_fundamental" mapstructure:"bull_fundamental"`         // 默认 65
	BullTechnical      float64 `json:"bull_technical" mapstructure:"bull_technical"`             // 默认 70
	BearFundamental    float64 `json:"bear_fundamental" mapstructure:"bear_fundamental"`         // 默认 75
	BearTechnical      float64 `json:"bear_technical" mapstructure:"bear_technical"`             // 默认 60
	HighVolatilityRisk float64 `json:"high_volatility_risk" mapstructure:"high_volatility_risk"` // 默认 75
}

func DefaultAdjustRules() AdjustRules {
	return AdjustRules{
		HighConfidence:     85,
		LowConfidence:      60,
		ConfidenceDelta:    5,
		BullFundamental:    65,
		BullTechnical:      70,
		BearFundamental:    75,
		BearTechnical:      60,
		HighVolatilityRisk: 75,
	}
}

// adjust 按固定顺序叠加动态调整：先按先验置信度加减，再由市场方向
// 覆写基本面/技术面绝对值，最后高波动抬高风险线。顺序靠后的规则
// 可以覆盖靠前的结果。
func (t Thresholds) adjust(rules AdjustRules, priorConfidence float64, mkt regime.MarketState) Thresholds {
	out := t
	if priorConfidence > rules.HighConfidence {
		out.Fundamental -= rules.ConfidenceDelta
		out.Technical -= rules.ConfidenceDelta
	} else if priorConfidence < rules.LowConfidence {
		out.Fundamental += rules.ConfidenceDelta
		out.Technical += rules.ConfidenceDelta
	}
	switch mkt.Direction {
	case regime.Bull:
		out.Fundamental = rules.BullFundamental
		out.Technical = rules.BullTechnical
	case regime.Bear:
		out.Fundamental = rules.BearFundamental
		out.Technical = rules.BearTechnical
	}
	if mkt.Volatility == regime.VolHigh {
		out.Risk = rules.HighVolatilityRisk
	}
	return out
}
