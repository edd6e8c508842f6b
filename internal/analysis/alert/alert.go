// Package alert derives discrete signed signals from an indicator
// snapshot and its predecessor. Each alert carries the weight it
// contributes to the priority sub-score of its category.
package alert

import "sort"

type Type string

const (
	RSIOversold          Type = "RSI_OVERSOLD"
	RSIExtremeOversold   Type = "RSI_EXTREME_OVERSOLD"
	RSIOverbought        Type = "RSI_OVERBOUGHT"
	RSIExtremeOverbought Type = "RSI_EXTREME_OVERBOUGHT"
	MACDBullishCross     Type = "MACD_BULLISH_CROSS"
	MACDBearishCross     Type = "MACD_BEARISH_CROSS"
	BollingerLowerPierce Type = "BOLLINGER_LOWER_PIERCE"
	BollingerUpperPierce Type = "BOLLINGER_UPPER_PIERCE"
	VolumeSpike          Type = "VOLUME_SPIKE"
	PivotAccumulation    Type = "PIVOT_ACCUMULATION_ZONE"
	PivotOversoldBounce  Type = "PIVOT_OVERSOLD_BOUNCE"
	PivotExtended        Type = "PIVOT_EXTENDED"
	BuyTheDip            Type = "BUY_THE_DIP"
)

// Category 决定 alert 权重落入哪个子分。
type Category string

const (
	CategoryTechnical Category = "technical"
	CategoryVolume    Category = "volume"
	CategoryMomentum  Category = "momentum"
)

// Alert 带符号的离散信号。同一标的同一天不会出现重复 Type。
type Alert struct {
	Type     Type     `json:"type"`
	Category Category `json:"category"`
	Weight   float64  `json:"weight"`
	Detail   string   `json:"detail,omitempty"`
}

// Set 去重后的 alert 集合，输出顺序按 Type 排序以保证可复现。
type Set map[Type]Alert

func (s Set) add(a Alert) {
	if _, exists := s[a.Type]; !exists {
		s[a.Type] = a
	}
}

func (s Set) Has(t Type) bool {
	_, ok := s[t]
	return ok
}

// Sorted 返回确定性排序的切片。
func (s Set) Sorted() []Alert {
	out := make([]Alert, 0, len(s))
	for _, a := range s {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// WeightSum 指定类别的权重合计。
func (s Set) WeightSum(c Category) float64 {
	var sum float64
	for _, a := range s {
		if a.Category == c {
			sum += a.Weight
		}
	}
	return sum
}
