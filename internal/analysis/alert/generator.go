package alert

import (
	"fmt"

	"quantgate/internal/analysis/indicator"
	"quantgate/internal/pkg/convert"
)

// Weights 信号权重表，零值字段取缺省。
type Weights struct {
	RSIOversold      float64
	RSIOverbought    float64
	RSIExtremeBoost  float64 // 极端区（<20 / >80）在基础权重上的追加幅度
	MACDCross        float64
	BollingerLower   float64
	BollingerUpper   float64
	VolumeSpikeMin   float64
	VolumeSpikeMax   float64
	PivotAccumulate  float64
	PivotBounce      float64
	PivotExtended    float64
	VolumeSpikeRatio float64
}

func DefaultWeights() Weights {
	return Weights{
		RSIOversold:      15,
		RSIOverbought:    -10,
		RSIExtremeBoost:  10,
		MACDCross:        15,
		BollingerLower:   10,
		BollingerUpper:   -5,
		VolumeSpikeMin:   10,
		VolumeSpikeMax:   20,
		PivotAccumulate:  8,
		PivotBounce:      12,
		PivotExtended:    -8,
		VolumeSpikeRatio: 1.5,
	}
}

// Generator 由快照及其前一日快照推导 alert 集合。规则确定性，
// 相同输入必然得到相同集合。
type Generator struct {
	weights Weights
}

func NewGenerator(w Weights) *Generator {
	def := DefaultWeights()
	if w == (Weights{}) {
		w = def
	}
	return &Generator{weights: w}
}

// Generate 评估全部规则。极端 RSI 的覆盖语义（强制 WAIT/SELL 或加强买入）
// 由四闸门框架在合成评分之后、按策略表处理；这里只负责打标。
func (g *Generator) Generate(cur, prev indicator.Snapshot) Set {
	set := make(Set)
	w := g.weights

	if cur.RSI.Valid {
		rsi := cur.RSI.V
		switch {
		case rsi < 20:
			// 极端超卖在基础权重上追加，RSI 19 与 29 的贡献必须可区分。
			set.add(Alert{Type: RSIExtremeOversold, Category: CategoryTechnical, Weight: w.RSIOversold + w.RSIExtremeBoost, Detail: fmt.Sprintf("rsi=%.1f", rsi)})
			set.add(Alert{Type: RSIOversold, Category: CategoryTechnical, Weight: 0})
		case rsi < 30:
			set.add(Alert{Type: RSIOversold, Category: CategoryTechnical, Weight: w.RSIOversold, Detail: fmt.Sprintf("rsi=%.1f", rsi)})
		case rsi > 80:
			set.add(Alert{Type: RSIExtremeOverbought, Category: CategoryTechnical, Weight: w.RSIOverbought - w.RSIExtremeBoost, Detail: fmt.Sprintf("rsi=%.1f", rsi)})
			set.add(Alert{Type: RSIOverbought, Category: CategoryTechnical, Weight: 0})
		case rsi > 70:
			set.add(Alert{Type: RSIOverbought, Category: CategoryTechnical, Weight: w.RSIOverbought, Detail: fmt.Sprintf("rsi=%.1f", rsi)})
		}
	}

	// MACD 上穿/下穿信号线
	if cur.MACD.Valid && cur.MACDSignal.Valid && prev.MACD.Valid && prev.MACDSignal.Valid {
		crossedUp := prev.MACD.V <= prev.MACDSignal.V && cur.MACD.V > cur.MACDSignal.V
		crossedDown := prev.MACD.V >= prev.MACDSignal.V && cur.MACD.V < cur.MACDSignal.V
		if crossedUp {
			set.add(Alert{Type: MACDBullishCross, Category: CategoryMomentum, Weight: w.MACDCross})
		} else if crossedDown {
			set.add(Alert{Type: MACDBearishCross, Category: CategoryMomentum, Weight: -w.MACDCross})
		}
	}

	if cur.BBLower.Valid && cur.Close < cur.BBLower.V {
		set.add(Alert{Type: BollingerLowerPierce, Category: CategoryTechnical, Weight: w.BollingerLower})
	}
	if cur.BBUpper.Valid && cur.Close > cur.BBUpper.V {
		set.add(Alert{Type: BollingerUpperPierce, Category: CategoryTechnical, Weight: w.BollingerUpper})
	}

	// 量能异动：ratio 超过阈值后在 [min,max] 区间线性放大
	if cur.VolumeRatio.Valid && cur.VolumeRatio.V > w.VolumeSpikeRatio {
		ratio := cur.VolumeRatio.V
		span := 3.0 - w.VolumeSpikeRatio
		weight := w.VolumeSpikeMin
		if span > 0 {
			weight += (ratio - w.VolumeSpikeRatio) / span * (w.VolumeSpikeMax - w.VolumeSpikeMin)
		}
		weight = convert.Clamp(weight, w.VolumeSpikeMin, w.VolumeSpikeMax)
		set.add(Alert{Type: VolumeSpike, Category: CategoryVolume, Weight: weight, Detail: fmt.Sprintf("ratio=%.2f", ratio)})
	}

	if cur.Pivot.Valid {
		switch {
		case cur.Close < cur.Pivot.S1:
			set.add(Alert{Type: PivotOversoldBounce, Category: CategoryTechnical, Weight: w.PivotBounce})
		case cur.Close <= cur.Pivot.PP:
			set.add(Alert{Type: PivotAccumulation, Category: CategoryTechnical, Weight: w.PivotAccumulate})
		case cur.Close > cur.Pivot.R1:
			set.add(Alert{Type: PivotExtended, Category: CategoryTechnical, Weight: w.PivotExtended})
		}
	}

	// 多周期"逢跌买入"：长期趋势完好（价在 200 日线上方）叠加短线超卖
	// 且跌破下轨。该信号是极端超买/超卖覆盖规则的唯一例外来源。
	if cur.RSI.Valid && cur.SMA200.Valid && cur.BBLower.Valid &&
		cur.RSI.V < 30 && cur.Close < cur.BBLower.V && cur.Close > cur.SMA200.V {
		set.add(Alert{Type: BuyTheDip, Category: CategoryTechnical, Weight: 0})
	}

	return set
}
