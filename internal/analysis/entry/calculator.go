// Package entry derives a recommended entry price band and a timing
// label from the indicator snapshot and fundamentals. The rule chain is
// ordered and first-match-wins, with the single documented exception
// that a close below pivot S1 overrides to BUY_NOW.
package entry

import (
	"fmt"
	"strings"

	"quantgate/internal/analysis/indicator"
	"quantgate/internal/market"
	"quantgate/internal/pkg/convert"
)

type Timing string

const (
	BuyNow          Timing = "BUY_NOW"
	Accumulate      Timing = "ACCUMULATE"
	WaitForPullback Timing = "WAIT_FOR_PULLBACK"
)

// Advice 入场建议：价格带、时机分类、规则一致度与支撑/阻力。
type Advice struct {
	Timing     Timing  `json:"timing"`
	BandLow    float64 `json:"band_low"`
	BandHigh   float64 `json:"band_high"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
	Support    float64 `json:"support,omitempty"`
	Resistance float64 `json:"resistance,omitempty"`
}

// Calculate 按规则链求入场建议。
func Calculate(snap indicator.Snapshot, fund market.FundamentalSnapshot) Advice {
	price := snap.Close
	var reasons []string

	// (1) VWAP 规则
	var vwapLabel Timing
	if snap.VWAP.Valid && snap.VWAP.V > 0 {
		devPct := (price - snap.VWAP.V) / snap.VWAP.V * 100
		switch {
		case devPct < -0.5:
			vwapLabel = BuyNow
		case devPct <= 2.0:
			vwapLabel = Accumulate
		default:
			vwapLabel = WaitForPullback
		}
		reasons = append(reasons, fmt.Sprintf("vwap dev %.2f%% -> %s", devPct, vwapLabel))
	}

	// (2) ATR 带宽
	halfWidthPct := 1.0
	if snap.ATRPct.Valid {
		mult := 1.0
		switch {
		case snap.ATRPct.V < 1:
			mult = 0.6
		case snap.ATRPct.V > 3:
			mult = 1.5
		}
		halfWidthPct = snap.ATRPct.V * mult * 0.5
		reasons = append(reasons, fmt.Sprintf("atr%%=%.2f mult=%.1f", snap.ATRPct.V, mult))
	}

	// (3) 枢轴规则：S1 下方强制 BUY_NOW
	var pivotLabel Timing
	if snap.Pivot.Valid {
		switch {
		case price < snap.Pivot.S1:
			pivotLabel = BuyNow
		case price <= snap.Pivot.PP:
			pivotLabel = Accumulate
		case price > snap.Pivot.R1:
			pivotLabel = WaitForPullback
		}
		if pivotLabel != "" {
			reasons = append(reasons, fmt.Sprintf("pivot -> %s", pivotLabel))
		}
	}

	// (4) RSI 兜底
	var rsiLabel Timing
	if snap.RSI.Valid {
		switch {
		case snap.RSI.V < 30:
			rsiLabel = BuyNow
		case snap.RSI.V <= 40:
			rsiLabel = Accumulate
		case snap.RSI.V > 70:
			rsiLabel = WaitForPullback
		}
		if rsiLabel != "" {
			reasons = append(reasons, fmt.Sprintf("rsi=%.1f -> %s", snap.RSI.V, rsiLabel))
		}
	}

	final := vwapLabel
	if final == "" {
		final = pivotLabel
	}
	if final == "" {
		final = rsiLabel
	}
	if final == "" {
		final = Accumulate
		reasons = append(reasons, "no decisive rule, defaulting to ACCUMULATE")
	}
	if snap.Pivot.Valid && price < snap.Pivot.S1 && final != BuyNow {
		final = BuyNow
		reasons = append(reasons, "below pivot S1, override BUY_NOW")
	}

	// (5) 企业价值收敛
	if fund.HasEVToEBITDA && fund.EVToEBITDA > 0 && fund.EVToEBITDA < 5 {
		halfWidthPct *= 0.95
		reasons = append(reasons, "ev/ebitda<5, band -5%")
	}
	if fund.EnterpriseValue > 0 && fund.MarketCap > 0 && fund.EnterpriseValue/fund.MarketCap < 0.9 {
		halfWidthPct *= 0.98
		reasons = append(reasons, "ev/mcap<0.9, band -2%")
	}

	conf := 0.5
	for _, vote := range []Timing{vwapLabel, pivotLabel, rsiLabel} {
		if vote == "" {
			continue
		}
		if vote == final {
			conf += 0.2
		} else {
			conf -= 0.1
		}
	}
	// final 本身来自其中一条规则，扣除自票
	conf -= 0.2
	conf = convert.Clamp(conf, 0.3, 0.9)

	support, resistance := nearestLevels(snap)

	return Advice{
		Timing:     final,
		BandLow:    price * (1 - halfWidthPct/100),
		BandHigh:   price * (1 + halfWidthPct/100),
		Confidence: conf,
		Reasoning:  strings.Join(reasons, "; "),
		Support:    support,
		Resistance: resistance,
	}
}

// nearestLevels 在布林带、50/200 日均线与枢轴位中，选出价格下方最近的
// 支撑与上方最近的阻力。
func nearestLevels(snap indicator.Snapshot) (support, resistance float64) {
	price := snap.Close
	var candidates []float64
	if snap.BBLower.Valid {
		candidates = append(candidates, snap.BBLower.V)
	}
	if snap.BBUpper.Valid {
		candidates = append(candidates, snap.BBUpper.V)
	}
	if snap.SMA50.Valid {
		candidates = append(candidates, snap.SMA50.V)
	}
	if snap.SMA200.Valid {
		candidates = append(candidates, snap.SMA200.V)
	}
	if snap.Pivot.Valid {
		candidates = append(candidates, snap.Pivot.S1, snap.Pivot.S2, snap.Pivot.R1, snap.Pivot.R2)
	}
	for _, lvl := range candidates {
		if lvl <= 0 {
			continue
		}
		if lvl < price && lvl > support {
			support = lvl
		}
		if lvl > price && (resistance == 0 || lvl < resistance) {
			resistance = lvl
		}
	}
	return support, resistance
}
