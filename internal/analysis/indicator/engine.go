package indicator

import (
	"errors"
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"quantgate/internal/market"
)

// ErrInsufficientHistory 序列连最短指标的回看都不够。
var ErrInsufficientHistory = errors.New("insufficient bar history")

// Settings 指标参数。零值字段使用标准缺省。
type Settings struct {
	RSIPeriod    int
	ATRPeriod    int
	BBPeriod     int
	BBStdDev     float64
	VWAPWindow   int
	VolumePeriod int
}

func (s *Settings) applyDefaults() {
	if s.RSIPeriod <= 0 {
		s.RSIPeriod = 14
	}
	if s.ATRPeriod <= 0 {
		s.ATRPeriod = 14
	}
	if s.BBPeriod <= 0 {
		s.BBPeriod = 20
	}
	if s.BBStdDev <= 0 {
		s.BBStdDev = 2
	}
	if s.VWAPWindow <= 0 {
		s.VWAPWindow = 20
	}
	if s.VolumePeriod <= 0 {
		s.VolumePeriod = 20
	}
}

// macdWarmup = slow EMA(26) + signal EMA(9) 的预热段。
const macdWarmup = 26 + 9 - 2

// Compute 为每根 K 线生成指标快照，快照与 bars 一一对应。
// 发现坏数据直接整体拒绝（调用方把该标的从本周期剔除），不修补。
func Compute(ticker string, bars []market.PriceBar, cfg Settings) ([]Snapshot, error) {
	cfg.applyDefaults()
	if len(bars) < 2 {
		return nil, fmt.Errorf("%s: %w: got %d bars", ticker, ErrInsufficientHistory, len(bars))
	}
	if err := market.ValidateSeries(bars); err != nil {
		return nil, fmt.Errorf("%s: %w", ticker, err)
	}

	n := len(bars)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
		volumes[i] = b.Volume
	}

	sma20 := talib.Sma(closes, 20)
	sma50 := talib.Sma(closes, 50)
	sma200 := talib.Sma(closes, 200)
	rsi := talib.Rsi(closes, cfg.RSIPeriod)
	macd, macdSig, macdHist := talib.Macd(closes, 12, 26, 9)
	bbUpper, bbMiddle, bbLower := talib.BBands(closes, cfg.BBPeriod, cfg.BBStdDev, cfg.BBStdDev, talib.SMA)
	atr := talib.Atr(highs, lows, closes, cfg.ATRPeriod)
	volSMA := talib.Sma(volumes, cfg.VolumePeriod)

	snaps := make([]Snapshot, n)
	for i, b := range bars {
		s := Snapshot{
			Ticker: ticker,
			Date:   b.Date,
			Close:  b.Close,
			Volume: b.Volume,
		}
		s.SMA20 = seriesValue(sma20, i, 20-1)
		s.SMA50 = seriesValue(sma50, i, 50-1)
		s.SMA200 = seriesValue(sma200, i, 200-1)
		s.RSI = seriesValue(rsi, i, cfg.RSIPeriod)
		s.MACD = seriesValue(macd, i, macdWarmup)
		s.MACDSignal = seriesValue(macdSig, i, macdWarmup)
		s.MACDHist = seriesValue(macdHist, i, macdWarmup)
		s.BBUpper = seriesValue(bbUpper, i, cfg.BBPeriod-1)
		s.BBMiddle = seriesValue(bbMiddle, i, cfg.BBPeriod-1)
		s.BBLower = seriesValue(bbLower, i, cfg.BBPeriod-1)
		s.ATR = seriesValue(atr, i, cfg.ATRPeriod)
		if s.ATR.Valid && b.Close > 0 {
			s.ATRPct = valid(s.ATR.V / b.Close * 100)
		}
		s.VWAP = rollingVWAP(bars, i, cfg.VWAPWindow)
		if i >= cfg.VolumePeriod-1 && volSMA[i] > 0 {
			s.VolumeRatio = valid(b.Volume / volSMA[i])
		}
		if i > 0 {
			s.Pivot = pivotFrom(bars[i-1])
		}
		snaps[i] = s
	}
	return snaps, nil
}

func seriesValue(series []float64, i, minIndex int) Value {
	if i < minIndex || i >= len(series) {
		return invalid()
	}
	v := series[i]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return invalid()
	}
	return valid(v)
}

// rollingVWAP 在最近 window 根 K 线上累计典型价×量。多日滚动窗口而非
// 日内重置，适配多日筛选场景。
func rollingVWAP(bars []market.PriceBar, i, window int) Value {
	if i < window-1 {
		return invalid()
	}
	var pv, vol float64
	for j := i - window + 1; j <= i; j++ {
		pv += market.TypicalPrice(bars[j]) * bars[j].Volume
		vol += bars[j].Volume
	}
	if vol == 0 {
		return invalid()
	}
	return valid(pv / vol)
}

func pivotFrom(prev market.PriceBar) PivotLevels {
	pp := (prev.High + prev.Low + prev.Close) / 3
	rng := prev.High - prev.Low
	return PivotLevels{
		PP:    pp,
		R1:    2*pp - prev.Low,
		R2:    pp + rng,
		S1:    2*pp - prev.High,
		S2:    pp - rng,
		Valid: true,
	}
}
