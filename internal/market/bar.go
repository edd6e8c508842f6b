package market

import (
	"fmt"
	"time"
)

// PriceBar 单根日线行情，按时间升序排列，入库后不可变。
type PriceBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// FundamentalSnapshot 某一时点的基本面快照，由数据源整体给出。
// 任一字段缺失时为 0 且对应 Has 标记为 false，缺失不等于数值 0。
type FundamentalSnapshot struct {
	Ticker           string    `json:"ticker"`
	AsOf             time.Time `json:"as_of"`
	MarketCap        float64   `json:"market_cap"`
	PERatio          float64   `json:"pe_ratio"`
	HasPERatio       bool      `json:"has_pe_ratio"`
	EVToEBITDA       float64   `json:"ev_to_ebitda"`
	HasEVToEBITDA    bool      `json:"has_ev_to_ebitda"`
	EnterpriseValue  float64   `json:"enterprise_value"`
	RevenueGrowthPct float64   `json:"revenue_growth_pct"`
	HasGrowth        bool      `json:"has_growth"`
	NetMarginPct     float64   `json:"net_margin_pct"`
	HasMargin        bool      `json:"has_margin"`
	DividendYieldPct float64   `json:"dividend_yield_pct"`
	Sector           string    `json:"sector"`
	NextEarnings     time.Time `json:"next_earnings,omitempty"`
	HasNextEarnings  bool      `json:"has_next_earnings"`
}

// ErrMalformedBar 标记无法通过完整性校验的行情数据。
var ErrMalformedBar = fmt.Errorf("malformed price bar")

// ValidateBar rejects bars that violate the basic OHLCV invariant.
// Bad bars are never repaired; the caller drops the ticker for the cycle.
func ValidateBar(b PriceBar) error {
	if b.Low < 0 || b.Volume < 0 {
		return fmt.Errorf("%w: negative low/volume at %s", ErrMalformedBar, b.Date.Format("2006-01-02"))
	}
	if b.High < b.Low {
		return fmt.Errorf("%w: high %.4f < low %.4f at %s", ErrMalformedBar, b.High, b.Low, b.Date.Format("2006-01-02"))
	}
	if b.High < b.Open || b.High < b.Close || b.Open < b.Low || b.Close < b.Low {
		return fmt.Errorf("%w: open/close outside [low,high] at %s", ErrMalformedBar, b.Date.Format("2006-01-02"))
	}
	return nil
}

// ValidateSeries 校验整段序列，返回第一处违规。
func ValidateSeries(bars []PriceBar) error {
	var prev time.Time
	for i, b := range bars {
		if err := ValidateBar(b); err != nil {
			return err
		}
		if i > 0 && !b.Date.After(prev) {
			return fmt.Errorf("%w: out-of-order bar at %s", ErrMalformedBar, b.Date.Format("2006-01-02"))
		}
		prev = b.Date
	}
	return nil
}

// DailyReturns 由收盘价序列计算简单日收益率，长度为 len(bars)-1。
func DailyReturns(bars []PriceBar) []float64 {
	if len(bars) < 2 {
		return nil
	}
	out := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, bars[i].Close/prev-1)
	}
	return out
}

// TypicalPrice = (H+L+C)/3，VWAP 的基础量。
func TypicalPrice(b PriceBar) float64 {
	return (b.High + b.Low + b.Close) / 3
}
