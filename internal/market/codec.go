package market

import (
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// DecodeBarsPayload parses the vendor candle payload. The wire format is
// {"ticker": "...", "bars": [{"date","o","h","l","c","v"}, ...]} with bars
// in ascending date order. Field aliases open/high/low/close/volume are
// accepted for sources that spell them out.
func DecodeBarsPayload(payload []byte) ([]PriceBar, error) {
	doc := gjson.ParseBytes(payload)
	items := doc.Get("bars")
	if !items.Exists() || !items.IsArray() {
		return nil, fmt.Errorf("bars payload: missing bars array")
	}
	var bars []PriceBar
	var parseErr error
	items.ForEach(func(_, item gjson.Result) bool {
		date, err := time.Parse("2006-01-02", item.Get("date").String())
		if err != nil {
			parseErr = fmt.Errorf("bars payload: bad date %q", item.Get("date").String())
			return false
		}
		bars = append(bars, PriceBar{
			Date:   date,
			Open:   firstNum(item, "o", "open"),
			High:   firstNum(item, "h", "high"),
			Low:    firstNum(item, "l", "low"),
			Close:  firstNum(item, "c", "close"),
			Volume: firstNum(item, "v", "volume"),
		})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return bars, nil
}

// DecodeFundamentalsPayload parses the vendor fundamentals payload. Absent
// fields stay marked unavailable rather than defaulting to zero.
func DecodeFundamentalsPayload(payload []byte) (FundamentalSnapshot, error) {
	doc := gjson.ParseBytes(payload)
	ticker := doc.Get("ticker").String()
	if ticker == "" {
		return FundamentalSnapshot{}, fmt.Errorf("fundamentals payload: missing ticker")
	}
	snap := FundamentalSnapshot{
		Ticker:          ticker,
		MarketCap:       doc.Get("market_cap").Float(),
		EnterpriseValue: doc.Get("enterprise_value").Float(),
		Sector:          doc.Get("sector").String(),
	}
	if asOf := doc.Get("as_of"); asOf.Exists() {
		if t, err := time.Parse("2006-01-02", asOf.String()); err == nil {
			snap.AsOf = t
		}
	}
	if v := doc.Get("pe_ratio"); v.Exists() {
		snap.PERatio, snap.HasPERatio = v.Float(), true
	}
	if v := doc.Get("ev_to_ebitda"); v.Exists() {
		snap.EVToEBITDA, snap.HasEVToEBITDA = v.Float(), true
	}
	if v := doc.Get("revenue_growth_pct"); v.Exists() {
		snap.RevenueGrowthPct, snap.HasGrowth = v.Float(), true
	}
	if v := doc.Get("net_margin_pct"); v.Exists() {
		snap.NetMarginPct, snap.HasMargin = v.Float(), true
	}
	if v := doc.Get("dividend_yield_pct"); v.Exists() {
		snap.DividendYieldPct = v.Float()
	}
	if v := doc.Get("next_earnings"); v.Exists() {
		if t, err := time.Parse("2006-01-02", v.String()); err == nil {
			snap.NextEarnings, snap.HasNextEarnings = t, true
		}
	}
	return snap, nil
}

func firstNum(item gjson.Result, keys ...string) float64 {
	for _, k := range keys {
		if v := item.Get(k); v.Exists() {
			return v.Float()
		}
	}
	return 0
}
