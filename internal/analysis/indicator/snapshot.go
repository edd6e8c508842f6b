package indicator

import "time"

// PivotLevels 经典枢轴位，由前一根 K 线的 H/L/C 推出。
type PivotLevels struct {
	PP    float64 `json:"pp"`
	R1    float64 `json:"r1"`
	R2    float64 `json:"r2"`
	S1    float64 `json:"s1"`
	S2    float64 `json:"s2"`
	Valid bool    `json:"valid"`
}

// Snapshot 单个标的单个交易日的全部技术指标。
// 任一字段都可能不可用（历史不足），见 Value。
type Snapshot struct {
	Ticker string    `json:"ticker"`
	Date   time.Time `json:"date"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`

	SMA20  Value `json:"sma20"`
	SMA50  Value `json:"sma50"`
	SMA200 Value `json:"sma200"`

	RSI Value `json:"rsi"`

	MACD       Value `json:"macd"`
	MACDSignal Value `json:"macd_signal"`
	MACDHist   Value `json:"macd_hist"`

	BBUpper  Value `json:"bb_upper"`
	BBMiddle Value `json:"bb_middle"`
	BBLower  Value `json:"bb_lower"`

	ATR    Value `json:"atr"`
	ATRPct Value `json:"atr_pct"`

	VWAP        Value `json:"vwap"`
	VolumeRatio Value `json:"volume_ratio"`

	Pivot PivotLevels `json:"pivot"`
}
