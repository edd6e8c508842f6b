// Package exit 维护持仓的实时退出计划：单调上移的跟踪止损与
// 一次性消费的分批止盈档位。
package exit

import "time"

type EventType string

const (
	// EventTrailingStop 价格触及跟踪止损，整仓退出。
	EventTrailingStop EventType = "trailing_stop"
	// EventTierHit 某个止盈档位首次触发，部分减仓。
	EventTierHit EventType = "tier_hit"
	// EventFinalTakeProfit 末档触发，清空剩余仓位。
	EventFinalTakeProfit EventType = "final_take_profit"
)

// Tier 一个止盈档位：涨幅阈值与按初始仓位计的卖出比例。
// SellFraction 为 0 表示卖出全部剩余。
type Tier struct {
	GainPct      float64 `json:"gain_pct" mapstructure:"gain_pct"`
	SellFraction float64 `json:"sell_fraction" mapstructure:"sell_fraction"`
}

// Config 退出策略参数。Tiers 必须按 GainPct 升序排列。
type Config struct {
	TrailPct float64 `json:"trail_pct" mapstructure:"trail_pct"`
	Tiers    []Tier  `json:"tiers" mapstructure:"tiers"`
}

func (c *Config) applyDefaults() {
	if c.TrailPct <= 0 {
		c.TrailPct = 8
	}
	if len(c.Tiers) == 0 {
		c.Tiers = []Tier{
			{GainPct: 5, SellFraction: 0.25},
			{GainPct: 10, SellFraction: 0.25},
			{GainPct: 15, SellFraction: 0}, // 剩余全部
		}
	}
}

// Event 一次价格事件产生的退出动作。Fraction 按初始仓位计。
type Event struct {
	Ticker   string    `json:"ticker"`
	Type     EventType `json:"type"`
	Price    float64   `json:"price"`
	Fraction float64   `json:"fraction"`
	Detail   string    `json:"detail"`
	At       time.Time `json:"at"`
}

// Plan 某持仓退出状态的只读快照，供报告层使用。
type Plan struct {
	Ticker            string    `json:"ticker"`
	EntryPrice        float64   `json:"entry_price"`
	HighestPrice      float64   `json:"highest_price"`
	TrailingStopPrice float64   `json:"trailing_stop_price"`
	RemainingFraction float64   `json:"remaining_fraction"`
	TiersFired        []bool    `json:"tiers_fired"`
	OpenedAt          time.Time `json:"opened_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
