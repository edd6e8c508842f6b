package market

import (
	"context"
	"errors"
	"time"
)

// Source 抽象底层行情供应商。实现方负责网络访问；引擎本身不发起 I/O。
type Source interface {
	// Bars 返回 ticker 截至 end 的最近 limit 根日线，按时间升序。
	Bars(ctx context.Context, ticker string, end time.Time, limit int) ([]PriceBar, error)
	// Fundamentals 返回 ticker 在 asOf 时点的基本面快照。
	Fundamentals(ctx context.Context, ticker string, asOf time.Time) (FundamentalSnapshot, error)
	// LatestPrice 返回最近成交价，用于盘中退出计划评估。
	LatestPrice(ctx context.Context, ticker string) (float64, error)
}

// Holding 组合中的一笔现有持仓，用于相关性与行业敞口检查，
// 以及启动时退出计划的补登。EntryPrice 为 0 表示成本未知。
type Holding struct {
	Ticker     string  `json:"ticker"`
	Sector     string  `json:"sector"`
	WeightPct  float64 `json:"weight_pct"`
	EntryPrice float64 `json:"entry_price,omitempty"`
}

// PortfolioStore 外部持仓存储的只读视图。
type PortfolioStore interface {
	Holdings(ctx context.Context) ([]Holding, error)
}

var (
	// ErrUnavailable 供应商暂时不可用（重试耗尽或熔断器打开）。
	ErrUnavailable = errors.New("market data unavailable")
	// ErrStale 数据超过配置的新鲜度上限，禁止参与评分。
	ErrStale = errors.New("market data stale")
)
