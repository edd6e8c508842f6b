package scan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"quantgate/internal/analysis/alert"
	"quantgate/internal/analysis/entry"
	"quantgate/internal/analysis/indicator"
	"quantgate/internal/logger"
	"quantgate/internal/market"
)

// EarningsWindow 财报临近窗口在扫描层的处理。Exclude 为真时窗口内的
// 标的整票剔除并记录原因，否则仅附加 advisory。窗口天数与闸门配置
// 共用同一来源，两边不会各算各的。
type EarningsWindow struct {
	Exclude    bool `json:"exclude" mapstructure:"exclude"`
	DaysBefore int  `json:"days_before" mapstructure:"days_before"`
	DaysAfter  int  `json:"days_after" mapstructure:"days_after"`
}

// CycleConfig 一轮扫描的参数。
type CycleConfig struct {
	LookbackBars int                `json:"lookback_bars" mapstructure:"lookback_bars"`
	MaxParallel  int                `json:"max_parallel" mapstructure:"max_parallel"`
	Indicator    indicator.Settings `json:"indicator" mapstructure:"indicator"`
	Earnings     EarningsWindow     `json:"earnings" mapstructure:"earnings"`

	// Calendar 非空时财报窗口按交易日计数。
	Calendar *market.TradingCalendar `json:"-" mapstructure:"-"`
}

func (c *CycleConfig) applyDefaults() {
	if c.LookbackBars <= 0 {
		c.LookbackBars = 250
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = 4
	}
	if c.Earnings.DaysBefore <= 0 {
		c.Earnings.DaysBefore = 5
	}
	if c.Earnings.DaysAfter <= 0 {
		c.Earnings.DaysAfter = 2
	}
}

// CycleReport 一轮扫描的汇总。Skipped 记录单票失败原因，
// 个别标的出错不会导致整轮失败。
type CycleReport struct {
	ID       string            `json:"id"`
	ScanDate time.Time         `json:"scan_date"`
	Results  []ScanResult      `json:"results"`
	Skipped  map[string]string `json:"skipped,omitempty"`
}

// Cycle 批量扫描编排：拉数 → 指标 → 告警 → 打分 → 入场建议 → 排名。
type Cycle struct {
	fetcher *market.Fetcher
	scorer  *Scorer
	gen     *alert.Generator
	cfg     CycleConfig
}

func NewCycle(fetcher *market.Fetcher, scorer *Scorer, gen *alert.Generator, cfg CycleConfig) *Cycle {
	cfg.applyDefaults()
	return &Cycle{fetcher: fetcher, scorer: scorer, gen: gen, cfg: cfg}
}

// Run 并发扫描 tickers 并返回排名后的报告。ctx 取消时停止调度新标的，
// 已完成的打分结果仍保留在报告里。
func (c *Cycle) Run(ctx context.Context, tickers []string, scanDate time.Time) CycleReport {
	report := CycleReport{
		ID:       ulid.Make().String(),
		ScanDate: scanDate,
		Skipped:  make(map[string]string),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxParallel)

	for _, ticker := range tickers {
		if gctx.Err() != nil {
			mu.Lock()
			report.Skipped[ticker] = "cycle cancelled"
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			res, err := c.scanOne(gctx, ticker, scanDate)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warnf("scan %s skipped: %v", ticker, err)
				report.Skipped[ticker] = err.Error()
				return nil
			}
			report.Results = append(report.Results, res)
			return nil
		})
	}
	_ = g.Wait()

	Rank(report.Results)
	logger.Infof("scan cycle %s: %d scored, %d skipped", report.ID, len(report.Results), len(report.Skipped))
	return report
}

func (c *Cycle) inEarningsWindow(scanDate, next time.Time) bool {
	w := c.cfg.Earnings
	if c.cfg.Calendar != nil {
		return c.cfg.Calendar.WithinWindow(scanDate, next, w.DaysBefore, w.DaysAfter)
	}
	from := next.AddDate(0, 0, -w.DaysBefore)
	to := next.AddDate(0, 0, w.DaysAfter)
	return !scanDate.Before(from) && !scanDate.After(to)
}

func (c *Cycle) scanOne(ctx context.Context, ticker string, scanDate time.Time) (ScanResult, error) {
	bars, advisories, err := c.fetcher.Bars(ctx, ticker, scanDate, c.cfg.LookbackBars)
	if err != nil {
		return ScanResult{}, fmt.Errorf("bars: %w", err)
	}

	snaps, err := indicator.Compute(ticker, bars, c.cfg.Indicator)
	if err != nil {
		return ScanResult{}, fmt.Errorf("indicators: %w", err)
	}
	cur := snaps[len(snaps)-1]
	var prev indicator.Snapshot
	if len(snaps) > 1 {
		prev = snaps[len(snaps)-2]
	}

	// 基本面取不到时用空快照继续，子分保持中性，不跳过标的。
	fund, err := c.fetcher.Fundamentals(ctx, ticker, scanDate)
	if err != nil {
		logger.Debugf("fundamentals unavailable for %s: %v", ticker, err)
		fund = market.FundamentalSnapshot{Ticker: ticker, AsOf: scanDate}
	}

	if fund.HasNextEarnings && c.inEarningsWindow(scanDate, fund.NextEarnings) {
		if c.cfg.Earnings.Exclude {
			return ScanResult{}, fmt.Errorf("inside earnings window (%s)", fund.NextEarnings.Format("2006-01-02"))
		}
		advisories = append(advisories, market.Advisory{
			Kind:   market.AdvisoryEarnings,
			Detail: fmt.Sprintf("earnings %s", fund.NextEarnings.Format("2006-01-02")),
		})
	}

	alerts := c.gen.Generate(cur, prev)
	scores := c.scorer.Score(alerts, fund)

	return ScanResult{
		ID:            ulid.Make().String(),
		Ticker:        ticker,
		ScanDate:      scanDate,
		PriorityScore: scores.Composite,
		Scores:        scores,
		Alerts:        alerts.Sorted(),
		Snapshot:      cur,
		Entry:         entry.Calculate(cur, fund),
		Advisories:    advisories,
	}, nil
}
