package market

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"quantgate/internal/logger"
	"quantgate/internal/pkg/circuit"
)

// Advisory 非致命的下游提示（数据陈旧、跨源价差、临近财报）。
type Advisory struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

const (
	AdvisoryStale       = "stale_data"
	AdvisoryDiscrepancy = "price_discrepancy"
	AdvisoryEarnings    = "earnings_proximity"
)

// FetcherConfig 控制重试、限速、缓存与新鲜度策略。
type FetcherConfig struct {
	MaxRetries        int
	BackoffBase       time.Duration
	RatePerSecond     float64
	CacheTTL          time.Duration
	FreshnessMax      time.Duration
	DiscrepancyTolPct float64
	BreakerThreshold  int
	BreakerCooldown   time.Duration
}

func (c *FetcherConfig) applyDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 500 * time.Millisecond
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 5
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 12 * time.Hour
	}
	if c.FreshnessMax <= 0 {
		c.FreshnessMax = 5 * 24 * time.Hour
	}
	if c.DiscrepancyTolPct <= 0 {
		c.DiscrepancyTolPct = 1.0
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = time.Minute
	}
}

// throttle 按供应商速率上限做延时式限流。
type throttle struct {
	mu       sync.Mutex
	next     time.Time
	interval time.Duration
}

func (t *throttle) wait(ctx context.Context) error {
	t.mu.Lock()
	now := time.Now()
	at := t.next
	if at.Before(now) {
		at = now
	}
	t.next = at.Add(t.interval)
	t.mu.Unlock()

	d := time.Until(at)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Fetcher 为 Source 加上缓存、限流、重试与熔断。一次扫描周期内对同一
// (ticker, date, kind) 的重复请求命中缓存，不再触达供应商。
type Fetcher struct {
	primary   Source
	secondary Source // 可选，跨源价格校验
	cache     Cache
	breaker   *circuit.Breaker
	throttle  *throttle
	cfg       FetcherConfig
}

func NewFetcher(primary Source, secondary Source, cache Cache, cfg FetcherConfig) *Fetcher {
	cfg.applyDefaults()
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Fetcher{
		primary:   primary,
		secondary: secondary,
		cache:     cache,
		breaker:   circuit.NewBreaker("vendor", cfg.BreakerThreshold, cfg.BreakerCooldown),
		throttle:  &throttle{interval: time.Duration(float64(time.Second) / cfg.RatePerSecond)},
		cfg:       cfg,
	}
}

// Bars 返回校验过的日线序列及随行 advisory。数据超出新鲜度上限时返回
// ErrStale，绝不把过期数据交给评分。
func (f *Fetcher) Bars(ctx context.Context, ticker string, end time.Time, limit int) ([]PriceBar, []Advisory, error) {
	key := CacheKey("bars", ticker, end)
	if raw, ok, err := f.cache.Get(ctx, key); err == nil && ok {
		var bars []PriceBar
		if err := json.Unmarshal(raw, &bars); err == nil {
			return bars, f.crossCheck(ctx, ticker, bars), nil
		}
	}

	bars, err := f.fetchBars(ctx, ticker, end, limit)
	if err != nil {
		return nil, nil, err
	}
	if err := ValidateSeries(bars); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", ticker, err)
	}
	if len(bars) > 0 {
		age := end.Sub(bars[len(bars)-1].Date)
		if age > f.cfg.FreshnessMax {
			return nil, []Advisory{{Kind: AdvisoryStale, Detail: fmt.Sprintf("last bar %s", bars[len(bars)-1].Date.Format("2006-01-02"))}},
				fmt.Errorf("%s: %w (age=%s)", ticker, ErrStale, age)
		}
	}
	if raw, err := json.Marshal(bars); err == nil {
		_ = f.cache.Set(ctx, key, raw, f.cfg.CacheTTL)
	}
	return bars, f.crossCheck(ctx, ticker, bars), nil
}

// Fundamentals 同样走缓存与重试路径。
func (f *Fetcher) Fundamentals(ctx context.Context, ticker string, asOf time.Time) (FundamentalSnapshot, error) {
	key := CacheKey("fund", ticker, asOf)
	if raw, ok, err := f.cache.Get(ctx, key); err == nil && ok {
		var snap FundamentalSnapshot
		if err := json.Unmarshal(raw, &snap); err == nil {
			return snap, nil
		}
	}
	var snap FundamentalSnapshot
	err := f.withRetry(ctx, func() error {
		var err error
		snap, err = f.primary.Fundamentals(ctx, ticker, asOf)
		return err
	})
	if err != nil {
		return FundamentalSnapshot{}, err
	}
	if raw, err := json.Marshal(snap); err == nil {
		_ = f.cache.Set(ctx, key, raw, f.cfg.CacheTTL)
	}
	return snap, nil
}

func (f *Fetcher) LatestPrice(ctx context.Context, ticker string) (float64, error) {
	var price float64
	err := f.withRetry(ctx, func() error {
		var err error
		price, err = f.primary.LatestPrice(ctx, ticker)
		return err
	})
	return price, err
}

func (f *Fetcher) fetchBars(ctx context.Context, ticker string, end time.Time, limit int) ([]PriceBar, error) {
	var bars []PriceBar
	err := f.withRetry(ctx, func() error {
		var err error
		bars, err = f.primary.Bars(ctx, ticker, end, limit)
		return err
	})
	return bars, err
}

func (f *Fetcher) withRetry(ctx context.Context, call func() error) error {
	if !f.breaker.Allow() {
		return fmt.Errorf("%w: circuit breaker open", ErrUnavailable)
	}
	var lastErr error
	for attempt := 0; attempt < f.cfg.MaxRetries; attempt++ {
		if err := f.throttle.wait(ctx); err != nil {
			return err
		}
		if lastErr = call(); lastErr == nil {
			f.breaker.RecordSuccess()
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		backoff := time.Duration(float64(f.cfg.BackoffBase) * math.Pow(2, float64(attempt)))
		logger.Debugf("vendor call failed (attempt %d/%d): %v, backoff=%s", attempt+1, f.cfg.MaxRetries, lastErr, backoff)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	f.breaker.RecordFailure()
	return fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// crossCheck 比较主备源最新价，超出容差时给出非致命 advisory。
func (f *Fetcher) crossCheck(ctx context.Context, ticker string, bars []PriceBar) []Advisory {
	if f.secondary == nil || len(bars) == 0 {
		return nil
	}
	ref, err := f.secondary.LatestPrice(ctx, ticker)
	if err != nil || ref <= 0 {
		return nil
	}
	last := bars[len(bars)-1].Close
	diffPct := math.Abs(last-ref) / ref * 100
	if diffPct <= f.cfg.DiscrepancyTolPct {
		return nil
	}
	return []Advisory{{
		Kind:   AdvisoryDiscrepancy,
		Detail: fmt.Sprintf("primary=%.2f secondary=%.2f diff=%.2f%%", last, ref, diffPct),
	}}
}
