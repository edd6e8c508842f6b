// Package app 组装全部组件并驱动三种入口：单轮扫描、单票评估、常驻服务。
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"quantgate/internal/analysis/alert"
	"quantgate/internal/analysis/entry"
	"quantgate/internal/analysis/indicator"
	"quantgate/internal/config"
	"quantgate/internal/gate"
	"quantgate/internal/logger"
	"quantgate/internal/market"
	"quantgate/internal/position"
	"quantgate/internal/regime"
	"quantgate/internal/risk"
	"quantgate/internal/scan"
	"quantgate/internal/scheduler"
	"quantgate/internal/store"
	exitstrategy "quantgate/internal/strategy/exit"
	httpapi "quantgate/internal/transport/http"
)

type App struct {
	cfg *config.Config

	store     *store.SqliteStore
	fetcher   *market.Fetcher
	marketDet *regime.MarketDetector
	sectorDet *regime.SectorDetector
	corr      *risk.Manager
	sizer     *position.Sizer
	exits     *exitstrategy.Manager
	portfolio market.PortfolioStore
	policy    *config.PolicyRegistry
	calendar  *market.TradingCalendar
}

// Build 按配置组装 App。所有依赖在这里接线，业务包互相只见接口。
func Build(cfg *config.Config) (*App, error) {
	logger.SetLevel(cfg.Log.Level)
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		logger.SetOutput(f)
	}

	st, err := store.NewSqliteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var cache market.Cache
	if cfg.Redis.Addr != "" {
		rc, err := market.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warnf("redis unavailable, falling back to in-memory cache: %v", err)
		} else {
			cache = rc
		}
	}

	primary := market.NewFileSource(cfg.Vendor.DataDir)
	var secondary market.Source
	if cfg.Vendor.SecondaryDataDir != "" {
		secondary = market.NewFileSource(cfg.Vendor.SecondaryDataDir)
	}
	fetcher := market.NewFetcher(primary, secondary, cache, market.FetcherConfig{
		MaxRetries:        cfg.Vendor.MaxRetries,
		BackoffBase:       cfg.Vendor.BackoffBase,
		RatePerSecond:     cfg.Vendor.RatePerSecond,
		CacheTTL:          cfg.Vendor.CacheTTL,
		FreshnessMax:      cfg.Vendor.FreshnessMax,
		DiscrepancyTolPct: cfg.Vendor.DiscrepancyTolPct,
	})

	policy, err := config.NewPolicyRegistry(cfg.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("load policy table: %w", err)
	}

	exits := exitstrategy.NewManager(cfg.Exit, st)

	app := &App{
		cfg:       cfg,
		store:     st,
		fetcher:   fetcher,
		marketDet: regime.NewMarketDetector(cfg.Context.Market),
		sectorDet: regime.NewSectorDetector(cfg.Context.Sector),
		corr:      risk.NewManager(cfg.Correlation),
		sizer:     position.NewSizer(cfg.Position),
		exits:     exits,
		portfolio: market.NewFilePortfolio(cfg.Vendor.DataDir),
		policy:    policy,
		calendar:  market.NewTradingCalendar(cfg.Scheduler.Market),
	}
	return app, nil
}

func (a *App) Close() error {
	return a.store.Close()
}

// newCycle 按当前热更策略组装一轮扫描。财报排除策略随策略表变化，
// 所以编排器每轮重建而不是缓存。
func (a *App) newCycle() *scan.Cycle {
	gcfg := a.gateConfig()
	return scan.NewCycle(a.fetcher,
		scan.NewScorer(a.cfg.Scan.ScoreWeights),
		alert.NewGenerator(a.cfg.Scan.AlertWeights),
		scan.CycleConfig{
			LookbackBars: a.cfg.Scan.LookbackBars,
			MaxParallel:  a.cfg.Scan.MaxParallel,
			Indicator:    a.cfg.Scan.Indicator,
			Calendar:     a.calendar,
			Earnings: scan.EarningsWindow{
				Exclude:    gcfg.Earnings == gate.EarningsExclude,
				DaysBefore: gcfg.EarningsDaysBefore,
				DaysAfter:  gcfg.EarningsDaysAfter,
			},
		})
}

// RunScan 跑一轮完整扫描并落库。
func (a *App) RunScan(ctx context.Context, day time.Time) (scan.CycleReport, error) {
	if len(a.cfg.Scan.Watchlist) == 0 {
		return scan.CycleReport{}, fmt.Errorf("scan watchlist is empty")
	}
	report := a.newCycle().Run(ctx, a.cfg.Scan.Watchlist, day)
	if err := a.store.SaveScanReport(ctx, report); err != nil {
		return report, fmt.Errorf("persist scan report: %w", err)
	}
	return report, nil
}

// Evaluate 对单个标的跑完整链路：扫描指标 → 市场/行业上下文 →
// 相关性 → 四闸门 → 仓位，评估落库后返回。
func (a *App) Evaluate(ctx context.Context, ticker string, day time.Time) (gate.Evaluation, position.Sizing, error) {
	bars, _, err := a.fetcher.Bars(ctx, ticker, day, a.cfg.Scan.LookbackBars)
	if err != nil {
		return gate.Evaluation{}, position.Sizing{}, err
	}
	snaps, err := indicator.Compute(ticker, bars, a.cfg.Scan.Indicator)
	if err != nil {
		return gate.Evaluation{}, position.Sizing{}, err
	}
	cur := snaps[len(snaps)-1]
	var prev indicator.Snapshot
	if len(snaps) > 1 {
		prev = snaps[len(snaps)-2]
	}
	fund, err := a.fetcher.Fundamentals(ctx, ticker, day)
	if err != nil {
		logger.Debugf("fundamentals unavailable for %s: %v", ticker, err)
		fund = market.FundamentalSnapshot{Ticker: ticker, AsOf: day}
	}

	gcfg := a.gateConfig()
	if gcfg.Earnings == gate.EarningsExclude && gcfg.InEarningsWindow(day, fund) {
		return gate.Evaluation{}, position.Sizing{}, fmt.Errorf(
			"%s excluded from evaluation: earnings %s inside exclusion window",
			ticker, fund.NextEarnings.Format("2006-01-02"))
	}

	alerts := alert.NewGenerator(a.cfg.Scan.AlertWeights).Generate(cur, prev)
	scores := scan.NewScorer(a.cfg.Scan.ScoreWeights).Score(alerts, fund)
	advice := entry.Calculate(cur, fund)

	mktState, rotation := a.refreshContext(ctx, day)
	corrAssessment, sectorExposure, held := a.assessPortfolio(ctx, ticker, fund.Sector, bars, day)

	framework := gate.NewFramework(gcfg)
	ev := framework.Evaluate(gate.Input{
		Ticker:            ticker,
		AsOf:              day,
		Scores:            scores,
		Snapshot:          cur,
		Fundamentals:      fund,
		Alerts:            alerts,
		Entry:             advice,
		Market:            mktState,
		Rotation:          rotation,
		Correlation:       corrAssessment,
		SectorExposurePct: sectorExposure,
		ProposedPct:       a.cfg.Position.CeilingPct,
		Held:              held,
	})
	if err := a.store.SaveEvaluation(ctx, ev); err != nil {
		return ev, position.Sizing{}, fmt.Errorf("persist evaluation: %w", err)
	}

	sizing := a.sizer.Size(position.SizeRequest{
		Evaluation:       ev,
		Correlation:      corrAssessment,
		EntryPrice:       cur.Close,
		TargetPrice:      advice.Resistance,
		DividendYieldPct: fund.DividendYieldPct,
	})
	return ev, sizing, nil
}

// Serve 常驻运行：HTTP 查询服务、每个交易日收盘后的定时扫描，
// 以及可选的实时价格推送驱动退出计划。
func (a *App) Serve(ctx context.Context) error {
	if err := a.exits.Restore(ctx); err != nil {
		return err
	}
	// 持久化状态没覆盖到的持仓（手工加进组合文件的）补登退出计划。
	if holdings, err := a.portfolio.Holdings(ctx); err != nil {
		logger.Warnf("holdings unavailable, exit plans limited to restored state: %v", err)
	} else if n := a.exits.SyncHoldings(ctx, holdings, time.Now()); n > 0 {
		logger.Infof("exit: tracking %d holdings from portfolio", n)
	}

	srv, err := httpapi.NewServer(httpapi.ServerConfig{
		Addr:     a.cfg.HTTP.Addr,
		Store:    a.store,
		Exits:    a.exits,
		NotFound: store.ErrNotFound,
	})
	if err != nil {
		return err
	}

	loc, err := time.LoadLocation(a.cfg.Scheduler.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}
	daily, err := scheduler.NewDailyScheduler(ctx, "scan", a.cfg.Scheduler.ScanAt, loc, a.calendar)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("http server listening on %s", a.cfg.HTTP.Addr)
		return srv.Start(gctx)
	})
	g.Go(func() error {
		daily.Start(func(day time.Time) {
			if _, err := a.RunScan(gctx, day); err != nil {
				logger.Errorf("scheduled scan failed: %v", err)
			}
		})
		return nil
	})
	if a.cfg.Feed.URL != "" {
		feed := market.NewTickFeed(a.cfg.Feed.URL, a.cfg.Scan.Watchlist, a.onTick)
		g.Go(func() error {
			feed.Run(gctx)
			return nil
		})
	}
	return g.Wait()
}

func (a *App) onTick(t market.Tick) {
	ev, err := a.exits.OnPrice(context.Background(), t.Ticker, t.Price, t.At)
	if err != nil {
		// 没有对应持仓的 tick 很常见，只在 debug 级别记录。
		logger.Debugf("tick %s ignored: %v", t.Ticker, err)
		return
	}
	if ev != nil {
		logger.Infof("exit event %s %s: %.2f (%s)", ev.Ticker, ev.Type, ev.Price, ev.Detail)
	}
}

// gateConfig 把静态配置、热更的策略表与交易日历合成当前闸门配置，
// 缺省值补齐后返回，扫描层与闸门用同一份窗口参数。
func (a *App) gateConfig() gate.Config {
	cfg := a.cfg.Gate
	pol := a.policy.Current()
	cfg.Override = pol.ExtremeOverbought
	cfg.Earnings = pol.Earnings
	cfg.Calendar = a.calendar
	return cfg.Normalized()
}

// refreshContext 拉取基准与行业代理序列，生成市场/行业上下文。
// 上下文取不到时退化为中性，不阻断评估。
func (a *App) refreshContext(ctx context.Context, day time.Time) (regime.MarketState, regime.RotationState) {
	var mktState regime.MarketState
	bench, _, err := a.fetcher.Bars(ctx, a.cfg.Context.Benchmark, day, a.cfg.Scan.LookbackBars)
	if err != nil {
		logger.Warnf("benchmark %s unavailable, assuming neutral regime: %v", a.cfg.Context.Benchmark, err)
		mktState = regime.MarketState{Direction: regime.Neutral, Volatility: regime.VolNormal, AsOf: day}
	} else {
		mktState = a.marketDet.Detect(bench, day)
	}

	proxies := make(map[string][]market.PriceBar, len(a.cfg.Context.SectorProxies))
	for sector, proxy := range a.cfg.Context.SectorProxies {
		bars, _, err := a.fetcher.Bars(ctx, proxy, day, a.cfg.Scan.LookbackBars)
		if err != nil {
			logger.Warnf("sector proxy %s (%s) unavailable: %v", proxy, sector, err)
			continue
		}
		proxies[sector] = bars
	}
	return mktState, a.sectorDet.Detect(proxies, day)
}

// assessPortfolio 一次性取回全部持仓序列，算相关性与行业敞口。
func (a *App) assessPortfolio(ctx context.Context, ticker, sector string, candBars []market.PriceBar, day time.Time) (risk.Assessment, float64, bool) {
	holdings, err := a.portfolio.Holdings(ctx)
	if err != nil {
		logger.Warnf("holdings unavailable, skipping correlation check: %v", err)
		return risk.Assessment{Ticker: ticker, IsSafe: true, RecommendedSizePct: 100}, 0, false
	}

	var sectorExposure float64
	held := false
	holdingBars := make(map[string][]market.PriceBar, len(holdings))
	for _, h := range holdings {
		if h.Ticker == ticker {
			held = true
			continue
		}
		if h.Sector == sector {
			sectorExposure += h.WeightPct
		}
		bars, _, err := a.fetcher.Bars(ctx, h.Ticker, day, a.cfg.Scan.LookbackBars)
		if err != nil {
			logger.Warnf("holding %s bars unavailable, excluded from correlation: %v", h.Ticker, err)
			continue
		}
		holdingBars[h.Ticker] = bars
	}
	return a.corr.Assess(ticker, candBars, holdingBars), sectorExposure, held
}
