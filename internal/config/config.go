// Package config 加载并校验全局配置。配置文件为 YAML，未设置的字段
// 落到各组件的缺省值。
package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"quantgate/internal/analysis/alert"
	"quantgate/internal/analysis/indicator"
	"quantgate/internal/gate"
	"quantgate/internal/position"
	"quantgate/internal/regime"
	"quantgate/internal/risk"
	"quantgate/internal/scan"
	"quantgate/internal/strategy/exit"
)

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type VendorConfig struct {
	DataDir           string        `mapstructure:"data_dir"`
	MaxRetries        int           `mapstructure:"max_retries"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	RatePerSecond     float64       `mapstructure:"rate_per_second"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	FreshnessMax      time.Duration `mapstructure:"freshness_max"`
	DiscrepancyTolPct float64       `mapstructure:"discrepancy_tol_pct"`
	SecondaryDataDir  string        `mapstructure:"secondary_data_dir"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type FeedConfig struct {
	URL string `mapstructure:"url"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type SchedulerConfig struct {
	ScanAt   string `mapstructure:"scan_at"`  // "21:30"，UTC 下的每日扫描时刻
	Timezone string `mapstructure:"timezone"` // 默认 America/New_York
	Market   string `mapstructure:"market"`   // 交易日历 MIC，默认 XNYS
}

type ContextConfig struct {
	Benchmark     string              `mapstructure:"benchmark"`
	SectorProxies map[string]string   `mapstructure:"sector_proxies"` // 行业名 → 代理 ticker
	Market        regime.MarketConfig `mapstructure:"market"`
	Sector        regime.SectorConfig `mapstructure:"sector"`
}

type ScanConfig struct {
	Watchlist    []string           `mapstructure:"watchlist"`
	LookbackBars int                `mapstructure:"lookback_bars"`
	MaxParallel  int                `mapstructure:"max_parallel"`
	Indicator    indicator.Settings `mapstructure:"indicator"`
	ScoreWeights scan.ScoreWeights  `mapstructure:"score_weights"`
	AlertWeights alert.Weights      `mapstructure:"alert_weights"`
}

type Config struct {
	Database    DatabaseConfig  `mapstructure:"database"`
	Log         LogConfig       `mapstructure:"log"`
	Vendor      VendorConfig    `mapstructure:"vendor"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Feed        FeedConfig      `mapstructure:"feed"`
	HTTP        HTTPConfig      `mapstructure:"http"`
	Scheduler   SchedulerConfig `mapstructure:"scheduler"`
	Scan        ScanConfig      `mapstructure:"scan"`
	Context     ContextConfig   `mapstructure:"context"`
	Correlation risk.Config     `mapstructure:"correlation"`
	Gate        gate.Config     `mapstructure:"gate"`
	Position    position.Config `mapstructure:"position"`
	Exit        exit.Config     `mapstructure:"exit"`
	PolicyPath  string          `mapstructure:"policy_path"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.StringToTimeDurationHookFunc()
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = "data/quantgate.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Vendor.DataDir == "" {
		c.Vendor.DataDir = "data/market"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8632"
	}
	if c.Scheduler.ScanAt == "" {
		c.Scheduler.ScanAt = "16:30"
	}
	if c.Scheduler.Timezone == "" {
		c.Scheduler.Timezone = "America/New_York"
	}
	if c.Scheduler.Market == "" {
		c.Scheduler.Market = "XNYS"
	}
	if c.Context.Benchmark == "" {
		c.Context.Benchmark = "SPY"
	}
}

func validate(c *Config) error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	if _, err := time.Parse("15:04", c.Scheduler.ScanAt); err != nil {
		return fmt.Errorf("invalid scheduler.scan_at %q: %w", c.Scheduler.ScanAt, err)
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("invalid scheduler.timezone %q: %w", c.Scheduler.Timezone, err)
	}
	w := c.Scan.ScoreWeights
	if w != (scan.ScoreWeights{}) {
		sum := w.Technical + w.Fundamental + w.Volume + w.Momentum
		if sum < 0.999 || sum > 1.001 {
			return fmt.Errorf("scan.score_weights must sum to 1, got %.3f", sum)
		}
	}
	for i := 1; i < len(c.Exit.Tiers); i++ {
		if c.Exit.Tiers[i].GainPct <= c.Exit.Tiers[i-1].GainPct {
			return fmt.Errorf("exit.tiers must be in ascending gain order")
		}
	}
	if c.Exit.TrailPct < 0 || c.Exit.TrailPct > 50 {
		return fmt.Errorf("exit.trail_pct %.1f out of range", c.Exit.TrailPct)
	}
	return nil
}
