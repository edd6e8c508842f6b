package gate

import (
	"fmt"
	"strings"
	"time"

	"quantgate/internal/analysis/alert"
	"quantgate/internal/analysis/entry"
	"quantgate/internal/analysis/indicator"
	"quantgate/internal/logger"
	"quantgate/internal/market"
	"quantgate/internal/pkg/convert"
	"quantgate/internal/regime"
	"quantgate/internal/risk"
	"quantgate/internal/scan"
)

// Weights 置信度合成用的闸门权重。
type Weights struct {
	Fundamental float64 `json:"fundamental" mapstructure:"fundamental"`
	Technical   float64 `json:"technical" mapstructure:"technical"`
	Risk        float64 `json:"risk" mapstructure:"risk"`
	Timing      float64 `json:"timing" mapstructure:"timing"`
}

func DefaultWeights() Weights {
	return Weights{Fundamental: 0.25, Technical: 0.30, Risk: 0.25, Timing: 0.20}
}

// EarningsPolicy 财报临近期的处理方式。
type EarningsPolicy string

const (
	// EarningsFailTiming 财报窗口内扣时机分（默认）。
	EarningsFailTiming EarningsPolicy = "fail_timing"
	// EarningsExclude 由扫描层在入口处剔除，闸门不再额外处理。
	EarningsExclude EarningsPolicy = "exclude"
)

type Config struct {
	Thresholds         Thresholds     `json:"thresholds" mapstructure:"thresholds"`
	Adjust             AdjustRules    `json:"adjust" mapstructure:"adjust"`
	Weights            Weights        `json:"weights" mapstructure:"weights"`
	MinBuyConfidence   float64        `json:"min_buy_confidence" mapstructure:"min_buy_confidence"`
	MinHoldConfidence  float64        `json:"min_hold_confidence" mapstructure:"min_hold_confidence"`
	RiskTerminalScore  float64        `json:"risk_terminal_score" mapstructure:"risk_terminal_score"`
	SectorCapPct       float64        `json:"sector_cap_pct" mapstructure:"sector_cap_pct"`
	EarningsDaysBefore int            `json:"earnings_days_before" mapstructure:"earnings_days_before"`
	EarningsDaysAfter  int            `json:"earnings_days_after" mapstructure:"earnings_days_after"`
	Earnings           EarningsPolicy `json:"earnings_policy" mapstructure:"earnings_policy"`
	Override           OverridePolicy `json:"override_policy" mapstructure:"override_policy"`

	// Calendar 非空时财报窗口按交易日计数，否则按自然日。
	Calendar *market.TradingCalendar `json:"-" mapstructure:"-"`
}

func (c *Config) applyDefaults() {
	if c.Thresholds == (Thresholds{}) {
		c.Thresholds = DefaultThresholds()
	}
	if c.Adjust == (AdjustRules{}) {
		c.Adjust = DefaultAdjustRules()
	}
	if c.Weights == (Weights{}) {
		c.Weights = DefaultWeights()
	}
	if c.MinBuyConfidence <= 0 {
		c.MinBuyConfidence = 60
	}
	if c.MinHoldConfidence <= 0 {
		c.MinHoldConfidence = 50
	}
	if c.RiskTerminalScore <= 0 {
		c.RiskTerminalScore = 40
	}
	if c.SectorCapPct <= 0 {
		c.SectorCapPct = 20
	}
	if c.EarningsDaysBefore <= 0 {
		c.EarningsDaysBefore = 5
	}
	if c.EarningsDaysAfter <= 0 {
		c.EarningsDaysAfter = 2
	}
	if c.Earnings == "" {
		c.Earnings = EarningsFailTiming
	}
	if c.Override == "" {
		c.Override = OverrideDip
	}
}

// Normalized 返回补齐缺省值后的配置副本，供闸门外的调用方
// （扫描层剔除、财报窗口判定）使用与闸门一致的参数。
func (c Config) Normalized() Config {
	c.applyDefaults()
	return c
}

// InEarningsWindow 判断 asOf 是否落在财报排除窗口内。配置了交易日历
// 时窗口按交易日计数。
func (c Config) InEarningsWindow(asOf time.Time, f market.FundamentalSnapshot) bool {
	if !f.HasNextEarnings {
		return false
	}
	if c.Calendar != nil {
		return c.Calendar.WithinWindow(asOf, f.NextEarnings, c.EarningsDaysBefore, c.EarningsDaysAfter)
	}
	from := f.NextEarnings.AddDate(0, 0, -c.EarningsDaysBefore)
	to := f.NextEarnings.AddDate(0, 0, c.EarningsDaysAfter)
	return !asOf.Before(from) && !asOf.After(to)
}

// Input 一次评估的全部输入快照。评估是输入的纯函数，不做任何 I/O。
type Input struct {
	Ticker            string
	AsOf              time.Time
	Scores            scan.SubScores
	Snapshot          indicator.Snapshot
	Fundamentals      market.FundamentalSnapshot
	Alerts            alert.Set
	Entry             entry.Advice
	Market            regime.MarketState
	Rotation          regime.RotationState
	Correlation       risk.Assessment
	SectorExposurePct float64 // 现有持仓在候选所属行业的合计权重
	ProposedPct       float64 // 拟开仓位，用于行业敞口预检
	Held              bool
}

type Framework struct {
	cfg Config
}

func NewFramework(cfg Config) *Framework {
	cfg.applyDefaults()
	return &Framework{cfg: cfg}
}

// Evaluate 对单个标的跑完整四闸门并给出最终决策。
func (f *Framework) Evaluate(in Input) Evaluation {
	thr := f.cfg.Thresholds.adjust(f.cfg.Adjust, in.Scores.Composite, in.Market)

	gates := []Result{
		f.fundamentalGate(in, thr.Fundamental),
		f.technicalGate(in, thr.Technical),
		f.riskGate(in, thr.Risk),
		f.timingGate(in, thr.Timing),
	}

	w := f.cfg.Weights
	confidence := convert.Clamp(
		w.Fundamental*gates[0].Score+
			w.Technical*gates[1].Score+
			w.Risk*gates[2].Score+
			w.Timing*gates[3].Score,
		0, 100)

	ev := Evaluation{
		ID:         newEvaluationID(),
		Ticker:     in.Ticker,
		AsOf:       in.AsOf,
		Gates:      gates,
		Confidence: confidence,
	}
	ev.Decision, ev.Overridden, ev.Reasoning = f.decide(in, ev)
	logger.Debugf("gate %s: decision=%s confidence=%.1f", in.Ticker, ev.Decision, ev.Confidence)
	return ev
}

// decide 决策机。风险分低于终止线时无条件 SELL；极端 RSI 覆盖按策略
// 表放在最后：超买把看多的合成结果翻成 WAIT，超卖把差口气的 WAIT 升为 BUY。
func (f *Framework) decide(in Input, ev Evaluation) (Decision, bool, string) {
	fund, tech := ev.Gates[0], ev.Gates[1]
	riskG, timing := ev.Gates[2], ev.Gates[3]

	if riskG.Score < f.cfg.RiskTerminalScore {
		return DecisionSell, false, fmt.Sprintf("risk gate %.0f below terminal %.0f", riskG.Score, f.cfg.RiskTerminalScore)
	}

	var decision Decision
	var reason string
	passed := 0
	for _, g := range ev.Gates {
		if g.Passed {
			passed++
		}
	}
	switch {
	case passed == 4 && ev.Confidence >= f.cfg.MinBuyConfidence:
		decision, reason = DecisionBuy, "all gates passed"
	case fund.Passed && tech.Passed && !timing.Passed:
		decision, reason = DecisionWait, "timing gate failed"
	case in.Held && passed >= 2 && ev.Confidence >= f.cfg.MinHoldConfidence:
		decision, reason = DecisionHold, "held position with moderate confidence"
	case in.Held:
		decision, reason = DecisionHold, "held position, weak signals"
	default:
		decision, reason = DecisionWait, fmt.Sprintf("%d/4 gates passed", passed)
	}

	if decision == DecisionBuy && f.overbought(in) {
		return DecisionWait, true, reason + "; extreme overbought override"
	}
	// 极端超卖是买方向的对应覆盖：四门全过但置信度差一口气时升级为 BUY。
	if decision == DecisionWait && passed == 4 &&
		f.cfg.Override != OverrideOff && in.Alerts.Has(alert.RSIExtremeOversold) {
		return DecisionBuy, true, reason + "; extreme oversold escalation"
	}
	return decision, false, reason
}

// overbought 判断极端 RSI 超买覆盖是否生效。
func (f *Framework) overbought(in Input) bool {
	if !in.Alerts.Has(alert.RSIExtremeOverbought) {
		return false
	}
	switch f.cfg.Override {
	case OverrideOff:
		return false
	case OverrideAlways:
		return true
	default: // OverrideDip
		return !in.Alerts.Has(alert.BuyTheDip)
	}
}

func (f *Framework) fundamentalGate(in Input, threshold float64) Result {
	score := in.Scores.Fundamental
	notes := []string{fmt.Sprintf("base %.0f", score)}
	if in.Fundamentals.DividendYieldPct >= 3 {
		score += 10
		notes = append(notes, "dividend yield ≥3% (+10)")
	} else if in.Fundamentals.DividendYieldPct >= 2 {
		score += 5
		notes = append(notes, "dividend yield ≥2% (+5)")
	}
	score = convert.Clamp(score, 0, 100)
	return Result{
		Name:          GateFundamental,
		Score:         score,
		Passed:        score >= threshold,
		ThresholdUsed: threshold,
		Reasoning:     strings.Join(notes, "; "),
	}
}

func (f *Framework) technicalGate(in Input, threshold float64) Result {
	score := in.Scores.Technical
	notes := []string{fmt.Sprintf("base %.0f", score)}
	s := in.Snapshot
	switch {
	case s.SMA20.Valid && s.SMA50.Valid && s.SMA200.Valid &&
		s.Close > s.SMA20.V && s.SMA20.V > s.SMA50.V && s.SMA50.V > s.SMA200.V:
		score += 10
		notes = append(notes, "bullish MA stack (+10)")
	case s.SMA200.Valid && s.Close > s.SMA200.V:
		score += 5
		notes = append(notes, "above 200-day MA (+5)")
	case s.SMA200.Valid && s.Close < s.SMA200.V:
		score -= 10
		notes = append(notes, "below 200-day MA (-10)")
	}
	score = convert.Clamp(score, 0, 100)
	return Result{
		Name:          GateTechnical,
		Score:         score,
		Passed:        score >= threshold,
		ThresholdUsed: threshold,
		Reasoning:     strings.Join(notes, "; "),
	}
}

// riskGate 从 75 起步：回撤代理（ATR%）、盈亏比、行业敞口、相关性
// 依次加减。行业敞口按「现有权重+拟开仓位」对照配置上限。
func (f *Framework) riskGate(in Input, threshold float64) Result {
	score := 75.0
	notes := []string{"base 75"}

	if in.Snapshot.ATRPct.Valid {
		switch {
		case in.Snapshot.ATRPct.V > 4:
			score -= 10
			notes = append(notes, "high drawdown risk (-10)")
		case in.Snapshot.ATRPct.V > 2.5:
			score -= 5
			notes = append(notes, "elevated volatility (-5)")
		case in.Snapshot.ATRPct.V < 1.5:
			score += 5
			notes = append(notes, "low volatility (+5)")
		}
	}

	price := in.Snapshot.Close
	if in.Entry.Support > 0 && in.Entry.Resistance > price && price > in.Entry.Support {
		rr := (in.Entry.Resistance - price) / (price - in.Entry.Support)
		switch {
		case rr >= 2:
			score += 10
			notes = append(notes, fmt.Sprintf("risk/reward %.1f (+10)", rr))
		case rr < 1:
			score -= 10
			notes = append(notes, fmt.Sprintf("risk/reward %.1f (-10)", rr))
		}
	}

	cap := f.cfg.SectorCapPct
	exposure := in.SectorExposurePct + in.ProposedPct
	switch {
	case exposure > cap:
		score -= 25
		notes = append(notes, fmt.Sprintf("sector exposure %.1f%% over cap %.0f%% (-25)", exposure, cap))
	case exposure >= 0.9*cap:
		score -= 10
		notes = append(notes, "sector exposure near cap (-10)")
	case exposure < cap/2:
		score += 5
		notes = append(notes, "sector underweight (+5)")
	}

	if !in.Correlation.IsSafe {
		score -= 15
		notes = append(notes, fmt.Sprintf("unsafe correlation %.2f with %s (-15)", in.Correlation.MaxCorrelation, in.Correlation.CorrelatedWith))
	} else if in.Correlation.RecommendedSizePct < 100 {
		score -= 5
		notes = append(notes, "correlation in caution band (-5)")
	} else if in.Correlation.Ticker != "" {
		score += 5
		notes = append(notes, "low portfolio correlation (+5)")
	}

	score = convert.Clamp(score, 0, 100)
	return Result{
		Name:          GateRisk,
		Score:         score,
		Passed:        score >= threshold,
		ThresholdUsed: threshold,
		Reasoning:     strings.Join(notes, "; "),
	}
}

func (f *Framework) timingGate(in Input, threshold float64) Result {
	var score float64
	switch in.Entry.Timing {
	case entry.BuyNow:
		score = 75
	case entry.Accumulate:
		score = 65
	case entry.WaitForPullback:
		score = 40
	default:
		score = 50
	}
	notes := []string{fmt.Sprintf("entry=%s", in.Entry.Timing)}

	if f.cfg.Earnings == EarningsFailTiming && f.cfg.InEarningsWindow(in.AsOf, in.Fundamentals) {
		score -= 30
		notes = append(notes, "inside earnings window (-30)")
	}

	switch in.Market.Direction {
	case regime.Bull:
		score += 5
		notes = append(notes, "bull regime (+5)")
	case regime.Bear:
		score -= 5
		notes = append(notes, "bear regime (-5)")
	}
	switch in.Rotation.Stance(in.Fundamentals.Sector) {
	case regime.Overweight:
		score += 5
		notes = append(notes, "sector overweight (+5)")
	case regime.Underweight:
		score -= 5
		notes = append(notes, "sector underweight (-5)")
	}

	score = convert.Clamp(score, 0, 100)
	return Result{
		Name:          GateTiming,
		Score:         score,
		Passed:        score >= threshold,
		ThresholdUsed: threshold,
		Reasoning:     strings.Join(notes, "; "),
	}
}
