package exit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"quantgate/internal/logger"
	"quantgate/internal/market"
)

// StateStore 退出状态的持久化接口。重启后由 Restore 恢复，
// 保证止盈档位的一次性标记不会因为进程重启而重置。
type StateStore interface {
	SaveExitState(ctx context.Context, ticker string, state []byte) error
	LoadExitStates(ctx context.Context) (map[string][]byte, error)
	DeleteExitState(ctx context.Context, ticker string) error
}

// positionState 单个持仓的可变退出状态。所有字段由所属 Manager
// 的锁保护：同一持仓的并发价格更新串行化，避免两次更新各自算出
// 不同的最高价。
type positionState struct {
	Ticker            string    `json:"ticker"`
	EntryPrice        float64   `json:"entry_price"`
	HighestPrice      float64   `json:"highest_price"`
	TrailingStopPrice float64   `json:"trailing_stop_price"`
	RemainingFraction float64   `json:"remaining_fraction"`
	TiersFired        []bool    `json:"tiers_fired"`
	OpenedAt          time.Time `json:"opened_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type Manager struct {
	mu        sync.Mutex
	positions map[string]*positionState
	cfg       Config
	store     StateStore
}

// NewManager 创建退出策略管理器。store 可为 nil（不持久化，仅测试用）。
func NewManager(cfg Config, store StateStore) *Manager {
	cfg.applyDefaults()
	return &Manager{
		positions: make(map[string]*positionState),
		cfg:       cfg,
		store:     store,
	}
}

// Open 登记一笔新开仓。已有同名持仓时报错，不覆盖现有状态。
func (m *Manager) Open(ctx context.Context, ticker string, entryPrice float64, at time.Time) error {
	if entryPrice <= 0 {
		return fmt.Errorf("exit: entry price must be positive, got %.4f", entryPrice)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.positions[ticker]; ok {
		return fmt.Errorf("exit: position %s already open", ticker)
	}
	st := &positionState{
		Ticker:            ticker,
		EntryPrice:        entryPrice,
		HighestPrice:      entryPrice,
		TrailingStopPrice: entryPrice * (1 - m.cfg.TrailPct/100),
		RemainingFraction: 1,
		TiersFired:        make([]bool, len(m.cfg.Tiers)),
		OpenedAt:          at,
		UpdatedAt:         at,
	}
	m.positions[ticker] = st
	m.persist(ctx, st)
	return nil
}

// SyncHoldings 按组合补登缺失的退出计划：已跟踪的持仓保持现有状态
// （止损与已消费档位不重置），成本未知的持仓跳过并告警。返回新登记数。
func (m *Manager) SyncHoldings(ctx context.Context, holdings []market.Holding, at time.Time) int {
	opened := 0
	for _, h := range holdings {
		if _, tracked := m.Plan(h.Ticker); tracked {
			continue
		}
		if h.EntryPrice <= 0 {
			logger.Warnf("exit: holding %s has no entry price, not tracking", h.Ticker)
			continue
		}
		if err := m.Open(ctx, h.Ticker, h.EntryPrice, at); err != nil {
			logger.Warnf("exit: track holding %s: %v", h.Ticker, err)
			continue
		}
		opened++
	}
	return opened
}

// OnPrice 处理一次价格更新，返回触发的退出动作（无动作时为 nil）。
// 止损优先于止盈；每次更新至多触发一个止盈档位，档位触发后被
// 永久消费，后续价格再高也不会重复触发同一档。
func (m *Manager) OnPrice(ctx context.Context, ticker string, price float64, at time.Time) (*Event, error) {
	if price <= 0 {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.positions[ticker]
	if !ok {
		return nil, fmt.Errorf("exit: no open position for %s", ticker)
	}

	// 最高价与止损只升不降。
	if price > st.HighestPrice {
		st.HighestPrice = price
		if stop := price * (1 - m.cfg.TrailPct/100); stop > st.TrailingStopPrice {
			st.TrailingStopPrice = stop
		}
	}
	st.UpdatedAt = at

	if price <= st.TrailingStopPrice {
		ev := &Event{
			Ticker:   ticker,
			Type:     EventTrailingStop,
			Price:    price,
			Fraction: st.RemainingFraction,
			Detail:   fmt.Sprintf("price %.2f at or below trailing stop %.2f (high %.2f)", price, st.TrailingStopPrice, st.HighestPrice),
			At:       at,
		}
		m.closeLocked(ctx, ticker)
		return ev, nil
	}

	gainPct := (price/st.EntryPrice - 1) * 100
	for i, tier := range m.cfg.Tiers {
		if st.TiersFired[i] || gainPct < tier.GainPct {
			continue
		}
		st.TiersFired[i] = true
		fraction := tier.SellFraction
		final := fraction <= 0 || fraction >= st.RemainingFraction
		if final {
			fraction = st.RemainingFraction
		}
		st.RemainingFraction -= fraction

		ev := &Event{
			Ticker:   ticker,
			Type:     EventTierHit,
			Price:    price,
			Fraction: fraction,
			Detail:   fmt.Sprintf("gain %.1f%% hit tier %.0f%%", gainPct, tier.GainPct),
			At:       at,
		}
		if final {
			ev.Type = EventFinalTakeProfit
			m.closeLocked(ctx, ticker)
			return ev, nil
		}
		m.persist(ctx, st)
		return ev, nil
	}

	m.persist(ctx, st)
	return nil, nil
}

// Plan 返回持仓退出状态的快照副本。
func (m *Manager) Plan(ticker string) (Plan, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.positions[ticker]
	if !ok {
		return Plan{}, false
	}
	fired := make([]bool, len(st.TiersFired))
	copy(fired, st.TiersFired)
	return Plan{
		Ticker:            st.Ticker,
		EntryPrice:        st.EntryPrice,
		HighestPrice:      st.HighestPrice,
		TrailingStopPrice: st.TrailingStopPrice,
		RemainingFraction: st.RemainingFraction,
		TiersFired:        fired,
		OpenedAt:          st.OpenedAt,
		UpdatedAt:         st.UpdatedAt,
	}, true
}

// Close 主动移除持仓（人工平仓等外部原因）。
func (m *Manager) Close(ctx context.Context, ticker string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked(ctx, ticker)
}

// Restore 从存储恢复全部退出状态，进程启动时调用一次。
func (m *Manager) Restore(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	raw, err := m.store.LoadExitStates(ctx)
	if err != nil {
		return fmt.Errorf("exit: restore: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for ticker, blob := range raw {
		var st positionState
		if err := json.Unmarshal(blob, &st); err != nil {
			logger.Warnf("exit: drop corrupt state for %s: %v", ticker, err)
			continue
		}
		if len(st.TiersFired) != len(m.cfg.Tiers) {
			// 配置档位数变了，旧标记对齐到新档位，缺的按未触发处理。
			fired := make([]bool, len(m.cfg.Tiers))
			copy(fired, st.TiersFired)
			st.TiersFired = fired
		}
		m.positions[ticker] = &st
	}
	logger.Infof("exit: restored %d open positions", len(m.positions))
	return nil
}

func (m *Manager) closeLocked(ctx context.Context, ticker string) {
	delete(m.positions, ticker)
	if m.store != nil {
		if err := m.store.DeleteExitState(ctx, ticker); err != nil {
			logger.Warnf("exit: delete state for %s: %v", ticker, err)
		}
	}
}

func (m *Manager) persist(ctx context.Context, st *positionState) {
	if m.store == nil {
		return
	}
	blob, err := json.Marshal(st)
	if err != nil {
		logger.Errorf("exit: encode state for %s: %v", st.Ticker, err)
		return
	}
	if err := m.store.SaveExitState(ctx, st.Ticker, blob); err != nil {
		logger.Warnf("exit: persist state for %s: %v", st.Ticker, err)
	}
}
