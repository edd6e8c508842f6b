package exit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantgate/internal/market"
)

var t0 = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

func openAt100(t *testing.T, m *Manager) {
	t.Helper()
	require.NoError(t, m.Open(context.Background(), "TEST", 100, t0))
}

// 入场 100、最高 120（止损 110.40）、回落 109 → 触发止损。
func TestTrailingStopScenario(t *testing.T) {
	m := NewManager(Config{}, nil)
	openAt100(t, m)
	ctx := context.Background()

	ev, err := m.OnPrice(ctx, "TEST", 120, t0.Add(time.Minute))
	require.NoError(t, err)
	// 120 已越过 +15% 末档，先吃掉最低未触发档（+5%）。
	require.NotNil(t, ev)
	assert.Equal(t, EventTierHit, ev.Type)

	plan, ok := m.Plan("TEST")
	require.True(t, ok)
	assert.InDelta(t, 110.40, plan.TrailingStopPrice, 1e-9)

	ev, err = m.OnPrice(ctx, "TEST", 109, t0.Add(2*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, EventTrailingStop, ev.Type)
	assert.InDelta(t, 0.75, ev.Fraction, 1e-9)

	_, ok = m.Plan("TEST")
	assert.False(t, ok)
}

// 止损价只升不降：创新高后回落，止损维持在高点对应的位置。
func TestTrailingStopMonotone(t *testing.T) {
	m := NewManager(Config{Tiers: []Tier{{GainPct: 999, SellFraction: 0.25}}}, nil)
	openAt100(t, m)
	ctx := context.Background()

	prices := []float64{101, 105, 103, 110, 104, 108}
	var lastStop float64
	for i, p := range prices {
		_, err := m.OnPrice(ctx, "TEST", p, t0.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		plan, ok := m.Plan("TEST")
		require.True(t, ok)
		assert.GreaterOrEqual(t, plan.TrailingStopPrice, lastStop, "price %.0f", p)
		lastStop = plan.TrailingStopPrice
	}
	assert.InDelta(t, 110*0.92, lastStop, 1e-9)
}

// 单次更新到 +12%：只有 +5% 档触发，+10% 档留待下一次更新。
func TestOneTierPerTick(t *testing.T) {
	m := NewManager(Config{}, nil)
	openAt100(t, m)
	ctx := context.Background()

	ev, err := m.OnPrice(ctx, "TEST", 112, t0.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, EventTierHit, ev.Type)
	assert.InDelta(t, 0.25, ev.Fraction, 1e-9)

	plan, _ := m.Plan("TEST")
	assert.Equal(t, []bool{true, false, false}, plan.TiersFired)
	assert.InDelta(t, 0.75, plan.RemainingFraction, 1e-9)

	// 下一次更新吃掉 +10% 档。
	ev, err = m.OnPrice(ctx, "TEST", 112, t0.Add(2*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.InDelta(t, 0.25, ev.Fraction, 1e-9)
	plan, _ = m.Plan("TEST")
	assert.Equal(t, []bool{true, true, false}, plan.TiersFired)
}

// 档位一次性消费：反复停留在同一涨幅不会重复触发。
func TestTiersFireAtMostOnce(t *testing.T) {
	m := NewManager(Config{}, nil)
	openAt100(t, m)
	ctx := context.Background()

	_, err := m.OnPrice(ctx, "TEST", 106, t0.Add(time.Minute))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		ev, err := m.OnPrice(ctx, "TEST", 106, t0.Add(time.Duration(i+2)*time.Minute))
		require.NoError(t, err)
		assert.Nil(t, ev, "tier must not refire")
	}
	plan, _ := m.Plan("TEST")
	assert.InDelta(t, 0.75, plan.RemainingFraction, 1e-9)
}

func TestFinalTierClosesPosition(t *testing.T) {
	m := NewManager(Config{}, nil)
	openAt100(t, m)
	ctx := context.Background()

	for _, p := range []float64{105.5, 110.5} {
		_, err := m.OnPrice(ctx, "TEST", p, t0.Add(time.Minute))
		require.NoError(t, err)
	}
	ev, err := m.OnPrice(ctx, "TEST", 115.5, t0.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, EventFinalTakeProfit, ev.Type)
	assert.InDelta(t, 0.5, ev.Fraction, 1e-9)

	_, ok := m.Plan("TEST")
	assert.False(t, ok)
}

func TestDuplicateOpenRejected(t *testing.T) {
	m := NewManager(Config{}, nil)
	openAt100(t, m)
	assert.Error(t, m.Open(context.Background(), "TEST", 101, t0))
}

// 同一持仓的并发价格更新不会算出两个不同的最高价。
func TestConcurrentUpdatesSerialized(t *testing.T) {
	m := NewManager(Config{Tiers: []Tier{{GainPct: 999, SellFraction: 0.25}}}, nil)
	openAt100(t, m)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = m.OnPrice(ctx, "TEST", 100+float64(i%8), t0.Add(time.Duration(i)*time.Second))
		}(i)
	}
	wg.Wait()

	plan, ok := m.Plan("TEST")
	require.True(t, ok)
	assert.Equal(t, 107.0, plan.HighestPrice)
	assert.InDelta(t, 107*0.92, plan.TrailingStopPrice, 1e-9)
}

type memStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemStore() *memStore { return &memStore{blobs: map[string][]byte{}} }

func (s *memStore) SaveExitState(_ context.Context, ticker string, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[ticker] = append([]byte(nil), state...)
	return nil
}

func (s *memStore) LoadExitStates(_ context.Context) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]byte, len(s.blobs))
	for k, v := range s.blobs {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}

func (s *memStore) DeleteExitState(_ context.Context, ticker string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, ticker)
	return nil
}

// 组合同步只补登未跟踪的持仓：已有状态不被覆盖，成本未知的跳过。
func TestSyncHoldingsTracksMissingPositions(t *testing.T) {
	m := NewManager(Config{}, nil)
	ctx := context.Background()
	require.NoError(t, m.Open(ctx, "AAA", 100, t0))
	_, err := m.OnPrice(ctx, "AAA", 106, t0.Add(time.Minute)) // 消费 +5% 档
	require.NoError(t, err)

	n := m.SyncHoldings(ctx, []market.Holding{
		{Ticker: "AAA", EntryPrice: 90},
		{Ticker: "BBB", EntryPrice: 80},
		{Ticker: "CCC"}, // 没有成本价
	}, t0.Add(2*time.Minute))
	assert.Equal(t, 1, n)

	plan, ok := m.Plan("AAA")
	require.True(t, ok)
	assert.InDelta(t, 100, plan.EntryPrice, 1e-9) // 原状态保留
	assert.InDelta(t, 0.75, plan.RemainingFraction, 1e-9)

	plan, ok = m.Plan("BBB")
	require.True(t, ok)
	assert.InDelta(t, 80, plan.EntryPrice, 1e-9)
	assert.InDelta(t, 80*0.92, plan.TrailingStopPrice, 1e-9)

	_, ok = m.Plan("CCC")
	assert.False(t, ok)
}

// 重启恢复后，已消费的档位保持已消费。
func TestRestoreKeepsConsumedTiers(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	m := NewManager(Config{}, store)
	require.NoError(t, m.Open(ctx, "TEST", 100, t0))
	_, err := m.OnPrice(ctx, "TEST", 106, t0.Add(time.Minute))
	require.NoError(t, err)

	// 新 Manager 模拟进程重启。
	m2 := NewManager(Config{}, store)
	require.NoError(t, m2.Restore(ctx))

	plan, ok := m2.Plan("TEST")
	require.True(t, ok)
	assert.Equal(t, []bool{true, false, false}, plan.TiersFired)
	assert.InDelta(t, 0.75, plan.RemainingFraction, 1e-9)

	ev, err := m2.OnPrice(ctx, "TEST", 106, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Nil(t, ev)
}
