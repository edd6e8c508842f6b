package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker("vendor", 3, time.Minute)
	assert.Equal(t, StateClosed, b.State())

	for i := 0; i < 3; i++ {
		assert.True(t, b.Allow())
		b.RecordFailure()
	}
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b := NewBreaker("vendor", 1, time.Minute)
	now := time.Unix(1000, 0)
	b.nowFn = func() time.Time { return now }

	b.RecordFailure()
	assert.False(t, b.Allow())

	// 冷却期过后放行一次探测。
	now = now.Add(2 * time.Minute)
	assert.True(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())

	// 探测失败立刻重新打开。
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerRecovers(t *testing.T) {
	b := NewBreaker("vendor", 1, time.Minute)
	now := time.Unix(1000, 0)
	b.nowFn = func() time.Time { return now }

	b.RecordFailure()
	now = now.Add(2 * time.Minute)
	assert.True(t, b.Allow())
	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}
