// Package scheduler 提供按交易日对齐的定时执行。
package scheduler

import (
	"context"
	"fmt"
	"time"

	"quantgate/internal/logger"
	"quantgate/internal/market"
)

// DailyScheduler 每个交易日在固定的当地时刻执行一次任务，
// 非交易日（周末与交易所假日）自动跳过。
type DailyScheduler struct {
	Name     string
	At       string // "15:04" 当地时刻
	Location *time.Location
	Calendar *market.TradingCalendar

	ctx   context.Context
	nowFn func() time.Time
}

func NewDailyScheduler(ctx context.Context, name, at string, loc *time.Location, cal *market.TradingCalendar) (*DailyScheduler, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if loc == nil {
		loc = time.UTC
	}
	if _, err := time.Parse("15:04", at); err != nil {
		return nil, fmt.Errorf("scheduler: invalid time %q: %w", at, err)
	}
	return &DailyScheduler{
		Name:     name,
		At:       at,
		Location: loc,
		Calendar: cal,
		ctx:      ctx,
		nowFn:    time.Now,
	}, nil
}

// Start 阻塞运行直到 ctx 取消。task 收到的是当次对应的交易日。
func (s *DailyScheduler) Start(task func(day time.Time)) {
	if task == nil {
		logger.Warnf("DailyScheduler[%s]: task is nil, exit", s.Name)
		return
	}
	for {
		next := s.NextRun(s.nowFn())
		logger.Infof("DailyScheduler[%s]: next run %s (in %s)",
			s.Name, next.Format(time.RFC3339), next.Sub(s.nowFn()).Truncate(time.Second))
		if !s.waitUntil(next) {
			return
		}
		task(time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, time.UTC))
	}
}

// NextRun 返回 now 之后最近的一个「交易日 + 执行时刻」。
func (s *DailyScheduler) NextRun(now time.Time) time.Time {
	now = now.In(s.Location)
	hh, _ := time.Parse("15:04", s.At)
	candidate := time.Date(now.Year(), now.Month(), now.Day(), hh.Hour(), hh.Minute(), 0, 0, s.Location)
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	for !s.isTradingDay(candidate) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

func (s *DailyScheduler) isTradingDay(t time.Time) bool {
	if s.Calendar == nil {
		wd := t.Weekday()
		return wd != time.Saturday && wd != time.Sunday
	}
	return s.Calendar.IsTradingDay(t)
}

func (s *DailyScheduler) waitUntil(target time.Time) bool {
	wait := target.Sub(s.nowFn())
	if wait <= 0 {
		select {
		case <-s.ctx.Done():
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
		logger.Infof("DailyScheduler[%s]: ctx done, exit", s.Name)
		return false
	case <-timer.C:
		return true
	}
}
