package market

import (
	"time"

	"github.com/scmhub/calendar"
)

// TradingCalendar 包装交易所日历，用于调度器跳过休市日和按交易日
// 计数的财报临近窗口。日历加载失败时退化为周一至周五。
type TradingCalendar struct {
	cal      *calendar.Calendar
	fallback bool
}

// NewTradingCalendar 按 MIC 代码加载日历，缺省 xnys（NYSE）。
func NewTradingCalendar(mic string) *TradingCalendar {
	if mic == "" {
		mic = "xnys"
	}
	cal := calendar.GetCalendar(mic)
	if cal == nil {
		cal = calendar.GetCalendar("xnys")
	}
	if cal == nil {
		return &TradingCalendar{fallback: true}
	}
	return &TradingCalendar{cal: cal}
}

func (tc *TradingCalendar) IsTradingDay(date time.Time) bool {
	if tc.fallback {
		wd := date.Weekday()
		return wd != time.Saturday && wd != time.Sunday
	}
	return tc.cal.IsBusinessDay(date)
}

// TradingDaysBetween 统计 (from, to] 之间的交易日数，from 晚于 to 时返回负数。
func (tc *TradingCalendar) TradingDaysBetween(from, to time.Time) int {
	sign := 1
	if to.Before(from) {
		from, to = to, from
		sign = -1
	}
	n := 0
	for d := from.AddDate(0, 0, 1); !d.After(to); d = d.AddDate(0, 0, 1) {
		if tc.IsTradingDay(d) {
			n++
		}
	}
	return n * sign
}

// WithinWindow 判断 asOf 是否落在 event 前 before 个、后 after 个交易日
// 的窗口内。财报排除窗口按交易日计数，跨周末不虚增距离。
func (tc *TradingCalendar) WithinWindow(asOf, event time.Time, before, after int) bool {
	d := tc.TradingDaysBetween(asOf, event)
	return d <= before && d >= -after
}
