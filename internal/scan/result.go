package scan

import (
	"sort"
	"time"

	"quantgate/internal/analysis/alert"
	"quantgate/internal/analysis/entry"
	"quantgate/internal/analysis/indicator"
	"quantgate/internal/market"
)

// ScanResult 单个标的在一次扫描中的完整产出。写入存储后不可变；
// 重新扫描产生新记录而不是覆盖旧记录。
type ScanResult struct {
	ID            string             `json:"id"`
	Ticker        string             `json:"ticker"`
	ScanDate      time.Time          `json:"scan_date"`
	PriorityScore float64            `json:"priority_score"`
	Rank          int                `json:"rank"`
	Scores        SubScores          `json:"scores"`
	Alerts        []alert.Alert      `json:"alerts"`
	Snapshot      indicator.Snapshot `json:"snapshot"`
	Entry         entry.Advice       `json:"entry"`
	Advisories    []market.Advisory  `json:"advisories,omitempty"`
}

// Rank 对结果排序并写入名次。排序完全确定:
// 合成分降序，平分时量比降序，再平时按代码字典序。
func Rank(results []ScanResult) {
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.PriorityScore != b.PriorityScore {
			return a.PriorityScore > b.PriorityScore
		}
		av := a.Snapshot.VolumeRatio.Or(0)
		bv := b.Snapshot.VolumeRatio.Or(0)
		if av != bv {
			return av > bv
		}
		return a.Ticker < b.Ticker
	})
	for i := range results {
		results[i].Rank = i + 1
	}
}
