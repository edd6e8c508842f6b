// Package store 持久化扫描结果、闸门评估与退出状态。
// 扫描与评估按时间追加，旧记录永不回写。
package store

import (
	"time"

	"gorm.io/datatypes"
)

// ScanResultModel 一条扫描结果。Payload 存完整 ScanResult JSON，
// 列出来的字段只为查询与排序。
type ScanResultModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	ResultID      string         `gorm:"column:result_id;uniqueIndex"`
	CycleID       string         `gorm:"column:cycle_id;index"`
	Ticker        string         `gorm:"column:ticker;index:idx_scan_ticker_date"`
	ScanDate      string         `gorm:"column:scan_date;index:idx_scan_ticker_date"`
	PriorityScore float64        `gorm:"column:priority_score"`
	Rank          int            `gorm:"column:rank"`
	Payload       datatypes.JSON `gorm:"column:payload;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (ScanResultModel) TableName() string { return "scan_results" }

// GateEvaluationModel 一条四闸门评估记录。
type GateEvaluationModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	EvaluationID  string         `gorm:"column:evaluation_id;uniqueIndex"`
	Ticker        string         `gorm:"column:ticker;index"`
	AsOfUnix      int64          `gorm:"column:as_of"`
	Decision      string         `gorm:"column:decision"`
	Confidence    float64        `gorm:"column:confidence"`
	Payload       datatypes.JSON `gorm:"column:payload;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (GateEvaluationModel) TableName() string { return "gate_evaluations" }

// ExitStateModel 开仓中的退出状态，每个持仓一行，平仓即删。
type ExitStateModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	Ticker        string         `gorm:"column:ticker;uniqueIndex"`
	State         datatypes.JSON `gorm:"column:state;type:TEXT"`
	UpdatedAtUnix int64          `gorm:"column:updated_at"`
}

func (ExitStateModel) TableName() string { return "exit_states" }

// DateKey 统一扫描日期的存储格式。
func DateKey(t time.Time) string { return t.Format("2006-01-02") }
