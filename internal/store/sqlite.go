package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"quantgate/internal/gate"
	"quantgate/internal/scan"
)

// ErrNotFound 查询无结果。
var ErrNotFound = errors.New("store: not found")

type SqliteStore struct {
	db *gorm.DB
}

func NewSqliteStore(path string) (*SqliteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	return NewSqliteStoreFromDB(db)
}

func NewSqliteStoreFromDB(db *gorm.DB) (*SqliteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db 不能为空")
	}
	if err := db.AutoMigrate(&ScanResultModel{}, &GateEvaluationModel{}, &ExitStateModel{}); err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &SqliteStore{db: db}, nil
}

func (s *SqliteStore) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveScanReport 追加一轮扫描的全部结果。
func (s *SqliteStore) SaveScanReport(ctx context.Context, report scan.CycleReport) error {
	if len(report.Results) == 0 {
		return nil
	}
	now := time.Now().Unix()
	rows := make([]ScanResultModel, 0, len(report.Results))
	for _, r := range report.Results {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode scan result %s: %w", r.Ticker, err)
		}
		rows = append(rows, ScanResultModel{
			ResultID:      r.ID,
			CycleID:       report.ID,
			Ticker:        r.Ticker,
			ScanDate:      DateKey(r.ScanDate),
			PriorityScore: r.PriorityScore,
			Rank:          r.Rank,
			Payload:       payload,
			CreatedAtUnix: now,
		})
	}
	return s.db.WithContext(ctx).Create(&rows).Error
}

// ScanResultsByDate 按扫描日取回排名后的结果。
func (s *SqliteStore) ScanResultsByDate(ctx context.Context, date time.Time) ([]scan.ScanResult, error) {
	var rows []ScanResultModel
	err := s.db.WithContext(ctx).
		Where("scan_date = ?", DateKey(date)).
		Order("rank asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return decodeScanRows(rows)
}

// LatestScanResults 取最近一个扫描日的结果。
func (s *SqliteStore) LatestScanResults(ctx context.Context) ([]scan.ScanResult, error) {
	var latest string
	err := s.db.WithContext(ctx).
		Model(&ScanResultModel{}).
		Select("max(scan_date)").
		Scan(&latest).Error
	if err != nil {
		return nil, err
	}
	if latest == "" {
		return nil, ErrNotFound
	}
	var rows []ScanResultModel
	if err := s.db.WithContext(ctx).
		Where("scan_date = ?", latest).
		Order("rank asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return decodeScanRows(rows)
}

func decodeScanRows(rows []ScanResultModel) ([]scan.ScanResult, error) {
	out := make([]scan.ScanResult, 0, len(rows))
	for _, row := range rows {
		var r scan.ScanResult
		if err := json.Unmarshal(row.Payload, &r); err != nil {
			return nil, fmt.Errorf("decode scan result %s: %w", row.ResultID, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// SaveEvaluation 追加一条闸门评估。
func (s *SqliteStore) SaveEvaluation(ctx context.Context, ev gate.Evaluation) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode evaluation %s: %w", ev.ID, err)
	}
	row := GateEvaluationModel{
		EvaluationID:  ev.ID,
		Ticker:        ev.Ticker,
		AsOfUnix:      ev.AsOf.Unix(),
		Decision:      string(ev.Decision),
		Confidence:    ev.Confidence,
		Payload:       payload,
		CreatedAtUnix: time.Now().Unix(),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// EvaluationsByTicker 按时间倒序返回某标的的历史评估。
func (s *SqliteStore) EvaluationsByTicker(ctx context.Context, ticker string, limit int) ([]gate.Evaluation, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []GateEvaluationModel
	err := s.db.WithContext(ctx).
		Where("ticker = ?", ticker).
		Order("as_of desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]gate.Evaluation, 0, len(rows))
	for _, row := range rows {
		var ev gate.Evaluation
		if err := json.Unmarshal(row.Payload, &ev); err != nil {
			return nil, fmt.Errorf("decode evaluation %s: %w", row.EvaluationID, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

// SaveExitState 实现 exit.StateStore。
func (s *SqliteStore) SaveExitState(ctx context.Context, ticker string, state []byte) error {
	row := ExitStateModel{
		Ticker:        ticker,
		State:         state,
		UpdatedAtUnix: time.Now().Unix(),
	}
	return s.db.WithContext(ctx).
		Where("ticker = ?", ticker).
		Assign(map[string]any{"state": string(state), "updated_at": row.UpdatedAtUnix}).
		FirstOrCreate(&row).Error
}

func (s *SqliteStore) LoadExitStates(ctx context.Context) (map[string][]byte, error) {
	var rows []ExitStateModel
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(rows))
	for _, row := range rows {
		out[row.Ticker] = []byte(row.State)
	}
	return out, nil
}

func (s *SqliteStore) DeleteExitState(ctx context.Context, ticker string) error {
	return s.db.WithContext(ctx).
		Where("ticker = ?", ticker).
		Delete(&ExitStateModel{}).Error
}
