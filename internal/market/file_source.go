package market

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileSource 从本地目录读取供应商格式的 JSON 快照，供离线扫描与回放使用。
// 目录布局：<dir>/bars/<TICKER>.json 与 <dir>/fundamentals/<TICKER>.json。
type FileSource struct {
	dir string
}

func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

func (s *FileSource) Bars(_ context.Context, ticker string, end time.Time, limit int) ([]PriceBar, error) {
	payload, err := os.ReadFile(filepath.Join(s.dir, "bars", ticker+".json"))
	if err != nil {
		return nil, fmt.Errorf("file source: %w", err)
	}
	bars, err := DecodeBarsPayload(payload)
	if err != nil {
		return nil, err
	}
	// 截断到 end 之前的最近 limit 根
	cut := len(bars)
	for cut > 0 && bars[cut-1].Date.After(end) {
		cut--
	}
	bars = bars[:cut]
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

func (s *FileSource) Fundamentals(_ context.Context, ticker string, _ time.Time) (FundamentalSnapshot, error) {
	payload, err := os.ReadFile(filepath.Join(s.dir, "fundamentals", ticker+".json"))
	if err != nil {
		return FundamentalSnapshot{}, fmt.Errorf("file source: %w", err)
	}
	return DecodeFundamentalsPayload(payload)
}

func (s *FileSource) LatestPrice(ctx context.Context, ticker string) (float64, error) {
	bars, err := s.Bars(ctx, ticker, time.Now(), 1)
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, fmt.Errorf("file source: no bars for %s", ticker)
	}
	return bars[len(bars)-1].Close, nil
}

var _ Source = (*FileSource)(nil)
