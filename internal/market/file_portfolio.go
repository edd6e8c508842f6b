package market

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
)

// FilePortfolio 从 <dir>/holdings.json 读取现有持仓。
// 格式：{"holdings":[{"ticker":"AAA","sector":"technology","weight_pct":5,"entry_price":98.5}]}。
type FilePortfolio struct {
	dir string
}

func NewFilePortfolio(dir string) *FilePortfolio {
	return &FilePortfolio{dir: dir}
}

func (p *FilePortfolio) Holdings(_ context.Context) ([]Holding, error) {
	path := filepath.Join(p.dir, "holdings.json")
	payload, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // 没有持仓文件等同于空组合
		}
		return nil, fmt.Errorf("portfolio: %w", err)
	}
	if !gjson.ValidBytes(payload) {
		return nil, fmt.Errorf("portfolio: invalid json in %s", path)
	}
	var out []Holding
	for _, h := range gjson.GetBytes(payload, "holdings").Array() {
		out = append(out, Holding{
			Ticker:     h.Get("ticker").String(),
			Sector:     h.Get("sector").String(),
			WeightPct:  h.Get("weight_pct").Float(),
			EntryPrice: h.Get("entry_price").Float(),
		})
	}
	return out, nil
}

var _ PortfolioStore = (*FilePortfolio)(nil)
