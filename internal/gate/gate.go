// Package gate 实现四闸门决策状态机：基本面、技术面、风险、时机四个
// 独立打分的闸门，按动态阈值判 pass/fail，合成最终 BUY/WAIT/HOLD/SELL。
package gate

import (
	"time"

	"github.com/google/uuid"
)

type Name string

const (
	GateFundamental Name = "fundamental"
	GateTechnical   Name = "technical"
	GateRisk        Name = "risk"
	GateTiming      Name = "timing"
)

type Decision string

const (
	DecisionBuy  Decision = "BUY"
	DecisionWait Decision = "WAIT"
	DecisionHold Decision = "HOLD"
	DecisionSell Decision = "SELL"
)

// Result 单个闸门的评分结果。
type Result struct {
	Name          Name    `json:"name"`
	Score         float64 `json:"score"`
	Passed        bool    `json:"passed"`
	ThresholdUsed float64 `json:"threshold_used"`
	Reasoning     string  `json:"reasoning"`
}

// Evaluation 一次完整的四闸门评估。创建后不可变：后续评估追加新记录，
// 永远不回写旧记录。
type Evaluation struct {
	ID         string    `json:"id"`
	Ticker     string    `json:"ticker"`
	AsOf       time.Time `json:"as_of"`
	Gates      []Result  `json:"gates"`
	Confidence float64   `json:"confidence"`
	Decision   Decision  `json:"decision"`
	Overridden bool      `json:"overridden,omitempty"`
	Reasoning  string    `json:"reasoning"`
}

// Gate 按名字取闸门结果，不存在时返回零值。
func (e Evaluation) Gate(name Name) Result {
	for _, g := range e.Gates {
		if g.Name == name {
			return g
		}
	}
	return Result{Name: name}
}

func newEvaluationID() string {
	return uuid.NewString()
}

// OverridePolicy 极端 RSI 超买覆盖与 buy-the-dip 信号的优先级策略。
// 源需求对两者先后描述不一致，这里做成可配置项而非写死。
type OverridePolicy string

const (
	// OverrideDip 默认策略：存在 buy-the-dip 信号时豁免极端超买覆盖。
	OverrideDip OverridePolicy = "dip_override"
	// OverrideAlways 极端超买一律覆盖，忽略 dip 信号。
	OverrideAlways OverridePolicy = "always"
	// OverrideOff 关闭极端超买覆盖。
	OverrideOff OverridePolicy = "off"
)
