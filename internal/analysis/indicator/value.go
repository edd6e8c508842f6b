package indicator

// Value 区分"不可用"与数值 0：回看长度不足时 Valid=false，
// 评分端看到不可用信号时按中性 50 处理，绝不按 0 惩罚。
type Value struct {
	V     float64 `json:"v"`
	Valid bool    `json:"valid"`
}

func valid(v float64) Value { return Value{V: v, Valid: true} }
func invalid() Value        { return Value{} }
func (v Value) Or(def float64) float64 {
	if v.Valid {
		return v.V
	}
	return def
}
