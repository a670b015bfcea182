package risk

import "math"

// HedgeDecision 描述一次部分对冲：SignedQty 与持仓同号，
// 表示需要以市价单减掉的数量（正数减多头、负数减空头）。
type HedgeDecision struct {
	SignedQty   float64
	Ratio       float64
	ExcessRatio float64
	// Penalty 名义对冲成本 -phi*q^2*ratio，仅用于指标记账，不影响执行。
	Penalty float64
}

// Hedger 对比真实持仓与风险阈值，给出部分对冲规模。
// 阈值使用会话冻结值，库存上限使用 regime 缩放后的动态值。
type Hedger struct {
	threshold float64
	phi       float64
}

func NewHedger(threshold, phi float64) *Hedger {
	return &Hedger{threshold: threshold, phi: phi}
}

// Threshold 返回当前生效的对冲阈值。
func (h *Hedger) Threshold() float64 { return h.threshold }

// Rebase 在会话参数重推导后更新阈值，仅调用一次。
func (h *Hedger) Rebase(threshold float64) { h.threshold = threshold }

// Evaluate 计算对冲决策；持仓未超阈值时返回 false。
func (h *Hedger) Evaluate(realQ, dynQMax float64) (HedgeDecision, bool) {
	absQ := math.Abs(realQ)
	if absQ <= h.threshold {
		return HedgeDecision{}, false
	}

	excess := (absQ - h.threshold) / (dynQMax - h.threshold)
	ratio := math.Min(1.0, 0.3+0.7*excess)
	size := absQ * ratio

	d := HedgeDecision{
		SignedQty:   size,
		Ratio:       ratio,
		ExcessRatio: excess,
		Penalty:     -h.phi * realQ * realQ * ratio,
	}
	if realQ < 0 {
		d.SignedQty = -size
	}
	return d, true
}
