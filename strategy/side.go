package strategy

import "backpack-quoter/market"

// SidePreference 订单簿压力给出的方向倾向。目前仅作为
// 观测信号输出到日志与指标，报价分层不消费它。
type SidePreference string

const (
	PreferBid    SidePreference = "bid"
	PreferAsk    SidePreference = "ask"
	PreferNone   SidePreference = "balanced"
	PreferRandom SidePreference = "random"
)

// AdvisorySide 根据前三档加权压力与库存偏斜给出挂单方向倾向。
func AdvisorySide(depth market.Depth, q, dynQMax float64) SidePreference {
	if !depth.Valid() {
		return PreferRandom
	}

	bidPressure := weightedPressure(depth.Bids)
	askPressure := weightedPressure(depth.Asks)
	inventoryBias := -0.1 * (q / dynQMax)

	total := (askPressure - bidPressure) + inventoryBias
	switch {
	case total > 0.1:
		// 卖压较大，倾向挂买单。
		return PreferBid
	case total < -0.1:
		return PreferAsk
	default:
		return PreferNone
	}
}

// weightedPressure 前三档数量按档位衰减加权。
func weightedPressure(levels []market.Level) float64 {
	n := len(levels)
	if n > 3 {
		n = 3
	}
	total := 0.0
	for i := 0; i < n; i++ {
		total += levels[i].Size * (1 - float64(i)*0.1)
	}
	return total
}
