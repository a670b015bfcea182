package strategy

import (
	"math"

	"go.uber.org/zap"

	"backpack-quoter/market"
)

// CompetitiveSpread 计算风险调整后的报价价差：
// 波动率项 + 库存压力项 + 盘口价差项。
func (e *Engine) CompetitiveSpread(q float64, depth market.Depth, dyn market.DynamicParams, st *market.State) float64 {
	timeLeft := math.Max(0.001, e.horizon-e.elapsed)
	vol := st.RealizedVol()

	volComponent := dyn.Gamma * vol * vol * timeLeft
	inventoryPressure := 0.3 * (math.Abs(q) / dyn.QMax) * st.Spread()
	marketSpread := st.Spread() * dyn.SpreadMult
	riskSpread := volComponent + inventoryPressure + marketSpread

	e.logger.Debug("competitive spread",
		zap.Float64("time_left", timeLeft),
		zap.Float64("vol_component", volComponent),
		zap.Float64("inventory_pressure", inventoryPressure),
		zap.Float64("market_spread", marketSpread),
		zap.Float64("risk_spread", riskSpread),
		zap.Float64("venue_spread", depth.Spread()))

	return riskSpread
}
