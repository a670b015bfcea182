package strategy

import (
	"math"

	"go.uber.org/zap"

	"backpack-quoter/market"
)

// SizeUSD 计算动态下单名义（USD）：基础名义经库存惩罚、波动率
// 抑制与流动性调整三次缩放。换算为合约数量由边界层负责。
func (e *Engine) SizeUSD(q float64, dyn market.DynamicParams, st *market.State) float64 {
	baseUSD := e.params.BaseOrderSizeUSD * dyn.SizeMult

	inventoryPenalty := 1.0 - 0.4*(math.Abs(q)/dyn.QMax)
	volAdjust := 1.0 / (1.0 + 0.5*(st.RealizedVol()/e.params.Sigma-1.0))
	liquidityAdjust := math.Min(1.5, math.Max(0.3, st.LiquidityRatio()))

	sizeUSD := baseUSD * inventoryPenalty * volAdjust * liquidityAdjust

	e.logger.Debug("dynamic order size",
		zap.Float64("base_usd", baseUSD),
		zap.Float64("inventory_penalty", inventoryPenalty),
		zap.Float64("vol_adjustment", volAdjust),
		zap.Float64("liquidity_adjustment", liquidityAdjust),
		zap.Float64("size_usd", sizeUSD))

	return sizeUSD
}
