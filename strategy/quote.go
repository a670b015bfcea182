package strategy

import (
	"math"

	"go.uber.org/zap"

	"backpack-quoter/market"
	"backpack-quoter/risk"
)

// QuotePair 一对候选报价；任一侧都可能缺席（极端库存下只报单边）。
type QuotePair struct {
	Bid    float64
	Ask    float64
	HasBid bool
	HasAsk bool
}

// Empty 判断两侧是否都缺席。
func (p QuotePair) Empty() bool { return !p.HasBid && !p.HasAsk }

// 库存比例分层阈值。
const (
	tierCritical = 0.9
	tierHigh     = 0.7
	tierModerate = 0.4
)

// Engine 库存感知报价引擎：根据动态参数、库存与盘口快照
// 产出价差、下单规模与两侧候选价格。
type Engine struct {
	params risk.Parameters

	// horizon/elapsed 是 Avellaneda 型价差项中的模拟时间；elapsed
	// 每个 tick 由主循环推进，超过 horizon 后时间项退化为下限。
	horizon float64
	elapsed float64

	logger *zap.Logger
}

func NewEngine(params risk.Parameters, logger *zap.Logger) *Engine {
	return &Engine{
		params:  params,
		horizon: 1.0,
		logger:  logger,
	}
}

// Rebase 在会话参数一次性重推导后替换基础参数。
func (e *Engine) Rebase(params risk.Parameters) { e.params = params }

// Advance 推进模拟时间，由主循环在每个 tick 末尾调用。
func (e *Engine) Advance(dt float64) { e.elapsed += dt }

// Quotes 根据库存状态分层生成两侧候选报价。
// 盘口快照不完整时返回空报价并记录日志，不向上抛错。
func (e *Engine) Quotes(s float64, depth market.Depth, q float64, dyn market.DynamicParams, st *market.State) QuotePair {
	if !depth.Valid() {
		e.logger.Warn("order book snapshot incomplete, skip quoting",
			zap.Int("bids", len(depth.Bids)),
			zap.Int("asks", len(depth.Asks)))
		return QuotePair{}
	}

	ratio := math.Abs(q) / dyn.QMax
	spread := e.CompetitiveSpread(q, depth, dyn, st)
	half := spread / 2

	bestBid := depth.BestBid()
	bestAsk := depth.BestAsk()

	e.logger.Debug("quote basis",
		zap.Float64("mid", s),
		zap.Float64("inventory", q),
		zap.Float64("inventory_ratio", ratio),
		zap.Float64("spread", spread),
		zap.Float64("best_bid", bestBid),
		zap.Float64("best_ask", bestAsk))

	var p QuotePair
	switch {
	case ratio >= tierCritical:
		// 极端库存：只报平仓侧，价格贴着对手价抢成交。
		if q > 0 {
			p.Ask = bestBid * (1 + e.params.RebateRate)
			p.HasAsk = true
			e.logger.Warn("critical long inventory, emergency ask",
				zap.Float64("ask", p.Ask))
		} else {
			p.Bid = bestAsk * (1 - e.params.RebateRate)
			p.HasBid = true
			e.logger.Warn("critical short inventory, emergency bid",
				zap.Float64("bid", p.Bid))
		}
	case ratio >= tierHigh:
		// 高库存：平仓侧贴近、累积侧远离。
		if q > 0 {
			p.Ask, p.HasAsk = s+half*0.5, true
			p.Bid, p.HasBid = s-half*1.8, true
		} else {
			p.Bid, p.HasBid = s-half*0.5, true
			p.Ask, p.HasAsk = s+half*1.8, true
		}
	case ratio >= tierModerate:
		// 中等库存：温和倾斜。
		if q > 0 {
			p.Bid, p.HasBid = s-half*1.3, true
			p.Ask, p.HasAsk = s+half*0.9, true
		} else {
			p.Bid, p.HasBid = s-half*0.9, true
			p.Ask, p.HasAsk = s+half*1.3, true
		}
	default:
		// 低库存：对称做市。
		p.Bid, p.HasBid = s-half, true
		p.Ask, p.HasAsk = s+half, true
	}
	return p
}
