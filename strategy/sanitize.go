package strategy

import (
	"math"

	"go.uber.org/zap"
)

// 报价合法区间与强制修正系数。
const (
	bandFloor    = 0.8
	bandCeiling  = 1.2
	forcedBidPct = 0.999
	forcedAskPct = 1.001
	minSpreadPct = 0.001
)

// Sanitize 是报价出门前的最后一道闸：把候选价格压回
// [0.8s, 1.2s] 区间、修正穿越中间价的报价并保证最小价差。
// 对已合法的报价是恒等变换（幂等）。
func Sanitize(p QuotePair, s float64, logger *zap.Logger) QuotePair {
	out := p

	if out.HasBid {
		switch {
		case out.Bid >= s:
			logger.Warn("bid above mid, forced down",
				zap.Float64("bid", out.Bid), zap.Float64("mid", s))
			out.Bid = s * forcedBidPct
		case out.Bid < s*bandFloor:
			logger.Warn("bid below valid band, clamped",
				zap.Float64("bid", out.Bid), zap.Float64("floor", s*bandFloor))
			out.Bid = s * bandFloor
		}
	}

	if out.HasAsk {
		switch {
		case out.Ask <= s:
			logger.Warn("ask below mid, forced up",
				zap.Float64("ask", out.Ask), zap.Float64("mid", s))
			out.Ask = s * forcedAskPct
		case out.Ask > s*bandCeiling:
			logger.Warn("ask above valid band, clamped",
				zap.Float64("ask", out.Ask), zap.Float64("ceiling", s*bandCeiling))
			out.Ask = s * bandCeiling
		}
	}

	if out.HasBid && out.HasAsk && out.Ask <= out.Bid {
		logger.Error("inverted quotes after clamping",
			zap.Float64("bid", out.Bid), zap.Float64("ask", out.Ask))
		out.Ask = math.Max(out.Ask, out.Bid+s*minSpreadPct)
	}

	return out
}
