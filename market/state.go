package market

import "math"

const (
	// priceLogCap mid 价格历史的最大长度。
	priceLogCap = 1000
	// volWindow 计算实时波动率使用的价格数。
	volWindow = 10
	// minReturns 波动率/流动性更新所需的最少收益率样本。
	minReturns = 5
)

// annualizeFactor 年化系数：sqrt(252 * 86400)。
var annualizeFactor = math.Sqrt(252 * 86400)

// State holds the rolling market observations the quoting engine works from:
// mid price history, smoothed realized volatility, the bid/ask liquidity
// ratio and the live top-of-book spread.
type State struct {
	prices []float64

	realizedVol    float64
	liquidityRatio float64
	currentSpread  float64
	midPrice       float64
}

// NewState 创建市场状态；realizedVol 以基础波动率 sigma 作为初值。
func NewState(sigma float64) *State {
	return &State{
		prices:         make([]float64, 0, priceLogCap),
		realizedVol:    sigma,
		liquidityRatio: 1.0,
		currentSpread:  0.01,
	}
}

// Push 记录一个新的 mid 价格，超出容量时按 FIFO 淘汰。
func (s *State) Push(mid float64) {
	s.midPrice = mid
	s.prices = append(s.prices, mid)
	if len(s.prices) > priceLogCap {
		s.prices = s.prices[1:]
	}
}

// SetSpread 刷新当前盘口价差（每个 tick 调用一次）。
func (s *State) SetSpread(spread float64) { s.currentSpread = spread }

// SetLiquidityRatio 直接覆盖流动性比率；常规路径由分类器更新。
func (s *State) SetLiquidityRatio(r float64) { s.liquidityRatio = r }

// recentReturns 返回最近 volWindow 个价格的对数收益率。
func (s *State) recentReturns() []float64 {
	n := len(s.prices)
	if n < 2 {
		return nil
	}
	start := n - volWindow
	if start < 0 {
		start = 0
	}
	window := s.prices[start:]
	returns := make([]float64, 0, len(window)-1)
	for i := 1; i < len(window); i++ {
		if window[i-1] > 0 {
			returns = append(returns, math.Log(window[i]/window[i-1]))
		}
	}
	return returns
}

// PriceCount 返回已记录的价格数量。
func (s *State) PriceCount() int { return len(s.prices) }

// Mid 返回最近一次观察到的中间价。
func (s *State) Mid() float64 { return s.midPrice }

// RealizedVol 返回平滑后的年化波动率。
func (s *State) RealizedVol() float64 { return s.realizedVol }

// LiquidityRatio 返回前三档买卖盘深度之比。
func (s *State) LiquidityRatio() float64 { return s.liquidityRatio }

// Spread 返回最近一次盘口价差。
func (s *State) Spread() float64 { return s.currentSpread }

// stdev 计算总体标准差。
func stdev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	sumSq := 0.0
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)))
}
