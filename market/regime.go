package market

import (
	"math"

	"go.uber.org/zap"
)

// Regime represents a discrete market-condition classification.
type Regime int

const (
	RegimeNormal Regime = iota
	RegimeLowVol
	RegimeHighVol
	RegimeStress
)

// String returns the regime name.
func (r Regime) String() string {
	switch r {
	case RegimeNormal:
		return "normal"
	case RegimeLowVol:
		return "low_volatility"
	case RegimeHighVol:
		return "high_volatility"
	case RegimeStress:
		return "stress"
	default:
		return "unknown"
	}
}

// Multipliers 定义某一市场状态下的参数缩放表。
type Multipliers struct {
	Gamma     float64
	QMax      float64
	OrderSize float64
	Spread    float64
}

// regimeMultipliers 各状态的固定缩放表。
var regimeMultipliers = map[Regime]Multipliers{
	RegimeNormal:  {Gamma: 1.0, QMax: 2.0, OrderSize: 1.0, Spread: 1.0},
	RegimeHighVol: {Gamma: 1.4, QMax: 1.2, OrderSize: 0.5, Spread: 1.8},
	RegimeLowVol:  {Gamma: 0.7, QMax: 2.6, OrderSize: 1.4, Spread: 0.7},
	RegimeStress:  {Gamma: 2.0, QMax: 0.8, OrderSize: 0.3, Spread: 2.5},
}

// DynamicParams 是状态切换后对下游生效的四个动态参数，
// 也是 regime 影响报价/对冲计算的唯一通道。
type DynamicParams struct {
	Gamma      float64
	QMax       float64
	SizeMult   float64
	SpreadMult float64
}

// Classifier 根据波动率与流动性压力划分市场状态。
type Classifier struct {
	sigma     float64
	baseGamma float64
	baseQMax  float64

	regime Regime
	dyn    DynamicParams

	logger *zap.Logger
}

// NewClassifier 创建分类器。动态参数以基础值起步，价差倍数沿用
// 启动时的保守值 2.0，直到第一次状态切换。
func NewClassifier(sigma, baseGamma, baseQMax float64, logger *zap.Logger) *Classifier {
	return &Classifier{
		sigma:     sigma,
		baseGamma: baseGamma,
		baseQMax:  baseQMax,
		regime:    RegimeNormal,
		dyn: DynamicParams{
			Gamma:      baseGamma,
			QMax:       baseQMax,
			SizeMult:   1.0,
			SpreadMult: 2.0,
		},
		logger: logger,
	}
}

// Rebase 在会话参数一次性重推导后重置基础 gamma/QMax。
// 只在引擎首个有效 tick 调用一次。
func (c *Classifier) Rebase(gamma, qMax float64) {
	c.baseGamma = gamma
	c.baseQMax = qMax
	c.dyn.Gamma = gamma
	c.dyn.QMax = qMax
}

// Regime 返回当前市场状态。
func (c *Classifier) Regime() Regime { return c.regime }

// Dynamic 返回当前动态参数。
func (c *Classifier) Dynamic() DynamicParams { return c.dyn }

// Update consumes the market state and the latest depth snapshot, refreshes
// realized volatility and the liquidity ratio, and reclassifies the regime.
// Returns false when there is not yet enough price history.
func (c *Classifier) Update(st *State, depth Depth) bool {
	if st.PriceCount() < volWindow {
		return false
	}
	returns := st.recentReturns()
	if len(returns) < minReturns {
		return false
	}

	currentVol := stdev(returns) * annualizeFactor
	st.realizedVol = 0.7*st.realizedVol + 0.3*currentVol

	if depth.Valid() {
		askDepth := depth.AskDepth(3)
		if askDepth > 0 {
			st.liquidityRatio = depth.BidDepth(3) / askDepth
		} else {
			st.liquidityRatio = 1.0
		}
	}

	pressure := 0.5
	if st.liquidityRatio > 0 {
		pressure = 0.5 * math.Abs(math.Log(st.liquidityRatio))
	}

	volRatio := st.realizedVol / c.sigma
	signal := 0.7*volRatio + 0.3*pressure

	newRegime := classify(signal)
	if newRegime != c.regime {
		c.logger.Info("market regime changed",
			zap.String("from", c.regime.String()),
			zap.String("to", newRegime.String()),
			zap.Float64("vol_ratio", volRatio),
			zap.Float64("pressure", pressure),
			zap.Float64("liquidity_ratio", st.liquidityRatio))
		c.regime = newRegime
		c.rescale()
	}
	return true
}

// classify 按固定优先级划分状态。
func classify(signal float64) Regime {
	switch {
	case signal > 2.0:
		return RegimeStress
	case signal > 1.5:
		return RegimeHighVol
	case signal < 0.7:
		return RegimeLowVol
	default:
		return RegimeNormal
	}
}

// rescale 按缩放表重算四个动态参数。
func (c *Classifier) rescale() {
	mult := regimeMultipliers[c.regime]
	c.dyn = DynamicParams{
		Gamma:      c.baseGamma * mult.Gamma,
		QMax:       c.baseQMax * mult.QMax,
		SizeMult:   mult.OrderSize,
		SpreadMult: mult.Spread,
	}
}
