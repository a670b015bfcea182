package risk

import (
	"errors"
	"fmt"
)

// Parameters 做市会话的基础风险参数。除首个有效 tick 上的一次性
// 重推导外，启动后不再修改；regime 只通过派生的动态参数影响下游。
type Parameters struct {
	QMax             float64 `yaml:"qMax"`
	RiskThreshold    float64 `yaml:"riskThreshold"`
	BaseOrderSizeUSD float64 `yaml:"baseOrderSizeUSD"`

	Gamma            float64 `yaml:"gamma"`
	Sigma            float64 `yaml:"sigma"`
	Phi              float64 `yaml:"phi"`
	RebateRate       float64 `yaml:"rebateRate"`
	SpreadMultiplier float64 `yaml:"spreadMultiplier"`
}

// DefaultParameters 返回保守默认值；QMax/RiskThreshold 会在会话开始时
// 根据首个 mid 价重推导，这里只是占位。
func DefaultParameters() Parameters {
	return Parameters{
		QMax:             0.5,
		RiskThreshold:    0.3,
		BaseOrderSizeUSD: 100,
		Gamma:            0.10,
		Sigma:            0.30,
		Phi:              0.005,
		RebateRate:       1.0 / 10000,
		SpreadMultiplier: 1.5,
	}
}

// Validate 检查所有字段严格为正且阈值低于库存上限。
func (p Parameters) Validate() error {
	fields := map[string]float64{
		"qMax":             p.QMax,
		"riskThreshold":    p.RiskThreshold,
		"baseOrderSizeUSD": p.BaseOrderSizeUSD,
		"gamma":            p.Gamma,
		"sigma":            p.Sigma,
		"phi":              p.Phi,
		"rebateRate":       p.RebateRate,
		"spreadMultiplier": p.SpreadMultiplier,
	}
	for name, v := range fields {
		if v <= 0 {
			return fmt.Errorf("risk parameter %s must be > 0, got %f", name, v)
		}
	}
	if p.RiskThreshold >= p.QMax {
		return fmt.Errorf("riskThreshold %f must be < qMax %f", p.RiskThreshold, p.QMax)
	}
	return nil
}

// DeriveSession 根据首个有效 mid 价重推导库存阈值并冻结：
// riskThreshold = 5*baseOrderSizeUSD/mid，qMax = 2*riskThreshold。
// 过小的基础下单额会被提升到 50 USD，避免阈值贴着交易所最小量。
func (p Parameters) DeriveSession(mid float64) (Parameters, error) {
	if mid <= 0 {
		return p, errors.New("derive session params: mid price must be > 0")
	}
	out := p
	if out.BaseOrderSizeUSD <= 10 {
		out.BaseOrderSizeUSD = 50
	}
	out.RiskThreshold = 5 * out.BaseOrderSizeUSD / mid
	out.QMax = 2 * out.RiskThreshold
	return out, out.Validate()
}
