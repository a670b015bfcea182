package gateway

import "errors"

// 错误分级：行情错误让当前 tick 放弃报价；调用错误记录后跳过该操作；
// 配置错误在启动阶段致命。
var (
	ErrMarketData    = errors.New("market data unavailable")
	ErrAdapterCall   = errors.New("adapter call failed")
	ErrConfiguration = errors.New("invalid gateway configuration")
)
