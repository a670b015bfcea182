package inventory

import "sync"

// Tracker 维护本地与交易所两份签名持仓。两次同步之间本地值
// 对报价决策是权威的；每次成功同步后两者相等。
type Tracker struct {
	mu         sync.RWMutex
	localQ     float64
	realQ      float64
	entryPrice float64
}

// LocalQ 返回本地签名持仓。
func (t *Tracker) LocalQ() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.localQ
}

// RealQ 返回最近一次交易所上报的签名持仓。
func (t *Tracker) RealQ() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.realQ
}

// EntryPrice 返回持仓均价。
func (t *Tracker) EntryPrice() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.entryPrice
}

// SetReal 写入交易所上报的持仓并把本地值镜像到它。
func (t *Tracker) SetReal(qty, entryPrice float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.realQ = qty
	t.localQ = qty
	t.entryPrice = entryPrice
}
