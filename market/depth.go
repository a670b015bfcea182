package market

// Level 表示订单簿中的一个价格档位。
type Level struct {
	Price float64
	Size  float64
}

// Depth 保存一次快照的前若干档买卖盘；Bids/Asks 均按最优价在前排序。
type Depth struct {
	Bids []Level
	Asks []Level
}

// Valid 判断快照是否同时包含买卖盘。
func (d Depth) Valid() bool {
	return len(d.Bids) > 0 && len(d.Asks) > 0
}

// BestBid 返回最优买价；无买盘时为 0。
func (d Depth) BestBid() float64 {
	if len(d.Bids) == 0 {
		return 0
	}
	return d.Bids[0].Price
}

// BestAsk 返回最优卖价；无卖盘时为 0。
func (d Depth) BestAsk() float64 {
	if len(d.Asks) == 0 {
		return 0
	}
	return d.Asks[0].Price
}

// Mid 返回中间价；任一侧缺失时返回 0。
func (d Depth) Mid() float64 {
	if !d.Valid() {
		return 0
	}
	return (d.BestBid() + d.BestAsk()) / 2
}

// Spread 返回最优卖价减最优买价。
func (d Depth) Spread() float64 {
	if !d.Valid() {
		return 0
	}
	return d.BestAsk() - d.BestBid()
}

// BidDepth 返回前 n 档买盘数量之和。
func (d Depth) BidDepth(n int) float64 {
	return sumDepth(d.Bids, n)
}

// AskDepth 返回前 n 档卖盘数量之和。
func (d Depth) AskDepth(n int) float64 {
	return sumDepth(d.Asks, n)
}

func sumDepth(levels []Level, n int) float64 {
	if n > len(levels) {
		n = len(levels)
	}
	total := 0.0
	for i := 0; i < n; i++ {
		total += levels[i].Size
	}
	return total
}
