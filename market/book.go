package market

import (
	"sort"
	"sync"
	"time"
)

// Book 维护 WS 推送的价格->数量映射，供引擎在 REST 之外取盘口快照。
type Book struct {
	mu         sync.RWMutex
	bids       map[float64]float64
	asks       map[float64]float64
	lastUpdate time.Time
}

func NewBook() *Book {
	return &Book{
		bids: make(map[float64]float64),
		asks: make(map[float64]float64),
	}
}

// ApplyDelta 应用增量更新，qty 为 0 表示删除该档。
func (b *Book) ApplyDelta(bidDelta, askDelta map[float64]float64, ts time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for p, q := range bidDelta {
		if q == 0 {
			delete(b.bids, p)
		} else {
			b.bids[p] = q
		}
	}
	for p, q := range askDelta {
		if q == 0 {
			delete(b.asks, p)
		} else {
			b.asks[p] = q
		}
	}
	b.lastUpdate = ts
}

// Reset 清空并整体替换两侧盘口（收到全量快照时使用）。
func (b *Book) Reset(bids, asks map[float64]float64, ts time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bids = make(map[float64]float64, len(bids))
	for p, q := range bids {
		if q > 0 {
			b.bids[p] = q
		}
	}
	b.asks = make(map[float64]float64, len(asks))
	for p, q := range asks {
		if q > 0 {
			b.asks[p] = q
		}
	}
	b.lastUpdate = ts
}

// Snapshot 导出两侧最优的 n 档，结果按最优价在前排序。
func (b *Book) Snapshot(n int) Depth {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bids := make([]Level, 0, len(b.bids))
	for p, q := range b.bids {
		bids = append(bids, Level{Price: p, Size: q})
	}
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })

	asks := make([]Level, 0, len(b.asks))
	for p, q := range b.asks {
		asks = append(asks, Level{Price: p, Size: q})
	}
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })

	if len(bids) > n {
		bids = bids[:n]
	}
	if len(asks) > n {
		asks = asks[:n]
	}
	return Depth{Bids: bids, Asks: asks}
}

// LastUpdate 返回最近一次更新时间，用于判断数据是否过期。
func (b *Book) LastUpdate() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdate
}
