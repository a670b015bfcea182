package order

import (
	"time"

	"go.uber.org/zap"

	"backpack-quoter/gateway"
	"backpack-quoter/risk"
	"backpack-quoter/strategy"
)

// minUpdateInterval 两次报价更新之间的最小间隔，
// 既是对交易所限流的背压，也抑制报价抖动。
const minUpdateInterval = 100 * time.Millisecond

// Venue OrderController 依赖的下单能力子集。
type Venue interface {
	OpenOrders(symbol string) ([]gateway.OpenOrder, error)
	CancelOrder(symbol, orderID string) error
	PlaceLimit(symbol string, side gateway.Side, price, qty float64) (string, error)
}

// Recorder 上报挂撤单计数，可选注入。
type Recorder interface {
	RecordQuotePlaced(side string)
	RecordCancel()
}

// RestingOrder 本地跟踪的在场订单。成交不在本周期内对账，
// 只能通过下一次持仓同步间接观察到。
type RestingOrder struct {
	ID           string
	Side         gateway.Side
	Price        float64
	Size         float64
	DesiredPrice float64
	CreatedAt    time.Time
}

// Controller 限速的撤换单控制器：每次允许的更新先撤掉全部
// 本地跟踪的挂单，再按目标报价逐侧重挂。
// 引擎循环单线程驱动，内部不加锁。
type Controller struct {
	venue  Venue
	symbol string
	clock  risk.Clock
	logger *zap.Logger

	resting    map[string]RestingOrder
	lastUpdate time.Time
	recorder   Recorder
}

func NewController(venue Venue, symbol string, clock risk.Clock, logger *zap.Logger) *Controller {
	if clock == nil {
		clock = risk.WallClock
	}
	return &Controller{
		venue:   venue,
		symbol:  symbol,
		clock:   clock,
		logger:  logger,
		resting: make(map[string]RestingOrder),
	}
}

// SetRecorder 注入指标上报。
func (c *Controller) SetRecorder(r Recorder) { c.recorder = r }

// Resting 返回当前跟踪的挂单副本。
func (c *Controller) Resting() []RestingOrder {
	out := make([]RestingOrder, 0, len(c.resting))
	for _, o := range c.resting {
		out = append(out, o)
	}
	return out
}

// Submit 执行一轮撤换单。更新间隔未到时返回 false 且无任何副作用。
// 单笔撤单失败不影响其余撤单，单侧挂单失败不影响另一侧。
func (c *Controller) Submit(pair strategy.QuotePair, size float64) bool {
	now := c.clock.Now()
	if !c.lastUpdate.IsZero() && now.Sub(c.lastUpdate) < minUpdateInterval {
		return false
	}

	c.cancelAll()

	if pair.HasBid {
		c.place(gateway.SideBid, pair.Bid, size, now)
	}
	if pair.HasAsk {
		c.place(gateway.SideAsk, pair.Ask, size, now)
	}

	c.lastUpdate = now
	return true
}

// CancelAll 撤掉全部跟踪挂单，供引擎退出时清场。
func (c *Controller) CancelAll() {
	c.cancelAll()
}

// cancelAll 以交易所侧的活跃订单为准撤单：查询失败时退回本地映射。
// 撤单失败的订单保留在映射里，下一轮会再次出现在交易所列表中重试。
func (c *Controller) cancelAll() {
	ids := make([]string, 0, len(c.resting))
	orders, err := c.venue.OpenOrders(c.symbol)
	if err != nil {
		c.logger.Warn("list open orders failed, cancelling tracked orders only", zap.Error(err))
		for id := range c.resting {
			ids = append(ids, id)
		}
	} else {
		live := make(map[string]bool, len(orders))
		for _, o := range orders {
			live[o.ID] = true
			ids = append(ids, o.ID)
		}
		// 本地跟踪但交易所已不存在的订单（成交或已撤）不再保留
		for id := range c.resting {
			if !live[id] {
				delete(c.resting, id)
			}
		}
	}

	for _, id := range ids {
		if err := c.venue.CancelOrder(c.symbol, id); err != nil {
			c.logger.Warn("cancel failed",
				zap.String("order_id", id),
				zap.Error(err))
			continue
		}
		delete(c.resting, id)
		if c.recorder != nil {
			c.recorder.RecordCancel()
		}
	}
}

func (c *Controller) place(side gateway.Side, price, size float64, now time.Time) {
	id, err := c.venue.PlaceLimit(c.symbol, side, price, size)
	if err != nil {
		c.logger.Warn("place failed",
			zap.String("side", string(side)),
			zap.Float64("price", price),
			zap.Float64("size", size),
			zap.Error(err))
		return
	}
	c.resting[id] = RestingOrder{
		ID:           id,
		Side:         side,
		Price:        price,
		Size:         size,
		DesiredPrice: price,
		CreatedAt:    now,
	}
	if c.recorder != nil {
		c.recorder.RecordQuotePlaced(string(side))
	}
	c.logger.Info("quote placed",
		zap.String("order_id", id),
		zap.String("side", string(side)),
		zap.Float64("price", price),
		zap.Float64("size", size))
}
