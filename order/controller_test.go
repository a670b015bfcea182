package order

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"backpack-quoter/gateway"
	"backpack-quoter/strategy"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time          { return f.now }
func (f *fakeClock) advance(d time.Duration) { f.now = f.now.Add(d) }

// fakeVenue 维护交易所视角的活跃订单，列表/撤单/挂单都作用在它上面。
type fakeVenue struct {
	nextID         int
	live           map[string]gateway.Side
	placed         []string
	cancelAttempts map[string]int
	failCancel     map[string]bool
	failSide       gateway.Side
	listErr        error
	listCalls      int
}

func newFakeVenue() *fakeVenue {
	return &fakeVenue{
		live:           make(map[string]gateway.Side),
		cancelAttempts: make(map[string]int),
		failCancel:     make(map[string]bool),
	}
}

func (f *fakeVenue) OpenOrders(symbol string) ([]gateway.OpenOrder, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]gateway.OpenOrder, 0, len(f.live))
	for id, side := range f.live {
		out = append(out, gateway.OpenOrder{ID: id, Side: side})
	}
	return out, nil
}

func (f *fakeVenue) CancelOrder(symbol, orderID string) error {
	f.cancelAttempts[orderID]++
	if f.failCancel[orderID] {
		return errors.New("cancel rejected")
	}
	delete(f.live, orderID)
	return nil
}

func (f *fakeVenue) PlaceLimit(symbol string, side gateway.Side, price, qty float64) (string, error) {
	if side == f.failSide {
		return "", errors.New("place rejected")
	}
	f.nextID++
	id := fmt.Sprintf("ord-%d", f.nextID)
	f.live[id] = side
	f.placed = append(f.placed, fmt.Sprintf("%s@%.2f", side, price))
	return id, nil
}

func both(bid, ask float64) strategy.QuotePair {
	return strategy.QuotePair{Bid: bid, Ask: ask, HasBid: true, HasAsk: true}
}

func TestSubmitPlacesBothSides(t *testing.T) {
	venue := newFakeVenue()
	clk := &fakeClock{now: time.Unix(1000, 0)}
	ctl := NewController(venue, "SOL_USDC_PERP", clk, zap.NewNop())

	if !ctl.Submit(both(99.5, 100.5), 1.0) {
		t.Fatalf("first submit must be permitted")
	}
	if len(venue.placed) != 2 {
		t.Fatalf("placed %v", venue.placed)
	}
	if len(ctl.Resting()) != 2 {
		t.Fatalf("resting %v", ctl.Resting())
	}
}

func TestSubmitThrottled(t *testing.T) {
	venue := newFakeVenue()
	clk := &fakeClock{now: time.Unix(1000, 0)}
	ctl := NewController(venue, "SOL_USDC_PERP", clk, zap.NewNop())

	ctl.Submit(both(99.5, 100.5), 1.0)
	placedBefore := len(venue.placed)
	listBefore := venue.listCalls

	// 间隔内的第二次调用无任何副作用，连列表查询都不发生
	clk.advance(50 * time.Millisecond)
	if ctl.Submit(both(99.6, 100.4), 1.0) {
		t.Fatalf("submit inside interval must be rejected")
	}
	if len(venue.placed) != placedBefore || venue.listCalls != listBefore {
		t.Fatalf("throttled submit mutated venue")
	}

	clk.advance(60 * time.Millisecond)
	if !ctl.Submit(both(99.6, 100.4), 1.0) {
		t.Fatalf("submit after interval must pass")
	}
}

func TestSubmitCancelsVenueOrders(t *testing.T) {
	venue := newFakeVenue()
	clk := &fakeClock{now: time.Unix(1000, 0)}
	ctl := NewController(venue, "SOL_USDC_PERP", clk, zap.NewNop())

	ctl.Submit(both(99.5, 100.5), 1.0)
	clk.advance(200 * time.Millisecond)
	ctl.Submit(both(99.7, 100.3), 1.0)

	// 第二轮撤掉第一轮的两笔，交易所侧只剩新报价
	if venue.cancelAttempts["ord-1"] != 1 || venue.cancelAttempts["ord-2"] != 1 {
		t.Fatalf("cancel attempts %v", venue.cancelAttempts)
	}
	if len(venue.live) != 2 {
		t.Fatalf("venue live %v", venue.live)
	}
	if _, ok := venue.live["ord-1"]; ok {
		t.Fatalf("first cycle order still live")
	}
}

func TestFailedCancelRetriedUntilVenueAccepts(t *testing.T) {
	venue := newFakeVenue()
	clk := &fakeClock{now: time.Unix(1000, 0)}
	ctl := NewController(venue, "SOL_USDC_PERP", clk, zap.NewNop())

	ctl.Submit(both(99.5, 100.5), 1.0)
	venue.failCancel["ord-1"] = true

	// 两个更新周期内撤单一直被拒，订单必须持续重试而不是被遗忘
	for i := 0; i < 2; i++ {
		clk.advance(200 * time.Millisecond)
		ctl.Submit(both(99.6, 100.4), 1.0)
	}
	if venue.cancelAttempts["ord-1"] != 2 {
		t.Fatalf("cancel attempts for ord-1 = %d, want 2", venue.cancelAttempts["ord-1"])
	}
	if _, ok := venue.live["ord-1"]; !ok {
		t.Fatalf("venue lost the order without a successful cancel")
	}

	// 交易所恢复后下一轮撤掉，不再有第一轮残留
	venue.failCancel["ord-1"] = false
	clk.advance(200 * time.Millisecond)
	ctl.Submit(both(99.7, 100.3), 1.0)
	if venue.cancelAttempts["ord-1"] != 3 {
		t.Fatalf("cancel attempts for ord-1 = %d, want 3", venue.cancelAttempts["ord-1"])
	}
	if _, ok := venue.live["ord-1"]; ok {
		t.Fatalf("stuck order still live after venue recovered: %v", venue.live)
	}
	if len(venue.live) != 2 {
		t.Fatalf("venue live %v", venue.live)
	}
}

func TestCancelFailureDoesNotAbortOthers(t *testing.T) {
	venue := newFakeVenue()
	clk := &fakeClock{now: time.Unix(1000, 0)}
	ctl := NewController(venue, "SOL_USDC_PERP", clk, zap.NewNop())

	ctl.Submit(both(99.5, 100.5), 1.0)
	venue.failCancel["ord-1"] = true
	clk.advance(200 * time.Millisecond)
	ctl.Submit(both(99.7, 100.3), 1.0)

	// 失败的那笔不阻塞另一笔的撤单
	if venue.cancelAttempts["ord-2"] != 1 {
		t.Fatalf("cancel attempts %v", venue.cancelAttempts)
	}
	if _, ok := venue.live["ord-2"]; ok {
		t.Fatalf("second order not cancelled")
	}
}

func TestListFailureFallsBackToTrackedOrders(t *testing.T) {
	venue := newFakeVenue()
	clk := &fakeClock{now: time.Unix(1000, 0)}
	ctl := NewController(venue, "SOL_USDC_PERP", clk, zap.NewNop())

	ctl.Submit(both(99.5, 100.5), 1.0)
	venue.listErr = errors.New("list down")
	clk.advance(200 * time.Millisecond)
	ctl.Submit(both(99.7, 100.3), 1.0)

	// 列表失败时退回本地映射，第一轮订单仍然被撤
	if venue.cancelAttempts["ord-1"] != 1 || venue.cancelAttempts["ord-2"] != 1 {
		t.Fatalf("cancel attempts %v", venue.cancelAttempts)
	}
}

func TestFilledOrdersDropFromTracking(t *testing.T) {
	venue := newFakeVenue()
	clk := &fakeClock{now: time.Unix(1000, 0)}
	ctl := NewController(venue, "SOL_USDC_PERP", clk, zap.NewNop())

	ctl.Submit(both(99.5, 100.5), 1.0)
	// 模拟成交：交易所侧订单消失
	delete(venue.live, "ord-1")
	clk.advance(200 * time.Millisecond)
	ctl.Submit(both(99.7, 100.3), 1.0)

	if venue.cancelAttempts["ord-1"] != 0 {
		t.Fatalf("cancelled an already-gone order: %v", venue.cancelAttempts)
	}
	if len(ctl.Resting()) != 2 {
		t.Fatalf("resting %v", ctl.Resting())
	}
}

func TestPlaceFailureOneSideOnly(t *testing.T) {
	venue := newFakeVenue()
	venue.failSide = gateway.SideBid
	clk := &fakeClock{now: time.Unix(1000, 0)}
	ctl := NewController(venue, "SOL_USDC_PERP", clk, zap.NewNop())

	if !ctl.Submit(both(99.5, 100.5), 1.0) {
		t.Fatalf("submit must be permitted")
	}
	resting := ctl.Resting()
	if len(resting) != 1 || resting[0].Side != gateway.SideAsk {
		t.Fatalf("resting %v", resting)
	}
}

type fakeRecorder struct {
	placed  []string
	cancels int
}

func (f *fakeRecorder) RecordQuotePlaced(side string) { f.placed = append(f.placed, side) }
func (f *fakeRecorder) RecordCancel()                 { f.cancels++ }

func TestRecorderCounts(t *testing.T) {
	venue := newFakeVenue()
	clk := &fakeClock{now: time.Unix(1000, 0)}
	ctl := NewController(venue, "SOL_USDC_PERP", clk, zap.NewNop())
	rec := &fakeRecorder{}
	ctl.SetRecorder(rec)

	ctl.Submit(both(99.5, 100.5), 1.0)
	clk.advance(200 * time.Millisecond)
	ctl.Submit(both(99.7, 100.3), 1.0)

	if len(rec.placed) != 4 {
		t.Fatalf("placed records %v", rec.placed)
	}
	if rec.cancels != 2 {
		t.Fatalf("cancel records = %d, want 2", rec.cancels)
	}
}

func TestSubmitSingleSided(t *testing.T) {
	venue := newFakeVenue()
	clk := &fakeClock{now: time.Unix(1000, 0)}
	ctl := NewController(venue, "SOL_USDC_PERP", clk, zap.NewNop())

	pair := strategy.QuotePair{Ask: 100.5, HasAsk: true}
	if !ctl.Submit(pair, 1.0) {
		t.Fatalf("submit must be permitted")
	}
	resting := ctl.Resting()
	if len(resting) != 1 || resting[0].Side != gateway.SideAsk {
		t.Fatalf("resting %v", resting)
	}
}
