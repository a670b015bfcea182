package engine

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"backpack-quoter/gateway"
	"backpack-quoter/inventory"
	"backpack-quoter/market"
	"backpack-quoter/metrics"
	"backpack-quoter/order"
	"backpack-quoter/risk"
	"backpack-quoter/strategy"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time          { return f.now }
func (f *fakeClock) advance(d time.Duration) { f.now = f.now.Add(d) }

type fakeAdapter struct {
	depth      market.Depth
	depthErr   error
	depthCalls int
	hedges     []float64
	hedgeErr   error
}

func (f *fakeAdapter) GetDepth(symbol string) (market.Depth, error) {
	f.depthCalls++
	if f.depthErr != nil {
		return market.Depth{}, f.depthErr
	}
	return f.depth, nil
}

func (f *fakeAdapter) CloseWithMarket(symbol string, signedQty float64) (string, error) {
	if f.hedgeErr != nil {
		return "", f.hedgeErr
	}
	f.hedges = append(f.hedges, signedQty)
	return "hedge-1", nil
}

type fakeSource struct {
	qty, entry float64
	err        error
}

func (f *fakeSource) Position() (float64, float64, error) { return f.qty, f.entry, f.err }

type fakeVenue struct {
	nextID    int
	live      map[string]gateway.Side
	placed    []string
	cancelled int
}

func (f *fakeVenue) OpenOrders(symbol string) ([]gateway.OpenOrder, error) {
	out := make([]gateway.OpenOrder, 0, len(f.live))
	for id, side := range f.live {
		out = append(out, gateway.OpenOrder{ID: id, Side: side})
	}
	return out, nil
}

func (f *fakeVenue) CancelOrder(symbol, orderID string) error {
	f.cancelled++
	delete(f.live, orderID)
	return nil
}

func (f *fakeVenue) PlaceLimit(symbol string, side gateway.Side, price, qty float64) (string, error) {
	f.nextID++
	id := fmt.Sprintf("ord-%d", f.nextID)
	if f.live == nil {
		f.live = make(map[string]gateway.Side)
	}
	f.live[id] = side
	f.placed = append(f.placed, string(side))
	return id, nil
}

func testDepth(mid float64) market.Depth {
	return market.Depth{
		Bids: []market.Level{{Price: mid - 0.1, Size: 5}, {Price: mid - 0.2, Size: 5}, {Price: mid - 0.3, Size: 5}},
		Asks: []market.Level{{Price: mid + 0.1, Size: 5}, {Price: mid + 0.2, Size: 5}, {Price: mid + 0.3, Size: 5}},
	}
}

type harness struct {
	loop    *Loop
	adapter *fakeAdapter
	source  *fakeSource
	venue   *fakeVenue
	clk     *fakeClock
	state   *market.State
	book    *market.Book
}

func newHarness(t *testing.T, book *market.Book) *harness {
	t.Helper()
	logger := zap.NewNop()
	params := risk.DefaultParameters()

	adapter := &fakeAdapter{depth: testDepth(100)}
	source := &fakeSource{}
	venue := &fakeVenue{}
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}

	state := market.NewState(params.Sigma)
	tracker := &inventory.Tracker{}
	loop := New(
		Config{Symbol: "SOL_USDC_PERP", TickInterval: time.Second, BookMaxAge: 5 * time.Second, MinQuantity: 0.1},
		params,
		Deps{
			Adapter:    adapter,
			Book:       book,
			State:      state,
			Classifier: market.NewClassifier(params.Sigma, params.Gamma, params.QMax, logger),
			Hedger:     risk.NewHedger(params.RiskThreshold, params.Phi),
			Quoter:     strategy.NewEngine(params, logger),
			Tracker:    tracker,
			Syncer: &inventory.Syncer{
				Source:   source,
				Tracker:  tracker,
				Interval: time.Second,
				Clock:    clk,
				Logger:   logger,
			},
			Controller: order.NewController(venue, "SOL_USDC_PERP", clk, logger),
			Monitor:    metrics.New(metrics.DefaultConfig()),
			Clock:      clk,
			Logger:     logger,
		},
	)
	return &harness{loop: loop, adapter: adapter, source: source, venue: venue, clk: clk, state: state, book: book}
}

func TestSessionDerivedOnce(t *testing.T) {
	h := newHarness(t, nil)

	h.loop.Tick()
	p := h.loop.Params()
	// base 100 USD、mid 100 -> threshold 5、QMax 10
	if p.RiskThreshold != 5.0 || p.QMax != 10.0 {
		t.Fatalf("derived params %+v", p)
	}

	// mid 变化不再触发重推导
	h.adapter.depth = testDepth(200)
	h.clk.advance(time.Second)
	h.loop.Tick()
	if got := h.loop.Params().RiskThreshold; got != 5.0 {
		t.Fatalf("threshold re-derived to %v", got)
	}
}

func TestDepthFailureSkipsTick(t *testing.T) {
	h := newHarness(t, nil)
	h.adapter.depthErr = errors.New("transport down")

	h.loop.Tick()
	if len(h.venue.placed) != 0 {
		t.Fatalf("tick must not quote without depth, placed %v", h.venue.placed)
	}
	if h.state.PriceCount() != 0 {
		t.Fatalf("state mutated on failed tick")
	}

	// 恢复后正常报价
	h.adapter.depthErr = nil
	h.loop.Tick()
	if len(h.venue.placed) != 2 {
		t.Fatalf("placed %v after recovery", h.venue.placed)
	}
}

func TestQuotesBothSidesWhenFlat(t *testing.T) {
	h := newHarness(t, nil)

	h.loop.Tick()
	if len(h.venue.placed) != 2 {
		t.Fatalf("placed %v", h.venue.placed)
	}
}

func TestSubmitThrottledAcrossTicks(t *testing.T) {
	h := newHarness(t, nil)

	h.loop.Tick()
	placed := len(h.venue.placed)

	// 时钟不动，第二个 tick 的提交被限速
	h.loop.Tick()
	if len(h.venue.placed) != placed {
		t.Fatalf("throttled tick still placed orders")
	}

	h.clk.advance(200 * time.Millisecond)
	h.loop.Tick()
	if len(h.venue.placed) != placed+2 {
		t.Fatalf("placed %v after interval", h.venue.placed)
	}
}

func TestHedgeExecutedAboveThreshold(t *testing.T) {
	h := newHarness(t, nil)
	h.source.qty = 8.0
	h.source.entry = 100.0

	h.loop.Tick()
	if len(h.adapter.hedges) != 1 {
		t.Fatalf("hedges %v", h.adapter.hedges)
	}
	// threshold 5, QMax 10: excess 0.6, ratio 0.72, size 5.76,多头为正
	got := h.adapter.hedges[0]
	if got < 5.75 || got > 5.77 {
		t.Fatalf("hedge qty = %v, want ~5.76", got)
	}
}

func TestHedgeShortPositionIsNegative(t *testing.T) {
	h := newHarness(t, nil)
	h.source.qty = -8.0
	h.source.entry = 100.0

	h.loop.Tick()
	if len(h.adapter.hedges) != 1 || h.adapter.hedges[0] >= 0 {
		t.Fatalf("hedges %v, want one negative qty", h.adapter.hedges)
	}
}

func TestHedgeFailureDoesNotAbortQuoting(t *testing.T) {
	h := newHarness(t, nil)
	h.source.qty = 8.0
	h.adapter.hedgeErr = errors.New("venue rejected")

	h.loop.Tick()
	if len(h.venue.placed) == 0 {
		t.Fatalf("quoting must continue after hedge failure")
	}
}

func TestFreshBookSkipsRESTDepth(t *testing.T) {
	book := market.NewBook()
	h := newHarness(t, book)

	bids := map[float64]float64{99.9: 5, 99.8: 5, 99.7: 5}
	asks := map[float64]float64{100.1: 5, 100.2: 5, 100.3: 5}
	book.Reset(bids, asks, h.clk.Now())

	h.loop.Tick()
	if h.adapter.depthCalls != 0 {
		t.Fatalf("REST depth called %d times with fresh book", h.adapter.depthCalls)
	}
	if len(h.venue.placed) != 2 {
		t.Fatalf("placed %v", h.venue.placed)
	}
}

func TestStaleBookFallsBackToREST(t *testing.T) {
	book := market.NewBook()
	h := newHarness(t, book)

	bids := map[float64]float64{99.9: 5}
	asks := map[float64]float64{100.1: 5}
	book.Reset(bids, asks, h.clk.Now().Add(-time.Minute))

	h.loop.Tick()
	if h.adapter.depthCalls != 1 {
		t.Fatalf("REST depth calls = %d, want 1", h.adapter.depthCalls)
	}
}
