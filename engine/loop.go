// Package engine 把行情、状态分类、对冲、报价与下单串成单线程循环。
// 一个 tick 内各阶段按固定顺序执行，所有风险状态的修改都被
// tick 串行化，组件内部无需加锁。
package engine

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"backpack-quoter/inventory"
	"backpack-quoter/market"
	"backpack-quoter/metrics"
	"backpack-quoter/order"
	"backpack-quoter/risk"
	"backpack-quoter/strategy"
)

// depthLevels 每侧参与计算的盘口档数。
const depthLevels = 5

// Adapter 引擎直接依赖的交易所能力：盘口快照与对冲减仓。
// 报价类下单经由 order.Controller，不走这里。
type Adapter interface {
	GetDepth(symbol string) (market.Depth, error)
	CloseWithMarket(symbol string, signedQty float64) (string, error)
}

// Config 引擎循环参数。
type Config struct {
	Symbol       string
	TickInterval time.Duration
	// BookMaxAge WS 盘口的最大容忍延迟，超过则回退 REST。
	BookMaxAge  time.Duration
	MinQuantity float64
}

// Deps 引擎的协作组件，全部由上层装配后注入。
type Deps struct {
	Adapter    Adapter
	Book       *market.Book
	State      *market.State
	Classifier *market.Classifier
	Hedger     *risk.Hedger
	Quoter     *strategy.Engine
	Tracker    *inventory.Tracker
	Syncer     *inventory.Syncer
	Controller *order.Controller
	Monitor    *metrics.Monitor
	Clock      risk.Clock
	Logger     *zap.Logger
}

// Loop 单品种报价循环。
type Loop struct {
	cfg  Config
	deps Deps

	params  risk.Parameters
	derived bool
}

func New(cfg Config, params risk.Parameters, deps Deps) *Loop {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.BookMaxAge <= 0 {
		cfg.BookMaxAge = 5 * time.Second
	}
	if deps.Clock == nil {
		deps.Clock = risk.WallClock
	}
	return &Loop{cfg: cfg, deps: deps, params: params}
}

// Params 返回当前生效的风险参数（会话重推导后即冻结值）。
func (l *Loop) Params() risk.Parameters { return l.params }

// Run 阻塞运行直到 ctx 取消；退出前撤掉全部挂单。
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.TickInterval)
	defer ticker.Stop()

	l.deps.Logger.Info("engine loop started",
		zap.String("symbol", l.cfg.Symbol),
		zap.Duration("tick_interval", l.cfg.TickInterval))

	for {
		select {
		case <-ctx.Done():
			l.deps.Controller.CancelAll()
			l.deps.Logger.Info("engine loop stopped")
			return ctx.Err()
		case <-ticker.C:
			l.Tick()
		}
	}
}

// Tick 执行一轮 同步->分类->对冲->报价->提交。
// 单阶段失败记录后降级，不中断进程。
func (l *Loop) Tick() {
	depth, ok := l.fetchDepth()
	if !ok {
		return
	}
	mid := depth.Mid()

	// SYNCING：同步失败保留旧持仓继续报价，下一 tick 重试
	if _, err := l.deps.Syncer.Sync(); err != nil {
		l.deps.Monitor.RecordSyncError()
	}

	// 会话参数只在第一个有效 mid 上重推导一次，之后冻结
	if !l.derived {
		derived, err := l.params.DeriveSession(mid)
		if err != nil {
			l.deps.Logger.Error("session parameter derivation failed", zap.Error(err))
			l.deps.Monitor.RecordTickError("derive")
			return
		}
		l.params = derived
		l.deps.Classifier.Rebase(derived.Gamma, derived.QMax)
		l.deps.Hedger.Rebase(derived.RiskThreshold)
		l.deps.Quoter.Rebase(derived)
		l.derived = true
		l.deps.Logger.Info("session parameters derived",
			zap.Float64("mid", mid),
			zap.Float64("risk_threshold", derived.RiskThreshold),
			zap.Float64("q_max", derived.QMax))
	}

	st := l.deps.State
	st.Push(mid)
	st.SetSpread(depth.Spread())

	// CLASSIFYING
	l.deps.Classifier.Update(st, depth)
	dyn := l.deps.Classifier.Dynamic()
	l.deps.Monitor.UpdateMarket(mid, st.RealizedVol(), st.LiquidityRatio())
	l.deps.Monitor.UpdateRegime(int(l.deps.Classifier.Regime()))

	// HEDGING：每 tick 至多一笔，失败下轮重试
	realQ := l.deps.Tracker.RealQ()
	l.deps.Monitor.UpdatePosition(realQ, l.deps.Tracker.EntryPrice())
	if decision, need := l.deps.Hedger.Evaluate(realQ, dyn.QMax); need {
		l.deps.Monitor.UpdateHedgePenalty(decision.Penalty)
		if _, err := l.deps.Adapter.CloseWithMarket(l.cfg.Symbol, decision.SignedQty); err != nil {
			l.deps.Logger.Warn("hedge order failed", zap.Error(err))
			l.deps.Monitor.RecordTickError("hedging")
		} else {
			l.deps.Monitor.RecordHedge()
			l.deps.Logger.Info("partial hedge executed",
				zap.Float64("signed_qty", decision.SignedQty),
				zap.Float64("hedge_ratio", decision.Ratio))
		}
	}

	// QUOTING
	q := l.deps.Tracker.LocalQ()
	pair := l.deps.Quoter.Quotes(mid, depth, q, dyn, st)
	if pair.Empty() {
		l.deps.Monitor.RecordTickError("quoting")
		l.advance()
		return
	}
	pair = strategy.Sanitize(pair, mid, l.deps.Logger)

	if side := strategy.AdvisorySide(depth, q, dyn.QMax); side != strategy.PreferNone {
		l.deps.Logger.Debug("book pressure side preference", zap.String("side", string(side)))
	}

	sizeUSD := l.deps.Quoter.SizeUSD(q, dyn, st)
	qty := math.Max(sizeUSD/mid, l.cfg.MinQuantity)

	// THROTTLED_SUBMIT
	if !l.deps.Controller.Submit(pair, qty) {
		l.deps.Monitor.RecordThrottledSubmit()
	}
	l.advance()
}

// advance 推进报价引擎的模拟时间。
func (l *Loop) advance() {
	l.deps.Quoter.Advance(l.cfg.TickInterval.Seconds())
}

// fetchDepth 优先用 WS 盘口缓存，陈旧或缺失时回退 REST。
// 两路都失败则放弃本 tick 的报价。
func (l *Loop) fetchDepth() (market.Depth, bool) {
	if l.deps.Book != nil {
		age := l.deps.Clock.Now().Sub(l.deps.Book.LastUpdate())
		if !l.deps.Book.LastUpdate().IsZero() && age <= l.cfg.BookMaxAge {
			if d := l.deps.Book.Snapshot(depthLevels); d.Valid() {
				return d, true
			}
		}
	}

	d, err := l.deps.Adapter.GetDepth(l.cfg.Symbol)
	if err != nil {
		l.deps.Logger.Warn("depth fetch failed, skipping tick", zap.Error(err))
		l.deps.Monitor.RecordTickError("market_data")
		return market.Depth{}, false
	}
	if !d.Valid() {
		l.deps.Logger.Warn("empty depth snapshot, skipping tick")
		l.deps.Monitor.RecordTickError("market_data")
		return market.Depth{}, false
	}
	return d, true
}
