// Package metrics Prometheus 指标收集，独立 registry 便于测试。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor 报价引擎的指标收集器。
type Monitor struct {
	registry *prometheus.Registry

	// 仓位指标
	position     prometheus.Gauge
	entryPrice   prometheus.Gauge
	hedgePenalty prometheus.Gauge

	// 市场指标
	midPrice       prometheus.Gauge
	realizedVol    prometheus.Gauge
	liquidityRatio prometheus.Gauge
	regime         prometheus.Gauge

	// 订单指标
	quotesPlaced     *prometheus.CounterVec
	ordersCanceled   prometheus.Counter
	submitsThrottled prometheus.Counter
	hedgesExecuted   prometheus.Counter

	// 系统指标
	syncErrors   prometheus.Counter
	tickErrors   *prometheus.CounterVec
	wsReconnects prometheus.Counter
}

// Config 指标命名配置。
type Config struct {
	Namespace string
	Subsystem string
}

func DefaultConfig() Config {
	return Config{Namespace: "bpq", Subsystem: "quoter"}
}

func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	opts := func(name, help string) prometheus.GaugeOpts {
		return prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		}
	}
	counterOpts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		}
	}

	return &Monitor{
		registry: reg,

		position:     factory.NewGauge(opts("position", "当前签名持仓")),
		entryPrice:   factory.NewGauge(opts("entry_price", "持仓均价")),
		hedgePenalty: factory.NewGauge(opts("hedge_penalty", "名义对冲成本 -phi*q^2*ratio")),

		midPrice:       factory.NewGauge(opts("mid_price", "盘口中间价")),
		realizedVol:    factory.NewGauge(opts("realized_vol", "年化已实现波动率")),
		liquidityRatio: factory.NewGauge(opts("liquidity_ratio", "买卖盘深度比")),
		regime:         factory.NewGauge(opts("regime", "市场状态 0=normal 1=low_vol 2=high_vol 3=stress")),

		quotesPlaced: factory.NewCounterVec(
			counterOpts("quotes_placed_total", "成功挂出的报价数"), []string{"side"}),
		ordersCanceled:   factory.NewCounter(counterOpts("orders_canceled_total", "撤单总数")),
		submitsThrottled: factory.NewCounter(counterOpts("submits_throttled_total", "被限速拒绝的报价更新数")),
		hedgesExecuted:   factory.NewCounter(counterOpts("hedges_executed_total", "执行的对冲单数")),

		syncErrors:   factory.NewCounter(counterOpts("sync_errors_total", "持仓同步失败数")),
		tickErrors:   factory.NewCounterVec(counterOpts("tick_errors_total", "按阶段统计的 tick 错误数"), []string{"stage"}),
		wsReconnects: factory.NewCounter(counterOpts("ws_reconnects_total", "行情流重连次数")),
	}
}

func (m *Monitor) UpdatePosition(qty, entry float64) {
	m.position.Set(qty)
	m.entryPrice.Set(entry)
}

func (m *Monitor) UpdateHedgePenalty(v float64) { m.hedgePenalty.Set(v) }

func (m *Monitor) UpdateMarket(mid, vol, liq float64) {
	m.midPrice.Set(mid)
	m.realizedVol.Set(vol)
	m.liquidityRatio.Set(liq)
}

func (m *Monitor) UpdateRegime(r int) { m.regime.Set(float64(r)) }

func (m *Monitor) RecordQuotePlaced(side string) { m.quotesPlaced.WithLabelValues(side).Inc() }
func (m *Monitor) RecordCancel()                 { m.ordersCanceled.Inc() }
func (m *Monitor) RecordThrottledSubmit()        { m.submitsThrottled.Inc() }
func (m *Monitor) RecordHedge()                  { m.hedgesExecuted.Inc() }
func (m *Monitor) RecordSyncError()              { m.syncErrors.Inc() }
func (m *Monitor) RecordTickError(stage string)  { m.tickErrors.WithLabelValues(stage).Inc() }
func (m *Monitor) RecordWSReconnect()            { m.wsReconnects.Inc() }

// Handler 暴露该 registry 的 /metrics 处理器。
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve 在独立 goroutine 里启动指标服务。
func (m *Monitor) Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	go func() {
		_ = http.ListenAndServe(addr, mux)
	}()
}
