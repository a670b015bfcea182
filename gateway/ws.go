package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"backpack-quoter/market"
)

// BackpackWSEndpoint Backpack 行情 WS 地址。
const BackpackWSEndpoint = "wss://ws.backpack.exchange"

// reconnectDelay 断线重连的退避间隔。
const reconnectDelay = 3 * time.Second

// DepthSnapshotter 提供全量盘口快照，用于在增量流起步前播种缓存。
type DepthSnapshotter interface {
	GetDepth(symbol string) (market.Depth, error)
}

// DepthStream 订阅单个交易对的增量深度并维护本地盘口缓存。
// 每次连上先用 REST 快照播种全量盘口，增量只会更新有变动的档位，
// 不播种会漏掉整个会话都不跳动的静默档。断线后自动重连，
// 重连前清空缓存，避免陈旧档位残留。
type DepthStream struct {
	Endpoint string
	Symbol   string
	Book     *market.Book
	Snapshot DepthSnapshotter
	Dialer   *websocket.Dialer
	Logger   *zap.Logger

	// OnConnect / OnDisconnect 供引擎切换数据源（WS 与 REST 兜底）。
	OnConnect    func()
	OnDisconnect func(err error)
}

func NewDepthStream(symbol string, book *market.Book, snap DepthSnapshotter, logger *zap.Logger) *DepthStream {
	return &DepthStream{
		Endpoint: BackpackWSEndpoint,
		Symbol:   symbol,
		Book:     book,
		Snapshot: snap,
		Dialer:   websocket.DefaultDialer,
		Logger:   logger,
	}
}

// Run 阻塞运行直到 ctx 取消；内部处理重连。
func (d *DepthStream) Run(ctx context.Context) error {
	if d.Symbol == "" {
		return fmt.Errorf("%w: symbol required", ErrConfiguration)
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := d.streamOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.Book.Reset(nil, nil, time.Time{})
		if d.OnDisconnect != nil {
			d.OnDisconnect(err)
		}
		d.Logger.Warn("depth stream disconnected, retrying",
			zap.String("symbol", d.Symbol),
			zap.Duration("delay", reconnectDelay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (d *DepthStream) streamOnce(ctx context.Context) error {
	conn, _, err := d.Dialer.DialContext(ctx, d.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", d.Endpoint, err)
	}
	defer conn.Close()

	sub := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": []string{"depth." + d.Symbol},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	d.Logger.Info("depth stream connected", zap.String("symbol", d.Symbol))
	d.seed()
	if d.OnConnect != nil {
		d.OnConnect()
	}

	// ctx 取消时关闭连接，打断阻塞中的 ReadMessage。
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		d.handleMessage(message)
	}
}

// seed 用 REST 快照整体替换盘口。失败只记录：增量仍会陆续填充，
// 引擎侧的陈旧判定会在此期间回退 REST。
func (d *DepthStream) seed() {
	if d.Snapshot == nil {
		return
	}
	depth, err := d.Snapshot.GetDepth(d.Symbol)
	if err != nil {
		d.Logger.Warn("depth snapshot seed failed", zap.Error(err))
		return
	}
	d.Book.Reset(levelsToMap(depth.Bids), levelsToMap(depth.Asks), time.Now())
	d.Logger.Info("order book seeded",
		zap.Int("bids", len(depth.Bids)),
		zap.Int("asks", len(depth.Asks)))
}

func levelsToMap(levels []market.Level) map[float64]float64 {
	out := make(map[float64]float64, len(levels))
	for _, l := range levels {
		out[l.Price] = l.Size
	}
	return out
}

// depthEvent Backpack 增量深度消息；数量为 0 表示删档。
type depthEvent struct {
	Data struct {
		EventType string     `json:"e"`
		Bids      [][]string `json:"b"`
		Asks      [][]string `json:"a"`
	} `json:"data"`
}

func (d *DepthStream) handleMessage(raw []byte) {
	var ev depthEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		d.Logger.Debug("skip non-json ws message", zap.Error(err))
		return
	}
	if ev.Data.EventType != "depth" {
		return
	}
	bids, err := levelMap(ev.Data.Bids)
	if err != nil {
		d.Logger.Warn("bad depth bids", zap.Error(err))
		return
	}
	asks, err := levelMap(ev.Data.Asks)
	if err != nil {
		d.Logger.Warn("bad depth asks", zap.Error(err))
		return
	}
	d.Book.ApplyDelta(bids, asks, time.Now())
}

// levelMap 把 [["price","qty"],...] 转成增量映射，保留 qty=0 的删档项。
func levelMap(raw [][]string) (map[float64]float64, error) {
	levels, err := parseLevels(raw)
	if err != nil {
		return nil, err
	}
	out := make(map[float64]float64, len(levels))
	for _, l := range levels {
		out[l.Price] = l.Size
	}
	return out, nil
}
