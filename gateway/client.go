package gateway

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"backpack-quoter/market"
)

// Side Backpack 的订单方向。
type Side string

const (
	SideBid Side = "Bid"
	SideAsk Side = "Ask"
)

// depthLevels 每侧保留的盘口档数。
const depthLevels = 5

// InstrumentMeta 交易对的精度约束，来自 markets 接口。
type InstrumentMeta struct {
	Symbol      string
	TickSize    float64
	MinQuantity float64
}

// OpenOrder 交易所侧的活跃订单。
type OpenOrder struct {
	ID               string
	Side             Side
	Price            float64
	Quantity         float64
	ExecutedQuantity float64
}

// Fill 一笔历史成交。
type Fill struct {
	Price    float64
	Quantity float64
	IsMaker  bool
}

// Client 是 Backpack REST 客户端；HTTPClient 可注入 httptest，
// 默认不发起真实网络调用。
type Client struct {
	BaseURL      string
	HTTPClient   *http.Client
	Limiter      RateLimiter
	WindowMillis int
	Logger       *zap.Logger

	apiKey     string
	signingKey ed25519.PrivateKey

	meta InstrumentMeta
}

// NewClient 校验并解码密钥；缺失凭证属于配置错误，启动即失败。
func NewClient(baseURL, apiKey, apiSecret string, httpClient *http.Client, limiter RateLimiter, logger *zap.Logger) (*Client, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, fmt.Errorf("%w: api key/secret required", ErrConfiguration)
	}
	key, err := decodeSigningKey(apiSecret)
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = NewDefaultHTTPClient()
	}
	if limiter == nil {
		limiter = NopLimiter
	}
	return &Client{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		HTTPClient:   httpClient,
		Limiter:      limiter,
		WindowMillis: 5000,
		Logger:       logger,
		apiKey:       apiKey,
		signingKey:   key,
	}, nil
}

// NewDefaultHTTPClient 提供一个带超时的 http.Client。
func NewDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

// SetInstrument 记录交易对精度，此后所有下单的价格/数量都按它对齐。
func (c *Client) SetInstrument(meta InstrumentMeta) { c.meta = meta }

// Instrument 返回当前交易对精度。
func (c *Client) Instrument() InstrumentMeta { return c.meta }

// GetMarket 解析 ticker 对应的 USDC 交易对元信息。
// tick size 为零视为配置错误（宁可启动失败也不默默兜底）。
func (c *Client) GetMarket(ticker, marketType string) (InstrumentMeta, error) {
	raw, err := c.publicGet("/api/v1/markets", nil)
	if err != nil {
		return InstrumentMeta{}, err
	}

	var markets []struct {
		Symbol      string `json:"symbol"`
		BaseSymbol  string `json:"baseSymbol"`
		QuoteSymbol string `json:"quoteSymbol"`
		MarketType  string `json:"marketType"`
		Filters     struct {
			Price struct {
				TickSize string `json:"tickSize"`
			} `json:"price"`
			Quantity struct {
				MinQuantity string `json:"minQuantity"`
			} `json:"quantity"`
		} `json:"filters"`
	}
	if err := json.Unmarshal(raw, &markets); err != nil {
		return InstrumentMeta{}, fmt.Errorf("%w: parse markets: %v", ErrAdapterCall, err)
	}

	for _, m := range markets {
		if m.MarketType != marketType || m.BaseSymbol != ticker || m.QuoteSymbol != "USDC" {
			continue
		}
		tick, _ := strconv.ParseFloat(m.Filters.Price.TickSize, 64)
		minQty, _ := strconv.ParseFloat(m.Filters.Quantity.MinQuantity, 64)
		if tick <= 0 {
			return InstrumentMeta{}, fmt.Errorf("%w: zero tick size for %s", ErrConfiguration, m.Symbol)
		}
		meta := InstrumentMeta{Symbol: m.Symbol, TickSize: tick, MinQuantity: minQty}
		c.Logger.Info("resolved instrument",
			zap.String("symbol", meta.Symbol),
			zap.Float64("tick_size", meta.TickSize),
			zap.Float64("min_quantity", meta.MinQuantity))
		return meta, nil
	}
	return InstrumentMeta{}, fmt.Errorf("%w: no %s market for ticker %s", ErrConfiguration, marketType, ticker)
}

// GetDepth 拉取盘口快照并转成最优价在前的结构。
// 任何解析失败都归为行情错误，调用方放弃本 tick 的报价。
func (c *Client) GetDepth(symbol string) (market.Depth, error) {
	raw, err := c.publicGet("/api/v1/depth", url.Values{"symbol": {symbol}})
	if err != nil {
		return market.Depth{}, fmt.Errorf("%w: %v", ErrMarketData, err)
	}

	var payload struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return market.Depth{}, fmt.Errorf("%w: parse depth: %v", ErrMarketData, err)
	}

	bids, err := parseLevels(payload.Bids)
	if err != nil {
		return market.Depth{}, fmt.Errorf("%w: bids: %v", ErrMarketData, err)
	}
	asks, err := parseLevels(payload.Asks)
	if err != nil {
		return market.Depth{}, fmt.Errorf("%w: asks: %v", ErrMarketData, err)
	}

	// Backpack 两侧都按价格升序返回：买盘最优在末尾。
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })
	if len(bids) > depthLevels {
		bids = bids[:depthLevels]
	}
	if len(asks) > depthLevels {
		asks = asks[:depthLevels]
	}
	return market.Depth{Bids: bids, Asks: asks}, nil
}

func parseLevels(raw [][]string) ([]market.Level, error) {
	levels := make([]market.Level, 0, len(raw))
	for _, entry := range raw {
		if len(entry) < 2 {
			return nil, fmt.Errorf("level needs price and size, got %v", entry)
		}
		price, err := strconv.ParseFloat(entry[0], 64)
		if err != nil {
			return nil, fmt.Errorf("bad price %q", entry[0])
		}
		size, err := strconv.ParseFloat(entry[1], 64)
		if err != nil {
			return nil, fmt.Errorf("bad size %q", entry[1])
		}
		levels = append(levels, market.Level{Price: price, Size: size})
	}
	return levels, nil
}

// Position 返回指定交易对的签名持仓与均价；无持仓时为 0。
func (c *Client) Position(symbol string) (float64, float64, error) {
	raw, err := c.signedDo(http.MethodGet, "/api/v1/position", "positionQuery", url.Values{})
	if err != nil {
		return 0, 0, err
	}
	var positions []struct {
		Symbol      string `json:"symbol"`
		NetQuantity string `json:"netQuantity"`
		EntryPrice  string `json:"entryPrice"`
	}
	if err := json.Unmarshal(raw, &positions); err != nil {
		return 0, 0, fmt.Errorf("%w: parse positions: %v", ErrAdapterCall, err)
	}
	for _, p := range positions {
		if p.Symbol != symbol {
			continue
		}
		qty, _ := strconv.ParseFloat(p.NetQuantity, 64)
		entry, _ := strconv.ParseFloat(p.EntryPrice, 64)
		return qty, math.Abs(entry), nil
	}
	return 0, 0, nil
}

// OpenOrders 列出交易所侧的活跃订单。
func (c *Client) OpenOrders(symbol string) ([]OpenOrder, error) {
	raw, err := c.signedDo(http.MethodGet, "/api/v1/orders", "orderQueryAll", url.Values{"symbol": {symbol}})
	if err != nil {
		return nil, err
	}
	var orders []struct {
		ID               string `json:"id"`
		Side             string `json:"side"`
		Price            string `json:"price"`
		Quantity         string `json:"quantity"`
		ExecutedQuantity string `json:"executedQuantity"`
	}
	if err := json.Unmarshal(raw, &orders); err != nil {
		return nil, fmt.Errorf("%w: parse open orders: %v", ErrAdapterCall, err)
	}
	out := make([]OpenOrder, 0, len(orders))
	for _, o := range orders {
		price, _ := strconv.ParseFloat(o.Price, 64)
		qty, _ := strconv.ParseFloat(o.Quantity, 64)
		exec, _ := strconv.ParseFloat(o.ExecutedQuantity, 64)
		out = append(out, OpenOrder{
			ID:               o.ID,
			Side:             Side(o.Side),
			Price:            price,
			Quantity:         qty,
			ExecutedQuantity: exec,
		})
	}
	return out, nil
}

// CancelOrder 撤销一笔订单。
func (c *Client) CancelOrder(symbol, orderID string) error {
	if orderID == "" {
		return fmt.Errorf("%w: empty order id", ErrAdapterCall)
	}
	_, err := c.signedDo(http.MethodDelete, "/api/v1/order", "orderCancel",
		url.Values{"symbol": {symbol}, "orderId": {orderID}})
	return err
}

// PlaceLimit 挂一笔 post-only 限价单；价格四舍五入到 tick，
// 数量向下对齐到最小交易单位的整数倍（边界层职责，报价引擎不处理）。
func (c *Client) PlaceLimit(symbol string, side Side, price, qty float64) (string, error) {
	alignedQty := alignFloor(qty, c.meta.MinQuantity)
	if alignedQty <= 0 {
		return "", fmt.Errorf("%w: qty %f below min quantity %f", ErrAdapterCall, qty, c.meta.MinQuantity)
	}
	params := url.Values{
		"symbol":    {symbol},
		"side":      {string(side)},
		"orderType": {"Limit"},
		"price":     {formatByStep(roundToTick(price, c.meta.TickSize), c.meta.TickSize)},
		"quantity":  {formatByStep(alignedQty, c.meta.MinQuantity)},
		"postOnly":  {"true"},
	}
	return c.executeOrder(params)
}

// PlaceMarket 市价单；reduceOnly 用于对冲减仓。
func (c *Client) PlaceMarket(symbol string, side Side, qty float64, reduceOnly bool) (string, error) {
	alignedQty := alignFloor(qty, c.meta.MinQuantity)
	if alignedQty <= 0 {
		return "", fmt.Errorf("%w: qty %f below min quantity %f", ErrAdapterCall, qty, c.meta.MinQuantity)
	}
	params := url.Values{
		"symbol":    {symbol},
		"side":      {string(side)},
		"orderType": {"Market"},
		"quantity":  {formatByStep(alignedQty, c.meta.MinQuantity)},
	}
	if reduceOnly {
		params.Set("reduceOnly", "true")
	}
	return c.executeOrder(params)
}

// CloseWithMarket 以 reduce-only 市价单减仓：signedQty 为正减多头
// （卖出），为负减空头（买入）。
func (c *Client) CloseWithMarket(symbol string, signedQty float64) (string, error) {
	side := SideAsk
	if signedQty < 0 {
		side = SideBid
	}
	return c.PlaceMarket(symbol, side, math.Abs(signedQty), true)
}

// FillHistory 分页拉取历史成交，用于交易量统计。
func (c *Client) FillHistory(symbol string, limit, offset int) ([]Fill, error) {
	params := url.Values{
		"symbol": {symbol},
		"limit":  {strconv.Itoa(limit)},
		"offset": {strconv.Itoa(offset)},
	}
	raw, err := c.signedDo(http.MethodGet, "/wapi/v1/history/fills", "fillHistoryQueryAll", params)
	if err != nil {
		return nil, err
	}
	var fills []struct {
		Price    string `json:"price"`
		Quantity string `json:"quantity"`
		IsMaker  bool   `json:"isMaker"`
	}
	if err := json.Unmarshal(raw, &fills); err != nil {
		return nil, fmt.Errorf("%w: parse fills: %v", ErrAdapterCall, err)
	}
	out := make([]Fill, 0, len(fills))
	for _, f := range fills {
		price, _ := strconv.ParseFloat(f.Price, 64)
		qty, _ := strconv.ParseFloat(f.Quantity, 64)
		out = append(out, Fill{Price: price, Quantity: qty, IsMaker: f.IsMaker})
	}
	return out, nil
}

// executeOrder 发送下单请求并提取订单 ID。
func (c *Client) executeOrder(params url.Values) (string, error) {
	raw, err := c.signedDo(http.MethodPost, "/api/v1/order", "orderExecute", params)
	if err != nil {
		return "", err
	}
	var result struct {
		ID      string `json:"id"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("%w: parse order response: %v", ErrAdapterCall, err)
	}
	if result.Code != "" {
		return "", fmt.Errorf("%w: venue rejected order: %s", ErrAdapterCall, result.Message)
	}
	if result.ID == "" {
		return "", fmt.Errorf("%w: no order id in response", ErrAdapterCall)
	}
	return result.ID, nil
}

// publicGet 无签名 GET。
func (c *Client) publicGet(path string, params url.Values) ([]byte, error) {
	endpoint := c.BaseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAdapterCall, err)
	}
	return c.do(req)
}

// signedDo 发送带指令签名的私有请求。GET/DELETE 参数入查询串，
// POST 参数同时作为 JSON body 与签名载荷。
func (c *Client) signedDo(method, path, instruction string, params url.Values) ([]byte, error) {
	ts := time.Now().UnixMilli()
	sig := signInstruction(c.signingKey, instruction, params, ts, c.WindowMillis)

	endpoint := c.BaseURL + path
	var body io.Reader
	if method == http.MethodPost {
		payload := make(map[string]string, len(params))
		for k := range params {
			payload[k] = params.Get(k)
		}
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAdapterCall, err)
		}
		body = strings.NewReader(string(buf))
	} else if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequest(method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAdapterCall, err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("X-Signature", sig)
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Window", strconv.Itoa(c.WindowMillis))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	if c.HTTPClient == nil {
		return nil, fmt.Errorf("%w: http client not set", ErrConfiguration)
	}
	c.Limiter.Wait()

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAdapterCall, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrAdapterCall, err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s %s status %d: %s",
			ErrAdapterCall, req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}

// roundToTick 价格四舍五入到 tick 的整数倍。
func roundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	return math.Round(price/tick) * tick
}

// alignFloor 数量向下对齐到最小交易单位的整数倍。
func alignFloor(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	return math.Floor(qty/step+1e-9) * step
}

// formatByStep 按步长的小数位数格式化，避免浮点尾数污染请求。
func formatByStep(v, step float64) string {
	decimals := 0
	if step > 0 {
		s := strconv.FormatFloat(step, 'f', -1, 64)
		if idx := strings.IndexByte(s, '.'); idx >= 0 {
			decimals = len(s) - idx - 1
		}
	}
	return strconv.FormatFloat(v, 'f', decimals, 64)
}
