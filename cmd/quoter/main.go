package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"backpack-quoter/config"
	"backpack-quoter/engine"
	"backpack-quoter/gateway"
	"backpack-quoter/infrastructure/logger"
	"backpack-quoter/inventory"
	"backpack-quoter/market"
	"backpack-quoter/metrics"
	"backpack-quoter/order"
	"backpack-quoter/risk"
	"backpack-quoter/strategy"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	ticker := flag.String("ticker", "", "标的（例如 SOL），覆盖配置")
	marketType := flag.String("market-type", "", "SPOT 或 PERP，覆盖配置")
	orderSize := flag.Float64("order-size", 0, "基础下单额 USD，覆盖配置")
	dryRun := flag.Bool("dryRun", false, "仅日志输出，不真正下单")
	metricsAddr := flag.String("metricsAddr", "", "Prometheus metrics 监听地址，覆盖配置")
	flag.Parse()

	// .env 缺失不算错误
	_ = godotenv.Load()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if *ticker != "" {
		cfg.Instrument.Ticker = strings.ToUpper(*ticker)
	}
	if *marketType != "" {
		cfg.Instrument.MarketType = strings.ToUpper(*marketType)
	}
	if *orderSize > 0 {
		cfg.Risk.BaseOrderSizeUSD = *orderSize
	}
	if *dryRun {
		cfg.Engine.DryRun = true
	}
	if *metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = *metricsAddr
	}

	zlog, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer zlog.Close()

	apiKey, apiSecret := cfg.Gateway.APIKey, cfg.Gateway.APISecret
	if cfg.Engine.DryRun && (apiKey == "" || apiSecret == "") {
		// dry-run 只访问公共接口，给签名层一个一次性密钥
		apiKey, apiSecret = throwawayCredentials()
		zlog.Info("dry run without credentials, using throwaway signing key")
	}

	limiter := gateway.NewTokenBucketLimiter(cfg.Gateway.RequestsPerSecond, cfg.Gateway.Burst)
	client, err := gateway.NewClient(cfg.Gateway.BaseURL, apiKey, apiSecret,
		gateway.NewDefaultHTTPClient(), limiter, zlog.Logger)
	if err != nil {
		zlog.Fatal("初始化交易所客户端失败", zap.Error(err))
	}

	meta, err := client.GetMarket(cfg.Instrument.Ticker, cfg.Instrument.MarketType)
	if err != nil {
		zlog.Fatal("解析交易对失败", zap.Error(err))
	}
	client.SetInstrument(meta)

	monitor := metrics.New(metrics.DefaultConfig())
	if cfg.Metrics.Enabled {
		monitor.Serve(cfg.Metrics.Addr)
		zlog.Info("metrics server started", zap.String("addr", cfg.Metrics.Addr))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var book *market.Book
	if cfg.Engine.UseWebsocket {
		book = market.NewBook()
		stream := gateway.NewDepthStream(meta.Symbol, book, client, zlog.Logger)
		stream.OnDisconnect = func(err error) { monitor.RecordWSReconnect() }
		go func() {
			if err := stream.Run(ctx); err != nil && ctx.Err() == nil {
				zlog.Error("depth stream exited", zap.Error(err))
			}
		}()
	}

	params := cfg.Risk
	tracker := &inventory.Tracker{}

	var adapter engine.Adapter = client
	var venue order.Venue = client
	var source inventory.PositionSource = positionSource{client: client, symbol: meta.Symbol}
	if cfg.Engine.DryRun {
		adapter = dryRunAdapter{client: client, logger: zlog.Logger}
		venue = dryRunVenue{logger: zlog.Logger}
		source = flatPosition{}
	}

	controller := order.NewController(venue, meta.Symbol, risk.WallClock, zlog.Logger)
	controller.SetRecorder(monitor)

	loop := engine.New(
		engine.Config{
			Symbol:       meta.Symbol,
			TickInterval: time.Duration(cfg.Engine.TickIntervalMs) * time.Millisecond,
			BookMaxAge:   time.Duration(cfg.Engine.BookMaxAgeMs) * time.Millisecond,
			MinQuantity:  meta.MinQuantity,
		},
		params,
		engine.Deps{
			Adapter:    adapter,
			Book:       book,
			State:      market.NewState(params.Sigma),
			Classifier: market.NewClassifier(params.Sigma, params.Gamma, params.QMax, zlog.Logger),
			Hedger:     risk.NewHedger(params.RiskThreshold, params.Phi),
			Quoter:     strategy.NewEngine(params, zlog.Logger),
			Tracker:    tracker,
			Syncer: &inventory.Syncer{
				Source:   source,
				Tracker:  tracker,
				Interval: time.Duration(cfg.Engine.SyncIntervalMs) * time.Millisecond,
				Clock:    risk.WallClock,
				Logger:   zlog.Logger,
			},
			Controller: controller,
			Monitor:    monitor,
			Clock:      risk.WallClock,
			Logger:     zlog.Logger,
		},
	)

	// 配置热更只接受日志级别，风险参数在会话内冻结
	watcher := config.Watcher{Path: *cfgPath, Logger: zlog.Logger}
	go func() {
		_ = watcher.Start(ctx, func(updated config.AppConfig) {
			if err := zlog.SetLevel(updated.Logger.Level); err != nil {
				zlog.Warn("invalid log level in reloaded config", zap.Error(err))
			}
		})
	}()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		zlog.Info("shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	zlog.Info("quoter starting",
		zap.String("symbol", meta.Symbol),
		zap.Bool("dry_run", cfg.Engine.DryRun))
	_ = loop.Run(ctx)
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
}

// positionSource 把网关持仓查询适配到库存同步器。
type positionSource struct {
	client *gateway.Client
	symbol string
}

func (p positionSource) Position() (float64, float64, error) {
	return p.client.Position(p.symbol)
}

// flatPosition dry-run 下恒为零仓。
type flatPosition struct{}

func (flatPosition) Position() (float64, float64, error) { return 0, 0, nil }

// dryRunAdapter 行情走真实接口，对冲只打日志。
type dryRunAdapter struct {
	client *gateway.Client
	logger *zap.Logger
}

func (d dryRunAdapter) GetDepth(symbol string) (market.Depth, error) {
	return d.client.GetDepth(symbol)
}

func (d dryRunAdapter) CloseWithMarket(symbol string, signedQty float64) (string, error) {
	d.logger.Info("dry run hedge",
		zap.String("symbol", symbol),
		zap.Float64("signed_qty", signedQty))
	return "dry-" + uuid.NewString(), nil
}

// dryRunVenue 挂撤单只打日志，返回本地生成的订单号。
type dryRunVenue struct {
	logger *zap.Logger
}

func (d dryRunVenue) OpenOrders(symbol string) ([]gateway.OpenOrder, error) {
	return nil, nil
}

func (d dryRunVenue) CancelOrder(symbol, orderID string) error {
	d.logger.Info("dry run cancel", zap.String("order_id", orderID))
	return nil
}

func (d dryRunVenue) PlaceLimit(symbol string, side gateway.Side, price, qty float64) (string, error) {
	id := "dry-" + uuid.NewString()
	d.logger.Info("dry run place",
		zap.String("order_id", id),
		zap.String("side", string(side)),
		zap.Float64("price", price),
		zap.Float64("qty", qty))
	return id, nil
}

// throwawayCredentials 生成一次性 ED25519 种子，仅满足客户端构造。
func throwawayCredentials() (string, string) {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		log.Fatalf("生成临时密钥失败: %v", err)
	}
	encoded := base64.StdEncoding.EncodeToString(seed)
	return "dry-run", encoded
}
