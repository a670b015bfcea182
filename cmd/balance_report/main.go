// 统计账户在某交易对上的历史成交量，按 maker/taker 拆分。
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/joho/godotenv"

	"backpack-quoter/config"
	"backpack-quoter/gateway"
	"backpack-quoter/infrastructure/logger"
)

const pageSize = 100

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	ticker := flag.String("ticker", "", "标的（例如 SOL），覆盖配置")
	marketType := flag.String("market-type", "", "SPOT 或 PERP，覆盖配置")
	maxFills := flag.Int("max-fills", 1000, "最多统计的成交笔数")
	flag.Parse()

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
	if cfg.Gateway.APIKey == "" || cfg.Gateway.APISecret == "" {
		log.Fatalf("成交历史需要 API 凭证")
	}

	zlog, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer zlog.Close()

	client, err := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.APIKey, cfg.Gateway.APISecret,
		gateway.NewDefaultHTTPClient(),
		gateway.NewTokenBucketLimiter(cfg.Gateway.RequestsPerSecond, cfg.Gateway.Burst),
		zlog.Logger)
	if err != nil {
		log.Fatalf("初始化交易所客户端失败: %v", err)
	}

	meta, err := client.GetMarket(cfg.Instrument.Ticker, cfg.Instrument.MarketType)
	if err != nil {
		log.Fatalf("解析交易对失败: %v", err)
	}

	var makerVolume, takerVolume float64
	var makerCount, takerCount int
	for offset := 0; offset < *maxFills; offset += pageSize {
		fills, err := client.FillHistory(meta.Symbol, pageSize, offset)
		if err != nil {
			log.Fatalf("拉取成交历史失败: %v", err)
		}
		for _, f := range fills {
			notional := f.Price * f.Quantity
			if f.IsMaker {
				makerVolume += notional
				makerCount++
			} else {
				takerVolume += notional
				takerCount++
			}
		}
		if len(fills) < pageSize {
			break
		}
	}

	fmt.Printf("symbol: %s\n", meta.Symbol)
	fmt.Printf("maker: %d fills, %.2f USDC\n", makerCount, makerVolume)
	fmt.Printf("taker: %d fills, %.2f USDC\n", takerCount, takerVolume)
	fmt.Printf("total: %d fills, %.2f USDC\n", makerCount+takerCount, makerVolume+takerVolume)
}
