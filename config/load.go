package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"backpack-quoter/infrastructure/logger"
	"backpack-quoter/risk"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env        string           `yaml:"env"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Instrument InstrumentConfig `yaml:"instrument"`
	Risk       risk.Parameters  `yaml:"risk"`
	Engine     EngineConfig     `yaml:"engine"`
	Logger     logger.Config    `yaml:"logger"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type GatewayConfig struct {
	APIKey    string `yaml:"apiKey"`
	APISecret string `yaml:"apiSecret"`
	BaseURL   string `yaml:"baseURL"`
	// RequestsPerSecond 下单/查询接口共用的限速预算
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// InstrumentConfig 报价标的：ticker + 市场类型（SPOT 或 PERP）。
type InstrumentConfig struct {
	Ticker     string `yaml:"ticker"`
	MarketType string `yaml:"marketType"`
}

type EngineConfig struct {
	TickIntervalMs int  `yaml:"tickIntervalMs"`
	SyncIntervalMs int  `yaml:"syncIntervalMs"`
	BookMaxAgeMs   int  `yaml:"bookMaxAgeMs"`
	UseWebsocket   bool `yaml:"useWebsocket"`
	DryRun         bool `yaml:"dryRun"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default 返回可直接运行 dry-run 的默认配置。
func Default() AppConfig {
	return AppConfig{
		Env: "dev",
		Gateway: GatewayConfig{
			BaseURL:           "https://api.backpack.exchange",
			RequestsPerSecond: 8,
			Burst:             16,
		},
		Instrument: InstrumentConfig{Ticker: "SOL", MarketType: "PERP"},
		Risk:       risk.DefaultParameters(),
		Engine: EngineConfig{
			TickIntervalMs: 1000,
			SyncIntervalMs: 1000,
			BookMaxAgeMs:   5000,
			UseWebsocket:   true,
			DryRun:         true,
		},
		Logger:  logger.DefaultConfig(),
		Metrics: MetricsConfig{Enabled: false, Addr: ":9090"},
	}
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides sensitive fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("BPQ_API_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	}
	if v := os.Getenv("BPQ_API_SECRET"); v != "" {
		cfg.Gateway.APISecret = v
	}
	return cfg, Validate(cfg)
}

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if cfg.Gateway.BaseURL == "" {
		return errors.New("gateway.baseURL is required")
	}
	// dry-run 不需要凭证，实盘必须有
	if !cfg.Engine.DryRun && (cfg.Gateway.APIKey == "" || cfg.Gateway.APISecret == "") {
		return errors.New("gateway.apiKey/apiSecret is required for live trading (or env overrides)")
	}
	if cfg.Instrument.Ticker == "" {
		return errors.New("instrument.ticker is required")
	}
	if cfg.Instrument.MarketType != "SPOT" && cfg.Instrument.MarketType != "PERP" {
		return fmt.Errorf("instrument.marketType must be SPOT or PERP, got %q", cfg.Instrument.MarketType)
	}
	if cfg.Engine.TickIntervalMs <= 0 {
		return errors.New("engine.tickIntervalMs must be > 0")
	}
	if cfg.Engine.SyncIntervalMs <= 0 {
		return errors.New("engine.syncIntervalMs must be > 0")
	}
	if cfg.Gateway.RequestsPerSecond <= 0 {
		return errors.New("gateway.requestsPerSecond must be > 0")
	}
	if err := cfg.Risk.Validate(); err != nil {
		return fmt.Errorf("risk: %w", err)
	}
	return nil
}
