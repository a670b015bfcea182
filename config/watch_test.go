package config

import (
	"context"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeTempConfig(t, validYAML)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	updates := make(chan AppConfig, 1)
	w := Watcher{Path: path, Cooldown: time.Millisecond, Logger: zap.NewNop()}
	go func() {
		_ = w.Start(ctx, func(cfg AppConfig) {
			select {
			case updates <- cfg:
			default:
			}
		})
	}()

	// 等 watcher 装好再改文件
	time.Sleep(100 * time.Millisecond)
	changed := []byte(validYAML + "\nmetrics:\n  enabled: true\n  addr: \":9091\"\n")
	if err := os.WriteFile(path, changed, 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-updates:
		if !cfg.Metrics.Enabled || cfg.Metrics.Addr != ":9091" {
			t.Fatalf("reloaded config not applied: %+v", cfg.Metrics)
		}
	case <-ctx.Done():
		t.Fatalf("no reload callback before timeout")
	}
}

func TestWatcherKeepsPreviousOnInvalid(t *testing.T) {
	path := writeTempConfig(t, validYAML)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	updates := make(chan AppConfig, 1)
	w := Watcher{Path: path, Cooldown: time.Millisecond, Logger: zap.NewNop()}
	go func() {
		_ = w.Start(ctx, func(cfg AppConfig) {
			select {
			case updates <- cfg:
			default:
			}
		})
	}()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("env: \n:::bad yaml"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-updates:
		t.Fatalf("invalid config must not trigger callback, got %+v", cfg.Env)
	case <-time.After(500 * time.Millisecond):
	}
}
