package gateway

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter 控制请求速率，避免触发交易所限流。
type RateLimiter interface {
	Wait()
}

// TokenBucketLimiter 基于 golang.org/x/time/rate 的令牌桶。
type TokenBucketLimiter struct {
	lim *rate.Limiter
}

func NewTokenBucketLimiter(perSecond float64, burst int) *TokenBucketLimiter {
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucketLimiter{lim: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (l *TokenBucketLimiter) Wait() {
	// background ctx：上层通过进程信号整体退出，不单独取消限流等待。
	_ = l.lim.Wait(context.Background())
}

// noopLimiter 测试或 dry-run 时使用。
type noopLimiter struct{}

func (noopLimiter) Wait() {}

// NopLimiter 不限流。
var NopLimiter RateLimiter = noopLimiter{}
