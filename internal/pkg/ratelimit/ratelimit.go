// Package ratelimit 实现基于 Redis 的令牌桶限流。
//
// 同一个 scope 下按 subject（客户端 IP、用户 ID 等）分桶，多实例共享同一份计数。
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"noiton/internal/pkg/metrics"

	"github.com/redis/go-redis/v9"
)

var ErrRateLimitTimeout = errors.New("rate limit wait timeout")

const keyPrefix = "noiton:ratelimit:"

// 桶状态存成 hash{tokens_milli, updated_ms}，令牌以千分之一为单位保存成整数，
// 避免 Lua 数字转 Redis 回复时丢掉小数。
//
// KEYS[1] = 桶 key
// ARGV = rate(个/秒), burst, now(ms), cost
// 返回 {allowed, retry_ms, remaining}
var takeScript = redis.NewScript(`
local rate = tonumber(ARGV[1])
local cap = tonumber(ARGV[2]) * 1000
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4]) * 1000

local state = redis.call("HMGET", KEYS[1], "tokens_milli", "updated_ms")
local tokens = tonumber(state[1]) or cap
local updated = tonumber(state[2]) or now

if now > updated then
  tokens = math.min(cap, tokens + (now - updated) * rate)
end

local retry = 0
local allowed = 0
if tokens >= cost then
  tokens = tokens - cost
  allowed = 1
else
  retry = math.ceil((cost - tokens) / rate)
end

redis.call("HSET", KEYS[1], "tokens_milli", math.floor(tokens), "updated_ms", now)
redis.call("PEXPIRE", KEYS[1], math.ceil(cap / rate) + 1000)
return {allowed, retry, math.floor(tokens / 1000)}
`)

// Limiter 是一个限流作用域（如 login、sync、mail）。
type Limiter struct {
	rdb    *redis.Client
	scope  string
	rate   float64
	burst  float64
	logger *slog.Logger
}

// Decision 是一次取令牌的结果。
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Remaining  int64
}

// NewLimiter 创建限流器。
//
// 参数:
//   - scope: 作用域名，同时作为 Redis key 前缀与指标标签
//   - rate: 每秒补充的令牌数，<=0 表示不限流
//   - burst: 桶容量
func NewLimiter(rdb *redis.Client, logger *slog.Logger, scope string, rate float64, burst float64) *Limiter {
	if scope == "" {
		scope = "default"
	}
	return &Limiter{rdb: rdb, scope: scope, rate: rate, burst: burst, logger: logger}
}

func (l *Limiter) enabled() bool {
	return l != nil && l.rdb != nil && l.rate > 0 && l.burst > 0
}

func (l *Limiter) key(subject string) string {
	if subject == "" {
		return keyPrefix + l.scope
	}
	return keyPrefix + l.scope + ":" + subject
}

// Take 为 subject 取一个令牌，不等待。
func (l *Limiter) Take(ctx context.Context, subject string) (Decision, error) {
	if !l.enabled() {
		return Decision{Allowed: true, Remaining: -1}, nil
	}
	vals, err := takeScript.Run(ctx, l.rdb, []string{l.key(subject)},
		l.rate, l.burst, time.Now().UnixMilli(), 1).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit take %s: %w", l.scope, err)
	}
	if len(vals) != 3 {
		return Decision{}, fmt.Errorf("ratelimit take %s: unexpected reply %v", l.scope, vals)
	}
	return Decision{
		Allowed:    vals[0] == 1,
		RetryAfter: time.Duration(vals[1]) * time.Millisecond,
		Remaining:  vals[2],
	}, nil
}

// Allow 非阻塞地为 subject 取一个令牌。
//
// 返回值:
//   - bool: 是否放行
//   - time.Duration: 被拒绝时建议的重试等待时间
//   - error: Redis 错误；此时 bool 为 true，调用方通常应放行并记录日志
func (l *Limiter) Allow(ctx context.Context, subject string) (bool, time.Duration, error) {
	d, err := l.Take(ctx, subject)
	if err != nil {
		return true, 0, err
	}
	if !d.Allowed {
		metrics.RateLimitRejectedTotal.WithLabelValues(l.scope).Inc()
	}
	return d.Allowed, d.RetryAfter, nil
}

// Wait 阻塞直到 subject 取得令牌或 ctx 结束。
func (l *Limiter) Wait(ctx context.Context, subject string) error {
	if !l.enabled() {
		return nil
	}
	start := time.Now()
	defer func() { metrics.RateLimitWaitDuration.Observe(time.Since(start).Seconds()) }()

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C
	for {
		d, err := l.Take(ctx, subject)
		if err != nil {
			return err
		}
		if d.Allowed {
			return nil
		}

		backoff := max(d.RetryAfter, 20*time.Millisecond) + time.Duration(rand.Int63n(int64(10*time.Millisecond)))
		timer.Reset(backoff)
		select {
		case <-ctx.Done():
			metrics.RateLimitTimeoutTotal.Inc()
			if l.logger != nil {
				l.logger.Warn("rate limit wait timed out",
					slog.String("scope", l.scope),
					slog.String("subject", subject),
					slog.Duration("waited", time.Since(start)))
			}
			return ErrRateLimitTimeout
		case <-timer.C:
		}
	}
}

// Acquire 等待作用域级令牌，后台发送邮件这类可以排队的场景使用。
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.Wait(ctx, "")
}
