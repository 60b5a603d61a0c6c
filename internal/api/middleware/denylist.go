package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedKeyPrefix = "noiton:jwt:revoked:"

// TokenDenylist 记录已注销的 JWT（按 jti），TTL 与令牌剩余有效期一致。
type TokenDenylist struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewTokenDenylist 创建注销名单。
func NewTokenDenylist(rdb *redis.Client, logger *slog.Logger) *TokenDenylist {
	return &TokenDenylist{rdb: rdb, logger: logger}
}

// Revoke 注销令牌直到 expiresAt。已过期的令牌无需记录。
func (d *TokenDenylist) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if d == nil || d.rdb == nil || jti == "" {
		return nil
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return d.rdb.Set(ctx, revokedKeyPrefix+jti, "1", ttl).Err()
}

// IsRevoked 判断令牌是否已注销。Redis 不可用时放行并记录日志。
func (d *TokenDenylist) IsRevoked(ctx context.Context, jti string) bool {
	if d == nil || d.rdb == nil || jti == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	n, err := d.rdb.Exists(ctx, revokedKeyPrefix+jti).Result()
	if err != nil {
		d.logger.Warn("token denylist lookup failed", slog.String("error", err.Error()))
		return false
	}
	return n > 0
}
