// Package dedup 记录已处理的离线同步操作，用于拒绝客户端重放。
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "noiton:sync:op:"

// Guard 以 (用户, op_id) 为键在 Redis 中占位。
type Guard struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewGuard 创建重放保护。ttl 为占位保留时间，<=0 时使用 24 小时。
func NewGuard(rdb *redis.Client, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Guard{
		rdb: rdb,
		ttl: ttl,
	}
}

// Claim 尝试占用操作 ID。
//
// 返回值:
//   - bool: true 表示首次出现；false 表示在保留期内已处理过
//   - error: Redis 错误
//
// Guard 为 nil、未配置 Redis 或 opID 为空时总是返回 true。
func (g *Guard) Claim(ctx context.Context, userID uint, opID string) (bool, error) {
	if g == nil || g.rdb == nil || opID == "" {
		return true, nil
	}
	ok, err := g.rdb.SetNX(ctx, key(userID, opID), "1", g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim sync op: %w", err)
	}
	return ok, nil
}

// Release 释放占位，操作失败后客户端可以重试。
func (g *Guard) Release(ctx context.Context, userID uint, opID string) error {
	if g == nil || g.rdb == nil || opID == "" {
		return nil
	}
	if err := g.rdb.Del(ctx, key(userID, opID)).Err(); err != nil {
		return fmt.Errorf("release sync op: %w", err)
	}
	return nil
}

func key(userID uint, opID string) string {
	sum := sha256.Sum256([]byte(opID))
	return keyPrefix + strconv.FormatUint(uint64(userID), 10) + ":" + hex.EncodeToString(sum[:])
}
