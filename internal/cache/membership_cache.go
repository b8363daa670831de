// Package cache 提供基于 Redis 的成员关系缓存。
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-redis/redis/v8"
)

const keyPrefix = "itemhub:membership:"

// MembershipCache 缓存实体在某个分类体系下直接挂载的 term id 列表。
// 值为 JSON 数组，空列表也会缓存，避免反复回源。
type MembershipCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewMembershipCache(rdb *redis.Client, ttl time.Duration) *MembershipCache {
	return &MembershipCache{rdb: rdb, ttl: ttl}
}

// Key 格式：itemhub:membership:{taxonomy}:{entityType}:{entityID}
func Key(taxonomyKey, entityType string, entityID uint) string {
	return fmt.Sprintf("%s%s:%s:%d", keyPrefix, taxonomyKey, entityType, entityID)
}

// Get 第二个返回值表示是否命中。
func (c *MembershipCache) Get(ctx context.Context, taxonomyKey, entityType string, entityID uint) ([]uint, bool, error) {
	raw, err := c.rdb.Get(ctx, Key(taxonomyKey, entityType, entityID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "redis get")
	}

	ids := []uint{}
	if err := json.Unmarshal(raw, &ids); err != nil {
		// 脏数据当作未命中，下一次 Set 会覆盖
		return nil, false, errors.Wrap(err, "decode cached membership")
	}
	return ids, true, nil
}

func (c *MembershipCache) Set(ctx context.Context, taxonomyKey, entityType string, entityID uint, termIDs []uint) error {
	if termIDs == nil {
		termIDs = []uint{}
	}
	raw, err := json.Marshal(termIDs)
	if err != nil {
		return errors.Wrap(err, "encode membership")
	}
	if err := c.rdb.Set(ctx, Key(taxonomyKey, entityType, entityID), raw, c.ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

func (c *MembershipCache) Invalidate(ctx context.Context, taxonomyKey, entityType string, entityID uint) error {
	if err := c.rdb.Del(ctx, Key(taxonomyKey, entityType, entityID)).Err(); err != nil {
		return errors.Wrap(err, "redis del")
	}
	return nil
}
