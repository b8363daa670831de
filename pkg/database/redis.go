package database

import (
	"context"
	"time"

	"itemhub/pkg/log"

	"github.com/cockroachdb/errors"
	"github.com/go-redis/redis/v8"
)

// InitRedis 创建 Redis 客户端并做一次 Ping，连接失败时返回错误。
func InitRedis(addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "ping redis %s", addr)
	}

	log.Info("Redis client connected successfully")
	return rdb, nil
}
