// Package redis 提供邮件列表的 Redis 旁路缓存实现。
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	mailsync "mailsync/backend/internal/sync"
)

const listKeyPrefix = "mailsync:"

// Cache Redis 缓存实现
type Cache struct {
	client *redis.Client
}

// NewCache 创建 Redis 缓存实例并验证连通性。
func NewCache(addr, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 10,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// GetEmailList 读取缓存的邮件列表。
func (c *Cache) GetEmailList(ctx context.Context, key string) (*mailsync.ListResult, error) {
	data, err := c.client.Get(ctx, listKeyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, mailsync.ErrCacheMiss
		}
		return nil, err
	}

	var listing mailsync.ListResult
	if err := json.Unmarshal([]byte(data), &listing); err != nil {
		return nil, err
	}
	return &listing, nil
}

// SetEmailList 写入邮件列表缓存。
func (c *Cache) SetEmailList(ctx context.Context, key string, listing *mailsync.ListResult, ttl time.Duration) error {
	data, err := json.Marshal(listing)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, listKeyPrefix+key, data, ttl).Err()
}

// InvalidateEmailLists 丢弃全部列表缓存键。使用 SCAN 而非 KEYS，
// 避免在大键空间上阻塞服务端。
func (c *Cache) InvalidateEmailLists(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, listKeyPrefix+"emails:list:*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Health 检查 Redis 连通性。
func (c *Cache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close 关闭连接池。
func (c *Cache) Close() error {
	return c.client.Close()
}
