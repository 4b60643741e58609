// Package cache 提供基于键值存储的泛型缓存实现.
//
// 值使用 sonic 编码为 JSON，并可设置 TTL（生存时间）.
//
// 基本用法:
//
//	c := cache.NewCache(kvStore, "ratelimit.")
//	err := cache.Set(ctx, c, "203.0.113.7", rec, time.Minute)
//	rec, err := cache.Get[Record](ctx, c, "203.0.113.7")
//	if cache.IsMiss(err) {
//		// 未命中
//	}
//
// 线程安全:
//
//	该包不提供额外的线程安全保证，取决于底层的KV存储实现.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/yeisme/folderrelay/pkg/internal/storage/kv"
)

// Cache 基于KV存储的缓存实现，所有键自动加上 prefix.
type Cache struct {
	kvStore kv.KVStore
	prefix  string
}

// NewCache 创建一个新的缓存实例.
func NewCache(kvStore kv.KVStore, prefix string) *Cache {
	return &Cache{
		kvStore: kvStore,
		prefix:  prefix,
	}
}

// IsMiss 报告错误是否表示缓存未命中.
func IsMiss(err error) bool {
	return errors.Is(err, kv.ErrNotFound)
}

// Get 泛型获取缓存值.
func Get[T any](ctx context.Context, c *Cache, key string) (T, error) {
	var zero T

	data, err := c.kvStore.Get(ctx, c.prefix+key)
	if err != nil {
		return zero, err
	}

	var value T
	if err := sonic.Unmarshal(data, &value); err != nil {
		return zero, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}

	return value, nil
}

// Set 泛型设置缓存值.
func Set[T any](ctx context.Context, c *Cache, key string, value T, ttl time.Duration) error {
	data, err := sonic.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	return c.kvStore.Set(ctx, c.prefix+key, data, ttl)
}

// Delete 删除缓存键.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.kvStore.Delete(ctx, c.prefix+key)
}

// Exists 检查缓存键是否存在.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	return c.kvStore.Exists(ctx, c.prefix+key)
}

// Keys 返回前缀下的所有键（不含前缀）.
func (c *Cache) Keys(ctx context.Context) ([]string, error) {
	keys, err := c.kvStore.Keys(ctx, c.prefix+"*")
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if rest, ok := strings.CutPrefix(k, c.prefix); ok {
			out = append(out, rest)
		}
	}

	return out, nil
}
