package ratelimit

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/yeisme/folderrelay/pkg/cache"
	"github.com/yeisme/folderrelay/pkg/internal/storage/kv"
)

// KeyPrefix KV 中限流记录的键前缀.
const KeyPrefix = "ratelimit."

// KVStore 基于 kv.KVStore 的记录存储，可使用内存、Redis 或 NATS KV 后端.
// 记录以窗口剩余时间作为 TTL 写入，后端自身也会回收过期记录.
type KVStore struct {
	c   *cache.Cache
	now func() time.Time
}

// NewKVStore 创建 KV 记录存储.
func NewKVStore(store kv.KVStore) *KVStore {
	return &KVStore{c: cache.NewCache(store, KeyPrefix), now: time.Now}
}

// encodeKey 把任意客户端标识（IP、IPv6、请求头值）编码为各后端都接受的键.
func encodeKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

// Get 返回键对应的记录.
func (s *KVStore) Get(ctx context.Context, key string) (Record, bool, error) {
	rec, err := cache.Get[Record](ctx, s.c, encodeKey(key))
	if cache.IsMiss(err) {
		return Record{}, false, nil
	}

	if err != nil {
		return Record{}, false, err
	}

	return rec, true, nil
}

// Set 写入记录，TTL 为窗口剩余时间.
func (s *KVStore) Set(ctx context.Context, rec Record) error {
	ttl := max(rec.ResetAt.Sub(s.now()), time.Millisecond)

	return cache.Set(ctx, s.c, encodeKey(rec.Key), rec, ttl)
}

// Sweep 删除过期记录；后端已按 TTL 回收的记录不计入.
func (s *KVStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	keys, err := s.c.Keys(ctx)
	if err != nil {
		return 0, fmt.Errorf("list rate limit records: %w", err)
	}

	n := 0

	for _, k := range keys {
		rec, err := cache.Get[Record](ctx, s.c, k)
		if cache.IsMiss(err) {
			continue
		}

		if err == nil && !rec.Expired(now) {
			continue
		}

		// 过期或无法解码的记录都删除
		if err := s.c.Delete(ctx, k); err != nil {
			return n, fmt.Errorf("delete rate limit record: %w", err)
		}

		n++
	}

	return n, nil
}
