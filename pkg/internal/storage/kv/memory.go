package kv

import (
	"context"
	"sync"
	"time"

	"github.com/yeisme/folderrelay/pkg/configs"
)

// memoryEntry 内存中的值与过期时间，expireAt 为零值表示不过期.
type memoryEntry struct {
	data     []byte
	expireAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

// MemoryKV 基于 sync.Map 的内存 KV 实现，过期键在访问时惰性删除.
type MemoryKV struct {
	data sync.Map // 并发安全的 map
	now  func() time.Time
}

// NewMemoryKV 创建内存 KV 实例.
func NewMemoryKV(_ context.Context, _ *configs.KVConfig) (KVStore, error) {
	// 内存实现不需要特殊配置
	return &MemoryKV{now: time.Now}, nil
}

// load 读取未过期的条目.
func (m *MemoryKV) load(key string) (memoryEntry, bool) {
	v, ok := m.data.Load(key)
	if !ok {
		return memoryEntry{}, false
	}

	e, _ := v.(memoryEntry)
	if e.expired(m.now()) {
		m.data.CompareAndDelete(key, v)
		return memoryEntry{}, false
	}

	return e, true
}

// Get 获取键的值.
func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	e, ok := m.load(key)
	if !ok {
		return nil, notFound(key)
	}

	// 返回副本
	result := make([]byte, len(e.data))
	copy(result, e.data)

	return result, nil
}

// Set 设置键的值.
func (m *MemoryKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	// 复制值
	e := memoryEntry{data: make([]byte, len(value))}
	copy(e.data, value)

	if ttl > 0 {
		e.expireAt = m.now().Add(ttl)
	}

	m.data.Store(key, e)

	return nil
}

// Delete 删除键.
func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.data.Delete(key)
	return nil
}

// Exists 检查键是否存在.
func (m *MemoryKV) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.load(key)
	return ok, nil
}

// Keys 获取匹配模式的键.
func (m *MemoryKV) Keys(_ context.Context, pattern string) ([]string, error) {
	keys := make([]string, 0)
	now := m.now()

	m.data.Range(func(key, value any) bool {
		k, ok := key.(string)
		if !ok {
			return true // 继续遍历
		}

		if e, _ := value.(memoryEntry); e.expired(now) {
			m.data.CompareAndDelete(key, value)
			return true
		}

		if match(pattern, k) {
			keys = append(keys, k)
		}

		return true
	})

	return keys, nil
}

// Ping 内存实现始终可用.
func (m *MemoryKV) Ping(_ context.Context) error {
	return nil
}

// Close 关闭存储（内存实现无需操作）.
func (m *MemoryKV) Close() error {
	return nil
}

func init() {
	RegisterKVFactory(KVTypeMemory, NewMemoryKV)
}
