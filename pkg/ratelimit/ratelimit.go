// Package ratelimit 实现按键计数的固定窗口限流器.
//
// 每个键对应一条 Record：窗口内计数达到上限后拒绝，直到 ResetAt 之后开启新窗口.
// 记录保存在可替换的 Store 中；同一进程内对同一键的读-改-写由分段互斥锁串行化，
// 不提供跨实例的一致性保证.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// lockStripes 分段锁数量，必须是 2 的幂.
const lockStripes = 64

// Record 单个键在当前窗口内的计数.
type Record struct {
	Key     string    `json:"key"`
	Count   int       `json:"count"`
	ResetAt time.Time `json:"reset_at"`
}

// Expired 报告窗口是否已结束.
func (r Record) Expired(now time.Time) bool {
	return !now.Before(r.ResetAt)
}

// Decision 一次检查的结果.
type Decision struct {
	Allowed           bool
	RetryAfterSeconds int // 仅在拒绝时大于 0
	Count             int
	Limit             int
	ResetAt           time.Time
}

// Remaining 返回当前窗口剩余的请求数.
func (d Decision) Remaining() int {
	return max(d.Limit-d.Count, 0)
}

// Store 限流记录存储.
type Store interface {
	// Get 返回键对应的记录；不存在时 ok 为 false.
	Get(ctx context.Context, key string) (rec Record, ok bool, err error)
	// Set 写入记录.
	Set(ctx context.Context, rec Record) error
	// Sweep 删除所有在 now 时已过期的记录，返回删除数量.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// Option 配置 Limiter.
type Option func(*Limiter)

// WithClock 替换时间来源，主要用于测试.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// Limiter 固定窗口限流器.
type Limiter struct {
	store       Store
	maxRequests int
	window      time.Duration
	now         func() time.Time
	locks       [lockStripes]sync.Mutex
}

// New 创建限流器：每个键在 window 内最多允许 maxRequests 次请求.
func New(store Store, maxRequests int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		store:       store,
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Window 返回窗口长度.
func (l *Limiter) Window() time.Duration { return l.window }

// MaxRequests 返回每个窗口允许的请求数.
func (l *Limiter) MaxRequests() int { return l.maxRequests }

func (l *Limiter) lock(key string) *sync.Mutex {
	return &l.locks[xxhash.Sum64String(key)&(lockStripes-1)]
}

// Check 为 key 计数一次并返回是否放行.
func (l *Limiter) Check(ctx context.Context, key string) (Decision, error) {
	mu := l.lock(key)
	mu.Lock()
	defer mu.Unlock()

	now := l.now()

	rec, ok, err := l.store.Get(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit lookup %q: %w", key, err)
	}

	switch {
	case !ok || rec.Expired(now):
		rec = Record{Key: key, Count: 1, ResetAt: now.Add(l.window)}
	case rec.Count >= l.maxRequests:
		return Decision{
			Allowed:           false,
			RetryAfterSeconds: retryAfter(rec.ResetAt.Sub(now)),
			Count:             rec.Count,
			Limit:             l.maxRequests,
			ResetAt:           rec.ResetAt,
		}, nil
	default:
		rec.Count++
	}

	if err := l.store.Set(ctx, rec); err != nil {
		return Decision{}, fmt.Errorf("rate limit update %q: %w", key, err)
	}

	return Decision{Allowed: true, Count: rec.Count, Limit: l.maxRequests, ResetAt: rec.ResetAt}, nil
}

// Sweep 删除已过期的记录；只影响内存占用，不影响 Check 的正确性.
func (l *Limiter) Sweep(ctx context.Context) (int, error) {
	return l.store.Sweep(ctx, l.now())
}

// retryAfter 把剩余时间向上取整到秒.
func retryAfter(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)

	return max(secs, 1)
}
