package forwarder

import (
	"math/rand/v2"
	"net/http"
	"time"
)

// State 转发重试状态机的状态.
type State int

const (
	// Attempting 正在进行（或即将进行）第 n 次尝试.
	Attempting State = iota
	// Success 下游返回 2xx.
	Success
	// PermanentFailure 下游返回非 2xx 且小于 500 的状态码，重试无意义.
	PermanentFailure
	// Exhausted 可重试的失败用尽了全部尝试次数.
	Exhausted
	// Canceled 调用方取消（客户端断开）.
	Canceled
	// CircuitOpen 熔断器打开，未发起请求.
	CircuitOpen
)

func (s State) String() string {
	switch s {
	case Attempting:
		return "attempting"
	case Success:
		return "success"
	case PermanentFailure:
		return "permanent_failure"
	case Exhausted:
		return "exhausted"
	case Canceled:
		return "canceled"
	case CircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// Terminal 报告状态是否为终态.
func (s State) Terminal() bool {
	return s != Attempting
}

// Outcome 单次尝试的观测结果；Status 为 0 表示没有收到响应（超时或网络错误）.
type Outcome struct {
	Status int
	Err    error
}

// Policy 纯函数形式的重试策略，不涉及网络与计时.
type Policy struct {
	MaxRetries int
	Backoff    []time.Duration
	Jitter     float64 // 向上抖动比例，0 表示不抖动
}

// MaxAttempts 返回总尝试次数：首次尝试加上重试次数.
func (p Policy) MaxAttempts() int {
	return p.MaxRetries + 1
}

// Classify 把单次尝试的结果映射为 Success、PermanentFailure 或 Attempting（可重试）.
func (p Policy) Classify(o Outcome) State {
	switch {
	case o.Err != nil || o.Status == 0:
		return Attempting
	case o.Status >= http.StatusOK && o.Status < http.StatusMultipleChoices:
		return Success
	case o.Status >= http.StatusInternalServerError:
		return Attempting
	default:
		return PermanentFailure
	}
}

// Next 根据第 n 次（从 0 开始）尝试的结果给出下一个状态；
// 返回 Attempting 时 delay 为进入第 n+1 次尝试前的等待时间.
func (p Policy) Next(n int, o Outcome) (next State, delay time.Duration) {
	state := p.Classify(o)
	if state != Attempting {
		return state, 0
	}

	if n+1 > p.MaxRetries {
		return Exhausted, 0
	}

	return Attempting, p.Delay(n)
}

// Delay 返回第 n 次尝试失败后的退避时间：table[min(n, len-1)]，并按 Jitter 向上抖动.
func (p Policy) Delay(n int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}

	base := p.Backoff[min(max(n, 0), len(p.Backoff)-1)]

	return jitterUp(base, p.Jitter)
}

// jitterUp 只增加不减少的随机抖动，保证最小间隔.
func jitterUp(base time.Duration, fraction float64) time.Duration {
	if fraction <= 0 || base <= 0 {
		return base
	}

	return base + time.Duration(rand.Float64()*float64(base)*fraction)
}
