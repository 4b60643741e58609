// Package queue 定义中继事件主题常量，供发布/订阅使用.
package queue

// 主题命名规范：fr.<域>.<动作>，尽量稳定且向后兼容.
const (
	TopicBatchForwarded = "fr.batch.forwarded" // 批次已被下游接受（2xx）
	TopicBatchFailed    = "fr.batch.failed"    // 批次转发失败（永久失败、重试用尽、取消或熔断）

	// TopicBatchAll 订阅全部批次事件的通配模式（NATS 语义）.
	TopicBatchAll = "fr.batch.>"
)

// Topics 返回全部已定义主题.
func Topics() []string {
	return []string{TopicBatchForwarded, TopicBatchFailed}
}
