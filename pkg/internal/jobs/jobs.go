// Package jobs 负责注册与实现后台定时任务（基于 scheduler）。
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/yeisme/folderrelay/pkg/log"
	"github.com/yeisme/folderrelay/pkg/scheduler"
)

// Sweeper 删除过期限流记录.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// RegisterJobs 注册后台任务：
//   - 每 sweepInterval 清理一次过期的限流记录（仅用于限制内存占用）
func RegisterJobs(ctx context.Context, sched *scheduler.Scheduler, sweeper Sweeper, sweepInterval time.Duration) error {
	if sched == nil {
		return fmt.Errorf("scheduler is nil")
	}

	if sweeper == nil {
		return nil
	}

	return sched.AddInterval(ctx, JobRateLimitSweep, sweepInterval, func(ctx context.Context) error {
		return runRateLimitSweep(ctx, sweeper)
	})
}

// runRateLimitSweep 执行一次限流记录清理.
func runRateLimitSweep(ctx context.Context, sweeper Sweeper) error {
	l := log.Logger().With().Str("job", JobRateLimitSweep).Logger()

	n, err := sweeper.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("sweep rate limit records: %w", err)
	}

	if n > 0 {
		l.Debug().Int("removed", n).Msg("swept expired rate limit records")
	}

	return nil
}
