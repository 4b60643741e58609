package handle

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/folderrelay/pkg/internal/types"
	"github.com/yeisme/folderrelay/pkg/middleware"
	"github.com/yeisme/folderrelay/pkg/scheduler"
)

// SchedulerJobs 返回所有调度器任务信息.
func SchedulerJobs(c *gin.Context) {
	sched := middleware.GetScheduler(c)
	if sched == nil {
		c.JSON(http.StatusOK, types.JobsResponse{Jobs: []scheduler.JobInfo{}})
		return
	}

	c.JSON(http.StatusOK, types.JobsResponse{Jobs: sched.GetJobInfos()})
}

// SchedulerRunJob 立即执行一次指定名称的任务.
func SchedulerRunJob(c *gin.Context) {
	sched := middleware.GetScheduler(c)
	if sched == nil {
		c.JSON(http.StatusServiceUnavailable, types.ErrorResponse{Error: "SCHEDULER_UNAVAILABLE", Message: "scheduler not running"})
		return
	}

	if err := sched.RunNow(c.Param("name")); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, scheduler.ErrJobNotFound) {
			status = http.StatusNotFound
		}

		c.JSON(status, types.ErrorResponse{Error: "JOB_RUN_FAILED", Message: err.Error()})

		return
	}

	c.JSON(http.StatusAccepted, gin.H{"ok": true, "message": "job triggered"})
}
