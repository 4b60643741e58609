package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/folderrelay/pkg/internal/handle"
)

// RegisterSchedulerRoutes 注册调度器相关路由.
func RegisterSchedulerRoutes(g *gin.RouterGroup) {
	g.GET("/jobs", handle.SchedulerJobs)
	g.POST("/jobs/:name/run", handle.SchedulerRunJob)
}
