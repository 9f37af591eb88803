package router

import (
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/middleware"

	"github.com/gin-gonic/gin"
)

func InitSystemRouter(
	deps RouterDeps,
	r *gin.RouterGroup,
) {
	// Loopback trigger validates its own query token; the cron trigger
	// is guarded by the shared api key.
	triggerRouter := r.Group("/trigger")
	{
		triggerRouter.GET("/loopback", deps.SystemHandler.LoopbackTrigger)
		triggerRouter.GET("/cron", middleware.ApiKeyAuth(deps.Config, deps.Logger), deps.SystemHandler.CronTrigger)
	}

	wsRouter := r.Group("/ws").Use(middleware.StrictAuth(deps.JWT, deps.Logger))
	{
		wsRouter.GET("/progress", deps.SystemHandler.ProgressStream)
	}
}
