package router

import (
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/middleware"

	"github.com/gin-gonic/gin"
)

func InitScheduleRouter(
	deps RouterDeps,
	r *gin.RouterGroup,
) {
	strictAuthRouter := r.Group("/schedule").Use(middleware.StrictAuth(deps.JWT, deps.Logger))
	{
		strictAuthRouter.POST("", deps.ScheduleHandler.Upsert)
		strictAuthRouter.GET("", deps.ScheduleHandler.List)
		strictAuthRouter.POST("/delete", deps.ScheduleHandler.Delete)
		strictAuthRouter.POST("/run", deps.ScheduleHandler.RunNow)
	}
}
