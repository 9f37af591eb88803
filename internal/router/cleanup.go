package router

import (
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/middleware"

	"github.com/gin-gonic/gin"
)

func InitCleanupRouter(
	deps RouterDeps,
	r *gin.RouterGroup,
) {
	// Strict permission routing group (requires authentication)
	strictAuthRouter := r.Group("/cleanup").Use(middleware.StrictAuth(deps.JWT, deps.Logger))
	{
		strictAuthRouter.POST("/start", deps.CleanupHandler.StartTask)
		strictAuthRouter.POST("/batch", deps.CleanupHandler.ProcessBatch)
		strictAuthRouter.GET("/progress", deps.CleanupHandler.Progress)
		strictAuthRouter.POST("/cancel", deps.CleanupHandler.Cancel)
		strictAuthRouter.GET("/preview", deps.CleanupHandler.Preview)
	}
}
