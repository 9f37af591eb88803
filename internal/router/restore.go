package router

import (
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/middleware"

	"github.com/gin-gonic/gin"
)

func InitRestoreRouter(
	deps RouterDeps,
	r *gin.RouterGroup,
) {
	strictAuthRouter := r.Group("/restore").Use(middleware.StrictAuth(deps.JWT, deps.Logger))
	{
		strictAuthRouter.POST("/start", deps.RestoreHandler.Start)
		strictAuthRouter.POST("/step", deps.RestoreHandler.Step)
		strictAuthRouter.GET("/progress", deps.RestoreHandler.Progress)
		strictAuthRouter.POST("/cancel", deps.RestoreHandler.Cancel)
	}
}
