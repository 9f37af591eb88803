package router

import (
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/middleware"

	"github.com/gin-gonic/gin"
)

func InitBackupRouter(
	deps RouterDeps,
	r *gin.RouterGroup,
) {
	strictAuthRouter := r.Group("/backup").Use(middleware.StrictAuth(deps.JWT, deps.Logger))
	{
		strictAuthRouter.POST("/start", deps.BackupHandler.Start)
		strictAuthRouter.GET("/progress", deps.BackupHandler.Progress)
		strictAuthRouter.POST("/cancel", deps.BackupHandler.Cancel)
		strictAuthRouter.GET("/history", deps.BackupHandler.History)
		strictAuthRouter.POST("/delete", deps.BackupHandler.Delete)
		strictAuthRouter.POST("/lock", deps.BackupHandler.SetLocked)
		strictAuthRouter.GET("/download/:backup_id", deps.BackupHandler.Download)
		strictAuthRouter.GET("/storage", deps.BackupHandler.Storages)
		strictAuthRouter.GET("/storage/test", deps.BackupHandler.TestStorage)
	}
}
