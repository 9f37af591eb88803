package router

import (
	"github.com/gin-gonic/gin"
)

func InitAuthRouter(
	deps RouterDeps,
	r *gin.RouterGroup,
) {
	// No route group has permission
	noAuthRouter := r.Group("/")
	{
		noAuthRouter.POST("/login", deps.AuthHandler.Login)
	}
}
