package server

import (
	apiV1 "github.com/kynsofficial/siberiancms-integration-sub001/api/v1"
	"github.com/kynsofficial/siberiancms-integration-sub001/docs"
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/middleware"
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/router"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/server/http"

	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func NewHTTPServer(
	deps router.RouterDeps,
) *http.Server {
	if deps.Config.GetString("env") == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	s := http.NewServer(
		gin.Default(),
		deps.Logger,
		http.WithServerHost(deps.Config.GetString("http.host")),
		http.WithServerPort(deps.Config.GetInt("http.port")),
	)

	// swagger doc
	docs.SwaggerInfo.BasePath = "/"
	s.GET("/swagger/*any", ginSwagger.WrapHandler(
		swaggerfiles.Handler,
		ginSwagger.DefaultModelsExpandDepth(-1),
		ginSwagger.PersistAuthorization(true),
	))

	s.Use(
		middleware.CORSMiddleware(),
		middleware.ResponseLogMiddleware(deps.Logger),
		middleware.RequestLogMiddleware(deps.Logger),
	)
	s.GET("/", func(ctx *gin.Context) {
		apiV1.HandleSuccess(ctx, map[string]interface{}{
			":)": "Siberian maintenance service is up",
		})
	})

	v1 := s.Group("/api/v1")
	router.InitAuthRouter(deps, v1)
	router.InitCleanupRouter(deps, v1)
	router.InitBackupRouter(deps, v1)
	router.InitRestoreRouter(deps, v1)
	router.InitScheduleRouter(deps, v1)
	router.InitSystemRouter(deps, v1)

	return s
}
