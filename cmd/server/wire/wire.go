//go:build wireinject
// +build wireinject

package wire

import (
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/engine"
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/handler"
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/job"
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/repository"
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/router"
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/server"
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/service"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/app"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/jwt"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/log"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/server/http"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/sid"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/storage"

	"github.com/google/wire"
	"github.com/spf13/viper"
)

var repositorySet = wire.NewSet(
	repository.NewDB,
	repository.NewRedis,
	repository.NewRepository,
	repository.NewTransaction,
	repository.NewStateStore,
	repository.NewApplicationRepository,
	repository.NewDumpRepository,
)

var engineSet = wire.NewSet(
	engine.NewEngine,
	engine.NewRunner,
)

var serviceSet = wire.NewSet(
	service.NewService,
	service.NewNotifier,
	service.NewAuthService,
	service.NewCleanupService,
	service.NewBackupService,
	service.NewRestoreService,
	service.NewScheduleService,
)

var handlerSet = wire.NewSet(
	handler.NewHandler,
	handler.NewAuthHandler,
	handler.NewCleanupHandler,
	handler.NewBackupHandler,
	handler.NewRestoreHandler,
	handler.NewScheduleHandler,
	handler.NewSystemHandler,
)

var jobSet = wire.NewSet(
	job.NewJob,
)
var serverSet = wire.NewSet(
	server.NewHTTPServer,
	server.NewJobServer,
)

// build App
func newApp(
	httpServer *http.Server,
	jobServer *server.JobServer,
) *app.App {
	return app.NewApp(
		app.WithServer(httpServer, jobServer),
		app.WithName("siberian-maintenance"),
	)
}

func NewWire(*viper.Viper, *log.Logger) (*app.App, func(), error) {
	panic(wire.Build(
		repositorySet,
		engineSet,
		serviceSet,
		handlerSet,
		jobSet,
		serverSet,
		storage.NewManager,
		wire.Struct(new(router.RouterDeps), "*"),
		sid.NewSid,
		jwt.NewJwt,
		newApp,
	))
}
