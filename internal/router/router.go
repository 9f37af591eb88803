package router

import (
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/handler"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/jwt"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/log"

	"github.com/spf13/viper"
)

type RouterDeps struct {
	Logger          *log.Logger
	Config          *viper.Viper
	JWT             *jwt.JWT
	AuthHandler     *handler.AuthHandler
	CleanupHandler  *handler.CleanupHandler
	BackupHandler   *handler.BackupHandler
	RestoreHandler  *handler.RestoreHandler
	ScheduleHandler *handler.ScheduleHandler
	SystemHandler   *handler.SystemHandler
}
