package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/kynsofficial/siberiancms-integration-sub001/cmd/server/wire"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/config"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/log"

	"go.uber.org/zap"
)

// @title           Siberian Maintenance API
// @version         1.0.0
// @description     Cleanup, backup, restore and scheduling service for Siberian CMS installations.
// @host      localhost:8000
// @securityDefinitions.apiKey Bearer
// @in header
// @name Authorization
func main() {
	var envConf = flag.String("conf", "config/local.yml", "config path, eg: -conf ./config/local.yml")
	flag.Parse()
	conf := config.NewConfig(*envConf)

	logger := log.NewLog(conf)

	app, cleanup, err := wire.NewWire(conf, logger)
	defer cleanup()
	if err != nil {
		panic(err)
	}
	logger.Info("server start", zap.String("host", fmt.Sprintf("http://%s:%d", conf.GetString("http.host"), conf.GetInt("http.port"))))
	logger.Info("docs addr", zap.String("addr", fmt.Sprintf("http://%s:%d/swagger/index.html", conf.GetString("http.host"), conf.GetInt("http.port"))))
	if err = app.Run(context.Background()); err != nil {
		panic(err)
	}
}
