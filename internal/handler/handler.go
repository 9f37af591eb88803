package handler

import (
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/log"
)

type Handler struct {
	logger *log.Logger
}

func NewHandler(logger *log.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}
