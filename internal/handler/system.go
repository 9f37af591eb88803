package handler

import (
	"errors"
	"net/http"
	"time"

	v1 "github.com/kynsofficial/siberiancms-integration-sub001/api/v1"
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/service"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/jwt"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// SystemHandler carries the secondary trigger endpoints (loopback and
// external cron) plus the websocket progress stream. The triggers only
// kick the in-process runner; the work itself never depends on them.
type SystemHandler struct {
	*Handler
	jwt             *jwt.JWT
	cleanupService  service.CleanupService
	backupService   service.BackupService
	scheduleService service.ScheduleService
}

func NewSystemHandler(
	handler *Handler,
	jwt *jwt.JWT,
	cleanupService service.CleanupService,
	backupService service.BackupService,
	scheduleService service.ScheduleService,
) *SystemHandler {
	return &SystemHandler{
		Handler:         handler,
		jwt:             jwt,
		cleanupService:  cleanupService,
		backupService:   backupService,
		scheduleService: scheduleService,
	}
}

// LoopbackTrigger godoc
// @Summary Loopback processing trigger
// @Schemes
// @Description Secondary trigger that nudges the background runner; token comes as a query parameter so plain GET clients can call it
// @Tags system
// @Produce json
// @Param token query string true "bearer token"
// @Param task_type query string false "cleanup task type"
// @Success 200 {object} v1.Response
// @Router /api/v1/trigger/loopback [get]
func (h *SystemHandler) LoopbackTrigger(ctx *gin.Context) {
	token := ctx.Query("token")
	if _, err := h.jwt.ParseToken(token); err != nil {
		v1.HandleError(ctx, http.StatusUnauthorized, v1.ErrUnauthorized, nil)
		return
	}
	h.kick(ctx.Query("task_type"))
	v1.HandleSuccess(ctx, nil)
}

// CronTrigger godoc
// @Summary External cron trigger
// @Schemes
// @Description Secondary trigger for server cron; authenticated by the configured API key, also ticks the schedule manager
// @Tags system
// @Produce json
// @Param key query string true "api key"
// @Param task_type query string false "cleanup task type"
// @Param schedule_id query string false "run one schedule instead of the due-check"
// @Success 200 {object} v1.Response
// @Router /api/v1/trigger/cron [get]
func (h *SystemHandler) CronTrigger(ctx *gin.Context) {
	h.kick(ctx.Query("task_type"))

	if id := ctx.Query("schedule_id"); id != "" {
		if err := h.scheduleService.RunNow(ctx, id); err != nil {
			if errors.Is(err, v1.ErrScheduleNotFound) {
				v1.HandleError(ctx, http.StatusNotFound, v1.ErrScheduleNotFound, nil)
				return
			}
			v1.HandleError(ctx, http.StatusInternalServerError, v1.ErrInternalServerError, nil)
			return
		}
		v1.HandleSuccess(ctx, nil)
		return
	}

	if err := h.scheduleService.Tick(ctx); err != nil {
		h.logger.WithContext(ctx).Warn("cron tick failed", zap.Error(err))
	}
	v1.HandleSuccess(ctx, nil)
}

func (h *SystemHandler) kick(taskType string) {
	if taskType != "" {
		h.cleanupService.KickBackground(taskType)
	}
	h.backupService.KickBackground()
}

// ProgressStream godoc
// @Summary Websocket progress stream
// @Schemes
// @Description Pushes backup or cleanup progress every two seconds until the run reaches a terminal state
// @Tags system
// @Param type query string true "backup or cleanup"
// @Param task_type query string false "cleanup task type"
// @Success 101
// @Router /api/v1/ws/progress [get]
func (h *SystemHandler) ProgressStream(ctx *gin.Context) {
	conn, err := wsUpgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	kind := ctx.Query("type")
	taskType := ctx.Query("task_type")

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		var payload interface{}
		done := false
		switch kind {
		case "cleanup":
			data, err := h.cleanupService.Progress(ctx, taskType)
			if err != nil {
				done = true
				break
			}
			payload = data
			done = !data.IsRunning
		default:
			data, err := h.backupService.Progress(ctx)
			if err != nil {
				done = true
				break
			}
			payload = data
			done = data.Terminal()
		}

		if payload != nil {
			if err := conn.WriteJSON(payload); err != nil {
				return
			}
		}
		if done {
			return
		}

		select {
		case <-ctx.Request.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
