package handler

import (
	"net/http"

	v1 "github.com/kynsofficial/siberiancms-integration-sub001/api/v1"
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ScheduleHandler struct {
	*Handler
	scheduleService service.ScheduleService
}

func NewScheduleHandler(handler *Handler, scheduleService service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{
		Handler:         handler,
		scheduleService: scheduleService,
	}
}

// Upsert godoc
// @Summary Create or update a backup schedule
// @Schemes
// @Description At most one enabled schedule per backup type
// @Tags schedule
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body v1.UpsertScheduleRequest true "params"
// @Success 200 {object} v1.ScheduleResponse
// @Router /api/v1/schedule [post]
func (h *ScheduleHandler) Upsert(ctx *gin.Context) {
	var req v1.UpsertScheduleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	sched, err := h.scheduleService.Upsert(ctx, &req)
	if err != nil {
		h.logger.WithContext(ctx).Error("scheduleService.Upsert error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, sched)
}

// List godoc
// @Summary List backup schedules
// @Schemes
// @Description
// @Tags schedule
// @Produce json
// @Security Bearer
// @Success 200 {object} v1.ScheduleListResponse
// @Router /api/v1/schedule [get]
func (h *ScheduleHandler) List(ctx *gin.Context) {
	list, err := h.scheduleService.List(ctx)
	if err != nil {
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, list)
}

// Delete godoc
// @Summary Delete a backup schedule
// @Schemes
// @Description
// @Tags schedule
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body v1.DeleteScheduleRequest true "params"
// @Success 200 {object} v1.Response
// @Router /api/v1/schedule/delete [post]
func (h *ScheduleHandler) Delete(ctx *gin.Context) {
	var req v1.DeleteScheduleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	if err := h.scheduleService.Delete(ctx, req.ID); err != nil {
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, nil)
}

// RunNow godoc
// @Summary Trigger a schedule immediately
// @Schemes
// @Description Queues behind any running backup instead of failing
// @Tags schedule
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body v1.RunScheduleRequest true "params"
// @Success 200 {object} v1.Response
// @Router /api/v1/schedule/run [post]
func (h *ScheduleHandler) RunNow(ctx *gin.Context) {
	var req v1.RunScheduleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	if err := h.scheduleService.RunNow(ctx, req.ID); err != nil {
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, nil)
}
