package handler

import (
	"net/http"

	v1 "github.com/kynsofficial/siberiancms-integration-sub001/api/v1"
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RestoreHandler struct {
	*Handler
	restoreService service.RestoreService
}

func NewRestoreHandler(handler *Handler, restoreService service.RestoreService) *RestoreHandler {
	return &RestoreHandler{
		Handler:        handler,
		restoreService: restoreService,
	}
}

// Start godoc
// @Summary Start a restore
// @Schemes
// @Description Begins restoring a backup; the client must keep calling step until completion
// @Tags restore
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body v1.StartRestoreRequest true "params"
// @Success 200 {object} v1.RestoreRecordResponse
// @Router /api/v1/restore/start [post]
func (h *RestoreHandler) Start(ctx *gin.Context) {
	var req v1.StartRestoreRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	rec, err := h.restoreService.Start(ctx, &req)
	if err != nil {
		h.logger.WithContext(ctx).Error("restoreService.Start error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, rec)
}

// Step godoc
// @Summary Advance the restore by one unit of work
// @Schemes
// @Description
// @Tags restore
// @Accept json
// @Produce json
// @Security Bearer
// @Success 200 {object} v1.RestoreRecordResponse
// @Router /api/v1/restore/step [post]
func (h *RestoreHandler) Step(ctx *gin.Context) {
	rec, err := h.restoreService.Step(ctx)
	if err != nil {
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, rec)
}

// Progress godoc
// @Summary Poll restore progress
// @Schemes
// @Description
// @Tags restore
// @Accept json
// @Produce json
// @Security Bearer
// @Success 200 {object} v1.RestoreProgressResponse
// @Router /api/v1/restore/progress [get]
func (h *RestoreHandler) Progress(ctx *gin.Context) {
	data, err := h.restoreService.Progress(ctx)
	if err != nil {
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, data)
}

// Cancel godoc
// @Summary Cancel the running restore
// @Schemes
// @Description
// @Tags restore
// @Accept json
// @Produce json
// @Security Bearer
// @Success 200 {object} v1.Response
// @Router /api/v1/restore/cancel [post]
func (h *RestoreHandler) Cancel(ctx *gin.Context) {
	if err := h.restoreService.Cancel(ctx); err != nil {
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, nil)
}
