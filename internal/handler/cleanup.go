package handler

import (
	"net/http"

	v1 "github.com/kynsofficial/siberiancms-integration-sub001/api/v1"
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type CleanupHandler struct {
	*Handler
	cleanupService service.CleanupService
}

func NewCleanupHandler(handler *Handler, cleanupService service.CleanupService) *CleanupHandler {
	return &CleanupHandler{
		Handler:        handler,
		cleanupService: cleanupService,
	}
}

// StartTask godoc
// @Summary Start a cleanup task
// @Schemes
// @Description Starts a cleanup task of the given type, discarding any previous run
// @Tags cleanup
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body v1.StartCleanupTaskRequest true "params"
// @Success 200 {object} v1.CleanupBatchResponse
// @Router /api/v1/cleanup/start [post]
func (h *CleanupHandler) StartTask(ctx *gin.Context) {
	var req v1.StartCleanupTaskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	data, err := h.cleanupService.StartTask(ctx, req.TaskType)
	if err != nil {
		h.logger.WithContext(ctx).Error("cleanupService.StartTask error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, data)
}

// ProcessBatch godoc
// @Summary Process one batch of a cleanup task
// @Schemes
// @Description Advances the task by exactly one batch; stale indexes are acknowledged without reprocessing
// @Tags cleanup
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body v1.ProcessCleanupBatchRequest true "params"
// @Success 200 {object} v1.CleanupBatchResponse
// @Router /api/v1/cleanup/batch [post]
func (h *CleanupHandler) ProcessBatch(ctx *gin.Context) {
	var req v1.ProcessCleanupBatchRequest
	if err := ctx.ShouldBindJSON(&req); err != nil || req.BatchIndex == nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	data, err := h.cleanupService.ProcessBatch(ctx, req.TaskType, *req.BatchIndex)
	if err != nil {
		h.logger.WithContext(ctx).Error("cleanupService.ProcessBatch error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, data)
}

// Progress godoc
// @Summary Poll cleanup task progress
// @Schemes
// @Description
// @Tags cleanup
// @Accept json
// @Produce json
// @Security Bearer
// @Param task_type query string true "task type"
// @Success 200 {object} v1.CleanupProgressResponse
// @Router /api/v1/cleanup/progress [get]
func (h *CleanupHandler) Progress(ctx *gin.Context) {
	var req v1.CleanupProgressRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	data, err := h.cleanupService.Progress(ctx, req.TaskType)
	if err != nil {
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, data)
}

// Cancel godoc
// @Summary Cancel a running cleanup task
// @Schemes
// @Description
// @Tags cleanup
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body v1.CancelCleanupTaskRequest true "params"
// @Success 200 {object} v1.Response
// @Router /api/v1/cleanup/cancel [post]
func (h *CleanupHandler) Cancel(ctx *gin.Context) {
	var req v1.CancelCleanupTaskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	if err := h.cleanupService.Cancel(ctx, req.TaskType); err != nil {
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, nil)
}

// Preview godoc
// @Summary Preview cleanup candidates
// @Schemes
// @Description Read-only paged listing of the items a task would act on
// @Tags cleanup
// @Accept json
// @Produce json
// @Security Bearer
// @Param data_type query string true "data type"
// @Param page query int false "page"
// @Param page_size query int false "page size"
// @Success 200 {object} v1.PreviewResponse
// @Router /api/v1/cleanup/preview [get]
func (h *CleanupHandler) Preview(ctx *gin.Context) {
	var req v1.PreviewRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	data, err := h.cleanupService.Preview(ctx, &req)
	if err != nil {
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, data)
}
