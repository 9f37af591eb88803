package handler

import (
	"net/http"

	v1 "github.com/kynsofficial/siberiancms-integration-sub001/api/v1"
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/service"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type BackupHandler struct {
	*Handler
	backupService service.BackupService
	storages      *storage.Manager
}

func NewBackupHandler(handler *Handler, backupService service.BackupService, storages *storage.Manager) *BackupHandler {
	return &BackupHandler{
		Handler:       handler,
		backupService: backupService,
		storages:      storages,
	}
}

// Start godoc
// @Summary Start a backup
// @Schemes
// @Description Starts a db, file or full backup; only one may run at a time
// @Tags backup
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body v1.StartBackupRequest true "params"
// @Success 200 {object} v1.BackupRecordResponse
// @Router /api/v1/backup/start [post]
func (h *BackupHandler) Start(ctx *gin.Context) {
	var req v1.StartBackupRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	rec, err := h.backupService.Start(ctx, &req)
	if err != nil {
		h.logger.WithContext(ctx).Error("backupService.Start error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, rec)
}

// Progress godoc
// @Summary Poll backup progress
// @Schemes
// @Description
// @Tags backup
// @Accept json
// @Produce json
// @Security Bearer
// @Success 200 {object} v1.BackupProgressResponse
// @Router /api/v1/backup/progress [get]
func (h *BackupHandler) Progress(ctx *gin.Context) {
	data, err := h.backupService.Progress(ctx)
	if err != nil {
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, data)
}

// Cancel godoc
// @Summary Cancel the running backup
// @Schemes
// @Description
// @Tags backup
// @Accept json
// @Produce json
// @Security Bearer
// @Success 200 {object} v1.Response
// @Router /api/v1/backup/cancel [post]
func (h *BackupHandler) Cancel(ctx *gin.Context) {
	if err := h.backupService.Cancel(ctx); err != nil {
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, nil)
}

// History godoc
// @Summary List completed backups
// @Schemes
// @Description Newest first
// @Tags backup
// @Accept json
// @Produce json
// @Security Bearer
// @Success 200 {object} v1.BackupHistoryResponse
// @Router /api/v1/backup/history [get]
func (h *BackupHandler) History(ctx *gin.Context) {
	list, err := h.backupService.History(ctx)
	if err != nil {
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, list)
}

// Delete godoc
// @Summary Delete a backup
// @Schemes
// @Description Removes the history entry and the artifact on every storage destination; locked backups are refused
// @Tags backup
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body v1.DeleteBackupRequest true "params"
// @Success 200 {object} v1.Response
// @Router /api/v1/backup/delete [post]
func (h *BackupHandler) Delete(ctx *gin.Context) {
	var req v1.DeleteBackupRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	if err := h.backupService.Delete(ctx, req.BackupID); err != nil {
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, nil)
}

// SetLocked godoc
// @Summary Lock or unlock a backup
// @Schemes
// @Description Locked backups are exempt from retention pruning and deletion
// @Tags backup
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body v1.LockBackupRequest true "params"
// @Success 200 {object} v1.Response
// @Router /api/v1/backup/lock [post]
func (h *BackupHandler) SetLocked(ctx *gin.Context) {
	var req v1.LockBackupRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	if err := h.backupService.SetLocked(ctx, req.BackupID, req.Locked); err != nil {
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}
	v1.HandleSuccess(ctx, nil)
}

// Download godoc
// @Summary Download a backup artifact
// @Schemes
// @Description Streams the local copy of the artifact
// @Tags backup
// @Produce octet-stream
// @Security Bearer
// @Param backup_id path string true "backup id"
// @Success 200 {file} binary
// @Router /api/v1/backup/download/{backup_id} [get]
func (h *BackupHandler) Download(ctx *gin.Context) {
	backupID := ctx.Param("backup_id")
	path, err := h.backupService.ArtifactLocalPath(ctx, backupID)
	if err != nil {
		v1.HandleError(ctx, http.StatusNotFound, err, nil)
		return
	}
	ctx.FileAttachment(path, "siberian-backup-"+backupID+".zip")
}

// TestStorage godoc
// @Summary Test a storage provider
// @Schemes
// @Description Verifies the provider is reachable and writable
// @Tags backup
// @Accept json
// @Produce json
// @Security Bearer
// @Param provider query string true "provider name"
// @Success 200 {object} v1.Response
// @Router /api/v1/backup/storage/test [get]
func (h *BackupHandler) TestStorage(ctx *gin.Context) {
	var req v1.TestStorageRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	provider, err := h.storages.Get(req.Provider)
	if err != nil {
		v1.HandleError(ctx, http.StatusNotFound, v1.ErrStorageNotFound, nil)
		return
	}
	if err := provider.Test(ctx); err != nil {
		h.logger.WithContext(ctx).Warn("storage test failed", zap.String("provider", req.Provider), zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, gin.H{"provider": req.Provider})
		return
	}
	v1.HandleSuccess(ctx, gin.H{"provider": req.Provider})
}

// Storages godoc
// @Summary List configured storage providers
// @Schemes
// @Description
// @Tags backup
// @Produce json
// @Security Bearer
// @Success 200 {object} v1.Response
// @Router /api/v1/backup/storage [get]
func (h *BackupHandler) Storages(ctx *gin.Context) {
	v1.HandleSuccess(ctx, h.storages.Names())
}
