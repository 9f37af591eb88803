package v1

import "github.com/kynsofficial/siberiancms-integration-sub001/internal/model"

// StartRestoreRequest begins restoring a backup into the live
// installation. storage names the provider to download the artifact
// from; empty means local.
type StartRestoreRequest struct {
	BackupID string `json:"backup_id" binding:"required"`
	Storage  string `json:"storage" example:"local"`
}

type RestoreRecordResponse struct {
	Response
	Data model.RestoreRecord `json:"data"`
}

// RestoreProgressData is the current restore record plus elapsed time.
type RestoreProgressData struct {
	model.RestoreRecord
	ElapsedSeconds int64 `json:"elapsed_seconds"`
}

type RestoreProgressResponse struct {
	Response
	Data RestoreProgressData `json:"data"`
}
