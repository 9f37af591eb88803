package v1

import "github.com/kynsofficial/siberiancms-integration-sub001/internal/model"

// StartBackupRequest kicks off a new backup. storage_providers is
// ordered; the first entry is the primary destination and local is
// always included.
type StartBackupRequest struct {
	BackupType       string   `json:"backup_type" binding:"required" example:"full"`
	StorageProviders []string `json:"storage_providers" example:"local,s3"`
	IncludePaths     []string `json:"include_paths"`
	ExcludePaths     []string `json:"exclude_paths"`
	LockBackup       bool     `json:"lock_backup"`

	// ScheduleID is set by the schedule manager, never by clients.
	ScheduleID string `json:"-"`
}

type BackupRecordResponse struct {
	Response
	Data model.BackupRecord `json:"data"`
}

// BackupProgressData is the current record plus derived display fields.
type BackupProgressData struct {
	model.BackupRecord
	ElapsedSeconds int64  `json:"elapsed_seconds"`
	HeartbeatAge   int64  `json:"heartbeat_age"`
	PhaseDisplay   string `json:"phase_display"`
}

type BackupProgressResponse struct {
	Response
	Data BackupProgressData `json:"data"`
}

type BackupHistoryResponse struct {
	Response
	Data []*model.BackupRecord `json:"data"`
}

// DeleteBackupRequest removes a backup from history and from every
// storage destination it was uploaded to.
type DeleteBackupRequest struct {
	BackupID string `json:"backup_id" binding:"required"`
}

// LockBackupRequest toggles retention exemption for a backup.
type LockBackupRequest struct {
	BackupID string `json:"backup_id" binding:"required"`
	Locked   bool   `json:"locked"`
}

// TestStorageRequest probes a configured storage provider.
type TestStorageRequest struct {
	Provider string `form:"provider" binding:"required" example:"s3"`
}
