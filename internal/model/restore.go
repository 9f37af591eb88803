package model

import "time"

// Restore statuses.
const (
	RestoreStatusProcessing = "processing"
	RestoreStatusCompleted  = "completed"
	RestoreStatusError      = "error"
	RestoreStatusCancelled  = "cancelled"
)

// Restore step labels, in execution order.
const (
	RestoreStepDownload = "download"
	RestoreStepExtract  = "extract"
	RestoreStepDB       = "db"
	RestoreStepFiles    = "files"
	RestoreStepDone     = "done"
)

// RestoreRecord is the persisted state of the restore in progress. It is
// driven entirely by foreground polling; each step call applies one
// bounded unit of work.
type RestoreRecord struct {
	BackupID string `json:"backup_id"`
	Storage  string `json:"storage"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`

	HasDB    bool `json:"has_db"`
	HasFiles bool `json:"has_files"`

	CurrentStep string `json:"current_step"`

	// db step position
	ProcessedTables int      `json:"processed_tables"`
	Tables          []string `json:"tables,omitempty"`

	// file step position
	ProcessedFiles int `json:"processed_files"`
	TotalFiles     int `json:"total_files"`

	WorkDir string `json:"work_dir,omitempty"`

	Started    time.Time `json:"started"`
	LastUpdate time.Time `json:"last_update"`
	ErrMessage string    `json:"error_message,omitempty"`

	Logs []TaskLogEntry `json:"logs,omitempty"`
}

// Terminal reports whether the restore can no longer advance.
func (r *RestoreRecord) Terminal() bool {
	switch r.Status {
	case RestoreStatusCompleted, RestoreStatusError, RestoreStatusCancelled:
		return true
	}
	return false
}

// AppendLog adds a timestamped entry to the restore log.
func (r *RestoreRecord) AppendLog(severity, message string) {
	r.Logs = append(r.Logs, TaskLogEntry{Time: time.Now(), Message: message, Severity: severity})
}
