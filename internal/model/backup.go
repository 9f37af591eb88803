package model

import "time"

// Backup types.
const (
	BackupTypeDB   = "db"
	BackupTypeFile = "file"
	BackupTypeFull = "full"
)

// Backup statuses. error is reachable from any state; cancelled only by
// explicit user request.
const (
	BackupStatusInitializing = "initializing"
	BackupStatusProcessing   = "processing"
	BackupStatusPhaseDB      = "phase_db"
	BackupStatusPhaseFiles   = "phase_files"
	BackupStatusFinalize     = "phase_finalize"
	BackupStatusUploading    = "uploading"
	BackupStatusCompleted    = "completed"
	BackupStatusError        = "error"
	BackupStatusCancelled    = "cancelled"
)

// DBPhaseStatus tracks progress through the table-dump phase.
type DBPhaseStatus struct {
	ProcessedTables int      `json:"processed_tables"`
	TotalTables     int      `json:"total_tables"`
	CurrentTable    string   `json:"current_table"`
	Tables          []string `json:"tables,omitempty"`
}

// FilePhaseStatus tracks progress through the file-archive phase.
type FilePhaseStatus struct {
	CurrentFileIndex int    `json:"current_file_index"`
	TotalFiles       int    `json:"total_files"`
	CurrentFile      string `json:"current_file"`
}

// BackupRecord is the persisted state of one backup run. A single
// non-terminal record is allowed at a time (`current` key in the store);
// completed records move into the history map keyed by id.
type BackupRecord struct {
	ID         string `json:"id"`
	BackupType string `json:"backup_type"`
	Status     string `json:"status"`
	Progress   int    `json:"progress"`

	CurrentPhase string          `json:"current_phase,omitempty"`
	DBStatus     DBPhaseStatus   `json:"db_status"`
	FileStatus   FilePhaseStatus `json:"file_status"`

	// Large single-file transfers legitimately outlive the ordinary
	// stall threshold; the watchdog relaxes its limit while this is set.
	IsProcessingLargeFile bool `json:"is_processing_large_file"`
	CurrentFileProgress   int  `json:"current_file_progress"`

	StorageProviders []string          `json:"storage_providers"`
	UploadedTo       []string          `json:"uploaded_to,omitempty"`
	FailedUploads    []string          `json:"failed_uploads,omitempty"`
	AllStorageInfo   map[string]string `json:"all_storage_info,omitempty"`

	IncludePaths []string `json:"include_paths,omitempty"`
	ExcludePaths []string `json:"exclude_paths,omitempty"`
	WorkDir      string   `json:"work_dir,omitempty"`

	Locked     bool   `json:"locked"`
	Scheduled  bool   `json:"scheduled"`
	ScheduleID string `json:"schedule_id,omitempty"`

	ArtifactPath string `json:"artifact_path,omitempty"`
	ArtifactKey  string `json:"artifact_key,omitempty"`
	SizeBytes    int64  `json:"size_bytes"`
	Checksum     string `json:"checksum,omitempty"`

	Started    time.Time  `json:"started"`
	Heartbeat  time.Time  `json:"heartbeat"`
	Completed  *time.Time `json:"completed,omitempty"`
	ErrMessage string     `json:"error_message,omitempty"`

	Logs []TaskLogEntry `json:"logs,omitempty"`
}

// Terminal reports whether the backup can no longer advance.
func (b *BackupRecord) Terminal() bool {
	switch b.Status {
	case BackupStatusCompleted, BackupStatusError, BackupStatusCancelled:
		return true
	}
	return false
}

// IncludesDB reports whether the run dumps the database.
func (b *BackupRecord) IncludesDB() bool {
	return b.BackupType == BackupTypeDB || b.BackupType == BackupTypeFull
}

// IncludesFiles reports whether the run archives files.
func (b *BackupRecord) IncludesFiles() bool {
	return b.BackupType == BackupTypeFile || b.BackupType == BackupTypeFull
}

// AppendLog adds a timestamped entry to the backup log.
func (b *BackupRecord) AppendLog(severity, message string) {
	b.Logs = append(b.Logs, TaskLogEntry{Time: time.Now(), Message: message, Severity: severity})
}

// BackupCheckpoint is the resume snapshot flushed periodically during the
// file phase. Restoring it into a live record is enough to continue after
// the process died mid-phase.
type BackupCheckpoint struct {
	BackupID        string    `json:"backup_id"`
	ProcessedFiles  int       `json:"processed_files"`
	ProcessedDirs   int       `json:"processed_dirs"`
	TotalSize       int64     `json:"total_size"`
	PendingFiles    []string  `json:"pending_files"`
	LargeFilesQueue []string  `json:"large_files_queue"`
	RetryFiles      []string  `json:"retry_files"`
	SavedAt         time.Time `json:"saved_at"`
}

// BackupHistory is the retained map of completed backups keyed by id.
type BackupHistory map[string]*BackupRecord
