package model

import "time"

// Cleanup task type constants. Each names one maintenance task over the
// Siberian application table.
const (
	TaskTypeZeroSize      = "zero_size"
	TaskTypeInactive      = "inactive"
	TaskTypeSizeViolation = "size_violation"
	TaskTypeNoUsers       = "no_users"
)

// TaskStatus constants. Transitions only move forward:
// not_started -> running -> {completed, error, cancelled}.
const (
	TaskStatusNotStarted = "not_started"
	TaskStatusRunning    = "running"
	TaskStatusCompleted  = "completed"
	TaskStatusError      = "error"
	TaskStatusCancelled  = "cancelled"
)

// Log severities used in task and backup logs.
const (
	LogSeverityInfo    = "info"
	LogSeveritySuccess = "success"
	LogSeverityWarning = "warning"
	LogSeverityError   = "error"
)

// Item outcome labels for the per-item audit trail.
const (
	ItemOutcomeDeleted = "deleted"
	ItemOutcomeWarned  = "warned"
	ItemOutcomeSkipped = "skipped"
	ItemOutcomeError   = "error"
)

// WorkItem is the snapshot of one application taken when a task was
// initialized. Batches hold snapshots, not live rows; handlers re-verify
// against the database where staleness matters.
type WorkItem struct {
	AppID          int64  `json:"app_id"`
	Name           string `json:"name"`
	SizeOnDisk     int64  `json:"size_on_disk"`
	SubscriptionID int64  `json:"subscription_id,omitempty"`
	AdminID        int64  `json:"admin_id,omitempty"`
}

type TaskLogEntry struct {
	Time     time.Time `json:"time"`
	Message  string    `json:"message"`
	Severity string    `json:"severity"`
}

type TaskItemOutcome struct {
	AppID   int64     `json:"app_id"`
	Name    string    `json:"name"`
	Outcome string    `json:"outcome"`
	Reason  string    `json:"reason,omitempty"`
	Time    time.Time `json:"time"`
}

// TaskProgress is the persisted progress record of one cleanup task,
// keyed by task type in the state store. It is the single source of truth
// for the task: every batch call is a read-modify-write of this record.
type TaskProgress struct {
	TaskType     string            `json:"task_type"`
	Status       string            `json:"status"`
	Total        int               `json:"total"`
	Processed    int               `json:"processed"`
	Progress     int               `json:"progress"`
	Batches      [][]WorkItem      `json:"batches"`
	BatchCount   int               `json:"batch_count"`
	CurrentBatch int               `json:"current_batch"`
	Deleted      int               `json:"deleted"`
	Errors       int               `json:"errors"`
	Skipped      int               `json:"skipped"`
	Warned       int               `json:"warned"`
	Logs         []TaskLogEntry    `json:"logs"`
	Items        []TaskItemOutcome `json:"detailed_item_list"`
	StartTime    time.Time         `json:"start_time"`
	LastUpdate   time.Time         `json:"last_update"`
}

// Terminal reports whether the task can no longer advance.
func (p *TaskProgress) Terminal() bool {
	switch p.Status {
	case TaskStatusCompleted, TaskStatusError, TaskStatusCancelled:
		return true
	}
	return false
}

// AppendLog adds a timestamped entry to the task log.
func (p *TaskProgress) AppendLog(severity, message string) {
	p.Logs = append(p.Logs, TaskLogEntry{Time: time.Now(), Message: message, Severity: severity})
}

// WarningRecord marks that a warning notification was sent for an item,
// and when the warning period runs out.
type WarningRecord struct {
	AppID   int64     `json:"app_id"`
	SentAt  time.Time `json:"sent_at"`
	Expires time.Time `json:"expires"`
}

// Expired reports whether the warning period has elapsed.
func (w *WarningRecord) Expired(now time.Time) bool {
	return !now.Before(w.Expires)
}
