package v1

import "github.com/kynsofficial/siberiancms-integration-sub001/internal/model"

// StartCleanupTaskRequest starts (or restarts) a cleanup task. Starting
// discards any prior progress record for the task type.
type StartCleanupTaskRequest struct {
	TaskType string `json:"task_type" binding:"required" example:"zero_size"`
}

// ProcessCleanupBatchRequest advances a task by one batch.
type ProcessCleanupBatchRequest struct {
	TaskType   string `json:"task_type" binding:"required" example:"zero_size"`
	BatchIndex *int   `json:"batch_index" binding:"required" example:"0"`
}

// CleanupBatchData is returned by start and process-batch calls.
type CleanupBatchData struct {
	Success    bool `json:"success"`
	Progress   int  `json:"progress"`
	NextBatch  int  `json:"next_batch"`
	Completed  bool `json:"completed"`
	BatchCount int  `json:"batch_count"`
}

type CleanupBatchResponse struct {
	Response
	Data CleanupBatchData `json:"data"`
}

// CleanupProgressRequest polls task progress.
type CleanupProgressRequest struct {
	TaskType string `form:"task_type" binding:"required" example:"zero_size"`
}

// CleanupProgressData is the full progress record plus derived fields the
// UI needs. Batch contents are omitted; they can be large.
type CleanupProgressData struct {
	TaskType     string                  `json:"task_type"`
	Status       string                  `json:"status"`
	Total        int                     `json:"total"`
	Processed    int                     `json:"processed"`
	Progress     int                     `json:"progress"`
	BatchCount   int                     `json:"batch_count"`
	CurrentBatch int                     `json:"current_batch"`
	Deleted      int                     `json:"deleted"`
	Errors       int                     `json:"errors"`
	Skipped      int                     `json:"skipped"`
	Warned       int                     `json:"warned"`
	Logs         []model.TaskLogEntry    `json:"logs"`
	Items        []model.TaskItemOutcome `json:"detailed_item_list"`
	StartTime    int64                   `json:"start_time"`
	LastUpdate   int64                   `json:"last_update"`

	IsRunning         bool  `json:"is_running"`
	BackgroundEnabled bool  `json:"background_enabled"`
	HeartbeatAge      int64 `json:"heartbeat_age"`
}

type CleanupProgressResponse struct {
	Response
	Data CleanupProgressData `json:"data"`
}

// CancelCleanupTaskRequest cancels a running task.
type CancelCleanupTaskRequest struct {
	TaskType string `json:"task_type" binding:"required" example:"zero_size"`
}

// PreviewRequest pages through the read-only listing of a task's
// candidate items.
type PreviewRequest struct {
	DataType string `form:"data_type" binding:"required" example:"inactive"`
	Page     int    `form:"page" example:"1"`
	PageSize int    `form:"page_size" example:"25"`
}

type PreviewData struct {
	Title      string                   `json:"title"`
	Headers    []string                 `json:"headers"`
	Fields     []string                 `json:"fields"`
	Items      []map[string]interface{} `json:"items"`
	Total      int                      `json:"total"`
	Page       int                      `json:"page"`
	TotalPages int                      `json:"total_pages"`
}

type PreviewResponse struct {
	Response
	Data PreviewData `json:"data"`
}
