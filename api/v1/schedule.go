package v1

import "github.com/kynsofficial/siberiancms-integration-sub001/internal/model"

// UpsertScheduleRequest creates or updates a recurring backup schedule.
// At most one enabled schedule may exist per backup type.
type UpsertScheduleRequest struct {
	ID            string   `json:"id"`
	Name          string   `json:"name" binding:"required"`
	BackupType    string   `json:"backup_type" binding:"required" example:"full"`
	IntervalValue int      `json:"interval_value" binding:"required" example:"12"`
	IntervalUnit  string   `json:"interval_unit" binding:"required" example:"hours"`
	Storages      []string `json:"storages"`
	AutoLock      bool     `json:"auto_lock"`
	Enabled       bool     `json:"enabled"`
}

type ScheduleResponse struct {
	Response
	Data model.BackupSchedule `json:"data"`
}

type ScheduleListResponse struct {
	Response
	Data []*model.BackupSchedule `json:"data"`
}

// DeleteScheduleRequest removes a schedule.
type DeleteScheduleRequest struct {
	ID string `json:"id" binding:"required"`
}

// RunScheduleRequest triggers one schedule immediately (also reachable
// through the external cron endpoint with the schedule id).
type RunScheduleRequest struct {
	ID string `json:"id" binding:"required"`
}
