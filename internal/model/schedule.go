package model

import (
	"fmt"
	"time"
)

// Schedule interval units.
const (
	IntervalUnitMinutes = "minutes"
	IntervalUnitHours   = "hours"
	IntervalUnitDays    = "days"
	IntervalUnitWeeks   = "weeks"
	IntervalUnitMonths  = "months"
)

// BackupSchedule is a user-defined recurring backup, keyed by id in the
// state store. Business rule: at most one enabled schedule per backup
// type, enforced at creation time.
type BackupSchedule struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	BackupType    string   `json:"backup_type"`
	IntervalValue int      `json:"interval_value"`
	IntervalUnit  string   `json:"interval_unit"`
	Storages      []string `json:"storages"`
	AutoLock      bool     `json:"auto_lock"`
	Enabled       bool     `json:"enabled"`

	LastRun *time.Time `json:"last_run,omitempty"`
	NextRun *time.Time `json:"next_run,omitempty"`

	// retry bookkeeping for failed scheduled runs
	RetryCount  int        `json:"retry_count"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
}

// Interval converts the (value, unit) pair to a duration. Months are
// approximated as 30 days, matching the source system's granularity.
func (s *BackupSchedule) Interval() (time.Duration, error) {
	if s.IntervalValue <= 0 {
		return 0, fmt.Errorf("interval value must be positive, got %d", s.IntervalValue)
	}
	v := time.Duration(s.IntervalValue)
	switch s.IntervalUnit {
	case IntervalUnitMinutes:
		return v * time.Minute, nil
	case IntervalUnitHours:
		return v * time.Hour, nil
	case IntervalUnitDays:
		return v * 24 * time.Hour, nil
	case IntervalUnitWeeks:
		return v * 7 * 24 * time.Hour, nil
	case IntervalUnitMonths:
		return v * 30 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown interval unit %q", s.IntervalUnit)
	}
}

// Due reports whether the schedule should run now.
func (s *BackupSchedule) Due(now time.Time) bool {
	if !s.Enabled {
		return false
	}
	if s.NextRetryAt != nil {
		return !now.Before(*s.NextRetryAt)
	}
	return s.NextRun != nil && !now.Before(*s.NextRun)
}

// ScheduleMap holds all schedules keyed by id.
type ScheduleMap map[string]*BackupSchedule

// QueuedBackup is a schedule run deferred because another backup was in
// flight, re-checked before the regular due-check.
type QueuedBackup struct {
	ScheduleID string    `json:"schedule_id"`
	QueuedAt   time.Time `json:"queued_at"`
	RecheckAt  time.Time `json:"recheck_at"`
}

// QueueMap holds queued runs keyed by schedule id.
type QueueMap map[string]*QueuedBackup
