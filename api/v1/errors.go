package v1

var (
	// common errors
	ErrSuccess             = newError(0, "ok")
	ErrBadRequest          = newError(400, "bad request")
	ErrUnauthorized        = newError(401, "unauthorized")
	ErrNotFound            = newError(404, "not found")
	ErrInternalServerError = newError(500, "internal server error")

	// cleanup task errors
	ErrUnknownTaskType    = newError(1001, "unknown cleanup task type")
	ErrTaskNotRunning     = newError(1002, "task is not running")
	ErrUnknownPreviewType = newError(1003, "unknown preview data type")

	// backup / restore errors
	ErrBackupInProgress  = newError(2001, "another backup is already in progress")
	ErrBackupNotFound    = newError(2002, "backup not found")
	ErrNoActiveBackup    = newError(2003, "no backup in progress")
	ErrInvalidBackupType = newError(2004, "invalid backup type")
	ErrStorageNotFound   = newError(2005, "storage provider not found")
	ErrRestoreInProgress = newError(2006, "another restore is already in progress")
	ErrNoActiveRestore   = newError(2007, "no restore in progress")
	ErrBackupLocked      = newError(2008, "backup is locked")

	// schedule errors
	ErrScheduleNotFound  = newError(3001, "schedule not found")
	ErrScheduleDuplicate = newError(3002, "an enabled schedule for this backup type already exists")
	ErrInvalidInterval   = newError(3003, "invalid schedule interval")
)
