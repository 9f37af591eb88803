package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	v1 "github.com/kynsofficial/siberiancms-integration-sub001/api/v1"
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/engine"
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/model"
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/repository"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/archive"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/hash"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/log"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/storage"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	backupContinuation = "backup"

	// stallThreshold is how stale a heartbeat may get before the
	// watchdog intervenes; large single-file transfers get double.
	stallThreshold          = 5 * time.Minute
	largeFileStallThreshold = 10 * time.Minute

	defaultLargeFileThresholdMB = 100
	defaultCheckpointInterval   = 10
)

type BackupService interface {
	Start(ctx context.Context, req *v1.StartBackupRequest) (*model.BackupRecord, error)
	Progress(ctx context.Context) (*v1.BackupProgressData, error)
	Cancel(ctx context.Context) error
	History(ctx context.Context) ([]*model.BackupRecord, error)
	Delete(ctx context.Context, backupID string) error
	SetLocked(ctx context.Context, backupID string, locked bool) error

	// InFlight reports whether a non-terminal backup exists; the
	// schedule manager queues runs behind it.
	InFlight(ctx context.Context) (bool, error)

	// CheckStalled is the watchdog: compares the heartbeat age against
	// the active threshold and either resumes from checkpoint or forces
	// the record into error.
	CheckStalled(ctx context.Context) error

	// CleanupOldBackups enforces per-type retention limits. Locked
	// backups are exempt regardless of age.
	CleanupOldBackups(ctx context.Context) error

	KickBackground()
	ArtifactLocalPath(ctx context.Context, backupID string) (string, error)
}

func NewBackupService(
	service *Service,
	conf *viper.Viper,
	runner *engine.Runner,
	store repository.StateStore,
	dumpRepo repository.DumpRepository,
	storages *storage.Manager,
	notifier Notifier,
	logger *log.Logger,
) BackupService {
	s := &backupService{
		Service:  service,
		conf:     conf,
		runner:   runner,
		store:    store,
		dumpRepo: dumpRepo,
		storages: storages,
		notifier: notifier,
		logger:   logger,
	}
	runner.Register(backupContinuation, s.continuation)
	return s
}

// backupRun caches the file-phase queues between checkpoint flushes.
// Losing it (process death) only costs the units since the last flush;
// re-copying a file is idempotent.
type backupRun struct {
	backupID       string
	pending        []string
	largeQueue     []string
	retry          []string
	retried        map[string]bool
	processedFiles int
	processedDirs  int
	totalSize      int64
	sinceFlush     int
	scanned        bool
}

type backupService struct {
	*Service
	conf     *viper.Viper
	runner   *engine.Runner
	store    repository.StateStore
	dumpRepo repository.DumpRepository
	storages *storage.Manager
	notifier Notifier
	logger   *log.Logger

	mu  sync.Mutex
	run *backupRun
}

func validBackupType(t string) bool {
	switch t {
	case model.BackupTypeDB, model.BackupTypeFile, model.BackupTypeFull:
		return true
	}
	return false
}

func (s *backupService) Start(ctx context.Context, req *v1.StartBackupRequest) (*model.BackupRecord, error) {
	if !validBackupType(req.BackupType) {
		return nil, v1.ErrInvalidBackupType
	}

	inFlight, err := s.InFlight(ctx)
	if err != nil {
		return nil, v1.ErrInternalServerError
	}
	if inFlight {
		return nil, v1.ErrBackupInProgress
	}

	providers, err := s.normalizeProviders(req.StorageProviders)
	if err != nil {
		return nil, v1.ErrStorageNotFound
	}

	id, err := s.sid.GenString()
	if err != nil {
		s.logger.WithContext(ctx).Error("backup id generation failed", zap.Error(err))
		return nil, v1.ErrInternalServerError
	}

	now := time.Now()
	rec := &model.BackupRecord{
		ID:               id,
		BackupType:       req.BackupType,
		Status:           model.BackupStatusInitializing,
		StorageProviders: providers,
		AllStorageInfo:   map[string]string{},
		IncludePaths:     req.IncludePaths,
		ExcludePaths:     req.ExcludePaths,
		Locked:           req.LockBackup,
		Scheduled:        req.ScheduleID != "",
		ScheduleID:       req.ScheduleID,
		Started:          now,
		Heartbeat:        now,
		WorkDir:          filepath.Join(s.conf.GetString("siberian.backup_dir"), "work", id),
	}
	rec.AppendLog(model.LogSeverityInfo, fmt.Sprintf("Backup %s started (%s)", id, req.BackupType))

	if err := s.saveCurrent(ctx, rec); err != nil {
		return nil, v1.ErrInternalServerError
	}

	s.mu.Lock()
	s.run = nil
	s.mu.Unlock()

	s.runner.Kick(backupContinuation)
	return rec, nil
}

// normalizeProviders validates the requested provider names and makes
// sure local is present and first.
func (s *backupService) normalizeProviders(requested []string) ([]string, error) {
	providers := []string{storage.ProviderLocal}
	for _, name := range requested {
		if name == storage.ProviderLocal {
			continue
		}
		if _, err := s.storages.Get(name); err != nil {
			return nil, err
		}
		providers = append(providers, name)
	}
	return providers, nil
}

func (s *backupService) Progress(ctx context.Context) (*v1.BackupProgressData, error) {
	rec, found, err := s.current(ctx)
	if err != nil {
		return nil, v1.ErrInternalServerError
	}
	if !found {
		return nil, v1.ErrNoActiveBackup
	}

	// Opportunistic watchdog pass from the poll path.
	if !rec.Terminal() {
		if err := s.CheckStalled(ctx); err != nil {
			s.logger.WithContext(ctx).Warn("stall check failed", zap.Error(err))
		}
		rec, _, _ = s.current(ctx)
	}

	data := &v1.BackupProgressData{
		BackupRecord:   *rec,
		ElapsedSeconds: int64(time.Since(rec.Started).Seconds()),
		HeartbeatAge:   int64(time.Since(rec.Heartbeat).Seconds()),
		PhaseDisplay:   phaseDisplay(rec),
	}
	return data, nil
}

func phaseDisplay(rec *model.BackupRecord) string {
	switch rec.Status {
	case model.BackupStatusPhaseDB:
		return fmt.Sprintf("Dumping database (%d/%d tables, current: %s)",
			rec.DBStatus.ProcessedTables, rec.DBStatus.TotalTables, rec.DBStatus.CurrentTable)
	case model.BackupStatusPhaseFiles:
		return fmt.Sprintf("Archiving files (%d/%d, current: %s)",
			rec.FileStatus.CurrentFileIndex, rec.FileStatus.TotalFiles, rec.FileStatus.CurrentFile)
	case model.BackupStatusFinalize:
		return "Finalizing archive"
	case model.BackupStatusUploading:
		return fmt.Sprintf("Uploading to storage (%d/%d providers)",
			len(rec.UploadedTo)+len(rec.FailedUploads), len(rec.StorageProviders))
	case model.BackupStatusCompleted:
		return "Completed"
	case model.BackupStatusError:
		return "Failed: " + rec.ErrMessage
	case model.BackupStatusCancelled:
		return "Cancelled"
	}
	return "Preparing"
}

func (s *backupService) Cancel(ctx context.Context) error {
	rec, found, err := s.current(ctx)
	if err != nil {
		return v1.ErrInternalServerError
	}
	if !found || rec.Terminal() {
		return v1.ErrNoActiveBackup
	}
	rec.Status = model.BackupStatusCancelled
	rec.AppendLog(model.LogSeverityWarning, "Backup cancelled by user")
	if err := s.saveCurrent(ctx, rec); err != nil {
		return v1.ErrInternalServerError
	}
	s.cleanupRun(ctx, rec)
	return nil
}

func (s *backupService) History(ctx context.Context) ([]*model.BackupRecord, error) {
	history, err := s.history(ctx)
	if err != nil {
		return nil, v1.ErrInternalServerError
	}
	list := make([]*model.BackupRecord, 0, len(history))
	for _, rec := range history {
		list = append(list, rec)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Started.After(list[j].Started)
	})
	return list, nil
}

func (s *backupService) Delete(ctx context.Context, backupID string) error {
	history, err := s.history(ctx)
	if err != nil {
		return v1.ErrInternalServerError
	}
	rec, ok := history[backupID]
	if !ok {
		return v1.ErrBackupNotFound
	}
	if rec.Locked {
		return v1.ErrBackupLocked
	}
	s.deleteEverywhere(ctx, rec)
	delete(history, backupID)
	if err := s.store.Set(ctx, repository.KeyBackupHistory, history, 0); err != nil {
		return v1.ErrInternalServerError
	}
	return nil
}

// deleteEverywhere removes the artifact from every storage destination
// that holds it. Individual provider failures are logged, not fatal; the
// history entry still goes away.
func (s *backupService) deleteEverywhere(ctx context.Context, rec *model.BackupRecord) {
	for providerName := range rec.AllStorageInfo {
		provider, err := s.storages.Get(providerName)
		if err != nil {
			continue
		}
		if err := provider.Delete(ctx, rec.ArtifactKey); err != nil {
			s.logger.WithContext(ctx).Warn("artifact delete failed",
				zap.String("backup_id", rec.ID), zap.String("provider", providerName), zap.Error(err))
		}
	}
}

func (s *backupService) SetLocked(ctx context.Context, backupID string, locked bool) error {
	history, err := s.history(ctx)
	if err != nil {
		return v1.ErrInternalServerError
	}
	rec, ok := history[backupID]
	if !ok {
		return v1.ErrBackupNotFound
	}
	rec.Locked = locked
	if err := s.store.Set(ctx, repository.KeyBackupHistory, history, 0); err != nil {
		return v1.ErrInternalServerError
	}
	return nil
}

func (s *backupService) InFlight(ctx context.Context) (bool, error) {
	rec, found, err := s.current(ctx)
	if err != nil {
		return false, err
	}
	return found && !rec.Terminal(), nil
}

func (s *backupService) KickBackground() {
	s.runner.Kick(backupContinuation)
}

func (s *backupService) ArtifactLocalPath(ctx context.Context, backupID string) (string, error) {
	history, err := s.history(ctx)
	if err != nil {
		return "", v1.ErrInternalServerError
	}
	rec, ok := history[backupID]
	if !ok {
		return "", v1.ErrBackupNotFound
	}
	local, ok := s.storages.Local().(*storage.Local)
	if !ok {
		return "", v1.ErrInternalServerError
	}
	return local.Path(rec.ArtifactKey), nil
}

// ---- background driving ----

// continuation advances the current backup by up to max_steps bounded
// units of work, then yields. The runner's advisory lock guarantees only
// one driver at a time; overlapping triggers observe the lock and skip.
func (s *backupService) continuation(ctx context.Context) (bool, error) {
	maxSteps := engine.ClampSteps(s.conf.GetInt("backup.max_steps"))
	for i := 0; i < maxSteps; i++ {
		if engine.MemoryGuardTripped() {
			s.logger.Warn("memory guard tripped, yielding backup driver")
			return false, nil
		}
		rec, found, err := s.current(ctx)
		if err != nil {
			return false, err
		}
		if !found || rec.Terminal() {
			return true, nil
		}
		if err := s.step(ctx, rec); err != nil {
			s.fail(ctx, rec, err)
			return true, nil
		}
	}
	rec, found, err := s.current(ctx)
	if err != nil || !found {
		return true, err
	}
	return rec.Terminal(), nil
}

// step performs exactly one bounded unit of work and persists the
// updated record with a fresh heartbeat.
func (s *backupService) step(ctx context.Context, rec *model.BackupRecord) error {
	var err error
	switch rec.Status {
	case model.BackupStatusInitializing:
		err = s.stepInitialize(ctx, rec)
	case model.BackupStatusPhaseDB:
		err = s.stepDumpTable(ctx, rec)
	case model.BackupStatusPhaseFiles:
		err = s.stepArchiveFile(ctx, rec)
	case model.BackupStatusFinalize:
		err = s.stepFinalize(ctx, rec)
	case model.BackupStatusUploading:
		err = s.stepUpload(ctx, rec)
	default:
		return fmt.Errorf("backup %s in unexpected status %q", rec.ID, rec.Status)
	}
	if err != nil {
		return err
	}
	rec.Heartbeat = time.Now()
	return s.saveCurrent(ctx, rec)
}

func (s *backupService) stepInitialize(ctx context.Context, rec *model.BackupRecord) error {
	if err := os.MkdirAll(rec.WorkDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	if rec.IncludesDB() {
		tables, err := s.dumpRepo.ListTables(ctx)
		if err != nil {
			return err
		}
		rec.DBStatus = model.DBPhaseStatus{Tables: tables, TotalTables: len(tables)}
		rec.Status = model.BackupStatusPhaseDB
		rec.CurrentPhase = "db"
		rec.AppendLog(model.LogSeverityInfo, fmt.Sprintf("Database phase: %d tables", len(tables)))
		return nil
	}
	rec.Status = model.BackupStatusPhaseFiles
	rec.CurrentPhase = "files"
	rec.AppendLog(model.LogSeverityInfo, "File phase started")
	return nil
}

func (s *backupService) stepDumpTable(ctx context.Context, rec *model.BackupRecord) error {
	idx := rec.DBStatus.ProcessedTables
	if idx >= rec.DBStatus.TotalTables {
		if rec.IncludesFiles() {
			rec.Status = model.BackupStatusPhaseFiles
			rec.CurrentPhase = "files"
			rec.AppendLog(model.LogSeverityInfo, "File phase started")
		} else {
			rec.Status = model.BackupStatusFinalize
			rec.CurrentPhase = "finalize"
		}
		return nil
	}

	table := rec.DBStatus.Tables[idx]
	rec.DBStatus.CurrentTable = table

	rows, err := s.dumpRepo.DumpTable(ctx, table)
	if err != nil {
		return err
	}
	if err := s.writeTableDump(rec.WorkDir, table, rows); err != nil {
		return err
	}

	rec.DBStatus.ProcessedTables = idx + 1
	rec.Progress = s.overallProgress(rec)
	return nil
}

func (s *backupService) writeTableDump(workDir, table string, rows []map[string]interface{}) error {
	dir := filepath.Join(workDir, "db")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	doc := map[string]interface{}{"table": table, "rows": rows}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode table %s: %w", table, err)
	}
	return os.WriteFile(filepath.Join(dir, table+".json"), raw, 0o644)
}

// stepArchiveFile copies one file into the staging tree, or performs the
// initial scan, or flushes a checkpoint, whichever is due.
func (s *backupService) stepArchiveFile(ctx context.Context, rec *model.BackupRecord) error {
	run, err := s.loadRun(ctx, rec)
	if err != nil {
		return err
	}

	if !run.scanned {
		if err := s.scanSources(rec, run); err != nil {
			return err
		}
		rec.FileStatus.TotalFiles = len(run.pending) + len(run.largeQueue)
		rec.AppendLog(model.LogSeverityInfo, fmt.Sprintf(
			"File scan: %d files (%d large), %d dirs", rec.FileStatus.TotalFiles, len(run.largeQueue), run.processedDirs))
		return s.flushCheckpoint(ctx, rec, run)
	}

	if run.sinceFlush >= s.checkpointInterval() {
		return s.flushCheckpoint(ctx, rec, run)
	}

	// Ordinary files first, then the large-file queue, then one retry
	// pass over previously failed files.
	var (
		path  string
		large bool
	)
	switch {
	case len(run.pending) > 0:
		path, run.pending = run.pending[0], run.pending[1:]
	case len(run.largeQueue) > 0:
		path, run.largeQueue = run.largeQueue[0], run.largeQueue[1:]
		large = true
	case len(run.retry) > 0:
		path, run.retry = run.retry[0], run.retry[1:]
	default:
		rec.IsProcessingLargeFile = false
		rec.Status = model.BackupStatusFinalize
		rec.CurrentPhase = "finalize"
		rec.AppendLog(model.LogSeverityInfo, fmt.Sprintf(
			"File phase done: %d files, %d bytes", run.processedFiles, run.totalSize))
		return s.flushCheckpoint(ctx, rec, run)
	}

	rec.IsProcessingLargeFile = large
	rec.FileStatus.CurrentFile = path
	rec.CurrentFileProgress = 0

	size, err := s.stageFile(rec, path)
	if err != nil {
		if !run.retried[path] {
			run.retried[path] = true
			run.retry = append(run.retry, path)
			rec.AppendLog(model.LogSeverityWarning, fmt.Sprintf("File %s failed, queued for retry: %v", path, err))
		} else {
			rec.AppendLog(model.LogSeverityError, fmt.Sprintf("File %s failed twice, skipped: %v", path, err))
		}
	} else {
		run.processedFiles++
		run.totalSize += size
	}
	run.sinceFlush++
	rec.CurrentFileProgress = 100
	rec.FileStatus.CurrentFileIndex = run.processedFiles
	rec.Progress = s.overallProgress(rec)
	return nil
}

// scanSources walks the include paths and buckets every file into the
// pending or large-file queue. Exclude paths and the backup directory
// itself are skipped.
func (s *backupService) scanSources(rec *model.BackupRecord, run *backupRun) error {
	includes := rec.IncludePaths
	if len(includes) == 0 {
		includes = []string{s.conf.GetString("siberian.source_dir")}
	}
	excludes := append([]string{}, rec.ExcludePaths...)
	excludes = append(excludes, s.conf.GetString("siberian.backup_dir"))

	largeThreshold := int64(s.conf.GetInt("backup.large_file_threshold_mb"))
	if largeThreshold <= 0 {
		largeThreshold = defaultLargeFileThresholdMB
	}
	largeThreshold *= 1024 * 1024

	for _, root := range includes {
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil // unreadable entries are skipped, not fatal
			}
			for _, ex := range excludes {
				if ex != "" && strings.HasPrefix(path, ex) {
					if info.IsDir() {
						return filepath.SkipDir
					}
					return nil
				}
			}
			if info.IsDir() {
				run.processedDirs++
				return nil
			}
			if !info.Mode().IsRegular() {
				return nil
			}
			if info.Size() >= largeThreshold {
				run.largeQueue = append(run.largeQueue, path)
			} else {
				run.pending = append(run.pending, path)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("scan %s: %w", root, err)
		}
	}
	run.scanned = true
	return nil
}

// stageFile copies one source file into the staging tree, preserving its
// path relative to the filesystem root.
func (s *backupService) stageFile(rec *model.BackupRecord, path string) (int64, error) {
	rel := strings.TrimPrefix(filepath.ToSlash(path), "/")
	target := filepath.Join(rec.WorkDir, "files", filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}
	src, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer src.Close()
	dst, err := os.Create(target)
	if err != nil {
		return 0, err
	}
	defer dst.Close()
	n, err := io.Copy(dst, src)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *backupService) checkpointInterval() int {
	n := s.conf.GetInt("backup.checkpoint_interval")
	if n <= 0 {
		n = defaultCheckpointInterval
	}
	return n
}

func (s *backupService) loadRun(ctx context.Context, rec *model.BackupRecord) (*backupRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != nil && s.run.backupID == rec.ID {
		return s.run, nil
	}

	run := &backupRun{backupID: rec.ID, retried: map[string]bool{}}
	var cp model.BackupCheckpoint
	found, err := s.store.Get(ctx, repository.CheckpointKey(rec.ID), &cp)
	if err != nil {
		return nil, err
	}
	if found {
		run.pending = cp.PendingFiles
		run.largeQueue = cp.LargeFilesQueue
		run.retry = cp.RetryFiles
		run.processedFiles = cp.ProcessedFiles
		run.processedDirs = cp.ProcessedDirs
		run.totalSize = cp.TotalSize
		run.scanned = true
	}
	s.run = run
	return run, nil
}

func (s *backupService) flushCheckpoint(ctx context.Context, rec *model.BackupRecord, run *backupRun) error {
	cp := model.BackupCheckpoint{
		BackupID:        rec.ID,
		ProcessedFiles:  run.processedFiles,
		ProcessedDirs:   run.processedDirs,
		TotalSize:       run.totalSize,
		PendingFiles:    run.pending,
		LargeFilesQueue: run.largeQueue,
		RetryFiles:      run.retry,
		SavedAt:         time.Now(),
	}
	run.sinceFlush = 0
	return s.store.Set(ctx, repository.CheckpointKey(rec.ID), cp, 0)
}

func (s *backupService) stepFinalize(ctx context.Context, rec *model.BackupRecord) error {
	manifest := map[string]interface{}{
		"id":          rec.ID,
		"backup_type": rec.BackupType,
		"created":     rec.Started.Unix(),
		"has_db":      rec.IncludesDB(),
		"has_files":   rec.IncludesFiles(),
		"tables":      rec.DBStatus.Tables,
	}
	raw, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(rec.WorkDir, "manifest.json"), raw, 0o644); err != nil {
		return err
	}

	artifactName := fmt.Sprintf("siberian-backup-%s-%s.zip", rec.ID, rec.BackupType)
	artifactPath := filepath.Join(s.conf.GetString("siberian.backup_dir"), "tmp", artifactName)
	if err := os.MkdirAll(filepath.Dir(artifactPath), 0o755); err != nil {
		return err
	}

	// Zipping the whole staging tree can take a while for big installs;
	// flag it so the watchdog applies the relaxed threshold.
	rec.IsProcessingLargeFile = true
	if err := s.saveCurrent(ctx, rec); err != nil {
		return err
	}
	if err := archive.ZipDir(rec.WorkDir, artifactPath); err != nil {
		return fmt.Errorf("build archive: %w", err)
	}
	rec.IsProcessingLargeFile = false

	info, err := os.Stat(artifactPath)
	if err != nil {
		return err
	}
	checksum, err := hash.FileSHA256(artifactPath)
	if err != nil {
		return err
	}
	rec.ArtifactPath = artifactPath
	rec.ArtifactKey = artifactName
	rec.SizeBytes = info.Size()
	rec.Checksum = checksum
	rec.Status = model.BackupStatusUploading
	rec.CurrentPhase = "upload"
	rec.AppendLog(model.LogSeverityInfo, fmt.Sprintf("Archive built: %s (%d bytes)", artifactName, info.Size()))
	return nil
}

// stepUpload ships the artifact to the next pending provider. Partial
// failure (some providers fail) is reported distinctly and never rolls
// back successful uploads.
func (s *backupService) stepUpload(ctx context.Context, rec *model.BackupRecord) error {
	next := ""
	for _, name := range rec.StorageProviders {
		if !contains(rec.UploadedTo, name) && !contains(rec.FailedUploads, name) {
			next = name
			break
		}
	}
	if next == "" {
		return s.finish(ctx, rec)
	}

	provider, err := s.storages.Get(next)
	if err != nil {
		rec.FailedUploads = append(rec.FailedUploads, next)
		rec.AppendLog(model.LogSeverityError, fmt.Sprintf("Unknown storage provider %s", next))
		return nil
	}

	rec.IsProcessingLargeFile = true
	if err := s.saveCurrent(ctx, rec); err != nil {
		return err
	}
	remoteID, err := provider.Upload(ctx, rec.ArtifactPath, rec.ArtifactKey)
	rec.IsProcessingLargeFile = false
	if err != nil {
		rec.FailedUploads = append(rec.FailedUploads, next)
		rec.AppendLog(model.LogSeverityError, fmt.Sprintf("Upload to %s failed: %v", next, err))
		s.logger.WithContext(ctx).Error("upload failed",
			zap.String("backup_id", rec.ID), zap.String("provider", next), zap.Error(err))
		return nil
	}

	rec.UploadedTo = append(rec.UploadedTo, next)
	rec.AllStorageInfo[next] = remoteID
	rec.AppendLog(model.LogSeveritySuccess, fmt.Sprintf("Uploaded to %s", next))
	return nil
}

// finish closes out the run: terminal status, history entry, retention
// pruning, scratch cleanup, completion notification.
func (s *backupService) finish(ctx context.Context, rec *model.BackupRecord) error {
	now := time.Now()
	rec.Completed = &now
	rec.Progress = 100

	switch {
	case len(rec.UploadedTo) == 0:
		rec.Status = model.BackupStatusError
		rec.ErrMessage = "all storage uploads failed"
		rec.AppendLog(model.LogSeverityError, "Backup failed: no storage destination accepted the artifact")
	case len(rec.FailedUploads) > 0:
		rec.Status = model.BackupStatusCompleted
		rec.AppendLog(model.LogSeverityWarning, fmt.Sprintf(
			"Backup completed with partial upload failure (ok: %s, failed: %s)",
			strings.Join(rec.UploadedTo, ","), strings.Join(rec.FailedUploads, ",")))
	default:
		rec.Status = model.BackupStatusCompleted
		rec.AppendLog(model.LogSeveritySuccess, "Backup completed")
	}

	if rec.Status == model.BackupStatusCompleted {
		history, err := s.history(ctx)
		if err != nil {
			return err
		}
		history[rec.ID] = rec
		if err := s.store.Set(ctx, repository.KeyBackupHistory, history, 0); err != nil {
			return err
		}
		if err := s.CleanupOldBackups(ctx); err != nil {
			s.logger.WithContext(ctx).Warn("retention pruning failed", zap.Error(err))
		}
	}

	s.cleanupRun(ctx, rec)

	event := "backup_completed"
	if rec.Status == model.BackupStatusError {
		event = "backup_failed"
	}
	if err := s.notifier.NotifyBackupEvent(ctx, event, rec); err != nil {
		s.logger.WithContext(ctx).Warn("backup notification failed", zap.Error(err))
	}
	return nil
}

// cleanupRun drops run-scoped scratch state: staging tree, checkpoint,
// in-memory queues.
func (s *backupService) cleanupRun(ctx context.Context, rec *model.BackupRecord) {
	_ = s.store.Delete(ctx, repository.CheckpointKey(rec.ID))
	if rec.WorkDir != "" {
		_ = os.RemoveAll(rec.WorkDir)
	}
	if rec.ArtifactPath != "" {
		_ = os.Remove(rec.ArtifactPath)
	}
	s.mu.Lock()
	if s.run != nil && s.run.backupID == rec.ID {
		s.run = nil
	}
	s.mu.Unlock()
}

func (s *backupService) fail(ctx context.Context, rec *model.BackupRecord, cause error) {
	rec.Status = model.BackupStatusError
	rec.ErrMessage = cause.Error()
	rec.AppendLog(model.LogSeverityError, "Backup failed: "+cause.Error())
	if err := s.saveCurrent(ctx, rec); err != nil {
		s.logger.WithContext(ctx).Error("persist failed backup state", zap.Error(err))
	}
	s.cleanupRun(ctx, rec)
	if err := s.notifier.NotifyBackupEvent(ctx, "backup_failed", rec); err != nil {
		s.logger.WithContext(ctx).Warn("backup notification failed", zap.Error(err))
	}
}

// overallProgress maps phase positions onto a single 0-100 scale. The
// weighting is display-only: db 40%, files 50%, finalize/upload 10% for
// full backups; single-phase backups stretch their phase accordingly.
func (s *backupService) overallProgress(rec *model.BackupRecord) int {
	dbFrac, fileFrac := 0.0, 0.0
	if rec.DBStatus.TotalTables > 0 {
		dbFrac = float64(rec.DBStatus.ProcessedTables) / float64(rec.DBStatus.TotalTables)
	}
	if rec.FileStatus.TotalFiles > 0 {
		fileFrac = float64(rec.FileStatus.CurrentFileIndex) / float64(rec.FileStatus.TotalFiles)
	}

	var p float64
	switch rec.BackupType {
	case model.BackupTypeDB:
		p = dbFrac * 90
	case model.BackupTypeFile:
		p = fileFrac * 90
	default:
		p = dbFrac*40 + fileFrac*50
	}
	if p > 99 {
		p = 99 // 100 is reserved for terminal states
	}
	return int(p)
}

// ---- watchdog ----

func (s *backupService) CheckStalled(ctx context.Context) error {
	rec, found, err := s.current(ctx)
	if err != nil {
		return err
	}
	if !found || rec.Terminal() {
		return nil
	}

	threshold := stallThreshold
	if rec.IsProcessingLargeFile {
		threshold = largeFileStallThreshold
	}
	age := time.Since(rec.Heartbeat)
	if age <= threshold {
		return nil
	}

	var cp model.BackupCheckpoint
	haveCheckpoint, err := s.store.Get(ctx, repository.CheckpointKey(rec.ID), &cp)
	if err != nil {
		return err
	}

	if haveCheckpoint && rec.Status == model.BackupStatusPhaseFiles {
		// Resume: rebuild the live queues from the checkpoint and let
		// the runner pick the backup up again.
		s.mu.Lock()
		s.run = &backupRun{
			backupID:       rec.ID,
			pending:        cp.PendingFiles,
			largeQueue:     cp.LargeFilesQueue,
			retry:          cp.RetryFiles,
			retried:        map[string]bool{},
			processedFiles: cp.ProcessedFiles,
			processedDirs:  cp.ProcessedDirs,
			totalSize:      cp.TotalSize,
			scanned:        true,
		}
		s.mu.Unlock()

		rec.FileStatus.CurrentFileIndex = cp.ProcessedFiles
		rec.IsProcessingLargeFile = false
		rec.Heartbeat = time.Now()
		rec.AppendLog(model.LogSeverityWarning, fmt.Sprintf(
			"Stall detected after %ds, resumed from checkpoint (%d files done)", int(age.Seconds()), cp.ProcessedFiles))
		if err := s.saveCurrent(ctx, rec); err != nil {
			return err
		}
		s.runner.Kick(backupContinuation)
		s.logger.WithContext(ctx).Warn("backup resumed from checkpoint",
			zap.String("backup_id", rec.ID), zap.Int("processed_files", cp.ProcessedFiles))
		return nil
	}

	rec.Status = model.BackupStatusError
	rec.ErrMessage = fmt.Sprintf("backup stalled: no progress for %ds", int(age.Seconds()))
	rec.AppendLog(model.LogSeverityError, rec.ErrMessage)
	if err := s.saveCurrent(ctx, rec); err != nil {
		return err
	}
	s.cleanupRun(ctx, rec)
	s.logger.WithContext(ctx).Error("backup marked stalled",
		zap.String("backup_id", rec.ID), zap.Int64("heartbeat_age_s", int64(age.Seconds())))
	return nil
}

// ---- retention ----

func (s *backupService) CleanupOldBackups(ctx context.Context) error {
	history, err := s.history(ctx)
	if err != nil {
		return err
	}

	limits := map[string]int{
		model.BackupTypeDB:   s.retentionLimit(model.BackupTypeDB),
		model.BackupTypeFile: s.retentionLimit(model.BackupTypeFile),
		model.BackupTypeFull: s.retentionLimit(model.BackupTypeFull),
	}

	changed := false
	for backupType, limit := range limits {
		if limit <= 0 {
			continue
		}
		var candidates []*model.BackupRecord
		for _, rec := range history {
			if rec.BackupType == backupType && !rec.Locked {
				candidates = append(candidates, rec)
			}
		}
		if len(candidates) <= limit {
			continue
		}
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].Started.Before(candidates[j].Started)
		})
		for _, victim := range candidates[:len(candidates)-limit] {
			s.deleteEverywhere(ctx, victim)
			delete(history, victim.ID)
			changed = true
			s.logger.WithContext(ctx).Info("retention pruned backup",
				zap.String("backup_id", victim.ID), zap.String("type", backupType))
		}
	}

	if changed {
		return s.store.Set(ctx, repository.KeyBackupHistory, history, 0)
	}
	return nil
}

func (s *backupService) retentionLimit(backupType string) int {
	return s.conf.GetInt("backup.retention." + backupType)
}

// ---- record access ----

func (s *backupService) current(ctx context.Context) (*model.BackupRecord, bool, error) {
	var rec model.BackupRecord
	found, err := s.store.Get(ctx, repository.KeyBackupCurrent, &rec)
	if err != nil || !found {
		return nil, found, err
	}
	return &rec, true, nil
}

func (s *backupService) saveCurrent(ctx context.Context, rec *model.BackupRecord) error {
	return s.store.Set(ctx, repository.KeyBackupCurrent, rec, 0)
}

func (s *backupService) history(ctx context.Context) (model.BackupHistory, error) {
	history := model.BackupHistory{}
	if _, err := s.store.Get(ctx, repository.KeyBackupHistory, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
