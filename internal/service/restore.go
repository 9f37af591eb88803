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
	"time"

	v1 "github.com/kynsofficial/siberiancms-integration-sub001/api/v1"
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/model"
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/repository"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/archive"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/hash"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/log"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/storage"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// RestoreService drives restoring a backup artifact back into the live
// installation. Unlike backups it runs foreground: every Step call from
// the polling client applies one bounded unit of work, so progress halts
// the moment the client goes away.
type RestoreService interface {
	Start(ctx context.Context, req *v1.StartRestoreRequest) (*model.RestoreRecord, error)
	// Step advances the restore by one unit of work and returns the
	// updated record.
	Step(ctx context.Context) (*model.RestoreRecord, error)
	Progress(ctx context.Context) (*v1.RestoreProgressData, error)
	Cancel(ctx context.Context) error
}

func NewRestoreService(
	service *Service,
	conf *viper.Viper,
	store repository.StateStore,
	dumpRepo repository.DumpRepository,
	storages *storage.Manager,
	backupSvc BackupService,
	logger *log.Logger,
) RestoreService {
	return &restoreService{
		Service:   service,
		conf:      conf,
		store:     store,
		dumpRepo:  dumpRepo,
		storages:  storages,
		backupSvc: backupSvc,
		logger:    logger,
	}
}

type restoreService struct {
	*Service
	conf      *viper.Viper
	store     repository.StateStore
	dumpRepo  repository.DumpRepository
	storages  *storage.Manager
	backupSvc BackupService
	logger    *log.Logger
}

func (s *restoreService) Start(ctx context.Context, req *v1.StartRestoreRequest) (*model.RestoreRecord, error) {
	cur, found, err := s.current(ctx)
	if err != nil {
		return nil, v1.ErrInternalServerError
	}
	if found && !cur.Terminal() {
		return nil, v1.ErrRestoreInProgress
	}

	// A restore must never run while a backup is writing the same tree.
	busy, err := s.backupSvc.InFlight(ctx)
	if err != nil {
		return nil, v1.ErrInternalServerError
	}
	if busy {
		return nil, v1.ErrBackupInProgress
	}

	backups, err := s.backupSvc.History(ctx)
	if err != nil {
		return nil, err
	}
	var backup *model.BackupRecord
	for _, b := range backups {
		if b.ID == req.BackupID {
			backup = b
			break
		}
	}
	if backup == nil {
		return nil, v1.ErrBackupNotFound
	}

	providerName := req.Storage
	if providerName == "" {
		providerName = storage.ProviderLocal
	}
	if _, err := s.storages.Get(providerName); err != nil {
		return nil, v1.ErrStorageNotFound
	}

	now := time.Now()
	rec := &model.RestoreRecord{
		BackupID:    backup.ID,
		Storage:     providerName,
		Status:      model.RestoreStatusProcessing,
		HasDB:       backup.IncludesDB(),
		HasFiles:    backup.IncludesFiles(),
		CurrentStep: model.RestoreStepDownload,
		WorkDir:     filepath.Join(s.conf.GetString("siberian.backup_dir"), "restore", backup.ID),
		Started:     now,
		LastUpdate:  now,
	}
	rec.AppendLog(model.LogSeverityInfo, fmt.Sprintf("Restore of backup %s started from %s", backup.ID, providerName))

	if err := s.save(ctx, rec); err != nil {
		return nil, v1.ErrInternalServerError
	}
	return rec, nil
}

func (s *restoreService) Step(ctx context.Context) (*model.RestoreRecord, error) {
	rec, found, err := s.current(ctx)
	if err != nil {
		return nil, v1.ErrInternalServerError
	}
	if !found {
		return nil, v1.ErrNoActiveRestore
	}
	if rec.Terminal() {
		return rec, nil
	}

	switch rec.CurrentStep {
	case model.RestoreStepDownload:
		err = s.stepDownload(ctx, rec)
	case model.RestoreStepExtract:
		err = s.stepExtract(rec)
	case model.RestoreStepDB:
		err = s.stepRestoreTable(ctx, rec)
	case model.RestoreStepFiles:
		err = s.stepRestoreFile(rec)
	default:
		err = fmt.Errorf("restore in unexpected step %q", rec.CurrentStep)
	}
	if err != nil {
		rec.Status = model.RestoreStatusError
		rec.ErrMessage = err.Error()
		rec.AppendLog(model.LogSeverityError, "Restore failed: "+err.Error())
		s.cleanup(rec)
		s.logger.WithContext(ctx).Error("restore failed",
			zap.String("backup_id", rec.BackupID), zap.String("step", rec.CurrentStep), zap.Error(err))
	}

	rec.LastUpdate = time.Now()
	if saveErr := s.save(ctx, rec); saveErr != nil {
		return nil, v1.ErrInternalServerError
	}
	return rec, nil
}

func (s *restoreService) stepDownload(ctx context.Context, rec *model.RestoreRecord) error {
	if err := os.MkdirAll(rec.WorkDir, 0o755); err != nil {
		return err
	}

	backups, err := s.backupSvc.History(ctx)
	if err != nil {
		return err
	}
	var backup *model.BackupRecord
	for _, b := range backups {
		if b.ID == rec.BackupID {
			backup = b
			break
		}
	}
	if backup == nil {
		return fmt.Errorf("backup %s vanished from history", rec.BackupID)
	}

	provider, err := s.storages.Get(rec.Storage)
	if err != nil {
		return err
	}
	archivePath := filepath.Join(rec.WorkDir, backup.ArtifactKey)
	if err := provider.Download(ctx, backup.ArtifactKey, archivePath); err != nil {
		return fmt.Errorf("download artifact: %w", err)
	}
	if backup.Checksum != "" {
		sum, err := hash.FileSHA256(archivePath)
		if err != nil {
			return err
		}
		if sum != backup.Checksum {
			return fmt.Errorf("artifact checksum mismatch for backup %s", backup.ID)
		}
	}

	rec.CurrentStep = model.RestoreStepExtract
	rec.Progress = 10
	rec.AppendLog(model.LogSeverityInfo, "Artifact downloaded")
	return nil
}

func (s *restoreService) stepExtract(rec *model.RestoreRecord) error {
	entries, err := os.ReadDir(rec.WorkDir)
	if err != nil {
		return err
	}
	archivePath := ""
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".zip") {
			archivePath = filepath.Join(rec.WorkDir, e.Name())
			break
		}
	}
	if archivePath == "" {
		return fmt.Errorf("no archive found in %s", rec.WorkDir)
	}

	extracted := filepath.Join(rec.WorkDir, "extracted")
	if err := archive.Unzip(archivePath, extracted); err != nil {
		return fmt.Errorf("extract archive: %w", err)
	}

	if rec.HasDB {
		tables, err := listTableDumps(filepath.Join(extracted, "db"))
		if err != nil {
			return err
		}
		rec.Tables = tables
		rec.CurrentStep = model.RestoreStepDB
	} else {
		rec.CurrentStep = model.RestoreStepFiles
	}
	if rec.HasFiles {
		count, err := countFiles(filepath.Join(extracted, "files"))
		if err != nil {
			return err
		}
		rec.TotalFiles = count
	}

	rec.Progress = 20
	rec.AppendLog(model.LogSeverityInfo, fmt.Sprintf(
		"Archive extracted: %d tables, %d files", len(rec.Tables), rec.TotalFiles))
	return nil
}

func listTableDumps(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var tables []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".json") {
			tables = append(tables, strings.TrimSuffix(e.Name(), ".json"))
		}
	}
	sort.Strings(tables)
	return tables, nil
}

func countFiles(dir string) (int, error) {
	count := 0
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.Mode().IsRegular() {
			count++
		}
		return nil
	})
	if os.IsNotExist(err) {
		return 0, nil
	}
	return count, err
}

func (s *restoreService) stepRestoreTable(ctx context.Context, rec *model.RestoreRecord) error {
	if rec.ProcessedTables >= len(rec.Tables) {
		if rec.HasFiles {
			rec.CurrentStep = model.RestoreStepFiles
			rec.AppendLog(model.LogSeverityInfo, "Database restored, restoring files")
		} else {
			s.complete(rec)
		}
		return nil
	}

	table := rec.Tables[rec.ProcessedTables]
	dumpPath := filepath.Join(rec.WorkDir, "extracted", "db", table+".json")
	raw, err := os.ReadFile(dumpPath)
	if err != nil {
		return err
	}
	var doc struct {
		Table string                   `json:"table"`
		Rows  []map[string]interface{} `json:"rows"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode dump for %s: %w", table, err)
	}
	if err := s.dumpRepo.RestoreTable(ctx, table, doc.Rows); err != nil {
		return fmt.Errorf("restore table %s: %w", table, err)
	}

	rec.ProcessedTables++
	rec.Progress = s.progress(rec)
	return nil
}

// stepRestoreFile copies the next batch of extracted files back to their
// original locations. Files are small by the time they are staged, so a
// fixed batch keeps the step bounded without being glacial.
func (s *restoreService) stepRestoreFile(rec *model.RestoreRecord) error {
	const filesPerStep = 50

	extracted := filepath.Join(rec.WorkDir, "extracted", "files")
	paths, err := collectFiles(extracted)
	if err != nil {
		return err
	}
	if rec.ProcessedFiles >= len(paths) {
		s.complete(rec)
		return nil
	}

	end := rec.ProcessedFiles + filesPerStep
	if end > len(paths) {
		end = len(paths)
	}
	for _, src := range paths[rec.ProcessedFiles:end] {
		rel, err := filepath.Rel(extracted, src)
		if err != nil {
			return err
		}
		target := string(os.PathSeparator) + rel
		if err := copyFile(src, target); err != nil {
			return fmt.Errorf("restore %s: %w", target, err)
		}
	}
	rec.ProcessedFiles = end
	rec.Progress = s.progress(rec)
	if rec.ProcessedFiles >= len(paths) {
		s.complete(rec)
	}
	return nil
}

func collectFiles(dir string) ([]string, error) {
	var paths []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.Mode().IsRegular() {
			paths = append(paths, path)
		}
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	sort.Strings(paths)
	return paths, err
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

func (s *restoreService) complete(rec *model.RestoreRecord) {
	rec.Status = model.RestoreStatusCompleted
	rec.CurrentStep = model.RestoreStepDone
	rec.Progress = 100
	rec.AppendLog(model.LogSeveritySuccess, "Restore completed")
	s.cleanup(rec)
}

func (s *restoreService) cleanup(rec *model.RestoreRecord) {
	if rec.WorkDir != "" {
		_ = os.RemoveAll(rec.WorkDir)
	}
}

func (s *restoreService) progress(rec *model.RestoreRecord) int {
	dbFrac, fileFrac := 0.0, 0.0
	if len(rec.Tables) > 0 {
		dbFrac = float64(rec.ProcessedTables) / float64(len(rec.Tables))
	}
	if rec.TotalFiles > 0 {
		fileFrac = float64(rec.ProcessedFiles) / float64(rec.TotalFiles)
	}

	var p float64
	switch {
	case rec.HasDB && rec.HasFiles:
		p = 20 + dbFrac*40 + fileFrac*39
	case rec.HasDB:
		p = 20 + dbFrac*79
	default:
		p = 20 + fileFrac*79
	}
	if p > 99 {
		p = 99
	}
	return int(p)
}

func (s *restoreService) Progress(ctx context.Context) (*v1.RestoreProgressData, error) {
	rec, found, err := s.current(ctx)
	if err != nil {
		return nil, v1.ErrInternalServerError
	}
	if !found {
		return nil, v1.ErrNoActiveRestore
	}
	return &v1.RestoreProgressData{
		RestoreRecord:  *rec,
		ElapsedSeconds: int64(time.Since(rec.Started).Seconds()),
	}, nil
}

func (s *restoreService) Cancel(ctx context.Context) error {
	rec, found, err := s.current(ctx)
	if err != nil {
		return v1.ErrInternalServerError
	}
	if !found || rec.Terminal() {
		return v1.ErrNoActiveRestore
	}
	rec.Status = model.RestoreStatusCancelled
	rec.AppendLog(model.LogSeverityWarning, "Restore cancelled by user")
	s.cleanup(rec)
	if err := s.save(ctx, rec); err != nil {
		return v1.ErrInternalServerError
	}
	return nil
}

func (s *restoreService) current(ctx context.Context) (*model.RestoreRecord, bool, error) {
	var rec model.RestoreRecord
	found, err := s.store.Get(ctx, repository.KeyRestoreCurrent, &rec)
	if err != nil || !found {
		return nil, found, err
	}
	return &rec, true, nil
}

func (s *restoreService) save(ctx context.Context, rec *model.RestoreRecord) error {
	return s.store.Set(ctx, repository.KeyRestoreCurrent, rec, 0)
}
