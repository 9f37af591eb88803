package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	v1 "github.com/kynsofficial/siberiancms-integration-sub001/api/v1"
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/engine"
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/model"
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/repository"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/jwt"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/log"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/sid"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type backupFixture struct {
	svc      BackupService
	base     *Service
	runner   *engine.Runner
	store    repository.StateStore
	db       *gorm.DB
	conf     *viper.Viper
	notifier *recordingNotifier
	storages *storage.Manager
	dumpRepo repository.DumpRepository
	logger   *log.Logger
	srcDir   string
}

func newBackupFixture(t *testing.T) *backupFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Application{}, &model.Admin{}))

	mr := miniredis.RunT(t)
	store := repository.NewStateStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	srcDir := t.TempDir()
	backupDir := t.TempDir()

	conf := viper.New()
	conf.Set("security.jwt.key", "test-key")
	conf.Set("siberian.source_dir", srcDir)
	conf.Set("siberian.backup_dir", backupDir)
	conf.Set("backup.max_steps", 25)
	conf.Set("backup.checkpoint_interval", 3)
	conf.Set("backup.large_file_threshold_mb", 100)
	conf.Set("backup.retention.db", 2)
	conf.Set("backup.retention.file", 2)
	conf.Set("backup.retention.full", 2)

	logger := &log.Logger{Logger: zap.NewNop()}
	repo := repository.NewRepository(logger, db, nil)
	base := NewService(repository.NewTransaction(repo), logger, sid.NewSid(), jwt.NewJwt(conf))

	storages, err := storage.NewManager(conf)
	require.NoError(t, err)

	runner := engine.NewRunner(store, logger)
	notifier := &recordingNotifier{}

	dumpRepo := repository.NewDumpRepository(repo)
	svc := NewBackupService(base, conf, runner, store, dumpRepo, storages, notifier, logger)
	return &backupFixture{
		svc: svc, base: base, runner: runner, store: store, db: db,
		conf: conf, notifier: notifier, storages: storages,
		dumpRepo: dumpRepo, logger: logger, srcDir: srcDir,
	}
}

func (f *backupFixture) startRunner(t *testing.T) {
	t.Helper()
	require.NoError(t, f.runner.Start(context.Background()))
	t.Cleanup(func() { _ = f.runner.Stop(context.Background()) })
}

func (f *backupFixture) waitTerminal(t *testing.T) *model.BackupRecord {
	t.Helper()
	var rec model.BackupRecord
	require.Eventually(t, func() bool {
		found, err := f.store.Get(context.Background(), repository.KeyBackupCurrent, &rec)
		return err == nil && found && rec.Terminal()
	}, 15*time.Second, 50*time.Millisecond)
	return &rec
}

func seedSourceFiles(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "var", "apps"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.php"), []byte("<?php phpinfo();"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "var", "apps", "app.bin"), []byte("binary-data"), 0o644))
}

func TestFullBackupLifecycle(t *testing.T) {
	f := newBackupFixture(t)
	f.startRunner(t)
	ctx := context.Background()

	require.NoError(t, f.db.Create(&model.Application{AppID: 1, Name: "one", SizeOnDisk: 10, IsActive: 1}).Error)
	seedSourceFiles(t, f.srcDir)

	rec, err := f.svc.Start(ctx, &v1.StartBackupRequest{BackupType: model.BackupTypeFull})
	require.NoError(t, err)
	assert.Equal(t, model.BackupStatusInitializing, rec.Status)

	final := f.waitTerminal(t)
	require.Equal(t, model.BackupStatusCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
	assert.NotEmpty(t, final.Checksum)
	assert.Contains(t, final.UploadedTo, storage.ProviderLocal)
	assert.Greater(t, final.SizeBytes, int64(0))

	local, ok := f.storages.Local().(*storage.Local)
	require.True(t, ok)
	_, err = os.Stat(local.Path(final.ArtifactKey))
	require.NoError(t, err)

	history, err := f.svc.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, final.ID, history[0].ID)

	f.notifier.mu.Lock()
	events := append([]string(nil), f.notifier.events...)
	f.notifier.mu.Unlock()
	assert.Contains(t, events, "backup_completed")

	// terminal run frees the single-flight slot
	busy, err := f.svc.InFlight(ctx)
	require.NoError(t, err)
	assert.False(t, busy)
}

func TestDBOnlyBackupSkipsFilePhase(t *testing.T) {
	f := newBackupFixture(t)
	f.startRunner(t)
	ctx := context.Background()

	require.NoError(t, f.db.Create(&model.Application{AppID: 1, Name: "one", IsActive: 1}).Error)

	_, err := f.svc.Start(ctx, &v1.StartBackupRequest{BackupType: model.BackupTypeDB})
	require.NoError(t, err)

	final := f.waitTerminal(t)
	require.Equal(t, model.BackupStatusCompleted, final.Status)
	assert.Greater(t, final.DBStatus.TotalTables, 0)
	assert.Equal(t, 0, final.FileStatus.TotalFiles)
}

func TestStartRejectsInvalidType(t *testing.T) {
	f := newBackupFixture(t)
	_, err := f.svc.Start(context.Background(), &v1.StartBackupRequest{BackupType: "hourly"})
	assert.ErrorIs(t, err, v1.ErrInvalidBackupType)
}

func TestStartRejectsConcurrentBackup(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()

	running := &model.BackupRecord{ID: "b1", BackupType: model.BackupTypeDB, Status: model.BackupStatusPhaseDB, Started: time.Now(), Heartbeat: time.Now()}
	require.NoError(t, f.store.Set(ctx, repository.KeyBackupCurrent, running, 0))

	_, err := f.svc.Start(ctx, &v1.StartBackupRequest{BackupType: model.BackupTypeDB})
	assert.ErrorIs(t, err, v1.ErrBackupInProgress)
}

func TestStartRejectsUnknownStorageProvider(t *testing.T) {
	f := newBackupFixture(t)
	_, err := f.svc.Start(context.Background(), &v1.StartBackupRequest{
		BackupType:       model.BackupTypeDB,
		StorageProviders: []string{"s3"},
	})
	assert.ErrorIs(t, err, v1.ErrStorageNotFound)
}

func TestCancelActiveBackup(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()

	running := &model.BackupRecord{ID: "b1", BackupType: model.BackupTypeFull, Status: model.BackupStatusPhaseFiles, Started: time.Now(), Heartbeat: time.Now()}
	require.NoError(t, f.store.Set(ctx, repository.KeyBackupCurrent, running, 0))

	require.NoError(t, f.svc.Cancel(ctx))

	var rec model.BackupRecord
	_, err := f.store.Get(ctx, repository.KeyBackupCurrent, &rec)
	require.NoError(t, err)
	assert.Equal(t, model.BackupStatusCancelled, rec.Status)

	assert.ErrorIs(t, f.svc.Cancel(ctx), v1.ErrNoActiveBackup)
}

func TestCheckStalledResumesFromCheckpoint(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()

	rec := &model.BackupRecord{
		ID:         "b1",
		BackupType: model.BackupTypeFile,
		Status:     model.BackupStatusPhaseFiles,
		Started:    time.Now().Add(-time.Hour),
		Heartbeat:  time.Now().Add(-400 * time.Second),
	}
	require.NoError(t, f.store.Set(ctx, repository.KeyBackupCurrent, rec, 0))

	cp := model.BackupCheckpoint{
		BackupID:       "b1",
		ProcessedFiles: 12,
		PendingFiles:   []string{"/a", "/b"},
		SavedAt:        time.Now().Add(-400 * time.Second),
	}
	require.NoError(t, f.store.Set(ctx, repository.CheckpointKey("b1"), cp, 0))

	require.NoError(t, f.svc.CheckStalled(ctx))

	var after model.BackupRecord
	_, err := f.store.Get(ctx, repository.KeyBackupCurrent, &after)
	require.NoError(t, err)
	assert.Equal(t, model.BackupStatusPhaseFiles, after.Status)
	assert.Equal(t, 12, after.FileStatus.CurrentFileIndex)
	assert.Less(t, time.Since(after.Heartbeat), time.Minute)
}

func TestCheckStalledLargeFileGetsRelaxedThreshold(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()

	rec := &model.BackupRecord{
		ID:                    "b1",
		BackupType:            model.BackupTypeFile,
		Status:                model.BackupStatusPhaseFiles,
		IsProcessingLargeFile: true,
		Started:               time.Now().Add(-time.Hour),
		Heartbeat:             time.Now().Add(-400 * time.Second),
	}
	require.NoError(t, f.store.Set(ctx, repository.KeyBackupCurrent, rec, 0))

	require.NoError(t, f.svc.CheckStalled(ctx))

	// 400s is past the 5 minute limit but inside the large-file one.
	var after model.BackupRecord
	_, err := f.store.Get(ctx, repository.KeyBackupCurrent, &after)
	require.NoError(t, err)
	assert.Equal(t, model.BackupStatusPhaseFiles, after.Status)
}

func TestCheckStalledWithoutCheckpointErrors(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()

	rec := &model.BackupRecord{
		ID:         "b1",
		BackupType: model.BackupTypeDB,
		Status:     model.BackupStatusPhaseDB,
		Started:    time.Now().Add(-time.Hour),
		Heartbeat:  time.Now().Add(-700 * time.Second),
	}
	require.NoError(t, f.store.Set(ctx, repository.KeyBackupCurrent, rec, 0))

	require.NoError(t, f.svc.CheckStalled(ctx))

	var after model.BackupRecord
	_, err := f.store.Get(ctx, repository.KeyBackupCurrent, &after)
	require.NoError(t, err)
	assert.Equal(t, model.BackupStatusError, after.Status)
	assert.NotEmpty(t, after.ErrMessage)
}

func seedHistory(t *testing.T, f *backupFixture, recs ...*model.BackupRecord) {
	t.Helper()
	history := model.BackupHistory{}
	for _, rec := range recs {
		history[rec.ID] = rec
	}
	require.NoError(t, f.store.Set(context.Background(), repository.KeyBackupHistory, history, 0))
}

func historyIDs(t *testing.T, f *backupFixture) []string {
	t.Helper()
	list, err := f.svc.History(context.Background())
	require.NoError(t, err)
	ids := make([]string, 0, len(list))
	for _, rec := range list {
		ids = append(ids, rec.ID)
	}
	return ids
}

func TestRetentionPrunesOldestUnlocked(t *testing.T) {
	f := newBackupFixture(t)

	base := time.Now()
	seedHistory(t, f,
		&model.BackupRecord{ID: "oldest-locked", BackupType: model.BackupTypeDB, Status: model.BackupStatusCompleted, Locked: true, Started: base.Add(-96 * time.Hour)},
		&model.BackupRecord{ID: "old", BackupType: model.BackupTypeDB, Status: model.BackupStatusCompleted, Started: base.Add(-72 * time.Hour)},
		&model.BackupRecord{ID: "mid", BackupType: model.BackupTypeDB, Status: model.BackupStatusCompleted, Started: base.Add(-48 * time.Hour)},
		&model.BackupRecord{ID: "new", BackupType: model.BackupTypeDB, Status: model.BackupStatusCompleted, Started: base.Add(-24 * time.Hour)},
	)

	require.NoError(t, f.svc.CleanupOldBackups(context.Background()))

	ids := historyIDs(t, f)
	assert.ElementsMatch(t, []string{"oldest-locked", "mid", "new"}, ids)
}

func TestDeleteRefusesLockedBackup(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()

	seedHistory(t, f, &model.BackupRecord{ID: "b1", BackupType: model.BackupTypeDB, Status: model.BackupStatusCompleted, Locked: true, Started: time.Now()})

	assert.ErrorIs(t, f.svc.Delete(ctx, "b1"), v1.ErrBackupLocked)

	require.NoError(t, f.svc.SetLocked(ctx, "b1", false))
	require.NoError(t, f.svc.Delete(ctx, "b1"))
	assert.Empty(t, historyIDs(t, f))
}

func TestDeleteUnknownBackup(t *testing.T) {
	f := newBackupFixture(t)
	assert.ErrorIs(t, f.svc.Delete(context.Background(), "ghost"), v1.ErrBackupNotFound)
}
