package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	v1 "github.com/kynsofficial/siberiancms-integration-sub001/api/v1"
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/model"
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type restoreFixture struct {
	*backupFixture
	svc RestoreService
}

func newRestoreFixture(t *testing.T) *restoreFixture {
	t.Helper()
	bf := newBackupFixture(t)
	rsvc := NewRestoreService(bf.base, bf.conf, bf.store, bf.dumpRepo, bf.storages, bf.svc, bf.logger)
	return &restoreFixture{backupFixture: bf, svc: rsvc}
}

// runBackup drives a full backup to completion and returns its record.
func (f *restoreFixture) runBackup(t *testing.T) *model.BackupRecord {
	t.Helper()
	f.startRunner(t)
	_, err := f.backupFixture.svc.Start(context.Background(), &v1.StartBackupRequest{BackupType: model.BackupTypeFull})
	require.NoError(t, err)
	rec := f.waitTerminal(t)
	require.Equal(t, model.BackupStatusCompleted, rec.Status)
	return rec
}

// stepUntilTerminal polls Step the way the frontend would.
func stepUntilTerminal(t *testing.T, svc RestoreService) *model.RestoreRecord {
	t.Helper()
	for i := 0; i < 500; i++ {
		rec, err := svc.Step(context.Background())
		require.NoError(t, err)
		if rec.Terminal() {
			return rec
		}
	}
	t.Fatal("restore did not reach a terminal state")
	return nil
}

func TestRestoreFullLifecycle(t *testing.T) {
	f := newRestoreFixture(t)
	ctx := context.Background()

	require.NoError(t, f.db.Create(&model.Application{AppID: 1, Name: "keep-me", SizeOnDisk: 10, IsActive: 1}).Error)
	seedSourceFiles(t, f.srcDir)
	backup := f.runBackup(t)

	// damage both the database and the file tree
	require.NoError(t, f.db.Where("app_id = ?", 1).Delete(&model.Application{}).Error)
	lostFile := filepath.Join(f.srcDir, "var", "apps", "app.bin")
	require.NoError(t, os.Remove(lostFile))

	rec, err := f.svc.Start(ctx, &v1.StartRestoreRequest{BackupID: backup.ID})
	require.NoError(t, err)
	assert.Equal(t, model.RestoreStepDownload, rec.CurrentStep)
	assert.True(t, rec.HasDB)
	assert.True(t, rec.HasFiles)

	final := stepUntilTerminal(t, f.svc)
	require.Equal(t, model.RestoreStatusCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
	assert.Equal(t, model.RestoreStepDone, final.CurrentStep)

	var count int64
	require.NoError(t, f.db.Model(&model.Application{}).Where("app_id = ?", 1).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	restored, err := os.ReadFile(lostFile)
	require.NoError(t, err)
	assert.Equal(t, "binary-data", string(restored))

	_, err = os.Stat(final.WorkDir)
	assert.True(t, os.IsNotExist(err))
}

func TestRestoreChecksumMismatchFails(t *testing.T) {
	f := newRestoreFixture(t)
	ctx := context.Background()

	require.NoError(t, f.db.Create(&model.Application{AppID: 1, Name: "one", IsActive: 1}).Error)
	seedSourceFiles(t, f.srcDir)
	backup := f.runBackup(t)

	history := model.BackupHistory{}
	found, err := f.store.Get(ctx, repository.KeyBackupHistory, &history)
	require.NoError(t, err)
	require.True(t, found)
	history[backup.ID].Checksum = "deadbeef"
	require.NoError(t, f.store.Set(ctx, repository.KeyBackupHistory, history, 0))

	_, err = f.svc.Start(ctx, &v1.StartRestoreRequest{BackupID: backup.ID})
	require.NoError(t, err)

	rec, err := f.svc.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.RestoreStatusError, rec.Status)
	assert.Contains(t, rec.ErrMessage, "checksum mismatch")
}

func TestRestoreStartRejectsUnknownBackup(t *testing.T) {
	f := newRestoreFixture(t)
	_, err := f.svc.Start(context.Background(), &v1.StartRestoreRequest{BackupID: "ghost"})
	assert.ErrorIs(t, err, v1.ErrBackupNotFound)
}

func TestRestoreStartBlockedByRunningBackup(t *testing.T) {
	f := newRestoreFixture(t)
	ctx := context.Background()

	seedHistory(t, f.backupFixture, &model.BackupRecord{ID: "b1", BackupType: model.BackupTypeDB, Status: model.BackupStatusCompleted, Started: time.Now()})
	running := &model.BackupRecord{ID: "b2", BackupType: model.BackupTypeDB, Status: model.BackupStatusPhaseDB, Started: time.Now(), Heartbeat: time.Now()}
	require.NoError(t, f.store.Set(ctx, repository.KeyBackupCurrent, running, 0))

	_, err := f.svc.Start(ctx, &v1.StartRestoreRequest{BackupID: "b1"})
	assert.ErrorIs(t, err, v1.ErrBackupInProgress)
}

func TestRestoreStartRejectsConcurrentRestore(t *testing.T) {
	f := newRestoreFixture(t)
	ctx := context.Background()

	seedHistory(t, f.backupFixture, &model.BackupRecord{ID: "b1", BackupType: model.BackupTypeDB, Status: model.BackupStatusCompleted, Started: time.Now()})

	_, err := f.svc.Start(ctx, &v1.StartRestoreRequest{BackupID: "b1"})
	require.NoError(t, err)

	_, err = f.svc.Start(ctx, &v1.StartRestoreRequest{BackupID: "b1"})
	assert.ErrorIs(t, err, v1.ErrRestoreInProgress)
}

func TestRestoreStartRejectsUnknownStorage(t *testing.T) {
	f := newRestoreFixture(t)
	seedHistory(t, f.backupFixture, &model.BackupRecord{ID: "b1", BackupType: model.BackupTypeDB, Status: model.BackupStatusCompleted, Started: time.Now()})

	_, err := f.svc.Start(context.Background(), &v1.StartRestoreRequest{BackupID: "b1", Storage: "s3"})
	assert.ErrorIs(t, err, v1.ErrStorageNotFound)
}

func TestRestoreCancel(t *testing.T) {
	f := newRestoreFixture(t)
	ctx := context.Background()

	seedHistory(t, f.backupFixture, &model.BackupRecord{ID: "b1", BackupType: model.BackupTypeDB, Status: model.BackupStatusCompleted, Started: time.Now()})
	_, err := f.svc.Start(ctx, &v1.StartRestoreRequest{BackupID: "b1"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Cancel(ctx))

	progress, err := f.svc.Progress(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.RestoreStatusCancelled, progress.Status)

	assert.ErrorIs(t, f.svc.Cancel(ctx), v1.ErrNoActiveRestore)
}

func TestRestoreProgressWithoutActiveRestore(t *testing.T) {
	f := newRestoreFixture(t)
	_, err := f.svc.Progress(context.Background())
	assert.ErrorIs(t, err, v1.ErrNoActiveRestore)
}
