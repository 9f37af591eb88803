package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	v1 "github.com/kynsofficial/siberiancms-integration-sub001/api/v1"
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/model"
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/repository"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/jwt"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/log"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/sid"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubBackupService lets schedule tests control the in-flight flag and
// the outcome of Start without running real backups.
type stubBackupService struct {
	mu       sync.Mutex
	inFlight bool
	startErr error
	started  []*v1.StartBackupRequest
}

func (s *stubBackupService) Start(ctx context.Context, req *v1.StartBackupRequest) (*model.BackupRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return nil, s.startErr
	}
	s.started = append(s.started, req)
	return &model.BackupRecord{ID: "stub-backup", BackupType: req.BackupType}, nil
}

func (s *stubBackupService) InFlight(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight, nil
}

func (s *stubBackupService) setInFlight(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = v
}

func (s *stubBackupService) startedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.started)
}

func (s *stubBackupService) Progress(ctx context.Context) (*v1.BackupProgressData, error) {
	return nil, v1.ErrNoActiveBackup
}
func (s *stubBackupService) Cancel(ctx context.Context) error { return nil }
func (s *stubBackupService) History(ctx context.Context) ([]*model.BackupRecord, error) {
	return nil, nil
}
func (s *stubBackupService) Delete(ctx context.Context, backupID string) error { return nil }
func (s *stubBackupService) SetLocked(ctx context.Context, backupID string, locked bool) error {
	return nil
}
func (s *stubBackupService) CheckStalled(ctx context.Context) error      { return nil }
func (s *stubBackupService) CleanupOldBackups(ctx context.Context) error { return nil }
func (s *stubBackupService) KickBackground()                             {}
func (s *stubBackupService) ArtifactLocalPath(ctx context.Context, backupID string) (string, error) {
	return "", v1.ErrBackupNotFound
}

type scheduleFixture struct {
	svc    ScheduleService
	store  repository.StateStore
	backup *stubBackupService
}

func newScheduleFixture(t *testing.T) *scheduleFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	store := repository.NewStateStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	conf := viper.New()
	conf.Set("security.jwt.key", "test-key")
	logger := &log.Logger{Logger: zap.NewNop()}
	base := NewService(nil, logger, sid.NewSid(), jwt.NewJwt(conf))

	backup := &stubBackupService{}
	svc := NewScheduleService(base, store, backup, logger)
	return &scheduleFixture{svc: svc, store: store, backup: backup}
}

func (f *scheduleFixture) mustUpsert(t *testing.T, req *v1.UpsertScheduleRequest) *model.BackupSchedule {
	t.Helper()
	sched, err := f.svc.Upsert(context.Background(), req)
	require.NoError(t, err)
	return sched
}

func (f *scheduleFixture) reload(t *testing.T, id string) *model.BackupSchedule {
	t.Helper()
	schedules := model.ScheduleMap{}
	_, err := f.store.Get(context.Background(), repository.KeySchedules, &schedules)
	require.NoError(t, err)
	sched, ok := schedules[id]
	require.True(t, ok, "schedule %s missing", id)
	return sched
}

func (f *scheduleFixture) queued(t *testing.T) model.QueueMap {
	t.Helper()
	queue := model.QueueMap{}
	_, err := f.store.Get(context.Background(), repository.KeyBackupQueue, &queue)
	require.NoError(t, err)
	return queue
}

func dailyRequest(name string) *v1.UpsertScheduleRequest {
	return &v1.UpsertScheduleRequest{
		Name:          name,
		BackupType:    model.BackupTypeDB,
		IntervalValue: 1,
		IntervalUnit:  model.IntervalUnitDays,
		Enabled:       true,
	}
}

func TestUpsertAssignsIDAndNextRun(t *testing.T) {
	f := newScheduleFixture(t)

	sched := f.mustUpsert(t, dailyRequest("nightly"))
	assert.NotEmpty(t, sched.ID)
	require.NotNil(t, sched.NextRun)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), *sched.NextRun, time.Minute)
}

func TestUpsertRejectsInvalidInterval(t *testing.T) {
	f := newScheduleFixture(t)

	req := dailyRequest("bad")
	req.IntervalValue = 0
	_, err := f.svc.Upsert(context.Background(), req)
	assert.ErrorIs(t, err, v1.ErrInvalidInterval)

	req = dailyRequest("bad-unit")
	req.IntervalUnit = "fortnights"
	_, err = f.svc.Upsert(context.Background(), req)
	assert.ErrorIs(t, err, v1.ErrInvalidInterval)
}

func TestUpsertRejectsSecondEnabledScheduleOfSameType(t *testing.T) {
	f := newScheduleFixture(t)

	f.mustUpsert(t, dailyRequest("first"))
	_, err := f.svc.Upsert(context.Background(), dailyRequest("second"))
	assert.ErrorIs(t, err, v1.ErrScheduleDuplicate)

	// a disabled duplicate is allowed
	req := dailyRequest("third")
	req.Enabled = false
	f.mustUpsert(t, req)
}

func TestUpsertUpdateKeepsNextRunWhenCadenceUnchanged(t *testing.T) {
	f := newScheduleFixture(t)

	sched := f.mustUpsert(t, dailyRequest("nightly"))
	firstNext := *sched.NextRun

	req := dailyRequest("renamed")
	req.ID = sched.ID
	updated := f.mustUpsert(t, req)
	require.NotNil(t, updated.NextRun)
	assert.WithinDuration(t, firstNext, *updated.NextRun, time.Second)

	// changing the cadence recomputes the next run
	req.IntervalValue = 2
	updated = f.mustUpsert(t, req)
	require.NotNil(t, updated.NextRun)
	assert.WithinDuration(t, time.Now().Add(48*time.Hour), *updated.NextRun, time.Minute)
}

func TestDeleteRemovesScheduleAndQueueEntry(t *testing.T) {
	f := newScheduleFixture(t)
	ctx := context.Background()

	sched := f.mustUpsert(t, dailyRequest("nightly"))

	f.backup.setInFlight(true)
	require.NoError(t, f.svc.RunNow(ctx, sched.ID))
	require.Contains(t, f.queued(t), sched.ID)

	require.NoError(t, f.svc.Delete(ctx, sched.ID))
	assert.NotContains(t, f.queued(t), sched.ID)

	assert.ErrorIs(t, f.svc.Delete(ctx, sched.ID), v1.ErrScheduleNotFound)
}

func TestRunNowStartsBackupWithScheduleSettings(t *testing.T) {
	f := newScheduleFixture(t)

	req := dailyRequest("nightly")
	req.AutoLock = true
	req.Storages = []string{"local"}
	sched := f.mustUpsert(t, req)

	require.NoError(t, f.svc.RunNow(context.Background(), sched.ID))

	require.Equal(t, 1, f.backup.startedCount())
	started := f.backup.started[0]
	assert.Equal(t, model.BackupTypeDB, started.BackupType)
	assert.True(t, started.LockBackup)
	assert.Equal(t, sched.ID, started.ScheduleID)
	assert.Equal(t, []string{"local"}, started.StorageProviders)

	after := f.reload(t, sched.ID)
	require.NotNil(t, after.LastRun)
	assert.Zero(t, after.RetryCount)
}

func TestFireQueuesBehindRunningBackupAndAdvancesNextRun(t *testing.T) {
	f := newScheduleFixture(t)
	ctx := context.Background()

	sched := f.mustUpsert(t, dailyRequest("nightly"))
	before := *f.reload(t, sched.ID).NextRun

	f.backup.setInFlight(true)
	require.NoError(t, f.svc.RunNow(ctx, sched.ID))

	assert.Zero(t, f.backup.startedCount())
	queue := f.queued(t)
	require.Contains(t, queue, sched.ID)
	assert.True(t, queue[sched.ID].RecheckAt.After(time.Now()))

	after := *f.reload(t, sched.ID).NextRun
	assert.True(t, after.After(before))
}

func TestTickDrainsQueueOnceBackupFinishes(t *testing.T) {
	f := newScheduleFixture(t)
	ctx := context.Background()

	sched := f.mustUpsert(t, dailyRequest("nightly"))
	f.backup.setInFlight(true)
	require.NoError(t, f.svc.RunNow(ctx, sched.ID))
	require.Contains(t, f.queued(t), sched.ID)

	// force the recheck time into the past, then free the slot
	queue := f.queued(t)
	queue[sched.ID].RecheckAt = time.Now().Add(-time.Second)
	require.NoError(t, f.store.Set(ctx, repository.KeyBackupQueue, queue, 0))
	f.backup.setInFlight(false)

	require.NoError(t, f.svc.Tick(ctx))

	assert.Equal(t, 1, f.backup.startedCount())
	assert.NotContains(t, f.queued(t), sched.ID)
}

func TestTickFiresDueSchedule(t *testing.T) {
	f := newScheduleFixture(t)
	ctx := context.Background()

	sched := f.mustUpsert(t, dailyRequest("nightly"))

	schedules := model.ScheduleMap{}
	_, err := f.store.Get(ctx, repository.KeySchedules, &schedules)
	require.NoError(t, err)
	past := time.Now().Add(-time.Minute)
	schedules[sched.ID].NextRun = &past
	require.NoError(t, f.store.Set(ctx, repository.KeySchedules, schedules, 0))

	require.NoError(t, f.svc.Tick(ctx))
	assert.Equal(t, 1, f.backup.startedCount())

	after := f.reload(t, sched.ID)
	require.NotNil(t, after.NextRun)
	assert.True(t, after.NextRun.After(time.Now()))
}

func TestStartFailureArmsRetryLadder(t *testing.T) {
	f := newScheduleFixture(t)
	ctx := context.Background()

	sched := f.mustUpsert(t, dailyRequest("nightly"))
	f.backup.startErr = errors.New("source directory unreadable")

	for attempt := 1; attempt <= scheduleMaxRetries; attempt++ {
		require.Error(t, f.svc.RunNow(ctx, sched.ID))
		after := f.reload(t, sched.ID)
		assert.Equal(t, attempt, after.RetryCount)
		require.NotNil(t, after.NextRetryAt)
		assert.WithinDuration(t, time.Now().Add(scheduleRetryDelay), *after.NextRetryAt, time.Minute)
	}

	// the ladder is exhausted: back to the normal cadence
	require.Error(t, f.svc.RunNow(ctx, sched.ID))
	after := f.reload(t, sched.ID)
	assert.Zero(t, after.RetryCount)
	assert.Nil(t, after.NextRetryAt)
	require.NotNil(t, after.NextRun)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), *after.NextRun, time.Minute)
}

func TestDueHonorsRetryTimeOverNextRun(t *testing.T) {
	now := time.Now()
	soon := now.Add(time.Hour)
	past := now.Add(-time.Minute)

	sched := &model.BackupSchedule{Enabled: true, NextRun: &soon, NextRetryAt: &past}
	assert.True(t, sched.Due(now))

	sched.NextRetryAt = &soon
	sched.NextRun = &past
	assert.False(t, sched.Due(now))

	sched.NextRetryAt = nil
	assert.True(t, sched.Due(now))

	sched.Enabled = false
	assert.False(t, sched.Due(now))
}

func TestIntervalUnits(t *testing.T) {
	cases := []struct {
		value int
		unit  string
		want  time.Duration
	}{
		{30, model.IntervalUnitMinutes, 30 * time.Minute},
		{12, model.IntervalUnitHours, 12 * time.Hour},
		{2, model.IntervalUnitDays, 48 * time.Hour},
		{1, model.IntervalUnitWeeks, 7 * 24 * time.Hour},
		{1, model.IntervalUnitMonths, 30 * 24 * time.Hour},
	}
	for _, tc := range cases {
		sched := &model.BackupSchedule{IntervalValue: tc.value, IntervalUnit: tc.unit}
		got, err := sched.Interval()
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := (&model.BackupSchedule{IntervalValue: -1, IntervalUnit: model.IntervalUnitHours}).Interval()
	assert.Error(t, err)
	_, err = (&model.BackupSchedule{IntervalValue: 1, IntervalUnit: "decades"}).Interval()
	assert.Error(t, err)
}
