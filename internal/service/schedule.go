package service

import (
	"context"
	"fmt"
	"time"

	v1 "github.com/kynsofficial/siberiancms-integration-sub001/api/v1"
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/model"
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/repository"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/log"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	scheduleMaxRetries = 3
	scheduleRetryDelay = 15 * time.Minute

	// queued runs re-check at a quarter of the schedule interval,
	// clamped to stay responsive without hammering the store
	queueRecheckMin = time.Minute
	queueRecheckMax = 15 * time.Minute
)

// ScheduleService manages recurring backups. Due schedules that collide
// with an in-flight backup are queued, never dropped; the queue drains
// before the regular due-check on every tick.
type ScheduleService interface {
	Upsert(ctx context.Context, req *v1.UpsertScheduleRequest) (*model.BackupSchedule, error)
	List(ctx context.Context) ([]*model.BackupSchedule, error)
	Delete(ctx context.Context, id string) error
	// RunNow triggers one schedule immediately, subject to the same
	// queueing rules as a due run.
	RunNow(ctx context.Context, id string) error
	// Tick is the periodic entry point driven by the job server: drain
	// the queue, then fire whatever is due.
	Tick(ctx context.Context) error
}

func NewScheduleService(
	service *Service,
	store repository.StateStore,
	backupSvc BackupService,
	logger *log.Logger,
) ScheduleService {
	return &scheduleService{
		Service:   service,
		store:     store,
		backupSvc: backupSvc,
		logger:    logger,
	}
}

type scheduleService struct {
	*Service
	store     repository.StateStore
	backupSvc BackupService
	logger    *log.Logger
}

func (s *scheduleService) Upsert(ctx context.Context, req *v1.UpsertScheduleRequest) (*model.BackupSchedule, error) {
	if !validBackupType(req.BackupType) {
		return nil, v1.ErrInvalidBackupType
	}

	sched := &model.BackupSchedule{
		ID:            req.ID,
		Name:          req.Name,
		BackupType:    req.BackupType,
		IntervalValue: req.IntervalValue,
		IntervalUnit:  req.IntervalUnit,
		Storages:      req.Storages,
		AutoLock:      req.AutoLock,
		Enabled:       req.Enabled,
	}
	interval, err := sched.Interval()
	if err != nil {
		return nil, v1.ErrInvalidInterval
	}

	schedules, err := s.schedules(ctx)
	if err != nil {
		return nil, v1.ErrInternalServerError
	}

	if sched.ID == "" {
		sched.ID = uuid.NewString()
	} else if existing, ok := schedules[sched.ID]; ok {
		// updates keep run history unless the cadence changed
		sched.LastRun = existing.LastRun
		sched.RetryCount = existing.RetryCount
		sched.NextRetryAt = existing.NextRetryAt
		if existing.IntervalValue == sched.IntervalValue && existing.IntervalUnit == sched.IntervalUnit {
			sched.NextRun = existing.NextRun
		}
	}

	if sched.Enabled {
		for _, other := range schedules {
			if other.ID != sched.ID && other.Enabled && other.BackupType == sched.BackupType {
				return nil, v1.ErrScheduleDuplicate
			}
		}
		if sched.NextRun == nil {
			next := time.Now().Add(interval)
			sched.NextRun = &next
		}
	}

	schedules[sched.ID] = sched
	if err := s.saveSchedules(ctx, schedules); err != nil {
		return nil, v1.ErrInternalServerError
	}
	s.logger.WithContext(ctx).Info("schedule saved",
		zap.String("schedule_id", sched.ID), zap.String("type", sched.BackupType), zap.Bool("enabled", sched.Enabled))
	return sched, nil
}

func (s *scheduleService) List(ctx context.Context) ([]*model.BackupSchedule, error) {
	schedules, err := s.schedules(ctx)
	if err != nil {
		return nil, v1.ErrInternalServerError
	}
	out := make([]*model.BackupSchedule, 0, len(schedules))
	for _, sched := range schedules {
		out = append(out, sched)
	}
	return out, nil
}

func (s *scheduleService) Delete(ctx context.Context, id string) error {
	schedules, err := s.schedules(ctx)
	if err != nil {
		return v1.ErrInternalServerError
	}
	if _, ok := schedules[id]; !ok {
		return v1.ErrScheduleNotFound
	}
	delete(schedules, id)
	if err := s.saveSchedules(ctx, schedules); err != nil {
		return v1.ErrInternalServerError
	}

	queue, err := s.queue(ctx)
	if err == nil {
		if _, ok := queue[id]; ok {
			delete(queue, id)
			_ = s.saveQueue(ctx, queue)
		}
	}
	return nil
}

func (s *scheduleService) RunNow(ctx context.Context, id string) error {
	schedules, err := s.schedules(ctx)
	if err != nil {
		return v1.ErrInternalServerError
	}
	sched, ok := schedules[id]
	if !ok {
		return v1.ErrScheduleNotFound
	}
	if err := s.fire(ctx, schedules, sched); err != nil {
		return err
	}
	return nil
}

func (s *scheduleService) Tick(ctx context.Context) error {
	if err := s.drainQueue(ctx); err != nil {
		return err
	}
	return s.checkDue(ctx)
}

// drainQueue retries queued runs whose recheck time arrived. A run that
// still collides with an in-flight backup stays queued with a pushed-out
// recheck time.
func (s *scheduleService) drainQueue(ctx context.Context) error {
	queue, err := s.queue(ctx)
	if err != nil {
		return err
	}
	if len(queue) == 0 {
		return nil
	}

	schedules, err := s.schedules(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	changed := false
	for id, q := range queue {
		if now.Before(q.RecheckAt) {
			continue
		}
		sched, ok := schedules[id]
		if !ok {
			delete(queue, id)
			changed = true
			continue
		}

		busy, err := s.backupSvc.InFlight(ctx)
		if err != nil {
			return err
		}
		if busy {
			q.RecheckAt = now.Add(s.recheckDelay(sched))
			changed = true
			continue
		}

		delete(queue, id)
		changed = true
		if err := s.fire(ctx, schedules, sched); err != nil {
			s.logger.WithContext(ctx).Warn("queued schedule run failed",
				zap.String("schedule_id", id), zap.Error(err))
		}
	}

	if changed {
		return s.saveQueue(ctx, queue)
	}
	return nil
}

func (s *scheduleService) checkDue(ctx context.Context) error {
	schedules, err := s.schedules(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, sched := range schedules {
		if !sched.Due(now) {
			continue
		}
		if err := s.fire(ctx, schedules, sched); err != nil {
			s.logger.WithContext(ctx).Warn("scheduled backup failed to start",
				zap.String("schedule_id", sched.ID), zap.Error(err))
		}
	}
	return nil
}

// fire starts the backup for one schedule. A collision with an in-flight
// backup queues the run; a start failure arms the retry ladder (3 tries,
// 15 minutes apart) before the schedule falls back to its normal cadence.
func (s *scheduleService) fire(ctx context.Context, schedules model.ScheduleMap, sched *model.BackupSchedule) error {
	busy, err := s.backupSvc.InFlight(ctx)
	if err != nil {
		return err
	}
	if busy {
		return s.enqueue(ctx, schedules, sched)
	}

	rec, err := s.backupSvc.Start(ctx, &v1.StartBackupRequest{
		BackupType:       sched.BackupType,
		StorageProviders: sched.Storages,
		LockBackup:       sched.AutoLock,
		ScheduleID:       sched.ID,
	})

	now := time.Now()
	if err != nil {
		if sched.RetryCount < scheduleMaxRetries {
			sched.RetryCount++
			retryAt := now.Add(scheduleRetryDelay)
			sched.NextRetryAt = &retryAt
		} else {
			sched.RetryCount = 0
			sched.NextRetryAt = nil
			s.advance(sched, now)
		}
		if saveErr := s.saveSchedules(ctx, schedules); saveErr != nil {
			return saveErr
		}
		return fmt.Errorf("start scheduled backup: %w", err)
	}

	sched.LastRun = &now
	sched.RetryCount = 0
	sched.NextRetryAt = nil
	s.advance(sched, now)
	if err := s.saveSchedules(ctx, schedules); err != nil {
		return err
	}
	s.logger.WithContext(ctx).Info("scheduled backup started",
		zap.String("schedule_id", sched.ID), zap.String("backup_id", rec.ID))
	return nil
}

func (s *scheduleService) enqueue(ctx context.Context, schedules model.ScheduleMap, sched *model.BackupSchedule) error {
	queue, err := s.queue(ctx)
	if err != nil {
		return err
	}
	if _, already := queue[sched.ID]; !already {
		now := time.Now()
		queue[sched.ID] = &model.QueuedBackup{
			ScheduleID: sched.ID,
			QueuedAt:   now,
			RecheckAt:  now.Add(s.recheckDelay(sched)),
		}
		if err := s.saveQueue(ctx, queue); err != nil {
			return err
		}
		s.logger.WithContext(ctx).Info("schedule queued behind running backup",
			zap.String("schedule_id", sched.ID))
	}

	// NextRun advances even when queued so the queue entry, not the
	// due-check, owns this occurrence.
	s.advance(sched, time.Now())
	return s.saveSchedules(ctx, schedules)
}

func (s *scheduleService) recheckDelay(sched *model.BackupSchedule) time.Duration {
	interval, err := sched.Interval()
	if err != nil {
		return queueRecheckMin
	}
	d := interval / 4
	if d < queueRecheckMin {
		d = queueRecheckMin
	}
	if d > queueRecheckMax {
		d = queueRecheckMax
	}
	return d
}

func (s *scheduleService) advance(sched *model.BackupSchedule, from time.Time) {
	interval, err := sched.Interval()
	if err != nil {
		return
	}
	next := from.Add(interval)
	sched.NextRun = &next
}

func (s *scheduleService) schedules(ctx context.Context) (model.ScheduleMap, error) {
	schedules := model.ScheduleMap{}
	if _, err := s.store.Get(ctx, repository.KeySchedules, &schedules); err != nil {
		return nil, err
	}
	return schedules, nil
}

func (s *scheduleService) saveSchedules(ctx context.Context, schedules model.ScheduleMap) error {
	return s.store.Set(ctx, repository.KeySchedules, schedules, 0)
}

func (s *scheduleService) queue(ctx context.Context) (model.QueueMap, error) {
	queue := model.QueueMap{}
	if _, err := s.store.Get(ctx, repository.KeyBackupQueue, &queue); err != nil {
		return nil, err
	}
	return queue, nil
}

func (s *scheduleService) saveQueue(ctx context.Context, queue model.QueueMap) error {
	return s.store.Set(ctx, repository.KeyBackupQueue, queue, 0)
}
