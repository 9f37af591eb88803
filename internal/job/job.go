// Package job hosts the recurring maintenance ticks: the backup
// watchdog, the schedule due-check with its queue drain, and daily
// retention pruning. All of them are also reachable opportunistically
// through the HTTP surface; these ticks just guarantee a floor.
package job

import (
	"context"
	"time"

	"github.com/kynsofficial/siberiancms-integration-sub001/internal/service"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/log"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

type Job struct {
	logger          *log.Logger
	backupService   service.BackupService
	scheduleService service.ScheduleService
	scheduler       *gocron.Scheduler
}

func NewJob(
	logger *log.Logger,
	backupService service.BackupService,
	scheduleService service.ScheduleService,
) *Job {
	return &Job{
		logger:          logger,
		backupService:   backupService,
		scheduleService: scheduleService,
		scheduler:       gocron.NewScheduler(time.UTC),
	}
}

func (j *Job) Start(ctx context.Context) error {
	if _, err := j.scheduler.Every(1).Hour().Do(func() {
		if err := j.backupService.CheckStalled(context.Background()); err != nil {
			j.logger.Error("watchdog tick failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	if _, err := j.scheduler.Every(1).Minute().Do(func() {
		if err := j.scheduleService.Tick(context.Background()); err != nil {
			j.logger.Error("schedule tick failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	if _, err := j.scheduler.Every(1).Day().At("03:30").Do(func() {
		if err := j.backupService.CleanupOldBackups(context.Background()); err != nil {
			j.logger.Error("retention tick failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	j.scheduler.StartAsync()
	j.logger.Info("job scheduler started")
	return nil
}

func (j *Job) Stop(ctx context.Context) error {
	j.scheduler.Stop()
	j.logger.Info("job scheduler stopped")
	return nil
}
