package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	v1 "github.com/kynsofficial/siberiancms-integration-sub001/api/v1"
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/engine"
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/model"
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/repository"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/log"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const cleanupStallThreshold = 5 * time.Minute

// itemAction is the classification of one work item.
type itemAction int

const (
	actionSkip itemAction = iota
	actionWarn
	actionDelete
)

type taskSettings struct {
	DeleteImmediately bool
	SendWarning       bool
	WarningPeriodDays int
}

type CleanupService interface {
	StartTask(ctx context.Context, taskType string) (*v1.CleanupBatchData, error)
	ProcessBatch(ctx context.Context, taskType string, batchIndex int) (*v1.CleanupBatchData, error)
	Progress(ctx context.Context, taskType string) (*v1.CleanupProgressData, error)
	Cancel(ctx context.Context, taskType string) error
	Preview(ctx context.Context, req *v1.PreviewRequest) (*v1.PreviewData, error)

	// KickBackground re-enters background processing for a task, used by
	// the loopback endpoint and opportunistic checks.
	KickBackground(taskType string)
}

func NewCleanupService(
	service *Service,
	conf *viper.Viper,
	eng *engine.Engine,
	runner *engine.Runner,
	store repository.StateStore,
	appRepo repository.ApplicationRepository,
	notifier Notifier,
	logger *log.Logger,
) CleanupService {
	s := &cleanupService{
		Service:  service,
		conf:     conf,
		engine:   eng,
		runner:   runner,
		store:    store,
		appRepo:  appRepo,
		notifier: notifier,
		logger:   logger,
	}
	for _, taskType := range []string{
		model.TaskTypeZeroSize,
		model.TaskTypeInactive,
		model.TaskTypeSizeViolation,
		model.TaskTypeNoUsers,
	} {
		eng.Register(&cleanupHandler{svc: s, taskType: taskType})
		runner.Register(cleanupContinuation(taskType), s.continuation(taskType))
	}
	return s
}

type cleanupService struct {
	*Service
	conf     *viper.Viper
	engine   *engine.Engine
	runner   *engine.Runner
	store    repository.StateStore
	appRepo  repository.ApplicationRepository
	notifier Notifier
	logger   *log.Logger
}

func cleanupContinuation(taskType string) string {
	return "cleanup:" + taskType
}

func validTaskType(taskType string) bool {
	switch taskType {
	case model.TaskTypeZeroSize, model.TaskTypeInactive, model.TaskTypeSizeViolation, model.TaskTypeNoUsers:
		return true
	}
	return false
}

func (s *cleanupService) StartTask(ctx context.Context, taskType string) (*v1.CleanupBatchData, error) {
	if !validTaskType(taskType) {
		return nil, v1.ErrUnknownTaskType
	}
	progress, err := s.engine.Initialize(ctx, taskType)
	if err != nil {
		s.logger.WithContext(ctx).Error("initialize task failed", zap.String("task", taskType), zap.Error(err))
		return nil, v1.ErrInternalServerError
	}

	if progress.Terminal() {
		return &v1.CleanupBatchData{Success: true, Progress: progress.Progress, NextBatch: 0, Completed: true, BatchCount: progress.BatchCount}, nil
	}

	outcome, err := s.engine.ProcessBatch(ctx, taskType, 0)
	if err != nil {
		s.logger.WithContext(ctx).Error("first batch failed", zap.String("task", taskType), zap.Error(err))
		return nil, v1.ErrInternalServerError
	}

	if !outcome.Completed && s.backgroundEnabled() {
		s.runner.Kick(cleanupContinuation(taskType))
	}
	return batchData(outcome), nil
}

func (s *cleanupService) ProcessBatch(ctx context.Context, taskType string, batchIndex int) (*v1.CleanupBatchData, error) {
	if !validTaskType(taskType) {
		return nil, v1.ErrUnknownTaskType
	}
	outcome, err := s.engine.ProcessBatch(ctx, taskType, batchIndex)
	if err != nil {
		s.logger.WithContext(ctx).Error("process batch failed",
			zap.String("task", taskType), zap.Int("batch", batchIndex), zap.Error(err))
		return nil, v1.ErrInternalServerError
	}
	return batchData(outcome), nil
}

func (s *cleanupService) Progress(ctx context.Context, taskType string) (*v1.CleanupProgressData, error) {
	if !validTaskType(taskType) {
		return nil, v1.ErrUnknownTaskType
	}
	progress, found, err := s.engine.Progress(ctx, taskType)
	if err != nil {
		return nil, v1.ErrInternalServerError
	}
	if !found {
		progress = &model.TaskProgress{TaskType: taskType, Status: model.TaskStatusNotStarted}
	}

	heartbeatAge := int64(0)
	if !progress.LastUpdate.IsZero() {
		heartbeatAge = int64(time.Since(progress.LastUpdate).Seconds())
	}

	// Opportunistic recovery: a running task with a stale heartbeat lost
	// its continuation somewhere; nudge the runner from the poll path.
	if progress.Status == model.TaskStatusRunning &&
		heartbeatAge > int64(cleanupStallThreshold.Seconds()) &&
		s.backgroundEnabled() {
		s.runner.Kick(cleanupContinuation(taskType))
	}

	data := &v1.CleanupProgressData{
		TaskType:          progress.TaskType,
		Status:            progress.Status,
		Total:             progress.Total,
		Processed:         progress.Processed,
		Progress:          progress.Progress,
		BatchCount:        progress.BatchCount,
		CurrentBatch:      progress.CurrentBatch,
		Deleted:           progress.Deleted,
		Errors:            progress.Errors,
		Skipped:           progress.Skipped,
		Warned:            progress.Warned,
		Logs:              progress.Logs,
		Items:             progress.Items,
		IsRunning:         progress.Status == model.TaskStatusRunning,
		BackgroundEnabled: s.backgroundEnabled(),
		HeartbeatAge:      heartbeatAge,
	}
	if !progress.StartTime.IsZero() {
		data.StartTime = progress.StartTime.Unix()
	}
	if !progress.LastUpdate.IsZero() {
		data.LastUpdate = progress.LastUpdate.Unix()
	}
	return data, nil
}

func (s *cleanupService) Cancel(ctx context.Context, taskType string) error {
	if !validTaskType(taskType) {
		return v1.ErrUnknownTaskType
	}
	if err := s.engine.Cancel(ctx, taskType); err != nil {
		s.logger.WithContext(ctx).Error("cancel task failed", zap.String("task", taskType), zap.Error(err))
		return v1.ErrInternalServerError
	}
	return nil
}

func (s *cleanupService) KickBackground(taskType string) {
	if validTaskType(taskType) {
		s.runner.Kick(cleanupContinuation(taskType))
	}
}

func (s *cleanupService) backgroundEnabled() bool {
	return s.conf.GetBool("cleanup.background_processing")
}

// continuation drives one task until the step budget or memory guard
// trips; the runner re-kicks as long as the task is not terminal.
func (s *cleanupService) continuation(taskType string) engine.Continuation {
	return func(ctx context.Context) (bool, error) {
		maxSteps := engine.ClampSteps(s.conf.GetInt("cleanup.max_steps"))
		for i := 0; i < maxSteps; i++ {
			if engine.MemoryGuardTripped() {
				s.logger.Warn("memory guard tripped, yielding", zap.String("task", taskType))
				return false, nil
			}
			progress, found, err := s.engine.Progress(ctx, taskType)
			if err != nil {
				return false, err
			}
			if !found || progress.Terminal() {
				return true, nil
			}
			if _, err := s.engine.ProcessBatch(ctx, taskType, progress.CurrentBatch); err != nil {
				return false, err
			}
		}
		progress, found, err := s.engine.Progress(ctx, taskType)
		if err != nil || !found {
			return true, err
		}
		return progress.Terminal(), nil
	}
}

func batchData(o *engine.Outcome) *v1.CleanupBatchData {
	return &v1.CleanupBatchData{
		Success:    o.Success,
		Progress:   o.Progress,
		NextBatch:  o.NextBatch,
		Completed:  o.Completed,
		BatchCount: o.BatchCount,
	}
}

// ---- batch handler ----

type cleanupHandler struct {
	svc      *cleanupService
	taskType string
}

func (h *cleanupHandler) TaskType() string { return h.taskType }

func (h *cleanupHandler) FetchItems(ctx context.Context) ([]model.WorkItem, error) {
	switch h.taskType {
	case model.TaskTypeZeroSize:
		apps, err := h.svc.appRepo.ListZeroSize(ctx)
		return appItems(apps), err
	case model.TaskTypeInactive:
		apps, err := h.svc.appRepo.ListInactive(ctx)
		return appItems(apps), err
	case model.TaskTypeNoUsers:
		apps, err := h.svc.appRepo.ListOwnerless(ctx)
		return appItems(apps), err
	case model.TaskTypeSizeViolation:
		return h.svc.fetchSizeViolations(ctx)
	}
	return nil, fmt.Errorf("unknown task type %q", h.taskType)
}

func (h *cleanupHandler) ProcessBatch(ctx context.Context, items []model.WorkItem) (*engine.BatchResult, error) {
	return h.svc.processCleanupBatch(ctx, h.taskType, items)
}

func appItems(apps []*model.Application) []model.WorkItem {
	items := make([]model.WorkItem, 0, len(apps))
	for _, app := range apps {
		items = append(items, model.WorkItem{
			AppID:      app.AppID,
			Name:       app.Name,
			SizeOnDisk: app.SizeOnDisk,
		})
	}
	return items
}

// fetchSizeViolations joins applications to their plans and keeps only
// apps over the administrator-configured limit for that plan. Plans with
// no configured limit are excluded entirely.
func (s *cleanupService) fetchSizeViolations(ctx context.Context) ([]model.WorkItem, error) {
	rows, err := s.appRepo.ListWithSubscription(ctx)
	if err != nil {
		return nil, err
	}
	limits := s.sizeLimits()
	var items []model.WorkItem
	for _, row := range rows {
		limitMB, ok := limits[row.SubscriptionID]
		if !ok {
			continue
		}
		limitBytes := limitMB * 1024 * 1024
		if row.SizeOnDisk > limitBytes {
			items = append(items, model.WorkItem{
				AppID:          row.AppID,
				Name:           row.Name,
				SizeOnDisk:     row.SizeOnDisk,
				SubscriptionID: row.SubscriptionID,
			})
		}
	}
	return items, nil
}

// sizeLimits reads the subscription-id -> limit-MB mapping from config.
func (s *cleanupService) sizeLimits() map[int64]int64 {
	raw := s.conf.GetStringMapString("cleanup.size_limits")
	limits := make(map[int64]int64, len(raw))
	for idStr, mbStr := range raw {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			continue
		}
		mb, err := strconv.ParseInt(mbStr, 10, 64)
		if err != nil || mb <= 0 {
			continue
		}
		limits[id] = mb
	}
	return limits
}

func (s *cleanupService) settings(taskType string) taskSettings {
	prefix := "cleanup.tasks." + taskType + "."
	days := s.conf.GetInt(prefix + "warning_period_days")
	if days <= 0 {
		days = 7
	}
	return taskSettings{
		DeleteImmediately: s.conf.GetBool(prefix + "delete_immediately"),
		SendWarning:       s.conf.GetBool(prefix + "send_warning"),
		WarningPeriodDays: days,
	}
}

// processCleanupBatch classifies every item into exactly one of
// delete-now, warn, or skip, then bulk-deletes the delete set in one
// transaction. A failed delete counts the whole batch as errors; this
// coarse policy mirrors the source system and is deliberate.
func (s *cleanupService) processCleanupBatch(ctx context.Context, taskType string, items []model.WorkItem) (*engine.BatchResult, error) {
	set := s.settings(taskType)
	now := time.Now()
	result := &engine.BatchResult{}

	var deleteNow []model.WorkItem
	for _, item := range items {
		action, reason := s.classify(ctx, taskType, item, set, now)

		// Ownerless apps may have been reassigned since the snapshot;
		// never delete an app that has an owner again.
		if action == actionDelete && taskType == model.TaskTypeNoUsers {
			owned, err := s.appRepo.HasOwner(ctx, item.AppID)
			if err != nil {
				s.logger.WithContext(ctx).Warn("owner re-check failed",
					zap.Int64("app_id", item.AppID), zap.Error(err))
				action, reason = actionSkip, "owner check failed"
			} else if owned {
				action, reason = actionSkip, "owner was reassigned"
			}
		}

		switch action {
		case actionDelete:
			deleteNow = append(deleteNow, item)
		case actionWarn:
			s.recordWarning(ctx, taskType, item, set, now, result)
		case actionSkip:
			result.Skipped++
			result.Items = append(result.Items, model.TaskItemOutcome{
				AppID: item.AppID, Name: item.Name,
				Outcome: model.ItemOutcomeSkipped, Reason: reason, Time: now,
			})
		}
	}

	if len(deleteNow) > 0 {
		if err := s.deleteApps(ctx, taskType, deleteNow, result); err != nil {
			// Coarse failure policy: the whole batch is errored, not
			// just the delete set.
			return &engine.BatchResult{
				Errors: len(items),
				Logs: []model.TaskLogEntry{{
					Time:     time.Now(),
					Message:  fmt.Sprintf("Bulk delete failed, batch rolled back: %v", err),
					Severity: model.LogSeverityError,
				}},
				Items: errorOutcomes(items, err),
			}, nil
		}
	}

	return result, nil
}

// classify applies the ordered decision table shared by all four task
// types.
func (s *cleanupService) classify(ctx context.Context, taskType string, item model.WorkItem, set taskSettings, now time.Time) (itemAction, string) {
	if set.DeleteImmediately {
		return actionDelete, "delete immediately enabled"
	}

	var warning model.WarningRecord
	warned, err := s.store.Get(ctx, repository.WarningKey(taskType, item.AppID), &warning)
	if err != nil {
		s.logger.WithContext(ctx).Warn("warning lookup failed",
			zap.Int64("app_id", item.AppID), zap.Error(err))
	}

	if set.SendWarning && !warned {
		return actionWarn, ""
	}
	if warned && !warning.Expired(now) {
		return actionSkip, "warning period not expired"
	}
	if warned && warning.Expired(now) {
		return actionDelete, "warning period expired"
	}
	return actionSkip, "no action configured"
}

func (s *cleanupService) recordWarning(ctx context.Context, taskType string, item model.WorkItem, set taskSettings, now time.Time, result *engine.BatchResult) {
	expires := now.Add(time.Duration(set.WarningPeriodDays) * 24 * time.Hour)
	record := model.WarningRecord{AppID: item.AppID, SentAt: now, Expires: expires}
	if err := s.store.Set(ctx, repository.WarningKey(taskType, item.AppID), record, 0); err != nil {
		result.Errors++
		result.Items = append(result.Items, model.TaskItemOutcome{
			AppID: item.AppID, Name: item.Name,
			Outcome: model.ItemOutcomeError, Reason: "failed to record warning", Time: now,
		})
		return
	}
	if err := s.notifier.NotifyWarning(ctx, taskType, item, expires); err != nil {
		// Delivery is best effort; the recorded warning still starts
		// the grace period.
		s.logger.WithContext(ctx).Warn("warning notification failed",
			zap.Int64("app_id", item.AppID), zap.Error(err))
	}
	result.Warned++
	result.Items = append(result.Items, model.TaskItemOutcome{
		AppID: item.AppID, Name: item.Name,
		Outcome: model.ItemOutcomeWarned,
		Reason:  fmt.Sprintf("warned, eligible for deletion after %s", expires.Format(time.RFC3339)),
		Time:    now,
	})
}

func (s *cleanupService) deleteApps(ctx context.Context, taskType string, items []model.WorkItem, result *engine.BatchResult) error {
	tables, err := s.appRepo.DependentTables(ctx)
	if err != nil {
		return err
	}
	ids := make([]int64, len(items))
	for i, item := range items {
		ids[i] = item.AppID
	}
	if err := s.appRepo.DeleteCascade(ctx, ids, tables); err != nil {
		return err
	}

	now := time.Now()
	for _, item := range items {
		result.Deleted++
		result.Items = append(result.Items, model.TaskItemOutcome{
			AppID: item.AppID, Name: item.Name,
			Outcome: model.ItemOutcomeDeleted, Time: now,
		})
		// The warning record has served its purpose.
		_ = s.store.Delete(ctx, repository.WarningKey(taskType, item.AppID))
	}
	return nil
}

func errorOutcomes(items []model.WorkItem, err error) []model.TaskItemOutcome {
	now := time.Now()
	outcomes := make([]model.TaskItemOutcome, len(items))
	for i, item := range items {
		outcomes[i] = model.TaskItemOutcome{
			AppID: item.AppID, Name: item.Name,
			Outcome: model.ItemOutcomeError, Reason: err.Error(), Time: now,
		}
	}
	return outcomes
}

// ---- preview ----

func (s *cleanupService) Preview(ctx context.Context, req *v1.PreviewRequest) (*v1.PreviewData, error) {
	if !validTaskType(req.DataType) {
		return nil, v1.ErrUnknownPreviewType
	}
	h, ok := s.engine.Handler(req.DataType)
	if !ok {
		return nil, v1.ErrUnknownPreviewType
	}
	items, err := h.FetchItems(ctx)
	if err != nil {
		s.logger.WithContext(ctx).Error("preview fetch failed", zap.String("type", req.DataType), zap.Error(err))
		return nil, v1.ErrInternalServerError
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 25
	}

	total := len(items)
	totalPages := (total + pageSize - 1) / pageSize
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	rows := make([]map[string]interface{}, 0, end-start)
	for _, item := range items[start:end] {
		row := map[string]interface{}{
			"app_id":       item.AppID,
			"name":         item.Name,
			"size_on_disk": item.SizeOnDisk,
		}
		if item.SubscriptionID != 0 {
			row["subscription_id"] = item.SubscriptionID
		}
		rows = append(rows, row)
	}

	return &v1.PreviewData{
		Title:      previewTitle(req.DataType),
		Headers:    []string{"App ID", "Name", "Size on disk"},
		Fields:     []string{"app_id", "name", "size_on_disk"},
		Items:      rows,
		Total:      total,
		Page:       page,
		TotalPages: totalPages,
	}, nil
}

func previewTitle(taskType string) string {
	switch taskType {
	case model.TaskTypeZeroSize:
		return "Apps with zero size"
	case model.TaskTypeInactive:
		return "Inactive apps"
	case model.TaskTypeSizeViolation:
		return "Apps exceeding their plan size limit"
	case model.TaskTypeNoUsers:
		return "Apps without an owner"
	}
	return taskType
}
