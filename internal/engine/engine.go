package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/kynsofficial/siberiancms-integration-sub001/internal/model"
	"github.com/kynsofficial/siberiancms-integration-sub001/internal/repository"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/log"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const defaultBatchSize = 20

// BatchResult is what a handler reports for one processed batch. Counters
// are deltas for that batch only; the engine accumulates them into the
// progress record.
type BatchResult struct {
	Deleted int
	Errors  int
	Skipped int
	Warned  int
	Logs    []model.TaskLogEntry
	Items   []model.TaskItemOutcome
}

// BatchHandler supplies the work-item list and per-batch processing for
// one task type. Handlers must tolerate at-least-once execution: the
// advisory lock around batch driving is time-boxed, not exclusive.
type BatchHandler interface {
	TaskType() string
	FetchItems(ctx context.Context) ([]model.WorkItem, error)
	ProcessBatch(ctx context.Context, items []model.WorkItem) (*BatchResult, error)
}

// Outcome is the caller-visible result of one ProcessBatch call.
type Outcome struct {
	Success    bool `json:"success"`
	Progress   int  `json:"progress"`
	NextBatch  int  `json:"next_batch"`
	Completed  bool `json:"completed"`
	BatchCount int  `json:"batch_count"`
}

// Engine is the generic chunked-processing primitive shared by every
// cleanup task: initialize once, then advance one batch per call, with
// all state living in the injected store so any process can continue.
type Engine struct {
	store     repository.StateStore
	logger    *log.Logger
	batchSize int
	handlers  map[string]BatchHandler
}

func NewEngine(conf *viper.Viper, store repository.StateStore, logger *log.Logger) *Engine {
	batchSize := conf.GetInt("cleanup.batch_size")
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Engine{
		store:     store,
		logger:    logger,
		batchSize: batchSize,
		handlers:  make(map[string]BatchHandler),
	}
}

// Register binds a handler to its task type. Called once per task type
// during wiring; later registrations replace earlier ones.
func (e *Engine) Register(h BatchHandler) {
	e.handlers[h.TaskType()] = h
}

// Handler resolves the handler for a task type.
func (e *Engine) Handler(taskType string) (BatchHandler, bool) {
	h, ok := e.handlers[taskType]
	return h, ok
}

// BatchSize returns the configured batch size.
func (e *Engine) BatchSize() int {
	return e.batchSize
}

// Initialize discards any prior progress record for the handler's task
// type, fetches the full work-item list, partitions it into fixed-size
// batches, and persists a fresh record with status running.
func (e *Engine) Initialize(ctx context.Context, taskType string) (*model.TaskProgress, error) {
	h, ok := e.handlers[taskType]
	if !ok {
		return nil, fmt.Errorf("no handler registered for task %q", taskType)
	}

	items, err := h.FetchItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch items for %s: %w", taskType, err)
	}

	batches := partition(items, e.batchSize)
	now := time.Now()
	progress := &model.TaskProgress{
		TaskType:     taskType,
		Status:       model.TaskStatusRunning,
		Total:        len(items),
		Batches:      batches,
		BatchCount:   len(batches),
		CurrentBatch: 0,
		StartTime:    now,
		LastUpdate:   now,
	}
	progress.AppendLog(model.LogSeverityInfo,
		fmt.Sprintf("Task initialized: %d items in %d batches", len(items), len(batches)))

	if len(items) == 0 {
		progress.Status = model.TaskStatusCompleted
		progress.Progress = 100
		progress.AppendLog(model.LogSeveritySuccess, "Nothing to process")
	}

	if err := e.store.Set(ctx, repository.TaskKey(taskType), progress, 0); err != nil {
		return nil, err
	}
	e.logger.WithContext(ctx).Info("task initialized",
		zap.String("task", taskType), zap.Int("total", len(items)), zap.Int("batches", len(batches)))
	return progress, nil
}

// ProcessBatch advances the task by one batch. Re-invoking an index that
// was already processed returns the recorded state unchanged, so callers
// polling with a stale index never double-advance the record. An index
// past the final batch transitions the task to completed.
func (e *Engine) ProcessBatch(ctx context.Context, taskType string, batchIndex int) (*Outcome, error) {
	progress, found, err := e.Progress(ctx, taskType)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("no progress record for task %q", taskType)
	}
	if progress.Terminal() {
		return outcomeOf(progress), nil
	}

	if batchIndex >= progress.BatchCount {
		e.complete(progress)
		if err := e.save(ctx, progress); err != nil {
			return nil, err
		}
		return outcomeOf(progress), nil
	}
	if batchIndex < progress.CurrentBatch {
		// Already processed; idempotent no-op.
		return outcomeOf(progress), nil
	}
	if batchIndex > progress.CurrentBatch {
		return nil, fmt.Errorf("batch %d out of order for task %q (next is %d)",
			batchIndex, taskType, progress.CurrentBatch)
	}

	h, ok := e.handlers[taskType]
	if !ok {
		return nil, fmt.Errorf("no handler registered for task %q", taskType)
	}

	batch := progress.Batches[batchIndex]
	result, err := h.ProcessBatch(ctx, batch)
	if err != nil {
		// A failing handler never aborts the task: the whole batch is
		// counted as errors and processing moves on.
		result = &BatchResult{Errors: len(batch)}
		result.Logs = append(result.Logs, model.TaskLogEntry{
			Time:     time.Now(),
			Message:  fmt.Sprintf("Batch %d failed: %v", batchIndex+1, err),
			Severity: model.LogSeverityError,
		})
		for _, item := range batch {
			result.Items = append(result.Items, model.TaskItemOutcome{
				AppID: item.AppID, Name: item.Name,
				Outcome: model.ItemOutcomeError, Reason: err.Error(), Time: time.Now(),
			})
		}
		e.logger.WithContext(ctx).Error("batch handler failed",
			zap.String("task", taskType), zap.Int("batch", batchIndex), zap.Error(err))
	}

	progress.Deleted += result.Deleted
	progress.Errors += result.Errors
	progress.Skipped += result.Skipped
	progress.Warned += result.Warned
	progress.Logs = append(progress.Logs, result.Logs...)
	progress.Items = append(progress.Items, result.Items...)
	progress.Processed += len(batch)
	progress.CurrentBatch = batchIndex + 1
	progress.Progress = percent(progress.Processed, progress.Total)

	severity := model.LogSeveritySuccess
	if result.Errors > 0 {
		severity = model.LogSeverityWarning
	}
	progress.AppendLog(severity, fmt.Sprintf(
		"Batch %d/%d done: %d deleted, %d warned, %d skipped, %d errors",
		batchIndex+1, progress.BatchCount, result.Deleted, result.Warned, result.Skipped, result.Errors))

	if progress.CurrentBatch >= progress.BatchCount {
		e.complete(progress)
	}

	if err := e.save(ctx, progress); err != nil {
		return nil, err
	}
	return outcomeOf(progress), nil
}

// Progress loads the current progress record for a task type.
func (e *Engine) Progress(ctx context.Context, taskType string) (*model.TaskProgress, bool, error) {
	var progress model.TaskProgress
	found, err := e.store.Get(ctx, repository.TaskKey(taskType), &progress)
	if err != nil || !found {
		return nil, found, err
	}
	return &progress, true, nil
}

// Cancel marks a running task cancelled. In-flight batch calls that
// complete afterwards observe the terminal status and stop.
func (e *Engine) Cancel(ctx context.Context, taskType string) error {
	progress, found, err := e.Progress(ctx, taskType)
	if err != nil {
		return err
	}
	if !found || progress.Terminal() {
		return nil
	}
	progress.Status = model.TaskStatusCancelled
	progress.AppendLog(model.LogSeverityWarning, "Task cancelled by user")
	return e.save(ctx, progress)
}

func (e *Engine) complete(p *model.TaskProgress) {
	p.Status = model.TaskStatusCompleted
	p.Progress = 100
	p.AppendLog(model.LogSeveritySuccess, fmt.Sprintf(
		"Task completed: %d processed, %d deleted, %d warned, %d skipped, %d errors",
		p.Processed, p.Deleted, p.Warned, p.Skipped, p.Errors))
}

func (e *Engine) save(ctx context.Context, p *model.TaskProgress) error {
	p.LastUpdate = time.Now()
	return e.store.Set(ctx, repository.TaskKey(p.TaskType), p, 0)
}

func outcomeOf(p *model.TaskProgress) *Outcome {
	return &Outcome{
		Success:    true,
		Progress:   p.Progress,
		NextBatch:  p.CurrentBatch,
		Completed:  p.Status == model.TaskStatusCompleted,
		BatchCount: p.BatchCount,
	}
}

func partition(items []model.WorkItem, size int) [][]model.WorkItem {
	if len(items) == 0 {
		return nil
	}
	batches := make([][]model.WorkItem, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}

func percent(processed, total int) int {
	if total <= 0 {
		return 100
	}
	p := int(float64(processed)/float64(total)*100 + 0.5)
	if p > 100 {
		p = 100
	}
	return p
}
