package engine

import (
	"context"
	"math"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/kynsofficial/siberiancms-integration-sub001/internal/repository"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/log"

	"go.uber.org/zap"
)

const (
	// lockTTL bounds how long a continuation holder excludes others.
	// Stale locks simply expire, so a crashed worker never deadlocks
	// the task.
	lockTTL = 30 * time.Second

	requeueDelay = 250 * time.Millisecond
	kickBuffer   = 64
)

// Continuation advances one named background task by a bounded amount of
// work. It reports done=true when the task reached a terminal state.
type Continuation func(ctx context.Context) (done bool, err error)

// Runner is the background continuation worker. The host process here is
// long-lived, so instead of the stateless-HTTP trick of firing loopback
// requests at ourselves, orchestrators enqueue a kick and the runner
// drives the persisted record forward until terminal. HTTP triggers
// (user, cron endpoint, loopback route) all funnel into Kick, and the
// advisory lock keeps overlapping triggers from doing duplicate work.
type Runner struct {
	store  repository.StateStore
	logger *log.Logger

	mu            sync.RWMutex
	continuations map[string]Continuation

	kicks  chan string
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRunner(store repository.StateStore, logger *log.Logger) *Runner {
	return &Runner{
		store:         store,
		logger:        logger,
		continuations: make(map[string]Continuation),
		kicks:         make(chan string, kickBuffer),
	}
}

// Register binds a continuation to a name. Kicks for unknown names are
// dropped with a warning.
func (r *Runner) Register(name string, fn Continuation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.continuations[name] = fn
}

// Kick schedules a continuation run. Non-blocking: when the queue is
// full the kick is dropped, which is safe because every run re-kicks
// itself until the task is terminal.
func (r *Runner) Kick(name string) {
	select {
	case r.kicks <- name:
	default:
	}
}

func (r *Runner) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Add(1)
	go r.loop(ctx)
	r.logger.Info("background runner started")
	return nil
}

func (r *Runner) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	r.logger.Info("background runner stopped")
	return nil
}

func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case name := <-r.kicks:
			r.run(ctx, name)
		}
	}
}

func (r *Runner) run(ctx context.Context, name string) {
	r.mu.RLock()
	fn, ok := r.continuations[name]
	r.mu.RUnlock()
	if !ok {
		r.logger.Warn("kick for unregistered continuation", zap.String("name", name))
		return
	}

	acquired, err := r.store.AcquireLock(ctx, name, lockTTL)
	if err != nil {
		r.logger.Error("continuation lock error", zap.String("name", name), zap.Error(err))
		return
	}
	if !acquired {
		// Another trigger is already driving this task.
		return
	}

	done, err := fn(ctx)

	if relErr := r.store.ReleaseLock(ctx, name); relErr != nil {
		r.logger.Warn("continuation lock release failed", zap.String("name", name), zap.Error(relErr))
	}
	if err != nil {
		r.logger.Error("continuation failed", zap.String("name", name), zap.Error(err))
		return
	}
	if !done {
		time.AfterFunc(requeueDelay, func() { r.Kick(name) })
	}
}

// MemoryGuardTripped reports whether heap usage crossed 75% of the
// configured soft memory limit. With no limit set it never trips.
func MemoryGuardTripped() bool {
	limit := debug.SetMemoryLimit(-1)
	if limit <= 0 || limit == math.MaxInt64 {
		return false
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc > uint64(limit)*3/4
}

// ClampSteps bounds the per-pass unit budget to the supported range.
func ClampSteps(n int) int {
	if n < 2 {
		return 2
	}
	if n > 25 {
		return 25
	}
	return n
}
