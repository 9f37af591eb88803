package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kynsofficial/siberiancms-integration-sub001/internal/repository"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/log"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRunner(t *testing.T) (*Runner, repository.StateStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := repository.NewStateStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	return NewRunner(store, &log.Logger{Logger: zap.NewNop()}), store
}

func TestRunnerRunsContinuationUntilDone(t *testing.T) {
	r, _ := newTestRunner(t)

	var calls int32
	r.Register("demo", func(ctx context.Context) (bool, error) {
		n := atomic.AddInt32(&calls, 1)
		return n >= 3, nil
	})

	require.NoError(t, r.Start(context.Background()))
	defer r.Stop(context.Background())

	r.Kick("demo")
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 3
	}, 5*time.Second, 20*time.Millisecond)

	// done=true stops the re-kick chain
	time.Sleep(3 * requeueDelay)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRunnerSkipsWhenLockHeld(t *testing.T) {
	r, store := newTestRunner(t)

	var calls int32
	r.Register("demo", func(ctx context.Context) (bool, error) {
		atomic.AddInt32(&calls, 1)
		return true, nil
	})

	acquired, err := store.AcquireLock(context.Background(), "demo", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	require.NoError(t, r.Start(context.Background()))
	defer r.Stop(context.Background())

	r.Kick("demo")
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))

	require.NoError(t, store.ReleaseLock(context.Background(), "demo"))
	r.Kick("demo")
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestRunnerDropsUnregisteredKick(t *testing.T) {
	r, _ := newTestRunner(t)
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop(context.Background())

	// must not panic or wedge the loop
	r.Kick("nobody-home")
	time.Sleep(50 * time.Millisecond)
}

func TestClampSteps(t *testing.T) {
	assert.Equal(t, 2, ClampSteps(0))
	assert.Equal(t, 2, ClampSteps(-5))
	assert.Equal(t, 2, ClampSteps(2))
	assert.Equal(t, 10, ClampSteps(10))
	assert.Equal(t, 25, ClampSteps(25))
	assert.Equal(t, 25, ClampSteps(100))
}

func TestMemoryGuardDefaultNeverTrips(t *testing.T) {
	assert.False(t, MemoryGuardTripped())
}
