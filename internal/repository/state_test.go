package repository

import (
	"context"
	"testing"
	"time"

	"github.com/kynsofficial/siberiancms-integration-sub001/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (StateStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewStateStore(redis.NewClient(&redis.Options{Addr: mr.Addr()})), mr
}

func TestStateStoreRoundtrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	in := &model.TaskProgress{TaskType: model.TaskTypeZeroSize, Status: model.TaskStatusRunning, Total: 42}
	require.NoError(t, store.Set(ctx, TaskKey(in.TaskType), in, 0))

	var out model.TaskProgress
	found, err := store.Get(ctx, TaskKey(in.TaskType), &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, in.TaskType, out.TaskType)
	assert.Equal(t, in.Total, out.Total)
}

func TestStateStoreMissingKey(t *testing.T) {
	store, _ := newTestStore(t)

	var out model.TaskProgress
	found, err := store.Get(context.Background(), TaskKey("nope"), &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStateStoreDelete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, KeyBackupCurrent, map[string]string{"a": "b"}, 0))
	require.NoError(t, store.Delete(ctx, KeyBackupCurrent))

	var out map[string]string
	found, err := store.Get(ctx, KeyBackupCurrent, &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStateStoreTTLExpires(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "siberian:ephemeral", "x", time.Minute))
	mr.FastForward(2 * time.Minute)

	var out string
	found, err := store.Get(ctx, "siberian:ephemeral", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAdvisoryLockExcludesSecondHolder(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	ok, err := store.AcquireLock(ctx, "backup", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.AcquireLock(ctx, "backup", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.ReleaseLock(ctx, "backup"))
	ok, err = store.AcquireLock(ctx, "backup", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	// a stale lock expires on its own
	mr.FastForward(time.Minute)
	ok, err = store.AcquireLock(ctx, "backup", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
