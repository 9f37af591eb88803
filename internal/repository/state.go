package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// State-store key layout. Everything the orchestrators coordinate
// through lives under the siberian: prefix.
const (
	keyPrefix = "siberian:"

	KeyBackupCurrent  = keyPrefix + "backup:current"
	KeyBackupHistory  = keyPrefix + "backup:history"
	KeyRestoreCurrent = keyPrefix + "restore:current"
	KeySchedules      = keyPrefix + "schedules"
	KeyBackupQueue    = keyPrefix + "backup:queue"
)

// TaskKey builds the progress-record key for a cleanup task type.
func TaskKey(taskType string) string {
	return keyPrefix + "task:" + taskType
}

// CheckpointKey builds the resume-checkpoint key for a backup id.
func CheckpointKey(backupID string) string {
	return keyPrefix + "backup:checkpoint:" + backupID
}

// WarningKey builds the warning-record key for a task item.
func WarningKey(taskType string, appID int64) string {
	return fmt.Sprintf("%swarning:%s:%d", keyPrefix, taskType, appID)
}

// LockKey builds an advisory-lock key.
func LockKey(name string) string {
	return keyPrefix + "lock:" + name
}

// StateStore is the injected key-value persistence capability. Values are
// JSON documents; a zero ttl means the key never expires. All task
// progress, backup records, schedules, and locks go through it, which
// keeps the orchestrators testable against an in-memory double.
type StateStore interface {
	// Get unmarshals the value at key into dest. The bool reports
	// whether the key existed.
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// AcquireLock takes the named advisory lock for ttl. It reports
	// false when another holder already has it. Locks self-expire; a
	// stale lock is simply replaced by the next acquirer.
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name string) error
}

type stateStore struct {
	rdb *redis.Client
}

func NewStateStore(rdb *redis.Client) StateStore {
	return &stateStore{rdb: rdb}
}

func (s *stateStore) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("state get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("state decode %s: %w", key, err)
	}
	return true, nil
}

func (s *stateStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("state encode %s: %w", key, err)
	}
	if err := s.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("state set %s: %w", key, err)
	}
	return nil
}

func (s *stateStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("state delete %s: %w", key, err)
	}
	return nil
}

func (s *stateStore) AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, LockKey(name), time.Now().UnixNano(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return ok, nil
}

func (s *stateStore) ReleaseLock(ctx context.Context, name string) error {
	return s.rdb.Del(ctx, LockKey(name)).Err()
}
