package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kynsofficial/siberiancms-integration-sub001/internal/model"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/log"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Notifier delivers maintenance notifications. Actual mail transport is
// outside this service; the shipped implementation posts JSON webhooks
// so the WordPress side (or any listener) can fan out emails.
//
// Duplicate warnings are possible under at-least-once batch execution;
// see the advisory-lock notes on the runner.
type Notifier interface {
	NotifyWarning(ctx context.Context, taskType string, item model.WorkItem, expires time.Time) error
	NotifyBackupEvent(ctx context.Context, event string, backup *model.BackupRecord) error
}

func NewNotifier(conf *viper.Viper, logger *log.Logger) Notifier {
	url := conf.GetString("notify.webhook_url")
	if url == "" {
		return &noopNotifier{logger: logger}
	}
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(2 * time.Second)
	return &webhookNotifier{
		client: client,
		url:    url,
		logger: logger,
	}
}

type webhookNotifier struct {
	client *resty.Client
	url    string
	logger *log.Logger
}

func (n *webhookNotifier) NotifyWarning(ctx context.Context, taskType string, item model.WorkItem, expires time.Time) error {
	payload := map[string]interface{}{
		"event":     "cleanup_warning",
		"task_type": taskType,
		"app_id":    item.AppID,
		"app_name":  item.Name,
		"expires":   expires.Unix(),
	}
	return n.post(ctx, payload)
}

func (n *webhookNotifier) NotifyBackupEvent(ctx context.Context, event string, backup *model.BackupRecord) error {
	payload := map[string]interface{}{
		"event":       event,
		"backup_id":   backup.ID,
		"backup_type": backup.BackupType,
		"status":      backup.Status,
	}
	if backup.ErrMessage != "" {
		payload["error"] = backup.ErrMessage
	}
	return n.post(ctx, payload)
}

func (n *webhookNotifier) post(ctx context.Context, payload map[string]interface{}) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("notify webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("notify webhook: status %d", resp.StatusCode())
	}
	return nil
}

// noopNotifier logs instead of delivering; used when no webhook is
// configured.
type noopNotifier struct {
	logger *log.Logger
}

func (n *noopNotifier) NotifyWarning(ctx context.Context, taskType string, item model.WorkItem, expires time.Time) error {
	n.logger.WithContext(ctx).Info("cleanup warning (no webhook configured)",
		zap.String("task", taskType), zap.Int64("app_id", item.AppID), zap.Time("expires", expires))
	return nil
}

func (n *noopNotifier) NotifyBackupEvent(ctx context.Context, event string, backup *model.BackupRecord) error {
	n.logger.WithContext(ctx).Info("backup event (no webhook configured)",
		zap.String("event", event), zap.String("backup_id", backup.ID))
	return nil
}
