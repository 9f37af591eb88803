package repository

import (
	"context"
	"fmt"

	"github.com/kynsofficial/siberiancms-integration-sub001/internal/model"

	"go.uber.org/zap"
)

// AppWithSubscription is an application row joined to the plan it is
// billed under, used by size-limit enforcement.
type AppWithSubscription struct {
	AppID          int64  `json:"app_id" gorm:"column:app_id"`
	Name           string `json:"name" gorm:"column:name"`
	SizeOnDisk     int64  `json:"size_on_disk" gorm:"column:size_on_disk"`
	SubscriptionID int64  `json:"subscription_id" gorm:"column:subscription_id"`
}

// coreDependentTables is the fallback cascade list used when the
// database does not expose column metadata (sqlite in tests).
var coreDependentTables = []string{
	"application_admin",
	"subscription_application",
}

type ApplicationRepository interface {
	ListZeroSize(ctx context.Context) ([]*model.Application, error)
	ListInactive(ctx context.Context) ([]*model.Application, error)
	ListWithSubscription(ctx context.Context) ([]AppWithSubscription, error)
	ListOwnerless(ctx context.Context) ([]*model.Application, error)

	// HasOwner re-checks live ownership of an app; the snapshot taken at
	// task initialization may be stale by the time a batch deletes.
	HasOwner(ctx context.Context, appID int64) (bool, error)

	// DependentTables discovers every table carrying an app_id column,
	// excluding the application table itself.
	DependentTables(ctx context.Context) ([]string, error)

	// DeleteCascade removes the given apps and all dependent rows in one
	// transaction. All ids succeed or none do.
	DeleteCascade(ctx context.Context, appIDs []int64, dependentTables []string) error

	CountAll(ctx context.Context) (int64, error)
}

func NewApplicationRepository(r *Repository) ApplicationRepository {
	return &applicationRepository{Repository: r}
}

type applicationRepository struct {
	*Repository
}

func (r *applicationRepository) ListZeroSize(ctx context.Context) ([]*model.Application, error) {
	var apps []*model.Application
	if err := r.DB(ctx).
		Where("size_on_disk = 0 OR size_on_disk IS NULL").
		Order("app_id").
		Find(&apps).Error; err != nil {
		return nil, err
	}
	return apps, nil
}

func (r *applicationRepository) ListInactive(ctx context.Context) ([]*model.Application, error) {
	var apps []*model.Application
	if err := r.DB(ctx).
		Where("is_active = ?", 0).
		Order("app_id").
		Find(&apps).Error; err != nil {
		return nil, err
	}
	return apps, nil
}

func (r *applicationRepository) ListWithSubscription(ctx context.Context) ([]AppWithSubscription, error) {
	var rows []AppWithSubscription
	err := r.DB(ctx).
		Table("application").
		Select("application.app_id, application.name, application.size_on_disk, subscription_application.subscription_id").
		Joins("JOIN subscription_application ON subscription_application.app_id = application.app_id").
		Where("subscription_application.is_active = ?", 1).
		Order("application.app_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *applicationRepository) ListOwnerless(ctx context.Context) ([]*model.Application, error) {
	var apps []*model.Application
	err := r.DB(ctx).
		Table("application").
		Joins("LEFT JOIN application_admin ON application_admin.app_id = application.app_id").
		Where("application_admin.admin_id IS NULL").
		Order("application.app_id").
		Find(&apps).Error
	if err != nil {
		return nil, err
	}
	return apps, nil
}

func (r *applicationRepository) HasOwner(ctx context.Context, appID int64) (bool, error) {
	var count int64
	err := r.DB(ctx).
		Model(&model.ApplicationAdmin{}).
		Where("app_id = ?", appID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *applicationRepository) DependentTables(ctx context.Context) ([]string, error) {
	var tables []string
	err := r.DB(ctx).Raw(
		"SELECT table_name FROM information_schema.columns WHERE column_name = ? AND table_schema = DATABASE() AND table_name <> ?",
		"app_id", "application",
	).Scan(&tables).Error
	if err != nil || len(tables) == 0 {
		if err != nil {
			r.logger.WithContext(ctx).Warn("dependent table discovery failed, using core list", zap.Error(err))
		}
		out := make([]string, len(coreDependentTables))
		copy(out, coreDependentTables)
		return out, nil
	}
	return tables, nil
}

func (r *applicationRepository) DeleteCascade(ctx context.Context, appIDs []int64, dependentTables []string) error {
	if len(appIDs) == 0 {
		return nil
	}
	return r.Transaction(ctx, func(ctx context.Context) error {
		for _, table := range dependentTables {
			if err := r.DB(ctx).Exec(
				fmt.Sprintf("DELETE FROM `%s` WHERE app_id IN ?", table), appIDs,
			).Error; err != nil {
				return fmt.Errorf("delete dependents in %s: %w", table, err)
			}
		}
		if err := r.DB(ctx).Where("app_id IN ?", appIDs).Delete(&model.Application{}).Error; err != nil {
			return fmt.Errorf("delete applications: %w", err)
		}
		return nil
	})
}

func (r *applicationRepository) CountAll(ctx context.Context) (int64, error) {
	var count int64
	err := r.DB(ctx).Model(&model.Application{}).Count(&count).Error
	return count, err
}
