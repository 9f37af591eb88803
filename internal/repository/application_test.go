package repository

import (
	"context"
	"testing"

	"github.com/kynsofficial/siberiancms-integration-sub001/internal/model"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/log"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestRepo(t *testing.T) (*Repository, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Application{},
		&model.ApplicationAdmin{},
		&model.SubscriptionApplication{},
		&model.Admin{},
	))
	logger := &log.Logger{Logger: zap.NewNop()}
	return NewRepository(logger, db, nil), db
}

func seedApp(t *testing.T, db *gorm.DB, app *model.Application) {
	t.Helper()
	require.NoError(t, db.Create(app).Error)
}

func TestListZeroSize(t *testing.T) {
	repo, db := newTestRepo(t)
	appRepo := NewApplicationRepository(repo)

	seedApp(t, db, &model.Application{AppID: 1, Name: "empty", SizeOnDisk: 0, IsActive: 1})
	seedApp(t, db, &model.Application{AppID: 2, Name: "big", SizeOnDisk: 1024, IsActive: 1})

	apps, err := appRepo.ListZeroSize(context.Background())
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, int64(1), apps[0].AppID)
}

func TestListInactive(t *testing.T) {
	repo, db := newTestRepo(t)
	appRepo := NewApplicationRepository(repo)

	seedApp(t, db, &model.Application{AppID: 1, Name: "live", SizeOnDisk: 10, IsActive: 1})
	seedApp(t, db, &model.Application{AppID: 2, Name: "dead", SizeOnDisk: 10, IsActive: 0})

	apps, err := appRepo.ListInactive(context.Background())
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "dead", apps[0].Name)
}

func TestListWithSubscription(t *testing.T) {
	repo, db := newTestRepo(t)
	appRepo := NewApplicationRepository(repo)

	seedApp(t, db, &model.Application{AppID: 1, Name: "subscribed", SizeOnDisk: 500, IsActive: 1})
	seedApp(t, db, &model.Application{AppID: 2, Name: "free", SizeOnDisk: 500, IsActive: 1})
	require.NoError(t, db.Create(&model.SubscriptionApplication{SubscriptionID: 7, AppID: 1, IsActive: 1}).Error)
	require.NoError(t, db.Create(&model.SubscriptionApplication{SubscriptionID: 9, AppID: 2, IsActive: 0}).Error)

	rows, err := appRepo.ListWithSubscription(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].AppID)
	assert.Equal(t, int64(7), rows[0].SubscriptionID)
}

func TestListOwnerlessAndHasOwner(t *testing.T) {
	repo, db := newTestRepo(t)
	appRepo := NewApplicationRepository(repo)
	ctx := context.Background()

	seedApp(t, db, &model.Application{AppID: 1, Name: "owned", IsActive: 1})
	seedApp(t, db, &model.Application{AppID: 2, Name: "orphan", IsActive: 1})
	require.NoError(t, db.Create(&model.ApplicationAdmin{AppID: 1, AdminID: 3}).Error)

	apps, err := appRepo.ListOwnerless(ctx)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, int64(2), apps[0].AppID)

	owned, err := appRepo.HasOwner(ctx, 1)
	require.NoError(t, err)
	assert.True(t, owned)

	owned, err = appRepo.HasOwner(ctx, 2)
	require.NoError(t, err)
	assert.False(t, owned)
}

func TestDependentTablesFallsBackOnSqlite(t *testing.T) {
	repo, _ := newTestRepo(t)
	appRepo := NewApplicationRepository(repo)

	tables, err := appRepo.DependentTables(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"application_admin", "subscription_application"}, tables)
}

func TestDeleteCascadeRemovesDependents(t *testing.T) {
	repo, db := newTestRepo(t)
	appRepo := NewApplicationRepository(repo)
	ctx := context.Background()

	seedApp(t, db, &model.Application{AppID: 1, Name: "goner", IsActive: 0})
	seedApp(t, db, &model.Application{AppID: 2, Name: "stays", IsActive: 1})
	require.NoError(t, db.Create(&model.ApplicationAdmin{AppID: 1, AdminID: 3}).Error)
	require.NoError(t, db.Create(&model.SubscriptionApplication{SubscriptionID: 7, AppID: 1, IsActive: 1}).Error)

	tables, err := appRepo.DependentTables(ctx)
	require.NoError(t, err)
	require.NoError(t, appRepo.DeleteCascade(ctx, []int64{1}, tables))

	count, err := appRepo.CountAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	var admins int64
	require.NoError(t, db.Model(&model.ApplicationAdmin{}).Count(&admins).Error)
	assert.Equal(t, int64(0), admins)

	var subs int64
	require.NoError(t, db.Model(&model.SubscriptionApplication{}).Count(&subs).Error)
	assert.Equal(t, int64(0), subs)
}

func TestDeleteCascadeNoIDsIsNoop(t *testing.T) {
	repo, db := newTestRepo(t)
	appRepo := NewApplicationRepository(repo)

	seedApp(t, db, &model.Application{AppID: 1, Name: "stays", IsActive: 1})
	require.NoError(t, appRepo.DeleteCascade(context.Background(), nil, coreDependentTables))

	count, err := appRepo.CountAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
