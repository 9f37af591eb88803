package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/log"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func newMockMysqlRepo(t *testing.T) (ApplicationRepository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	logger := &log.Logger{Logger: zap.NewNop()}
	return NewApplicationRepository(NewRepository(logger, db, nil)), mock
}

func TestDependentTablesDiscoversFromInformationSchema(t *testing.T) {
	repo, mock := newMockMysqlRepo(t)

	mock.ExpectQuery("SELECT table_name FROM information_schema.columns").
		WithArgs("app_id", "application").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).
			AddRow("application_admin").
			AddRow("subscription_application").
			AddRow("push_messages"))

	tables, err := repo.DependentTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"application_admin", "subscription_application", "push_messages"}, tables)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDependentTablesFallsBackOnQueryError(t *testing.T) {
	repo, mock := newMockMysqlRepo(t)

	mock.ExpectQuery("SELECT table_name FROM information_schema.columns").
		WillReturnError(errors.New("information_schema unavailable"))

	tables, err := repo.DependentTables(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, coreDependentTables, tables)
	assert.NoError(t, mock.ExpectationsWereMet())
}
