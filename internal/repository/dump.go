package repository

import (
	"context"
	"fmt"
	"sort"
)

// DumpRepository reads and writes whole Siberian tables for the backup
// and restore pipeline. Rows travel as generic maps so the artifact
// format stays independent of the database driver.
type DumpRepository interface {
	ListTables(ctx context.Context) ([]string, error)
	DumpTable(ctx context.Context, table string) ([]map[string]interface{}, error)

	// RestoreTable replaces the table's contents with the given rows in
	// one transaction. The target schema must already exist; restore
	// writes into a live installation.
	RestoreTable(ctx context.Context, table string, rows []map[string]interface{}) error
}

func NewDumpRepository(r *Repository) DumpRepository {
	return &dumpRepository{Repository: r}
}

type dumpRepository struct {
	*Repository
}

func (r *dumpRepository) ListTables(ctx context.Context) ([]string, error) {
	tables, err := r.DB(ctx).Migrator().GetTables()
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	sort.Strings(tables)
	return tables, nil
}

func (r *dumpRepository) DumpTable(ctx context.Context, table string) ([]map[string]interface{}, error) {
	var rows []map[string]interface{}
	if err := r.DB(ctx).Table(table).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("dump table %s: %w", table, err)
	}
	return rows, nil
}

func (r *dumpRepository) RestoreTable(ctx context.Context, table string, rows []map[string]interface{}) error {
	return r.Transaction(ctx, func(ctx context.Context) error {
		if err := r.DB(ctx).Exec(fmt.Sprintf("DELETE FROM `%s`", table)).Error; err != nil {
			return fmt.Errorf("clear table %s: %w", table, err)
		}
		if len(rows) == 0 {
			return nil
		}
		const chunk = 200
		for start := 0; start < len(rows); start += chunk {
			end := start + chunk
			if end > len(rows) {
				end = len(rows)
			}
			if err := r.DB(ctx).Table(table).Create(rows[start:end]).Error; err != nil {
				return fmt.Errorf("restore table %s: %w", table, err)
			}
		}
		return nil
	})
}
