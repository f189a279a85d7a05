package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/memberhub/approval-workflow/internal/domain/entity"
	"github.com/memberhub/approval-workflow/internal/infrastructure/persistence/sqldb"
)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// insertID runs an INSERT and returns the generated id, using RETURNING where
// the dialect has it and LastInsertId elsewhere.
func insertID(ctx context.Context, db *sqldb.DB, query string, args ...interface{}) (int64, error) {
	if db.Dialect().SupportsReturning() {
		var id int64
		err := db.Executor(ctx).QueryRowContext(ctx, db.Rebind(query+" RETURNING id"), args...).Scan(&id)
		return id, err
	}

	result, err := db.Executor(ctx).ExecContext(ctx, db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return id, nil
}

func expectOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("expected 1 row affected, got %d", n)
	}
	return nil
}

func entityColumn(t entity.EntityType) (string, error) {
	switch t {
	case entity.EntityApplication:
		return "application_id", nil
	case entity.EntityRenewal:
		return "renewal_id", nil
	}
	return "", fmt.Errorf("unknown entity type %q", t)
}

func nullInt64(p *int64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func nullTime(p *time.Time) interface{} {
	if p == nil {
		return nil
	}
	return p.UTC()
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.Time.UTC()
	return &v
}
