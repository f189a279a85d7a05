package sqldb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/memberhub/approval-workflow/pkg/database"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return NewDB(sqlDB, database.DialectPostgres, zap.NewNop()), mock
}

func TestWithTransaction_Commits(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE membership_applications").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := db.WithTransaction(context.Background(), func(ctx context.Context) error {
		assert.True(t, InTransaction(ctx))
		_, err := db.Executor(ctx).ExecContext(ctx, "UPDATE membership_applications SET status = $1", "Approved")
		return err
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("guard failed")
	err := db.WithTransaction(context.Background(), func(ctx context.Context) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransaction_CommitAfterDeadlineIsTransient(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := db.WithTransaction(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		// let database/sql finish its own rollback before Commit runs
		time.Sleep(50 * time.Millisecond)
		return nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to commit transaction")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, IsTransient(err))
}

func TestWithTransaction_NestedCallsJoin(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	err := db.WithTransaction(context.Background(), func(outer context.Context) error {
		return db.WithTransaction(outer, func(inner context.Context) error {
			assert.Same(t, db.Executor(outer), db.Executor(inner))
			return nil
		})
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransaction_RollsBackOnPanic(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = db.WithTransaction(context.Background(), func(ctx context.Context) error {
			panic("unexpected")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutor_OutsideTransaction(t *testing.T) {
	db, _ := newMockDB(t)
	assert.False(t, InTransaction(context.Background()))
	assert.Equal(t, Executor(db.DB), db.Executor(context.Background()))
	assert.Equal(t, "SELECT $1", db.Rebind("SELECT ?"))
}
