// Package sqldbtest opens migrated SQLite databases for tests.
package sqldbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/memberhub/approval-workflow/internal/infrastructure/persistence/sqldb"
	"github.com/memberhub/approval-workflow/pkg/database"
)

// Open returns a file-backed SQLite database in t.TempDir() with every
// embedded migration applied. It is closed when the test ends.
func Open(t testing.TB) *sqldb.DB {
	t.Helper()

	logger := zap.NewNop()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Driver:       database.DialectSQLite,
		Path:         filepath.Join(t.TempDir(), "workflow.db"),
		MaxOpenConns: 8,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(db, logger).RunMigrations(ctx, database.EmbeddedMigrations()))

	return sqldb.NewDB(db.DB, db.Dialect, logger)
}
