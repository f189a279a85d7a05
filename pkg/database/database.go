package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Dialect names a supported SQL backend
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// Config holds database configuration
type Config struct {
	Driver          Dialect
	DSN             string
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration
}

// DB wraps sql.DB with the dialect it was opened with
type DB struct {
	*sql.DB
	Dialect Dialect
	logger  *zap.Logger
}

// Open connects to the configured backend and verifies the connection
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*DB, error) {
	driverName, dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection established", zap.String("driver", string(cfg.Driver)))
	return &DB{DB: sqlDB, Dialect: cfg.Driver, logger: logger}, nil
}

func buildDSN(cfg Config) (driverName, dsn string, err error) {
	switch cfg.Driver {
	case DialectSQLite, "":
		path := cfg.Path
		if path == "" {
			path = cfg.DSN
		}
		if path == "" {
			return "", "", fmt.Errorf("sqlite requires a database path")
		}
		busy := cfg.BusyTimeout
		if busy <= 0 {
			busy = 5 * time.Second
		}
		// _txlock=immediate takes the write lock at BEGIN, which is how SQLite
		// serializes concurrent transitions on the same row.
		return "sqlite3", fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on&_txlock=immediate",
			path, busy.Milliseconds()), nil

	case DialectPostgres:
		if _, err := pgx.ParseConfig(cfg.DSN); err != nil {
			return "", "", fmt.Errorf("invalid postgres dsn: %w", err)
		}
		return "pgx", cfg.DSN, nil

	case DialectMySQL:
		mc, err := mysql.ParseDSN(cfg.DSN)
		if err != nil {
			return "", "", fmt.Errorf("invalid mysql dsn: %w", err)
		}
		mc.ParseTime = true
		mc.Loc = time.UTC
		return "mysql", mc.FormatDSN(), nil
	}
	return "", "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

// Placeholder returns the squirrel placeholder format for the dialect
func (d Dialect) Placeholder() sq.PlaceholderFormat {
	if d == DialectPostgres {
		return sq.Dollar
	}
	return sq.Question
}

// Rebind rewrites ? placeholders into the dialect's native form
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	out, err := sq.Dollar.ReplacePlaceholders(query)
	if err != nil {
		return query
	}
	return out
}

// SupportsReturning reports whether INSERT ... RETURNING id is available
func (d Dialect) SupportsReturning() bool {
	return d == DialectPostgres
}

// LockClause is the row-lock suffix for SELECT inside a transaction. SQLite has
// none; its write lock is taken when the transaction begins.
func (d Dialect) LockClause() string {
	switch d {
	case DialectPostgres, DialectMySQL:
		return " FOR UPDATE"
	}
	return ""
}

// IsValid reports whether the dialect is supported
func (d Dialect) IsValid() bool {
	switch d {
	case DialectSQLite, DialectPostgres, DialectMySQL:
		return true
	}
	return false
}

// ParseDialect normalises a configured driver name
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sqlite", "sqlite3", "":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", name)
}

// Close closes the database connection
func (db *DB) Close() error {
	db.logger.Info("Closing database connection")
	return db.DB.Close()
}
