package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bcrosbie/skillbench/internal/domain"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

const (
	defaultDBMaxOpenConns    = 25
	defaultDBMaxIdleConns    = 10
	defaultDBConnMaxLifetime = 30 * time.Minute
	defaultDBConnMaxIdleTime = 5 * time.Minute
	defaultDBPingTimeout     = 5 * time.Second
)

// SQLStore serves both postgres (pgx stdlib driver) and sqlite (modernc).
// Queries are written with '?' placeholders and rebound per driver.
type SQLStore struct {
	db      *sqlx.DB
	dialect string
}

var _ Store = (*SQLStore)(nil)

func NewPostgresStore(dsn string) (*SQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, domain.InvalidArgument("DATABASE_URL is required when STORE_DRIVER=postgres")
	}

	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, domain.Internal("failed to open postgres connection", err)
	}
	db.SetMaxOpenConns(defaultDBMaxOpenConns)
	db.SetMaxIdleConns(defaultDBMaxIdleConns)
	db.SetConnMaxLifetime(defaultDBConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultDBConnMaxIdleTime)

	return &SQLStore{db: db, dialect: DialectPostgres}, nil
}

// NewSQLiteStore opens (or creates) a sqlite database and applies the schema
// migrations. Intended for local development and tests.
func NewSQLiteStore(ctx context.Context, path string) (*SQLStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, domain.InvalidArgument("SQLITE_PATH is required when STORE_DRIVER=sqlite")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create database directory")
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if err := configureSQLite(ctx, db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to configure database")
	}

	s := &SQLStore{db: db, dialect: DialectSQLite}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func configureSQLite(ctx context.Context, db *sqlx.DB) error {
	// Pragmas are per connection; a single connection keeps foreign_keys on
	// for every statement.
	db.SetMaxIdleConns(1)
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return errors.Wrapf(err, "failed to execute pragma: %s", pragma)
		}
	}
	return nil
}

func (s *SQLStore) Dialect() string {
	return s.dialect
}

// Ping checks connectivity and that every column this service reads exists.
func (s *SQLStore) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, defaultDBPingTimeout)
	defer cancel()
	if err := s.db.PingContext(pingCtx); err != nil {
		return domain.SchemaUnavailable("failed to connect to "+s.dialect, err)
	}
	return s.VerifySchema(ctx)
}

func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Migrate applies all pending schema migrations.
func (s *SQLStore) Migrate(ctx context.Context) error {
	return NewMigrationRunner(s.db).Run(ctx, Migrations())
}

func (s *SQLStore) WithTx(ctx context.Context, fn func(TrialWriter) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Internal("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(&txWriter{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return domain.Internal("failed to commit transaction", err)
	}
	return nil
}

func parseTimestamp(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func nullableString(value string) sql.NullString {
	clean := strings.TrimSpace(value)
	return sql.NullString{String: clean, Valid: clean != ""}
}

func nullableTimestamp(value string) sql.NullString {
	clean := strings.TrimSpace(value)
	if clean == "" {
		return sql.NullString{}
	}
	if _, err := parseTimestamp(clean); err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: clean, Valid: true}
}
