package store

import (
	"context"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// Migration is a timestamp-versioned schema change. Statements are written in
// the subset of SQL shared by postgres and sqlite.
type Migration struct {
	Version     int64
	Description string
	Statements  []string
}

// MigrationRunner applies migrations and records them in schema_migrations.
type MigrationRunner struct {
	db *sqlx.DB
}

func NewMigrationRunner(db *sqlx.DB) *MigrationRunner {
	return &MigrationRunner{db: db}
}

// Run executes all pending migrations in version order, each in its own
// transaction.
func (r *MigrationRunner) Run(ctx context.Context, migrations []Migration) error {
	if err := r.ensureMigrationsTable(ctx); err != nil {
		return err
	}

	applied, err := r.appliedVersions(ctx)
	if err != nil {
		return err
	}

	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Version < sorted[j].Version
	})

	for _, m := range sorted {
		if applied[m.Version] {
			continue
		}
		if err := r.apply(ctx, m); err != nil {
			return errors.Wrapf(err, "failed to apply migration %d: %s", m.Version, m.Description)
		}
	}
	return nil
}

// AppliedVersions lists applied migration versions in ascending order.
func (r *MigrationRunner) AppliedVersions(ctx context.Context) ([]int64, error) {
	if err := r.ensureMigrationsTable(ctx); err != nil {
		return nil, err
	}
	var versions []int64
	if err := r.db.SelectContext(ctx, &versions, "SELECT version FROM schema_migrations ORDER BY version"); err != nil {
		return nil, errors.Wrap(err, "failed to get applied versions")
	}
	return versions, nil
}

func (r *MigrationRunner) ensureMigrationsTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version BIGINT PRIMARY KEY,
			applied_at TEXT NOT NULL,
			description TEXT
		)
	`)
	return errors.Wrap(err, "failed to create schema_migrations table")
}

func (r *MigrationRunner) appliedVersions(ctx context.Context) (map[int64]bool, error) {
	var versions []int64
	if err := r.db.SelectContext(ctx, &versions, "SELECT version FROM schema_migrations"); err != nil {
		return nil, errors.Wrap(err, "failed to get applied migrations")
	}
	applied := make(map[int64]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

func (r *MigrationRunner) apply(ctx context.Context, m Migration) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	for _, statement := range m.Statements {
		if _, err := tx.ExecContext(ctx, statement); err != nil {
			return errors.Wrapf(err, "failed to execute %q", firstLine(statement))
		}
	}

	_, err = tx.ExecContext(ctx,
		tx.Rebind("INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)"),
		m.Version, formatTime(time.Now()), m.Description)
	if err != nil {
		return errors.Wrap(err, "failed to record migration")
	}
	return tx.Commit()
}

func firstLine(statement string) string {
	for i, r := range statement {
		if r == '\n' && i > 0 {
			return statement[:i]
		}
	}
	return statement
}

// Migrations returns every schema migration in version order.
func Migrations() []Migration {
	return []Migration{
		{
			Version:     20260101000001,
			Description: "Create catalog tables",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS tasks (
					id TEXT PRIMARY KEY,
					slug TEXT NOT NULL UNIQUE,
					name TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					category TEXT NOT NULL DEFAULT '',
					tags_json TEXT NOT NULL DEFAULT '[]'
				)`,
				`CREATE TABLE IF NOT EXISTS skills (
					id TEXT PRIMARY KEY,
					slug TEXT NOT NULL UNIQUE,
					name TEXT NOT NULL,
					summary TEXT NOT NULL DEFAULT '',
					description TEXT NOT NULL DEFAULT '',
					keywords_json TEXT NOT NULL DEFAULT '[]',
					agents_json TEXT NOT NULL DEFAULT '[]',
					source_url TEXT NOT NULL DEFAULT '',
					provenance_json TEXT NOT NULL DEFAULT '{}',
					security_review_json TEXT NOT NULL DEFAULT '{}',
					embedding_json TEXT NOT NULL DEFAULT '[]',
					created_at TEXT NOT NULL,
					updated_at TEXT NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS benchmark_cases (
					id TEXT PRIMARY KEY,
					task_id TEXT NOT NULL REFERENCES tasks(id),
					container_image TEXT NOT NULL,
					default_timeout_seconds BIGINT NOT NULL DEFAULT 900
				)`,
			},
		},
		{
			Version:     20260101000002,
			Description: "Create benchmark run and trial tables",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS benchmark_runs (
					id TEXT PRIMARY KEY,
					runner TEXT NOT NULL,
					mode TEXT NOT NULL,
					status TEXT NOT NULL,
					started_at TEXT NOT NULL,
					completed_at TEXT,
					artifact_path TEXT NOT NULL DEFAULT '',
					notes TEXT NOT NULL DEFAULT ''
				)`,
				`CREATE TABLE IF NOT EXISTS trials (
					id TEXT PRIMARY KEY,
					benchmark_case_id TEXT NOT NULL REFERENCES benchmark_cases(id),
					run_id TEXT NOT NULL REFERENCES benchmark_runs(id),
					skill_id TEXT REFERENCES skills(id),
					agent TEXT NOT NULL,
					model TEXT NOT NULL,
					seed BIGINT NOT NULL DEFAULT 0,
					evaluation_mode TEXT NOT NULL,
					status TEXT NOT NULL,
					artifact_path TEXT NOT NULL DEFAULT '',
					notes TEXT NOT NULL DEFAULT '',
					started_at TEXT NOT NULL,
					completed_at TEXT
				)`,
				`CREATE TABLE IF NOT EXISTS trial_events (
					id TEXT PRIMARY KEY,
					trial_id TEXT NOT NULL REFERENCES trials(id),
					sequence BIGINT NOT NULL,
					event_type TEXT NOT NULL,
					payload_json TEXT NOT NULL DEFAULT '{}',
					command TEXT NOT NULL DEFAULT '',
					blocked BOOLEAN NOT NULL DEFAULT FALSE,
					exit_code BIGINT,
					duration_ms BIGINT NOT NULL DEFAULT 0,
					UNIQUE (trial_id, sequence)
				)`,
				`CREATE TABLE IF NOT EXISTS trial_scores (
					trial_id TEXT PRIMARY KEY REFERENCES trials(id),
					overall_score DOUBLE PRECISION NOT NULL,
					quality_score DOUBLE PRECISION NOT NULL,
					security_score DOUBLE PRECISION NOT NULL,
					speed_score DOUBLE PRECISION NOT NULL,
					cost_score DOUBLE PRECISION NOT NULL,
					success_rate DOUBLE PRECISION NOT NULL,
					deterministic_score DOUBLE PRECISION NOT NULL,
					safety_score DOUBLE PRECISION NOT NULL,
					efficiency_score DOUBLE PRECISION NOT NULL,
					created_at TEXT NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_trials_run_id ON trials(run_id)`,
				`CREATE INDEX IF NOT EXISTS idx_trials_scoring ON trials(status, evaluation_mode)`,
			},
		},
	}
}
