package store

import (
	"context"

	"github.com/bcrosbie/skillbench/internal/domain"
)

// CatalogReader is the read contract the catalog loader builds snapshots from.
type CatalogReader interface {
	VerifySchema(ctx context.Context) error
	ListTasks(ctx context.Context) ([]domain.Task, error)
	ListSkills(ctx context.Context) ([]domain.Skill, error)
	ListRuns(ctx context.Context) ([]domain.BenchmarkRun, error)
	ListScores(ctx context.Context) ([]domain.Score, error)
}

// CatalogWriter provisions catalog entries out-of-band (CLI import).
type CatalogWriter interface {
	UpsertTask(ctx context.Context, task domain.Task) error
	UpsertSkill(ctx context.Context, skill domain.Skill) error
	UpsertBenchmarkCase(ctx context.Context, benchmarkCase domain.BenchmarkCase) error
}

// TrialWriter is the set of writes one trial (or one orchestration) performs.
// Implementations are bound to a single transaction.
type TrialWriter interface {
	GetRun(ctx context.Context, id string) (domain.BenchmarkRun, bool, error)
	InsertRun(ctx context.Context, run domain.BenchmarkRun) error
	InsertTrial(ctx context.Context, trial domain.Trial) error
	InsertTrialEvent(ctx context.Context, event domain.TrialEvent) error
	InsertTrialScore(ctx context.Context, score domain.TrialScore) error
	ListRunTrialStatuses(ctx context.Context, runID string) ([]string, error)
	UpdateRunStatus(ctx context.Context, runID, status, completedAt string) error
}

// TrialStore is the persistence contract used by the trial and orchestration
// paths.
type TrialStore interface {
	GetBenchmarkCase(ctx context.Context, id string) (domain.BenchmarkCase, error)
	GetTrialDetail(ctx context.Context, id string) (domain.TrialDetail, error)
	// WithTx runs fn inside one transaction; any error returned by fn rolls
	// every write back.
	WithTx(ctx context.Context, fn func(TrialWriter) error) error
}

// Store is everything the server wires together.
type Store interface {
	CatalogReader
	CatalogWriter
	TrialStore
	Ping(ctx context.Context) error
	Close() error
}
