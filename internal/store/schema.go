package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/bcrosbie/skillbench/internal/domain"
	"github.com/hashicorp/go-multierror"
)

// RequiredColumns lists every column the catalog, trial and scoring paths
// read or write. A store missing any of them is unusable.
var RequiredColumns = map[string][]string{
	"tasks":           {"id", "slug", "name", "description", "category", "tags_json"},
	"skills":          {"id", "slug", "name", "summary", "description", "keywords_json", "agents_json", "source_url", "provenance_json", "security_review_json", "embedding_json", "created_at", "updated_at"},
	"benchmark_cases": {"id", "task_id", "container_image", "default_timeout_seconds"},
	"benchmark_runs":  {"id", "runner", "mode", "status", "started_at", "completed_at", "artifact_path", "notes"},
	"trials":          {"id", "benchmark_case_id", "run_id", "skill_id", "agent", "model", "seed", "evaluation_mode", "status", "artifact_path", "notes", "started_at", "completed_at"},
	"trial_events":    {"id", "trial_id", "sequence", "event_type", "payload_json", "command", "blocked", "exit_code", "duration_ms"},
	"trial_scores":    {"trial_id", "overall_score", "quality_score", "security_score", "speed_score", "cost_score", "success_rate", "deterministic_score", "safety_score", "efficiency_score", "created_at"},
}

// VerifySchema probes the live schema and fails closed with
// schema_unavailable, listing every missing table or column.
func (s *SQLStore) VerifySchema(ctx context.Context) error {
	tables := make([]string, 0, len(RequiredColumns))
	for table := range RequiredColumns {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	var missing *multierror.Error
	for _, table := range tables {
		present, err := s.tableColumns(ctx, table)
		if err != nil {
			return domain.SchemaUnavailable("failed to probe database schema", err)
		}
		if len(present) == 0 {
			missing = multierror.Append(missing, fmt.Errorf("table %s is missing", table))
			continue
		}
		for _, column := range RequiredColumns[table] {
			if _, ok := present[column]; !ok {
				missing = multierror.Append(missing, fmt.Errorf("column %s.%s is missing", table, column))
			}
		}
	}
	if err := missing.ErrorOrNil(); err != nil {
		return domain.SchemaUnavailable("database schema is incompatible; run migrations", err)
	}
	return nil
}

func (s *SQLStore) tableColumns(ctx context.Context, table string) (map[string]struct{}, error) {
	var query string
	switch s.dialect {
	case DialectPostgres:
		query = `SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = ?`
	default:
		query = `SELECT name FROM pragma_table_info(?)`
	}

	var names []string
	if err := s.db.SelectContext(ctx, &names, s.db.Rebind(query), table); err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(names))
	for _, name := range names {
		out[name] = struct{}{}
	}
	return out, nil
}
