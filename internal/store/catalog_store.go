package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/bcrosbie/skillbench/internal/domain"
	"github.com/pkg/errors"
)

type taskRow struct {
	ID          string `db:"id"`
	Slug        string `db:"slug"`
	Name        string `db:"name"`
	Description string `db:"description"`
	Category    string `db:"category"`
	TagsJSON    string `db:"tags_json"`
}

type skillRow struct {
	ID                 string `db:"id"`
	Slug               string `db:"slug"`
	Name               string `db:"name"`
	Summary            string `db:"summary"`
	Description        string `db:"description"`
	KeywordsJSON       string `db:"keywords_json"`
	AgentsJSON         string `db:"agents_json"`
	SourceURL          string `db:"source_url"`
	ProvenanceJSON     string `db:"provenance_json"`
	SecurityReviewJSON string `db:"security_review_json"`
	EmbeddingJSON      string `db:"embedding_json"`
	CreatedAt          string `db:"created_at"`
	UpdatedAt          string `db:"updated_at"`
}

type runRow struct {
	ID           string         `db:"id"`
	Runner       string         `db:"runner"`
	Mode         string         `db:"mode"`
	Status       string         `db:"status"`
	StartedAt    string         `db:"started_at"`
	CompletedAt  sql.NullString `db:"completed_at"`
	ArtifactPath string         `db:"artifact_path"`
	Notes        string         `db:"notes"`
}

type scoreRow struct {
	ID            string  `db:"id"`
	RunID         string  `db:"run_id"`
	SkillID       string  `db:"skill_id"`
	TaskID        string  `db:"task_id"`
	Agent         string  `db:"agent"`
	OverallScore  float64 `db:"overall_score"`
	QualityScore  float64 `db:"quality_score"`
	SecurityScore float64 `db:"security_score"`
	SpeedScore    float64 `db:"speed_score"`
	CostScore     float64 `db:"cost_score"`
	SuccessRate   float64 `db:"success_rate"`
	ArtifactPath  string  `db:"artifact_path"`
	CreatedAt     string  `db:"created_at"`
}

func (s *SQLStore) ListTasks(ctx context.Context) ([]domain.Task, error) {
	rows := []taskRow{}
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, slug, name, description, category, tags_json
		FROM tasks
		ORDER BY slug ASC
	`); err != nil {
		return nil, domain.Internal("failed to list tasks", err)
	}

	items := make([]domain.Task, 0, len(rows))
	for _, row := range rows {
		item := domain.Task{
			ID:          row.ID,
			Slug:        row.Slug,
			Name:        row.Name,
			Description: row.Description,
			Category:    row.Category,
		}
		if err := decodeJSONColumn(row.TagsJSON, &item.Tags); err != nil {
			return nil, domain.IntegrityViolationf("task %s has malformed tags: %v", row.ID, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *SQLStore) ListSkills(ctx context.Context) ([]domain.Skill, error) {
	rows := []skillRow{}
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, slug, name, summary, description, keywords_json, agents_json, source_url,
		       provenance_json, security_review_json, embedding_json, created_at, updated_at
		FROM skills
		ORDER BY slug ASC
	`); err != nil {
		return nil, domain.Internal("failed to list skills", err)
	}

	items := make([]domain.Skill, 0, len(rows))
	for _, row := range rows {
		item, err := row.toDomain()
		if err != nil {
			return nil, domain.IntegrityViolationf("skill %s has a malformed column: %v", row.ID, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func (row skillRow) toDomain() (domain.Skill, error) {
	item := domain.Skill{
		ID:          row.ID,
		Slug:        row.Slug,
		Name:        row.Name,
		Summary:     row.Summary,
		Description: row.Description,
		SourceURL:   row.SourceURL,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	columns := []struct {
		name  string
		raw   string
		value any
	}{
		{"keywords_json", row.KeywordsJSON, &item.Keywords},
		{"agents_json", row.AgentsJSON, &item.Agents},
		{"provenance_json", row.ProvenanceJSON, &item.Provenance},
		{"security_review_json", row.SecurityReviewJSON, &item.SecurityReview},
		{"embedding_json", row.EmbeddingJSON, &item.Embedding},
	}
	for _, column := range columns {
		if err := decodeJSONColumn(column.raw, column.value); err != nil {
			return domain.Skill{}, fmt.Errorf("%s: %w", column.name, err)
		}
	}
	return item, nil
}

func (s *SQLStore) ListRuns(ctx context.Context) ([]domain.BenchmarkRun, error) {
	rows := []runRow{}
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, runner, mode, status, started_at, completed_at, artifact_path, notes
		FROM benchmark_runs
		ORDER BY started_at DESC, id DESC
	`); err != nil {
		return nil, domain.Internal("failed to list benchmark runs", err)
	}

	items := make([]domain.BenchmarkRun, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toDomain())
	}
	return items, nil
}

func (row runRow) toDomain() domain.BenchmarkRun {
	return domain.BenchmarkRun{
		ID:           row.ID,
		Runner:       row.Runner,
		Mode:         row.Mode,
		Status:       row.Status,
		StartedAt:    row.StartedAt,
		CompletedAt:  row.CompletedAt.String,
		ArtifactPath: row.ArtifactPath,
		Notes:        row.Notes,
	}
}

// ListScores derives catalog scores. Only completed oracle_skill trials with
// a skill id count as benchmark scores; the case join is a LEFT JOIN so that
// a dangling case surfaces as an empty task id for the integrity validator
// instead of silently dropping the row.
func (s *SQLStore) ListScores(ctx context.Context) ([]domain.Score, error) {
	rows := []scoreRow{}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT sc.trial_id AS id, t.run_id, t.skill_id, COALESCE(c.task_id, '') AS task_id, t.agent,
		       sc.overall_score, sc.quality_score, sc.security_score, sc.speed_score, sc.cost_score,
		       sc.success_rate, t.artifact_path, sc.created_at
		FROM trial_scores sc
		JOIN trials t ON t.id = sc.trial_id
		LEFT JOIN benchmark_cases c ON c.id = t.benchmark_case_id
		WHERE t.status = ? AND t.evaluation_mode = ? AND t.skill_id IS NOT NULL
		ORDER BY sc.created_at ASC, sc.trial_id ASC
	`), domain.StatusCompleted, string(domain.ModeOracleSkill)); err != nil {
		return nil, domain.Internal("failed to list benchmark scores", err)
	}

	items := make([]domain.Score, 0, len(rows))
	for _, row := range rows {
		items = append(items, domain.Score{
			ID:            row.ID,
			RunID:         row.RunID,
			SkillID:       row.SkillID,
			TaskID:        row.TaskID,
			Agent:         row.Agent,
			OverallScore:  row.OverallScore,
			QualityScore:  row.QualityScore,
			SecurityScore: row.SecurityScore,
			SpeedScore:    row.SpeedScore,
			CostScore:     row.CostScore,
			SuccessRate:   row.SuccessRate,
			ArtifactPath:  row.ArtifactPath,
			CreatedAt:     row.CreatedAt,
		})
	}
	return items, nil
}

func (s *SQLStore) GetBenchmarkCase(ctx context.Context, id string) (domain.BenchmarkCase, error) {
	var row struct {
		ID                    string `db:"id"`
		TaskID                string `db:"task_id"`
		ContainerImage        string `db:"container_image"`
		DefaultTimeoutSeconds int    `db:"default_timeout_seconds"`
	}
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT id, task_id, container_image, default_timeout_seconds
		FROM benchmark_cases
		WHERE id = ?
	`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.BenchmarkCase{}, domain.NotFound(fmt.Sprintf("benchmark case %q not found", id))
		}
		return domain.BenchmarkCase{}, domain.Internal("failed to read benchmark case", err)
	}
	return domain.BenchmarkCase{
		ID:                    row.ID,
		TaskID:                row.TaskID,
		ContainerImage:        row.ContainerImage,
		DefaultTimeoutSeconds: row.DefaultTimeoutSeconds,
	}, nil
}

func (s *SQLStore) UpsertTask(ctx context.Context, task domain.Task) error {
	tags, err := encodeJSONColumn(task.Tags, "[]")
	if err != nil {
		return domain.Internal("failed to encode task tags", err)
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO tasks (id, slug, name, description, category, tags_json)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET slug = EXCLUDED.slug,
		    name = EXCLUDED.name,
		    description = EXCLUDED.description,
		    category = EXCLUDED.category,
		    tags_json = EXCLUDED.tags_json
	`), task.ID, task.Slug, task.Name, task.Description, task.Category, tags)
	if err != nil {
		return domain.Internal("failed to upsert task", err)
	}
	return nil
}

func (s *SQLStore) UpsertSkill(ctx context.Context, skill domain.Skill) error {
	encoded := make([]string, 5)
	values := []struct {
		value    any
		fallback string
	}{
		{skill.Keywords, "[]"},
		{skill.Agents, "[]"},
		{skill.Provenance, "{}"},
		{skill.SecurityReview, "{}"},
		{skill.Embedding, "[]"},
	}
	for index, item := range values {
		raw, err := encodeJSONColumn(item.value, item.fallback)
		if err != nil {
			return domain.Internal("failed to encode skill column", err)
		}
		encoded[index] = raw
	}

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO skills (
			id, slug, name, summary, description, keywords_json, agents_json, source_url,
			provenance_json, security_review_json, embedding_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET slug = EXCLUDED.slug,
		    name = EXCLUDED.name,
		    summary = EXCLUDED.summary,
		    description = EXCLUDED.description,
		    keywords_json = EXCLUDED.keywords_json,
		    agents_json = EXCLUDED.agents_json,
		    source_url = EXCLUDED.source_url,
		    provenance_json = EXCLUDED.provenance_json,
		    security_review_json = EXCLUDED.security_review_json,
		    embedding_json = EXCLUDED.embedding_json,
		    updated_at = EXCLUDED.updated_at
	`), skill.ID, skill.Slug, skill.Name, skill.Summary, skill.Description, encoded[0], encoded[1], skill.SourceURL,
		encoded[2], encoded[3], encoded[4], skill.CreatedAt, skill.UpdatedAt)
	if err != nil {
		return domain.Internal("failed to upsert skill", err)
	}
	return nil
}

func (s *SQLStore) UpsertBenchmarkCase(ctx context.Context, benchmarkCase domain.BenchmarkCase) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO benchmark_cases (id, task_id, container_image, default_timeout_seconds)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET task_id = EXCLUDED.task_id,
		    container_image = EXCLUDED.container_image,
		    default_timeout_seconds = EXCLUDED.default_timeout_seconds
	`), benchmarkCase.ID, benchmarkCase.TaskID, benchmarkCase.ContainerImage, benchmarkCase.DefaultTimeoutSeconds)
	if err != nil {
		return domain.Internal("failed to upsert benchmark case", err)
	}
	return nil
}

func decodeJSONColumn(raw string, target any) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), target)
}

func encodeJSONColumn(value any, fallback string) (string, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	if string(raw) == "null" {
		return fallback, nil
	}
	return string(raw), nil
}
