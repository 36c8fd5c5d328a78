package catalog

import (
	"context"
	"testing"

	"github.com/bcrosbie/skillbench/internal/domain"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	schemaErr error
	tasks     []domain.Task
	skills    []domain.Skill
	runs      []domain.BenchmarkRun
	scores    []domain.Score
	listCalls int
}

func (f *fakeReader) VerifySchema(context.Context) error { return f.schemaErr }

func (f *fakeReader) ListTasks(context.Context) ([]domain.Task, error) {
	f.listCalls++
	return f.tasks, nil
}

func (f *fakeReader) ListSkills(context.Context) ([]domain.Skill, error) {
	f.listCalls++
	return f.skills, nil
}

func (f *fakeReader) ListRuns(context.Context) ([]domain.BenchmarkRun, error) {
	f.listCalls++
	return f.runs, nil
}

func (f *fakeReader) ListScores(context.Context) ([]domain.Score, error) {
	f.listCalls++
	return f.scores, nil
}

func validReader() *fakeReader {
	return &fakeReader{
		tasks:  []domain.Task{{ID: "task-ci", Slug: "ci-hardening"}},
		skills: []domain.Skill{{ID: "skill-ci", Slug: "ci-security-hardening"}},
		runs:   []domain.BenchmarkRun{{ID: "run-1", Mode: domain.RunModePinned, ArtifactPath: "s3://bench/run-1"}},
		scores: []domain.Score{{
			ID:           "score-1",
			RunID:        "run-1",
			SkillID:      "skill-ci",
			TaskID:       "task-ci",
			Agent:        "codex",
			OverallScore: 90,
			CreatedAt:    "2026-03-01T10:00:00Z",
		}},
	}
}

func TestLoadIndexesSnapshot(t *testing.T) {
	c, err := Load(context.Background(), validReader())
	require.NoError(t, err)

	task, ok := c.Task("task-ci")
	require.True(t, ok)
	assert.Equal(t, "ci-hardening", task.Slug)

	skill, ok := c.SkillBySlug("ci-security-hardening")
	require.True(t, ok)
	assert.Equal(t, "skill-ci", skill.ID)

	_, ok = c.Run("run-1")
	assert.True(t, ok)
	assert.Len(t, c.ScoresForSkill("skill-ci"), 1)
	assert.Empty(t, c.ScoresForSkill("skill-other"))
}

func TestLoadFailsClosedOnSchema(t *testing.T) {
	reader := validReader()
	reader.schemaErr = domain.SchemaUnavailable("database schema is incompatible; run migrations", errors.New("table skills is missing"))

	_, err := Load(context.Background(), reader)
	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.CodeSchemaUnavailable))
	assert.Zero(t, reader.listCalls, "no table is read once the schema probe fails")
}

func TestLoadRejectsInvalidCatalog(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *fakeReader)
		want   string
	}{
		{name: "no skills", mutate: func(r *fakeReader) { r.skills = nil }, want: "no skills"},
		{name: "no runs", mutate: func(r *fakeReader) { r.runs = nil }, want: "no benchmark runs"},
		{name: "no scores", mutate: func(r *fakeReader) { r.scores = nil }, want: "no benchmark scores"},
		{name: "duplicate run", mutate: func(r *fakeReader) { r.runs = append(r.runs, r.runs[0]) }, want: "more than once"},
		{name: "synthetic artifact path", mutate: func(r *fakeReader) { r.runs[0].ArtifactPath = "runs/mock/output" }, want: "synthetic marker"},
		{name: "percent-encoded artifact path", mutate: func(r *fakeReader) { r.runs[0].ArtifactPath = "runs/%6dock/out" }, want: "synthetic marker"},
		{name: "encoded marker beside invalid escape", mutate: func(r *fakeReader) { r.runs[0].ArtifactPath = "runs/mo%63k/out%zz" }, want: "synthetic marker"},
		{name: "synthetic notes", mutate: func(r *fakeReader) { r.runs[0].Notes = "seeded from a Fixture" }, want: "synthetic marker"},
		{name: "unknown task", mutate: func(r *fakeReader) { r.scores[0].TaskID = "" }, want: "unknown task"},
		{name: "unknown skill", mutate: func(r *fakeReader) { r.scores[0].SkillID = "skill-gone" }, want: "unknown skill"},
		{name: "unknown run", mutate: func(r *fakeReader) { r.scores[0].RunID = "run-gone" }, want: "unknown benchmark run"},
		{name: "missing createdAt", mutate: func(r *fakeReader) { r.scores[0].CreatedAt = " " }, want: "no createdAt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := validReader()
			tt.mutate(reader)

			c, err := Load(context.Background(), reader)
			require.Error(t, err)
			assert.Nil(t, c)
			assert.True(t, domain.HasCode(err, domain.CodeIntegrityViolation), "got %v", err)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
