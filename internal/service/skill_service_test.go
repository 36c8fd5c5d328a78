package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bcrosbie/skillbench/internal/auth"
	"github.com/bcrosbie/skillbench/internal/domain"
	"github.com/bcrosbie/skillbench/internal/orchestrate"
	"github.com/bcrosbie/skillbench/internal/recommend"
	"github.com/bcrosbie/skillbench/internal/store"
	"github.com/bcrosbie/skillbench/internal/trial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = strings.Repeat("s", auth.MinSecretLength)

func authorized(t *testing.T) context.Context {
	t.Helper()
	ctx, err := auth.New(testSecret).Authorize(context.Background(), testSecret)
	require.NoError(t, err)
	return ctx
}

func newTestStore(t *testing.T) *store.SQLStore {
	t.Helper()
	ctx := context.Background()
	s, err := store.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "skillbench.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.UpsertTask(ctx, domain.Task{
		ID: "task-ci", Slug: "ci-hardening", Name: "Harden CI pipeline",
		Description: "Lock down GitHub Actions workflows and secrets", Category: "security",
		Tags: []string{"ci", "github"},
	}))
	require.NoError(t, s.UpsertTask(ctx, domain.Task{
		ID: "task-db", Slug: "schema-migration", Name: "Run schema migration",
		Description: "Apply SQL migrations to postgres", Category: "database",
	}))
	skills := []domain.Skill{
		{
			ID: "skill-ci", Slug: "ci-security-hardening", Name: "CI security hardening",
			Summary:  "Harden GitHub Actions pipelines: pin actions, scope tokens, protect secrets",
			Keywords: []string{"ci", "security", "github", "actions", "secrets"},
			Agents:   []domain.AgentFamily{domain.AgentCodex, domain.AgentClaude},
		},
		{
			ID: "skill-sql", Slug: "sql-migration-operator", Name: "SQL migration operator",
			Summary:  "Plan and apply postgres schema migrations with rollback",
			Keywords: []string{"sql", "postgres", "migration", "schema"},
			Agents:   []domain.AgentFamily{domain.AgentCodex},
		},
	}
	for _, skill := range skills {
		skill.SecurityReview = domain.SecurityReview{Status: domain.ReviewApproved, Reviewer: "secops"}
		skill.CreatedAt = "2026-01-01T00:00:00Z"
		skill.UpdatedAt = "2026-01-01T00:00:00Z"
		require.NoError(t, s.UpsertSkill(ctx, skill))
	}
	for i, taskID := range []string{"task-ci", "task-db"} {
		require.NoError(t, s.UpsertBenchmarkCase(ctx, domain.BenchmarkCase{
			ID:                    "case-" + strings.TrimPrefix(taskID, "task-"),
			TaskID:                taskID,
			ContainerImage:        "ghcr.io/skillbench/bench@sha256:" + fmt.Sprintf("%064d", i+1),
			DefaultTimeoutSeconds: 600,
		}))
	}
	return s
}

func oracleTrial(caseID, skillID, agent string, passed int) trial.Input {
	return trial.Input{
		BenchmarkCaseID: caseID,
		RunID:           "run-nightly",
		SkillID:         skillID,
		Agent:           agent,
		Model:           "model-x",
		EvaluationMode:  "oracle_skill",
		Status:          "completed",
		ArtifactPath:    "s3://benchmarks/run-nightly/" + skillID,
		StartedAt:       "2026-03-01T10:00:00Z",
		CompletedAt:     "2026-03-01T10:01:00Z",
		Checks:          &trial.Checks{Passed: passed, Total: 4},
	}
}

func seededService(t *testing.T) (*SkillService, *store.SQLStore) {
	t.Helper()
	s := newTestStore(t)
	svc := NewSkillService(s, nil, true)
	ctx := authorized(t)
	for _, in := range []trial.Input{
		oracleTrial("case-ci", "skill-ci", "codex", 4),
		oracleTrial("case-ci", "skill-ci", "claude", 3),
		oracleTrial("case-db", "skill-sql", "codex", 4),
	} {
		_, err := svc.ExecuteTrial(ctx, in)
		require.NoError(t, err)
	}
	return svc, s
}

func TestHealth(t *testing.T) {
	svc := NewSkillService(newTestStore(t), nil, false)
	health, err := svc.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
	assert.False(t, health.ExecutionEnabled)
	assert.NotEmpty(t, health.TimeUTC)
}

func TestRecommendOverRecordedTrials(t *testing.T) {
	svc, _ := seededService(t)

	result, err := svc.Recommend(context.Background(), RecommendRequest{
		Task:  "harden github actions ci security and protect secrets",
		Agent: "Codex",
	})
	require.NoError(t, err)
	assert.Equal(t, "ci-security-hardening", result.Best.Slug)
	require.NotEmpty(t, result.Candidates)
	assert.LessOrEqual(t, len(result.Candidates), recommend.DefaultLimit)
}

func TestRecommendRejectsBadRequests(t *testing.T) {
	svc, _ := seededService(t)
	ctx := context.Background()

	_, err := svc.Recommend(ctx, RecommendRequest{Task: "harden ci", Agent: "copilot"})
	assert.True(t, domain.HasCode(err, domain.CodeInvalidArgument))

	_, err = svc.Recommend(ctx, RecommendRequest{Task: "harden github actions", Limit: -1})
	assert.True(t, domain.HasCode(err, domain.CodeInvalidArgument))
}

func TestRecommendFailsClosedOnEmptyCatalog(t *testing.T) {
	svc := NewSkillService(newTestStore(t), nil, false)
	_, err := svc.Recommend(context.Background(), RecommendRequest{Task: "harden github actions ci"})
	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.CodeIntegrityViolation))
}

func TestCatalogReads(t *testing.T) {
	svc, _ := seededService(t)
	ctx := context.Background()

	tasks, err := svc.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "ci-hardening", tasks[0].Slug)

	skills, err := svc.ListSkills(ctx)
	require.NoError(t, err)
	require.Len(t, skills, 2)
	assert.Equal(t, "ci-security-hardening", skills[0].Slug)
	assert.Equal(t, 2, skills[0].ScoreCount)
	assert.Nil(t, skills[0].Embedding)

	skill, err := svc.GetSkill(ctx, "sql-migration-operator")
	require.NoError(t, err)
	assert.Equal(t, 1, skill.ScoreCount)

	_, err = svc.GetSkill(ctx, "missing")
	assert.True(t, domain.HasCode(err, domain.CodeNotFound))

	runs, err := svc.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.StatusCompleted, runs[0].Status)
}

func TestSkillScoresGroupsByAgentAndTask(t *testing.T) {
	svc, _ := seededService(t)

	scores, err := svc.SkillScores(context.Background(), "ci-security-hardening")
	require.NoError(t, err)
	assert.Equal(t, 2, scores.Count)
	require.Contains(t, scores.ByAgent, "codex")
	require.Contains(t, scores.ByAgent, "claude")
	assert.Equal(t, 1, scores.ByAgent["codex"].Count)
	assert.Greater(t, scores.ByAgent["codex"].AverageOverallScore, scores.ByAgent["claude"].AverageOverallScore)
	require.Contains(t, scores.ByTask, "ci-hardening")
	assert.Equal(t, 2, scores.ByTask["ci-hardening"].Count)
}

func TestExecuteTrialRequiresAuthorization(t *testing.T) {
	svc := NewSkillService(newTestStore(t), nil, true)

	_, err := svc.ExecuteTrial(context.Background(), oracleTrial("case-ci", "skill-ci", "codex", 4))
	assert.True(t, domain.HasCode(err, domain.CodeForbidden))

	denied, err := auth.New(testSecret).Authorize(context.Background(), "wrong")
	require.Error(t, err)
	_, err = svc.ExecuteTrial(denied, oracleTrial("case-ci", "skill-ci", "codex", 4))
	assert.True(t, domain.HasCode(err, domain.CodeForbidden))

	unconfigured, _ := auth.New("short").Authorize(context.Background(), "short")
	_, err = svc.ExecuteTrial(unconfigured, oracleTrial("case-ci", "skill-ci", "codex", 4))
	assert.True(t, domain.HasCode(err, domain.CodeExecutionNotConfigured))
}

func TestExecuteTrialThenGetTrial(t *testing.T) {
	svc := NewSkillService(newTestStore(t), nil, true)
	ctx := authorized(t)

	result, err := svc.ExecuteTrial(ctx, oracleTrial("case-ci", "skill-ci", "codex", 4))
	require.NoError(t, err)

	detail, err := svc.GetTrial(context.Background(), result.Detail.Trial.ID)
	require.NoError(t, err)
	assert.Equal(t, result.Detail.Trial.ID, detail.Trial.ID)
	assert.Equal(t, 100.0, detail.Score.DeterministicScore)

	_, err = svc.GetTrial(context.Background(), " ")
	assert.True(t, domain.HasCode(err, domain.CodeInvalidArgument))
}

type stubOrchestrator struct {
	called bool
}

func (o *stubOrchestrator) Orchestrate(context.Context, orchestrate.Request) (orchestrate.Result, error) {
	o.called = true
	return orchestrate.Result{RunID: "run-1", RunStatus: domain.StatusCompleted}, nil
}

func TestOrchestrate(t *testing.T) {
	s := newTestStore(t)

	_, err := NewSkillService(s, nil, true).Orchestrate(authorized(t), orchestrate.Request{})
	assert.True(t, domain.HasCode(err, domain.CodeExecutionNotConfigured))

	stub := &stubOrchestrator{}
	svc := NewSkillService(s, stub, true)
	_, err = svc.Orchestrate(context.Background(), orchestrate.Request{})
	assert.True(t, domain.HasCode(err, domain.CodeForbidden))
	assert.False(t, stub.called)

	result, err := svc.Orchestrate(authorized(t), orchestrate.Request{})
	require.NoError(t, err)
	assert.True(t, stub.called)
	assert.Equal(t, "run-1", result.RunID)
}
