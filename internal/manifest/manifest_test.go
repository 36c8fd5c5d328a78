package manifest

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bcrosbie/skillbench/internal/domain"
	"github.com/bcrosbie/skillbench/internal/recommend"
	"github.com/bcrosbie/skillbench/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var digest = strings.Repeat("cd", 32)

var sample = `
tasks:
  - id: task-ci
    slug: ci-hardening
    name: Harden CI pipeline
    description: Lock down GitHub Actions workflows
    category: security
    tags: [ci, github]
skills:
  - id: skill-ci
    slug: ci-security-hardening
    name: CI security hardening
    summary: Pin actions and scope tokens
    keywords: [ci, security]
    agents: [Codex, claude]
    source_url: https://github.com/example/ci-security-hardening
    provenance:
      author: platform-team
      license: MIT
    security_review:
      status: approved
      reviewer: secops
benchmark_cases:
  - id: case-ci
    task_id: task-ci
    container_image: ghcr.io/skillbench/ci-hardening@sha256:` + digest + `
    default_timeout_seconds: 10
`

var importedAt = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

func TestBuild(t *testing.T) {
	m, err := Parse([]byte(sample))
	require.NoError(t, err)

	tasks, skills, cases, err := m.Build(importedAt)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Len(t, skills, 1)
	require.Len(t, cases, 1)

	skill := skills[0]
	assert.Equal(t, []domain.AgentFamily{domain.AgentCodex, domain.AgentClaude}, skill.Agents)
	assert.Equal(t, domain.ReviewApproved, skill.SecurityReview.Status)
	assert.Equal(t, "2026-04-01T08:00:00Z", skill.CreatedAt)
	assert.Equal(t, []float64(recommend.SkillEmbedding(skill)), skill.Embedding)
	assert.Equal(t, 30, cases[0].DefaultTimeoutSeconds, "timeouts are clamped to the minimum")
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("tasks: []\nplugins: []\n"))
	assert.True(t, domain.HasCode(err, domain.CodeInvalidArgument))
}

func TestBuildRejectsInvalidRows(t *testing.T) {
	tests := []struct {
		name string
		edit func(string) string
		code domain.ErrorCode
	}{
		{name: "tagged image", edit: func(s string) string {
			return strings.Replace(s, "@sha256:"+digest, ":latest", 1)
		}, code: domain.CodeInvalidContainerContract},
		{name: "unknown task", edit: func(s string) string {
			return strings.Replace(s, "task_id: task-ci", "task_id: task-missing", 1)
		}, code: domain.CodeInvalidArgument},
		{name: "unknown agent", edit: func(s string) string {
			return strings.Replace(s, "[Codex, claude]", "[copilot]", 1)
		}, code: domain.CodeInvalidArgument},
		{name: "unknown review status", edit: func(s string) string {
			return strings.Replace(s, "status: approved", "status: maybe", 1)
		}, code: domain.CodeInvalidArgument},
		{name: "synthetic source", edit: func(s string) string {
			return strings.Replace(s, "https://github.com/example/", "https://example.com/mock/", 1)
		}, code: domain.CodeIntegrityViolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Parse([]byte(tt.edit(sample)))
			require.NoError(t, err)
			_, _, _, err = m.Build(importedAt)
			assert.True(t, domain.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestImportIntoStore(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "skillbench.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	m, err := Parse([]byte(sample))
	require.NoError(t, err)

	summary, err := Import(ctx, s, m, importedAt)
	require.NoError(t, err)
	assert.Equal(t, Summary{Tasks: 1, Skills: 1, BenchmarkCases: 1}, summary)

	_, err = Import(ctx, s, m, importedAt.Add(time.Hour))
	require.NoError(t, err, "re-import upserts")

	skills, err := s.ListSkills(ctx)
	require.NoError(t, err)
	require.Len(t, skills, 1)
	assert.Len(t, skills[0].Embedding, 96)

	benchmarkCase, err := s.GetBenchmarkCase(ctx, "case-ci")
	require.NoError(t, err)
	assert.Equal(t, "task-ci", benchmarkCase.TaskID)
}
