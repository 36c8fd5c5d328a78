package orchestrate

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bcrosbie/skillbench/internal/domain"
	"github.com/bcrosbie/skillbench/internal/executor"
	"github.com/bcrosbie/skillbench/internal/store"
	"github.com/bcrosbie/skillbench/internal/trial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pinnedImage = "ghcr.io/skillbench/ci-hardening@sha256:" + strings.Repeat("ab", 32)

type fakeExecutor struct {
	mu      sync.Mutex
	calls   []executor.Payload
	replies map[domain.EvaluationMode]executor.Result
	errs    map[domain.EvaluationMode]error
	block   map[domain.EvaluationMode]bool
}

func (f *fakeExecutor) Execute(ctx context.Context, payload executor.Payload) (executor.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, payload)
	f.mu.Unlock()

	if f.block[payload.EvaluationMode] {
		<-ctx.Done()
		if ctx.Err() == context.DeadlineExceeded {
			return executor.Result{}, domain.OrchestrationTimeout("executor call exceeded its deadline", ctx.Err())
		}
		return executor.Result{}, ctx.Err()
	}
	if err := f.errs[payload.EvaluationMode]; err != nil {
		return executor.Result{}, err
	}
	return f.replies[payload.EvaluationMode], nil
}

func intPtr(v int) *int {
	return &v
}

func completedReply(passed, total int) executor.Result {
	return executor.Result{
		Status:       domain.StatusCompleted,
		ArtifactPath: "s3://benchmarks/run-7/artifacts",
		Events: []trial.EventInput{
			{Type: "command", Command: "go test ./...", ExitCode: intPtr(0), DurationMS: 2000},
		},
		Checks: &trial.Checks{Passed: passed, Total: total},
	}
}

func newTestStore(t *testing.T, image string) *store.SQLStore {
	t.Helper()
	ctx := context.Background()
	s, err := store.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "skillbench.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.UpsertTask(ctx, domain.Task{ID: "task-ci", Slug: "ci-hardening", Name: "Harden CI"}))
	for _, id := range []string{"skill-ci", "skill-lib"} {
		require.NoError(t, s.UpsertSkill(ctx, domain.Skill{
			ID:             id,
			Slug:           id,
			Name:           id,
			SecurityReview: domain.SecurityReview{Status: domain.ReviewApproved},
			CreatedAt:      "2026-01-01T00:00:00Z",
			UpdatedAt:      "2026-01-01T00:00:00Z",
		}))
	}
	require.NoError(t, s.UpsertBenchmarkCase(ctx, domain.BenchmarkCase{
		ID:                    "case-ci",
		TaskID:                "task-ci",
		ContainerImage:        image,
		DefaultTimeoutSeconds: 900,
	}))
	return s
}

func newCoordinator(s store.TrialStore, exec Executor) *Coordinator {
	next := 0
	return New(s, exec,
		WithClock(func() time.Time { return time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC) }),
		WithIDGenerator(func() string {
			next++
			return fmt.Sprintf("id-%03d", next)
		}),
	)
}

func baseRequest(modes ...string) Request {
	return Request{
		BenchmarkCaseID: "case-ci",
		OracleSkillID:   "skill-ci",
		Agent:           "codex",
		Model:           "gpt-5-codex",
		Seed:            11,
		RunID:           "run-7",
		Modes:           modes,
	}
}

func TestOrchestrateRecordsAllModesAndComparison(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, pinnedImage)
	libraryReply := completedReply(3, 4)
	libraryReply.SkillID = "skill-lib"
	exec := &fakeExecutor{replies: map[domain.EvaluationMode]executor.Result{
		domain.ModeBaseline:         completedReply(1, 4),
		domain.ModeOracleSkill:      completedReply(4, 4),
		domain.ModeLibrarySelection: libraryReply,
	}}

	result, err := newCoordinator(s, exec).Orchestrate(ctx, baseRequest("baseline", "oracle_skill", "library_selection"))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, result.RunStatus)
	assert.Equal(t, 900, result.TimeoutSeconds)
	require.Len(t, result.Trials, 3)
	require.Len(t, exec.calls, 3)
	assert.Equal(t, domain.ModeBaseline, exec.calls[0].EvaluationMode)
	assert.Empty(t, exec.calls[0].SkillID)
	assert.Equal(t, "skill-ci", exec.calls[1].SkillID)
	assert.Equal(t, pinnedImage, exec.calls[1].ContainerImage)

	oracle := result.Comparison.Modes[domain.ModeOracleSkill]
	baseline := result.Comparison.Modes[domain.ModeBaseline]
	library := result.Comparison.Modes[domain.ModeLibrarySelection]
	assert.Equal(t, "skill-ci", oracle.SkillID)
	assert.Equal(t, "skill-lib", library.SkillID)
	assert.Empty(t, baseline.SkillID)

	delta := result.Comparison.Deltas[domain.ModeOracleSkill]
	assert.InDelta(t, oracle.OverallScore-baseline.OverallScore, delta.OverallScoreDelta, 0.01)
	assert.InDelta(t, 75.0, delta.DeterministicDelta, 1e-9)
	assert.InDelta(t, 0.75, delta.SuccessRateDelta, 1e-9)
	assert.Contains(t, result.Comparison.Deltas, domain.ModeLibrarySelection)

	for _, recorded := range result.Trials {
		detail, err := s.GetTrialDetail(ctx, recorded.Detail.Trial.ID)
		require.NoError(t, err)
		assert.Equal(t, recorded.Detail.Score, detail.Score)
	}
	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.StatusCompleted, runs[0].Status)
	assert.NotEmpty(t, runs[0].CompletedAt)
}

func TestOrchestrateTimeoutPersistsNothing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, pinnedImage)
	exec := &fakeExecutor{
		replies: map[domain.EvaluationMode]executor.Result{domain.ModeBaseline: completedReply(2, 2)},
		errs: map[domain.EvaluationMode]error{
			domain.ModeOracleSkill: domain.OrchestrationTimeout("executor call exceeded its deadline", context.DeadlineExceeded),
		},
	}

	_, err := newCoordinator(s, exec).Orchestrate(ctx, baseRequest("baseline", "oracle_skill"))
	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.CodeOrchestrationTimeout))
	assert.Contains(t, err.Error(), "oracle_skill")

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)
	scores, err := s.ListScores(ctx)
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestOrchestrateCancellationAbortsPendingModes(t *testing.T) {
	s := newTestStore(t, pinnedImage)
	exec := &fakeExecutor{block: map[domain.EvaluationMode]bool{domain.ModeBaseline: true}}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := newCoordinator(s, exec).Orchestrate(ctx, baseRequest("baseline", "oracle_skill"))
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, exec.calls, 1, "modes after the cancelled one never reach the executor")

	runs, err := s.ListRuns(context.Background())
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestOrchestrateNonTerminalStatusIsUpstreamError(t *testing.T) {
	s := newTestStore(t, pinnedImage)
	running := completedReply(1, 1)
	running.Status = domain.StatusRunning
	exec := &fakeExecutor{replies: map[domain.EvaluationMode]executor.Result{
		domain.ModeBaseline:    completedReply(1, 1),
		domain.ModeOracleSkill: running,
	}}

	_, err := newCoordinator(s, exec).Orchestrate(context.Background(), baseRequest("baseline", "oracle_skill"))
	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.CodeUpstream))
	assert.Contains(t, err.Error(), "oracle_skill")
}

func TestOrchestratePersistenceFailureRollsBackEveryMode(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, pinnedImage)
	libraryReply := completedReply(1, 1)
	libraryReply.SkillID = "skill-that-does-not-exist"
	exec := &fakeExecutor{replies: map[domain.EvaluationMode]executor.Result{
		domain.ModeBaseline:         completedReply(1, 1),
		domain.ModeLibrarySelection: libraryReply,
	}}

	_, err := newCoordinator(s, exec).Orchestrate(ctx, baseRequest("baseline", "library_selection"))
	require.Error(t, err)

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestOrchestrateFailedModeFailsRun(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, pinnedImage)
	failed := completedReply(0, 3)
	failed.Status = domain.StatusFailed
	exec := &fakeExecutor{replies: map[domain.EvaluationMode]executor.Result{
		domain.ModeBaseline:    failed,
		domain.ModeOracleSkill: completedReply(3, 3),
	}}

	result, err := newCoordinator(s, exec).Orchestrate(ctx, baseRequest("baseline", "oracle_skill"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, result.RunStatus)
	assert.Empty(t, result.Comparison.Deltas, "deltas need a completed baseline")
}

func TestOrchestrateRejectsUnpinnedImage(t *testing.T) {
	s := newTestStore(t, "ghcr.io/skillbench/ci-hardening:latest")
	exec := &fakeExecutor{}

	_, err := newCoordinator(s, exec).Orchestrate(context.Background(), baseRequest("baseline"))
	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.CodeInvalidContainerContract))
	assert.Empty(t, exec.calls)
}

func TestOrchestrateValidatesRequest(t *testing.T) {
	s := newTestStore(t, pinnedImage)
	exec := &fakeExecutor{}

	tests := []struct {
		name   string
		mutate func(r *Request)
	}{
		{name: "no modes", mutate: func(r *Request) { r.Modes = nil }},
		{name: "unknown mode", mutate: func(r *Request) { r.Modes = []string{"baseline", "zero_shot"} }},
		{name: "duplicate mode", mutate: func(r *Request) { r.Modes = []string{"baseline", "baseline"} }},
		{name: "oracle without skill", mutate: func(r *Request) { r.OracleSkillID = "" }},
		{name: "bad agent", mutate: func(r *Request) { r.Agent = "multi" }},
		{name: "bad run id", mutate: func(r *Request) { r.RunID = "run 7" }},
		{name: "missing model", mutate: func(r *Request) { r.Model = "" }},
		{name: "negative seed", mutate: func(r *Request) { r.Seed = -2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest("baseline", "oracle_skill")
			tt.mutate(&req)
			_, err := newCoordinator(s, exec).Orchestrate(context.Background(), req)
			require.Error(t, err)
			assert.True(t, domain.HasCode(err, domain.CodeInvalidArgument), "got %v", err)
		})
	}
	assert.Empty(t, exec.calls)
}

func TestOrchestrateWithoutExecutor(t *testing.T) {
	s := newTestStore(t, pinnedImage)
	_, err := New(s, nil).Orchestrate(context.Background(), baseRequest("baseline"))
	assert.True(t, domain.HasCode(err, domain.CodeExecutionNotConfigured))
}
