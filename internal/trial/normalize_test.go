package trial

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/bcrosbie/skillbench/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int {
	return &v
}

func validInput() Input {
	return Input{
		BenchmarkCaseID: "case-ci",
		RunID:           "run-2026.03.01:nightly",
		SkillID:         "skill-ci",
		Agent:           "codex",
		Model:           "gpt-5-codex",
		Seed:            7,
		EvaluationMode:  "oracle_skill",
		ArtifactPath:    "s3://benchmarks/run-1/trial.tar.gz",
		Notes:           "nightly benchmark",
		StartedAt:       "2026-03-01T10:00:00Z",
		CompletedAt:     "2026-03-01T10:02:00Z",
		Events: []EventInput{
			{Type: "command", Command: "go test ./...", ExitCode: intPtr(0), DurationMS: 4000},
			{Type: "tool_call", Payload: json.RawMessage(`{ "tool" : "read_file" }`)},
		},
	}
}

func TestNormalizeValidInput(t *testing.T) {
	ec, err := Normalize(validInput())
	require.NoError(t, err)

	assert.Equal(t, domain.ModeOracleSkill, ec.Mode)
	assert.Equal(t, domain.AgentCodex, ec.Agent)
	assert.Equal(t, domain.StatusCompleted, ec.Status)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), ec.StartedAt)
	require.Len(t, ec.Events, 2)
	assert.Equal(t, 0, ec.Events[0].Sequence)
	assert.Equal(t, 1, ec.Events[1].Sequence)
	assert.Equal(t, "{}", ec.Events[0].Payload)
	assert.Equal(t, `{"tool":"read_file"}`, ec.Events[1].Payload)
	assert.False(t, ec.Events[0].Blocked)
}

func TestNormalizeRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *Input)
	}{
		{name: "missing benchmark case", mutate: func(in *Input) { in.BenchmarkCaseID = " " }},
		{name: "unknown mode", mutate: func(in *Input) { in.EvaluationMode = "zero_shot" }},
		{name: "oracle without skill", mutate: func(in *Input) { in.SkillID = "" }},
		{name: "unknown agent", mutate: func(in *Input) { in.Agent = "copilot" }},
		{name: "any is not an agent", mutate: func(in *Input) { in.Agent = "any" }},
		{name: "missing run id", mutate: func(in *Input) { in.RunID = "" }},
		{name: "run id with slash", mutate: func(in *Input) { in.RunID = "run/1" }},
		{name: "run id too long", mutate: func(in *Input) { in.RunID = strings.Repeat("r", MaxRunIDLength+1) }},
		{name: "missing model", mutate: func(in *Input) { in.Model = "" }},
		{name: "negative seed", mutate: func(in *Input) { in.Seed = -1 }},
		{name: "artifact path too long", mutate: func(in *Input) { in.ArtifactPath = strings.Repeat("a", MaxArtifactPathLength+1) }},
		{name: "notes too long", mutate: func(in *Input) { in.Notes = strings.Repeat("n", MaxNotesLength+1) }},
		{name: "synthetic artifact path", mutate: func(in *Input) { in.ArtifactPath = "artifacts/mock/run.tar" }},
		{name: "encoded synthetic notes", mutate: func(in *Input) { in.Notes = "from %66ixture set" }},
		{name: "unknown status", mutate: func(in *Input) { in.Status = "done" }},
		{name: "bad timestamp", mutate: func(in *Input) { in.StartedAt = "yesterday" }},
		{name: "completed before started", mutate: func(in *Input) { in.CompletedAt = "2026-03-01T09:00:00Z" }},
		{name: "checks passed above total", mutate: func(in *Input) { in.Checks = &Checks{Passed: 3, Total: 2} }},
		{name: "too many events", mutate: func(in *Input) { in.Events = make([]EventInput, MaxEvents+1) }},
		{name: "unknown event type", mutate: func(in *Input) { in.Events[0].Type = "shell" }},
		{name: "command too long", mutate: func(in *Input) { in.Events[0].Command = strings.Repeat("x", MaxCommandLength+1) }},
		{name: "invalid payload", mutate: func(in *Input) { in.Events[1].Payload = json.RawMessage(`{"tool":`) }},
		{name: "oversized payload", mutate: func(in *Input) {
			in.Events[1].Payload = json.RawMessage(`"` + strings.Repeat("p", MaxPayloadBytes) + `"`)
		}},
		{name: "negative duration", mutate: func(in *Input) { in.Events[0].DurationMS = -5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			_, err := Normalize(in)
			require.Error(t, err)
			assert.True(t, domain.HasCode(err, domain.CodeInvalidArgument), "got %v", err)
		})
	}
}

func TestNormalizeForcesBlockedOnDestructiveCommand(t *testing.T) {
	in := validInput()
	in.Events = []EventInput{
		{Type: "command", Command: "rm -rf /", Blocked: false, ExitCode: intPtr(0)},
		{Type: "command", Command: "ls", Blocked: true},
	}

	ec, err := Normalize(in)
	require.NoError(t, err)
	assert.True(t, ec.Events[0].Blocked)
	assert.True(t, ec.Events[1].Blocked, "a caller-reported block is kept")
}

func TestNormalizeBaselineNeedsNoSkill(t *testing.T) {
	in := validInput()
	in.EvaluationMode = "baseline"
	in.SkillID = ""
	in.Status = "FAILED"

	ec, err := Normalize(in)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeBaseline, ec.Mode)
	assert.Equal(t, domain.StatusFailed, ec.Status)
}
