// Package trial validates raw trial results, scores them from their telemetry
// and persists them atomically.
package trial

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bcrosbie/skillbench/internal/domain"
	"github.com/bcrosbie/skillbench/internal/integrity"
	"github.com/pkg/errors"
)

const (
	MaxRunIDLength        = 190
	MaxModelLength        = 190
	MaxArtifactPathLength = 1024
	MaxNotesLength        = 2000
	MaxEvents             = 200
	MaxCommandLength      = 1000
	MaxPayloadBytes       = 16 * 1024
)

var runIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]+$`)

// Checks are the verification results a trial reports.
type Checks struct {
	Passed int `json:"passed"`
	Total  int `json:"total"`
}

// EventInput is one raw event as reported by a caller or the executor.
type EventInput struct {
	Type       string          `json:"type"`
	Command    string          `json:"command,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Blocked    bool            `json:"blocked,omitempty"`
	ExitCode   *int            `json:"exitCode,omitempty"`
	DurationMS int64           `json:"durationMs,omitempty"`
}

// Input is an unvalidated trial result.
type Input struct {
	BenchmarkCaseID string       `json:"benchmarkCaseId"`
	RunID           string       `json:"runId"`
	SkillID         string       `json:"skillId,omitempty"`
	Agent           string       `json:"agent"`
	Model           string       `json:"model"`
	Seed            int64        `json:"seed"`
	EvaluationMode  string       `json:"evaluationMode"`
	Status          string       `json:"status,omitempty"`
	ArtifactPath    string       `json:"artifactPath,omitempty"`
	Notes           string       `json:"notes,omitempty"`
	StartedAt       string       `json:"startedAt,omitempty"`
	CompletedAt     string       `json:"completedAt,omitempty"`
	Events          []EventInput `json:"events,omitempty"`
	Checks          *Checks      `json:"checks,omitempty"`
}

// Event is a validated event. Blocked is already forced for destructive
// commands.
type Event struct {
	Sequence   int
	Type       string
	Command    string
	Payload    string
	Blocked    bool
	ExitCode   *int
	DurationMS int64
}

// ExecutionContext is a validated trial ready for scoring and persistence.
type ExecutionContext struct {
	BenchmarkCaseID string
	RunID           string
	SkillID         string
	Agent           domain.AgentFamily
	Model           string
	Seed            int64
	Mode            domain.EvaluationMode
	Status          string
	ArtifactPath    string
	Notes           string
	StartedAt       time.Time
	CompletedAt     time.Time
	Events          []Event
	Checks          *Checks
}

// Normalize validates in and returns the execution context derived from it.
// Nothing is persisted; every failure is an invalid_argument error.
func Normalize(in Input) (ExecutionContext, error) {
	ec := ExecutionContext{
		BenchmarkCaseID: strings.TrimSpace(in.BenchmarkCaseID),
		RunID:           strings.TrimSpace(in.RunID),
		SkillID:         strings.TrimSpace(in.SkillID),
		Model:           strings.TrimSpace(in.Model),
		Seed:            in.Seed,
		ArtifactPath:    strings.TrimSpace(in.ArtifactPath),
		Notes:           strings.TrimSpace(in.Notes),
	}

	if ec.BenchmarkCaseID == "" {
		return ExecutionContext{}, domain.InvalidArgument("benchmarkCaseId is required")
	}

	mode, ok := domain.ParseEvaluationMode(strings.TrimSpace(in.EvaluationMode))
	if !ok {
		return ExecutionContext{}, domain.InvalidArgumentf("evaluationMode must be one of baseline, oracle_skill, library_selection (got %q)", in.EvaluationMode)
	}
	ec.Mode = mode
	if mode == domain.ModeOracleSkill && ec.SkillID == "" {
		return ExecutionContext{}, domain.InvalidArgument("skillId is required for oracle_skill trials")
	}

	agent, ok := domain.ParseAgentFamily(strings.TrimSpace(in.Agent))
	if !ok {
		return ExecutionContext{}, domain.InvalidArgumentf("agent must be one of codex, claude, gemini (got %q)", in.Agent)
	}
	ec.Agent = agent

	if err := ValidateRunID(ec.RunID); err != nil {
		return ExecutionContext{}, err
	}

	if ec.Model == "" {
		return ExecutionContext{}, domain.InvalidArgument("model is required")
	}
	if utf8.RuneCountInString(ec.Model) > MaxModelLength {
		return ExecutionContext{}, domain.InvalidArgumentf("model must be at most %d characters", MaxModelLength)
	}
	if ec.Seed < 0 {
		return ExecutionContext{}, domain.InvalidArgument("seed must be non-negative")
	}

	if utf8.RuneCountInString(ec.ArtifactPath) > MaxArtifactPathLength {
		return ExecutionContext{}, domain.InvalidArgumentf("artifactPath must be at most %d characters", MaxArtifactPathLength)
	}
	if utf8.RuneCountInString(ec.Notes) > MaxNotesLength {
		return ExecutionContext{}, domain.InvalidArgumentf("notes must be at most %d characters", MaxNotesLength)
	}
	if marker, found := integrity.FindSyntheticMarker(ec.ArtifactPath); found {
		return ExecutionContext{}, domain.InvalidArgumentf("artifactPath carries synthetic marker %q", marker)
	}
	if marker, found := integrity.FindSyntheticMarker(ec.Notes); found {
		return ExecutionContext{}, domain.InvalidArgumentf("notes carry synthetic marker %q", marker)
	}

	status, err := normalizeStatus(in.Status)
	if err != nil {
		return ExecutionContext{}, err
	}
	ec.Status = status

	if ec.StartedAt, err = parseOptionalTime("startedAt", in.StartedAt); err != nil {
		return ExecutionContext{}, err
	}
	if ec.CompletedAt, err = parseOptionalTime("completedAt", in.CompletedAt); err != nil {
		return ExecutionContext{}, err
	}
	if !ec.StartedAt.IsZero() && !ec.CompletedAt.IsZero() && ec.CompletedAt.Before(ec.StartedAt) {
		return ExecutionContext{}, domain.InvalidArgument("completedAt must not precede startedAt")
	}

	if in.Checks != nil {
		if in.Checks.Total < 0 || in.Checks.Passed < 0 || in.Checks.Passed > in.Checks.Total {
			return ExecutionContext{}, domain.InvalidArgumentf("checks must satisfy 0 <= passed <= total (got %d/%d)", in.Checks.Passed, in.Checks.Total)
		}
		checks := *in.Checks
		ec.Checks = &checks
	}

	if len(in.Events) > MaxEvents {
		return ExecutionContext{}, domain.InvalidArgumentf("at most %d events are accepted (got %d)", MaxEvents, len(in.Events))
	}
	ec.Events = make([]Event, 0, len(in.Events))
	for i, raw := range in.Events {
		event, err := normalizeEvent(i, raw)
		if err != nil {
			return ExecutionContext{}, err
		}
		ec.Events = append(ec.Events, event)
	}
	return ec, nil
}

// ValidateRunID checks the run id format shared by trials and orchestrations.
func ValidateRunID(runID string) error {
	if runID == "" {
		return domain.InvalidArgument("runId is required")
	}
	if len(runID) > MaxRunIDLength {
		return domain.InvalidArgumentf("runId must be at most %d characters", MaxRunIDLength)
	}
	if !runIDPattern.MatchString(runID) {
		return domain.InvalidArgumentf("runId %q may only contain letters, digits and . _ : -", runID)
	}
	return nil
}

func normalizeStatus(raw string) (string, error) {
	status := strings.ToLower(strings.TrimSpace(raw))
	switch status {
	case "":
		return domain.StatusCompleted, nil
	case domain.StatusPending, domain.StatusRunning, domain.StatusCompleted, domain.StatusFailed:
		return status, nil
	}
	return "", domain.InvalidArgumentf("status must be one of pending, running, completed, failed (got %q)", raw)
}

func parseOptionalTime(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, domain.InvalidArgumentf("%s must be an RFC 3339 timestamp (got %q)", field, raw)
	}
	return parsed.UTC(), nil
}

func normalizeEvent(index int, raw EventInput) (Event, error) {
	eventType := strings.ToLower(strings.TrimSpace(raw.Type))
	switch eventType {
	case domain.EventCommand, domain.EventToolCall, domain.EventSafety, domain.EventStatus:
	default:
		return Event{}, domain.InvalidArgumentf("event %d: type must be one of command, tool_call, safety, status (got %q)", index, raw.Type)
	}

	command := strings.TrimSpace(raw.Command)
	if utf8.RuneCountInString(command) > MaxCommandLength {
		return Event{}, domain.InvalidArgumentf("event %d: command must be at most %d characters", index, MaxCommandLength)
	}
	if raw.DurationMS < 0 {
		return Event{}, domain.InvalidArgumentf("event %d: durationMs must be non-negative", index)
	}

	payload, err := normalizePayload(raw.Payload)
	if err != nil {
		return Event{}, domain.InvalidArgumentf("event %d: %s", index, err.Error())
	}

	var exitCode *int
	if raw.ExitCode != nil {
		code := *raw.ExitCode
		exitCode = &code
	}

	return Event{
		Sequence:   index,
		Type:       eventType,
		Command:    command,
		Payload:    payload,
		Blocked:    raw.Blocked || IsDestructiveCommand(command),
		ExitCode:   exitCode,
		DurationMS: raw.DurationMS,
	}, nil
}

func normalizePayload(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "{}", nil
	}
	if len(trimmed) > MaxPayloadBytes {
		return "", errors.Errorf("payload must be at most %d bytes", MaxPayloadBytes)
	}
	var compacted bytes.Buffer
	if err := json.Compact(&compacted, trimmed); err != nil {
		return "", errors.New("payload must be valid JSON")
	}
	return compacted.String(), nil
}
