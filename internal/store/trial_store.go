package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bcrosbie/skillbench/internal/domain"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type trialRow struct {
	ID              string         `db:"id"`
	BenchmarkCaseID string         `db:"benchmark_case_id"`
	RunID           string         `db:"run_id"`
	SkillID         sql.NullString `db:"skill_id"`
	Agent           string         `db:"agent"`
	Model           string         `db:"model"`
	Seed            int64          `db:"seed"`
	EvaluationMode  string         `db:"evaluation_mode"`
	Status          string         `db:"status"`
	ArtifactPath    string         `db:"artifact_path"`
	Notes           string         `db:"notes"`
	StartedAt       string         `db:"started_at"`
	CompletedAt     sql.NullString `db:"completed_at"`
}

type eventRow struct {
	ID         string        `db:"id"`
	TrialID    string        `db:"trial_id"`
	Sequence   int           `db:"sequence"`
	EventType  string        `db:"event_type"`
	Payload    string        `db:"payload_json"`
	Command    string        `db:"command"`
	Blocked    bool          `db:"blocked"`
	ExitCode   sql.NullInt64 `db:"exit_code"`
	DurationMS int64         `db:"duration_ms"`
}

type trialScoreRow struct {
	TrialID            string  `db:"trial_id"`
	OverallScore       float64 `db:"overall_score"`
	QualityScore       float64 `db:"quality_score"`
	SecurityScore      float64 `db:"security_score"`
	SpeedScore         float64 `db:"speed_score"`
	CostScore          float64 `db:"cost_score"`
	SuccessRate        float64 `db:"success_rate"`
	DeterministicScore float64 `db:"deterministic_score"`
	SafetyScore        float64 `db:"safety_score"`
	EfficiencyScore    float64 `db:"efficiency_score"`
	CreatedAt          string  `db:"created_at"`
}

func (s *SQLStore) GetTrialDetail(ctx context.Context, id string) (domain.TrialDetail, error) {
	var trial trialRow
	err := s.db.GetContext(ctx, &trial, s.db.Rebind(`
		SELECT id, benchmark_case_id, run_id, skill_id, agent, model, seed, evaluation_mode,
		       status, artifact_path, notes, started_at, completed_at
		FROM trials
		WHERE id = ?
	`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.TrialDetail{}, domain.NotFound(fmt.Sprintf("trial %q not found", id))
		}
		return domain.TrialDetail{}, domain.Internal("failed to read trial", err)
	}

	events := []eventRow{}
	if err := s.db.SelectContext(ctx, &events, s.db.Rebind(`
		SELECT id, trial_id, sequence, event_type, payload_json, command, blocked, exit_code, duration_ms
		FROM trial_events
		WHERE trial_id = ?
		ORDER BY sequence ASC
	`), id); err != nil {
		return domain.TrialDetail{}, domain.Internal("failed to list trial events", err)
	}

	var score trialScoreRow
	if err := s.db.GetContext(ctx, &score, s.db.Rebind(`
		SELECT trial_id, overall_score, quality_score, security_score, speed_score, cost_score,
		       success_rate, deterministic_score, safety_score, efficiency_score, created_at
		FROM trial_scores
		WHERE trial_id = ?
	`), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.TrialDetail{}, domain.IntegrityViolationf("trial %s has no score row", id)
		}
		return domain.TrialDetail{}, domain.Internal("failed to read trial score", err)
	}

	detail := domain.TrialDetail{
		Trial: domain.Trial{
			ID:              trial.ID,
			BenchmarkCaseID: trial.BenchmarkCaseID,
			RunID:           trial.RunID,
			SkillID:         trial.SkillID.String,
			Agent:           domain.AgentFamily(trial.Agent),
			Model:           trial.Model,
			Seed:            trial.Seed,
			EvaluationMode:  domain.EvaluationMode(trial.EvaluationMode),
			Status:          trial.Status,
			ArtifactPath:    trial.ArtifactPath,
			Notes:           trial.Notes,
			StartedAt:       trial.StartedAt,
			CompletedAt:     trial.CompletedAt.String,
		},
		Events: make([]domain.TrialEvent, 0, len(events)),
		Score:  domain.TrialScore(score),
	}
	for _, event := range events {
		item := domain.TrialEvent{
			ID:         event.ID,
			TrialID:    event.TrialID,
			Sequence:   event.Sequence,
			Type:       event.EventType,
			Payload:    event.Payload,
			Command:    event.Command,
			Blocked:    event.Blocked,
			DurationMS: event.DurationMS,
		}
		if event.ExitCode.Valid {
			code := int(event.ExitCode.Int64)
			item.ExitCode = &code
		}
		detail.Events = append(detail.Events, item)
	}
	return detail, nil
}

// txWriter implements TrialWriter on top of one open transaction.
type txWriter struct {
	tx *sqlx.Tx
}

func (w *txWriter) GetRun(ctx context.Context, id string) (domain.BenchmarkRun, bool, error) {
	var row runRow
	err := w.tx.GetContext(ctx, &row, w.tx.Rebind(`
		SELECT id, runner, mode, status, started_at, completed_at, artifact_path, notes
		FROM benchmark_runs
		WHERE id = ?
	`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.BenchmarkRun{}, false, nil
		}
		return domain.BenchmarkRun{}, false, domain.Internal("failed to read benchmark run", err)
	}
	return row.toDomain(), true, nil
}

func (w *txWriter) InsertRun(ctx context.Context, run domain.BenchmarkRun) error {
	_, err := w.tx.ExecContext(ctx, w.tx.Rebind(`
		INSERT INTO benchmark_runs (id, runner, mode, status, started_at, completed_at, artifact_path, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), run.ID, run.Runner, run.Mode, run.Status, run.StartedAt, nullableTimestamp(run.CompletedAt), run.ArtifactPath, run.Notes)
	if err != nil {
		return domain.Internal(fmt.Sprintf("failed to insert benchmark run %s", run.ID), err)
	}
	return nil
}

func (w *txWriter) InsertTrial(ctx context.Context, trial domain.Trial) error {
	_, err := w.tx.ExecContext(ctx, w.tx.Rebind(`
		INSERT INTO trials (
			id, benchmark_case_id, run_id, skill_id, agent, model, seed, evaluation_mode,
			status, artifact_path, notes, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), trial.ID, trial.BenchmarkCaseID, trial.RunID, nullableString(trial.SkillID), string(trial.Agent), trial.Model,
		trial.Seed, string(trial.EvaluationMode), trial.Status, trial.ArtifactPath, trial.Notes,
		trial.StartedAt, nullableTimestamp(trial.CompletedAt))
	if err != nil {
		return domain.Internal(fmt.Sprintf("failed to insert trial %s", trial.ID), err)
	}
	return nil
}

func (w *txWriter) InsertTrialEvent(ctx context.Context, event domain.TrialEvent) error {
	var exitCode sql.NullInt64
	if event.ExitCode != nil {
		exitCode = sql.NullInt64{Int64: int64(*event.ExitCode), Valid: true}
	}
	_, err := w.tx.ExecContext(ctx, w.tx.Rebind(`
		INSERT INTO trial_events (id, trial_id, sequence, event_type, payload_json, command, blocked, exit_code, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), event.ID, event.TrialID, event.Sequence, event.Type, event.Payload, event.Command, event.Blocked, exitCode, event.DurationMS)
	if err != nil {
		return domain.Internal(fmt.Sprintf("failed to insert event %d of trial %s", event.Sequence, event.TrialID), err)
	}
	return nil
}

func (w *txWriter) InsertTrialScore(ctx context.Context, score domain.TrialScore) error {
	_, err := w.tx.ExecContext(ctx, w.tx.Rebind(`
		INSERT INTO trial_scores (
			trial_id, overall_score, quality_score, security_score, speed_score, cost_score,
			success_rate, deterministic_score, safety_score, efficiency_score, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), score.TrialID, score.OverallScore, score.QualityScore, score.SecurityScore, score.SpeedScore, score.CostScore,
		score.SuccessRate, score.DeterministicScore, score.SafetyScore, score.EfficiencyScore, score.CreatedAt)
	if err != nil {
		return domain.Internal(fmt.Sprintf("failed to insert score for trial %s", score.TrialID), err)
	}
	return nil
}

func (w *txWriter) ListRunTrialStatuses(ctx context.Context, runID string) ([]string, error) {
	statuses := []string{}
	if err := w.tx.SelectContext(ctx, &statuses, w.tx.Rebind(`
		SELECT status FROM trials WHERE run_id = ? ORDER BY started_at ASC, id ASC
	`), runID); err != nil {
		return nil, domain.Internal("failed to list run trial statuses", err)
	}
	return statuses, nil
}

func (w *txWriter) UpdateRunStatus(ctx context.Context, runID, status, completedAt string) error {
	result, err := w.tx.ExecContext(ctx, w.tx.Rebind(`
		UPDATE benchmark_runs
		SET status = ?, completed_at = ?
		WHERE id = ?
	`), status, nullableTimestamp(completedAt), runID)
	if err != nil {
		return domain.Internal(fmt.Sprintf("failed to update benchmark run %s", runID), err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.Internal("failed to read run update result", err)
	}
	if affected == 0 {
		return domain.NotFound(fmt.Sprintf("benchmark run %q not found", runID))
	}
	return nil
}
