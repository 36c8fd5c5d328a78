package trial

import (
	"context"
	"time"

	"github.com/bcrosbie/skillbench/internal/domain"
	"github.com/bcrosbie/skillbench/internal/integrity"
	"github.com/bcrosbie/skillbench/internal/logger"
	"github.com/bcrosbie/skillbench/internal/store"
	"github.com/bcrosbie/skillbench/internal/telemetry"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Prepared is a scored trial with every row it will write.
type Prepared struct {
	Trial       domain.Trial
	Events      []domain.TrialEvent
	Score       domain.TrialScore
	Computation Computation
}

// Detail returns the read-side view of p.
func (p Prepared) Detail() domain.TrialDetail {
	return domain.TrialDetail{Trial: p.Trial, Events: p.Events, Score: p.Score}
}

// Prepare scores ec and assigns ids and timestamps to its rows.
func Prepare(ec ExecutionContext, now time.Time, newID func() string) Prepared {
	computation := Score(ec)
	trialID := newID()
	timestamp := formatTime(now)

	startedAt := timestamp
	if !ec.StartedAt.IsZero() {
		startedAt = formatTime(ec.StartedAt)
	}
	completedAt := ""
	switch {
	case !ec.CompletedAt.IsZero():
		completedAt = formatTime(ec.CompletedAt)
	case domain.IsTerminalStatus(ec.Status):
		completedAt = timestamp
	}

	skillID := ec.SkillID
	if ec.Mode == domain.ModeBaseline {
		skillID = ""
	}

	prepared := Prepared{
		Trial: domain.Trial{
			ID:              trialID,
			BenchmarkCaseID: ec.BenchmarkCaseID,
			RunID:           ec.RunID,
			SkillID:         skillID,
			Agent:           ec.Agent,
			Model:           ec.Model,
			Seed:            ec.Seed,
			EvaluationMode:  ec.Mode,
			Status:          ec.Status,
			ArtifactPath:    ec.ArtifactPath,
			Notes:           ec.Notes,
			StartedAt:       startedAt,
			CompletedAt:     completedAt,
		},
		Events:      make([]domain.TrialEvent, 0, len(ec.Events)),
		Score:       computation.TrialScore(trialID, timestamp),
		Computation: computation,
	}
	for _, event := range ec.Events {
		prepared.Events = append(prepared.Events, domain.TrialEvent{
			ID:         newID(),
			TrialID:    trialID,
			Sequence:   event.Sequence,
			Type:       event.Type,
			Payload:    event.Payload,
			Command:    event.Command,
			Blocked:    event.Blocked,
			ExitCode:   event.ExitCode,
			DurationMS: event.DurationMS,
		})
	}
	return prepared
}

// PersistTrial writes the owning run (when new), the trial, its events in
// order and its score through w. An existing run that is not pinned or that
// carries a synthetic marker aborts before anything is inserted.
func PersistTrial(ctx context.Context, w store.TrialWriter, p Prepared) error {
	run, found, err := w.GetRun(ctx, p.Trial.RunID)
	if err != nil {
		return err
	}
	if found {
		if err := checkRun(run); err != nil {
			return err
		}
	} else {
		if err := w.InsertRun(ctx, domain.BenchmarkRun{
			ID:           p.Trial.RunID,
			Runner:       string(p.Trial.Agent),
			Mode:         domain.RunModePinned,
			Status:       p.Trial.Status,
			StartedAt:    p.Trial.StartedAt,
			CompletedAt:  p.Trial.CompletedAt,
			ArtifactPath: p.Trial.ArtifactPath,
		}); err != nil {
			return err
		}
	}

	if err := w.InsertTrial(ctx, p.Trial); err != nil {
		return err
	}
	for _, event := range p.Events {
		if err := w.InsertTrialEvent(ctx, event); err != nil {
			return err
		}
	}
	return w.InsertTrialScore(ctx, p.Score)
}

func checkRun(run domain.BenchmarkRun) error {
	if run.Mode != domain.RunModePinned {
		return domain.IntegrityViolationf("benchmark run %s has mode %q, only %s runs accept trials", run.ID, run.Mode, domain.RunModePinned)
	}
	if marker, found := integrity.FindSyntheticMarker(run.ArtifactPath); found {
		return domain.IntegrityViolationf("benchmark run %s artifact path carries synthetic marker %q", run.ID, marker)
	}
	if marker, found := integrity.FindSyntheticMarker(run.Notes); found {
		return domain.IntegrityViolationf("benchmark run %s notes carry synthetic marker %q", run.ID, marker)
	}
	return nil
}

// RunStatus derives a run's status from the statuses of its trials: failed if
// any failed, completed if all completed, running otherwise.
func RunStatus(statuses []string) string {
	if len(statuses) == 0 {
		return domain.StatusRunning
	}
	completed := 0
	for _, status := range statuses {
		switch status {
		case domain.StatusFailed:
			return domain.StatusFailed
		case domain.StatusCompleted:
			completed++
		}
	}
	if completed == len(statuses) {
		return domain.StatusCompleted
	}
	return domain.StatusRunning
}

// FinalizeRun recomputes the run status from every trial recorded against it.
func FinalizeRun(ctx context.Context, w store.TrialWriter, runID string, now time.Time) (string, error) {
	statuses, err := w.ListRunTrialStatuses(ctx, runID)
	if err != nil {
		return "", err
	}
	status := RunStatus(statuses)
	completedAt := ""
	if domain.IsTerminalStatus(status) {
		completedAt = formatTime(now)
	}
	if err := w.UpdateRunStatus(ctx, runID, status, completedAt); err != nil {
		return "", err
	}
	return status, nil
}

// Result is a recorded trial plus the score breakdown and the run status
// after recording.
type Result struct {
	Detail      domain.TrialDetail `json:"detail"`
	Computation Computation        `json:"computation"`
	RunStatus   string             `json:"runStatus"`
}

// Recorder validates, scores and persists single trials.
type Recorder struct {
	store store.TrialStore
	now   func() time.Time
	newID func() string
}

type Option func(*Recorder)

func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(r *Recorder) { r.newID = newID }
}

func NewRecorder(s store.TrialStore, opts ...Option) *Recorder {
	r := &Recorder{
		store: s,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record normalizes in, scores it and writes every row in one transaction,
// finishing with the run status.
func (r *Recorder) Record(ctx context.Context, in Input) (Result, error) {
	ec, err := Normalize(in)
	if err != nil {
		return Result{}, err
	}

	var result Result
	err = telemetry.WithSpan(ctx, "trial.record", func(ctx context.Context) error {
		if _, err := r.store.GetBenchmarkCase(ctx, ec.BenchmarkCaseID); err != nil {
			return err
		}

		prepared := Prepare(ec, r.now(), r.newID)
		var runStatus string
		err := r.store.WithTx(ctx, func(w store.TrialWriter) error {
			if err := PersistTrial(ctx, w, prepared); err != nil {
				return err
			}
			status, err := FinalizeRun(ctx, w, ec.RunID, r.now())
			if err != nil {
				return err
			}
			runStatus = status
			return nil
		})
		if err != nil {
			return err
		}

		telemetry.SetAttributes(ctx,
			attribute.String("trial.id", prepared.Trial.ID),
			attribute.String("trial.mode", string(ec.Mode)),
			attribute.Float64("trial.overall_score", prepared.Score.OverallScore),
		)
		result = Result{Detail: prepared.Detail(), Computation: prepared.Computation, RunStatus: runStatus}
		return nil
	}, attribute.String("run.id", ec.RunID))
	if err != nil {
		return Result{}, err
	}

	logger.G(ctx).WithFields(logrus.Fields{
		"trial_id":      result.Detail.Trial.ID,
		"run_id":        ec.RunID,
		"mode":          ec.Mode,
		"status":        ec.Status,
		"overall_score": result.Detail.Score.OverallScore,
		"run_status":    result.RunStatus,
	}).Info("trial recorded")
	return result, nil
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}
