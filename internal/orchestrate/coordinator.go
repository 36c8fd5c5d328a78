// Package orchestrate runs one benchmark case across several evaluation modes
// on the external executor and records every mode atomically.
package orchestrate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bcrosbie/skillbench/internal/domain"
	"github.com/bcrosbie/skillbench/internal/executor"
	"github.com/bcrosbie/skillbench/internal/logger"
	"github.com/bcrosbie/skillbench/internal/store"
	"github.com/bcrosbie/skillbench/internal/telemetry"
	"github.com/bcrosbie/skillbench/internal/trial"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Executor runs one evaluation mode.
type Executor interface {
	Execute(ctx context.Context, payload executor.Payload) (executor.Result, error)
}

type Request struct {
	BenchmarkCaseID string   `json:"benchmarkCaseId"`
	OracleSkillID   string   `json:"oracleSkillId,omitempty"`
	Agent           string   `json:"agent"`
	Model           string   `json:"model"`
	Seed            int64    `json:"seed"`
	RunID           string   `json:"runId"`
	Modes           []string `json:"modes"`
	TimeoutSeconds  int      `json:"timeoutSeconds,omitempty"`
}

type Result struct {
	RunID          string         `json:"runId"`
	RunStatus      string         `json:"runStatus"`
	ContainerImage string         `json:"containerImage"`
	TimeoutSeconds int            `json:"timeoutSeconds"`
	Trials         []trial.Result `json:"trials"`
	Comparison     Comparison     `json:"comparison"`
}

type Coordinator struct {
	store    store.TrialStore
	executor Executor
	now      func() time.Time
	newID    func() string
}

type Option func(*Coordinator)

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(c *Coordinator) { c.newID = newID }
}

func New(s store.TrialStore, exec Executor, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    s,
		executor: exec,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type validatedRequest struct {
	Request
	agent domain.AgentFamily
	modes []domain.EvaluationMode
}

// Orchestrate executes every requested mode in order, then persists all of
// them in a single transaction and sets the run status last. Nothing is
// written unless every mode executed and normalized successfully.
func (c *Coordinator) Orchestrate(ctx context.Context, req Request) (Result, error) {
	if c.executor == nil {
		return Result{}, domain.ExecutionNotConfigured("no executor is configured for orchestration")
	}
	valid, err := validateRequest(req)
	if err != nil {
		return Result{}, err
	}

	ctx = logger.WithFields(ctx, logrus.Fields{"run_id": valid.RunID, "benchmark_case_id": valid.BenchmarkCaseID})

	var result Result
	err = telemetry.WithSpan(ctx, "orchestrate", func(ctx context.Context) error {
		benchmarkCase, err := c.store.GetBenchmarkCase(ctx, valid.BenchmarkCaseID)
		if err != nil {
			return err
		}
		if _, err := ValidateContainerImage(benchmarkCase.ContainerImage); err != nil {
			return err
		}
		timeout := ClampTimeout(valid.TimeoutSeconds, benchmarkCase.DefaultTimeoutSeconds)

		prepared := make([]trial.Prepared, 0, len(valid.modes))
		for _, mode := range valid.modes {
			p, err := c.runMode(ctx, valid, mode, benchmarkCase.ContainerImage, timeout)
			if err != nil {
				return err
			}
			prepared = append(prepared, p)
		}

		runStatus := domain.StatusCompleted
		for _, p := range prepared {
			if p.Trial.Status == domain.StatusFailed {
				runStatus = domain.StatusFailed
			}
		}

		err = c.store.WithTx(ctx, func(w store.TrialWriter) error {
			for _, p := range prepared {
				if err := trial.PersistTrial(ctx, w, p); err != nil {
					return err
				}
			}
			return w.UpdateRunStatus(ctx, valid.RunID, runStatus, c.now().Format(time.RFC3339Nano))
		})
		if err != nil {
			return err
		}

		result = Result{
			RunID:          valid.RunID,
			RunStatus:      runStatus,
			ContainerImage: benchmarkCase.ContainerImage,
			TimeoutSeconds: timeout,
			Trials:         make([]trial.Result, 0, len(prepared)),
			Comparison:     Compare(prepared),
		}
		for _, p := range prepared {
			result.Trials = append(result.Trials, trial.Result{Detail: p.Detail(), Computation: p.Computation, RunStatus: runStatus})
		}
		return nil
	}, attribute.String("run.id", valid.RunID), attribute.Int("orchestrate.modes", len(valid.modes)))
	if err != nil {
		logger.G(ctx).WithError(err).Warn("orchestration aborted")
		return Result{}, err
	}

	logger.G(ctx).WithFields(logrus.Fields{
		"run_status": result.RunStatus,
		"trials":     len(result.Trials),
	}).Info("orchestration recorded")
	return result, nil
}

// runMode calls the executor for one mode under its own deadline and turns
// the reply into a prepared trial. Errors name the mode.
func (c *Coordinator) runMode(ctx context.Context, req validatedRequest, mode domain.EvaluationMode, image string, timeoutSeconds int) (trial.Prepared, error) {
	var prepared trial.Prepared
	err := telemetry.WithSpan(ctx, "orchestrate.mode", func(ctx context.Context) error {
		payload := executor.Payload{
			BenchmarkCaseID: req.BenchmarkCaseID,
			RunID:           req.RunID,
			EvaluationMode:  mode,
			Agent:           req.agent,
			Model:           req.Model,
			Seed:            req.Seed,
			TimeoutSeconds:  timeoutSeconds,
			ContainerImage:  image,
		}
		if mode == domain.ModeOracleSkill {
			payload.SkillID = req.OracleSkillID
		}

		modeCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second)
		defer cancel()
		reply, err := c.executor.Execute(modeCtx, payload)
		if err != nil {
			return modeError(ctx, mode, timeoutSeconds, err)
		}

		skillID := ""
		switch mode {
		case domain.ModeOracleSkill:
			skillID = req.OracleSkillID
		case domain.ModeLibrarySelection:
			skillID = reply.SkillID
		}
		ec, err := trial.Normalize(trial.Input{
			BenchmarkCaseID: req.BenchmarkCaseID,
			RunID:           req.RunID,
			SkillID:         skillID,
			Agent:           string(req.agent),
			Model:           req.Model,
			Seed:            req.Seed,
			EvaluationMode:  string(mode),
			Status:          reply.Status,
			ArtifactPath:    reply.ArtifactPath,
			Notes:           reply.Notes,
			StartedAt:       reply.StartedAt,
			CompletedAt:     reply.CompletedAt,
			Events:          reply.Events,
			Checks:          reply.Checks,
		})
		if err != nil {
			return domain.Upstream(fmt.Sprintf("mode %s: executor result rejected", mode), err)
		}
		if !domain.IsTerminalStatus(ec.Status) {
			return domain.Upstream(fmt.Sprintf("mode %s: executor returned non-terminal status %q", mode, ec.Status), nil)
		}

		prepared = trial.Prepare(ec, c.now(), c.newID)
		telemetry.SetAttributes(ctx,
			attribute.String("trial.status", ec.Status),
			attribute.Float64("trial.overall_score", prepared.Score.OverallScore),
		)
		return nil
	}, attribute.String("orchestrate.mode", string(mode)))
	return prepared, err
}

func modeError(ctx context.Context, mode domain.EvaluationMode, timeoutSeconds int, err error) error {
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		return errors.Wrapf(ctx.Err(), "orchestration canceled during mode %s", mode)
	}
	if appErr, ok := domain.AsAppError(err); ok {
		switch appErr.Code {
		case domain.CodeOrchestrationTimeout:
			return domain.OrchestrationTimeout(fmt.Sprintf("mode %s exceeded its %ds timeout", mode, timeoutSeconds), err)
		case domain.CodeUpstream:
			return domain.Upstream(fmt.Sprintf("mode %s: %s", mode, appErr.Message), appErr.Cause)
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.OrchestrationTimeout(fmt.Sprintf("mode %s exceeded its %ds timeout", mode, timeoutSeconds), err)
	}
	return domain.Upstream(fmt.Sprintf("mode %s: executor call failed", mode), err)
}

func validateRequest(req Request) (validatedRequest, error) {
	valid := validatedRequest{Request: req}
	valid.BenchmarkCaseID = strings.TrimSpace(req.BenchmarkCaseID)
	valid.OracleSkillID = strings.TrimSpace(req.OracleSkillID)
	valid.RunID = strings.TrimSpace(req.RunID)
	valid.Model = strings.TrimSpace(req.Model)

	if valid.BenchmarkCaseID == "" {
		return validatedRequest{}, domain.InvalidArgument("benchmarkCaseId is required")
	}
	agent, ok := domain.ParseAgentFamily(strings.TrimSpace(req.Agent))
	if !ok {
		return validatedRequest{}, domain.InvalidArgumentf("agent must be one of codex, claude, gemini (got %q)", req.Agent)
	}
	valid.agent = agent
	if valid.Model == "" {
		return validatedRequest{}, domain.InvalidArgument("model is required")
	}
	if req.Seed < 0 {
		return validatedRequest{}, domain.InvalidArgument("seed must be non-negative")
	}
	if err := trial.ValidateRunID(valid.RunID); err != nil {
		return validatedRequest{}, err
	}
	if req.TimeoutSeconds < 0 {
		return validatedRequest{}, domain.InvalidArgument("timeoutSeconds must be non-negative")
	}

	if len(req.Modes) == 0 {
		return validatedRequest{}, domain.InvalidArgument("at least one evaluation mode is required")
	}
	seen := map[domain.EvaluationMode]bool{}
	for _, raw := range req.Modes {
		mode, ok := domain.ParseEvaluationMode(strings.TrimSpace(raw))
		if !ok {
			return validatedRequest{}, domain.InvalidArgumentf("unknown evaluation mode %q", raw)
		}
		if seen[mode] {
			return validatedRequest{}, domain.InvalidArgumentf("evaluation mode %s is listed more than once", mode)
		}
		seen[mode] = true
		valid.modes = append(valid.modes, mode)
	}
	if seen[domain.ModeOracleSkill] && valid.OracleSkillID == "" {
		return validatedRequest{}, domain.InvalidArgument("oracleSkillId is required when oracle_skill is requested")
	}
	return valid, nil
}
