package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bcrosbie/skillbench/internal/auth"
	"github.com/bcrosbie/skillbench/internal/catalog"
	"github.com/bcrosbie/skillbench/internal/domain"
	"github.com/bcrosbie/skillbench/internal/logger"
	"github.com/bcrosbie/skillbench/internal/orchestrate"
	"github.com/bcrosbie/skillbench/internal/recommend"
	"github.com/bcrosbie/skillbench/internal/store"
	"github.com/bcrosbie/skillbench/internal/telemetry"
	"github.com/bcrosbie/skillbench/internal/trial"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Orchestrator runs multi-mode trials.
type Orchestrator interface {
	Orchestrate(ctx context.Context, req orchestrate.Request) (orchestrate.Result, error)
}

type SkillService struct {
	store        store.Store
	recorder     *trial.Recorder
	orchestrator Orchestrator
	execution    bool
}

// NewSkillService wires the read surface to s. executionEnabled reports
// whether the execution secret is configured; it only feeds Health.
func NewSkillService(s store.Store, orchestrator Orchestrator, executionEnabled bool) *SkillService {
	return &SkillService{
		store:        s,
		recorder:     trial.NewRecorder(s),
		orchestrator: orchestrator,
		execution:    executionEnabled,
	}
}

type Health struct {
	Status           string `json:"status"`
	Store            string `json:"store"`
	ExecutionEnabled bool   `json:"executionEnabled"`
	TimeUTC          string `json:"timeUtc"`
}

type RecommendRequest struct {
	Task  string `json:"task"`
	Agent string `json:"agent,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type SkillSummary struct {
	domain.Skill
	ScoreCount          int     `json:"scoreCount"`
	AverageOverallScore float64 `json:"averageOverallScore"`
}

type AgentScores struct {
	Count               int     `json:"count"`
	AverageOverallScore float64 `json:"averageOverallScore"`
	AverageSuccessRate  float64 `json:"averageSuccessRate"`
}

type SkillScores struct {
	SkillID             string                 `json:"skillId"`
	Slug                string                 `json:"slug"`
	Count               int                    `json:"count"`
	AverageOverallScore float64                `json:"averageOverallScore"`
	ByAgent             map[string]AgentScores `json:"byAgent"`
	ByTask              map[string]AgentScores `json:"byTask"`
	Scores              []domain.Score         `json:"scores"`
}

func (s *SkillService) Health(ctx context.Context) (Health, error) {
	health := Health{
		Status:           "ok",
		Store:            "ok",
		ExecutionEnabled: s.execution,
		TimeUTC:          time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := s.store.Ping(ctx); err != nil {
		return Health{}, err
	}
	return health, nil
}

func (s *SkillService) loadCatalog(ctx context.Context) (*catalog.Catalog, error) {
	return catalog.Load(ctx, s.store)
}

func (s *SkillService) Recommend(ctx context.Context, request RecommendRequest) (recommend.Result, error) {
	agent, err := domain.ParseAgentFilter(strings.ToLower(strings.TrimSpace(request.Agent)))
	if err != nil {
		return recommend.Result{}, err
	}
	if request.Limit < 0 {
		return recommend.Result{}, domain.InvalidArgument("limit must be positive")
	}

	var result recommend.Result
	err = telemetry.WithSpan(ctx, "recommend", func(ctx context.Context) error {
		c, err := s.loadCatalog(ctx)
		if err != nil {
			return err
		}
		result, err = recommend.Recommend(c, recommend.Query{Task: request.Task, Agent: agent, Limit: request.Limit})
		if err != nil {
			return err
		}
		telemetry.SetAttributes(ctx,
			attribute.String("recommend.strategy", string(result.Strategy)),
			attribute.String("recommend.best", result.Best.Slug),
		)
		return nil
	}, attribute.String("recommend.agent", agent.String()))
	if err != nil {
		return recommend.Result{}, err
	}

	logger.G(ctx).WithFields(logrus.Fields{
		"strategy":   result.Strategy,
		"best":       result.Best.Slug,
		"candidates": len(result.Candidates),
		"agent":      agent.String(),
	}).Info("recommendation served")
	return result, nil
}

func (s *SkillService) ListTasks(ctx context.Context) ([]domain.Task, error) {
	c, err := s.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	items := append([]domain.Task(nil), c.Tasks...)
	sort.Slice(items, func(i, j int) bool { return items[i].Slug < items[j].Slug })
	return items, nil
}

// ListSkills returns every skill with its score count and average, without
// the embedding vectors.
func (s *SkillService) ListSkills(ctx context.Context) ([]SkillSummary, error) {
	c, err := s.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]SkillSummary, 0, len(c.Skills))
	for _, skill := range c.Skills {
		items = append(items, summarize(c, skill))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Slug < items[j].Slug })
	return items, nil
}

func (s *SkillService) GetSkill(ctx context.Context, slug string) (SkillSummary, error) {
	c, err := s.loadCatalog(ctx)
	if err != nil {
		return SkillSummary{}, err
	}
	skill, err := skillBySlug(c, slug)
	if err != nil {
		return SkillSummary{}, err
	}
	return summarize(c, skill), nil
}

func (s *SkillService) SkillScores(ctx context.Context, slug string) (SkillScores, error) {
	c, err := s.loadCatalog(ctx)
	if err != nil {
		return SkillScores{}, err
	}
	skill, err := skillBySlug(c, slug)
	if err != nil {
		return SkillScores{}, err
	}

	scores := c.ScoresForSkill(skill.ID)
	result := SkillScores{
		SkillID:             skill.ID,
		Slug:                skill.Slug,
		Count:               len(scores),
		AverageOverallScore: averageOverall(scores),
		ByAgent:             groupScores(scores, func(score domain.Score) string { return score.Agent }),
		ByTask: groupScores(scores, func(score domain.Score) string {
			if task, ok := c.Task(score.TaskID); ok {
				return task.Slug
			}
			return score.TaskID
		}),
		Scores: scores,
	}
	return result, nil
}

func (s *SkillService) ListRuns(ctx context.Context) ([]domain.BenchmarkRun, error) {
	c, err := s.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	items := append([]domain.BenchmarkRun(nil), c.Runs...)
	sort.Slice(items, func(i, j int) bool { return items[i].StartedAt > items[j].StartedAt })
	return items, nil
}

func (s *SkillService) GetTrial(ctx context.Context, id string) (domain.TrialDetail, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.TrialDetail{}, domain.InvalidArgument("trial id is required")
	}
	return s.store.GetTrialDetail(ctx, id)
}

// ExecuteTrial records one trial. The request context must carry a granted
// execution authorization.
func (s *SkillService) ExecuteTrial(ctx context.Context, input trial.Input) (trial.Result, error) {
	if err := auth.Require(ctx); err != nil {
		return trial.Result{}, err
	}
	return s.recorder.Record(ctx, input)
}

// Orchestrate runs a multi-mode trial. Like ExecuteTrial it requires an
// authorized context.
func (s *SkillService) Orchestrate(ctx context.Context, request orchestrate.Request) (orchestrate.Result, error) {
	if err := auth.Require(ctx); err != nil {
		return orchestrate.Result{}, err
	}
	if s.orchestrator == nil {
		return orchestrate.Result{}, domain.ExecutionNotConfigured("no executor is configured for orchestration")
	}
	return s.orchestrator.Orchestrate(ctx, request)
}

func skillBySlug(c *catalog.Catalog, slug string) (domain.Skill, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return domain.Skill{}, domain.InvalidArgument("skill slug is required")
	}
	skill, ok := c.SkillBySlug(slug)
	if !ok {
		return domain.Skill{}, domain.NotFound(fmt.Sprintf("skill %q not found", slug))
	}
	return skill, nil
}

func summarize(c *catalog.Catalog, skill domain.Skill) SkillSummary {
	scores := c.ScoresForSkill(skill.ID)
	skill.Embedding = nil
	return SkillSummary{
		Skill:               skill,
		ScoreCount:          len(scores),
		AverageOverallScore: averageOverall(scores),
	}
}

func averageOverall(scores []domain.Score) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, score := range scores {
		sum += score.OverallScore
	}
	return round(sum/float64(len(scores)), 2)
}

func groupScores(scores []domain.Score, key func(domain.Score) string) map[string]AgentScores {
	groups := map[string][]domain.Score{}
	for _, score := range scores {
		groups[key(score)] = append(groups[key(score)], score)
	}
	out := make(map[string]AgentScores, len(groups))
	for name, group := range groups {
		var success float64
		for _, score := range group {
			success += score.SuccessRate
		}
		out[name] = AgentScores{
			Count:               len(group),
			AverageOverallScore: averageOverall(group),
			AverageSuccessRate:  round(success/float64(len(group)), 4),
		}
	}
	return out
}
