// Package catalog builds read-only snapshots of tasks, skills, runs and
// benchmark scores, and refuses to serve any snapshot that fails integrity
// validation.
package catalog

import (
	"context"

	"github.com/bcrosbie/skillbench/internal/domain"
	"github.com/bcrosbie/skillbench/internal/logger"
	"github.com/bcrosbie/skillbench/internal/store"
	"github.com/bcrosbie/skillbench/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Catalog is an immutable per-request snapshot. Lookups are indexed by id.
type Catalog struct {
	Tasks  []domain.Task
	Skills []domain.Skill
	Runs   []domain.BenchmarkRun
	Scores []domain.Score

	tasksByID  map[string]domain.Task
	skillsByID map[string]domain.Skill
	runsByID   map[string]domain.BenchmarkRun
}

func (c *Catalog) Task(id string) (domain.Task, bool) {
	task, ok := c.tasksByID[id]
	return task, ok
}

func (c *Catalog) Skill(id string) (domain.Skill, bool) {
	skill, ok := c.skillsByID[id]
	return skill, ok
}

func (c *Catalog) SkillBySlug(slug string) (domain.Skill, bool) {
	for _, skill := range c.Skills {
		if skill.Slug == slug {
			return skill, true
		}
	}
	return domain.Skill{}, false
}

func (c *Catalog) Run(id string) (domain.BenchmarkRun, bool) {
	run, ok := c.runsByID[id]
	return run, ok
}

// ScoresForSkill returns the skill's scores in catalog order.
func (c *Catalog) ScoresForSkill(skillID string) []domain.Score {
	out := []domain.Score{}
	for _, score := range c.Scores {
		if score.SkillID == skillID {
			out = append(out, score)
		}
	}
	return out
}

// Load reads every catalog table, probing the schema first, and validates the
// result. There is no partial or default catalog: any failure is returned.
func Load(ctx context.Context, reader store.CatalogReader) (*Catalog, error) {
	var snapshot *Catalog
	err := telemetry.WithSpan(ctx, "catalog.load", func(ctx context.Context) error {
		if err := reader.VerifySchema(ctx); err != nil {
			return err
		}

		tasks, err := reader.ListTasks(ctx)
		if err != nil {
			return err
		}
		skills, err := reader.ListSkills(ctx)
		if err != nil {
			return err
		}
		runs, err := reader.ListRuns(ctx)
		if err != nil {
			return err
		}
		scores, err := reader.ListScores(ctx)
		if err != nil {
			return err
		}

		built, err := New(tasks, skills, runs, scores)
		if err != nil {
			return err
		}
		telemetry.SetAttributes(ctx,
			attribute.Int("catalog.skills", len(skills)),
			attribute.Int("catalog.scores", len(scores)),
		)
		snapshot = built
		return nil
	})
	if err != nil {
		logger.G(ctx).WithError(err).Warn("catalog load rejected")
		return nil, err
	}
	return snapshot, nil
}

// New indexes the given rows and runs the integrity validator over them.
func New(tasks []domain.Task, skills []domain.Skill, runs []domain.BenchmarkRun, scores []domain.Score) (*Catalog, error) {
	c := &Catalog{
		Tasks:      tasks,
		Skills:     skills,
		Runs:       runs,
		Scores:     scores,
		tasksByID:  make(map[string]domain.Task, len(tasks)),
		skillsByID: make(map[string]domain.Skill, len(skills)),
		runsByID:   make(map[string]domain.BenchmarkRun, len(runs)),
	}
	for _, task := range tasks {
		c.tasksByID[task.ID] = task
	}
	for _, skill := range skills {
		c.skillsByID[skill.ID] = skill
	}
	if err := Validate(c); err != nil {
		return nil, err
	}
	for _, run := range runs {
		c.runsByID[run.ID] = run
	}
	return c, nil
}
