// Package manifest reads YAML catalog manifests and provisions their tasks,
// skills and benchmark cases into the store.
package manifest

import (
	"bytes"
	"context"
	"os"
	"strings"
	"time"

	"github.com/bcrosbie/skillbench/internal/domain"
	"github.com/bcrosbie/skillbench/internal/integrity"
	"github.com/bcrosbie/skillbench/internal/orchestrate"
	"github.com/bcrosbie/skillbench/internal/recommend"
	"github.com/bcrosbie/skillbench/internal/store"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Manifest struct {
	Tasks          []Task          `yaml:"tasks"`
	Skills         []Skill         `yaml:"skills"`
	BenchmarkCases []BenchmarkCase `yaml:"benchmark_cases"`
}

type Task struct {
	ID          string   `yaml:"id"`
	Slug        string   `yaml:"slug"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Category    string   `yaml:"category"`
	Tags        []string `yaml:"tags"`
}

type Skill struct {
	ID          string   `yaml:"id"`
	Slug        string   `yaml:"slug"`
	Name        string   `yaml:"name"`
	Summary     string   `yaml:"summary"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
	Agents      []string `yaml:"agents"`
	SourceURL   string   `yaml:"source_url"`
	Provenance  struct {
		Author     string `yaml:"author"`
		Repository string `yaml:"repository"`
		Commit     string `yaml:"commit"`
		License    string `yaml:"license"`
	} `yaml:"provenance"`
	SecurityReview struct {
		Status     string `yaml:"status"`
		Reviewer   string `yaml:"reviewer"`
		ReviewedAt string `yaml:"reviewed_at"`
		Notes      string `yaml:"notes"`
	} `yaml:"security_review"`
}

type BenchmarkCase struct {
	ID                    string `yaml:"id"`
	TaskID                string `yaml:"task_id"`
	ContainerImage        string `yaml:"container_image"`
	DefaultTimeoutSeconds int    `yaml:"default_timeout_seconds"`
}

// Summary counts what an import wrote.
type Summary struct {
	Tasks          int `json:"tasks"`
	Skills         int `json:"skills"`
	BenchmarkCases int `json:"benchmarkCases"`
}

func Load(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, errors.Wrapf(err, "failed to read manifest %s", path)
	}
	return Parse(data)
}

// Parse decodes a manifest, rejecting unknown keys.
func Parse(data []byte) (Manifest, error) {
	var m Manifest
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&m); err != nil {
		return Manifest{}, domain.InvalidArgumentf("manifest is not valid YAML: %v", err)
	}
	return m, nil
}

// Build validates the manifest and converts it to domain rows. Skill
// embeddings are computed here so stored vectors match what the engine would
// compute from the same text.
func (m Manifest) Build(now time.Time) ([]domain.Task, []domain.Skill, []domain.BenchmarkCase, error) {
	timestamp := now.UTC().Format(time.RFC3339Nano)

	taskIDs := map[string]struct{}{}
	tasks := make([]domain.Task, 0, len(m.Tasks))
	for _, t := range m.Tasks {
		task := domain.Task{
			ID:          strings.TrimSpace(t.ID),
			Slug:        strings.TrimSpace(t.Slug),
			Name:        strings.TrimSpace(t.Name),
			Description: strings.TrimSpace(t.Description),
			Category:    strings.TrimSpace(t.Category),
			Tags:        t.Tags,
		}
		if task.ID == "" || task.Slug == "" || task.Name == "" {
			return nil, nil, nil, domain.InvalidArgumentf("task %q needs id, slug and name", t.ID)
		}
		if _, dup := taskIDs[task.ID]; dup {
			return nil, nil, nil, domain.InvalidArgumentf("task %s appears more than once", task.ID)
		}
		taskIDs[task.ID] = struct{}{}
		tasks = append(tasks, task)
	}

	slugs := map[string]struct{}{}
	skills := make([]domain.Skill, 0, len(m.Skills))
	for _, s := range m.Skills {
		skill, err := s.toDomain(timestamp)
		if err != nil {
			return nil, nil, nil, err
		}
		if _, dup := slugs[skill.Slug]; dup {
			return nil, nil, nil, domain.InvalidArgumentf("skill slug %s appears more than once", skill.Slug)
		}
		slugs[skill.Slug] = struct{}{}
		skills = append(skills, skill)
	}

	cases := make([]domain.BenchmarkCase, 0, len(m.BenchmarkCases))
	for _, c := range m.BenchmarkCases {
		benchmarkCase := domain.BenchmarkCase{
			ID:                    strings.TrimSpace(c.ID),
			TaskID:                strings.TrimSpace(c.TaskID),
			ContainerImage:        strings.TrimSpace(c.ContainerImage),
			DefaultTimeoutSeconds: orchestrate.ClampTimeout(c.DefaultTimeoutSeconds, orchestrate.DefaultTimeoutSeconds),
		}
		if benchmarkCase.ID == "" {
			return nil, nil, nil, domain.InvalidArgument("benchmark case id is required")
		}
		if _, known := taskIDs[benchmarkCase.TaskID]; !known {
			return nil, nil, nil, domain.InvalidArgumentf("benchmark case %s references task %q, which is not in the manifest", benchmarkCase.ID, benchmarkCase.TaskID)
		}
		if _, err := orchestrate.ValidateContainerImage(benchmarkCase.ContainerImage); err != nil {
			return nil, nil, nil, err
		}
		cases = append(cases, benchmarkCase)
	}
	return tasks, skills, cases, nil
}

func (s Skill) toDomain(timestamp string) (domain.Skill, error) {
	skill := domain.Skill{
		ID:          strings.TrimSpace(s.ID),
		Slug:        strings.TrimSpace(s.Slug),
		Name:        strings.TrimSpace(s.Name),
		Summary:     strings.TrimSpace(s.Summary),
		Description: strings.TrimSpace(s.Description),
		Keywords:    s.Keywords,
		SourceURL:   strings.TrimSpace(s.SourceURL),
		Provenance: domain.Provenance{
			Author:     s.Provenance.Author,
			Repository: s.Provenance.Repository,
			Commit:     s.Provenance.Commit,
			License:    s.Provenance.License,
		},
		SecurityReview: domain.SecurityReview{
			Status:     strings.ToLower(strings.TrimSpace(s.SecurityReview.Status)),
			Reviewer:   s.SecurityReview.Reviewer,
			ReviewedAt: s.SecurityReview.ReviewedAt,
			Notes:      s.SecurityReview.Notes,
		},
		CreatedAt: timestamp,
		UpdatedAt: timestamp,
	}
	if skill.ID == "" || skill.Slug == "" || skill.Name == "" {
		return domain.Skill{}, domain.InvalidArgumentf("skill %q needs id, slug and name", s.ID)
	}
	switch skill.SecurityReview.Status {
	case "":
		skill.SecurityReview.Status = domain.ReviewPending
	case domain.ReviewApproved, domain.ReviewPending, domain.ReviewRejected:
	default:
		return domain.Skill{}, domain.InvalidArgumentf("skill %s has unknown security review status %q", skill.Slug, skill.SecurityReview.Status)
	}
	for _, raw := range s.Agents {
		agent, ok := domain.ParseAgentFamily(strings.ToLower(strings.TrimSpace(raw)))
		if !ok {
			return domain.Skill{}, domain.InvalidArgumentf("skill %s lists unknown agent %q", skill.Slug, raw)
		}
		skill.Agents = append(skill.Agents, agent)
	}
	if marker, found := integrity.FindSyntheticMarker(skill.SourceURL); found {
		return domain.Skill{}, domain.IntegrityViolationf("skill %s source url carries synthetic marker %q", skill.Slug, marker)
	}
	skill.Embedding = recommend.SkillEmbedding(skill)
	return skill, nil
}

// Import writes every row of m through w. Rows are upserted, so re-importing
// the same manifest is idempotent apart from timestamps.
func Import(ctx context.Context, w store.CatalogWriter, m Manifest, now time.Time) (Summary, error) {
	tasks, skills, cases, err := m.Build(now)
	if err != nil {
		return Summary{}, err
	}
	for _, task := range tasks {
		if err := w.UpsertTask(ctx, task); err != nil {
			return Summary{}, err
		}
	}
	for _, skill := range skills {
		if err := w.UpsertSkill(ctx, skill); err != nil {
			return Summary{}, err
		}
	}
	for _, benchmarkCase := range cases {
		if err := w.UpsertBenchmarkCase(ctx, benchmarkCase); err != nil {
			return Summary{}, err
		}
	}
	return Summary{Tasks: len(tasks), Skills: len(skills), BenchmarkCases: len(cases)}, nil
}
