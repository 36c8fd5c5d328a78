// Package recommend ranks approved skills for a free-text task by combining
// hashed-embedding similarity, lexical overlap and historical benchmark
// scores.
package recommend

import (
	"cmp"
	"slices"
	"strings"

	"github.com/bcrosbie/skillbench/internal/catalog"
	"github.com/bcrosbie/skillbench/internal/domain"
	"github.com/bcrosbie/skillbench/internal/textvec"
)

type Strategy string

const (
	StrategyEmbeddingFirst Strategy = "embedding-first"
	StrategyLexicalBackoff Strategy = "lexical-backoff"
)

const (
	MinTaskLength = 8
	DefaultLimit  = 3
	MaxLimit      = 5

	// EmbeddingConfidenceMin is the top similarity below which the embedding
	// signal is considered too weak to lead.
	EmbeddingConfidenceMin = 0.22
	// EmbeddingMarginMin is the lead the top candidate needs over the runner-up.
	EmbeddingMarginMin = 0.03

	lexicalBoostWeight = 0.15

	backoffRetrievalWeight   = 0.7
	backoffBenchmarkWeight   = 0.3
	embeddingRetrievalWeight = 0.75
	embeddingBenchmarkWeight = 0.25
)

type Query struct {
	Task  string
	Agent domain.AgentFilter
	Limit int
}

type Candidate struct {
	SkillID               string                `json:"skillId"`
	Slug                  string                `json:"slug"`
	Name                  string                `json:"name"`
	Summary               string                `json:"summary"`
	SourceURL             string                `json:"sourceUrl"`
	Agents                []domain.AgentFamily  `json:"agents"`
	FinalScore            float64               `json:"finalScore"`
	RetrievalScore        float64               `json:"retrievalScore"`
	EmbeddingSimilarity   float64               `json:"embeddingSimilarity"`
	LexicalScore          float64               `json:"lexicalScore"`
	SkillLexicalScore     float64               `json:"skillLexicalScore"`
	TaskLexicalScore      float64               `json:"taskLexicalScore"`
	AverageBenchmarkScore float64               `json:"averageBenchmarkScore"`
	BenchmarkNorm         float64               `json:"benchmarkNorm"`
	ScoreCount            int                   `json:"scoreCount"`
	BenchmarkAgent        string                `json:"benchmarkAgent"`
	Provenance            domain.Provenance     `json:"provenance"`
	SecurityReview        domain.SecurityReview `json:"securityReview"`
}

type BenchmarkContext struct {
	AgentFilter         string  `json:"agentFilter"`
	ApprovedSkills      int     `json:"approvedSkills"`
	TotalSkills         int     `json:"totalSkills"`
	Tasks               int     `json:"tasks"`
	Runs                int     `json:"runs"`
	Scores              int     `json:"scores"`
	TopEmbeddingScore   float64 `json:"topEmbeddingScore"`
	EmbeddingMargin     float64 `json:"embeddingMargin"`
	QueryHasEmbedding   bool    `json:"queryHasEmbedding"`
	ConfidenceThreshold float64 `json:"confidenceThreshold"`
	MarginThreshold     float64 `json:"marginThreshold"`
}

type Result struct {
	Strategy         Strategy         `json:"strategy"`
	Best             Candidate        `json:"recommendation"`
	Candidates       []Candidate      `json:"candidates"`
	BenchmarkContext BenchmarkContext `json:"benchmarkContext"`
}

// NormalizeLimit applies the default and the upper bound.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}

// Recommend ranks the approved skills of c for q.
func Recommend(c *catalog.Catalog, q Query) (Result, error) {
	task := strings.TrimSpace(q.Task)
	if len([]rune(task)) < MinTaskLength {
		return Result{}, domain.InvalidArgumentf("task must be at least %d characters", MinTaskLength)
	}
	limit := NormalizeLimit(q.Limit)

	queryVector := textvec.Embed(task)
	queryTokens := textvec.Tokenize(task)

	candidates := make([]Candidate, 0, len(c.Skills))
	for _, skill := range c.Skills {
		if skill.SecurityReview.Status != domain.ReviewApproved {
			continue
		}
		candidates = append(candidates, scoreCandidate(c, skill, q.Agent, queryVector, queryTokens))
	}
	if len(candidates) == 0 {
		return Result{}, domain.NoRecommendableSkill("no skill in the catalog has an approved security review")
	}

	top, margin := embeddingConfidence(candidates)
	strategy := StrategyEmbeddingFirst
	if queryVector.IsZero() || top < EmbeddingConfidenceMin || margin < EmbeddingMarginMin {
		strategy = StrategyLexicalBackoff
	}

	for i := range candidates {
		applyStrategy(&candidates[i], strategy)
	}
	slices.SortFunc(candidates, compareCandidates)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	return Result{
		Strategy:   strategy,
		Best:       candidates[0],
		Candidates: candidates,
		BenchmarkContext: BenchmarkContext{
			AgentFilter:         q.Agent.String(),
			ApprovedSkills:      countApproved(c.Skills),
			TotalSkills:         len(c.Skills),
			Tasks:               len(c.Tasks),
			Runs:                len(c.Runs),
			Scores:              len(c.Scores),
			TopEmbeddingScore:   round(top, 4),
			EmbeddingMargin:     round(margin, 4),
			QueryHasEmbedding:   !queryVector.IsZero(),
			ConfidenceThreshold: EmbeddingConfidenceMin,
			MarginThreshold:     EmbeddingMarginMin,
		},
	}, nil
}

func scoreCandidate(c *catalog.Catalog, skill domain.Skill, agent domain.AgentFilter, queryVector textvec.Vector, queryTokens textvec.TokenSet) Candidate {
	scores := c.ScoresForSkill(skill.ID)
	average, count, benchmarkAgent := averageBenchmark(scores, agent)

	embedding := skill.Embedding
	if len(embedding) != textvec.Dimensions || textvec.Vector(embedding).IsZero() {
		embedding = SkillEmbedding(skill)
	}
	similarity := textvec.CosineSimilarity(queryVector, embedding)

	skillLexical := textvec.Jaccard(queryTokens, skillTokens(skill))
	taskLexical := textvec.Jaccard(queryTokens, taskContextTokens(c, scores))

	return Candidate{
		SkillID:               skill.ID,
		Slug:                  skill.Slug,
		Name:                  skill.Name,
		Summary:               skill.Summary,
		SourceURL:             skill.SourceURL,
		Agents:                skill.Agents,
		EmbeddingSimilarity:   similarity,
		LexicalScore:          textvec.BlendLexical(skillLexical, taskLexical),
		SkillLexicalScore:     skillLexical,
		TaskLexicalScore:      taskLexical,
		AverageBenchmarkScore: average,
		BenchmarkNorm:         average / 100,
		ScoreCount:            count,
		BenchmarkAgent:        benchmarkAgent,
		Provenance:            skill.Provenance,
		SecurityReview:        skill.SecurityReview,
	}
}

// SkillEmbedding embeds the textual fields of a skill. Stored embeddings are
// produced by the same function.
func SkillEmbedding(skill domain.Skill) textvec.Vector {
	return textvec.EmbedFields(skillText(skill)...)
}

func skillText(skill domain.Skill) []string {
	fields := []string{skill.Slug, skill.Name, skill.Summary, skill.Description}
	return append(fields, skill.Keywords...)
}

func skillTokens(skill domain.Skill) textvec.TokenSet {
	return textvec.Tokenize(strings.Join(skillText(skill), " "))
}

// taskContextTokens unions the text of every task the skill was benchmarked on.
func taskContextTokens(c *catalog.Catalog, scores []domain.Score) textvec.TokenSet {
	seen := map[string]struct{}{}
	sets := []textvec.TokenSet{}
	for _, score := range scores {
		if _, ok := seen[score.TaskID]; ok {
			continue
		}
		seen[score.TaskID] = struct{}{}
		task, ok := c.Task(score.TaskID)
		if !ok {
			continue
		}
		text := append([]string{task.Slug, task.Name, task.Description, task.Category}, task.Tags...)
		sets = append(sets, textvec.Tokenize(strings.Join(text, " ")))
	}
	return textvec.Union(sets...)
}

// averageBenchmark averages overallScore over the agent's scores, falling back
// to every agent when the filter matches nothing.
func averageBenchmark(scores []domain.Score, agent domain.AgentFilter) (float64, int, string) {
	filtered := scores
	used := agent.String()
	if !agent.IsAny() {
		filtered = filterByAgent(scores, agent)
		if len(filtered) == 0 {
			filtered = scores
			used = domain.AgentFilterAny
		}
	}
	if len(filtered) == 0 {
		return 0, 0, used
	}
	var sum float64
	for _, score := range filtered {
		sum += score.OverallScore
	}
	return sum / float64(len(filtered)), len(filtered), used
}

func filterByAgent(scores []domain.Score, agent domain.AgentFilter) []domain.Score {
	out := []domain.Score{}
	for _, score := range scores {
		if agent.Matches(score.Agent) {
			out = append(out, score)
		}
	}
	return out
}

// embeddingConfidence returns the best similarity and its lead over the
// runner-up (0 stands in for a missing runner-up).
func embeddingConfidence(candidates []Candidate) (float64, float64) {
	similarities := make([]float64, 0, len(candidates))
	for _, candidate := range candidates {
		similarities = append(similarities, candidate.EmbeddingSimilarity)
	}
	slices.SortFunc(similarities, func(a, b float64) int { return cmp.Compare(b, a) })

	top := similarities[0]
	second := 0.0
	if len(similarities) > 1 {
		second = similarities[1]
	}
	return top, top - second
}

func applyStrategy(candidate *Candidate, strategy Strategy) {
	switch strategy {
	case StrategyLexicalBackoff:
		candidate.RetrievalScore = candidate.LexicalScore
		candidate.FinalScore = backoffRetrievalWeight*candidate.RetrievalScore + backoffBenchmarkWeight*candidate.BenchmarkNorm
	default:
		candidate.RetrievalScore = clamp(candidate.EmbeddingSimilarity+lexicalBoostWeight*candidate.LexicalScore, 0, 1)
		candidate.FinalScore = embeddingRetrievalWeight*candidate.RetrievalScore + embeddingBenchmarkWeight*candidate.BenchmarkNorm
	}
}

func compareCandidates(a, b Candidate) int {
	if c := cmp.Compare(b.FinalScore, a.FinalScore); c != 0 {
		return c
	}
	if c := cmp.Compare(b.LexicalScore, a.LexicalScore); c != 0 {
		return c
	}
	if c := cmp.Compare(b.AverageBenchmarkScore, a.AverageBenchmarkScore); c != 0 {
		return c
	}
	return strings.Compare(a.Slug, b.Slug)
}

func countApproved(skills []domain.Skill) int {
	count := 0
	for _, skill := range skills {
		if skill.SecurityReview.Status == domain.ReviewApproved {
			count++
		}
	}
	return count
}
