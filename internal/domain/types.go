package domain

// AgentFamily is the closed set of agent runtimes a skill can target.
type AgentFamily string

const (
	AgentCodex  AgentFamily = "codex"
	AgentClaude AgentFamily = "claude"
	AgentGemini AgentFamily = "gemini"
)

var AgentFamilies = []AgentFamily{AgentCodex, AgentClaude, AgentGemini}

func ParseAgentFamily(raw string) (AgentFamily, bool) {
	for _, family := range AgentFamilies {
		if string(family) == raw {
			return family, true
		}
	}
	return "", false
}

// AgentFilter is the query-time selector. The zero value matches every agent.
type AgentFilter struct {
	Family AgentFamily
}

const AgentFilterAny = "any"

func (f AgentFilter) IsAny() bool {
	return f.Family == ""
}

func (f AgentFilter) String() string {
	if f.IsAny() {
		return AgentFilterAny
	}
	return string(f.Family)
}

func (f AgentFilter) Matches(agent string) bool {
	return f.IsAny() || string(f.Family) == agent
}

// ParseAgentFilter accepts "", "any", "multi" or a concrete agent family.
func ParseAgentFilter(raw string) (AgentFilter, error) {
	switch raw {
	case "", AgentFilterAny, "multi":
		return AgentFilter{}, nil
	}
	family, ok := ParseAgentFamily(raw)
	if !ok {
		return AgentFilter{}, InvalidArgumentf("agent must be one of: any, codex, claude, gemini (got %q)", raw)
	}
	return AgentFilter{Family: family}, nil
}

type EvaluationMode string

const (
	ModeBaseline         EvaluationMode = "baseline"
	ModeOracleSkill      EvaluationMode = "oracle_skill"
	ModeLibrarySelection EvaluationMode = "library_selection"
)

func ParseEvaluationMode(raw string) (EvaluationMode, bool) {
	switch EvaluationMode(raw) {
	case ModeBaseline, ModeOracleSkill, ModeLibrarySelection:
		return EvaluationMode(raw), true
	}
	return "", false
}

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

func IsTerminalStatus(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

const (
	ReviewApproved = "approved"
	ReviewPending  = "pending"
	ReviewRejected = "rejected"
)

// RunModePinned is the only run mode this service writes or accepts: every
// trial in the run executed against a digest-pinned container image.
const RunModePinned = "pinned_container"

type Task struct {
	ID          string   `json:"id"`
	Slug        string   `json:"slug"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
}

type Provenance struct {
	Author     string `json:"author"`
	Repository string `json:"repository"`
	Commit     string `json:"commit"`
	License    string `json:"license"`
}

type SecurityReview struct {
	Status     string `json:"status"`
	Reviewer   string `json:"reviewer"`
	ReviewedAt string `json:"reviewedAt"`
	Notes      string `json:"notes"`
}

type Skill struct {
	ID             string         `json:"id"`
	Slug           string         `json:"slug"`
	Name           string         `json:"name"`
	Summary        string         `json:"summary"`
	Description    string         `json:"description"`
	Keywords       []string       `json:"keywords"`
	Agents         []AgentFamily  `json:"agents"`
	SourceURL      string         `json:"sourceUrl"`
	Provenance     Provenance     `json:"provenance"`
	SecurityReview SecurityReview `json:"securityReview"`
	Embedding      []float64      `json:"embedding,omitempty"`
	CreatedAt      string         `json:"createdAt"`
	UpdatedAt      string         `json:"updatedAt"`
}

type BenchmarkCase struct {
	ID                    string `json:"id"`
	TaskID                string `json:"taskId"`
	ContainerImage        string `json:"containerImage"`
	DefaultTimeoutSeconds int    `json:"defaultTimeoutSeconds"`
}

type BenchmarkRun struct {
	ID           string `json:"id"`
	Runner       string `json:"runner"`
	Mode         string `json:"mode"`
	Status       string `json:"status"`
	StartedAt    string `json:"startedAt"`
	CompletedAt  string `json:"completedAt,omitempty"`
	ArtifactPath string `json:"artifactPath"`
	Notes        string `json:"notes"`
}

type Trial struct {
	ID              string         `json:"id"`
	BenchmarkCaseID string         `json:"benchmarkCaseId"`
	RunID           string         `json:"runId"`
	SkillID         string         `json:"skillId,omitempty"`
	Agent           AgentFamily    `json:"agent"`
	Model           string         `json:"model"`
	Seed            int64          `json:"seed"`
	EvaluationMode  EvaluationMode `json:"evaluationMode"`
	Status          string         `json:"status"`
	ArtifactPath    string         `json:"artifactPath"`
	Notes           string         `json:"notes"`
	StartedAt       string         `json:"startedAt"`
	CompletedAt     string         `json:"completedAt,omitempty"`
}

const (
	EventCommand  = "command"
	EventToolCall = "tool_call"
	EventSafety   = "safety"
	EventStatus   = "status"
)

type TrialEvent struct {
	ID         string `json:"id"`
	TrialID    string `json:"trialId"`
	Sequence   int    `json:"sequence"`
	Type       string `json:"type"`
	Payload    string `json:"payload"`
	Command    string `json:"command"`
	Blocked    bool   `json:"blocked"`
	ExitCode   *int   `json:"exitCode,omitempty"`
	DurationMS int64  `json:"durationMs"`
}

type TrialScore struct {
	TrialID            string  `json:"trialId"`
	OverallScore       float64 `json:"overallScore"`
	QualityScore       float64 `json:"qualityScore"`
	SecurityScore      float64 `json:"securityScore"`
	SpeedScore         float64 `json:"speedScore"`
	CostScore          float64 `json:"costScore"`
	SuccessRate        float64 `json:"successRate"`
	DeterministicScore float64 `json:"deterministicScore"`
	SafetyScore        float64 `json:"safetyScore"`
	EfficiencyScore    float64 `json:"efficiencyScore"`
	CreatedAt          string  `json:"createdAt"`
}

// Score is a catalog-level benchmark score derived from a completed
// oracle_skill trial.
type Score struct {
	ID            string  `json:"id"`
	RunID         string  `json:"runId"`
	SkillID       string  `json:"skillId"`
	TaskID        string  `json:"taskId"`
	Agent         string  `json:"agent"`
	OverallScore  float64 `json:"overallScore"`
	QualityScore  float64 `json:"qualityScore"`
	SecurityScore float64 `json:"securityScore"`
	SpeedScore    float64 `json:"speedScore"`
	CostScore     float64 `json:"costScore"`
	SuccessRate   float64 `json:"successRate"`
	ArtifactPath  string  `json:"artifactPath"`
	CreatedAt     string  `json:"createdAt"`
}

type TrialDetail struct {
	Trial  Trial        `json:"trial"`
	Events []TrialEvent `json:"events"`
	Score  TrialScore   `json:"score"`
}
