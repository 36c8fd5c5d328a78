package orchestrate

import (
	"math"

	"github.com/bcrosbie/skillbench/internal/domain"
	"github.com/bcrosbie/skillbench/internal/trial"
)

// ModeSummary is the per-mode slice of an orchestration.
type ModeSummary struct {
	TrialID            string  `json:"trialId"`
	Status             string  `json:"status"`
	SkillID            string  `json:"skillId,omitempty"`
	OverallScore       float64 `json:"overallScore"`
	SuccessRate        float64 `json:"successRate"`
	DeterministicScore float64 `json:"deterministicScore"`
	SafetyScore        float64 `json:"safetyScore"`
}

// Delta is a mode's improvement over baseline.
type Delta struct {
	OverallScoreDelta  float64 `json:"overallScoreDelta"`
	SuccessRateDelta   float64 `json:"successRateDelta"`
	DeterministicDelta float64 `json:"deterministicDelta"`
	SafetyDelta        float64 `json:"safetyDelta"`
}

type Comparison struct {
	Modes  map[domain.EvaluationMode]ModeSummary `json:"modes"`
	Deltas map[domain.EvaluationMode]Delta       `json:"deltas"`
}

// Compare summarises prepared trials and computes deltas of oracle_skill and
// library_selection against baseline where both sides completed.
func Compare(prepared []trial.Prepared) Comparison {
	comparison := Comparison{
		Modes:  make(map[domain.EvaluationMode]ModeSummary, len(prepared)),
		Deltas: map[domain.EvaluationMode]Delta{},
	}
	for _, p := range prepared {
		comparison.Modes[p.Trial.EvaluationMode] = ModeSummary{
			TrialID:            p.Trial.ID,
			Status:             p.Trial.Status,
			SkillID:            p.Trial.SkillID,
			OverallScore:       p.Score.OverallScore,
			SuccessRate:        p.Score.SuccessRate,
			DeterministicScore: p.Score.DeterministicScore,
			SafetyScore:        p.Score.SafetyScore,
		}
	}

	baseline, ok := comparison.Modes[domain.ModeBaseline]
	if !ok || baseline.Status != domain.StatusCompleted {
		return comparison
	}
	for _, mode := range []domain.EvaluationMode{domain.ModeOracleSkill, domain.ModeLibrarySelection} {
		summary, ok := comparison.Modes[mode]
		if !ok || summary.Status != domain.StatusCompleted {
			continue
		}
		comparison.Deltas[mode] = Delta{
			OverallScoreDelta:  round(summary.OverallScore-baseline.OverallScore, 2),
			SuccessRateDelta:   round(summary.SuccessRate-baseline.SuccessRate, 4),
			DeterministicDelta: round(summary.DeterministicScore-baseline.DeterministicScore, 2),
			SafetyDelta:        round(summary.SafetyScore-baseline.SafetyScore, 2),
		}
	}
	return comparison
}

func round(value float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(value*scale) / scale
}
