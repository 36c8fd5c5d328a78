package catalog

import (
	"strings"

	"github.com/bcrosbie/skillbench/internal/domain"
	"github.com/bcrosbie/skillbench/internal/integrity"
)

// Validate enforces the catalog integrity rules. The first violation is
// returned and names the offending row.
func Validate(c *Catalog) error {
	if len(c.Skills) == 0 {
		return domain.IntegrityViolation("catalog has no skills")
	}
	if len(c.Runs) == 0 {
		return domain.IntegrityViolation("catalog has no benchmark runs")
	}
	if len(c.Scores) == 0 {
		return domain.IntegrityViolation("catalog has no benchmark scores")
	}

	runIDs := make(map[string]struct{}, len(c.Runs))
	for _, run := range c.Runs {
		if _, dup := runIDs[run.ID]; dup {
			return domain.IntegrityViolationf("benchmark run %s appears more than once", run.ID)
		}
		runIDs[run.ID] = struct{}{}

		if marker, found := integrity.FindSyntheticMarker(run.ArtifactPath); found {
			return domain.IntegrityViolationf("benchmark run %s artifact path carries synthetic marker %q", run.ID, marker)
		}
		if marker, found := integrity.FindSyntheticMarker(run.Notes); found {
			return domain.IntegrityViolationf("benchmark run %s notes carry synthetic marker %q", run.ID, marker)
		}
	}

	for _, score := range c.Scores {
		if _, ok := c.tasksByID[score.TaskID]; !ok {
			return domain.IntegrityViolationf("score %s references unknown task %q", score.ID, score.TaskID)
		}
		if _, ok := c.skillsByID[score.SkillID]; !ok {
			return domain.IntegrityViolationf("score %s references unknown skill %q", score.ID, score.SkillID)
		}
		if _, ok := runIDs[score.RunID]; !ok {
			return domain.IntegrityViolationf("score %s references unknown benchmark run %q", score.ID, score.RunID)
		}
		if strings.TrimSpace(score.CreatedAt) == "" {
			return domain.IntegrityViolationf("score %s has no createdAt", score.ID)
		}
	}
	return nil
}
