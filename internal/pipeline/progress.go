package pipeline

import (
	"math"

	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/model"
)

// ComputeProgress maps a product's phase rows to a 0-100 completion estimate.
// Completed phases count in full; each running phase is credited a flat 50%
// regardless of its own progress_percentage, since no finer-grained signal
// exists. Pure and deterministic; an empty set yields 0.
func ComputeProgress(phases []model.PipelinePhase) int {
	if len(phases) == 0 {
		return 0
	}

	var completed, running int
	for _, ph := range phases {
		switch ph.Status {
		case model.PhaseStatusCompleted:
			completed++
		case model.PhaseStatusRunning:
			running++
		}
	}

	progress := float64(completed)/PhaseCount*100 + float64(running)/PhaseCount*50
	p := int(math.Round(progress))
	if p > 100 {
		p = 100
	}
	return p
}
