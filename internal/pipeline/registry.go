// Package pipeline implements the four-phase product enrichment pipeline:
// the static phase registry, the progress calculator, the per-product state
// machine, and the background driver that sequences phases end to end.
package pipeline

import "github.com/sohag-chowwdhury/wisebuy-sub002/internal/model"

// Phase numbers. Execution is strictly sequential from analysis to listing.
const (
	PhaseProductAnalysis = 1
	PhaseMarketResearch  = 2
	PhaseSeoAnalysis     = 3
	PhaseListing         = 4

	// PhaseCount is the fixed number of pipeline phases.
	PhaseCount = 4
)

var phaseNames = map[int]string{
	PhaseProductAnalysis: "Product Analysis",
	PhaseMarketResearch:  "Market Research",
	PhaseSeoAnalysis:     "SEO Analysis",
	PhaseListing:         "Listing Generation",
}

// PhaseName returns the display name for a phase number, or "" when the
// number is out of range.
func PhaseName(n int) string {
	return phaseNames[n]
}

// ValidatePhase checks that n is a known phase number.
func ValidatePhase(n int) error {
	if n < PhaseProductAnalysis || n > PhaseListing {
		return &model.InvalidPhaseError{Phase: n}
	}
	return nil
}
