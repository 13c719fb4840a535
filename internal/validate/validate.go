// Package validate sanitizes AI-produced and user-provided product and
// market-research fields before they are persisted. The policy is "degrade
// gracefully, flag for review": placeholder-like values are nulled out with
// a warning rather than rejected, and only structurally invalid input fails.
package validate

import (
	"fmt"
	"strings"

	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/model"
)

// placeholderMarkers are substrings that indicate a field holds filler text
// rather than real product data.
var placeholderMarkers = []string{"unknown", "generic", "general", "n/a", "placeholder"}

// ProductFields is the raw product metadata submitted for cleaning.
type ProductFields struct {
	Name     string `json:"name"`
	Model    string `json:"model"`
	Brand    string `json:"brand"`
	Category string `json:"category"`
}

// Result is the outcome of a validation pass. IsValid is false only for
// structurally invalid input; placeholder detection produces warnings and a
// nulled (empty) field instead.
type Result struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ProductResult bundles a validation result with the cleaned product fields.
type ProductResult struct {
	Result
	Cleaned ProductFields `json:"cleaned_data"`
}

// ResearchResult bundles a validation result with the cleaned research record.
type ResearchResult struct {
	Result
	Cleaned model.MarketResearchRecord `json:"cleaned_data"`
}

// isPlaceholder reports whether a trimmed value looks like filler text.
func isPlaceholder(s string) bool {
	low := strings.ToLower(s)
	for _, m := range placeholderMarkers {
		if strings.Contains(low, m) {
			return true
		}
	}
	return false
}

// cleanString trims a field and nulls it out with a warning when it holds a
// placeholder. Returns the cleaned value.
func cleanString(field, value string, r *Result) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if isPlaceholder(value) {
		r.Warnings = append(r.Warnings, fmt.Sprintf("%s %q looks like a placeholder, cleared for review", field, value))
		return ""
	}
	return value
}

// CleanProduct validates and sanitizes product identification fields.
// Input missing both a name and a model is structurally invalid: there is
// nothing to research.
func CleanProduct(in ProductFields) ProductResult {
	res := ProductResult{Result: Result{IsValid: true}}

	res.Cleaned.Name = cleanString("name", in.Name, &res.Result)
	res.Cleaned.Model = cleanString("model", in.Model, &res.Result)
	res.Cleaned.Brand = cleanString("brand", in.Brand, &res.Result)
	res.Cleaned.Category = cleanString("category", in.Category, &res.Result)

	if res.Cleaned.Name == "" && res.Cleaned.Model == "" {
		res.IsValid = false
		res.Errors = append(res.Errors, "product requires at least a name or a model")
	}

	return res
}

// CleanResearch sanitizes an acquired market research record. Out-of-range
// numeric values are clamped or zeroed with a warning; an unrecognized demand
// level is dropped. The record is never rejected outright since a degraded
// record is still useful for review.
func CleanResearch(rec model.MarketResearchRecord) ResearchResult {
	res := ResearchResult{Result: Result{IsValid: true}, Cleaned: rec}

	if rec.AverageMarketPrice < 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("negative average price %.2f zeroed", rec.AverageMarketPrice))
		res.Cleaned.AverageMarketPrice = 0
	}
	if rec.PriceRange.Min < 0 || rec.PriceRange.Max < rec.PriceRange.Min {
		res.Warnings = append(res.Warnings, "inconsistent price range cleared")
		res.Cleaned.PriceRange = model.PriceRange{}
	}
	if rec.CompetitorCount < 0 {
		res.Warnings = append(res.Warnings, "negative competitor count zeroed")
		res.Cleaned.CompetitorCount = 0
	}
	if rec.Confidence < 0 || rec.Confidence > 1 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("confidence %.2f outside [0,1], clamped", rec.Confidence))
		if rec.Confidence < 0 {
			res.Cleaned.Confidence = 0
		} else {
			res.Cleaned.Confidence = 1
		}
	}
	switch rec.MarketDemand {
	case model.DemandLow, model.DemandMedium, model.DemandHigh, "":
	default:
		res.Warnings = append(res.Warnings, fmt.Sprintf("unrecognized market demand %q dropped", rec.MarketDemand))
		res.Cleaned.MarketDemand = ""
	}

	// Listings with non-positive prices are estimation noise. The cleaned
	// record gets its own map; the caller's record is never mutated.
	if rec.Listings != nil {
		res.Cleaned.Listings = make(map[string][]model.PlatformListing, len(rec.Listings))
		for platform, listings := range rec.Listings {
			kept := listings[:0:0]
			for _, l := range listings {
				if l.Price <= 0 {
					res.Warnings = append(res.Warnings, fmt.Sprintf("%s listing with non-positive price dropped", platform))
					continue
				}
				kept = append(kept, l)
			}
			res.Cleaned.Listings[platform] = kept
		}
	}

	return res
}

// NeedsManualReview decides whether a validated record should be routed to a
// human: validation failed, warnings piled up, or the AI itself was unsure.
func NeedsManualReview(r Result, aiConfidence int) bool {
	if !r.IsValid {
		return true
	}
	if len(r.Warnings) >= 5 {
		return true
	}
	return aiConfidence < 50
}
