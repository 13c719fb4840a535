package model

import "time"

// DataSource tags the provenance of acquired market data. Downstream phases
// and callers must never conflate verified marketplace results with
// AI-estimated ones.
type DataSource string

const (
	// DataSourceReal means the listings came from verified marketplace APIs.
	DataSourceReal DataSource = "real"
	// DataSourceFake means the listings were AI-estimated. Returned URLs are
	// not guaranteed to resolve.
	DataSourceFake DataSource = "fake"
)

// DemandLevel is the market demand bucket supplied by the acquisition source.
// It is passed through as-is, never recomputed.
type DemandLevel string

const (
	DemandLow    DemandLevel = "low"
	DemandMedium DemandLevel = "medium"
	DemandHigh   DemandLevel = "high"
)

// PlatformListing is a single marketplace listing collected for a product.
type PlatformListing struct {
	Platform  string  `json:"platform"`
	Title     string  `json:"title,omitempty"`
	Price     float64 `json:"price"`
	URL       string  `json:"url,omitempty"`
	Condition string  `json:"condition,omitempty"`
	Rating    float64 `json:"rating,omitempty"`
	Verified  bool    `json:"verified"`
}

// PriceRange is the min/max over all collected listing prices.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// MarketResearchRecord holds acquired marketplace data for a product, one
// row per product (upsert by product_id).
type MarketResearchRecord struct {
	ProductID          string                       `json:"product_id"`
	Listings           map[string][]PlatformListing `json:"listings"` // keyed by platform; nil slice = platform yielded nothing
	AverageMarketPrice float64                      `json:"average_market_price"`
	PriceRange         PriceRange                   `json:"price_range"`
	MarketDemand       DemandLevel                  `json:"market_demand"`
	CompetitorCount    int                          `json:"competitor_count"`
	Confidence         float64                      `json:"confidence"` // 0.0-1.0
	DataSource         DataSource                   `json:"data_source"`
	Warning            string                       `json:"warning,omitempty"`
	UpdatedAt          time.Time                    `json:"updated_at"`
}

// AllListings flattens the per-platform listings into a single slice.
func (r *MarketResearchRecord) AllListings() []PlatformListing {
	var all []PlatformListing
	for _, ls := range r.Listings {
		all = append(all, ls...)
	}
	return all
}
