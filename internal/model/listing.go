package model

import "time"

// SeoAnalysisRecord is the phase 3 output: generated SEO content for a
// product, upserted by product_id.
type SeoAnalysisRecord struct {
	ProductID       string    `json:"product_id"`
	SeoTitle        string    `json:"seo_title"`
	MetaDescription string    `json:"meta_description"`
	Keywords        []string  `json:"keywords"`
	ContentScore    int       `json:"content_score"` // 0-100
	UpdatedAt       time.Time `json:"updated_at"`
}

// ListingRecord is the phase 4 output: the publishable listing content
// assembled from the product, market research, and SEO analysis.
type ListingRecord struct {
	ProductID   string    `json:"product_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Tags        []string  `json:"tags"`
	Publishable bool      `json:"publishable"`
	UpdatedAt   time.Time `json:"updated_at"`
}
