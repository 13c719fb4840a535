package model

import "time"

// ProductStatus represents the lifecycle state of a product listing.
type ProductStatus string

const (
	ProductStatusUploaded   ProductStatus = "uploaded"
	ProductStatusProcessing ProductStatus = "processing"
	ProductStatusPaused     ProductStatus = "paused"
	ProductStatusError      ProductStatus = "error"
	ProductStatusCompleted  ProductStatus = "completed"
	ProductStatusPublished  ProductStatus = "published"
)

// Valid reports whether s is a known product status.
func (s ProductStatus) Valid() bool {
	switch s {
	case ProductStatusUploaded, ProductStatusProcessing, ProductStatusPaused,
		ProductStatusError, ProductStatusCompleted, ProductStatusPublished:
		return true
	}
	return false
}

// Product is a single submitted product moving through the enrichment pipeline.
// Every product is owned by exactly one account; accountID is always passed
// explicitly, never derived from ambient state.
type Product struct {
	ID                string        `json:"id"`
	AccountID         string        `json:"account_id"`
	Name              string        `json:"name"`
	Model             string        `json:"model,omitempty"`
	Brand             string        `json:"brand,omitempty"`
	Category          string        `json:"category,omitempty"`
	Status            ProductStatus `json:"status"`
	CurrentPhase      int           `json:"current_phase"`
	Progress          int           `json:"progress"`
	IsPipelineRunning bool          `json:"is_pipeline_running"`
	ErrorMessage      string        `json:"error_message,omitempty"`
	ErrorPhase        int           `json:"error_phase,omitempty"`
	RetryCount        int           `json:"retry_count"`
	AIConfidence      int           `json:"ai_confidence"` // 0-100
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// SearchAttributes extracts the attributes used for marketplace lookups.
func (p *Product) SearchAttributes() SearchQuery {
	return SearchQuery{
		Name:     p.Name,
		Model:    p.Model,
		Brand:    p.Brand,
		Category: p.Category,
	}
}

// SearchQuery holds the product attributes that drive market data acquisition.
type SearchQuery struct {
	Name     string `json:"name"`
	Model    string `json:"model,omitempty"`
	Brand    string `json:"brand,omitempty"`
	Category string `json:"category,omitempty"`
}

// Term builds a single search string from the populated attributes.
func (q SearchQuery) Term() string {
	term := q.Name
	if q.Brand != "" && q.Brand != q.Name {
		term = q.Brand + " " + term
	}
	if q.Model != "" {
		term += " " + q.Model
	}
	return term
}
