package store

import (
	"context"
	"time"

	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/model"
	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/resilience"
)

// ProductFilter specifies criteria for listing products within an account.
type ProductFilter struct {
	Status model.ProductStatus `json:"status,omitempty"`
	Limit  int                 `json:"limit,omitempty"`
	Offset int                 `json:"offset,omitempty"`
}

// ProductPipelineUpdate is the full set of pipeline columns written on a
// product row in one statement. The state machine computes the complete
// desired state and writes it wholesale; there are no partial field maps.
type ProductPipelineUpdate struct {
	Status            model.ProductStatus `json:"status"`
	CurrentPhase      int                 `json:"current_phase"`
	Progress          int                 `json:"progress"`
	IsPipelineRunning bool                `json:"is_pipeline_running"`
	ErrorMessage      string              `json:"error_message,omitempty"` // empty clears the column
	ErrorPhase        int                 `json:"error_phase,omitempty"`   // zero clears the column
	RetryCount        int                 `json:"retry_count"`
}

// Store defines the persistence interface for the enrichment pipeline.
// Every product operation takes the owning accountID explicitly; a mismatch
// behaves exactly like a missing row.
type Store interface {
	// Products
	CreateProduct(ctx context.Context, p model.Product) (*model.Product, error)
	GetProduct(ctx context.Context, accountID, productID string) (*model.Product, error)
	ListProducts(ctx context.Context, accountID string, filter ProductFilter) ([]model.Product, error)
	UpdateProductPipeline(ctx context.Context, accountID, productID string, upd ProductPipelineUpdate) error
	SetProductConfidence(ctx context.Context, accountID, productID string, confidence int) error
	DeleteProduct(ctx context.Context, accountID, productID string) error
	CountProductsByStatus(ctx context.Context) (map[model.ProductStatus]int, error)

	// Pipeline phases, one row per (product_id, phase_number)
	UpsertPhase(ctx context.Context, phase model.PipelinePhase) (*model.PipelinePhase, error)
	GetPhase(ctx context.Context, productID string, phaseNumber int) (*model.PipelinePhase, error)
	ListPhases(ctx context.Context, productID string) ([]model.PipelinePhase, error)
	UpdatePhaseProgress(ctx context.Context, productID string, phaseNumber, progress int) error
	ResetPhases(ctx context.Context, productID string) error

	// Phase outputs, upserted by product_id
	SaveMarketResearch(ctx context.Context, rec *model.MarketResearchRecord) error
	GetMarketResearch(ctx context.Context, productID string) (*model.MarketResearchRecord, error)
	SaveSeoAnalysis(ctx context.Context, rec *model.SeoAnalysisRecord) error
	GetSeoAnalysis(ctx context.Context, productID string) (*model.SeoAnalysisRecord, error)
	SaveListing(ctx context.Context, rec *model.ListingRecord) error
	GetListing(ctx context.Context, productID string) (*model.ListingRecord, error)

	// Failed runs
	EnqueueFailedRun(ctx context.Context, run resilience.FailedRun) error
	DequeueFailedRuns(ctx context.Context, filter resilience.FailedRunFilter) ([]resilience.FailedRun, error)
	IncrementFailedRunRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	RemoveFailedRun(ctx context.Context, id string) error
	CountFailedRuns(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
