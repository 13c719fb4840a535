package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/model"
	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/store"
)

// MetricsSnapshot holds a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	// Product counts by status.
	ProductsTotal      int `json:"products_total"`
	ProductsUploaded   int `json:"products_uploaded"`
	ProductsProcessing int `json:"products_processing"`
	ProductsPaused     int `json:"products_paused"`
	ProductsError      int `json:"products_error"`
	ProductsCompleted  int `json:"products_completed"`
	ProductsPublished  int `json:"products_published"`

	// FailRate is errored over finished (completed + published + errored).
	FailRate float64 `json:"fail_rate"`

	// DLQDepth is the number of failed runs awaiting retry.
	DLQDepth int `json:"dlq_depth"`

	CollectedAt time.Time `json:"collected_at"`
}

// Collector gathers metrics from the store.
type Collector struct {
	store store.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of pipeline metrics.
func (c *Collector) Collect(ctx context.Context) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		CollectedAt: time.Now().UTC(),
	}

	counts, err := c.store.CountProductsByStatus(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count products")
	}

	snap.ProductsUploaded = counts[model.ProductStatusUploaded]
	snap.ProductsProcessing = counts[model.ProductStatusProcessing]
	snap.ProductsPaused = counts[model.ProductStatusPaused]
	snap.ProductsError = counts[model.ProductStatusError]
	snap.ProductsCompleted = counts[model.ProductStatusCompleted]
	snap.ProductsPublished = counts[model.ProductStatusPublished]
	for _, n := range counts {
		snap.ProductsTotal += n
	}

	finished := snap.ProductsCompleted + snap.ProductsPublished + snap.ProductsError
	if finished > 0 {
		snap.FailRate = float64(snap.ProductsError) / float64(finished)
	}

	dlqDepth, err := c.store.CountFailedRuns(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count failed runs")
	}
	snap.DLQDepth = dlqDepth

	return snap, nil
}
