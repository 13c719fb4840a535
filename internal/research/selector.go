// Package research implements phase 2 market data acquisition: a policy
// selector that queries verified marketplace providers when credentials are
// available and falls back to AI estimation when they are not, tagging every
// record with its provenance.
package research

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/config"
	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/model"
	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/research/provider"
	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/resilience"
)

// Selector decides between the real-API path and the AI-estimation path and
// produces a MarketResearchRecord with honest provenance. It never persists
// anything itself; the pipeline driver owns the write, which keeps the
// no-partial-overwrite rule in one place.
type Selector struct {
	registry  *provider.Registry
	estimator Estimator
	cfg       config.ResearchConfig
	retry     resilience.RetryConfig

	mu       sync.Mutex
	breakers map[string]*resilience.CircuitBreaker
}

// realPathConfidence is reported for verified marketplace results. They are
// independently verifiable, so confidence is fixed rather than model-reported.
const realPathConfidence = 0.95

// NewSelector wires the acquisition selector. estimator may be nil when no
// Anthropic key is configured; the AI path is then unavailable.
func NewSelector(registry *provider.Registry, estimator Estimator, cfg config.ResearchConfig) *Selector {
	retry := resilience.DefaultRetryConfig()
	if cfg.RetryAttempts > 0 {
		retry = retry.WithAttempts(cfg.RetryAttempts)
	}
	return &Selector{
		registry:  registry,
		estimator: estimator,
		cfg:       cfg,
		retry:     retry,
		breakers:  make(map[string]*resilience.CircuitBreaker),
	}
}

// AcquireMarketData produces market data for the product's search attributes.
// When every configured acquisition path fails it returns
// *model.ResearchUnavailableError; callers must leave any previously
// persisted record untouched in that case.
func (s *Selector) AcquireMarketData(ctx context.Context, query model.SearchQuery) (*model.MarketResearchRecord, error) {
	if s.registry != nil && s.registry.AnyConfigured() {
		return s.acquireReal(ctx, query)
	}
	return s.acquireEstimated(ctx, query)
}

// platformResult carries one provider's outcome back to the aggregator.
type platformResult struct {
	platform string
	listings []model.PlatformListing
	err      error
}

func (s *Selector) acquireReal(ctx context.Context, query model.SearchQuery) (*model.MarketResearchRecord, error) {
	providers := s.configuredProviders()

	results := make([]platformResult, len(providers))

	g, gctx := errgroup.WithContext(ctx)
	if s.cfg.MaxConcurrentCalls > 0 {
		g.SetLimit(s.cfg.MaxConcurrentCalls)
	}

	for i, p := range providers {
		g.Go(func() error {
			listings, err := s.searchPlatform(gctx, p, query)
			results[i] = platformResult{platform: p.Platform(), listings: listings, err: err}
			// Platform failures never abort the other platforms.
			return nil
		})
	}
	_ = g.Wait()

	rec := &model.MarketResearchRecord{
		Listings:   make(map[string][]model.PlatformListing, len(providers)),
		DataSource: model.DataSourceReal,
		Confidence: realPathConfidence,
	}

	var errs []error
	for _, res := range results {
		if res.err != nil {
			zap.L().Warn("research: platform search failed",
				zap.String("platform", res.platform),
				zap.Error(res.err))
			errs = append(errs, eris.Wrapf(res.err, "research: %s search", res.platform))
			rec.Listings[res.platform] = nil
			continue
		}
		rec.Listings[res.platform] = res.listings
	}

	all := rec.AllListings()
	if len(all) == 0 {
		if len(errs) == 0 {
			errs = append(errs, eris.New("research: all platforms returned zero listings"))
		}
		return nil, &model.ResearchUnavailableError{Errs: errs}
	}

	rec.CompetitorCount = len(all)
	rec.MarketDemand = demandFromCompetitors(rec.CompetitorCount)
	aggregatePrices(rec)

	zap.L().Info("research: acquired verified market data",
		zap.String("query", query.Term()),
		zap.Int("listings", len(all)),
		zap.Float64("average_price", rec.AverageMarketPrice))

	return rec, nil
}

func (s *Selector) acquireEstimated(ctx context.Context, query model.SearchQuery) (*model.MarketResearchRecord, error) {
	if s.estimator == nil {
		return nil, &model.ResearchUnavailableError{Errs: []error{
			eris.New("research: no marketplace credentials and no AI estimator configured"),
		}}
	}

	rec, err := resilience.DoVal(ctx, s.retryFor("anthropic", "estimate"),
		func(ctx context.Context) (*model.MarketResearchRecord, error) {
			return s.estimator.Estimate(ctx, query)
		})
	if err != nil {
		return nil, &model.ResearchUnavailableError{Errs: []error{
			eris.Wrap(err, "research: AI estimation"),
		}}
	}

	aggregatePrices(rec)
	if rec.CompetitorCount == 0 {
		rec.CompetitorCount = len(rec.AllListings())
	}

	zap.L().Info("research: acquired AI-estimated market data",
		zap.String("query", query.Term()),
		zap.Int("listings", len(rec.AllListings())),
		zap.Float64("confidence", rec.Confidence))

	return rec, nil
}

// searchPlatform runs one provider query behind its circuit breaker and a
// bounded retry. Transient errors retry, permanent ones surface immediately.
func (s *Selector) searchPlatform(ctx context.Context, p provider.Provider, query model.SearchQuery) ([]model.PlatformListing, error) {
	breaker := s.breakerFor(p.Platform())

	var listings []model.PlatformListing
	err := breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		listings, err = resilience.DoVal(ctx, s.retryFor(p.Platform(), "search"),
			func(ctx context.Context) ([]model.PlatformListing, error) {
				return p.Search(ctx, query)
			})
		return err
	})
	if err != nil {
		return nil, err
	}
	return listings, nil
}

func (s *Selector) configuredProviders() []provider.Provider {
	var out []provider.Provider
	for _, p := range s.registry.List() {
		if p.Configured() {
			out = append(out, p)
		}
	}
	return out
}

func (s *Selector) breakerFor(platform string) *resilience.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.breakers[platform]
	if !ok {
		cb = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			OnStateChange: func(from, to resilience.CircuitState) {
				zap.L().Warn("research: circuit state change",
					zap.String("platform", platform),
					zap.Stringer("from", from),
					zap.Stringer("to", to))
			},
		})
		s.breakers[platform] = cb
	}
	return cb
}

func (s *Selector) retryFor(platform, operation string) resilience.RetryConfig {
	cfg := s.retry
	cfg.OnRetry = resilience.RetryLogger(platform, operation)
	return cfg
}

// demandFromCompetitors is the API-path demand heuristic: more concurrent
// listings means a more active market.
func demandFromCompetitors(n int) model.DemandLevel {
	switch {
	case n >= 10:
		return model.DemandHigh
	case n >= 4:
		return model.DemandMedium
	default:
		return model.DemandLow
	}
}

// aggregatePrices fills AverageMarketPrice and PriceRange from the record's
// listings. Average is rounded to 2 decimals.
func aggregatePrices(rec *model.MarketResearchRecord) {
	all := rec.AllListings()
	if len(all) == 0 {
		return
	}

	sum := 0.0
	min := all[0].Price
	max := all[0].Price
	for _, l := range all {
		sum += l.Price
		if l.Price < min {
			min = l.Price
		}
		if l.Price > max {
			max = l.Price
		}
	}

	rec.AverageMarketPrice = math.Round(sum/float64(len(all))*100) / 100
	rec.PriceRange = model.PriceRange{Min: min, Max: max}
	rec.UpdatedAt = time.Now().UTC()
}
