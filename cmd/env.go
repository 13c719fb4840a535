package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/monitoring"
	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/pipeline"
	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/research"
	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/research/provider"
	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/store"
	"github.com/sohag-chowwdhury/wisebuy-sub002/pkg/amazon"
	anthropicpkg "github.com/sohag-chowwdhury/wisebuy-sub002/pkg/anthropic"
	"github.com/sohag-chowwdhury/wisebuy-sub002/pkg/ebay"
)

// pipelineEnv holds the initialized store, clients, and pipeline driver
// shared by the serve/run/product commands.
type pipelineEnv struct {
	Store     store.Store
	Machine   *pipeline.Machine
	Driver    *pipeline.Driver
	Executor  *pipeline.PhaseExecutor
	Selector  *research.Selector
	Collector *monitoring.Collector
	Alerter   *monitoring.Alerter
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "wisebuy.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv sets up the store, marketplace providers, AI client, and pipeline
// driver. Callers should defer env.Close().
func initEnv(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate("pipeline"); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	registry := provider.NewRegistry()
	amazonClient := amazon.NewClient(cfg.Amazon.Key,
		amazon.WithBaseURL(cfg.Amazon.BaseURL),
		amazon.WithRateLimit(cfg.Amazon.RatePerSec))
	registry.Register(provider.NewAmazon(amazonClient, cfg.Amazon.Key != "", cfg.Research.MaxListingsPerPlatform))
	ebayClient := ebay.NewClient(cfg.Ebay.Key,
		ebay.WithBaseURL(cfg.Ebay.BaseURL),
		ebay.WithRateLimit(cfg.Ebay.RatePerSec))
	registry.Register(provider.NewEbay(ebayClient, cfg.Ebay.Key != "", cfg.Research.MaxListingsPerPlatform))

	var aiClient anthropicpkg.Client
	if cfg.Anthropic.Key != "" {
		aiClient = anthropicpkg.NewClient(cfg.Anthropic.Key)
	}
	estimator := research.NewEstimator(aiClient, cfg.Anthropic)
	selector := research.NewSelector(registry, estimator, cfg.Research)

	machine := pipeline.NewMachine(st)
	executor := pipeline.NewPhaseExecutor(st, selector, aiClient, cfg.Anthropic)
	driver := pipeline.NewDriver(cfg.Pipeline, st, machine, executor)

	collector := monitoring.NewCollector(st)
	alerter := monitoring.NewAlerter(cfg.Monitoring)

	return &pipelineEnv{
		Store:     st,
		Machine:   machine,
		Driver:    driver,
		Executor:  executor,
		Selector:  selector,
		Collector: collector,
		Alerter:   alerter,
	}, nil
}
