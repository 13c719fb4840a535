package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/db"
	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/model"
	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations. The pipeline driver hits
// the progress updates on every simulated step.
var preparedStatements = map[string]string{
	"get_product":           `SELECT id, account_id, name, model, brand, category, status, current_phase, progress, is_pipeline_running, error_message, error_phase, retry_count, ai_confidence, created_at, updated_at FROM products WHERE account_id = $1 AND id = $2`,
	"update_phase_progress": `UPDATE pipeline_phases SET progress_percentage = $1 WHERE product_id = $2 AND phase_number = $3`,
	"get_phase":             `SELECT id, product_id, phase_number, phase_name, status, progress_percentage, started_at, completed_at, error_message FROM pipeline_phases WHERE product_id = $1 AND phase_number = $2`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems that need direct
// query access (e.g., advisory locks).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS products (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	account_id          TEXT NOT NULL,
	name                TEXT NOT NULL,
	model               TEXT NOT NULL DEFAULT '',
	brand               TEXT NOT NULL DEFAULT '',
	category            TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL DEFAULT 'uploaded',
	current_phase       INTEGER NOT NULL DEFAULT 1,
	progress            INTEGER NOT NULL DEFAULT 0,
	is_pipeline_running BOOLEAN NOT NULL DEFAULT FALSE,
	error_message       TEXT,
	error_phase         INTEGER,
	retry_count         INTEGER NOT NULL DEFAULT 0,
	ai_confidence       INTEGER NOT NULL DEFAULT 0,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_products_account_id ON products(account_id);
CREATE INDEX IF NOT EXISTS idx_products_status ON products(status);
CREATE INDEX IF NOT EXISTS idx_products_account_status ON products(account_id, status);

CREATE TABLE IF NOT EXISTS pipeline_phases (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	product_id          TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	phase_number        INTEGER NOT NULL,
	phase_name          TEXT NOT NULL,
	status              TEXT NOT NULL DEFAULT 'pending',
	progress_percentage INTEGER NOT NULL DEFAULT 0,
	started_at          TIMESTAMPTZ,
	completed_at        TIMESTAMPTZ,
	error_message       TEXT,
	UNIQUE(product_id, phase_number)
);

CREATE INDEX IF NOT EXISTS idx_pipeline_phases_product_id ON pipeline_phases(product_id);

CREATE TABLE IF NOT EXISTS market_research_data (
	product_id           TEXT PRIMARY KEY REFERENCES products(id) ON DELETE CASCADE,
	listings             JSONB NOT NULL,
	average_market_price DOUBLE PRECISION NOT NULL DEFAULT 0,
	price_min            DOUBLE PRECISION NOT NULL DEFAULT 0,
	price_max            DOUBLE PRECISION NOT NULL DEFAULT 0,
	market_demand        TEXT NOT NULL DEFAULT '',
	competitor_count     INTEGER NOT NULL DEFAULT 0,
	confidence           DOUBLE PRECISION NOT NULL DEFAULT 0,
	data_source          TEXT NOT NULL,
	warning              TEXT NOT NULL DEFAULT '',
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS seo_analysis (
	product_id       TEXT PRIMARY KEY REFERENCES products(id) ON DELETE CASCADE,
	seo_title        TEXT NOT NULL,
	meta_description TEXT NOT NULL DEFAULT '',
	keywords         JSONB NOT NULL,
	content_score    INTEGER NOT NULL DEFAULT 0,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS listings (
	product_id  TEXT PRIMARY KEY REFERENCES products(id) ON DELETE CASCADE,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	price       DOUBLE PRECISION NOT NULL DEFAULT 0,
	tags        JSONB NOT NULL,
	publishable BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS failed_runs (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	product_id     TEXT NOT NULL UNIQUE,
	account_id     TEXT NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	failed_phase   INTEGER NOT NULL DEFAULT 0,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_failed_runs_error_type ON failed_runs(error_type);
CREATE INDEX IF NOT EXISTS idx_failed_runs_next_retry ON failed_runs(next_retry_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Products

func (s *PostgresStore) CreateProduct(ctx context.Context, p model.Product) (*model.Product, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.Status = model.ProductStatusUploaded
	p.CurrentPhase = 1
	p.Progress = 0
	p.IsPipelineRunning = false
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO products (id, account_id, name, model, brand, category, status, current_phase, progress, is_pipeline_running, retry_count, ai_confidence, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		p.ID, p.AccountID, p.Name, p.Model, p.Brand, p.Category,
		string(p.Status), p.CurrentPhase, p.Progress, p.IsPipelineRunning,
		p.RetryCount, p.AIConfidence, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert product")
	}
	return &p, nil
}

func (s *PostgresStore) GetProduct(ctx context.Context, accountID, productID string) (*model.Product, error) {
	var p model.Product
	var errMsg *string
	var errPhase *int

	err := s.pool.QueryRow(ctx,
		`SELECT id, account_id, name, model, brand, category, status, current_phase, progress, is_pipeline_running, error_message, error_phase, retry_count, ai_confidence, created_at, updated_at
		 FROM products WHERE account_id = $1 AND id = $2`,
		accountID, productID,
	).Scan(&p.ID, &p.AccountID, &p.Name, &p.Model, &p.Brand, &p.Category,
		&p.Status, &p.CurrentPhase, &p.Progress, &p.IsPipelineRunning,
		&errMsg, &errPhase, &p.RetryCount, &p.AIConfidence, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get product %s", productID)
	}
	if errMsg != nil {
		p.ErrorMessage = *errMsg
	}
	if errPhase != nil {
		p.ErrorPhase = *errPhase
	}
	return &p, nil
}

func (s *PostgresStore) ListProducts(ctx context.Context, accountID string, filter ProductFilter) ([]model.Product, error) {
	query := `SELECT id, account_id, name, model, brand, category, status, current_phase, progress, is_pipeline_running, error_message, error_phase, retry_count, ai_confidence, created_at, updated_at
	          FROM products WHERE account_id = $1`
	args := []any{accountID}
	argIdx := 2

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list products")
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var p model.Product
		var errMsg *string
		var errPhase *int
		if err := rows.Scan(&p.ID, &p.AccountID, &p.Name, &p.Model, &p.Brand, &p.Category,
			&p.Status, &p.CurrentPhase, &p.Progress, &p.IsPipelineRunning,
			&errMsg, &errPhase, &p.RetryCount, &p.AIConfidence, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan product")
		}
		if errMsg != nil {
			p.ErrorMessage = *errMsg
		}
		if errPhase != nil {
			p.ErrorPhase = *errPhase
		}
		products = append(products, p)
	}
	return products, eris.Wrap(rows.Err(), "postgres: list products iterate")
}

func (s *PostgresStore) UpdateProductPipeline(ctx context.Context, accountID, productID string, upd ProductPipelineUpdate) error {
	var errMsg *string
	var errPhase *int
	if upd.ErrorMessage != "" {
		errMsg = &upd.ErrorMessage
	}
	if upd.ErrorPhase != 0 {
		errPhase = &upd.ErrorPhase
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE products
		 SET status = $1, current_phase = $2, progress = $3, is_pipeline_running = $4,
		     error_message = $5, error_phase = $6, retry_count = $7, updated_at = $8
		 WHERE account_id = $9 AND id = $10`,
		string(upd.Status), upd.CurrentPhase, upd.Progress, upd.IsPipelineRunning,
		errMsg, errPhase, upd.RetryCount, time.Now().UTC(), accountID, productID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update product pipeline %s", productID)
	}
	if tag.RowsAffected() == 0 {
		return &model.ProductNotFoundError{ProductID: productID}
	}
	return nil
}

func (s *PostgresStore) SetProductConfidence(ctx context.Context, accountID, productID string, confidence int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE products SET ai_confidence = $1, updated_at = $2 WHERE account_id = $3 AND id = $4`,
		confidence, time.Now().UTC(), accountID, productID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set product confidence %s", productID)
	}
	if tag.RowsAffected() == 0 {
		return &model.ProductNotFoundError{ProductID: productID}
	}
	return nil
}

func (s *PostgresStore) DeleteProduct(ctx context.Context, accountID, productID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM products WHERE account_id = $1 AND id = $2`,
		accountID, productID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete product %s", productID)
	}
	if tag.RowsAffected() == 0 {
		return &model.ProductNotFoundError{ProductID: productID}
	}
	return nil
}

func (s *PostgresStore) CountProductsByStatus(ctx context.Context) (map[model.ProductStatus]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM products GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count products by status")
	}
	defer rows.Close()

	counts := make(map[model.ProductStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan status count")
		}
		counts[model.ProductStatus(status)] = count
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count products iterate")
}

// Pipeline phases

func (s *PostgresStore) UpsertPhase(ctx context.Context, phase model.PipelinePhase) (*model.PipelinePhase, error) {
	if phase.ID == "" {
		phase.ID = uuid.New().String()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO pipeline_phases (id, product_id, phase_number, phase_name, status, progress_percentage, started_at, completed_at, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (product_id, phase_number) DO UPDATE SET
		   phase_name = $4, status = $5, progress_percentage = $6,
		   started_at = $7, completed_at = $8, error_message = $9`,
		phase.ID, phase.ProductID, phase.PhaseNumber, phase.PhaseName,
		string(phase.Status), phase.ProgressPercentage,
		phase.StartedAt, phase.CompletedAt, nullIfEmpty(phase.ErrorMessage),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert phase %d for product %s", phase.PhaseNumber, phase.ProductID)
	}
	return &phase, nil
}

func (s *PostgresStore) GetPhase(ctx context.Context, productID string, phaseNumber int) (*model.PipelinePhase, error) {
	var ph model.PipelinePhase
	var errMsg *string

	err := s.pool.QueryRow(ctx,
		`SELECT id, product_id, phase_number, phase_name, status, progress_percentage, started_at, completed_at, error_message
		 FROM pipeline_phases WHERE product_id = $1 AND phase_number = $2`,
		productID, phaseNumber,
	).Scan(&ph.ID, &ph.ProductID, &ph.PhaseNumber, &ph.PhaseName, &ph.Status,
		&ph.ProgressPercentage, &ph.StartedAt, &ph.CompletedAt, &errMsg)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get phase %d for product %s", phaseNumber, productID)
	}
	if errMsg != nil {
		ph.ErrorMessage = *errMsg
	}
	return &ph, nil
}

func (s *PostgresStore) ListPhases(ctx context.Context, productID string) ([]model.PipelinePhase, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, product_id, phase_number, phase_name, status, progress_percentage, started_at, completed_at, error_message
		 FROM pipeline_phases WHERE product_id = $1 ORDER BY phase_number ASC`,
		productID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list phases")
	}
	defer rows.Close()

	var phases []model.PipelinePhase
	for rows.Next() {
		var ph model.PipelinePhase
		var errMsg *string
		if err := rows.Scan(&ph.ID, &ph.ProductID, &ph.PhaseNumber, &ph.PhaseName,
			&ph.Status, &ph.ProgressPercentage, &ph.StartedAt, &ph.CompletedAt, &errMsg); err != nil {
			return nil, eris.Wrap(err, "postgres: scan phase")
		}
		if errMsg != nil {
			ph.ErrorMessage = *errMsg
		}
		phases = append(phases, ph)
	}
	return phases, eris.Wrap(rows.Err(), "postgres: list phases iterate")
}

func (s *PostgresStore) UpdatePhaseProgress(ctx context.Context, productID string, phaseNumber, progress int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_phases SET progress_percentage = $1 WHERE product_id = $2 AND phase_number = $3`,
		progress, productID, phaseNumber,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update phase progress %d for product %s", phaseNumber, productID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("phase %d not found for product %s", phaseNumber, productID)
	}
	return nil
}

func (s *PostgresStore) ResetPhases(ctx context.Context, productID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM pipeline_phases WHERE product_id = $1`,
		productID,
	)
	return eris.Wrapf(err, "postgres: reset phases for product %s", productID)
}

// Phase outputs

func (s *PostgresStore) SaveMarketResearch(ctx context.Context, rec *model.MarketResearchRecord) error {
	listingsJSON, err := json.Marshal(rec.Listings)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal listings")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO market_research_data (product_id, listings, average_market_price, price_min, price_max, market_demand, competitor_count, confidence, data_source, warning, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (product_id) DO UPDATE SET
		   listings = $2, average_market_price = $3, price_min = $4, price_max = $5,
		   market_demand = $6, competitor_count = $7, confidence = $8,
		   data_source = $9, warning = $10, updated_at = $11`,
		rec.ProductID, listingsJSON, rec.AverageMarketPrice,
		rec.PriceRange.Min, rec.PriceRange.Max, string(rec.MarketDemand),
		rec.CompetitorCount, rec.Confidence, string(rec.DataSource),
		rec.Warning, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: save market research")
}

func (s *PostgresStore) GetMarketResearch(ctx context.Context, productID string) (*model.MarketResearchRecord, error) {
	var rec model.MarketResearchRecord
	var listingsJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT product_id, listings, average_market_price, price_min, price_max, market_demand, competitor_count, confidence, data_source, warning, updated_at
		 FROM market_research_data WHERE product_id = $1`,
		productID,
	).Scan(&rec.ProductID, &listingsJSON, &rec.AverageMarketPrice,
		&rec.PriceRange.Min, &rec.PriceRange.Max, &rec.MarketDemand,
		&rec.CompetitorCount, &rec.Confidence, &rec.DataSource,
		&rec.Warning, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get market research")
	}
	if err := json.Unmarshal(listingsJSON, &rec.Listings); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal listings")
	}
	return &rec, nil
}

func (s *PostgresStore) SaveSeoAnalysis(ctx context.Context, rec *model.SeoAnalysisRecord) error {
	keywordsJSON, err := json.Marshal(rec.Keywords)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal keywords")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO seo_analysis (product_id, seo_title, meta_description, keywords, content_score, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (product_id) DO UPDATE SET
		   seo_title = $2, meta_description = $3, keywords = $4, content_score = $5, updated_at = $6`,
		rec.ProductID, rec.SeoTitle, rec.MetaDescription, keywordsJSON,
		rec.ContentScore, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: save seo analysis")
}

func (s *PostgresStore) GetSeoAnalysis(ctx context.Context, productID string) (*model.SeoAnalysisRecord, error) {
	var rec model.SeoAnalysisRecord
	var keywordsJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT product_id, seo_title, meta_description, keywords, content_score, updated_at
		 FROM seo_analysis WHERE product_id = $1`,
		productID,
	).Scan(&rec.ProductID, &rec.SeoTitle, &rec.MetaDescription,
		&keywordsJSON, &rec.ContentScore, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get seo analysis")
	}
	if err := json.Unmarshal(keywordsJSON, &rec.Keywords); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal keywords")
	}
	return &rec, nil
}

func (s *PostgresStore) SaveListing(ctx context.Context, rec *model.ListingRecord) error {
	tagsJSON, err := json.Marshal(rec.Tags)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal tags")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO listings (product_id, title, description, price, tags, publishable, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (product_id) DO UPDATE SET
		   title = $2, description = $3, price = $4, tags = $5, publishable = $6, updated_at = $7`,
		rec.ProductID, rec.Title, rec.Description, rec.Price, tagsJSON,
		rec.Publishable, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: save listing")
}

func (s *PostgresStore) GetListing(ctx context.Context, productID string) (*model.ListingRecord, error) {
	var rec model.ListingRecord
	var tagsJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT product_id, title, description, price, tags, publishable, updated_at
		 FROM listings WHERE product_id = $1`,
		productID,
	).Scan(&rec.ProductID, &rec.Title, &rec.Description, &rec.Price,
		&tagsJSON, &rec.Publishable, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get listing")
	}
	if err := json.Unmarshal(tagsJSON, &rec.Tags); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal tags")
	}
	return &rec, nil
}

// Failed runs

func (s *PostgresStore) EnqueueFailedRun(ctx context.Context, run resilience.FailedRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO failed_runs
		 (id, product_id, account_id, error, error_type, failed_phase, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (product_id) DO UPDATE SET
		   error = $4, error_type = $5, failed_phase = $6, retry_count = $7,
		   max_retries = $8, next_retry_at = $9, last_failed_at = $11`,
		run.ID, run.ProductID, run.AccountID, run.Error, run.ErrorType,
		run.FailedPhase, run.RetryCount, run.MaxRetries,
		run.NextRetryAt, run.CreatedAt, run.LastFailedAt,
	)
	return eris.Wrap(err, "postgres: enqueue failed run")
}

func (s *PostgresStore) DequeueFailedRuns(ctx context.Context, filter resilience.FailedRunFilter) ([]resilience.FailedRun, error) {
	query := `SELECT id, product_id, account_id, error, error_type, failed_phase, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM failed_runs
	          WHERE next_retry_at <= now() AND retry_count < max_retries`
	args := []any{}
	argIdx := 1

	if filter.ErrorType != "" {
		query += fmt.Sprintf(` AND error_type = $%d`, argIdx)
		args = append(args, filter.ErrorType)
		argIdx++
	}

	query += ` ORDER BY next_retry_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: dequeue failed runs")
	}
	defer rows.Close()

	var runs []resilience.FailedRun
	for rows.Next() {
		var r resilience.FailedRun
		if err := rows.Scan(&r.ID, &r.ProductID, &r.AccountID, &r.Error, &r.ErrorType,
			&r.FailedPhase, &r.RetryCount, &r.MaxRetries,
			&r.NextRetryAt, &r.CreatedAt, &r.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan failed run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: dequeue failed runs iterate")
}

func (s *PostgresStore) IncrementFailedRunRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE failed_runs
		 SET retry_count = retry_count + 1, next_retry_at = $1, error = $2, last_failed_at = now()
		 WHERE id = $3`,
		nextRetryAt, lastErr, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: increment failed run retry %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("failed_run not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) RemoveFailedRun(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM failed_runs WHERE id = $1`, id)
	return eris.Wrap(err, "postgres: remove failed run")
}

func (s *PostgresStore) CountFailedRuns(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM failed_runs`).Scan(&count)
	return count, eris.Wrap(err, "postgres: count failed runs")
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
