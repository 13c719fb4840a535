package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/model"
	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs local
// development and single-machine deployments where Postgres is unavailable.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS products (
	id                  TEXT PRIMARY KEY,
	account_id          TEXT NOT NULL,
	name                TEXT NOT NULL,
	model               TEXT NOT NULL DEFAULT '',
	brand               TEXT NOT NULL DEFAULT '',
	category            TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL DEFAULT 'uploaded',
	current_phase       INTEGER NOT NULL DEFAULT 1,
	progress            INTEGER NOT NULL DEFAULT 0,
	is_pipeline_running INTEGER NOT NULL DEFAULT 0,
	error_message       TEXT,
	error_phase         INTEGER,
	retry_count         INTEGER NOT NULL DEFAULT 0,
	ai_confidence       INTEGER NOT NULL DEFAULT 0,
	created_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_products_account_id ON products(account_id);
CREATE INDEX IF NOT EXISTS idx_products_status ON products(status);

CREATE TABLE IF NOT EXISTS pipeline_phases (
	id                  TEXT PRIMARY KEY,
	product_id          TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	phase_number        INTEGER NOT NULL,
	phase_name          TEXT NOT NULL,
	status              TEXT NOT NULL DEFAULT 'pending',
	progress_percentage INTEGER NOT NULL DEFAULT 0,
	started_at          DATETIME,
	completed_at        DATETIME,
	error_message       TEXT,
	UNIQUE(product_id, phase_number)
);

CREATE INDEX IF NOT EXISTS idx_pipeline_phases_product_id ON pipeline_phases(product_id);

CREATE TABLE IF NOT EXISTS market_research_data (
	product_id           TEXT PRIMARY KEY REFERENCES products(id) ON DELETE CASCADE,
	listings             TEXT NOT NULL,
	average_market_price REAL NOT NULL DEFAULT 0,
	price_min            REAL NOT NULL DEFAULT 0,
	price_max            REAL NOT NULL DEFAULT 0,
	market_demand        TEXT NOT NULL DEFAULT '',
	competitor_count     INTEGER NOT NULL DEFAULT 0,
	confidence           REAL NOT NULL DEFAULT 0,
	data_source          TEXT NOT NULL,
	warning              TEXT NOT NULL DEFAULT '',
	updated_at           DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS seo_analysis (
	product_id       TEXT PRIMARY KEY REFERENCES products(id) ON DELETE CASCADE,
	seo_title        TEXT NOT NULL,
	meta_description TEXT NOT NULL DEFAULT '',
	keywords         TEXT NOT NULL,
	content_score    INTEGER NOT NULL DEFAULT 0,
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS listings (
	product_id  TEXT PRIMARY KEY REFERENCES products(id) ON DELETE CASCADE,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	price       REAL NOT NULL DEFAULT 0,
	tags        TEXT NOT NULL,
	publishable INTEGER NOT NULL DEFAULT 0,
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS failed_runs (
	id             TEXT PRIMARY KEY,
	product_id     TEXT NOT NULL UNIQUE,
	account_id     TEXT NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	failed_phase   INTEGER NOT NULL DEFAULT 0,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  DATETIME NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	last_failed_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_failed_runs_next_retry ON failed_runs(next_retry_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

// Products

func (s *SQLiteStore) CreateProduct(ctx context.Context, p model.Product) (*model.Product, error) {
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

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO products (id, account_id, name, model, brand, category, status, current_phase, progress, is_pipeline_running, retry_count, ai_confidence, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.AccountID, p.Name, p.Model, p.Brand, p.Category,
		string(p.Status), p.CurrentPhase, p.Progress, p.IsPipelineRunning,
		p.RetryCount, p.AIConfidence, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert product")
	}
	return &p, nil
}

const productColumns = `id, account_id, name, model, brand, category, status, current_phase, progress, is_pipeline_running, error_message, error_phase, retry_count, ai_confidence, created_at, updated_at`

func scanProduct(row *sql.Row) (*model.Product, error) {
	var p model.Product
	var errMsg sql.NullString
	var errPhase sql.NullInt64

	err := row.Scan(&p.ID, &p.AccountID, &p.Name, &p.Model, &p.Brand, &p.Category,
		&p.Status, &p.CurrentPhase, &p.Progress, &p.IsPipelineRunning,
		&errMsg, &errPhase, &p.RetryCount, &p.AIConfidence, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.ErrorMessage = errMsg.String
	p.ErrorPhase = int(errPhase.Int64)
	return &p, nil
}

func (s *SQLiteStore) GetProduct(ctx context.Context, accountID, productID string) (*model.Product, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE account_id = ? AND id = ?`,
		accountID, productID,
	)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get product %s", productID)
	}
	return p, nil
}

func (s *SQLiteStore) ListProducts(ctx context.Context, accountID string, filter ProductFilter) ([]model.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE account_id = ?`
	args := []any{accountID}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list products")
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var p model.Product
		var errMsg sql.NullString
		var errPhase sql.NullInt64
		if err := rows.Scan(&p.ID, &p.AccountID, &p.Name, &p.Model, &p.Brand, &p.Category,
			&p.Status, &p.CurrentPhase, &p.Progress, &p.IsPipelineRunning,
			&errMsg, &errPhase, &p.RetryCount, &p.AIConfidence, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan product")
		}
		p.ErrorMessage = errMsg.String
		p.ErrorPhase = int(errPhase.Int64)
		products = append(products, p)
	}
	return products, eris.Wrap(rows.Err(), "sqlite: list products iterate")
}

func (s *SQLiteStore) UpdateProductPipeline(ctx context.Context, accountID, productID string, upd ProductPipelineUpdate) error {
	var errMsg any
	var errPhase any
	if upd.ErrorMessage != "" {
		errMsg = upd.ErrorMessage
	}
	if upd.ErrorPhase != 0 {
		errPhase = upd.ErrorPhase
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE products
		 SET status = ?, current_phase = ?, progress = ?, is_pipeline_running = ?,
		     error_message = ?, error_phase = ?, retry_count = ?, updated_at = ?
		 WHERE account_id = ? AND id = ?`,
		string(upd.Status), upd.CurrentPhase, upd.Progress, upd.IsPipelineRunning,
		errMsg, errPhase, upd.RetryCount, time.Now().UTC(), accountID, productID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update product pipeline %s", productID)
	}
	return checkProductAffected(res, productID)
}

func (s *SQLiteStore) SetProductConfidence(ctx context.Context, accountID, productID string, confidence int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET ai_confidence = ?, updated_at = ? WHERE account_id = ? AND id = ?`,
		confidence, time.Now().UTC(), accountID, productID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set product confidence %s", productID)
	}
	return checkProductAffected(res, productID)
}

func (s *SQLiteStore) DeleteProduct(ctx context.Context, accountID, productID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM products WHERE account_id = ? AND id = ?`,
		accountID, productID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete product %s", productID)
	}
	return checkProductAffected(res, productID)
}

func (s *SQLiteStore) CountProductsByStatus(ctx context.Context) (map[model.ProductStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM products GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count products by status")
	}
	defer rows.Close()

	counts := make(map[model.ProductStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan status count")
		}
		counts[model.ProductStatus(status)] = count
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count products iterate")
}

// Pipeline phases

func (s *SQLiteStore) UpsertPhase(ctx context.Context, phase model.PipelinePhase) (*model.PipelinePhase, error) {
	if phase.ID == "" {
		phase.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_phases (id, product_id, phase_number, phase_name, status, progress_percentage, started_at, completed_at, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (product_id, phase_number) DO UPDATE SET
		   phase_name = excluded.phase_name, status = excluded.status,
		   progress_percentage = excluded.progress_percentage,
		   started_at = excluded.started_at, completed_at = excluded.completed_at,
		   error_message = excluded.error_message`,
		phase.ID, phase.ProductID, phase.PhaseNumber, phase.PhaseName,
		string(phase.Status), phase.ProgressPercentage,
		phase.StartedAt, phase.CompletedAt, nullIfEmpty(phase.ErrorMessage),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert phase %d for product %s", phase.PhaseNumber, phase.ProductID)
	}
	return &phase, nil
}

func (s *SQLiteStore) GetPhase(ctx context.Context, productID string, phaseNumber int) (*model.PipelinePhase, error) {
	var ph model.PipelinePhase
	var errMsg sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT id, product_id, phase_number, phase_name, status, progress_percentage, started_at, completed_at, error_message
		 FROM pipeline_phases WHERE product_id = ? AND phase_number = ?`,
		productID, phaseNumber,
	).Scan(&ph.ID, &ph.ProductID, &ph.PhaseNumber, &ph.PhaseName, &ph.Status,
		&ph.ProgressPercentage, &ph.StartedAt, &ph.CompletedAt, &errMsg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get phase %d for product %s", phaseNumber, productID)
	}
	ph.ErrorMessage = errMsg.String
	return &ph, nil
}

func (s *SQLiteStore) ListPhases(ctx context.Context, productID string) ([]model.PipelinePhase, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, product_id, phase_number, phase_name, status, progress_percentage, started_at, completed_at, error_message
		 FROM pipeline_phases WHERE product_id = ? ORDER BY phase_number ASC`,
		productID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list phases")
	}
	defer rows.Close()

	var phases []model.PipelinePhase
	for rows.Next() {
		var ph model.PipelinePhase
		var errMsg sql.NullString
		if err := rows.Scan(&ph.ID, &ph.ProductID, &ph.PhaseNumber, &ph.PhaseName,
			&ph.Status, &ph.ProgressPercentage, &ph.StartedAt, &ph.CompletedAt, &errMsg); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan phase")
		}
		ph.ErrorMessage = errMsg.String
		phases = append(phases, ph)
	}
	return phases, eris.Wrap(rows.Err(), "sqlite: list phases iterate")
}

func (s *SQLiteStore) UpdatePhaseProgress(ctx context.Context, productID string, phaseNumber, progress int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_phases SET progress_percentage = ? WHERE product_id = ? AND phase_number = ?`,
		progress, productID, phaseNumber,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update phase progress %d for product %s", phaseNumber, productID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("phase %d not found for product %s", phaseNumber, productID)
	}
	return nil
}

func (s *SQLiteStore) ResetPhases(ctx context.Context, productID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM pipeline_phases WHERE product_id = ?`,
		productID,
	)
	return eris.Wrapf(err, "sqlite: reset phases for product %s", productID)
}

// Phase outputs

func (s *SQLiteStore) SaveMarketResearch(ctx context.Context, rec *model.MarketResearchRecord) error {
	listingsJSON, err := json.Marshal(rec.Listings)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal listings")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO market_research_data (product_id, listings, average_market_price, price_min, price_max, market_demand, competitor_count, confidence, data_source, warning, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (product_id) DO UPDATE SET
		   listings = excluded.listings, average_market_price = excluded.average_market_price,
		   price_min = excluded.price_min, price_max = excluded.price_max,
		   market_demand = excluded.market_demand, competitor_count = excluded.competitor_count,
		   confidence = excluded.confidence, data_source = excluded.data_source,
		   warning = excluded.warning, updated_at = excluded.updated_at`,
		rec.ProductID, string(listingsJSON), rec.AverageMarketPrice,
		rec.PriceRange.Min, rec.PriceRange.Max, string(rec.MarketDemand),
		rec.CompetitorCount, rec.Confidence, string(rec.DataSource),
		rec.Warning, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: save market research")
}

func (s *SQLiteStore) GetMarketResearch(ctx context.Context, productID string) (*model.MarketResearchRecord, error) {
	var rec model.MarketResearchRecord
	var listingsJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT product_id, listings, average_market_price, price_min, price_max, market_demand, competitor_count, confidence, data_source, warning, updated_at
		 FROM market_research_data WHERE product_id = ?`,
		productID,
	).Scan(&rec.ProductID, &listingsJSON, &rec.AverageMarketPrice,
		&rec.PriceRange.Min, &rec.PriceRange.Max, &rec.MarketDemand,
		&rec.CompetitorCount, &rec.Confidence, &rec.DataSource,
		&rec.Warning, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get market research")
	}
	if err := json.Unmarshal([]byte(listingsJSON), &rec.Listings); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal listings")
	}
	return &rec, nil
}

func (s *SQLiteStore) SaveSeoAnalysis(ctx context.Context, rec *model.SeoAnalysisRecord) error {
	keywordsJSON, err := json.Marshal(rec.Keywords)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal keywords")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO seo_analysis (product_id, seo_title, meta_description, keywords, content_score, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (product_id) DO UPDATE SET
		   seo_title = excluded.seo_title, meta_description = excluded.meta_description,
		   keywords = excluded.keywords, content_score = excluded.content_score,
		   updated_at = excluded.updated_at`,
		rec.ProductID, rec.SeoTitle, rec.MetaDescription, string(keywordsJSON),
		rec.ContentScore, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: save seo analysis")
}

func (s *SQLiteStore) GetSeoAnalysis(ctx context.Context, productID string) (*model.SeoAnalysisRecord, error) {
	var rec model.SeoAnalysisRecord
	var keywordsJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT product_id, seo_title, meta_description, keywords, content_score, updated_at
		 FROM seo_analysis WHERE product_id = ?`,
		productID,
	).Scan(&rec.ProductID, &rec.SeoTitle, &rec.MetaDescription,
		&keywordsJSON, &rec.ContentScore, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get seo analysis")
	}
	if err := json.Unmarshal([]byte(keywordsJSON), &rec.Keywords); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal keywords")
	}
	return &rec, nil
}

func (s *SQLiteStore) SaveListing(ctx context.Context, rec *model.ListingRecord) error {
	tagsJSON, err := json.Marshal(rec.Tags)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal tags")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO listings (product_id, title, description, price, tags, publishable, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (product_id) DO UPDATE SET
		   title = excluded.title, description = excluded.description,
		   price = excluded.price, tags = excluded.tags,
		   publishable = excluded.publishable, updated_at = excluded.updated_at`,
		rec.ProductID, rec.Title, rec.Description, rec.Price, string(tagsJSON),
		rec.Publishable, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: save listing")
}

func (s *SQLiteStore) GetListing(ctx context.Context, productID string) (*model.ListingRecord, error) {
	var rec model.ListingRecord
	var tagsJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT product_id, title, description, price, tags, publishable, updated_at
		 FROM listings WHERE product_id = ?`,
		productID,
	).Scan(&rec.ProductID, &rec.Title, &rec.Description, &rec.Price,
		&tagsJSON, &rec.Publishable, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get listing")
	}
	if err := json.Unmarshal([]byte(tagsJSON), &rec.Tags); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal tags")
	}
	return &rec, nil
}

// Failed runs

func (s *SQLiteStore) EnqueueFailedRun(ctx context.Context, run resilience.FailedRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO failed_runs
		 (id, product_id, account_id, error, error_type, failed_phase, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (product_id) DO UPDATE SET
		   error = excluded.error, error_type = excluded.error_type,
		   failed_phase = excluded.failed_phase, retry_count = excluded.retry_count,
		   max_retries = excluded.max_retries,
		   next_retry_at = excluded.next_retry_at, last_failed_at = excluded.last_failed_at`,
		run.ID, run.ProductID, run.AccountID, run.Error, run.ErrorType,
		run.FailedPhase, run.RetryCount, run.MaxRetries,
		run.NextRetryAt, run.CreatedAt, run.LastFailedAt,
	)
	return eris.Wrap(err, "sqlite: enqueue failed run")
}

func (s *SQLiteStore) DequeueFailedRuns(ctx context.Context, filter resilience.FailedRunFilter) ([]resilience.FailedRun, error) {
	query := `SELECT id, product_id, account_id, error, error_type, failed_phase, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM failed_runs
	          WHERE next_retry_at <= ? AND retry_count < max_retries`
	args := []any{time.Now().UTC()}

	if filter.ErrorType != "" {
		query += ` AND error_type = ?`
		args = append(args, filter.ErrorType)
	}

	query += ` ORDER BY next_retry_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT %d`, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: dequeue failed runs")
	}
	defer rows.Close()

	var runs []resilience.FailedRun
	for rows.Next() {
		var r resilience.FailedRun
		if err := rows.Scan(&r.ID, &r.ProductID, &r.AccountID, &r.Error, &r.ErrorType,
			&r.FailedPhase, &r.RetryCount, &r.MaxRetries,
			&r.NextRetryAt, &r.CreatedAt, &r.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan failed run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: dequeue failed runs iterate")
}

func (s *SQLiteStore) IncrementFailedRunRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE failed_runs
		 SET retry_count = retry_count + 1, next_retry_at = ?, error = ?, last_failed_at = ?
		 WHERE id = ?`,
		nextRetryAt, lastErr, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: increment failed run retry %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("failed_run not found: %s", id)
	}
	return nil
}

func (s *SQLiteStore) RemoveFailedRun(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM failed_runs WHERE id = ?`, id)
	return eris.Wrap(err, "sqlite: remove failed run")
}

func (s *SQLiteStore) CountFailedRuns(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM failed_runs`).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count failed runs")
}

func checkProductAffected(res sql.Result, productID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return &model.ProductNotFoundError{ProductID: productID}
	}
	return nil
}
