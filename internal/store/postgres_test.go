package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/model"
	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/resilience"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresWithPool(mock), mock
}

const (
	testAccountID = "acct-1"
	testProductID = "f8a4f287-1f4b-4b5e-9a89-3a5f2b9f2d11"
)

var productCols = []string{
	"id", "account_id", "name", "model", "brand", "category", "status",
	"current_phase", "progress", "is_pipeline_running", "error_message",
	"error_phase", "retry_count", "ai_confidence", "created_at", "updated_at",
}

func TestCreateProduct(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO products`).
		WithArgs(pgxmock.AnyArg(), testAccountID, "Air Fryer XL", "AF-2000", "CrispCo", "kitchen",
			"uploaded", 1, 0, false, 0, 0, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	p, err := s.CreateProduct(context.Background(), model.Product{
		AccountID: testAccountID,
		Name:      "Air Fryer XL",
		Model:     "AF-2000",
		Brand:     "CrispCo",
		Category:  "kitchen",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, model.ProductStatusUploaded, p.Status)
	assert.Equal(t, 1, p.CurrentPhase)
	assert.False(t, p.IsPipelineRunning)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProduct(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()
	errMsg := "research failed"
	errPhase := 2

	mock.ExpectQuery(`SELECT .+ FROM products WHERE account_id = \$1 AND id = \$2`).
		WithArgs(testAccountID, testProductID).
		WillReturnRows(pgxmock.NewRows(productCols).AddRow(
			testProductID, testAccountID, "Air Fryer XL", "AF-2000", "CrispCo", "kitchen",
			model.ProductStatusError, 2, 30, false, &errMsg, &errPhase, 1, 85, now, now,
		))

	p, err := s.GetProduct(context.Background(), testAccountID, testProductID)
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Equal(t, model.ProductStatusError, p.Status)
	assert.Equal(t, "research failed", p.ErrorMessage)
	assert.Equal(t, 2, p.ErrorPhase)
	assert.Equal(t, 85, p.AIConfidence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProduct_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM products`).
		WithArgs(testAccountID, "missing").
		WillReturnRows(pgxmock.NewRows(productCols))

	p, err := s.GetProduct(context.Background(), testAccountID, "missing")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProductPipeline(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE products`).
		WithArgs("processing", 2, 45, true, pgxmock.AnyArg(), pgxmock.AnyArg(), 0, pgxmock.AnyArg(), testAccountID, testProductID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateProductPipeline(context.Background(), testAccountID, testProductID, ProductPipelineUpdate{
		Status:            model.ProductStatusProcessing,
		CurrentPhase:      2,
		Progress:          45,
		IsPipelineRunning: true,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProductPipeline_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE products`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			testAccountID, "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateProductPipeline(context.Background(), testAccountID, "missing", ProductPipelineUpdate{
		Status: model.ProductStatusProcessing,
	})

	var notFound *model.ProductNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "missing", notFound.ProductID)
}

func TestUpdateProductPipeline_WrongAccountBehavesLikeMissing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE products`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			"other-account", testProductID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateProductPipeline(context.Background(), "other-account", testProductID, ProductPipelineUpdate{
		Status: model.ProductStatusProcessing,
	})

	var notFound *model.ProductNotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestUpsertPhase(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO pipeline_phases .+ ON CONFLICT \(product_id, phase_number\)`).
		WithArgs(pgxmock.AnyArg(), testProductID, 2, "Market Research", "running", 0,
			&now, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ph, err := s.UpsertPhase(context.Background(), model.PipelinePhase{
		ProductID:   testProductID,
		PhaseNumber: 2,
		PhaseName:   "Market Research",
		Status:      model.PhaseStatusRunning,
		StartedAt:   &now,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, ph.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveMarketResearch(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO market_research_data .+ ON CONFLICT \(product_id\)`).
		WithArgs(testProductID, pgxmock.AnyArg(), 98.5, 85.0, 110.5, "medium", 5, 0.95,
			"real", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveMarketResearch(context.Background(), &model.MarketResearchRecord{
		ProductID: testProductID,
		Listings: map[string][]model.PlatformListing{
			"amazon": {{Platform: "amazon", Price: 98.5, Verified: true}},
		},
		AverageMarketPrice: 98.5,
		PriceRange:         model.PriceRange{Min: 85.0, Max: 110.5},
		MarketDemand:       model.DemandMedium,
		CompetitorCount:    5,
		Confidence:         0.95,
		DataSource:         model.DataSourceReal,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMarketResearch_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM market_research_data`).
		WithArgs(testProductID).
		WillReturnRows(pgxmock.NewRows([]string{"product_id"}))

	rec, err := s.GetMarketResearch(context.Background(), testProductID)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestEnqueueFailedRun(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO failed_runs`).
		WithArgs(pgxmock.AnyArg(), testProductID, testAccountID, "timeout", "transient",
			2, 0, 3, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.EnqueueFailedRun(context.Background(), resilience.FailedRun{
		ProductID:    testProductID,
		AccountID:    testAccountID,
		Error:        "timeout",
		ErrorType:    "transient",
		FailedPhase:  2,
		MaxRetries:   3,
		NextRetryAt:  now.Add(time.Minute),
		CreatedAt:    now,
		LastFailedAt: now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountProductsByStatus(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM products GROUP BY status`).
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow("processing", 3).
			AddRow("error", 1).
			AddRow("completed", 7))

	counts, err := s.CountProductsByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, counts[model.ProductStatusProcessing])
	assert.Equal(t, 1, counts[model.ProductStatusError])
	assert.Equal(t, 7, counts[model.ProductStatusCompleted])
}
