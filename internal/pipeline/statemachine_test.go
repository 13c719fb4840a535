package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/model"
	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/store"
)

const testAccountID = "acct-1"

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func seedProduct(t *testing.T, s store.Store) *model.Product {
	t.Helper()
	p, err := s.CreateProduct(context.Background(), model.Product{
		AccountID: testAccountID,
		Name:      "Air Fryer XL",
		Model:     "AF-2000",
		Brand:     "CrispCo",
		Category:  "kitchen",
	})
	require.NoError(t, err)
	return p
}

func TestStartPhase_InvalidNumber(t *testing.T) {
	m := NewMachine(newTestStore(t))

	_, err := m.StartPhase(context.Background(), testAccountID, "any", 5)

	var invalid *model.InvalidPhaseError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, 5, invalid.Phase)
}

func TestStartPhase_ProductNotFound(t *testing.T) {
	m := NewMachine(newTestStore(t))

	_, err := m.StartPhase(context.Background(), testAccountID, "missing", 1)

	var notFound *model.ProductNotFoundError
	require.True(t, errors.As(err, &notFound))
}

func TestStartPhase(t *testing.T) {
	s := newTestStore(t)
	m := NewMachine(s)
	p := seedProduct(t, s)
	ctx := context.Background()

	phase, err := m.StartPhase(ctx, testAccountID, p.ID, 1)
	require.NoError(t, err)

	assert.Equal(t, model.PhaseStatusRunning, phase.Status)
	assert.Equal(t, "Product Analysis", phase.PhaseName)
	assert.Zero(t, phase.ProgressPercentage)
	require.NotNil(t, phase.StartedAt)

	got, err := s.GetProduct(ctx, testAccountID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProductStatusProcessing, got.Status)
	assert.Equal(t, 1, got.CurrentPhase)
	assert.True(t, got.IsPipelineRunning)
	assert.Equal(t, 13, got.Progress) // one running phase
}

func TestStartPhase_IdempotentRestart(t *testing.T) {
	s := newTestStore(t)
	m := NewMachine(s)
	p := seedProduct(t, s)
	ctx := context.Background()

	first, err := m.StartPhase(ctx, testAccountID, p.ID, 2)
	require.NoError(t, err)
	require.NoError(t, s.UpdatePhaseProgress(ctx, p.ID, 2, 60))

	time.Sleep(5 * time.Millisecond)
	second, err := m.StartPhase(ctx, testAccountID, p.ID, 2)
	require.NoError(t, err)

	assert.Zero(t, second.ProgressPercentage)
	assert.True(t, second.StartedAt.After(*first.StartedAt))

	phases, err := s.ListPhases(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, phases, 1)
	assert.Zero(t, phases[0].ProgressPercentage)
}

func TestCompletePhase_Intermediate(t *testing.T) {
	s := newTestStore(t)
	m := NewMachine(s)
	p := seedProduct(t, s)
	ctx := context.Background()

	_, err := m.StartPhase(ctx, testAccountID, p.ID, 1)
	require.NoError(t, err)
	require.NoError(t, m.CompletePhase(ctx, testAccountID, p.ID, 1))

	ph, err := s.GetPhase(ctx, p.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseStatusCompleted, ph.Status)
	assert.Equal(t, 100, ph.ProgressPercentage)
	require.NotNil(t, ph.CompletedAt)

	got, err := s.GetProduct(ctx, testAccountID, p.ID)
	require.NoError(t, err)
	// current_phase stays on the completed phase until the next one starts
	assert.Equal(t, 1, got.CurrentPhase)
	assert.Equal(t, model.ProductStatusProcessing, got.Status)
	assert.Equal(t, 25, got.Progress)
}

func TestCompletePhase_FinalCompletesProduct(t *testing.T) {
	s := newTestStore(t)
	m := NewMachine(s)
	p := seedProduct(t, s)
	ctx := context.Background()

	// completing phase 4 finishes the product regardless of prior state
	_, err := m.StartPhase(ctx, testAccountID, p.ID, 4)
	require.NoError(t, err)
	require.NoError(t, m.CompletePhase(ctx, testAccountID, p.ID, 4))

	got, err := s.GetProduct(ctx, testAccountID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProductStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, 4, got.CurrentPhase)
	assert.False(t, got.IsPipelineRunning)
}

func TestFailPhase(t *testing.T) {
	s := newTestStore(t)
	m := NewMachine(s)
	p := seedProduct(t, s)
	ctx := context.Background()

	_, err := m.StartPhase(ctx, testAccountID, p.ID, 2)
	require.NoError(t, err)
	require.NoError(t, m.FailPhase(ctx, testAccountID, p.ID, 2, "market research unavailable"))

	ph, err := s.GetPhase(ctx, p.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseStatusError, ph.Status)
	assert.Equal(t, "market research unavailable", ph.ErrorMessage)

	got, err := s.GetProduct(ctx, testAccountID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProductStatusError, got.Status)
	assert.Equal(t, "market research unavailable", got.ErrorMessage)
	assert.Equal(t, 2, got.ErrorPhase)
	assert.False(t, got.IsPipelineRunning)
}

func TestRetry(t *testing.T) {
	s := newTestStore(t)
	m := NewMachine(s)
	p := seedProduct(t, s)
	ctx := context.Background()

	_, err := m.StartPhase(ctx, testAccountID, p.ID, 2)
	require.NoError(t, err)
	require.NoError(t, m.FailPhase(ctx, testAccountID, p.ID, 2, "boom"))

	phase, err := m.Retry(ctx, testAccountID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, phase.PhaseNumber)
	assert.Equal(t, model.PhaseStatusRunning, phase.Status)

	got, err := s.GetProduct(ctx, testAccountID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RetryCount)
	assert.Empty(t, got.ErrorMessage)
	assert.Zero(t, got.ErrorPhase)
	assert.Equal(t, model.ProductStatusProcessing, got.Status)

	// a second retry increments by exactly one again
	require.NoError(t, m.FailPhase(ctx, testAccountID, p.ID, 2, "boom again"))
	_, err = m.Retry(ctx, testAccountID, p.ID)
	require.NoError(t, err)

	got, err = s.GetProduct(ctx, testAccountID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.RetryCount)
}

func TestRetry_FallsBackToCurrentPhase(t *testing.T) {
	s := newTestStore(t)
	m := NewMachine(s)
	p := seedProduct(t, s)
	ctx := context.Background()

	_, err := m.StartPhase(ctx, testAccountID, p.ID, 3)
	require.NoError(t, err)

	phase, err := m.Retry(ctx, testAccountID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, phase.PhaseNumber)
}

func TestRetry_ProductNotFound(t *testing.T) {
	m := NewMachine(newTestStore(t))

	_, err := m.Retry(context.Background(), testAccountID, "missing")

	var notFound *model.ProductNotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestPause(t *testing.T) {
	s := newTestStore(t)
	m := NewMachine(s)
	p := seedProduct(t, s)
	ctx := context.Background()

	_, err := m.StartPhase(ctx, testAccountID, p.ID, 2)
	require.NoError(t, err)
	require.NoError(t, m.Pause(ctx, testAccountID, p.ID))

	got, err := s.GetProduct(ctx, testAccountID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProductStatusPaused, got.Status)
	assert.False(t, got.IsPipelineRunning)
	assert.Equal(t, 2, got.CurrentPhase)
}

func TestResume(t *testing.T) {
	s := newTestStore(t)
	m := NewMachine(s)
	p := seedProduct(t, s)
	ctx := context.Background()

	_, err := m.StartPhase(ctx, testAccountID, p.ID, 2)
	require.NoError(t, err)
	require.NoError(t, m.Pause(ctx, testAccountID, p.ID))

	phase, err := m.Resume(ctx, testAccountID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, phase.PhaseNumber)

	got, err := s.GetProduct(ctx, testAccountID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProductStatusProcessing, got.Status)
	assert.True(t, got.IsPipelineRunning)
}

func TestReset(t *testing.T) {
	s := newTestStore(t)
	m := NewMachine(s)
	p := seedProduct(t, s)
	ctx := context.Background()

	_, err := m.StartPhase(ctx, testAccountID, p.ID, 1)
	require.NoError(t, err)
	require.NoError(t, m.CompletePhase(ctx, testAccountID, p.ID, 1))
	_, err = m.StartPhase(ctx, testAccountID, p.ID, 2)
	require.NoError(t, err)

	require.NoError(t, m.Reset(ctx, testAccountID, p.ID))

	phases, err := s.ListPhases(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, phases)

	got, err := s.GetProduct(ctx, testAccountID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentPhase)
	assert.Zero(t, got.Progress)
	assert.Equal(t, model.ProductStatusProcessing, got.Status)
}

func TestProgressAfterSequentialAdvance(t *testing.T) {
	s := newTestStore(t)
	m := NewMachine(s)
	p := seedProduct(t, s)
	ctx := context.Background()

	_, err := m.StartPhase(ctx, testAccountID, p.ID, 1)
	require.NoError(t, err)
	require.NoError(t, m.CompletePhase(ctx, testAccountID, p.ID, 1))
	_, err = m.StartPhase(ctx, testAccountID, p.ID, 2)
	require.NoError(t, err)

	got, err := s.GetProduct(ctx, testAccountID, p.ID)
	require.NoError(t, err)
	// one completed plus one running: round(25 + 12.5) = 38
	assert.Equal(t, 38, got.Progress)
}
