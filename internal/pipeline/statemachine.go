package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/model"
	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/store"
)

// Machine owns phase transitions for single products. Every operation takes
// the owning accountID explicitly and writes the complete desired product
// state in one statement; there is no ambient identity.
type Machine struct {
	store store.Store
}

// NewMachine creates a state machine on the given store.
func NewMachine(st store.Store) *Machine {
	return &Machine{store: st}
}

// StartPhase transitions a phase to running with zeroed progress and a fresh
// started_at. Restarting an already-running phase resets it; manual phase
// restarts rely on this.
func (m *Machine) StartPhase(ctx context.Context, accountID, productID string, phaseNumber int) (*model.PipelinePhase, error) {
	if err := ValidatePhase(phaseNumber); err != nil {
		return nil, err
	}

	product, err := m.getProduct(ctx, accountID, productID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	phase, err := m.store.UpsertPhase(ctx, model.PipelinePhase{
		ProductID:          productID,
		PhaseNumber:        phaseNumber,
		PhaseName:          PhaseName(phaseNumber),
		Status:             model.PhaseStatusRunning,
		ProgressPercentage: 0,
		StartedAt:          &now,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: start phase %d", phaseNumber)
	}

	progress, err := m.overallProgress(ctx, productID)
	if err != nil {
		return nil, err
	}

	err = m.store.UpdateProductPipeline(ctx, accountID, productID, store.ProductPipelineUpdate{
		Status:            model.ProductStatusProcessing,
		CurrentPhase:      phaseNumber,
		Progress:          progress,
		IsPipelineRunning: true,
		RetryCount:        product.RetryCount,
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("pipeline: phase started",
		zap.String("product_id", productID),
		zap.Int("phase", phaseNumber),
		zap.String("phase_name", phase.PhaseName))
	return phase, nil
}

// CompletePhase marks a phase completed at 100%. Completing the final phase
// also completes the product; otherwise current_phase stays on the completed
// phase until the driver starts the next one.
func (m *Machine) CompletePhase(ctx context.Context, accountID, productID string, phaseNumber int) error {
	if err := ValidatePhase(phaseNumber); err != nil {
		return err
	}

	product, err := m.getProduct(ctx, accountID, productID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	existing, err := m.store.GetPhase(ctx, productID, phaseNumber)
	if err != nil {
		return eris.Wrapf(err, "pipeline: complete phase %d", phaseNumber)
	}

	phase := model.PipelinePhase{
		ProductID:          productID,
		PhaseNumber:        phaseNumber,
		PhaseName:          PhaseName(phaseNumber),
		Status:             model.PhaseStatusCompleted,
		ProgressPercentage: 100,
		StartedAt:          &now,
		CompletedAt:        &now,
	}
	if existing != nil {
		phase.ID = existing.ID
		phase.StartedAt = existing.StartedAt
	}
	if _, err := m.store.UpsertPhase(ctx, phase); err != nil {
		return eris.Wrapf(err, "pipeline: complete phase %d", phaseNumber)
	}

	upd := store.ProductPipelineUpdate{
		Status:            model.ProductStatusProcessing,
		CurrentPhase:      phaseNumber,
		IsPipelineRunning: product.IsPipelineRunning,
		RetryCount:        product.RetryCount,
	}
	if phaseNumber == PhaseListing {
		upd.Status = model.ProductStatusCompleted
		upd.Progress = 100
		upd.IsPipelineRunning = false
	} else {
		progress, err := m.overallProgress(ctx, productID)
		if err != nil {
			return err
		}
		upd.Progress = progress
	}

	if err := m.store.UpdateProductPipeline(ctx, accountID, productID, upd); err != nil {
		return err
	}

	zap.L().Info("pipeline: phase completed",
		zap.String("product_id", productID),
		zap.Int("phase", phaseNumber),
		zap.Int("progress", upd.Progress))
	return nil
}

// FailPhase records a phase failure and moves the product to error state.
func (m *Machine) FailPhase(ctx context.Context, accountID, productID string, phaseNumber int, message string) error {
	if err := ValidatePhase(phaseNumber); err != nil {
		return err
	}

	product, err := m.getProduct(ctx, accountID, productID)
	if err != nil {
		return err
	}

	existing, err := m.store.GetPhase(ctx, productID, phaseNumber)
	if err != nil {
		return eris.Wrapf(err, "pipeline: fail phase %d", phaseNumber)
	}

	phase := model.PipelinePhase{
		ProductID:    productID,
		PhaseNumber:  phaseNumber,
		PhaseName:    PhaseName(phaseNumber),
		Status:       model.PhaseStatusError,
		ErrorMessage: message,
	}
	if existing != nil {
		phase.ID = existing.ID
		phase.StartedAt = existing.StartedAt
		phase.ProgressPercentage = existing.ProgressPercentage
	}
	if _, err := m.store.UpsertPhase(ctx, phase); err != nil {
		return eris.Wrapf(err, "pipeline: fail phase %d", phaseNumber)
	}

	progress, err := m.overallProgress(ctx, productID)
	if err != nil {
		return err
	}

	err = m.store.UpdateProductPipeline(ctx, accountID, productID, store.ProductPipelineUpdate{
		Status:            model.ProductStatusError,
		CurrentPhase:      phaseNumber,
		Progress:          progress,
		IsPipelineRunning: false,
		ErrorMessage:      message,
		ErrorPhase:        phaseNumber,
		RetryCount:        product.RetryCount,
	})
	if err != nil {
		return err
	}

	zap.L().Warn("pipeline: phase failed",
		zap.String("product_id", productID),
		zap.Int("phase", phaseNumber),
		zap.String("message", message))
	return nil
}

// Retry clears the error state, increments retry_count by exactly one, and
// restarts the phase that failed. Falls back to current_phase when no
// error_phase was recorded.
func (m *Machine) Retry(ctx context.Context, accountID, productID string) (*model.PipelinePhase, error) {
	product, err := m.getProduct(ctx, accountID, productID)
	if err != nil {
		return nil, err
	}

	target := product.ErrorPhase
	if target == 0 {
		target = product.CurrentPhase
	}
	if target == 0 {
		target = PhaseProductAnalysis
	}

	err = m.store.UpdateProductPipeline(ctx, accountID, productID, store.ProductPipelineUpdate{
		Status:       model.ProductStatusProcessing,
		CurrentPhase: target,
		Progress:     product.Progress,
		RetryCount:   product.RetryCount + 1,
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("pipeline: retrying",
		zap.String("product_id", productID),
		zap.Int("phase", target),
		zap.Int("retry_count", product.RetryCount+1))
	return m.StartPhase(ctx, accountID, productID, target)
}

// Pause stops the pipeline for a product. Cancelling queued background work
// is the driver's responsibility; the machine only flips durable state.
func (m *Machine) Pause(ctx context.Context, accountID, productID string) error {
	product, err := m.getProduct(ctx, accountID, productID)
	if err != nil {
		return err
	}

	err = m.store.UpdateProductPipeline(ctx, accountID, productID, store.ProductPipelineUpdate{
		Status:            model.ProductStatusPaused,
		CurrentPhase:      product.CurrentPhase,
		Progress:          product.Progress,
		IsPipelineRunning: false,
		RetryCount:        product.RetryCount,
	})
	if err != nil {
		return err
	}

	zap.L().Info("pipeline: paused", zap.String("product_id", productID))
	return nil
}

// Resume moves a paused product back to processing and restarts its current
// phase.
func (m *Machine) Resume(ctx context.Context, accountID, productID string) (*model.PipelinePhase, error) {
	product, err := m.getProduct(ctx, accountID, productID)
	if err != nil {
		return nil, err
	}

	target := product.CurrentPhase
	if target == 0 {
		target = PhaseProductAnalysis
	}
	return m.StartPhase(ctx, accountID, productID, target)
}

// Reset destroys all phase rows for the product and returns it to phase 1
// with zero progress. Not reversible.
func (m *Machine) Reset(ctx context.Context, accountID, productID string) error {
	if _, err := m.getProduct(ctx, accountID, productID); err != nil {
		return err
	}

	if err := m.store.ResetPhases(ctx, productID); err != nil {
		return err
	}

	err := m.store.UpdateProductPipeline(ctx, accountID, productID, store.ProductPipelineUpdate{
		Status:       model.ProductStatusProcessing,
		CurrentPhase: PhaseProductAnalysis,
		Progress:     0,
	})
	if err != nil {
		return err
	}

	zap.L().Info("pipeline: reset", zap.String("product_id", productID))
	return nil
}

func (m *Machine) getProduct(ctx context.Context, accountID, productID string) (*model.Product, error) {
	product, err := m.store.GetProduct(ctx, accountID, productID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: get product %s", productID)
	}
	if product == nil {
		return nil, &model.ProductNotFoundError{ProductID: productID}
	}
	return product, nil
}

func (m *Machine) overallProgress(ctx context.Context, productID string) (int, error) {
	phases, err := m.store.ListPhases(ctx, productID)
	if err != nil {
		return 0, eris.Wrap(err, "pipeline: list phases")
	}
	return ComputeProgress(phases), nil
}
