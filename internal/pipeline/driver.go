package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/config"
	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/model"
	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/resilience"
	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/store"
)

// ErrRunCancelled signals that a background run was cancelled between steps.
// It is a normal outcome of pause, never reported as a phase failure.
var ErrRunCancelled = eris.New("pipeline: run cancelled")

// ErrRunInProgress is returned when a launch is rejected because another run
// holds the product's advisory lock.
var ErrRunInProgress = eris.New("pipeline: run already in progress for product")

// ErrTooManyRuns is returned when the concurrent run limit is reached.
var ErrTooManyRuns = eris.New("pipeline: concurrent run limit reached")

// Executor runs the body of a single phase. The token must be checked before
// every persisted write.
type Executor interface {
	Execute(ctx context.Context, token *CancelToken, product *model.Product, phaseNumber int) error
}

// Driver sequences phases end to end in background runs. Phase N+1 never
// starts before phase N completes; one run per product at a time, enforced
// by a per-product advisory lock.
type Driver struct {
	cfg      config.PipelineConfig
	store    store.Store
	machine  *Machine
	executor Executor
	locks    *productLocks
	sem      chan struct{}

	mu     sync.Mutex
	active map[string]*runHandle
	wg     sync.WaitGroup
}

type runHandle struct {
	token  *CancelToken
	cancel context.CancelFunc
}

// NewDriver creates a pipeline driver.
func NewDriver(cfg config.PipelineConfig, st store.Store, machine *Machine, executor Executor) *Driver {
	maxRuns := cfg.MaxConcurrentRuns
	if maxRuns <= 0 {
		maxRuns = 10
	}
	return &Driver{
		cfg:      cfg,
		store:    st,
		machine:  machine,
		executor: executor,
		locks:    newProductLocks(),
		sem:      make(chan struct{}, maxRuns),
		active:   make(map[string]*runHandle),
	}
}

// Launch starts a background run from the given phase and returns
// immediately. The run progresses through the remaining phases sequentially
// until completion, failure, or cancellation.
func (d *Driver) Launch(ctx context.Context, accountID, productID string, fromPhase int) error {
	if err := ValidatePhase(fromPhase); err != nil {
		return err
	}

	product, err := d.store.GetProduct(ctx, accountID, productID)
	if err != nil {
		return eris.Wrapf(err, "pipeline: get product %s", productID)
	}
	if product == nil {
		return &model.ProductNotFoundError{ProductID: productID}
	}

	release := d.locks.TryAcquire(productID)
	if release == nil {
		return ErrRunInProgress
	}

	select {
	case d.sem <- struct{}{}:
	default:
		release()
		return ErrTooManyRuns
	}

	token := &CancelToken{}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	d.mu.Lock()
	d.active[productID] = &runHandle{token: token, cancel: cancel}
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer func() {
			d.mu.Lock()
			delete(d.active, productID)
			d.mu.Unlock()
			cancel()
			<-d.sem
			release()
			d.wg.Done()
		}()
		d.run(runCtx, token, accountID, productID, fromPhase)
	}()

	return nil
}

func (d *Driver) run(ctx context.Context, token *CancelToken, accountID, productID string, fromPhase int) {
	log := zap.L().With(zap.String("product_id", productID), zap.String("account_id", accountID))
	log.Info("pipeline: run started", zap.Int("from_phase", fromPhase))

	for phase := fromPhase; phase <= PhaseCount; phase++ {
		err := d.runPhase(ctx, token, accountID, productID, phase)
		if err == nil {
			continue
		}
		if eris.Is(err, ErrRunCancelled) {
			log.Info("pipeline: run cancelled", zap.Int("phase", phase))
			return
		}
		d.recordFailure(ctx, accountID, productID, phase, err)
		return
	}

	log.Info("pipeline: run complete")
}

func (d *Driver) runPhase(ctx context.Context, token *CancelToken, accountID, productID string, phase int) error {
	if token.Cancelled() {
		return ErrRunCancelled
	}
	if _, err := d.machine.StartPhase(ctx, accountID, productID, phase); err != nil {
		return err
	}

	phaseCtx := ctx
	if d.cfg.PhaseTimeout > 0 {
		var cancel context.CancelFunc
		phaseCtx, cancel = context.WithTimeout(ctx, d.cfg.PhaseTimeout)
		defer cancel()
	}

	if err := d.simulateProgress(phaseCtx, token, productID, phase); err != nil {
		return err
	}

	product, err := d.store.GetProduct(phaseCtx, accountID, productID)
	if err != nil {
		return eris.Wrapf(err, "pipeline: get product %s", productID)
	}
	if product == nil {
		return &model.ProductNotFoundError{ProductID: productID}
	}

	if err := d.executor.Execute(phaseCtx, token, product, phase); err != nil {
		if token.Cancelled() {
			return ErrRunCancelled
		}
		return err
	}

	if token.Cancelled() {
		return ErrRunCancelled
	}
	return d.machine.CompletePhase(ctx, accountID, productID, phase)
}

// simulateProgress advances the phase row's progress_percentage in fixed
// steps while the phase is underway. Each write is preceded by a token
// check so pause takes effect between steps.
func (d *Driver) simulateProgress(ctx context.Context, token *CancelToken, productID string, phase int) error {
	step := d.cfg.ProgressStep
	if step <= 0 {
		step = 20
	}
	interval := d.cfg.StepInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	for pct := step; pct < 100; pct += step {
		select {
		case <-ctx.Done():
			return eris.Wrap(ctx.Err(), "pipeline: phase wait")
		case <-time.After(interval):
		}
		if token.Cancelled() {
			return ErrRunCancelled
		}
		if err := d.store.UpdatePhaseProgress(ctx, productID, phase, pct); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) recordFailure(ctx context.Context, accountID, productID string, phase int, cause error) {
	message := cause.Error()
	if failErr := d.machine.FailPhase(ctx, accountID, productID, phase, message); failErr != nil {
		zap.L().Error("pipeline: failed to record phase failure",
			zap.String("product_id", productID),
			zap.Int("phase", phase),
			zap.Error(failErr))
	}

	// The product's retry_count is the number of retries already consumed;
	// carrying it into the queue row lets the sweeper stop relaunching once
	// the budget is spent. The row itself is upserted per product.
	retryCount := 0
	if product, getErr := d.store.GetProduct(ctx, accountID, productID); getErr == nil && product != nil {
		retryCount = product.RetryCount
	}

	now := time.Now().UTC()
	run := resilience.FailedRun{
		ProductID:    productID,
		AccountID:    accountID,
		Error:        message,
		ErrorType:    resilience.ClassifyError(cause),
		FailedPhase:  phase,
		RetryCount:   retryCount,
		MaxRetries:   3,
		NextRetryAt:  now.Add(resilience.DefaultRetryConfig().InitialBackoff),
		CreatedAt:    now,
		LastFailedAt: now,
	}
	if err := d.store.EnqueueFailedRun(ctx, run); err != nil {
		zap.L().Error("pipeline: failed to enqueue failed run",
			zap.String("product_id", productID),
			zap.Error(err))
	}
}

// Pause cancels the product's background run, if any, and flips the product
// to paused. An outbound call already in flight completes but its result is
// discarded by the token checks.
func (d *Driver) Pause(ctx context.Context, accountID, productID string) error {
	d.cancelRun(productID)
	return d.machine.Pause(ctx, accountID, productID)
}

// Resume restarts a paused product from its current phase and continues the
// run in the background.
func (d *Driver) Resume(ctx context.Context, accountID, productID string) error {
	product, err := d.store.GetProduct(ctx, accountID, productID)
	if err != nil {
		return eris.Wrapf(err, "pipeline: get product %s", productID)
	}
	if product == nil {
		return &model.ProductNotFoundError{ProductID: productID}
	}

	target := product.CurrentPhase
	if target == 0 {
		target = PhaseProductAnalysis
	}
	return d.Launch(ctx, accountID, productID, target)
}

// Retry clears the error state via the state machine and relaunches the run
// from the phase that failed.
func (d *Driver) Retry(ctx context.Context, accountID, productID string) error {
	phase, err := d.machine.Retry(ctx, accountID, productID)
	if err != nil {
		return err
	}
	return d.Launch(ctx, accountID, productID, phase.PhaseNumber)
}

// Reset cancels any running work, wipes the product's phase rows, and
// returns it to phase 1.
func (d *Driver) Reset(ctx context.Context, accountID, productID string) error {
	d.cancelRun(productID)
	return d.machine.Reset(ctx, accountID, productID)
}

// IsRunning reports whether a background run is active for the product.
func (d *Driver) IsRunning(productID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.active[productID]
	return ok
}

// SweepFailedRuns relaunches runs whose retry window has passed. Returns the
// number of runs relaunched.
func (d *Driver) SweepFailedRuns(ctx context.Context) (int, error) {
	due, err := d.store.DequeueFailedRuns(ctx, resilience.FailedRunFilter{ErrorType: "transient"})
	if err != nil {
		return 0, err
	}

	relaunched := 0
	for _, run := range due {
		if err := d.Retry(ctx, run.AccountID, run.ProductID); err != nil {
			nextRetry := time.Now().UTC().Add(resilience.DefaultRetryConfig().MaxBackoff)
			if incErr := d.store.IncrementFailedRunRetry(ctx, run.ID, nextRetry, err.Error()); incErr != nil {
				zap.L().Error("pipeline: sweep increment failed",
					zap.String("failed_run_id", run.ID),
					zap.Error(incErr))
			}
			continue
		}
		if err := d.store.RemoveFailedRun(ctx, run.ID); err != nil {
			zap.L().Error("pipeline: sweep remove failed",
				zap.String("failed_run_id", run.ID),
				zap.Error(err))
			continue
		}
		relaunched++
	}
	return relaunched, nil
}

// Shutdown cancels all active runs and waits for their goroutines, bounded
// by ctx.
func (d *Driver) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	for _, h := range d.active {
		h.token.Cancel()
		h.cancel()
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "pipeline: shutdown wait")
	}
}

func (d *Driver) cancelRun(productID string) {
	d.mu.Lock()
	h, ok := d.active[productID]
	d.mu.Unlock()
	if ok {
		h.token.Cancel()
		h.cancel()
	}
}
