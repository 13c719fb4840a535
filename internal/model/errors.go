package model

import "fmt"

// InvalidPhaseError indicates a phase number outside [1,4]. Caller error,
// never retried.
type InvalidPhaseError struct {
	Phase int
}

func (e *InvalidPhaseError) Error() string {
	return fmt.Sprintf("invalid phase number %d: must be between 1 and 4", e.Phase)
}

// ProductNotFoundError indicates the referenced product does not exist for
// the given account.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product not found: %s", e.ProductID)
}

// ResearchUnavailableError indicates every configured acquisition path
// failed. Any previously persisted research record is left untouched.
type ResearchUnavailableError struct {
	Errs []error
}

func (e *ResearchUnavailableError) Error() string {
	return fmt.Sprintf("market research unavailable: all %d acquisition paths failed", len(e.Errs))
}

// Unwrap exposes the per-path errors for errors.Is/As inspection.
func (e *ResearchUnavailableError) Unwrap() []error {
	return e.Errs
}
