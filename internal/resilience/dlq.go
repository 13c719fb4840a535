package resilience

import "time"

// FailedRun records a background pipeline run that hit a fatal error and can
// be retried later once its backoff window passes.
type FailedRun struct {
	ID           string    `json:"id"`
	ProductID    string    `json:"product_id"`
	AccountID    string    `json:"account_id"`
	Error        string    `json:"error"`
	ErrorType    string    `json:"error_type"` // "transient" or "permanent"
	FailedPhase  int       `json:"failed_phase,omitempty"`
	RetryCount   int       `json:"retry_count"`
	MaxRetries   int       `json:"max_retries"`
	NextRetryAt  time.Time `json:"next_retry_at"`
	CreatedAt    time.Time `json:"created_at"`
	LastFailedAt time.Time `json:"last_failed_at"`
}

// FailedRunFilter specifies criteria for draining the failed-run queue.
type FailedRunFilter struct {
	ErrorType string `json:"error_type,omitempty"` // "transient", "permanent", or "" for all
	Limit     int    `json:"limit,omitempty"`
}

// CanRetry returns true if this entry has retry budget left.
func (f *FailedRun) CanRetry() bool {
	return f.RetryCount < f.MaxRetries
}
