package resilience

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFailedRun_CanRetry(t *testing.T) {
	tests := []struct {
		name string
		run  FailedRun
		want bool
	}{
		{"budget left", FailedRun{RetryCount: 0, MaxRetries: 3}, true},
		{"last attempt", FailedRun{RetryCount: 2, MaxRetries: 3}, true},
		{"exhausted", FailedRun{RetryCount: 3, MaxRetries: 3}, false},
		{"over budget", FailedRun{RetryCount: 5, MaxRetries: 3}, false},
		{"no budget at all", FailedRun{RetryCount: 0, MaxRetries: 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.run.CanRetry())
		})
	}
}
