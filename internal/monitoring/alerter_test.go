package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/config"
)

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		FailRateWarn:     0.10,
		DLQDepthWarn:     20,
		StuckProductWarn: 10,
	})

	snap := &MetricsSnapshot{
		ProductsTotal:     100,
		ProductsCompleted: 95,
		ProductsError:     5,
		FailRate:          0.05,
		DLQDepth:          2,
	}

	alerts := a.Evaluate(snap)
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_FailureRate(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		FailRateWarn: 0.10,
		DLQDepthWarn: 20,
	})

	snap := &MetricsSnapshot{
		ProductsTotal:     20,
		ProductsCompleted: 12,
		ProductsError:     8,
		FailRate:          0.4, // 8/20 = 40%
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "40.0%")
}

func TestAlerter_Evaluate_DLQDepth(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		FailRateWarn: 0.10,
		DLQDepthWarn: 5,
	})

	snap := &MetricsSnapshot{
		DLQDepth: 7,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertDLQDepth, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "7 failed runs")
}

func TestAlerter_Evaluate_StuckProducts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		FailRateWarn:     0.10,
		DLQDepthWarn:     20,
		StuckProductWarn: 10,
	})

	snap := &MetricsSnapshot{
		ProductsProcessing: 15,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertStuckProducts, alerts[0].Type)
	assert.Equal(t, "warning", alerts[0].Severity)
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		FailRateWarn:     0.10,
		DLQDepthWarn:     5,
		StuckProductWarn: 10,
	})

	snap := &MetricsSnapshot{
		ProductsTotal:      30,
		ProductsCompleted:  10,
		ProductsError:      10,
		ProductsProcessing: 10,
		FailRate:           0.5,
		DLQDepth:           8,
	}

	alerts := a.Evaluate(snap)
	assert.Len(t, alerts, 3)

	types := make(map[AlertType]bool)
	for _, a := range alerts {
		types[a.Type] = true
	}
	assert.True(t, types[AlertFailureRate])
	assert.True(t, types[AlertDLQDepth])
	assert.True(t, types[AlertStuckProducts])
}

func TestAlerter_Evaluate_MinimumFinishedRequired(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		FailRateWarn: 0.10,
		DLQDepthWarn: 20,
	})

	// Only 3 finished products, below the 5-product minimum for the
	// failure rate alert.
	snap := &MetricsSnapshot{
		ProductsTotal:     3,
		ProductsCompleted: 1,
		ProductsError:     2,
		FailRate:          0.666,
	}

	alerts := a.Evaluate(snap)
	assert.Empty(t, alerts)
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		err := json.NewDecoder(r.Body).Decode(&alert)
		require.NoError(t, err)
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: ts.URL,
	})

	alerts := []Alert{
		{Type: AlertFailureRate, Severity: "high", Message: "test alert 1"},
		{Type: AlertDLQDepth, Severity: "high", Message: "test alert 2"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: "",
	})

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertFailureRate, Message: "test"},
	})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_EmptyAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: "http://example.com",
	})

	sent := a.SendAlerts(context.Background(), nil)
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: ts.URL,
	})

	alerts := []Alert{
		{Type: AlertFailureRate, Message: "test"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 0, sent)
}

func TestAlerter_Evaluate_DisabledThresholds(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		DLQDepthWarn:     0, // disabled
		StuckProductWarn: 0, // disabled
	})

	snap := &MetricsSnapshot{
		DLQDepth:           999,
		ProductsProcessing: 999,
	}

	alerts := a.Evaluate(snap)
	assert.Empty(t, alerts)
}
