package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/network-cli/internal/config"
)

func monitoringCfg() config.MonitoringConfig {
	return config.MonitoringConfig{
		TimeoutRateThreshold: 0.5,
		MinAgreementRate:     0.2,
		MinSessionsForAlert:  5,
	}
}

func TestAlerter_TimeoutRateBreached(t *testing.T) {
	a := NewAlerter(monitoringCfg())
	snap := &MetricsSnapshot{
		SessionsAgreed:   2,
		SessionsTimedOut: 4,
		TimeoutRate:      4.0 / 6.0,
		AgreementRate:    2.0 / 6.0,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertTimeoutRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "66.7%")
}

func TestAlerter_LowAgreementRate(t *testing.T) {
	a := NewAlerter(monitoringCfg())
	snap := &MetricsSnapshot{
		SessionsAgreed: 1,
		SessionsFailed: 9,
		AgreementRate:  0.1,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertLowAgreementRate, alerts[0].Type)
}

func TestAlerter_TooFewSessions(t *testing.T) {
	a := NewAlerter(monitoringCfg())
	snap := &MetricsSnapshot{
		SessionsTimedOut: 2,
		TimeoutRate:      1.0,
	}

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_HealthySnapshot(t *testing.T) {
	a := NewAlerter(monitoringCfg())
	snap := &MetricsSnapshot{
		SessionsAgreed: 8,
		SessionsFailed: 2,
		AgreementRate:  0.8,
		TimeoutRate:    0,
	}

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_SendAlerts(t *testing.T) {
	var received []Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var alert Alert
		require.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		received = append(received, alert)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := monitoringCfg()
	cfg.WebhookURL = srv.URL
	a := NewAlerter(cfg)

	alerts := []Alert{
		{Type: AlertTimeoutRate, Severity: "high", Message: "timeouts"},
		{Type: AlertLowAgreementRate, Severity: "medium", Message: "agreements"},
	}
	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	require.Len(t, received, 2)
	assert.Equal(t, AlertTimeoutRate, received[0].Type)
}

func TestAlerter_SendAlerts_NoWebhook(t *testing.T) {
	a := NewAlerter(monitoringCfg())
	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertTimeoutRate}})
	assert.Zero(t, sent)
}

func TestAlerter_SendAlerts_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := monitoringCfg()
	cfg.WebhookURL = srv.URL
	a := NewAlerter(cfg)

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertTimeoutRate}})
	assert.Zero(t, sent)
}
