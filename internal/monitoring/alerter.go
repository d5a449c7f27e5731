package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/network-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertTimeoutRate      AlertType = "negotiation_timeout_rate"
	AlertLowAgreementRate AlertType = "low_agreement_rate"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
// Rates computed over fewer than MinSessionsForAlert finished sessions are
// too noisy to act on and are skipped.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := snap.SessionsAgreed + snap.SessionsFailed + snap.SessionsTimedOut
	if finished < a.cfg.MinSessionsForAlert {
		return nil
	}

	if snap.TimeoutRate > a.cfg.TimeoutRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertTimeoutRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Negotiation timeout rate %.1f%% exceeds threshold %.1f%% (%d timed out / %d finished)",
				snap.TimeoutRate*100, a.cfg.TimeoutRateThreshold*100,
				snap.SessionsTimedOut, finished,
			),
			Details: map[string]any{
				"timeout_rate": snap.TimeoutRate,
				"threshold":    a.cfg.TimeoutRateThreshold,
				"timed_out":    snap.SessionsTimedOut,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	if snap.AgreementRate < a.cfg.MinAgreementRate {
		alerts = append(alerts, Alert{
			Type:     AlertLowAgreementRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Agreement rate %.1f%% below floor %.1f%% (%d agreed / %d finished)",
				snap.AgreementRate*100, a.cfg.MinAgreementRate*100,
				snap.SessionsAgreed, finished,
			),
			Details: map[string]any{
				"agreement_rate": snap.AgreementRate,
				"floor":          a.cfg.MinAgreementRate,
				"agreed":         snap.SessionsAgreed,
				"finished":       finished,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
