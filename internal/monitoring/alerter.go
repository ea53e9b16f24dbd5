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

	"github.com/sells-group/childcare-cli/internal/config"
	"github.com/sells-group/childcare-cli/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertPassFailureRate AlertType = "pass_failure_rate"
	AlertBacklogStalled  AlertType = "backlog_stalled"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates pass summaries and backlog snapshots against configured
// thresholds and sends alerts via webhook when thresholds are breached.
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

// EvaluatePass returns an alert when a pass failed on more than the
// threshold share of at least MinItems finished items.
func (a *Alerter) EvaluatePass(s model.PassSummary) []Alert {
	finished := s.Succeeded + s.Empty + s.Failed
	if finished < a.cfg.MinItems || s.FailureRate() <= a.cfg.FailureRateThreshold {
		return nil
	}
	return []Alert{{
		Type:     AlertPassFailureRate,
		Severity: "high",
		Message: fmt.Sprintf(
			"%s pass failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished, %s)",
			s.Pass, s.FailureRate()*100, a.cfg.FailureRateThreshold*100, s.Failed, finished, s.Key,
		),
		Details: map[string]any{
			"pass":         string(s.Pass),
			"failure_rate": s.FailureRate(),
			"threshold":    a.cfg.FailureRateThreshold,
			"failed":       s.Failed,
			"too_long":     s.TooLong,
			"finished":     finished,
		},
		Timestamp: time.Now().UTC(),
	}}
}

// EvaluateBacklog returns an alert when the combine backlog did not shrink
// between two snapshots while it was non-empty.
func (a *Alerter) EvaluateBacklog(prev, cur *Snapshot) []Alert {
	if prev == nil || cur == nil || cur.PendingCombination == 0 {
		return nil
	}
	if cur.PendingCombination < prev.PendingCombination ||
		cur.PendingChildcare < prev.PendingChildcare ||
		cur.PendingContact < prev.PendingContact {
		return nil
	}
	return []Alert{{
		Type:     AlertBacklogStalled,
		Severity: "low",
		Message: fmt.Sprintf(
			"backlog unchanged since %s: %d contact, %d childcare, %d schools to combine",
			prev.CollectedAt.Format(time.RFC3339), cur.PendingContact, cur.PendingChildcare, cur.PendingCombination,
		),
		Details: map[string]any{
			"pending_contact":     cur.PendingContact,
			"pending_childcare":   cur.PendingChildcare,
			"pending_combination": cur.PendingCombination,
		},
		Timestamp: time.Now().UTC(),
	}}
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

// sendWebhook posts a single alert to the webhook URL.
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
