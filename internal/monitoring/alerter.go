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

	"github.com/edusignal/exam-intel/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRejectRate      AlertType = "reject_rate"
	AlertRunFailure      AlertType = "run_failure"
	AlertSkippedStudents AlertType = "skipped_students"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds and
// sends alerts via webhook when thresholds are breached.
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
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if snap.RawTotal >= 10 && snap.RejectRate > a.cfg.RejectRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRejectRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Reject rate %.1f%% exceeds threshold %.1f%% (%d rejected / %d raw over last %d runs)",
				snap.RejectRate*100, a.cfg.RejectRateThreshold*100,
				snap.RejectedTotal, snap.RawTotal, snap.LookbackRuns,
			),
			Details: map[string]any{
				"reject_rate": snap.RejectRate,
				"threshold":   a.cfg.RejectRateThreshold,
				"rejected":    snap.RejectedTotal,
				"raw":         snap.RawTotal,
			},
			Timestamp: now,
		})
	}

	if snap.LastRunErrors > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailure,
			Severity: "high",
			Message: fmt.Sprintf(
				"Latest run %s finished with %d stage error(s)",
				snap.LastRunID, snap.LastRunErrors,
			),
			Details: map[string]any{
				"run_id": snap.LastRunID,
				"errors": snap.LastRunErrors,
			},
			Timestamp: now,
		})
	}

	if snap.SkippedStudents > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertSkippedStudents,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d student consolidation(s) skipped over last %d runs",
				snap.SkippedStudents, snap.LookbackRuns,
			),
			Details: map[string]any{
				"skipped": snap.SkippedStudents,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// Send posts an alert to the configured webhook. No-op when no webhook is
// configured; the alert is still logged by the caller.
func (a *Alerter) Send(ctx context.Context, alert Alert) error {
	if a.cfg.WebhookURL == "" {
		return nil
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: post webhook")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return eris.Errorf("monitoring: webhook returned %d", resp.StatusCode)
	}

	zap.L().Info("alert sent",
		zap.String("type", string(alert.Type)),
		zap.String("severity", alert.Severity),
	)
	return nil
}
