// Package notify posts audit summaries to a webhook when a run's risk
// reaches the configured minimum. Billing coordinators subscribe the channel
// they actually read; LOW-risk noise stays out of it.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/atlas-utilities/billing-cli/internal/model"
	"github.com/atlas-utilities/billing-cli/internal/resilience"
)

// Notification is the webhook payload for one audited run.
type Notification struct {
	Type      string             `json:"type"`
	RunID     string             `json:"run_id,omitempty"`
	Severity  model.RiskLevel    `json:"severity"`
	Message   string             `json:"message"`
	Summary   model.AuditSummary `json:"summary"`
	Timestamp time.Time          `json:"timestamp"`
}

// Webhook delivers audit notifications over HTTP.
type Webhook struct {
	url     string
	minRisk model.RiskLevel
	client  *http.Client
	retry   resilience.RetryConfig
}

// NewWebhook creates a webhook notifier. An empty URL disables delivery;
// an empty minimum risk defaults to HIGH.
func NewWebhook(url string, minRisk string) *Webhook {
	risk := model.RiskLevel(minRisk)
	if risk.Rank() == 0 {
		risk = model.RiskHigh
	}
	return &Webhook{
		url:     url,
		minRisk: risk,
		client:  &http.Client{Timeout: 10 * time.Second},
		retry:   resilience.DefaultRetryConfig(),
	}
}

// Notify posts the summary if its risk is at or above the minimum. It
// reports whether a notification was actually delivered.
func (w *Webhook) Notify(ctx context.Context, runID string, summary model.AuditSummary) (bool, error) {
	if w.url == "" {
		return false, nil
	}
	if summary.Risk.Rank() < w.minRisk.Rank() {
		zap.L().Debug("notify: below minimum risk",
			zap.String("risk", string(summary.Risk)),
			zap.String("min_risk", string(w.minRisk)),
		)
		return false, nil
	}

	n := Notification{
		Type:     "billing_audit",
		RunID:    runID,
		Severity: summary.Risk,
		Message: fmt.Sprintf("Billing audit flagged %d anomalies across %d rows (risk %s)",
			summary.AnomalyCount(), summary.RowsAudited, summary.Risk),
		Summary:   summary,
		Timestamp: time.Now().UTC(),
	}

	retry := w.retry
	retry.OnRetry = resilience.RetryLogger("webhook", "audit_notification")

	if err := resilience.Do(ctx, retry, func(ctx context.Context) error {
		return w.post(ctx, n)
	}); err != nil {
		return false, err
	}

	zap.L().Info("notify: audit notification sent",
		zap.String("run_id", runID),
		zap.String("severity", string(summary.Risk)),
	)
	return true, nil
}

// post sends one notification. Retryable statuses come back wrapped as
// transient so the retry helper knows to try again.
func (w *Webhook) post(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return eris.Wrap(err, "notify: marshal notification")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "notify: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "notify: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		err := eris.Errorf("notify: webhook returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}
	return nil
}
