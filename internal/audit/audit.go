// Package audit inspects billable rows for pricing anomalies and integrity
// faults, grades the run's overall risk, and tracks the trend against the
// previous run's baseline. Audit findings never block billing; they feed the
// report and the notification webhook.
package audit

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-utilities/billing-cli/internal/model"
)

// Config holds the audit thresholds. Zero values fall back to the defaults;
// the literals here are starting points, not business law.
type Config struct {
	// PriceVarianceThreshold is the fractional deviation from a work
	// request's mean price beyond which a row is flagged. 0.5 means 50%.
	PriceVarianceThreshold float64
	// HighSeverityThreshold is the deviation above which a single anomaly
	// pushes the run to HIGH risk.
	HighSeverityThreshold float64
	// HighRiskAnomalyCount is the anomaly count above which the run is HIGH
	// risk regardless of individual severity.
	HighRiskAnomalyCount int
}

const (
	defaultVarianceThreshold    = 0.5
	defaultHighSeverity         = 0.75
	defaultHighRiskAnomalyCount = 10
)

func (c Config) withDefaults() Config {
	if c.PriceVarianceThreshold <= 0 {
		c.PriceVarianceThreshold = defaultVarianceThreshold
	}
	if c.HighSeverityThreshold <= 0 {
		c.HighSeverityThreshold = defaultHighSeverity
	}
	if c.HighRiskAnomalyCount <= 0 {
		c.HighRiskAnomalyCount = defaultHighRiskAnomalyCount
	}
	return c
}

// Engine runs the audit checks.
type Engine struct {
	cfg Config
}

// New returns an Engine with zero config fields defaulted.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg.withDefaults()}
}

// Run audits rows against the previous baseline. Rows are examined in input
// order and every finding is reported in that order, so two runs over the
// same sheet produce byte-identical summaries apart from the timestamp.
func (e *Engine) Run(rows []model.CanonicalRow, prev *model.AuditSummary) model.AuditSummary {
	log := zap.L().With(zap.String("component", "audit"))

	means := meanPriceByWorkRequest(rows)

	summary := model.AuditSummary{
		RunAt:        time.Now().UTC(),
		RowsAudited:  len(rows),
		CountsByKind: make(map[model.AnomalyKind]int),
	}

	for _, row := range rows {
		for _, a := range e.checkRow(row, means) {
			summary.Anomalies = append(summary.Anomalies, a)
			summary.CountsByKind[a.Kind]++
		}
	}
	if len(summary.CountsByKind) == 0 {
		summary.CountsByKind = nil
	}

	summary.Risk = e.risk(summary.Anomalies)
	summary.Trend = trend(summary, prev)

	log.Info("audit complete",
		zap.Int("rows", summary.RowsAudited),
		zap.Int("anomalies", len(summary.Anomalies)),
		zap.String("risk", string(summary.Risk)),
		zap.String("trend", string(summary.Trend.Direction)))
	return summary
}

// checkRow returns the row's findings in a fixed kind order.
func (e *Engine) checkRow(row model.CanonicalRow, means map[string]float64) []model.Anomaly {
	var out []model.Anomaly

	if row.WorkRequest != "" && row.PriceParsed {
		if mean, ok := means[row.WorkRequest]; ok && mean != 0 {
			dev := math.Abs(row.TotalPrice.Float64()-mean) / math.Abs(mean)
			if dev > e.cfg.PriceVarianceThreshold {
				out = append(out, model.Anomaly{
					Kind:        model.AnomalyPriceVariance,
					WorkRequest: row.WorkRequest,
					RowIndex:    row.Index,
					Price:       int64(row.TotalPrice),
					Mean:        int64(math.Round(mean * 100)),
					Deviation:   dev,
					Detail:      fmt.Sprintf("price %s deviates %.0f%% from work-request mean %.2f", row.TotalPrice, dev*100, mean),
				})
			}
		}
	}

	if row.PriceParsed && row.TotalPrice < 0 {
		out = append(out, model.Anomaly{
			Kind:        model.AnomalyNegativePrice,
			WorkRequest: row.WorkRequest,
			RowIndex:    row.Index,
			Price:       int64(row.TotalPrice),
			Detail:      fmt.Sprintf("negative price %s", row.TotalPrice),
		})
	}

	if row.QuantityParsed && row.Quantity == 0 {
		out = append(out, model.Anomaly{
			Kind:        model.AnomalyZeroQuantity,
			WorkRequest: row.WorkRequest,
			RowIndex:    row.Index,
			Detail:      "quantity is zero",
		})
	}

	if row.WorkRequest == "" {
		out = append(out, model.Anomaly{
			Kind:     model.AnomalyMissingWorkRequest,
			RowIndex: row.Index,
			Detail:   "row has no work request id",
		})
	}
	return out
}

// risk grades the findings: LOW only for a clean run, HIGH when any single
// deviation clears the high-severity bar or the sheer count does, MEDIUM for
// everything in between.
func (e *Engine) risk(anomalies []model.Anomaly) model.RiskLevel {
	if len(anomalies) == 0 {
		return model.RiskLow
	}
	if len(anomalies) > e.cfg.HighRiskAnomalyCount {
		return model.RiskHigh
	}
	for _, a := range anomalies {
		if a.Kind == model.AnomalyPriceVariance && a.Deviation > e.cfg.HighSeverityThreshold {
			return model.RiskHigh
		}
	}
	return model.RiskMedium
}

// trend compares this run against the previous baseline. With no baseline
// there is nothing to compare, and the first run reads as stable. When the
// anomaly count holds steady but the risk level moved, the risk rank decides
// the direction.
func trend(cur model.AuditSummary, prev *model.AuditSummary) model.AuditTrend {
	if prev == nil {
		return model.AuditTrend{Direction: model.TrendStable}
	}

	t := model.AuditTrend{
		IssuesDelta:   cur.AnomalyCount() - prev.AnomalyCount(),
		PreviousCount: prev.AnomalyCount(),
		PreviousRisk:  prev.Risk,
	}
	switch {
	case t.IssuesDelta > 0:
		t.Direction = model.TrendWorsening
	case t.IssuesDelta < 0:
		t.Direction = model.TrendImproving
	case cur.Risk.Rank() > prev.Risk.Rank():
		t.Direction = model.TrendWorsening
	case cur.Risk.Rank() < prev.Risk.Rank():
		t.Direction = model.TrendImproving
	default:
		t.Direction = model.TrendStable
	}
	return t
}

// meanPriceByWorkRequest averages parsed prices per work request, in major
// units. Rows without a work request or a parsed price stay out of the mean.
func meanPriceByWorkRequest(rows []model.CanonicalRow) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, row := range rows {
		if row.WorkRequest == "" || !row.PriceParsed {
			continue
		}
		sums[row.WorkRequest] += row.TotalPrice.Float64()
		counts[row.WorkRequest]++
	}
	means := make(map[string]float64, len(sums))
	for wr, sum := range sums {
		means[wr] = sum / float64(counts[wr])
	}
	return means
}
