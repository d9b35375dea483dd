package model

import "time"

// AnomalyKind classifies what an audit check found wrong with a row.
type AnomalyKind string

const (
	AnomalyPriceVariance      AnomalyKind = "price_variance"
	AnomalyNegativePrice      AnomalyKind = "negative_price"
	AnomalyZeroQuantity       AnomalyKind = "zero_quantity"
	AnomalyMissingWorkRequest AnomalyKind = "missing_work_request"
)

// Anomaly is one audit finding. Price and Mean are in cents; Deviation is
// the row's fractional distance from its work request's mean price, so 0.8
// means 80% above or below.
type Anomaly struct {
	Kind        AnomalyKind `json:"kind"`
	WorkRequest string      `json:"work_request,omitempty"`
	RowIndex    int         `json:"row_index"`
	Price       int64       `json:"price_cents,omitempty"`
	Mean        int64       `json:"mean_cents,omitempty"`
	Deviation   float64     `json:"deviation,omitempty"`
	Detail      string      `json:"detail,omitempty"`
}

// RiskLevel grades a run's audit findings.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Rank orders risk levels for trend comparison. Unknown levels rank below
// LOW so a corrupt baseline reads as an improvement target, not a crash.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	}
	return 0
}

// TrendDirection compares this run's audit against the previous baseline.
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendStable    TrendDirection = "stable"
	TrendWorsening TrendDirection = "worsening"
)

// AuditTrend is the delta between consecutive audit runs.
type AuditTrend struct {
	IssuesDelta   int            `json:"issues_delta"`
	Direction     TrendDirection `json:"direction"`
	PreviousCount int            `json:"previous_count"`
	PreviousRisk  RiskLevel      `json:"previous_risk,omitempty"`
}

// AuditSummary is the audit engine's per-run output and the persisted
// baseline for the next run's trend.
type AuditSummary struct {
	RunAt        time.Time           `json:"run_at"`
	RowsAudited  int                 `json:"rows_audited"`
	Anomalies    []Anomaly           `json:"anomalies"`
	CountsByKind map[AnomalyKind]int `json:"counts_by_kind,omitempty"`
	Risk         RiskLevel           `json:"risk"`
	Trend        AuditTrend          `json:"trend"`
}

// AnomalyCount returns the total number of findings.
func (s AuditSummary) AnomalyCount() int { return len(s.Anomalies) }
