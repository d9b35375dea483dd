package model

import "time"

// PhaseStatus represents the state of one pipeline phase.
type PhaseStatus string

const (
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
	PhaseStatusSkipped  PhaseStatus = "skipped"
)

// PhaseResult records the outcome of one pipeline phase for the run report.
type PhaseResult struct {
	Name     string      `json:"name"`
	Status   PhaseStatus `json:"status"`
	Duration int64       `json:"duration_ms"`
	Error    string      `json:"error,omitempty"`
}

// PacketOutcome is the per-packet line of a run report: what was decided
// and what happened when the decision was acted on.
type PacketOutcome struct {
	Key         string         `json:"key"`
	Fingerprint string         `json:"fingerprint"`
	Verdict     Verdict        `json:"verdict"`
	Reason      DecisionReason `json:"reason"`
	RowCount    int            `json:"row_count"`
	TotalCents  int64          `json:"total_cents"`
	ArtifactRef string         `json:"artifact_ref,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// RunReport is the full outcome of one pipeline run.
type RunReport struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	RowsTotal    int                  `json:"rows_total"`
	RowsAccepted int                  `json:"rows_accepted"`
	Rejected     map[RejectReason]int `json:"rejected_by_reason,omitempty"`

	HelperFallbacks []HelperFallback `json:"helper_fallbacks,omitempty"`

	Packets   int             `json:"packets"`
	Generated int             `json:"generated"`
	Skipped   int             `json:"skipped"`
	Failed    int             `json:"failed"`
	Outcomes  []PacketOutcome `json:"outcomes"`

	Audit  *AuditSummary `json:"audit,omitempty"`
	Phases []PhaseResult `json:"phases"`
}
