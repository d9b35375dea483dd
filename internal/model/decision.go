package model

// Verdict is the change-decision outcome for one packet.
type Verdict string

const (
	VerdictGenerate Verdict = "generate"
	VerdictSkip     Verdict = "skip"
)

// DecisionReason explains why a verdict was reached. Reasons are part of the
// run report, so operators can tell a first generation from a retry after a
// lost artifact.
type DecisionReason string

const (
	ReasonForced             DecisionReason = "forced"
	ReasonFirstGeneration    DecisionReason = "first_generation"
	ReasonFingerprintChanged DecisionReason = "fingerprint_changed"
	ReasonArtifactMissing    DecisionReason = "artifact_missing"
	ReasonUnchanged          DecisionReason = "unchanged"
)

// Decision is the verdict for one packet plus its reason.
type Decision struct {
	Verdict Verdict        `json:"verdict"`
	Reason  DecisionReason `json:"reason"`
}

// ShouldGenerate reports whether the packet must be rendered this run.
func (d Decision) ShouldGenerate() bool { return d.Verdict == VerdictGenerate }
