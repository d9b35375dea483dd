// Package decision answers one question per packet: render it again or skip
// it. The rules run in a fixed order so the run report's reasons are stable.
package decision

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/atlas-utilities/billing-cli/internal/model"
)

// ArtifactChecker reports whether a previously generated artifact still
// exists at its recorded reference. A billing packet whose file was deleted
// must regenerate even though nothing economic changed.
type ArtifactChecker interface {
	Exists(ctx context.Context, ref string) (bool, error)
}

// Engine applies the ordered regeneration rules against the history loaded
// at run start.
type Engine struct {
	checker ArtifactChecker
	force   bool
}

// New returns an Engine. With force set, every packet regenerates and the
// remaining rules are never consulted.
func New(checker ArtifactChecker, force bool) *Engine {
	return &Engine{checker: checker, force: force}
}

// Decide returns the verdict for one packet:
//
//	force set                     -> Generate (forced)
//	no history record             -> Generate (first_generation)
//	stored fingerprint differs    -> Generate (fingerprint_changed)
//	recorded artifact gone        -> Generate (artifact_missing)
//	otherwise                     -> Skip (unchanged)
//
// The artifact check is the only rule that can fail; its error aborts just
// this packet, not the run.
func (e *Engine) Decide(ctx context.Context, key model.PacketKey, fp string, hist map[string]model.HistoryRecord) (model.Decision, error) {
	if e.force {
		return model.Decision{Verdict: model.VerdictGenerate, Reason: model.ReasonForced}, nil
	}

	rec, ok := hist[key.String()]
	if !ok {
		return model.Decision{Verdict: model.VerdictGenerate, Reason: model.ReasonFirstGeneration}, nil
	}
	if rec.Fingerprint != fp {
		return model.Decision{Verdict: model.VerdictGenerate, Reason: model.ReasonFingerprintChanged}, nil
	}

	exists := false
	if rec.ArtifactRef != "" {
		var err error
		exists, err = e.checker.Exists(ctx, rec.ArtifactRef)
		if err != nil {
			return model.Decision{}, eris.Wrapf(err, "decision: check artifact for %s", key)
		}
	}
	if !exists {
		return model.Decision{Verdict: model.VerdictGenerate, Reason: model.ReasonArtifactMissing}, nil
	}

	return model.Decision{Verdict: model.VerdictSkip, Reason: model.ReasonUnchanged}, nil
}
