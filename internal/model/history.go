package model

import "time"

// HistoryRecord is what the pipeline remembers about the last successful
// generation for one packet key. Created on first generation, overwritten on
// every regeneration, removed only by an explicit reset.
type HistoryRecord struct {
	Key         string    `json:"key"` // PacketKey.String()
	Fingerprint string    `json:"fingerprint"`
	ArtifactRef string    `json:"artifact_ref"`
	GeneratedAt time.Time `json:"generated_at"`
}
