// Package history persists what the pipeline generated last: one record per
// packet key, plus the single audit baseline used for trend computation.
package history

import (
	"context"

	"github.com/atlas-utilities/billing-cli/internal/model"
)

// Filter specifies criteria for listing history records.
type Filter struct {
	WorkRequest string `json:"work_request,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	Offset      int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for generation history. Missing
// records read as (nil, nil); only storage faults are errors.
type Store interface {
	// History records, keyed by PacketKey.String().
	All(ctx context.Context) (map[string]model.HistoryRecord, error)
	Get(ctx context.Context, key string) (*model.HistoryRecord, error)
	Put(ctx context.Context, rec model.HistoryRecord) error
	List(ctx context.Context, filter Filter) ([]model.HistoryRecord, error)
	// Reset deletes the named keys, or every record when keys is empty, and
	// returns the number removed. The only way history is ever deleted.
	Reset(ctx context.Context, keys []string) (int, error)

	// Audit baseline: the previous run's summary, read at start and
	// overwritten at end.
	LoadBaseline(ctx context.Context) (*model.AuditSummary, error)
	SaveBaseline(ctx context.Context, summary model.AuditSummary) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
