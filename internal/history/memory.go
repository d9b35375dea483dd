package history

import (
	"context"
	"sort"
	"sync"

	"github.com/atlas-utilities/billing-cli/internal/model"
)

// MemoryStore implements Store in process memory. It backs tests and the
// dry-run mode, where decisions must behave exactly as they would against a
// real store without leaving anything behind.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[string]model.HistoryRecord
	baseline *model.AuditSummary
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{records: make(map[string]model.HistoryRecord)}
}

// Seed pre-loads records, for tests that need existing history.
func (m *MemoryStore) Seed(recs ...model.HistoryRecord) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range recs {
		m.records[r.Key] = r
	}
	return m
}

func (m *MemoryStore) All(ctx context.Context) (map[string]model.HistoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]model.HistoryRecord, len(m.records))
	for k, v := range m.records {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) (*model.HistoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) Put(ctx context.Context, rec model.HistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Key] = rec
	return nil
}

func (m *MemoryStore) List(ctx context.Context, filter Filter) ([]model.HistoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.records))
	for k := range m.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []model.HistoryRecord
	skipped := 0
	for _, k := range keys {
		rec := m.records[k]
		if filter.WorkRequest != "" {
			pk, err := model.ParsePacketKey(rec.Key)
			if err != nil || pk.WorkRequest != filter.WorkRequest {
				continue
			}
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, rec)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) Reset(ctx context.Context, keys []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(keys) == 0 {
		n := len(m.records)
		m.records = make(map[string]model.HistoryRecord)
		return n, nil
	}
	n := 0
	for _, k := range keys {
		if _, ok := m.records[k]; ok {
			delete(m.records, k)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) LoadBaseline(ctx context.Context) (*model.AuditSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.baseline == nil {
		return nil, nil
	}
	cp := *m.baseline
	return &cp, nil
}

func (m *MemoryStore) SaveBaseline(ctx context.Context, summary model.AuditSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baseline = &summary
	return nil
}

func (m *MemoryStore) Migrate(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
