package store

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/equitee/equitee-api/internal/model"
)

type recordKey struct {
	zip, facilityID string
}

// MemoryStore is an in-process Store for tests and ephemeral runs.
type MemoryStore struct {
	mu         sync.RWMutex
	facilities map[string]model.Facility
	areas      map[string]model.DemographicArea
	records    map[recordKey]model.AccessibilityScoreRecord
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		facilities: make(map[string]model.Facility),
		areas:      make(map[string]model.DemographicArea),
		records:    make(map[recordKey]model.AccessibilityScoreRecord),
	}
}

// Migrate implements Store.
func (m *MemoryStore) Migrate(context.Context) error { return nil }

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }

// ListFacilities implements FacilityStore.
func (m *MemoryStore) ListFacilities(_ context.Context, kind model.Kind, filter FacilityFilter) ([]model.Facility, error) {
	for flag := range filter.Flags {
		if _, err := flagColumn(flag); err != nil {
			return nil, err
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Facility, 0)
	for _, f := range m.facilities {
		if f.Kind == kind && filter.matches(f) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetFacility implements FacilityStore.
func (m *MemoryStore) GetFacility(_ context.Context, id string) (*model.Facility, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.facilities[id]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "memory: facility %s", id)
	}
	return &f, nil
}

// UpsertFacilities implements FacilityStore.
func (m *MemoryStore) UpsertFacilities(_ context.Context, facilities []model.Facility) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, f := range facilities {
		m.facilities[f.ID] = f
	}
	return int64(len(facilities)), nil
}

// ListAreas implements DemographicStore.
func (m *MemoryStore) ListAreas(context.Context) ([]model.DemographicArea, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.DemographicArea, 0, len(m.areas))
	for _, a := range m.areas {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ZipCode < out[j].ZipCode })
	return out, nil
}

// GetArea implements DemographicStore.
func (m *MemoryStore) GetArea(_ context.Context, zip string) (*model.DemographicArea, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.areas[zip]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "memory: area %s", zip)
	}
	return &a, nil
}

// UpsertAreas implements DemographicStore.
func (m *MemoryStore) UpsertAreas(_ context.Context, areas []model.DemographicArea) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range areas {
		m.areas[a.ZipCode] = a
	}
	return int64(len(areas)), nil
}

// DeleteAll implements ScoreRecordStore.
func (m *MemoryStore) DeleteAll(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := int64(len(m.records))
	m.records = make(map[recordKey]model.AccessibilityScoreRecord)
	return n, nil
}

// InsertBatch implements ScoreRecordStore. A duplicate key rejects the
// whole batch, matching the primary key constraint of the SQL stores.
func (m *MemoryStore) InsertBatch(_ context.Context, records []model.AccessibilityScoreRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[recordKey]bool, len(records))
	for _, r := range records {
		k := recordKey{r.ZipCode, r.FacilityID}
		if _, exists := m.records[k]; exists || seen[k] {
			return 0, eris.Errorf("memory: duplicate score %s/%s", r.ZipCode, r.FacilityID)
		}
		seen[k] = true
	}
	for _, r := range records {
		m.records[recordKey{r.ZipCode, r.FacilityID}] = r
	}
	return int64(len(records)), nil
}

func (m *MemoryStore) sortedRecords(keep func(model.AccessibilityScoreRecord) bool, less func(a, b model.AccessibilityScoreRecord) bool) []model.AccessibilityScoreRecord {
	out := make([]model.AccessibilityScoreRecord, 0)
	for _, r := range m.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// ListByScore implements ScoreRecordStore.
func (m *MemoryStore) ListByScore(_ context.Context, ascending bool, limit int) ([]model.AccessibilityScoreRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := m.sortedRecords(
		func(model.AccessibilityScoreRecord) bool { return true },
		func(a, b model.AccessibilityScoreRecord) bool {
			if a.AccessibilityScore != b.AccessibilityScore {
				if ascending {
					return a.AccessibilityScore < b.AccessibilityScore
				}
				return a.AccessibilityScore > b.AccessibilityScore
			}
			if a.ZipCode != b.ZipCode {
				return a.ZipCode < b.ZipCode
			}
			return a.FacilityID < b.FacilityID
		},
	)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListByZip implements ScoreRecordStore.
func (m *MemoryStore) ListByZip(_ context.Context, zip string) ([]model.AccessibilityScoreRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.sortedRecords(
		func(r model.AccessibilityScoreRecord) bool { return r.ZipCode == zip },
		func(a, b model.AccessibilityScoreRecord) bool {
			if a.AccessibilityScore != b.AccessibilityScore {
				return a.AccessibilityScore > b.AccessibilityScore
			}
			return a.FacilityID < b.FacilityID
		},
	), nil
}

// GetRecord implements ScoreRecordStore.
func (m *MemoryStore) GetRecord(_ context.Context, zip, facilityID string) (*model.AccessibilityScoreRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[recordKey{zip, facilityID}]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "memory: score %s/%s", zip, facilityID)
	}
	return &r, nil
}

// AverageByZip implements ScoreRecordStore.
func (m *MemoryStore) AverageByZip(context.Context) (map[string]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for k, r := range m.records {
		sums[k.zip] += r.AccessibilityScore
		counts[k.zip]++
	}
	for zip, sum := range sums {
		sums[zip] = sum / float64(counts[zip])
	}
	return sums, nil
}
