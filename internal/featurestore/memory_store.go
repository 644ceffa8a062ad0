package featurestore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/crisintel/cris/internal/contract"
)

// MemoryStore is an in-memory feature store for tests and demo mode.
type MemoryStore struct {
	mu        sync.RWMutex
	customers map[int64]Customer
	features  map[int64]map[string]any
}

// NewMemoryStore creates an empty in-memory feature store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		customers: make(map[int64]Customer),
		features:  make(map[int64]map[string]any),
	}
}

// Seed inserts a customer and its raw feature values. Contract columns
// absent from values are filled with zeros so seeded rows always
// satisfy the schema.
func (s *MemoryStore) Seed(c Customer, values map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := make(map[string]any, contract.NumFeatures())
	for _, col := range contract.Columns() {
		if v, ok := values[col]; ok {
			row[col] = v
		} else {
			row[col] = 0.0
		}
	}
	s.customers[c.ID] = c
	s.features[c.ID] = row
}

func (s *MemoryStore) ListCustomers(ctx context.Context) ([]Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Customer, 0, len(s.customers))
	for _, c := range s.customers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CustomerIDs(ctx context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.features))
	for id := range s.features {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *MemoryStore) GetFeatures(ctx context.Context, customerID int64) (*FeatureRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.features[customerID]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrCustomerNotFound, customerID)
	}
	return &FeatureRow{CustomerID: customerID, Raw: copyRaw(row)}, nil
}

func (s *MemoryStore) ListFeatures(ctx context.Context, ids []int64) ([]FeatureRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ids == nil {
		ids = make([]int64, 0, len(s.features))
		for id := range s.features {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []FeatureRow
	for _, id := range ids {
		if row, ok := s.features[id]; ok {
			out = append(out, FeatureRow{CustomerID: id, Raw: copyRaw(row)})
		}
	}
	return out, nil
}

func (s *MemoryStore) Averages(ctx context.Context) (*Averages, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.features) == 0 {
		return &Averages{}, nil
	}
	var avg Averages
	for _, row := range s.features {
		avg.Monetary += contract.Coerce(row["monetary"])
		avg.Frequency += contract.Coerce(row["frequency"])
		avg.RecencyDays += contract.Coerce(row["recency_days"])
	}
	n := float64(len(s.features))
	avg.Monetary /= n
	avg.Frequency /= n
	avg.RecencyDays /= n
	return &avg, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func copyRaw(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
