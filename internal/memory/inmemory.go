package memory

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// InMemoryStore keeps records in an insertion-ordered slice for the lifetime
// of the process. A single RWMutex guards the slice, so one store may be
// shared by concurrent tasks. None of its methods return an error.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []Record
	logger  *slog.Logger
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore(opts ...Option) *InMemoryStore {
	o := buildOptions(opts)
	return &InMemoryStore{logger: o.logger}
}

// Save appends record.
func (s *InMemoryStore) Save(ctx context.Context, record Record) error {
	s.mu.Lock()
	s.records = append(s.records, record.clone())
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "memory stored",
		"kind", record.Kind,
		"importance", record.Importance,
		"tier", string(record.Tier),
	)
	return nil
}

// Retrieve returns up to limit records of kind, most important first.
func (s *InMemoryStore) Retrieve(ctx context.Context, kind string, limit int) ([]Record, error) {
	s.mu.RLock()
	matched := make([]Record, 0)
	for _, r := range s.records {
		if r.Kind == kind {
			matched = append(matched, r.clone())
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(matched, byImportance)
	result := topK(matched, limit)

	s.logger.InfoContext(ctx, "memory retrieved",
		"kind", kind,
		"matched", len(matched),
		"returned", len(result),
	)
	return result, nil
}

// All returns every record in insertion order.
func (s *InMemoryStore) All(ctx context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, len(s.records))
	for i, r := range s.records {
		out[i] = r.clone()
	}
	return out, nil
}

// Clear drops every record.
func (s *InMemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	n := len(s.records)
	s.records = nil
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "memory cleared", "removed", n)
	return nil
}

// Len reports the number of stored records.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// SearchSimilar ranks embedded records of kind by cosine similarity to query.
func (s *InMemoryStore) SearchSimilar(ctx context.Context, kind string, query []float32, limit int) ([]ScoredRecord, error) {
	records, _ := s.All(ctx)
	return rankSimilar(records, kind, query, limit), nil
}

// Close is a no-op.
func (s *InMemoryStore) Close() error {
	return nil
}

var (
	_ Store              = (*InMemoryStore)(nil)
	_ SimilaritySearcher = (*InMemoryStore)(nil)
)
