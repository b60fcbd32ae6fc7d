package memory

import (
	"cmp"
	"context"
	"log/slog"
	"math"
	"slices"
)

// Store defines the contract for memory operations.
//
// Save appends without validation or deduplication, so it is not idempotent:
// callers must not blindly retry it. Retrieve returns records of one kind
// ordered by descending importance, ties kept in insertion order, and at most
// limit of them; limit <= 0 yields an empty result. All returns every record
// in insertion order.
type Store interface {
	Save(ctx context.Context, record Record) error
	Retrieve(ctx context.Context, kind string, limit int) ([]Record, error)
	All(ctx context.Context) ([]Record, error)
	Clear(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// SimilaritySearcher is implemented by stores that can rank records by
// cosine similarity to a query vector. An empty kind searches every kind.
// Records without an embedding never match.
type SimilaritySearcher interface {
	SearchSimilar(ctx context.Context, kind string, query []float32, limit int) ([]ScoredRecord, error)
}

// Embedder generates text embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Option configures a store.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used for store events.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// byImportance orders records by descending importance.
func byImportance(a, b Record) int {
	return cmp.Compare(b.Importance, a.Importance)
}

// topK returns at most limit leading records, never nil.
func topK[T any](items []T, limit int) []T {
	if limit <= 0 {
		return []T{}
	}
	return items[:min(limit, len(items))]
}

// rankSimilar scores records against query and returns the best limit.
func rankSimilar(records []Record, kind string, query []float32, limit int) []ScoredRecord {
	var results []ScoredRecord
	for _, r := range records {
		if kind != "" && r.Kind != kind {
			continue
		}
		if len(r.Embedding) == 0 || len(r.Embedding) != len(query) {
			continue
		}
		results = append(results, ScoredRecord{
			Record: r,
			Score:  cosineSimilarity(query, r.Embedding),
		})
	}

	slices.SortStableFunc(results, func(a, b ScoredRecord) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return topK(results, limit)
}

// cosineSimilarity calculates the cosine similarity between two vectors.
// The result is in range [-1, 1], where 1 means identical direction,
// 0 means orthogonal, and -1 means opposite direction.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}
