// Package memory provides the importance-ranked, tiered memory store for the
// task harness: the in-process store, SQL-backed scratch stores, and the
// bridge that exposes them to ADK agents.
package memory

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Well-known record kinds. Kind is free-form; these are the ones the harness
// itself writes.
const (
	KindExperience = "experience"
	KindSkill      = "skill"
	KindLog        = "log"
)

// DefaultRetrieveLimit is the limit used when callers have no preference.
const DefaultRetrieveLimit = 10

// Tier is an advisory storage-class label. Stores carry it but do not act on it.
type Tier string

const (
	TierHot  Tier = "hot"
	TierWarm Tier = "warm"
	TierCold Tier = "cold"
)

// Record is one unit of stored experience. Records are immutable once
// stored; corrections are new records.
type Record struct {
	ID         string
	Kind       string
	Content    any // opaque to the store
	CreatedAt  time.Time
	Importance float64
	Tier       Tier

	// Embedding is optional and only used by similarity search.
	Embedding []float32
}

// NewRecord creates a record stamped with a fresh ID and the current time.
func NewRecord(kind string, content any, importance float64, tier Tier) Record {
	return Record{
		ID:         uuid.NewString(),
		Kind:       kind,
		Content:    content,
		CreatedAt:  time.Now(),
		Importance: importance,
		Tier:       tier,
	}
}

// clone returns a copy that shares no mutable slice with r.
func (r Record) clone() Record {
	r.Embedding = slices.Clone(r.Embedding)
	return r
}

// Exchange is the content the harness records for an answered task.
type Exchange struct {
	TaskID   string `json:"task_id,omitempty"`
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
}

// ScoredRecord pairs a record with its similarity to a query vector.
type ScoredRecord struct {
	Record
	Score float32
}

// TierCounts tallies records per tier.
func TierCounts(records []Record) map[Tier]int {
	counts := make(map[Tier]int)
	for _, r := range records {
		counts[r.Tier]++
	}
	return counts
}
