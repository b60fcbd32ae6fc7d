package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/easeaico/adk-task-harness/internal/harm"
	"github.com/easeaico/adk-task-harness/internal/memory"
)

// maxRecallLimit caps how many memories a single tool call may return.
const maxRecallLimit = 50

// Handler provides implementations for all agent tools.
type Handler struct {
	screen     *harm.Screen
	store      memory.Store
	embedder   memory.Embedder // optional
	importance float64
	tier       memory.Tier
}

// NewHandler creates a new tool handler with the given dependencies.
func NewHandler(cfg ToolsConfig) *Handler {
	h := &Handler{
		screen:     cfg.Screen,
		store:      cfg.Store,
		embedder:   cfg.Embedder,
		importance: 0.7,
		tier:       cfg.Tier,
	}
	if cfg.Importance != nil {
		h.importance = *cfg.Importance
	}
	if h.tier == "" {
		h.tier = memory.TierHot
	}
	return h
}

// ScreenPrompt reports whether text trips the harm screen and returns its
// rewritten form.
func (h *Handler) ScreenPrompt(ctx context.Context, args ScreenPromptArgs) ScreenPromptResult {
	if args.Text == "" {
		return ScreenPromptResult{Success: false, Error: "text is required"}
	}

	term, harmful := h.screen.DetectTerm(args.Text)
	result := ScreenPromptResult{
		Success:   true,
		Harmful:   harmful,
		Term:      term,
		Rewritten: args.Text,
	}
	if harmful {
		result.Rewritten = h.screen.Rewrite(args.Text)
	}
	return result
}

// RecallMemories returns stored memories of one kind. With a query and an
// embedder, memories are ranked by similarity to the query; otherwise by
// importance.
func (h *Handler) RecallMemories(ctx context.Context, args RecallMemoriesArgs) RecallMemoriesResult {
	kind := args.Kind
	if kind == "" {
		kind = memory.KindExperience
	}
	limit := args.Limit
	if limit <= 0 {
		limit = memory.DefaultRetrieveLimit
	}
	limit = min(limit, maxRecallLimit)

	query := strings.TrimSpace(args.Query)
	if searcher, ok := h.store.(memory.SimilaritySearcher); ok && h.embedder != nil && query != "" {
		embedding, err := h.embedder.Embed(ctx, query)
		if err != nil {
			return RecallMemoriesResult{Success: false, Error: fmt.Sprintf("failed to generate embedding: %v", err)}
		}
		scored, err := searcher.SearchSimilar(ctx, kind, embedding, limit)
		if err != nil {
			return RecallMemoriesResult{Success: false, Error: fmt.Sprintf("failed to search memories: %v", err)}
		}

		items := make([]MemoryItem, 0, len(scored))
		for _, sr := range scored {
			item := toMemoryItem(sr.Record)
			item.Similarity = fmt.Sprintf("%.2f%%", sr.Score*100)
			items = append(items, item)
		}
		return RecallMemoriesResult{Success: true, Memories: items}
	}

	records, err := h.store.Retrieve(ctx, kind, limit)
	if err != nil {
		return RecallMemoriesResult{Success: false, Error: fmt.Sprintf("failed to retrieve memories: %v", err)}
	}

	items := make([]MemoryItem, 0, len(records))
	for _, r := range records {
		items = append(items, toMemoryItem(r))
	}
	return RecallMemoriesResult{Success: true, Memories: items}
}

// SaveMemory records an exchange the agent considers worth keeping. The
// prompt goes through the harm screen first, so only the rewritten form is
// stored.
func (h *Handler) SaveMemory(ctx context.Context, args SaveMemoryArgs) SaveMemoryResult {
	if args.Prompt == "" || args.Response == "" {
		return SaveMemoryResult{Success: false, Error: "prompt and response are both required"}
	}

	kind := args.Kind
	if kind == "" {
		kind = memory.KindExperience
	}
	importance := h.importance
	if args.Importance != nil {
		importance = *args.Importance
	}
	tier := h.tier
	if args.Tier != "" {
		tier = memory.Tier(args.Tier)
	}

	prompt := h.screen.Rewrite(args.Prompt)
	record := memory.NewRecord(kind, memory.Exchange{
		Prompt:   prompt,
		Response: args.Response,
	}, importance, tier)

	if h.embedder != nil {
		embedding, err := h.embedder.Embed(ctx, prompt)
		if err != nil {
			return SaveMemoryResult{Success: false, Error: fmt.Sprintf("failed to generate embedding: %v", err)}
		}
		record.Embedding = embedding
	}

	if err := h.store.Save(ctx, record); err != nil {
		return SaveMemoryResult{Success: false, Error: fmt.Sprintf("failed to save memory: %v", err)}
	}
	return SaveMemoryResult{Success: true, ID: record.ID}
}

// MemoryStats summarizes the store by kind and tier.
func (h *Handler) MemoryStats(ctx context.Context, _ MemoryStatsArgs) MemoryStatsResult {
	records, err := h.store.All(ctx)
	if err != nil {
		return MemoryStatsResult{Success: false, Error: fmt.Sprintf("failed to list memories: %v", err)}
	}

	kinds := make(map[string]int)
	for _, r := range records {
		kinds[r.Kind]++
	}
	tiers := make(map[string]int)
	for tier, n := range memory.TierCounts(records) {
		tiers[string(tier)] = n
	}

	return MemoryStatsResult{Success: true, Total: len(records), Kinds: kinds, Tiers: tiers}
}

func toMemoryItem(r memory.Record) MemoryItem {
	return MemoryItem{
		ID:         r.ID,
		Kind:       r.Kind,
		Content:    memory.RenderContent(r.Content),
		Importance: r.Importance,
		Tier:       string(r.Tier),
		CreatedAt:  r.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}
