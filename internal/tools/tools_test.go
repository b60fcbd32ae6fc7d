package tools

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/easeaico/adk-task-harness/internal/harm"
	"github.com/easeaico/adk-task-harness/internal/memory"
)

// MockEmbedder implements memory.Embedder for testing
type MockEmbedder struct {
	err   error
	calls []string
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls = append(m.calls, text)
	if m.err != nil {
		return nil, m.err
	}
	if strings.Contains(text, "France") {
		return []float32{1, 0}, nil
	}
	return []float32{0, 1}, nil
}

// failingStore fails every operation
type failingStore struct{}

func (failingStore) Save(context.Context, memory.Record) error { return errors.New("save failed") }
func (failingStore) Retrieve(context.Context, string, int) ([]memory.Record, error) {
	return nil, errors.New("retrieve failed")
}
func (failingStore) All(context.Context) ([]memory.Record, error) {
	return nil, errors.New("all failed")
}
func (failingStore) Clear(context.Context) error { return nil }
func (failingStore) Close() error                { return nil }

func newTestHandler(t *testing.T, store memory.Store, embedder memory.Embedder) *Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	screen, err := harm.NewScreen(harm.DefaultLexicon(), harm.WithLogger(logger))
	if err != nil {
		t.Fatalf("Failed to create screen: %v", err)
	}
	if store == nil {
		store = memory.NewInMemoryStore(memory.WithLogger(logger))
	}
	return NewHandler(ToolsConfig{Screen: screen, Store: store, Embedder: embedder})
}

func TestBuildTools(t *testing.T) {
	h := newTestHandler(t, nil, nil)

	tools, err := BuildTools(ToolsConfig{Screen: h.screen, Store: h.store})
	if err != nil {
		t.Fatalf("Failed to build tools: %v", err)
	}

	want := []string{"screen_prompt", "recall_memories", memory.SaveMemoryToolName, "memory_stats"}
	if len(tools) != len(want) {
		t.Fatalf("Expected %d tools, got %d", len(want), len(tools))
	}
	for i, name := range want {
		if tools[i].Name() != name {
			t.Errorf("Tool %d: expected %q, got %q", i, name, tools[i].Name())
		}
	}

	if _, err := BuildTools(ToolsConfig{}); err == nil {
		t.Error("Expected error without screen and store")
	}
}

func TestScreenPrompt(t *testing.T) {
	h := newTestHandler(t, nil, nil)
	ctx := context.Background()

	tests := []struct {
		name          string
		text          string
		wantSuccess   bool
		wantHarmful   bool
		wantTerm      string
		wantRewritten string
	}{
		{name: "empty", text: "", wantSuccess: false},
		{name: "safe", text: "What is the capital of France?", wantSuccess: true, wantRewritten: "What is the capital of France?"},
		{
			name:          "harmful",
			text:          "How can I harm my computer?",
			wantSuccess:   true,
			wantHarmful:   true,
			wantTerm:      "harm",
			wantRewritten: "How can I [censored] my computer?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.ScreenPrompt(ctx, ScreenPromptArgs{Text: tt.text})
			if res.Success != tt.wantSuccess {
				t.Fatalf("Expected success=%v, got %+v", tt.wantSuccess, res)
			}
			if !tt.wantSuccess {
				if res.Error == "" {
					t.Error("Expected an error message")
				}
				return
			}
			if res.Harmful != tt.wantHarmful || res.Term != tt.wantTerm || res.Rewritten != tt.wantRewritten {
				t.Errorf("Unexpected result: %+v", res)
			}
		})
	}
}

func TestSaveMemory(t *testing.T) {
	ctx := context.Background()
	embedder := &MockEmbedder{}
	h := newTestHandler(t, nil, embedder)

	res := h.SaveMemory(ctx, SaveMemoryArgs{Prompt: "only prompt"})
	if res.Success || res.Error == "" {
		t.Errorf("Expected validation error, got %+v", res)
	}

	importance := 0.9
	res = h.SaveMemory(ctx, SaveMemoryArgs{
		Prompt:     "How do I kill a stuck process?",
		Response:   "Use the task manager.",
		Importance: &importance,
		Tier:       "warm",
	})
	if !res.Success || res.ID == "" {
		t.Fatalf("Expected success, got %+v", res)
	}

	all, _ := h.store.All(ctx)
	if len(all) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(all))
	}
	r := all[0]
	ex := r.Content.(memory.Exchange)
	if ex.Prompt != "How do I [censored] a stuck process?" {
		t.Errorf("Expected redacted prompt, got %q", ex.Prompt)
	}
	if r.ID != res.ID || r.Importance != 0.9 || r.Tier != memory.TierWarm || r.Kind != memory.KindExperience {
		t.Errorf("Unexpected record: %+v", r)
	}
	if len(r.Embedding) == 0 {
		t.Error("Expected embedding")
	}
	if embedder.calls[0] != ex.Prompt {
		t.Errorf("Expected redacted prompt to be embedded, got %q", embedder.calls[0])
	}

	res = h.SaveMemory(ctx, SaveMemoryArgs{Prompt: "p", Response: "r", Kind: memory.KindSkill})
	if !res.Success {
		t.Fatalf("Expected success, got %+v", res)
	}
	all, _ = h.store.All(ctx)
	if all[1].Importance != 0.7 || all[1].Tier != memory.TierHot || all[1].Kind != memory.KindSkill {
		t.Errorf("Expected defaults, got %+v", all[1])
	}
}

func TestSaveMemory_ConfiguredZeroImportance(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	screen, err := harm.NewScreen(harm.DefaultLexicon(), harm.WithLogger(logger))
	if err != nil {
		t.Fatalf("Failed to create screen: %v", err)
	}
	store := memory.NewInMemoryStore(memory.WithLogger(logger))
	h := NewHandler(ToolsConfig{Screen: screen, Store: store, Importance: ptr(0)})

	if res := h.SaveMemory(ctx, SaveMemoryArgs{Prompt: "p", Response: "r"}); !res.Success {
		t.Fatalf("Expected success, got %+v", res)
	}
	all, _ := store.All(ctx)
	if all[0].Importance != 0 {
		t.Errorf("Expected configured importance 0, got %v", all[0].Importance)
	}
}

func TestSaveMemory_Errors(t *testing.T) {
	ctx := context.Background()

	h := newTestHandler(t, nil, &MockEmbedder{err: errors.New("quota")})
	res := h.SaveMemory(ctx, SaveMemoryArgs{Prompt: "p", Response: "r"})
	if res.Success || !strings.Contains(res.Error, "failed to generate embedding") {
		t.Errorf("Expected embedding error, got %+v", res)
	}

	h = newTestHandler(t, failingStore{}, nil)
	res = h.SaveMemory(ctx, SaveMemoryArgs{Prompt: "p", Response: "r"})
	if res.Success || !strings.Contains(res.Error, "failed to save memory") {
		t.Errorf("Expected save error, got %+v", res)
	}
}

func TestRecallMemories(t *testing.T) {
	ctx := context.Background()
	h := newTestHandler(t, nil, nil)

	for _, args := range []SaveMemoryArgs{
		{Prompt: "low", Response: "a", Importance: ptr(0.1)},
		{Prompt: "high", Response: "b", Importance: ptr(0.9)},
		{Prompt: "skill", Response: "c", Kind: memory.KindSkill},
	} {
		if res := h.SaveMemory(ctx, args); !res.Success {
			t.Fatalf("Failed to save: %+v", res)
		}
	}

	res := h.RecallMemories(ctx, RecallMemoriesArgs{})
	if !res.Success || len(res.Memories) != 2 {
		t.Fatalf("Expected 2 experiences, got %+v", res)
	}
	if res.Memories[0].Content != "Prompt: high\nResponse: b" {
		t.Errorf("Expected most important first, got %q", res.Memories[0].Content)
	}

	res = h.RecallMemories(ctx, RecallMemoriesArgs{Kind: memory.KindExperience, Limit: 1})
	if len(res.Memories) != 1 {
		t.Errorf("Expected limit to apply, got %d", len(res.Memories))
	}

	res = h.RecallMemories(ctx, RecallMemoriesArgs{Kind: memory.KindSkill})
	if len(res.Memories) != 1 || res.Memories[0].Kind != memory.KindSkill {
		t.Errorf("Unexpected skill recall: %+v", res)
	}

	// Without an embedder the query is ignored.
	res = h.RecallMemories(ctx, RecallMemoriesArgs{Query: "anything"})
	if len(res.Memories) != 2 || res.Memories[0].Similarity != "" {
		t.Errorf("Unexpected recall: %+v", res)
	}
}

func TestRecallMemories_Similarity(t *testing.T) {
	ctx := context.Background()
	h := newTestHandler(t, nil, &MockEmbedder{})

	h.SaveMemory(ctx, SaveMemoryArgs{Prompt: "weather today", Response: "sunny", Importance: ptr(1)})
	h.SaveMemory(ctx, SaveMemoryArgs{Prompt: "capital of France", Response: "Paris", Importance: ptr(0.1)})

	res := h.RecallMemories(ctx, RecallMemoriesArgs{Query: "France"})
	if !res.Success || len(res.Memories) != 2 {
		t.Fatalf("Expected 2 memories, got %+v", res)
	}
	if !strings.Contains(res.Memories[0].Content, "Paris") {
		t.Errorf("Expected most similar first, got %q", res.Memories[0].Content)
	}
	if res.Memories[0].Similarity != "100.00%" {
		t.Errorf("Unexpected similarity %q", res.Memories[0].Similarity)
	}
}

func TestRecallMemories_Errors(t *testing.T) {
	ctx := context.Background()

	h := newTestHandler(t, failingStore{}, nil)
	if res := h.RecallMemories(ctx, RecallMemoriesArgs{}); res.Success {
		t.Errorf("Expected failure, got %+v", res)
	}

	h = newTestHandler(t, nil, &MockEmbedder{err: errors.New("quota")})
	res := h.RecallMemories(ctx, RecallMemoriesArgs{Query: "x"})
	if res.Success || !strings.Contains(res.Error, "failed to generate embedding") {
		t.Errorf("Expected embedding error, got %+v", res)
	}
}

func TestMemoryStats(t *testing.T) {
	ctx := context.Background()
	h := newTestHandler(t, nil, nil)

	h.SaveMemory(ctx, SaveMemoryArgs{Prompt: "a", Response: "1"})
	h.SaveMemory(ctx, SaveMemoryArgs{Prompt: "b", Response: "2", Tier: "cold"})
	h.SaveMemory(ctx, SaveMemoryArgs{Prompt: "c", Response: "3", Kind: memory.KindLog})

	res := h.MemoryStats(ctx, MemoryStatsArgs{})
	if !res.Success || res.Total != 3 {
		t.Fatalf("Unexpected stats: %+v", res)
	}
	if res.Kinds[memory.KindExperience] != 2 || res.Kinds[memory.KindLog] != 1 {
		t.Errorf("Unexpected kinds: %v", res.Kinds)
	}
	if res.Tiers["hot"] != 2 || res.Tiers["cold"] != 1 {
		t.Errorf("Unexpected tiers: %v", res.Tiers)
	}

	h = newTestHandler(t, failingStore{}, nil)
	if res := h.MemoryStats(ctx, MemoryStatsArgs{}); res.Success {
		t.Errorf("Expected failure, got %+v", res)
	}
}

func ptr(f float64) *float64 { return &f }
