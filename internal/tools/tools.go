// Package tools defines the ADK tools that let an agent screen prompts and
// read and write the harness memory.
package tools

import (
	"fmt"

	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"

	"github.com/easeaico/adk-task-harness/internal/harm"
	"github.com/easeaico/adk-task-harness/internal/memory"
)

// ToolsConfig holds dependencies for creating tools.
type ToolsConfig struct {
	Screen     *harm.Screen
	Store      memory.Store
	Embedder   memory.Embedder // optional
	Importance *float64        // default 0.7
	Tier       memory.Tier     // default hot
}

// --- Tool Input/Output Structs ---

// ScreenPromptArgs is the input for screen_prompt tool.
type ScreenPromptArgs struct {
	Text string `json:"text" jsonschema:"the text to check for harmful terms"`
}

// ScreenPromptResult is the output for screen_prompt tool.
type ScreenPromptResult struct {
	Success   bool   `json:"success"`
	Harmful   bool   `json:"harmful"`
	Term      string `json:"term,omitempty"`
	Rewritten string `json:"rewritten,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RecallMemoriesArgs is the input for recall_memories tool.
type RecallMemoriesArgs struct {
	Kind  string `json:"kind,omitempty" jsonschema:"memory kind such as experience, skill or log; defaults to experience"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of memories to return; defaults to 10"`
	Query string `json:"query,omitempty" jsonschema:"optional text to rank memories by similarity"`
}

// MemoryItem is one recalled memory.
type MemoryItem struct {
	ID         string  `json:"id"`
	Kind       string  `json:"kind"`
	Content    string  `json:"content"`
	Importance float64 `json:"importance"`
	Tier       string  `json:"tier"`
	CreatedAt  string  `json:"created_at"`
	Similarity string  `json:"similarity,omitempty"`
}

// RecallMemoriesResult is the output for recall_memories tool.
type RecallMemoriesResult struct {
	Success  bool         `json:"success"`
	Memories []MemoryItem `json:"memories,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// SaveMemoryArgs is the input for save_memory tool.
type SaveMemoryArgs struct {
	Prompt     string   `json:"prompt" jsonschema:"the user request that was answered"`
	Response   string   `json:"response" jsonschema:"the answer given"`
	Kind       string   `json:"kind,omitempty" jsonschema:"memory kind; defaults to experience"`
	Importance *float64 `json:"importance,omitempty" jsonschema:"importance between 0 and 1 used to rank recall"`
	Tier       string   `json:"tier,omitempty" jsonschema:"storage tier label: hot, warm or cold"`
}

// SaveMemoryResult is the output for save_memory tool.
type SaveMemoryResult struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// MemoryStatsArgs is the input for memory_stats tool.
type MemoryStatsArgs struct{}

// MemoryStatsResult is the output for memory_stats tool.
type MemoryStatsResult struct {
	Success bool           `json:"success"`
	Total   int            `json:"total"`
	Kinds   map[string]int `json:"kinds,omitempty"`
	Tiers   map[string]int `json:"tiers,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// --- Tool Constructors ---

func createScreenPromptTool(h *Handler) (tool.Tool, error) {
	handler := func(ctx tool.Context, args ScreenPromptArgs) (ScreenPromptResult, error) {
		return h.ScreenPrompt(ctx, args), nil
	}

	return functiontool.New(functiontool.Config{
		Name:        "screen_prompt",
		Description: "Checks text against the harm lexicon and returns whether it is harmful, the matched term and a redacted rewrite.",
	}, handler)
}

func createRecallMemoriesTool(h *Handler) (tool.Tool, error) {
	handler := func(ctx tool.Context, args RecallMemoriesArgs) (RecallMemoriesResult, error) {
		return h.RecallMemories(ctx, args), nil
	}

	return functiontool.New(functiontool.Config{
		Name:        "recall_memories",
		Description: "Recalls stored memories of a kind, most important first, or most similar to a query when one is given.",
	}, handler)
}

func createSaveMemoryTool(h *Handler) (tool.Tool, error) {
	handler := func(ctx tool.Context, args SaveMemoryArgs) (SaveMemoryResult, error) {
		return h.SaveMemory(ctx, args), nil
	}

	return functiontool.New(functiontool.Config{
		Name:        memory.SaveMemoryToolName,
		Description: "Saves a prompt and its answer to memory for later recall. The prompt is screened and stored in redacted form.",
	}, handler)
}

func createMemoryStatsTool(h *Handler) (tool.Tool, error) {
	handler := func(ctx tool.Context, args MemoryStatsArgs) (MemoryStatsResult, error) {
		return h.MemoryStats(ctx, args), nil
	}

	return functiontool.New(functiontool.Config{
		Name:        "memory_stats",
		Description: "Reports how many memories are stored, by kind and by tier.",
	}, handler)
}

// BuildTools creates all agent tools with the given configuration.
func BuildTools(cfg ToolsConfig) ([]tool.Tool, error) {
	if cfg.Screen == nil || cfg.Store == nil {
		return nil, fmt.Errorf("tools require a screen and a store")
	}
	h := NewHandler(cfg)

	constructors := []struct {
		name string
		fn   func(*Handler) (tool.Tool, error)
	}{
		{"screen_prompt", createScreenPromptTool},
		{"recall_memories", createRecallMemoriesTool},
		{memory.SaveMemoryToolName, createSaveMemoryTool},
		{"memory_stats", createMemoryStatsTool},
	}

	tools := make([]tool.Tool, 0, len(constructors))
	for _, c := range constructors {
		t, err := c.fn(h)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s tool: %w", c.name, err)
		}
		tools = append(tools, t)
	}
	return tools, nil
}
