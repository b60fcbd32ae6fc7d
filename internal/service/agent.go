package service

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/genai"

	"github.com/easeaico/adk-task-harness/internal/harm"
	"github.com/easeaico/adk-task-harness/internal/memory"
	"github.com/easeaico/adk-task-harness/internal/orchestrator"
	"github.com/easeaico/adk-task-harness/internal/tools"
)

// AgentName is the name the agent is registered under.
const AgentName = "task_harness"

// AgentConfig holds the dependencies of the harness agent.
type AgentConfig struct {
	APIKey       string
	Model        string
	Screen       *harm.Screen
	Store        memory.Store
	Embedder     memory.Embedder
	Policy       orchestrator.Policy
	Importance   *float64
	Tier         memory.Tier
	HistoryLimit int
}

// NewAgent creates the LLM agent with the harness tools and an instruction
// built from the screen and the stored experiences.
func NewAgent(ctx context.Context, cfg AgentConfig) (agent.Agent, error) {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 5
	}

	agentCtx, err := LoadAgentContext(ctx, cfg.Screen, cfg.Store, cfg.Policy, cfg.HistoryLimit)
	if err != nil {
		return nil, err
	}

	agentTools, err := tools.BuildTools(tools.ToolsConfig{
		Screen:     cfg.Screen,
		Store:      cfg.Store,
		Embedder:   cfg.Embedder,
		Importance: cfg.Importance,
		Tier:       cfg.Tier,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build tools: %w", err)
	}

	// Create LLM model using ADK's gemini wrapper
	llmModel, err := gemini.NewModel(ctx, cfg.Model, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM model: %w", err)
	}

	llmAgent, err := llmagent.New(llmagent.Config{
		Name:        AgentName,
		Description: "Answers user tasks after screening them for harmful terms, and keeps a ranked memory of past exchanges.",
		Model:       llmModel,
		Instruction: BuildInstruction(agentCtx),
		Tools:       agentTools,
		BeforeModelCallbacks: []llmagent.BeforeModelCallback{
			ScreenRequests(cfg.Screen, cfg.Policy),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}
	return llmAgent, nil
}

var instructionTmpl = template.Must(template.New("instruction").Funcs(template.FuncMap{"inc": inc}).Parse(
	`You are a careful assistant working behind a harm screen.

User requests are screened before they reach you.
{{- if eq .Policy.String "abort" }}
Harmful requests are refused without reaching you. If text you are asked to act on is harmful, refuse the task and do not answer it.
{{- else }}
In harmful requests the flagged terms appear as {{ .Redaction }}. Answer the rewritten text as given and do not guess the flagged terms.
{{- end }}
{{- if .Terms }}

The screen flags these terms anywhere in the text, in any casing:
{{- range $idx, $term := .Terms }}
{{ inc $idx }}. {{ $term }}
{{- end }}
{{- end }}
{{- if .RelevantHistory }}

Previously recorded experiences, most important first:
{{- range $idx, $item := .RelevantHistory }}
--- {{ inc $idx }} ---
{{ $item }}
{{- end }}
{{- end }}

When answering:
- Use screen_prompt before quoting or saving any other text.
- Use recall_memories to look for related past exchanges.
- After a useful answer, call save_memory with the prompt and your answer.
- Use memory_stats when asked what you remember.
`))

// inc is a small helper for incrementing index
func inc(i int) int { return i + 1 }

// BuildInstruction renders the agent instruction.
func BuildInstruction(c *AgentContext) string {
	var buf bytes.Buffer
	_ = instructionTmpl.Execute(&buf, c)
	return buf.String()
}
