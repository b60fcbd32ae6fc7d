// Package service assembles the ADK agent that fronts the task harness.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/easeaico/adk-task-harness/internal/harm"
	"github.com/easeaico/adk-task-harness/internal/memory"
	"github.com/easeaico/adk-task-harness/internal/orchestrator"
)

// AgentContext holds what the agent instruction is rendered from.
type AgentContext struct {
	// Terms are the harm lexicon terms the agent must screen for.
	Terms     []string
	Redaction string
	Policy    orchestrator.Policy

	// RelevantHistory holds the most important stored experiences.
	RelevantHistory []string
}

// The agent runtime reads {name} in an instruction as a session state
// placeholder.
var braceReplacer = strings.NewReplacer("{", "(", "}", ")")

// LoadAgentContext reads the screen configuration and up to historyLimit
// of the most important experiences from store.
func LoadAgentContext(ctx context.Context, screen *harm.Screen, store memory.Store, policy orchestrator.Policy, historyLimit int) (*AgentContext, error) {
	c := &AgentContext{
		Terms:           screen.Lexicon().Terms(),
		Redaction:       screen.Redaction(),
		Policy:          policy,
		RelevantHistory: make([]string, 0),
	}

	records, err := store.Retrieve(ctx, memory.KindExperience, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load relevant history: %w", err)
	}
	for _, r := range records {
		if text := memory.RenderContent(r.Content); text != "" {
			c.RelevantHistory = append(c.RelevantHistory, braceReplacer.Replace(text))
		}
	}
	return c, nil
}
