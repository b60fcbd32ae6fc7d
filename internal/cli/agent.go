package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/cmd/launcher"
	"google.golang.org/adk/cmd/launcher/full"

	"github.com/easeaico/adk-task-harness/internal/config"
	"github.com/easeaico/adk-task-harness/internal/memory"
	"github.com/easeaico/adk-task-harness/internal/orchestrator"
	"github.com/easeaico/adk-task-harness/internal/service"
)

var agentCmd = &cobra.Command{
	Use:   "agent [launcher args...]",
	Short: "Run the harness as an interactive ADK agent",
	Long: `Run an LLM agent that screens every request, answers under the configured
harm policy and reads and writes the harness memory through tools.

All arguments are passed to the ADK launcher. Configuration comes from the
config file and HARNESS_* environment variables; GOOGLE_API_KEY is required.

Example:
  harness agent console
  harness agent web api webui`,
	DisableFlagParsing: true,
	RunE:               runAgent,
}

func init() {
	rootCmd.AddCommand(agentCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Inference.APIKey == "" {
		return fmt.Errorf("%w to run the agent (set inference.api_key or GOOGLE_API_KEY)", config.ErrMissingAPIKey)
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	llmAgent, err := service.NewAgent(ctx, service.AgentConfig{
		APIKey:       cfg.Inference.APIKey,
		Model:        cfg.Inference.Model,
		Screen:       a.screen,
		Store:        a.store,
		Embedder:     a.embedder,
		Policy:       cfg.HarmPolicy(),
		Importance:   &cfg.Orchestrator.Importance,
		Tier:         memory.Tier(cfg.Orchestrator.Tier),
		HistoryLimit: cfg.Agent.HistoryLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize agent: %w", err)
	}

	// Run interactive loop using adk-go runtime (launcher)
	launcherCfg := &launcher.Config{
		AgentLoader: agent.NewSingleLoader(llmAgent),
		MemoryService: memory.NewService(a.store, memory.ServiceConfig{
			Embedder:    a.embedder,
			Screener:    a.screen,
			DropHarmful: cfg.HarmPolicy() == orchestrator.PolicyAbort,
			Logger:      a.logger,
		}),
	}
	l := full.NewLauncher()
	if err := l.Execute(ctx, launcherCfg, args); err != nil {
		return fmt.Errorf("failed to run agent: %w\n\n%s", err, l.CommandLineSyntax())
	}
	return nil
}
