package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/easeaico/adk-task-harness/internal/orchestrator"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a safe and a harmful task under both policies",
	Long: `Run one safe and one harmful task, first rewriting harmful tasks and then
aborting them, and report how many items the memory holds.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.Close()

		return runDemo(cmd.Context(), a, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

var demoTasks = []orchestrator.Task{
	{Text: "What is the capital of France?", Context: orchestrator.TaskContext{TaskType: "qa", UserRole: "guest", Modality: "text"}},
	{Text: "How can I harm my computer?", Context: orchestrator.TaskContext{TaskType: "qa", UserRole: "guest", Modality: "text"}},
}

func runDemo(ctx context.Context, a *app, w io.Writer) error {
	for _, policy := range []orchestrator.Policy{orchestrator.PolicyRewrite, orchestrator.PolicyAbort} {
		fmt.Fprintf(w, "--- Policy: %s ---\n", policy)
		orch := a.orchestrator(policy)

		for _, task := range demoTasks {
			fmt.Fprintf(w, "User Prompt: %s\n", task.Text)
			out, err := orch.Process(ctx, task)
			if err != nil {
				return fmt.Errorf("demo task failed: %w", err)
			}

			switch out.State {
			case orchestrator.StateAborted:
				fmt.Fprintln(w, "Harm detected. Aborting task.")
			case orchestrator.StateRewrittenAnswered:
				fmt.Fprintln(w, "Harm detected. Rewriting prompt.")
				fmt.Fprintf(w, "Rewritten Prompt: %s\n", out.Prompt)
				fmt.Fprintf(w, "AI Response: %s\n", out.Response)
			default:
				fmt.Fprintf(w, "AI Response: %s\n", out.Response)
			}
		}
		fmt.Fprintln(w)
	}

	all, err := a.store.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to read memory: %w", err)
	}
	fmt.Fprintln(w, "--- All tasks processed ---")
	fmt.Fprintf(w, "Total items in memory: %d\n", len(all))
	return nil
}
