package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/easeaico/adk-task-harness/internal/memory"
	"github.com/easeaico/adk-task-harness/internal/orchestrator"
)

var runCmd = &cobra.Command{
	Use:   "run [prompt...]",
	Short: "Process tasks and print the recalled memory",
	Long: `Process each prompt, or each task of a task file, through the harm screen
and the inference provider, then print the most important stored memories.

A task file is YAML:

  tasks:
    - text: "What is the capital of France?"
      context: {task_type: qa, user_role: guest, modality: text}
    - text: "How can I harm my computer?"
      importance: 0.9
      tier: warm

Example:
  harness run --policy abort "How can I harm my computer?"
  harness run --tasks tasks.yaml --limit 5`,
	RunE: runTasks,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("tasks", "", "YAML file of tasks to process")
	runCmd.Flags().String("policy", "", "Harm policy: rewrite or abort")
	runCmd.Flags().String("recall-kind", memory.KindExperience, "Memory kind to recall after processing")
	runCmd.Flags().Int("limit", memory.DefaultRetrieveLimit, "Maximum number of memories to recall")

	_ = viper.BindPFlag("orchestrator.policy", runCmd.Flags().Lookup("policy"))
}

// taskFile is the on-disk shape of a task file.
type taskFile struct {
	Tasks []orchestrator.Task `yaml:"tasks"`
}

// loadTasks reads a task file. Tasks without text are rejected.
func loadTasks(path string) ([]orchestrator.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task file: %w", err)
	}

	var f taskFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse task file %s: %w", path, err)
	}
	for i, t := range f.Tasks {
		if strings.TrimSpace(t.Text) == "" {
			return nil, fmt.Errorf("task %d in %s has no text", i+1, path)
		}
	}
	return f.Tasks, nil
}

func runTasks(cmd *cobra.Command, args []string) error {
	tasksPath, _ := cmd.Flags().GetString("tasks")
	recallKind, _ := cmd.Flags().GetString("recall-kind")
	limit, _ := cmd.Flags().GetInt("limit")

	var tasks []orchestrator.Task
	if tasksPath != "" {
		loaded, err := loadTasks(tasksPath)
		if err != nil {
			return err
		}
		tasks = loaded
	}
	for _, prompt := range args {
		tasks = append(tasks, orchestrator.Task{Text: prompt})
	}
	if len(tasks) == 0 {
		return errors.New("no tasks: pass prompts as arguments or use --tasks")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	return processAndRecall(ctx, a, cmd.OutOrStdout(), tasks, recallKind, limit)
}

// processAndRecall runs tasks under the configured policy, prints each
// outcome, then prints up to limit memories of recallKind.
func processAndRecall(ctx context.Context, a *app, w io.Writer, tasks []orchestrator.Task, recallKind string, limit int) error {
	outcomes, procErr := a.orchestrator(a.cfg.HarmPolicy()).ProcessAll(ctx, tasks)
	for _, out := range outcomes {
		printOutcome(w, out)
	}
	if procErr != nil {
		return fmt.Errorf("task processing failed: %w", procErr)
	}

	records, err := a.store.Retrieve(ctx, recallKind, limit)
	if err != nil {
		return fmt.Errorf("failed to recall memories: %w", err)
	}

	fmt.Fprintf(w, "\nRecalled %d %s memories:\n", len(records), recallKind)
	for i, r := range records {
		fmt.Fprintf(w, "%d. [importance %.2f, tier %s] %s\n", i+1, r.Importance, r.Tier, oneLine(memory.RenderContent(r.Content)))
	}
	return nil
}

func printOutcome(w io.Writer, out orchestrator.Outcome) {
	switch out.State {
	case orchestrator.StateAborted:
		fmt.Fprintf(w, "[%s] aborted: harmful term %q\n", out.TaskID, out.MatchedTerm)
	case orchestrator.StateRewrittenAnswered:
		fmt.Fprintf(w, "[%s] rewritten (term %q): %s\n  -> %s\n", out.TaskID, out.MatchedTerm, out.Prompt, out.Response)
	case orchestrator.StateAnswered:
		fmt.Fprintf(w, "[%s] answered: %s\n  -> %s\n", out.TaskID, out.Prompt, out.Response)
	default:
		fmt.Fprintf(w, "[%s] %s\n", out.TaskID, out.State)
	}
}

func oneLine(s string) string {
	return strings.ReplaceAll(s, "\n", " | ")
}
