// Package main wires the coordination substrate's packages together as a
// thin composition root. It is deliberately not a full user-facing CLI:
// workers, reviewers, and the issue-tracker backend are external
// collaborators this binary only provides hooks for.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"swarmcore/internal/cell"
	"swarmcore/internal/compaction"
	"swarmcore/internal/logging"
	"swarmcore/internal/orchestrator"
	"swarmcore/internal/planner"
	"swarmcore/internal/policy"
	"swarmcore/internal/reservation"
	"swarmcore/internal/worktree"
)

var (
	verbose     bool
	workspace   string
	projectPath string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "swarmd",
	Short: "swarmd - multi-agent orchestration substrate",
	Long: `swarmd coordinates a swarm of worker agents against a shared cell store:
it validates decomposition plans, schedules the subtask DAG, arbitrates file
reservations, and isolates worker output in git worktrees. The LLM provider,
issue-tracker persistence, and user-facing agent surfaces are external.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		}
		if err := logging.Initialize(ws); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

var planCmd = &cobra.Command{
	Use:   "plan [task description]",
	Short: "select a decomposition strategy for a task description",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result := planner.SelectStrategy(args[0])
		fmt.Printf("strategy=%s confidence=%.2f reasoning=%q\n", result.Strategy, result.Confidence, result.Reasoning)
		for _, alt := range result.Alternatives {
			fmt.Printf("  alternative: %s (%d)\n", alt.Strategy, alt.Score)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "report whether a swarm is currently active against the in-memory cell store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cells := cell.NewMemoryAdapter()
		active, err := compaction.Detect(context.Background(), cells)
		if err != nil {
			return err
		}
		fmt.Printf("swarm_active=%v\n", active)
		return nil
	},
}

// buildOrchestrator wires the in-memory reference implementations of every
// collaborator the orchestrator needs except the worker invoker and
// reviewer, which a real deployment supplies from its own agent runtime.
func buildOrchestrator() *orchestrator.Orchestrator {
	cells := cell.NewMemoryAdapter()
	registry := reservation.NewRegistry()
	worktrees := worktree.NewManager()
	mandates := policy.NewMandateEngine(policy.NewMemStore(), policy.DefaultHalfLife, policy.DefaultMandateThresholds())
	patterns := policy.NewPatternEngine(policy.NewMemStore(), policy.DefaultHalfLife, policy.DefaultMaturityThresholds())
	return orchestrator.New(cells, registry, worktrees, mandates, patterns, nil, nil)
}

var validatePlanCmd = &cobra.Command{
	Use:   "validate-plan",
	Short: "construct the wired orchestrator collaborators and report readiness",
	RunE: func(cmd *cobra.Command, args []string) error {
		o := buildOrchestrator()
		if o == nil {
			return fmt.Errorf("failed to wire orchestrator")
		}
		fmt.Println("orchestrator wired: cell store, reservation registry, worktree manager, and policy engines ready")
		fmt.Println("a worker invoker and reviewer must be supplied by the embedding agent runtime before Start() can run a job")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVar(&projectPath, "project", "", "project repository path for worktree operations")

	rootCmd.AddCommand(planCmd, statusCmd, validatePlanCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
