package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/phaseline/phaseline"
)

func newApplyCmd(fw *phaseline.Framework) *cobra.Command {
	var (
		environment string
		dryRun      bool
		backup      bool
		stepIDs     []string
		historyURL  string
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "apply <name>",
		Short: "Execute a migration end to end",
		Long: `Execute all registered steps (or a subset) as one named migration.

Steps run in plan order: grouped by ascending phase order, with every step
after its dependencies. A failed step in a critical-risk phase, or any
critical-severity error, halts the run.`,
		Example: `  # Rehearse in development
  phaseline apply "initial rollout" --dry-run

  # Apply against production with a persistent history
  phaseline apply "initial rollout" -e production --history state.db

  # Apply a subset of steps
  phaseline apply "backfill" --steps backfill-totals,backfill-index`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			logger, err := newLogger(verbose)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			fw.SetLogger(logger)

			closer, err := wireHistory(ctx, fw, historyURL, environment)
			if err != nil {
				return err
			}
			if closer != nil {
				defer func() { _ = closer.Close() }()
			}

			env := phaseline.Environment(environment)
			exec, err := fw.Execute(ctx, args[0], phaseline.RunOptions{
				Environment:   env,
				DryRun:        dryRun,
				BackupEnabled: backup,
				StepIDs:       stepIDs,
			})
			if err != nil {
				return err
			}

			printExecution(cmd.OutOrStdout(), exec)
			if exec.Status != phaseline.StatusCompleted {
				return fmt.Errorf("migration %s: %s", exec.ID, exec.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&environment, "environment", "e", "development", "Target environment (development, staging, production)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Rehearse the migration without applying changes")
	cmd.Flags().BoolVar(&backup, "backup", false, "Tell steps that a backup exists")
	cmd.Flags().StringSliceVar(&stepIDs, "steps", nil, "Restrict execution to these step ids")
	cmd.Flags().StringVar(&historyURL, "history", "", "History store URL (sqlite path or postgres://...)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	return cmd
}
