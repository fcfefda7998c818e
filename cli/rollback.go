package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/phaseline/phaseline"
)

func newRollbackCmd(fw *phaseline.Framework) *cobra.Command {
	var (
		toStep      string
		environment string
		historyURL  string
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "rollback <execution-id>",
		Short: "Undo a prior execution",
		Long: `Replay the rollback callbacks of a recorded execution's successful steps
in reverse order. Steps without a rollback are skipped with a warning.

With --to-step, only steps at or after the given step in the original
execution order are undone.`,
		Example: `  # Undo everything a run did
  phaseline rollback 3f1c... --history state.db

  # Undo back to (and including) one step
  phaseline rollback 3f1c... --to-step backfill-totals`,
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

			exec, err := fw.Rollback(ctx, args[0], phaseline.RollbackOptions{ToStep: toStep})
			if err != nil {
				return err
			}

			printExecution(cmd.OutOrStdout(), exec)
			if exec.Status == phaseline.StatusFailed {
				return fmt.Errorf("rollback %s failed", exec.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&toStep, "to-step", "", "Roll back to (and including) this step id")
	cmd.Flags().StringVarP(&environment, "environment", "e", "", "Environment whose history to read")
	cmd.Flags().StringVar(&historyURL, "history", "", "History store URL (sqlite path or postgres://...)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	return cmd
}
