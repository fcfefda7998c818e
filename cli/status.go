package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/phaseline/phaseline"
)

func newStatusCmd(fw *phaseline.Framework) *cobra.Command {
	var (
		environment string
		historyURL  string
	)

	cmd := &cobra.Command{
		Use:   "status [execution-id]",
		Short: "Show execution history",
		Long: `Without arguments, list all recorded executions. With an execution id,
print the full execution record as JSON.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			closer, err := wireHistory(ctx, fw, historyURL, environment)
			if err != nil {
				return err
			}
			if closer != nil {
				defer func() { _ = closer.Close() }()
			}

			if len(args) == 1 {
				exec, err := fw.ExecutionStatus(ctx, args[0])
				if err != nil {
					return err
				}
				data, err := json.MarshalIndent(exec, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			executions, err := fw.History().List(ctx)
			if err != nil {
				return err
			}
			if len(executions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no executions recorded")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tENVIRONMENT\tSTATUS\tSTEPS\tSTARTED")
			for _, exec := range executions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\n",
					exec.ID, exec.Name, exec.Environment, exec.Status,
					exec.CompletedSteps, exec.TotalSteps,
					exec.StartedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&environment, "environment", "e", "", "Environment whose history to read")
	cmd.Flags().StringVar(&historyURL, "history", "", "History store URL (sqlite path or postgres://...)")

	return cmd
}

// printExecution writes a short human-readable run summary.
func printExecution(w io.Writer, exec *phaseline.Execution) {
	fmt.Fprintf(w, "execution %s (%s): %s\n", exec.ID, exec.Name, exec.Status)
	fmt.Fprintf(w, "  steps: %d/%d completed\n", exec.CompletedSteps, exec.TotalSteps)
	for _, res := range exec.Results {
		mark := "ok"
		if !res.Success {
			mark = "FAILED"
		}
		fmt.Fprintf(w, "  %-8s %s (%s)\n", mark, res.StepID, res.Duration.Round(time.Millisecond))
	}
	for _, warning := range exec.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warning)
	}
	for _, e := range exec.Errors {
		fmt.Fprintf(w, "  error: [%s] %s\n", e.Code, e.Message)
	}
}
