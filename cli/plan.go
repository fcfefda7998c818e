package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/phaseline/phaseline"
)

// CurrentPlanFileVersion is the plan file format version this build writes.
const CurrentPlanFileVersion = 1

// PlanFile is the on-disk envelope around a computed execution plan.
type PlanFile struct {
	Version     int             `json:"version"`
	GeneratedAt time.Time       `json:"generated_at"`
	Plan        *phaseline.Plan `json:"plan"`
}

func newPlanCmd(fw *phaseline.Framework) *cobra.Command {
	var (
		stepIDs []string
		outPath string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Compute and print the execution plan",
		Long: `Compute the execution order for the registered steps and print it as a
plan JSON file. The plan can be reviewed, saved, and checked later with
'validate'. Advisory issues found during planning are printed to stderr.`,
		Example: `  # Print the full plan
  phaseline plan > plan.json

  # Plan a subset of steps into a file
  phaseline plan --steps create-accounts,backfill-totals --out plan.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			issues, plan, err := fw.ValidatePlan(stepIDs...)
			if err != nil {
				return err
			}
			for _, issue := range issues {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", issue)
			}

			file := PlanFile{
				Version:     CurrentPlanFileVersion,
				GeneratedAt: time.Now().UTC(),
				Plan:        plan,
			}
			data, err := json.MarshalIndent(file, "", "  ")
			if err != nil {
				return err
			}
			data = append(data, '\n')

			if outPath != "" {
				return os.WriteFile(outPath, data, 0644)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringSliceVar(&stepIDs, "steps", nil, "Restrict the plan to these step ids")
	cmd.Flags().StringVar(&outPath, "out", "", "Write the plan to a file instead of stdout")

	return cmd
}
