package cli

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/xeipuuv/gojsonschema"

	"github.com/phaseline/phaseline"
)

//go:embed plan_schema.json
var planSchema []byte

func newValidateCmd(fw *phaseline.Framework) *cobra.Command {
	var stepIDs []string

	cmd := &cobra.Command{
		Use:   "validate [plan-file]",
		Short: "Validate the step registry or a saved plan file",
		Long: `Without arguments, validate the registered steps: every dependency must
reference a registered step and the dependency graph must be acyclic, and
the computed plan is re-checked for ordering issues.

With a plan file argument, additionally validate the file against the plan
JSON Schema and confirm it still matches the current registry.`,
		Example: `  # Validate the registry
  phaseline validate

  # Validate a previously saved plan
  phaseline validate plan.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := fw.Validate(); err != nil {
				return err
			}

			issues, plan, err := fw.ValidatePlan(stepIDs...)
			if err != nil {
				return err
			}
			for _, issue := range issues {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", issue)
			}

			if len(args) == 1 {
				if err := validatePlanFile(args[0], plan); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "plan file %s is valid\n", args[0])
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "registry is valid: %d steps planned\n", len(plan.Steps))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&stepIDs, "steps", nil, "Restrict validation to these step ids")

	return cmd
}

// validatePlanFile checks a saved plan file against the JSON Schema and
// against the plan the current registry produces.
func validatePlanFile(path string, current *phaseline.Plan) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	schemaLoader := gojsonschema.NewBytesLoader(planSchema)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("validating %s: %w", path, err)
	}
	if !result.Valid() {
		for _, desc := range result.Errors() {
			fmt.Fprintf(os.Stderr, "schema error: %s\n", desc)
		}
		return fmt.Errorf("%s does not match the plan schema", path)
	}

	var file PlanFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	if file.Version != CurrentPlanFileVersion {
		return fmt.Errorf("%s: unsupported plan file version %d", path, file.Version)
	}

	saved := file.Plan.StepIDs()
	fresh := current.StepIDs()
	if len(saved) != len(fresh) {
		return fmt.Errorf("%s: plan has %d steps but the registry now plans %d",
			path, len(saved), len(fresh))
	}
	for i := range saved {
		if saved[i] != fresh[i] {
			return fmt.Errorf("%s: plan order diverges at position %d (%s vs %s)",
				path, i, saved[i], fresh[i])
		}
	}
	return nil
}
