// Package cli provides an embeddable command-line surface for a phaseline
// framework. Programs register their own phases and steps, then hand the
// framework to Execute:
//
//	func main() {
//	    fw := phaseline.New()
//	    registerMigrations(fw)
//	    cli.Execute(fw)
//	}
//
// Configuration is read from phaseline.toml (searched upward from the
// working directory) with per-environment .env.<name> overrides.
package cli

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/phaseline/phaseline"
)

// NewRootCmd builds the root command tree over the given framework.
func NewRootCmd(fw *phaseline.Framework) *cobra.Command {
	root := &cobra.Command{
		Use:   "phaseline",
		Short: "Run phased, dependency-ordered migrations",
		Long: `Phaseline runs migrations defined in Go code: steps grouped into
ordered phases, planned in dependency order, with per-step validation,
dry runs, execution history, and reverse-order rollback.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newApplyCmd(fw),
		newPlanCmd(fw),
		newValidateCmd(fw),
		newStatusCmd(fw),
		newRollbackCmd(fw),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command and exits non-zero on error.
func Execute(fw *phaseline.Framework) {
	if err := NewRootCmd(fw).Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger builds the CLI logger; --verbose switches to debug level.
func newLogger(verbose bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return config.Build()
}
