package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "synthctl",
		Short: "synthctl - incremental data-structure synthesis driver",
		Long: `synthctl maintains a mutable implementation of a specification's
public queries: it installs an initial representation for every query,
improves each one under a time budget, closes any subqueries the
improvement search introduces, plans handle-update maintenance code,
garbage-collects unreachable state, and assembles the result into an
update schedule free of read-after-write hazards.

The improver search, SMT solver, and derivative transformer are
out-of-scope collaborators reached through pluggable interfaces:
synthctl itself never searches for expressions or proves global
optimality.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "synthcfg TOML file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newGraphCommand())

	return rootCmd
}
