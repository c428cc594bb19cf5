package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/githubnext/gh-uses/pkg/cli"
	"github.com/githubnext/gh-uses/pkg/constants"
)

// Build-time variables set by the release build.
var (
	version = "dev"
	commit  = ""
)

var rootCmd = &cobra.Command{
	Use:   constants.CLIName,
	Short: "GitHub Actions uses: reference validator",
	Long: `GitHub Actions uses: reference validator.

gh-uses follows every uses: reference of the workflows and actions in a repository,
through local actions, reusable workflows and remote repositories, and reports
malformed, unpinned and unresolvable references, call cycles and overly deep chains.

Common tasks:
  ` + constants.CLIExtensionPrefix + ` lint             # Validate the current repository
  ` + constants.CLIExtensionPrefix + ` fix --dry-run    # Show which references would be pinned
  ` + constants.CLIExtensionPrefix + ` schema           # JSON Schema of lint --format json

For more information: ` + constants.InformationURI,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
}

func init() {
	rootCmd.AddGroup(&cobra.Group{ID: "analysis", Title: "Analysis Commands:"})
	rootCmd.AddGroup(&cobra.Group{ID: "development", Title: "Development Commands:"})
	rootCmd.AddGroup(&cobra.Group{ID: "utilities", Title: "Utilities:"})

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")

	lintCmd := cli.NewLintCommand()
	lintCmd.GroupID = "analysis"

	fixCmd := cli.NewFixCommand()
	fixCmd.GroupID = "development"

	schemaCmd := cli.NewSchemaCommand()
	schemaCmd.GroupID = "utilities"

	rootCmd.AddCommand(lintCmd, fixCmd, schemaCmd, cli.NewVersionCommand())
}

func main() {
	cli.SetVersionInfo(version, commit)
	rootCmd.Version = cli.GetVersion()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		cli.PrintCommandError(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}
