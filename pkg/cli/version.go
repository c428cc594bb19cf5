package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/githubnext/gh-uses/pkg/console"
	"github.com/githubnext/gh-uses/pkg/constants"
	"github.com/githubnext/gh-uses/pkg/logger"
)

var versionLog = logger.New("cli:version")

// Build information, set by main from linker flags.
var (
	version = "dev"
	commit  = ""
)

// SetVersionInfo records the build version and commit.
func SetVersionInfo(v, c string) {
	if v != "" {
		version = v
	}
	commit = c
}

// GetVersion returns the build version.
func GetVersion() string {
	return version
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show the gh-uses version",
		Long: `Show the gh-uses version.

With --check, the latest published release is looked up and a notice is printed
when a newer version is available.

Examples:
  ` + constants.CLIExtensionPrefix + ` version           # Print the version
  ` + constants.CLIExtensionPrefix + ` version --check   # Also check for a newer release`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			check, _ := cmd.Flags().GetBool("check")
			verbose, _ := cmd.Flags().GetBool("verbose")

			printVersion(cmd.OutOrStdout())
			if !check {
				return nil
			}
			return checkForNewerRelease(cmd.Context(), newReleaseClient, verbose)
		},
	}
	cmd.Flags().Bool("check", false, "Check whether a newer release is available")
	return cmd
}

func printVersion(w io.Writer) {
	if commit != "" {
		fmt.Fprintf(w, "gh-uses %s (%s)\n", version, commit)
		return
	}
	fmt.Fprintf(w, "gh-uses %s\n", version)
}

// checkForNewerRelease compares the running version with the latest release.
// Lookup failures only produce a warning.
func checkForNewerRelease(ctx context.Context, newClient func() (releaseClient, error), verbose bool) error {
	if !IsReleasedVersion(version) {
		versionLog.Printf("Not a released version (%s), skipping update check", version)
		fmt.Fprintln(os.Stderr, console.FormatInfoMessage("Skipping update check (development build)"))
		return nil
	}

	client, err := newClient()
	if err != nil {
		fmt.Fprintln(os.Stderr, console.FormatWarningMessage(fmt.Sprintf("Could not check for updates: %v", err)))
		return nil
	}
	latest, err := latestReleaseVersion(ctx, client)
	if err != nil {
		versionLog.Printf("Failed to check for updates: %v", err)
		fmt.Fprintln(os.Stderr, console.FormatWarningMessage(fmt.Sprintf("Could not check for updates: %v", err)))
		return nil
	}

	switch {
	case isNewerVersion(latest, version):
		fmt.Fprintln(os.Stderr, console.FormatWarningMessage(fmt.Sprintf("A newer version of gh-uses is available: %s (current: %s)", latest, version)))
		fmt.Fprintln(os.Stderr, console.FormatInfoMessage("Upgrade with: gh extension upgrade "+constants.ReleaseRepository))
	case verbose:
		fmt.Fprintln(os.Stderr, console.FormatSuccessMessage("gh-uses is up to date"))
	}
	return nil
}
