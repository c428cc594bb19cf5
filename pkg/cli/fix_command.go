package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/githubnext/gh-uses/pkg/config"
	"github.com/githubnext/gh-uses/pkg/console"
	"github.com/githubnext/gh-uses/pkg/constants"
	"github.com/githubnext/gh-uses/pkg/fix"
	"github.com/githubnext/gh-uses/pkg/logger"
	"github.com/githubnext/gh-uses/pkg/scan"
)

var fixLog = logger.New("cli:fix_command")

// FixConfig holds the options of one fix run.
type FixConfig struct {
	Root string
	ScanFlags
	DryRun           bool
	TwoSpaceComments bool
	Latest           bool
	Verbose          bool

	Stdout io.Writer
	Stderr io.Writer
	// Commits replaces the resolver selected by the configured mode.
	Commits fix.CommitResolver
}

// NewFixCommand creates the fix command
func NewFixCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fix [root]",
		Short: "Pin uses: references to commit SHAs",
		Long: `Rewrite every remote uses: reference that is not pinned to a commit SHA.

Each reference is resolved to the commit its ref points at and rewritten in place as
owner/repo@<sha> # <ref>. Only files in the scanned repository are changed; references
found in remote workflows are listed but left alone.

Exit status is 0 when nothing needed pinning and 1 when files were changed (or would
be, with --dry-run), so the command can gate CI.

Examples:
  ` + constants.CLIExtensionPrefix + ` fix                         # Pin every reference in the current repository
  ` + constants.CLIExtensionPrefix + ` fix --dry-run               # Show the changes without writing them
  ` + constants.CLIExtensionPrefix + ` fix --latest                # Pin to the newest release instead of the current ref
  ` + constants.CLIExtensionPrefix + ` fix --two-space-comments    # Use "  # v4" comments for yamllint`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			twoSpace, _ := cmd.Flags().GetBool("two-space-comments")
			latest, _ := cmd.Flags().GetBool("latest")
			verbose, _ := cmd.Flags().GetBool("verbose")

			fixConfig := FixConfig{
				Root:             rootArg(args),
				ScanFlags:        readScanFlags(cmd),
				DryRun:           dryRun,
				TwoSpaceComments: twoSpace,
				Latest:           latest,
				Verbose:          verbose,
				Stdout:           cmd.OutOrStdout(),
				Stderr:           cmd.ErrOrStderr(),
			}
			return RunFix(cmd.Context(), fixConfig)
		},
	}

	addScanFlags(cmd)
	cmd.Flags().Bool("dry-run", false, "Print the changes without writing files")
	cmd.Flags().Bool("two-space-comments", false, "Separate the version comment with two spaces")
	cmd.Flags().Bool("latest", false, "Pin to the latest release of each action")

	return cmd
}

// RunFix pins the unpinned references of one root.
func RunFix(ctx context.Context, fixConfig FixConfig) error {
	if fixConfig.Root == "" {
		fixConfig.Root = "."
	}
	if fixConfig.Stdout == nil {
		fixConfig.Stdout = os.Stdout
	}
	if fixConfig.Stderr == nil {
		fixConfig.Stderr = os.Stderr
	}
	fixLog.Printf("Running fix: root=%s, dry_run=%v, latest=%v", fixConfig.Root, fixConfig.DryRun, fixConfig.Latest)

	settings, err := config.LoadForRoot(fixConfig.Root, fixConfig.ConfigFile)
	if err != nil {
		return err
	}
	fixConfig.ScanFlags.apply(settings)
	// Every mutable ref is a candidate, whatever the lint policy.
	settings.Pinning.RequireSHA = true
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid command line options: %w", err)
	}

	opts, err := scan.NewOptions(fixConfig.Root, settings)
	if err != nil {
		return err
	}

	commits := fixConfig.Commits
	if commits == nil {
		if opts.Mode == config.ModeOffline {
			return errors.New("fix needs to look up commits and cannot run in offline mode")
		}
		commits, err = newCommitResolver(opts)
		if err != nil {
			return err
		}
	}

	// Only findings in local files can be fixed, so remote documents are
	// not fetched.
	opts.Graph.Offline = true
	opts.Remote = nil
	scanner, err := scan.New(opts)
	if err != nil {
		return err
	}
	result, err := scanner.Run(ctx)
	if err != nil {
		return err
	}

	fixer := fix.New(opts.Root, commits, fix.Options{
		TwoSpaceComments: fixConfig.TwoSpaceComments,
		DryRun:           fixConfig.DryRun,
		Latest:           fixConfig.Latest,
	})
	fixReport, err := fixer.Apply(ctx, result.Diagnostics)
	if err != nil {
		return err
	}

	printFixReport(fixConfig, fixReport)
	if len(fixReport.Files) > 0 {
		return exitWith(1)
	}
	return nil
}

func newCommitResolver(opts scan.Options) (fix.CommitResolver, error) {
	remote, err := scan.NewRemoteResolver(opts)
	if err != nil {
		return nil, err
	}
	commits, ok := remote.(fix.CommitResolver)
	if !ok {
		return nil, fmt.Errorf("resolver mode %q cannot look up commits", opts.Mode)
	}
	return commits, nil
}

func printFixReport(fixConfig FixConfig, fixReport *fix.Report) {
	out := fixConfig.Stdout
	verb := "Pinned"
	if fixConfig.DryRun {
		verb = "Would pin"
	}

	for _, pin := range fixReport.Pins {
		fmt.Fprintf(out, "%s: %s %s -> %s\n", console.FormatLocation(pin.Location.File, pin.Location.Line, pin.Location.Column), verb, pin.Reference, pin.Pinned)
		if fixConfig.Verbose || fixConfig.DryRun {
			fmt.Fprintf(out, "  - %s\n  + %s\n", pin.OldLine, pin.NewLine)
		}
	}
	for _, skip := range fixReport.Skipped {
		fmt.Fprintln(fixConfig.Stderr, console.FormatWarningMessage(fmt.Sprintf("%s: skipped %s: %s", skip.Location, skip.Reference, skip.Reason)))
	}

	switch {
	case len(fixReport.Pins) == 0:
		fmt.Fprintln(fixConfig.Stderr, console.FormatSuccessMessage("No references need pinning"))
	case fixConfig.DryRun:
		fmt.Fprintln(fixConfig.Stderr, console.FormatInfoMessage(fmt.Sprintf("%d references in %d files would be pinned", len(fixReport.Pins), len(fixReport.Files))))
	default:
		fmt.Fprintln(fixConfig.Stderr, console.FormatSuccessMessage(fmt.Sprintf("Pinned %d references in %d files", len(fixReport.Pins), len(fixReport.Files))))
	}
}
