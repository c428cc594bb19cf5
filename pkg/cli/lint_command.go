package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/githubnext/gh-uses/pkg/config"
	"github.com/githubnext/gh-uses/pkg/console"
	"github.com/githubnext/gh-uses/pkg/constants"
	"github.com/githubnext/gh-uses/pkg/logger"
	"github.com/githubnext/gh-uses/pkg/report"
	"github.com/githubnext/gh-uses/pkg/resolver"
	"github.com/githubnext/gh-uses/pkg/scan"
)

var lintLog = logger.New("cli:lint_command")

// LintConfig holds the options of one lint run.
type LintConfig struct {
	Root string
	ScanFlags
	Format     string
	Strict     bool
	RequireSHA bool
	MaxDepth   int
	FailOn     string
	Watch      bool
	Verbose    bool

	Stdout io.Writer
	Stderr io.Writer
	// Remote replaces the resolver selected by the configured mode.
	Remote resolver.Resolver
}

// NewLintCommand creates the lint command
func NewLintCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint [root]",
		Short: "Validate the uses: references of workflows and actions",
		Long: `Validate every uses: reference reachable from the workflows and actions under root.

Workflows in .github/workflows and action.yml files anywhere in the tree are entry
documents. Each reference is classified, resolved and followed, and the rules check
the resulting call graph for malformed, unpinned and unresolved references, cycles
and chains deeper than max_depth.

Exit status is 0 when the scan passes, 1 when a finding reaches the fail-on
severity and 2 when the scan was interrupted.

Examples:
  ` + constants.CLIExtensionPrefix + ` lint                          # Scan the current repository
  ` + constants.CLIExtensionPrefix + ` lint path/to/repo             # Scan another checkout
  ` + constants.CLIExtensionPrefix + ` lint --strict                 # Require SHAs or exact release tags
  ` + constants.CLIExtensionPrefix + ` lint --offline                # Do not fetch remote repositories
  ` + constants.CLIExtensionPrefix + ` lint --format sarif > out.sarif  # Write SARIF for code scanning
  ` + constants.CLIExtensionPrefix + ` lint --watch                  # Re-scan whenever a file changes`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			strict, _ := cmd.Flags().GetBool("strict")
			requireSHA, _ := cmd.Flags().GetBool("require-sha")
			maxDepth, _ := cmd.Flags().GetInt("max-depth")
			failOn, _ := cmd.Flags().GetString("fail-on")
			watch, _ := cmd.Flags().GetBool("watch")
			verbose, _ := cmd.Flags().GetBool("verbose")

			lintConfig := LintConfig{
				Root:       rootArg(args),
				ScanFlags:  readScanFlags(cmd),
				Format:     format,
				Strict:     strict,
				RequireSHA: requireSHA,
				MaxDepth:   maxDepth,
				FailOn:     failOn,
				Watch:      watch,
				Verbose:    verbose,
				Stdout:     cmd.OutOrStdout(),
				Stderr:     cmd.ErrOrStderr(),
			}
			return RunLint(cmd.Context(), lintConfig)
		},
	}

	addScanFlags(cmd)
	cmd.Flags().StringP("format", "f", string(report.FormatText), "Output format: text, json or sarif")
	cmd.Flags().Bool("strict", false, "Report mutable refs as errors; only commit SHAs and exact release tags pass")
	cmd.Flags().Bool("require-sha", false, "Report every ref that is not a full commit SHA")
	cmd.Flags().Int("max-depth", 0, fmt.Sprintf("Maximum call chain depth (default %d)", constants.DefaultMaxDepth))
	cmd.Flags().String("fail-on", "", "Lowest severity that fails the scan: error, warning or info (default error)")
	cmd.Flags().BoolP("watch", "w", false, "Re-run the scan when workflow, action or configuration files change")

	return cmd
}

// RunLint scans one root and reports the result. A failing or incomplete
// scan is returned as an *ExitError after the report has been written.
func RunLint(ctx context.Context, lintConfig LintConfig) error {
	lintConfig = lintConfig.withDefaults()
	lintLog.Printf("Running lint: root=%s, format=%s, watch=%v", lintConfig.Root, lintConfig.Format, lintConfig.Watch)

	format, err := report.ParseFormat(lintConfig.Format)
	if err != nil {
		return err
	}
	reporter, err := report.New(format, lintConfig.Stdout, report.Options{ToolVersion: GetVersion(), Verbose: lintConfig.Verbose})
	if err != nil {
		return err
	}

	scanner, err := newLintScanner(lintConfig)
	if err != nil {
		return err
	}

	if lintConfig.Watch {
		return watchAndLint(ctx, scanner, reporter, lintConfig)
	}

	result, err := scanner.RunAndReport(ctx, reporter)
	if err != nil {
		return err
	}
	if result.Incomplete {
		fmt.Fprintln(lintConfig.Stderr, console.FormatWarningMessage("Scan interrupted, results are incomplete"))
	}
	return exitWith(result.ExitCode())
}

func (c LintConfig) withDefaults() LintConfig {
	if c.Root == "" {
		c.Root = "."
	}
	if c.Format == "" {
		c.Format = string(report.FormatText)
	}
	if c.Stdout == nil {
		c.Stdout = os.Stdout
	}
	if c.Stderr == nil {
		c.Stderr = os.Stderr
	}
	return c
}

// loadSettings reads the configuration for the root and applies the
// command line on top of it.
func (c LintConfig) loadSettings() (*config.Config, error) {
	settings, err := config.LoadForRoot(c.Root, c.ConfigFile)
	if err != nil {
		return nil, err
	}

	c.ScanFlags.apply(settings)
	if c.Strict {
		settings.Strict = true
	}
	if c.RequireSHA {
		settings.Pinning.RequireSHA = true
	}
	if c.MaxDepth != 0 {
		settings.MaxDepth = c.MaxDepth
	}
	if c.FailOn != "" {
		settings.FailOn = c.FailOn
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid command line options: %w", err)
	}
	if settings.Source != "" {
		lintLog.Printf("Loaded configuration from %s", settings.Source)
	}
	return settings, nil
}

func newLintScanner(c LintConfig) (*scan.Scanner, error) {
	settings, err := c.loadSettings()
	if err != nil {
		return nil, err
	}
	opts, err := scan.NewOptions(c.Root, settings)
	if err != nil {
		return nil, err
	}
	opts.Remote = c.Remote
	if c.Verbose {
		fmt.Fprintln(c.Stderr, console.FormatVerboseMessage(fmt.Sprintf("Scanning %s (resolver mode: %s, max depth: %d)", opts.Root, opts.Mode, opts.Graph.MaxDepth)))
	}
	return scan.New(opts)
}
