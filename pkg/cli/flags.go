package cli

import (
	"github.com/spf13/cobra"

	"github.com/githubnext/gh-uses/pkg/config"
)

// ScanFlags are the settings every scanning command accepts on top of the
// configuration file. Zero values leave the file or default value alone.
type ScanFlags struct {
	ConfigFile  string
	Patterns    []string
	Exclude     []string
	SkipActions bool
	Offline     bool
	Mode        string
}

func addScanFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("config", "c", "", "Configuration file (default: .gh-uses.yml, .gh-uses.yaml or .gh-uses.toml in the root)")
	cmd.Flags().StringSlice("pattern", nil, "Glob selecting entry documents, relative to the root (repeatable)")
	cmd.Flags().StringSlice("exclude", nil, "Glob excluding entry documents (repeatable)")
	cmd.Flags().Bool("skip-actions", false, "Only scan workflows, not action.yml files")
	cmd.Flags().Bool("offline", false, "Do not fetch remote repositories")
	cmd.Flags().String("mode", "", "Remote resolver: auto, api, git or offline")
}

func readScanFlags(cmd *cobra.Command) ScanFlags {
	configFile, _ := cmd.Flags().GetString("config")
	patterns, _ := cmd.Flags().GetStringSlice("pattern")
	exclude, _ := cmd.Flags().GetStringSlice("exclude")
	skipActions, _ := cmd.Flags().GetBool("skip-actions")
	offline, _ := cmd.Flags().GetBool("offline")
	mode, _ := cmd.Flags().GetString("mode")
	return ScanFlags{
		ConfigFile:  configFile,
		Patterns:    patterns,
		Exclude:     exclude,
		SkipActions: skipActions,
		Offline:     offline,
		Mode:        mode,
	}
}

// apply overrides cfg. --offline wins over --mode.
func (f ScanFlags) apply(cfg *config.Config) {
	if len(f.Patterns) > 0 {
		cfg.Discovery.Patterns = f.Patterns
	}
	if len(f.Exclude) > 0 {
		cfg.Discovery.Exclude = append(cfg.Discovery.Exclude, f.Exclude...)
	}
	if f.SkipActions {
		cfg.Discovery.SkipActions = true
	}
	if f.Mode != "" {
		cfg.Resolver.Mode = f.Mode
	}
	if f.Offline {
		cfg.Resolver.Mode = config.ModeOffline
	}
}

// rootArg returns the scan root named on the command line, or ".".
func rootArg(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return "."
}
