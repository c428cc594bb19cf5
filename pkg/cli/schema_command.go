package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/githubnext/gh-uses/pkg/config"
	"github.com/githubnext/gh-uses/pkg/constants"
	"github.com/githubnext/gh-uses/pkg/report"
)

// Schema names accepted by the schema command.
const (
	SchemaResult = "result"
	SchemaConfig = "config"
)

// NewSchemaCommand creates the schema command
func NewSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema [result|config]",
		Short: "Print the JSON Schema of the JSON report or of the configuration file",
		Long: `Print a JSON Schema document.

  result   the output of lint --format json (default)
  config   .gh-uses.yml, .gh-uses.yaml and .gh-uses.toml files

Examples:
  ` + constants.CLIExtensionPrefix + ` schema                          # Schema of the JSON report
  ` + constants.CLIExtensionPrefix + ` schema config > gh-uses.schema.json  # Schema for editor completion`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{SchemaResult, SchemaConfig},
		RunE: func(cmd *cobra.Command, args []string) error {
			name := SchemaResult
			if len(args) > 0 {
				name = args[0]
			}
			return RunSchema(cmd.OutOrStdout(), name)
		},
	}
	return cmd
}

// RunSchema writes the named schema to w.
func RunSchema(w io.Writer, name string) error {
	var data []byte
	switch name {
	case SchemaResult, "":
		var err error
		data, err = report.JSONSchema()
		if err != nil {
			return err
		}
	case SchemaConfig:
		data = config.Schema()
	default:
		return fmt.Errorf("unknown schema %q (expected %s or %s)", name, SchemaResult, SchemaConfig)
	}

	if _, err := w.Write(data); err != nil {
		return err
	}
	if len(data) > 0 && data[len(data)-1] != '\n' {
		_, err := io.WriteString(w, "\n")
		return err
	}
	return nil
}
