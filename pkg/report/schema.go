package report

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/githubnext/gh-uses/pkg/diagnostic"
)

const jsonSchemaDialect = "https://json-schema.org/draft/2020-12/schema"

// JSONSchema returns the JSON Schema describing JSONReporter output.
func JSONSchema() ([]byte, error) {
	schema, err := jsonschema.For[diagnostic.ScanResult](nil)
	if err != nil {
		return nil, fmt.Errorf("failed to derive result schema: %w", err)
	}
	schema.Schema = jsonSchemaDialect
	schema.Title = "gh-uses scan result"
	schema.Description = "Diagnostics and summary produced by gh-uses lint --format json"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result schema: %w", err)
	}
	return data, nil
}
