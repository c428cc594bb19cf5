package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/githubnext/gh-uses/pkg/logger"
)

var schemaValidationLog = logger.New("config:schema_validation")

//go:embed schema.json
var configSchemaJSON []byte

const configSchemaURL = "https://github.com/githubnext/gh-uses/config.schema.json"

var (
	compiledSchemaOnce sync.Once
	compiledSchema     *jsonschema.Schema
	compiledSchemaErr  error
)

// Schema returns the embedded JSON Schema for configuration files.
func Schema() []byte {
	return bytes.Clone(configSchemaJSON)
}

func getCompiledSchema() (*jsonschema.Schema, error) {
	compiledSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(configSchemaJSON))
		if err != nil {
			compiledSchemaErr = fmt.Errorf("failed to parse embedded config schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(configSchemaURL, doc); err != nil {
			compiledSchemaErr = fmt.Errorf("failed to add config schema: %w", err)
			return
		}
		compiledSchema, compiledSchemaErr = c.Compile(configSchemaURL)
	})
	return compiledSchema, compiledSchemaErr
}

// validateWithSchema checks a decoded YAML or TOML document. The document is
// round-tripped through JSON so that numbers reach the validator in the
// form it expects regardless of which decoder produced them.
func validateWithSchema(raw any, source string) error {
	schema, err := getCompiledSchema()
	if err != nil {
		return err
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%s: cannot convert configuration for validation: %w", source, err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%s: cannot convert configuration for validation: %w", source, err)
	}

	if err := schema.Validate(instance); err != nil {
		schemaValidationLog.Printf("Schema validation failed for %s: %v", source, err)
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			collector := NewErrorCollector(false)
			for _, line := range schemaProblems(verr) {
				_ = collector.Addf("%s: %s", source, line)
			}
			return collector.FormattedError("configuration")
		}
		return fmt.Errorf("%s: %w", source, err)
	}
	return nil
}

// schemaProblems flattens a validation error into one line per failing
// location, dropping the summary header the library puts first.
func schemaProblems(err *jsonschema.ValidationError) []string {
	var out []string
	for i, line := range strings.Split(err.Error(), "\n") {
		line = strings.TrimSpace(line)
		if i == 0 || line == "" {
			continue
		}
		out = append(out, strings.TrimPrefix(line, "- "))
	}
	if len(out) == 0 {
		out = append(out, err.Error())
	}
	return out
}
