package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/githubnext/gh-uses/pkg/diagnostic"
)

// JSONReporter writes the ScanResult as indented JSON. Field order follows
// the struct definitions and map keys are sorted, so output is stable.
type JSONReporter struct {
	w io.Writer
}

// NewJSONReporter creates a JSONReporter writing to w.
func NewJSONReporter(w io.Writer) *JSONReporter {
	return &JSONReporter{w: w}
}

// Emit implements diagnostic.Reporter.
func (r *JSONReporter) Emit(result *diagnostic.ScanResult) error {
	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}
	return nil
}
