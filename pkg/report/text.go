package report

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/githubnext/gh-uses/pkg/console"
	"github.com/githubnext/gh-uses/pkg/diagnostic"
)

// TextReporter writes one line per diagnostic followed by a summary.
type TextReporter struct {
	w       io.Writer
	verbose bool
}

// NewTextReporter creates a TextReporter writing to w.
func NewTextReporter(w io.Writer, verbose bool) *TextReporter {
	return &TextReporter{w: w, verbose: verbose}
}

// Emit implements diagnostic.Reporter.
func (r *TextReporter) Emit(result *diagnostic.ScanResult) error {
	var out strings.Builder

	for _, d := range result.Diagnostics {
		out.WriteString(FormatDiagnostic(d))
		out.WriteString("\n")
	}
	if len(result.Diagnostics) > 0 {
		out.WriteString("\n")
	}

	out.WriteString(console.RenderStruct(result.Summary))

	if r.verbose && len(result.Summary.ByRule) > 0 {
		out.WriteString("\n")
		out.WriteString(console.RenderTable(byRuleTable(result.Summary.ByRule)))
	}

	out.WriteString("\n")
	out.WriteString(verdict(result))
	out.WriteString("\n")

	_, err := io.WriteString(r.w, out.String())
	return err
}

// FormatDiagnostic renders d as "<location>: <message> [rule]" with a
// severity marker.
func FormatDiagnostic(d diagnostic.Diagnostic) string {
	loc := console.FormatLocation(d.Location.File, d.Location.Line, d.Location.Column)
	line := fmt.Sprintf("%s: %s %s", loc, d.Message, console.FormatMuted("["+d.RuleID+"]"))
	switch d.Severity {
	case diagnostic.SeverityError:
		return console.FormatErrorMessage(line)
	case diagnostic.SeverityWarning:
		return console.FormatWarningMessage(line)
	default:
		return console.FormatInfoMessage(line)
	}
}

func byRuleTable(byRule map[string]int) console.TableConfig {
	ids := make([]string, 0, len(byRule))
	for id := range byRule {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	cfg := console.TableConfig{Title: "Findings by rule", Headers: []string{"Rule", "Count"}}
	total := 0
	for _, id := range ids {
		cfg.Rows = append(cfg.Rows, []string{id, strconv.Itoa(byRule[id])})
		total += byRule[id]
	}
	cfg.ShowTotal = true
	cfg.TotalRow = []string{"Total", strconv.Itoa(total)}
	return cfg
}

func verdict(result *diagnostic.ScanResult) string {
	counts := fmt.Sprintf("%s, %s", plural(result.Summary.Errors, "error"), plural(result.Summary.Warnings, "warning"))
	switch {
	case result.Incomplete:
		return console.FormatWarningMessage("Scan was interrupted; results are incomplete (" + counts + ")")
	case !result.Passed:
		return console.FormatErrorMessage(fmt.Sprintf("Validation failed: %s (failing on %s)", counts, result.FailOn))
	default:
		return console.FormatSuccessMessage("Validation passed: " + counts)
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
