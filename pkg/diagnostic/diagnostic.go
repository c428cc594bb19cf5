// Package diagnostic defines the findings produced by a scan and the sink
// they are handed to.
package diagnostic

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// Severity ranks a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Rank orders severities: error > warning > info. Unknown severities rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityError:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether s is as severe as threshold.
func (s Severity) AtLeast(threshold Severity) bool {
	return s.Rank() > 0 && s.Rank() >= threshold.Rank()
}

// ParseSeverity accepts "error", "warning" or "info" in any case.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if sev.Rank() == 0 {
		return "", fmt.Errorf("invalid severity %q (expected error, warning or info)", s)
	}
	return sev, nil
}

// Location points into a source document. Line and Column are 1-based; zero
// means unknown.
type Location struct {
	File   string `json:"file"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

func (l Location) String() string {
	switch {
	case l.Line == 0:
		return l.File
	case l.Column == 0:
		return fmt.Sprintf("%s:%d", l.File, l.Line)
	default:
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
}

// Diagnostic is a single finding.
type Diagnostic struct {
	Severity  Severity `json:"severity"`
	RuleID    string   `json:"ruleId"`
	Message   string   `json:"message"`
	Location  Location `json:"location"`
	Reference string   `json:"reference,omitempty"`
}

// Compare orders diagnostics by file, line, rule id, column and message.
func Compare(a, b Diagnostic) int {
	return cmp.Or(
		cmp.Compare(a.Location.File, b.Location.File),
		cmp.Compare(a.Location.Line, b.Location.Line),
		cmp.Compare(a.RuleID, b.RuleID),
		cmp.Compare(a.Location.Column, b.Location.Column),
		cmp.Compare(a.Message, b.Message),
		cmp.Compare(a.Reference, b.Reference),
	)
}

// Sort orders diags in place using Compare.
func Sort(diags []Diagnostic) {
	slices.SortStableFunc(diags, Compare)
}
