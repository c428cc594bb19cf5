// Package report renders a diagnostic.ScanResult for people and machines.
package report

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/githubnext/gh-uses/pkg/diagnostic"
	"github.com/githubnext/gh-uses/pkg/logger"
)

var log = logger.New("report:report")

// Format names an output format.
type Format string

const (
	FormatText  Format = "text"
	FormatJSON  Format = "json"
	FormatSARIF Format = "sarif"
)

// Formats lists the supported formats.
var Formats = []Format{FormatText, FormatJSON, FormatSARIF}

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(Formats, f) {
		return f, nil
	}
	names := make([]string, len(Formats))
	for i, f := range Formats {
		names[i] = string(f)
	}
	return "", fmt.Errorf("unknown output format %q (expected one of: %s)", s, strings.Join(names, ", "))
}

// Options configures reporters.
type Options struct {
	// ToolVersion is written into SARIF output.
	ToolVersion string
	// Verbose adds the per-rule breakdown to text output.
	Verbose bool
}

// New returns a reporter writing format to w.
func New(format Format, w io.Writer, opts Options) (diagnostic.Reporter, error) {
	log.Printf("Creating reporter: format=%s", format)
	switch format {
	case FormatText, "":
		return &TextReporter{w: w, verbose: opts.Verbose}, nil
	case FormatJSON:
		return &JSONReporter{w: w}, nil
	case FormatSARIF:
		return &SARIFReporter{w: w, version: opts.ToolVersion}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}
