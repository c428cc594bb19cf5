package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/githubnext/gh-uses/pkg/diagnostic"
)

// ParseError reports a document that is not syntactically valid YAML.
type ParseError struct {
	Location diagnostic.Location
	Reason   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Location, e.Reason)
}

var yamlErrorPosition = regexp.MustCompile(`^\[(\d+):(\d+)\]\s*(.*)$`)

// newParseError takes the position from the token of a goccy/go-yaml error.
// Other errors fall back to the "[line:col] message" header on the first
// line of the text.
func newParseError(path string, err error) *ParseError {
	pe := &ParseError{Location: diagnostic.Location{File: path}}

	var yerr yaml.Error
	if errors.As(err, &yerr) && yerr.GetToken() != nil && yerr.GetToken().Position != nil {
		pos := yerr.GetToken().Position
		pe.Location.Line, pe.Location.Column = pos.Line, pos.Column
		pe.Reason = strings.TrimSpace(yerr.GetMessage())
	} else {
		first, _, _ := strings.Cut(strings.TrimSpace(err.Error()), "\n")
		pe.Reason = strings.TrimSpace(first)
		if m := yamlErrorPosition.FindStringSubmatch(first); m != nil {
			pe.Location.Line, _ = strconv.Atoi(m[1])
			pe.Location.Column, _ = strconv.Atoi(m[2])
			pe.Reason = strings.TrimSpace(m[3])
		}
	}

	if pe.Reason == "" {
		pe.Reason = "invalid YAML"
	}
	log.Printf("Parse error: %s", pe)
	return pe
}
