//go:build !integration

package cli

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/githubnext/gh-uses/pkg/rules"
	"github.com/githubnext/gh-uses/pkg/scan"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: 0},
		{name: "exit error", err: &ExitError{Code: 2}, want: 2},
		{name: "wrapped exit error", err: fmt.Errorf("lint: %w", &ExitError{Code: 1}), want: 1},
		{name: "plain error", err: errors.New("boom"), want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestExitWith(t *testing.T) {
	assert.NoError(t, exitWith(0))
	err := exitWith(2)
	var exitErr *ExitError
	assert.ErrorAs(t, err, &exitErr)
	assert.Equal(t, "exit status 2", err.Error())
}

// TestFormatCommandError verifies that errors keep their text when styled
func TestFormatCommandError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		mustContain []string
	}{
		{
			name:        "simple error",
			err:         errors.New("failed to read .gh-uses.yml"),
			mustContain: []string{"failed to read .gh-uses.yml"},
		},
		{
			name:        "rule configuration",
			err:         &rules.ConfigurationError{Problems: []string{"unknown rule \"a\"", "unknown rule \"b\""}},
			mustContain: []string{"invalid rule configuration", "unknown rule \"a\"", "unknown rule \"b\""},
		},
		{
			name:        "no entry documents",
			err:         fmt.Errorf("%w under /repo", scan.ErrNoEntryDocuments),
			mustContain: []string{"no entry documents found under /repo", "--pattern", "require_entries"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatCommandError(tt.err)
			for _, s := range tt.mustContain {
				assert.Contains(t, got, s)
			}
		})
	}
	assert.Empty(t, FormatCommandError(nil))
}

func TestPrintCommandError(t *testing.T) {
	var buf bytes.Buffer
	PrintCommandError(&buf, &ExitError{Code: 1})
	assert.Empty(t, buf.String(), "exit errors are already reported")

	PrintCommandError(&buf, errors.New("bad flag"))
	assert.Contains(t, buf.String(), "bad flag")
}
