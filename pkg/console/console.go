// Package console formats human-facing terminal output.
package console

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/githubnext/gh-uses/pkg/tty"
)

var (
	colorError   = lipgloss.AdaptiveColor{Light: "#D73737", Dark: "#FF5555"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#B8860B", Dark: "#F1FA8C"}
	colorSuccess = lipgloss.AdaptiveColor{Light: "#27AE60", Dark: "#50FA7B"}
	colorInfo    = lipgloss.AdaptiveColor{Light: "#2980B9", Dark: "#8BE9FD"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#6C6C6C", Dark: "#6272A4"}
	colorBorder  = lipgloss.AdaptiveColor{Light: "#BDBDBD", Dark: "#44475A"}

	errorStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorError)
	warningStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorWarning)
	successStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorSuccess)
	infoStyle     = lipgloss.NewStyle().Foreground(colorInfo)
	mutedStyle    = lipgloss.NewStyle().Foreground(colorMuted)
	locationStyle = lipgloss.NewStyle().Bold(true)
	headerStyle   = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle     = lipgloss.NewStyle().Padding(0, 1)
)

// applyStyle styles text only when stderr is a terminal, so piped output
// and test output stay plain.
func applyStyle(style lipgloss.Style, text string) string {
	if !tty.IsStderrTerminal() {
		return text
	}
	return style.Render(text)
}

// FormatErrorMessage formats an error line with a ✗ prefix.
func FormatErrorMessage(message string) string {
	return applyStyle(errorStyle, "✗ ") + message
}

// FormatWarningMessage formats a warning line with a ⚠ prefix.
func FormatWarningMessage(message string) string {
	return applyStyle(warningStyle, "⚠ ") + message
}

// FormatSuccessMessage formats a success line with a ✓ prefix.
func FormatSuccessMessage(message string) string {
	return applyStyle(successStyle, "✓ ") + message
}

// FormatInfoMessage formats an informational line with an ℹ prefix.
func FormatInfoMessage(message string) string {
	return applyStyle(infoStyle, "ℹ ") + message
}

// FormatVerboseMessage formats a dimmed verbose line.
func FormatVerboseMessage(message string) string {
	return applyStyle(mutedStyle, "🔍 "+message)
}

// FormatLocation renders "file:line:col", omitting zero components.
func FormatLocation(file string, line, column int) string {
	loc := file
	if line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, line)
		if column > 0 {
			loc = fmt.Sprintf("%s:%d", loc, column)
		}
	}
	return applyStyle(locationStyle, loc)
}

// FormatMuted dims secondary text such as rule identifiers.
func FormatMuted(text string) string {
	return applyStyle(mutedStyle, text)
}

// TableConfig describes a table for RenderTable.
type TableConfig struct {
	Title     string
	Headers   []string
	Rows      [][]string
	ShowTotal bool
	TotalRow  []string
}

// RenderTable renders config as a bordered table. An empty config renders
// as the empty string.
func RenderTable(config TableConfig) string {
	if len(config.Headers) == 0 && len(config.Rows) == 0 {
		return ""
	}

	rows := config.Rows
	if config.ShowTotal && len(config.TotalRow) > 0 {
		rows = append(append([][]string{}, rows...), config.TotalRow)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorBorder)).
		Headers(config.Headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	var out strings.Builder
	if config.Title != "" {
		out.WriteString(config.Title + "\n")
	}
	out.WriteString(t.Render())
	out.WriteString("\n")
	return out.String()
}

// Errorln prints a formatted error message to stderr.
func Errorln(message string) {
	fmt.Fprintln(os.Stderr, FormatErrorMessage(message))
}
