package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/githubnext/gh-uses/pkg/console"
	"github.com/githubnext/gh-uses/pkg/scan"
)

// ExitError carries a process exit status out of a command. The command
// has already reported its outcome, so main exits without printing it.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// exitWith returns nil for code 0 and an *ExitError otherwise.
func exitWith(code int) error {
	if code == 0 {
		return nil
	}
	return &ExitError{Code: code}
}

// ExitCode maps err to a process exit status: 0 for nil, the carried code
// for an *ExitError and 1 for anything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

// FormatCommandError styles err for the console. A missing entry document
// gets a hint on how to widen or relax discovery.
func FormatCommandError(err error) string {
	if err == nil {
		return ""
	}
	msg := console.FormatErrorMessage(err.Error())
	if errors.Is(err, scan.ErrNoEntryDocuments) {
		msg += "\n" + console.FormatInfoMessage("Use --pattern to select other files, or set discovery.require_entries: false to allow an empty scan")
	}
	return msg
}

// PrintCommandError writes err to w unless it is an *ExitError.
func PrintCommandError(w io.Writer, err error) {
	if err == nil {
		return
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return
	}
	fmt.Fprintln(w, FormatCommandError(err))
}
