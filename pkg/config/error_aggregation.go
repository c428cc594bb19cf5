package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/githubnext/gh-uses/pkg/logger"
)

var errorAggregationLog = logger.New("config:error_aggregation")

// ErrorCollector gathers configuration problems so they can be reported
// together instead of one run at a time.
type ErrorCollector struct {
	errors   []error
	failFast bool
}

// NewErrorCollector creates a collector. With failFast, Add returns the
// first error immediately.
func NewErrorCollector(failFast bool) *ErrorCollector {
	errorAggregationLog.Printf("Creating error collector: fail_fast=%v", failFast)
	return &ErrorCollector{failFast: failFast}
}

// Add records err. In fail-fast mode it returns err instead.
func (c *ErrorCollector) Add(err error) error {
	if err == nil {
		return nil
	}
	errorAggregationLog.Printf("Adding error to collector: %v", err)
	if c.failFast {
		return err
	}
	c.errors = append(c.errors, err)
	return nil
}

// Addf records a formatted error.
func (c *ErrorCollector) Addf(format string, args ...any) error {
	return c.Add(fmt.Errorf(format, args...))
}

// HasErrors reports whether anything was collected.
func (c *ErrorCollector) HasErrors() bool {
	return len(c.errors) > 0
}

// Count returns the number of collected errors.
func (c *ErrorCollector) Count() int {
	return len(c.errors)
}

// Error joins the collected errors with errors.Join, or returns nil.
func (c *ErrorCollector) Error() error {
	switch len(c.errors) {
	case 0:
		return nil
	case 1:
		return c.errors[0]
	default:
		return errors.Join(c.errors...)
	}
}

// FormattedError returns the collected errors under a header counting them.
func (c *ErrorCollector) FormattedError(category string) error {
	switch len(c.errors) {
	case 0:
		return nil
	case 1:
		return c.errors[0]
	}

	errorAggregationLog.Printf("Formatting %d errors for category: %s", len(c.errors), category)
	var sb strings.Builder
	fmt.Fprintf(&sb, "found %d %s errors:", len(c.errors), category)
	for _, err := range c.errors {
		sb.WriteString("\n  • ")
		sb.WriteString(err.Error())
	}
	return &AggregateError{msg: sb.String(), errs: c.errors}
}

// AggregateError is a formatted group of errors that still unwraps to
// each of them.
type AggregateError struct {
	msg  string
	errs []error
}

func (e *AggregateError) Error() string { return e.msg }

// Unwrap returns the grouped errors.
func (e *AggregateError) Unwrap() []error { return e.errs }
