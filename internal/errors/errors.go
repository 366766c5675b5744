// Package errors defines the structured error types used across buildwp:
// BuildwpError for classified failures and BuildError/ErrorCollector for the
// per-file diagnostics reported by the bundler and stylesheet engine.
package errors

import (
	"errors"
	"fmt"
	"sync"
)

// ErrorSeverity ranks a compiler diagnostic.
type ErrorSeverity int

const (
	ErrorSeverityWarning ErrorSeverity = iota + 1
	ErrorSeverityError
)

func (s ErrorSeverity) String() string {
	switch s {
	case ErrorSeverityWarning:
		return "warning"
	case ErrorSeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// BuildError is one diagnostic reported while compiling a file.
type BuildError struct {
	Stage    string
	File     string
	Line     int
	Column   int
	Message  string
	Severity ErrorSeverity
}

func (be *BuildError) Error() string {
	if be.File == "" {
		return fmt.Sprintf("%s: %s", be.Severity, be.Message)
	}
	return fmt.Sprintf("%s:%d:%d: %s: %s", be.File, be.Line, be.Column, be.Severity, be.Message)
}

// ErrorCollector gathers the diagnostics of one compile. It is safe for
// concurrent use.
type ErrorCollector struct {
	mu          sync.Mutex
	diagnostics []BuildError
}

func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{}
}

// Add records a diagnostic.
func (ec *ErrorCollector) Add(err BuildError) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.diagnostics = append(ec.diagnostics, err)
}

// HasErrors reports whether any diagnostic was recorded.
func (ec *ErrorCollector) HasErrors() bool {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return len(ec.diagnostics) > 0
}

// Err joins the recorded diagnostics in the order they were added, or
// returns nil when there are none.
func (ec *ErrorCollector) Err() error {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	errs := make([]error, len(ec.diagnostics))
	for i := range ec.diagnostics {
		errs[i] = &ec.diagnostics[i]
	}
	return errors.Join(errs...)
}
