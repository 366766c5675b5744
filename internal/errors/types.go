package errors

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeBuild      ErrorType = "build"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// BuildwpError is a structured error type with context.
type BuildwpError struct {
	Type     ErrorType
	Code     string
	Message  string
	Cause    error
	Context  map[string]interface{}
	Stage    string
	FilePath string
}

// Error implements the error interface.
func (e *BuildwpError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Stage != "" {
		parts = append(parts, "stage:"+e.Stage)
	}

	if e.FilePath != "" {
		parts = append(parts, e.FilePath)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *BuildwpError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *BuildwpError) Is(target error) bool {
	var t *BuildwpError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *BuildwpError) WithContext(key string, value interface{}) *BuildwpError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithPath adds file location information.
func (e *BuildwpError) WithPath(filePath string) *BuildwpError {
	e.FilePath = filePath

	return e
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *BuildwpError {
	return &BuildwpError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *BuildwpError {
	return &BuildwpError{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// HasCode checks whether any BuildwpError in the chain carries code. Joined
// errors are searched branch by branch.
func HasCode(err error, code string) bool {
	if err == nil {
		return false
	}
	if te, ok := err.(*BuildwpError); ok && te.Code == code {
		return true
	}

	switch x := err.(type) {
	case interface{ Unwrap() []error }:
		for _, e := range x.Unwrap() {
			if HasCode(e, code) {
				return true
			}
		}
	case interface{ Unwrap() error }:
		return HasCode(x.Unwrap(), code)
	}

	return false
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// ErrorHandler provides centralized error reporting.
type ErrorHandler struct {
	logger Logger
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs err at a level that matches its category. Context entries
// are logged as fields.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var te *BuildwpError
	if !errors.As(err, &te) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	fields := []interface{}{"type", te.Type, "code", te.Code}
	keys := make([]string, 0, len(te.Context))
	for k := range te.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, k, te.Context[k])
	}

	switch te.Type {
	case ErrorTypeConfig, ErrorTypeValidation:
		h.logger.Warn(ctx, err, "Configuration problem", fields...)
	case ErrorTypeBuild:
		h.logger.Error(ctx, err, "Build failed", append(fields, "stage", te.Stage)...)
	default:
		h.logger.Error(ctx, err, "Error occurred", append(fields, "file", te.FilePath)...)
	}
}

// Common error codes.
const (
	ErrCodeConfigInvalid     = "ERR_CONFIG_INVALID"
	ErrCodeConfigNotFound    = "ERR_CONFIG_NOT_FOUND"
	ErrCodeManifestMissing   = "ERR_MANIFEST_MISSING"
	ErrCodeManifestInvalid   = "ERR_MANIFEST_INVALID"
	ErrCodeDependencyMissing = "ERR_DEPENDENCY_MISSING"
	ErrCodeMirrorFailed      = "ERR_MIRROR_FAILED"
	ErrCodeBuildFailed       = "ERR_BUILD_FAILED"
	ErrCodeStyleFailed       = "ERR_STYLE_FAILED"
	ErrCodeReleaseFailed     = "ERR_RELEASE_FAILED"
	ErrCodeScaffoldFailed    = "ERR_SCAFFOLD_FAILED"
	ErrCodeSubstitution      = "ERR_SUBSTITUTION"
)
