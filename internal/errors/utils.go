package errors

import (
	"errors"
)

// Wrap wraps an error with additional context, creating a BuildwpError if the input is not already one
func Wrap(err error, errType ErrorType, code, message string) *BuildwpError {
	if err == nil {
		return nil
	}

	// If it's already a BuildwpError, keep its location but update the classification
	var te *BuildwpError
	if errors.As(err, &te) {
		return &BuildwpError{
			Type:     errType,
			Code:     code,
			Message:  message,
			Cause:    err,
			Context:  te.Context,
			Stage:    te.Stage,
			FilePath: te.FilePath,
		}
	}

	return &BuildwpError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// WrapBuild wraps an error as a build error with stage context
func WrapBuild(err error, code, message, stage string) *BuildwpError {
	wrapped := Wrap(err, ErrorTypeBuild, code, message)
	if wrapped != nil {
		wrapped.Stage = stage
	}
	return wrapped
}

// WrapIO wraps an error as an I/O error
func WrapIO(err error, code, message string) *BuildwpError {
	return Wrap(err, ErrorTypeIO, code, message)
}

// WrapConfig wraps an error as a configuration error
func WrapConfig(err error, code, message string) *BuildwpError {
	return Wrap(err, ErrorTypeConfig, code, message)
}
