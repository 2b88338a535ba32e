// Package errors provides structured error types for rapidsbuild.
//
// Every failure that aborts a hook carries a machine-readable [Code] so the
// CLI can report it consistently and tests can assert on the category rather
// than on message text.
//
// # Error Codes
//
// Codes are grouped by the component that raises them:
//   - Configuration: UNKNOWN_OPTION, MISSING_OPTION, INVALID_BOOL
//   - Manifest and inputs: INVALID_MANIFEST, INVALID_REQUIREMENT,
//     INVALID_DEPENDENCY_FILE, FILE_NOT_FOUND
//   - Collaborators: BACKEND_UNAVAILABLE, BACKEND_FAILED, TOOLCHAIN
//   - Guards: SETUP_REQUIRES, UNSUPPORTED
//   - INTERNAL for everything unexpected
//
// # Usage
//
//	err := errors.New(errors.ErrCodeUnknownOption, "attempted to access unknown option %s", name)
//	if errors.Is(err, errors.ErrCodeUnknownOption) {
//	    // Handle configuration error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeToolchain, origErr, "failed to get version from nvcc")
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Configuration errors
	ErrCodeUnknownOption Code = "UNKNOWN_OPTION"
	ErrCodeMissingOption Code = "MISSING_OPTION"
	ErrCodeInvalidBool   Code = "INVALID_BOOL"

	// Input errors
	ErrCodeInvalidManifest       Code = "INVALID_MANIFEST"
	ErrCodeInvalidRequirement    Code = "INVALID_REQUIREMENT"
	ErrCodeInvalidDependencyFile Code = "INVALID_DEPENDENCY_FILE"
	ErrCodeFileNotFound          Code = "FILE_NOT_FOUND"

	// Collaborator errors
	ErrCodeBackendUnavailable Code = "BACKEND_UNAVAILABLE"
	ErrCodeBackendFailed      Code = "BACKEND_FAILED"
	ErrCodeToolchain          Code = "TOOLCHAIN"

	// Guard errors
	ErrCodeSetupRequires Code = "SETUP_REQUIRES"
	ErrCodeUnsupported   Code = "UNSUPPORTED"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Cause)
		}
		return e.Message
	}
	return err.Error()
}
