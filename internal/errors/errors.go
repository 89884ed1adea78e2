package errors

import (
	"errors"
	"fmt"
)

// Kind represents the category of a failure
type Kind string

const (
	KindConfiguration       Kind = "configuration"
	KindAlignmentInfeasible Kind = "alignment_infeasible"
	KindDetectorParse       Kind = "detector_parse"
	KindDecode              Kind = "decode"
	KindIO                  Kind = "io"
)

// AppError represents a categorized application error
type AppError struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewConfigurationError creates an error for missing or out of range settings
func NewConfigurationError(message string, cause error) *AppError {
	return &AppError{Kind: KindConfiguration, Message: message, Cause: cause}
}

// NewAlignmentInfeasible creates the non-fatal alignment failure
func NewAlignmentInfeasible(message string) *AppError {
	return &AppError{Kind: KindAlignmentInfeasible, Message: message}
}

// NewDetectorParseError creates an error for malformed detector output
func NewDetectorParseError(message string, cause error) *AppError {
	return &AppError{Kind: KindDetectorParse, Message: message, Cause: cause}
}

// NewDecodeFailure creates an error for unreadable images
func NewDecodeFailure(message string, cause error) *AppError {
	return &AppError{Kind: KindDecode, Message: message, Cause: cause}
}

// NewIOError creates an error for failed reads or writes
func NewIOError(message string, cause error) *AppError {
	return &AppError{Kind: KindIO, Message: message, Cause: cause}
}

// KindOf returns the kind of the first AppError in err's chain, or "".
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// Is reports whether err carries an AppError of the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
