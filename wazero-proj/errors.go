package proj

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCallback is returned synchronously by Initialize when either
	// continuation is nil.
	ErrMissingCallback = errors.New("both OnSuccess and OnError callbacks are required")

	// ErrNoResources is returned when the host environment is unknown and the
	// caller supplied no resources.
	ErrNoResources = errors.New("unknown environment: proj.db must be supplied by the caller")

	// ErrConversion is matched by every *ConversionError.
	ErrConversion = errors.New("unable to convert value to bytes")

	// ErrClosed is returned by calls on a closed Proj.
	ErrClosed = errors.New("proj engine is closed")
)

// ConversionError reports a value the buffer normalizer could not handle.
type ConversionError struct {
	// Type is the Go type of the rejected value.
	Type string
	// Detail is set when the shape matched but a value was out of range.
	Detail string
}

// Error implements error.
func (e *ConversionError) Error() string {
	if e.Detail != "" {
		return ErrConversion.Error() + ": " + e.Type + ": " + e.Detail
	}
	return ErrConversion.Error() + ": " + e.Type
}

// Is matches ErrConversion.
func (e *ConversionError) Is(target error) bool {
	return target == ErrConversion
}

// HTTPStatusError is a non-success response while fetching a resource.
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Status     string
}

// Error implements error.
func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Status)
}

// CRSError is returned when the engine yields a null object.
type CRSError struct {
	// Op is the export that failed.
	Op string
	// Identifiers are the definitions passed to Op.
	Identifiers []string
	// Errno is the context error number, 0 if unknown.
	Errno int
	// Message is the engine's description of Errno.
	Message string
}

// Error implements error.
func (e *CRSError) Error() string {
	msg := fmt.Sprintf("%s %q failed", e.Op, e.Identifiers)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Errno != 0 {
		msg += fmt.Sprintf(" (errno %d)", e.Errno)
	}
	return msg
}

// missingExportError reports a required export absent from the binary.
func missingExportError(name string) error {
	return errors.New("missing export: " + name)
}

// TransformError is a non-zero result of proj_trans_array.
type TransformError struct {
	Errno int
}

// Error implements error.
func (e *TransformError) Error() string {
	return fmt.Sprintf("proj_trans_array failed (errno %d)", e.Errno)
}
