package lasdump

import "github.com/dyuri/lasdump/internal/model"

// Error represents a lasdump error. Use errors.Is with the values below
// to test for a kind.
type Error = model.Error

// FormatError reports an unsupported point format code
type FormatError = model.FormatError

// Common errors
var (
	ErrIO                     = model.ErrIO
	ErrBadSignature           = model.ErrBadSignature
	ErrUnexpectedEOF          = model.ErrUnexpectedEOF
	ErrUnsupportedPointFormat = model.ErrUnsupportedPointFormat
	ErrInconsistentHeader     = model.ErrInconsistentHeader
)

// NewIOError returns an ErrIO kind error wrapping cause
func NewIOError(cause error, format string, args ...interface{}) *Error {
	return model.NewError(model.ErrIO, cause, format, args...)
}
