package model

import "fmt"

// Error represents a lasdump decoding error.
// Two errors are considered the same kind when their codes match, so
// detailed instances still satisfy errors.Is against the sentinels below.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Error kinds
var (
	ErrIO                     = &Error{Code: "io", Message: "i/o failure"}
	ErrBadSignature           = &Error{Code: "bad_signature", Message: "not a LAS file: bad signature"}
	ErrUnexpectedEOF          = &Error{Code: "unexpected_eof", Message: "unexpected end of data"}
	ErrUnsupportedPointFormat = &Error{Code: "unsupported_point_format", Message: "unsupported point format"}
	ErrInconsistentHeader     = &Error{Code: "inconsistent_header", Message: "inconsistent header"}
)

// NewError returns a detailed error of the same kind as base.
func NewError(base *Error, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Code:    base.Code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// FormatError reports a point format code the decoder does not implement.
type FormatError struct {
	Format uint8
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("unsupported point format %d", e.Format)
}

// Is matches ErrUnsupportedPointFormat.
func (e *FormatError) Is(target error) bool {
	return target == ErrUnsupportedPointFormat
}
