// Package omrerr defines the error taxonomy shared by the grading pipeline
// and the layers around it.
//
// Every failure that aborts a submission is an *Error carrying a Code.
// Callers branch on the code with errors.Is against the sentinel values:
//
//	if errors.Is(err, omrerr.ErrDecode) {
//	    // the upload was not an image
//	}
//
// A question that has no readable mark is never an error. It is reported
// as a blank answer inside a normal result.
package omrerr

import (
	"errors"
	"fmt"
)

// Code identifies a class of pipeline failure.
type Code string

const (
	// CodeDecode means the image bytes could not be parsed.
	CodeDecode Code = "DECODE_ERROR"

	// CodeInvalidImage means the image decoded but has unusable dimensions.
	CodeInvalidImage Code = "INVALID_IMAGE"

	// CodeConfiguration means the layout/key registry is inconsistent or a
	// lookup referenced an unknown exam version or subject.
	CodeConfiguration Code = "CONFIGURATION_ERROR"

	// CodeStorage means an audit artifact could not be persisted.
	CodeStorage Code = "STORAGE_FAILED"
)

// Sentinels for errors.Is. They match any *Error with the same Code.
var (
	ErrDecode        = &Error{Code: CodeDecode}
	ErrInvalidImage  = &Error{Code: CodeInvalidImage}
	ErrConfiguration = &Error{Code: CodeConfiguration}
	ErrStorage       = &Error{Code: CodeStorage}
)

// Error is a coded pipeline error.
type Error struct {
	Code    Code
	Message string
	Details map[string]interface{}
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// ToMap flattens the error for JSON responses and audit records.
func (e *Error) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
	}
	for k, v := range e.Details {
		result[k] = v
	}
	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}
	return result
}

// CodeOf returns the Code of the first *Error in err's chain, or "" if
// there is none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func NewDecodeError(cause error) *Error {
	return &Error{
		Code:    CodeDecode,
		Message: "image could not be decoded",
		Cause:   cause,
	}
}

func NewInvalidImageError(width, height int, reason string) *Error {
	return &Error{
		Code:    CodeInvalidImage,
		Message: reason,
		Details: map[string]interface{}{
			"width":  width,
			"height": height,
		},
	}
}

func NewConfigurationError(message string, details map[string]interface{}) *Error {
	return &Error{
		Code:    CodeConfiguration,
		Message: message,
		Details: details,
	}
}

func NewStorageError(op string, cause error) *Error {
	return &Error{
		Code:    CodeStorage,
		Message: fmt.Sprintf("failed to %s", op),
		Details: map[string]interface{}{
			"operation": op,
		},
		Cause: cause,
	}
}
