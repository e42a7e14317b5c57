// SPDX-License-Identifier: Apache-2.0

// Package errors provides typed pipeline errors with enough context for
// logging, metrics and CLI exit codes.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// Code classifies pipeline errors for monitoring and recovery.
type Code string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal Code = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input or configuration was invalid.
	CodeInvalidInput Code = "INVALID_INPUT"

	// CodeTransport indicates the remote service could not be reached.
	CodeTransport Code = "TRANSPORT_ERROR"

	// CodeUnauthorized indicates the remote service rejected the credentials.
	CodeUnauthorized Code = "UNAUTHORIZED"

	// CodeRateLimit indicates the remote service throttled the request.
	CodeRateLimit Code = "RATE_LIMITED"

	// CodeNotFound indicates a remote resource was not found.
	CodeNotFound Code = "NOT_FOUND"

	// CodeAgentCreation indicates the remote service rejected an agent configuration.
	CodeAgentCreation Code = "AGENT_CREATION_FAILED"

	// CodeRunFailed indicates a run reached a terminal state other than completed.
	CodeRunFailed Code = "RUN_FAILED"

	// CodeIndexingFailed indicates the remote index reported a failed document.
	CodeIndexingFailed Code = "INDEXING_FAILED"

	// CodeTimeout indicates polling or a stage exceeded its bound.
	CodeTimeout Code = "TIMEOUT"

	// CodeContextLost indicates the caller's context was canceled.
	CodeContextLost Code = "CONTEXT_LOST"

	// CodeStorage indicates an artifact or ledger write failed.
	CodeStorage Code = "STORAGE_ERROR"
)

// Error is a typed error with context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type Error struct {
	Code        Code
	Message     string
	Err         error
	Context     map[string]any
	Recoverable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
// A target with an empty code matches any *Error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *Error) MarshalJSON() ([]byte, error) {
	out := struct {
		Code        string         `json:"code"`
		Message     string         `json:"message"`
		Err         string         `json:"error,omitempty"`
		Context     map[string]any `json:"context,omitempty"`
		Recoverable bool           `json:"recoverable"`
	}{
		Code:        string(e.Code),
		Message:     e.Message,
		Context:     e.Context,
		Recoverable: e.Recoverable,
	}
	if e.Err != nil {
		out.Err = e.Err.Error()
	}
	return json.Marshal(out)
}

// New creates a new Error with the given code, message, and cause.
func New(code Code, msg string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: msg,
		Err:     cause,
		Context: make(map[string]any),
	}
}

// Sentinel returns a code-only target for errors.Is comparisons.
func Sentinel(code Code) error {
	return &Error{Code: code}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *Error) WithRecoverable(recoverable bool) *Error {
	e.Recoverable = recoverable
	return e
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *Error) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// As finds the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var te *Error
	if stderrors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// CodeOf returns the code of the first *Error in err's chain, or
// CodeInternal for untyped errors. A nil error has no code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	if te, ok := As(err); ok {
		return te.Code
	}
	return CodeInternal
}

// HasCode reports whether err's chain contains an *Error with code.
func HasCode(err error, code Code) bool {
	return stderrors.Is(err, Sentinel(code))
}
