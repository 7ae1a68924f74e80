package core

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes failures surfaced to callers.
type ErrorKind string

const (
	// KindConfig marks a missing or unresolvable provider or model.
	KindConfig ErrorKind = "config"
	// KindValidation marks missing or malformed caller input.
	KindValidation ErrorKind = "validation"
	// KindTransport marks network or timeout failures reaching a provider.
	KindTransport ErrorKind = "transport"
	// KindProviderAPI marks a well-formed error payload returned by a provider.
	KindProviderAPI ErrorKind = "provider_api"
	// KindTemplate marks a malformed or missing commit template.
	KindTemplate ErrorKind = "template"
	// KindToolDispatch marks a failing tool handler.
	KindToolDispatch ErrorKind = "tool_dispatch"
)

// configHint is appended to configuration errors shown to users.
const configHint = "check the providers and models sections of the configuration"

// Error is the error type returned across package boundaries. Kind decides
// how callers present it; Err keeps the underlying cause for errors.Is/As.
type Error struct {
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message"`
	Provider   string    `json:"provider,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	Err        error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s error (%s): %s", e.Kind, e.Provider, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Hint returns a user facing remediation hint, if any.
func (e *Error) Hint() string {
	if e.Kind == KindConfig {
		return configHint
	}
	return ""
}

// NewConfigError creates a KindConfig error.
func NewConfigError(format string, args ...any) *Error {
	return &Error{Kind: KindConfig, Message: fmt.Sprintf(format, args...)}
}

// NewValidationError creates a KindValidation error.
func NewValidationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NewTemplateError creates a KindTemplate error.
func NewTemplateError(format string, args ...any) *Error {
	return &Error{Kind: KindTemplate, Message: fmt.Sprintf(format, args...)}
}

// NewTransportError wraps a transport failure talking to provider.
func NewTransportError(provider string, err error) *Error {
	return &Error{Kind: KindTransport, Provider: provider, Message: err.Error(), Err: err}
}

// NewProviderAPIError wraps an error payload returned by provider.
func NewProviderAPIError(provider string, status int, message string, err error) *Error {
	return &Error{Kind: KindProviderAPI, Provider: provider, StatusCode: status, Message: message, Err: err}
}

// NewToolDispatchError wraps a failing tool handler.
func NewToolDispatchError(tool string, err error) *Error {
	return &Error{Kind: KindToolDispatch, Message: fmt.Sprintf("tool %s: %v", tool, err), Err: err}
}

// IsKind reports whether err (or anything it wraps) is an *Error of kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
