// Package errs defines the host's closed error taxonomy and
// maps it onto JSON-RPC 2.0 error codes. Every error that can cross a
// component boundary into a client-visible response or notification is
// constructed through this package so the RPC layer never has to guess
// a code from an arbitrary error string.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies one of the host's error categories.
type Kind string

const (
	KindSessionNotFound     Kind = "session_not_found"
	KindSessionInUse        Kind = "session_in_use"
	KindAgentInitialization Kind = "agent_initialization"
	KindAgentIntegration    Kind = "agent_integration"
	KindToolExecution       Kind = "tool_execution"
	KindInteractionTimeout  Kind = "interaction_timeout"
	KindWorkspaceInvalid    Kind = "workspace_invalid"
	KindResourceExhausted   Kind = "resource_exhausted"
	KindConfiguration       Kind = "configuration"
	KindTransport           Kind = "transport"
	KindInternal            Kind = "internal"
	KindParse               Kind = "parse"
)

// codes maps each Kind to its JSON-RPC error code
var codes = map[Kind]int{
	KindSessionNotFound:     -32003,
	KindSessionInUse:        -32016,
	KindAgentInitialization: -32006,
	KindAgentIntegration:    -32006,
	KindToolExecution:       -32013,
	KindInteractionTimeout:  -32013,
	KindWorkspaceInvalid:    -32002,
	KindResourceExhausted:   -32015,
	KindConfiguration:       -32014,
	KindTransport:           -32001,
	KindInternal:            -32603,
	KindParse:               -32700,
}

// Code returns the JSON-RPC error code for a Kind.
func (k Kind) Code() int {
	if c, ok := codes[k]; ok {
		return c
	}
	return codes[KindInternal]
}

// Error is a kind-tagged error carrying optional structured detail for
// the JSON-RPC error's "data" field.
type Error struct {
	Kind    Kind
	Message string
	Detail  map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Code returns the JSON-RPC error code for this error's kind.
func (e *Error) Code() int { return e.Kind.Code() }

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given kind, preserving cause for
// %w-style unwrapping and logging.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithDetail attaches structured data to the error (e.g. locked_at for
// session_in_use) and returns the same error for chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Detail == nil {
		e.Detail = make(map[string]any)
	}
	e.Detail[key] = value
	return e
}

// As reports whether err is (or wraps) an *Error, returning it if so.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is a tagged Error, or KindInternal
// otherwise. Used by the RPC layer when surfacing an untagged error.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}
