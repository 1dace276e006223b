// Package faults defines the error taxonomy shared by the dispatcher,
// the Stemformatics client and the analysis engine. Every error that
// crosses the dispatch boundary is classified into exactly one Kind,
// which becomes the "kind" field of the error envelope on the wire.
package faults

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Kind is the wire-visible error category.
type Kind string

const (
	// Protocol indicates a malformed request envelope.
	Protocol Kind = "ProtocolError"
	// UnknownTool indicates the requested tool is not registered.
	UnknownTool Kind = "UnknownToolError"
	// Validation indicates a missing or mistyped argument.
	Validation Kind = "ValidationError"
	// Auth indicates the upstream API rejected the configured credentials.
	Auth Kind = "AuthError"
	// Upstream indicates a non-auth remote failure after retries were exhausted.
	Upstream Kind = "UpstreamError"
	// Timeout indicates a local deadline was exceeded.
	Timeout Kind = "TimeoutError"
	// Parse indicates an unparseable remote payload.
	Parse Kind = "ParseError"
	// UnknownGene indicates the gene is absent from the expression matrix.
	UnknownGene Kind = "UnknownGeneError"
	// InsufficientSamples indicates a sample group is too small for the test.
	InsufficientSamples Kind = "InsufficientSamplesError"
	// Internal is the fallback for uncaught handler faults.
	Internal Kind = "InternalError"
)

// Error carries a Kind along the cause chain.
type Error struct {
	kind      Kind
	parameter string
	msg       string
	cause     error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

// Unwrap returns the cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Kind returns the error category.
func (e *Error) Kind() Kind {
	return e.kind
}

// Parameter returns the offending parameter name for Validation errors,
// empty otherwise.
func (e *Error) Parameter() string {
	return e.parameter
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) error {
	return &Error{kind: kind, msg: errors.Errorf(format, args...).Error()}
}

// Wrap annotates err with a kind and message, keeping the cause chain.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, msg: errors.Errorf(format, args...).Error(), cause: err}
}

// Validationf creates a Validation error attributed to a parameter.
// The parameter name is included in the message so it survives the wire.
func Validationf(parameter, format string, args ...any) error {
	return &Error{
		kind:      Validation,
		parameter: parameter,
		msg:       parameter + ": " + errors.Errorf(format, args...).Error(),
	}
}

// KindOf classifies err. Context cancellation and deadline errors map to
// Timeout; anything without an explicit kind is Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Timeout
	}
	return Internal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
