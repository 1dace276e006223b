// Package transport defines the wire envelope of the tool protocol and the
// transport contract the dispatcher runs on. A request is a JSON envelope
// naming a tool and its arguments; every accepted envelope produces exactly
// one result carrying the same id.
package transport

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/stemformatics/mcp/faults"
)

// Envelope is one tool invocation request.
type Envelope struct {
	ID        string          `json:"id"`
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ResultError is the error half of a failed result.
type ResultError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Result is the response to one envelope.
type Result struct {
	ID     string       `json:"id"`
	OK     bool         `json:"ok"`
	Result any          `json:"result,omitempty"`
	Error  *ResultError `json:"error,omitempty"`
}

// Transport moves envelopes in and results out. Implementations own the
// framing; the dispatcher owns the semantics.
type Transport interface {
	// Start begins reading envelopes and blocks until the transport is
	// closed or ctx is cancelled.
	Start(ctx context.Context) error
	// Send writes one result. ctx carries any per-connection routing the
	// transport put there when it delivered the envelope.
	Send(ctx context.Context, res *Result) error
	// Close shuts the transport down.
	Close() error

	// SetMessageHandler installs the callback invoked for each decoded
	// envelope. The handler must not block the read loop.
	SetMessageHandler(handler func(ctx context.Context, env *Envelope))
	// SetErrorHandler installs the callback for transport-level failures.
	SetErrorHandler(handler func(error))
	// SetCloseHandler installs the callback invoked once on shutdown.
	SetCloseHandler(handler func())
}

// DecodeEnvelope strictly parses one envelope frame. Unknown fields and
// trailing data are protocol errors.
func DecodeEnvelope(frame []byte) (*Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(frame))
	dec.DisallowUnknownFields()

	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return nil, faults.Wrap(faults.Protocol, err, "malformed envelope")
	}
	if dec.More() {
		return nil, faults.New(faults.Protocol, "trailing data after envelope")
	}
	return &env, nil
}

// Success builds an ok result for the given envelope id.
func Success(id string, value any) *Result {
	return &Result{ID: id, OK: true, Result: value}
}

// Failure builds an error result, classifying err into its fault kind.
func Failure(id string, err error) *Result {
	return &Result{
		ID: id,
		Error: &ResultError{
			Kind:    string(faults.KindOf(err)),
			Message: err.Error(),
		},
	}
}
