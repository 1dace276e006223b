// Package stdiotransport carries the tool protocol over standard streams:
// one JSON envelope per line on stdin, one JSON result per line on stdout.
// All logging goes to stderr so stdout stays a pure protocol channel.
package stdiotransport

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"

	"github.com/stemformatics/mcp/mcp/transport"
)

var logger = xlog.NewPackageLogger("github.com/stemformatics/mcp", "stdiotransport")

// Lines can carry whole expression matrices.
const maxLineSize = 64 * 1024 * 1024

// Transport is a line-oriented stdio transport.
type Transport struct {
	in  io.Reader
	out io.Writer

	writeMu sync.Mutex

	mu             sync.RWMutex
	messageHandler func(ctx context.Context, env *transport.Envelope)
	errorHandler   func(error)
	closeHandler   func()
	started        bool
	done           chan struct{}
}

// Option configures the transport.
type Option func(*Transport)

// WithStreams replaces stdin/stdout, typically for tests.
func WithStreams(in io.Reader, out io.Writer) Option {
	return func(t *Transport) {
		t.in = in
		t.out = out
	}
}

// New creates a stdio transport.
func New(opts ...Option) *Transport {
	t := &Transport{
		in:   os.Stdin,
		out:  os.Stdout,
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start reads envelopes line by line until EOF, Close, or ctx cancellation.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return errors.New("transport already started")
	}
	t.started = true
	t.mu.Unlock()

	scanner := bufio.NewScanner(t.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			line := make([]byte, len(scanner.Bytes()))
			copy(line, scanner.Bytes())
			select {
			case lines <- line:
			case <-t.done:
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.done:
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			t.dispatch(ctx, line)
		}
	}
}

func (t *Transport) dispatch(ctx context.Context, line []byte) {
	if len(line) == 0 {
		return
	}
	env, err := transport.DecodeEnvelope(line)
	if err != nil {
		logger.KV(xlog.WARNING, "reason", "malformed_envelope", "err", err.Error())
		t.notifyError(err)
		// The sender gets a protocol fault even though there is no id to
		// correlate it with.
		_ = t.Send(ctx, transport.Failure("", err))
		return
	}
	t.mu.RLock()
	handler := t.messageHandler
	t.mu.RUnlock()
	if handler != nil {
		handler(ctx, env)
	}
}

// Send writes one result as a single line. Writes are serialized so
// concurrent handler completions never interleave frames.
func (t *Transport) Send(_ context.Context, res *transport.Result) error {
	return t.write(res)
}

func (t *Transport) write(res *transport.Result) error {
	buf, err := json.Marshal(res)
	if err != nil {
		return errors.Wrap(err, "failed to marshal result")
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.out.Write(append(buf, '\n')); err != nil {
		return errors.Wrap(err, "failed to write result")
	}
	return nil
}

// Close stops the read loop.
func (t *Transport) Close() error {
	t.mu.Lock()
	select {
	case <-t.done:
		t.mu.Unlock()
		return nil
	default:
	}
	close(t.done)
	closeHandler := t.closeHandler
	t.mu.Unlock()

	if closeHandler != nil {
		closeHandler()
	}
	return nil
}

// SetMessageHandler implements Transport.SetMessageHandler.
func (t *Transport) SetMessageHandler(handler func(ctx context.Context, env *transport.Envelope)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = handler
}

// SetErrorHandler implements Transport.SetErrorHandler.
func (t *Transport) SetErrorHandler(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorHandler = handler
}

// SetCloseHandler implements Transport.SetCloseHandler.
func (t *Transport) SetCloseHandler(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeHandler = handler
}

func (t *Transport) notifyError(err error) {
	t.mu.RLock()
	handler := t.errorHandler
	t.mu.RUnlock()
	if handler != nil {
		handler(err)
	}
}
