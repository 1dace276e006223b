// Package tcptransport carries the tool protocol over TCP. Each frame is a
// 4-byte big-endian payload length followed by one JSON envelope or result;
// the same framing applies in both directions. Multiple connections are
// served concurrently, and a result is always written to the connection its
// envelope arrived on.
package tcptransport

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"

	"github.com/stemformatics/mcp/mcp/transport"
)

var logger = xlog.NewPackageLogger("github.com/stemformatics/mcp", "tcptransport")

// Frames carry whole expression matrices.
const maxFrameSize = 64 * 1024 * 1024

type connKeyType struct{}

var connKey connKeyType

// conn wraps a network connection with a write lock so concurrent handler
// completions never interleave frames.
type conn struct {
	nc      net.Conn
	writeMu sync.Mutex
}

// Transport is a length-prefixed TCP transport.
type Transport struct {
	addr string

	mu             sync.RWMutex
	listener       net.Listener
	conns          map[*conn]struct{}
	messageHandler func(ctx context.Context, env *transport.Envelope)
	errorHandler   func(error)
	closeHandler   func()
	closed         bool
}

// New creates a TCP transport listening on addr.
func New(addr string) *Transport {
	return &Transport{
		addr:  addr,
		conns: make(map[*conn]struct{}),
	}
}

// Addr returns the bound listen address, available once Start has begun
// accepting.
func (t *Transport) Addr() net.Addr {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

// Listen binds the listen socket without accepting yet, so callers can fail
// fast on a bad address and learn the bound port.
func (t *Transport) Listen() error {
	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", t.addr)
	}
	t.mu.Lock()
	t.listener = ln
	t.mu.Unlock()
	return nil
}

// Start accepts connections and reads frames until Close or ctx
// cancellation.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.RLock()
	ln := t.listener
	t.mu.RUnlock()
	if ln == nil {
		if err := t.Listen(); err != nil {
			return err
		}
		t.mu.RLock()
		ln = t.listener
		t.mu.RUnlock()
	}

	go func() {
		<-ctx.Done()
		_ = t.Close()
	}()

	logger.KV(xlog.INFO, "reason", "listening", "addr", ln.Addr().String())
	for {
		nc, err := ln.Accept()
		if err != nil {
			t.mu.RLock()
			closed := t.closed
			t.mu.RUnlock()
			if closed {
				return nil
			}
			return errors.Wrap(err, "accept failed")
		}
		c := &conn{nc: nc}
		t.mu.Lock()
		t.conns[c] = struct{}{}
		t.mu.Unlock()
		go t.serveConn(ctx, c)
	}
}

func (t *Transport) serveConn(ctx context.Context, c *conn) {
	defer func() {
		_ = c.nc.Close()
		t.mu.Lock()
		delete(t.conns, c)
		t.mu.Unlock()
	}()

	ctx = context.WithValue(ctx, connKey, c)
	for {
		frame, err := readFrame(c.nc)
		if err != nil {
			if err != io.EOF {
				t.notifyError(err)
			}
			return
		}
		env, err := transport.DecodeEnvelope(frame)
		if err != nil {
			logger.KV(xlog.WARNING, "reason", "malformed_envelope",
				"remote", c.nc.RemoteAddr().String(), "err", err.Error())
			t.notifyError(err)
			_ = t.Send(ctx, transport.Failure("", err))
			continue
		}
		t.mu.RLock()
		handler := t.messageHandler
		t.mu.RUnlock()
		if handler != nil {
			handler(ctx, env)
		}
	}
}

func readFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, errors.Wrap(err, "failed to read frame header")
	}
	size := binary.BigEndian.Uint32(header[:])
	if size == 0 || size > maxFrameSize {
		return nil, errors.Errorf("invalid frame size: %d", size)
	}
	frame := make([]byte, size)
	if _, err := io.ReadFull(r, frame); err != nil {
		return nil, errors.Wrap(err, "failed to read frame payload")
	}
	return frame, nil
}

// Send writes one result to the connection the envelope arrived on.
func (t *Transport) Send(ctx context.Context, res *transport.Result) error {
	c, ok := ctx.Value(connKey).(*conn)
	if !ok {
		return errors.New("no connection associated with context")
	}
	buf, err := json.Marshal(res)
	if err != nil {
		return errors.Wrap(err, "failed to marshal result")
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(buf)))

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.nc.Write(header[:]); err != nil {
		return errors.Wrap(err, "failed to write frame header")
	}
	if _, err := c.nc.Write(buf); err != nil {
		return errors.Wrap(err, "failed to write frame payload")
	}
	return nil
}

// Close stops the listener and drops all connections.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	ln := t.listener
	conns := make([]*conn, 0, len(t.conns))
	for c := range t.conns {
		conns = append(conns, c)
	}
	closeHandler := t.closeHandler
	t.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	for _, c := range conns {
		_ = c.nc.Close()
	}
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
