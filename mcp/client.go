package mcp

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/stemformatics/mcp/mcp/transport"
)

// Client is a TCP client for the tool protocol, correlating results to
// calls by envelope id. It exists for integration tests and demos; the
// server itself never dials out.
type Client struct {
	conn net.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan *transport.Result
	readErr error
	closed  bool
}

// Dial connects to a server's TCP transport.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial %s", addr)
	}
	c := &Client{
		conn:    conn,
		pending: make(map[string]chan *transport.Result),
	}
	go c.readLoop()
	return c, nil
}

// Call invokes a tool and waits for its result. args is marshaled into the
// envelope's arguments object; nil sends no arguments.
func (c *Client) Call(ctx context.Context, tool string, args any) (*transport.Result, error) {
	env := &transport.Envelope{
		ID:   uuid.NewString(),
		Tool: tool,
	}
	if args != nil {
		buf, err := json.Marshal(args)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal arguments")
		}
		env.Arguments = buf
	}

	ch := make(chan *transport.Result, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errors.New("client is closed")
	}
	c.pending[env.ID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, env.ID)
		c.mu.Unlock()
	}()

	if err := c.send(env); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res, ok := <-ch:
		if !ok {
			c.mu.Lock()
			err := c.readErr
			c.mu.Unlock()
			if err == nil {
				err = errors.New("connection closed")
			}
			return nil, err
		}
		return res, nil
	}
}

// Close drops the connection; in-flight calls fail.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) send(env *transport.Envelope) error {
	buf, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "failed to marshal envelope")
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(buf)))

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(header[:]); err != nil {
		return errors.Wrap(err, "failed to write envelope")
	}
	if _, err := c.conn.Write(buf); err != nil {
		return errors.Wrap(err, "failed to write envelope")
	}
	return nil
}

func (c *Client) readLoop() {
	for {
		var header [4]byte
		if _, err := io.ReadFull(c.conn, header[:]); err != nil {
			c.fail(err)
			return
		}
		frame := make([]byte, binary.BigEndian.Uint32(header[:]))
		if _, err := io.ReadFull(c.conn, frame); err != nil {
			c.fail(err)
			return
		}
		var res transport.Result
		if err := json.Unmarshal(frame, &res); err != nil {
			c.fail(errors.Wrap(err, "malformed result frame"))
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[res.ID]
		if ok {
			delete(c.pending, res.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- &res
		}
	}
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.readErr == nil && err != io.EOF {
		c.readErr = err
	}
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}
