package transport

import (
	"context"
	"fmt"
	"time"

	zmq "github.com/pebbe/zmq4"
)

type zmqConn struct {
	sock     *zmq.Socket
	in       *zmq.Poller
	out      *zmq.Poller
	endpoint string
	cfg      Config
	closed   bool
}

// dialZMQ opens a REQ socket. ZeroMQ connects in the background, so a
// reachable-but-silent endpoint only shows up as a blocked Recv.
func dialZMQ(ctx context.Context, endpoint string, cfg Config) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sock, err := zmq.NewSocket(zmq.REQ)
	if err != nil {
		return nil, fmt.Errorf("transport: zmq socket: %w", err)
	}
	if err := sock.SetLinger(0); err != nil {
		_ = sock.Close()
		return nil, err
	}
	if err := sock.Connect(endpoint); err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("transport: zmq connect %s: %w", endpoint, err)
	}
	in := zmq.NewPoller()
	in.Add(sock, zmq.POLLIN)
	out := zmq.NewPoller()
	out.Add(sock, zmq.POLLOUT)
	return &zmqConn{
		sock:     sock,
		in:       in,
		out:      out,
		endpoint: endpoint,
		cfg:      cfg,
	}, nil
}

func (c *zmqConn) Endpoint() string { return c.endpoint }

func (c *zmqConn) Send(ctx context.Context, payload []byte) error {
	if c.closed {
		return ErrClosed
	}
	if err := c.wait(ctx, c.out, c.cfg.WriteTimeout); err != nil {
		return err
	}
	_, err := c.sock.SendBytes(payload, zmq.DONTWAIT)
	return err
}

func (c *zmqConn) Recv(ctx context.Context) ([]byte, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if err := c.wait(ctx, c.in, c.cfg.ReadTimeout); err != nil {
		return nil, err
	}
	return c.sock.RecvBytes(zmq.DONTWAIT)
}

func (c *zmqConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.sock.Close()
}

// wait polls until the socket is ready, ctx ends or timeout elapses.
func (c *zmqConn) wait(ctx context.Context, poller *zmq.Poller, timeout time.Duration) error {
	deadline := deadlineFor(ctx, timeout)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ready, err := poller.Poll(c.cfg.PollInterval)
		if err != nil {
			return fmt.Errorf("transport: zmq poll: %w", err)
		}
		if len(ready) > 0 {
			return nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return ErrTimeout
		}
	}
}
