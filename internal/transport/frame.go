package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/danmuck/brokerbot/internal/protocol/frame"
)

type frameConn struct {
	conn      net.Conn
	reader    *bufio.Reader
	endpoint  string
	cfg       Config
	limits    frame.Limits
	nextID    uint64
	pendingID uint64
	awaiting  bool
	closed    bool
}

func dialFrame(ctx context.Context, addr, endpoint string, cfg Config) (Conn, error) {
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &frameConn{
		conn:     conn,
		reader:   bufio.NewReader(conn),
		endpoint: endpoint,
		cfg:      cfg,
		limits:   frame.DefaultLimits(),
		nextID:   uint64(time.Now().UnixNano()),
	}, nil
}

func (c *frameConn) Endpoint() string { return c.endpoint }

func (c *frameConn) Send(ctx context.Context, payload []byte) error {
	if c.closed {
		return ErrClosed
	}
	if c.awaiting {
		return fmt.Errorf("%w: send before reply id=%d", ErrUnexpectedFrame, c.pendingID)
	}
	if err := c.conn.SetWriteDeadline(deadlineFor(ctx, c.cfg.WriteTimeout)); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetWriteDeadline(time.Now()) })
	defer stop()

	c.nextID++
	err := frame.WriteFrame(c.conn, frame.Frame{
		Header:  frame.Header{MessageID: c.nextID},
		Payload: payload,
	}, c.limits)
	if err != nil {
		return ctxErrOr(ctx, err)
	}
	c.pendingID = c.nextID
	c.awaiting = true
	return nil
}

func (c *frameConn) Recv(ctx context.Context) ([]byte, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if !c.awaiting {
		return nil, fmt.Errorf("%w: recv without request", ErrUnexpectedFrame)
	}
	if err := c.conn.SetReadDeadline(deadlineFor(ctx, c.cfg.ReadTimeout)); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetReadDeadline(time.Now()) })
	defer stop()

	fr, err := frame.ReadFrame(c.reader, c.limits)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() && ctx.Err() == nil {
			return nil, ErrTimeout
		}
		return nil, ctxErrOr(ctx, err)
	}
	if fr.Header.Flags&frame.FlagIsReply == 0 || fr.Header.MessageID != c.pendingID {
		return nil, fmt.Errorf("%w: id=%d want=%d flags=%#x", ErrUnexpectedFrame, fr.Header.MessageID, c.pendingID, fr.Header.Flags)
	}
	c.awaiting = false
	return fr.Payload, nil
}

func (c *frameConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

func ctxErrOr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
