// Package client performs single-flight request/reply exchanges with the
// broker over one exclusively owned transport connection.
package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/brokerbot/internal/logging"
	"github.com/danmuck/brokerbot/internal/observability"
	"github.com/danmuck/brokerbot/internal/protocol"
	"github.com/danmuck/brokerbot/internal/transport"
)

var (
	ErrEndpointRequired = errors.New("client: broker endpoint required")
	ErrConnection       = errors.New("client: connection failed")
	ErrTransport        = errors.New("client: transport failure")
	ErrClosed           = errors.New("client: closed")
)

// DialFunc opens the underlying connection. Tests substitute it.
type DialFunc func(ctx context.Context, endpoint string, cfg transport.Config) (transport.Conn, error)

type Config struct {
	Endpoint  string
	Transport transport.Config
	Dial      DialFunc
}

// Result is the outcome of one completed exchange. Either the reply decoded
// (DecodeErr == nil) or it did not, in which case Reply is empty and callers
// continue with defaults.
type Result struct {
	Reply     protocol.Reply
	DecodeErr error
	Elapsed   time.Duration
}

func (r Result) Decoded() bool {
	return r.DecodeErr == nil
}

// Client owns the broker connection.
type Client struct {
	cfg    Config
	mu     sync.Mutex
	conn   transport.Conn
	closed bool
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, ErrEndpointRequired
	}
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Transport = cfg.Transport.WithDefaults()
	if cfg.Dial == nil {
		cfg.Dial = transport.Dial
	}
	return &Client{cfg: cfg}, nil
}

func (c *Client) Endpoint() string {
	return c.cfg.Endpoint
}

// Connect establishes the connection, blocking until it is ready.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.closed {
		return ErrClosed
	}
	if c.conn != nil {
		return nil
	}
	conn, err := c.cfg.Dial(ctx, c.cfg.Endpoint, c.cfg.Transport)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: endpoint=%s: %v", ErrConnection, c.cfg.Endpoint, err)
	}
	c.conn = conn
	logging.Infof("client.Client.Connect ready endpoint=%q", c.cfg.Endpoint)
	return nil
}

// Exchange sends req and waits for exactly one reply. Exchanges never
// overlap: a concurrent caller waits for the current one to finish.
//
// An undecodable reply is not an error; it is reported through
// Result.DecodeErr. Send/receive failures wrap ErrTransport and drop the
// connection, which is re-dialed on the next exchange.
func (c *Client) Exchange(ctx context.Context, req protocol.Request) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	service := string(req.Service)
	payload, err := protocol.Encode(req)
	if err != nil {
		return Result{}, err
	}
	if err := c.connectLocked(ctx); err != nil {
		if errors.Is(err, ErrConnection) {
			observability.RecordExchange(service, observability.OutcomeTransportError, 0)
			return Result{}, fmt.Errorf("%w: %v", ErrTransport, err)
		}
		return Result{}, err
	}

	start := time.Now()
	raw, err := c.roundTrip(ctx, payload)
	elapsed := time.Since(start)
	if err != nil {
		c.dropLocked()
		observability.RecordExchange(service, observability.OutcomeTransportError, elapsed)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{Elapsed: elapsed}, ctxErr
		}
		return Result{Elapsed: elapsed}, fmt.Errorf("%w: service=%s: %v", ErrTransport, service, err)
	}

	reply, decodeErr := protocol.Decode(raw)
	if decodeErr != nil {
		observability.RecordExchange(service, observability.OutcomeDecodeError, elapsed)
		logging.Debugf("client.Client.Exchange undecodable reply service=%s bytes=%d err=%v", service, len(raw), decodeErr)
		return Result{DecodeErr: decodeErr, Elapsed: elapsed}, nil
	}
	observability.RecordExchange(service, observability.OutcomeOK, elapsed)
	observability.RecordReplyStatus(service, reply.DataStatus())
	return Result{Reply: reply, Elapsed: elapsed}, nil
}

func (c *Client) roundTrip(ctx context.Context, payload []byte) ([]byte, error) {
	if err := c.conn.Send(ctx, payload); err != nil {
		return nil, err
	}
	return c.conn.Recv(ctx)
}

func (c *Client) dropLocked() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil {
		logging.Debugf("client.Client drop close err=%v", err)
	}
	c.conn = nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
