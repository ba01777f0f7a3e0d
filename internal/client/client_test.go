package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/brokerbot/internal/protocol"
	"github.com/danmuck/brokerbot/internal/testutil/framebroker"
	"github.com/danmuck/brokerbot/internal/testutil/testlog"
	"github.com/danmuck/brokerbot/internal/transport"
)

// scriptConn replays canned Recv results and checks Send/Recv alternation.
type scriptConn struct {
	mu       sync.Mutex
	replies  []func() ([]byte, error)
	sendErr  error
	sent     [][]byte
	inFlight atomic.Int32
	overlap  atomic.Bool
	delay    time.Duration
	closed   bool
}

func (c *scriptConn) Send(_ context.Context, payload []byte) error {
	if c.inFlight.Add(1) > 1 {
		c.overlap.Store(true)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		c.inFlight.Add(-1)
		return c.sendErr
	}
	c.sent = append(c.sent, payload)
	return nil
}

func (c *scriptConn) Recv(_ context.Context) ([]byte, error) {
	defer c.inFlight.Add(-1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.replies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	next := c.replies[0]
	c.replies = c.replies[1:]
	return next()
}

func (c *scriptConn) Endpoint() string { return "script://" }

func (c *scriptConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func okReply(t *testing.T, clock int) func() ([]byte, error) {
	raw := framebroker.MustReply(protocol.ServicePublish, map[string]any{"status": "OK", "clock": clock})
	return func() ([]byte, error) { return raw, nil }
}

func newScripted(t *testing.T, conns ...*scriptConn) (*Client, *atomic.Int32) {
	t.Helper()
	var dials atomic.Int32
	c, err := New(Config{
		Endpoint: "tcp://broker:5555",
		Dial: func(context.Context, string, transport.Config) (transport.Conn, error) {
			i := int(dials.Add(1)) - 1
			if i >= len(conns) {
				return nil, errors.New("connection refused")
			}
			return conns[i], nil
		},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c, &dials
}

func publish(clock int64) protocol.Request {
	return protocol.PublishRequest("bot-abc123", "chan-ab12c", "body", "10:00:00", clock)
}

func TestNewRequiresEndpoint(t *testing.T) {
	testlog.Start(t)
	if _, err := New(Config{Endpoint: "  "}); !errors.Is(err, ErrEndpointRequired) {
		t.Fatalf("expected ErrEndpointRequired, got %v", err)
	}
}

func TestConnectFailureWrapsErrConnection(t *testing.T) {
	testlog.Start(t)
	c, _ := newScripted(t)
	if err := c.Connect(context.Background()); !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
}

func TestExchangeOverFrameBroker(t *testing.T) {
	testlog.Start(t)
	broker := framebroker.Start(t, func(req protocol.Request) []byte {
		return framebroker.MustReply(req.Service, map[string]any{
			"channels": []string{"chan-ab12c"},
			"clock":    req.Clock() + 10,
		})
	})
	c, err := New(Config{Endpoint: broker.Endpoint()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer c.Close()
	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	res, err := c.Exchange(ctx, protocol.ChannelsRequest("10:00:00", 3))
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if !res.Decoded() {
		t.Fatalf("expected decoded reply, err=%v", res.DecodeErr)
	}
	if clock, ok := res.Reply.Clock(); !ok || clock != 13 {
		t.Fatalf("reply clock got=%d ok=%v", clock, ok)
	}
	if chans := res.Reply.Channels(); len(chans) != 1 || chans[0] != "chan-ab12c" {
		t.Fatalf("channels got=%v", chans)
	}
}

func TestExchangeMalformedReplyIsNotAnError(t *testing.T) {
	testlog.Start(t)
	conn := &scriptConn{replies: []func() ([]byte, error){
		func() ([]byte, error) { return []byte{0xc1, 0xc1}, nil },
	}}
	c, _ := newScripted(t, conn)
	res, err := c.Exchange(context.Background(), publish(1))
	if err != nil {
		t.Fatalf("malformed reply must not be an error, got %v", err)
	}
	if res.Decoded() || !errors.Is(res.DecodeErr, protocol.ErrDecode) {
		t.Fatalf("expected decode failure result, got %+v", res)
	}
	if _, ok := res.Reply.Clock(); ok {
		t.Fatalf("failed decode must carry no clock")
	}
}

func TestExchangeTransportFailureReconnects(t *testing.T) {
	testlog.Start(t)
	broken := &scriptConn{replies: []func() ([]byte, error){
		func() ([]byte, error) { return nil, errors.New("connection reset") },
	}}
	healthy := &scriptConn{replies: []func() ([]byte, error){okReply(t, 9)}}
	c, dials := newScripted(t, broken, healthy)

	ctx := context.Background()
	if _, err := c.Exchange(ctx, publish(1)); !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if !broken.closed {
		t.Fatalf("broken connection should be closed")
	}
	res, err := c.Exchange(ctx, publish(2))
	if err != nil {
		t.Fatalf("exchange after reconnect: %v", err)
	}
	if clock, _ := res.Reply.Clock(); clock != 9 {
		t.Fatalf("reply clock got=%d", clock)
	}
	if dials.Load() != 2 {
		t.Fatalf("expected 2 dials, got %d", dials.Load())
	}
}

func TestExchangeReconnectFailureIsTransportError(t *testing.T) {
	testlog.Start(t)
	c, _ := newScripted(t)
	_, err := c.Exchange(context.Background(), publish(1))
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestExchangeRejectsInvalidRequest(t *testing.T) {
	testlog.Start(t)
	conn := &scriptConn{}
	c, dials := newScripted(t, conn)
	_, err := c.Exchange(context.Background(), protocol.Request{Service: protocol.ServicePublish, Data: map[string]any{}})
	if !errors.Is(err, protocol.ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
	if dials.Load() != 0 || len(conn.sent) != 0 {
		t.Fatalf("invalid request must not reach the wire")
	}
}

func TestExchangesAreSingleFlight(t *testing.T) {
	testlog.Start(t)
	conn := &scriptConn{delay: 5 * time.Millisecond}
	for i := 0; i < 8; i++ {
		conn.replies = append(conn.replies, okReply(t, i))
	}
	c, _ := newScripted(t, conn)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(clock int64) {
			defer wg.Done()
			if _, err := c.Exchange(context.Background(), publish(clock)); err != nil {
				t.Errorf("exchange %d: %v", clock, err)
			}
		}(int64(i + 1))
	}
	wg.Wait()
	if conn.overlap.Load() {
		t.Fatalf("exchanges overlapped on the connection")
	}
	if len(conn.sent) != 8 {
		t.Fatalf("sent=%d", len(conn.sent))
	}
}

func TestClosedClientRefusesExchange(t *testing.T) {
	testlog.Start(t)
	c, _ := newScripted(t, &scriptConn{})
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := c.Exchange(context.Background(), publish(1)); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
