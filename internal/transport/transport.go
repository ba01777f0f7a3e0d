package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/brokerbot/internal/logging"
)

var (
	ErrEndpointRequired    = errors.New("transport: endpoint required")
	ErrUnsupportedEndpoint = errors.New("transport: unsupported endpoint scheme")
	ErrTimeout             = errors.New("transport: timed out")
	ErrClosed              = errors.New("transport: connection closed")
	ErrUnexpectedFrame     = errors.New("transport: unexpected frame")
)

// Conn is one request-reply connection. Send and Recv must alternate.
type Conn interface {
	Send(ctx context.Context, payload []byte) error
	Recv(ctx context.Context) ([]byte, error)
	Endpoint() string
	Close() error
}

// Scheme identifies the connection implementation for an endpoint.
type Scheme string

const (
	SchemeZMQ   Scheme = "zmq"
	SchemeFrame Scheme = "frame"
)

// ParseEndpoint maps an endpoint to its scheme and dial address.
// ZeroMQ endpoints are returned unchanged; frame:// endpoints are reduced to
// host:port.
func ParseEndpoint(endpoint string) (Scheme, string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", "", ErrEndpointRequired
	}
	scheme, rest, ok := strings.Cut(endpoint, "://")
	if !ok || rest == "" {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedEndpoint, endpoint)
	}
	switch strings.ToLower(scheme) {
	case "tcp", "ipc", "inproc", "pgm", "epgm":
		return SchemeZMQ, endpoint, nil
	case "frame":
		return SchemeFrame, rest, nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedEndpoint, endpoint)
	}
}

// Dial opens a connection to endpoint, retrying with backoff up to
// cfg.MaxConnectAttempts (0 retries forever until ctx ends).
func Dial(ctx context.Context, endpoint string, cfg Config) (Conn, error) {
	cfg = cfg.WithDefaults()
	scheme, addr, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	retry := newDialRetry(cfg)
	for {
		attempt := retry.begin()
		conn, err := dialOnce(ctx, scheme, addr, endpoint, cfg)
		if err == nil {
			logging.Debugf("transport.Dial connected endpoint=%q scheme=%s attempt=%d", endpoint, scheme, attempt)
			return conn, nil
		}
		logging.Warnf("transport.Dial attempt=%d endpoint=%q err=%v", attempt, endpoint, err)
		if retry.exhausted() {
			return nil, err
		}
		if err := retry.wait(ctx); err != nil {
			return nil, err
		}
	}
}

func dialOnce(ctx context.Context, scheme Scheme, addr, endpoint string, cfg Config) (Conn, error) {
	switch scheme {
	case SchemeZMQ:
		return dialZMQ(ctx, addr, cfg)
	case SchemeFrame:
		return dialFrame(ctx, addr, endpoint, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEndpoint, endpoint)
	}
}

// deadlineFor picks the earlier of now+timeout and the ctx deadline. A zero
// result means no deadline.
func deadlineFor(ctx context.Context, timeout time.Duration) time.Time {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && (deadline.IsZero() || ctxDeadline.Before(deadline)) {
		deadline = ctxDeadline
	}
	return deadline
}
