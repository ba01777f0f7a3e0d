// Package probe subscribes to the broker's pub-sub proxy and counts the
// deliveries seen on the channels the session publishes to.
package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/brokerbot/internal/logging"
	"github.com/danmuck/brokerbot/internal/observability"
	zmq "github.com/pebbe/zmq4"
)

var ErrEndpointRequired = errors.New("probe: endpoint required")

const defaultPollInterval = 100 * time.Millisecond

type Config struct {
	Endpoint     string
	Username     string
	PollInterval time.Duration
}

// Probe owns one SUB socket. Watch may be called from any goroutine; the
// socket itself is only touched by Run.
type Probe struct {
	cfg Config

	mu      sync.Mutex
	pending []string
	topics  map[string]struct{}

	own    atomic.Uint64
	others atomic.Uint64
}

// New builds a probe. Delivery clocks are logged but never fed back into
// the session clock; only broker replies advance it.
func New(cfg Config) (*Probe, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	if cfg.Endpoint == "" {
		return nil, ErrEndpointRequired
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Probe{cfg: cfg, topics: make(map[string]struct{})}, nil
}

// Watch subscribes to channel on the next poll. Repeats are ignored.
func (p *Probe) Watch(channel string) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.topics[channel]; ok {
		return
	}
	p.topics[channel] = struct{}{}
	p.pending = append(p.pending, channel)
}

// Counts returns deliveries from this bot and from everyone else.
func (p *Probe) Counts() (own, others uint64) {
	return p.own.Load(), p.others.Load()
}

func (p *Probe) takePending() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.pending
	p.pending = nil
	return out
}

func (p *Probe) watching(channel string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.topics[channel]
	return ok
}

// Run reads deliveries until ctx ends.
func (p *Probe) Run(ctx context.Context) error {
	sock, err := zmq.NewSocket(zmq.SUB)
	if err != nil {
		return fmt.Errorf("probe: zmq socket: %w", err)
	}
	defer sock.Close()
	if err := sock.SetLinger(0); err != nil {
		return err
	}
	if err := sock.Connect(p.cfg.Endpoint); err != nil {
		return fmt.Errorf("probe: connect %s: %w", p.cfg.Endpoint, err)
	}
	poller := zmq.NewPoller()
	poller.Add(sock, zmq.POLLIN)
	logging.Infof("probe.Probe.Run subscribed endpoint=%q user=%q", p.cfg.Endpoint, p.cfg.Username)

	for {
		if ctx.Err() != nil {
			logging.Infof("probe.Probe.Run stopped own=%d others=%d", p.own.Load(), p.others.Load())
			return nil
		}
		for _, topic := range p.takePending() {
			if err := sock.SetSubscribe(topic); err != nil {
				return fmt.Errorf("probe: subscribe %q: %w", topic, err)
			}
			logging.Debugf("probe.Probe.Run subscribe channel=%q", topic)
		}
		polled, err := poller.Poll(p.cfg.PollInterval)
		if err != nil {
			if zmq.AsErrno(err) == zmq.Errno(zmq.EINTR) {
				continue
			}
			return fmt.Errorf("probe: poll: %w", err)
		}
		if len(polled) == 0 {
			continue
		}
		parts, err := sock.RecvMessage(zmq.DONTWAIT)
		if err != nil {
			if zmq.AsErrno(err) == zmq.Errno(zmq.EAGAIN) {
				continue
			}
			return fmt.Errorf("probe: recv: %w", err)
		}
		p.handle(strings.Join(parts, " "))
	}
}

func (p *Probe) handle(line string) {
	d, err := ParseDelivery(line, p.cfg.Username)
	if err != nil {
		logging.Debugf("probe.Probe.handle skipped line=%q err=%v", line, err)
		return
	}
	// SUB filtering is by prefix; "chan-ab" would also match "chan-abc".
	if !p.watching(d.Channel) {
		return
	}
	if d.Own {
		p.own.Add(1)
	} else {
		p.others.Add(1)
	}
	observability.RecordProbeDelivery(d.Own)
	logging.Debugf("probe.Probe.handle channel=%q sender=%q own=%v clock=%d", d.Channel, d.Sender, d.Own, d.Clock)
}
