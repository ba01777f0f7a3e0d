package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/brokerbot/internal/client"
	"github.com/danmuck/brokerbot/internal/clock"
	"github.com/danmuck/brokerbot/internal/logging"
	"github.com/danmuck/brokerbot/internal/observability"
	"github.com/danmuck/brokerbot/internal/protocol"
	"github.com/danmuck/brokerbot/internal/workload"
)

var (
	ErrExchangerRequired = errors.New("bot: exchanger required")
	ErrInvalidConfig     = errors.New("bot: invalid driver config")
)

// Exchanger performs one request/reply exchange. *client.Client satisfies it.
type Exchanger interface {
	Exchange(ctx context.Context, req protocol.Request) (client.Result, error)
}

// ChannelWatcher is told about every channel the session selects.
type ChannelWatcher interface {
	Watch(channel string)
}

// SleepFunc suspends for d or until ctx ends.
type SleepFunc func(ctx context.Context, d time.Duration) error

// DriverConfig bounds one session.
type DriverConfig struct {
	Username        string
	BurstSize       int
	MessageLength   int
	PublishDelayMin time.Duration
	PublishDelayMax time.Duration
	IdleDelayMin    time.Duration
	IdleDelayMax    time.Duration
	// MaxCycles stops the session after that many publish bursts. Zero runs
	// until the context ends.
	MaxCycles int
}

func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		BurstSize:       10,
		MessageLength:   40,
		PublishDelayMin: 300 * time.Millisecond,
		PublishDelayMax: 1000 * time.Millisecond,
		IdleDelayMin:    500 * time.Millisecond,
		IdleDelayMax:    1500 * time.Millisecond,
	}
}

func (c DriverConfig) Validate() error {
	switch {
	case c.BurstSize <= 0:
		return fmt.Errorf("%w: burst size must be positive", ErrInvalidConfig)
	case c.MessageLength <= 0:
		return fmt.Errorf("%w: message length must be positive", ErrInvalidConfig)
	case c.PublishDelayMin < 0 || c.PublishDelayMax < c.PublishDelayMin:
		return fmt.Errorf("%w: publish delay range [%v, %v)", ErrInvalidConfig, c.PublishDelayMin, c.PublishDelayMax)
	case c.IdleDelayMin < 0 || c.IdleDelayMax < c.IdleDelayMin:
		return fmt.Errorf("%w: idle delay range [%v, %v)", ErrInvalidConfig, c.IdleDelayMin, c.IdleDelayMax)
	case c.MaxCycles < 0:
		return fmt.Errorf("%w: max cycles must not be negative", ErrInvalidConfig)
	}
	return nil
}

type DriverOption func(*Driver)

func WithSleep(sleep SleepFunc) DriverOption {
	return func(d *Driver) {
		if sleep != nil {
			d.sleep = sleep
		}
	}
}

func WithWatcher(w ChannelWatcher) DriverOption {
	return func(d *Driver) {
		d.watcher = w
	}
}

func WithRunID(id string) DriverOption {
	return func(d *Driver) {
		d.runID = id
		d.stats.RunID = id
	}
}

// Driver runs the session state machine. It is single-use and not safe for
// concurrent Run calls; Stats may be read at any time.
type Driver struct {
	cfg     DriverConfig
	ex      Exchanger
	clock   *clock.Tracker
	gen     *workload.Generator
	sleep   SleepFunc
	watcher ChannelWatcher
	runID   string

	mu    sync.Mutex
	stats Stats
}

func NewDriver(cfg DriverConfig, ex Exchanger, clk *clock.Tracker, gen *workload.Generator, opts ...DriverOption) (*Driver, error) {
	if ex == nil {
		return nil, ErrExchangerRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New(0)
	}
	if gen == nil {
		gen = workload.NewGenerator(nil)
	}
	cfg.Username = strings.TrimSpace(cfg.Username)
	if cfg.Username == "" {
		cfg.Username = gen.RandomUsername()
	}
	d := &Driver{
		cfg:   cfg,
		ex:    ex,
		clock: clk,
		gen:   gen,
		sleep: sleepContext,
	}
	d.stats.Username = cfg.Username
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *Driver) Username() string {
	return d.cfg.Username
}

func (d *Driver) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.stats
	out.Clock = d.clock.Value()
	return out
}

// Run drives the session until MaxCycles bursts complete, ctx ends, or a
// fatal error occurs. Context cancellation is a clean stop and returns nil.
func (d *Driver) Run(ctx context.Context) error {
	d.update(func(s *Stats) { s.StartedAt = time.Now() })
	logging.Infof("bot.Driver.Run start user=%q run_id=%s max_cycles=%d", d.cfg.Username, d.runID, d.cfg.MaxCycles)

	state := StateLogin
	var (
		candidates []string
		channel    string
		cycles     int
	)
	for {
		if ctx.Err() != nil {
			return d.stop(cycles)
		}
		d.update(func(s *Stats) { s.State = state })

		switch state {
		case StateLogin:
			if err := d.login(ctx); err != nil {
				return d.fail(ctx, cycles, err)
			}
			state = StateDiscover

		case StateDiscover:
			channels, err := d.discover(ctx)
			if err != nil {
				return d.fail(ctx, cycles, err)
			}
			if len(channels) == 0 {
				state = StateCreateChannel
				continue
			}
			candidates = channels
			state = StateSelect

		case StateCreateChannel:
			name, err := d.createChannel(ctx)
			if err != nil {
				return d.fail(ctx, cycles, err)
			}
			candidates = []string{name}
			state = StateSelect

		case StateSelect:
			chosen, err := d.gen.ChooseChannel(candidates)
			if err != nil {
				return d.fail(ctx, cycles, err)
			}
			channel = chosen
			d.update(func(s *Stats) { s.Channel = channel })
			if d.watcher != nil {
				d.watcher.Watch(channel)
			}
			logging.Infof("bot.Driver.Run selected channel=%q candidates=%d burst=%d", channel, len(candidates), d.cfg.BurstSize)
			state = StatePublish

		case StatePublish:
			if err := d.publishBurst(ctx, channel); err != nil {
				return d.fail(ctx, cycles, err)
			}
			cycles++
			d.update(func(s *Stats) { s.Cycles = cycles })
			observability.RecordCycle()
			if d.cfg.MaxCycles > 0 && cycles >= d.cfg.MaxCycles {
				return d.stop(cycles)
			}
			state = StateIdle

		case StateIdle:
			if err := d.sleep(ctx, d.gen.Delay(d.cfg.IdleDelayMin, d.cfg.IdleDelayMax)); err != nil {
				return d.fail(ctx, cycles, err)
			}
			state = StateDiscover
		}
	}
}

func (d *Driver) login(ctx context.Context) error {
	req := protocol.LoginRequest(d.cfg.Username, d.gen.CurrentTimestamp(), d.clock.Tick())
	res, err := d.exchange(ctx, req)
	if err != nil {
		return fmt.Errorf("bot: login: %w", err)
	}
	if res.Decoded() {
		logging.Infof("bot.Driver.login user=%q status=%q clock=%d", d.cfg.Username, res.Reply.DataStatus(), d.clock.Value())
	}
	return nil
}

func (d *Driver) discover(ctx context.Context) ([]string, error) {
	req := protocol.ChannelsRequest(d.gen.CurrentTimestamp(), d.clock.Tick())
	res, err := d.exchange(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bot: discover: %w", err)
	}
	channels := res.Reply.Channels()
	logging.Debugf("bot.Driver.discover channels=%d clock=%d", len(channels), d.clock.Value())
	return channels, nil
}

func (d *Driver) createChannel(ctx context.Context) (string, error) {
	name := d.gen.RandomChannelName()
	logging.Infof("bot.Driver.createChannel no channels, creating channel=%q", name)
	req := protocol.ChannelRequest(name, d.gen.CurrentTimestamp(), d.clock.Tick())
	if _, err := d.exchange(ctx, req); err != nil {
		return "", fmt.Errorf("bot: create channel %q: %w", name, err)
	}
	d.update(func(s *Stats) { s.ChannelsCreated++ })
	observability.RecordChannelCreated()
	return name, nil
}

// publishBurst makes exactly BurstSize publish attempts. Transport and decode
// failures are logged and skipped; only ctx ending or a non-transport error
// stops the burst early.
func (d *Driver) publishBurst(ctx context.Context, channel string) error {
	for i := 0; i < d.cfg.BurstSize; i++ {
		if i > 0 {
			if err := d.sleep(ctx, d.gen.Delay(d.cfg.PublishDelayMin, d.cfg.PublishDelayMax)); err != nil {
				return err
			}
		}
		if err := d.publishOnce(ctx, channel, i); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) publishOnce(ctx context.Context, channel string, i int) error {
	req := protocol.PublishRequest(
		d.cfg.Username,
		channel,
		d.gen.RandomMessageBody(d.cfg.MessageLength),
		d.gen.CurrentTimestamp(),
		d.clock.Tick(),
	)
	d.update(func(s *Stats) { s.PublishAttempts++ })

	res, err := d.exchange(ctx, req)
	switch {
	case err != nil && ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, client.ErrTransport):
		d.update(func(s *Stats) {
			s.PublishFailures++
			s.LastError = err.Error()
		})
		observability.RecordPublish(observability.OutcomeTransportError)
		logging.Warnf("bot.Driver.publish failed channel=%q attempt=%d/%d err=%v", channel, i+1, d.cfg.BurstSize, err)
		return nil
	case err != nil:
		return fmt.Errorf("bot: publish: %w", err)
	case !res.Decoded():
		d.update(func(s *Stats) { s.PublishFailures++ })
		observability.RecordPublish(observability.OutcomeDecodeError)
		return nil
	case res.Reply.Failed():
		d.update(func(s *Stats) { s.PublishRejected++ })
		observability.RecordPublish("rejected")
		return nil
	default:
		observability.RecordPublish(observability.OutcomeOK)
		logging.Debugf("bot.Driver.publish channel=%q attempt=%d/%d status=%q clock=%d", channel, i+1, d.cfg.BurstSize, res.Reply.DataStatus(), d.clock.Value())
		return nil
	}
}

// exchange runs one request and folds the reply clock into the tracker.
func (d *Driver) exchange(ctx context.Context, req protocol.Request) (client.Result, error) {
	d.update(func(s *Stats) { s.Requests++ })
	res, err := d.ex.Exchange(ctx, req)
	if err != nil {
		return res, err
	}
	if !res.Decoded() {
		logging.Warnf("bot.Driver.exchange undecodable reply service=%s clock=%d err=%v", req.Service, req.Clock(), res.DecodeErr)
		return res, nil
	}
	if remote, ok := res.Reply.Clock(); ok {
		d.clock.Observe(remote)
	}
	observability.SetClock(d.clock.Value())
	if res.Reply.Failed() {
		logging.Warnf("bot.Driver.exchange broker error service=%s status=%q description=%q", req.Service, res.Reply.DataStatus(), res.Reply.Description())
	}
	return res, nil
}

func (d *Driver) stop(cycles int) error {
	d.update(func(s *Stats) { s.State = StateStopped })
	logging.Infof("bot.Driver.Run stopped user=%q cycles=%d clock=%d", d.cfg.Username, cycles, d.clock.Value())
	return nil
}

func (d *Driver) fail(ctx context.Context, cycles int, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return d.stop(cycles)
	}
	d.update(func(s *Stats) {
		s.State = StateFailed
		s.LastError = err.Error()
	})
	logging.Errorf("bot.Driver.Run failed user=%q cycles=%d err=%v", d.cfg.Username, cycles, err)
	return err
}

func (d *Driver) update(fn func(*Stats)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(&d.stats)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
