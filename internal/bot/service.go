package bot

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/danmuck/brokerbot/internal/admin"
	"github.com/danmuck/brokerbot/internal/auth"
	"github.com/danmuck/brokerbot/internal/client"
	"github.com/danmuck/brokerbot/internal/clock"
	"github.com/danmuck/brokerbot/internal/logging"
	"github.com/danmuck/brokerbot/internal/probe"
	"github.com/danmuck/brokerbot/internal/transport"
	"github.com/danmuck/brokerbot/internal/workload"
	"github.com/google/uuid"
)

var ErrInvalidTimezone = errors.New("bot: invalid timezone")

// ServiceConfig configures one bot process.
type ServiceConfig struct {
	Endpoint string
	// ProbeEndpoint is the pub-sub proxy's SUB side. Empty disables the probe.
	ProbeEndpoint string
	// AdminAddr enables the HTTP admin surface when set.
	AdminAddr string
	// AdminToken, when set, is required as a bearer token on /status.
	AdminToken  string
	CORSOrigins []string
	// Timezone names the IANA zone used for request timestamps.
	Timezone  string
	Seed      uint64
	Driver    DriverConfig
	Transport transport.Config
	// Dial overrides the client transport; tests use it.
	Dial client.DialFunc
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Endpoint:  "tcp://localhost:5555",
		Timezone:  "America/Sao_Paulo",
		Driver:    DefaultDriverConfig(),
		Transport: transport.DefaultConfig(),
	}
}

// Service runs the bot lifecycle: connect, drive the session, and serve the
// optional probe and admin surface alongside it.
type Service struct {
	cfg   ServiceConfig
	runID string

	mu     sync.RWMutex
	driver *Driver
	probe  *probe.Probe
	ready  atomic.Bool
}

func NewService() *Service {
	return NewServiceWithConfig(DefaultServiceConfig())
}

func NewServiceWithConfig(cfg ServiceConfig) *Service {
	cfg.Transport = cfg.Transport.WithDefaults()
	return &Service{cfg: cfg, runID: uuid.NewString()}
}

func (s *Service) RunID() string {
	return s.runID
}

// Run blocks until SIGINT/SIGTERM or the session ends.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.RunContext(ctx)
}

// Status snapshots the running session. Before the driver exists only the
// run ID is set.
func (s *Service) Status() Stats {
	s.mu.RLock()
	d, p := s.driver, s.probe
	s.mu.RUnlock()
	st := Stats{RunID: s.runID, State: StateLogin}
	if d != nil {
		st = d.Stats()
	}
	if p != nil {
		st.DeliveriesOwn, st.DeliveriesOthers = p.Counts()
	}
	return st
}

func (s *Service) Ready() bool {
	return s.ready.Load()
}

func (s *Service) RunContext(ctx context.Context) error {
	loc, err := loadLocation(s.cfg.Timezone)
	if err != nil {
		return err
	}
	gen := workload.NewGenerator(workload.NewSource(s.cfg.Seed), workload.WithLocation(loc))
	clk := clock.New(0)

	driverCfg := s.cfg.Driver
	if strings.TrimSpace(driverCfg.Username) == "" {
		driverCfg.Username = gen.RandomUsername()
	}
	if err := driverCfg.Validate(); err != nil {
		return err
	}

	cl, err := client.New(client.Config{
		Endpoint:  s.cfg.Endpoint,
		Transport: s.cfg.Transport,
		Dial:      s.cfg.Dial,
	})
	if err != nil {
		return err
	}
	defer cl.Close()
	if err := cl.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	// Background goroutines exit on cancel, so cancel must run before Wait.
	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := []DriverOption{WithRunID(s.runID)}
	if strings.TrimSpace(s.cfg.ProbeEndpoint) != "" {
		p, err := probe.New(probe.Config{
			Endpoint:     s.cfg.ProbeEndpoint,
			Username:     driverCfg.Username,
			PollInterval: s.cfg.Transport.PollInterval,
		})
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.probe = p
		s.mu.Unlock()
		opts = append(opts, WithWatcher(p))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Run(ctx); err != nil {
				logging.Warnf("bot.Service.probe stopped err=%v", err)
			}
		}()
	}

	d, err := NewDriver(driverCfg, cl, clk, gen, opts...)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.driver = d
	s.mu.Unlock()

	adminErr := make(chan error, 1)
	if strings.TrimSpace(s.cfg.AdminAddr) != "" {
		adminCfg := admin.Config{
			ID:          driverCfg.Username,
			Addr:        s.cfg.AdminAddr,
			CORSOrigins: s.cfg.CORSOrigins,
			Status:      func() any { return s.Status() },
			Ready:       s.Ready,
		}
		if token := strings.TrimSpace(s.cfg.AdminToken); token != "" {
			adminCfg.Auth = auth.StaticToken{Token: token}
		}
		srv := admin.New(adminCfg)
		wg.Add(1)
		go func() {
			defer wg.Done()
			adminErr <- srv.Serve(ctx)
		}()
	}

	logging.Infof(
		"bot.Service.RunContext ready run_id=%s endpoint=%q user=%q probe=%q admin=%q",
		s.runID, s.cfg.Endpoint, driverCfg.Username, s.cfg.ProbeEndpoint, s.cfg.AdminAddr,
	)
	s.ready.Store(true)
	defer s.ready.Store(false)

	driverErr := make(chan error, 1)
	go func() {
		driverErr <- d.Run(ctx)
	}()

	select {
	case err := <-driverErr:
		cancel()
		return err
	case err := <-adminErr:
		cancel()
		<-driverErr
		if err != nil {
			return fmt.Errorf("bot: admin server: %w", err)
		}
		return nil
	}
}

func loadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTimezone, name, err)
	}
	return loc, nil
}
