// Package admin serves the bot's HTTP control surface: liveness, readiness,
// session status and Prometheus metrics.
package admin

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/brokerbot/internal/auth"
	"github.com/danmuck/brokerbot/internal/logging"
	"github.com/danmuck/brokerbot/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var ErrAddrRequired = errors.New("admin: listen address required")

const shutdownTimeout = 5 * time.Second

// StatusFunc snapshots whatever /status should report.
type StatusFunc func() any

// ReadyFunc reports whether the bot is connected and driving a session.
type ReadyFunc func() bool

type Config struct {
	ID          string
	Addr        string
	CORSOrigins []string
	Status      StatusFunc
	Ready       ReadyFunc
	// Auth guards /status when set.
	Auth auth.Validator
}

type Server struct {
	cfg      Config
	router   *gin.Engine
	appeared time.Time
}

func New(cfg Config) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.AdminAccessLog(log.Logger, cfg.ID))
	r.Use(observability.AdminMetrics())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{cfg: cfg, router: r, appeared: time.Now()}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.appeared).String(),
			"service": s.cfg.ID,
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		ready := s.cfg.Ready == nil || s.cfg.Ready()
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"ready":   ready,
			"uptime":  time.Since(s.appeared).String(),
			"service": s.cfg.ID,
		})
	})

	s.router.GET("/status", s.requireAuth(), func(c *gin.Context) {
		if s.cfg.Status == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "status unavailable"})
			return
		}
		c.JSON(http.StatusOK, s.cfg.Status())
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.Auth == nil {
			c.Next()
			return
		}
		if err := auth.CheckHeader(s.cfg.Auth, c.GetHeader("Authorization")); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}

// Serve listens on cfg.Addr until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	addr := strings.TrimSpace(s.cfg.Addr)
	if addr == "" {
		return ErrAddrRequired
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logging.Infof("admin.Server.Serve listening addr=%s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warnf("admin.Server.Serve shutdown err=%v", err)
		return err
	}
	logging.Infof("admin.Server.Serve stopped addr=%s", addr)
	return nil
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"http://localhost:3000"}
	}
	return out
}
