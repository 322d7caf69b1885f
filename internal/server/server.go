// Package server exposes the voice agent over HTTP: a WebSocket PCM
// transport for audio, a read-only session status surface, health and
// Prometheus metrics endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/drewpri411/kaathumaaa/pkg/agent"
	"github.com/drewpri411/kaathumaaa/pkg/backchannel"
	"github.com/drewpri411/kaathumaaa/pkg/config"
	"github.com/drewpri411/kaathumaaa/pkg/version"
)

// Factory builds one session's collaborator set. Called per connection so
// stateful providers (recurrent VAD models) are never shared.
type Factory func() (agent.Collaborators, error)

// Server hosts the HTTP surface and owns the session registry.
type Server struct {
	cfg      *config.Config
	log      *slog.Logger
	factory  Factory
	lib      *backchannel.Library
	registry *Registry
	metrics  *Metrics
	promReg  *prometheus.Registry
	engine   *gin.Engine
}

// New builds the server and its routes.
func New(cfg *config.Config, factory Factory, lib *backchannel.Library, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Server{
		cfg:      cfg,
		log:      log,
		factory:  factory,
		lib:      lib,
		registry: NewRegistry(),
		metrics:  NewMetrics(promReg),
		promReg:  promReg,
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.Use(gin.Recovery())

	e.GET("/healthz", s.handleHealthz)
	e.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{})))

	v1 := e.Group("/v1")
	v1.GET("/sessions", s.handleSessions)
	v1.GET("/sessions/:id", s.handleSession)
	v1.GET("/stream", s.handleStream)
	return e
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: s.engine}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"version":  version.Version,
		"sessions": s.registry.Len(),
	})
}

func (s *Server) handleSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.registry.Snapshots()})
}

func (s *Server) handleSession(c *gin.Context) {
	sess, ok := s.registry.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.engine }
