// Package server exposes a running lab over HTTP and a websocket stream.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"

	"github.com/pthm-cable/protolab/lab"
	"github.com/pthm-cable/protolab/metrics"
	"github.com/pthm-cable/protolab/sim"
)

// Options configures the HTTP adapter.
type Options struct {
	Addr             string
	SnapshotInterval time.Duration // websocket snapshot cadence
	ShutdownTimeout  time.Duration
	Clock            clock.Clock // nil = wall clock
}

// Server is the HTTP adapter around one simulation.
type Server struct {
	opts     Options
	sim      *sim.Simulation
	reporter *metrics.Reporter
	engine   *gin.Engine

	closeOnce sync.Once
	closing   chan struct{}
}

// New builds the router. reporter may be nil, in which case /metrics is not served.
func New(s *sim.Simulation, reporter *metrics.Reporter, opts Options) *Server {
	if opts.SnapshotInterval <= 0 {
		opts.SnapshotInterval = 500 * time.Millisecond
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	srv := &Server{
		opts:     opts,
		sim:      s,
		reporter: reporter,
		closing:  make(chan struct{}),
	}

	router := gin.New()
	router.Use(gin.Recovery(), srv.observe)

	router.GET("/healthz", srv.handleHealth)
	router.GET("/snapshot", srv.handleSnapshot)
	router.POST("/snapshot", srv.handleSaveSnapshot)
	router.GET("/environment", srv.handleGetEnvironment)
	router.PATCH("/environment", srv.handlePatchEnvironment)
	router.GET("/diagnose", srv.handleDiagnose)
	router.GET("/timeline", srv.handleTimeline)
	router.GET("/milestones", srv.handleMilestones)
	router.POST("/start", srv.handleStart)
	router.POST("/pause", srv.handlePause)
	router.POST("/reset", srv.handleReset)
	router.GET("/ws", srv.handleStream)
	if reporter != nil {
		router.GET("/metrics", gin.WrapH(reporter.Handler()))
	}

	srv.engine = router
	return srv
}

// Handler returns the router for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down within ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", s.opts.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	// Streams are hijacked connections; Shutdown does not wait for them.
	s.close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	slog.Info("http server stopped")
	return nil
}

func (s *Server) close() {
	s.closeOnce.Do(func() { close(s.closing) })
}

// observe records request latency by route template.
func (s *Server) observe(c *gin.Context) {
	start := time.Now()
	c.Next()
	if s.reporter == nil {
		return
	}
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	s.reporter.ObserveRequest(route, c.Request.Method, strconv.Itoa(c.Writer.Status()), time.Since(start))
}

// StatusResponse is returned by the lifecycle endpoints.
type StatusResponse struct {
	RunID   string    `json:"run_id"`
	Running bool      `json:"running"`
	Tick    int64     `json:"tick"`
	Stage   lab.Stage `json:"stage"`
	Name    string    `json:"stage_name"`
}

// SnapshotResponse is returned by GET /snapshot and streamed over /ws.
type SnapshotResponse struct {
	Tick        int64           `json:"tick"`
	Running     bool            `json:"running"`
	State       lab.State       `json:"state"`
	Environment lab.Environment `json:"environment"`
	Ceiling     float64         `json:"life_ceiling"`
}

func (s *Server) status() StatusResponse {
	v := s.sim.View()
	return StatusResponse{
		RunID:   s.sim.RunID(),
		Running: v.Running,
		Tick:    v.Tick,
		Stage:   v.State.Stage,
		Name:    v.State.Stage.String(),
	}
}

func (s *Server) snapshot() SnapshotResponse {
	v := s.sim.View()
	return SnapshotResponse{
		Tick:        v.Tick,
		Running:     v.Running,
		State:       v.State,
		Environment: v.Environment,
		Ceiling:     lab.LifeCeiling(v.State),
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "run_id": s.sim.RunID()})
}

func (s *Server) handleSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.snapshot())
}

func (s *Server) handleSaveSnapshot(c *gin.Context) {
	path, err := s.sim.SaveSnapshot()
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"path": path})
}

func (s *Server) handleGetEnvironment(c *gin.Context) {
	c.JSON(http.StatusOK, s.sim.Environment())
}

func (s *Server) handlePatchEnvironment(c *gin.Context) {
	var patch lab.EnvironmentPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid environment patch: %v", err)})
		return
	}
	env := s.sim.SetEnvironment(patch)
	slog.Info("environment patched", "run_id", s.sim.RunID(), "source", "http")
	c.JSON(http.StatusOK, env)
}

func (s *Server) handleDiagnose(c *gin.Context) {
	c.JSON(http.StatusOK, s.sim.Diagnose())
}

func (s *Server) handleTimeline(c *gin.Context) {
	c.JSON(http.StatusOK, s.sim.Timeline())
}

func (s *Server) handleMilestones(c *gin.Context) {
	c.JSON(http.StatusOK, s.sim.Milestones())
}

func (s *Server) handleStart(c *gin.Context) {
	s.sim.Start()
	c.JSON(http.StatusOK, s.status())
}

func (s *Server) handlePause(c *gin.Context) {
	s.sim.Pause()
	c.JSON(http.StatusOK, s.status())
}

func (s *Server) handleReset(c *gin.Context) {
	s.sim.Reset()
	c.JSON(http.StatusOK, s.status())
}
