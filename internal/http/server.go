// Package http serves a read-only JSON API over the thought graph and the
// memory store.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/codeloops/internal/graph"
	"github.com/fyrsmithlabs/codeloops/internal/jsonl"
	"github.com/fyrsmithlabs/codeloops/internal/memory"
	"github.com/fyrsmithlabs/codeloops/internal/sanitize"
)

// GraphReader is the graph access the API needs.
type GraphReader interface {
	ListProjects(ctx context.Context) ([]string, error)
	Export(ctx context.Context, opts graph.ExportOptions) ([]graph.Node, error)
	Resume(ctx context.Context, opts graph.ResumeOptions) ([]graph.Node, error)
	Stats(ctx context.Context, project string) (*graph.Stats, error)
	GetNode(ctx context.Context, id string) (*graph.Node, error)
	Watch(ctx context.Context) (<-chan jsonl.Event, error)
}

// MemoryReader is the memory access the API needs.
type MemoryReader interface {
	Query(ctx context.Context, f memory.Filter) ([]memory.Entry, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// RateLimit is the sustained requests per second allowed per client IP.
	// Zero disables limiting.
	RateLimit float64

	// ResumeLimit and ResumeDiffs are used when a resume request omits them.
	ResumeLimit int
	ResumeDiffs graph.DiffPolicy
}

// Server provides the HTTP endpoints.
type Server struct {
	echo   *echo.Echo
	graph  GraphReader
	memory MemoryReader
	logger *zap.Logger
	config *Config
}

// NewServer creates a new HTTP server.
func NewServer(g GraphReader, m MemoryReader, logger *zap.Logger, cfg *Config) (*Server, error) {
	if g == nil {
		return nil, fmt.Errorf("graph reader cannot be nil")
	}
	if m == nil {
		return nil, fmt.Errorf("memory reader cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "127.0.0.1", Port: 9393}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	if cfg.RateLimit > 0 {
		e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.RateLimit))))
	}

	s := &Server{
		echo:   e,
		graph:  g,
		memory: m,
		logger: logger,
		config: cfg,
	}
	s.registerRoutes()
	return s, nil
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/projects", s.handleProjects)
	v1.GET("/projects/:project/nodes", s.handleNodes)
	v1.GET("/projects/:project/resume", s.handleResume)
	v1.GET("/projects/:project/stats", s.handleStats)
	v1.GET("/nodes/:id", s.handleNode)
	v1.GET("/memories", s.handleMemories)
	v1.GET("/events", s.handleEvents)
}

// Handler exposes the router, mainly for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server and blocks until it stops. A clean shutdown
// returns nil.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleProjects(c echo.Context) error {
	projects, err := s.graph.ListProjects(c.Request().Context())
	if err != nil {
		return s.internalError(c, "listing projects", err)
	}
	if projects == nil {
		projects = []string{}
	}
	return c.JSON(http.StatusOK, ProjectsResponse{Projects: projects})
}

func (s *Server) handleNodes(c echo.Context) error {
	project, err := projectParam(c)
	if err != nil {
		return err
	}
	limit, err := intQuery(c, "limit")
	if err != nil {
		return err
	}
	opts := graph.ExportOptions{Project: project, Limit: limit}
	if role := graph.Role(c.QueryParam("role")); role != "" {
		if !role.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown role %q", role))
		}
		opts.Filter = func(n graph.Node) bool { return n.Role == role }
	}

	nodes, err := s.graph.Export(c.Request().Context(), opts)
	if err != nil {
		return s.internalError(c, "exporting nodes", err)
	}
	return c.JSON(http.StatusOK, NodesResponse{Project: project, Nodes: nonNil(nodes)})
}

func (s *Server) handleResume(c echo.Context) error {
	project, err := projectParam(c)
	if err != nil {
		return err
	}
	limit, err := intQuery(c, "limit")
	if err != nil {
		return err
	}
	if limit == 0 {
		limit = s.config.ResumeLimit
	}
	policy := s.config.ResumeDiffs
	if raw := c.QueryParam("diffs"); raw != "" {
		if policy, err = graph.ParseDiffPolicy(raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	nodes, err := s.graph.Resume(c.Request().Context(), graph.ResumeOptions{
		Project:      project,
		Limit:        limit,
		IncludeDiffs: policy,
	})
	if err != nil {
		return s.internalError(c, "resuming project", err)
	}
	return c.JSON(http.StatusOK, NodesResponse{Project: project, Nodes: nonNil(nodes)})
}

func (s *Server) handleStats(c echo.Context) error {
	project, err := projectParam(c)
	if err != nil {
		return err
	}
	stats, err := s.graph.Stats(c.Request().Context(), project)
	if err != nil {
		return s.internalError(c, "computing stats", err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleNode(c echo.Context) error {
	id := c.Param("id")
	node, err := s.graph.GetNode(c.Request().Context(), id)
	if err != nil {
		return s.internalError(c, "reading node", err)
	}
	if node == nil {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("node %q not found", id))
	}
	return c.JSON(http.StatusOK, node)
}

func (s *Server) handleMemories(c echo.Context) error {
	limit, err := intQuery(c, "limit")
	if err != nil {
		return err
	}
	f := memory.Filter{
		Project:   c.QueryParam("project"),
		SessionID: c.QueryParam("session"),
		Query:     c.QueryParam("q"),
		Role:      c.QueryParam("role"),
		Limit:     limit,
	}
	if tags := c.QueryParam("tags"); tags != "" {
		for _, tag := range strings.Split(tags, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				f.Tags = append(f.Tags, tag)
			}
		}
	}

	entries, err := s.memory.Query(c.Request().Context(), f)
	if err != nil {
		return s.internalError(c, "querying memories", err)
	}
	if entries == nil {
		entries = []memory.Entry{}
	}
	return c.JSON(http.StatusOK, MemoriesResponse{Entries: entries})
}

func (s *Server) internalError(c echo.Context, what string, err error) error {
	s.logger.Error("request failed",
		zap.String("operation", what),
		zap.String("uri", c.Request().RequestURI),
		zap.Error(err),
	)
	return echo.NewHTTPError(http.StatusInternalServerError, what+" failed")
}

func projectParam(c echo.Context) (string, error) {
	project := c.Param("project")
	if err := sanitize.ValidateProject(project); err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return project, nil
}

func intQuery(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("%s must be a non-negative integer", name))
	}
	return n, nil
}

func nonNil(nodes []graph.Node) []graph.Node {
	if nodes == nil {
		return []graph.Node{}
	}
	return nodes
}
