// Package server exposes the filesystem tree and sync queue over HTTP for
// the UI layer.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/cirrusfs/cirrus/internal/config"
	"github.com/cirrusfs/cirrus/internal/logging"
	syncq "github.com/cirrusfs/cirrus/internal/sync"
	"github.com/cirrusfs/cirrus/internal/vfs"
	"github.com/cirrusfs/cirrus/internal/ws"
)

// Server wires the HTTP API, the event stream, and the metrics endpoint.
type Server struct {
	tree     *vfs.Tree
	queue    *syncq.Queue
	log      *logging.Logger
	registry *prometheus.Registry
	engine   *gin.Engine
	http     *http.Server
}

// Options configures a Server. Queue may be nil when running without a
// remote store; the sync endpoints then report accordingly.
type Options struct {
	Tree      *vfs.Tree
	Queue     *syncq.Queue
	Logger    *logging.Logger
	Registry  *prometheus.Registry
	RateLimit config.RateLimitConfig
}

// New creates a server around the tree and queue.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
		opts.Registry.MustRegister(collectors.NewGoCollector())
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.Default())
	if opts.RateLimit.Enabled {
		engine.Use(rateLimit(opts.RateLimit))
	}

	s := &Server{
		tree:     opts.Tree,
		queue:    opts.Queue,
		log:      opts.Logger,
		registry: opts.Registry,
		engine:   engine,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	fs := s.engine.Group("/fs")
	{
		fs.GET("/nodes", s.handleGetNode)
		fs.GET("/list", s.handleList)
		fs.GET("/search", s.handleSearch)
		fs.GET("/file", s.handleReadFile)
		fs.PUT("/file", s.handleWriteFile)
		fs.POST("/dirs", s.handleCreateDir)
		fs.POST("/rename", s.handleRename)
		fs.DELETE("/nodes", s.handleDelete)
	}

	sy := s.engine.Group("/sync")
	{
		sy.GET("/status", s.handleSyncStatus)
		sy.POST("/flush", s.handleFlush)
		sy.POST("/retry", s.handleRetry)
	}

	wsHandler := ws.NewHandler(s.tree, s.log.Named("ws"))
	s.engine.GET("/ws", wsHandler.HandleConnection)
}

// Registry returns the Prometheus registry so collaborators can register
// their collectors before Run.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Handler exposes the routed engine, mainly for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until Shutdown is called.
func (s *Server) Run(addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.engine}
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains connections gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// rateLimit is a per-client-IP token bucket.
func rateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	type client struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}

	var (
		mu      sync.Mutex
		clients = make(map[string]*client)
	)

	return func(c *gin.Context) {
		ip := c.ClientIP()

		mu.Lock()
		cl, ok := clients[ip]
		if !ok {
			cl = &client{limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)}
			clients[ip] = cl
		}
		cl.lastSeen = time.Now()
		limiter := cl.limiter
		mu.Unlock()

		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}
