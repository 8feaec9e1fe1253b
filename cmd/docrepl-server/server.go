// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/buke/docrepl"
	"github.com/buke/docrepl/artifact"
	"github.com/buke/docrepl/document"
	"github.com/buke/docrepl/internal/config"
	"github.com/buke/docrepl/internal/engine"
	"github.com/buke/docrepl/metrics"
	"github.com/buke/docrepl/render"
)

// Default container of page previews, in CSS pixels.
const (
	defaultPreviewWidth  = 800
	defaultPreviewHeight = 1100
	maxPreviewPixels     = 4096
)

// Server exposes a worker pool over WebSocket and the blob registry over
// HTTP.
type Server struct {
	cfg        *config.Config
	router     *gin.Engine
	pool       *docrepl.Pool
	store      *artifact.Store
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	rasterizer render.Rasterizer
	upgrader   websocket.Upgrader
	logger     *zap.Logger
}

// NewServer wires the pool, the routes and their middleware.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	factory, err := engine.Factory(cfg.Runtime.Engine, cfg.Runtime.MaxCallStack)
	if err != nil {
		return nil, err
	}
	versions, loaders := docrepl.DefaultLoaders()
	versions, err = preferVersion(versions, cfg.Runtime.DefaultVersion)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.NewMetrics(reg)
	store := artifact.NewStore(cfg.Runtime.StoreCapacity)

	pool, err := docrepl.NewPool(
		docrepl.WithJsEngine(factory),
		docrepl.WithLoaders(versions, loaders),
		docrepl.WithStore(store),
		docrepl.WithDefaultTimeout(cfg.Runtime.Timeout),
		docrepl.WithLogger(logger),
		docrepl.WithMetrics(m),
		docrepl.WithMaxWorkers(cfg.Pool.MaxWorkers),
		docrepl.WithWorkerTTL(cfg.Pool.IdleTTL),
	)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:        cfg,
		pool:       pool,
		store:      store,
		registry:   reg,
		metrics:    m,
		rasterizer: render.NewVectorRasterizer(document.NewFonts()),
		logger:     logger,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	s.router = s.routes()

	logger.Info("Server initialized",
		zap.String("engine", cfg.Runtime.Engine),
		zap.String("defaultVersion", versions[0]),
		zap.Uint32("maxWorkers", cfg.Pool.MaxWorkers))
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	if !s.cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(s.logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Accept", "Content-Type", "Cache-Control"},
		AllowCredentials: !slices.Contains(s.cfg.Server.AllowedOrigins, "*"),
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", s.health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	api := router.Group("/")
	if s.cfg.RateLimit.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Int("rps", s.cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", s.cfg.RateLimit.Burst))
		api.Use(rateLimit(s.cfg.RateLimit))
	}
	api.GET("/ws", s.serveWS)
	api.GET("/versions", s.versions)
	api.GET("/blob/:id", s.blob)
	api.GET("/blob/:id/pages/:page", s.page)
	return router
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close retires every worker.
func (s *Server) Close() error {
	s.logger.Info("Shutting down worker pool", zap.Int("workers", s.pool.Len()))
	return s.pool.Close()
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.Server.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// frameLimiter returns the limiter of one connection, or nil.
func (s *Server) frameLimiter() *rate.Limiter {
	if !s.cfg.RateLimit.Enabled {
		return nil
	}
	return rate.NewLimiter(rate.Limit(s.cfg.RateLimit.RequestsPerSecond), s.cfg.RateLimit.Burst)
}

func (s *Server) serveWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	port := newWSPort(conn, s.frameLimiter())

	err = s.pool.Attach(c.Request.Context(), port)
	switch {
	case errors.Is(err, docrepl.ErrPoolFull):
		s.logger.Warn("Rejecting connection", zap.String("remote", c.ClientIP()), zap.Error(err))
		port.closeWith(websocket.CloseTryAgainLater, err.Error())
	case errors.Is(err, docrepl.ErrClosed):
		port.closeWith(websocket.CloseServiceRestart, "server shutting down")
	case err != nil && !errors.Is(err, context.Canceled):
		s.logger.Warn("Worker stopped", zap.String("remote", c.ClientIP()), zap.Error(err))
		port.closeWith(websocket.CloseInternalServerErr, "worker stopped")
	default:
		port.Close()
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"workers": s.pool.Len(),
		"blobs":   s.store.Len(),
	})
}

func (s *Server) versions(c *gin.Context) {
	versions := s.pool.Versions()
	c.JSON(http.StatusOK, gin.H{
		"versions": versions,
		"default":  versions[0],
	})
}

func (s *Server) blob(c *gin.Context) {
	blob, err := s.store.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Header("Cache-Control", "private, max-age=3600")
	c.Data(http.StatusOK, blob.ContentType, blob.Data)
}

// page renders one page of a stored document to PNG, fitted to the
// container given by the width, height and dpr query parameters.
func (s *Server) page(c *gin.Context) {
	number, err := strconv.Atoi(c.Param("page"))
	if err != nil || number < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page must be a positive integer"})
		return
	}
	container, dpr, err := previewParams(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	task := render.LoadDocument(ctx, s.store, c.Param("id"))
	defer task.Destroy()
	doc, err := task.Wait(ctx)
	switch {
	case errors.Is(err, artifact.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, document.ErrInvalidArtifact):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if number > doc.NumPages() {
		c.JSON(http.StatusNotFound, gin.H{"error": "page " + strconv.Itoa(number) + " out of range"})
		return
	}

	pipeline := render.NewPipeline(
		render.WithRasterizer(s.rasterizer),
		render.WithPipelineLogger(s.logger),
		render.WithPipelineMetrics(s.metrics),
	)
	if err := pipeline.Start(ctx, doc, number, container, dpr).Wait(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	var buf bytes.Buffer
	if err := pipeline.EncodePNG(&buf); err != nil {
		// The client went away while rendering.
		if errors.Is(err, render.ErrNothingRendered) && ctx.Err() != nil {
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func previewParams(c *gin.Context) (render.Size, float64, error) {
	width, err := queryFloat(c, "width", defaultPreviewWidth)
	if err != nil {
		return render.Size{}, 0, err
	}
	height, err := queryFloat(c, "height", defaultPreviewHeight)
	if err != nil {
		return render.Size{}, 0, err
	}
	dpr, err := queryFloat(c, "dpr", 1)
	if err != nil {
		return render.Size{}, 0, err
	}
	dpr = render.NormalizeDPR(dpr)
	if width <= 0 || height <= 0 || width*dpr > maxPreviewPixels || height*dpr > maxPreviewPixels {
		return render.Size{}, 0, errors.New("preview size out of range")
	}
	return render.Size{Width: width, Height: height}, dpr, nil
}

func queryFloat(c *gin.Context, name string, def float64) (float64, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.New("invalid " + name + " parameter")
	}
	return v, nil
}

// rateLimit creates a per-IP rate limiting middleware.
func rateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	var (
		mu      sync.Mutex
		clients = make(map[string]*rate.Limiter)
	)
	return func(c *gin.Context) {
		ip := c.ClientIP()
		mu.Lock()
		limiter, ok := clients[ip]
		if !ok {
			limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
			clients[ip] = limiter
		}
		mu.Unlock()

		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// requestLogger logs one line per request.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("remote", c.ClientIP()))
	}
}
