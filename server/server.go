// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package server exposes address validation over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jcodagnone/addrcheck/cache"
	"github.com/jcodagnone/addrcheck/orchestrator"
)

// TokenHeader carries the API token.
const TokenHeader = "X-Token"

const shutdownGrace = 10 * time.Second

// Validator resolves a free-form address. *orchestrator.Orchestrator is the
// production implementation.
type Validator interface {
	Validate(ctx context.Context, freeForm string) (orchestrator.Result, error)
}

// Options configures a Server.
type Options struct {
	// Token is the shared secret expected in TokenHeader.
	Token string

	// AllowOrigin is returned as Access-Control-Allow-Origin when set.
	AllowOrigin string

	// RatePerMinute limits every route per client IP. Zero disables it.
	RatePerMinute int

	// RatePerSecond limits /validate-address per client IP. Zero disables it.
	RatePerSecond int

	Logger  *slog.Logger
	Metrics *Metrics
}

// Server is the HTTP front of the validation pipeline.
type Server struct {
	validator Validator
	cache     *cache.Cache
	token     string
	logger    *slog.Logger
	metrics   *Metrics
	limiters  []*limiterStore
	engine    *gin.Engine
}

// New wires the routes. Validation requests go through c before reaching v.
func New(v Validator, c *cache.Cache, opts Options) *Server {
	s := &Server{
		validator: v,
		cache:     c,
		token:     opts.Token,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger))

	if s.metrics != nil {
		r.Use(s.metrics.Middleware())
	}

	if opts.AllowOrigin != "" {
		r.Use(allowOrigin(opts.AllowOrigin))
	}

	r.GET("/healthz", s.healthz)

	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := r.Group("/")
	if opts.RatePerMinute > 0 {
		global := newLimiterStore(perMinute(opts.RatePerMinute), opts.RatePerMinute)
		s.limiters = append(s.limiters, global)
		api.Use(rateLimit(global))
	}

	api.Use(tokenAuth(s.token))

	validate := []gin.HandlerFunc{}
	if opts.RatePerSecond > 0 {
		burst := newLimiterStore(perSecond(opts.RatePerSecond), opts.RatePerSecond)
		s.limiters = append(s.limiters, burst)
		validate = append(validate, rateLimit(burst))
	}

	api.POST("/validate-address", append(validate, s.validateAddress)...)

	admin := api.Group("/admin")
	admin.GET("/cache", s.cacheStats)
	admin.DELETE("/cache", s.cacheClear)

	s.engine = r

	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens on addr until ctx is done, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	for _, l := range s.limiters {
		l.StartJanitor(ctx)
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("server listening", "addr", addr)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}

		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listening on %s: %w", addr, err)
		}

		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}

	return nil
}
