// Package server exposes the index over the RubyGems HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/git-pkgs/gemindex/internal/logger"
	"github.com/git-pkgs/gemindex/internal/service"
)

// BreakerStates reports upstream circuit breaker states by host.
type BreakerStates interface {
	GetBreakerState() map[string]string
}

type RouterConfig struct {
	Service        *service.Service
	Log            *logger.Logger
	MaxUploadBytes int64
	Breakers       BreakerStates // optional
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Log
	if log == nil {
		log = logger.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(AttachRequestID())
	r.Use(RequestLogger(log))

	h := NewIndexHandler(cfg.Service, log, cfg.MaxUploadBytes)
	r.GET("/healthcheck", NewHealthHandler(cfg.Service, cfg.Breakers).HealthCheck)

	api := r.Group("/api/v1")
	{
		api.POST("/gems", h.Push)
		api.DELETE("/gems/yank", h.Yank)
	}

	// Compact index
	r.GET("/versions", h.Versions)
	r.GET("/info/:name", h.Info)
	r.GET("/names", h.Names)

	// Legacy index
	r.GET("/specs.4.8.gz", h.Specs(""))
	r.GET("/latest_specs.4.8.gz", h.Specs("latest"))
	r.GET("/prerelease_specs.4.8.gz", h.Specs("prerelease"))
	r.GET("/quick/Marshal.4.8/:file", h.QuickSpec)
	r.GET("/gems/:file", h.Gem)

	// Test control
	r.POST("/set_time", h.SetTime)
	r.POST("/rebuild_versions_list", h.Rebuild)

	return r
}

type Server struct {
	Engine *gin.Engine
	http   *http.Server
}

func NewServer(cfg RouterConfig) *Server {
	return &Server{Engine: NewRouter(cfg)}
}

// Run serves on address until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, address string) error {
	s.http = &http.Server{
		Addr:              address,
		Handler:           s.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}
