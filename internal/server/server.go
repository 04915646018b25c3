// Package server exposes stored sessions and the live step stream over
// HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"adaptrader/internal/store"
	"adaptrader/internal/telemetry"
)

const maxListLimit = 500

// SessionStore is the read side of store.Store.
type SessionStore interface {
	ListSessions(ctx context.Context, limit int) ([]store.SessionRecord, error)
	SessionSteps(ctx context.Context, id string) ([]telemetry.StepEvent, error)
}

type Server struct {
	addr   string
	store  SessionStore
	stream http.Handler
	log    *zap.Logger
	engine *gin.Engine
}

// New builds the routes. store and stream may be nil, in which case the
// matching endpoints answer 503.
func New(addr string, st SessionStore, stream http.Handler, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{addr: addr, store: st, stream: stream, log: log}

	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger())
	engine.GET("/healthz", s.health)
	api := engine.Group("/api")
	api.GET("/sessions", s.listSessions)
	api.GET("/sessions/:id/steps", s.sessionSteps)
	engine.GET("/ws", s.ws)
	s.engine = engine
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listSessions(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session store disabled"})
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxListLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = n
	}

	sessions, err := s.store.ListSessions(c.Request.Context(), limit)
	if err != nil {
		s.log.Warn("list sessions failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list sessions failed"})
		return
	}
	if sessions == nil {
		sessions = []store.SessionRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (s *Server) sessionSteps(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session store disabled"})
		return
	}
	id := c.Param("id")
	steps, err := s.store.SessionSteps(c.Request.Context(), id)
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	case err != nil:
		s.log.Warn("load steps failed", zap.String("session", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load steps failed"})
		return
	}
	if steps == nil {
		steps = []telemetry.StepEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "steps": steps})
}

func (s *Server) ws(c *gin.Context) {
	if s.stream == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live stream disabled"})
		return
	}
	s.stream.ServeHTTP(c.Writer, c.Request)
}
