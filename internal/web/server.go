// Package web serves a small read-only status API for the running daemon.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/example/octiv-sniper/internal/domain/booking"
	"github.com/example/octiv-sniper/internal/schedule"
	"github.com/example/octiv-sniper/internal/scheduler"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type StatusSource interface {
	Status() []scheduler.SlotStatus
}

type AuthSource interface {
	State() booking.AuthState
}

type Server struct {
	Schedule StatusSource
	Auth     AuthSource
	Log      zerolog.Logger
	Now      func() time.Time
}

type slotView struct {
	scheduler.SlotStatus
	In string `json:"in"`
}

func (s *Server) Routes() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok\n")
	})
	r.GET("/api/schedule", s.handleSchedule)
	r.GET("/api/auth", s.handleAuth)
	return r
}

func (s *Server) handleSchedule(c *gin.Context) {
	now := s.now()
	st := s.Schedule.Status()
	out := make([]slotView, 0, len(st))
	for _, v := range st {
		out = append(out, slotView{SlotStatus: v, In: schedule.FormatUntil(v.AttemptAt.Sub(now))})
	}
	c.JSON(http.StatusOK, gin.H{"now": now, "slots": out})
}

// handleAuth never exposes token material.
func (s *Server) handleAuth(c *gin.Context) {
	a := s.Auth.State()
	resp := gin.H{
		"loggedIn":   a.LoggedIn(),
		"email":      a.Email,
		"userId":     a.UserID,
		"tenantId":   a.TenantID,
		"locationId": a.LocationID,
		"canRefresh": a.RefreshToken != "",
	}
	if !a.ExpiresAt.IsZero() {
		resp["expiresAt"] = a.ExpiresAt
		resp["expiresIn"] = schedule.FormatUntil(a.ExpiresAt.Sub(s.now()))
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Log.Debug().Str("method", c.Request.Method).Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).Dur("took", time.Since(start)).Msg("http")
	}
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Start serves h on addr until ctx is cancelled.
func Start(ctx context.Context, addr string, h http.Handler, log zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info().Str("addr", addr).Msg("status server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
