// Package server exposes the node admin API over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/danmuck/lnpnet/internal/auth"
	"github.com/danmuck/lnpnet/internal/observability"
	"github.com/danmuck/lnpnet/internal/protocol/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const Version = "0.1.0"

// Admin serves /health, /metrics and the live session table of one node.
type Admin struct {
	NodeID  string
	Started time.Time

	tracker *session.Tracker
	router  *gin.Engine
	auth    auth.Validator
	cors    []string
}

type Option func(*Admin)

// WithCORS allows browsers on origins to call the API.
func WithCORS(origins []string) Option {
	return func(a *Admin) { a.cors = origins }
}

// WithAuth requires a bearer token accepted by v on the session routes.
func WithAuth(v auth.Validator) Option {
	return func(a *Admin) { a.auth = v }
}

func New(nodeID string, tracker *session.Tracker, opts ...Option) *Admin {
	observability.RegisterMetrics()
	if tracker == nil {
		tracker = session.NewTracker()
	}
	a := &Admin{
		NodeID:  nodeID,
		Started: time.Now(),
		tracker: tracker,
	}
	for _, opt := range opts {
		opt(a)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(nodeID))
	if len(a.cors) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: a.cors,
			AllowMethods: []string{"GET"},
			AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
			MaxAge:       12 * time.Hour,
		}))
	}
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})
	a.router = r
	a.registerRoutes()
	return a
}

// requireToken rejects requests without a valid bearer token.
func requireToken(v auth.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := auth.Check(v, c.GetHeader("Authorization")); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}

func (a *Admin) Handler() http.Handler { return a.router }

// Serve runs the admin API on ln until ctx is done.
func (a *Admin) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()

	log.Info().Str("addr", ln.Addr().String()).Msg("admin api listening")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe binds addr and serves until ctx is done.
func (a *Admin) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return a.Serve(ctx, ln)
}
