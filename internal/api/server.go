// Package api exposes the engine's commands and queries over HTTP. Routes
// map one-to-one onto the service layer; handlers only decode, delegate,
// and encode.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/coldpost/coldpost/internal/auth"
	"github.com/coldpost/coldpost/internal/config"
	"github.com/coldpost/coldpost/internal/pkg/logger"
	"github.com/coldpost/coldpost/internal/service/account"
	"github.com/coldpost/coldpost/internal/service/campaign"
	"github.com/coldpost/coldpost/internal/service/template"
	"github.com/coldpost/coldpost/internal/service/user"
	"github.com/coldpost/coldpost/internal/smtppool"
)

// Deps bundles everything the handlers call into.
type Deps struct {
	Users     *user.Service
	Accounts  *account.Service
	Templates *template.Service
	Campaigns *campaign.Service
	Pool      *smtppool.Pool
	Tokens    *auth.Tokens
}

// Server is the HTTP front door.
type Server struct {
	cfg    config.ServerConfig
	deps   Deps
	router *chi.Mux
	http   *http.Server
	log    *logger.Logger
}

// NewServer wires the router and handlers.
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		log:  logger.Component("api"),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens until the context is cancelled, then drains connections.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.GetHost(), s.cfg.Port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}
