// Package server exposes the party over HTTP: the /ws game socket, the REST
// API the admin and results pages use, pictures, metrics and docs.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	"github.com/playperu/promptparty/internal/game"
	"github.com/playperu/promptparty/internal/handler/health"
)

// Deps are the collaborators the handlers need.
type Deps struct {
	Store    Store
	Hub      Hub
	Recorder game.Recorder
	Checks   map[string]health.Checker

	// Pictures holds generated images, served under /pictures/.
	Pictures afero.Fs
	// Static is the front-end bundle. Nil disables the fallback.
	Static afero.Fs

	// PublicURL is encoded in the join QR code. Empty derives it from the
	// request.
	PublicURL string
	WSRate    rate.Limit
	WSBurst   int
}

type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

func New(addr string, logger *slog.Logger, deps Deps) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           newRouter(logger, deps),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

func newRouter(logger *slog.Logger, deps Deps) chi.Router {
	if deps.Pictures == nil {
		deps.Pictures = afero.NewMemMapFs()
	}
	if deps.WSRate == 0 {
		deps.WSRate = rate.Inf
	}
	if deps.WSBurst == 0 {
		deps.WSBurst = 1
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(newStructuredLogger(logger))
	r.Use(middleware.Recoverer)

	addRoutes(r, logger, deps)
	return r
}

func (s *Server) Run(_ context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.srv.Addr, err)
	}

	err = s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
