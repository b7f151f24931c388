// Package server exposes the race-engineer HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/pitwall/pitwall/config"
	"github.com/ZanzyTHEbar/pitwall/pitwall/enrichment"
	"github.com/ZanzyTHEbar/pitwall/pitwall/generation/harness"
	"github.com/ZanzyTHEbar/pitwall/pitwall/live"
	"github.com/ZanzyTHEbar/pitwall/pitwall/upstream"
)

const shutdownTimeout = 5 * time.Second

// Orchestrator runs one chat request.
type Orchestrator interface {
	Start(ctx context.Context, req *harness.Request) (*harness.Stream, error)
}

// SeasonSource serves schedules, standings and entry lists.
type SeasonSource interface {
	Schedule(ctx context.Context, season int) ([]upstream.Event, error)
	DriverStandings(ctx context.Context, season, round int) ([]upstream.DriverStanding, error)
	ConstructorStandings(ctx context.Context, season, round int) ([]upstream.ConstructorStanding, error)
	Drivers(ctx context.Context, season int) ([]upstream.Driver, error)
	Constructors(ctx context.Context, season int) ([]upstream.Constructor, error)
}

// Deps are the components the handlers call into.
type Deps struct {
	Orchestrator Orchestrator
	Policy       *harness.Policy
	Season       SeasonSource
	Cache        *enrichment.Cache
	LoadTimeout  time.Duration
	Live         *live.Gateway
}

// Server is the HTTP API.
type Server struct {
	deps    Deps
	cfg     config.ServerConfig
	logger  zerolog.Logger
	now     func() time.Time
	handler http.Handler
}

// New builds the server and its routes.
func New(deps Deps, cfg config.ServerConfig, logger zerolog.Logger) *Server {
	if deps.Policy == nil {
		deps.Policy = harness.DefaultPolicy()
	}
	s := &Server{
		deps:   deps,
		cfg:    cfg,
		logger: logger.With().Str("component", "http").Logger(),
		now:    time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/resource/{season}/{round}", s.handleResource)
	mux.HandleFunc("GET /api/race/{season}/{round}", s.handleResource)
	mux.HandleFunc("GET /api/schedule/{season}", s.handleSchedule)
	mux.HandleFunc("GET /api/standings/drivers/{season}", s.handleDriverStandings)
	mux.HandleFunc("GET /api/standings/constructors/{season}", s.handleConstructorStandings)
	mux.HandleFunc("GET /api/compare/{season}/{driver1}/{driver2}", s.handleCompare)
	mux.HandleFunc("GET /api/live/{season}/{round}", s.handleLive)
	mux.HandleFunc("GET /api/health", s.handleHealth)

	s.handler = s.recoverer(s.requestLog(cors(cfg.AllowedOrigins, mux)))
	return s
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info().Str("addr", srv.Addr).Msg("listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
