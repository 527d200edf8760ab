// Package server exposes the shell cache as an HTTP edge proxy in front of
// the storefront origin.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/Sternrassler/shellcache/pkg/metrics"
	"github.com/Sternrassler/shellcache/pkg/worker"
)

// AdminPrefix is the reserved path prefix of the proxy's own endpoints.
const AdminPrefix = "/_shellcache"

// Pinger reports whether a backing service is reachable.
type Pinger func(ctx context.Context) error

// Options configures a Server.
type Options struct {
	Registration *worker.Registration

	// Worker is the policy registered by POST /_shellcache/update.
	Worker worker.Config

	// Ping checks the cache store. Nil means always reachable.
	Ping Pinger

	// AdminToken guards status and update as a bearer token. Empty
	// disables both endpoints.
	AdminToken string

	Logger zerolog.Logger
}

// Server routes operational endpoints and hands everything else to the
// registration.
type Server struct {
	Router *chi.Mux

	reg        *worker.Registration
	cfg        worker.Config
	ping       Pinger
	adminToken string
	logger     zerolog.Logger
}

type updateRequest struct {
	Version string `json:"version"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// New builds the router.
func New(opts Options) *Server {
	r := chi.NewRouter()
	s := &Server{
		Router:     r,
		reg:        opts.Registration,
		cfg:        opts.Worker,
		ping:       opts.Ping,
		adminToken: opts.AdminToken,
		logger:     opts.Logger,
	}

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(hlog.NewHandler(opts.Logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("req_id", chimw.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("dest", r.Header.Get(worker.HeaderFetchDest)).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(chimw.Recoverer)

	// Every path outside AdminPrefix belongs to the origin.
	r.Route(AdminPrefix, func(r chi.Router) {
		r.Get("/health", s.health)
		r.Get("/ready", s.ready)
		r.Method(http.MethodGet, "/metrics", metrics.Handler())

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/status", s.status)
			r.Post("/update", s.update)
		})
	})

	r.Handle("/*", s.reg)
	return s
}

// requireAdmin rejects requests without the configured bearer token.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" {
			writeJSON(w, r, http.StatusForbidden, errorResponse{Error: "admin API disabled"})
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			hlog.FromRequest(r).Warn().Str("path", r.URL.Path).Msg("Rejected admin request")
			w.Header().Set("WWW-Authenticate", `Bearer realm="shellcache"`)
			writeJSON(w, r, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if _, err := w.Write([]byte("ok")); err != nil {
		hlog.FromRequest(r).Debug().Err(err).Msg("Error writing health response")
	}
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		if err := s.ping(r.Context()); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Msg("Cache store unreachable")
			writeJSON(w, r, http.StatusServiceUnavailable, errorResponse{Error: "cache store unreachable"})
			return
		}
	}
	if s.reg.Active() == nil {
		writeJSON(w, r, http.StatusServiceUnavailable, errorResponse{Error: "no active cache version"})
		return
	}
	if _, err := w.Write([]byte("ready")); err != nil {
		hlog.FromRequest(r).Debug().Err(err).Msg("Error writing ready response")
	}
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	st, err := s.reg.Status(r.Context())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Status failed")
		writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, r, http.StatusOK, st)
}

// update registers the configured policy again, optionally under a new
// version taken from the JSON body.
func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	cfg := s.cfg

	var body updateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if body.Version != "" {
		cfg.Version = body.Version
	}

	if _, err := s.reg.Register(r.Context(), cfg); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, worker.ErrInstallFailed) {
			status = http.StatusBadGateway
		}
		hlog.FromRequest(r).Error().Err(err).Str("version", cfg.Version).Msg("Update failed")
		writeJSON(w, r, status, errorResponse{Error: err.Error()})
		return
	}

	s.status(w, r)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Debug().Err(err).Int("status", status).Msg("Error writing JSON response")
	}
}
