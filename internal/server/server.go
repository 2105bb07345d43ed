// Package server exposes candidate scoring over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/signalnine/stratgate/internal/loader"
	"github.com/signalnine/stratgate/internal/result"
	"github.com/signalnine/stratgate/internal/runner"
	"github.com/signalnine/stratgate/internal/store"
)

// Reports is the subset of the store the server needs.
type Reports interface {
	SaveReport(ctx context.Context, r *result.Report) error
	LatestByHash(ctx context.Context, hash string) (*result.Report, error)
	History(ctx context.Context, candidate string, limit int) ([]store.Summary, error)
}

type Options struct {
	RatePerSec   float64
	Burst        int
	MaxBodyBytes int64
}

type Server struct {
	router  *chi.Mux
	eval    runner.EvalOpts
	opts    Options
	reports Reports
	limiter *rate.Limiter
	log     zerolog.Logger
}

// New builds the router. reports may be nil, in which case nothing is
// persisted and report lookups return 404.
func New(eval runner.EvalOpts, opts Options, reports Reports) *Server {
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 256 << 10
	}
	limit := rate.Inf
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
	}
	s := &Server{
		router:  chi.NewRouter(),
		eval:    eval,
		opts:    opts,
		reports: reports,
		limiter: rate.NewLimiter(limit, opts.Burst),
		log:     eval.Log,
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.requestLog)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", s.eval.Metrics.Handler())
	s.router.Route("/v1", func(r chi.Router) {
		r.With(s.rateLimit).Post("/score", s.handleScore)
		r.Get("/reports/{hash}", s.handleReport)
		r.Get("/candidates/{name}/history", s.handleHistory)
	})
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "candidate too large", "")
			return
		}
		writeError(w, http.StatusBadRequest, "reading body: "+err.Error(), "")
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty candidate", "")
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "upload"
	}

	src, err := loader.NewInlineSource(name, body)
	if err != nil {
		s.observeLoadFailure(err)
		s.writeLoadError(w, err)
		return
	}
	opts := s.eval
	opts.Group = r.URL.Query().Get("group")
	rep, err := runner.Evaluate(r.Context(), src, opts)
	if err != nil {
		s.writeLoadError(w, err)
		return
	}
	if s.reports != nil {
		if err := s.reports.SaveReport(r.Context(), rep); err != nil {
			s.log.Error().Err(err).Str("candidate", rep.Candidate).Msg("persisting report")
		}
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		writeError(w, http.StatusNotFound, "no report store configured", "")
		return
	}
	rep, err := s.reports.LatestByHash(r.Context(), chi.URLParam(r, "hash"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error(), "")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("loading report")
		writeError(w, http.StatusInternalServerError, "loading report failed", "")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		writeError(w, http.StatusNotFound, "no report store configured", "")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer", "")
			return
		}
		limit = n
	}
	rows, err := s.reports.History(r.Context(), chi.URLParam(r, "name"), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("loading history")
		writeError(w, http.StatusInternalServerError, "loading history failed", "")
		return
	}
	if rows == nil {
		rows = []store.Summary{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) writeLoadError(w http.ResponseWriter, err error) {
	var le *loader.LoadError
	if errors.As(err, &le) {
		writeError(w, http.StatusUnprocessableEntity, le.Error(), string(le.Reason))
		return
	}
	s.log.Error().Err(err).Msg("scoring candidate")
	writeError(w, http.StatusInternalServerError, "scoring failed", "")
}

// observeLoadFailure counts rejections that happen before Evaluate, which
// records its own.
func (s *Server) observeLoadFailure(err error) {
	var le *loader.LoadError
	if errors.As(err, &le) {
		s.eval.Metrics.ObserveLoadFailure(string(le.Reason))
	}
}

type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg, reason string) {
	writeJSON(w, status, errorBody{Error: msg, Reason: reason})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ListenAndServe runs the server until ctx ends, then shuts it down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info().Str("addr", addr).Msg("serving")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
