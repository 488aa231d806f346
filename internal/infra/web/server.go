package web

import (
	"context"
	"net/http"
	"time"

	"media-analysis-pipeline/internal/infra/logging"
	"media-analysis-pipeline/internal/infra/redis"
	"media-analysis-pipeline/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RateLimiter bounds enqueue calls per user. The Redis implementation is used
// in production; dev mode runs with AllowAll.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// AllowAll is the dev-mode limiter.
type AllowAll struct{}

func (AllowAll) Allow(context.Context, string, int, time.Duration) (bool, error) { return true, nil }

type RateLimitSettings struct {
	Requests int
	Window   time.Duration
}

type Server struct {
	pipeline usecase.PipelineUseCase
	auth     *AuthManager
	limiter  RateLimiter
	limits   RateLimitSettings
	log      *zerolog.Logger
}

func NewServer(
	pipeline usecase.PipelineUseCase,
	auth *AuthManager,
	limiter RateLimiter,
	limits RateLimitSettings,
	logger *zerolog.Logger,
) *Server {
	if limiter == nil {
		limiter = AllowAll{}
	}
	return &Server{
		pipeline: pipeline,
		auth:     auth,
		limiter:  limiter,
		limits:   limits,
		log:      logger,
	}
}

// Router builds the full route tree. Health and metrics are unauthenticated;
// everything under /api/v1 requires a bearer token.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/stats", s.statsHandler)
		r.Route("/jobs/{type}", func(r chi.Router) {
			r.With(s.rateLimitMiddleware).Post("/", s.enqueueHandler)
			r.Get("/{id}", s.statusHandler)
		})
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.With(r.Context(), s.log).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// authMiddleware validates the bearer token and stashes the caller's user ID
// in the request context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.auth.ParseFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := withCallerID(r.Context(), claims.Subject)
		ctx = logging.WithUserID(ctx, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := CallerID(r.Context())
		ok, err := s.limiter.Allow(r.Context(), redis.EnqueueKey(userID), s.limits.Requests, s.limits.Window)
		if err != nil {
			// A limiter outage should not take the producer API down.
			s.log.Warn().Err(err).Msg("rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
