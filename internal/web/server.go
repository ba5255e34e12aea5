// Package web serves the import automation API: progress, per-sheet
// status, and triggers for single-sheet, next-sheet and batch runs.
package web

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/pricesheet/internal/config"
	"github.com/JonMunkholm/pricesheet/internal/importer"
	"github.com/JonMunkholm/pricesheet/internal/metrics"
	"github.com/JonMunkholm/pricesheet/internal/web/middleware"
)

// Server is the HTTP server of the importer.
type Server struct {
	orch    *importer.Orchestrator
	metrics *metrics.Collectors
	router  *chi.Mux
	server  *http.Server
	cfg     config.ServerConfig

	// running guards batch and next runs; one at a time per process.
	running sync.Mutex
}

// NewServer returns a server over orch. m may be nil.
func NewServer(orch *importer.Orchestrator, m *metrics.Collectors, srv config.ServerConfig, sec config.SecurityConfig) *Server {
	s := &Server{
		orch:    orch,
		metrics: m,
		router:  chi.NewRouter(),
		cfg:     srv,
	}
	s.setupMiddleware(sec)
	s.setupRoutes(sec)
	return s
}

func (s *Server) setupMiddleware(sec config.SecurityConfig) {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(sec.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(securityHeaders)

	if sec.RateLimit > 0 {
		limiter := newRateLimiter(sec.RateLimit, time.Minute)
		s.router.Use(limiter.middleware)
	}
}

func (s *Server) setupRoutes(sec config.SecurityConfig) {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(sec.APIKeys, sec.RequireAPIKey))

		r.Get("/progress", s.handleProgress)
		r.Get("/sheets", s.handleListSheets)
		r.Get("/sheets/{sheetID}", s.handleSheet)
		r.Get("/sheets/{sheetID}/preview", s.handlePreview)
		r.Post("/sheets/{sheetID}/import", s.handleImportSheet)
		r.Delete("/sheets/{sheetID}/ledger", s.handleForget)

		r.Post("/next", s.handleNext)
		r.Post("/batch", s.handleBatch)
	})
}

// Start listens until Shutdown.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	slog.Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the router for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// rateLimiter is a fixed-window limiter per client address.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int
	window   time.Duration
	now      func() time.Time
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
		now:      time.Now,
	}
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	v, ok := rl.visitors[ip]
	if !ok || now.Sub(v.lastReset) > rl.window {
		rl.visitors[ip] = &visitor{tokens: rl.rate - 1, lastReset: now}
		return true
	}
	if v.tokens <= 0 {
		return false
	}
	v.tokens--
	return true
}

// sweep drops visitors idle for two windows. Callers hold mu.
func (rl *rateLimiter) sweep(now time.Time) {
	if len(rl.visitors) < 1024 {
		return
	}
	for ip, v := range rl.visitors {
		if now.Sub(v.lastReset) > 2*rl.window {
			delete(rl.visitors, ip)
		}
	}
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientIP(r.RemoteAddr)) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded", "RATE001")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(remote string) string {
	if host, _, err := net.SplitHostPort(remote); err == nil {
		return host
	}
	return remote
}
