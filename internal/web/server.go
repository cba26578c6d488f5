// Package web provides the HTTP surface of the edit service: changeset
// lifecycle, diff upload, and read-only lookups. It owns routing, rate
// limiting, and translation of engine error kinds into HTTP responses; all
// edit semantics live in internal/core.
package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/atlasmelt/mapedit/internal/config"
	"github.com/atlasmelt/mapedit/internal/core"
	"github.com/atlasmelt/mapedit/internal/web/middleware"
)

// Server is the HTTP server for the edit API.
type Server struct {
	service *core.Service
	router  *chi.Mux
	server  *http.Server

	addr          string
	readTimeout   time.Duration
	idleTimeout   time.Duration
	maxBodySize   int64
	uploadTimeout time.Duration
}

// NewServer creates a Server around the engine service using the given
// configuration.
func NewServer(service *core.Service, cfg *config.Config) *Server {
	s := &Server{
		service:       service,
		router:        chi.NewRouter(),
		addr:          cfg.Server.Addr(),
		readTimeout:   cfg.Server.ReadTimeout,
		idleTimeout:   cfg.Server.IdleTimeout,
		maxBodySize:   cfg.Upload.MaxBodySize,
		uploadTimeout: cfg.Upload.Timeout,
	}
	s.setupMiddleware(cfg)
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware(cfg *config.Config) {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Timeout(cfg.Server.RequestTimeout))

	if cfg.Rate.Enabled {
		limiter := newRateLimiter(cfg.Rate.RequestsPerMinute, time.Minute)
		s.router.Use(limiter.middleware)
	}
}

func (s *Server) setupRoutes() {
	s.router.Route("/api/0.6", func(r chi.Router) {
		r.Put("/changeset/create", s.handleCreateChangeset)
		r.Get("/changeset/{id}", s.handleGetChangeset)
		r.Put("/changeset/{id}/close", s.handleCloseChangeset)
		r.Post("/changeset/{id}/upload", s.handleUpload)

		r.Get("/node/{id}", s.handleGetNode)
		r.Get("/way/{id}", s.handleGetWay)
		r.Get("/way/{id}/full", s.handleGetWayFull)
		r.Get("/map", s.handleMap)
	})

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// Start begins listening for HTTP requests. It blocks until the server
// stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     s.router,
		ReadTimeout: s.readTimeout,
		IdleTimeout: s.idleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server, letting in-flight uploads finish or
// roll back within the context's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// rateLimiter is a token bucket per client IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int
	window   time.Duration
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
	}
	go rl.cleanup()
	return rl
}

// cleanup removes stale visitor entries every minute.
func (rl *rateLimiter) cleanup() {
	for {
		time.Sleep(time.Minute)
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastReset) > rl.window*2 {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		rl.visitors[ip] = &visitor{tokens: rl.rate - 1, lastReset: time.Now()}
		return true
	}

	if time.Since(v.lastReset) > rl.window {
		v.tokens = rl.rate - 1
		v.lastReset = time.Now()
		return true
	}

	if v.tokens <= 0 {
		return false
	}
	v.tokens--
	return true
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// TrustedRealIP has already rewritten RemoteAddr for requests from
		// trusted proxies; headers from anyone else are not an identity.
		if !rl.allow(r.RemoteAddr) {
			w.Header().Set("Retry-After", "60")
			writeErrorBody(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
