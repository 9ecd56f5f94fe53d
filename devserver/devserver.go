// Package devserver is an in-memory implementation of the mealdraw backend
// API, used for local development and as a test double. It can add latency
// and fail requests on demand to exercise the client's cold-start and retry
// handling.
package devserver

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmcleod/mealdraw/session"
)

//go:embed openapi.yaml
var openapiSpec []byte

type account struct {
	username string
	password string
	role     session.Role
	avatar   string
}

// Server holds the in-memory backend state.
type Server struct {
	logger      *slog.Logger
	latency     time.Duration
	gatherer    prometheus.Gatherer
	rateLimiter *loginRateLimiter

	mu       sync.RWMutex
	accounts map[string]*account
	tokens   map[string]string // token -> username
	records  map[string]map[string]map[string]string

	failCount  atomic.Int64
	failStatus atomic.Int64
}

// Option configures the Server instance.
type Option func(*Server)

// WithLogger sets the structured logger.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithLatency delays every API response by d.
func WithLatency(d time.Duration) Option {
	return func(s *Server) { s.latency = d }
}

// WithGatherer exposes the given registry at /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// New creates an empty Server.
func New(opts ...Option) *Server {
	s := &Server{
		rateLimiter: newLoginRateLimiter(),
		accounts:    make(map[string]*account),
		tokens:      make(map[string]string),
		records:     make(map[string]map[string]map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	s.logger = s.logger.With("component", "devserver")
	return s
}

// AddUser registers an account. An empty avatar uses the default.
func (s *Server) AddUser(username, password string, role session.Role, avatar string) {
	if avatar == "" {
		avatar = session.DefaultAvatarURL(username)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[username] = &account{username: username, password: password, role: role, avatar: avatar}
}

// SetRole changes an account's role; existing tokens see the new role.
func (s *Server) SetRole(username string, role session.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[username]; ok {
		a.role = role
	}
}

// RevokeTokens invalidates every token issued to username.
func (s *Server) RevokeTokens(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tok, u := range s.tokens {
		if u == username {
			delete(s.tokens, tok)
		}
	}
}

// FailNext makes the next n API requests respond with status.
func (s *Server) FailNext(n int, status int) {
	s.failStatus.Store(int64(status))
	s.failCount.Store(int64(n))
}

// SetRecord stores a value as if it had been recorded earlier today.
func (s *Server) SetRecord(username, category, slot, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putRecordLocked(username, category, slot, value)
}

// Record returns today's value for slot, if any.
func (s *Server) Record(username, category, slot string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.records[username][category][slot]
	return v, ok
}

func (s *Server) putRecordLocked(username, category, slot, value string) (created bool) {
	byCategory, ok := s.records[username]
	if !ok {
		byCategory = make(map[string]map[string]string)
		s.records[username] = byCategory
	}
	slots, ok := byCategory[category]
	if !ok {
		slots = make(map[string]string)
		byCategory[category] = slots
	}
	_, existed := slots[slot]
	slots[slot] = value
	return !existed
}

// Router returns a chi.Router with all routes mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(securityHeaders)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})
	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/openapi.yaml",
		Path:    "docs",
	}, nil))
	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/openapi.yaml",
		Path:    "redoc",
	}, nil))
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(s.chaos)
		r.Post("/user/login", s.Login)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/user/getCurrentUser", s.CurrentUser)
			r.Post("/user/logout", s.Logout)
			r.Get("/record/{category}/today", s.TodayRecords)
			r.Post("/record/{category}", s.SubmitRecord)
		})
	})
	return r
}
