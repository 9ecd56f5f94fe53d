package devserver

import (
	"context"
	"net/http"
	"strings"
	"time"
)

type contextKey int

const usernameKey contextKey = iota

// authMiddleware resolves the bearer token to a username and stores it on
// the request context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		s.mu.RLock()
		username, ok := s.tokens[token]
		s.mu.RUnlock()
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		ctx := context.WithValue(r.Context(), usernameKey, username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}

func usernameFrom(ctx context.Context) string {
	u, _ := ctx.Value(usernameKey).(string)
	return u
}

// chaos applies the configured latency and injected failures.
func (s *Server) chaos(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.latency > 0 {
			t := time.NewTimer(s.latency)
			select {
			case <-r.Context().Done():
				t.Stop()
				return
			case <-t.C:
			}
		}
		for {
			n := s.failCount.Load()
			if n <= 0 {
				break
			}
			if s.failCount.CompareAndSwap(n, n-1) {
				status := int(s.failStatus.Load())
				s.logger.Debug("injecting failure", "path", r.URL.Path, "status", status)
				writeError(w, status, "injected failure")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// securityHeaders sets standard security response headers on every
// response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}
