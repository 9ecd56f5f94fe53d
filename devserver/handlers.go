package devserver

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jmcleod/mealdraw/session"
)

// Login issues a new bearer token for valid credentials.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	if blocked, retryAfter := s.rateLimiter.check(username); blocked {
		writeRateLimited(w, retryAfter)
		return
	}

	s.mu.Lock()
	acct, ok := s.accounts[username]
	if !ok || subtle.ConstantTimeCompare([]byte(acct.password), []byte(req.Password)) != 1 {
		s.mu.Unlock()
		s.rateLimiter.recordFailure(username)
		s.logger.Info("login failed", "username", username)
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	token := uuid.NewString()
	s.tokens[token] = username
	user := session.User{Username: acct.username, Role: acct.role, Avatar: acct.avatar, Token: token}
	s.mu.Unlock()

	s.rateLimiter.recordSuccess(username)
	s.logger.Info("login succeeded", "username", username)
	writeJSON(w, http.StatusOK, UserResponse{User: user})
}

// Logout revokes the presented token.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	token, _ := bearerToken(r)
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

// CurrentUser returns the identity behind the bearer token.
func (s *Server) CurrentUser(w http.ResponseWriter, r *http.Request) {
	username := usernameFrom(r.Context())
	s.mu.RLock()
	acct, ok := s.accounts[username]
	s.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusUnauthorized, "account no longer exists")
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{User: session.User{
		Username: acct.username,
		Role:     acct.role,
		Avatar:   acct.avatar,
	}})
}

// TodayRecords returns the caller's values for today in a category.
func (s *Server) TodayRecords(w http.ResponseWriter, r *http.Request) {
	username := usernameFrom(r.Context())
	category := chi.URLParam(r, "category")

	s.mu.RLock()
	out := make(map[string]string, len(s.records[username][category]))
	for slot, v := range s.records[username][category] {
		out[slot] = v
	}
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, out)
}

// SubmitRecord creates or overwrites a slot value. It answers 201 for a
// new value and 200 for an overwrite.
func (s *Server) SubmitRecord(w http.ResponseWriter, r *http.Request) {
	username := usernameFrom(r.Context())
	category := chi.URLParam(r, "category")

	var req RecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Slot == "" || req.Value == "" {
		writeError(w, http.StatusBadRequest, "slot and value are required")
		return
	}

	s.mu.Lock()
	created := s.putRecordLocked(username, category, req.Slot, req.Value)
	s.mu.Unlock()

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	s.logger.Info("record stored", "username", username, "category", category, "slot", req.Slot, "created", created)
	writeJSON(w, status, req)
}
