package client

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jmcleod/mealdraw/metrics"
	"github.com/jmcleod/mealdraw/notify"
	"github.com/jmcleod/mealdraw/session"
)

const sessionExpiredMessage = "Login credentials expired, you have been signed out"

// Navigator moves the UI to another location.
type Navigator interface {
	Navigate(ctx context.Context, path string)
}

// NavigatorFunc adapts a function to a Navigator.
type NavigatorFunc func(ctx context.Context, path string)

func (f NavigatorFunc) Navigate(ctx context.Context, path string) { f(ctx, path) }

// injectCredential stamps r with the current bearer token. Reading the
// session never blocks the request: on any failure it goes out anonymous.
func (c *Client) injectCredential(r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Warn("reading session token failed, sending unauthenticated", "panic", rec)
			r.Header.Del("Authorization")
		}
	}()
	if c.store == nil {
		return
	}
	if token := strings.TrimSpace(c.store.Token()); token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

// ExpiryOptions configures session-expiry recovery.
type ExpiryOptions struct {
	// Cooldown is how long further 401s are ignored after a recovery.
	Cooldown time.Duration
	// LandingPath is where the user is sent after being signed out.
	LandingPath string
}

func DefaultExpiryOptions() ExpiryOptions {
	return ExpiryOptions{Cooldown: time.Second, LandingPath: "/login"}
}

// expiryHandler reacts to 401 responses on authenticated requests by
// signing the user out once per cooldown window.
type expiryHandler struct {
	opts      ExpiryOptions
	gate      *cooldownGate
	store     *session.Store
	navigator Navigator
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func newExpiryHandler(opts ExpiryOptions, store *session.Store, nav Navigator, n notify.Notifier, m *metrics.Metrics, logger *slog.Logger, now func() time.Time) *expiryHandler {
	return &expiryHandler{
		opts:      opts,
		gate:      newCooldownGate(opts.Cooldown, now),
		store:     store,
		navigator: nav,
		notifier:  n,
		metrics:   m,
		logger:    logger,
	}
}

// handle runs the recovery sequence if this 401 is the first for an
// authenticated session in the current window. A 401 seen while anonymous
// does not arm the gate, so a session signed in right after it still
// recovers on its own first 401. The caller still returns the original
// error.
func (h *expiryHandler) handle(ctx context.Context, meta *requestMeta) {
	if h.store == nil || (meta != nil && meta.SkipAuthRecovery) || !h.store.Authenticated() {
		return
	}
	if !h.gate.tryAcquire() {
		h.metrics.RecordExpiryDropped()
		return
	}

	h.metrics.RecordExpiryRecovery()
	attrs := []any{"landing", h.opts.LandingPath}
	if meta != nil {
		attrs = append(attrs, "request_id", meta.ID)
	}
	h.logger.Warn("session expired, signing out", attrs...)

	h.notifier.Notify(notify.Notice{Type: notify.Negative, Message: sessionExpiredMessage})
	h.store.Logout(ctx, session.SkipRemote())
	if h.navigator != nil {
		h.navigator.Navigate(ctx, h.opts.LandingPath)
	}
}
