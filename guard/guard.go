// Package guard decides whether navigation to a route may proceed, using
// the local session and, when needed, the backend's view of the credential.
package guard

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/jmcleod/mealdraw/client"
	"github.com/jmcleod/mealdraw/metrics"
	"github.com/jmcleod/mealdraw/notify"
	"github.com/jmcleod/mealdraw/session"
)

const (
	loginRequiredMessage = "Please log in first"
	adminRequiredMessage = "Administrator access required"

	deniedNoticeTimeout = 1500 * time.Millisecond
)

// Decision reasons, also used as metric labels.
const (
	ReasonPublic    = "public"
	ReasonAllowed   = "authenticated"
	ReasonAnonymous = "anonymous"
	ReasonExpired   = "expired"
	ReasonRejected  = "rejected"
	ReasonForbidden = "forbidden"
)

// Identity resolves the bearer credential to a user. *client.Client
// implements it.
type Identity interface {
	CurrentUser(ctx context.Context) (session.User, error)
}

// Route is a navigation target and its access requirements. RequiresAdmin
// implies RequiresAuth.
type Route struct {
	Path          string
	RequiresAuth  bool
	RequiresAdmin bool
}

// Decision is the outcome of Check. When Allow is false, Redirect names
// where to go instead.
type Decision struct {
	Allow    bool
	Redirect string
	Reason   string
}

// Options configures a Guard.
type Options struct {
	// ValidateInterval is how long a successful identity probe is trusted.
	ValidateInterval time.Duration
	HomePath         string
	LoginPath        string
}

func DefaultOptions() Options {
	return Options{
		ValidateInterval: 5 * time.Minute,
		HomePath:         "/",
		LoginPath:        "/login",
	}
}

// Option configures a Guard.
type Option func(*Guard)

// WithLogger sets the structured logger. If not set, slog.Default is used.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) { g.logger = logger }
}

// WithNotifier sets where user-facing notices go.
func WithNotifier(n notify.Notifier) Option {
	return func(g *Guard) { g.notifier = n }
}

// WithMetrics records guard decisions.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) { g.metrics = m }
}

// WithOptions overrides paths and the validation interval.
func WithOptions(o Options) Option {
	return func(g *Guard) { g.opts = o }
}

// Guard gates navigation.
type Guard struct {
	store    *session.Store
	identity Identity
	opts     Options
	notifier notify.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time

	probes singleflight.Group

	mu          sync.Mutex
	validToken  string
	validatedAt time.Time
}

// New creates a Guard. identity may be nil, in which case the local
// session is trusted without a probe.
func New(store *session.Store, identity Identity, opts ...Option) *Guard {
	g := &Guard{
		store:    store,
		identity: identity,
		opts:     DefaultOptions(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.notifier == nil {
		g.notifier = notify.Discard
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	g.logger = g.logger.With("component", "guard")
	return g
}

// Check decides whether navigation to route may proceed. It may restore the
// session from disk, sign the user out locally when the credential is
// expired or rejected, and refresh the user's identity from the backend.
func (g *Guard) Check(ctx context.Context, route Route) Decision {
	d := g.check(ctx, route)
	g.metrics.RecordGuardDecision(d.Allow, d.Reason)
	if !d.Allow {
		g.logger.Debug("navigation denied", "path", route.Path, "reason", d.Reason, "redirect", d.Redirect)
	}
	return d
}

func (g *Guard) check(ctx context.Context, route Route) Decision {
	if !g.store.Authenticated() {
		g.store.Restore(ctx)
	}
	if !route.RequiresAuth && !route.RequiresAdmin {
		return Decision{Allow: true, Reason: ReasonPublic}
	}

	sess := g.store.Snapshot()
	if !sess.Authenticated {
		g.notifier.Notify(notify.Notice{Type: notify.Warning, Message: loginRequiredMessage, Timeout: deniedNoticeTimeout})
		return Decision{Redirect: g.opts.HomePath, Reason: ReasonAnonymous}
	}

	if tokenExpired(sess.Token, g.now()) {
		g.logger.Info("credential expired, signing out", "username", sess.Username)
		g.store.Logout(ctx, session.SkipRemote())
		return Decision{Redirect: g.opts.LoginPath, Reason: ReasonExpired}
	}

	if rejected := g.validate(ctx, sess.Token); rejected {
		g.logger.Info("credential rejected by backend, signing out", "username", sess.Username)
		g.store.Logout(ctx, session.SkipRemote())
		return Decision{Redirect: g.opts.LoginPath, Reason: ReasonRejected}
	}

	// The session may have been signed out while the probe was in flight.
	current := g.store.Snapshot()
	if !current.Authenticated {
		return Decision{Redirect: g.opts.LoginPath, Reason: ReasonRejected}
	}
	if route.RequiresAdmin && current.Role != session.RoleAdmin {
		g.notifier.Notify(notify.Notice{Type: notify.Warning, Message: adminRequiredMessage, Timeout: deniedNoticeTimeout})
		return Decision{Redirect: g.opts.HomePath, Reason: ReasonForbidden}
	}
	return Decision{Allow: true, Reason: ReasonAllowed}
}

// tokenExpired reports whether token is a JWT whose exp claim has passed.
// Opaque tokens are never considered expired here; the backend decides.
func tokenExpired(token string, now time.Time) bool {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	return claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time)
}

// validate probes the backend for the identity behind token and reports
// whether the backend rejected it. Concurrent checks share one probe, and a
// successful probe is trusted for the validate interval. A probe that fails
// for any reason other than 401 leaves the local session trusted.
func (g *Guard) validate(ctx context.Context, token string) (rejected bool) {
	if g.identity == nil || g.recentlyValidated(token) {
		return false
	}

	v, err, shared := g.probes.Do(token, func() (any, error) {
		if g.recentlyValidated(token) {
			return nil, nil
		}
		u, err := g.identity.CurrentUser(ctx)
		if err != nil {
			return nil, err
		}
		g.markValidated(token)
		return u, nil
	})
	if err != nil {
		if client.IsUnauthorized(err) {
			return true
		}
		g.logger.Warn("identity probe failed, trusting local session", "error", err, "shared", shared)
		return false
	}

	user, ok := v.(session.User)
	if !ok {
		return false
	}
	switch err := g.store.RefreshUser(ctx, token, user); {
	case errors.Is(err, session.ErrSessionChanged):
		g.logger.Debug("session changed during identity probe, discarding result")
	case err != nil:
		g.logger.Warn("ignoring identity from backend", "error", err)
	}
	return false
}

func (g *Guard) recentlyValidated(token string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.validToken == token && g.now().Sub(g.validatedAt) < g.opts.ValidateInterval
}

func (g *Guard) markValidated(token string) {
	g.mu.Lock()
	g.validToken = token
	g.validatedAt = g.now()
	g.mu.Unlock()
}
