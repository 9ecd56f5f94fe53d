package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/mealdraw/internal/util"
	"github.com/jmcleod/mealdraw/storage"
)

var errCorruptSnapshot = errors.New("corrupt session snapshot")

// Revoker invalidates a credential on the server.
type Revoker interface {
	Revoke(ctx context.Context, token string) error
}

// Observer is called after the session enters the authenticated state.
// It runs on the goroutine that caused the transition, after all locks are
// released; long work should be handed off.
type Observer func(ctx context.Context, s Session)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the structured logger. If not set, slog.Default is used.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithRevoker sets the remote logout used by Logout.
func WithRevoker(r Revoker) Option {
	return func(s *Store) {
		s.revoker = r
	}
}

// Store holds the process-wide Session. All mutations go through it and
// every identity change is written to the persisted snapshot.
type Store struct {
	mu      sync.RWMutex
	session Session

	repo    storage.Repository
	key     *memguard.Enclave
	revoker Revoker
	logger  *slog.Logger

	obsMu     sync.RWMutex
	observers []Observer
}

// NewStore creates an anonymous Store persisting to repo. The wrappingKey
// (32 bytes) seals the snapshot encryption key at rest and is never stored.
func NewStore(repo storage.Repository, wrappingKey []byte, opts ...Option) (*Store, error) {
	if len(wrappingKey) != util.AESKeySize {
		return nil, fmt.Errorf("wrapping key must be exactly %d bytes, got %d", util.AESKeySize, len(wrappingKey))
	}
	key, err := loadOrCreateSnapshotKey(repo, wrappingKey)
	if err != nil {
		return nil, err
	}
	s := &Store{
		repo: repo,
		key:  key,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "session")
	return s, nil
}

// Observe registers fn to run after every transition into the
// authenticated state.
func (s *Store) Observe(fn Observer) {
	s.obsMu.Lock()
	s.observers = append(s.observers, fn)
	s.obsMu.Unlock()
}

func (s *Store) notifyAuthenticated(ctx context.Context, sess Session) {
	s.obsMu.RLock()
	observers := append([]Observer(nil), s.observers...)
	s.obsMu.RUnlock()
	for _, fn := range observers {
		fn(ctx, sess.clone())
	}
}

// Snapshot returns a copy of the current Session.
func (s *Store) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.clone()
}

// Authenticated reports whether a user is signed in.
func (s *Store) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Authenticated
}

// Token returns the current bearer token, or "" when anonymous.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Token
}

// Login authenticates the session and persists it. An empty avatarURL is
// replaced with the default avatar for the username.
func (s *Store) Login(ctx context.Context, username, token string, role Role, avatarURL string) error {
	username = util.NormalizeName(username)
	token = strings.TrimSpace(token)
	if !identityComplete(username, token, role) {
		return fmt.Errorf("login %q: %w", username, ErrInvalidSession)
	}
	if avatarURL == "" {
		avatarURL = DefaultAvatarURL(username)
	}

	s.mu.Lock()
	next := s.session.clone()
	next.Authenticated = true
	next.Username = username
	next.Token = token
	next.Role = role
	next.AvatarURL = avatarURL
	if err := s.commitLocked(next); err != nil {
		s.mu.Unlock()
		return err
	}
	sess := s.session.clone()
	s.mu.Unlock()

	s.logger.Info("signed in", "username", username, "role", string(role))
	s.notifyAuthenticated(ctx, sess)
	return nil
}

// SetUser applies the identity reported by the backend. A missing token in
// u keeps the current one. Observers run when this transitions an
// anonymous session into the authenticated state.
func (s *Store) SetUser(ctx context.Context, u User) error {
	s.mu.Lock()
	wasAuthenticated := s.session.Authenticated
	next := s.session.clone()
	mergeUser(&next, u)
	if !identityComplete(next.Username, next.Token, next.Role) {
		s.mu.Unlock()
		return fmt.Errorf("set user %q: %w", u.Username, ErrInvalidSession)
	}
	next.Authenticated = true
	if err := s.commitLocked(next); err != nil {
		s.mu.Unlock()
		return err
	}
	sess := s.session.clone()
	s.mu.Unlock()

	if !wasAuthenticated {
		s.notifyAuthenticated(ctx, sess)
	}
	return nil
}

// RefreshUser applies u only while the session is still authenticated with
// expectedToken. It returns ErrSessionChanged, leaving the session as is,
// when the session was signed out or re-issued since the token was read.
// It never authenticates an anonymous session, so observers do not run.
func (s *Store) RefreshUser(ctx context.Context, expectedToken string, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.session.Authenticated || s.session.Token != expectedToken {
		return fmt.Errorf("refresh user %q: %w", u.Username, ErrSessionChanged)
	}
	next := s.session.clone()
	mergeUser(&next, u)
	if !identityComplete(next.Username, next.Token, next.Role) {
		return fmt.Errorf("refresh user %q: %w", u.Username, ErrInvalidSession)
	}
	return s.commitLocked(next)
}

// mergeUser overlays the non-empty fields of u onto sess.
func mergeUser(sess *Session, u User) {
	if name := util.NormalizeName(u.Username); name != "" {
		sess.Username = name
	}
	if tok := strings.TrimSpace(u.Token); tok != "" {
		sess.Token = tok
	}
	if u.Role != "" {
		sess.Role = u.Role
	}
	if u.Avatar != "" {
		sess.AvatarURL = u.Avatar
	} else if sess.AvatarURL == "" {
		sess.AvatarURL = DefaultAvatarURL(sess.Username)
	}
}

// commitLocked persists next and makes it current. Caller holds s.mu.
func (s *Store) commitLocked(next Session) error {
	if err := s.writeSnapshot(snapshot{
		Username:   next.Username,
		Avatar:     next.AvatarURL,
		Token:      next.Token,
		Role:       next.Role,
		IsLoggedIn: next.Authenticated,
	}); err != nil {
		return fmt.Errorf("persisting session: %w", err)
	}
	s.session = next
	return nil
}

// LogoutOption configures Logout.
type LogoutOption func(*logoutOptions)

type logoutOptions struct {
	skipRemote bool
}

// SkipRemote suppresses the server-side logout call, for credentials the
// server has already rejected.
func SkipRemote() LogoutOption {
	return func(o *logoutOptions) { o.skipRemote = true }
}

// Logout clears the session and removes the persisted snapshot. The remote
// revocation is best-effort: its failure is logged and never prevents the
// local logout. A queued pending action survives logout.
func (s *Store) Logout(ctx context.Context, opts ...LogoutOption) {
	var o logoutOptions
	for _, opt := range opts {
		opt(&o)
	}

	s.mu.Lock()
	token := s.session.Token
	username := s.session.Username
	s.resetLocked()
	s.mu.Unlock()

	if !o.skipRemote && s.revoker != nil && token != "" {
		if err := s.revoker.Revoke(ctx, token); err != nil {
			s.logger.Warn("remote logout failed", "username", username, "error", err)
		}
	}
	s.logger.Info("signed out", "username", username, "remote", !o.skipRemote)
}

// resetLocked returns to the anonymous default and deletes the snapshot.
// Caller holds s.mu.
func (s *Store) resetLocked() {
	pending := s.session.PendingAction
	s.session = Session{PendingAction: pending}
	if err := s.repo.Delete(clientVaultID, snapshotRecordType, snapshotRecordID); err != nil && !storage.IsNotFound(err) {
		s.logger.Warn("removing session snapshot failed", "error", err)
	}
}

// Restore reloads the session from the persisted snapshot. A missing
// snapshot yields the anonymous state. A snapshot that cannot be read or
// violates the session invariant is deleted and the session reset, with a
// diagnostic log; this is never reported as an error.
func (s *Store) Restore(ctx context.Context) Session {
	s.mu.Lock()
	snap, err := s.readSnapshot()
	switch {
	case storage.IsNotFound(err):
		s.session = Session{PendingAction: s.session.PendingAction}
		sess := s.session.clone()
		s.mu.Unlock()
		return sess
	case errors.Is(err, errCorruptSnapshot):
		s.logger.Warn("discarding unreadable session snapshot", "error", err)
		s.resetLocked()
		sess := s.session.clone()
		s.mu.Unlock()
		return sess
	case err != nil:
		s.logger.Error("reading session snapshot failed", "error", err)
		s.session = Session{PendingAction: s.session.PendingAction}
		sess := s.session.clone()
		s.mu.Unlock()
		return sess
	}

	if !snap.IsLoggedIn || !identityComplete(snap.Username, snap.Token, snap.Role) {
		s.logger.Warn("discarding corrupt session snapshot",
			"is_logged_in", snap.IsLoggedIn,
			"has_username", snap.Username != "",
			"has_token", snap.Token != "",
			"role", string(snap.Role),
		)
		s.resetLocked()
		sess := s.session.clone()
		s.mu.Unlock()
		return sess
	}

	avatar := snap.Avatar
	if avatar == "" {
		avatar = DefaultAvatarURL(snap.Username)
	}
	s.session = Session{
		Authenticated: true,
		Username:      snap.Username,
		Token:         strings.TrimSpace(snap.Token),
		Role:          snap.Role,
		AvatarURL:     avatar,
		PendingAction: s.session.PendingAction,
	}
	sess := s.session.clone()
	s.mu.Unlock()

	s.notifyAuthenticated(ctx, sess)
	return sess
}

// SetPendingAction queues a deferred action, replacing any unconsumed one.
func (s *Store) SetPendingAction(p PendingAction) {
	p = p.clone()
	s.mu.Lock()
	s.session.PendingAction = &p
	s.mu.Unlock()
}

// PendingAction returns the queued action without consuming it.
func (s *Store) PendingAction() (PendingAction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session.PendingAction == nil {
		return PendingAction{}, false
	}
	return s.session.PendingAction.clone(), true
}

// TakePendingAction atomically returns and clears the queued action.
func (s *Store) TakePendingAction() (PendingAction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session.PendingAction == nil {
		return PendingAction{}, false
	}
	p := *s.session.PendingAction
	s.session.PendingAction = nil
	return p, true
}

func (s *Store) writeSnapshot(snap snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	defer util.WipeBytes(data)

	buf, err := s.key.Open()
	if err != nil {
		return fmt.Errorf("opening snapshot key: %w", err)
	}
	defer buf.Destroy()

	env, err := storage.SealRecord(buf.Bytes(), data, snapshotAAD)
	if err != nil {
		return err
	}
	return s.repo.Put(clientVaultID, snapshotRecordType, snapshotRecordID, env)
}

func (s *Store) readSnapshot() (snapshot, error) {
	env, err := s.repo.Get(clientVaultID, snapshotRecordType, snapshotRecordID)
	if err != nil {
		return snapshot{}, err
	}

	buf, err := s.key.Open()
	if err != nil {
		return snapshot{}, fmt.Errorf("opening snapshot key: %w", err)
	}
	defer buf.Destroy()

	data, err := storage.OpenRecord(buf.Bytes(), env, snapshotAAD)
	if err != nil {
		return snapshot{}, fmt.Errorf("%w: unsealing: %w", errCorruptSnapshot, err)
	}
	defer util.WipeBytes(data)

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return snapshot{}, fmt.Errorf("%w: decoding: %w", errCorruptSnapshot, err)
	}
	return snap, nil
}
