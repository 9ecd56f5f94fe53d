package cmd

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jmcleod/mealdraw/client"
	"github.com/jmcleod/mealdraw/config"
	"github.com/jmcleod/mealdraw/guard"
	"github.com/jmcleod/mealdraw/internal/util"
	"github.com/jmcleod/mealdraw/metrics"
	"github.com/jmcleod/mealdraw/notify"
	"github.com/jmcleod/mealdraw/reconcile"
	"github.com/jmcleod/mealdraw/session"
	bboltstorage "github.com/jmcleod/mealdraw/storage/bbolt"
)

const (
	sessionFile     = "session.db"
	wrappingKeyFile = "wrapping.key"
)

// app wires the client-side components for one CLI invocation.
type app struct {
	logger     *slog.Logger
	repo       *bboltstorage.Store
	store      *session.Store
	client     *client.Client
	guard      *guard.Guard
	reconciler *reconcile.Reconciler
	events     *notify.Bus
	out        io.Writer
}

func newApp(c *config.Config, out io.Writer, resolver reconcile.Resolver) (*app, error) {
	logger := c.Log.NewLogger(os.Stderr)

	if err := os.MkdirAll(c.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	wrappingKey, err := resolveWrappingKey(c)
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(wrappingKey)

	repo, err := bboltstorage.NewRepositoryFromFile(filepath.Join(c.DataDir, sessionFile), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open session storage: %w", err)
	}

	store, err := session.NewStore(repo, wrappingKey,
		session.WithLogger(logger),
		session.WithRevoker(client.NewRevoker(c.BaseURL, nil)),
	)
	if err != nil {
		repo.Close()
		return nil, err
	}

	m := metrics.NewMetrics(prometheus.NewRegistry())
	notices := &noticePrinter{w: out}
	cl := client.New(c.BaseURL, store,
		client.WithLogger(logger),
		client.WithNotifier(notices),
		client.WithNavigator(&printNavigator{w: out}),
		client.WithMetrics(m),
		client.WithColdStart(client.ColdStartOptions{
			SuccessThreshold: c.ColdStart.SuccessThreshold,
			ErrorThreshold:   c.ColdStart.ErrorThreshold,
			Cooldown:         c.ColdStart.Cooldown,
			NoticeTimeout:    c.ColdStart.NoticeTimeout,
		}),
		client.WithRetry(client.RetryOptions{
			Delay:            c.Retry.Delay,
			UnsafeMethods:    c.Retry.UnsafeMethods,
			SkipClientErrors: c.Retry.SkipClientErrors,
		}),
		client.WithExpiry(client.ExpiryOptions{
			Cooldown:    c.Expiry.Cooldown,
			LandingPath: c.Expiry.LandingPath,
		}),
	)

	events := notify.NewBus(logger)
	a := &app{
		logger: logger,
		repo:   repo,
		store:  store,
		client: cl,
		guard: guard.New(store, cl,
			guard.WithLogger(logger),
			guard.WithNotifier(notices),
			guard.WithMetrics(m),
			guard.WithOptions(guard.Options{
				ValidateInterval: c.Guard.ValidateInterval,
				HomePath:         c.Guard.HomePath,
				LoginPath:        c.Guard.LoginPath,
			}),
		),
		reconciler: reconcile.New(store, cl, resolver,
			reconcile.WithLogger(logger),
			reconcile.WithNotifier(notices),
			reconcile.WithEmitter(events),
			reconcile.WithMetrics(m),
		),
		events: events,
		out:    out,
	}
	a.reconciler.Attach()
	return a, nil
}

// close waits for background reconciliation and releases storage.
func (a *app) close() {
	a.reconciler.Wait()
	a.events.Close()
	if err := a.repo.Close(); err != nil {
		a.logger.Warn("closing session storage failed", "error", err)
	}
}

// signIn exchanges credentials for a session. Observers attached to the
// store (the reconciler) run as part of the transition.
func (a *app) signIn(ctx context.Context, username, password string) error {
	u, err := a.client.SignIn(ctx, username, password)
	if err != nil {
		if client.IsUnauthorized(err) {
			return errors.New("invalid username or password")
		}
		return fmt.Errorf("sign in: %w", err)
	}
	return a.store.Login(ctx, u.Username, u.Token, u.Role, u.Avatar)
}

// resolveWrappingKey returns the configured wrapping key, or loads (and on
// first use creates) a random key file in the data directory.
func resolveWrappingKey(c *config.Config) ([]byte, error) {
	if c.WrappingKey != "" {
		return c.WrappingKeyBytes()
	}

	path := filepath.Join(c.DataDir, wrappingKeyFile)
	data, err := os.ReadFile(path)
	if err == nil {
		key, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil || len(key) != util.AESKeySize {
			return nil, fmt.Errorf("wrapping key file %s is malformed", path)
		}
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading wrapping key: %w", err)
	}

	key, err := util.RandomBytes(util.AESKeySize)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("writing wrapping key: %w", err)
	}
	return key, nil
}
