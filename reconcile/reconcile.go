// Package reconcile replays a user action that was deferred while the
// session was anonymous, once the user has signed in.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmcleod/mealdraw/metrics"
	"github.com/jmcleod/mealdraw/notify"
	"github.com/jmcleod/mealdraw/session"
)

// Records is the slice of the backend API the reconciler needs.
// *client.Client implements it.
type Records interface {
	TodayRecords(ctx context.Context, category string) (map[string]string, error)
	SubmitRecord(ctx context.Context, category, slot, value string) error
}

// Conflict describes a slot that already holds a different value.
type Conflict struct {
	Category string
	Slot     string
	Existing string
	Proposed string
}

// Decision is the user's answer to a Conflict.
type Decision int

const (
	Keep Decision = iota
	Overwrite
)

func (d Decision) String() string {
	if d == Overwrite {
		return "overwrite"
	}
	return "keep"
}

// Resolver asks the user how to settle a Conflict. It may block; it is
// only ever called from the reconciliation goroutine.
type Resolver interface {
	ResolveConflict(ctx context.Context, c Conflict) (Decision, error)
}

// ResolverFunc adapts a function to a Resolver.
type ResolverFunc func(ctx context.Context, c Conflict) (Decision, error)

func (f ResolverFunc) ResolveConflict(ctx context.Context, c Conflict) (Decision, error) {
	return f(ctx, c)
}

// Always returns a Resolver that answers every conflict with d.
func Always(d Decision) Resolver {
	return ResolverFunc(func(context.Context, Conflict) (Decision, error) { return d, nil })
}

// Outcome is the result of a reconciliation pass.
type Outcome string

const (
	OutcomeNone        Outcome = "none"
	OutcomeCreated     Outcome = "created"
	OutcomeUnchanged   Outcome = "unchanged"
	OutcomeOverwritten Outcome = "overwritten"
	OutcomeKept        Outcome = "kept"
	OutcomeFailed      Outcome = "failed"
)

const (
	noticeRecorded    = "Your choice has been recorded"
	noticeOverwritten = "Your choice has been updated"
	noticeUnchanged   = "That choice was already recorded"
	noticeFailed      = "Could not record your choice, please try again"

	noticeTimeout = 2 * time.Second
)

var errMalformedAction = errors.New("malformed pending action")

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the structured logger. If not set, slog.Default is used.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = logger }
}

// WithNotifier sets where user-facing notices go.
func WithNotifier(n notify.Notifier) Option {
	return func(r *Reconciler) { r.notifier = n }
}

// WithEmitter sets where domain events are published.
func WithEmitter(e notify.Emitter) Option {
	return func(r *Reconciler) { r.events = e }
}

// WithMetrics records reconciliation outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// Reconciler drains the session's pending action against the backend.
type Reconciler struct {
	store    *session.Store
	records  Records
	resolver Resolver
	notifier notify.Notifier
	events   notify.Emitter
	metrics  *metrics.Metrics
	logger   *slog.Logger

	runMu sync.Mutex // one pass at a time
	wg    sync.WaitGroup
}

// New creates a Reconciler. A nil resolver keeps existing server values.
func New(store *session.Store, records Records, resolver Resolver, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:    store,
		records:  records,
		resolver: resolver,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.resolver == nil {
		r.resolver = Always(Keep)
	}
	if r.notifier == nil {
		r.notifier = notify.Discard
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "reconcile")
	return r
}

// Attach runs a pass in the background after every transition of the
// store into the authenticated state. Use Wait to block until those
// passes have finished.
func (r *Reconciler) Attach() {
	r.store.Observe(func(ctx context.Context, _ session.Session) {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.Run(context.WithoutCancel(ctx))
		}()
	})
}

// Wait blocks until all passes started by Attach have returned.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

// Run performs one reconciliation pass. The pending action is taken from
// the store before any network call, so it is consumed exactly once no
// matter how the pass ends.
func (r *Reconciler) Run(ctx context.Context) Outcome {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	action, ok := r.store.TakePendingAction()
	if !ok {
		return OutcomeNone
	}

	outcome, err := r.apply(ctx, action)
	if err != nil {
		outcome = OutcomeFailed
		r.logger.Warn("reconciling pending action failed, discarding it",
			"kind", string(action.Kind),
			"error", err,
		)
		r.notifier.Notify(notify.Notice{Type: notify.Negative, Message: noticeFailed, Timeout: noticeTimeout})
	}
	r.metrics.RecordReconciliation(string(outcome))
	return outcome
}

func (r *Reconciler) apply(ctx context.Context, action session.PendingAction) (Outcome, error) {
	if action.Kind != session.ActionRecordChoice {
		return "", fmt.Errorf("%w: unsupported kind %q", errMalformedAction, action.Kind)
	}
	category := action.Payload[session.PayloadCategory]
	slot := action.Payload[session.PayloadSlot]
	value := action.Payload[session.PayloadValue]
	if category == "" || slot == "" || value == "" {
		return "", fmt.Errorf("%w: category, slot and value are required", errMalformedAction)
	}

	existing, err := r.records.TodayRecords(ctx, category)
	if err != nil {
		return "", fmt.Errorf("querying today's %s records: %w", category, err)
	}

	current, recorded := existing[slot]
	switch {
	case !recorded:
		if err := r.records.SubmitRecord(ctx, category, slot, value); err != nil {
			return "", fmt.Errorf("recording %s %s: %w", category, slot, err)
		}
		r.logger.Info("recorded pending choice", "category", category, "slot", slot)
		r.notifier.Notify(notify.Notice{Type: notify.Positive, Message: noticeRecorded, Timeout: noticeTimeout})
		return OutcomeCreated, nil

	case current == value:
		r.notifier.Notify(notify.Notice{Type: notify.Info, Message: noticeUnchanged, Timeout: noticeTimeout})
		return OutcomeUnchanged, nil
	}

	decision, err := r.resolver.ResolveConflict(ctx, Conflict{
		Category: category,
		Slot:     slot,
		Existing: current,
		Proposed: value,
	})
	if err != nil {
		return "", fmt.Errorf("resolving %s %s conflict: %w", category, slot, err)
	}
	r.logger.Info("conflict resolved", "category", category, "slot", slot, "decision", decision.String())
	if decision != Overwrite {
		return OutcomeKept, nil
	}

	if err := r.records.SubmitRecord(ctx, category, slot, value); err != nil {
		return "", fmt.Errorf("overwriting %s %s: %w", category, slot, err)
	}
	if r.events != nil {
		r.events.Emit(notify.Event{
			Name: notify.EventRecordOverwritten,
			Attrs: map[string]string{
				"category": category,
				"slot":     slot,
				"previous": current,
				"value":    value,
			},
		})
	}
	r.notifier.Notify(notify.Notice{Type: notify.Positive, Message: noticeOverwritten, Timeout: noticeTimeout})
	return OutcomeOverwritten, nil
}
