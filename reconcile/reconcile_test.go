package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/mealdraw/internal/util"
	"github.com/jmcleod/mealdraw/metrics"
	"github.com/jmcleod/mealdraw/notify"
	"github.com/jmcleod/mealdraw/session"
	"github.com/jmcleod/mealdraw/storage/memory"
)

type submitCall struct {
	Category, Slot, Value string
}

// fakeRecords is an in-memory backend for one day of records.
type fakeRecords struct {
	mu        sync.Mutex
	today     map[string]map[string]string
	submits   []submitCall
	queryErr  error
	submitErr error
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{today: map[string]map[string]string{}}
}

func (f *fakeRecords) TodayRecords(_ context.Context, category string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	out := map[string]string{}
	for k, v := range f.today[category] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeRecords) SubmitRecord(_ context.Context, category, slot, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submits = append(f.submits, submitCall{category, slot, value})
	if f.today[category] == nil {
		f.today[category] = map[string]string{}
	}
	f.today[category][slot] = value
	return nil
}

func (f *fakeRecords) Submits() []submitCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submitCall(nil), f.submits...)
}

func newStore(t *testing.T) *session.Store {
	t.Helper()
	wk, err := util.RandomBytes(util.AESKeySize)
	require.NoError(t, err)
	s, err := session.NewStore(memory.NewRepository(), wk)
	require.NoError(t, err)
	return s
}

func TestRun_NothingQueued(t *testing.T) {
	records := newFakeRecords()
	var rec notify.Recorder
	r := New(newStore(t), records, nil, WithNotifier(&rec))

	assert.Equal(t, OutcomeNone, r.Run(context.Background()))
	assert.Empty(t, records.Submits())
	assert.Empty(t, rec.Notices())
}

func TestRun_NoConflictCreates(t *testing.T) {
	store := newStore(t)
	store.SetPendingAction(session.NewRecordChoice("meal", "lunch", "ramen"))
	records := newFakeRecords()
	var rec notify.Recorder
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	r := New(store, records, nil, WithNotifier(&rec), WithMetrics(m))

	assert.Equal(t, OutcomeCreated, r.Run(context.Background()))
	assert.Equal(t, []submitCall{{"meal", "lunch", "ramen"}}, records.Submits())
	assert.Equal(t, 1, rec.Count(notify.Positive))
	_, pending := store.PendingAction()
	assert.False(t, pending)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Reconciliations.WithLabelValues("created")))
}

func TestRun_Conflict(t *testing.T) {
	setup := func(t *testing.T, d Decision) (*Reconciler, *session.Store, *fakeRecords, *notify.Recorder, <-chan notify.Event, *[]Conflict) {
		store := newStore(t)
		store.SetPendingAction(session.NewRecordChoice("meal", "lunch", "ramen"))
		records := newFakeRecords()
		records.today["meal"] = map[string]string{"lunch": "curry"}

		bus := notify.NewBus(nil)
		t.Cleanup(bus.Close)
		events, cancel := bus.Subscribe(4)
		t.Cleanup(cancel)

		var asked []Conflict
		resolver := ResolverFunc(func(_ context.Context, c Conflict) (Decision, error) {
			asked = append(asked, c)
			return d, nil
		})
		rec := &notify.Recorder{}
		r := New(store, records, resolver, WithNotifier(rec), WithEmitter(bus))
		return r, store, records, rec, events, &asked
	}

	t.Run("Overwrite", func(t *testing.T) {
		r, store, records, rec, events, asked := setup(t, Overwrite)

		assert.Equal(t, OutcomeOverwritten, r.Run(context.Background()))
		assert.Equal(t, []Conflict{{Category: "meal", Slot: "lunch", Existing: "curry", Proposed: "ramen"}}, *asked)
		assert.Equal(t, []submitCall{{"meal", "lunch", "ramen"}}, records.Submits())
		assert.Equal(t, 1, rec.Count(notify.Positive))

		select {
		case evt := <-events:
			assert.Equal(t, notify.EventRecordOverwritten, evt.Name)
			assert.Equal(t, map[string]string{
				"category": "meal",
				"slot":     "lunch",
				"previous": "curry",
				"value":    "ramen",
			}, evt.Attrs)
		case <-time.After(time.Second):
			t.Fatal("expected an overwrite event")
		}
		_, pending := store.PendingAction()
		assert.False(t, pending)
	})

	t.Run("Keep", func(t *testing.T) {
		r, store, records, rec, events, asked := setup(t, Keep)

		assert.Equal(t, OutcomeKept, r.Run(context.Background()))
		assert.Len(t, *asked, 1)
		assert.Empty(t, records.Submits())
		assert.Empty(t, rec.Notices())
		select {
		case evt := <-events:
			t.Fatalf("unexpected event %q", evt.Name)
		default:
		}
		_, pending := store.PendingAction()
		assert.False(t, pending)
	})
}

func TestRun_SameValueAlreadyRecorded(t *testing.T) {
	store := newStore(t)
	store.SetPendingAction(session.NewRecordChoice("meal", "lunch", "ramen"))
	records := newFakeRecords()
	records.today["meal"] = map[string]string{"lunch": "ramen"}
	var rec notify.Recorder
	r := New(store, records, ResolverFunc(func(context.Context, Conflict) (Decision, error) {
		t.Fatal("resolver must not be asked when values match")
		return Keep, nil
	}), WithNotifier(&rec))

	assert.Equal(t, OutcomeUnchanged, r.Run(context.Background()))
	assert.Empty(t, records.Submits())
	assert.Equal(t, 1, rec.Count(notify.Info))
}

func TestRun_FailuresDiscardAction(t *testing.T) {
	boom := errors.New("backend unavailable")
	cases := []struct {
		name     string
		prepare  func(*fakeRecords)
		resolver Resolver
		action   session.PendingAction
	}{
		{
			name:    "QueryFails",
			prepare: func(f *fakeRecords) { f.queryErr = boom },
			action:  session.NewRecordChoice("meal", "lunch", "ramen"),
		},
		{
			name:    "CreateFails",
			prepare: func(f *fakeRecords) { f.submitErr = boom },
			action:  session.NewRecordChoice("meal", "lunch", "ramen"),
		},
		{
			name: "OverwriteFails",
			prepare: func(f *fakeRecords) {
				f.today["meal"] = map[string]string{"lunch": "curry"}
				f.submitErr = boom
			},
			resolver: Always(Overwrite),
			action:   session.NewRecordChoice("meal", "lunch", "ramen"),
		},
		{
			name: "ResolverFails",
			prepare: func(f *fakeRecords) {
				f.today["meal"] = map[string]string{"lunch": "curry"}
			},
			resolver: ResolverFunc(func(context.Context, Conflict) (Decision, error) { return Keep, boom }),
			action:   session.NewRecordChoice("meal", "lunch", "ramen"),
		},
		{
			name:    "UnknownKind",
			prepare: func(*fakeRecords) {},
			action:  session.PendingAction{Kind: "vote", Payload: map[string]string{}},
		},
		{
			name:    "MissingSlot",
			prepare: func(*fakeRecords) {},
			action:  session.NewRecordChoice("meal", "", "ramen"),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newStore(t)
			store.SetPendingAction(tc.action)
			records := newFakeRecords()
			tc.prepare(records)
			var rec notify.Recorder
			r := New(store, records, tc.resolver, WithNotifier(&rec))

			assert.Equal(t, OutcomeFailed, r.Run(context.Background()))
			assert.Equal(t, 1, rec.Count(notify.Negative))
			_, pending := store.PendingAction()
			assert.False(t, pending, "failed actions are not retried")

			assert.Equal(t, OutcomeNone, r.Run(context.Background()))
		})
	}
}

func TestAttach_OneReconciliationPerLogin(t *testing.T) {
	store := newStore(t)
	records := newFakeRecords()
	r := New(store, records, nil)
	r.Attach()

	store.SetPendingAction(session.NewRecordChoice("meal", "lunch", "ramen"))
	ctx := context.Background()
	require.NoError(t, store.Login(ctx, "alice", "tok-1", session.RoleMember, ""))
	require.NoError(t, store.Login(ctx, "alice", "tok-2", session.RoleMember, ""))
	r.Wait()

	assert.Equal(t, []submitCall{{"meal", "lunch", "ramen"}}, records.Submits())
	_, pending := store.PendingAction()
	assert.False(t, pending)
}

func TestAttach_RestoreTriggersPass(t *testing.T) {
	wk, err := util.RandomBytes(util.AESKeySize)
	require.NoError(t, err)
	repo := memory.NewRepository()

	first, err := session.NewStore(repo, wk)
	require.NoError(t, err)
	require.NoError(t, first.Login(context.Background(), "alice", "tok", session.RoleMember, ""))

	store, err := session.NewStore(repo, wk)
	require.NoError(t, err)
	records := newFakeRecords()
	r := New(store, records, nil)
	r.Attach()

	store.SetPendingAction(session.NewRecordChoice("meal", "dinner", "pho"))
	sess := store.Restore(context.Background())
	require.True(t, sess.Authenticated)
	r.Wait()

	assert.Equal(t, []submitCall{{"meal", "dinner", "pho"}}, records.Submits())
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "keep", Keep.String())
	assert.Equal(t, "overwrite", Overwrite.String())
}
