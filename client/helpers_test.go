package client

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jmcleod/mealdraw/internal/util"
	"github.com/jmcleod/mealdraw/session"
	"github.com/jmcleod/mealdraw/storage/memory"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func newTestStore(t *testing.T) *session.Store {
	t.Helper()
	wk, err := util.RandomBytes(util.AESKeySize)
	require.NoError(t, err)
	s, err := session.NewStore(memory.NewRepository(), wk)
	require.NoError(t, err)
	return s
}

func loggedInStore(t *testing.T, token string) *session.Store {
	t.Helper()
	s := newTestStore(t)
	require.NoError(t, s.Login(context.Background(), "alice", token, session.RoleMember, ""))
	return s
}

// recordingNavigator captures navigation targets.
type recordingNavigator struct {
	mu    sync.Mutex
	paths []string
}

func (n *recordingNavigator) Navigate(_ context.Context, path string) {
	n.mu.Lock()
	n.paths = append(n.paths, path)
	n.mu.Unlock()
}

func (n *recordingNavigator) Paths() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}

// noDelay disables the retry wait so tests run quickly.
var noDelay = RetryOptions{Delay: 0}

func discardLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }
