package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/mealdraw/config"
	"github.com/jmcleod/mealdraw/guard"
	"github.com/jmcleod/mealdraw/notify"
	"github.com/jmcleod/mealdraw/reconcile"
	"github.com/jmcleod/mealdraw/session"
)

func TestParseUserSpec(t *testing.T) {
	u, err := parseUserSpec("alice:hunter2")
	require.NoError(t, err)
	assert.Equal(t, userSpec{username: "alice", password: "hunter2", role: session.RoleMember}, u)

	u, err = parseUserSpec("root:pa:ss:admin")
	require.Error(t, err, "the third field is the role")

	u, err = parseUserSpec("root:toor:2")
	require.NoError(t, err)
	assert.Equal(t, session.RoleAdmin, u.role)

	for _, bad := range []string{"", "alice", ":pw", "alice:", "alice:pw:owner"} {
		_, err := parseUserSpec(bad)
		assert.Errorf(t, err, "spec %q", bad)
	}
}

func TestConflictResolver(t *testing.T) {
	ctx := context.Background()
	c := reconcile.Conflict{Category: "meal", Slot: "lunch", Existing: "curry", Proposed: "ramen"}

	r, err := conflictResolver("keep")
	require.NoError(t, err)
	d, err := r.ResolveConflict(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, reconcile.Keep, d)

	r, err = conflictResolver(" Overwrite ")
	require.NoError(t, err)
	d, err = r.ResolveConflict(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, reconcile.Overwrite, d)

	r, err = conflictResolver("ask")
	require.NoError(t, err)
	assert.NotNil(t, r)

	_, err = conflictResolver("merge")
	assert.Error(t, err)
}

func TestRouteFor(t *testing.T) {
	assert.Equal(t, guard.Route{Path: "/"}, routeFor("/"))
	assert.Equal(t, guard.Route{Path: "/draw", RequiresAuth: true}, routeFor("draw"))
	assert.Equal(t, guard.Route{Path: "/admin", RequiresAuth: true, RequiresAdmin: true}, routeFor("/admin/"))
	assert.Equal(t, guard.Route{Path: "/unknown", RequiresAuth: true}, routeFor("/unknown"))
}

func TestRenderNotice(t *testing.T) {
	for _, tc := range []struct {
		typ    notify.Type
		marker string
	}{
		{notify.Info, "i "},
		{notify.Warning, "! "},
		{notify.Negative, "✗ "},
		{notify.Positive, "✓ "},
	} {
		out := renderNotice(notify.Notice{Type: tc.typ, Message: "hello"})
		assert.Contains(t, out, tc.marker+"hello")
	}

	var buf bytes.Buffer
	p := &noticePrinter{w: &buf}
	p.Notify(notify.Notice{Type: notify.Positive, Message: "saved"})
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
	assert.Contains(t, buf.String(), "saved")
}

func TestResolveWrappingKey(t *testing.T) {
	dir := t.TempDir()
	c := config.DefaultConfig()
	c.DataDir = dir

	first, err := resolveWrappingKey(c)
	require.NoError(t, err)
	assert.Len(t, first, 32)

	info, err := os.Stat(filepath.Join(dir, wrappingKeyFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second, err := resolveWrappingKey(c)
	require.NoError(t, err)
	assert.Equal(t, first, second, "the generated key is reused")

	c.WrappingKey = "correct horse battery staple"
	derived, err := resolveWrappingKey(c)
	require.NoError(t, err)
	assert.Len(t, derived, 32)
	assert.NotEqual(t, first, derived)

	require.NoError(t, os.WriteFile(filepath.Join(dir, wrappingKeyFile), []byte("zz"), 0o600))
	c.WrappingKey = ""
	_, err = resolveWrappingKey(c)
	assert.Error(t, err)
}
