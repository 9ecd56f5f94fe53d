package client

import (
	"context"
	"time"
)

type contextKey int

const (
	metaKey contextKey = iota
	skipAuthRecoveryKey
)

// requestMeta is the per-request state carried across attempts. It is
// owned by a single Do call, so retry budgets are never shared between
// concurrent requests.
type requestMeta struct {
	ID               string
	StartTime        time.Time
	RetryAttempts    int
	SkipAuthRecovery bool
}

func withMeta(ctx context.Context, m *requestMeta) context.Context {
	return context.WithValue(ctx, metaKey, m)
}

func metaFrom(ctx context.Context) *requestMeta {
	m, _ := ctx.Value(metaKey).(*requestMeta)
	return m
}

// WithSkipAuthRecovery marks requests made with ctx as exempt from
// session-expiry handling. Use it for calls whose 401 is an expected
// answer, such as the identity probe.
func WithSkipAuthRecovery(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipAuthRecoveryKey, true)
}

func skipAuthRecovery(ctx context.Context) bool {
	v, _ := ctx.Value(skipAuthRecoveryKey).(bool)
	return v
}

// RequestID returns the ID assigned to the in-flight request, or "" when
// ctx does not belong to one.
func RequestID(ctx context.Context) string {
	if m := metaFrom(ctx); m != nil {
		return m.ID
	}
	return ""
}
