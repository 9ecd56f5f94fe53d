// Package notify carries user-facing notices and fire-and-forget domain
// events out of the client core. Neither channel affects correctness: a
// dropped notice or event is never an error.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Type classifies a notice the way the UI renders it.
type Type string

const (
	Info     Type = "info"
	Warning  Type = "warning"
	Negative Type = "negative"
	Positive Type = "positive"
)

// Notice is a transient message shown to the user.
type Notice struct {
	Type    Type          `json:"type"`
	Message string        `json:"message"`
	Timeout time.Duration `json:"timeout,omitempty"`
}

// Notifier receives notices. Implementations must not block for long.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to a Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// Discard drops every notice.
var Discard Notifier = NotifierFunc(func(Notice) {})

// LogNotifier writes notices to a structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a Notifier that logs each notice at a level
// matching its type.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "notice")}
}

func (n *LogNotifier) Notify(notice Notice) {
	level := slog.LevelInfo
	switch notice.Type {
	case Warning:
		level = slog.LevelWarn
	case Negative:
		level = slog.LevelError
	}
	n.logger.LogAttrs(context.Background(), level, notice.Message,
		slog.String("type", string(notice.Type)),
		slog.Duration("timeout", notice.Timeout),
	)
}

// Recorder keeps every notice it receives. Suitable for tests and for
// surfaces that render notices after the fact.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *Recorder) Notify(n Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

// Notices returns a copy of the recorded notices in arrival order.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Count returns how many notices of the given type were recorded.
func (r *Recorder) Count(t Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, notice := range r.notices {
		if notice.Type == t {
			n++
		}
	}
	return n
}
