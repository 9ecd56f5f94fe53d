package client

import (
	"time"

	"github.com/jmcleod/mealdraw/metrics"
	"github.com/jmcleod/mealdraw/notify"
)

const (
	coldStartSlowMessage    = "Backend may be waking up from idle, please wait..."
	coldStartTimeoutMessage = "Backend response timed out, it may be waking up..."
)

// ColdStartOptions configures slow-backend detection. The success threshold
// applies to 2xx responses, the error threshold to everything else.
type ColdStartOptions struct {
	SuccessThreshold time.Duration
	ErrorThreshold   time.Duration
	Cooldown         time.Duration
	NoticeTimeout    time.Duration
}

func DefaultColdStartOptions() ColdStartOptions {
	return ColdStartOptions{
		SuccessThreshold: 4 * time.Second,
		ErrorThreshold:   8 * time.Second,
		Cooldown:         10 * time.Second,
		NoticeTimeout:    3 * time.Second,
	}
}

type coldStartNotifier struct {
	opts     ColdStartOptions
	gate     *cooldownGate
	notifier notify.Notifier
	metrics  *metrics.Metrics
	now      func() time.Time
}

func newColdStartNotifier(opts ColdStartOptions, n notify.Notifier, m *metrics.Metrics, now func() time.Time) *coldStartNotifier {
	return &coldStartNotifier{
		opts:     opts,
		gate:     newCooldownGate(opts.Cooldown, now),
		notifier: n,
		metrics:  m,
		now:      now,
	}
}

// observe measures the attempt described by meta and raises a notice when
// it was slow and the cooldown allows. It returns the measured duration, or
// zero when the start time is unknown.
func (c *coldStartNotifier) observe(meta *requestMeta, success bool) time.Duration {
	if meta == nil || meta.StartTime.IsZero() {
		return 0
	}
	elapsed := c.now().Sub(meta.StartTime)

	threshold, message := c.opts.SuccessThreshold, coldStartSlowMessage
	if !success {
		threshold, message = c.opts.ErrorThreshold, coldStartTimeoutMessage
	}
	if elapsed <= threshold || !c.gate.tryAcquire() {
		return elapsed
	}

	c.metrics.RecordColdStartNotice()
	c.notifier.Notify(notify.Notice{
		Type:    notify.Info,
		Message: message,
		Timeout: c.opts.NoticeTimeout,
	})
	return elapsed
}
