package client

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// RetryOptions configures the single automatic resubmission.
type RetryOptions struct {
	Delay time.Duration
	// UnsafeMethods also retries POST and PATCH, which the server may have
	// applied before the failure was observed.
	UnsafeMethods bool
	// SkipClientErrors leaves 4xx responses other than 408 and 429 to the
	// caller instead of resubmitting them.
	SkipClientErrors bool
}

func DefaultRetryOptions() RetryOptions {
	return RetryOptions{Delay: 3 * time.Second}
}

// maxRetries is the number of resubmissions allowed per request.
const maxRetries = 1

type retryPolicy struct {
	delay            time.Duration
	unsafeMethods    bool
	skipClientErrors bool
}

func newRetryPolicy(opts RetryOptions) *retryPolicy {
	return &retryPolicy{
		delay:            opts.Delay,
		unsafeMethods:    opts.UnsafeMethods,
		skipClientErrors: opts.SkipClientErrors,
	}
}

func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// shouldRetry decides whether the failed attempt described by err gets
// resubmitted.
func (p *retryPolicy) shouldRetry(req *http.Request, err error, meta *requestMeta) bool {
	if err == nil || meta.RetryAttempts >= maxRetries {
		return false
	}
	if req.Context().Err() != nil {
		return false
	}
	if !p.unsafeMethods && !isIdempotent(req.Method) {
		return false
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return false
	}

	var se *StatusError
	if p.skipClientErrors && errors.As(err, &se) && se.StatusCode < 500 {
		return se.StatusCode == http.StatusRequestTimeout || se.StatusCode == http.StatusTooManyRequests
	}
	// Any non-2xx status or a transport failure.
	return true
}

// wait blocks for the retry delay or until ctx is done.
func (p *retryPolicy) wait(ctx context.Context) error {
	if p.delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
