// Package client is the session-aware HTTP pipeline used by every call to
// the backend. Each request attempt is timed, stamped with the current
// bearer credential and sent; the outcome then feeds cold-start detection,
// session-expiry recovery and a single retry.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jmcleod/mealdraw/metrics"
	"github.com/jmcleod/mealdraw/notify"
	"github.com/jmcleod/mealdraw/session"
)

// maxErrorBody caps how much of a failed response body is kept.
const maxErrorBody = 64 << 10

// Client sends requests to the backend through the interceptor pipeline.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      *session.Store
	logger     *slog.Logger
	notifier   notify.Notifier
	navigator  Navigator
	metrics    *metrics.Metrics
	now        func() time.Time

	coldStartOpts ColdStartOptions
	retryOpts     RetryOptions
	expiryOpts    ExpiryOptions

	coldStart *coldStartNotifier
	retry     *retryPolicy
	expiry    *expiryHandler
}

// Option configures the Client instance.
type Option func(*Client)

// WithHTTPClient sets the underlying transport client. Defaults to a client
// with a 30s timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the structured logger. If not set, slog.Default is used.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithNotifier sets where user-facing notices go. Defaults to notify.Discard.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Client) { c.notifier = n }
}

// WithNavigator sets the navigation target used after session expiry.
func WithNavigator(n Navigator) Option {
	return func(c *Client) { c.navigator = n }
}

// WithMetrics records pipeline metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithColdStart overrides the cold-start detection settings.
func WithColdStart(o ColdStartOptions) Option {
	return func(c *Client) { c.coldStartOpts = o }
}

// WithRetry overrides the retry settings.
func WithRetry(o RetryOptions) Option {
	return func(c *Client) { c.retryOpts = o }
}

// WithExpiry overrides the session-expiry recovery settings.
func WithExpiry(o ExpiryOptions) Option {
	return func(c *Client) { c.expiryOpts = o }
}

// New creates a Client for baseURL that reads credentials from store.
func New(baseURL string, store *session.Store, opts ...Option) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		store:         store,
		now:           time.Now,
		coldStartOpts: DefaultColdStartOptions(),
		retryOpts:     DefaultRetryOptions(),
		expiryOpts:    DefaultExpiryOptions(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "client")
	if c.notifier == nil {
		c.notifier = notify.Discard
	}

	c.coldStart = newColdStartNotifier(c.coldStartOpts, c.notifier, c.metrics, c.now)
	c.retry = newRetryPolicy(c.retryOpts)
	c.expiry = newExpiryHandler(c.expiryOpts, store, c.navigator, c.notifier, c.metrics, c.logger, c.now)
	return c
}

// Do sends req through the pipeline. A non-2xx response is returned as a
// *StatusError with the response body already consumed; on success the
// caller owns resp.Body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	meta := &requestMeta{
		ID:               uuid.NewString(),
		SkipAuthRecovery: skipAuthRecovery(ctx),
	}
	req = req.WithContext(withMeta(ctx, meta))

	for {
		resp, err := c.attempt(req, meta)
		if !c.retry.shouldRetry(req, err, meta) {
			return resp, err
		}

		meta.RetryAttempts++
		c.metrics.RecordRetry(req.Method)
		c.logger.Debug("retrying request",
			"request_id", meta.ID,
			"method", req.Method,
			"path", req.URL.Path,
			"delay", c.retry.delay,
			"error", err,
		)
		if werr := c.retry.wait(ctx); werr != nil {
			return nil, werr
		}
	}
}

// attempt performs one pass through the interceptor chain.
func (c *Client) attempt(req *http.Request, meta *requestMeta) (*http.Response, error) {
	r := req.Clone(req.Context())
	if meta.RetryAttempts > 0 && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewinding request body: %w", err)
		}
		r.Body = body
	}

	meta.StartTime = c.now()
	r.Header.Set("X-Request-ID", meta.ID)
	c.injectCredential(r)

	resp, err := c.httpClient.Do(r)
	elapsed := c.coldStart.observe(meta, err == nil && isSuccess(resp.StatusCode))

	if err != nil {
		c.metrics.RecordRequest(r.Method, 0, elapsed)
		return nil, err
	}
	c.metrics.RecordRequest(r.Method, resp.StatusCode, elapsed)
	if isSuccess(resp.StatusCode) {
		return resp, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
	statusErr := &StatusError{
		Method:     r.Method,
		URL:        r.URL.String(),
		StatusCode: resp.StatusCode,
		Body:       body,
	}
	if resp.StatusCode == http.StatusUnauthorized {
		c.expiry.handle(req.Context(), meta)
	}
	return nil, statusErr
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// doJSON sends a request and decodes a JSON response into out (if non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	req, err := c.newRequest(ctx, method, path, in)
	if err != nil {
		return err
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}
