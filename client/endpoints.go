package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jmcleod/mealdraw/session"
)

const (
	pathLogin       = "/user/login"
	pathCurrentUser = "/user/getCurrentUser"
	pathLogout      = "/user/logout"
)

// LoginRequest is the body of POST /user/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type currentUserResponse struct {
	User session.User `json:"user"`
}

// SignIn exchanges a username and password for the user's identity and
// bearer token. It does not modify the session; callers pass the result to
// session.Store.Login.
func (c *Client) SignIn(ctx context.Context, username, password string) (session.User, error) {
	var out currentUserResponse
	in := LoginRequest{Username: username, Password: password}
	if err := c.doJSON(WithSkipAuthRecovery(ctx), http.MethodPost, pathLogin, in, &out); err != nil {
		return session.User{}, err
	}
	if out.User.Username == "" || out.User.Token == "" {
		return session.User{}, fmt.Errorf("login response missing user or token")
	}
	return out.User, nil
}

// CurrentUser asks the backend who the bearer credential belongs to. A 401
// here is an answer, not an expiry event, so recovery is skipped.
func (c *Client) CurrentUser(ctx context.Context) (session.User, error) {
	var out currentUserResponse
	if err := c.doJSON(WithSkipAuthRecovery(ctx), http.MethodGet, pathCurrentUser, nil, &out); err != nil {
		return session.User{}, err
	}
	if out.User.Username == "" {
		return session.User{}, fmt.Errorf("identity probe returned no user")
	}
	return out.User, nil
}

// TodayRecords returns what is already recorded today for category, keyed
// by slot. Slots with no value are absent from the map. Values that are not
// JSON strings are returned in their JSON encoding.
func (c *Client) TodayRecords(ctx context.Context, category string) (map[string]string, error) {
	var raw map[string]any
	path := "/record/" + url.PathEscape(category) + "/today"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for slot, v := range raw {
		switch v := v.(type) {
		case nil:
		case string:
			if v != "" {
				out[slot] = v
			}
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("decoding record %q: %w", slot, err)
			}
			out[slot] = string(b)
		}
	}
	return out, nil
}

// RecordRequest is the body of POST /record/<category>.
type RecordRequest struct {
	Slot  string `json:"slot"`
	Value string `json:"value"`
}

// SubmitRecord creates or overwrites the value for slot in category.
func (c *Client) SubmitRecord(ctx context.Context, category, slot, value string) error {
	path := "/record/" + url.PathEscape(category)
	return c.doJSON(ctx, http.MethodPost, path, RecordRequest{Slot: slot, Value: value}, nil)
}

// Revoker calls the logout endpoint directly, outside the pipeline, so a
// credential the server already rejected cannot trigger expiry recovery
// again while the session is being cleared.
type Revoker struct {
	baseURL    string
	httpClient *http.Client
}

var _ session.Revoker = (*Revoker)(nil)

// NewRevoker creates a Revoker. A nil httpClient uses a 10s-timeout client.
func NewRevoker(baseURL string, httpClient *http.Client) *Revoker {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Revoker{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

func (r *Revoker) Revoke(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+pathLogout, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if !isSuccess(resp.StatusCode) {
		return &StatusError{Method: req.Method, URL: req.URL.String(), StatusCode: resp.StatusCode}
	}
	return nil
}
