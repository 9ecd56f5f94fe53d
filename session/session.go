// Package session owns the client's authentication state. The Store is the
// only writer of the in-memory Session and of its persisted snapshot.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
)

// ErrInvalidSession is returned when identity fields do not form a
// complete authenticated session.
var ErrInvalidSession = errors.New("invalid session")

// ErrSessionChanged is returned by RefreshUser when the session no longer
// holds the credential the caller validated.
var ErrSessionChanged = errors.New("session changed")

// Role is the user's authorization level.
type Role string

const (
	RoleGuest  Role = "guest"
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// legacyRoles maps the numeric role codes older backends send.
var legacyRoles = []Role{RoleGuest, RoleMember, RoleAdmin}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleGuest, RoleMember, RoleAdmin:
		return true
	}
	return false
}

// ParseRole parses a role name or legacy numeric code.
func ParseRole(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) == 1 && s[0] >= '0' && int(s[0]-'0') < len(legacyRoles) {
		return legacyRoles[s[0]-'0'], nil
	}
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// UnmarshalJSON accepts role names and legacy numeric codes. Unknown names
// decode as-is so callers can reject them with Valid.
func (r *Role) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		*r = Role(strings.ToLower(strings.TrimSpace(name)))
		return nil
	}
	var code int
	if err := json.Unmarshal(b, &code); err != nil {
		return fmt.Errorf("role must be a string or number: %w", err)
	}
	if code < 0 || code >= len(legacyRoles) {
		return fmt.Errorf("unknown role code %d", code)
	}
	*r = legacyRoles[code]
	return nil
}

// ActionKind names the type of a deferred user action.
type ActionKind string

// ActionRecordChoice records a chosen value for a slot in a category,
// e.g. "ramen" for "lunch" in "meal".
const ActionRecordChoice ActionKind = "record-choice"

// Payload keys for ActionRecordChoice.
const (
	PayloadCategory = "category"
	PayloadSlot     = "slot"
	PayloadValue    = "value"
)

// PendingAction is a user operation deferred until authentication completes.
type PendingAction struct {
	Kind    ActionKind        `json:"kind"`
	Payload map[string]string `json:"payload"`
}

// NewRecordChoice builds a record-choice action.
func NewRecordChoice(category, slot, value string) PendingAction {
	return PendingAction{
		Kind: ActionRecordChoice,
		Payload: map[string]string{
			PayloadCategory: category,
			PayloadSlot:     slot,
			PayloadValue:    value,
		},
	}
}

func (p PendingAction) clone() PendingAction {
	p.Payload = maps.Clone(p.Payload)
	return p
}

// Session is the authoritative authentication state.
type Session struct {
	Authenticated bool
	Username      string
	Token         string
	Role          Role
	AvatarURL     string
	PendingAction *PendingAction
}

// identityComplete reports whether the identity fields satisfy the
// authenticated invariant.
func identityComplete(username, token string, role Role) bool {
	return strings.TrimSpace(username) != "" && strings.TrimSpace(token) != "" && role.Valid()
}

func (s Session) clone() Session {
	if s.PendingAction != nil {
		p := s.PendingAction.clone()
		s.PendingAction = &p
	}
	return s
}

// User is the identity reported by the backend.
type User struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
	Avatar   string `json:"avatar,omitempty"`
	Token    string `json:"token,omitempty"`
}

// snapshot is the persisted record. Field names match the format the web
// client stores, so snapshots stay readable across implementations.
type snapshot struct {
	Username   string `json:"username"`
	Avatar     string `json:"avatar"`
	Token      string `json:"token"`
	Role       Role   `json:"role"`
	IsLoggedIn bool   `json:"isLoggedIn"`
}

// DefaultAvatarURL derives the placeholder avatar for a username.
func DefaultAvatarURL(username string) string {
	return "https://api.dicebear.com/7.x/avataaars/svg?seed=" + username
}
