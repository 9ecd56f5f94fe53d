package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"guest", RoleGuest, false},
		{" Admin ", RoleAdmin, false},
		{"1", RoleMember, false},
		{"2", RoleAdmin, false},
		{"3", "", true},
		{"owner", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseRole(tt.in)
		if tt.wantErr {
			assert.Errorf(t, err, "ParseRole(%q)", tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestRoleUnmarshalJSON(t *testing.T) {
	var u User
	require.NoError(t, json.Unmarshal([]byte(`{"username":"a","role":0}`), &u))
	assert.Equal(t, RoleGuest, u.Role)

	require.NoError(t, json.Unmarshal([]byte(`{"username":"a","role":"MEMBER"}`), &u))
	assert.Equal(t, RoleMember, u.Role)

	require.NoError(t, json.Unmarshal([]byte(`{"role":"superuser"}`), &u))
	assert.False(t, u.Role.Valid(), "unknown names decode but are invalid")

	assert.Error(t, json.Unmarshal([]byte(`{"role":7}`), &u))
	assert.Error(t, json.Unmarshal([]byte(`{"role":true}`), &u))
}

func TestDefaultAvatarURL(t *testing.T) {
	assert.Equal(t, "https://api.dicebear.com/7.x/avataaars/svg?seed=a+b", DefaultAvatarURL("a b"))
}

func TestSessionCloneIsolation(t *testing.T) {
	p := NewRecordChoice("meal", "lunch", "ramen")
	s := Session{PendingAction: &p}
	c := s.clone()
	c.PendingAction.Payload[PayloadValue] = "udon"
	assert.Equal(t, "ramen", p.Payload[PayloadValue])
}
