package stepauth

import (
	"encoding/json"
	"time"
)

// Role is the access level carried by an authenticated identity.
type Role string

const (
	RoleUser        Role = "user"
	RoleAdmin       Role = "admin"
	RoleMasterAdmin Role = "master_admin"
)

// CanAdmin reports whether the role grants entry to the admin surface.
func (r Role) CanAdmin() bool {
	return r == RoleAdmin || r == RoleMasterAdmin
}

// Identity represents an authenticated user as seen by the client.
type Identity struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Name     string         `json:"name,omitempty"`
	Role     Role           `json:"role"`
	Verified bool           `json:"verified"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Session is a point-in-time snapshot of the authenticated-user state.
// AccessToken lives only in process memory and is never persisted;
// Identity and CachedAt may be persisted for instant-render hydration.
type Session struct {
	Identity    *Identity
	AccessToken string
	CachedAt    time.Time
	Loading     bool
}

// Authenticated reports whether the snapshot carries an identity.
func (s Session) Authenticated() bool { return s.Identity != nil }

// AccessDecision is the tri-state network-origin allow-list judgment.
// It is derived transiently per admin-route entry and never persisted.
type AccessDecision int

const (
	DecisionUnknown AccessDecision = iota
	DecisionAllowed
	DecisionBlocked
)

func (d AccessDecision) String() string {
	switch d {
	case DecisionAllowed:
		return "allowed"
	case DecisionBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Challenge is an ephemeral server-issued ceremony challenge. It is
// requested immediately before a ceremony and consumed exactly once;
// the server rejects a stale challenge with a distinct status.
type Challenge struct {
	ID      string          `json:"challengeId"`
	Options json.RawMessage `json:"options"`
}

// CeremonyResult is the server's answer to a verified authentication
// ceremony.
type CeremonyResult struct {
	UserID      string    `json:"_id"`
	AccessToken string    `json:"accessToken"`
	DeviceID    string    `json:"deviceId"`
	Identity    *Identity `json:"user,omitempty"`
}

// EnrollResult is the server's answer to a verified registration ceremony.
type EnrollResult struct {
	DeviceID string `json:"deviceId"`
}

// Device is an enrolled authenticator as reported by the server.
type Device struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	CreatedAt  time.Time `json:"createdAt"`
	LastUsedAt time.Time `json:"lastUsedAt"`
	Current    bool      `json:"current"`
}

// BanInfo is the structured payload attached to a banned-account login.
type BanInfo struct {
	Reason         string `json:"reason"`
	SupportContact string `json:"supportContact"`
	AppealToken    string `json:"appealToken,omitempty"`
}

// LoginInput carries credential-login parameters.
type LoginInput struct {
	Identifier string
	Password   string
}

// RegisterInput carries account-creation parameters.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}
