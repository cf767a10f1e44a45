package auth

// Package auth contains domain-level types for Shibboleth-backed sessions.
// It is pure and free of framework/adapter concerns.

import "time"

// Session is the server-side record kept for each browser session.
// ID is an opaque session identifier (random URL-safe string).
//
// Username is empty for anonymous sessions. Attributes holds the parsed
// attribute set from the most recent authentication attempt, keyed by
// canonical field name. LogoutSuppressed blocks re-authentication after an
// explicit logout while the SP agent is still injecting identity headers;
// it stays set until the user explicitly starts a new login.
type Session struct {
	ID               string            `json:"id"`
	Username         string            `json:"username"`
	Attributes       map[string]string `json:"attributes,omitempty"`
	LogoutSuppressed bool              `json:"logout_suppressed,omitempty"`
	ExpiresAt        time.Time         `json:"expires_at"`
}

// IsAuthenticated reports whether the session carries an identity.
func (s *Session) IsAuthenticated() bool { return s != nil && s.Username != "" }

// ClearIdentity detaches the identity from the session without destroying
// the session itself.
func (s *Session) ClearIdentity() {
	s.Username = ""
	s.Attributes = nil
}
