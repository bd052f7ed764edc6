package core

import "time"

// Session is the server-side state behind a session cookie
type Session struct {
	ID string // Opaque session identifier

	// Challenge is the nonce issued by the most recent login attempt. It is
	// empty once consumed by a verification attempt.
	Challenge string

	// PendingDomain is the domain the most recent login attempt was started for
	PendingDomain string

	// Domain is the authenticated domain; empty means not logged in
	Domain string

	CreatedAt time.Time // When the session was created
	ExpiresAt time.Time // When the session expires
}

// Authenticated reports whether a domain has been bound to the session
func (s *Session) Authenticated() bool {
	return s != nil && s.Domain != ""
}

// Expired reports whether the session is past its expiry
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// AuthRequest describes an authorization request sent to an identity manager
type AuthRequest struct {
	Domain      string // Domain the user claims to own
	Challenge   string // Nonce the identity manager must sign
	CallbackURL string // Where the identity manager sends the browser back
}

// Response is the identity manager's answer, parsed from the callback fragment
type Response struct {
	Domain    string `json:"domain"`
	DeviceID  string `json:"deviceId,omitempty"`
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
}
