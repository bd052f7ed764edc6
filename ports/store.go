package ports

import (
	"context"

	"github.com/layer-3/domainauth/core"
)

// SessionStore holds per-session login state keyed by session id.
//
// Every mutation is applied before the call returns. Get and TakeChallenge
// return core.ErrSessionNotFound for unknown or expired sessions.
type SessionStore interface {
	// Create starts a new, unauthenticated session
	Create(ctx context.Context) (*core.Session, error)

	// Get resolves a session by id
	Get(ctx context.Context, id string) (*core.Session, error)

	// SetChallenge overwrites the pending challenge and requested domain
	SetChallenge(ctx context.Context, id, challenge, domain string) error

	// TakeChallenge atomically returns and clears the pending challenge
	TakeChallenge(ctx context.Context, id string) (challenge, domain string, err error)

	// Rotate moves the session to a fresh id and invalidates the old one.
	// The returned session carries no challenge and no domain.
	Rotate(ctx context.Context, id string) (*core.Session, error)

	// SetDomain marks the session authenticated
	SetDomain(ctx context.Context, id, domain string) error

	// Destroy removes the session. Destroying an unknown session is not an error.
	Destroy(ctx context.Context, id string) error

	// Ping reports whether the backing storage is reachable
	Ping(ctx context.Context) error
}
