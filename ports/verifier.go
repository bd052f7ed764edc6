package ports

import (
	"context"

	"github.com/layer-3/domainauth/core"
)

// ChallengeGenerator produces login challenges
type ChallengeGenerator interface {
	Generate() (string, error)
}

// IdentityVerifier talks to the naming system and identity managers
type IdentityVerifier interface {
	// BuildAuthorizationURL returns the identity manager URL to redirect the
	// user to. Errors wrap core.ErrResolution or core.ErrInvalidDomain.
	BuildAuthorizationURL(ctx context.Context, req core.AuthRequest) (string, error)

	// ParseResponse extracts the response from a callback URL. Errors wrap
	// core.ErrMalformedResponse.
	ParseResponse(rawURL string) (*core.Response, error)

	// Verify checks the response against the expected challenge. A failed
	// proof returns false with a nil error; an error means the check could
	// not be carried out and wraps core.ErrVerificationUnavailable.
	Verify(ctx context.Context, resp *core.Response, expectedChallenge string) (bool, error)
}
