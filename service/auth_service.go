package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/domainauth/core"
	"github.com/layer-3/domainauth/metrics"
	"github.com/layer-3/domainauth/ports"
	"github.com/sirupsen/logrus"
)

// DefaultVerifyTimeout bounds every call into the identity verifier
const DefaultVerifyTimeout = 10 * time.Second

// AuthService runs the domain login flow: it issues challenges, sends users
// to their identity manager and binds verified domains to sessions.
type AuthService struct {
	store      ports.SessionStore
	verifier   ports.IdentityVerifier
	challenges ports.ChallengeGenerator
	eventPub   ports.EventPublisher

	metrics       *metrics.Metrics
	logger        logrus.FieldLogger
	verifyTimeout time.Duration
}

// Option configures an AuthService
type Option func(*AuthService)

// WithMetrics records flow outcomes on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *AuthService) { s.metrics = m }
}

// WithLogger sets the logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *AuthService) { s.logger = logger }
}

// WithVerifyTimeout bounds calls into the identity verifier
func WithVerifyTimeout(d time.Duration) Option {
	return func(s *AuthService) { s.verifyTimeout = d }
}

// NewAuthService creates a new authentication service
func NewAuthService(
	store ports.SessionStore,
	verifier ports.IdentityVerifier,
	challenges ports.ChallengeGenerator,
	eventPub ports.EventPublisher,
	opts ...Option,
) *AuthService {
	s := &AuthService{
		store:         store,
		verifier:      verifier,
		challenges:    challenges,
		eventPub:      eventPub,
		logger:        logrus.StandardLogger(),
		verifyTimeout: DefaultVerifyTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoginStart is the result of starting a login
type LoginStart struct {
	RedirectURL string // Identity manager URL to send the browser to
	SessionID   string // Session holding the challenge, possibly newly created
}

// LoginResult is the result of completing a login
type LoginResult struct {
	Authenticated bool
	Session       *core.Session // Rotated session, set when Authenticated
}

// CurrentSession returns the live session for id, or nil. Storage failures
// are logged and reported as no session.
func (s *AuthService) CurrentSession(ctx context.Context, id string) *core.Session {
	if id == "" {
		return nil
	}

	session, err := s.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, core.ErrSessionNotFound) {
			s.logger.WithError(err).WithField("session", shortID(id)).Error("Failed to load session")
		}
		return nil
	}
	return session
}

// BeginLogin issues a fresh challenge for domain and returns the identity
// manager URL to redirect to. The session is only touched once the URL has
// been built, so a failed attempt leaves it as it was.
func (s *AuthService) BeginLogin(ctx context.Context, sessionID, domain, callbackURL string) (*LoginStart, error) {
	domain, err := core.NormalizeDomain(domain)
	if err != nil {
		s.metrics.LoginAttempt(metrics.LoginInvalidDomain)
		return nil, err
	}
	log := s.logger.WithField("domain", domain)

	challenge, err := s.challenges.Generate()
	if err != nil {
		s.metrics.LoginAttempt(metrics.LoginError)
		return nil, err
	}
	log.WithField("challenge", challenge).Debug("Generated challenge")

	verifyCtx, cancel := context.WithTimeout(ctx, s.verifyTimeout)
	defer cancel()

	redirectURL, err := s.verifier.BuildAuthorizationURL(verifyCtx, core.AuthRequest{
		Domain:      domain,
		Challenge:   challenge,
		CallbackURL: callbackURL,
	})
	if err != nil {
		s.metrics.LoginAttempt(metrics.LoginError)
		return nil, fmt.Errorf("failed to build authorization URL: %w", err)
	}

	sessionID, err = s.storeChallenge(ctx, sessionID, challenge, domain)
	if err != nil {
		s.metrics.LoginAttempt(metrics.LoginError)
		return nil, err
	}

	s.metrics.LoginAttempt(metrics.LoginRedirected)
	log.WithField("session", shortID(sessionID)).Info("Redirecting to identity manager")

	return &LoginStart{RedirectURL: redirectURL, SessionID: sessionID}, nil
}

// storeChallenge records the challenge on the session, creating one when
// the caller has none or it has expired.
func (s *AuthService) storeChallenge(ctx context.Context, sessionID, challenge, domain string) (string, error) {
	if sessionID != "" {
		err := s.store.SetChallenge(ctx, sessionID, challenge, domain)
		if err == nil {
			return sessionID, nil
		}
		if !errors.Is(err, core.ErrSessionNotFound) {
			return "", fmt.Errorf("failed to store challenge: %w", err)
		}
	}

	session, err := s.store.Create(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	if err := s.store.SetChallenge(ctx, session.ID, challenge, domain); err != nil {
		return "", fmt.Errorf("failed to store challenge: %w", err)
	}
	return session.ID, nil
}

// CompleteLogin checks the identity manager response in responseURL against
// the challenge stored on the session.
//
// A response that fails to prove ownership is not an error: the result is
// simply not authenticated. Errors are returned for malformed responses
// (wrapping core.ErrMalformedResponse), for a verifier that could not run
// (wrapping core.ErrVerificationUnavailable) and for storage failures after
// a successful proof.
func (s *AuthService) CompleteLogin(ctx context.Context, sessionID, responseURL string) (*LoginResult, error) {
	resp, err := s.verifier.ParseResponse(responseURL)
	if err != nil {
		s.metrics.Verification(metrics.VerificationError, 0)
		return nil, err
	}
	log := s.logger.WithFields(logrus.Fields{"domain": resp.Domain, "session": shortID(sessionID)})

	rejected := &LoginResult{}

	if sessionID == "" {
		log.Info("Rejecting response without a session")
		s.metrics.Verification(metrics.VerificationRejected, 0)
		return rejected, nil
	}

	// The challenge is consumed whatever the outcome
	challenge, pendingDomain, err := s.store.TakeChallenge(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, core.ErrSessionNotFound) {
			log.WithError(err).Error("Failed to load challenge")
		}
		s.metrics.Verification(metrics.VerificationRejected, 0)
		return rejected, nil
	}
	if challenge == "" {
		log.Info("Rejecting response: no pending challenge")
		s.metrics.Verification(metrics.VerificationRejected, 0)
		return rejected, nil
	}
	if resp.Domain != pendingDomain {
		log.WithField("requested", pendingDomain).Warn("Rejecting response for a different domain")
		s.metrics.Verification(metrics.VerificationRejected, 0)
		return rejected, nil
	}

	start := time.Now()
	verifyCtx, cancel := context.WithTimeout(ctx, s.verifyTimeout)
	defer cancel()

	verified, err := s.verifier.Verify(verifyCtx, resp, challenge)
	if err != nil {
		s.metrics.Verification(metrics.VerificationError, time.Since(start))
		if !errors.Is(err, core.ErrVerificationUnavailable) {
			err = fmt.Errorf("%w: %v", core.ErrVerificationUnavailable, err)
		}
		return nil, err
	}
	if !verified {
		log.Info("Verification failed")
		s.metrics.Verification(metrics.VerificationRejected, time.Since(start))
		return rejected, nil
	}
	s.metrics.Verification(metrics.VerificationVerified, time.Since(start))

	session, err := s.store.Rotate(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to rotate session: %w", err)
	}
	if err := s.store.SetDomain(ctx, session.ID, resp.Domain); err != nil {
		return nil, fmt.Errorf("failed to bind domain: %w", err)
	}
	session.Domain = resp.Domain

	log.WithField("new_session", shortID(session.ID)).Info("Logged in")

	if err := s.eventPub.PublishLogin(ctx, session.Domain, session.ID); err != nil {
		// The session is already bound, which is the critical part
		log.WithError(err).Warn("Failed to publish login event")
	}

	return &LoginResult{Authenticated: true, Session: session}, nil
}

// Logout destroys the session. Logging out without a session, or twice,
// is not an error.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	s.metrics.Logout()
	if sessionID == "" {
		return nil
	}

	session := s.CurrentSession(ctx, sessionID)

	if err := s.store.Destroy(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}

	if session.Authenticated() {
		s.logger.WithFields(logrus.Fields{"domain": session.Domain, "session": shortID(sessionID)}).Info("Logged out")
		if err := s.eventPub.PublishLogout(ctx, session.Domain, sessionID); err != nil {
			s.logger.WithError(err).Warn("Failed to publish logout event")
		}
	}

	return nil
}

// Ping reports whether the session store is reachable
func (s *AuthService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// shortID keeps session ids out of logs while still allowing correlation
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
