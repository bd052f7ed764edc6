package core

import "errors"

var (
	ErrSessionNotFound         = errors.New("session not found")
	ErrStoreOperationFailed    = errors.New("store operation failed")
	ErrInvalidToken            = errors.New("invalid token")
	ErrInvalidDomain           = errors.New("invalid domain")
	ErrResolution              = errors.New("naming system resolution failed")
	ErrMalformedResponse       = errors.New("malformed identity manager response")
	ErrVerificationUnavailable = errors.New("verification unavailable")
)
