package tokenizer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims are the claims carried by the session cookie.
// The JWT ID is the server-side session id.
type SessionClaims struct {
	jwt.RegisteredClaims
}
