package tokenizer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/domainauth/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func TestSessionTokenRoundTrip(t *testing.T) {
	tok := NewJWTTokenizer(newKey(t), time.Hour)

	token, err := tok.SessionToToken("session-1")
	require.NoError(t, err)

	id, err := tok.TokenToSession(token)
	require.NoError(t, err)
	assert.Equal(t, "session-1", id)
}

func TestSessionTokenWrongKey(t *testing.T) {
	token, err := NewJWTTokenizer(newKey(t), time.Hour).SessionToToken("session-1")
	require.NoError(t, err)

	_, err = NewJWTTokenizer(newKey(t), time.Hour).TokenToSession(token)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestSessionTokenExpired(t *testing.T) {
	now := time.Now()
	tok := &JWTTokenizer{signKey: newKey(t), ttl: time.Minute, now: func() time.Time { return now }}

	token, err := tok.SessionToToken("session-1")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = tok.TokenToSession(token)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestSessionTokenRejectsGarbageAndOtherAudience(t *testing.T) {
	key := newKey(t)
	tok := NewJWTTokenizer(key, time.Hour)

	for _, bad := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := tok.TokenToSession(bad)
		assert.ErrorIs(t, err, core.ErrInvalidToken, bad)
	}

	other := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.RegisteredClaims{
		ID:        "session-1",
		Audience:  jwt.ClaimStrings{"session:access"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := other.SignedString(key)
	require.NoError(t, err)

	_, err = tok.TokenToSession(signed)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestSessionTokenRejectsHMAC(t *testing.T) {
	tok := NewJWTTokenizer(newKey(t), time.Hour)

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       "session-1",
			Audience: jwt.ClaimStrings{AudienceSession},
		},
	})
	signed, err := forged.SignedString([]byte("guess"))
	require.NoError(t, err)

	_, err = tok.TokenToSession(signed)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}
