package nonce

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/layer-3/domainauth/ports"
)

// ChallengeSize is the number of random bytes in a challenge
const ChallengeSize = 16

// Generator produces base64url encoded random challenges
type Generator struct {
	random io.Reader
	size   int
}

// NewGenerator creates a generator backed by crypto/rand
func NewGenerator() ports.ChallengeGenerator {
	return &Generator{random: rand.Reader, size: ChallengeSize}
}

// Generate returns a fresh challenge
func (g *Generator) Generate() (string, error) {
	buf := make([]byte, g.size)
	if _, err := io.ReadFull(g.random, buf); err != nil {
		return "", fmt.Errorf("failed to generate challenge: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
