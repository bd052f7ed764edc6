package nonce

import (
	"encoding/base64"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateEncoding(t *testing.T) {
	challenge, err := NewGenerator().Generate()
	require.NoError(t, err)

	assert.Len(t, challenge, 22)
	assert.NotContains(t, challenge, "=")
	assert.NotContains(t, challenge, "+")
	assert.NotContains(t, challenge, "/")

	raw, err := base64.RawURLEncoding.DecodeString(challenge)
	require.NoError(t, err)
	assert.Len(t, raw, ChallengeSize)
}

func TestGenerateUnique(t *testing.T) {
	gen := NewGenerator()

	var (
		mu   sync.Mutex
		seen = make(map[string]struct{})
		wg   sync.WaitGroup
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 250; j++ {
				c, err := gen.Generate()
				assert.NoError(t, err)
				mu.Lock()
				seen[c] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 16*250)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("no entropy") }

func TestGenerateEntropyFailure(t *testing.T) {
	gen := &Generator{random: failingReader{}, size: ChallengeSize}
	_, err := gen.Generate()
	assert.Error(t, err)
}
