// Package handshaketest provides an in-process identity manager and a
// static resolver for exercising the login flow without a naming system.
package handshaketest

import (
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/json"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/domainauth/adapters/handshake"
	"github.com/layer-3/domainauth/core"
	"github.com/miekg/dns"
)

// StaticResolver serves TXT records from memory
type StaticResolver struct {
	mu      sync.Mutex
	records map[string][]string
	err     error
	lookups int
}

// NewStaticResolver returns an empty resolver
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{records: make(map[string][]string)}
}

// Set replaces the records of name
func (r *StaticResolver) Set(name string, records ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[dns.CanonicalName(name)] = records
}

// Fail makes every lookup return err until called again with nil
func (r *StaticResolver) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Lookups returns how many lookups were served
func (r *StaticResolver) Lookups() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookups
}

// LookupTXT implements handshake.Resolver
func (r *StaticResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lookups++
	if r.err != nil {
		return nil, r.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.records[dns.CanonicalName(name)], nil
}

// IdentityManager holds a domain key and signs login responses with it
type IdentityManager struct {
	URL      string
	Key      *ecdsa.PrivateKey
	DeviceID string
}

// NewIdentityManager creates an identity manager reachable at url with a fresh key
func NewIdentityManager(url string) (*IdentityManager, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &IdentityManager{URL: url, Key: key}, nil
}

// Publish writes the records that make this identity manager authoritative
// for domain.
func (m *IdentityManager) Publish(r *StaticResolver, domain string) {
	r.Set(handshake.IdentityManagerName(domain), handshake.IdentityManagerRecord(m.URL))
	r.Set(handshake.AuthName(domain, m.DeviceID), handshake.FingerprintRecord(handshake.Fingerprint(&m.Key.PublicKey)))
}

// Response signs challenge for domain
func (m *IdentityManager) Response(domain, challenge string) core.Response {
	sig, err := crypto.Sign(handshake.SigningDigest(domain, challenge), m.Key)
	if err != nil {
		panic("handshaketest: signing failed: " + err.Error())
	}
	return core.Response{
		Domain:    domain,
		DeviceID:  m.DeviceID,
		PublicKey: hexutil.Encode(crypto.CompressPubkey(&m.Key.PublicKey)),
		Signature: hexutil.Encode(sig),
	}
}

// Payload signs challenge for domain and encodes it the way it travels in
// the callback fragment.
func (m *IdentityManager) Payload(domain, challenge string) string {
	return Encode(m.Response(domain, challenge))
}

// Encode encodes a response as a callback fragment
func Encode(resp core.Response) string {
	raw, err := json.Marshal(resp)
	if err != nil {
		panic("handshaketest: marshal failed: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}
