package handshake

import (
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/domainauth/core"
	"github.com/layer-3/domainauth/ports"
	"github.com/miekg/dns"
)

// Client implements the IdentityVerifier interface against Handshake
// names: identity managers and key fingerprints are published as TXT records
// of the domain being proven.
type Client struct {
	resolver       Resolver
	defaultManager string
}

// Option configures a Client
type Option func(*Client)

// WithDefaultIdentityManager sets the identity manager used for domains
// that do not publish one.
func WithDefaultIdentityManager(url string) Option {
	return func(c *Client) {
		c.defaultManager = url
	}
}

// NewClient creates a new client resolving records through resolver
func NewClient(resolver Resolver, opts ...Option) *Client {
	c := &Client{resolver: resolver}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ ports.IdentityVerifier = (*Client)(nil)

// BuildAuthorizationURL resolves the domain's identity manager and returns
// the login URL for it.
func (c *Client) BuildAuthorizationURL(ctx context.Context, req core.AuthRequest) (string, error) {
	domain, err := core.NormalizeDomain(req.Domain)
	if err != nil {
		return "", err
	}
	if req.Challenge == "" || req.CallbackURL == "" {
		return "", fmt.Errorf("challenge and callback URL are required")
	}

	manager, err := c.identityManager(ctx, domain)
	if err != nil {
		return "", err
	}

	u, err := url.Parse(manager)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return "", fmt.Errorf("%w: invalid identity manager URL %q", core.ErrResolution, manager)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/login"
	u.RawQuery = url.Values{
		"domain":      {domain},
		"challenge":   {req.Challenge},
		"callbackUrl": {req.CallbackURL},
	}.Encode()
	u.Fragment = ""

	return u.String(), nil
}

func (c *Client) identityManager(ctx context.Context, domain string) (string, error) {
	records, err := c.resolver.LookupTXT(ctx, IdentityManagerName(domain))
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrResolution, err)
	}

	for _, txt := range records {
		if fields, ok := parseRecord(txt); ok && fields["url"] != "" {
			return fields["url"], nil
		}
	}

	if c.defaultManager != "" {
		return c.defaultManager, nil
	}
	return "", fmt.Errorf("%w: no identity manager published for %s", core.ErrResolution, domain)
}

// ParseResponse decodes the response carried in the fragment of rawURL
func (c *Client) ParseResponse(rawURL string) (*core.Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedResponse, err)
	}
	if u.Fragment == "" {
		return nil, fmt.Errorf("%w: missing fragment", core.ErrMalformedResponse)
	}

	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(u.Fragment, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedResponse, err)
	}

	var resp core.Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedResponse, err)
	}
	if resp.Domain == "" || resp.PublicKey == "" || resp.Signature == "" {
		return nil, fmt.Errorf("%w: missing required field", core.ErrMalformedResponse)
	}

	resp.Domain, err = core.NormalizeDomain(resp.Domain)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedResponse, err)
	}
	if resp.DeviceID != "" {
		if _, ok := dns.IsDomainName(resp.DeviceID); !ok || strings.Contains(resp.DeviceID, ".") {
			return nil, fmt.Errorf("%w: invalid device id", core.ErrMalformedResponse)
		}
	}

	return &resp, nil
}

// Verify checks that the response was signed over expectedChallenge by a key
// whose fingerprint the claimed domain publishes.
func (c *Client) Verify(ctx context.Context, resp *core.Response, expectedChallenge string) (bool, error) {
	if resp == nil || expectedChallenge == "" {
		return false, nil
	}

	pub, err := parsePublicKey(resp.PublicKey)
	if err != nil {
		return false, nil
	}

	sig, err := decodeHex(resp.Signature)
	if err != nil {
		return false, nil
	}
	if len(sig) == crypto.SignatureLength {
		sig = sig[:crypto.SignatureLength-1] // drop the recovery id
	}
	if len(sig) != crypto.SignatureLength-1 {
		return false, nil
	}

	digest := SigningDigest(resp.Domain, expectedChallenge)
	if !crypto.VerifySignature(crypto.CompressPubkey(pub), digest, sig) {
		return false, nil
	}

	records, err := c.resolver.LookupTXT(ctx, AuthName(resp.Domain, resp.DeviceID))
	if err != nil {
		return false, fmt.Errorf("%w: %v", core.ErrVerificationUnavailable, err)
	}

	fingerprint := Fingerprint(pub)
	for _, txt := range records {
		if fields, ok := parseRecord(txt); ok && strings.EqualFold(fields["fingerprint"], fingerprint) {
			return true, nil
		}
	}

	return false, nil
}

func parsePublicKey(s string) (*ecdsa.PublicKey, error) {
	raw, err := decodeHex(s)
	if err != nil {
		return nil, err
	}

	switch len(raw) {
	case 33:
		return crypto.DecompressPubkey(raw)
	case 65:
		return crypto.UnmarshalPubkey(raw)
	default:
		return nil, fmt.Errorf("unexpected public key length %d", len(raw))
	}
}

func decodeHex(s string) ([]byte, error) {
	return hexutil.Decode("0x" + strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
}
