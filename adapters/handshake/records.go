package handshake

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/domainauth/core"
)

const (
	recordVersion = "0"

	identityManagerLabel = "_idmanager"
	authLabel            = "_auth"

	signingPrefix = "domainauth:v0\n"
)

// IdentityManagerName is the name holding the identity manager record of domain
func IdentityManagerName(domain string) string {
	return identityManagerLabel + "." + core.DNSName(domain)
}

// AuthName is the name holding the key fingerprints of domain, optionally
// scoped to one device.
func AuthName(domain, deviceID string) string {
	name := authLabel + "." + core.DNSName(domain)
	if deviceID != "" {
		name = deviceID + "." + name
	}
	return name
}

// IdentityManagerRecord formats the TXT value pointing at an identity manager
func IdentityManagerRecord(url string) string {
	return "v=" + recordVersion + ";url=" + url
}

// FingerprintRecord formats the TXT value publishing a key fingerprint
func FingerprintRecord(fingerprint string) string {
	return "v=" + recordVersion + ";fingerprint=" + fingerprint
}

// Fingerprint is the hex sha256 of the compressed public key
func Fingerprint(pub *ecdsa.PublicKey) string {
	sum := sha256.Sum256(crypto.CompressPubkey(pub))
	return hex.EncodeToString(sum[:])
}

// SigningDigest is the hash the identity manager signs. It binds the
// challenge to the domain being proven.
func SigningDigest(domain, challenge string) []byte {
	sum := sha256.Sum256([]byte(signingPrefix + domain + "\n" + challenge))
	return sum[:]
}

// parseRecord splits "v=0;key=value;..." into its fields. Records with
// another version are ignored.
func parseRecord(txt string) (map[string]string, bool) {
	fields := make(map[string]string)
	for _, part := range strings.Split(txt, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		fields[strings.ToLower(k)] = v
	}
	if fields["v"] != recordVersion {
		return nil, false
	}
	return fields, true
}
