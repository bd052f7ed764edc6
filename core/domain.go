package core

import (
	"strings"

	"github.com/miekg/dns"
)

// NormalizeDomain validates a user supplied domain and returns it trimmed and
// lower-cased, keeping the user's trailing "." or "/" notation.
func NormalizeDomain(domain string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(domain))
	if d == "" {
		return "", ErrInvalidDomain
	}
	for _, r := range strings.TrimRight(d, "/") {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_' || r == '.') {
			return "", ErrInvalidDomain
		}
	}
	name := DNSName(d)
	if name == "." {
		return "", ErrInvalidDomain
	}
	if _, ok := dns.IsDomainName(name); !ok {
		return "", ErrInvalidDomain
	}
	return d, nil
}

// DNSName turns a domain in user notation ("alice", "alice." or "alice/")
// into a fully qualified DNS name.
func DNSName(domain string) string {
	return dns.Fqdn(strings.TrimRight(domain, "/."))
}
