package handshake

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/miekg/dns"
	"golang.org/x/sync/singleflight"
)

// DefaultDoHURL is the public DNS-over-HTTPS endpoint that resolves
// Handshake names.
const DefaultDoHURL = "https://easyhandshake.com:8053/dns-query"

const dnsMessageType = "application/dns-message"

// Resolver looks up TXT records in the naming system.
//
// A name without records (NXDOMAIN or an empty answer) yields an empty slice
// and no error; errors are reserved for lookups that could not be completed.
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// DoHResolver resolves names with DNS-over-HTTPS (RFC 8484)
type DoHResolver struct {
	url    string
	client *http.Client
}

// NewDoHResolver creates a resolver posting queries to url
func NewDoHResolver(url string, client *http.Client) *DoHResolver {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &DoHResolver{url: url, client: client}
}

// LookupTXT queries TXT records for name
func (r *DoHResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	query := newTXTQuery(name)
	// RFC 8484 recommends id 0 for cache friendliness
	query.Id = 0

	packed, err := query.Pack()
	if err != nil {
		return nil, fmt.Errorf("failed to pack query for %s: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(packed))
	if err != nil {
		return nil, fmt.Errorf("failed to build DoH request: %w", err)
	}
	req.Header.Set("Content-Type", dnsMessageType)
	req.Header.Set("Accept", dnsMessageType)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("DoH request for %s failed: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("DoH request for %s failed: status %d", name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, dns.MaxMsgSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read DoH response: %w", err)
	}

	answer := new(dns.Msg)
	if err := answer.Unpack(body); err != nil {
		return nil, fmt.Errorf("failed to unpack DoH response: %w", err)
	}

	return txtAnswers(name, answer)
}

// DNSResolver queries a DNS server directly, for instance a local hnsd
type DNSResolver struct {
	server string
	client *dns.Client
}

// NewDNSResolver creates a resolver sending queries to server (host:port)
func NewDNSResolver(server string) *DNSResolver {
	return &DNSResolver{
		server: server,
		client: &dns.Client{Timeout: 5 * time.Second},
	}
}

// LookupTXT queries TXT records for name, retrying over TCP on truncation
func (r *DNSResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	query := newTXTQuery(name)

	answer, _, err := r.client.ExchangeContext(ctx, query, r.server)
	if err != nil {
		return nil, fmt.Errorf("DNS query for %s failed: %w", name, err)
	}
	if answer.Truncated {
		tcp := &dns.Client{Net: "tcp", Timeout: r.client.Timeout}
		answer, _, err = tcp.ExchangeContext(ctx, query, r.server)
		if err != nil {
			return nil, fmt.Errorf("DNS query for %s over TCP failed: %w", name, err)
		}
	}

	return txtAnswers(name, answer)
}

// DefaultLookupTimeout bounds a shared lookup in CachingResolver
const DefaultLookupTimeout = 10 * time.Second

// CachingResolver remembers lookups for a while and collapses concurrent
// lookups of the same name into one.
type CachingResolver struct {
	next    Resolver
	cache   *expirable.LRU[string, []string]
	group   singleflight.Group
	timeout time.Duration
}

// NewCachingResolver wraps next with a cache of size entries kept for ttl
func NewCachingResolver(next Resolver, size int, ttl time.Duration) *CachingResolver {
	return &CachingResolver{
		next:    next,
		cache:   expirable.NewLRU[string, []string](size, nil, ttl),
		timeout: DefaultLookupTimeout,
	}
}

// LookupTXT returns cached records or resolves them through the wrapped resolver.
// Failed lookups are not cached.
//
// A shared lookup outlives the caller that started it, so cancelling one
// request never fails the others waiting on the same name.
func (r *CachingResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	name = dns.CanonicalName(name)
	if records, ok := r.cache.Get(name); ok {
		return records, nil
	}

	ch := r.group.DoChan(name, func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		records, err := r.next.LookupTXT(lookupCtx, name)
		if err != nil {
			return nil, err
		}
		r.cache.Add(name, records)
		return records, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]string), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func newTXTQuery(name string) *dns.Msg {
	query := new(dns.Msg)
	query.SetQuestion(dns.Fqdn(name), dns.TypeTXT)
	query.RecursionDesired = true
	query.SetEdns0(4096, false)
	return query
}

func txtAnswers(name string, answer *dns.Msg) ([]string, error) {
	switch answer.Rcode {
	case dns.RcodeSuccess, dns.RcodeNameError:
	default:
		return nil, fmt.Errorf("DNS query for %s failed: %s", name, dns.RcodeToString[answer.Rcode])
	}

	var records []string
	for _, rr := range answer.Answer {
		if txt, ok := rr.(*dns.TXT); ok {
			records = append(records, strings.Join(txt.Txt, ""))
		}
	}
	return records, nil
}
