package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/layer-3/domainauth/adapters/handshake"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "domainauth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, handshake.DefaultDoHURL, cfg.Resolver.DoHURL)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
server:
  listen_addr: ":8080"
  trust_proxy_headers: true
session:
  ttl: 2h
  cookie_secure: true
store:
  backend: redis
  redis_url: redis://cache:6379/1
resolver:
  mode: dns
  dns_server: 127.0.0.1:53
  default_identity_manager: https://id.example.org
events:
  backend: redis
observability:
  log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	want := Default()
	want.Server.ListenAddr = ":8080"
	want.Server.TrustProxyHeaders = true
	want.Session.TTL = 2 * time.Hour
	want.Session.CookieSecure = true
	want.Store = StoreConfig{Backend: StoreRedis, RedisURL: "redis://cache:6379/1"}
	want.Resolver.Mode = ResolverDNS
	want.Resolver.DNSServer = "127.0.0.1:53"
	want.Resolver.DefaultIdentityManager = "https://id.example.org"
	want.Events.Backend = EventsRedis
	want.Observability.LogLevel = "debug"

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, logrus.DebugLevel, cfg.Observability.Level())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "server:\n  listen_addr: \":8080\"\nsession:\n  ttl: 2h\n")

	t.Setenv("DOMAINAUTH_LISTEN_ADDR", ":9000")
	t.Setenv("DOMAINAUTH_SESSION_TTL", "30m")
	t.Setenv("DOMAINAUTH_COOKIE_SECURE", "1")
	t.Setenv("DOMAINAUTH_RESOLVER_CACHE_SIZE", "16")
	t.Setenv("DOMAINAUTH_METRICS_ENABLED", "false")
	t.Setenv("DOMAINAUTH_VERIFY_TIMEOUT", "not-a-duration")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.ListenAddr)
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL)
	assert.True(t, cfg.Session.CookieSecure)
	assert.Equal(t, 16, cfg.Resolver.CacheSize)
	assert.False(t, cfg.Observability.MetricsEnabled)
	// unparseable values keep the previous setting
	assert.Equal(t, 10*time.Second, cfg.Resolver.VerifyTimeout)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "server: [not, a, map]"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "store:\n  backend: postgres\n"))
	assert.ErrorContains(t, err, "invalid store backend")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty listen address", func(c *Config) { c.Server.ListenAddr = "" }, "listen address"},
		{"zero session TTL", func(c *Config) { c.Session.TTL = 0 }, "session TTL"},
		{"empty cookie name", func(c *Config) { c.Session.CookieName = "" }, "cookie name"},
		{"redis without URL", func(c *Config) { c.Store = StoreConfig{Backend: StoreRedis} }, "redis URL"},
		{"unknown resolver", func(c *Config) { c.Resolver.Mode = "mdns" }, "resolver mode"},
		{"bad DoH URL", func(c *Config) { c.Resolver.DoHURL = "ftp://x" }, "DoH URL"},
		{"dns without server", func(c *Config) { c.Resolver.Mode = ResolverDNS; c.Resolver.DNSServer = "" }, "DNS server"},
		{"negative cache size", func(c *Config) { c.Resolver.CacheSize = -1 }, "cache size"},
		{"zero verify timeout", func(c *Config) { c.Resolver.VerifyTimeout = 0 }, "verify timeout"},
		{"bad default manager", func(c *Config) { c.Resolver.DefaultIdentityManager = "id.example.org" }, "identity manager"},
		{"unknown events backend", func(c *Config) { c.Events.Backend = "kafka" }, "events backend"},
		{"redis events without URL", func(c *Config) { c.Events.Backend = EventsRedis; c.Store.RedisURL = "" }, "redis events"},
		{"bad log level", func(c *Config) { c.Observability.LogLevel = "loud" }, "log level"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("DOMAINAUTH_TEST_BOOL", "TRUE")
	t.Setenv("DOMAINAUTH_TEST_INT", "x")

	assert.True(t, getEnvBool("DOMAINAUTH_TEST_BOOL", false))
	assert.True(t, getEnvBool("DOMAINAUTH_TEST_UNSET", true))
	assert.Equal(t, 7, getEnvInt("DOMAINAUTH_TEST_INT", 7))
	assert.Equal(t, "fallback", getEnv("DOMAINAUTH_TEST_UNSET", "fallback"))
}
