// Package config loads the service configuration from an optional YAML file
// and DOMAINAUTH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/layer-3/domainauth/adapters/handshake"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Store backends
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Resolver modes
const (
	ResolverDoH = "doh"
	ResolverDNS = "dns"
)

// Event backends
const (
	EventsNone   = "none"
	EventsMemory = "memory"
	EventsRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Session       SessionConfig       `yaml:"session"`
	Store         StoreConfig         `yaml:"store"`
	Resolver      ResolverConfig      `yaml:"resolver"`
	Events        EventsConfig        `yaml:"events"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Use X-Forwarded-Proto/Host to build the callback URL
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`
}

// SessionConfig holds session and cookie settings
type SessionConfig struct {
	TTL          time.Duration `yaml:"ttl"`
	CookieName   string        `yaml:"cookie_name"`
	CookieSecure bool          `yaml:"cookie_secure"`

	// PEM encoded P-256 key signing the session cookie. An ephemeral key is
	// generated when empty, which logs everyone out on restart.
	SigningKeyPath string `yaml:"signing_key_path"`
}

// StoreConfig selects the session store
type StoreConfig struct {
	Backend  string `yaml:"backend"`
	RedisURL string `yaml:"redis_url"`
}

// ResolverConfig configures naming system lookups
type ResolverConfig struct {
	Mode      string        `yaml:"mode"`
	DoHURL    string        `yaml:"doh_url"`
	DNSServer string        `yaml:"dns_server"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
	CacheSize int           `yaml:"cache_size"`

	// Used for domains that publish no identity manager record
	DefaultIdentityManager string `yaml:"default_identity_manager"`

	VerifyTimeout time.Duration `yaml:"verify_timeout"`
}

// EventsConfig selects where login events go
type EventsConfig struct {
	Backend string `yaml:"backend"`
}

// ObservabilityConfig holds logging and metrics settings
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	LogJSON        bool   `yaml:"log_json"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":3000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Session: SessionConfig{
			TTL:        24 * time.Hour,
			CookieName: "domainauth_session",
		},
		Store: StoreConfig{
			Backend:  StoreMemory,
			RedisURL: "redis://localhost:6379/0",
		},
		Resolver: ResolverConfig{
			Mode:          ResolverDoH,
			DoHURL:        handshake.DefaultDoHURL,
			DNSServer:     "127.0.0.1:5350",
			CacheTTL:      time.Minute,
			CacheSize:     1024,
			VerifyTimeout: 10 * time.Second,
		},
		Events: EventsConfig{
			Backend: EventsNone,
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			MetricsEnabled: true,
		},
	}
}

// Load reads the YAML file at path, when given, then applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.ListenAddr = getEnv("DOMAINAUTH_LISTEN_ADDR", c.Server.ListenAddr)
	c.Server.ReadTimeout = getEnvDuration("DOMAINAUTH_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("DOMAINAUTH_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("DOMAINAUTH_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.TrustProxyHeaders = getEnvBool("DOMAINAUTH_TRUST_PROXY_HEADERS", c.Server.TrustProxyHeaders)

	c.Session.TTL = getEnvDuration("DOMAINAUTH_SESSION_TTL", c.Session.TTL)
	c.Session.CookieName = getEnv("DOMAINAUTH_COOKIE_NAME", c.Session.CookieName)
	c.Session.CookieSecure = getEnvBool("DOMAINAUTH_COOKIE_SECURE", c.Session.CookieSecure)
	c.Session.SigningKeyPath = getEnv("DOMAINAUTH_SIGNING_KEY", c.Session.SigningKeyPath)

	c.Store.Backend = getEnv("DOMAINAUTH_STORE", c.Store.Backend)
	c.Store.RedisURL = getEnv("DOMAINAUTH_REDIS_URL", c.Store.RedisURL)

	c.Resolver.Mode = getEnv("DOMAINAUTH_RESOLVER", c.Resolver.Mode)
	c.Resolver.DoHURL = getEnv("DOMAINAUTH_DOH_URL", c.Resolver.DoHURL)
	c.Resolver.DNSServer = getEnv("DOMAINAUTH_DNS_SERVER", c.Resolver.DNSServer)
	c.Resolver.CacheTTL = getEnvDuration("DOMAINAUTH_RESOLVER_CACHE_TTL", c.Resolver.CacheTTL)
	c.Resolver.CacheSize = getEnvInt("DOMAINAUTH_RESOLVER_CACHE_SIZE", c.Resolver.CacheSize)
	c.Resolver.DefaultIdentityManager = getEnv("DOMAINAUTH_DEFAULT_IDENTITY_MANAGER", c.Resolver.DefaultIdentityManager)
	c.Resolver.VerifyTimeout = getEnvDuration("DOMAINAUTH_VERIFY_TIMEOUT", c.Resolver.VerifyTimeout)

	c.Events.Backend = getEnv("DOMAINAUTH_EVENTS", c.Events.Backend)

	c.Observability.LogLevel = getEnv("DOMAINAUTH_LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.LogJSON = getEnvBool("DOMAINAUTH_LOG_JSON", c.Observability.LogJSON)
	c.Observability.MetricsEnabled = getEnvBool("DOMAINAUTH_METRICS_ENABLED", c.Observability.MetricsEnabled)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return errors.New("listen address is required")
	}
	if c.Session.TTL <= 0 {
		return errors.New("session TTL must be positive")
	}
	if c.Session.CookieName == "" {
		return errors.New("cookie name is required")
	}

	switch c.Store.Backend {
	case StoreMemory:
	case StoreRedis:
		if c.Store.RedisURL == "" {
			return errors.New("redis URL is required for redis store")
		}
	default:
		return fmt.Errorf("invalid store backend: %s (must be memory or redis)", c.Store.Backend)
	}

	switch c.Resolver.Mode {
	case ResolverDoH:
		u, err := url.Parse(c.Resolver.DoHURL)
		if err != nil || u.Scheme != "https" && u.Scheme != "http" || u.Host == "" {
			return fmt.Errorf("invalid DoH URL: %q", c.Resolver.DoHURL)
		}
	case ResolverDNS:
		if c.Resolver.DNSServer == "" {
			return errors.New("DNS server is required for dns resolver")
		}
	default:
		return fmt.Errorf("invalid resolver mode: %s (must be doh or dns)", c.Resolver.Mode)
	}
	if c.Resolver.CacheSize < 0 {
		return errors.New("resolver cache size must not be negative")
	}
	if c.Resolver.VerifyTimeout <= 0 {
		return errors.New("verify timeout must be positive")
	}
	if m := c.Resolver.DefaultIdentityManager; m != "" {
		if u, err := url.Parse(m); err != nil || u.Scheme != "https" && u.Scheme != "http" || u.Host == "" {
			return fmt.Errorf("invalid default identity manager: %q", m)
		}
	}

	switch c.Events.Backend {
	case EventsNone, EventsMemory:
	case EventsRedis:
		if c.Store.RedisURL == "" {
			return errors.New("redis URL is required for redis events")
		}
	default:
		return fmt.Errorf("invalid events backend: %s (must be none, memory or redis)", c.Events.Backend)
	}

	if _, err := logrus.ParseLevel(c.Observability.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	return nil
}

// Level returns the parsed log level, info when unparseable
func (o ObservabilityConfig) Level() logrus.Level {
	level, err := logrus.ParseLevel(o.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
