package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/domainauth/adapters/events"
	"github.com/layer-3/domainauth/adapters/handshake"
	"github.com/layer-3/domainauth/adapters/nonce"
	"github.com/layer-3/domainauth/adapters/store"
	"github.com/layer-3/domainauth/adapters/tokenizer"
	"github.com/layer-3/domainauth/config"
	"github.com/layer-3/domainauth/metrics"
	"github.com/layer-3/domainauth/ports"
	"github.com/layer-3/domainauth/service"
	transport "github.com/layer-3/domainauth/transport/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var configPath = flag.String("config", os.Getenv("DOMAINAUTH_CONFIG"), "Path to a YAML config file")

func main() {
	flag.Parse()

	logger := logrus.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	logger.SetLevel(cfg.Observability.Level())
	if cfg.Observability.LogJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	signKey, err := loadSigningKey(cfg.Session.SigningKeyPath)
	if err != nil {
		return err
	}
	if cfg.Session.SigningKeyPath == "" {
		logger.Warn("No signing key configured, sessions will not survive a restart")
	}

	var redisClient *redis.Client
	if cfg.Store.Backend == config.StoreRedis || cfg.Events.Backend == config.EventsRedis {
		opts, err := redis.ParseURL(cfg.Store.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	var sessions ports.SessionStore
	switch cfg.Store.Backend {
	case config.StoreRedis:
		sessions = store.NewRedisStore(redisClient, cfg.Session.TTL)
	default:
		sessions = store.NewMemoryStore(cfg.Session.TTL)
	}

	eventPub, closeEvents, err := newEventPublisher(ctx, cfg, redisClient, logger)
	if err != nil {
		return err
	}
	defer closeEvents()

	var m *metrics.Metrics
	if cfg.Observability.MetricsEnabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.NewMetrics(registry)
	}

	var clientOpts []handshake.Option
	if cfg.Resolver.DefaultIdentityManager != "" {
		clientOpts = append(clientOpts, handshake.WithDefaultIdentityManager(cfg.Resolver.DefaultIdentityManager))
	}
	verifier := handshake.NewClient(newResolver(cfg), clientOpts...)

	authService := service.NewAuthService(sessions, verifier, nonce.NewGenerator(), eventPub,
		service.WithLogger(logger),
		service.WithMetrics(m),
		service.WithVerifyTimeout(cfg.Resolver.VerifyTimeout),
	)

	gin.SetMode(gin.ReleaseMode)
	router := transport.SetupRouter(authService, tokenizer.NewJWTTokenizer(signKey, cfg.Session.TTL), transport.RouterConfig{
		CookieName:        cfg.Session.CookieName,
		CookieSecure:      cfg.Session.CookieSecure,
		SessionTTL:        cfg.Session.TTL,
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
		Logger:            logger,
		Metrics:           m,
	})

	server := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":     cfg.Server.ListenAddr,
			"store":    cfg.Store.Backend,
			"resolver": cfg.Resolver.Mode,
		}).Info("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}

// loadSigningKey reads a PEM encoded P-256 key, or generates one when path
// is empty.
func loadSigningKey(path string) (*ecdsa.PrivateKey, error) {
	if path == "" {
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}
	key, err := jwt.ParseECPrivateKeyFromPEM(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}
	if key.Curve != elliptic.P256() {
		return nil, errors.New("signing key must be on the P-256 curve")
	}
	return key, nil
}

func newResolver(cfg *config.Config) handshake.Resolver {
	var resolver handshake.Resolver
	switch cfg.Resolver.Mode {
	case config.ResolverDNS:
		resolver = handshake.NewDNSResolver(cfg.Resolver.DNSServer)
	default:
		resolver = handshake.NewDoHResolver(cfg.Resolver.DoHURL, &http.Client{Timeout: cfg.Resolver.VerifyTimeout})
	}

	if cfg.Resolver.CacheSize > 0 {
		resolver = handshake.NewCachingResolver(resolver, cfg.Resolver.CacheSize, cfg.Resolver.CacheTTL)
	}
	return resolver
}

// newEventPublisher returns the configured publisher and a func releasing it
func newEventPublisher(ctx context.Context, cfg *config.Config, redisClient *redis.Client, logger logrus.FieldLogger) (ports.EventPublisher, func(), error) {
	wmLogger := events.NewLogrusAdapter(logger)

	switch cfg.Events.Backend {
	case config.EventsRedis:
		publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: redisClient}, wmLogger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Redis publisher: %w", err)
		}
		return events.NewWatermillPublisher(publisher), func() { _ = publisher.Close() }, nil

	case config.EventsMemory:
		pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, wmLogger)
		go func() {
			if err := events.LogEvents(ctx, pubSub, logger); err != nil {
				logger.WithError(err).Error("Event logger stopped")
			}
		}()
		return events.NewWatermillPublisher(pubSub), func() { _ = pubSub.Close() }, nil

	default:
		return events.NopPublisher{}, func() {}, nil
	}
}
