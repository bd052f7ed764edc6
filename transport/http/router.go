package http

import (
	"embed"
	"html/template"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/domainauth/metrics"
	"github.com/layer-3/domainauth/ports"
	"github.com/layer-3/domainauth/service"
	"github.com/sirupsen/logrus"
)

//go:embed templates/*.html
var templatesFS embed.FS

// DefaultCookieName names the session cookie
const DefaultCookieName = "domainauth_session"

// RouterConfig holds the HTTP-facing settings
type RouterConfig struct {
	CookieName   string
	CookieSecure bool
	SessionTTL   time.Duration

	// TrustProxyHeaders lets X-Forwarded-Proto and X-Forwarded-Host decide
	// the externally visible callback URL.
	TrustProxyHeaders bool

	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
}

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService, tokenizer ports.Tokenizer, cfg RouterConfig) *gin.Engine {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(cfg.Logger), MetricsMiddleware(cfg.Metrics))
	router.SetHTMLTemplate(template.Must(template.ParseFS(templatesFS, "templates/*.html")))

	handlers := NewAuthHandlers(authService, tokenizer, cfg)

	// Login flow
	pages := router.Group("/")
	pages.Use(SessionMiddleware(tokenizer, cfg.CookieName))
	{
		pages.GET("/", handlers.Home)
		pages.POST("/login", handlers.Login)
		pages.GET("/callback", handlers.Callback)
		pages.GET("/servercallback", handlers.ServerCallback)
		pages.GET("/logout", handlers.Logout)
	}

	router.GET("/healthz", handlers.Health)
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	return router
}
