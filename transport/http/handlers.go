package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/domainauth/core"
	"github.com/layer-3/domainauth/ports"
	"github.com/layer-3/domainauth/service"
	"github.com/sirupsen/logrus"
)

// AuthHandlers contains HTTP handlers for the login flow
type AuthHandlers struct {
	authService *service.AuthService
	tokenizer   ports.Tokenizer
	cfg         RouterConfig
	logger      logrus.FieldLogger
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService, tokenizer ports.Tokenizer, cfg RouterConfig) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		tokenizer:   tokenizer,
		cfg:         cfg,
		logger:      cfg.Logger,
	}
}

// Home renders the login form, or the logged in domain
func (h *AuthHandlers) Home(c *gin.Context) {
	h.renderHome(c, http.StatusOK, "", "")
}

// Login starts a login for the submitted domain and redirects to its
// identity manager.
func (h *AuthHandlers) Login(c *gin.Context) {
	domain := c.PostForm("domain")

	start, err := h.authService.BeginLogin(c.Request.Context(), sessionID(c), domain, h.baseURL(c)+"/callback")
	if err != nil {
		if errors.Is(err, core.ErrInvalidDomain) {
			h.renderHome(c, http.StatusBadRequest, "Invalid domain", domain)
			return
		}
		h.logger.WithError(err).WithField("domain", domain).Error("Failed to start login")
		c.String(http.StatusInternalServerError, "Internal Error")
		return
	}

	if start.SessionID != sessionID(c) {
		if err := h.setSessionCookie(c, start.SessionID); err != nil {
			h.logger.WithError(err).Error("Failed to issue session cookie")
			c.String(http.StatusInternalServerError, "Internal Error")
			return
		}
	}

	c.Redirect(http.StatusFound, start.RedirectURL)
}

// Callback serves the page that forwards the response fragment to
// ServerCallback. Browsers never send fragments, so this hop has to run
// client side.
func (h *AuthHandlers) Callback(c *gin.Context) {
	c.HTML(http.StatusOK, "callback.html", nil)
}

// ServerCallback completes the login with the forwarded response
func (h *AuthHandlers) ServerCallback(c *gin.Context) {
	responseURL := h.baseURL(c) + "/callback#" + c.Query("data")

	result, err := h.authService.CompleteLogin(c.Request.Context(), sessionID(c), responseURL)
	if err != nil {
		h.logger.WithError(err).Error("Failed to complete login")

		switch {
		case errors.Is(err, core.ErrVerificationUnavailable):
			c.String(http.StatusBadGateway, "Verification Unavailable")
		default:
			c.String(http.StatusInternalServerError, "Internal Error")
		}
		return
	}

	if result.Authenticated {
		if err := h.setSessionCookie(c, result.Session.ID); err != nil {
			h.logger.WithError(err).Error("Failed to issue session cookie")
			c.String(http.StatusInternalServerError, "Internal Error")
			return
		}
	}

	c.Redirect(http.StatusFound, "/")
}

// Logout destroys the session and expires its cookie
func (h *AuthHandlers) Logout(c *gin.Context) {
	if err := h.authService.Logout(c.Request.Context(), sessionID(c)); err != nil {
		h.logger.WithError(err).Error("Failed to log out")
		c.String(http.StatusInternalServerError, "Internal Error")
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cfg.CookieName, "", -1, "/", "", h.cfg.CookieSecure, true)
	c.Redirect(http.StatusFound, "/")
}

// Health reports whether the session store is reachable
func (h *AuthHandlers) Health(c *gin.Context) {
	if err := h.authService.Ping(c.Request.Context()); err != nil {
		h.logger.WithError(err).Warn("Health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *AuthHandlers) renderHome(c *gin.Context, status int, message, requested string) {
	var domain string
	if session := h.authService.CurrentSession(c.Request.Context(), sessionID(c)); session.Authenticated() {
		domain = session.Domain
	}

	c.HTML(status, "index.html", gin.H{
		"Domain":    domain,
		"Error":     message,
		"Requested": requested,
	})
}

// setSessionCookie issues a signed cookie for id. SameSite=Lax keeps it on
// the top level navigation back from the identity manager.
func (h *AuthHandlers) setSessionCookie(c *gin.Context, id string) error {
	token, err := h.tokenizer.SessionToToken(id)
	if err != nil {
		return err
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cfg.CookieName, token, int(h.cfg.SessionTTL.Seconds()), "/", "", h.cfg.CookieSecure, true)
	return nil
}

// baseURL is the externally visible scheme and host of the request
func (h *AuthHandlers) baseURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}

	host := c.Request.Host
	if h.cfg.TrustProxyHeaders {
		if proto := c.GetHeader("X-Forwarded-Proto"); proto == "https" {
			scheme = "https"
		}
		if fwd := c.GetHeader("X-Forwarded-Host"); fwd != "" {
			host = fwd
		}
	}

	return scheme + "://" + host
}
