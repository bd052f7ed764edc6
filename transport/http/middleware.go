package http

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/domainauth/metrics"
	"github.com/layer-3/domainauth/ports"
	"github.com/sirupsen/logrus"
)

const sessionIDKey = "sessionID"

// SessionMiddleware resolves the session cookie to a session id. A missing,
// forged or expired cookie leaves the request without one.
func SessionMiddleware(tokenizer ports.Tokenizer, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(cookieName)
		if err == nil && token != "" {
			if id, err := tokenizer.TokenToSession(token); err == nil {
				c.Set(sessionIDKey, id)
			}
		}

		c.Next()
	}
}

// sessionID returns the id set by SessionMiddleware, or ""
func sessionID(c *gin.Context) string {
	return c.GetString(sessionIDKey)
}

// RequestLogger logs one line per request. Query strings are left out since
// they carry login payloads.
func RequestLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
		}).Info("Request")
	}
}

// MetricsMiddleware counts requests by route template
func MetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()))
	}
}
