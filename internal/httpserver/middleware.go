package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront-checkout/internal/service/session"
)

const (
	sessionHeader = "X-Session-Token"
	sessionCtxKey = "session"
)

// sessionMiddleware resolves the device token into its session.
func sessionMiddleware(reg sessionRegistry, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(sessionHeader))
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session token"})
			c.Abort()
			return
		}

		s, err := reg.Resolve(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, session.ErrInvalidToken) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired session token"})
				c.Abort()
				return
			}
			logger.Error("resolve session", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load session"})
			c.Abort()
			return
		}

		c.Set(sessionCtxKey, s)
		c.Next()
	}
}

// sessionFromContext returns the session set by sessionMiddleware.
func sessionFromContext(c *gin.Context) *session.Session {
	v, ok := c.Get(sessionCtxKey)
	if !ok {
		return nil
	}
	s, _ := v.(*session.Session)
	return s
}
