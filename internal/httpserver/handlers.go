package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront-checkout/internal/backend"
	"storefront-checkout/internal/domain"
)

type handlers struct {
	deps   Deps
	logger *zap.Logger
}

// writeError maps service errors onto status codes.
func (h *handlers) writeError(c *gin.Context, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case backend.IsAuthError(err):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "sign in again to continue"})
	case backend.IsTransient(err):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service temporarily unavailable"})
	default:
		h.logger.Warn("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream request failed"})
	}
}

func (h *handlers) issueSession(c *gin.Context) {
	issued, err := h.deps.Sessions.Issue(c.Request.Context())
	if err != nil {
		h.logger.Error("issue session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create session"})
		return
	}
	c.JSON(http.StatusCreated, issued)
}

type loginRequest struct {
	AccessToken string `json:"accessToken" binding:"required"`
}

// login hands the shopper's access token to the cart, which merges the
// guest lines into the server cart the first time.
func (h *handlers) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "accessToken is required"})
		return
	}
	s := sessionFromContext(c)
	if err := s.SignIn(c.Request.Context(), req.AccessToken); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			h.writeError(c, err)
			return
		}
		// The merge failed but the shopper is signed in; the guest lines stay
		// on the device and the notice explains it.
		h.logger.Warn("cart merge failed", zap.String("device_id", s.DeviceID), zap.Error(err))
	}
	h.respondCart(c, s)
}

func (h *handlers) logout(c *gin.Context) {
	s := sessionFromContext(c)
	s.SignOut(c.Request.Context())
	h.respondCart(c, s)
}

func (h *handlers) notifications(c *gin.Context) {
	s := sessionFromContext(c)
	c.JSON(http.StatusOK, gin.H{"notifications": s.Notices.Drain()})
}
