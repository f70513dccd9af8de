package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"storefront-checkout/internal/hostedpay"
	"storefront-checkout/internal/service/checkout"
	"storefront-checkout/internal/service/session"
)

type sessionRegistry interface {
	Issue(ctx context.Context) (session.Issued, error)
	Resolve(ctx context.Context, token string) (*session.Session, error)
}

type paymentProvider interface {
	HandleNotification(n hostedpay.Notification) (bool, error)
	Cancel(reference string) bool
}

// Deps holds the services the routes call into.
type Deps struct {
	Sessions       sessionRegistry
	Payments       paymentProvider
	Pricing        checkout.Pricing
	AllowedOrigins []string
	// Release switches gin to release mode.
	Release bool
}

// buildRouter wires routes for the API.
func buildRouter(logger *zap.Logger, db *pgxpool.Pool, deps Deps) (*gin.Engine, error) {
	if deps.Sessions == nil {
		return nil, errors.New("session registry is required")
	}
	if deps.Release {
		gin.SetMode(gin.ReleaseMode)
	}
	corsMW, err := corsMiddleware(deps.AllowedOrigins)
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(customRecovery(logger), loggingMiddleware(logger), corsMW)

	router.GET("/healthz", healthHandler)
	var ready pinger
	if db != nil {
		ready = db
	}
	router.GET("/readyz", readyHandler(ready))

	h := &handlers{deps: deps, logger: logger}

	v1 := router.Group("/v1")
	v1.POST("/sessions", h.issueSession)
	v1.GET("/currency/convert", h.convertCurrency)
	v1.POST("/payments/notifications", h.paymentNotification)

	scoped := v1.Group("")
	scoped.Use(sessionMiddleware(deps.Sessions, logger))
	{
		scoped.POST("/sessions/login", h.login)
		scoped.POST("/sessions/logout", h.logout)

		scoped.GET("/cart", h.getCart)
		scoped.POST("/cart/items", h.addItem)
		scoped.PATCH("/cart/items", h.updateItem)
		scoped.DELETE("/cart/items", h.removeItem)
		scoped.DELETE("/cart", h.clearCart)
		scoped.POST("/cart/sync", h.syncCart)

		scoped.POST("/checkout/buy-now", h.stageBuyNow)
		scoped.DELETE("/checkout/buy-now", h.clearBuyNow)
		scoped.POST("/checkout", h.startCheckout)
		scoped.GET("/checkout", h.checkoutState)
		scoped.POST("/checkout/payment/cancel", h.cancelPayment)

		scoped.GET("/notifications", h.notifications)
	}

	return router, nil
}

func corsMiddleware(origins []string) (gin.HandlerFunc, error) {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", sessionHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			cfg.AllowCredentials = false
			break
		}
	}
	if !cfg.AllowAllOrigins {
		cfg.AllowOrigins = origins
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("cors config: %w", err)
	}
	return cors.New(cfg), nil
}

// customRecovery logs panics and answers 500.
func customRecovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("panic recovered",
			zap.Any("error", recovered),
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	})
}

func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		logger.Info("http request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
