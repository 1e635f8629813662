package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/vbilous/contactbook/internal/config"
	"github.com/vbilous/contactbook/internal/http/handler"
	httpmiddleware "github.com/vbilous/contactbook/internal/http/middleware"
	"github.com/vbilous/contactbook/internal/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(
	cfg config.Config,
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	contactHandler *handler.ContactHandler,
	authMiddleware *httpmiddleware.Auth,
	rateLimiter *middleware.RateLimiter,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.GET("/verify", authHandler.Verify)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authMiddleware.Authenticate, authHandler.Logout)
		authGroup.POST("/request-password-reset", authHandler.ForgotPassword)
		authGroup.POST("/reset-password", authHandler.ResetPassword)
	}

	r.GET("/me", authMiddleware.Authenticate, userHandler.Me)
	r.PUT("/me/avatar", authMiddleware.Authenticate, userHandler.UpdateAvatar)
	r.PATCH("/users/:id/role", authMiddleware.Authenticate, authMiddleware.RequireAdmin, userHandler.ChangeRole)

	contactsGroup := r.Group("/contacts", authMiddleware.Authenticate)
	{
		contactsGroup.POST("", contactHandler.Create)
		contactsGroup.GET("", contactHandler.List)
		contactsGroup.GET("/birthdays", contactHandler.UpcomingBirthdays)
		contactsGroup.GET("/:id", contactHandler.Get)
		contactsGroup.PUT("/:id", contactHandler.Update)
		contactsGroup.DELETE("/:id", contactHandler.Delete)
	}

	return r
}
