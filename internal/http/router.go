package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/scribeworks/scribe-auth/internal/config"
	"github.com/scribeworks/scribe-auth/internal/http/handler"
	httpmiddleware "github.com/scribeworks/scribe-auth/internal/http/middleware"
	"github.com/scribeworks/scribe-auth/internal/middleware"
)

// NewRouter wires Gin routes and middleware. Whether a route requires
// authentication is decided here: public routes mount no guard, protected
// ones mount the guard matching their token class.
func NewRouter(cfg config.Config, authHandler *handler.AuthHandler, guard *httpmiddleware.Guard, rateLimiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/sign-up", authHandler.SignUp)
		authGroup.POST("/sign-in", authHandler.SignIn)
		authGroup.POST("/refresh", guard.RequireRefresh, authHandler.Refresh)
		authGroup.POST("/sign-out", guard.RequireAccess, authHandler.SignOut)
		authGroup.GET("/me", guard.RequireAccess, authHandler.Me)
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
