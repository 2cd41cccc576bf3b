// Package router contains routing and server setup for the HTTP delivery.
package router

import (
	"lens/internal/delivery/http/router/handler"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

type RouterParams struct {
	fx.In

	AuthHandler     *handler.AuthHandler
	IdentityHandler *handler.IdentityHandler
	RecordHandler   *handler.RecordHandler
}

// router holds all the handlers that need to be registered.
type router struct {
	authHandler     *handler.AuthHandler
	identityHandler *handler.IdentityHandler
	recordHandler   *handler.RecordHandler
}

// NewRouter is the constructor for the Router.
// Fx will inject the required handlers here.
func NewRouter(params RouterParams) *router {
	return &router{
		authHandler:     params.AuthHandler,
		identityHandler: params.IdentityHandler,
		recordHandler:   params.RecordHandler,
	}
}

// RegisterRoutes sets up all the API routes for the application.
func (r *router) RegisterRoutes(e *echo.Echo) {
	// Health check endpoint
	e.GET("/health", handler.HealthCheck)

	// Auth routes
	authGroup := e.Group("/auth")
	{
		authGroup.POST("/login", r.authHandler.Login)
		authGroup.GET("/callback", r.authHandler.Callback)
		authGroup.GET("/accounts", r.authHandler.Accounts)
		authGroup.POST("/switch", r.authHandler.Switch)
		authGroup.POST("/logout", r.authHandler.Logout)
	}

	// Read and write routes against repositories
	apiGroup := e.Group("/api")
	{
		apiGroup.GET("/identity/:actor", r.identityHandler.ResolveIdentity)
		apiGroup.GET("/profile/:did", r.identityHandler.GetProfile)
		apiGroup.DELETE("/profile/:did", r.identityHandler.InvalidateProfile)
		apiGroup.POST("/cache/clean", r.identityHandler.CleanCache)
		apiGroup.GET("/tid/:tid", r.identityHandler.DecodeTID)

		apiGroup.GET("/repo/:actor", r.recordHandler.DescribeRepo)
		apiGroup.GET("/repo/:actor/:collection", r.recordHandler.ListRecords)
		apiGroup.GET("/repo/:actor/:collection/:rkey", r.recordHandler.GetRecord)
		apiGroup.POST("/repo/:collection", r.recordHandler.CreateRecord)
		apiGroup.PUT("/repo/:collection/:rkey", r.recordHandler.PutRecord)
		apiGroup.POST("/blob", r.recordHandler.UploadBlob)
		apiGroup.GET("/record", r.recordHandler.GetRecordByURI)

		apiGroup.GET("/pds/repos", r.recordHandler.ListRepos)
	}
}
