package api

import (
	"github.com/gin-gonic/gin"

	"github.com/geolyze/geolyze_server/config"
	"github.com/geolyze/geolyze_server/internal/api/handler"
	"github.com/geolyze/geolyze_server/internal/api/middleware"
)

type Router struct {
	analyzeHandler   *handler.AnalyzeHandler
	adminHandler     *handler.AdminHandler
	websocketHandler *handler.WebSocketHandler
	cfg              *config.Config
}

func NewRouter(
	analyzeHandler *handler.AnalyzeHandler,
	adminHandler *handler.AdminHandler,
	websocketHandler *handler.WebSocketHandler,
	cfg *config.Config,
) *Router {
	return &Router{
		analyzeHandler:   analyzeHandler,
		adminHandler:     adminHandler,
		websocketHandler: websocketHandler,
		cfg:              cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	api := engine.Group("/api")
	{
		api.GET("/health", handler.Health)

		// WebSocket progress stream (token in query string)
		api.GET("/ws", r.websocketHandler.Handle)

		// Browser-facing surface
		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			authenticated.POST("/analyze", r.analyzeHandler.Submit)
			authenticated.GET("/analyze/status", r.analyzeHandler.Status)
			authenticated.GET("/analyze/results", r.analyzeHandler.Results)
			authenticated.GET("/jobs", r.analyzeHandler.ListJobs)
			authenticated.GET("/user/quota", r.analyzeHandler.Quota)
		}
	}

	// Elevated surface for the analysis engine and provider hooks.
	// Never exposed to the browser; deploys sit behind a private
	// network boundary in addition to the key check.
	internal := engine.Group("/internal")
	internal.Use(middleware.ServiceKey(r.cfg.Service.KeyHash))
	{
		internal.POST("/identities", r.adminHandler.CreateIdentity)
		internal.POST("/subscriptions", r.adminHandler.UpsertSubscription)
		internal.POST("/jobs", r.adminHandler.CreateJob)
		internal.PATCH("/jobs/:id/status", r.adminHandler.UpdateJobStatus)
		internal.PATCH("/jobs/:id/metadata", r.adminHandler.SetJobMetadata)
		internal.PUT("/jobs/:id/results", r.adminHandler.SaveJobResults)
		internal.PUT("/jobs/:id/error", r.adminHandler.SaveJobError)
	}

	return engine
}
