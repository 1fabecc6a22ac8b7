package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"legal-intel-platform/internal/config"
	"legal-intel-platform/internal/database"
	"legal-intel-platform/internal/storage"
	"legal-intel-platform/middleware"
	"legal-intel-platform/models"
	"legal-intel-platform/services"
)

// Deps collects everything the HTTP surface needs.
type Deps struct {
	Cfg      *config.Config
	Store    *database.Store
	Objects  storage.ObjectStore
	Redis    *redis.Client
	Ledger   *services.Ledger
	Cache    *services.QueryCache
	Enqueuer services.TaskEnqueuer
	Hub      *services.Hub
}

// Setup registers middleware and all routes on the engine.
func Setup(r *gin.Engine, d Deps) {
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.TracingMiddleware())
	r.Use(middleware.EnrichTrace())
	r.Use(middleware.CORSMiddleware(d.Cfg.CORSOrigins))
	r.Use(middleware.RateLimitMiddleware(d.Redis, d.Cfg))
	r.Use(middleware.RequestSizeLimit(d.Cfg.MaxFileSize))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := d.Redis.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "redis unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	auth := middleware.NewAuthMiddleware(d.Cfg)
	matterAuth := middleware.NewMatterMiddleware(d.Store)

	matters := NewMatterHandlers(d.Store)
	documents := NewDocumentHandlers(d.Cfg, d.Store, d.Objects, d.Ledger, d.Cache, d.Enqueuer)
	ws := NewWSHandlers(d.Cfg, d.Store, d.Hub)

	api := r.Group("/api/v1")
	api.Use(auth.RequireAuth())
	{
		api.POST("/matters", matters.Create)
		api.GET("/matters", matters.List)

		viewer := api.Group("/matters/:matterId")
		viewer.Use(matterAuth.RequireMatterRole(models.RoleViewer))
		{
			viewer.GET("", matters.Get)
			viewer.GET("/documents", documents.List)
			viewer.GET("/documents/:documentId", documents.Get)
			viewer.GET("/jobs/:jobId", documents.GetJob)
		}

		editor := api.Group("/matters/:matterId")
		editor.Use(matterAuth.RequireMatterRole(models.RoleEditor))
		{
			editor.POST("/documents", documents.Upload)
			editor.POST("/jobs/:jobId/cancel", documents.CancelJob)
		}

		owner := api.Group("/matters/:matterId")
		owner.Use(matterAuth.RequireMatterRole(models.RoleOwner))
		{
			owner.DELETE("", matters.Delete)
		}
	}

	// The WebSocket endpoint authenticates via query token and reports
	// failures with close codes, so it skips the HTTP auth middleware.
	r.GET("/api/v1/matters/:matterId/ws", ws.Subscribe)
}
