// Package front registers the user-facing HTTP API.
package front

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/transcript-buddy/transcriptbuddy/internal/auth"
	"github.com/transcript-buddy/transcriptbuddy/internal/config"
	"github.com/transcript-buddy/transcriptbuddy/internal/http/api/front/handlers"
	"github.com/transcript-buddy/transcriptbuddy/internal/provider"
	"github.com/transcript-buddy/transcriptbuddy/internal/service"
	"github.com/transcript-buddy/transcriptbuddy/internal/usage"
)

// Services bundles the engine services the API surfaces.
type Services struct {
	Conversations *service.Conversations
	Transcripts   *service.Transcripts
	Query         *service.Query
	Ledger        *usage.Ledger
	Gateway       *provider.Gateway
}

// RegisterRoutes registers the public API routes, middleware, and handlers.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, svc Services) {
	if r == nil || db == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(db)
	r.GET("/health", healthHandler.Healthz)
	r.GET("/healthz", healthHandler.Healthz)

	v1 := r.Group("/v1")

	authHandler := handlers.NewAuthHandler(db, jwtCfg)
	v1.POST("/auth/register", authHandler.Register)
	v1.POST("/auth/login", authHandler.Login)

	authed := v1.Group("")
	authed.Use(auth.Middleware(db, jwtCfg))

	providerHandler := handlers.NewProviderHandler(svc.Gateway)
	authed.GET("/providers", providerHandler.List)
	authed.GET("/providers/:name/models", providerHandler.Models)
	authed.POST("/providers/test", providerHandler.TestConnection)

	conversationHandler := handlers.NewConversationHandler(svc.Conversations)
	authed.POST("/conversations", conversationHandler.Create)
	authed.GET("/conversations", conversationHandler.List)
	authed.GET("/conversations/:id", conversationHandler.Get)
	authed.PUT("/conversations/:id", conversationHandler.Update)
	authed.POST("/conversations/:id/unlock", conversationHandler.Unlock)
	authed.DELETE("/conversations/:id", conversationHandler.Delete)

	transcriptHandler := handlers.NewTranscriptHandler(svc.Transcripts)
	authed.POST("/conversations/:id/transcripts", transcriptHandler.Upload)
	authed.GET("/conversations/:id/transcripts", transcriptHandler.List)
	authed.POST("/conversations/:id/reindex", transcriptHandler.Reindex)
	authed.GET("/transcripts/:id", transcriptHandler.Get)
	authed.POST("/transcripts/:id/index", transcriptHandler.Index)
	authed.DELETE("/transcripts/:id", transcriptHandler.Delete)

	queryHandler := handlers.NewQueryHandler(svc.Query)
	authed.POST("/conversations/:id/query", queryHandler.Ask)
	authed.POST("/conversations/:id/search", queryHandler.Search)

	usageHandler := handlers.NewUsageHandler(db, svc.Ledger, svc.Conversations)
	authed.GET("/usage/summary", usageHandler.Summary)
	authed.GET("/usage/limits", usageHandler.Limits)
	authed.GET("/tiers", usageHandler.Tiers)
	authed.POST("/account/downgrade/validate", usageHandler.ValidateDowngrade)
	authed.POST("/account/downgrade", usageHandler.Downgrade)
}
