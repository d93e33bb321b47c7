// Package app wires configuration, storage, and services into a running
// server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/transcript-buddy/transcriptbuddy/internal/auth"
	"github.com/transcript-buddy/transcriptbuddy/internal/chunker"
	"github.com/transcript-buddy/transcriptbuddy/internal/config"
	"github.com/transcript-buddy/transcriptbuddy/internal/db"
	"github.com/transcript-buddy/transcriptbuddy/internal/embedding"
	"github.com/transcript-buddy/transcriptbuddy/internal/http/api/front"
	"github.com/transcript-buddy/transcriptbuddy/internal/modelcatalog"
	"github.com/transcript-buddy/transcriptbuddy/internal/models"
	"github.com/transcript-buddy/transcriptbuddy/internal/provider"
	"github.com/transcript-buddy/transcriptbuddy/internal/ratelimit"
	"github.com/transcript-buddy/transcriptbuddy/internal/retriever"
	"github.com/transcript-buddy/transcriptbuddy/internal/service"
	"github.com/transcript-buddy/transcriptbuddy/internal/settings"
	"github.com/transcript-buddy/transcriptbuddy/internal/synthesizer"
	"github.com/transcript-buddy/transcriptbuddy/internal/tiers"
	"github.com/transcript-buddy/transcriptbuddy/internal/usage"
	"github.com/transcript-buddy/transcriptbuddy/internal/vectorstore"
	"github.com/transcript-buddy/transcriptbuddy/internal/vectorstore/memory"
	"github.com/transcript-buddy/transcriptbuddy/internal/vectorstore/pinecone"
	"github.com/transcript-buddy/transcriptbuddy/internal/vectorstore/qdrant"
)

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn)
}

func buildEmbedder(cfg config.EmbeddingConfig) embedding.Embedder {
	switch cfg.Backend {
	case "openai":
		return embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		})
	default:
		return embedding.NewLocalEmbedder(cfg.Dimension)
	}
}

func buildVectorStore(ctx context.Context, cfg config.VectorStoreConfig, dimension int) (vectorstore.Store, error) {
	switch cfg.Backend {
	case "qdrant":
		return qdrant.NewStore(ctx, qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.Collection,
			Dimension:  dimension,
		})
	case "pinecone":
		return pinecone.NewStore(ctx, pinecone.Config{
			APIKey:    cfg.Pinecone.APIKey,
			IndexName: cfg.Pinecone.Index,
			Dimension: dimension,
		})
	case "", "memory":
		return memory.NewStore(dimension)
	default:
		return nil, fmt.Errorf("unknown vector store backend %q", cfg.Backend)
	}
}

func buildLimiter(cfg config.RateLimitConfig) ratelimit.Limiter {
	if !cfg.Redis.Enabled {
		return ratelimit.NewMemoryLimiter()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = settings.DefaultRateLimitRedisPrefix
	}
	return ratelimit.NewRedisLimiter(client, prefix)
}

// bootstrapUser seeds the configured account when no users exist yet.
func bootstrapUser(conn *gorm.DB, cfg config.BootstrapConfig) error {
	if cfg.Email == "" || cfg.Password == "" {
		return nil
	}
	var count int64
	if errCount := conn.Model(&models.User{}).Count(&count).Error; errCount != nil {
		return fmt.Errorf("count users: %w", errCount)
	}
	if count > 0 {
		return nil
	}

	hash, errHash := auth.HashPassword(cfg.Password)
	if errHash != nil {
		return fmt.Errorf("hash bootstrap password: %w", errHash)
	}
	user := models.User{
		Email:    cfg.Email,
		Password: hash,
		Tier:     string(tiers.Parse(cfg.Tier)),
		Active:   true,
	}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		return fmt.Errorf("create bootstrap user: %w", errCreate)
	}
	log.WithField("email", user.Email).Info("bootstrap user created")
	return nil
}

// RunServer boots the query engine API server and blocks until ctx is
// cancelled.
func RunServer(ctx context.Context, appCfg config.AppConfig, defaultPort int) error {
	configPath := config.ResolveConfigPath(appCfg.ConfigPath)
	fileCfg, errLoad := config.LoadFile(configPath)
	if errLoad != nil {
		return errLoad
	}
	dsn, errDSN := config.LoadDatabaseDSN(configPath)
	if errDSN != nil {
		return errDSN
	}
	jwtCfg, errJWT := config.LoadJWTConfig(configPath)
	if errJWT != nil {
		return errJWT
	}

	conn, errOpen := db.Open(dsn)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if errBootstrap := bootstrapUser(conn, fileCfg.Bootstrap); errBootstrap != nil {
		return errBootstrap
	}

	embedder := buildEmbedder(fileCfg.Embedding)
	store, errStore := buildVectorStore(ctx, fileCfg.VectorStore, embedder.Dimension())
	if errStore != nil {
		return errStore
	}

	gateway := provider.NewGateway(provider.Config{
		OpenAIAPIKey:    fileCfg.Providers.OpenAIAPIKey,
		OpenAIBaseURL:   fileCfg.Providers.OpenAIBaseURL,
		OllamaBaseURL:   fileCfg.Providers.OllamaBaseURL,
		LMStudioBaseURL: fileCfg.Providers.LMStudioBaseURL,
	})
	ledger := usage.NewLedger(conn)
	ch := chunker.New(settings.DefaultChunkSize, settings.DefaultChunkOverlap)

	ratePerMin := fileCfg.RateLimit.PerMinute
	if ratePerMin == 0 {
		ratePerMin = settings.DefaultQueryRateLimitPerMinute
	}

	svc := front.Services{
		Conversations: service.NewConversations(conn, ledger, store),
		Transcripts:   service.NewTranscripts(conn, ledger, ch, embedder, store),
		Query: service.NewQuery(conn, ledger, retriever.New(embedder, store),
			synthesizer.New(gateway), buildLimiter(fileCfg.RateLimit), ratePerMin),
		Ledger:  ledger,
		Gateway: gateway,
	}

	if syncer := modelcatalog.NewSyncer(conn, gateway); syncer != nil {
		syncer.Start(ctx)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	front.RegisterRoutes(engine, conn, jwtCfg, svc)

	if defaultPort <= 0 {
		defaultPort = 8318
	}
	addr := fmt.Sprintf(":%d", defaultPort)
	srv := &http.Server{
		Addr:    addr,
		Handler: engine,
	}

	log.WithFields(log.Fields{
		"addr":         addr,
		"embedding":    embedder.Name(),
		"vector_store": fileCfg.VectorStore.Backend,
	}).Info("starting server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.Errorf("server shutdown error: %v", errShutdown)
		}
	}()

	if errListen := srv.ListenAndServe(); errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
		return errListen
	}
	return nil
}
