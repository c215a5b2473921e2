package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/attendbot/backend/internal/analytics"
	"github.com/attendbot/backend/internal/api/handlers"
	"github.com/attendbot/backend/internal/attendance"
	redisCache "github.com/attendbot/backend/internal/cache/redis"
	"github.com/attendbot/backend/internal/chat"
	"github.com/attendbot/backend/internal/feedback"
	"github.com/attendbot/backend/internal/improvement"
	"github.com/attendbot/backend/internal/llm"
	"github.com/attendbot/backend/internal/metrics"
	"github.com/attendbot/backend/internal/middleware/auth"
	"github.com/attendbot/backend/internal/middleware/ratelimit"
	"github.com/attendbot/backend/internal/middleware/security"
	"github.com/attendbot/backend/internal/middleware/validation"
	"github.com/attendbot/backend/internal/news"
	s3store "github.com/attendbot/backend/internal/storage/s3"
	"github.com/attendbot/backend/internal/storage/sqlite"
	"github.com/attendbot/backend/internal/training"
	"github.com/attendbot/backend/pkg/config"
	appLogger "github.com/attendbot/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting attendance chatbot API server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var cache *redisCache.Client
	if cfg.Redis.Enabled {
		cache, err = redisCache.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, caching disabled", zap.Error(err))
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	s3Client, err := s3store.NewClient(context.Background(), cfg.S3.Region, cfg.S3.Bucket, cfg.S3.RecordPrefix)
	if err != nil {
		appLogger.Fatal("Failed to create S3 client", zap.Error(err))
	}

	loader := attendance.NewLoader(s3Client, time.Duration(cfg.S3.RefreshTTLSec)*time.Second)

	provider, err := llm.New(llm.Config{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		Region:      cfg.LLM.Region,
		APIKey:      cfg.LLM.APIKey,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})
	if err != nil {
		appLogger.Fatal("Failed to create LLM provider", zap.Error(err))
	}
	appLogger.Info("LLM provider ready", zap.String("provider", provider.Name()))

	var headlineCache news.HeadlineCache
	var answerCache chat.AnswerCache
	if cache != nil {
		headlineCache = cache
		answerCache = cache
	}

	newsClient := news.NewClient(cfg.News.APIKey, cfg.News.FallbackURL, headlineCache,
		time.Duration(cfg.News.CacheTTLSec)*time.Second)

	chatService := chat.NewService(provider, loader, newsClient, sqliteClient, answerCache, 15*time.Minute)

	curator := training.NewCurator(sqliteClient, cfg.Training.QualityThreshold, cfg.Training.ExportLimit)
	feedbackService := feedback.NewService(sqliteClient, curator,
		cfg.Feedback.LowRatingThreshold, cfg.Feedback.DefaultFrequency)

	engine := analytics.NewEngine(sqliteClient)
	pipeline := improvement.NewPipeline(engine, sqliteClient, curator, curator, s3Client,
		cfg.Training.ExportDir, cfg.Improvement.StageThreshold)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, X-API-Key, X-User-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: 60,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()
	app.Use(limiter.Middleware())

	app.Use(validation.Middleware(validation.Config{
		Logger: appLogger.GetLogger(),
	}))

	authenticator := auth.New(cfg.Auth.APIKeys, appLogger.GetLogger())

	chatHandler := handlers.NewChatHandler(chatService, feedbackService, sqliteClient)
	feedbackHandler := handlers.NewFeedbackHandler(feedbackService)
	var invalidator handlers.AnswerCacheInvalidator
	if cache != nil {
		invalidator = cache
	}
	adminHandler := handlers.NewAdminHandler(engine, curator, pipeline, sqliteClient, invalidator, cfg.Training.ExportDir)
	wsHandler := handlers.NewWebSocketHandler(chatService, feedbackService)

	api := app.Group("/api/v1")

	api.Post("/chat", chatHandler.HandleChat)
	api.Get("/chat/history", chatHandler.HandleHistory)
	api.Post("/feedback", feedbackHandler.HandleSubmit)
	api.Get("/feedback/prompt", feedbackHandler.HandlePromptDecision)
	api.Post("/feedback/preferences", feedbackHandler.HandleSetPreferences)

	admin := api.Group("/admin", authenticator.RequireRole("admin"))
	admin.Get("/analytics/overview", adminHandler.HandleOverview)
	admin.Get("/analytics/categories", adminHandler.HandleCategoryPerformance)
	admin.Get("/analytics/categories/details", adminHandler.HandleCategoryDetails)
	admin.Get("/analytics/trends", adminHandler.HandleDailyTrend)
	admin.Get("/analytics/recommendations", adminHandler.HandleRecommendations)
	admin.Get("/interactions/recent", adminHandler.HandleRecentInteractions)
	admin.Get("/feedback/recent", adminHandler.HandleRecentFeedback)
	admin.Get("/training/dataset", adminHandler.HandleTrainingDataset)
	admin.Post("/training/export", adminHandler.HandleTrainingExport)
	admin.Post("/training/:id/approve", adminHandler.HandleApproveTrainingItem)
	admin.Get("/training/readiness", adminHandler.HandleTrainingReadiness)
	admin.Post("/cache/invalidate", adminHandler.HandleInvalidateAnswerCache)
	admin.Post("/improvement/run", adminHandler.HandleRunImprovement)
	admin.Get("/improvement/history", adminHandler.HandleImprovementHistory)

	app.Get("/ws/chat", websocket.New(wsHandler.HandleConnection))

	app.Get("/metrics", metrics.MetricsHandler())

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
