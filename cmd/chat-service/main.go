package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	chatHandler "streamchat-backend/internal/handler/http/chat"
	pushHandler "streamchat-backend/internal/handler/http/push"
	wsHandler "streamchat-backend/internal/handler/ws"
	"streamchat-backend/internal/middleware"
	"streamchat-backend/internal/repository/cockroach"
	"streamchat-backend/internal/repository/redis"
	chatService "streamchat-backend/internal/service/chat"
	notificationService "streamchat-backend/internal/service/notification"
	"streamchat-backend/internal/service/settings"
	"streamchat-backend/internal/service/storage"
	"streamchat-backend/pkg/audit"
	"streamchat-backend/pkg/config"
	"streamchat-backend/pkg/constants"
	"streamchat-backend/pkg/database"
	"streamchat-backend/pkg/jwt"
	"streamchat-backend/pkg/logger"
	"streamchat-backend/pkg/metrics"
	"streamchat-backend/pkg/push"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 2. Connect to CockroachDB
	cockroachDB, err := database.NewCockroachDB(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to CockroachDB", zap.Error(err))
	}
	defer cockroachDB.Close()
	logger.Info("Connected to CockroachDB")

	// 3. Connect to Redis with degraded mode support
	redisDB, err := database.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisDB.Close()
	redisDB.StartHealthCheck(ctx, constants.RedisHealthCheckInterval)
	logger.Info("Connected to Redis")

	// 4. Connect to MinIO
	attachmentStore, err := storage.NewAttachmentStore(ctx, cfg.MinIO)
	if err != nil {
		logger.Fatal("Failed to connect to MinIO", zap.Error(err))
	}
	logger.Info("Connected to MinIO", zap.String("bucket", cfg.MinIO.Bucket))

	// 5. Initialize repositories
	messageRepo := cockroach.NewMessageRepository(cockroachDB.Pool)
	blockRepo := cockroach.NewBlockedUserRepository(cockroachDB.Pool)
	subscriptionRepo := cockroach.NewSubscriptionRepository(cockroachDB.Pool)
	userRepo := cockroach.NewUserRepository(cockroachDB.Pool)
	notificationRepo := cockroach.NewNotificationRepository(cockroachDB.Pool)
	settingsRepo := cockroach.NewSettingsRepository(cockroachDB.Pool)
	streamerSettings := redis.NewStreamerSettingsCache(
		redisDB.Client,
		cockroach.NewStreamerSettingsRepository(cockroachDB.Pool),
		constants.StreamerSettingsCacheTTL,
	)
	presenceRepo := redis.NewPresenceRepository(redisDB.Client)
	pushTokenRepo := redis.NewPushTokenRepository(redisDB.Client)

	// 6. Realtime event publisher
	eventPublisher := redis.NewEventPublisher(redisDB.Client, cfg.Chat.EventQueueSize, cfg.Chat.EventWorkers)
	eventPublisher.Start()
	defer eventPublisher.Close()

	// 7. Initialize services
	pushProvider, err := push.NewProvider(ctx, cfg.Push)
	if err != nil {
		logger.Fatal("Failed to initialize push provider", zap.Error(err))
	}
	notificationSvc := notificationService.NewService(notificationRepo, pushTokenRepo, pushProvider, eventPublisher)

	settingsRefresher := settings.NewRefresher(settingsRepo)
	go settingsRefresher.Run(ctx, cfg.Chat.SettingsRefreshInterval)

	chatSvc := chatService.NewService(chatService.Dependencies{
		Messages:      messageRepo,
		Blocks:        blockRepo,
		Subscriptions: subscriptionRepo,
		Streamers:     streamerSettings,
		Users:         userRepo,
		Presence:      presenceRepo,
		Storage:       attachmentStore,
		Events:        eventPublisher,
		Notifier:      notificationSvc,
		Settings:      settingsRefresher,
	}, cfg.Chat.MaxAttachmentBytes)

	// 8. Metrics
	appMetrics := metrics.NewMetrics(cfg.Server.ServiceName)
	prometheusMiddleware := middleware.NewPrometheusMiddleware(appMetrics)

	// 9. Handlers and websocket hub
	jwtManager := jwt.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Audience)
	chatHdlr := chatHandler.NewHandler(chatSvc, audit.NewLogger(redisDB.Client), cfg.Chat.MaxAttachmentBytes)
	pushHdlr := pushHandler.NewHandler(notificationSvc)

	eventHub := wsHandler.NewHub(redisDB.Client, presenceRepo, appMetrics, cfg.Server.AllowedOrigins)
	go eventHub.Run(ctx)

	sendLimiter := middleware.NewRateLimiter(redisDB, appMetrics, "send",
		cfg.Chat.SendRatePerMinute, constants.RateLimitWindow)

	// 10. Setup Gin router
	router := gin.New()
	if err := router.SetTrustedProxies(nil); err != nil {
		logger.Fatal("Failed to configure trusted proxies", zap.Error(err))
	}

	timeoutConfig := &middleware.TimeoutConfig{
		DefaultTimeout: cfg.Server.RequestTimeout,
		Overrides: map[string]time.Duration{
			"/v1/channels/:type/:ownerId/attachments": constants.UploadTimeout,
			"/v1/messages/:id/attachment":             constants.UploadTimeout,
		},
	}

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))
	router.Use(middleware.SecurityHeaders())
	router.Use(prometheusMiddleware.Handler())
	router.Use(middleware.NewTimeoutMiddleware(timeoutConfig).Middleware())

	router.GET("/health", func(c *gin.Context) {
		status, state := http.StatusOK, "healthy"
		checks := gin.H{
			"database": "ok",
			"redis":    "ok",
			"storage":  "ok",
		}
		if err := cockroachDB.Ping(c.Request.Context()); err != nil {
			status, state = http.StatusServiceUnavailable, "unhealthy"
			checks["database"] = "unavailable"
		}
		if redisDB.IsDegraded() {
			checks["redis"] = "degraded"
		}
		if attachmentStore.State() == storage.CircuitBreakerOpen {
			checks["storage"] = "circuit_open"
		}

		c.JSON(status, gin.H{
			"status":  state,
			"service": cfg.Server.ServiceName,
			"checks":  checks,
			"time":    time.Now().UTC(),
		})
	})
	router.GET("/metrics", middleware.MetricsHandler(appMetrics))

	v1 := router.Group("/v1")

	// Guests allowed
	public := v1.Group("")
	public.Use(middleware.OptionalAuth(jwtManager))
	{
		public.POST("/channels/:type/:ownerId/messages", sendLimiter.Middleware(), chatHdlr.SendMessage)
		public.GET("/channels/:type/:ownerId/messages", chatHdlr.ListChannel)
		public.GET("/messages/:id", chatHdlr.GetMessage)
		public.GET("/messages/:id/attachment", chatHdlr.GetAttachment)
		public.GET("/ws/events", eventHub.ServeWS)
	}

	// Accounts only
	private := v1.Group("")
	private.Use(middleware.RequireAuth(jwtManager))
	{
		private.GET("/inbox", chatHdlr.ListInbox)
		private.POST("/inbox/read", chatHdlr.MarkRead)
		private.DELETE("/inbox/:userId", chatHdlr.DeleteThread)

		private.POST("/channels/:type/:ownerId/attachments", sendLimiter.Middleware(), chatHdlr.SendAttachment)

		private.PUT("/messages/:id", chatHdlr.UpdateMessage)
		private.DELETE("/messages/:id", chatHdlr.DeleteMessage)
		private.DELETE("/messages/:id/attachment", chatHdlr.DeleteAttachment)

		private.POST("/push/tokens", pushHdlr.RegisterToken)
		private.DELETE("/push/tokens", pushHdlr.UnregisterToken)
	}

	// 11. Start server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Chat service starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("environment", cfg.Server.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 12. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	stop()

	logger.Info("Server exited")
}
