package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"camcast/internal/core/domain"
	"camcast/internal/core/services"
	httphandlers "camcast/internal/handlers/http"
	"camcast/internal/infrastructure/capture"
	"camcast/internal/infrastructure/livefeed"
	"camcast/internal/infrastructure/middleware"
	"camcast/internal/infrastructure/monitoring"
	repositories "camcast/internal/infrastructure/repositories"
	"camcast/pkg/config"
	"camcast/pkg/logger"
	"camcast/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg = config.DefaultConfig()
	}

	// Initialize logger
	zapLogger, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		panic(err)
	}
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Initialize tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "camcast",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Initialize repository factory (redis when enabled, memory otherwise)
	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	broadcastRepo := repoFactory.CreateBroadcastRepository()

	healthChecker := monitoring.NewHealthChecker()
	if client := repoFactory.RedisClient(); client != nil {
		healthChecker.AddRedisCheck(client, 30*time.Second, 2*time.Second)
	}
	healthChecker.AddRepositoryCheck(broadcastRepo, 30*time.Second, 2*time.Second)

	// Initialize monitoring
	var (
		gatewayMetrics services.GatewayMetrics
		sessionMetrics services.SessionMetrics
		feedMetrics    livefeed.ClientMetrics
	)
	if cfg.Monitoring.PrometheusEnabled {
		collector := monitoring.NewPrometheusCollector()
		gatewayMetrics = collector
		sessionMetrics = collector
		feedMetrics = collector
	}

	// Initialize services
	identityService := services.NewIdentityService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	gateway := services.NewBroadcastGateway(broadcastRepo, log, gatewayMetrics)
	thumbnailEncoder := services.NewThumbnailEncoder(
		cfg.Capture.ThumbnailWidth,
		cfg.Capture.ThumbnailHeight,
		cfg.Capture.ThumbnailQuality,
	)
	captureInventory := capture.NewSyntheticInventory(capture.WithWarmup(cfg.Capture.WarmupDelay))

	sessionManager := services.NewSessionManager(
		identityService,
		gateway,
		broadcastRepo,
		captureInventory,
		thumbnailEncoder,
		domain.DefaultConstraintLadder(),
		log,
		sessionMetrics,
	)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	go sessionManager.Run(rootCtx)
	healthChecker.StartBackgroundChecks(rootCtx)

	// The global mirror feeds the broadcast list and the websocket push.
	liveFeed, err := broadcastRepo.WatchActive(rootCtx)
	if err != nil {
		log.Fatalw("failed to watch broadcast store", "error", err)
	}
	globalMirror := services.NewMirror(log)
	go globalMirror.Run(rootCtx, liveFeed)

	feedServer := livefeed.NewFeedServer(globalMirror, feedMetrics, log)
	feedServer.SetPingInterval(cfg.LiveFeed.PingInterval)
	feedServer.SetPongTimeout(cfg.LiveFeed.PongTimeout)
	feedServer.SetWriteTimeout(cfg.LiveFeed.WriteTimeout)

	// Initialize HTTP handlers
	authHandler := httphandlers.NewAuthHandler(identityService)
	sessionHandler := httphandlers.NewSessionHandler(sessionManager, identityService)
	broadcastHandler := httphandlers.NewBroadcastHandler(globalMirror, gateway, broadcastRepo, identityService)

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	router.Use(middleware.ErrorHandlerMiddleware(log))

	authHandler.SetupRoutes(router)
	sessionHandler.SetupRoutes(router)
	broadcastHandler.SetupRoutes(router)

	// Live list push; anonymous consumers are welcome, a token only
	// affects the "mine" flag on their rows.
	router.GET("/ws/live", middleware.OptionalAuthMiddleware(identityService), func(c *gin.Context) {
		var viewer domain.UserID
		if identity, ok := middleware.IdentityFromContext(c); ok {
			viewer = identity.ID
		}
		feedServer.HandleWebSocket(c.Writer, c.Request, viewer)
	})

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":       "healthy",
			"timestamp":    time.Now(),
			"uptime":       time.Since(startTime).String(),
			"feed_clients": feedServer.ClientCount(),
		})
	})

	// Readiness endpoint
	router.GET("/ready", func(c *gin.Context) {
		status := healthChecker.CheckAll(c.Request.Context())
		code := 200
		if status.Status != "healthy" {
			code = 503
		}
		c.JSON(code, status)
	})

	// Prometheus metrics endpoint
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting camcast server on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down camcast server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	// Release devices and stop mirrors before the stores go away.
	sessionManager.Close()
	rootCancel()

	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracer provider", "error", err)
	}
	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}

	log.Info("camcast server stopped")
}
