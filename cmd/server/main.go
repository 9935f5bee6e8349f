package main

import (
	"context"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/clipwatch/internal/auth"
	"github.com/makeasinger/clipwatch/internal/client"
	"github.com/makeasinger/clipwatch/internal/config"
	"github.com/makeasinger/clipwatch/internal/handler"
	"github.com/makeasinger/clipwatch/internal/middleware"
	"github.com/makeasinger/clipwatch/internal/poller"
	"github.com/makeasinger/clipwatch/internal/service"
	"github.com/makeasinger/clipwatch/internal/telemetry"
	ws "github.com/makeasinger/clipwatch/internal/websocket"
	"github.com/makeasinger/clipwatch/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run(ctx)

	sunoClient := client.NewSunoClient(&cfg.Suno)

	// Initialize R2 archive (optional - clips keep their remote URLs if not configured)
	var archiver worker.Archiver
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		} else {
			archiver = client.NewArchiver(r2Client)
		}
	} else {
		log.Println("Info: R2 storage not configured, clips will not be archived")
	}

	// Initialize Zitadel OIDC verifier (optional - falls back to legacy JWT)
	var tokenVerifier auth.TokenVerifier
	if cfg.Zitadel.Issuer != "" {
		oidcVerifier, err := auth.DiscoverOIDC(ctx, cfg.Zitadel.Issuer, cfg.Zitadel.ClientID)
		if err != nil {
			log.Printf("Warning: OIDC verifier not initialized: %v", err)
		} else {
			tokenVerifier = oidcVerifier
		}
	}

	timer := newTimer(cfg.Poll.Scheduler)
	defer timer.Close()

	// Initialize services
	registry := service.NewSessionRegistry()
	profileService := service.NewProfileService(redisClient)
	generationService := service.NewGenerationService(redisClient, asynqClient, profileService, registry, cfg.Poll.MaxWait)
	playlistService := service.NewPlaylistService(redisClient, sunoClient, profileService)
	catalogService := service.NewCatalogService(sunoClient, profileService)

	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind Traefik: auth is handled by ForwardAuth, read X-User-* headers
		log.Println("Info: Gateway mode enabled, using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		apiAuthMiddleware = middleware.NewAuthMiddleware(tokenVerifier, cfg.JWT.Secret).Authenticate()
	}

	routes := &handler.Routes{
		Auth:            handler.NewAuthHandler(tokenVerifier, cfg.JWT.Secret),
		Generations:     handler.NewGenerationHandler(generationService, hub, validate),
		Profiles:        handler.NewProfileHandler(profileService, validate),
		Playlists:       handler.NewPlaylistHandler(playlistService, validate),
		Catalog:         handler.NewCatalogHandler(catalogService, validate),
		APIAuth:         apiAuthMiddleware,
		Limiter:         middleware.NewRateLimiter(redisClient),
		GeneratePerHour: cfg.RateLimit.GeneratePerHour,
		CatalogPerMin:   cfg.RateLimit.CatalogPerMin,
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    1 * 1024 * 1024,
	})

	// Global middleware
	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${body}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"redis":   redisClient.Ping(c.Context()).Err() == nil,
				"r2":      archiver != nil,
				"auth":    tokenVerifier != nil || cfg.JWT.Secret != "",
				"pollers": registry.Len(),
			},
		})
	})

	app.Get("/metrics", adaptor.HTTPHandler(telemetry.Handler()))

	routes.Mount(app)

	generationWorker := worker.NewGenerationWorker(
		generationService,
		profileService,
		registry,
		sunoClient,
		timer,
		archiver,
		hub,
		worker.Options{
			Interval:  cfg.Poll.Interval(),
			Readiness: cfg.Poll.Readiness,
			MaxWait:   cfg.Poll.MaxWait,
		},
	)
	srv := newWorkerServer(cfg, redisOpt)
	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeGenerationWatch, generationWorker.ProcessTask)
	if err := srv.Start(mux); err != nil {
		log.Fatalf("Asynq worker error: %v", err)
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Printf("Server error: %v", err)
	}

	// running sessions are canceled through their task contexts
	srv.Shutdown()
}

// closableTimer is a poller.Timer owning background resources
type closableTimer interface {
	poller.Timer
	Close()
}

func newTimer(scheduler string) closableTimer {
	if scheduler == config.SchedulerTicker {
		log.Println("Info: polling with time.Ticker scheduler")
		return poller.NewTickerTimer()
	}
	log.Println("Info: polling with cron scheduler")
	return poller.NewCronTimer()
}

func newWorkerServer(cfg *config.Config, redisOpt asynq.RedisClientOpt) *asynq.Server {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	return asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				service.QueueGenerations: 1,
			},
			LogLevel:        asynqLogLevel,
			ShutdownTimeout: 15 * time.Second,
		},
	)
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
