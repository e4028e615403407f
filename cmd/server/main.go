package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"datapipe/internal/config"
	"datapipe/internal/database"
	"datapipe/internal/handlers"
	"datapipe/internal/jobs"
	"datapipe/internal/logging"
	"datapipe/internal/middleware"
	"datapipe/internal/pipeline"
	"datapipe/internal/preflight"
	"datapipe/internal/services"
	"datapipe/internal/store"
	"datapipe/internal/store/mongostore"
	"datapipe/internal/store/sqlstore"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	logging.Init()
	log.Println("🚀 Starting datapipe server...")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	ctx := context.Background()
	st := openStore(ctx, cfg)
	defer st.Close(context.Background())

	results := preflight.NewChecker(st, cfg).RunAll(ctx)
	if preflight.HasFailures(results) {
		if cfg.Environment == "production" {
			log.Fatal("❌ Pre-flight checks failed")
		}
		log.Println("⚠️  Pre-flight checks failed, continuing outside production")
	}

	health := map[string]handlers.Pinger{"database": st}

	// Redis is optional: it backs the per-scope apply limit and the cleanup lock
	var redisService *services.RedisService
	if cfg.RedisURL != "" {
		var err error
		redisService, err = services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️  Failed to connect to Redis: %v (apply limit and job lock disabled)", err)
		} else {
			defer redisService.Close()
			health["redis"] = redisService
		}
	}

	metrics := services.InitMetrics()

	// Core pipeline
	completion := services.NewCompletionService(cfg, metrics)
	analytics := services.NewAnalyticsService(cfg, metrics)
	summarizer := pipeline.NewSummarizer(completion)
	orchestrator := pipeline.NewOrchestrator(st, pipeline.NewResolver(st, analytics), completion, summarizer)

	scraper := services.NewScraper(services.ScraperOptions{
		Timeout:         30 * time.Second,
		BrowserFallback: cfg.ScraperBrowserFallback,
	})
	ingest := services.NewIngestService(st, summarizer, scraper, metrics)

	// Agents and their tools
	tools := services.NewToolRegistry()
	stopWatch := make(chan struct{})
	if cfg.AgentToolsFile != "" {
		if err := tools.LoadFile(cfg.AgentToolsFile); err != nil {
			log.Printf("⚠️  Failed to load tools file: %v", err)
		}
		go func() {
			if err := tools.WatchFile(cfg.AgentToolsFile, stopWatch); err != nil {
				log.Printf("⚠️  Tools file watcher stopped: %v", err)
			}
		}()
	}
	executor := services.NewToolExecutor(cfg.AgentToolsBaseURL, cfg.AgentToolTimeout)
	agents := services.NewAgentService(cfg, st, completion, tools, executor, metrics)

	// Research
	skyvern := services.NewSkyvernClient(cfg.SkyvernBaseURL, cfg.SkyvernAPIKey)
	if !skyvern.Configured() {
		log.Println("⚠️  SKYVERN_API_KEY not set, research endpoints will fail")
	}
	research := services.NewResearchService(cfg, st, skyvern, metrics)

	// Background jobs
	var locker jobs.Locker
	if redisService != nil {
		locker = redisService
	}
	jobScheduler, err := jobs.NewJobScheduler(locker)
	if err != nil {
		log.Fatalf("❌ Failed to create job scheduler: %v", err)
	}
	if cfg.ResearchCleanupCron != "" {
		if err := jobScheduler.Register("research-cleanup", cfg.ResearchCleanupCron, jobs.NewResearchCleanupJob(research)); err != nil {
			log.Fatalf("❌ %v", err)
		}
	}
	jobScheduler.Start()

	app := fiber.New(fiber.Config{
		AppName:      "datapipe",
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute, // apply_prompt runs one completion per combination
		IdleTimeout:  2 * time.Minute,
		BodyLimit:    50 * 1024 * 1024, // base64 file uploads
	})

	app.Use(recover.New())
	app.Use(logger.New())

	prometheus := fiberprometheus.New("datapipe")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	allowedOrigins := cfg.AllowedOrigins
	if allowedOrigins == "" {
		allowedOrigins = "*"
		log.Println("⚠️  ALLOWED_ORIGINS not set, allowing all origins")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: allowedOrigins != "*",
	}))

	rateLimits := middleware.LoadRateLimitConfig(cfg.ApplyRateLimitPerMinute)
	app.Use(middleware.GlobalAPIRateLimiter(rateLimits))
	log.Printf("🛡️  [RATE-LIMIT] Global=%d/min, Webhook=%d/min, Apply=%d/min per scope",
		rateLimits.GlobalAPIMax, rateLimits.WebhookMax, rateLimits.ApplyMax)

	var applyCounter middleware.WindowCounter
	if redisService != nil {
		applyCounter = redisService
	}

	router := &handlers.Router{
		Objects:      handlers.NewObjectHandler(ingest, services.NewObjectService(st)),
		Prompts:      handlers.NewPromptHandler(orchestrator, services.NewProjectService(st), metrics),
		Agents:       handlers.NewAgentHandler(agents, tools),
		Research:     handlers.NewResearchHandler(research),
		Health:       handlers.NewHealthHandler(health),
		RateLimits:   rateLimits,
		ApplyCounter: applyCounter,
	}
	router.Register(app)

	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("🛑 Shutting down server...")
		close(stopWatch)

		if err := jobScheduler.Stop(); err != nil {
			log.Printf("⚠️  Error stopping job scheduler: %v", err)
		}
		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️  Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

// openStore connects MongoDB when MONGODB_URI is set and the SQL database otherwise
func openStore(ctx context.Context, cfg *config.Config) store.Store {
	if cfg.MongoURI != "" {
		log.Println("🔗 Connecting to MongoDB...")
		mongoDB, err := database.NewMongoDB(cfg.MongoURI)
		if err != nil {
			log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
		}
		if err := mongoDB.Initialize(ctx); err != nil {
			log.Fatalf("❌ Failed to initialize MongoDB: %v", err)
		}
		log.Println("✅ MongoDB connected successfully")
		return mongostore.New(mongoDB)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	if err := db.Initialize(ctx); err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}
	log.Printf("✅ %s database ready", db.Dialect)
	return sqlstore.New(db)
}
