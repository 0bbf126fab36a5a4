package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"sports-prediction/internal/auth"
	"sports-prediction/internal/blockchain"
	"sports-prediction/internal/cache"
	"sports-prediction/internal/config"
	"sports-prediction/internal/database"
	"sports-prediction/internal/handlers"
	"sports-prediction/internal/jobs"
	"sports-prediction/internal/metrics"
	"sports-prediction/internal/repository"
	"sports-prediction/internal/services"
)

// Per-run batch sizes of the background jobs
const (
	autoPromoteLimit   = 100
	deadlineCloseLimit = 50
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize JWT
	auth.InitJWT(cfg.App.JWTSecret)

	// Connect to database
	if err := database.Connect(cfg.GetDSN()); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	m := metrics.NewSettlementMetrics()

	// Redis is optional; without it pool views live in process memory only
	var poolCache *cache.CacheService
	if cfg.Redis.URL != "" {
		poolCache, err = cache.NewCacheService(cfg.Redis.URL)
		if err != nil {
			log.Printf("Warning: Redis unavailable, continuing without shared cache: %v", err)
			poolCache = nil
		} else {
			defer poolCache.Close()
		}
	}

	// Initialize ledger client
	ledgerClient, err := blockchain.NewLedgerClient(cfg.Ledger)
	if err != nil {
		log.Fatalf("Failed to initialize ledger client: %v", err)
	}

	// Initialize repository
	repo := repository.NewRepository(database.GetDB())

	// Initialize services
	evaluator := services.NewGeminiEvaluator(
		cfg.Scoring.GeminiAPIKey,
		cfg.Scoring.GeminiModel,
		cfg.Scoring.GeminiBaseURL,
		cfg.Scoring.Timeout,
	)
	lifecycle := services.NewLifecycleService(repo, m)
	scoring := services.NewScoringService(repo, evaluator, cfg.Scoring.CallInterval, m)
	mirror := services.NewPoolMirrorService(
		ledgerClient,
		poolCache,
		cfg.Ledger.Decimals,
		cfg.Redis.PoolTTL,
		cfg.Redis.Channel,
		m,
	)
	settlement := services.NewSettlementService(
		repo,
		lifecycle,
		scoring,
		mirror,
		ledgerClient,
		services.NewPollPolicy(cfg.Settlement.DiscoveryAttempts, cfg.Settlement.DiscoveryBackoff),
		cfg.Ledger.DefaultFeeBps,
		m,
	)
	bets := services.NewBetService(repo, lifecycle, ledgerClient, cfg.Ledger.Decimals, m)
	authService := services.NewAuthService(database.GetDB())
	adminService := services.NewAdminService(database.GetDB())

	// Initialize handlers
	oddsHub := handlers.NewOddsHub(mirror, cfg.Server.AllowedOrigins)
	h := handlers.Handlers{
		Auth:        handlers.NewAuthHandler(authService, adminService),
		Admin:       handlers.NewAdminHandler(adminService),
		Predictions: handlers.NewPredictionHandler(lifecycle, scoring, mirror),
		Bets:        handlers.NewBetHandler(bets, settlement),
		Settlement:  handlers.NewSettlementHandler(lifecycle, scoring, settlement),
		Blockchain:  handlers.NewBlockchainHandler(mirror, ledgerClient),
		Odds:        oddsHub,
	}

	// Start background jobs
	poolRefreshJob := jobs.NewPoolRefreshJob(repo, mirror, cfg.Settlement.PoolRefreshInterval)
	go poolRefreshJob.Start()

	deadlineCloser := jobs.NewDeadlineCloser(settlement, cfg.Settlement.DeadlineScanInterval, deadlineCloseLimit)
	go deadlineCloser.Start()

	autoPromoteJob := jobs.NewAutoPromoteJob(settlement, autoPromoteLimit)
	autoPromoteJob.Start(cfg.Settlement.AutoPromoteInterval)

	// Set up Gin router
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	handlers.RegisterRoutes(router, h)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on port %s", cfg.Server.Port)
		log.Printf("Health check: http://localhost:%s/health", cfg.Server.Port)
		log.Printf("Wallet auth: POST http://localhost:%s/auth/wallet", cfg.Server.Port)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	poolRefreshJob.Stop()
	deadlineCloser.Stop()
	autoPromoteJob.Stop()

	// Graceful shutdown with 5 second timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
