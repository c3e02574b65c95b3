package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"concord/internal/auth"
	"concord/internal/config"
	"concord/internal/handler"
	"concord/internal/middleware"
	"concord/internal/repository/postgres"
	"concord/internal/service/debate"
	"concord/internal/service/invoke"
	"concord/internal/service/ledger"
	"concord/internal/service/notify"
	"concord/internal/service/payment"
	"concord/internal/service/pending"
	"concord/internal/service/video"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
	)

	// Cost table drives all pricing
	costs, err := config.LoadCostTable(cfg.CostsPath)
	if err != nil {
		log.Fatalf("Failed to load cost table: %v", err)
	}

	// Create JWT verifier for Supabase authentication
	jwtVerifier, err := auth.NewJWTVerifier(cfg.SupabaseJWKSURL, logger)
	if err != nil {
		log.Fatalf("Failed to create JWT verifier: %v", err)
	}
	defer jwtVerifier.Close()

	// Create pgx connection pool
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.CreateConnectionPool(ctx, cfg.SupabaseDBURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	logger.Info("database connected",
		"max_conns", 25,
		"min_conns", 5,
	)

	// Create repositories
	tables := postgres.NewTableNames(cfg.TablePrefix)
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	debateRepo := postgres.NewDebateRepository(repoConfig)
	turnRepo := postgres.NewTurnRepository(repoConfig)
	providerRepo := postgres.NewProviderRepository(repoConfig)
	ledgerRepo := postgres.NewLedgerRepository(repoConfig)
	eventRepo := postgres.NewPaymentEventRepository(repoConfig)
	pendingRepo := postgres.NewPendingRequestRepository(repoConfig)
	videoRepo := postgres.NewVideoJobRepository(repoConfig)
	txManager := postgres.NewTransactionManager(pool)

	// Create services
	notifier := notify.NewLogNotifier(logger)
	ledgerService := ledger.NewService(ledgerRepo, costs, cfg.FreeTrial, logger)
	invokeRegistry := invoke.NewRegistry(logger)
	executor := debate.NewExecutor(providerRepo, invokeRegistry, logger)
	debateService := debate.NewService(debateRepo, turnRepo, providerRepo, ledgerService, executor, notifier, debate.Options{
		Rounds:              cfg.DebateRounds,
		MaxParticipants:     cfg.MaxParticipants,
		LowBalanceThreshold: cfg.LowBalanceThreshold,
	}, logger)
	videoManager := video.NewManager(videoRepo, ledgerService, notifier, logger)
	resumer := pending.NewResumer(pendingRepo, ledgerService, videoManager, logger)
	ingestor := payment.NewIngestor(eventRepo, ledgerService, txManager, resumer, notifier, logger)
	nowpaymentsVerifier := payment.NewNowPaymentsVerifier(cfg.NowPaymentsIPNSecret)
	stripeVerifier := payment.NewStripeVerifier(cfg.StripeWebhookSecret)

	// Compose dispatch loop
	composerClient := video.NewClient(cfg.ComposerURL, cfg.ComposerSecret, logger)
	worker := video.NewWorker(videoRepo, videoManager, composerClient, cfg.WorkerPollPeriod, logger)
	go worker.Run(ctx)

	// Create handlers
	debateHandler := handler.NewDebateHandler(debateService, cfg.DebateTimeout, logger)
	accountHandler := handler.NewAccountHandler(ledgerService, logger)
	videoHandler := handler.NewVideoHandler(videoManager, resumer, logger)
	webhookHandler := handler.NewWebhookHandler(
		nowpaymentsVerifier,
		stripeVerifier,
		ingestor,
		videoManager,
		resumer,
		cfg.ComposerSecret,
		logger,
	)

	logger.Info("services initialized")

	// Create HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", handler.HealthCheck)

	// Debate routes
	mux.HandleFunc("POST /api/debates", debateHandler.CreateDebate)
	mux.HandleFunc("GET /api/debates", debateHandler.ListDebates)
	mux.HandleFunc("GET /api/debates/{id}", debateHandler.GetDebate)
	mux.HandleFunc("GET /api/debates/{id}/turns", debateHandler.ListTurns)
	mux.HandleFunc("POST /api/debates/{id}/messages", debateHandler.AddMessage)

	// Account routes
	mux.HandleFunc("GET /api/account/balance", accountHandler.GetBalance)
	mux.HandleFunc("GET /api/account/ledger", accountHandler.GetLedger)

	// Video routes
	mux.HandleFunc("POST /api/videos/compose", videoHandler.StartCompose)
	mux.HandleFunc("GET /api/videos/jobs/{id}", videoHandler.JobStatus)

	// Payment gateway webhooks (signature-authenticated)
	mux.HandleFunc("POST /api/webhooks/nowpayments", webhookHandler.NowPayments)
	mux.HandleFunc("POST /api/webhooks/stripe", webhookHandler.Stripe)

	// Composer callbacks (shared-secret authenticated)
	mux.HandleFunc("POST /api/internal/jobs/{id}/complete", webhookHandler.CompleteJob)
	mux.HandleFunc("POST /api/internal/jobs/{id}/fail", webhookHandler.FailJob)
	mux.HandleFunc("POST /api/internal/process-pending", webhookHandler.ProcessPending)

	// Build middleware chain
	var httpHandler http.Handler = mux

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS -> Recovery -> Auth -> Routes
	httpHandler = middleware.Auth(jwtVerifier)(httpHandler)
	httpHandler = middleware.Recovery(logger)(httpHandler)

	// CORS - Must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
	})
	httpHandler = corsHandler.Handler(httpHandler)

	// Create HTTP server. The write timeout sits above the session watchdog
	// because debates run synchronously inside the request.
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.DebateTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	// Start server
	logger.Info("server listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}
