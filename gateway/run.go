// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"dealgate/platform/audit"
	"dealgate/platform/config"
	"dealgate/platform/consent"
	"dealgate/platform/extraction"
	"dealgate/platform/lineage"
	"dealgate/platform/llm"
	"dealgate/platform/parse"
	"dealgate/platform/ratelimit"
	"dealgate/platform/security"
	"dealgate/platform/shared/logger"
)

// Run wires the full gateway and blocks until SIGINT or SIGTERM.
// Configuration is environment-driven; see config.Load for the full
// variable list. DATABASE_URL is mandatory: consent, audit, and session
// state all live in Postgres.
func Run() {
	cfg := config.Load()
	appLog := logger.New("ai-gateway")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("✅ Database connected")

	consentRepo := consent.NewPostgresRepository(db)
	parseRepo := parse.NewPostgresRepository(db)
	extractionRepo := extraction.NewPostgresRepository(db)
	lineageRepo := lineage.NewPostgresRepository(db)
	for name, create := range map[string]func(context.Context) error{
		"consent":    consentRepo.CreateTables,
		"parse":      parseRepo.CreateTables,
		"extraction": extractionRepo.CreateTables,
		"lineage":    lineageRepo.CreateTables,
	} {
		if err := create(ctx); err != nil {
			log.Fatalf("Failed to create %s tables: %v", name, err)
		}
	}

	auditLog, err := audit.NewLogger(db, appLog)
	if err != nil {
		log.Fatalf("Failed to initialize audit logger: %v", err)
	}
	defer auditLog.Close()

	limiter := ratelimit.NewLimiterFromConfig(ctx, cfg, appLog)

	provider, err := llm.NewProviderFromConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize LLM provider: %v", err)
	}
	log.Printf("✅ LLM provider ready: %s", provider.Name())

	pipeline, err := security.NewPipeline(cfg, appLog)
	if err != nil {
		log.Fatalf("Failed to initialize security pipeline: %v", err)
	}

	consentService := consent.NewService(consentRepo, cfg, appLog)

	handler := NewHandler(Config{
		Limiter:      limiter,
		Consent:      consentService,
		Security:     pipeline,
		Audit:        auditLog,
		Provider:     provider,
		Orchestrator: parse.NewOrchestrator(provider, parseRepo, cfg, appLog),
		Extractor:    extraction.NewExtractor(provider, extractionRepo, cfg.LLMModel, appLog),
		Reconciler:   extraction.NewReconciler(extractionRepo, cfg, appLog),
		Ledger:       lineage.NewLedger(lineageRepo, cfg, appLog),
		Model:        cfg.LLMModel,
		Log:          appLog,
	})

	router := mux.NewRouter()
	router.HandleFunc("/health", healthHandler).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Routes register with full /api paths; the subrouter only scopes
	// the auth middleware away from /health and /metrics.
	authed := router.PathPrefix("/").Subrouter()
	authed.Use(AuthMiddleware([]byte(cfg.JWTSecret), appLog))
	handler.RegisterRoutes(authed)
	consent.NewHandler(consentService).RegisterRoutes(authed)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // Configure for production
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      corsHandler.Handler(router),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		log.Printf("🚀 AI gateway listening on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ Graceful shutdown failed: %v", err)
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"service":   "ai-gateway",
		"timestamp": time.Now().UTC(),
	})
}

