package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"wallet-points-api/internal/config"
	"wallet-points-api/internal/events"
	"wallet-points-api/internal/features"
	"wallet-points-api/internal/handler"
	"wallet-points-api/internal/ledger"
	"wallet-points-api/internal/middleware"
	"wallet-points-api/internal/retry"
	"wallet-points-api/internal/store"
	"wallet-points-api/internal/tracing"
)

func main() {
	configFile := flag.String("config", "", "Path to JSON config file (env vars take precedence)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize tracing
	if _, err := tracing.InitTracing(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Tracing.Environment,
	}); err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	// Initialize storage backend (selected once at startup)
	st, closeStore, err := newStore(cfg.Store)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer closeStore()

	// Feature flags
	flags := features.NewManager()
	flags.Register(features.FeatureCacheEnabled, true, "in-memory wallet cache in front of the store")
	flags.Register(features.FeatureEventHooksEnabled, cfg.Events.Enabled, "async event hooks")
	flags.Register(features.FeatureReferralValidation, cfg.Ledger.ReferralValidation,
		"require conversion codes to match a stored referral link")
	defer flags.Shutdown()

	// Event manager, gated by the registered flag
	eventMgr := events.NewManager(flags.IsEnabled(features.FeatureEventHooksEnabled))
	defer eventMgr.Shutdown()

	// Points ledger
	l, err := ledger.New(st, ledger.Options{
		BaseURL:          cfg.Ledger.BaseURL,
		ClaimExpiryHours: cfg.Ledger.ClaimExpiryHours,
		CacheSize:        cfg.Ledger.CacheSize,
		Features:         flags,
		Events:           eventMgr,
	})
	if err != nil {
		log.Fatalf("Failed to initialize ledger: %v", err)
	}

	// HTTP handlers
	h := handler.NewHandlerWithOptions(l, handler.NewHandlerOptions{
		MaxBodySize: cfg.Server.MaxRequestBodySize,
	})

	// Setup router
	r := chi.NewRouter()

	// Middleware (order matters)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	if cfg.Tracing.Enabled {
		r.Use(middleware.TracingMiddleware())
	}

	var rateLimiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = middleware.NewRateLimiter(cfg.RateLimit.Rate, time.Duration(cfg.RateLimit.Window)*time.Second)
		defer rateLimiter.Stop()
		r.Use(middleware.RateLimitMiddleware(rateLimiter))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.Server.AllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Routes
	h.Routes(r)

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// Graceful shutdown
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down server: %v", err)
		}
		if err := tracing.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracing: %v", err)
		}
	}()

	protocol := "HTTP"
	if cfg.Server.EnableTLS {
		protocol = "HTTPS"
	}
	log.Printf("Starting %s server on %s", protocol, addr)
	log.Printf("Store backend: %s", cfg.Store.Backend)
	if cfg.RateLimit.Enabled {
		log.Printf("Rate limit: %d requests per %d seconds", cfg.RateLimit.Rate, cfg.RateLimit.Window)
	}

	if cfg.Server.EnableTLS {
		err = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
	} else {
		err = server.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed: %v", err)
	}
}

// newStore builds the configured storage backend and returns it with its
// cleanup function.
func newStore(cfg config.StoreConfig) (store.Store, func(), error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return store.NewMemoryStore(), func() {}, nil
	case config.BackendSQLite:
		s, err := store.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case config.BackendRedis:
		// Redis may still be coming up alongside us; retry the initial
		// connect with backoff before giving up.
		runner := retry.New(retry.Config[*store.RedisStore]{
			Attempts: 3,
			Delay:    time.Second,
			Strategy: retry.StrategyExponential,
			MaxDelay: 10 * time.Second,
		})
		s, err := runner.Execute(context.Background(), func(ctx context.Context) (*store.RedisStore, error) {
			return store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		})
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
}
