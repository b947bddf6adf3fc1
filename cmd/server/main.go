package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai-chat-app/backend/internal/repository"
	"ai-chat-app/backend/pkg/config"
	"ai-chat-app/backend/pkg/di"
	"ai-chat-app/backend/pkg/logger"
	"ai-chat-app/backend/pkg/router"
	"ai-chat-app/backend/pkg/secrets"
	"ai-chat-app/backend/shared/grpchealth"
	"ai-chat-app/backend/shared/observability"
)

func main() {
	// Loads .env on first use
	cfg := config.New()

	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"

	log := logger.New(logConfig)
	logger.SetGlobal(log)

	log.Info("Starting application", "env", cfg.Server.Env, "version", cfg.Server.Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loadSecrets(ctx, cfg, log)

	if cfg.Observability.TracingEnabled {
		shutdown, err := observability.SetupTracing(cfg.Service(), observability.TracingOptions{
			SampleRatio: float64(cfg.Observability.TraceSampleRatio),
		})
		if err != nil {
			log.LogError(err, "Failed to initialize tracing")
		} else {
			defer shutdown(context.Background())
		}
	}

	db, err := config.NewDB(ctx, cfg)
	if err != nil {
		log.LogError(err, "Failed to initialize database")
		os.Exit(1)
	}

	if err := repository.Migrate(db); err != nil {
		log.LogError(err, "Failed to migrate database")
		os.Exit(1)
	}

	container, err := di.New(cfg, db, log)
	if err != nil {
		log.LogError(err, "Failed to initialize dependency container")
		os.Exit(1)
	}
	defer container.Close()

	container.Health.Start(ctx)

	r := router.New(container)
	if cfg.Observability.OpenAPIValidation {
		if err := r.AddOpenAPIValidation(cfg.Observability.OpenAPISchema); err != nil {
			log.LogError(err, "OpenAPI validation disabled")
		}
	}
	r.SetupRoutes()

	if port := cfg.Observability.GRPCHealthPort; port != "" {
		lis, err := net.Listen("tcp", ":"+port)
		if err != nil {
			log.LogError(err, "Failed to listen for gRPC health", "port", port)
		} else {
			hs := grpchealth.New(container.Health, log)
			go func() {
				log.Info("gRPC health server starting", "port", port)
				if err := hs.Serve(ctx, lis, 10*time.Second); err != nil {
					log.LogError(err, "gRPC health server stopped")
				}
			}()
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		// generation can take most of the AI timeout
		WriteTimeout: cfg.AI.Timeout + cfg.Server.Timeout,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogError(err, "Server failed to start")
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.LogError(err, "Server forced to shutdown")
	}

	log.Info("Server exited gracefully")
}

// loadSecrets overrides the JWT secret and Gemini key from Vault when enabled,
// otherwise from the environment.
func loadSecrets(ctx context.Context, cfg *config.Config, log *logger.Logger) {
	var src secrets.Source = secrets.Env{}
	if cfg.Vault.Enabled {
		v, err := secrets.NewVault(secrets.VaultConfig{
			Address:   cfg.Vault.Address,
			Token:     cfg.Vault.Token,
			Namespace: cfg.Vault.Namespace,
			Path:      cfg.Vault.Path,
		})
		if err != nil {
			log.LogError(err, "Vault unavailable, reading secrets from the environment")
		} else {
			src = secrets.Chain{v, secrets.Env{}}
		}
	}

	secrets.Apply(ctx, src, log, map[string]*string{
		secrets.KeyJWTSecret:    &cfg.JWT.Secret,
		secrets.KeyGeminiAPIKey: &cfg.AI.APIKey,
	})

	if cfg.IsProduction() && cfg.JWT.Secret == "default-jwt-secret-do-not-use-in-production" {
		log.Error("JWT_SECRET must be set in production")
		os.Exit(1)
	}
}
