// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-relyingparty.
//
// go-relyingparty is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeremyhahn/go-relyingparty/internal/config"
	"github.com/jeremyhahn/go-relyingparty/pkg/correlation"
	"github.com/jeremyhahn/go-relyingparty/pkg/health"
	"github.com/jeremyhahn/go-relyingparty/pkg/logging"
	"github.com/jeremyhahn/go-relyingparty/pkg/ratelimit"
	"github.com/jeremyhahn/go-relyingparty/pkg/storage/sqlite"
	"github.com/jeremyhahn/go-relyingparty/pkg/webauthn"
	webauthnhttp "github.com/jeremyhahn/go-relyingparty/pkg/webauthn/http"
)

var (
	// Version information (set during build)
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "/etc/relyingparty/config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	// Show version if requested
	if *showVersion {
		fmt.Printf("go-relyingparty server\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Git Commit: %s\n", commit)
		fmt.Printf("  Built:      %s\n", date)
		os.Exit(0)
	}

	// Check for config file override via environment
	if envConfig := os.Getenv("RELYINGPARTY_CONFIG"); envConfig != "" {
		*configPath = envConfig
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	logger.Info("Starting relying-party server",
		"config", *configPath,
		"version", version,
		"rp_id", cfg.WebAuthn.RPID,
		"origin", cfg.WebAuthn.RPOrigin,
		"storage", cfg.Storage.Driver)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("Server stopped successfully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	params := webauthn.ServiceParams{
		Config: cfg.WebAuthn.Engine(),
		Logger: logger,
	}

	checker := health.NewChecker()

	// Wire the configured storage driver
	switch strings.ToLower(cfg.Storage.Driver) {
	case "sqlite":
		store, err := sqlite.Open(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("Failed to close store", slog.Any("error", err))
			}
		}()
		params.UserStore = store.Users()
		params.AuthenticatorStore = store.Authenticators()
		params.ChallengeStore = store.Ceremonies()
		checker.RegisterCheck("storage", health.PingCheck("storage", store.DB().PingContext))
	default:
		params.UserStore = webauthn.NewMemoryUserStore()
		params.AuthenticatorStore = webauthn.NewMemoryAuthenticatorStore()
		params.ChallengeStore = webauthn.NewMemoryChallengeStore()
	}

	// Wire token issuance when enabled
	if cfg.Auth.Enabled {
		key, err := loadSigningKey(cfg.Auth.KeyFile)
		if err != nil {
			return fmt.Errorf("load signing key: %w", err)
		}
		tokens, err := webauthn.NewDefaultJWTGenerator(&webauthn.JWTGeneratorConfig{
			PrivateKey: key,
			Issuer:     cfg.Auth.Issuer,
			Audience:   []string{cfg.Auth.Audience},
			ExpiresIn:  cfg.Auth.ExpiresIn.Std(),
		})
		if err != nil {
			return fmt.Errorf("create token generator: %w", err)
		}
		params.TokenGenerator = tokens
	}

	svc, err := webauthn.NewService(params)
	if err != nil {
		return fmt.Errorf("create ceremony service: %w", err)
	}

	handler := webauthnhttp.NewHandler(svc).WithLogger(logger)

	limiter := ratelimit.New(&ratelimit.Config{
		Enabled:           cfg.RateLimit.Enabled,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMin,
		Burst:             cfg.RateLimit.Burst,
	})
	defer limiter.Stop()

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(correlation.Middleware)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1/webauthn", func(r chi.Router) {
		r.Use(ratelimit.Middleware(limiter))
		webauthnhttp.MountChi(r, handler)
	})

	r.Get("/healthz/live", checker.LiveHandler())
	r.Get("/healthz/ready", checker.ReadyHandler())

	if cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Path, promhttp.Handler())
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
		IdleTimeout:  cfg.Server.IdleTimeout.Std(),
	}

	// Setup signal handler for graceful shutdown
	shutdownCtx := setupSignalHandler(logger)

	// Sweep abandoned ceremonies so the pending table does not grow
	// unbounded under begin-without-finish traffic.
	go sweepLoop(shutdownCtx, svc, logger, cfg.WebAuthn.ChallengeTTL.Std())

	// Start the HTTP server in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	logger.Info("HTTP server started", "address", cfg.Server.Address())

	// Wait for shutdown signal or error
	select {
	case <-shutdownCtx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return err
	}

	// Gracefully shutdown
	shutdownTimeout, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer cancel()

	if err := srv.Shutdown(shutdownTimeout); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

// sweepLoop periodically removes expired pending ceremonies. The interval
// tracks the challenge TTL so abandoned entries linger for at most two TTLs.
func sweepLoop(ctx context.Context, svc *webauthn.Service, logger *slog.Logger, ttl time.Duration) {
	if ttl <= 0 {
		ttl = webauthn.DefaultChallengeTTL
	}

	ticker := time.NewTicker(ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := svc.SweepExpiredChallenges(ctx)
			if err != nil {
				logger.Error("Failed to sweep expired challenges", slog.Any("error", err))
				continue
			}
			if removed > 0 {
				logger.Debug("Swept expired challenges", "removed", removed)
			}
		}
	}
}

// loadSigningKey reads a PEM-encoded ECDSA private key used to sign session
// tokens. Both SEC 1 ("EC PRIVATE KEY") and PKCS #8 ("PRIVATE KEY") blocks
// are accepted.
func loadSigningKey(path string) (*ecdsa.PrivateKey, error) {
	// #nosec G304 - Key file path is provided by admin/user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", path)
	}

	switch block.Type {
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse PKCS8 key: %w", err)
		}
		ecKey, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("key in %s is not an ECDSA key", path)
		}
		return ecKey, nil
	default:
		return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
	}
}

// setupSignalHandler sets up signal handling for graceful shutdown
func setupSignalHandler(logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	return ctx
}
