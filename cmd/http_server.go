package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/payment-reconciliation/internal"
	"github.com/frahmantamala/payment-reconciliation/internal/auth"
	"github.com/frahmantamala/payment-reconciliation/internal/gateway"
	"github.com/frahmantamala/payment-reconciliation/internal/payment"
	"github.com/frahmantamala/payment-reconciliation/internal/transport"
	"github.com/frahmantamala/payment-reconciliation/internal/transport/middleware"
	"github.com/frahmantamala/payment-reconciliation/internal/transport/rest"
	"github.com/frahmantamala/payment-reconciliation/pkg/logger"
	"github.com/go-chi/chi"
	"github.com/spf13/cobra"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests and gateway webhooks`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config *internal.Config
	Stores *Stores
	Stack  *PaymentStack
	Router *chi.Mux
	Logger *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	if err := setupRoutes(deps); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up routes: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
		// let in-flight payment notifications finish
		deps.Stack.EventBus.Wait()
		deps.Stores.Close(deps.Logger)
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("Server stopped")
}

func setupRoutes(deps *Dependencies) error {
	cfg := deps.Config
	base := transport.NewBaseHandler(deps.Logger)

	publicKey, err := cfg.Security.GetPublicKey()
	if err != nil {
		// without a key every bearer token is rejected
		deps.Logger.Warn("JWT public key not configured", "error", err)
		publicKey = nil
	}

	opts := rest.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}
	if cfg.Payment.OpenAPISpecPath != "" {
		doc, err := middleware.LoadOpenAPI(context.Background(), cfg.Payment.OpenAPISpecPath)
		if err != nil {
			return err
		}
		validator, err := middleware.OpenAPIValidator(doc, deps.Logger)
		if err != nil {
			return err
		}
		opts.OpenAPIPath = cfg.Payment.OpenAPISpecPath
		opts.Validator = validator
	}

	var cachePinger rest.Pinger
	if deps.Stores.Cache != nil {
		cachePinger = deps.Stores.Cache
	}

	rest.RegisterAllRoutes(deps.Router, rest.Handlers{
		Health:  rest.NewHealthHandler(deps.Stores.DB, cachePinger),
		Auth:    auth.NewHandler(base, auth.NewJWTVerifier(publicKey, cfg.Security.JWTIssuer)),
		Payment: payment.NewHandler(base, deps.Stack.Service),
		Webhook: payment.NewWebhookHandler(base, deps.Stack.Service),
		Gateway: gateway.NewHandler(base, deps.Stack.Gateways),
	}, opts, deps.Logger)
	return nil
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	lg := logger.LoggerWrapper()

	stores, err := openStores(config, lg, true)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &Dependencies{
		Config: config,
		Stores: stores,
		Stack:  buildPaymentStack(config, stores, lg),
		Router: chi.NewRouter(),
		Logger: lg,
	}, nil
}
