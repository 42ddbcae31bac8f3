package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/payment-reconciliation/internal"
	"github.com/frahmantamala/payment-reconciliation/internal/cache"
	"github.com/frahmantamala/payment-reconciliation/internal/core/events"
	"github.com/frahmantamala/payment-reconciliation/internal/gateway"
	gatewayPostgres "github.com/frahmantamala/payment-reconciliation/internal/gateway/postgres"
	"github.com/frahmantamala/payment-reconciliation/internal/payment"
	paymentPostgres "github.com/frahmantamala/payment-reconciliation/internal/payment/postgres"
	"github.com/frahmantamala/payment-reconciliation/internal/user"
	userPostgres "github.com/frahmantamala/payment-reconciliation/internal/user/postgres"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Stores are the shared connections behind every command.
type Stores struct {
	DB    *sqlx.DB
	Gorm  *gorm.DB
	Cache *cache.Client
}

func (s *Stores) Close(logger *slog.Logger) {
	if s.Cache != nil {
		if err := s.Cache.Close(); err != nil {
			logger.Error("Redis close error", "error", err)
		}
	}
	if err := s.DB.Close(); err != nil {
		logger.Error("Database close error", "error", err)
	}
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return dbConn, nil
}

// initGorm shares the sqlx pool so both layers see one set of connections.
func initGorm(db *sqlx.DB, env string) (*gorm.DB, error) {
	level := gormLogger.Warn
	if env == "production" {
		level = gormLogger.Error
	}

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger: gormLogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm: %w", err)
	}
	return gdb, nil
}

func openStores(cfg *internal.Config, logger *slog.Logger, withCache bool) (*Stores, error) {
	db, err := initDB(cfg.Database)
	if err != nil {
		return nil, err
	}

	gdb, err := initGorm(db, cfg.Env)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	stores := &Stores{DB: db, Gorm: gdb}
	if withCache {
		stores.Cache = cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// the initiation throttle fails open, so a missing redis is not fatal
		if err := stores.Cache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, initiation throttle disabled until it recovers", "addr", cfg.Redis.Addr, "error", err)
		}
	}
	return stores, nil
}

// PaymentStack is the reconciliation core shared by the server and the worker.
type PaymentStack struct {
	Gateways *gateway.Manager
	Service  *payment.Service
	EventBus *events.EventBus
}

func buildPaymentStack(cfg *internal.Config, stores *Stores, logger *slog.Logger) *PaymentStack {
	gatewayRepo := gatewayPostgres.NewGatewayRepository(stores.Gorm)
	manager := gateway.NewManager(
		gatewayRepo,
		gateway.DefaultFactory(gateway.SettingsFromConfig(cfg.Payment), nil, gatewayRepo, logger),
		logger,
	)

	eventBus := events.NewEventBus(logger)
	payment.NewEventHandler(logger).RegisterEventHandlers(eventBus)

	users := user.NewService(userPostgres.NewUserRepository(stores.Gorm))
	repo := paymentPostgres.NewPaymentRepository(stores.Gorm)
	stats := paymentPostgres.NewStatsRepository(stores.DB)
	ledger := payment.NewLedger(repo, users, logger)
	engine := payment.NewEngine(repo, eventBus, logger)

	var limiter payment.RateLimiter = allowAll{}
	if stores.Cache != nil {
		limiter = cache.NewRateLimiter(stores.Cache, cfg.Payment.CooldownOrDefault(), logger)
	}

	service := payment.NewService(repo, stats, ledger, engine, manager, limiter, payment.Options{
		ReturnURL:      cfg.Payment.ReturnURL,
		WebhookBaseURL: webhookBaseURL(cfg),
	}, logger)

	return &PaymentStack{
		Gateways: manager,
		Service:  service,
		EventBus: eventBus,
	}
}

func webhookBaseURL(cfg *internal.Config) string {
	if cfg.Payment.WebhookBaseURL != "" {
		return cfg.Payment.WebhookBaseURL
	}
	return cfg.Server.BaseURL
}

// allowAll is the limiter for commands that never initiate payments.
type allowAll struct{}

func (allowAll) Allow(ctx context.Context, userID int64) bool { return true }
