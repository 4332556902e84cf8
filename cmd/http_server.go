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

	"github.com/frahmantamala/order-management/internal"
	"github.com/frahmantamala/order-management/internal/auth"
	"github.com/frahmantamala/order-management/internal/core/events"
	"github.com/frahmantamala/order-management/internal/identifier"
	"github.com/frahmantamala/order-management/internal/inventory"
	inventorypg "github.com/frahmantamala/order-management/internal/inventory/postgres"
	"github.com/frahmantamala/order-management/internal/invoice"
	"github.com/frahmantamala/order-management/internal/order"
	orderpg "github.com/frahmantamala/order-management/internal/order/postgres"
	"github.com/frahmantamala/order-management/internal/paymentgateway"
	"github.com/frahmantamala/order-management/internal/storage"
	"github.com/frahmantamala/order-management/internal/transport/rest"
	"github.com/frahmantamala/order-management/pkg/logger"

	"github.com/go-chi/chi"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config         *internal.Config
	DB             *gorm.DB
	Router         *chi.Mux
	AuthHandler    *auth.Handler
	OrderHandler   *order.Handler
	WebhookHandler *order.WebhookHandler
	ReconcilePool  *order.ReconcilePool
	Sweeper        *order.Sweeper
	Logger         *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	setupRoutes(deps)

	// The sweeper abandons expired pending orders in the background for as
	// long as the server runs.
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go deps.Sweeper.Run(sweepCtx)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	slog.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		stopSweeper()
		deps.ReconcilePool.Shutdown()
		if err := closeDB(deps.DB); err != nil {
			slog.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
		stopSweeper()
		deps.ReconcilePool.Shutdown()
	}

	slog.Info("Server stopped")
}

func setupRoutes(deps *Dependencies) {
	sqlDB, err := deps.DB.DB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to access database pool: %v\n", err)
		os.Exit(1)
	}

	rest.RegisterAllRoutes(
		deps.Router,
		sqlDB,
		deps.AuthHandler,
		deps.OrderHandler,
		deps.WebhookHandler,
		deps.Logger,
	)
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(config.Observability.Logging.Level, config.Observability.Logging.Format)
	log := logger.LoggerWrapper()
	if log == nil {
		log = slog.Default()
	}

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	eventBus := events.NewEventBus(log)

	inventoryRepo := inventorypg.NewInventoryRepository(db)
	inventoryService := inventory.NewService(inventoryRepo, log)

	gatewayClient := paymentgateway.NewClient(paymentgateway.Config{
		BaseURL:     config.Payment.BaseURL,
		SecretKey:   config.Payment.SecretKey,
		CallbackURL: config.Payment.CallbackURL,
		Timeout:     config.Payment.Timeout,
	}, log)

	store, err := storage.NewS3Store(context.Background(), config.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object storage: %w", err)
	}
	invoiceService := invoice.NewService(store, config.Invoice.VerifyBaseURL, config.Invoice.CompanyName, log)

	orderRepo := orderpg.NewOrderRepository(db)
	orderService := order.NewService(
		orderRepo,
		inventoryService,
		gatewayClient,
		identifier.NewGenerator(),
		invoiceService,
		eventBus,
		config.Orders.PendingTTL,
		log,
	)

	reconcilePool := order.NewReconcilePool(
		orderService,
		config.Orders.ReconcileWorkers,
		config.Orders.ReconcileQueue,
		log,
	)

	publicKey, err := config.Security.GetPublicKey()
	if err != nil {
		return nil, fmt.Errorf("failed to load JWT public key: %w", err)
	}
	authHandler := auth.NewHandler(auth.NewTokenValidator(publicKey))

	return &Dependencies{
		Config:         config,
		Logger:         log,
		DB:             db,
		Router:         chi.NewRouter(),
		AuthHandler:    authHandler,
		OrderHandler:   order.NewHandler(orderService),
		WebhookHandler: order.NewWebhookHandler(gatewayClient, orderRepo, reconcilePool),
		ReconcilePool:  reconcilePool,
		Sweeper:        order.NewSweeper(orderRepo, config.Orders.SweepInterval, log),
	}, nil
}

// initDB opens the database through gorm with error translation enabled so
// repositories can match on gorm.ErrDuplicatedKey.
func initDB(cfg internal.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.Source), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access db pool: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close on failure
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
