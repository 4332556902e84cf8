package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/frahmantamala/order-management/internal/order"
	orderpg "github.com/frahmantamala/order-management/internal/order/postgres"
	"github.com/frahmantamala/order-management/pkg/logger"
	"github.com/spf13/cobra"
)

// sweepCmd runs the pending-order expiry sweeper as a standalone process,
// for deployments that keep background work off the API servers.
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Start the pending-order expiry sweeper",
	Long:  `Start the background sweeper that abandons pending orders past their expiry deadline.`,
	Run: func(cmd *cobra.Command, args []string) {
		startSweepWorker()
	},
}

func startSweepWorker() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(config.Observability.Logging.Level, config.Observability.Logging.Format)
	log := logger.LoggerWrapper()
	if log == nil {
		log = slog.Default()
	}

	db, err := initDB(config.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}

	sweeper := order.NewSweeper(orderpg.NewOrderRepository(db), config.Orders.SweepInterval, log)

	ctx, cancel := context.WithCancel(context.Background())
	go sweeper.Run(ctx)
	log.Info("sweep worker started", "interval", config.Orders.SweepInterval)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	log.Info("sweep worker shutting down", "signal", sig)
	cancel()
	if err := closeDB(db); err != nil {
		log.Error("database close error", "error", err)
	}
}
