package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/payment-reconciliation/internal/payment"
	"github.com/frahmantamala/payment-reconciliation/pkg/logger"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start background workers that run beside the HTTP server.`,
}

var reconcileWorkerCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Start the payment reconcile worker",
	Long:  `Periodically re-check payments that are still initiated or pending with their gateway.`,
	Run: func(cmd *cobra.Command, args []string) {
		startReconcileWorker()
	},
}

var (
	maxWorkers  int
	batchSize   int
	interval    time.Duration
	gracePeriod time.Duration
	runOnce     bool
)

func startReconcileWorker() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logger.LoggerWrapper()

	stores, err := openStores(config, logger, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer stores.Close(logger)

	stack := buildPaymentStack(config, stores, logger)

	// command line flags override config values
	reconcileConfig := payment.ReconcilerConfig{
		Interval:    getDurationFlag(interval, config.Payment.Reconcile.Interval),
		GracePeriod: getDurationFlag(gracePeriod, config.Payment.Reconcile.GracePeriod),
		BatchSize:   getIntFlag(batchSize, config.Payment.Reconcile.BatchSize),
		MaxWorkers:  getIntFlag(maxWorkers, config.Payment.Reconcile.MaxWorkers),
		JobTimeout:  config.Payment.RequestTimeout * 2,
	}

	logger.Info("starting reconcile worker",
		"interval", reconcileConfig.Interval,
		"grace_period", reconcileConfig.GracePeriod,
		"batch_size", reconcileConfig.BatchSize,
		"max_workers", reconcileConfig.MaxWorkers)

	reconciler := payment.NewReconciler(stack.Service, reconcileConfig, logger)

	if runOnce {
		n, err := reconciler.Sweep(context.Background())
		reconciler.Shutdown()
		stack.EventBus.Wait()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Reconcile sweep failed: %v\n", err)
			os.Exit(1)
		}
		logger.Info("reconcile sweep complete", "payments", n)
		return
	}

	ctx, stop := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		reconciler.Run(ctx)
		close(runDone)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("reconcile worker is running. Press Ctrl+C to stop.")

	sig := <-sigChan
	logger.Info("received signal, shutting down reconcile worker", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shutdownDone := make(chan struct{})
	go func() {
		stop()
		<-runDone
		reconciler.Shutdown()
		stack.EventBus.Wait()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		logger.Info("reconcile worker shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout reached, forcing exit")
	}
}

func getDurationFlag(flagValue, configValue time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func getIntFlag(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func init() {
	reconcileWorkerCmd.Flags().IntVar(&maxWorkers, "max-workers", 0, "Maximum number of workers (overrides config)")
	reconcileWorkerCmd.Flags().IntVar(&batchSize, "batch-size", 0, "Payments checked per sweep (overrides config)")
	reconcileWorkerCmd.Flags().DurationVar(&interval, "interval", 0, "Time between sweeps (overrides config)")
	reconcileWorkerCmd.Flags().DurationVar(&gracePeriod, "grace-period", 0, "Minimum age of a payment before it is re-checked (overrides config)")
	reconcileWorkerCmd.Flags().BoolVar(&runOnce, "once", false, "Run a single sweep and exit")

	workerCmd.AddCommand(reconcileWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
