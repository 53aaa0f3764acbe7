package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Kirachon/dsr-payment-service/internal/audit"
	auditstore "github.com/Kirachon/dsr-payment-service/internal/audit/postgres"
	"github.com/Kirachon/dsr-payment-service/internal/batch"
	batchstore "github.com/Kirachon/dsr-payment-service/internal/batch/postgres"
	"github.com/Kirachon/dsr-payment-service/internal/core/events"
	"github.com/Kirachon/dsr-payment-service/internal/payment"
	paymentstore "github.com/Kirachon/dsr-payment-service/internal/payment/postgres"
	"github.com/Kirachon/dsr-payment-service/internal/sweep"
	"github.com/Kirachon/dsr-payment-service/pkg/logger"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background sweep worker",
	Long: `Start the background worker that probes FSP health, retries failed
payments, dispatches scheduled payments and batches, and reconciles payments
stuck in PROCESSING.`,
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

	logger.Init(config.Env)
	lg := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}

	registry, prober, err := initProviders(db, config.Providers, lg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize providers: %v\n", err)
		os.Exit(1)
	}

	eventBus := events.NewEventBus(lg)
	auditService := audit.NewService(auditstore.NewAuditRepository(db), lg)
	audit.RegisterSubscribers(eventBus, auditService)
	paymentRepo := paymentstore.NewPaymentRepository(db)

	paymentService := payment.NewService(
		paymentRepo, registry, auditService, eventBus, lg, config.Dispatch.SubmitTimeout)
	batchService := batch.NewService(
		batchstore.NewBatchRepository(db), paymentRepo, paymentService,
		auditService, eventBus, lg, config.Dispatch)

	retrySweeper := sweep.NewRetrySweeper(paymentRepo, paymentService, config.RetrySweep, lg)
	scheduler := sweep.NewScheduler(paymentRepo, paymentService,
		config.RetrySweep.Interval, config.RetrySweep.Limit, lg)
	reconciler := sweep.NewReconciler(paymentRepo, paymentService, auditService,
		config.Reconciliation, lg)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	run := func(f func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(ctx)
		}()
	}

	run(prober.Run)
	run(retrySweeper.Run)
	run(scheduler.Run)
	run(reconciler.Run)
	run(func(ctx context.Context) {
		runBatchScheduler(ctx, batchService, config.RetrySweep.Interval, lg)
	})

	lg.Info("sweep worker is running. Press Ctrl+C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	lg.Info("received signal, shutting down sweep worker", "signal", sig)

	cancel()

	shutdownDone := make(chan struct{})
	go func() {
		wg.Wait()
		batchService.Shutdown()
		close(shutdownDone)
	}()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	select {
	case <-shutdownDone:
		lg.Info("sweep worker shutdown complete")
	case <-shutdownCtx.Done():
		lg.Warn("shutdown timeout reached, forcing exit")
	}
}

// runBatchScheduler starts batches whose scheduled date has arrived.
func runBatchScheduler(ctx context.Context, batches batch.ServiceAPI, interval time.Duration, lg *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			lg.Info("stopping batch scheduler")
			return
		case <-ticker.C:
			started, err := batches.ProcessScheduled(ctx, time.Now().UTC())
			if err != nil {
				lg.Error("scheduled batch pass failed", "error", err)
				continue
			}
			if started > 0 {
				lg.Info("started scheduled batches", "count", started)
			}
		}
	}
}
