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

	"github.com/Kirachon/dsr-payment-service/internal"
	"github.com/Kirachon/dsr-payment-service/internal/audit"
	auditstore "github.com/Kirachon/dsr-payment-service/internal/audit/postgres"
	"github.com/Kirachon/dsr-payment-service/internal/batch"
	batchstore "github.com/Kirachon/dsr-payment-service/internal/batch/postgres"
	"github.com/Kirachon/dsr-payment-service/internal/core/events"
	"github.com/Kirachon/dsr-payment-service/internal/payment"
	paymentstore "github.com/Kirachon/dsr-payment-service/internal/payment/postgres"
	"github.com/Kirachon/dsr-payment-service/internal/provider"
	providerstore "github.com/Kirachon/dsr-payment-service/internal/provider/postgres"
	"github.com/Kirachon/dsr-payment-service/internal/transport/rest"
	"github.com/Kirachon/dsr-payment-service/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle disbursement API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config         *internal.Config
	DB             *gorm.DB
	Router         *chi.Mux
	Registry       *provider.Registry
	Prober         *provider.Prober
	PaymentService *payment.Service
	BatchService   *batch.Service
	Logger         *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	// seed provider health before accepting traffic, then keep probing
	proberCtx, cancelProber := context.WithCancel(context.Background())
	go deps.Prober.Run(proberCtx)

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
		cancelProber()
		deps.BatchService.Shutdown()
		if sqlDB, err := deps.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				slog.Error("Database close error", "error", err)
			}
		}
	case err := <-serverErrChan:
		cancelProber()
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(config.Env)
	lg := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	registry, prober, err := initProviders(db, config.Providers, lg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
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

	router := chi.NewRouter()
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap sql.DB: %w", err)
	}

	providerHandler := provider.NewHandler(registry)
	rest.RegisterAllRoutes(router, sqlDB,
		payment.NewHandler(paymentService),
		batch.NewHandler(batchService),
		providerHandler,
		audit.NewHandler(auditService),
		lg)

	return &Dependencies{
		Config:         config,
		DB:             db,
		Router:         router,
		Registry:       registry,
		Prober:         prober,
		PaymentService: paymentService,
		BatchService:   batchService,
		Logger:         lg,
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*gorm.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	db, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: dbConn.DB}), &gorm.Config{
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to wrap db connection: %w", err)
	}

	return db, nil
}

// initProviders builds the registry and registers an adapter for every
// configured FSP. Only sandbox configurations get the built-in simulator;
// production FSP integrations register their own adapters here as they land.
func initProviders(db *gorm.DB, cfg internal.ProvidersConfig, lg *slog.Logger) (*provider.Registry, *provider.Prober, error) {
	store := providerstore.NewConfigRepository(db)
	registry := provider.NewRegistry(store, lg)

	configs, err := store.GetAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load FSP configurations: %w", err)
	}

	for _, fspConfig := range configs {
		if !fspConfig.Sandbox {
			lg.Warn("no adapter implemented for non-sandbox FSP, skipping",
				"fsp_code", fspConfig.FSPCode)
			continue
		}

		min := decimal.Zero
		if fspConfig.MinAmount != nil {
			min = *fspConfig.MinAmount
		}
		max := decimal.NewFromInt(1_000_000)
		if fspConfig.MaxAmount != nil {
			max = *fspConfig.MaxAmount
		}

		adapter := provider.NewMockAdapter(fspConfig.FSPCode, fspConfig.Methods(), min, max)
		if err := registry.Register(adapter); err != nil {
			return nil, nil, err
		}
	}

	prober := provider.NewProber(registry, cfg.HealthCheckInterval, cfg.ProbeTimeout, lg)
	return registry, prober, nil
}
