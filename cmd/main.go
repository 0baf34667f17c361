package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"flowershop/internal/config"
	"flowershop/internal/events"
	httpapi "flowershop/internal/http"
	"flowershop/internal/observability"
	"flowershop/internal/repository"
	"flowershop/internal/service"

	_ "flowershop/docs"
)

// @title Flower shop API
// @version 1.0
// @description Catalog, inventory and order backend.
// @host localhost:9091
// @BasePath /api/v1
func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger is not configured yet
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.Env)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracingSDK(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("close store", zap.Error(err))
		}
	}()
	logger.Info("storage ready", zap.String("driver", cfg.DBDriver))

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.KafkaBroker != "" {
		publisher = events.NewKafkaPublisher(cfg.KafkaBroker, cfg.OrderTopic)
		logger.Info("publishing order events", zap.String("broker", cfg.KafkaBroker), zap.String("topic", cfg.OrderTopic))
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("close publisher", zap.Error(err))
		}
	}()

	ledger := service.NewInventoryLedger(store.Products)
	productsSvc := service.NewProductService(store.Products, store.Categories, ledger, store.Tx)
	guard := service.NewCategoryGuard(store.Categories, store.Products, store.Tx, logger)
	ordersSvc := service.NewOrderService(ledger, store.Orders, store.Tx,
		service.WithPublisher(publisher),
		service.WithOrderLogger(logger),
	)
	importSvc := service.NewImportService(service.NewCategoryResolver(store.Categories), productsSvc, store.Tx, logger)

	if !cfg.Development() {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := httpapi.NewServer(httpapi.Deps{
		Products:       productsSvc,
		Categories:     service.NewCategoryService(store.Categories, guard),
		Orders:         ordersSvc,
		Imports:        importSvc,
		Users:          service.NewUserService(store.Users, service.WithUserLogger(logger)),
		Logger:         logger,
		ImportMaxBytes: cfg.ImportMaxBytes,
	})

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: srv.Engine(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(sctx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	return nil
}

func openStore(cfg *config.Config) (*repository.Store, error) {
	if cfg.DBDriver == "memory" {
		return repository.NewMemory(), nil
	}
	db, err := repository.OpenGorm(cfg.DBDriver, cfg.DatabaseDSN, cfg.DBDebug)
	if err != nil {
		return nil, err
	}
	if err := repository.Migrate(db); err != nil {
		return nil, err
	}
	return repository.NewGorm(db), nil
}
