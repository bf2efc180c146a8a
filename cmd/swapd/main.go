package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Aidin1998/swaptrade/api"
	"github.com/Aidin1998/swaptrade/internal/config"
	"github.com/Aidin1998/swaptrade/internal/database"
	"github.com/Aidin1998/swaptrade/internal/marketdata"
	"github.com/Aidin1998/swaptrade/internal/messaging"
	"github.com/Aidin1998/swaptrade/internal/swap"
	"github.com/Aidin1998/swaptrade/internal/swap/jobqueue"
	"github.com/Aidin1998/swaptrade/internal/telemetry"
	"github.com/Aidin1998/swaptrade/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	var paths []string
	if p := os.Getenv("SWAPTRADE_CONFIG"); p != "" {
		paths = append(paths, p)
	}
	cfg, err := config.Load(paths...)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logging.Level,
		Encoding: cfg.Logging.Encoding,
		Service:  cfg.Telemetry.ServiceName,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zapLogger); err != nil {
		zapLogger.Fatal("swapd exited with error", zap.Error(err))
	}
	zapLogger.Info("Server exited properly")
}

func run(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) error {
	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.TracingEnabled,
		MetricsEnabled: cfg.Telemetry.MetricsEnabled,
		ServiceName:    cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			zapLogger.Error("Failed to flush traces", zap.Error(err))
		}
	}()

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", cfg.Database.Driver, err)
	}
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			return err
		}
	}

	registry := marketdata.NewStaticRegistry(cfg.Swap.Assets...)
	var prices marketdata.PriceProvider
	var reserves marketdata.ReserveProvider
	if cfg.Redis.Enabled {
		client, err := database.NewRedisClient(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer client.Close()
		provider := marketdata.NewRedisProvider(client, cfg.Redis.KeyPrefix)
		prices, reserves = provider, provider
	} else {
		provider := marketdata.NewMemoryProvider()
		if err := provider.Seed(cfg.MarketData.Prices, cfg.MarketData.Reserves); err != nil {
			return fmt.Errorf("invalid market_data seed: %w", err)
		}
		if len(cfg.MarketData.Prices) == 0 {
			zapLogger.Warn("Redis market data disabled and market_data.prices is empty; every swap will fail with NO_MARKET_DATA")
		} else {
			zapLogger.Info("Using in-memory market data",
				zap.Int("prices", len(cfg.MarketData.Prices)),
				zap.Int("reserves", len(cfg.MarketData.Reserves)))
		}
		prices, reserves = provider, provider
	}

	var publisher messaging.Publisher = messaging.NopPublisher{}
	if cfg.Kafka.Enabled {
		kp, err := messaging.NewKafkaPublisher(&messaging.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			WriteTimeout: cfg.Kafka.WriteTimeout,
			BatchTimeout: cfg.Kafka.BatchTimeout,
			RequiredAcks: cfg.Kafka.RequiredAcks,
			MaxAttempts:  3,
		}, zapLogger)
		if err != nil {
			return fmt.Errorf("failed to create kafka publisher: %w", err)
		}
		publisher = kp
	}
	defer publisher.Close()

	var queue jobqueue.Queue
	switch cfg.Queue.Backend {
	case "badger":
		bq, err := jobqueue.NewBadgerQueue(cfg.Queue.BadgerPath, cfg.Queue.Capacity)
		if err != nil {
			return fmt.Errorf("failed to open job queue: %w", err)
		}
		queue = bq
	default:
		queue = jobqueue.NewMemoryQueue(cfg.Queue.Capacity)
	}
	defer queue.Close()

	orch, err := swap.NewOrchestrator(swap.ConfigFromApp(cfg), swap.Dependencies{
		DB:        db,
		Registry:  registry,
		Prices:    prices,
		Reserves:  reserves,
		Queue:     queue,
		Publisher: publisher,
		Logger:    zapLogger,
	})
	if err != nil {
		return err
	}

	apiServer, err := api.NewServer(zapLogger, orch, api.Options{
		ServiceName:    cfg.Telemetry.ServiceName,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimit:      cfg.Server.RateLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}
	httpServer := apiServer.HTTPServer(cfg.Server.Addr(), cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)

	if err := orch.Start(ctx); err != nil {
		return err
	}
	defer orch.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		database.ReportPoolStats(gctx, db, cfg.Database.Driver, 30*time.Second, zapLogger)
		return nil
	})
	g.Go(func() error {
		zapLogger.Info("Starting API server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zapLogger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
