package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shubham-shewale/price-broadcast/cmd/gateway/internal/api"
	"github.com/shubham-shewale/price-broadcast/cmd/gateway/internal/broadcaster"
	"github.com/shubham-shewale/price-broadcast/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/price-broadcast/cmd/gateway/internal/quotes"
	"github.com/shubham-shewale/price-broadcast/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/price-broadcast/pkg/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	var rdb *redis.Client
	if cfg.Store.Backend == "redis" || cfg.Registry.Source == "redis" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
	}

	registry, err := newRegistry(cfg, rdb)
	if err != nil {
		logger.Fatal("Failed to build symbol registry", zap.Error(err))
	}
	source := newSource(cfg, logger)

	var store repository.SnapshotStore = repository.NewMemoryStore()
	if cfg.Store.Backend == "redis" {
		store = repository.NewRedisStore(rdb, cfg.Store.TTL)
	}

	var publisher repository.TickPublisher
	if cfg.Kafka.Enabled {
		publisher = repository.NewKafkaTickPublisher(repository.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		logger.Info("Publishing ticks to Kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	wsHub := hub.NewHub(logger)
	svc := broadcaster.NewService(source, registry, store, publisher, wsHub, logger, broadcaster.Options{
		Interval:         cfg.Broadcast.Interval,
		FetchConcurrency: cfg.Broadcast.FetchConcurrency,
		FetchTimeout:     cfg.Broadcast.FetchTimeout,
		PublishTimeout:   cfg.Broadcast.PublishTimeout,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		svc.Run(ctx)
	}()

	srv := &http.Server{Addr: cfg.App.Port, Handler: api.NewRouter(svc, wsHub, logger)}

	go func() {
		logger.Info("Server Started", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP Error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("Shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	wsHub.Shutdown()
	<-runDone
	svc.Wait()

	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("Error closing Kafka writer", zap.Error(err))
		}
	}
	if err := store.Close(); err != nil {
		logger.Error("Error closing store", zap.Error(err))
	}
	if rdb != nil && cfg.Store.Backend != "redis" {
		rdb.Close()
	}

	logger.Info("Shutdown Complete")
}

func newRegistry(cfg *config.Config, rdb *redis.Client) (repository.SymbolRegistry, error) {
	switch cfg.Registry.Source {
	case "static", "":
		return repository.StaticRegistry(cfg.Registry.Symbols), nil
	case "catalog":
		return repository.NewCatalogRegistry(cfg.Registry.Catalog), nil
	case "redis":
		return repository.NewRedisRegistry(rdb, cfg.Registry.RedisKey), nil
	default:
		return nil, fmt.Errorf("unknown registry source %q", cfg.Registry.Source)
	}
}

func newSource(cfg *config.Config, logger *zap.Logger) quotes.Source {
	if cfg.Quotes.Source != "synthetic" {
		return quotes.NewYahoo()
	}

	var basePrices map[string]float64
	if cfg.Registry.Source == "catalog" {
		entries, err := repository.LoadCatalog(cfg.Registry.Catalog)
		if err != nil {
			logger.Warn("Could not read catalog base prices", zap.Error(err))
		}
		basePrices = repository.BasePrices(entries)
	}
	rnd := quotes.RealRand{Rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
	return quotes.NewSynthetic(basePrices, rnd, quotes.RealClock{})
}
