package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/price-broadcast/pkg/config"
	"github.com/shubham-shewale/price-broadcast/pkg/models"
	"github.com/shubham-shewale/price-broadcast/pkg/pricecache"
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

	cache := pricecache.New(pricecache.Options{
		URL:            cfg.Client.URL,
		ReconnectDelay: cfg.Client.ReconnectDelay,
		ReadTimeout:    cfg.Client.ReadTimeout,
		Logger:         logger,
		OnUpdate: func(msgType string, snapshots []models.PriceSnapshot) {
			logger.Debug("Prices received", zap.String("type", msgType), zap.Int("count", len(snapshots)))
		},
	})
	cache.Connect()
	defer cache.Disconnect()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(cfg.Client.PrintInterval)
	defer ticker.Stop()

	logger.Info("Watcher Started", zap.String("url", cfg.Client.URL))
	for {
		select {
		case <-ctx.Done():
			logger.Info("Watcher stopped")
			return
		case <-ticker.C:
			printPrices(cache)
		}
	}
}

func printPrices(cache *pricecache.Cache) {
	status := "disconnected"
	if cache.IsConnected() {
		status = "connected"
	}
	fmt.Printf("--- %s (%s) ---\n", time.Now().Format(time.TimeOnly), status)
	for _, s := range cache.GetAllStockPrices() {
		fmt.Printf("%-6s %10.2f %+7.2f%%  %s\n", s.Symbol, s.CurrentPrice, s.ChangePercent, s.LastUpdated.Local().Format(time.TimeOnly))
	}
}
