package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/serroba/tg-dispatch/internal/container"
	"github.com/serroba/tg-dispatch/internal/messaging"
	"github.com/serroba/tg-dispatch/internal/observability"
	"go.uber.org/zap"
)

func main() {
	if err := container.LoadEnvFiles(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	opts := container.OptionsFromEnv()

	injector := do.New()
	do.ProvideValue(injector, opts)
	container.LoggerPackage(injector)
	container.RedisPackage(injector)
	container.MetricsPackage(injector)
	container.RateLimitPackage(injector)
	container.DeliveryPackage(injector)
	container.TelegramPackage(injector)
	container.PublisherGroupPackage(injector)
	container.SenderPackage(injector)
	container.ConsumerGroupPackage(injector)

	logger := do.MustInvoke[*zap.Logger](injector)
	group := do.MustInvoke[*messaging.ConsumerGroup](injector)
	client := do.MustInvoke[*redis.Client](injector)

	metricsServer := observability.NewServer(opts.MetricsPort, do.MustInvoke[*observability.Metrics](injector), logger)

	go func() {
		if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())

	if err := group.Start(ctx); err != nil {
		logger.Fatal("failed to start consumer group", zap.Error(err))
	}

	logger.Info("worker started",
		zap.Int("workers", opts.Workers),
		zap.Int("global_limit_per_second", opts.GlobalLimitPerSecond),
		zap.Int("chat_limit_per_minute", opts.ChatLimitPerMinute),
	)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", zap.Error(err))
	}

	if err := injector.Shutdown(); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	if err := client.Close(); err != nil {
		logger.Error("redis close error", zap.Error(err))
	}

	logger.Info("shutdown complete")
}
