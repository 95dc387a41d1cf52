package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/serroba/tg-dispatch/internal/container"
	"github.com/serroba/tg-dispatch/internal/sender"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultDispatchCount = 100

func registerPackages(injector *do.Injector, options *container.Options) {
	do.ProvideValue(injector, options)
	container.LoggerPackage(injector)
	container.RedisPackage(injector)
	container.MetricsPackage(injector)
	container.RateLimitPackage(injector)
	container.DeliveryPackage(injector)
	container.PublisherGroupPackage(injector)
	container.DispatcherPackage(injector)
	container.HTTPPackage(injector)
}

func shutdown(injector *do.Injector, logger *zap.Logger) {
	client := do.MustInvoke[*redis.Client](injector)

	if err := injector.Shutdown(); err != nil {
		logger.Error("service shutdown error", zap.Error(err))
	}

	if err := client.Close(); err != nil {
		logger.Error("redis close error", zap.Error(err))
	}
}

type testDispatcher interface {
	DispatchTest(ctx context.Context, count int, chatID string) (*sender.Batch, error)
}

func parseDispatchCount(args []string) (int, error) {
	if len(args) == 0 {
		return defaultDispatchCount, nil
	}

	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid count %q", args[0])
	}

	return n, nil
}

func dispatchTest(ctx context.Context, d testDispatcher, count int, chatID string, out io.Writer) error {
	batch, err := d.DispatchTest(ctx, count, chatID)
	if err != nil {
		return fmt.Errorf("dispatch %d test messages: %w", count, err)
	}

	_, err = fmt.Fprintf(out, "Dispatched %d jobs in batch %s to %v\n", batch.Count, batch.ID, batch.ChatIDs)

	return err
}

func main() {
	if err := container.LoadEnvFiles(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cli := humacli.New(func(hooks humacli.Hooks, options *container.Options) {
		injector := do.New()
		registerPackages(injector, options)

		logger := do.MustInvoke[*zap.Logger](injector)

		var server *http.Server

		hooks.OnStart(func() {
			router := do.MustInvoke[*chi.Mux](injector)

			// Invoke API to trigger route registration
			_ = do.MustInvoke[huma.API](injector)

			server = &http.Server{
				Addr:              fmt.Sprintf(":%d", options.Port),
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			logger.Info("server starting", zap.Int("port", options.Port))

			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Fatal("server failed", zap.Error(err))
			}
		})

		hooks.OnStop(func() {
			logger.Info("shutting down")

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if server != nil {
				if err := server.Shutdown(ctx); err != nil {
					logger.Error("server shutdown error", zap.Error(err))
				}
			}

			shutdown(injector, logger)

			logger.Info("shutdown complete")
		})
	})

	var chatID string

	dispatchCmd := &cobra.Command{
		Use:   "dispatch-test [count]",
		Short: "Queue numbered test messages for the workers",
		Args:  cobra.MaximumNArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, options *container.Options) {
			count, err := parseDispatchCount(args)
			if err != nil {
				cmd.PrintErrln(err)
				os.Exit(1)
			}

			injector := do.New()
			registerPackages(injector, options)

			logger := do.MustInvoke[*zap.Logger](injector)
			dispatcher := do.MustInvoke[*sender.Dispatcher](injector)

			err = dispatchTest(cmd.Context(), dispatcher, count, chatID, cmd.OutOrStdout())

			// os.Exit skips deferred calls, so shut down first.
			shutdown(injector, logger)

			if err != nil {
				logger.Error("dispatch failed", zap.Error(err))
				os.Exit(1)
			}
		}),
	}
	dispatchCmd.Flags().StringVar(&chatID, "chat", "", "Send every message to this chat id")

	cli.Root().AddCommand(dispatchCmd)

	cli.Run()
}
