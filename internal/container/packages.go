package container

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor" // CBOR format support for huma
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jaevor/go-nanoid"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/serroba/tg-dispatch/internal/delivery"
	deliverystore "github.com/serroba/tg-dispatch/internal/delivery/store"
	"github.com/serroba/tg-dispatch/internal/handlers"
	"github.com/serroba/tg-dispatch/internal/health"
	"github.com/serroba/tg-dispatch/internal/messaging"
	"github.com/serroba/tg-dispatch/internal/middleware"
	"github.com/serroba/tg-dispatch/internal/observability"
	"github.com/serroba/tg-dispatch/internal/ratelimit"
	"github.com/serroba/tg-dispatch/internal/sender"
	"github.com/serroba/tg-dispatch/internal/store"
	"github.com/serroba/tg-dispatch/internal/telegram"
	"go.uber.org/zap"
)

// LoggerPackage provides the application logger.
func LoggerPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*zap.Logger, error) {
		opts := do.MustInvoke[*Options](i)

		if opts.LogFormat == "console" {
			return zap.NewDevelopment()
		}

		return zap.NewProduction()
	})
}

// RedisPackage provides the Redis client shared by the counters and the queue.
// The client is closed by the caller after injector shutdown.
func RedisPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*redis.Client, error) {
		opts := do.MustInvoke[*Options](i)

		return redis.NewClient(&redis.Options{
			Addr:        opts.RedisAddr,
			DialTimeout: redisDialTimeout,
		}), nil
	})
}

// MetricsPackage provides the Prometheus metrics.
func MetricsPackage(injector *do.Injector) {
	do.Provide(injector, func(_ *do.Injector) (*observability.Metrics, error) {
		return observability.NewMetrics(), nil
	})
}

// RateLimitPackage provides the counter store, the windowed counter and the
// send limiter.
func RateLimitPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (ratelimit.Store, error) {
		opts := do.MustInvoke[*Options](i)
		client := do.MustInvoke[*redis.Client](i)

		if opts.AtomicClaim {
			return store.NewRateLimitScriptStore(client), nil
		}

		return store.NewRateLimitRedisStore(client), nil
	})

	do.Provide(injector, func(i *do.Injector) (*ratelimit.WindowedCounter, error) {
		return ratelimit.NewWindowedCounter(do.MustInvoke[ratelimit.Store](i), ratelimit.SystemClock{}), nil
	})

	do.Provide(injector, func(i *do.Injector) (*ratelimit.Limiter, error) {
		opts := do.MustInvoke[*Options](i)

		limiter, err := ratelimit.NewLimiter(
			do.MustInvoke[ratelimit.Store](i),
			opts.RateLimitConfig(),
			ratelimit.WithRecorder(do.MustInvoke[*observability.Metrics](i)),
			ratelimit.WithLogger(do.MustInvoke[*zap.Logger](i)),
		)
		if err != nil {
			return nil, fmt.Errorf("rate limit config: %w", err)
		}

		return limiter, nil
	})
}

// DeliveryPackage provides the delivery log. Without a DSN outcomes are only
// logged.
func DeliveryPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*store.DeliveryPostgresStore, error) {
		opts := do.MustInvoke[*Options](i)

		pool, err := pgxpool.New(context.Background(), opts.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres pool: %w", err)
		}

		deliveries := store.NewDeliveryPostgresStore(pool)
		if err := deliveries.EnsureSchema(context.Background()); err != nil {
			pool.Close()

			return nil, err
		}

		return deliveries, nil
	})

	do.Provide(injector, func(i *do.Injector) (delivery.Store, error) {
		opts := do.MustInvoke[*Options](i)
		if opts.DatabaseURL == "" {
			return deliverystore.NewNoop(do.MustInvoke[*zap.Logger](i)), nil
		}

		deliveries, err := do.Invoke[*store.DeliveryPostgresStore](i)
		if err != nil {
			return nil, err
		}

		return deliveries, nil
	})
}

// TelegramPackage provides the Bot API client.
func TelegramPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*telegram.Client, error) {
		return telegram.NewClient(do.MustInvoke[*Options](i).BotToken), nil
	})
}

// PublisherGroupPackage provides the Redis Streams publisher.
func PublisherGroupPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*messaging.PublisherGroup, error) {
		publisher, err := messaging.NewRedisPublisher(
			do.MustInvoke[*redis.Client](i),
			do.MustInvoke[*zap.Logger](i),
		)
		if err != nil {
			return nil, fmt.Errorf("redis publisher: %w", err)
		}

		return messaging.NewPublisherGroup(publisher), nil
	})
}

// DispatcherPackage provides the job dispatcher.
func DispatcherPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*sender.Dispatcher, error) {
		opts := do.MustInvoke[*Options](i)
		group := do.MustInvoke[*messaging.PublisherGroup](i)

		newBatchID, err := nanoid.Standard(batchIDLength)
		if err != nil {
			return nil, fmt.Errorf("batch id generator: %w", err)
		}

		return sender.NewDispatcher(
			messaging.NewPublishFunc[sender.SendMessageJob](group.Publisher(), sender.TopicSend),
			opts.ChatIDList(),
			newBatchID,
			do.MustInvoke[*zap.Logger](i),
		), nil
	})
}

// SenderPackage provides the send job handler.
func SenderPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*sender.Handler, error) {
		group := do.MustInvoke[*messaging.PublisherGroup](i)

		return sender.NewHandler(
			do.MustInvoke[*ratelimit.Limiter](i),
			do.MustInvoke[*telegram.Client](i),
			do.MustInvoke[delivery.Store](i),
			messaging.NewPublishFunc[sender.SendMessageJob](group.Publisher(), sender.TopicSendFailed),
			do.MustInvoke[*zap.Logger](i),
			sender.WithJobRecorder(do.MustInvoke[*observability.Metrics](i)),
		), nil
	})
}

// ConsumerGroupPackage provides the consumer group running the send workers.
func ConsumerGroupPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*messaging.ConsumerGroup, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		subscriber, err := messaging.NewRedisSubscriber(do.MustInvoke[*redis.Client](i), consumerGroupName, logger)
		if err != nil {
			return nil, fmt.Errorf("redis subscriber: %w", err)
		}

		handler := do.MustInvoke[*sender.Handler](i)
		group := messaging.NewConsumerGroup(subscriber, logger)
		group.Add(messaging.NewConsumer[sender.SendMessageJob](
			subscriber,
			sender.TopicSend,
			handler.Handle,
			logger,
			messaging.WithWorkers(opts.Workers),
		))

		return group, nil
	})
}

// HTTPPackage provides the router and the API with every route registered.
func HTTPPackage(injector *do.Injector) {
	do.Provide(injector, func(_ *do.Injector) (*chi.Mux, error) {
		return chi.NewMux(), nil
	})

	do.Provide(injector, func(i *do.Injector) (huma.API, error) {
		opts := do.MustInvoke[*Options](i)
		router := do.MustInvoke[*chi.Mux](i)
		logger := do.MustInvoke[*zap.Logger](i)
		metrics := do.MustInvoke[*observability.Metrics](i)

		api := humachi.New(router, huma.DefaultConfig("Telegram Dispatch", "1.0.0"))

		var postgres health.Checker
		if opts.DatabaseURL != "" {
			deliveries, err := do.Invoke[*store.DeliveryPostgresStore](i)
			if err != nil {
				return nil, err
			}

			postgres = deliveries
		}

		health.RegisterRoutes(api, health.NewHandler(
			health.NewRedisChecker(do.MustInvoke[*redis.Client](i)),
			postgres,
		))

		perMinute := opts.IngressLimitPerMinute
		if perMinute <= 0 {
			perMinute = middleware.DefaultIngressLimitPerMinute
		}

		ingress := middleware.RateLimiter(
			api,
			do.MustInvoke[*ratelimit.WindowedCounter](i),
			middleware.IngressWindow(int64(perMinute)),
			logger,
		)
		handlers.RegisterRoutes(api, handlers.NewMessageHandler(do.MustInvoke[*sender.Dispatcher](i), logger), ingress)

		router.Handle("/metrics", metrics.Handler())

		return api, nil
	})
}
