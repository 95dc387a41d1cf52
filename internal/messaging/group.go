package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// Runnable is a worker loop the group starts and stops.
type Runnable interface {
	Start(ctx context.Context) error
	Shutdown() error
}

// topicWorkers is implemented by Consumer; the group only uses it for logs.
type topicWorkers interface {
	Topic() string
	Workers() int
}

// ConsumerGroup runs every consumer of a worker process and owns the
// subscriber they share. Consumers stop in reverse start order, and the
// subscriber is closed last.
type ConsumerGroup struct {
	consumers  []Runnable
	started    int
	subscriber message.Subscriber
	logger     *zap.Logger
}

// NewConsumerGroup creates a group around subscriber.
func NewConsumerGroup(subscriber message.Subscriber, logger *zap.Logger) *ConsumerGroup {
	return &ConsumerGroup{
		subscriber: subscriber,
		logger:     logger,
	}
}

// Add registers a consumer. It must be called before Start.
func (g *ConsumerGroup) Add(consumer Runnable) {
	g.consumers = append(g.consumers, consumer)
}

// Len returns the number of registered consumers.
func (g *ConsumerGroup) Len() int {
	return len(g.consumers)
}

// Start starts the consumers in order. When one fails, those already running
// are stopped and the error names the failing consumer.
func (g *ConsumerGroup) Start(ctx context.Context) error {
	for i, consumer := range g.consumers {
		if err := consumer.Start(ctx); err != nil {
			g.stop(i)

			return fmt.Errorf("start consumer %s: %w", describe(i, consumer), err)
		}

		g.started = i + 1

		fields := []zap.Field{zap.String("consumer", describe(i, consumer))}
		if tw, ok := consumer.(topicWorkers); ok {
			fields = append(fields, zap.Int("workers", tw.Workers()))
		}

		g.logger.Debug("consumer running", fields...)
	}

	g.logger.Info("consumer group started", zap.Int("count", len(g.consumers)))

	return nil
}

// Shutdown stops every started consumer, then closes the subscriber. All
// failures are joined into the returned error.
func (g *ConsumerGroup) Shutdown() error {
	g.logger.Info("shutting down consumer group")

	errs := []error{g.stop(g.started)}

	if err := g.subscriber.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close subscriber: %w", err))
	}

	return errors.Join(errs...)
}

// stop shuts down the first n consumers, last started first.
func (g *ConsumerGroup) stop(n int) error {
	var errs []error

	for i := n - 1; i >= 0; i-- {
		if err := g.consumers[i].Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("shutdown consumer %s: %w", describe(i, g.consumers[i]), err))
		}
	}

	g.started = 0

	return errors.Join(errs...)
}

func describe(i int, consumer Runnable) string {
	if tw, ok := consumer.(topicWorkers); ok {
		return tw.Topic()
	}

	return fmt.Sprintf("#%d", i)
}
