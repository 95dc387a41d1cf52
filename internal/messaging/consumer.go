package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Handler processes a single job. A returned error nacks the message so the
// queue redelivers it; handlers own their retry policy otherwise.
type Handler[T any] func(ctx context.Context, job *T) error

// Consumer subscribes to a topic and processes messages with a typed handler
// on a fixed number of worker goroutines.
type Consumer[T any] struct {
	subscriber message.Subscriber
	topic      string
	handler    Handler[T]
	logger     *zap.Logger
	workers    int
	cancel     context.CancelFunc
	done       chan struct{}
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*consumerOptions)

type consumerOptions struct {
	workers int
}

// WithWorkers sets how many messages are handled concurrently.
func WithWorkers(n int) ConsumerOption {
	return func(o *consumerOptions) {
		if n > 0 {
			o.workers = n
		}
	}
}

// NewConsumer creates a new generic consumer for a specific job type.
func NewConsumer[T any](
	subscriber message.Subscriber,
	topic string,
	handler Handler[T],
	logger *zap.Logger,
	opts ...ConsumerOption,
) *Consumer[T] {
	o := consumerOptions{workers: 1}
	for _, opt := range opts {
		opt(&o)
	}

	return &Consumer[T]{
		subscriber: subscriber,
		topic:      topic,
		handler:    handler,
		logger:     logger.With(zap.String("topic", topic)),
		workers:    o.workers,
		done:       make(chan struct{}),
	}
}

// Topic returns the topic this consumer subscribes to.
func (c *Consumer[T]) Topic() string {
	return c.topic
}

// Workers returns the number of concurrent workers.
func (c *Consumer[T]) Workers() int {
	return c.workers
}

// Start subscribes and launches the workers. It does not block.
//
// Each worker holds its own subscription: the queue hands a subscription the
// next message only after the previous one is acked or nacked.
func (c *Consumer[T]) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	streams := make([]<-chan *message.Message, 0, c.workers)

	for i := range c.workers {
		msgs, err := c.subscriber.Subscribe(ctx, c.topic)
		if err != nil {
			c.cancel()
			close(c.done)

			return fmt.Errorf("subscribe worker %d to %s: %w", i, c.topic, err)
		}

		streams = append(streams, msgs)
	}

	group, ctx := errgroup.WithContext(ctx)

	for _, msgs := range streams {
		group.Go(func() error {
			c.consumeLoop(ctx, msgs)

			return nil
		})
	}

	go func() {
		_ = group.Wait()

		close(c.done)
	}()

	c.logger.Info("consumer started", zap.Int("workers", c.workers))

	return nil
}

func (c *Consumer[T]) consumeLoop(ctx context.Context, msgs <-chan *message.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}

			c.handleMessage(ctx, msg)
		}
	}
}

func (c *Consumer[T]) handleMessage(ctx context.Context, msg *message.Message) {
	var job T
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		// A payload that cannot be decoded will never succeed; drop it.
		c.logger.Error("failed to unmarshal message, dropping",
			zap.String("message_id", msg.UUID),
			zap.Error(err),
		)
		msg.Ack()

		return
	}

	if err := c.handler(ctx, &job); err != nil {
		c.logger.Error("failed to handle message",
			zap.String("message_id", msg.UUID),
			zap.Error(err),
		)
		msg.Nack()

		return
	}

	msg.Ack()

	c.logger.Debug("processed message",
		zap.String("message_id", msg.UUID),
	)
}

// Shutdown stops the consumer and waits for in-flight messages to complete.
func (c *Consumer[T]) Shutdown() error {
	if c.cancel != nil {
		c.cancel()
	}

	<-c.done

	return nil
}
