package messaging_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/serroba/tg-dispatch/internal/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testJob struct {
	ChatID string `json:"chatId"`
	Text   string `json:"text"`
}

// mockSubscriber delivers like the Redis stream subscriber: every Subscribe
// call gets its own unbuffered channel, and a subscription hands out the next
// message only after the previous one is acked or nacked. All subscriptions
// share the msgChan queue, as consumers of one group share a stream.
type mockSubscriber struct {
	msgChan      chan *message.Message
	subscribeErr error
	// failAfter is how many subscriptions succeed before subscribeErr applies.
	failAfter     int
	mu            sync.Mutex
	closed        bool
	done          chan struct{}
	subscriptions int
}

func newMockSubscriber() *mockSubscriber {
	return &mockSubscriber{
		msgChan: make(chan *message.Message, 10),
		done:    make(chan struct{}),
	}
}

func (m *mockSubscriber) Subscribe(ctx context.Context, _ string) (<-chan *message.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.subscribeErr != nil && m.subscriptions >= m.failAfter {
		return nil, m.subscribeErr
	}

	m.subscriptions++
	out := make(chan *message.Message)

	go m.deliver(ctx, out, m.doneLocked())

	return out, nil
}

func (m *mockSubscriber) deliver(ctx context.Context, out chan<- *message.Message, done <-chan struct{}) {
	defer close(out)

	for {
		var msg *message.Message

		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case msg = <-m.msgChan:
		}

		select {
		case out <- msg:
		case <-ctx.Done():
			return
		case <-done:
			return
		}

		select {
		case <-msg.Acked():
		case <-msg.Nacked():
		case <-ctx.Done():
			return
		case <-done:
			return
		}
	}
}

func (m *mockSubscriber) doneLocked() chan struct{} {
	if m.done == nil {
		m.done = make(chan struct{})
	}

	return m.done
}

func (m *mockSubscriber) subscriptionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.subscriptions
}

func (m *mockSubscriber) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		m.closed = true
		close(m.doneLocked())
	}

	return nil
}

func newJobMessage(t *testing.T, job *testJob) *message.Message {
	t.Helper()

	payload, err := json.Marshal(job)
	require.NoError(t, err)

	return message.NewMessage(uuid.NewString(), payload)
}

func TestConsumer_Start(t *testing.T) {
	t.Run("starts successfully", func(t *testing.T) {
		sub := newMockSubscriber()
		consumer := messaging.NewConsumer(
			sub,
			"telegram.send",
			func(_ context.Context, _ *testJob) error { return nil },
			zap.NewNop(),
		)

		err := consumer.Start(context.Background())

		require.NoError(t, err)
		assert.Equal(t, "telegram.send", consumer.Topic())
		assert.Equal(t, 1, consumer.Workers())

		_ = consumer.Shutdown()
	})

	t.Run("returns error when subscribe fails", func(t *testing.T) {
		sub := &mockSubscriber{subscribeErr: errors.New("subscribe error")}
		consumer := messaging.NewConsumer(
			sub,
			"telegram.send",
			func(_ context.Context, _ *testJob) error { return nil },
			zap.NewNop(),
		)

		err := consumer.Start(context.Background())

		require.Error(t, err)
		assert.NoError(t, consumer.Shutdown(), "shutdown after a failed start must not block")
	})

	t.Run("returns error when a later worker cannot subscribe", func(t *testing.T) {
		sub := newMockSubscriber()
		sub.subscribeErr = errors.New("subscribe error")
		sub.failAfter = 2

		consumer := messaging.NewConsumer(
			sub,
			"telegram.send",
			func(_ context.Context, _ *testJob) error { return nil },
			zap.NewNop(),
			messaging.WithWorkers(3),
		)

		err := consumer.Start(context.Background())

		require.ErrorIs(t, err, sub.subscribeErr)
		assert.Contains(t, err.Error(), "subscribe worker 2 to telegram.send")
		assert.Equal(t, 2, sub.subscriptionCount())
		assert.NoError(t, consumer.Shutdown())
	})

	t.Run("subscribes once per worker", func(t *testing.T) {
		sub := newMockSubscriber()
		consumer := messaging.NewConsumer(
			sub,
			"telegram.send",
			func(_ context.Context, _ *testJob) error { return nil },
			zap.NewNop(),
			messaging.WithWorkers(4),
		)

		require.NoError(t, consumer.Start(context.Background()))

		assert.Equal(t, 4, sub.subscriptionCount())

		_ = consumer.Shutdown()
	})

	t.Run("ignores non-positive worker counts", func(t *testing.T) {
		consumer := messaging.NewConsumer(
			newMockSubscriber(),
			"telegram.send",
			func(_ context.Context, _ *testJob) error { return nil },
			zap.NewNop(),
			messaging.WithWorkers(0),
		)

		assert.Equal(t, 1, consumer.Workers())
	})
}

func TestConsumer_HandleMessage(t *testing.T) {
	t.Run("acks on successful handling", func(t *testing.T) {
		sub := newMockSubscriber()
		received := make(chan *testJob, 1)

		consumer := messaging.NewConsumer(
			sub,
			"telegram.send",
			func(_ context.Context, job *testJob) error {
				received <- job

				return nil
			},
			zap.NewNop(),
		)

		require.NoError(t, consumer.Start(context.Background()))

		msg := newJobMessage(t, &testJob{ChatID: "123", Text: "hello"})
		sub.msgChan <- msg

		select {
		case <-msg.Acked():
			job := <-received
			assert.Equal(t, "123", job.ChatID)
			assert.Equal(t, "hello", job.Text)
		case <-msg.Nacked():
			t.Fatal("message was nacked")
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for ack")
		}

		_ = consumer.Shutdown()
	})

	t.Run("drops undecodable payloads", func(t *testing.T) {
		sub := newMockSubscriber()
		called := false
		consumer := messaging.NewConsumer(
			sub,
			"telegram.send",
			func(_ context.Context, _ *testJob) error {
				called = true

				return nil
			},
			zap.NewNop(),
		)

		require.NoError(t, consumer.Start(context.Background()))

		msg := message.NewMessage(uuid.NewString(), []byte("invalid json"))
		sub.msgChan <- msg

		select {
		case <-msg.Acked():
			assert.False(t, called)
		case <-msg.Nacked():
			t.Fatal("undecodable message should not be redelivered")
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for ack")
		}

		_ = consumer.Shutdown()
	})

	t.Run("nacks on handler error", func(t *testing.T) {
		sub := newMockSubscriber()
		consumer := messaging.NewConsumer(
			sub,
			"telegram.send",
			func(_ context.Context, _ *testJob) error {
				return errors.New("handler error")
			},
			zap.NewNop(),
		)

		require.NoError(t, consumer.Start(context.Background()))

		msg := newJobMessage(t, &testJob{ChatID: "123"})
		sub.msgChan <- msg

		select {
		case <-msg.Nacked():
			// Success
		case <-msg.Acked():
			t.Fatal("message should have been nacked")
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for nack")
		}

		_ = consumer.Shutdown()
	})

	t.Run("handles messages concurrently across workers", func(t *testing.T) {
		sub := newMockSubscriber()
		release := make(chan struct{})

		var inFlight, peak atomic.Int32

		consumer := messaging.NewConsumer(
			sub,
			"telegram.send",
			func(_ context.Context, _ *testJob) error {
				n := inFlight.Add(1)
				defer inFlight.Add(-1)

				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}

				<-release

				return nil
			},
			zap.NewNop(),
			messaging.WithWorkers(3),
		)

		require.NoError(t, consumer.Start(context.Background()))

		msgs := make([]*message.Message, 3)
		for i := range msgs {
			msgs[i] = newJobMessage(t, &testJob{ChatID: "123"})
			sub.msgChan <- msgs[i]
		}

		assert.Eventually(t, func() bool { return peak.Load() == 3 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, 3, sub.subscriptionCount())

		close(release)

		for _, msg := range msgs {
			select {
			case <-msg.Acked():
			case <-time.After(time.Second):
				t.Fatal("timeout waiting for ack")
			}
		}

		_ = consumer.Shutdown()
	})
}

func TestConsumer_Shutdown(t *testing.T) {
	t.Run("shuts down gracefully", func(t *testing.T) {
		sub := newMockSubscriber()
		consumer := messaging.NewConsumer(
			sub,
			"telegram.send",
			func(_ context.Context, _ *testJob) error { return nil },
			zap.NewNop(),
			messaging.WithWorkers(4),
		)

		require.NoError(t, consumer.Start(context.Background()))

		err := consumer.Shutdown()

		require.NoError(t, err)
	})
}
