package queue

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"marketplace/pkg/log"
)

// RedisQueue fans messages out across processes using Redis pub/sub.
// Delivery is at-most-once: subscribers that are not connected when a
// message is published never see it.
type RedisQueue struct {
	client  redis.UniversalClient
	pubsubs []*redis.PubSub
	mu      sync.Mutex
	closed  bool

	sent     int64
	received int64
	errCount int64
}

// NewRedisQueue wraps an existing client. The caller keeps ownership of client.
func NewRedisQueue(client redis.UniversalClient) (*RedisQueue, error) {
	if client == nil {
		return nil, ErrInvalidConfiguration
	}
	return &RedisQueue{client: client}, nil
}

// Publish publishes a message to the queue
func (rq *RedisQueue) Publish(ctx context.Context, topic string, message []byte) error {
	if rq.isClosed() {
		return ErrQueueClosed
	}
	if err := rq.client.Publish(ctx, topic, message).Err(); err != nil {
		return err
	}
	atomic.AddInt64(&rq.sent, 1)
	return nil
}

// Subscribe blocks until Redis confirms the subscription, then consumes in the background
func (rq *RedisQueue) Subscribe(ctx context.Context, topic string, handler MessageHandler) error {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	if rq.closed {
		return ErrQueueClosed
	}

	ps := rq.client.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return ErrConnectionFailed
	}
	rq.pubsubs = append(rq.pubsubs, ps)

	ch := ps.Channel()
	go func() {
		defer ps.Close()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				atomic.AddInt64(&rq.received, 1)
				if err := handler(ctx, msg.Channel, []byte(msg.Payload)); err != nil {
					atomic.AddInt64(&rq.errCount, 1)
					log.WithFields(map[string]interface{}{
						"topic": msg.Channel,
						"error": err.Error(),
					}).Warn("Queue handler failed")
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Close unsubscribes every subscription. The underlying client is left open.
func (rq *RedisQueue) Close() error {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	if rq.closed {
		return nil
	}
	rq.closed = true

	// subscriptions whose context already ended are closed by their consumer
	for _, ps := range rq.pubsubs {
		_ = ps.Close()
	}
	rq.pubsubs = nil
	return nil
}

// Health pings Redis
func (rq *RedisQueue) Health() error {
	if rq.isClosed() {
		return ErrQueueClosed
	}
	return rq.client.Ping(context.Background()).Err()
}

// GetStats returns queue statistics
func (rq *RedisQueue) GetStats() *QueueStats {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	return &QueueStats{
		Backend:       "redis",
		Subscriptions: len(rq.pubsubs),
		Connected:     !rq.closed,
		MessagesSent:  atomic.LoadInt64(&rq.sent),
		MessagesRecv:  atomic.LoadInt64(&rq.received),
		HandlerErrors: atomic.LoadInt64(&rq.errCount),
	}
}

func (rq *RedisQueue) isClosed() bool {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	return rq.closed
}
