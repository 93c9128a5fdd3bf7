package queue

import (
	"context"
	"sync"
	"sync/atomic"

	"marketplace/pkg/log"
)

// MemoryQueue is an in-process fan-out queue. Each subscription owns a
// buffered channel and a goroutine. Publish never waits on a subscriber:
// a subscriber whose buffer is full misses the message and is counted as
// dropped. Consumers re-read the store to catch up.
type MemoryQueue struct {
	topics map[string][]*subscription
	config *MemoryQueueConfig
	mu     sync.RWMutex
	closed bool

	sent     int64
	received int64
	errCount int64
	dropped  int64
}

type subscription struct {
	topic    string
	handler  MessageHandler
	messages chan []byte
	done     chan struct{}
	once     sync.Once
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// MemoryQueueConfig memory queue configuration
type MemoryQueueConfig struct {
	BufferSize int `mapstructure:"buffer_size" json:"buffer_size"`
}

// NewMemoryQueue creates a new memory queue instance
func NewMemoryQueue(config *MemoryQueueConfig) (*MemoryQueue, error) {
	if config == nil {
		config = &MemoryQueueConfig{BufferSize: 1000}
	}
	if config.BufferSize < 0 {
		return nil, ErrInvalidConfiguration
	}
	if config.BufferSize == 0 {
		config.BufferSize = 1000
	}

	return &MemoryQueue{
		topics: make(map[string][]*subscription),
		config: config,
	}, nil
}

// Publish delivers message to every live subscriber of topic. Messages
// published to a topic nobody listens on are dropped.
func (mq *MemoryQueue) Publish(ctx context.Context, topic string, message []byte) error {
	mq.mu.RLock()
	defer mq.mu.RUnlock()

	if mq.closed {
		return ErrQueueClosed
	}

	for _, sub := range mq.topics[topic] {
		mq.deliver(sub, message)
	}
	atomic.AddInt64(&mq.sent, 1)
	return nil
}

func (mq *MemoryQueue) deliver(sub *subscription, message []byte) {
	select {
	case sub.messages <- message:
	case <-sub.done:
	default:
		atomic.AddInt64(&mq.dropped, 1)
		log.WithFields(map[string]interface{}{
			"topic":  sub.topic,
			"buffer": cap(sub.messages),
		}).Warn("Subscriber lagging, message dropped")
	}
}

// Subscribe subscribes to messages from the queue
func (mq *MemoryQueue) Subscribe(ctx context.Context, topic string, handler MessageHandler) error {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.closed {
		return ErrQueueClosed
	}

	sub := &subscription{
		topic:    topic,
		handler:  handler,
		messages: make(chan []byte, mq.config.BufferSize),
		done:     make(chan struct{}),
	}
	mq.topics[topic] = append(mq.topics[topic], sub)

	go mq.consume(ctx, sub)
	return nil
}

func (mq *MemoryQueue) consume(ctx context.Context, sub *subscription) {
	defer mq.unsubscribe(sub)

	for {
		select {
		case message := <-sub.messages:
			atomic.AddInt64(&mq.received, 1)
			if err := sub.handler(ctx, sub.topic, message); err != nil {
				atomic.AddInt64(&mq.errCount, 1)
				log.WithFields(map[string]interface{}{
					"topic": sub.topic,
					"error": err.Error(),
				}).Warn("Queue handler failed")
			}
		case <-ctx.Done():
			return
		case <-sub.done:
			return
		}
	}
}

func (mq *MemoryQueue) unsubscribe(sub *subscription) {
	sub.stop()

	mq.mu.Lock()
	defer mq.mu.Unlock()

	subs := mq.topics[sub.topic]
	for i, s := range subs {
		if s == sub {
			mq.topics[sub.topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(mq.topics[sub.topic]) == 0 {
		delete(mq.topics, sub.topic)
	}
}

// Close stops every subscription. Pending buffered messages are discarded.
func (mq *MemoryQueue) Close() error {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.closed {
		return nil
	}
	mq.closed = true

	for _, subs := range mq.topics {
		for _, sub := range subs {
			sub.stop()
		}
	}
	return nil
}

// Health checks the health of the queue
func (mq *MemoryQueue) Health() error {
	mq.mu.RLock()
	defer mq.mu.RUnlock()

	if mq.closed {
		return ErrQueueClosed
	}
	return nil
}

// GetStats returns queue statistics
func (mq *MemoryQueue) GetStats() *QueueStats {
	mq.mu.RLock()
	defer mq.mu.RUnlock()

	stats := &QueueStats{
		Backend:       "memory",
		Topics:        len(mq.topics),
		Connected:     !mq.closed,
		MessagesSent:  atomic.LoadInt64(&mq.sent),
		MessagesRecv:  atomic.LoadInt64(&mq.received),
		HandlerErrors: atomic.LoadInt64(&mq.errCount),
		Dropped:       atomic.LoadInt64(&mq.dropped),
	}
	for _, subs := range mq.topics {
		stats.Subscriptions += len(subs)
	}
	return stats
}
