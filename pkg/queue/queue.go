package queue

import (
	"context"
	"errors"
)

// Queue is a topic based publish/subscribe bus. Every subscriber of a topic
// receives every message published to it after the subscription was made.
type Queue interface {
	// Publish publishes a message to the specified topic
	Publish(ctx context.Context, topic string, message []byte) error

	// Subscribe registers handler for topic until ctx is cancelled or the queue is closed
	Subscribe(ctx context.Context, topic string, handler MessageHandler) error

	// Close closes the queue connections
	Close() error

	// Health checks the health of the queue
	Health() error
}

// MessageHandler handles incoming messages
type MessageHandler func(ctx context.Context, topic string, message []byte) error

// QueueStats represents queue statistics
type QueueStats struct {
	Backend       string `json:"backend"`
	Topics        int    `json:"topics"`
	Subscriptions int    `json:"subscriptions"`
	Connected     bool   `json:"connected"`
	MessagesSent  int64  `json:"messages_sent"`
	MessagesRecv  int64  `json:"messages_received"`
	HandlerErrors int64  `json:"handler_errors"`
	Dropped       int64  `json:"dropped"`
}

// Common errors
var (
	ErrQueueClosed          = errors.New("queue is closed")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrConnectionFailed     = errors.New("connection failed")
)
