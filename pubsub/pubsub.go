// Package pubsub carries entity updates between processes. Implementations are
// selected by URL scheme through CreatePubSub.
package pubsub

import (
	"context"
	"errors"
)

// ErrReadOnly is returned by Publish on transports that can only subscribe.
var ErrReadOnly = errors.New("pubsub: transport is read-only")

// Event is one message received on a topic.
type Event struct {
	Topic  string  `json:"topic"`
	Member string  `json:"member"` // payload, usually a JSON entity or a token id list
	Score  float64 `json:"score"`
	Source string  `json:"source"` // "channels", "redis", "sse:<url>"
}

// PubSub publishes messages to topics and fans them out to subscribers.
type PubSub interface {
	Publish(ctx context.Context, topic string, data string) error

	// Subscribe returns a channel of events for topics. The channel is closed
	// once ctx is done or the PubSub is closed.
	Subscribe(ctx context.Context, topics []string) (<-chan Event, error)
	Unsubscribe(topics []string) error

	Stop() error
	Close() error
}
