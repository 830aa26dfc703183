package pubsub

import (
	"context"
	"log/slog"
	"sync"
)

type channelSub struct {
	ch     chan Event
	topics []string
	once   sync.Once
}

func (s *channelSub) close() {
	s.once.Do(func() { close(s.ch) })
}

// ChannelPubSub implements PubSub with in-process Go channels. Slow
// subscribers miss events rather than block publishers.
type ChannelPubSub struct {
	subscribers map[string][]*channelSub // topic -> subscriptions
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	bufferSize  int
}

// NewChannelPubSub creates a new channel-based pub/sub implementation
func NewChannelPubSub() *ChannelPubSub {
	ctx, cancel := context.WithCancel(context.Background())
	return &ChannelPubSub{
		subscribers: make(map[string][]*channelSub),
		ctx:         ctx,
		cancel:      cancel,
		bufferSize:  256,
	}
}

// Publish sends data to all subscribers of a topic
func (cp *ChannelPubSub) Publish(ctx context.Context, topic string, data string) error {
	cp.mu.RLock()
	defer cp.mu.RUnlock()

	event := Event{
		Topic:  topic,
		Member: data,
		Source: "channels",
	}

	subscribers := cp.subscribers[topic]
	sent := 0
	for _, sub := range subscribers {
		select {
		case sub.ch <- event:
			sent++
		case <-ctx.Done():
			return ctx.Err()
		default:
			slog.Warn("ChannelPubSub: dropping event for full subscriber", "topic", topic)
		}
	}
	slog.Debug("ChannelPubSub: published", "topic", topic, "sent", sent, "subscribers", len(subscribers))
	return nil
}

// Subscribe creates a subscription to the given topics
func (cp *ChannelPubSub) Subscribe(ctx context.Context, topics []string) (<-chan Event, error) {
	sub := &channelSub{ch: make(chan Event, cp.bufferSize), topics: topics}

	cp.mu.Lock()
	for _, topic := range topics {
		cp.subscribers[topic] = append(cp.subscribers[topic], sub)
	}
	cp.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-cp.ctx.Done():
		}
		cp.remove(sub)
	}()

	return sub.ch, nil
}

// Unsubscribe is a no-op; subscriptions end when their context is done.
func (cp *ChannelPubSub) Unsubscribe(topics []string) error {
	return nil
}

func (cp *ChannelPubSub) remove(sub *channelSub) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	for _, topic := range sub.topics {
		subscribers := cp.subscribers[topic]
		for i, s := range subscribers {
			if s == sub {
				cp.subscribers[topic] = append(subscribers[:i:i], subscribers[i+1:]...)
				break
			}
		}
		if len(cp.subscribers[topic]) == 0 {
			delete(cp.subscribers, topic)
		}
	}
	sub.close()
}

// Stop ends every subscription.
func (cp *ChannelPubSub) Stop() error {
	cp.cancel()
	return nil
}

// Close ends every subscription and closes their channels immediately.
func (cp *ChannelPubSub) Close() error {
	cp.cancel()

	cp.mu.Lock()
	defer cp.mu.Unlock()
	for _, subscribers := range cp.subscribers {
		for _, sub := range subscribers {
			sub.close()
		}
	}
	cp.subscribers = make(map[string][]*channelSub)
	return nil
}
