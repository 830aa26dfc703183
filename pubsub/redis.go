package pubsub

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisPubSub publishes and subscribes over Redis channels. Each Subscribe call
// owns its own Redis subscription.
type RedisPubSub struct {
	redisClient *redis.Client
	ctx         context.Context
	cancel      context.CancelFunc
	mu          sync.Mutex
	subs        map[*redis.PubSub]struct{}
}

// NewRedisPubSub creates a new Redis pub/sub handler
func NewRedisPubSub(redisURL string) (*RedisPubSub, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisClient := redis.NewClient(opts)

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisPubSubFromClient(redisClient), nil
}

// NewRedisPubSubFromClient wraps an existing client.
func NewRedisPubSubFromClient(client *redis.Client) *RedisPubSub {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisPubSub{
		redisClient: client,
		ctx:         ctx,
		cancel:      cancel,
		subs:        make(map[*redis.PubSub]struct{}),
	}
}

// Publish publishes data to topic.
func (r *RedisPubSub) Publish(ctx context.Context, topic string, data string) error {
	return r.redisClient.Publish(ctx, topic, data).Err()
}

// PublishScored publishes data prefixed with its score as {score}:{data}.
func (r *RedisPubSub) PublishScored(ctx context.Context, topic string, data string, score float64) error {
	return r.redisClient.Publish(ctx, topic, fmt.Sprintf("%.0f:%s", score, data)).Err()
}

// Subscribe subscribes to topics and returns a channel of events
func (r *RedisPubSub) Subscribe(ctx context.Context, topics []string) (<-chan Event, error) {
	sub := r.redisClient.Subscribe(ctx, topics...)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %v: %w", topics, err)
	}

	r.mu.Lock()
	r.subs[sub] = struct{}{}
	r.mu.Unlock()

	events := make(chan Event, 1000)
	go r.listenLoop(ctx, sub, events)
	return events, nil
}

// listenLoop converts Redis messages to events until ctx or the PubSub is done.
func (r *RedisPubSub) listenLoop(ctx context.Context, sub *redis.PubSub, events chan<- Event) {
	defer func() {
		r.mu.Lock()
		delete(r.subs, sub)
		r.mu.Unlock()
		sub.Close()
		close(events)
	}()

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			member, score := splitScore(msg.Payload)
			event := Event{
				Topic:  msg.Channel,
				Member: member,
				Score:  score,
				Source: "redis",
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			case <-r.ctx.Done():
				return
			}
		}
	}
}

// splitScore parses an optional {score}: prefix. JSON payloads never carry one.
func splitScore(payload string) (string, float64) {
	if strings.HasPrefix(payload, "{") || strings.HasPrefix(payload, "[") {
		return payload, 0
	}
	if i := strings.Index(payload, ":"); i > 0 {
		if score, err := strconv.ParseFloat(payload[:i], 64); err == nil {
			return payload[i+1:], score
		}
	}
	return payload, 0
}

// Unsubscribe removes topics from every open subscription.
func (r *RedisPubSub) Unsubscribe(topics []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.subs) == 0 {
		return fmt.Errorf("not subscribed")
	}
	for sub := range r.subs {
		if err := sub.Unsubscribe(r.ctx, topics...); err != nil {
			return err
		}
	}
	return nil
}

// Stop ends every subscription.
func (r *RedisPubSub) Stop() error {
	r.cancel()
	return nil
}

// Close stops the subscriptions and closes the Redis connection.
func (r *RedisPubSub) Close() error {
	r.cancel()
	return r.redisClient.Close()
}
