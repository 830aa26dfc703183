package pubsub

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// SSEClient is one registered Server-Sent Events connection.
type SSEClient struct {
	ID     string
	Events <-chan Event

	events chan Event
	topics []string
}

// SSEManager fans events from a PubSub out to SSE clients. It keeps one
// upstream subscription covering the union of the clients' topics.
type SSEManager struct {
	pubsub             PubSub
	mu                 sync.Mutex
	clients            map[string]*SSEClient
	topicClients       map[string][]string // topic -> client ids
	subscribedTopics   []string
	subscriptionCancel context.CancelFunc
	ctx                context.Context
	cancel             context.CancelFunc
}

func NewSSEManager(ctx context.Context, pubsub PubSub) *SSEManager {
	managerCtx, cancel := context.WithCancel(ctx)
	return &SSEManager{
		pubsub:       pubsub,
		clients:      make(map[string]*SSEClient),
		topicClients: make(map[string][]string),
		ctx:          managerCtx,
		cancel:       cancel,
	}
}

// RegisterClient registers a client for topics. Events for those topics are
// delivered on the client's Events channel; a client that falls behind misses
// events.
func (s *SSEManager) RegisterClient(topics []string) *SSEClient {
	events := make(chan Event, 64)
	client := &SSEClient{
		ID:     uuid.NewString(),
		Events: events,
		events: events,
		topics: topics,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client.ID] = client
	for _, topic := range topics {
		s.topicClients[topic] = append(s.topicClients[topic], client.ID)
	}
	slog.Debug("SSEManager: registered client", "client", client.ID, "topics", topics)
	s.updateSubscriptions()
	return client
}

// DeregisterClient removes a client and closes its channel.
func (s *SSEManager) DeregisterClient(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, ok := s.clients[clientID]
	if !ok {
		return
	}
	for _, topic := range client.topics {
		ids := slices.DeleteFunc(s.topicClients[topic], func(id string) bool { return id == clientID })
		if len(ids) == 0 {
			delete(s.topicClients, topic)
		} else {
			s.topicClients[topic] = ids
		}
	}
	delete(s.clients, clientID)
	close(client.events)
	slog.Debug("SSEManager: deregistered client", "client", clientID)
	s.updateSubscriptions()
}

// ClientCount reports the number of connected clients.
func (s *SSEManager) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// updateSubscriptions resubscribes upstream when the topic set changes. The
// caller holds s.mu.
func (s *SSEManager) updateSubscriptions() {
	topics := make([]string, 0, len(s.topicClients))
	for topic := range s.topicClients {
		topics = append(topics, topic)
	}
	slices.Sort(topics)
	if slices.Equal(topics, s.subscribedTopics) {
		return
	}

	if s.subscriptionCancel != nil {
		s.subscriptionCancel()
		s.subscriptionCancel = nil
	}
	s.subscribedTopics = topics
	if len(topics) == 0 {
		return
	}

	subCtx, cancel := context.WithCancel(s.ctx)
	events, err := s.pubsub.Subscribe(subCtx, topics)
	if err != nil {
		cancel()
		s.subscribedTopics = nil
		slog.Error("SSEManager: failed to update subscriptions", "topics", topics, "error", err)
		return
	}
	s.subscriptionCancel = cancel
	go s.broadcastLoop(subCtx, events)
}

func (s *SSEManager) broadcastLoop(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok || ctx.Err() != nil {
				return
			}
			s.broadcastToClients(event)
		}
	}
}

func (s *SSEManager) broadcastToClients(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.topicClients[event.Topic] {
		client := s.clients[id]
		select {
		case client.events <- event:
		default:
			slog.Warn("SSEManager: client too slow, dropping event", "client", id, "topic", event.Topic)
		}
	}
}

// Stop cancels the upstream subscription.
func (s *SSEManager) Stop() error {
	s.cancel()
	return nil
}

// WriteEvent writes event in text/event-stream framing.
func WriteEvent(w io.Writer, event Event) error {
	var err error
	if event.Score > 0 {
		_, err = fmt.Fprintf(w, "event: %s\ndata: %s\nid: %.0f\n\n", event.Topic, event.Member, event.Score)
	} else {
		_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Topic, event.Member)
	}
	return err
}
