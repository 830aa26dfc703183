package pubsub

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxSSELine = 4 << 20

// SSEPubSub subscribes to a remote Server-Sent Events endpoint. It reconnects
// with exponential backoff and cannot publish.
type SSEPubSub struct {
	endpoint   string
	httpClient *http.Client
	ctx        context.Context
	cancel     context.CancelFunc
	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewSSEPubSub creates a subscriber for endpoint, an http(s) URL. Topics are
// sent as a comma separated "topics" query parameter.
func NewSSEPubSub(endpoint string) (*SSEPubSub, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid SSE endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported SSE endpoint scheme: %s", u.Scheme)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SSEPubSub{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 0}, // streaming, no timeout
		ctx:        ctx,
		cancel:     cancel,
		minBackoff: time.Second,
		maxBackoff: 5 * time.Minute,
	}, nil
}

func (s *SSEPubSub) Publish(ctx context.Context, topic string, data string) error {
	return ErrReadOnly
}

// Subscribe opens the stream in the background. The returned channel stays
// open across reconnects until ctx is done or the PubSub is stopped.
func (s *SSEPubSub) Subscribe(ctx context.Context, topics []string) (<-chan Event, error) {
	events := make(chan Event, 100)
	go func() {
		defer close(events)
		s.run(ctx, topics, events)
	}()
	return events, nil
}

func (s *SSEPubSub) Unsubscribe(topics []string) error {
	return nil
}

func (s *SSEPubSub) Stop() error {
	s.cancel()
	return nil
}

func (s *SSEPubSub) Close() error {
	return s.Stop()
}

func (s *SSEPubSub) run(ctx context.Context, topics []string, events chan<- Event) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.ctx.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	backoff := s.minBackoff
	for {
		err := s.connectAndListen(ctx, topics, events)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			slog.Error("SSE connection failed", "url", s.endpoint, "error", err)
		} else {
			backoff = s.minBackoff
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
			if backoff < s.maxBackoff {
				backoff *= 2
			}
		}
	}
}

func (s *SSEPubSub) subscribeURL(topics []string) string {
	u, _ := url.Parse(s.endpoint)
	q := u.Query()
	q.Set("topics", strings.Join(topics, ","))
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *SSEPubSub) connectAndListen(ctx context.Context, topics []string, events chan<- Event) error {
	subscribeURL := s.subscribeURL(topics)
	slog.Info("Connecting to SSE endpoint", "url", subscribeURL, "topics", topics)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, subscribeURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create SSE request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to SSE endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("SSE endpoint returned status %d", resp.StatusCode)
	}
	slog.Info("SSE connection established", "url", s.endpoint, "topics", topics)

	defaultTopic := ""
	if len(topics) == 1 {
		defaultTopic = topics[0]
	}
	return readSSE(ctx, resp.Body, func(eventType, data, id string) {
		if strings.HasPrefix(data, "Connected to events:") {
			return
		}
		topic := eventType
		if topic == "" || topic == "message" {
			topic = defaultTopic
		}
		var score float64
		fmt.Sscanf(id, "%f", &score)
		select {
		case events <- Event{Topic: topic, Member: data, Score: score, Source: "sse:" + s.endpoint}:
		case <-ctx.Done():
		}
	})
}

// readSSE parses an event stream and calls emit once per dispatched event.
// Multiple data lines are joined with newlines; comment lines are skipped.
func readSSE(ctx context.Context, body io.Reader, emit func(eventType, data, id string)) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)

	var eventType, id string
	var data []string
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			if len(data) > 0 {
				emit(eventType, strings.Join(data, "\n"), id)
			}
			eventType, id, data = "", "", nil
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			eventType = value
		case "data":
			data = append(data, value)
		case "id":
			id = value
		}
	}
	return scanner.Err()
}
