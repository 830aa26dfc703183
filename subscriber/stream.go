package subscriber

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/b-open-io/gamedata/fact"
	"github.com/b-open-io/gamedata/pubsub"
)

// ErrSnapshot wraps failures to fetch the initial entity snapshot.
var ErrSnapshot = errors.New("entity snapshot failed")

const maxSnapshotBytes = 256 << 20

// StreamSource takes its snapshot from {baseURL}/entities and its updates from
// a pubsub topic carrying JSON entities.
type StreamSource struct {
	baseURL    string
	httpClient *http.Client
	stream     pubsub.PubSub
	topic      string
	logger     *slog.Logger
}

// NewStreamSource creates a source. A nil stream yields snapshot-only
// subscriptions; a nil httpClient uses http.DefaultClient.
func NewStreamSource(baseURL string, stream pubsub.PubSub, topic string, httpClient *http.Client) *StreamSource {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &StreamSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		stream:     stream,
		topic:      topic,
		logger:     slog.Default(),
	}
}

// Subscribe opens the update stream before taking the snapshot so that no
// update published in between is lost. Updates already contained in the
// snapshot are harmless to apply again.
func (s *StreamSource) Subscribe(ctx context.Context, q *Query, onUpdate func([]fact.EntityRecord)) (*Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)

	var events <-chan pubsub.Event
	if s.stream != nil {
		var err error
		events, err = s.stream.Subscribe(subCtx, []string{s.topic})
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to subscribe to %s: %w", s.topic, err)
		}
	}

	initial, err := s.Snapshot(ctx, q)
	if err != nil {
		cancel()
		return nil, err
	}

	if events != nil {
		go s.forward(subCtx, q, events, onUpdate)
	}
	return NewSubscription(initial, cancel), nil
}

// Snapshot fetches every entity matching q.
func (s *StreamSource) Snapshot(ctx context.Context, q *Query) ([]fact.EntityRecord, error) {
	u, err := url.Parse(s.baseURL + "/entities")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshot, err)
	}
	params := u.Query()
	if q != nil {
		if q.Namespace != "" {
			params.Set("namespace", q.Namespace)
		}
		if len(q.Models) > 0 {
			params.Set("models", strings.Join(q.Models, ","))
		}
		if len(q.EntityIDs) > 0 {
			params.Set("ids", strings.Join(q.EntityIDs, ","))
		}
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshot, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshot, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshot, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrSnapshot, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	records, err := fact.DecodeEntities(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshot, err)
	}
	filtered := records[:0]
	for _, rec := range records {
		if q.Matches(rec) {
			filtered = append(filtered, rec)
		}
	}
	s.logger.Info("Entity snapshot loaded", "url", s.baseURL, "entities", len(filtered))
	return filtered, nil
}

func (s *StreamSource) forward(ctx context.Context, q *Query, events <-chan pubsub.Event, onUpdate func([]fact.EntityRecord)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			records, err := fact.DecodeEntities([]byte(ev.Member))
			if err != nil {
				s.logger.Warn("Skipping undecodable entity update", "topic", ev.Topic, "source", ev.Source, "error", err)
				continue
			}
			batch := records[:0]
			for _, rec := range records {
				if len(rec.Facts) > 0 && q.Matches(rec) {
					batch = append(batch, rec)
				}
			}
			if len(batch) > 0 && ctx.Err() == nil {
				onUpdate(batch)
			}
		}
	}
}
