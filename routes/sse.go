package routes

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/b-open-io/gamedata/pubsub"
	"github.com/b-open-io/gamedata/storage"
)

// TokenChange is the payload published for every batch of changed tokens.
type TokenChange struct {
	TokenIDs []uint64 `json:"token_ids"`
}

// SSERoutesConfig holds the configuration for SSE streaming routes
type SSERoutesConfig struct {
	SSEManager   *pubsub.SSEManager
	DefaultTopic string
	Context      context.Context
}

// RegisterSSERoutes registers the Server-Sent Events change stream.
// Clients pick topics with ?topics=a,b and get DefaultTopic otherwise.
func RegisterSSERoutes(group fiber.Router, config *SSERoutesConfig) {
	if config == nil || config.SSEManager == nil || config.Context == nil {
		panic("RegisterSSERoutes: config, SSEManager, and context are required")
	}

	sseManager := config.SSEManager
	ctx := config.Context

	group.Get("/subscribe", func(c *fiber.Ctx) error {
		topics := splitList(c.Query("topics"))
		if len(topics) == 0 {
			topics = []string{config.DefaultTopic}
		}
		slog.Info("SSE subscription", "topics", topics, "ip", c.IP())

		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("Transfer-Encoding", "chunked")
		c.Set("X-Accel-Buffering", "no")
		c.Set("Access-Control-Allow-Origin", "*")

		client := sseManager.RegisterClient(topics)

		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			defer sseManager.DeregisterClient(client.ID)

			fmt.Fprintf(w, "data: Connected to events: %s\n\n", strings.Join(topics, ", "))
			if err := w.Flush(); err != nil {
				return
			}

			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()

			for {
				select {
				case ev, ok := <-client.Events:
					if !ok {
						return
					}
					if err := pubsub.WriteEvent(w, ev); err != nil {
						return
					}
					if err := w.Flush(); err != nil {
						return
					}
				case <-ticker.C:
					fmt.Fprintf(w, ": ping\n\n")
					if err := w.Flush(); err != nil {
						return
					}
				case <-ctx.Done():
					return
				}
			}
		})
		return nil
	})
}

// PublishTokenChanges publishes the ids of every token store change to topic
// until ctx is done or the returned stop function is called. Publishing runs on
// its own goroutine; batches that arrive while the publisher is behind are
// merged.
func PublishTokenChanges(ctx context.Context, store *storage.TokenStore, ps pubsub.PubSub, topic string) func() {
	ctx, cancel := context.WithCancel(ctx)
	pending := make(chan []uint64, 64)

	unsubscribe := store.OnChange(func(ids []uint64) {
		select {
		case pending <- ids:
		default:
			slog.Warn("Dropping token change batch", "tokens", len(ids))
		}
	})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case first := <-pending:
				ids := slices.Clone(first)
			drain:
				for {
					select {
					case more := <-pending:
						ids = append(ids, more...)
					default:
						break drain
					}
				}
				payload, err := json.Marshal(TokenChange{TokenIDs: ids})
				if err != nil {
					continue
				}
				if err := ps.Publish(ctx, topic, string(payload)); err != nil {
					slog.Error("Failed to publish token changes", "topic", topic, "error", err)
				}
			}
		}
	}()

	return func() {
		unsubscribe()
		cancel()
	}
}
