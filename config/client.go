package config

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/b-open-io/gamedata/client"
	"github.com/b-open-io/gamedata/internal/utils"
	"github.com/b-open-io/gamedata/pubsub"
	"github.com/b-open-io/gamedata/sqlclient"
)

// ErrReadOnlyChanges is returned when CHANGES_URL names a subscribe-only transport.
var ErrReadOnlyChanges = errors.New("CHANGES_URL must be a publishable transport")

// CreateChangeStream opens the PubSub that local token changes are published
// on and that SSE clients read from. It is separate from the inbound indexer
// stream.
func CreateChangeStream(cfg Config) (pubsub.PubSub, error) {
	changes, err := pubsub.CreatePubSub(cfg.ChangesURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create change stream: %w", err)
	}
	if _, ok := changes.(*pubsub.SSEPubSub); ok {
		changes.Close()
		return nil, ErrReadOnlyChanges
	}
	return changes, nil
}

// CreateClient builds a client and its update stream from cfg.
//
// STREAM_URL selects the stream transport:
//   - "channels://" (default): in-process, useful when updates are published locally
//   - "redis://host:6379": Redis Pub/Sub
//   - "sse+https://indexer.example/events": the indexer's SSE feed
//
// The caller owns the returned stream and must close it after the client.
func CreateClient(cfg Config, logger *slog.Logger) (*client.Client, pubsub.PubSub, error) {
	if logger == nil {
		logger = slog.Default()
	}
	stream, err := pubsub.CreatePubSub(cfg.StreamURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create stream: %w", err)
	}

	var cache *sqlclient.Cache
	if cfg.SQLCacheSize != "" && cfg.SQLCacheSize != "0" {
		size, err := sqlclient.ParseSize(cfg.SQLCacheSize)
		if err != nil {
			stream.Close()
			return nil, nil, fmt.Errorf("invalid SQL_CACHE_SIZE: %w", err)
		}
		cache = sqlclient.NewCache(size, cfg.SQLCacheTTL)
	}

	c, err := client.New(client.Options{
		IndexerURL:  cfg.IndexerURL,
		SQLURL:      cfg.SQLURL,
		Namespace:   cfg.Namespace,
		Stream:      stream,
		StreamTopic: cfg.StreamTopic,
		Timeout:     cfg.HTTPTimeout,
		SQLCache:    cache,
		Logger:      logger,
	})
	if err != nil {
		stream.Close()
		return nil, nil, fmt.Errorf("failed to create client: %w", err)
	}
	logger.Info("Stream configured", "url", utils.SanitizeConnectionString(cfg.StreamURL), "topic", cfg.StreamTopic)
	return c, stream, nil
}
