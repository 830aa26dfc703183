// Package client ties the stores, the subscription session and the SQL
// bindings for one indexer into a single value that callers pass around.
package client

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/b-open-io/gamedata/internal/utils"
	"github.com/b-open-io/gamedata/live"
	"github.com/b-open-io/gamedata/lookup"
	"github.com/b-open-io/gamedata/pubsub"
	"github.com/b-open-io/gamedata/queries"
	"github.com/b-open-io/gamedata/sqlclient"
	"github.com/b-open-io/gamedata/storage"
	"github.com/b-open-io/gamedata/subscriber"
)

var (
	ErrNoIndexer = errors.New("client: an indexer URL or source is required")
	ErrNoSQL     = errors.New("client: a SQL URL or executor is required")
)

type Options struct {
	IndexerURL  string
	SQLURL      string
	Namespace   string
	Stream      pubsub.PubSub // update stream; nil gives snapshot-only subscriptions
	StreamTopic string
	HTTPClient  *http.Client
	Timeout     time.Duration
	SQLCache    *sqlclient.Cache
	Logger      *slog.Logger

	// Source and SQL replace the HTTP adapters built from the URLs.
	Source subscriber.Source
	SQL    queries.Executor
}

// Client is the entry point for one indexer. All of its stores belong to a
// single subscription session and are cleared together.
type Client struct {
	lookups *lookup.Set
	tokens  *storage.TokenStore
	session *subscriber.Session
	queries *queries.Bindings
	sql     queries.Executor
	logger  *slog.Logger

	mu   sync.Mutex
	opts Options
}

func New(opts Options) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	source, err := newSource(opts)
	if err != nil {
		return nil, err
	}
	exec := opts.SQL
	if exec == nil {
		if opts.SQLURL == "" {
			return nil, ErrNoSQL
		}
		sc, err := sqlclient.New(opts.SQLURL, sqlclient.Options{
			HTTPClient: opts.HTTPClient,
			Timeout:    opts.Timeout,
			Cache:      opts.SQLCache,
			Logger:     opts.Logger,
		})
		if err != nil {
			return nil, err
		}
		exec = sc
	}

	lookups := lookup.NewSet()
	tokens := storage.NewTokenStore(lookups.Games)
	c := &Client{
		lookups: lookups,
		tokens:  tokens,
		session: subscriber.NewSession(source, lookups, tokens, opts.Logger),
		queries: queries.New(exec, opts.Namespace),
		sql:     exec,
		logger:  opts.Logger,
		opts:    opts,
	}
	c.logger.Info("Client configured",
		"indexer", utils.SanitizeConnectionString(opts.IndexerURL),
		"sql", utils.SanitizeConnectionString(opts.SQLURL),
		"namespace", opts.Namespace)
	return c, nil
}

func newSource(opts Options) (subscriber.Source, error) {
	if opts.Source != nil {
		return opts.Source, nil
	}
	if opts.IndexerURL == "" {
		return nil, ErrNoIndexer
	}
	return subscriber.NewStreamSource(opts.IndexerURL, opts.Stream, opts.StreamTopic, opts.HTTPClient), nil
}

func (c *Client) Lookups() *lookup.Set         { return c.lookups }
func (c *Client) Tokens() *storage.TokenStore  { return c.tokens }
func (c *Client) Session() *subscriber.Session { return c.session }
func (c *Client) Queries() *queries.Bindings   { return c.queries }
func (c *Client) SQL() queries.Executor        { return c.sql }
func (c *Client) Status() subscriber.Status    { return c.session.Status() }

func (c *Client) Namespace() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts.Namespace
}

// Subscribe starts the session on the client's namespace. With no models
// every model is delivered.
func (c *Client) Subscribe(ctx context.Context, models ...string) error {
	return c.session.Start(ctx, &subscriber.Query{Namespace: c.Namespace(), Models: models})
}

// Unsubscribe stops the session and clears every store.
func (c *Client) Unsubscribe() {
	c.session.Stop()
}

// SetIndexer points the session at a different indexer. The stores are
// cleared and reloaded from the new endpoint.
func (c *Client) SetIndexer(ctx context.Context, indexerURL string, models ...string) error {
	c.mu.Lock()
	opts := c.opts
	opts.IndexerURL = indexerURL
	opts.Source = nil
	source, err := newSource(opts)
	if err == nil {
		c.opts = opts
	}
	ns := c.opts.Namespace
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.logger.Info("Switching indexer", "indexer", utils.SanitizeConnectionString(indexerURL))
	return c.session.Reconfigure(ctx, source, &subscriber.Query{Namespace: ns, Models: models})
}

// TokenView opens a paginated view over the client's tokens.
func (c *Client) TokenView(opts live.TokensOptions) *live.Tokens {
	return live.NewTokens(c.tokens, c.session, opts)
}

// Close stops the session.
func (c *Client) Close() error {
	c.session.Stop()
	return nil
}
