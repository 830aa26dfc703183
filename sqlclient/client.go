// Package sqlclient executes read-only SQL against the indexer's HTTP SQL
// endpoint and returns flat rows.
package sqlclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/b-open-io/gamedata/dedup"
)

var (
	// ErrRequest wraps failures to reach the endpoint or read its response.
	ErrRequest = errors.New("sql request failed")
	// ErrMalformedResponse is returned when the body is not a JSON row array.
	ErrMalformedResponse = errors.New("malformed sql response")
)

// QueryError is an error reported by the SQL endpoint itself. Message is the
// server's text, unchanged.
type QueryError struct {
	Status  int
	Message string
}

func (e *QueryError) Error() string { return e.Message }

const maxResponseBytes = 32 << 20

// Options configure a Client. The zero value is usable.
type Options struct {
	HTTPClient *http.Client
	Timeout    time.Duration // per request, default 30s
	Cache      *Cache        // optional response cache
	Logger     *slog.Logger
}

// Client executes queries. Identical queries in flight at the same time share
// one request.
type Client struct {
	endpoint string
	http     *http.Client
	timeout  time.Duration
	cache    *Cache
	loader   *dedup.Loader[string, []byte]
	logger   *slog.Logger
}

func New(endpoint string, opts Options) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid sql endpoint %q", endpoint)
	}
	c := &Client{
		endpoint: endpoint,
		http:     opts.HTTPClient,
		timeout:  opts.Timeout,
		cache:    opts.Cache,
		logger:   opts.Logger,
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.timeout <= 0 {
		c.timeout = 30 * time.Second
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.loader = dedup.NewLoader(c.fetch)
	return c, nil
}

func (c *Client) Endpoint() string { return c.endpoint }

// Execute runs query and returns its rows. A blank query returns no rows and
// no error. On any failure the rows are empty, never nil.
func (c *Client) Execute(ctx context.Context, query string) ([]Row, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Row{}, nil
	}

	if c.cache != nil {
		if body, ok := c.cache.Get(query); ok {
			return c.decode(body)
		}
	}

	body, err := c.loader.Load(ctx, query)
	if err != nil {
		return []Row{}, err
	}
	rows, err := c.decode(body)
	if err != nil {
		return []Row{}, err
	}
	if c.cache != nil {
		c.cache.Put(query, body)
	}
	return rows, nil
}

func (c *Client) decode(body []byte) ([]Row, error) {
	rows, err := ParseRows(body)
	if err != nil {
		return []Row{}, err
	}
	return rows, nil
}

func (c *Client) fetch(ctx context.Context, query string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u, _ := url.Parse(c.endpoint)
	q := u.Query()
	q.Set("query", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequest, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequest, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrRequest, err)
	}
	c.logger.Debug("SQL query executed", "status", resp.StatusCode, "bytes", len(body), "duration", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return nil, &QueryError{Status: resp.StatusCode, Message: serverMessage(resp.StatusCode, body)}
	}
	if msg := gjson.GetBytes(body, "error"); msg.Exists() && msg.Type == gjson.String {
		return nil, &QueryError{Status: resp.StatusCode, Message: msg.String()}
	}
	return body, nil
}

// serverMessage extracts the error text from a failed response body.
func serverMessage(status int, body []byte) string {
	if gjson.ValidBytes(body) {
		for _, key := range []string{"error", "message"} {
			if v := gjson.GetBytes(body, key); v.Exists() && v.String() != "" {
				return v.String()
			}
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return http.StatusText(status)
}
