// Package mirror copies merged tokens into an external store so that other
// services can read them without running a subscription. Sinks receive the
// token's JSON document with an "updated_at" timestamp added.
package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/sync/errgroup"

	"github.com/b-open-io/gamedata/dedup"
	"github.com/b-open-io/gamedata/storage"
)

// Sink is a downstream token store.
type Sink interface {
	Write(ctx context.Context, tokenID uint64, doc []byte) error
	Delete(ctx context.Context, tokenID uint64) error
	Get(ctx context.Context, tokenID uint64) ([]byte, error)
	Close() error
}

// ErrNotFound is returned by Sink.Get for unknown tokens.
var ErrNotFound = errors.New("token not found in mirror")

const defaultConcurrency = 8

// Mirror follows a token store and writes every changed token to a sink.
// Tokens that disappear from the store are deleted from the sink.
type Mirror struct {
	store  *storage.TokenStore
	sink   Sink
	logger *slog.Logger
	saver  *dedup.Saver[uint64, []byte]
	now    func() time.Time

	mu    sync.Mutex
	dirty map[uint64]struct{}
	wake  chan struct{}
}

func New(store *storage.TokenStore, sink Sink, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Mirror{
		store:  store,
		sink:   sink,
		logger: logger,
		now:    time.Now,
		dirty:  make(map[uint64]struct{}),
		wake:   make(chan struct{}, 1),
	}
	m.saver = dedup.NewSaver(sink.Write)
	return m
}

// Run mirrors the whole store, then every change, until ctx is done.
func (m *Mirror) Run(ctx context.Context) error {
	stop := m.store.OnChange(m.mark)
	defer stop()

	all := m.store.All()
	ids := make([]uint64, len(all))
	for i, t := range all {
		ids[i] = t.TokenID
	}
	m.mark(ids)
	m.logger.Info("Mirror started", "tokens", len(ids))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.wake:
			if err := m.Flush(ctx); err != nil && ctx.Err() == nil {
				m.logger.Error("Mirror flush failed", "error", err)
			}
		}
	}
}

// mark queues ids for the next flush. It runs on the store's notification
// path and never blocks.
func (m *Mirror) mark(ids []uint64) {
	m.mu.Lock()
	for _, id := range ids {
		m.dirty[id] = struct{}{}
	}
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Flush writes every queued token now. Failed tokens are queued again.
func (m *Mirror) Flush(ctx context.Context) error {
	m.mu.Lock()
	batch := m.dirty
	m.dirty = make(map[uint64]struct{})
	m.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(defaultConcurrency)
	for id := range batch {
		g.Go(func() error {
			if err := m.sync(gctx, id); err != nil {
				m.mark([]uint64{id})
				return fmt.Errorf("token %d: %w", id, err)
			}
			return nil
		})
	}
	err := g.Wait()
	m.logger.Debug("Mirror flushed", "tokens", len(batch), "error", err)
	return err
}

func (m *Mirror) sync(ctx context.Context, id uint64) error {
	tok, ok := m.store.Get(id)
	if !ok {
		return m.sink.Delete(ctx, id)
	}
	doc, err := m.encode(tok)
	if err != nil {
		return err
	}
	return m.saver.Save(ctx, id, doc)
}

func (m *Mirror) encode(tok storage.GameToken) ([]byte, error) {
	doc, err := json.Marshal(tok)
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(doc, "updated_at", m.now().UTC().Format(time.RFC3339Nano))
}

// indexed holds the columns SQL and Redis sinks index besides the document.
type indexed struct {
	gameID  int64
	owner   string
	score   int64
	updated string
}

func indexedFields(doc []byte) indexed {
	return indexed{
		gameID:  gjson.GetBytes(doc, "game_id").Int(),
		owner:   gjson.GetBytes(doc, "owner").String(),
		score:   gjson.GetBytes(doc, "score").Int(),
		updated: gjson.GetBytes(doc, "updated_at").String(),
	}
}
