package subscriber

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/b-open-io/gamedata/fact"
	"github.com/b-open-io/gamedata/internal/notify"
	"github.com/b-open-io/gamedata/lookup"
	"github.com/b-open-io/gamedata/storage"
)

// ErrNoSource is returned by Start when the session has no source.
var ErrNoSource = errors.New("subscriber: session has no source")

// Status describes the current subscription.
type Status struct {
	ID         string `json:"id,omitempty"` // changes with every subscription
	Epoch      uint64 `json:"epoch"`
	Subscribed bool   `json:"subscribed"`
	Loading    bool   `json:"loading"`
	Err        error  `json:"-"`
}

// Session feeds one subscription at a time into a lookup.Set and a
// storage.TokenStore.
type Session struct {
	lookups *lookup.Set
	tokens  *storage.TokenStore
	logger  *slog.Logger

	// mu serializes store mutation and guards the fields below.
	mu          sync.Mutex
	source      Source
	epoch       uint64
	sub         *Subscription
	initialized bool
	pending     [][]fact.EntityRecord

	statusMu  sync.RWMutex
	status    Status
	listeners notify.Listeners[Status]
}

func NewSession(source Source, lookups *lookup.Set, tokens *storage.TokenStore, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		source:  source,
		lookups: lookups,
		tokens:  tokens,
		logger:  logger,
	}
}

// Start replaces any current subscription with one for q and loads its
// snapshot into the stores. A nil q clears the stores and is not an error.
// ctx bounds the lifetime of the subscription.
func (s *Session) Start(ctx context.Context, q *Query) error {
	s.mu.Lock()
	s.resetLocked()
	epoch := s.epoch
	source := s.source
	s.mu.Unlock()

	if q == nil {
		s.setStatus(Status{Epoch: epoch})
		return nil
	}
	if source == nil {
		s.setStatus(Status{Epoch: epoch, Err: ErrNoSource})
		return ErrNoSource
	}

	id := uuid.NewString()
	s.setStatus(Status{ID: id, Epoch: epoch, Loading: true})
	s.logger.Info("Opening subscription", "session", id, "epoch", epoch, "namespace", q.Namespace, "models", q.Models)

	sub, err := source.Subscribe(ctx, q, func(recs []fact.EntityRecord) {
		s.apply(epoch, recs)
	})

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		s.logger.Debug("Dropping stale subscription", "session", id, "epoch", epoch)
		sub.Cancel()
		return nil
	}
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("Subscription failed", "session", id, "error", err)
		s.setStatus(Status{ID: id, Epoch: epoch, Err: err})
		return err
	}

	facts := fact.Flatten(sub.Initial)
	s.lookups.Initialize(facts)
	s.tokens.Initialize(facts)
	s.sub = sub
	s.initialized = true
	for _, recs := range s.pending {
		s.applyLocked(recs)
	}
	s.pending = nil
	s.mu.Unlock()

	s.logger.Info("Subscription ready", "session", id, "entities", len(sub.Initial), "tokens", s.tokens.Len())
	s.setStatus(Status{ID: id, Epoch: epoch, Subscribed: true})
	return nil
}

// Stop cancels the subscription and clears all stores together.
func (s *Session) Stop() {
	s.mu.Lock()
	s.resetLocked()
	epoch := s.epoch
	s.mu.Unlock()
	s.setStatus(Status{Epoch: epoch})
}

// Reconfigure switches to a new source, for example after the indexer
// endpoint changed, and starts q on it.
func (s *Session) Reconfigure(ctx context.Context, source Source, q *Query) error {
	s.mu.Lock()
	s.source = source
	s.mu.Unlock()
	return s.Start(ctx, q)
}

// resetLocked advances the epoch, cancels the subscription and clears the stores.
func (s *Session) resetLocked() {
	s.epoch++
	s.sub.Cancel()
	s.sub = nil
	s.initialized = false
	s.pending = nil
	s.lookups.Clear()
	s.tokens.Clear()
}

func (s *Session) apply(epoch uint64, recs []fact.EntityRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case epoch != s.epoch:
		s.logger.Debug("Dropping stale update", "epoch", epoch, "current", s.epoch, "records", len(recs))
	case !s.initialized:
		s.pending = append(s.pending, recs)
	default:
		s.applyLocked(recs)
	}
}

func (s *Session) applyLocked(recs []fact.EntityRecord) {
	for _, rec := range recs {
		for _, f := range rec.Facts {
			s.lookups.Apply(f)
		}
	}
	s.tokens.UpsertRecords(recs)
}

// Epoch returns the current generation number.
func (s *Session) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

func (s *Session) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

// OnStatus registers fn to be called after every status change.
func (s *Session) OnStatus(fn func(Status)) func() {
	return s.listeners.Add(func(st []Status) {
		fn(st[0])
	})
}

// setStatus publishes st unless a newer epoch has already reported.
func (s *Session) setStatus(st Status) {
	s.statusMu.Lock()
	if st.Epoch < s.status.Epoch {
		s.statusMu.Unlock()
		return
	}
	s.status = st
	s.statusMu.Unlock()
	s.listeners.Notify([]Status{st})
}
