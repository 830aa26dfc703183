package storage

import (
	"bytes"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/b-open-io/gamedata/fact"
	"github.com/b-open-io/gamedata/felt"
	"github.com/b-open-io/gamedata/index"
	"github.com/b-open-io/gamedata/internal/notify"
	"github.com/b-open-io/gamedata/lookup"
)

// TokenStore holds the merged game tokens for one session. It owns the
// relationship index and joins against a games lookup store.
type TokenStore struct {
	mu          sync.RWMutex
	tokens      map[uint64]*GameToken
	index       *index.Relationships
	games       *lookup.Games
	lastUpdated time.Time
	listeners   notify.Listeners[uint64]
}

// NewTokenStore creates an empty store. A nil games store is replaced by an
// empty one.
func NewTokenStore(games *lookup.Games) *TokenStore {
	if games == nil {
		games = lookup.NewGames()
	}
	return &TokenStore{
		tokens: make(map[uint64]*GameToken),
		index:  index.New(),
		games:  games,
	}
}

// Initialize rebuilds the store from a full snapshot of facts.
//
// The build has three passes: every fact is fed to the relationship index,
// facts are grouped by the tokens they affect, and each token is folded from
// an empty aggregate in mergeOrder. Out-of-band metadata held by the previous
// aggregates is carried over.
func (s *TokenStore) Initialize(facts []fact.Fact) {
	s.mu.Lock()
	previous := s.tokens
	s.index.Reset()
	s.tokens = make(map[uint64]*GameToken)

	for _, f := range facts {
		s.index.Update(f)
	}

	grouped := make(map[uint64][]fact.Fact)
	for _, f := range facts {
		for _, id := range s.index.AffectedTokens(f) {
			grouped[id] = append(grouped[id], f)
		}
	}

	for id, group := range grouped {
		t := newToken(id)
		for _, f := range mergeOrder(group) {
			s.merge(t, f)
		}
		s.tokens[id] = t
	}

	for id, old := range previous {
		if len(old.Metadata) == 0 {
			continue
		}
		t, ok := s.tokens[id]
		if !ok {
			t = newToken(id)
			s.tokens[id] = t
		}
		t.Metadata = old.Metadata
	}
	s.lastUpdated = time.Now()
	ids := s.sortedIDs()
	s.mu.Unlock()

	s.listeners.Notify(ids)
}

// Upsert folds a single fact into the store and returns the ids of the tokens
// it touched.
func (s *TokenStore) Upsert(f fact.Fact) []uint64 {
	s.mu.Lock()
	ids := s.upsert(f)
	s.mu.Unlock()

	if len(ids) > 0 {
		s.listeners.Notify(ids)
	}
	return ids
}

// UpsertRecord folds every fact of rec.
func (s *TokenStore) UpsertRecord(rec fact.EntityRecord) []uint64 {
	return s.UpsertRecords([]fact.EntityRecord{rec})
}

// UpsertRecords folds every fact of recs in order and notifies listeners once.
func (s *TokenStore) UpsertRecords(recs []fact.EntityRecord) []uint64 {
	seen := make(map[uint64]struct{})
	var ids []uint64
	s.mu.Lock()
	for _, rec := range recs {
		for _, f := range rec.Facts {
			for _, id := range s.upsert(f) {
				if _, ok := seen[id]; !ok {
					seen[id] = struct{}{}
					ids = append(ids, id)
				}
			}
		}
	}
	s.mu.Unlock()

	slices.Sort(ids)
	if len(ids) > 0 {
		s.listeners.Notify(ids)
	}
	return ids
}

func (s *TokenStore) upsert(f fact.Fact) []uint64 {
	s.index.Update(f)

	if m, ok := f.(fact.MinterRegistry); ok {
		return s.broadcastMinter(m)
	}

	ids := s.index.AffectedTokens(f)
	for _, id := range ids {
		t, ok := s.tokens[id]
		if !ok {
			t = newToken(id)
			s.tokens[id] = t
		}
		metadata := t.Metadata
		s.merge(t, f)
		if len(t.Metadata) == 0 && len(metadata) > 0 {
			t.Metadata = metadata
		}
	}
	if len(ids) > 0 {
		s.lastUpdated = time.Now()
	}
	return ids
}

// broadcastMinter sets the minter address on every token minted by m. Many
// tokens share a minter and registrations are rare, so this scans the whole
// store rather than keeping a minter index.
func (s *TokenStore) broadcastMinter(m fact.MinterRegistry) []uint64 {
	minter, ok := felt.ParseUint(m.MinterID)
	if !ok {
		return nil
	}
	var ids []uint64
	for id, t := range s.tokens {
		if t.MintedBy != nil && *t.MintedBy == minter {
			t.MintedByAddress = m.Address
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	if len(ids) > 0 {
		s.lastUpdated = time.Now()
	}
	return ids
}

// SetMetadata attaches an out-of-band metadata blob to a token, creating the
// token if needed. Facts never overwrite it.
func (s *TokenStore) SetMetadata(tokenID uint64, metadata json.RawMessage) {
	s.mu.Lock()
	t, ok := s.tokens[tokenID]
	if !ok {
		t = newToken(tokenID)
		s.tokens[tokenID] = t
	}
	changed := !bytes.Equal(t.Metadata, metadata)
	t.Metadata = slices.Clone(metadata)
	if changed {
		s.lastUpdated = time.Now()
	}
	s.mu.Unlock()

	if changed {
		s.listeners.Notify([]uint64{tokenID})
	}
}

// Clear drops every token and resets the relationship index.
func (s *TokenStore) Clear() {
	s.mu.Lock()
	ids := s.sortedIDs()
	s.tokens = make(map[uint64]*GameToken)
	s.index.Reset()
	s.lastUpdated = time.Time{}
	s.mu.Unlock()

	if len(ids) > 0 {
		s.listeners.Notify(ids)
	}
}

// Get returns a copy of one token.
func (s *TokenStore) Get(id uint64) (GameToken, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tokens[id]
	if !ok {
		return GameToken{}, false
	}
	return t.Clone(), true
}

// All returns copies of every token ordered by token id.
func (s *TokenStore) All() []GameToken {
	return s.Filter(nil)
}

// Filter returns copies of the tokens keep accepts, ordered by token id. A nil
// keep accepts everything.
func (s *TokenStore) Filter(keep func(*GameToken) bool) []GameToken {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]GameToken, 0, len(s.tokens))
	for _, id := range s.sortedIDs() {
		t := s.tokens[id]
		if keep == nil || keep(t) {
			out = append(out, t.Clone())
		}
	}
	return out
}

func (s *TokenStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

// Relationships returns a copy of the forward join maps.
func (s *TokenStore) Relationships() index.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Snapshot()
}

// LastUpdated is the time of the last change, or zero for an empty store.
func (s *TokenStore) LastUpdated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdated
}

// OnChange registers fn to be called with the ids of changed tokens. It
// returns a function that removes fn.
func (s *TokenStore) OnChange(fn func(ids []uint64)) func() {
	return s.listeners.Add(fn)
}

func (s *TokenStore) sortedIDs() []uint64 {
	ids := make([]uint64, 0, len(s.tokens))
	for id := range s.tokens {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
