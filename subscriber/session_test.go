package subscriber_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b-open-io/gamedata/fact"
	"github.com/b-open-io/gamedata/lookup"
	"github.com/b-open-io/gamedata/storage"
	"github.com/b-open-io/gamedata/subscriber"
)

type fakeSource struct {
	initial []fact.EntityRecord
	early   []fact.EntityRecord
	err     error
	entered chan struct{}
	release chan struct{}

	mu        sync.Mutex
	onUpdate  func([]fact.EntityRecord)
	calls     atomic.Int32
	cancelled atomic.Int32
}

func (f *fakeSource) Subscribe(ctx context.Context, q *subscriber.Query, onUpdate func([]fact.EntityRecord)) (*subscriber.Subscription, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.onUpdate = onUpdate
	f.mu.Unlock()
	if f.entered != nil {
		close(f.entered)
	}
	if f.early != nil {
		onUpdate(f.early)
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return subscriber.NewSubscription(f.initial, func() { f.cancelled.Add(1) }), nil
}

func (f *fakeSource) push(recs ...fact.EntityRecord) {
	f.mu.Lock()
	fn := f.onUpdate
	f.mu.Unlock()
	fn(recs)
}

func record(id string, facts ...fact.Fact) fact.EntityRecord {
	return fact.EntityRecord{ID: id, Facts: facts}
}

func mint(tokenID, gameID string) fact.EntityRecord {
	return record("0x"+tokenID, fact.TokenMetadata{TokenID: tokenID, GameID: gameID, MintedAt: "100"})
}

func score(tokenID, value string) fact.EntityRecord {
	return record("0xs"+tokenID, fact.Score{TokenID: tokenID, Score: value})
}

func newSession(src subscriber.Source) (*subscriber.Session, *lookup.Set, *storage.TokenStore) {
	lookups := lookup.NewSet()
	tokens := storage.NewTokenStore(lookups.Games)
	return subscriber.NewSession(src, lookups, tokens, nil), lookups, tokens
}

var testQuery = &subscriber.Query{Namespace: "ns"}

func TestSessionLoadsSnapshotAndAppliesUpdates(t *testing.T) {
	src := &fakeSource{initial: []fact.EntityRecord{
		mint("7", "2"),
		record("0xg2", fact.GameMetadata{GameID: "2", ContractAddress: "0xabc", Name: "Dungeon"}),
	}}
	s, lookups, tokens := newSession(src)

	require.NoError(t, s.Start(context.Background(), testQuery))

	tok, ok := tokens.Get(7)
	require.True(t, ok)
	require.NotNil(t, tok.GameMetadata)
	assert.Equal(t, "Dungeon", tok.GameMetadata.Name)
	assert.Equal(t, 1, lookups.Games.Len())

	src.push(score("7", "42"))
	tok, _ = tokens.Get(7)
	assert.Equal(t, uint64(42), tok.Score)

	st := s.Status()
	assert.True(t, st.Subscribed)
	assert.False(t, st.Loading)
	assert.NotEmpty(t, st.ID)
	assert.NoError(t, st.Err)
}

func TestSessionStopDuringSubscribeDropsSnapshot(t *testing.T) {
	src := &fakeSource{
		initial: []fact.EntityRecord{mint("7", "2")},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	s, _, tokens := newSession(src)

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background(), testQuery) }()

	<-src.entered
	assert.True(t, s.Status().Loading)
	s.Stop()
	close(src.release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return")
	}

	assert.Zero(t, tokens.Len())
	assert.Equal(t, int32(1), src.cancelled.Load())

	src.push(score("7", "42"))
	assert.Zero(t, tokens.Len())

	st := s.Status()
	assert.False(t, st.Subscribed)
	assert.False(t, st.Loading)
}

func TestSessionReplaysUpdatesReceivedBeforeSnapshot(t *testing.T) {
	src := &fakeSource{
		initial: []fact.EntityRecord{mint("7", "2")},
		early:   []fact.EntityRecord{score("7", "9")},
	}
	s, _, tokens := newSession(src)

	require.NoError(t, s.Start(context.Background(), testQuery))
	tok, ok := tokens.Get(7)
	require.True(t, ok)
	assert.Equal(t, uint64(9), tok.Score)
}

func TestSessionNilQueryMeansNoData(t *testing.T) {
	src := &fakeSource{initial: []fact.EntityRecord{mint("7", "2")}}
	s, _, tokens := newSession(src)

	require.NoError(t, s.Start(context.Background(), testQuery))
	require.Equal(t, 1, tokens.Len())

	require.NoError(t, s.Start(context.Background(), nil))
	assert.Zero(t, tokens.Len())
	assert.Equal(t, int32(1), src.calls.Load())
	assert.False(t, s.Status().Subscribed)
}

func TestSessionReportsErrors(t *testing.T) {
	boom := errors.New("indexer unavailable")
	s, _, tokens := newSession(&fakeSource{err: boom})

	err := s.Start(context.Background(), testQuery)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, s.Status().Err, boom)
	assert.Zero(t, tokens.Len())

	s, _, _ = newSession(nil)
	assert.ErrorIs(t, s.Start(context.Background(), testQuery), subscriber.ErrNoSource)
}

func TestSessionReconfigureReplacesData(t *testing.T) {
	first := &fakeSource{initial: []fact.EntityRecord{mint("7", "2")}}
	second := &fakeSource{initial: []fact.EntityRecord{mint("8", "2")}}
	s, _, tokens := newSession(first)

	require.NoError(t, s.Start(context.Background(), testQuery))
	epoch := s.Epoch()
	require.NoError(t, s.Reconfigure(context.Background(), second, testQuery))

	assert.Greater(t, s.Epoch(), epoch)
	assert.Equal(t, int32(1), first.cancelled.Load())
	_, ok := tokens.Get(7)
	assert.False(t, ok)
	_, ok = tokens.Get(8)
	assert.True(t, ok)

	// The replaced subscription can no longer write.
	first.push(mint("9", "2"))
	_, ok = tokens.Get(9)
	assert.False(t, ok)
}

func TestSessionOnStatus(t *testing.T) {
	s, _, _ := newSession(&fakeSource{})

	var mu sync.Mutex
	var seen []subscriber.Status
	stop := s.OnStatus(func(st subscriber.Status) {
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
	})
	defer stop()

	require.NoError(t, s.Start(context.Background(), testQuery))
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
	assert.True(t, seen[0].Loading)
	assert.True(t, seen[1].Subscribed)
	assert.Equal(t, seen[0].ID, seen[1].ID)
	assert.False(t, seen[2].Subscribed)
	assert.Greater(t, seen[2].Epoch, seen[1].Epoch)
}
