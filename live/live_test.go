package live_test

import (
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b-open-io/gamedata/fact"
	"github.com/b-open-io/gamedata/internal/notify"
	"github.com/b-open-io/gamedata/live"
	"github.com/b-open-io/gamedata/lookup"
	"github.com/b-open-io/gamedata/query"
	"github.com/b-open-io/gamedata/storage"
	"github.com/b-open-io/gamedata/subscriber"
)

type fakeStatus struct {
	mu        sync.Mutex
	status    subscriber.Status
	listeners notify.Listeners[subscriber.Status]
}

func (f *fakeStatus) Status() subscriber.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeStatus) OnStatus(fn func(subscriber.Status)) func() {
	return f.listeners.Add(func(s []subscriber.Status) { fn(s[0]) })
}

func (f *fakeStatus) set(s subscriber.Status) {
	f.mu.Lock()
	f.status = s
	f.mu.Unlock()
	f.listeners.Notify([]subscriber.Status{s})
}

func mintFacts(n int) []fact.Fact {
	facts := make([]fact.Fact, 0, n)
	for i := 1; i <= n; i++ {
		facts = append(facts, fact.TokenMetadata{TokenID: strconv.Itoa(i), GameID: "2", MintedAt: strconv.Itoa(100 + i)})
	}
	return facts
}

func pageIDs(p query.Page[storage.GameToken]) []uint64 {
	ids := make([]uint64, 0, len(p.Items))
	for _, t := range p.Items {
		ids = append(ids, t.TokenID)
	}
	return ids
}

func TestTokensPaginatesAndClamps(t *testing.T) {
	store := storage.NewTokenStore(nil)
	store.Initialize(mintFacts(23))

	view := live.NewTokens(store, nil, live.TokensOptions{PageSize: 5})
	defer view.Close()

	st := view.State()
	assert.Equal(t, 5, st.Page.TotalPages)
	assert.Equal(t, 23, st.Page.Total)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, pageIDs(st.Page))
	assert.True(t, st.Page.HasNextPage)
	assert.False(t, st.Page.HasPreviousPage)

	view.GoTo(9999)
	st = view.State()
	assert.Equal(t, 4, st.Page.PageIndex)
	assert.Equal(t, []uint64{21, 22, 23}, pageIDs(st.Page))

	view.GoTo(-5)
	assert.Equal(t, 0, view.State().Page.PageIndex)

	view.Next()
	assert.Equal(t, 1, view.State().Page.PageIndex)
	view.Previous()
	assert.Equal(t, 0, view.State().Page.PageIndex)
	view.Last()
	assert.Equal(t, 4, view.State().Page.PageIndex)

	store.Upsert(fact.TokenMetadata{TokenID: "24", GameID: "2"})
	st = view.State()
	assert.Equal(t, 24, st.Page.Total)
	assert.Equal(t, []uint64{21, 22, 23, 24}, pageIDs(st.Page))

	view.SetPageSize(10)
	st = view.State()
	assert.Equal(t, 3, st.Page.TotalPages)
	assert.Equal(t, 2, st.Page.PageIndex)
}

func TestTokensFilterAndSort(t *testing.T) {
	store := storage.NewTokenStore(nil)
	store.Initialize([]fact.Fact{
		fact.TokenMetadata{TokenID: "1", GameID: "2"},
		fact.TokenMetadata{TokenID: "2", GameID: "2"},
		fact.TokenMetadata{TokenID: "3", GameID: "2"},
		fact.Owner{TokenID: "1", Owner: "0x1"},
		fact.Owner{TokenID: "2", Owner: "0x2"},
		fact.Owner{TokenID: "3", Owner: "0x01"},
		fact.Score{TokenID: "1", Score: "5"},
		fact.Score{TokenID: "3", Score: "50"},
	})

	view := live.NewTokens(store, nil, live.TokensOptions{PageSize: 1})
	defer view.Close()
	view.Next()

	view.SetFilter(query.Criteria{Owner: "0x1"})
	st := view.State()
	assert.Equal(t, 0, st.Page.PageIndex)
	assert.Equal(t, 2, st.Page.Total)
	assert.Equal(t, []uint64{1}, pageIDs(st.Page))

	view.SetSort(query.FieldScore, query.OrderDefault)
	assert.Equal(t, []uint64{3}, pageIDs(view.State().Page))
	assert.Equal(t, query.FieldScore, view.Options().SortBy)

	store.Upsert(fact.Score{TokenID: "1", Score: "500"})
	assert.Equal(t, []uint64{1}, pageIDs(view.State().Page))
}

func TestTokensReportsStatus(t *testing.T) {
	store := storage.NewTokenStore(nil)
	status := &fakeStatus{status: subscriber.Status{Loading: true}}

	view := live.NewTokens(store, status, live.TokensOptions{})
	var seen []live.TokensState
	stop := view.OnChange(func(s live.TokensState) { seen = append(seen, s) })
	defer stop()

	assert.True(t, view.State().Loading)

	status.set(subscriber.Status{Subscribed: true})
	st := view.State()
	assert.True(t, st.Subscribed)
	assert.False(t, st.Loading)

	boom := errors.New("stream closed")
	status.set(subscriber.Status{Err: boom})
	assert.ErrorIs(t, view.State().Err, boom)
	assert.Len(t, seen, 2)

	view.Close()
	status.set(subscriber.Status{Subscribed: true})
	assert.False(t, view.State().Subscribed)
}

func TestLookupViewsFollowLateJoins(t *testing.T) {
	set := lookup.NewSet()

	settings := live.SettingsForGame(set, 2)
	defer settings.Close()
	objectives := live.ObjectivesForGame(set, []uint64{5}, 2)
	defer objectives.Close()
	game := live.Game(set, 2)
	defer game.Close()
	games := live.Games(set)
	defer games.Close()

	set.Apply(fact.SettingsCreated{SettingsID: "9", GameAddress: "0xabc", Data: `{"Name":"Easy"}`})
	set.Apply(fact.ObjectiveCreated{ObjectiveID: "5", GameAddress: "0xabc", Data: "Win"})
	assert.Empty(t, settings.Get())
	assert.Empty(t, objectives.Get())
	assert.Nil(t, game.Get())

	set.Apply(fact.GameMetadata{GameID: "2", ContractAddress: "0xabc", Name: "Dungeon"})

	require.Len(t, settings.Get(), 1)
	assert.Equal(t, "Easy", settings.Get()[0].Name)
	require.Len(t, objectives.Get(), 1)
	assert.Equal(t, "Win", objectives.Get()[0].Data)
	require.NotNil(t, game.Get())
	assert.Equal(t, "Dungeon", game.Get().Name)
	assert.Len(t, games.Get(), 1)

	set.Clear()
	assert.Empty(t, games.Get())
	assert.Empty(t, settings.Get())
}
