package queries

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b-open-io/gamedata/sqlclient"
)

type fakeExec struct {
	mu      sync.Mutex
	body    string
	err     error
	queries []string
}

func (f *fakeExec) Execute(ctx context.Context, query string) ([]sqlclient.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.err != nil {
		return []sqlclient.Row{}, f.err
	}
	if query == "" || f.body == "" {
		return []sqlclient.Row{}, nil
	}
	return sqlclient.ParseRows([]byte(f.body))
}

func (f *fakeExec) lastQuery() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		return ""
	}
	return f.queries[len(f.queries)-1]
}

func TestQueryKeepsDataOnFailedRefetch(t *testing.T) {
	var fail atomic.Bool
	boom := errors.New("connection refused")
	q := NewQuery([]int{}, func(ctx context.Context) ([]int, error) {
		if fail.Load() {
			return nil, boom
		}
		return []int{1, 2}, nil
	})

	assert.Equal(t, []int{}, q.Result().Data)

	var loading []bool
	stop := q.OnChange(func(r Result[[]int]) { loading = append(loading, r.Loading) })
	defer stop()

	require.NoError(t, q.Refetch(context.Background()))
	assert.Equal(t, []int{1, 2}, q.Result().Data)
	assert.Equal(t, []bool{true, false}, loading)

	fail.Store(true)
	assert.ErrorIs(t, q.Refetch(context.Background()), boom)
	r := q.Result()
	assert.Equal(t, []int{1, 2}, r.Data)
	assert.ErrorIs(t, r.Error, boom)
	assert.False(t, r.Loading)

	fail.Store(false)
	require.NoError(t, q.Refetch(context.Background()))
	assert.NoError(t, q.Result().Error)
}

func TestGamesDecodesFelts(t *testing.T) {
	exec := &fakeExec{body: `[
		{"game_id":"0x1","contract_address":"0xabc","name":"0x44756e67656f6e","description":"Crawl","developer":"0x4c6f6f74","color":"#fff"},
		{"game_id":null,"name":"orphan"}
	]`}
	q := New(exec, "ns").Games()
	require.NoError(t, q.Refetch(context.Background()))

	games := q.Result().Data
	require.Len(t, games, 1)
	assert.Equal(t, uint64(1), games[0].ID)
	assert.Equal(t, "Dungeon", games[0].Name)
	assert.Equal(t, "Loot", games[0].Developer)
	assert.Equal(t, "Crawl", games[0].Description)
	assert.Equal(t, "#fff", games[0].Color)
	assert.Contains(t, exec.lastQuery(), `FROM "ns-GameMetadataUpdate"`)
}

func TestGameByAddress(t *testing.T) {
	exec := &fakeExec{body: `[{"game_id":"2","contract_address":"0xabc","name":"Chess"}]`}
	b := New(exec, "ns")

	q := b.GameByAddress("0xABC")
	require.NoError(t, q.Refetch(context.Background()))
	require.NotNil(t, q.Result().Data)
	assert.Equal(t, uint64(2), q.Result().Data.ID)
	assert.Contains(t, exec.lastQuery(), "'0x"+strings.Repeat("0", 61)+"abc'")

	exec.body = `[]`
	q = b.GameByAddress("0xdef")
	require.NoError(t, q.Refetch(context.Background()))
	assert.Nil(t, q.Result().Data)
}

func TestSettingsForGameParsesNestedJSON(t *testing.T) {
	exec := &fakeExec{body: `[
		{"settings_id":"0x9","game_address":"0xabc","created_by":"0x1","settings_data":"{\"Name\":\"Easy\",\"Settings\":{\"x\":1}}"},
		{"settings_id":"0xa","game_address":"0xabc","settings_data":"{not json"}
	]`}
	q := New(exec, "ns").SettingsForGame("0xabc")
	require.NoError(t, q.Refetch(context.Background()))

	settings := q.Result().Data
	require.Len(t, settings, 2)
	assert.Equal(t, uint64(9), settings[0].ID)
	assert.Equal(t, "Easy", settings[0].Name)
	assert.Equal(t, map[string]any{"x": float64(1)}, settings[0].Data)
	assert.Equal(t, "", settings[1].Name)
	assert.Empty(t, settings[1].Data)
	assert.NotNil(t, settings[1].Data)
}

func TestObjectivesForGame(t *testing.T) {
	exec := &fakeExec{body: `[{"objective_id":"3","game_address":"0xabc","objective_data":"Reach level 5"}]`}
	q := New(exec, "ns").ObjectivesForGame("0xabc")
	require.NoError(t, q.Refetch(context.Background()))
	require.Len(t, q.Result().Data, 1)
	assert.Equal(t, "Reach level 5", q.Result().Data[0].Data)
	assert.Contains(t, exec.lastQuery(), `"ns-ObjectiveCreated"`)
}

func TestTokenCount(t *testing.T) {
	exec := &fakeExec{body: `[{"count":12}]`}
	b := New(exec, "ns")

	q := b.TokenCount(nil)
	require.NoError(t, q.Refetch(context.Background()))
	assert.Equal(t, uint64(12), q.Result().Data)
	assert.NotContains(t, exec.lastQuery(), "WHERE")

	game := uint64(2)
	q = b.TokenCount(&game)
	require.NoError(t, q.Refetch(context.Background()))
	assert.Contains(t, exec.lastQuery(), "WHERE game_id = '0x"+strings.Repeat("0", 63)+"2'")
}

func TestPlayerNames(t *testing.T) {
	exec := &fakeExec{body: `[{"token_id":"0x7","player_name":"0x616c696365"},{"token_id":"8","player_name":"bob"}]`}
	b := New(exec, "ns")

	q := b.PlayerNames([]uint64{7, 8})
	require.NoError(t, q.Refetch(context.Background()))
	assert.Equal(t, map[uint64]string{7: "alice", 8: "bob"}, q.Result().Data)

	q = b.PlayerNames(nil)
	require.NoError(t, q.Refetch(context.Background()))
	assert.Empty(t, q.Result().Data)
	assert.Equal(t, "", exec.lastQuery())
}

func TestLeaderboardOrdersByNumericScore(t *testing.T) {
	exec := &fakeExec{body: `[
		{"token_id":"1","score":"0x9","player_name":"0x616c696365","owner":"0x1"},
		{"token_id":"2","score":"0x2a","player_name":"bob","owner":null},
		{"token_id":"3","score":"0x100"}
	]`}
	game := uint64(2)
	q := New(exec, "ns").Leaderboard(&game, 2)
	require.NoError(t, q.Refetch(context.Background()))

	entries := q.Result().Data
	require.Len(t, entries, 2)
	assert.Equal(t, LeaderboardEntry{TokenID: 3, Score: 256}, entries[0])
	assert.Equal(t, LeaderboardEntry{TokenID: 2, Score: 42, PlayerName: "bob"}, entries[1])

	sql := exec.lastQuery()
	assert.Contains(t, sql, "LIMIT 2")
	assert.Contains(t, sql, "WHERE m.game_id = ")
}

func TestBindingSurfacesServerErrorUnchanged(t *testing.T) {
	var fail atomic.Bool
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if fail.Load() {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, "no such table: ns-ObjectiveCreated")
			return
		}
		fmt.Fprint(w, `[{"objective_id":"1","objective_data":"Win"}]`)
	}))
	defer srv.Close()

	client, err := sqlclient.New(srv.URL, sqlclient.Options{})
	require.NoError(t, err)
	b := New(client, "ns")

	q := b.ObjectivesForGame("0xabc")
	require.NoError(t, q.Refetch(context.Background()))
	require.Len(t, q.Result().Data, 1)

	fail.Store(true)
	require.Error(t, q.Refetch(context.Background()))
	r := q.Result()
	assert.EqualError(t, r.Error, "no such table: ns-ObjectiveCreated")
	assert.Len(t, r.Data, 1)

	// A blank binding never reaches the endpoint.
	before := hits.Load()
	blank := b.SettingsForGame("")
	require.NoError(t, blank.Refetch(context.Background()))
	assert.Empty(t, blank.Result().Data)
	assert.Equal(t, before, hits.Load())
}

func TestSQLQuoting(t *testing.T) {
	assert.Equal(t, `"a""b-Model"`, table(`a"b`, "Model"))
	assert.Equal(t, `"Model"`, table("", "Model"))
	assert.Equal(t, `'o''k'`, literal("o'k"))
	assert.Equal(t, "", gameByAddressSQL("ns", ""))
}
