package storage

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b-open-io/gamedata/fact"
	"github.com/b-open-io/gamedata/lookup"
)

func u64(v uint64) *uint64 { return &v }

func snapshotFacts() []fact.Fact {
	return []fact.Fact{
		fact.TokenMetadata{TokenID: "7", GameID: "2", MintedAt: "100", SettingsID: "9", MintedBy: "3"},
		fact.SettingsCreated{SettingsID: "9", Data: `{"Name":"Easy","Settings":{"x":1}}`},
		fact.ObjectiveAssignment{TokenID: "7", ObjectiveID: "11"},
		fact.ObjectiveAssignment{TokenID: "7", ObjectiveID: "11"},
		fact.ObjectiveAssignment{TokenID: "7", ObjectiveID: "12"},
		fact.Score{TokenID: "7", Score: "15"},
		fact.PlayerName{TokenID: "7", Name: "0x616c696365"},
		fact.Owner{TokenID: "0x7", Owner: "0x1"},
		fact.MinterRegistry{MinterID: "3", Address: "0xabc"},
	}
}

func TestBuildThenUpdate(t *testing.T) {
	store := NewTokenStore(nil)
	store.Initialize([]fact.Fact{
		fact.TokenMetadata{TokenID: "7", GameID: "2", MintedAt: "100", SettingsID: "9"},
		fact.SettingsCreated{SettingsID: "9", Data: `{"Name":"Easy","Settings":{"x":1}}`},
	})

	want := &lookup.SettingsData{Name: "Easy", Description: "", Data: map[string]any{"x": float64(1)}}
	tok, ok := store.Get(7)
	require.True(t, ok)
	assert.Equal(t, want, tok.Settings)
	assert.Equal(t, u64(2), tok.GameID)
	assert.Equal(t, u64(100), tok.MintedAt)
	assert.Zero(t, tok.Score)

	ids := store.Upsert(fact.Score{TokenID: "7", Score: "42"})
	assert.Equal(t, []uint64{7}, ids)

	tok, ok = store.Get(7)
	require.True(t, ok)
	assert.Equal(t, uint64(42), tok.Score)
	assert.Equal(t, want, tok.Settings)
}

func TestInitializeIsIdempotent(t *testing.T) {
	store := NewTokenStore(nil)
	store.Initialize(snapshotFacts())
	once := store.All()

	store.Initialize(snapshotFacts())
	twice := store.All()

	assert.Equal(t, once, twice)
	require.Len(t, twice, 1)
	assert.Equal(t, []uint64{11, 12}, twice[0].ObjectiveIDs)
	assert.Equal(t, uint64(15), twice[0].Score)
	assert.Equal(t, "alice", twice[0].PlayerName)
	assert.Equal(t, "0x1", twice[0].Owner)
	assert.Equal(t, "0xabc", twice[0].MintedByAddress)
}

func TestMergeDoesNotRegressOtherFields(t *testing.T) {
	store := NewTokenStore(nil)
	store.Upsert(fact.PlayerName{TokenID: "5", Name: "bob"})
	store.Upsert(fact.Score{TokenID: "5", Score: "9"})
	store.Upsert(fact.Owner{TokenID: "5", Owner: "0x2"})
	store.Upsert(fact.Context{TokenID: "5", Raw: `{"Name":"Cup","Contexts":{"Round":"1"}}`})
	store.Upsert(fact.Renderer{TokenID: "5", Renderer: "0xr"})

	tok, ok := store.Get(5)
	require.True(t, ok)
	assert.Equal(t, "bob", tok.PlayerName)
	assert.Equal(t, uint64(9), tok.Score)
	assert.Equal(t, "0x2", tok.Owner)
	assert.Equal(t, "0xr", tok.Renderer)
	require.NotNil(t, tok.Context)
	assert.Equal(t, "Cup", tok.Context.Name)
	assert.Equal(t, map[string]string{"Round": "1"}, tok.Context.Attributes)
}

func TestScoreDefaultsToZero(t *testing.T) {
	store := NewTokenStore(nil)
	store.Upsert(fact.Score{TokenID: "5", Score: "12"})
	store.Upsert(fact.Score{TokenID: "5", Score: "not a number"})

	tok, _ := store.Get(5)
	assert.Zero(t, tok.Score)
}

func TestMetadataSurvivesRebuildAndUpserts(t *testing.T) {
	store := NewTokenStore(nil)
	store.Initialize(snapshotFacts())
	blob := json.RawMessage(`{"image":"ipfs://x"}`)
	store.SetMetadata(7, blob)

	store.Initialize(snapshotFacts())
	tok, ok := store.Get(7)
	require.True(t, ok)
	assert.JSONEq(t, string(blob), string(tok.Metadata))

	store.Upsert(fact.TokenMetadata{TokenID: "7", GameID: "2", MintedAt: "200"})
	tok, _ = store.Get(7)
	assert.JSONEq(t, string(blob), string(tok.Metadata))
}

func TestMinterBroadcast(t *testing.T) {
	store := NewTokenStore(nil)
	store.Initialize([]fact.Fact{
		fact.TokenMetadata{TokenID: "1", MintedBy: "3"},
		fact.TokenMetadata{TokenID: "2", MintedBy: "3"},
		fact.TokenMetadata{TokenID: "4", MintedBy: "8"},
	})

	ids := store.Upsert(fact.MinterRegistry{MinterID: "3", Address: "0xabc"})
	assert.Equal(t, []uint64{1, 2}, ids)

	for _, id := range []uint64{1, 2} {
		tok, _ := store.Get(id)
		assert.Equal(t, "0xabc", tok.MintedByAddress)
	}
	tok, _ := store.Get(4)
	assert.Empty(t, tok.MintedByAddress)
}

func TestLateJoinsInBothOrders(t *testing.T) {
	settings := fact.SettingsCreated{SettingsID: "9", Data: `{"name":"Hard","description":"d"}`}
	metadata := fact.TokenMetadata{TokenID: "5", GameID: "1", SettingsID: "9"}
	minter := fact.MinterRegistry{MinterID: "4", Address: "0xm"}
	minted := fact.TokenMetadata{TokenID: "5", GameID: "1", SettingsID: "9", MintedBy: "4"}

	for name, order := range map[string][]fact.Fact{
		"definitions first": {settings, minter, metadata, minted},
		"tokens first":      {metadata, minted, settings, minter},
	} {
		t.Run(name, func(t *testing.T) {
			store := NewTokenStore(nil)
			for _, f := range order {
				store.Upsert(f)
			}
			tok, ok := store.Get(5)
			require.True(t, ok)
			require.NotNil(t, tok.Settings)
			assert.Equal(t, "Hard", tok.Settings.Name)
			assert.Equal(t, "d", tok.Settings.Description)
			assert.Equal(t, "0xm", tok.MintedByAddress)
		})
	}
}

func TestGameMetadataGuardedByGameID(t *testing.T) {
	games := lookup.NewGames()
	store := NewTokenStore(games)
	store.Upsert(fact.Owner{TokenID: "5", Owner: "0x1"})
	store.Upsert(fact.TokenMetadata{TokenID: "6", GameID: "2"})

	ids := store.Upsert(fact.GameMetadata{GameID: "2", Name: "Dungeon"})
	assert.Equal(t, []uint64{6}, ids)

	tok, _ := store.Get(5)
	assert.Nil(t, tok.GameMetadata)
	tok, _ = store.Get(6)
	require.NotNil(t, tok.GameMetadata)
	assert.Equal(t, "Dungeon", tok.GameMetadata.Name)

	games.Upsert(fact.GameMetadata{GameID: "2", Name: "Dungeon", ContractAddress: "0xg"})
	store.Upsert(fact.GameRegistry{GameID: "2", ContractAddress: "0xg"})
	tok, _ = store.Get(6)
	assert.Equal(t, "0xg", tok.GameMetadata.ContractAddress)
}

func TestPrimaryMetadataAppliedLastByMintTime(t *testing.T) {
	store := NewTokenStore(nil)
	store.Initialize([]fact.Fact{
		fact.TokenMetadata{TokenID: "1", MintedAt: "200", GameOver: true},
		fact.TokenMetadata{TokenID: "1", MintedAt: "100", GameOver: false},
		fact.Score{TokenID: "1", Score: "3"},
	})

	tok, _ := store.Get(1)
	require.NotNil(t, tok.GameOver)
	assert.True(t, *tok.GameOver)
	assert.Equal(t, u64(200), tok.MintedAt)
	assert.Equal(t, uint64(3), tok.Score)
}

func TestUnparseableNumbersBecomeUnset(t *testing.T) {
	store := NewTokenStore(nil)
	store.Upsert(fact.TokenMetadata{TokenID: "1", GameID: "x", MintedAt: "soon", LifecycleStart: "10"})

	tok, _ := store.Get(1)
	assert.Nil(t, tok.GameID)
	assert.Nil(t, tok.MintedAt)
	require.NotNil(t, tok.Lifecycle)
	assert.Equal(t, u64(10), tok.Lifecycle.Start)
	assert.Nil(t, tok.Lifecycle.End)
}

func TestOnChangeAndClear(t *testing.T) {
	store := NewTokenStore(nil)
	var got [][]uint64
	unsubscribe := store.OnChange(func(ids []uint64) { got = append(got, ids) })

	store.UpsertRecords([]fact.EntityRecord{
		{ID: "a", Facts: []fact.Fact{fact.Score{TokenID: "2"}, fact.Owner{TokenID: "1"}}},
		{ID: "b", Facts: []fact.Fact{fact.Score{TokenID: "1"}}},
	})
	store.Upsert(fact.ObjectiveCreated{ObjectiveID: "99"})
	assert.False(t, store.LastUpdated().IsZero())

	store.Clear()
	unsubscribe()
	store.Upsert(fact.Owner{TokenID: "3"})

	assert.Equal(t, [][]uint64{{1, 2}, {1, 2}}, got)
	assert.Equal(t, 1, store.Len())
	assert.Empty(t, store.Relationships().GameToTokens)
}

func TestGetReturnsCopies(t *testing.T) {
	store := NewTokenStore(nil)
	store.Upsert(fact.ObjectiveAssignment{TokenID: "1", ObjectiveID: "2"})

	tok, _ := store.Get(1)
	tok.ObjectiveIDs[0] = 99

	again, _ := store.Get(1)
	assert.Equal(t, []uint64{2}, again.ObjectiveIDs)
}

func TestGetCopiesNestedSettings(t *testing.T) {
	store := NewTokenStore(nil)
	store.Initialize([]fact.Fact{
		fact.TokenMetadata{TokenID: "7", SettingsID: "9"},
		fact.SettingsCreated{SettingsID: "9", Data: `{"Name":"Easy","Settings":{"x":{"y":1},"tiers":[{"z":2}]}}`},
	})

	tok, ok := store.Get(7)
	require.True(t, ok)
	require.NotNil(t, tok.Settings)
	tok.Settings.Data["x"].(map[string]any)["y"] = 99
	tok.Settings.Data["tiers"].([]any)[0].(map[string]any)["z"] = 99

	again, _ := store.Get(7)
	assert.Equal(t, map[string]any{"y": float64(1)}, again.Settings.Data["x"])
	assert.Equal(t, []any{map[string]any{"z": float64(2)}}, again.Settings.Data["tiers"])
}

func TestParseContext(t *testing.T) {
	assert.Equal(t, TokenContext{Attributes: map[string]string{}}, ParseContext("{broken"))
	assert.Equal(t,
		TokenContext{Name: "Cup", Description: "weekly", Attributes: map[string]string{"Tournament": "4"}},
		ParseContext(`"{\"name\":\"Cup\",\"description\":\"weekly\",\"Tournament\":4}"`),
	)
}
