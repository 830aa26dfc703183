package subscriber_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b-open-io/gamedata/pubsub"
	"github.com/b-open-io/gamedata/subscriber"
)

const snapshotBody = `{"items":[
	{"entityId":"0x1","models":{"ns":{"TokenMetadataUpdate":{"id":"7","game_id":"2","minted_at":"100"}}}},
	{"entityId":"0x2","models":{"ns":{"GameMetadataUpdate":{"game_id":"2","metadata":{"name":"Dungeon","contract_address":"0xabc"}}}}},
	{"entityId":"0x3","models":{"ns":{"TokenMetadataUpdate":{"id":"8","game_id":"2","minted_at":"101"}}}}
]}`

func snapshotServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/entities", r.URL.Path)
		assert.Equal(t, "ns", r.URL.Query().Get("namespace"))
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStreamSourceSnapshotAndUpdates(t *testing.T) {
	srv := snapshotServer(t, http.StatusOK, snapshotBody)
	ps := pubsub.NewChannelPubSub()
	defer ps.Close()

	src := subscriber.NewStreamSource(srv.URL+"/", ps, "entities", nil)
	s, lookups, tokens := newSession(src)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx, &subscriber.Query{Namespace: "ns", Models: []string{"ns-TokenMetadataUpdate"}}))

	assert.Equal(t, 2, tokens.Len())
	assert.Equal(t, 1, lookups.Games.Len())

	require.NoError(t, ps.Publish(ctx, "entities", "not json"))
	require.NoError(t, ps.Publish(ctx, "entities",
		`{"entityId":"0x1","models":{"ns":{"TokenScoreUpdate":{"token_id":"7","score":"42"}}}}`))

	require.Eventually(t, func() bool {
		tok, ok := tokens.Get(7)
		return ok && tok.Score == 42
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStreamSourceFiltersEntityIDs(t *testing.T) {
	srv := snapshotServer(t, http.StatusOK, snapshotBody)
	src := subscriber.NewStreamSource(srv.URL, nil, "", nil)

	recs, err := src.Snapshot(context.Background(), &subscriber.Query{Namespace: "ns", EntityIDs: []string{"0X3"}})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "0x3", recs[0].ID)
}

func TestStreamSourceSnapshotErrors(t *testing.T) {
	srv := snapshotServer(t, http.StatusBadGateway, "upstream down")
	src := subscriber.NewStreamSource(srv.URL, nil, "", nil)

	_, err := src.Snapshot(context.Background(), &subscriber.Query{Namespace: "ns"})
	assert.ErrorIs(t, err, subscriber.ErrSnapshot)
	assert.Contains(t, err.Error(), "upstream down")

	srv = snapshotServer(t, http.StatusOK, "<html>")
	src = subscriber.NewStreamSource(srv.URL, nil, "", nil)
	_, err = src.Snapshot(context.Background(), &subscriber.Query{Namespace: "ns"})
	assert.ErrorIs(t, err, subscriber.ErrSnapshot)
}
