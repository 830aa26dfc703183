package sqlclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/sql", Options{Cache: NewCache(1<<20, time.Minute)})
	require.NoError(t, err)
	return c, &hits
}

func TestExecuteReturnsRows(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sql", r.URL.Path)
		assert.Equal(t, "SELECT id, name FROM games", r.URL.Query().Get("query"))
		fmt.Fprint(w, `[{"id":"0x02","name":"0x44756e67656f6e","active":1,"meta":"{\"x\":1}"},{"id":3,"name":null},7]`)
	})

	rows, err := c.Execute(context.Background(), "SELECT id, name FROM games")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	id, ok := rows[0].Uint("id")
	require.True(t, ok)
	assert.Equal(t, uint64(2), id)
	assert.Equal(t, "Dungeon", rows[0].ShortString("name"))
	assert.True(t, rows[0].Bool("active"))
	assert.Equal(t, int64(1), rows[0].JSON("meta").Get("x").Int())
	assert.Equal(t, "", rows[1].String("name"))
}

func TestExecuteSurfacesServerError(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, "no such table: tokens")
	})

	rows, err := c.Execute(context.Background(), "SELECT * FROM tokens")
	assert.NotNil(t, rows)
	assert.Empty(t, rows)

	var qe *QueryError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, "no such table: tokens", err.Error())
	assert.Equal(t, http.StatusBadRequest, qe.Status)
}

func TestExecuteJSONErrorBody(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":"near \"SELEC\": syntax error"}`)
	})
	_, err := c.Execute(context.Background(), "SELEC 1")
	assert.EqualError(t, err, `near "SELEC": syntax error`)
}

func TestExecuteTransportAndEnvelopeErrors(t *testing.T) {
	c, err := New("http://127.0.0.1:1/sql", Options{Timeout: time.Second})
	require.NoError(t, err)
	rows, err := c.Execute(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, ErrRequest)
	assert.Empty(t, rows)

	c, _ = newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"rows":[]}`)
	})
	_, err = c.Execute(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestBlankQueryIsNoData(t *testing.T) {
	c, hits := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request")
	})
	rows, err := c.Execute(context.Background(), "  ")
	assert.NoError(t, err)
	assert.Empty(t, rows)
	assert.Zero(t, hits.Load())
}

func TestExecuteUsesCache(t *testing.T) {
	c, hits := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"n":1}]`)
	})
	for i := 0; i < 3; i++ {
		rows, err := c.Execute(context.Background(), "SELECT 1 AS n")
		require.NoError(t, err)
		require.Len(t, rows, 1)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestNewRejectsBadEndpoint(t *testing.T) {
	_, err := New("ftp://example.com", Options{})
	assert.Error(t, err)
}
