package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b-open-io/gamedata/pubsub"
)

func TestLoadFromEnvFile(t *testing.T) {
	for _, key := range []string{"INDEXER_URL", "SQL_URL", "MODELS", "PORT", "STREAM_URL", "CHANGES_URL", "HTTP_TIMEOUT"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Setenv("NAMESPACE", "ns")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("INDEXER_URL=https://indexer.example/\nMODELS=a,b\nNAMESPACE=ignored\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://indexer.example", cfg.IndexerURL)
	assert.Equal(t, "https://indexer.example/sql", cfg.SQLURL)
	assert.Equal(t, "ns", cfg.Namespace)
	assert.Equal(t, []string{"a", "b"}, cfg.Models)
	assert.Equal(t, "channels://", cfg.StreamURL)
	assert.Equal(t, "channels://", cfg.ChangesURL)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
}

func TestLoadRequiresIndexer(t *testing.T) {
	t.Setenv("INDEXER_URL", "")
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorIs(t, err, ErrMissingIndexer)
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, Config{LogLevel: "debug"}.SlogLevel())
	assert.Equal(t, slog.LevelWarn, Config{LogLevel: "WARN"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, Config{LogLevel: "loud"}.SlogLevel())
}

func TestCreateClient(t *testing.T) {
	cfg := Config{
		IndexerURL:   "http://localhost:8080",
		SQLURL:       "http://localhost:8080/sql",
		StreamURL:    "channels://",
		StreamTopic:  "entities",
		SQLCacheSize: "1mb",
		Port:         3000,
	}
	c, stream, err := CreateClient(cfg, nil)
	require.NoError(t, err)
	defer stream.Close()
	defer c.Close()

	cfg.SQLCacheSize = "lots"
	_, _, err = CreateClient(cfg, nil)
	assert.Error(t, err)

	cfg.SQLCacheSize = ""
	cfg.StreamURL = "carrier-pigeon://"
	_, _, err = CreateClient(cfg, nil)
	assert.Error(t, err)
}

func TestChangeStreamIsSeparateFromReadOnlyStream(t *testing.T) {
	cfg := Config{
		IndexerURL:   "http://localhost:8080",
		SQLURL:       "http://localhost:8080/sql",
		StreamURL:    "sse+http://localhost:8080/events",
		StreamTopic:  "entities",
		ChangesURL:   "channels://",
		ChangesTopic: "tokens",
		Port:         3000,
	}
	c, stream, err := CreateClient(cfg, nil)
	require.NoError(t, err)
	defer stream.Close()
	defer c.Close()

	ctx := context.Background()
	assert.ErrorIs(t, stream.Publish(ctx, "tokens", "x"), pubsub.ErrReadOnly)

	changes, err := CreateChangeStream(cfg)
	require.NoError(t, err)
	defer changes.Close()
	assert.NoError(t, changes.Publish(ctx, "tokens", "x"))

	cfg.ChangesURL = "sse+http://localhost:8080/events"
	_, err = CreateChangeStream(cfg)
	assert.ErrorIs(t, err, ErrReadOnlyChanges)

	cfg.ChangesURL = "carrier-pigeon://"
	_, err = CreateChangeStream(cfg)
	assert.Error(t, err)
}
