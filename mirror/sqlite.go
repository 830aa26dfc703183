package mirror

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteSink keeps tokens in a single "tokens" table with the JSON document
// alongside a few indexed columns.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens path, which may carry a "sqlite://" prefix.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	path = strings.TrimPrefix(path, "sqlite://")
	if path == "" {
		path = "./gamedata.db"
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, err
		}
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS tokens (
		token_id INTEGER PRIMARY KEY,
		game_id INTEGER,
		owner TEXT,
		score INTEGER NOT NULL DEFAULT 0,
		doc TEXT NOT NULL,
		updated_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_tokens_game_score ON tokens(game_id, score DESC);
	CREATE INDEX IF NOT EXISTS idx_tokens_owner ON tokens(owner);`); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Write(ctx context.Context, tokenID uint64, doc []byte) error {
	f := indexedFields(doc)
	_, err := s.db.ExecContext(ctx, `INSERT INTO tokens (token_id, game_id, owner, score, doc, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(token_id) DO UPDATE SET
			game_id = excluded.game_id,
			owner = excluded.owner,
			score = excluded.score,
			doc = excluded.doc,
			updated_at = excluded.updated_at`,
		int64(tokenID), f.gameID, f.owner, f.score, string(doc), f.updated)
	return err
}

func (s *SQLiteSink) Delete(ctx context.Context, tokenID uint64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tokens WHERE token_id = ?`, int64(tokenID))
	return err
}

func (s *SQLiteSink) Get(ctx context.Context, tokenID uint64) ([]byte, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM tokens WHERE token_id = ?`, int64(tokenID)).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return []byte(doc), err
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
