package mirror

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink keeps tokens in a "tokens" table with the document as JSONB.
type PostgresSink struct {
	pool *pgxpool.Pool
}

func NewPostgresSink(ctx context.Context, connString string) (*PostgresSink, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS tokens (
			token_id BIGINT PRIMARY KEY,
			game_id BIGINT,
			owner TEXT,
			score BIGINT NOT NULL DEFAULT 0,
			doc JSONB NOT NULL,
			updated_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tokens_game_score ON tokens(game_id, score DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_tokens_owner ON tokens(owner)`,
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
	}
	return &PostgresSink{pool: pool}, nil
}

func (s *PostgresSink) Write(ctx context.Context, tokenID uint64, doc []byte) error {
	f := indexedFields(doc)
	var updated *time.Time
	if t, err := time.Parse(time.RFC3339Nano, f.updated); err == nil {
		updated = &t
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO tokens (token_id, game_id, owner, score, doc, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (token_id) DO UPDATE SET
			game_id = EXCLUDED.game_id,
			owner = EXCLUDED.owner,
			score = EXCLUDED.score,
			doc = EXCLUDED.doc,
			updated_at = EXCLUDED.updated_at`,
		int64(tokenID), f.gameID, f.owner, f.score, string(doc), updated)
	return err
}

func (s *PostgresSink) Delete(ctx context.Context, tokenID uint64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM tokens WHERE token_id = $1`, int64(tokenID))
	return err
}

func (s *PostgresSink) Get(ctx context.Context, tokenID uint64) ([]byte, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM tokens WHERE token_id = $1`, int64(tokenID)).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return doc, err
}

func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
