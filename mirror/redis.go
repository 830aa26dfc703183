package mirror

import (
	"context"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	redisTokenPrefix = "gamedata:token:"
	redisScoreKey    = "gamedata:tokens:score"
)

func redisTokenKey(id uint64) string {
	return redisTokenPrefix + strconv.FormatUint(id, 10)
}

func redisGameKey(gameID int64) string {
	return "gamedata:game:" + strconv.FormatInt(gameID, 10)
}

// RedisSink stores each token document under its own key and keeps a sorted
// set of token ids by score, plus one set of token ids per game.
type RedisSink struct {
	DB *redis.Client
}

func NewRedisSink(connString string) (*RedisSink, error) {
	opts, err := redis.ParseURL(connString)
	if err != nil {
		return nil, err
	}
	return &RedisSink{DB: redis.NewClient(opts)}, nil
}

func (s *RedisSink) Write(ctx context.Context, tokenID uint64, doc []byte) error {
	f := indexedFields(doc)
	member := strconv.FormatUint(tokenID, 10)
	_, err := s.DB.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, redisTokenKey(tokenID), doc, 0)
		p.ZAdd(ctx, redisScoreKey, redis.Z{Score: float64(f.score), Member: member})
		if f.gameID != 0 {
			p.SAdd(ctx, redisGameKey(f.gameID), member)
		}
		return nil
	})
	return err
}

func (s *RedisSink) Delete(ctx context.Context, tokenID uint64) error {
	doc, err := s.Get(ctx, tokenID)
	if errors.Is(err, ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}
	f := indexedFields(doc)
	member := strconv.FormatUint(tokenID, 10)
	_, err = s.DB.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, redisTokenKey(tokenID))
		p.ZRem(ctx, redisScoreKey, member)
		if f.gameID != 0 {
			p.SRem(ctx, redisGameKey(f.gameID), member)
		}
		return nil
	})
	return err
}

func (s *RedisSink) Get(ctx context.Context, tokenID uint64) ([]byte, error) {
	doc, err := s.DB.Get(ctx, redisTokenKey(tokenID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	return doc, err
}

// TopByScore returns up to n token ids, highest score first.
func (s *RedisSink) TopByScore(ctx context.Context, n int64) ([]uint64, error) {
	members, err := s.DB.ZRevRange(ctx, redisScoreKey, 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(members))
	for _, m := range members {
		if id, err := strconv.ParseUint(m, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *RedisSink) Close() error {
	return s.DB.Close()
}
