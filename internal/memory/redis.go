package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"incidentrag/internal/domain"
	"incidentrag/internal/logger"
)

// RedisStore keeps each session as a capped Redis list so history
// survives restarts and is shared between bot replicas.
type RedisStore struct {
	log      *logger.Logger
	rdb      *goredis.Client
	prefix   string
	maxTurns int
	ttl      time.Duration
}

func NewRedisStore(addr, prefix string, maxTurns int, ttl time.Duration, log *logger.Logger) (*RedisStore, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	if log == nil {
		log = logger.Nop()
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStore{
		log:      log.With("component", "memory"),
		rdb:      rdb,
		prefix:   prefix,
		maxTurns: maxTurns,
		ttl:      ttl,
	}, nil
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

// Append pushes, trims and refreshes the TTL in one MULTI so concurrent
// appends to a session stay ordered and bounded.
func (s *RedisStore) Append(ctx context.Context, sessionID string, turns ...domain.ConversationTurn) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if len(turns) == 0 {
		return nil
	}
	raws := make([]any, len(turns))
	for i, t := range turns {
		raw, err := json.Marshal(t)
		if err != nil {
			return err
		}
		raws[i] = raw
	}
	key := s.key(sessionID)
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.RPush(ctx, key, raws...)
		if s.maxTurns > 0 {
			pipe.LTrim(ctx, key, int64(-s.maxTurns), -1)
		}
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append %s: %w", sessionID, err)
	}
	return nil
}

func (s *RedisStore) Recent(ctx context.Context, sessionID string, w Window) ([]domain.ConversationTurn, error) {
	raws, err := s.rdb.LRange(ctx, s.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis read %s: %w", sessionID, err)
	}
	turns := make([]domain.ConversationTurn, 0, len(raws))
	for _, raw := range raws {
		var t domain.ConversationTurn
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			s.log.Warn("skipping undecodable turn", "session_id", sessionID, "error", err)
			continue
		}
		turns = append(turns, t)
	}
	return applyWindow(turns, w), nil
}

func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, s.key(sessionID)).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
