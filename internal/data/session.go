package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lti-tool-provider/internal/biz/model"
	conf "lti-tool-provider/internal/conf/v1"

	"github.com/redis/go-redis/v9"
)

const defaultSessionTTL = time.Hour

// sessionStore 会话值保存在 Redis, key 为 lti_session:<session id>:<name>
type sessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewSessionStore(data *Data, cfg *conf.Bootstrap) model.SessionStore {
	ttl := time.Duration(cfg.Lti.SessionTtlSeconds) * time.Second
	if ttl == 0 {
		ttl = defaultSessionTTL
	}
	return &sessionStore{
		rdb: data.rdb,
		ttl: ttl,
	}
}

func (s *sessionStore) Bind(sessionID string) model.Session {
	return &redisSession{store: s, id: sessionID}
}

type redisSession struct {
	store *sessionStore
	id    string
}

func sessionKey(sessionID, name string) string {
	return fmt.Sprintf("lti_session:%s:%s", sessionID, name)
}

func (s *redisSession) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.store.rdb.Get(ctx, sessionKey(s.id, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *redisSession) Set(ctx context.Context, key string, value []byte) error {
	return s.store.rdb.Set(ctx, sessionKey(s.id, key), value, s.store.ttl).Err()
}

func (s *redisSession) Delete(ctx context.Context, key string) error {
	return s.store.rdb.Del(ctx, sessionKey(s.id, key)).Err()
}
