package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/medmentor/backend/internal/models"
	"github.com/medmentor/backend/internal/storage"
)

const redisKeyPrefix = "medmentor:"

// RedisStore keeps codec payloads under prefixed string keys.
type RedisStore struct {
	rdb   *goredis.Client
	codec storage.Codec
}

// NewRedisStore connects and pings once. An unreachable server is not fatal:
// the store is returned anyway so the service can start offline.
func NewRedisStore(addr string, codec storage.Codec) (*RedisStore, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	s := &RedisStore{rdb: rdb, codec: codec}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s, s.Ping(ctx)
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) Get(ctx context.Context, key string) (*models.ProgressRecord, error) {
	raw, err := s.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", redisKind(err), key, err)
	}
	rec, err := s.codec.DecodeProgress(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRejected, err)
	}
	return rec, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, rec *models.ProgressRecord) error {
	raw, err := s.codec.EncodeProgress(rec)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}
	if err := s.rdb.Set(ctx, redisKeyPrefix+key, raw, 0).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %w", redisKind(err), key, err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis ping: %w", ErrOffline, err)
	}
	return nil
}

// redisKind treats server replies (READONLY, OOM, WRONGTYPE...) as rejections
// and everything else as the server being unreachable.
func redisKind(err error) error {
	var rerr goredis.Error
	if errors.As(err, &rerr) {
		return ErrRejected
	}
	if kind := transportKind(err); kind != nil {
		return kind
	}
	return ErrOffline
}
