package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb    *redis.Client
	prefix string
}

func New(addr, password string, db int) *Store {
	return NewWithClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}))
}

func NewWithClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb, prefix: "podcast:lock:"}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

// releaseScript deletes the key only if it still carries our token, so a
// lock that expired and was taken by someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock takes the named lock for ttl. acquired is false when another
// holder has it; release is only set when acquired.
func (s *Store) Lock(ctx context.Context, name, token string, ttl time.Duration) (release func(context.Context) error, acquired bool, err error) {
	key := s.prefix + name
	ok, err := s.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, s.rdb, []string{key}, token).Err()
	}, true, nil
}

// NoopLocker always grants the lock. Used when Redis is disabled.
type NoopLocker struct{}

func (NoopLocker) Lock(context.Context, string, string, time.Duration) (func(context.Context) error, bool, error) {
	return func(context.Context) error { return nil }, true, nil
}
