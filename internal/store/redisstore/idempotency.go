package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb redis.UniversalClient
}

func New(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// NewWithClient wraps an existing client, e.g. a cluster or failover client.
func NewWithClient(rdb redis.UniversalClient) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func idempotencyKey(key string) string {
	return "chat:idempo:" + key
}

// ClaimIdempotencyKey binds key to jobID if the key is unseen. When the key was
// already claimed it returns the bound job id and claimed=false.
func (s *Store) ClaimIdempotencyKey(ctx context.Context, key, jobID string, ttl time.Duration) (existing string, claimed bool, err error) {
	ok, err := s.rdb.SetNX(ctx, idempotencyKey(key), jobID, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return jobID, true, nil
	}

	existing, err = s.rdb.Get(ctx, idempotencyKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; try once more
		ok, err = s.rdb.SetNX(ctx, idempotencyKey(key), jobID, ttl).Result()
		if err != nil {
			return "", false, err
		}
		if ok {
			return jobID, true, nil
		}
		return "", false, errors.New("idempotency key contended")
	}
	if err != nil {
		return "", false, err
	}
	return existing, false, nil
}

// ReleaseIdempotencyKey drops a claim, used when the job could not be created.
func (s *Store) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, idempotencyKey(key)).Err()
}
