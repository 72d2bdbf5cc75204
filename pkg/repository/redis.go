package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/posbackoffice/pkg/config"
	"github.com/go-redis/redis/v8"
)

const cacheKeyPrefix = "pos:"

// RedisRepository caches reference data lists (menu, tables) by kind.
// Every kind has a generation counter; entries are stored under
// pos:<kind>:<generation>, so bumping the generation retires the old entry
// and any late write aimed at it.
type RedisRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRepository(cfg *config.RedisConfig) *RedisRepository {
	return &RedisRepository{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		}),
		ttl: cfg.TTL,
	}
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}

func generationKey(kind string) string {
	return cacheKeyPrefix + kind + ":gen"
}

func entryKey(kind string, generation int64) string {
	return fmt.Sprintf("%s%s:%d", cacheKeyPrefix, kind, generation)
}

// Generation returns the current generation of kind, 0 if it was never bumped.
func (r *RedisRepository) Generation(ctx context.Context, kind string) (int64, error) {
	gen, err := r.client.Get(ctx, generationKey(kind)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read %s cache generation: %w", kind, err)
	}
	return gen, nil
}

// Bump advances the generation of kind and drops the entry it replaced.
func (r *RedisRepository) Bump(ctx context.Context, kind string) error {
	gen, err := r.client.Incr(ctx, generationKey(kind)).Result()
	if err != nil {
		return fmt.Errorf("failed to bump %s cache generation: %w", kind, err)
	}
	// the old entry would expire on its own; dropping it only frees memory
	r.client.Del(ctx, entryKey(kind, gen-1))
	return nil
}

// Get decodes the entry for kind at generation into dest. It reports false
// on a miss.
func (r *RedisRepository) Get(ctx context.Context, kind string, generation int64, dest interface{}) (bool, error) {
	key := entryKey(kind, generation)
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to decode cached %s: %w", key, err)
	}
	return true, nil
}

func (r *RedisRepository) Set(ctx context.Context, kind string, generation int64, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, entryKey(kind, generation), data, r.ttl).Err()
}
