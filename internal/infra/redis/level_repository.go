package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"chronos-cypher-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// LevelLoader fetches level content from a backing store (e.g., Postgres).
type LevelLoader interface {
	LoadLevel(ctx context.Context, number int) (domain.Level, error)
}

// LevelRepository caches level payloads in Redis (one JSON value per level)
// and falls back to a loader on cache miss.
type LevelRepository struct {
	client *redis.Client
	loader LevelLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewLevelRepository(client *redis.Client, loader LevelLoader, ttl time.Duration) *LevelRepository {
	return &LevelRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func levelKey(number int) string {
	return "level:" + strconv.Itoa(number)
}

func (r *LevelRepository) GetLevel(ctx context.Context, number int) (domain.Level, error) {
	key := levelKey(number)

	if raw, err := r.client.Get(ctx, key).Bytes(); err == nil {
		var level domain.Level
		if err := json.Unmarshal(raw, &level); err == nil {
			return level, nil
		}
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if raw, err := r.client.Get(ctx, key).Bytes(); err == nil {
			var level domain.Level
			if err := json.Unmarshal(raw, &level); err == nil {
				return level, nil
			}
		}

		level, err := r.loader.LoadLevel(ctx, number)
		if err != nil {
			return domain.Level{}, err
		}

		raw, err := json.Marshal(level)
		if err != nil {
			return domain.Level{}, fmt.Errorf("marshal level: %w", err)
		}
		_ = r.client.Set(ctx, key, raw, r.ttlWithJitter()).Err()
		return level, nil
	})
	if err != nil {
		return domain.Level{}, err
	}
	return result.(domain.Level), nil
}

func (r *LevelRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
