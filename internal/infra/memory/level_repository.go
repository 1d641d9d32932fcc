package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"chronos-cypher-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// LevelLoader fetches level content from a backing store (e.g., Postgres).
type LevelLoader interface {
	LoadLevel(ctx context.Context, number int) (domain.Level, error)
}

// LevelRepository caches level content with TTL to avoid repeated DB hits.
type LevelRepository struct {
	loader LevelLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[int]cachedLevel
}

type cachedLevel struct {
	level     domain.Level
	expiresAt time.Time
}

func NewLevelRepository(loader LevelLoader, ttl time.Duration) *LevelRepository {
	return &LevelRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[int]cachedLevel),
	}
}

func (r *LevelRepository) GetLevel(ctx context.Context, number int) (domain.Level, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[number]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.level, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(strconv.Itoa(number), func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[number]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.level, nil
		}
		r.mu.RUnlock()

		level, err := r.loader.LoadLevel(ctx, number)
		if err != nil {
			return domain.Level{}, err
		}

		r.mu.Lock()
		r.cache[number] = cachedLevel{
			level:     level,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
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
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticLevelLoader is a simple loader backed by an in-memory map (useful for
// tests/demos).
type StaticLevelLoader struct {
	levels map[int]domain.Level
}

func NewStaticLevelLoader(levels map[int]domain.Level) *StaticLevelLoader {
	return &StaticLevelLoader{levels: levels}
}

func (l *StaticLevelLoader) LoadLevel(_ context.Context, number int) (domain.Level, error) {
	if level, ok := l.levels[number]; ok {
		return level, nil
	}
	return domain.Level{}, domain.ErrLevelNotFound
}
