package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"chronos-cypher-service/internal/domain"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

type countingLoader struct {
	level domain.Level
	calls int
}

func (l *countingLoader) LoadLevel(_ context.Context, number int) (domain.Level, error) {
	l.calls++
	if number != l.level.Number {
		return domain.Level{}, domain.ErrLevelNotFound
	}
	return l.level, nil
}

func TestLevelRepositoryCachesInRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	loader := &countingLoader{level: domain.Level{
		Number:  1,
		Title:   "Opening Cipher",
		Scoring: domain.ScoringTable{PointsPerCorrect: 1500},
		Questions: []domain.Question{
			{ID: "q1", Prompt: "2+2?", Kind: domain.QuestionNumeric, Answer: "4"},
		},
	}}
	repo := NewLevelRepository(client, loader, time.Minute)
	ctx := context.Background()

	level, err := repo.GetLevel(ctx, 1)
	if err != nil {
		t.Fatalf("get level: %v", err)
	}
	if level.Title != "Opening Cipher" || len(level.Questions) != 1 {
		t.Fatalf("unexpected level: %+v", level)
	}
	if !mr.Exists("level:1") {
		t.Fatalf("expected cached JSON under level:1")
	}

	if _, err := repo.GetLevel(ctx, 1); err != nil {
		t.Fatalf("get level 2nd: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected a single loader call, got %d", loader.calls)
	}
}

func TestLevelRepositoryMissPropagates(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := NewLevelRepository(client, &countingLoader{level: domain.Level{Number: 1}}, time.Minute)
	if _, err := repo.GetLevel(context.Background(), 41); !errors.Is(err, domain.ErrLevelNotFound) {
		t.Fatalf("expected level not found, got %v", err)
	}
}
