package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"chronos-cypher-service/internal/domain"
)

func seedTeam(t *testing.T, store *TeamStore, team domain.Team) {
	t.Helper()
	if err := store.Create(context.Background(), team); err != nil {
		t.Fatalf("create: %v", err)
	}
}

func TestTeamStoreCreateAndGet(t *testing.T) {
	store := NewTeamStore()
	ctx := context.Background()

	team := domain.Team{Code: "AB12CD", Name: "Alpha", CurrentLevel: 1, CheckpointLevel: 1}
	seedTeam(t, store, team)

	got, err := store.Get(ctx, "AB12CD")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != team {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, team)
	}

	if err := store.Create(ctx, team); !errors.Is(err, domain.ErrTeamExists) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	if _, err := store.Get(ctx, "ZZZZZZ"); !errors.Is(err, domain.ErrTeamNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTeamStoreIncrementStats(t *testing.T) {
	store := NewTeamStore()
	ctx := context.Background()
	seedTeam(t, store, domain.Team{Code: "AB12CD", Name: "Alpha"})

	_ = store.IncrementStats(ctx, "AB12CD", domain.LevelStats{Correct: 2, HintsUsed: 1})
	_ = store.IncrementStats(ctx, "AB12CD", domain.LevelStats{Incorrect: 1, Skipped: 3})

	team, _ := store.Get(ctx, "AB12CD")
	if team.CorrectQuestions != 2 || team.IncorrectQuestions != 1 ||
		team.SkippedQuestions != 3 || team.HintCount != 1 {
		t.Fatalf("counters wrong: %+v", team)
	}
}

func TestTeamStoreRevertGoesNegative(t *testing.T) {
	store := NewTeamStore()
	ctx := context.Background()
	seedTeam(t, store, domain.Team{
		Code: "AB12CD", Name: "Alpha",
		Score: 5000, CurrentLevel: 8,
		CheckpointScore: 100, CheckpointLevel: 6,
	})

	team, err := store.Revert(ctx, "AB12CD", 200)
	if err != nil {
		t.Fatalf("revert: %v", err)
	}
	if team.Score != -100 || team.CurrentLevel != 6 {
		t.Fatalf("unexpected revert result %+v", team)
	}
}

func TestTeamStoreStartGameIsOneShot(t *testing.T) {
	store := NewTeamStore()
	ctx := context.Background()
	seedTeam(t, store, domain.Team{Code: "AB12CD", Name: "Alpha"})

	first := time.Now().Add(-time.Hour)
	team, err := store.StartGame(ctx, "AB12CD", first)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !team.GameLoaded || !team.GameStartTime.Equal(first) {
		t.Fatalf("unexpected start state %+v", team)
	}

	team, err = store.StartGame(ctx, "AB12CD", time.Now())
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if !team.GameStartTime.Equal(first) {
		t.Fatalf("start time must be immutable, got %v", team.GameStartTime)
	}
}

func TestTeamStoreListOrdersByScoreDesc(t *testing.T) {
	store := NewTeamStore()
	ctx := context.Background()
	seedTeam(t, store, domain.Team{Code: "A", Name: "Low", Score: 10})
	seedTeam(t, store, domain.Team{Code: "B", Name: "High", Score: 9000})
	seedTeam(t, store, domain.Team{Code: "C", Name: "Negative", Score: -100})

	teams, err := store.ListAll(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(teams) != 3 || teams[0].Code != "B" || teams[2].Code != "C" {
		t.Fatalf("unexpected order: %+v", teams)
	}
}

func TestTeamStoreDelete(t *testing.T) {
	store := NewTeamStore()
	ctx := context.Background()
	seedTeam(t, store, domain.Team{Code: "AB12CD", Name: "Alpha"})

	if err := store.Delete(ctx, "AB12CD"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "AB12CD"); !errors.Is(err, domain.ErrTeamNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := store.Delete(ctx, "AB12CD"); !errors.Is(err, domain.ErrTeamNotFound) {
		t.Fatalf("expected not found on double delete, got %v", err)
	}
}
