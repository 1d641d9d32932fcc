package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"chronos-cypher-service/internal/domain"
	"chronos-cypher-service/internal/engine"
	"github.com/redis/go-redis/v9"
)

// TeamStore keeps one Redis hash per team plus an index set of codes.
// Counter updates go through HIncrBy so concurrent devices acting on the same
// team code interleave without lost updates.
type TeamStore struct {
	client *redis.Client
}

func NewTeamStore(client *redis.Client) *TeamStore {
	return &TeamStore{client: client}
}

const teamIndexKey = "teams:index"

func teamKey(code string) string {
	return "team:" + code
}

func (s *TeamStore) Get(ctx context.Context, code string) (domain.Team, error) {
	fields, err := s.client.HGetAll(ctx, teamKey(code)).Result()
	if err != nil {
		return domain.Team{}, fmt.Errorf("get team: %w", err)
	}
	if len(fields) == 0 {
		return domain.Team{}, domain.ErrTeamNotFound
	}
	return parseTeam(code, fields), nil
}

func (s *TeamStore) Create(ctx context.Context, team domain.Team) error {
	added, err := s.client.SAdd(ctx, teamIndexKey, team.Code).Result()
	if err != nil {
		return fmt.Errorf("create team: %w", err)
	}
	if added == 0 {
		return domain.ErrTeamExists
	}
	if err := s.client.HSet(ctx, teamKey(team.Code), teamFields(team)).Err(); err != nil {
		return fmt.Errorf("create team: %w", err)
	}
	return nil
}

func (s *TeamStore) UpdateName(ctx context.Context, code, name string) error {
	if err := s.requireTeam(ctx, code); err != nil {
		return err
	}
	return s.client.HSet(ctx, teamKey(code), "name", name).Err()
}

func (s *TeamStore) IncrementStats(ctx context.Context, code string, delta domain.LevelStats) error {
	if err := s.requireTeam(ctx, code); err != nil {
		return err
	}
	key := teamKey(code)
	pipe := s.client.Pipeline()
	if delta.Correct != 0 {
		pipe.HIncrBy(ctx, key, "correct", int64(delta.Correct))
	}
	if delta.Incorrect != 0 {
		pipe.HIncrBy(ctx, key, "incorrect", int64(delta.Incorrect))
	}
	if delta.Skipped != 0 {
		pipe.HIncrBy(ctx, key, "skipped", int64(delta.Skipped))
	}
	if delta.HintsUsed != 0 {
		pipe.HIncrBy(ctx, key, "hints", int64(delta.HintsUsed))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("increment stats: %w", err)
	}
	return nil
}

func (s *TeamStore) UpdateScore(ctx context.Context, code string, score int64, currentLevel int) error {
	if err := s.requireTeam(ctx, code); err != nil {
		return err
	}
	return s.client.HSet(ctx, teamKey(code),
		"score", score,
		"current_level", currentLevel,
	).Err()
}

func (s *TeamStore) SaveCheckpoint(ctx context.Context, code string, checkpointScore int64, checkpointLevel int) error {
	if err := s.requireTeam(ctx, code); err != nil {
		return err
	}
	return s.client.HSet(ctx, teamKey(code),
		"checkpoint_score", checkpointScore,
		"checkpoint_level", checkpointLevel,
	).Err()
}

func (s *TeamStore) Revert(ctx context.Context, code string, penalty int) (domain.Team, error) {
	team, err := s.Get(ctx, code)
	if err != nil {
		return domain.Team{}, err
	}
	team = engine.RevertToCheckpoint(team, penalty)
	if err := s.client.HSet(ctx, teamKey(code),
		"score", team.Score,
		"current_level", team.CurrentLevel,
	).Err(); err != nil {
		return domain.Team{}, fmt.Errorf("revert team: %w", err)
	}
	return team, nil
}

func (s *TeamStore) StartGame(ctx context.Context, code string, startedAt time.Time) (domain.Team, error) {
	if err := s.requireTeam(ctx, code); err != nil {
		return domain.Team{}, err
	}
	// HSetNX keeps the first timestamp if two devices race the start.
	set, err := s.client.HSetNX(ctx, teamKey(code), "game_start_time", startedAt.UTC().Format(time.RFC3339Nano)).Result()
	if err != nil {
		return domain.Team{}, fmt.Errorf("start game: %w", err)
	}
	if set {
		if err := s.client.HSet(ctx, teamKey(code), "game_loaded", 1).Err(); err != nil {
			return domain.Team{}, fmt.Errorf("start game: %w", err)
		}
	}
	return s.Get(ctx, code)
}

func (s *TeamStore) ListAll(ctx context.Context) ([]domain.Team, error) {
	codes, err := s.client.SMembers(ctx, teamIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	teams := make([]domain.Team, 0, len(codes))
	for _, code := range codes {
		team, err := s.Get(ctx, code)
		if err == domain.ErrTeamNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		teams = append(teams, team)
	}
	sort.Slice(teams, func(i, j int) bool {
		if teams[i].Score != teams[j].Score {
			return teams[i].Score > teams[j].Score
		}
		return teams[i].Name < teams[j].Name
	})
	return teams, nil
}

func (s *TeamStore) Delete(ctx context.Context, code string) error {
	removed, err := s.client.SRem(ctx, teamIndexKey, code).Result()
	if err != nil {
		return fmt.Errorf("delete team: %w", err)
	}
	if removed == 0 {
		return domain.ErrTeamNotFound
	}
	return s.client.Del(ctx, teamKey(code)).Err()
}

func (s *TeamStore) requireTeam(ctx context.Context, code string) error {
	ok, err := s.client.SIsMember(ctx, teamIndexKey, code).Result()
	if err != nil {
		return fmt.Errorf("check team: %w", err)
	}
	if !ok {
		return domain.ErrTeamNotFound
	}
	return nil
}

func teamFields(team domain.Team) map[string]interface{} {
	fields := map[string]interface{}{
		"name":             team.Name,
		"score":            team.Score,
		"current_level":    team.CurrentLevel,
		"checkpoint_level": team.CheckpointLevel,
		"checkpoint_score": team.CheckpointScore,
		"correct":          team.CorrectQuestions,
		"incorrect":        team.IncorrectQuestions,
		"skipped":          team.SkippedQuestions,
		"hints":            team.HintCount,
		"game_loaded":      boolToInt(team.GameLoaded),
	}
	if team.GameStartTime != nil {
		fields["game_start_time"] = team.GameStartTime.UTC().Format(time.RFC3339Nano)
	}
	return fields
}

func parseTeam(code string, fields map[string]string) domain.Team {
	team := domain.Team{
		Code:               code,
		Name:               fields["name"],
		Score:              parseInt64(fields["score"]),
		CurrentLevel:       parseInt(fields["current_level"]),
		CheckpointLevel:    parseInt(fields["checkpoint_level"]),
		CheckpointScore:    parseInt64(fields["checkpoint_score"]),
		CorrectQuestions:   parseInt(fields["correct"]),
		IncorrectQuestions: parseInt(fields["incorrect"]),
		SkippedQuestions:   parseInt(fields["skipped"]),
		HintCount:          parseInt(fields["hints"]),
		GameLoaded:         fields["game_loaded"] == "1",
	}
	if raw, ok := fields["game_start_time"]; ok && raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			team.GameStartTime = &ts
		}
	}
	return team
}

func parseInt(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
