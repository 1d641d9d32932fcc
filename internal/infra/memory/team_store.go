package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"chronos-cypher-service/internal/domain"
	"chronos-cypher-service/internal/engine"
)

// TeamStore is an in-memory implementation of app.TeamStore, the default when
// neither Redis nor Postgres is configured.
type TeamStore struct {
	mu    sync.RWMutex
	teams map[string]domain.Team
}

func NewTeamStore() *TeamStore {
	return &TeamStore{teams: make(map[string]domain.Team)}
}

func (s *TeamStore) Get(_ context.Context, code string) (domain.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	team, ok := s.teams[code]
	if !ok {
		return domain.Team{}, domain.ErrTeamNotFound
	}
	return team, nil
}

func (s *TeamStore) Create(_ context.Context, team domain.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[team.Code]; ok {
		return domain.ErrTeamExists
	}
	s.teams[team.Code] = team
	return nil
}

func (s *TeamStore) UpdateName(_ context.Context, code, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	team, ok := s.teams[code]
	if !ok {
		return domain.ErrTeamNotFound
	}
	team.Name = name
	s.teams[code] = team
	return nil
}

func (s *TeamStore) IncrementStats(_ context.Context, code string, delta domain.LevelStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	team, ok := s.teams[code]
	if !ok {
		return domain.ErrTeamNotFound
	}
	team.CorrectQuestions += delta.Correct
	team.IncorrectQuestions += delta.Incorrect
	team.SkippedQuestions += delta.Skipped
	team.HintCount += delta.HintsUsed
	s.teams[code] = team
	return nil
}

func (s *TeamStore) UpdateScore(_ context.Context, code string, score int64, currentLevel int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	team, ok := s.teams[code]
	if !ok {
		return domain.ErrTeamNotFound
	}
	team.Score = score
	team.CurrentLevel = currentLevel
	s.teams[code] = team
	return nil
}

func (s *TeamStore) SaveCheckpoint(_ context.Context, code string, checkpointScore int64, checkpointLevel int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	team, ok := s.teams[code]
	if !ok {
		return domain.ErrTeamNotFound
	}
	team.CheckpointScore = checkpointScore
	team.CheckpointLevel = checkpointLevel
	s.teams[code] = team
	return nil
}

func (s *TeamStore) Revert(_ context.Context, code string, penalty int) (domain.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	team, ok := s.teams[code]
	if !ok {
		return domain.Team{}, domain.ErrTeamNotFound
	}
	team = engine.RevertToCheckpoint(team, penalty)
	s.teams[code] = team
	return team, nil
}

func (s *TeamStore) StartGame(_ context.Context, code string, startedAt time.Time) (domain.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	team, ok := s.teams[code]
	if !ok {
		return domain.Team{}, domain.ErrTeamNotFound
	}
	// Start is one-shot; a second call keeps the original timestamp.
	if !team.GameLoaded {
		team = engine.StartGame(team, startedAt)
		s.teams[code] = team
	}
	return team, nil
}

func (s *TeamStore) ListAll(_ context.Context) ([]domain.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	teams := make([]domain.Team, 0, len(s.teams))
	for _, team := range s.teams {
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

func (s *TeamStore) Delete(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[code]; !ok {
		return domain.ErrTeamNotFound
	}
	delete(s.teams, code)
	return nil
}
