package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"chronos-cypher-service/internal/domain"
	"chronos-cypher-service/internal/engine"
)

// TeamStore abstracts how team progress is persisted (in-memory, Redis,
// Postgres). Counter mutations are increment operations so concurrent devices
// on one team code interleave without lost updates.
type TeamStore interface {
	Get(ctx context.Context, code string) (domain.Team, error)
	Create(ctx context.Context, team domain.Team) error
	UpdateName(ctx context.Context, code, name string) error
	IncrementStats(ctx context.Context, code string, delta domain.LevelStats) error
	UpdateScore(ctx context.Context, code string, score int64, currentLevel int) error
	SaveCheckpoint(ctx context.Context, code string, checkpointScore int64, checkpointLevel int) error
	Revert(ctx context.Context, code string, penalty int) (domain.Team, error)
	StartGame(ctx context.Context, code string, startedAt time.Time) (domain.Team, error)
	ListAll(ctx context.Context) ([]domain.Team, error)
	Delete(ctx context.Context, code string) error
}

// LevelRepository loads level content (from cache/backing store).
type LevelRepository interface {
	GetLevel(ctx context.Context, number int) (domain.Level, error)
}

// AnswerOutcome summarizes the effect of one submit or skip for the caller.
type AnswerOutcome struct {
	Correct       bool
	QuestionIndex int
	LevelComplete bool
	NextQuestion  *domain.Question
	Breakdown     *domain.ScoreBreakdown
}

// TimerSnapshot is the timer view returned on each poll.
type TimerSnapshot struct {
	Status    engine.TimerStatus `json:"status"`
	Remaining time.Duration      `json:"-"`
	Formatted string             `json:"remaining"`
}

// GameService contains the competition's use cases: registration, the game
// clock, level attempts, checkpoint reverts, and the leaderboard.
type GameService struct {
	teams         TeamStore
	levels        LevelRepository
	timer         *engine.GameTimer
	hub           *LeaderboardHub
	revertPenalty int
	now           func() time.Time

	mu       sync.Mutex
	sessions map[string]*LevelSession
}

func NewGameService(teams TeamStore, levels LevelRepository, timer *engine.GameTimer, revertPenalty int) *GameService {
	if timer == nil {
		timer = engine.NewGameTimer(0)
	}
	if revertPenalty <= 0 {
		revertPenalty = engine.DefaultRevertPenalty
	}
	return &GameService{
		teams:         teams,
		levels:        levels,
		timer:         timer,
		hub:           NewLeaderboardHub(),
		revertPenalty: revertPenalty,
		now:           time.Now,
		sessions:      make(map[string]*LevelSession),
	}
}

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const codeLength = 6

func generateTeamCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate team code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

// RegisterTeam creates a team with a server-generated code, score 0, at level 1.
func (s *GameService) RegisterTeam(ctx context.Context, name string) (domain.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Team{}, &domain.ValidationError{Fields: []domain.FieldError{
			{Field: "teamName", Message: "team name is required"},
		}}
	}

	for attempt := 0; attempt < 5; attempt++ {
		code, err := generateTeamCode()
		if err != nil {
			return domain.Team{}, err
		}
		team := domain.Team{
			Code:            code,
			Name:            name,
			CurrentLevel:    1,
			CheckpointLevel: 1,
		}
		err = s.teams.Create(ctx, team)
		if err == nil {
			s.broadcastLeaderboard(ctx)
			return team, nil
		}
		if err != domain.ErrTeamExists {
			return domain.Team{}, err
		}
	}
	return domain.Team{}, fmt.Errorf("could not allocate a unique team code")
}

// GetTeam returns the persisted team record.
func (s *GameService) GetTeam(ctx context.Context, code string) (domain.Team, error) {
	return s.teams.Get(ctx, code)
}

// StartGame starts the team's countdown. Calling it on a started game is a
// no-op returning the current record.
func (s *GameService) StartGame(ctx context.Context, code string) (domain.Team, error) {
	team, err := s.teams.Get(ctx, code)
	if err != nil {
		return domain.Team{}, err
	}
	if team.GameLoaded {
		return team, nil
	}
	return s.teams.StartGame(ctx, code, s.now())
}

// Timer returns the team's current clock state.
func (s *GameService) Timer(ctx context.Context, code string) (TimerSnapshot, error) {
	team, err := s.teams.Get(ctx, code)
	if err != nil {
		return TimerSnapshot{}, err
	}
	remaining := s.timer.Remaining(team)
	return TimerSnapshot{
		Status:    s.timer.Status(team),
		Remaining: remaining,
		Formatted: engine.FormatRemaining(remaining),
	}, nil
}

// BeginLevel opens a level attempt for the team and returns the first
// question. The countdown starts implicitly on the first level load. A level
// behind or ahead of the team's persisted progress blocks the attempt.
func (s *GameService) BeginLevel(ctx context.Context, code string, levelNumber int) (domain.Question, error) {
	team, err := s.teams.Get(ctx, code)
	if err != nil {
		return domain.Question{}, err
	}
	if !team.GameLoaded {
		team, err = s.teams.StartGame(ctx, code, s.now())
		if err != nil {
			return domain.Question{}, fmt.Errorf("start game: %w", err)
		}
	}
	if s.timer.Status(team) == engine.TimerExpired {
		return domain.Question{}, domain.ErrTimerExpired
	}

	level, err := s.levels.GetLevel(ctx, levelNumber)
	if err != nil {
		return domain.Question{}, err
	}

	session := NewLevelSession(code, level)
	if err := session.Begin(team.CurrentLevel); err != nil {
		return domain.Question{}, err
	}

	s.mu.Lock()
	s.sessions[code] = session
	s.mu.Unlock()

	question, _, err := session.CurrentQuestion()
	return question, err
}

// CurrentQuestion returns the active attempt's pending question, its index,
// and the level it belongs to.
func (s *GameService) CurrentQuestion(code string) (domain.Question, int, domain.Level, error) {
	session, err := s.sessionFor(code)
	if err != nil {
		return domain.Question{}, 0, domain.Level{}, err
	}
	question, index, err := session.CurrentQuestion()
	return question, index, session.Level(), err
}

func (s *GameService) sessionFor(code string) (*LevelSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[code]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// SubmitAnswer grades the answer, advances the attempt, and commits the level
// when the last question is consumed.
func (s *GameService) SubmitAnswer(ctx context.Context, code, raw string) (AnswerOutcome, error) {
	session, err := s.sessionFor(code)
	if err != nil {
		return AnswerOutcome{}, err
	}
	if err := s.requireActiveTimer(ctx, code); err != nil {
		return AnswerOutcome{}, err
	}

	res, err := session.Submit(raw)
	if err != nil {
		return AnswerOutcome{}, err
	}
	s.flushStats(ctx, session, res.Delta)
	return s.outcome(ctx, code, session, res)
}

// SkipQuestion counts the current question as skipped and advances.
func (s *GameService) SkipQuestion(ctx context.Context, code string) (AnswerOutcome, error) {
	session, err := s.sessionFor(code)
	if err != nil {
		return AnswerOutcome{}, err
	}
	if err := s.requireActiveTimer(ctx, code); err != nil {
		return AnswerOutcome{}, err
	}

	res, err := session.Skip()
	if err != nil {
		return AnswerOutcome{}, err
	}
	s.flushStats(ctx, session, res.Delta)
	return s.outcome(ctx, code, session, res)
}

// RequestHint returns the current question's hint; only the first request per
// question increments the team's hint count.
func (s *GameService) RequestHint(ctx context.Context, code string) (string, error) {
	session, err := s.sessionFor(code)
	if err != nil {
		return "", err
	}
	if err := s.requireActiveTimer(ctx, code); err != nil {
		return "", err
	}

	hint, counted, err := session.Hint()
	if err != nil {
		return "", err
	}
	if counted {
		s.flushStats(ctx, session, domain.LevelStats{HintsUsed: 1})
	}
	return hint, nil
}

// FinishLevel retries the completion commit after a store failure. On a
// completed attempt it returns the cached breakdown unchanged.
func (s *GameService) FinishLevel(ctx context.Context, code string) (domain.ScoreBreakdown, error) {
	session, err := s.sessionFor(code)
	if err != nil {
		return domain.ScoreBreakdown{}, err
	}
	if session.State() == StateCompleted {
		bd, _ := session.Breakdown()
		return bd, nil
	}
	return s.completeLevel(ctx, code, session)
}

func (s *GameService) outcome(ctx context.Context, code string, session *LevelSession, res SubmitResult) (AnswerOutcome, error) {
	out := AnswerOutcome{Correct: res.Correct, QuestionIndex: res.Index}
	if !res.LevelDone {
		if question, _, err := session.CurrentQuestion(); err == nil {
			out.NextQuestion = &question
		}
		return out, nil
	}

	out.LevelComplete = true
	bd, err := s.completeLevel(ctx, code, session)
	if err != nil {
		// The session stays in Completing; the caller retries via FinishLevel
		// so the computed score is never silently lost.
		return out, err
	}
	out.Breakdown = &bd
	return out, nil
}

// completeLevel folds the attempt into the team record: remaining stat deltas,
// the checkpoint snapshot when due, and finally the new score and level. Every
// store call here is mandatory; a failure leaves the session retryable.
//
// The score write goes last. Once it lands, current_level has advanced and no
// further retry re-enters this commit, so every earlier leg must already be
// durable by then. Writing the checkpoint first keeps a transient checkpoint
// failure recoverable: current_level is still unchanged and the retry replays
// the whole commit.
func (s *GameService) completeLevel(ctx context.Context, code string, session *LevelSession) (domain.ScoreBreakdown, error) {
	bd, stats, err := session.Finalize()
	if err != nil {
		return domain.ScoreBreakdown{}, err
	}

	team, err := s.teams.Get(ctx, code)
	if err != nil {
		return bd, fmt.Errorf("commit level: %w", err)
	}
	levelNumber := session.Level().Number
	if team.CurrentLevel != levelNumber {
		return bd, domain.ErrLevelCompleted
	}

	updated := engine.CompleteLevel(team, levelNumber, stats, bd)

	if delta := session.UnflushedDelta(); !delta.IsZero() {
		if err := s.teams.IncrementStats(ctx, code, delta); err != nil {
			return bd, fmt.Errorf("commit stats: %w", err)
		}
		session.MarkFlushed(delta)
	}
	if engine.IsCheckpointLevel(levelNumber) {
		if err := s.teams.SaveCheckpoint(ctx, code, updated.CheckpointScore, updated.CheckpointLevel); err != nil {
			return bd, fmt.Errorf("commit checkpoint: %w", err)
		}
	}
	if err := s.teams.UpdateScore(ctx, code, updated.Score, updated.CurrentLevel); err != nil {
		return bd, fmt.Errorf("commit score: %w", err)
	}

	session.MarkCompleted()
	s.broadcastLeaderboard(ctx)
	return bd, nil
}

// flushStats pushes a per-question delta to the store. These flushes are
// best-effort: a failure is logged and retried as part of the mandatory
// completion commit via the unflushed remainder.
func (s *GameService) flushStats(ctx context.Context, session *LevelSession, delta domain.LevelStats) {
	if delta.IsZero() {
		return
	}
	if err := s.teams.IncrementStats(ctx, session.TeamCode(), delta); err != nil {
		log.Printf("stat flush failed for %s: %v", session.TeamCode(), err)
		return
	}
	session.MarkFlushed(delta)
}

func (s *GameService) requireActiveTimer(ctx context.Context, code string) error {
	team, err := s.teams.Get(ctx, code)
	if err != nil {
		return err
	}
	switch s.timer.Status(team) {
	case engine.TimerExpired:
		return domain.ErrTimerExpired
	case engine.TimerNotStarted:
		return domain.ErrGameNotStarted
	}
	return nil
}

// ReleaseSession discards the team's in-flight attempt, e.g. when the client
// disconnects mid-level. Attempt stats are in-memory only and recomputed from
// zero on the next attempt.
func (s *GameService) ReleaseSession(code string) {
	s.mu.Lock()
	delete(s.sessions, code)
	s.mu.Unlock()
}

// RevertTeam rolls the team back to its checkpoint with the configured
// penalty. The store computes and persists the new score and level; any
// in-flight attempt is dropped.
func (s *GameService) RevertTeam(ctx context.Context, code string) (domain.Team, error) {
	team, err := s.teams.Revert(ctx, code, s.revertPenalty)
	if err != nil {
		return domain.Team{}, err
	}
	s.ReleaseSession(code)
	s.broadcastLeaderboard(ctx)
	return team, nil
}

// RenameTeam updates the display name.
func (s *GameService) RenameTeam(ctx context.Context, code, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &domain.ValidationError{Fields: []domain.FieldError{
			{Field: "teamName", Message: "team name is required"},
		}}
	}
	if err := s.teams.UpdateName(ctx, code, name); err != nil {
		return err
	}
	s.broadcastLeaderboard(ctx)
	return nil
}

// DeleteTeam removes the team record and any in-flight attempt.
func (s *GameService) DeleteTeam(ctx context.Context, code string) error {
	if err := s.teams.Delete(ctx, code); err != nil {
		return err
	}
	s.ReleaseSession(code)
	s.broadcastLeaderboard(ctx)
	return nil
}

// ListTeams returns all teams ordered by score descending.
func (s *GameService) ListTeams(ctx context.Context) ([]domain.Team, error) {
	return s.teams.ListAll(ctx)
}

// Leaderboard builds the external ranking view model.
func (s *GameService) Leaderboard(ctx context.Context) (domain.Leaderboard, error) {
	teams, err := s.teams.ListAll(ctx)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	rows := make([]domain.LeaderboardRow, 0, len(teams))
	for i, team := range teams {
		rows = append(rows, domain.LeaderboardRow{
			Rank:                 i + 1,
			TeamCode:             team.Code,
			TeamName:             team.Name,
			Score:                team.Score,
			CurrentLevel:         team.CurrentLevel,
			TotalQuestions:       team.CorrectQuestions + team.IncorrectQuestions + team.SkippedQuestions,
			Accuracy:             engine.RoundedAccuracy(team.CorrectQuestions, team.IncorrectQuestions),
			CompletionPercentage: engine.CompletionPercentage(team.CurrentLevel),
		})
	}
	return domain.Leaderboard{Rows: rows, UpdatedAt: s.now()}, nil
}

// Subscribe returns a channel of leaderboard updates plus a cancel function.
// The channel is primed with the current snapshot.
func (s *GameService) Subscribe(ctx context.Context) (<-chan domain.Leaderboard, func(), error) {
	lb, err := s.Leaderboard(ctx)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.hub.Subscribe(lb)
	return ch, cancel, nil
}

func (s *GameService) broadcastLeaderboard(ctx context.Context) {
	lb, err := s.Leaderboard(ctx)
	if err != nil {
		log.Printf("leaderboard refresh failed: %v", err)
		return
	}
	s.hub.Broadcast(lb)
}
