package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chronos-cypher-service/internal/domain"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// TeamStore persists team progress in Postgres. Counter updates are single
// UPDATE statements of the form `SET x = x + $n`, so concurrent writers on one
// team code never overwrite each other's increments.
type TeamStore struct {
	pool *pgxpool.Pool
}

func NewTeamStore(pool *pgxpool.Pool) *TeamStore {
	return &TeamStore{pool: pool}
}

const teamColumns = `code, name, score, current_level, checkpoint_level, checkpoint_score,
	correct_questions, incorrect_questions, skipped_questions, hint_count,
	game_loaded, game_start_time`

func scanTeam(row pgx.Row) (domain.Team, error) {
	var team domain.Team
	var startTime *time.Time
	err := row.Scan(
		&team.Code, &team.Name, &team.Score, &team.CurrentLevel,
		&team.CheckpointLevel, &team.CheckpointScore,
		&team.CorrectQuestions, &team.IncorrectQuestions, &team.SkippedQuestions,
		&team.HintCount, &team.GameLoaded, &startTime,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Team{}, domain.ErrTeamNotFound
	}
	if err != nil {
		return domain.Team{}, fmt.Errorf("scan team: %w", err)
	}
	team.GameStartTime = startTime
	return team, nil
}

func (s *TeamStore) Get(ctx context.Context, code string) (domain.Team, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+teamColumns+` FROM teams WHERE code=$1`, code)
	return scanTeam(row)
}

func (s *TeamStore) Create(ctx context.Context, team domain.Team) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO teams (code, name, score, current_level, checkpoint_level, checkpoint_score)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		team.Code, team.Name, team.Score, team.CurrentLevel, team.CheckpointLevel, team.CheckpointScore,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.ErrTeamExists
	}
	if err != nil {
		return fmt.Errorf("create team: %w", err)
	}
	return nil
}

func (s *TeamStore) UpdateName(ctx context.Context, code, name string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE teams SET name=$2 WHERE code=$1`, code, name)
	if err != nil {
		return fmt.Errorf("update name: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTeamNotFound
	}
	return nil
}

func (s *TeamStore) IncrementStats(ctx context.Context, code string, delta domain.LevelStats) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE teams SET
			correct_questions   = correct_questions + $2,
			incorrect_questions = incorrect_questions + $3,
			skipped_questions   = skipped_questions + $4,
			hint_count          = hint_count + $5
		WHERE code=$1`,
		code, delta.Correct, delta.Incorrect, delta.Skipped, delta.HintsUsed,
	)
	if err != nil {
		return fmt.Errorf("increment stats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTeamNotFound
	}
	return nil
}

func (s *TeamStore) UpdateScore(ctx context.Context, code string, score int64, currentLevel int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE teams SET score=$2, current_level=$3 WHERE code=$1`,
		code, score, currentLevel,
	)
	if err != nil {
		return fmt.Errorf("update score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTeamNotFound
	}
	return nil
}

func (s *TeamStore) SaveCheckpoint(ctx context.Context, code string, checkpointScore int64, checkpointLevel int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE teams SET checkpoint_score=$2, checkpoint_level=$3 WHERE code=$1`,
		code, checkpointScore, checkpointLevel,
	)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTeamNotFound
	}
	return nil
}

// Revert computes the rollback server-side in one statement. The score is not
// floored: checkpoint_score minus the penalty may go negative.
func (s *TeamStore) Revert(ctx context.Context, code string, penalty int) (domain.Team, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE teams SET
			score         = checkpoint_score - $2,
			current_level = checkpoint_level
		WHERE code=$1
		RETURNING `+teamColumns,
		code, penalty,
	)
	return scanTeam(row)
}

// StartGame stamps the countdown start exactly once; a repeat call leaves the
// original timestamp and returns the current record.
func (s *TeamStore) StartGame(ctx context.Context, code string, startedAt time.Time) (domain.Team, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE teams SET game_loaded = TRUE, game_start_time = $2
		WHERE code=$1 AND game_loaded = FALSE
		RETURNING `+teamColumns,
		code, startedAt.UTC(),
	)
	team, err := scanTeam(row)
	if errors.Is(err, domain.ErrTeamNotFound) {
		// Already started (or genuinely missing); fall back to a plain read.
		return s.Get(ctx, code)
	}
	return team, err
}

func (s *TeamStore) ListAll(ctx context.Context) ([]domain.Team, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+teamColumns+` FROM teams ORDER BY score DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	var teams []domain.Team
	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		teams = append(teams, team)
	}
	return teams, rows.Err()
}

func (s *TeamStore) Delete(ctx context.Context, code string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM teams WHERE code=$1`, code)
	if err != nil {
		return fmt.Errorf("delete team: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTeamNotFound
	}
	return nil
}
