package domain

import "errors"

var (
	// ErrTeamNotFound is returned when a team code has no matching record.
	ErrTeamNotFound = errors.New("team not found")
	// ErrTeamExists indicates a generated team code collided with an existing one.
	ErrTeamExists = errors.New("team already exists")
	// ErrLevelNotFound indicates the level content could not be loaded.
	ErrLevelNotFound = errors.New("level not found")
	// ErrSessionNotFound is returned when a team acts without an active level attempt.
	ErrSessionNotFound = errors.New("level session not found")
	// ErrLevelMismatch means the requested level is ahead of the team's progress.
	ErrLevelMismatch = errors.New("previous levels must be completed first")
	// ErrLevelCompleted means the requested level is behind the team's progress.
	ErrLevelCompleted = errors.New("level already completed")
	// ErrTimerExpired means the game clock ran out; no further score mutations are accepted.
	ErrTimerExpired = errors.New("game time expired")
	// ErrGameNotStarted means the team has not started its countdown yet.
	ErrGameNotStarted = errors.New("game not started")
	// ErrWordCountMismatch rejects a multi-word answer with the wrong word count
	// before it consumes a submit attempt.
	ErrWordCountMismatch = errors.New("answer word count does not match")
	// ErrAttemptFinished means the level attempt reached a terminal state.
	ErrAttemptFinished = errors.New("level attempt already finished")
)

// FieldError is one field-level validation message.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError rejects malformed input before any mutation happens.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	return "validation failed: " + e.Fields[0].Field + " " + e.Fields[0].Message
}
