package engine

import (
	"fmt"
	"time"

	"chronos-cypher-service/internal/domain"
)

// DefaultTotalDuration is the global countdown per team.
const DefaultTotalDuration = 5 * time.Hour

// TimerStatus describes where a team's game clock stands.
type TimerStatus string

const (
	TimerNotStarted TimerStatus = "not_started"
	TimerActive     TimerStatus = "active"
	TimerExpired    TimerStatus = "expired"
)

// GameTimer answers "how much time remains" purely from wall-clock time and
// persisted team fields. It never mutates team state; callers poll and react
// to a transition into TimerExpired.
type GameTimer struct {
	total time.Duration
	now   func() time.Time
}

// NewGameTimer builds a timer with the given total duration. A non-positive
// duration falls back to DefaultTotalDuration.
func NewGameTimer(total time.Duration) *GameTimer {
	return NewGameTimerWithClock(total, time.Now)
}

// NewGameTimerWithClock allows deterministic timestamps in tests.
func NewGameTimerWithClock(total time.Duration, now func() time.Time) *GameTimer {
	if total <= 0 {
		total = DefaultTotalDuration
	}
	return &GameTimer{total: total, now: now}
}

// Total returns the configured countdown duration.
func (t *GameTimer) Total() time.Duration {
	return t.total
}

// Status derives the session state from the team's start fields. A missing
// start timestamp is treated as not started, never as an error.
func (t *GameTimer) Status(team domain.Team) TimerStatus {
	if !team.GameLoaded || team.GameStartTime == nil {
		return TimerNotStarted
	}
	if t.now().Sub(*team.GameStartTime) >= t.total {
		return TimerExpired
	}
	return TimerActive
}

// Remaining returns the non-negative time left on the team's clock. It is 0
// both before the game starts and after it expires.
func (t *GameTimer) Remaining(team domain.Team) time.Duration {
	if !team.GameLoaded || team.GameStartTime == nil {
		return 0
	}
	left := t.total - t.now().Sub(*team.GameStartTime)
	if left < 0 {
		return 0
	}
	return left
}

// FormatRemaining renders a duration as zero-padded "HH:MM:SS".
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
