package engine

import (
	"math"
	"time"

	"chronos-cypher-service/internal/domain"
)

const (
	// TotalLevels is the length of the level ladder.
	TotalLevels = 40
	// DefaultRevertPenalty is subtracted from the checkpoint score on revert.
	DefaultRevertPenalty = 200
)

var checkpointLevels = map[int]struct{}{
	1: {}, 5: {}, 10: {}, 15: {}, 20: {}, 25: {}, 30: {}, 35: {},
}

// IsCheckpointLevel reports whether completing this level snapshots progress.
func IsCheckpointLevel(level int) bool {
	_, ok := checkpointLevels[level]
	return ok
}

// CompleteLevel applies a scored level attempt to the team and returns the
// updated copy. The caller must have verified team.CurrentLevel == levelNumber;
// replaying a completed level is the caller's responsibility to reject.
//
// The score delta (breakdown.TotalScore) is already clamped non-negative by
// the calculator, so the absolute score only moves up here. Completing a
// checkpoint level additionally snapshots the new score and level in the same
// transition.
func CompleteLevel(team domain.Team, levelNumber int, stats domain.LevelStats, breakdown domain.ScoreBreakdown) domain.Team {
	team.Score += int64(breakdown.TotalScore)
	team.CurrentLevel = levelNumber + 1
	team.CorrectQuestions += stats.Correct
	team.IncorrectQuestions += stats.Incorrect
	team.SkippedQuestions += stats.Skipped
	team.HintCount += stats.HintsUsed

	if IsCheckpointLevel(levelNumber) {
		team.CheckpointScore = team.Score
		team.CheckpointLevel = team.CurrentLevel
	}
	return team
}

// RevertToCheckpoint rolls the team back to its last checkpoint, minus the
// penalty. The result is deliberately not clamped at zero: a revert from a
// low checkpoint score can leave the team negative, unlike level completion.
// Checkpoint fields and lifetime counters stay untouched, so repeated reverts
// land on the same level while the score keeps dropping.
func RevertToCheckpoint(team domain.Team, penalty int) domain.Team {
	team.Score = team.CheckpointScore - int64(penalty)
	team.CurrentLevel = team.CheckpointLevel
	return team
}

// StartGame marks the team's countdown as started. Callers must only invoke
// it while GameLoaded is false; the timestamp is immutable afterwards.
func StartGame(team domain.Team, now time.Time) domain.Team {
	team.GameLoaded = true
	team.GameStartTime = &now
	return team
}

// CompletionPercentage maps the next level to play onto [0,100].
func CompletionPercentage(currentLevel int) int {
	done := currentLevel - 1
	if done < 0 {
		done = 0
	}
	if done > TotalLevels {
		done = TotalLevels
	}
	return int(math.Round(float64(done) / float64(TotalLevels) * 100))
}
