package domain

import "time"

// Team is the persisted progress record for one competing team, keyed by Code.
type Team struct {
	Code               string     `json:"teamCode"`
	Name               string     `json:"teamName"`
	Score              int64      `json:"score"`
	CurrentLevel       int        `json:"currentLevel"`
	CheckpointLevel    int        `json:"checkpointLevel"`
	CheckpointScore    int64      `json:"checkpointScore"`
	CorrectQuestions   int        `json:"correctQuestions"`
	IncorrectQuestions int        `json:"incorrectQuestions"`
	SkippedQuestions   int        `json:"skippedQuestions"`
	HintCount          int        `json:"hintCount"`
	GameLoaded         bool       `json:"gameLoaded"`
	GameStartTime      *time.Time `json:"gameStartTime,omitempty"`
}

// LevelStats accumulates one level attempt's counters. It is reset at level
// start and folded into the team's lifetime counters on completion.
type LevelStats struct {
	Correct   int `json:"correct"`
	Incorrect int `json:"incorrect"`
	Skipped   int `json:"skipped"`
	HintsUsed int `json:"hintsUsed"`
}

// Add returns the element-wise sum of two stat sets.
func (s LevelStats) Add(other LevelStats) LevelStats {
	return LevelStats{
		Correct:   s.Correct + other.Correct,
		Incorrect: s.Incorrect + other.Incorrect,
		Skipped:   s.Skipped + other.Skipped,
		HintsUsed: s.HintsUsed + other.HintsUsed,
	}
}

// Sub returns the element-wise difference s - other.
func (s LevelStats) Sub(other LevelStats) LevelStats {
	return LevelStats{
		Correct:   s.Correct - other.Correct,
		Incorrect: s.Incorrect - other.Incorrect,
		Skipped:   s.Skipped - other.Skipped,
		HintsUsed: s.HintsUsed - other.HintsUsed,
	}
}

// IsZero reports whether every counter is zero.
func (s LevelStats) IsZero() bool {
	return s == LevelStats{}
}

// ScoreBreakdown is the immutable result of scoring one level attempt.
// Invariant: TotalScore = max(0, BaseScore + ConsecutiveBonus + TimeBonus - Penalties).
type ScoreBreakdown struct {
	BaseScore         int     `json:"baseScore"`
	TimeBonus         int     `json:"timeBonus"`
	ConsecutiveBonus  int     `json:"consecutiveBonus"`
	Penalties         int     `json:"penalties"`
	TotalScore        int     `json:"totalScore"`
	Accuracy          float64 `json:"accuracy"`
	PerformanceRating string  `json:"performanceRating"`
	TimeTakenMinutes  float64 `json:"timeTaken"`
}

// TimeBonusTier awards Bonus points when the level was finished in strictly
// less than ThresholdMinutes. Tiers are evaluated in ascending threshold order.
type TimeBonusTier struct {
	ThresholdMinutes float64 `json:"thresholdMinutes"`
	Bonus            int     `json:"bonus"`
}

// RatingThreshold maps a minimum accuracy and a strict time limit to a rating.
type RatingThreshold struct {
	MinAccuracy float64 `json:"minAccuracy"`
	MaxMinutes  float64 `json:"maxMinutes"`
	Rating      string  `json:"rating"`
}

// ScoringTable holds the per-level scoring constants. Levels without
// hint-assisted pricing leave PointsPerCorrectWithHint zero, which falls back
// to PointsPerCorrect.
type ScoringTable struct {
	PointsPerCorrect         int               `json:"pointsPerCorrect"`
	PointsPerCorrectWithHint int               `json:"pointsPerCorrectWithHint"`
	IncorrectPenalty         int               `json:"incorrectPenalty"`
	SkipPenalty              int               `json:"skipPenalty"`
	ConsecutiveBonusUnit     int               `json:"consecutiveBonusUnit"`
	ConsecutiveBonusBlock    int               `json:"consecutiveBonusBlockSize"`
	TimeBonusTiers           []TimeBonusTier   `json:"timeBonusTiers"`
	RatingThresholds         []RatingThreshold `json:"ratingThresholds,omitempty"`
}

// QuestionKind selects how raw input is validated before the boolean
// correctness check. All kinds share the same session state machine.
type QuestionKind string

const (
	QuestionChoice   QuestionKind = "choice"
	QuestionText     QuestionKind = "text"
	QuestionNumeric  QuestionKind = "numeric"
	QuestionFraction QuestionKind = "fraction"
)

// Option is one selectable answer for a choice question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question is one puzzle within a level. Answer holds the canonical solution;
// grading normalizes case and whitespace before comparing.
type Question struct {
	ID      string       `json:"id"`
	Prompt  string       `json:"prompt"`
	Kind    QuestionKind `json:"kind"`
	Options []Option     `json:"options,omitempty"`
	Answer  string       `json:"answer"`
	Hint    string       `json:"hint,omitempty"`
}

// Level bundles a fixed question sequence with its scoring table.
type Level struct {
	Number    int          `json:"number"`
	Title     string       `json:"title"`
	Questions []Question   `json:"questions"`
	Scoring   ScoringTable `json:"scoring"`
}

// LeaderboardRow is the external view model for one ranked team.
type LeaderboardRow struct {
	Rank                 int    `json:"rank"`
	TeamCode             string `json:"teamCode"`
	TeamName             string `json:"teamName"`
	Score                int64  `json:"score"`
	CurrentLevel         int    `json:"currentLevel"`
	TotalQuestions       int    `json:"totalQuestions"`
	Accuracy             int    `json:"accuracy"`
	CompletionPercentage int    `json:"completionPercentage"`
}

// Leaderboard is the ordered scoreboard snapshot pushed to subscribers.
type Leaderboard struct {
	Rows      []LeaderboardRow `json:"rows"`
	UpdatedAt time.Time        `json:"updatedAt"`
}
