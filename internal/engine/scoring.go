package engine

import (
	"math"

	"chronos-cypher-service/internal/domain"
)

// RatingDefault is the catch-all performance rating.
const RatingDefault = "Needs Improvement"

// DefaultRatingThresholds is the shared rating ladder, evaluated in order;
// the first row whose accuracy floor and time ceiling both hold wins.
var DefaultRatingThresholds = []domain.RatingThreshold{
	{MinAccuracy: 90, MaxMinutes: 3, Rating: "Excellent"},
	{MinAccuracy: 90, MaxMinutes: 5, Rating: "Good"},
	{MinAccuracy: 70, MaxMinutes: 4, Rating: "Good"},
	{MinAccuracy: 50, MaxMinutes: 5, Rating: "Average"},
}

// Score converts one level's stats and elapsed time into a ScoreBreakdown
// using the level's scoring table. It is total over its numeric domain: no
// input combination produces an error, and TotalScore never goes negative.
//
// Hint-assisted correct answers are approximated as min(correct, hintsUsed)
// because the counters carry no per-question linkage.
func Score(table domain.ScoringTable, stats domain.LevelStats, timeTakenMinutes float64) domain.ScoreBreakdown {
	withHintRate := table.PointsPerCorrectWithHint
	if withHintRate == 0 {
		withHintRate = table.PointsPerCorrect
	}

	correctWithHints := stats.HintsUsed
	if correctWithHints > stats.Correct {
		correctWithHints = stats.Correct
	}
	correctWithoutHints := stats.Correct - correctWithHints

	base := correctWithoutHints*table.PointsPerCorrect + correctWithHints*withHintRate
	penalties := stats.Incorrect*table.IncorrectPenalty + stats.Skipped*table.SkipPenalty

	consecutive := 0
	if table.ConsecutiveBonusBlock > 0 {
		consecutive = (stats.Correct / table.ConsecutiveBonusBlock) * table.ConsecutiveBonusUnit
	}

	timeBonus := 0
	for _, tier := range table.TimeBonusTiers {
		if timeTakenMinutes < tier.ThresholdMinutes {
			timeBonus = tier.Bonus
			break
		}
	}

	total := base + consecutive + timeBonus - penalties
	if total < 0 {
		total = 0
	}

	answered := stats.Correct + stats.Incorrect + stats.Skipped
	accuracy := 0.0
	if answered > 0 {
		accuracy = float64(stats.Correct) / float64(answered) * 100
	}

	return domain.ScoreBreakdown{
		BaseScore:         base,
		TimeBonus:         timeBonus,
		ConsecutiveBonus:  consecutive,
		Penalties:         penalties,
		TotalScore:        total,
		Accuracy:          accuracy,
		PerformanceRating: rate(table.RatingThresholds, accuracy, timeTakenMinutes),
		TimeTakenMinutes:  timeTakenMinutes,
	}
}

func rate(thresholds []domain.RatingThreshold, accuracy, minutes float64) string {
	if len(thresholds) == 0 {
		thresholds = DefaultRatingThresholds
	}
	for _, t := range thresholds {
		if accuracy >= t.MinAccuracy && minutes < t.MaxMinutes {
			return t.Rating
		}
	}
	return RatingDefault
}

// RoundedAccuracy computes the leaderboard accuracy percentage, which counts
// only graded answers (correct + incorrect), unlike the per-level breakdown.
func RoundedAccuracy(correct, incorrect int) int {
	if correct+incorrect == 0 {
		return 0
	}
	return int(math.Round(float64(correct) / float64(correct+incorrect) * 100))
}
