package engine

import (
	"testing"

	"chronos-cypher-service/internal/domain"
)

func standardTable() domain.ScoringTable {
	return domain.ScoringTable{
		PointsPerCorrect:         1500,
		PointsPerCorrectWithHint: 1000,
		IncorrectPenalty:         400,
		SkipPenalty:              750,
		ConsecutiveBonusUnit:     200,
		ConsecutiveBonusBlock:    3,
		TimeBonusTiers: []domain.TimeBonusTier{
			{ThresholdMinutes: 2.5, Bonus: 200},
			{ThresholdMinutes: 4, Bonus: 100},
		},
	}
}

func TestScorePerfectRun(t *testing.T) {
	table := standardTable()
	b := Score(table, domain.LevelStats{Correct: 10}, 2.0)

	if b.BaseScore != 15000 {
		t.Fatalf("base: expected 15000, got %d", b.BaseScore)
	}
	if b.ConsecutiveBonus != 600 {
		t.Fatalf("consecutive: expected 600, got %d", b.ConsecutiveBonus)
	}
	if b.TimeBonus != 200 {
		t.Fatalf("time bonus: expected 200, got %d", b.TimeBonus)
	}
	if b.TotalScore != 15800 {
		t.Fatalf("total: expected 15800, got %d", b.TotalScore)
	}
	if b.Accuracy != 100 {
		t.Fatalf("accuracy: expected 100, got %v", b.Accuracy)
	}
	if b.PerformanceRating != "Excellent" {
		t.Fatalf("rating: expected Excellent, got %q", b.PerformanceRating)
	}
}

func TestScoreClampsAtZero(t *testing.T) {
	table := standardTable()
	b := Score(table, domain.LevelStats{Incorrect: 5, Skipped: 5}, 1.0)

	if b.Penalties != 5*400+5*750 {
		t.Fatalf("penalties: expected 5750, got %d", b.Penalties)
	}
	if b.TotalScore != 0 {
		t.Fatalf("total must clamp to 0, got %d", b.TotalScore)
	}
	if b.Accuracy != 0 {
		t.Fatalf("accuracy: expected 0, got %v", b.Accuracy)
	}
}

func TestScoreHintSplit(t *testing.T) {
	table := standardTable()
	// 4 correct, 2 hint-assisted: 2*1500 + 2*1000.
	b := Score(table, domain.LevelStats{Correct: 4, HintsUsed: 2}, 10)
	if b.BaseScore != 5000 {
		t.Fatalf("base: expected 5000, got %d", b.BaseScore)
	}

	// More hints than correct answers caps at correct.
	b = Score(table, domain.LevelStats{Correct: 2, HintsUsed: 9}, 10)
	if b.BaseScore != 2000 {
		t.Fatalf("base with hint overflow: expected 2000, got %d", b.BaseScore)
	}
}

func TestScoreFlatVariantWithoutHintRate(t *testing.T) {
	table := standardTable()
	table.PointsPerCorrectWithHint = 0 // levels without a hint split
	b := Score(table, domain.LevelStats{Correct: 3, HintsUsed: 3}, 10)
	if b.BaseScore != 4500 {
		t.Fatalf("expected flat 3*1500, got %d", b.BaseScore)
	}
}

func TestScoreTimeBonusTiers(t *testing.T) {
	table := standardTable()
	cases := []struct {
		minutes float64
		bonus   int
	}{
		{2.0, 200},
		{2.5, 100}, // strict comparison: 2.5 misses the first tier
		{3.9, 100},
		{4.0, 0},
		{60, 0},
	}
	for _, tc := range cases {
		b := Score(table, domain.LevelStats{Correct: 1}, tc.minutes)
		if b.TimeBonus != tc.bonus {
			t.Fatalf("minutes=%v: expected bonus %d, got %d", tc.minutes, tc.bonus, b.TimeBonus)
		}
	}
}

func TestScoreAccuracyBounds(t *testing.T) {
	table := standardTable()
	cases := []domain.LevelStats{
		{},
		{Skipped: 7},
		{Correct: 3, Incorrect: 1, Skipped: 2},
		{Correct: 100},
		{Incorrect: 50},
	}
	for _, stats := range cases {
		b := Score(table, stats, 1)
		if b.Accuracy < 0 || b.Accuracy > 100 {
			t.Fatalf("accuracy out of range for %+v: %v", stats, b.Accuracy)
		}
		if stats.Correct+stats.Incorrect == 0 && b.Accuracy != 0 {
			t.Fatalf("accuracy must be 0 with no correct answers, got %v", b.Accuracy)
		}
		if b.TotalScore < 0 {
			t.Fatalf("total went negative for %+v: %d", stats, b.TotalScore)
		}
	}
}

func TestRatingIsTotal(t *testing.T) {
	cases := []struct {
		accuracy float64
		minutes  float64
		want     string
	}{
		{95, 2, "Excellent"},
		{95, 4, "Good"},
		{75, 3, "Good"},
		{60, 4, "Average"},
		{60, 10, RatingDefault},
		{10, 1, RatingDefault},
		{0, 0, RatingDefault},
	}
	for _, tc := range cases {
		got := rate(nil, tc.accuracy, tc.minutes)
		if got != tc.want {
			t.Fatalf("accuracy=%v minutes=%v: expected %q, got %q", tc.accuracy, tc.minutes, tc.want, got)
		}
	}
}

func TestRoundedAccuracy(t *testing.T) {
	if got := RoundedAccuracy(0, 0); got != 0 {
		t.Fatalf("expected 0 for empty denominator, got %d", got)
	}
	if got := RoundedAccuracy(2, 1); got != 67 {
		t.Fatalf("expected 67, got %d", got)
	}
	if got := RoundedAccuracy(5, 0); got != 100 {
		t.Fatalf("expected 100, got %d", got)
	}
}
