package app

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"chronos-cypher-service/internal/domain"
	"chronos-cypher-service/internal/engine"
)

// AttemptState is the level session's position in its lifecycle.
type AttemptState string

const (
	StateLoading    AttemptState = "loading"
	StateQuestion   AttemptState = "question"
	StateCompleting AttemptState = "completing"
	StateCompleted  AttemptState = "completed"
	StateBlocked    AttemptState = "blocked"
)

// LevelSession drives one team through one level's fixed question sequence.
// All mutation goes through the defined transitions; the score breakdown is
// computed once at completion and cached so the displayed score can never
// drift from the persisted one.
type LevelSession struct {
	mu        sync.Mutex
	teamCode  string
	level     domain.Level
	state     AttemptState
	index     int
	stats     domain.LevelStats
	flushed   domain.LevelStats
	hintShown []bool
	startedAt time.Time
	now       func() time.Time
	breakdown *domain.ScoreBreakdown
}

// SubmitResult reports the effect of one submit or skip.
type SubmitResult struct {
	Correct   bool
	Index     int
	Delta     domain.LevelStats
	LevelDone bool
}

// NewLevelSession builds a session in the Loading state.
func NewLevelSession(teamCode string, level domain.Level) *LevelSession {
	return NewLevelSessionWithClock(teamCode, level, time.Now)
}

// NewLevelSessionWithClock allows deterministic timestamps in tests.
func NewLevelSessionWithClock(teamCode string, level domain.Level, now func() time.Time) *LevelSession {
	return &LevelSession{
		teamCode:  teamCode,
		level:     level,
		state:     StateLoading,
		hintShown: make([]bool, len(level.Questions)),
		now:       now,
	}
}

// Begin transitions Loading into the first question, or into Blocked when the
// team's persisted level does not match the level being played.
func (s *LevelSession) Begin(teamCurrentLevel int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateLoading {
		return domain.ErrAttemptFinished
	}
	if s.level.Number > teamCurrentLevel {
		s.state = StateBlocked
		return domain.ErrLevelMismatch
	}
	if s.level.Number < teamCurrentLevel {
		s.state = StateBlocked
		return domain.ErrLevelCompleted
	}
	s.state = StateQuestion
	s.startedAt = s.now()
	return nil
}

// TeamCode returns the owning team's code.
func (s *LevelSession) TeamCode() string {
	return s.teamCode
}

// Level returns the level content this attempt runs against.
func (s *LevelSession) Level() domain.Level {
	return s.level
}

// State returns the current attempt state.
func (s *LevelSession) State() AttemptState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CurrentQuestion returns the question awaiting an answer and its index.
func (s *LevelSession) CurrentQuestion() (domain.Question, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateQuestion {
		return domain.Question{}, 0, domain.ErrAttemptFinished
	}
	return s.level.Questions[s.index], s.index, nil
}

// Submit grades the raw answer against the current question and advances.
// A multi-word answer with the wrong word count is rejected up front and does
// not consume the attempt.
func (s *LevelSession) Submit(raw string) (SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateQuestion {
		return SubmitResult{}, domain.ErrAttemptFinished
	}
	question := s.level.Questions[s.index]

	correct, err := grade(question, raw)
	if err != nil {
		return SubmitResult{}, err
	}

	var delta domain.LevelStats
	if correct {
		delta.Correct = 1
	} else {
		delta.Incorrect = 1
	}
	s.stats = s.stats.Add(delta)

	res := SubmitResult{Correct: correct, Index: s.index, Delta: delta}
	s.advanceLocked(&res)
	return res, nil
}

// Skip counts the current question as skipped, never graded, and advances.
func (s *LevelSession) Skip() (SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateQuestion {
		return SubmitResult{}, domain.ErrAttemptFinished
	}
	delta := domain.LevelStats{Skipped: 1}
	s.stats = s.stats.Add(delta)

	res := SubmitResult{Index: s.index, Delta: delta}
	s.advanceLocked(&res)
	return res, nil
}

// Hint returns the current question's hint. Only the first request per
// question counts toward hintsUsed; repeats re-display the text for free.
func (s *LevelSession) Hint() (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateQuestion {
		return "", false, domain.ErrAttemptFinished
	}
	question := s.level.Questions[s.index]
	counted := !s.hintShown[s.index]
	if counted {
		s.hintShown[s.index] = true
		s.stats.HintsUsed++
	}
	return question.Hint, counted, nil
}

func (s *LevelSession) advanceLocked(res *SubmitResult) {
	s.index++
	if s.index >= len(s.level.Questions) {
		s.state = StateCompleting
		res.LevelDone = true
	}
}

// Elapsed returns wall-clock time since the first question was shown.
func (s *LevelSession) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt.IsZero() {
		return 0
	}
	return s.now().Sub(s.startedAt)
}

// Stats returns a copy of the attempt's counters so far.
func (s *LevelSession) Stats() domain.LevelStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Finalize computes the score breakdown exactly once and caches it. Repeat
// calls return the cached value, keeping the displayed score identical to the
// one committed to the store.
func (s *LevelSession) Finalize() (domain.ScoreBreakdown, domain.LevelStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateCompleting, StateCompleted:
	default:
		return domain.ScoreBreakdown{}, domain.LevelStats{}, domain.ErrAttemptFinished
	}
	if s.breakdown == nil {
		minutes := s.now().Sub(s.startedAt).Minutes()
		bd := engine.Score(s.level.Scoring, s.stats, minutes)
		s.breakdown = &bd
	}
	return *s.breakdown, s.stats, nil
}

// Breakdown returns the cached score breakdown, if finalized.
func (s *LevelSession) Breakdown() (domain.ScoreBreakdown, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.breakdown == nil {
		return domain.ScoreBreakdown{}, false
	}
	return *s.breakdown, true
}

// MarkCompleted moves Completing into the terminal Completed state after the
// store confirmed the commit.
func (s *LevelSession) MarkCompleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCompleting {
		s.state = StateCompleted
	}
}

// UnflushedDelta returns the stats not yet pushed to the store.
func (s *LevelSession) UnflushedDelta() domain.LevelStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.Sub(s.flushed)
}

// MarkFlushed records that delta reached the store.
func (s *LevelSession) MarkFlushed(delta domain.LevelStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushed = s.flushed.Add(delta)
}

// grade reduces raw input to a boolean correctness check. Strings are
// uppercased and whitespace-collapsed before comparison; numeric and fraction
// kinds compare by value so "0.50" matches "1/2"-style canonical forms.
func grade(question domain.Question, raw string) (bool, error) {
	want := normalizeAnswer(question.Answer)
	got := normalizeAnswer(raw)

	wantWords := len(strings.Fields(want))
	if wantWords > 1 && len(strings.Fields(got)) != wantWords {
		return false, domain.ErrWordCountMismatch
	}

	switch question.Kind {
	case domain.QuestionNumeric:
		w, errW := strconv.ParseFloat(want, 64)
		g, errG := strconv.ParseFloat(got, 64)
		if errW == nil && errG == nil {
			return w == g, nil
		}
	case domain.QuestionFraction:
		wn, wd, okW := parseFraction(want)
		gn, gd, okG := parseFraction(got)
		if okW && okG {
			// cross-multiplied so 2/4 matches 1/2
			return wn*gd == gn*wd, nil
		}
	}
	return got == want, nil
}

func normalizeAnswer(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

func parseFraction(s string) (num, den int64, ok bool) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	num, errN := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	den, errD := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if errN != nil || errD != nil || den == 0 {
		return 0, 0, false
	}
	return num, den, true
}
