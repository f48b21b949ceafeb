// Package scoring computes time-decayed question scores and checks answer timing.
package scoring

import (
	"math"
	"time"

	"live-quiz-service/internal/domain"
)

const (
	// FreezeSeconds is the initial window during which any answer earns full points.
	FreezeSeconds = 1.0
	// GraceSeconds is accepted past the time limit to absorb network latency.
	GraceSeconds = 2.0
	// MinTimeLimit clamps degenerate question timers.
	MinTimeLimit = 0.1
)

// Score returns points for an answer given after timeTaken seconds.
// Full credit inside the freeze window, then linear decay to zero at the deadline.
func Score(basePoints int, timeLimit, timeTaken float64) int {
	if basePoints < 0 {
		basePoints = 0
	}
	if timeLimit < MinTimeLimit {
		timeLimit = MinTimeLimit
	}
	if timeTaken < 0 {
		timeTaken = 0
	}
	if timeTaken > timeLimit {
		return 0
	}
	if timeTaken <= FreezeSeconds {
		return basePoints
	}

	window := timeLimit - FreezeSeconds
	if window <= 0 {
		// limit shorter than the freeze window and timeTaken already past it
		return 0
	}
	elapsed := timeTaken - FreezeSeconds
	base := float64(basePoints)
	raw := base - elapsed*(base/window)
	raw = math.Max(0, math.Min(base, raw))
	return int(math.Round(raw))
}

// Submission is an answer as received, before it is trusted.
// Nil pointers mean the field was absent on the wire.
type Submission struct {
	QuestionIndex *int
	ChoiceID      *int
	TimeTaken     float64
}

// Validate checks structural and timing legitimacy of a submission.
// ChoiceID is expected in original-index space. Duplicates are not detected here.
func Validate(sub Submission, q domain.Question) error {
	if sub.ChoiceID == nil || sub.QuestionIndex == nil {
		return domain.ErrMissingFields
	}
	if *sub.ChoiceID < 0 || *sub.ChoiceID >= len(q.Choices) {
		return domain.ErrInvalidChoice
	}
	if sub.TimeTaken < 0 {
		return domain.ErrTooEarly
	}
	limit := q.TimeLimitSeconds
	if limit < MinTimeLimit {
		limit = MinTimeLimit
	}
	if sub.TimeTaken > limit+GraceSeconds {
		return domain.ErrTooLate
	}
	return nil
}

// IsCorrect reports whether the original choice index is flagged correct.
func IsCorrect(choiceID int, q domain.Question) bool {
	if choiceID < 0 || choiceID >= len(q.Choices) {
		return false
	}
	return q.Choices[choiceID].IsCorrect
}

// EpochSeconds converts t to fractional unix seconds.
func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// TimeTaken measures elapsed seconds since the (display-delayed) question start.
// Negative values mean the answer beat the visible timer.
func TimeTaken(questionStart float64, receivedAt time.Time) float64 {
	return EpochSeconds(receivedAt) - questionStart
}
