package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"live-quiz-service/internal/domain"
)

func TestScore(t *testing.T) {
	cases := []struct {
		name      string
		base      int
		limit     float64
		taken     float64
		wantScore int
	}{
		{"instant click", 1000, 20, 0.5, 1000},
		{"end of freeze", 1000, 20, 1.0, 1000},
		{"half way through decay", 1000, 20, 10.5, 500},
		{"past deadline", 1000, 20, 21, 0},
		{"exactly at deadline", 1000, 20, 20, 0},
		{"negative time clamps to full", 1000, 20, -3, 1000},
		{"negative base clamps to zero", -50, 20, 5, 0},
		{"tiny limit", 100, 0, 0.05, 100},
		{"rounds to nearest", 100, 4, 2, 67},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.wantScore, Score(tc.base, tc.limit, tc.taken))
		})
	}
}

func TestScoreIsBounded(t *testing.T) {
	for taken := 0.0; taken <= 25; taken += 0.25 {
		got := Score(750, 15, taken)
		require.GreaterOrEqual(t, got, 0)
		require.LessOrEqual(t, got, 750)
	}
}

func TestValidate(t *testing.T) {
	q := domain.Question{
		Text:             "2 + 2",
		Choices:          []domain.Choice{{Text: "3"}, {Text: "4", IsCorrect: true}, {Text: "5"}},
		TimeLimitSeconds: 20,
		BasePoints:       1000,
	}
	idx := func(i int) *int { return &i }

	cases := []struct {
		name string
		sub  Submission
		want error
	}{
		{"missing choice", Submission{QuestionIndex: idx(0), TimeTaken: 1}, domain.ErrMissingFields},
		{"missing question", Submission{ChoiceID: idx(0), TimeTaken: 1}, domain.ErrMissingFields},
		{"choice below range", Submission{QuestionIndex: idx(0), ChoiceID: idx(-1), TimeTaken: 1}, domain.ErrInvalidChoice},
		{"choice above range", Submission{QuestionIndex: idx(0), ChoiceID: idx(3), TimeTaken: 1}, domain.ErrInvalidChoice},
		{"too early", Submission{QuestionIndex: idx(0), ChoiceID: idx(1), TimeTaken: -0.01}, domain.ErrTooEarly},
		{"too late", Submission{QuestionIndex: idx(0), ChoiceID: idx(1), TimeTaken: 23}, domain.ErrTooLate},
		{"inside grace", Submission{QuestionIndex: idx(0), ChoiceID: idx(1), TimeTaken: 21.9}, nil},
		{"on time", Submission{QuestionIndex: idx(0), ChoiceID: idx(0), TimeTaken: 4}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.sub, q)
			if tc.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestIsCorrect(t *testing.T) {
	q := domain.Question{Choices: []domain.Choice{{Text: "a"}, {Text: "b", IsCorrect: true}}}
	require.False(t, IsCorrect(0, q))
	require.True(t, IsCorrect(1, q))
	require.False(t, IsCorrect(2, q))
	require.False(t, IsCorrect(-1, q))
}

func TestTimeTaken(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	got := TimeTaken(EpochSeconds(start), start.Add(2500*time.Millisecond))
	require.InDelta(t, 2.5, got, 1e-6)

	early := TimeTaken(EpochSeconds(start), start.Add(-time.Second))
	require.Less(t, early, 0.0)
}
