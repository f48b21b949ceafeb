package domain

import "time"

// Status is the phase of a live session.
type Status string

const (
	StatusLobby    Status = "lobby"
	StatusPlaying  Status = "playing"
	StatusQuestion Status = "question"
	StatusResults  Status = "results"
	StatusEnded    Status = "ended"
)

// Role distinguishes the host console from participants.
type Role string

const (
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleHost || r == RolePlayer
}

// Choice is one answer option in its original (authored) position.
type Choice struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// Question models a timed multiple choice question.
type Question struct {
	Text             string   `json:"text"`
	Choices          []Choice `json:"choices"`
	TimeLimitSeconds float64  `json:"timeLimitSeconds"`
	BasePoints       int      `json:"basePoints"`
}

// CorrectIndex returns the first choice flagged correct, or -1.
// Additional correct choices on multi-select questions are ignored.
func (q Question) CorrectIndex() int {
	for i, c := range q.Choices {
		if c.IsCorrect {
			return i
		}
	}
	return -1
}

// Session is the durable record of one hosted quiz run.
type Session struct {
	ID                   string     `json:"id"`
	RoomCode             string     `json:"roomCode"`
	HostID               string     `json:"hostId"`
	Status               Status     `json:"status"`
	QuizRef              string     `json:"quizRef"`
	PreviousQuizRef      string     `json:"previousQuizRef,omitempty"`
	Questions            []Question `json:"questions"`
	CurrentQuestionIndex int        `json:"currentQuestionIndex"`
	ScoreAlpha           float64    `json:"scoreAlpha"`
	MaxParticipants      int        `json:"maxParticipants"`
	// QuestionStartTime is epoch seconds, already shifted forward by the display delay.
	QuestionStartTime float64 `json:"questionStartTime"`
	Generation        int64   `json:"generation"`
	// Revision increases on every persisted change; caches never replace a higher one.
	Revision int64 `json:"revision"`
	// ChoiceMapping maps presented index -> original index for the current question instance.
	ChoiceMapping []int      `json:"choiceMapping,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	EndedAt       *time.Time `json:"endedAt,omitempty"`
}

// CurrentQuestion returns the question at CurrentQuestionIndex.
func (s Session) CurrentQuestion() (Question, bool) {
	if s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[s.CurrentQuestionIndex], true
}

// Participant represents a quiz participant and their accumulated score.
type Participant struct {
	SessionID     string    `json:"sessionId"`
	UserID        string    `json:"userId"`
	DisplayName   string    `json:"displayName"`
	JoinedAt      time.Time `json:"joinedAt"`
	SourceAddress string    `json:"sourceAddress,omitempty"`
	Score         int       `json:"score"`
}

// Answer is one accepted submission. ChoiceID is the original index.
type Answer struct {
	SessionID        string    `json:"sessionId"`
	UserID           string    `json:"userId"`
	Generation       int64     `json:"generation"`
	QuestionIndex    int       `json:"questionIndex"`
	ChoiceID         int       `json:"choiceId"`
	IsCorrect        bool      `json:"isCorrect"`
	TimeTakenSeconds float64   `json:"timeTakenSeconds"`
	Score            int       `json:"score"`
	SubmittedAt      time.Time `json:"submittedAt"`
}

// SessionBan excludes a user from one session until ExpiresAt.
type SessionBan struct {
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// PermanentBan excludes a user from every session owned by HostID.
type PermanentBan struct {
	HostID    string    `json:"hostId"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// LeaderboardEntry is a snapshot-friendly view of a participant.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
}

// ScoreEntry is the raw sorted-set member kept by caches.
type ScoreEntry struct {
	UserID      string
	DisplayName string
	Score       int
	JoinedAt    time.Time
}
