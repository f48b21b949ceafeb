package domain

// Realtime event names exchanged over the duplex channel.
const (
	EventJoinSession    = "join_session"
	EventLeaveSession   = "leave_session"
	EventSubmitAnswer   = "submit_answer"
	EventGetLeaderboard = "get_leaderboard"

	EventJoined            = "joined"
	EventQuestionStart     = "question_start"
	EventQuestionEnd       = "question_end"
	EventSessionEnd        = "session_end"
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
	EventAnswerReceived    = "answer_received"
	EventAnswerSubmitted   = "answer_submitted"
	EventForcedDisconnect  = "forced_disconnect"
	EventKicked            = "kicked_from_session"
	EventReplay            = "replay"
	EventLeaderboard       = "leaderboard"
	EventError             = "error"
)

// PresentedQuestion is what clients see: shuffled choice texts only.
type PresentedQuestion struct {
	Text       string   `json:"text"`
	Choices    []string `json:"choices"`
	TimeLimit  float64  `json:"timeLimit"`
	BasePoints int      `json:"basePoints"`
}

// QuestionStartPayload is sent on question start and on reconnect resync.
type QuestionStartPayload struct {
	QuestionIndex  int               `json:"questionIndex"`
	Question       PresentedQuestion `json:"question"`
	StartTime      float64           `json:"startTime"`
	TimeLimit      float64           `json:"timeLimit"`
	TotalQuestions int               `json:"totalQuestions"`
	Resync         bool              `json:"resync,omitempty"`
}

// QuestionStats summarizes answers for one question instance.
type QuestionStats struct {
	AnsweredCount int   `json:"answeredCount"`
	CorrectCount  int   `json:"correctCount"`
	Distribution  []int `json:"distribution"`
}

// QuestionEndPayload reveals the answer in presented-index space.
type QuestionEndPayload struct {
	QuestionIndex       int                `json:"questionIndex"`
	CorrectAnswer       int                `json:"correctAnswer"`
	Leaderboard         []LeaderboardEntry `json:"leaderboard"`
	PerParticipantScore map[string]int     `json:"perParticipantScore"`
	Stats               QuestionStats      `json:"stats"`
	TotalQuestions      int                `json:"totalQuestions"`
	IsLastQuestion      bool               `json:"isLastQuestion"`
}

type SessionEndPayload struct {
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}

// JoinedPayload acknowledges join_session to the joining connection.
type JoinedPayload struct {
	SessionID        string `json:"sessionId"`
	RoomCode         string `json:"roomCode"`
	Role             Role   `json:"role"`
	Status           Status `json:"status"`
	ConnectionID     string `json:"connectionId"`
	ParticipantCount int    `json:"participantCount"`
	QuestionIndex    int    `json:"questionIndex"`
	TotalQuestions   int    `json:"totalQuestions"`
}

type ParticipantJoinedPayload struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Count       int    `json:"count"`
}

type ParticipantLeftPayload struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

type AnswerReceivedPayload struct {
	QuestionIndex int     `json:"questionIndex"`
	IsCorrect     bool    `json:"isCorrect"`
	Score         int     `json:"score"`
	TimeTaken     float64 `json:"timeTaken"`
	TotalScore    int     `json:"totalScore"`
}

type AnswerSubmittedPayload struct {
	UserID        string `json:"userId"`
	AnsweredCount int    `json:"answeredCount"`
	TotalPlayers  int    `json:"totalPlayers"`
}

// NoticePayload backs forced_disconnect and kicked_from_session.
type NoticePayload struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type ReplayPayload struct {
	SessionID  string `json:"sessionId"`
	Generation int64  `json:"generation"`
}

type LeaderboardPayload struct {
	SessionID string             `json:"sessionId"`
	Entries   []LeaderboardEntry `json:"entries"`
}

// ErrorPayload is the wire form of a domain error.
type ErrorPayload struct {
	Kind    Kind   `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorPayloadOf converts err for delivery to a client.
func ErrorPayloadOf(err error) ErrorPayload {
	return ErrorPayload{Kind: KindOf(err), Code: CodeOf(err), Message: PublicMessage(err)}
}

// Disconnect/kick reasons.
const (
	ReasonNewDevice = "new_device"
	ReasonKicked    = "kicked"
	ReasonBanned    = "banned"
)
