package app

import (
	"context"
	"errors"
	"time"

	"live-quiz-service/internal/domain"
)

// ErrRoomCodeInUse is returned by stores when a non-ended session already owns the room code.
var ErrRoomCodeInUse = errors.New("room code already in use")

// Store is the durable, authoritative persistence contract.
// Implementations return domain.ErrSessionNotFound / domain.ErrParticipantNotFound for absent
// records and domain.ErrAlreadyAnswered when an answer key already exists.
type Store interface {
	CreateSession(ctx context.Context, session domain.Session) error
	GetSession(ctx context.Context, sessionID string) (domain.Session, error)
	UpdateSession(ctx context.Context, session domain.Session) error
	// FindSessionByRoomCode only considers sessions that have not ended.
	FindSessionByRoomCode(ctx context.Context, roomCode string) (domain.Session, error)

	// UpsertParticipant keeps JoinedAt and Score of an existing record.
	UpsertParticipant(ctx context.Context, participant domain.Participant) (domain.Participant, error)
	GetParticipant(ctx context.Context, sessionID, userID string) (domain.Participant, error)
	ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error)
	CountParticipants(ctx context.Context, sessionID string) (int, error)

	// RecordAnswer stores the answer and adds its score to the participant in one
	// transaction, returning the new total. Nothing is written when it fails.
	RecordAnswer(ctx context.Context, answer domain.Answer) (int, error)
	ListAnswers(ctx context.Context, sessionID string, generation int64, questionIndex int) ([]domain.Answer, error)
	// ResetProgress deletes every answer of the session and zeroes participant scores.
	ResetProgress(ctx context.Context, sessionID string) error

	AddSessionBan(ctx context.Context, ban domain.SessionBan) error
	IsSessionBanned(ctx context.Context, sessionID, userID string, now time.Time) (bool, error)
	AddPermanentBan(ctx context.Context, ban domain.PermanentBan) error
	IsPermanentlyBanned(ctx context.Context, hostID, userID string) (bool, error)
}

// FreshSessionReader is implemented by stores that may serve GetSession from a
// cache. GetSessionFresh always reads the durable record.
type FreshSessionReader interface {
	GetSessionFresh(ctx context.Context, sessionID string) (domain.Session, error)
}

// ConnectionKey identifies the single canonical connection of a user in a session.
type ConnectionKey struct {
	SessionID string
	UserID    string
	Role      domain.Role
}

// Cache is the optional fast path. Every method is best-effort; callers log failures.
type Cache interface {
	GetSession(ctx context.Context, sessionID string) (domain.Session, bool, error)
	// SetSession keeps an entry whose Revision is higher than session.Revision.
	SetSession(ctx context.Context, session domain.Session, ttl time.Duration) error
	DeleteSession(ctx context.Context, sessionID string) error

	SetScore(ctx context.Context, sessionID string, entry domain.ScoreEntry) error
	// TopScores returns entries by score descending; limit <= 0 returns all.
	// Callers rank ties themselves using ScoreEntry.JoinedAt.
	TopScores(ctx context.Context, sessionID string, limit int) ([]domain.ScoreEntry, error)
	ResetLeaderboard(ctx context.Context, sessionID string) error

	SetConnection(ctx context.Context, key ConnectionKey, connectionID string) error
	GetConnection(ctx context.Context, key ConnectionKey) (string, bool, error)
	// DeleteConnection removes the entry only while it still points at connectionID.
	DeleteConnection(ctx context.Context, key ConnectionKey, connectionID string) error

	AddSessionBan(ctx context.Context, sessionID, userID string, ttl time.Duration) error
	IsSessionBanned(ctx context.Context, sessionID, userID string) (bool, error)
}

// RateLimiter admits at most a fixed number of events per key within a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Broadcaster is implemented by the connection gateway (avoids an import cycle).
type Broadcaster interface {
	Broadcast(sessionID, event string, payload any)
	Unicast(connectionID, event string, payload any) error
	ConnectedPlayers(sessionID string) int
	// Evict notifies the user's live connection with event/notice, then closes it.
	Evict(sessionID, userID string, role domain.Role, event string, notice domain.NoticePayload) bool
	// ReleaseSession drops participant room bindings without force-closing sockets.
	ReleaseSession(sessionID string)
}

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(string, string, any)     {}
func (nopBroadcaster) Unicast(string, string, any) error { return domain.ErrConnectionNotFound }
func (nopBroadcaster) ConnectedPlayers(string) int       { return 0 }
func (nopBroadcaster) ReleaseSession(string)             {}
func (nopBroadcaster) Evict(string, string, domain.Role, string, domain.NoticePayload) bool {
	return false
}
