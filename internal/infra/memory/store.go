package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

type answerKey struct {
	sessionID     string
	generation    int64
	questionIndex int
	userID        string
}

type banKey struct {
	scope  string
	userID string
}

// Store is an in-process implementation of app.Store.
type Store struct {
	mu           sync.RWMutex
	sessions     map[string]domain.Session
	participants map[string]map[string]domain.Participant
	answers      map[answerKey]domain.Answer
	sessionBans  map[banKey]time.Time
	permanent    map[banKey]time.Time
}

func NewStore() *Store {
	return &Store{
		sessions:     make(map[string]domain.Session),
		participants: make(map[string]map[string]domain.Participant),
		answers:      make(map[answerKey]domain.Answer),
		sessionBans:  make(map[banKey]time.Time),
		permanent:    make(map[banKey]time.Time),
	}
}

var _ app.Store = (*Store)(nil)

func (s *Store) CreateSession(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sessions {
		if existing.RoomCode == session.RoomCode && existing.Status != domain.StatusEnded {
			return app.ErrRoomCodeInUse
		}
	}
	s.sessions[session.ID] = cloneSession(session)
	return nil
}

func (s *Store) GetSession(_ context.Context, sessionID string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return cloneSession(session), nil
}

func (s *Store) UpdateSession(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; !ok {
		return domain.ErrSessionNotFound
	}
	s.sessions[session.ID] = cloneSession(session)
	return nil
}

func (s *Store) FindSessionByRoomCode(_ context.Context, roomCode string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, session := range s.sessions {
		if session.RoomCode == roomCode && session.Status != domain.StatusEnded {
			return cloneSession(session), nil
		}
	}
	return domain.Session{}, domain.ErrRoomNotFound
}

func (s *Store) UpsertParticipant(_ context.Context, p domain.Participant) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[p.SessionID]; !ok {
		return domain.Participant{}, domain.ErrSessionNotFound
	}
	roster, ok := s.participants[p.SessionID]
	if !ok {
		roster = make(map[string]domain.Participant)
		s.participants[p.SessionID] = roster
	}
	if existing, ok := roster[p.UserID]; ok {
		p.JoinedAt = existing.JoinedAt
		p.Score = existing.Score
	}
	roster[p.UserID] = p
	return p, nil
}

func (s *Store) GetParticipant(_ context.Context, sessionID, userID string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[sessionID][userID]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return p, nil
}

func (s *Store) ListParticipants(_ context.Context, sessionID string) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roster := s.participants[sessionID]
	out := make([]domain.Participant, 0, len(roster))
	for _, p := range roster {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (s *Store) CountParticipants(_ context.Context, sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.participants[sessionID]), nil
}

func (s *Store) RecordAnswer(_ context.Context, a domain.Answer) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[a.SessionID][a.UserID]
	if !ok {
		return 0, domain.ErrParticipantNotFound
	}
	key := answerKey{a.SessionID, a.Generation, a.QuestionIndex, a.UserID}
	if _, exists := s.answers[key]; exists {
		return 0, domain.ErrAlreadyAnswered
	}
	s.answers[key] = a
	p.Score += a.Score
	s.participants[a.SessionID][a.UserID] = p
	return p.Score, nil
}

func (s *Store) ListAnswers(_ context.Context, sessionID string, generation int64, questionIndex int) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Answer
	for key, a := range s.answers {
		if key.sessionID == sessionID && key.generation == generation && key.questionIndex == questionIndex {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func (s *Store) ResetProgress(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.answers {
		if key.sessionID == sessionID {
			delete(s.answers, key)
		}
	}
	for id, p := range s.participants[sessionID] {
		p.Score = 0
		s.participants[sessionID][id] = p
	}
	return nil
}

func (s *Store) AddSessionBan(_ context.Context, ban domain.SessionBan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionBans[banKey{ban.SessionID, ban.UserID}] = ban.ExpiresAt
	return nil
}

func (s *Store) IsSessionBanned(_ context.Context, sessionID, userID string, now time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	expiresAt, ok := s.sessionBans[banKey{sessionID, userID}]
	return ok && expiresAt.After(now), nil
}

func (s *Store) AddPermanentBan(_ context.Context, ban domain.PermanentBan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := banKey{ban.HostID, ban.UserID}
	if _, ok := s.permanent[key]; !ok {
		s.permanent[key] = ban.CreatedAt
	}
	return nil
}

func (s *Store) IsPermanentlyBanned(_ context.Context, hostID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.permanent[banKey{hostID, userID}]
	return ok, nil
}

// cloneSession copies slices so callers never alias stored state.
func cloneSession(s domain.Session) domain.Session {
	if s.Questions != nil {
		qs := make([]domain.Question, len(s.Questions))
		for i, q := range s.Questions {
			q.Choices = append([]domain.Choice(nil), q.Choices...)
			qs[i] = q
		}
		s.Questions = qs
	}
	if s.ChoiceMapping != nil {
		s.ChoiceMapping = append([]int(nil), s.ChoiceMapping...)
	}
	return s
}
