package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/scoring"
	"live-quiz-service/internal/shuffle"
)

const (
	roomCodeAttempts = 50
	roomCodeDigits   = 6
)

// Options tunes the engine. Zero values fall back to defaults.
type Options struct {
	DisplayDelay           time.Duration
	SettleDelay            time.Duration
	DefaultMaxParticipants int
	BanTTL                 time.Duration
	Clock                  clockwork.Clock
	Shuffler               *shuffle.Shuffler
	// AnswerLimiter throttles submissions per (session, user); nil disables it.
	AnswerLimiter RateLimiter
}

func (o Options) withDefaults() Options {
	if o.DisplayDelay <= 0 {
		o.DisplayDelay = 3 * time.Second
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = 500 * time.Millisecond
	}
	if o.DefaultMaxParticipants <= 0 {
		o.DefaultMaxParticipants = 500
	}
	if o.BanTTL <= 0 {
		o.BanTTL = 24 * time.Hour
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Shuffler == nil {
		o.Shuffler = shuffle.New()
	}
	return o
}

// Engine owns the session lifecycle: phase transitions, answer intake and the
// broadcasts that accompany them. Mutations of one session are serialized.
type Engine struct {
	store       Store
	leaderboard *Leaderboard
	bans        *BanRegistry
	aggregator  *Aggregator
	shuffler    *shuffle.Shuffler
	limiter     RateLimiter
	clock       clockwork.Clock
	opts        Options
	logger      zerolog.Logger

	bmu         sync.RWMutex
	broadcaster Broadcaster

	lmu   sync.Mutex
	locks map[string]*sessionLock

	rmu sync.Mutex
	rnd *rand.Rand
}

func NewEngine(store Store, leaderboard *Leaderboard, logger zerolog.Logger, opts Options) *Engine {
	opts = opts.withDefaults()
	e := &Engine{
		store:       store,
		leaderboard: leaderboard,
		shuffler:    opts.Shuffler,
		limiter:     opts.AnswerLimiter,
		clock:       opts.Clock,
		opts:        opts,
		logger:      logger.With().Str("component", "engine").Logger(),
		broadcaster: nopBroadcaster{},
		locks:       make(map[string]*sessionLock),
		rnd:         rand.New(rand.NewSource(opts.Clock.Now().UnixNano())),
	}
	e.bans = NewBanRegistry(store, opts.Clock, opts.BanTTL, logger)
	e.aggregator = NewAggregator(opts.Clock, opts.SettleDelay, e.autoEndQuestion)
	return e
}

// SetBroadcaster wires the connection gateway after construction.
func (e *Engine) SetBroadcaster(b Broadcaster) {
	if b == nil {
		b = nopBroadcaster{}
	}
	e.bmu.Lock()
	e.broadcaster = b
	e.bmu.Unlock()
	e.bans.setEvictor(b)
}

func (e *Engine) Bans() *BanRegistry { return e.bans }

func (e *Engine) Leaderboard() *Leaderboard { return e.leaderboard }

func (e *Engine) gateway() Broadcaster {
	e.bmu.RLock()
	defer e.bmu.RUnlock()
	return e.broadcaster
}

// sessionLock serializes mutations of one session. refs counts holders and
// waiters; the entry is dropped when it reaches zero.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func (e *Engine) lock(sessionID string) func() {
	e.lmu.Lock()
	l, ok := e.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		e.locks[sessionID] = l
	}
	l.refs++
	e.lmu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.lmu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, sessionID)
		}
		e.lmu.Unlock()
	}
}

// load reads the session for a mutation made under its lock, bypassing any
// read cache so decisions are taken on the durable record.
func (e *Engine) load(ctx context.Context, sessionID string) (domain.Session, error) {
	if fresh, ok := e.store.(FreshSessionReader); ok {
		return fresh.GetSessionFresh(ctx, sessionID)
	}
	return e.store.GetSession(ctx, sessionID)
}

func (e *Engine) save(ctx context.Context, session *domain.Session) error {
	session.Revision++
	return e.store.UpdateSession(ctx, *session)
}

// CreateSessionRequest describes a new hosted run.
type CreateSessionRequest struct {
	HostID          string            `json:"hostId"`
	QuizRef         string            `json:"quizRef"`
	Questions       []domain.Question `json:"questions"`
	MaxParticipants int               `json:"maxParticipants"`
	ScoreAlpha      float64           `json:"scoreAlpha"`
}

// CreateSession stores a lobby session with a unique six digit room code.
func (e *Engine) CreateSession(ctx context.Context, req CreateSessionRequest) (domain.Session, error) {
	if req.HostID == "" || len(req.Questions) == 0 {
		return domain.Session{}, domain.ErrInvalidInput
	}
	for _, q := range req.Questions {
		if len(q.Choices) == 0 {
			return domain.Session{}, domain.ErrInvalidInput
		}
	}
	maxParticipants := req.MaxParticipants
	if maxParticipants <= 0 {
		maxParticipants = e.opts.DefaultMaxParticipants
	}

	session := domain.Session{
		ID:              uuid.NewString(),
		HostID:          req.HostID,
		Status:          domain.StatusLobby,
		QuizRef:         req.QuizRef,
		Questions:       req.Questions,
		ScoreAlpha:      req.ScoreAlpha,
		MaxParticipants: maxParticipants,
		CreatedAt:       e.clock.Now().UTC(),
		Revision:        1,
	}

	for attempt := 0; attempt < roomCodeAttempts; attempt++ {
		session.RoomCode = e.roomCode()
		if _, err := e.store.FindSessionByRoomCode(ctx, session.RoomCode); err == nil {
			continue
		} else if !errors.Is(err, domain.ErrRoomNotFound) {
			return domain.Session{}, err
		}
		err := e.store.CreateSession(ctx, session)
		if errors.Is(err, ErrRoomCodeInUse) {
			continue
		}
		if err != nil {
			return domain.Session{}, err
		}
		e.logger.Info().Str("session_id", session.ID).Str("room_code", session.RoomCode).Str("host_id", session.HostID).Msg("session created")
		return session, nil
	}
	return domain.Session{}, domain.ErrRoomCodeExhausted
}

func (e *Engine) roomCode() string {
	e.rmu.Lock()
	n := e.rnd.Intn(900000) + 100000
	e.rmu.Unlock()
	return fmt.Sprintf("%0*d", roomCodeDigits, n)
}

// SessionByRoomCode resolves a live room code.
func (e *Engine) SessionByRoomCode(ctx context.Context, roomCode string) (domain.Session, error) {
	return e.store.FindSessionByRoomCode(ctx, roomCode)
}

// Snapshot returns the current durable session record.
func (e *Engine) Snapshot(ctx context.Context, sessionID string) (domain.Session, error) {
	return e.store.GetSession(ctx, sessionID)
}

// Start moves a lobby session into play and opens the first question.
func (e *Engine) Start(ctx context.Context, sessionID string) error {
	unlock := e.lock(sessionID)
	defer unlock()

	session, err := e.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != domain.StatusLobby {
		return domain.ErrInvalidTransition
	}

	if err := e.store.ResetProgress(ctx, sessionID); err != nil {
		return err
	}
	e.aggregator.Forget(sessionID)
	roster, err := e.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return err
	}
	e.leaderboard.Reset(ctx, sessionID, roster)

	now := e.clock.Now().UTC()
	session.Generation++
	session.Status = domain.StatusPlaying
	session.StartedAt = &now
	session.EndedAt = nil
	session.CurrentQuestionIndex = 0

	e.logger.Info().Str("session_id", sessionID).Int64("generation", session.Generation).Msg("session started")
	return e.startQuestionLocked(ctx, &session, 0)
}

// StartQuestion opens question index from playing or results.
func (e *Engine) StartQuestion(ctx context.Context, sessionID string, index int) error {
	unlock := e.lock(sessionID)
	defer unlock()

	session, err := e.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != domain.StatusPlaying && session.Status != domain.StatusResults {
		return domain.ErrInvalidTransition
	}
	return e.startQuestionLocked(ctx, &session, index)
}

func (e *Engine) startQuestionLocked(ctx context.Context, session *domain.Session, index int) error {
	if index < 0 || index >= len(session.Questions) {
		return domain.ErrQuestionNotFound
	}
	q := session.Questions[index]
	presented, mapping := e.shuffler.Shuffle(q.Choices)

	session.CurrentQuestionIndex = index
	session.ChoiceMapping = []int(mapping)
	session.QuestionStartTime = scoring.EpochSeconds(e.clock.Now().Add(e.opts.DisplayDelay))
	session.Status = domain.StatusQuestion
	if err := e.save(ctx, session); err != nil {
		return err
	}

	e.gateway().Broadcast(session.ID, domain.EventQuestionStart, questionStartPayload(*session, q, presented, false))
	e.logger.Info().
		Str("session_id", session.ID).
		Int64("generation", session.Generation).
		Int("question_index", index).
		Msg("question started")
	return nil
}

func questionStartPayload(session domain.Session, q domain.Question, presented []domain.Choice, resync bool) domain.QuestionStartPayload {
	texts := make([]string, len(presented))
	for i, c := range presented {
		texts[i] = c.Text
	}
	return domain.QuestionStartPayload{
		QuestionIndex: session.CurrentQuestionIndex,
		Question: domain.PresentedQuestion{
			Text:       q.Text,
			Choices:    texts,
			TimeLimit:  q.TimeLimitSeconds,
			BasePoints: q.BasePoints,
		},
		StartTime:      session.QuestionStartTime,
		TimeLimit:      q.TimeLimitSeconds,
		TotalQuestions: len(session.Questions),
		Resync:         resync,
	}
}

// EndQuestion closes the open question and reveals results.
func (e *Engine) EndQuestion(ctx context.Context, sessionID string) error {
	unlock := e.lock(sessionID)
	defer unlock()

	session, err := e.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != domain.StatusQuestion {
		return domain.ErrInvalidTransition
	}
	return e.endQuestionLocked(ctx, &session)
}

func (e *Engine) endQuestionLocked(ctx context.Context, session *domain.Session) error {
	q, ok := session.CurrentQuestion()
	if !ok {
		return domain.ErrQuestionNotFound
	}
	mapping := currentMapping(*session, q)

	correct := -1
	if original := q.CorrectIndex(); original >= 0 {
		if p, ok := mapping.Presented(original); ok {
			correct = p
		}
	}

	answers, err := e.store.ListAnswers(ctx, session.ID, session.Generation, session.CurrentQuestionIndex)
	if err != nil {
		return err
	}
	stats := domain.QuestionStats{Distribution: make([]int, len(q.Choices))}
	perParticipant := make(map[string]int, len(answers))
	for _, a := range answers {
		stats.AnsweredCount++
		if a.IsCorrect {
			stats.CorrectCount++
		}
		if p, ok := mapping.Presented(a.ChoiceID); ok {
			stats.Distribution[p]++
		}
		perParticipant[a.UserID] = a.Score
	}

	session.Status = domain.StatusResults
	if err := e.save(ctx, session); err != nil {
		return err
	}

	board, err := e.leaderboard.Get(ctx, session.ID, 0)
	if err != nil {
		e.logger.Warn().Err(err).Str("session_id", session.ID).Msg("leaderboard unavailable at question end")
		board = []domain.LeaderboardEntry{}
	}

	e.gateway().Broadcast(session.ID, domain.EventQuestionEnd, domain.QuestionEndPayload{
		QuestionIndex:       session.CurrentQuestionIndex,
		CorrectAnswer:       correct,
		Leaderboard:         board,
		PerParticipantScore: perParticipant,
		Stats:               stats,
		TotalQuestions:      len(session.Questions),
		IsLastQuestion:      session.CurrentQuestionIndex == len(session.Questions)-1,
	})
	e.logger.Info().
		Str("session_id", session.ID).
		Int64("generation", session.Generation).
		Int("question_index", session.CurrentQuestionIndex).
		Int("answered", stats.AnsweredCount).
		Msg("question ended")
	return nil
}

func currentMapping(session domain.Session, q domain.Question) shuffle.Mapping {
	m := shuffle.Mapping(session.ChoiceMapping)
	if len(m) != len(q.Choices) || !m.IsPermutation() {
		return shuffle.Identity(len(q.Choices))
	}
	return m
}

// NextQuestion advances from results, ending the session after the last question.
func (e *Engine) NextQuestion(ctx context.Context, sessionID string) error {
	unlock := e.lock(sessionID)
	defer unlock()

	session, err := e.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != domain.StatusResults {
		return domain.ErrInvalidTransition
	}
	next := session.CurrentQuestionIndex + 1
	if next >= len(session.Questions) {
		return e.endSessionLocked(ctx, &session)
	}
	return e.startQuestionLocked(ctx, &session, next)
}

// EndSession force-ends a session from any non-ended phase.
func (e *Engine) EndSession(ctx context.Context, sessionID string) error {
	unlock := e.lock(sessionID)
	defer unlock()

	session, err := e.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status == domain.StatusEnded {
		return domain.ErrSessionEnded
	}
	return e.endSessionLocked(ctx, &session)
}

func (e *Engine) endSessionLocked(ctx context.Context, session *domain.Session) error {
	now := e.clock.Now().UTC()
	session.Status = domain.StatusEnded
	session.EndedAt = &now
	session.ChoiceMapping = nil
	if err := e.save(ctx, session); err != nil {
		return err
	}
	e.aggregator.Forget(session.ID)

	board, err := e.leaderboard.Get(ctx, session.ID, 0)
	if err != nil {
		e.logger.Warn().Err(err).Str("session_id", session.ID).Msg("leaderboard unavailable at session end")
		board = []domain.LeaderboardEntry{}
	}
	gw := e.gateway()
	gw.Broadcast(session.ID, domain.EventSessionEnd, domain.SessionEndPayload{Leaderboard: board})
	gw.ReleaseSession(session.ID)

	e.logger.Info().Str("session_id", session.ID).Int64("generation", session.Generation).Msg("session ended")
	return nil
}

// Replay returns a played session to the lobby under a new generation.
func (e *Engine) Replay(ctx context.Context, sessionID string) error {
	unlock := e.lock(sessionID)
	defer unlock()

	session, err := e.load(ctx, sessionID)
	if err != nil {
		return err
	}
	switch session.Status {
	case domain.StatusEnded, domain.StatusPlaying, domain.StatusQuestion, domain.StatusResults:
	default:
		return domain.ErrInvalidTransition
	}

	if err := e.store.ResetProgress(ctx, sessionID); err != nil {
		return err
	}
	e.aggregator.Forget(sessionID)
	roster, err := e.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return err
	}
	e.leaderboard.Reset(ctx, sessionID, roster)

	session.PreviousQuizRef = session.QuizRef
	session.Generation++
	session.Status = domain.StatusLobby
	session.CurrentQuestionIndex = 0
	session.ChoiceMapping = nil
	session.QuestionStartTime = 0
	session.StartedAt = nil
	session.EndedAt = nil
	if err := e.save(ctx, &session); err != nil {
		return err
	}

	e.gateway().Broadcast(sessionID, domain.EventReplay, domain.ReplayPayload{SessionID: sessionID, Generation: session.Generation})
	e.logger.Info().Str("session_id", sessionID).Int64("generation", session.Generation).Msg("session replayed")
	return nil
}

// AnswerRequest is a submission in presented-index space. Nil fields were absent.
type AnswerRequest struct {
	QuestionIndex *int    `json:"questionIndex"`
	ChoiceID      *int    `json:"choiceId"`
	ClientTime    float64 `json:"clientTime,omitempty"`
}

// SubmitAnswer validates, scores and records one answer.
func (e *Engine) SubmitAnswer(ctx context.Context, sessionID, userID string, req AnswerRequest) (domain.AnswerReceivedPayload, error) {
	receivedAt := e.clock.Now()

	if e.limiter != nil {
		allowed, err := e.limiter.Allow(ctx, "answer:"+sessionID+":"+userID)
		if err != nil {
			e.logger.Warn().Err(err).Str("session_id", sessionID).Msg("answer limiter unavailable")
		} else if !allowed {
			return domain.AnswerReceivedPayload{}, domain.ErrRateLimited
		}
	}

	unlock := e.lock(sessionID)
	defer unlock()

	session, err := e.load(ctx, sessionID)
	if err != nil {
		return domain.AnswerReceivedPayload{}, err
	}
	if session.Status != domain.StatusQuestion {
		return domain.AnswerReceivedPayload{}, domain.ErrNotAcceptingAnswers
	}
	if req.QuestionIndex == nil || req.ChoiceID == nil {
		return domain.AnswerReceivedPayload{}, domain.ErrMissingFields
	}
	if *req.QuestionIndex != session.CurrentQuestionIndex {
		return domain.AnswerReceivedPayload{}, domain.ErrNotAcceptingAnswers
	}
	q, ok := session.CurrentQuestion()
	if !ok {
		return domain.AnswerReceivedPayload{}, domain.ErrQuestionNotFound
	}
	participant, err := e.store.GetParticipant(ctx, sessionID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrParticipantNotFound) {
			return domain.AnswerReceivedPayload{}, domain.ErrNotJoined
		}
		return domain.AnswerReceivedPayload{}, err
	}

	original, ok := currentMapping(session, q).Original(*req.ChoiceID)
	if !ok {
		return domain.AnswerReceivedPayload{}, domain.ErrInvalidChoice
	}
	timeTaken := scoring.TimeTaken(session.QuestionStartTime, receivedAt)
	sub := scoring.Submission{QuestionIndex: req.QuestionIndex, ChoiceID: &original, TimeTaken: timeTaken}
	if err := scoring.Validate(sub, q); err != nil {
		return domain.AnswerReceivedPayload{}, err
	}

	correct := scoring.IsCorrect(original, q)
	points := 0
	if correct {
		points = scoring.Score(q.BasePoints, q.TimeLimitSeconds, timeTaken)
	}

	answer := domain.Answer{
		SessionID:        sessionID,
		UserID:           userID,
		Generation:       session.Generation,
		QuestionIndex:    session.CurrentQuestionIndex,
		ChoiceID:         original,
		IsCorrect:        correct,
		TimeTakenSeconds: timeTaken,
		Score:            points,
		SubmittedAt:      receivedAt.UTC(),
	}
	total, err := e.store.RecordAnswer(ctx, answer)
	if err != nil {
		return domain.AnswerReceivedPayload{}, err
	}
	if points > 0 {
		participant.Score = total
		e.leaderboard.Record(ctx, sessionID, participant)
	}

	gw := e.gateway()
	players := gw.ConnectedPlayers(sessionID)
	key := AggregatorKey{SessionID: sessionID, Generation: session.Generation, QuestionIndex: session.CurrentQuestionIndex}
	count := e.aggregator.Record(key, userID, players)
	gw.Broadcast(sessionID, domain.EventAnswerSubmitted, domain.AnswerSubmittedPayload{
		UserID:        userID,
		AnsweredCount: count,
		TotalPlayers:  players,
	})

	e.logger.Debug().
		Str("session_id", sessionID).
		Str("user_id", userID).
		Int("question_index", session.CurrentQuestionIndex).
		Float64("time_taken", timeTaken).
		Float64("client_time", req.ClientTime).
		Int("score", points).
		Msg("answer accepted")

	return domain.AnswerReceivedPayload{
		QuestionIndex: session.CurrentQuestionIndex,
		IsCorrect:     correct,
		Score:         points,
		TimeTaken:     timeTaken,
		TotalScore:    total,
	}, nil
}

// autoEndQuestion closes the question once quorum settled, if nothing moved on meanwhile.
func (e *Engine) autoEndQuestion(key AggregatorKey) {
	ctx := context.Background()
	unlock := e.lock(key.SessionID)
	defer unlock()

	session, err := e.load(ctx, key.SessionID)
	if err != nil {
		e.logger.Warn().Err(err).Str("session_id", key.SessionID).Msg("quorum auto-end lookup failed")
		return
	}
	if session.Status != domain.StatusQuestion ||
		session.Generation != key.Generation ||
		session.CurrentQuestionIndex != key.QuestionIndex {
		return
	}
	if err := e.endQuestionLocked(ctx, &session); err != nil {
		e.logger.Error().Err(err).Str("session_id", key.SessionID).Msg("quorum auto-end failed")
		return
	}
	e.logger.Info().Str("session_id", key.SessionID).Int("question_index", key.QuestionIndex).Msg("question auto-ended on quorum")
}

// Join admits p.UserID in role and, for players, upserts the roster entry.
// The capacity check and the upsert run under the session lock so concurrent
// joins cannot overfill a session.
func (e *Engine) Join(ctx context.Context, p domain.Participant, role domain.Role) (domain.Session, error) {
	if !role.Valid() {
		return domain.Session{}, domain.ErrInvalidInput
	}
	unlock := e.lock(p.SessionID)
	defer unlock()

	session, err := e.load(ctx, p.SessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if err := e.admit(ctx, session, p.UserID, role); err != nil {
		return domain.Session{}, err
	}
	if role == domain.RoleHost {
		return session, nil
	}

	if p.JoinedAt.IsZero() {
		p.JoinedAt = e.clock.Now().UTC()
	}
	stored, err := e.store.UpsertParticipant(ctx, p)
	if err != nil {
		return domain.Session{}, err
	}
	e.leaderboard.Record(ctx, p.SessionID, stored)
	return session, nil
}

func (e *Engine) admit(ctx context.Context, session domain.Session, userID string, role domain.Role) error {
	if role == domain.RoleHost {
		if userID != session.HostID {
			return domain.ErrNotHost
		}
		return nil
	}
	if session.Status == domain.StatusEnded {
		return domain.ErrSessionEnded
	}
	if err := e.bans.CheckJoin(ctx, session, userID); err != nil {
		return err
	}
	if _, err := e.store.GetParticipant(ctx, session.ID, userID); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrParticipantNotFound) {
		return err
	}
	count, err := e.store.CountParticipants(ctx, session.ID)
	if err != nil {
		return err
	}
	if session.MaxParticipants > 0 && count >= session.MaxParticipants {
		return domain.ErrSessionFull
	}
	return nil
}

// Resync returns the open question for a reconnecting client, or false outside the question phase.
func (e *Engine) Resync(ctx context.Context, sessionID string) (domain.QuestionStartPayload, bool, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.QuestionStartPayload{}, false, err
	}
	if session.Status != domain.StatusQuestion {
		return domain.QuestionStartPayload{}, false, nil
	}
	q, ok := session.CurrentQuestion()
	if !ok {
		return domain.QuestionStartPayload{}, false, nil
	}
	presented := currentMapping(session, q).Apply(q.Choices)
	return questionStartPayload(session, q, presented, true), true, nil
}

// ParticipantLeft re-evaluates quorum after a player disconnected mid-question.
func (e *Engine) ParticipantLeft(ctx context.Context, sessionID string) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil || session.Status != domain.StatusQuestion {
		return
	}
	key := AggregatorKey{SessionID: sessionID, Generation: session.Generation, QuestionIndex: session.CurrentQuestionIndex}
	e.aggregator.Evaluate(key, e.gateway().ConnectedPlayers(sessionID))
}

// ScoreBoard returns the ranked leaderboard of a session.
func (e *Engine) ScoreBoard(ctx context.Context, sessionID string, limit int) ([]domain.LeaderboardEntry, error) {
	if _, err := e.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return e.leaderboard.Get(ctx, sessionID, limit)
}
