package app_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/cacheaside"
	"live-quiz-service/internal/infra/memory"
	"live-quiz-service/internal/shuffle"
)

type sent struct {
	event   string
	payload any
}

type fakeGateway struct {
	mu       sync.Mutex
	events   map[string][]sent
	players  int
	evicted  []string
	released []string
	live     map[string]bool
}

func newFakeGateway(players int) *fakeGateway {
	return &fakeGateway{events: make(map[string][]sent), players: players, live: make(map[string]bool)}
}

func (g *fakeGateway) Broadcast(sessionID, event string, payload any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events[sessionID] = append(g.events[sessionID], sent{event, payload})
}

func (g *fakeGateway) Unicast(string, string, any) error { return nil }

func (g *fakeGateway) ConnectedPlayers(string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.players
}

func (g *fakeGateway) Evict(sessionID, userID string, _ domain.Role, event string, notice domain.NoticePayload) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.evicted = append(g.evicted, userID+":"+notice.Reason)
	return g.live[userID]
}

func (g *fakeGateway) ReleaseSession(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.released = append(g.released, sessionID)
}

func (g *fakeGateway) setPlayers(n int) {
	g.mu.Lock()
	g.players = n
	g.mu.Unlock()
}

func (g *fakeGateway) last(sessionID, event string) (any, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	list := g.events[sessionID]
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].event == event {
			return list[i].payload, true
		}
	}
	return nil, false
}

func (g *fakeGateway) count(sessionID, event string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, s := range g.events[sessionID] {
		if s.event == event {
			n++
		}
	}
	return n
}

type harness struct {
	engine *app.Engine
	store  app.Store
	cache  *memory.Cache
	clock  *clockwork.FakeClock
	gw     *fakeGateway
}

func newHarness(t *testing.T, players int) *harness {
	t.Helper()
	return newHarnessWith(t, players, func(app.Store, app.Cache, clockwork.Clock) app.Store { return nil })
}

// newHarnessWith lets a test wrap the in-memory store; wrap returning nil keeps it bare.
func newHarnessWith(t *testing.T, players int, wrap func(app.Store, app.Cache, clockwork.Clock) app.Store) *harness {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	cache := memory.NewCache(clock)
	var store app.Store = memory.NewStore()
	if wrapped := wrap(store, cache, clock); wrapped != nil {
		store = wrapped
	}
	lb := app.NewLeaderboard(store, cache, clock, 30*time.Second, zerolog.Nop())
	engine := app.NewEngine(store, lb, zerolog.Nop(), app.Options{
		DisplayDelay: 3 * time.Second,
		SettleDelay:  500 * time.Millisecond,
		Clock:        clock,
		Shuffler:     shuffle.NewWithSource(rand.NewSource(3)),
	})
	gw := newFakeGateway(players)
	engine.SetBroadcaster(gw)
	return &harness{engine: engine, store: store, cache: cache, clock: clock, gw: gw}
}

func quiz() []domain.Question {
	return []domain.Question{
		{
			Text:             "Capital of France?",
			Choices:          []domain.Choice{{Text: "Paris", IsCorrect: true}, {Text: "Rome"}, {Text: "Madrid"}, {Text: "Berlin"}},
			TimeLimitSeconds: 20,
			BasePoints:       1000,
		},
		{
			Text:             "2 + 2?",
			Choices:          []domain.Choice{{Text: "3"}, {Text: "4", IsCorrect: true}},
			TimeLimitSeconds: 10,
			BasePoints:       500,
		},
	}
}

func (h *harness) create(t *testing.T) domain.Session {
	t.Helper()
	session, err := h.engine.CreateSession(context.Background(), app.CreateSessionRequest{HostID: "host-1", QuizRef: "quiz-1", Questions: quiz()})
	require.NoError(t, err)
	return session
}

func (h *harness) join(t *testing.T, sessionID string, users ...string) {
	t.Helper()
	for _, u := range users {
		_, err := h.engine.Join(context.Background(), domain.Participant{SessionID: sessionID, UserID: u, DisplayName: u}, domain.RolePlayer)
		require.NoError(t, err)
		h.clock.Advance(time.Millisecond)
	}
}

// presentedCorrect returns the presented index of the correct choice of the open question.
func (h *harness) presentedCorrect(t *testing.T, sessionID string) int {
	t.Helper()
	session, err := h.engine.Snapshot(context.Background(), sessionID)
	require.NoError(t, err)
	q, ok := session.CurrentQuestion()
	require.True(t, ok)
	p, ok := shuffle.Mapping(session.ChoiceMapping).Presented(q.CorrectIndex())
	require.True(t, ok)
	return p
}

func ptr(i int) *int { return &i }

func TestCreateSessionAssignsRoomCode(t *testing.T) {
	h := newHarness(t, 0)
	session := h.create(t)

	require.Len(t, session.RoomCode, 6)
	require.Equal(t, domain.StatusLobby, session.Status)
	require.Equal(t, 500, session.MaxParticipants)

	found, err := h.engine.SessionByRoomCode(context.Background(), session.RoomCode)
	require.NoError(t, err)
	require.Equal(t, session.ID, found.ID)

	_, err = h.engine.CreateSession(context.Background(), app.CreateSessionRequest{HostID: "h"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestLifecycleTransitions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 2)
	s := h.create(t)
	h.join(t, s.ID, "alice", "bob")

	require.ErrorIs(t, h.engine.EndQuestion(ctx, s.ID), domain.ErrInvalidTransition)
	require.ErrorIs(t, h.engine.NextQuestion(ctx, s.ID), domain.ErrInvalidTransition)
	require.ErrorIs(t, h.engine.StartQuestion(ctx, s.ID, 0), domain.ErrInvalidTransition)

	require.NoError(t, h.engine.Start(ctx, s.ID))
	snap, _ := h.engine.Snapshot(ctx, s.ID)
	require.Equal(t, domain.StatusQuestion, snap.Status)
	require.Equal(t, int64(1), snap.Generation)
	require.True(t, shuffle.Mapping(snap.ChoiceMapping).IsPermutation())
	require.ErrorIs(t, h.engine.Start(ctx, s.ID), domain.ErrInvalidTransition)

	payload, ok := h.gw.last(s.ID, domain.EventQuestionStart)
	require.True(t, ok)
	start := payload.(domain.QuestionStartPayload)
	require.Len(t, start.Question.Choices, 4)
	require.Equal(t, 2, start.TotalQuestions)
	require.InDelta(t, float64(h.clock.Now().Add(3*time.Second).UnixNano())/1e9, start.StartTime, 0.001)

	require.NoError(t, h.engine.EndQuestion(ctx, s.ID))
	require.ErrorIs(t, h.engine.StartQuestion(ctx, s.ID, 5), domain.ErrQuestionNotFound)
	require.NoError(t, h.engine.NextQuestion(ctx, s.ID))
	snap, _ = h.engine.Snapshot(ctx, s.ID)
	require.Equal(t, 1, snap.CurrentQuestionIndex)

	require.NoError(t, h.engine.EndQuestion(ctx, s.ID))
	end, _ := h.gw.last(s.ID, domain.EventQuestionEnd)
	require.True(t, end.(domain.QuestionEndPayload).IsLastQuestion)

	require.NoError(t, h.engine.NextQuestion(ctx, s.ID))
	snap, _ = h.engine.Snapshot(ctx, s.ID)
	require.Equal(t, domain.StatusEnded, snap.Status)
	require.NotNil(t, snap.EndedAt)
	require.Equal(t, 1, h.gw.count(s.ID, domain.EventSessionEnd))
	require.Equal(t, []string{s.ID}, h.gw.released)

	require.ErrorIs(t, h.engine.EndSession(ctx, s.ID), domain.ErrSessionEnded)
}

func TestSubmitAnswerScoresAndRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 3)
	s := h.create(t)
	h.join(t, s.ID, "alice", "bob", "carol")
	require.NoError(t, h.engine.Start(ctx, s.ID))

	correct := h.presentedCorrect(t, s.ID)

	// Display delay elapsed plus 10.5s of a 20s question: 1000 * (1 - 9.5/19) = 500.
	h.clock.Advance(3*time.Second + 10500*time.Millisecond)
	res, err := h.engine.SubmitAnswer(ctx, s.ID, "alice", app.AnswerRequest{QuestionIndex: ptr(0), ChoiceID: ptr(correct)})
	require.NoError(t, err)
	require.True(t, res.IsCorrect)
	require.Equal(t, 500, res.Score)
	require.Equal(t, 500, res.TotalScore)

	_, err = h.engine.SubmitAnswer(ctx, s.ID, "alice", app.AnswerRequest{QuestionIndex: ptr(0), ChoiceID: ptr(correct)})
	require.ErrorIs(t, err, domain.ErrAlreadyAnswered)

	wrong := (correct + 1) % 4
	res, err = h.engine.SubmitAnswer(ctx, s.ID, "bob", app.AnswerRequest{QuestionIndex: ptr(0), ChoiceID: ptr(wrong)})
	require.NoError(t, err)
	require.False(t, res.IsCorrect)
	require.Equal(t, 0, res.Score)

	_, err = h.engine.SubmitAnswer(ctx, s.ID, "carol", app.AnswerRequest{QuestionIndex: ptr(0)})
	require.ErrorIs(t, err, domain.ErrMissingFields)
	_, err = h.engine.SubmitAnswer(ctx, s.ID, "carol", app.AnswerRequest{QuestionIndex: ptr(0), ChoiceID: ptr(9)})
	require.ErrorIs(t, err, domain.ErrInvalidChoice)
	_, err = h.engine.SubmitAnswer(ctx, s.ID, "carol", app.AnswerRequest{QuestionIndex: ptr(1), ChoiceID: ptr(0)})
	require.ErrorIs(t, err, domain.ErrNotAcceptingAnswers)
	_, err = h.engine.SubmitAnswer(ctx, s.ID, "mallory", app.AnswerRequest{QuestionIndex: ptr(0), ChoiceID: ptr(0)})
	require.ErrorIs(t, err, domain.ErrNotJoined)

	submitted, ok := h.gw.last(s.ID, domain.EventAnswerSubmitted)
	require.True(t, ok)
	require.Equal(t, 2, submitted.(domain.AnswerSubmittedPayload).AnsweredCount)

	require.NoError(t, h.engine.EndQuestion(ctx, s.ID))
	end, _ := h.gw.last(s.ID, domain.EventQuestionEnd)
	qe := end.(domain.QuestionEndPayload)
	require.Equal(t, correct, qe.CorrectAnswer)
	require.Equal(t, 2, qe.Stats.AnsweredCount)
	require.Equal(t, 1, qe.Stats.CorrectCount)
	require.Equal(t, 1, qe.Stats.Distribution[correct])
	require.Equal(t, 500, qe.PerParticipantScore["alice"])
	require.Equal(t, "alice", qe.Leaderboard[0].UserID)

	_, err = h.engine.SubmitAnswer(ctx, s.ID, "carol", app.AnswerRequest{QuestionIndex: ptr(0), ChoiceID: ptr(correct)})
	require.ErrorIs(t, err, domain.ErrNotAcceptingAnswers)
}

func TestSubmitAnswerTiming(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 5)
	s := h.create(t)
	h.join(t, s.ID, "early", "late")
	require.NoError(t, h.engine.Start(ctx, s.ID))
	correct := h.presentedCorrect(t, s.ID)

	// Before the display delay elapsed.
	_, err := h.engine.SubmitAnswer(ctx, s.ID, "early", app.AnswerRequest{QuestionIndex: ptr(0), ChoiceID: ptr(correct)})
	require.ErrorIs(t, err, domain.ErrTooEarly)

	h.clock.Advance(3*time.Second + 23*time.Second)
	_, err = h.engine.SubmitAnswer(ctx, s.ID, "late", app.AnswerRequest{QuestionIndex: ptr(0), ChoiceID: ptr(correct)})
	require.ErrorIs(t, err, domain.ErrTooLate)
}

func TestReplayStartsFreshGeneration(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 5)
	s := h.create(t)
	h.join(t, s.ID, "alice")
	require.NoError(t, h.engine.Start(ctx, s.ID))
	correct := h.presentedCorrect(t, s.ID)
	h.clock.Advance(4 * time.Second)
	_, err := h.engine.SubmitAnswer(ctx, s.ID, "alice", app.AnswerRequest{QuestionIndex: ptr(0), ChoiceID: ptr(correct)})
	require.NoError(t, err)
	answers, err := h.store.ListAnswers(ctx, s.ID, 1, 0)
	require.NoError(t, err)
	require.Len(t, answers, 1)

	require.NoError(t, h.engine.EndSession(ctx, s.ID))
	require.NoError(t, h.engine.Replay(ctx, s.ID))

	snap, _ := h.engine.Snapshot(ctx, s.ID)
	require.Equal(t, domain.StatusLobby, snap.Status)
	require.Equal(t, int64(2), snap.Generation)
	require.Equal(t, "quiz-1", snap.PreviousQuizRef)
	require.Nil(t, snap.EndedAt)
	answers, err = h.store.ListAnswers(ctx, s.ID, 1, 0)
	require.NoError(t, err)
	require.Empty(t, answers)

	p, err := h.store.GetParticipant(ctx, s.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, 0, p.Score)

	board, err := h.engine.ScoreBoard(ctx, s.ID, 0)
	require.NoError(t, err)
	require.Len(t, board, 1)
	require.Equal(t, 0, board[0].Score)

	require.ErrorIs(t, h.engine.Replay(ctx, s.ID), domain.ErrInvalidTransition)

	require.NoError(t, h.engine.Start(ctx, s.ID))
	correct = h.presentedCorrect(t, s.ID)
	h.clock.Advance(4 * time.Second)
	_, err = h.engine.SubmitAnswer(ctx, s.ID, "alice", app.AnswerRequest{QuestionIndex: ptr(0), ChoiceID: ptr(correct)})
	require.NoError(t, err, "same question in a new generation accepts a fresh answer")
}

func TestQuorumAutoEndsQuestion(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 2)
	s := h.create(t)
	h.join(t, s.ID, "alice", "bob")
	require.NoError(t, h.engine.Start(ctx, s.ID))
	correct := h.presentedCorrect(t, s.ID)
	h.clock.Advance(4 * time.Second)

	_, err := h.engine.SubmitAnswer(ctx, s.ID, "alice", app.AnswerRequest{QuestionIndex: ptr(0), ChoiceID: ptr(correct)})
	require.NoError(t, err)
	h.clock.Advance(time.Second)
	require.Equal(t, 0, h.gw.count(s.ID, domain.EventQuestionEnd))

	_, err = h.engine.SubmitAnswer(ctx, s.ID, "bob", app.AnswerRequest{QuestionIndex: ptr(0), ChoiceID: ptr(correct)})
	require.NoError(t, err)
	h.clock.Advance(500 * time.Millisecond)

	require.Eventually(t, func() bool {
		return h.gw.count(s.ID, domain.EventQuestionEnd) == 1
	}, time.Second, 10*time.Millisecond)
	snap, _ := h.engine.Snapshot(ctx, s.ID)
	require.Equal(t, domain.StatusResults, snap.Status)
}

func TestQuorumReevaluatedWhenPlayerLeaves(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 2)
	s := h.create(t)
	h.join(t, s.ID, "alice", "bob")
	require.NoError(t, h.engine.Start(ctx, s.ID))
	correct := h.presentedCorrect(t, s.ID)
	h.clock.Advance(4 * time.Second)

	_, err := h.engine.SubmitAnswer(ctx, s.ID, "alice", app.AnswerRequest{QuestionIndex: ptr(0), ChoiceID: ptr(correct)})
	require.NoError(t, err)

	h.gw.setPlayers(1)
	h.engine.ParticipantLeft(ctx, s.ID)
	h.clock.Advance(500 * time.Millisecond)

	require.Eventually(t, func() bool {
		return h.gw.count(s.ID, domain.EventQuestionEnd) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestJoinRejections(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	session, err := h.engine.CreateSession(ctx, app.CreateSessionRequest{HostID: "host-1", Questions: quiz(), MaxParticipants: 1})
	require.NoError(t, err)
	h.join(t, session.ID, "alice")
	player := func(user string) domain.Participant {
		return domain.Participant{SessionID: session.ID, UserID: user, DisplayName: user}
	}

	_, err = h.engine.Join(ctx, player("intruder"), domain.RoleHost)
	require.ErrorIs(t, err, domain.ErrNotHost)
	_, err = h.engine.Join(ctx, player("host-1"), domain.RoleHost)
	require.NoError(t, err)
	_, err = h.engine.Join(ctx, player("alice"), "spectator")
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = h.engine.Join(ctx, player("bob"), domain.RolePlayer)
	require.ErrorIs(t, err, domain.ErrSessionFull)
	_, err = h.engine.Join(ctx, player("alice"), domain.RolePlayer)
	require.NoError(t, err, "existing participant does not count against capacity")

	require.NoError(t, h.engine.Bans().BanFromSession(ctx, session.ID, "alice"))
	_, err = h.engine.Join(ctx, player("alice"), domain.RolePlayer)
	require.ErrorIs(t, err, domain.ErrBannedFromSession)
	require.Contains(t, h.gw.evicted, "alice:banned")

	require.NoError(t, h.engine.Bans().BanPermanently(ctx, "host-1", "bob"))
	_, err = h.engine.Join(ctx, player("bob"), domain.RolePlayer)
	require.ErrorIs(t, err, domain.ErrBannedPermanently)

	h.clock.Advance(25 * time.Hour)
	_, err = h.engine.Join(ctx, player("alice"), domain.RolePlayer)
	require.NoError(t, err, "session ban expires after its ttl")

	_, err = h.engine.Join(ctx, domain.Participant{SessionID: "missing", UserID: "alice"}, domain.RolePlayer)
	require.True(t, errors.Is(err, domain.ErrSessionNotFound))

	require.NoError(t, h.engine.EndSession(ctx, session.ID))
	_, err = h.engine.Join(ctx, player("alice"), domain.RolePlayer)
	require.ErrorIs(t, err, domain.ErrSessionEnded)
}

func TestConcurrentJoinsRespectCapacity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	session, err := h.engine.CreateSession(ctx, app.CreateSessionRequest{HostID: "host-1", Questions: quiz(), MaxParticipants: 5})
	require.NoError(t, err)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		joined int
		full   int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("player-%d", i)
			_, err := h.engine.Join(ctx, domain.Participant{SessionID: session.ID, UserID: user, DisplayName: user}, domain.RolePlayer)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				joined++
			case errors.Is(err, domain.ErrSessionFull):
				full++
			default:
				t.Errorf("unexpected join error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, 5, joined)
	require.Equal(t, 15, full)
	count, err := h.store.CountParticipants(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, 5, count)
}

func TestKickRequiresLiveConnection(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	s := h.create(t)

	require.ErrorIs(t, h.engine.Bans().Kick(ctx, s.ID, "ghost"), domain.ErrConnectionNotFound)
	h.gw.live["alice"] = true
	require.NoError(t, h.engine.Bans().Kick(ctx, s.ID, "alice"))
	require.Contains(t, h.gw.evicted, "alice:kicked")
}

func TestResyncOnlyDuringQuestion(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 1)
	s := h.create(t)
	h.join(t, s.ID, "alice")

	_, ok, err := h.engine.Resync(ctx, s.ID)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, h.engine.Start(ctx, s.ID))
	started, _ := h.gw.last(s.ID, domain.EventQuestionStart)

	payload, ok, err := h.engine.Resync(ctx, s.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, payload.Resync)
	require.Equal(t, started.(domain.QuestionStartPayload).Question.Choices, payload.Question.Choices)
	require.Equal(t, started.(domain.QuestionStartPayload).StartTime, payload.StartTime)
}

func TestLockedTransitionsReadPastStaleCache(t *testing.T) {
	ctx := context.Background()
	var backing app.Store
	h := newHarnessWith(t, 2, func(store app.Store, cache app.Cache, clock clockwork.Clock) app.Store {
		backing = store
		return cacheaside.New(store, cache, clock, time.Minute, zerolog.Nop())
	})
	s := h.create(t)
	h.join(t, s.ID, "alice", "bob")
	require.NoError(t, h.engine.Start(ctx, s.ID))

	// Another instance closes the question; this instance's cache still says question.
	closed, err := backing.GetSession(ctx, s.ID)
	require.NoError(t, err)
	closed.Status = domain.StatusResults
	closed.Revision++
	require.NoError(t, backing.UpdateSession(ctx, closed))
	cached, ok, err := h.cache.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.StatusQuestion, cached.Status)

	h.clock.Advance(4 * time.Second)
	_, err = h.engine.SubmitAnswer(ctx, s.ID, "alice", app.AnswerRequest{QuestionIndex: ptr(0), ChoiceID: ptr(0)})
	require.ErrorIs(t, err, domain.ErrNotAcceptingAnswers)
	require.ErrorIs(t, h.engine.EndQuestion(ctx, s.ID), domain.ErrInvalidTransition)

	snap, err := h.engine.Snapshot(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusResults, snap.Status, "the locked read refreshed the cache")
}

func TestRevisionAdvancesOnEveryTransition(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 1)
	s := h.create(t)
	require.Equal(t, int64(1), s.Revision)
	h.join(t, s.ID, "alice")

	require.NoError(t, h.engine.Start(ctx, s.ID))
	started, _ := h.engine.Snapshot(ctx, s.ID)
	require.NoError(t, h.engine.EndQuestion(ctx, s.ID))
	ended, _ := h.engine.Snapshot(ctx, s.ID)
	require.Greater(t, started.Revision, s.Revision)
	require.Greater(t, ended.Revision, started.Revision)
}

// failOnceStore fails the first RecordAnswer as a rolled back transaction would.
type failOnceStore struct {
	app.Store

	mu     sync.Mutex
	failed bool
}

func (s *failOnceStore) RecordAnswer(ctx context.Context, a domain.Answer) (int, error) {
	s.mu.Lock()
	first := !s.failed
	s.failed = true
	s.mu.Unlock()
	if first {
		return 0, errors.New("connection reset during commit")
	}
	return s.Store.RecordAnswer(ctx, a)
}

func TestFailedAnswerWriteCanBeRetried(t *testing.T) {
	ctx := context.Background()
	h := newHarnessWith(t, 2, func(store app.Store, _ app.Cache, _ clockwork.Clock) app.Store {
		return &failOnceStore{Store: store}
	})
	s := h.create(t)
	h.join(t, s.ID, "alice", "bob")
	require.NoError(t, h.engine.Start(ctx, s.ID))
	correct := h.presentedCorrect(t, s.ID)
	h.clock.Advance(4 * time.Second)

	req := app.AnswerRequest{QuestionIndex: ptr(0), ChoiceID: ptr(correct)}
	_, err := h.engine.SubmitAnswer(ctx, s.ID, "alice", req)
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrAlreadyAnswered)
	p, err := h.store.GetParticipant(ctx, s.ID, "alice")
	require.NoError(t, err)
	require.Zero(t, p.Score, "no partial credit from a failed write")

	res, err := h.engine.SubmitAnswer(ctx, s.ID, "alice", req)
	require.NoError(t, err, "retry after a failed write is not a duplicate")
	require.True(t, res.IsCorrect)
	require.Equal(t, res.Score, res.TotalScore)

	answers, err := h.store.ListAnswers(ctx, s.ID, 1, 0)
	require.NoError(t, err)
	require.Len(t, answers, 1)
}
