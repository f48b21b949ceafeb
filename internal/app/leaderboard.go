package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"live-quiz-service/internal/domain"
)

// Leaderboard serves ranked scores from the cache sorted set, falling back to a
// recomputation from the store that is memoized for memoTTL. The cached set is
// only trusted while it covers the whole roster. Both paths rank ties by join time.
type Leaderboard struct {
	store   Store
	cache   Cache
	clock   clockwork.Clock
	memoTTL time.Duration
	logger  zerolog.Logger
	sf      singleflight.Group

	mu   sync.Mutex
	memo map[string]memoEntry
}

type memoEntry struct {
	entries   []domain.ScoreEntry
	expiresAt time.Time
}

// NewLeaderboard builds the service; cache may be nil.
func NewLeaderboard(store Store, cache Cache, clock clockwork.Clock, memoTTL time.Duration, logger zerolog.Logger) *Leaderboard {
	return &Leaderboard{
		store:   store,
		cache:   cache,
		clock:   clock,
		memoTTL: memoTTL,
		logger:  logger.With().Str("component", "leaderboard").Logger(),
		memo:    make(map[string]memoEntry),
	}
}

// Get returns up to limit entries (all when limit <= 0) ranked 1..N by score descending.
func (l *Leaderboard) Get(ctx context.Context, sessionID string, limit int) ([]domain.LeaderboardEntry, error) {
	entries, ok := l.fromCache(ctx, sessionID)
	if !ok {
		var err error
		entries, err = l.recompute(ctx, sessionID)
		if err != nil {
			return nil, err
		}
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return rank(entries), nil
}

// fromCache returns the whole cached board, ordered, when it holds at least one
// entry per participant.
func (l *Leaderboard) fromCache(ctx context.Context, sessionID string) ([]domain.ScoreEntry, bool) {
	if l.cache == nil {
		return nil, false
	}
	entries, err := l.cache.TopScores(ctx, sessionID, 0)
	if err != nil {
		l.logger.Warn().Err(err).Str("session_id", sessionID).Msg("leaderboard cache read failed, recomputing from store")
		return nil, false
	}
	if len(entries) == 0 {
		return nil, false
	}
	count, err := l.store.CountParticipants(ctx, sessionID)
	if err != nil {
		l.logger.Warn().Err(err).Str("session_id", sessionID).Msg("roster count failed")
		return nil, false
	}
	if len(entries) < count {
		l.logger.Debug().
			Str("session_id", sessionID).
			Int("cached", len(entries)).
			Int("participants", count).
			Msg("leaderboard cache incomplete, recomputing from store")
		return nil, false
	}
	sortEntries(entries)
	return entries, true
}

// Record pushes a participant's current total into the sorted set.
func (l *Leaderboard) Record(ctx context.Context, sessionID string, p domain.Participant) {
	l.Invalidate(sessionID)
	if l.cache == nil {
		return
	}
	err := l.cache.SetScore(ctx, sessionID, entryOf(p))
	if err == nil {
		return
	}
	l.logger.Warn().Err(err).Str("session_id", sessionID).Str("user_id", p.UserID).Msg("leaderboard cache write failed")
	// a set missing this score must not be served; the next read rebuilds it
	if err := l.cache.ResetLeaderboard(ctx, sessionID); err != nil {
		l.logger.Warn().Err(err).Str("session_id", sessionID).Msg("leaderboard cache reset failed")
	}
}

// Reset clears the sorted set and reseeds it with the roster at zero.
func (l *Leaderboard) Reset(ctx context.Context, sessionID string, roster []domain.Participant) {
	l.Invalidate(sessionID)
	if l.cache == nil {
		return
	}
	if err := l.cache.ResetLeaderboard(ctx, sessionID); err != nil {
		l.logger.Warn().Err(err).Str("session_id", sessionID).Msg("leaderboard cache reset failed")
		return
	}
	for _, p := range roster {
		p.Score = 0
		l.Record(ctx, sessionID, p)
	}
}

// Invalidate drops the memoized fallback for a session.
func (l *Leaderboard) Invalidate(sessionID string) {
	l.mu.Lock()
	delete(l.memo, sessionID)
	l.mu.Unlock()
}

func (l *Leaderboard) recompute(ctx context.Context, sessionID string) ([]domain.ScoreEntry, error) {
	now := l.clock.Now()
	l.mu.Lock()
	if m, ok := l.memo[sessionID]; ok && m.expiresAt.After(now) {
		l.mu.Unlock()
		return m.entries, nil
	}
	l.mu.Unlock()

	result, err, _ := l.sf.Do(sessionID, func() (interface{}, error) {
		participants, err := l.store.ListParticipants(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		entries := make([]domain.ScoreEntry, 0, len(participants))
		for _, p := range participants {
			entries = append(entries, entryOf(p))
		}
		sortEntries(entries)

		l.mu.Lock()
		l.memo[sessionID] = memoEntry{entries: entries, expiresAt: now.Add(l.memoTTL)}
		l.mu.Unlock()

		l.repopulate(ctx, sessionID, entries)
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.ScoreEntry), nil
}

func (l *Leaderboard) repopulate(ctx context.Context, sessionID string, entries []domain.ScoreEntry) {
	if l.cache == nil {
		return
	}
	for _, e := range entries {
		if err := l.cache.SetScore(ctx, sessionID, e); err != nil {
			l.logger.Debug().Err(err).Str("session_id", sessionID).Msg("leaderboard repopulate skipped")
			return
		}
	}
}

func entryOf(p domain.Participant) domain.ScoreEntry {
	return domain.ScoreEntry{UserID: p.UserID, DisplayName: p.DisplayName, Score: p.Score, JoinedAt: p.JoinedAt}
}

// sortEntries orders by score descending, then earliest join, then display name.
func sortEntries(entries []domain.ScoreEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if !entries[i].JoinedAt.Equal(entries[j].JoinedAt) {
			return entries[i].JoinedAt.Before(entries[j].JoinedAt)
		}
		if entries[i].DisplayName != entries[j].DisplayName {
			return entries[i].DisplayName < entries[j].DisplayName
		}
		return entries[i].UserID < entries[j].UserID
	})
}

func rank(entries []domain.ScoreEntry) []domain.LeaderboardEntry {
	out := make([]domain.LeaderboardEntry, len(entries))
	for i, e := range entries {
		out[i] = domain.LeaderboardEntry{
			Rank:        i + 1,
			UserID:      e.UserID,
			DisplayName: e.DisplayName,
			Score:       e.Score,
		}
	}
	return out
}
