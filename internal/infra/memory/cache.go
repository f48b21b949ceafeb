package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// Cache is an in-process app.Cache used when Redis is not configured.
type Cache struct {
	clock clockwork.Clock
	rnd   *rand.Rand

	mu          sync.Mutex
	sessions    map[string]cachedSession
	scores      map[string]map[string]domain.ScoreEntry
	connections map[app.ConnectionKey]string
	bans        map[banKey]time.Time
}

type cachedSession struct {
	session   domain.Session
	expiresAt time.Time
}

func NewCache(clock clockwork.Clock) *Cache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Cache{
		clock:       clock,
		rnd:         rand.New(rand.NewSource(clock.Now().UnixNano())),
		sessions:    make(map[string]cachedSession),
		scores:      make(map[string]map[string]domain.ScoreEntry),
		connections: make(map[app.ConnectionKey]string),
		bans:        make(map[banKey]time.Time),
	}
}

var _ app.Cache = (*Cache)(nil)

func (c *Cache) GetSession(_ context.Context, sessionID string) (domain.Session, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.sessions[sessionID]
	if !ok {
		return domain.Session{}, false, nil
	}
	if !entry.expiresAt.After(c.clock.Now()) {
		delete(c.sessions, sessionID)
		return domain.Session{}, false, nil
	}
	return cloneSession(entry.session), true, nil
}

func (c *Cache) SetSession(_ context.Context, session domain.Session, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.sessions[session.ID]; ok &&
		current.expiresAt.After(c.clock.Now()) &&
		current.session.Revision > session.Revision {
		return nil
	}
	c.sessions[session.ID] = cachedSession{
		session:   cloneSession(session),
		expiresAt: c.clock.Now().Add(c.ttlWithJitter(ttl)),
	}
	return nil
}

func (c *Cache) DeleteSession(_ context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
	return nil
}

func (c *Cache) SetScore(_ context.Context, sessionID string, entry domain.ScoreEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	board, ok := c.scores[sessionID]
	if !ok {
		board = make(map[string]domain.ScoreEntry)
		c.scores[sessionID] = board
	}
	board[entry.UserID] = entry
	return nil
}

// TopScores orders by score descending, ties by join time then user id.
func (c *Cache) TopScores(_ context.Context, sessionID string, limit int) ([]domain.ScoreEntry, error) {
	c.mu.Lock()
	board := c.scores[sessionID]
	out := make([]domain.ScoreEntry, 0, len(board))
	for _, e := range board {
		out = append(out, e)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *Cache) ResetLeaderboard(_ context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.scores, sessionID)
	return nil
}

func (c *Cache) SetConnection(_ context.Context, key app.ConnectionKey, connectionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connections[key] = connectionID
	return nil
}

func (c *Cache) GetConnection(_ context.Context, key app.ConnectionKey) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.connections[key]
	return id, ok, nil
}

func (c *Cache) DeleteConnection(_ context.Context, key app.ConnectionKey, connectionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connections[key] == connectionID {
		delete(c.connections, key)
	}
	return nil
}

func (c *Cache) AddSessionBan(_ context.Context, sessionID, userID string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bans[banKey{sessionID, userID}] = c.clock.Now().Add(ttl)
	return nil
}

func (c *Cache) IsSessionBanned(_ context.Context, sessionID, userID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := banKey{sessionID, userID}
	expiresAt, ok := c.bans[key]
	if !ok {
		return false, nil
	}
	if !expiresAt.After(c.clock.Now()) {
		delete(c.bans, key)
		return false, nil
	}
	return true, nil
}

func (c *Cache) ttlWithJitter(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(ttl) / 10
	return ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
