package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// Cache implements app.Cache on Redis.
// Keys, all namespaced by session id:
//
//	session:{id}                  JSON snapshot, TTL with jitter
//	session:{id}:lb               ZSET userId -> score, keyTTL
//	session:{id}:names            HASH userId -> JSON {name, joinedAt}, keyTTL
//	session:{id}:conn:{role}:{u}  canonical connection id, keyTTL
//	session:{id}:ban:{u}          session ban marker with TTL
//
// keyTTL is refreshed on every write, so keys of abandoned sessions expire.
type Cache struct {
	client *redis.Client
	keyTTL time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewCache builds the cache; keyTTL <= 0 defaults to six hours.
func NewCache(client *redis.Client, keyTTL time.Duration) *Cache {
	if keyTTL <= 0 {
		keyTTL = 6 * time.Hour
	}
	return &Cache{
		client: client,
		keyTTL: keyTTL,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

var _ app.Cache = (*Cache)(nil)

// releaseScript deletes a key only while it still holds the expected value.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// setSessionScript writes ARGV[1] unless the stored snapshot carries a revision
// higher than ARGV[2]. ARGV[3] is the TTL in milliseconds.
var setSessionScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current then
	local ok, decoded = pcall(cjson.decode, current)
	if ok and type(decoded) == "table" then
		local rev = tonumber(decoded["revision"])
		if rev and rev > tonumber(ARGV[2]) then
			return 0
		end
	end
end
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
else
	redis.call("SET", KEYS[1], ARGV[1])
end
return 1
`)

// scoreName is the value kept per user in the names hash.
type scoreName struct {
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

func (c *Cache) GetSession(ctx context.Context, sessionID string) (domain.Session, bool, error) {
	raw, err := c.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, err
	}
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		// corrupt entry, treat as a miss
		_ = c.client.Del(ctx, sessionKey(sessionID)).Err()
		return domain.Session{}, false, nil
	}
	return session, true, nil
}

func (c *Cache) SetSession(ctx context.Context, session domain.Session, ttl time.Duration) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	ttlMillis := c.ttlWithJitter(ttl).Milliseconds()
	return setSessionScript.Run(ctx, c.client, []string{sessionKey(session.ID)}, raw, session.Revision, ttlMillis).Err()
}

func (c *Cache) DeleteSession(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, sessionKey(sessionID)).Err()
}

func (c *Cache) SetScore(ctx context.Context, sessionID string, entry domain.ScoreEntry) error {
	name, err := json.Marshal(scoreName{Name: entry.DisplayName, JoinedAt: entry.JoinedAt})
	if err != nil {
		return err
	}
	pipe := c.client.TxPipeline()
	pipe.ZAdd(ctx, leaderboardKey(sessionID), redis.Z{Score: float64(entry.Score), Member: entry.UserID})
	pipe.HSet(ctx, namesKey(sessionID), entry.UserID, name)
	pipe.Expire(ctx, leaderboardKey(sessionID), c.keyTTL)
	pipe.Expire(ctx, namesKey(sessionID), c.keyTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (c *Cache) TopScores(ctx context.Context, sessionID string, limit int) ([]domain.ScoreEntry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	members, err := c.client.ZRevRangeWithScores(ctx, leaderboardKey(sessionID), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}

	ids := make([]string, len(members))
	for i, m := range members {
		ids[i], _ = m.Member.(string)
	}
	names, err := c.client.HMGet(ctx, namesKey(sessionID), ids...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]domain.ScoreEntry, len(members))
	for i, m := range members {
		out[i] = domain.ScoreEntry{UserID: ids[i], Score: int(m.Score)}
		raw, _ := names[i].(string)
		var n scoreName
		if err := json.Unmarshal([]byte(raw), &n); err == nil {
			out[i].DisplayName = n.Name
			out[i].JoinedAt = n.JoinedAt
		} else {
			out[i].DisplayName = raw
		}
	}
	return out, nil
}

func (c *Cache) ResetLeaderboard(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, leaderboardKey(sessionID), namesKey(sessionID)).Err()
}

func (c *Cache) SetConnection(ctx context.Context, key app.ConnectionKey, connectionID string) error {
	return c.client.Set(ctx, connectionKey(key), connectionID, c.keyTTL).Err()
}

func (c *Cache) GetConnection(ctx context.Context, key app.ConnectionKey) (string, bool, error) {
	id, err := c.client.Get(ctx, connectionKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (c *Cache) DeleteConnection(ctx context.Context, key app.ConnectionKey, connectionID string) error {
	return releaseScript.Run(ctx, c.client, []string{connectionKey(key)}, connectionID).Err()
}

func (c *Cache) AddSessionBan(ctx context.Context, sessionID, userID string, ttl time.Duration) error {
	return c.client.Set(ctx, banKey(sessionID, userID), "1", ttl).Err()
}

func (c *Cache) IsSessionBanned(ctx context.Context, sessionID, userID string) (bool, error) {
	n, err := c.client.Exists(ctx, banKey(sessionID, userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *Cache) ttlWithJitter(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	jitterMax := int64(ttl) / 10
	c.mu.Lock()
	defer c.mu.Unlock()
	return ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

func leaderboardKey(sessionID string) string {
	return "session:" + sessionID + ":lb"
}

func namesKey(sessionID string) string {
	return "session:" + sessionID + ":names"
}

func connectionKey(key app.ConnectionKey) string {
	return "session:" + key.SessionID + ":conn:" + string(key.Role) + ":" + key.UserID
}

func banKey(sessionID, userID string) string {
	return "session:" + sessionID + ":ban:" + userID
}

func rateKey(key string) string {
	return "ratelimit:" + key
}

func member(now time.Time, seq uint64) string {
	return strconv.FormatInt(now.UnixNano(), 10) + "-" + strconv.FormatUint(seq, 10)
}
